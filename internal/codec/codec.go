// Package codec implements the BRC-721 OP_RETURN payload format: a
// fixed-prefix, versioned, opcode-dispatched byte string carried in a
// Bitcoin OP_RETURN output. Decode never errors — an output that isn't a
// well-formed BRC-721 payload simply yields no event, so the scanner can
// call it on every output unconditionally.
package codec

import (
	"fmt"

	"github.com/btcsuite/btcd/txscript"
)

// Magic identifies the BRC-721 protocol tag at the start of the payload.
var Magic = [3]byte{'B', 'R', 'C'}

// CurrentVersion is the only version this decoder accepts. Unknown versions
// are forward-compat no-ops, per the opcode dispatch design.
const CurrentVersion = 0x00

const (
	opRegisterCollection = 0x00
)

const (
	flagRebaseable  = 1 << 0
	flagReservedAll = ^byte(flagRebaseable)
)

// registerCollectionPayloadLen is the total payload length for a
// RegisterCollection event: 3 magic + 1 version + 1 opcode + 1 flags + 20
// evm_address.
const registerCollectionPayloadLen = 26

// Opcode names an event kind within a payload version.
type Opcode byte

const (
	OpcodeRegisterCollection Opcode = opRegisterCollection
)

// RegisterCollection is the sole PayloadEvent variant defined so far. Future
// opcodes extend this set without touching scanner control flow — the
// scanner just persists whatever Decode returns.
type RegisterCollection struct {
	Version     byte
	EVMAddress  [20]byte
	Rebaseable  bool
}

// Event is a decoded PayloadEvent. Exactly one of the typed fields is set;
// Opcode names which. New opcodes get their own field here.
type Event struct {
	Opcode              Opcode
	RegisterCollection  *RegisterCollection
}

// Decode inspects a single transaction output script and returns the
// decoded event, or (nil, nil) if the script isn't an OP_RETURN carrying a
// well-formed BRC-721 payload. It never returns a non-nil error for
// malformed input — only genuine programming-contract violations (none
// currently possible) would, so callers can treat any non-nil error as a
// bug rather than untrusted-chain-data rejection.
func Decode(scriptPubKey []byte) (*Event, error) {
	data, isNullData := extractNullData(scriptPubKey)
	if !isNullData {
		return nil, nil
	}

	if len(data) < 5 {
		return nil, nil
	}
	if data[0] != Magic[0] || data[1] != Magic[1] || data[2] != Magic[2] {
		return nil, nil
	}
	version := data[3]
	if version != CurrentVersion {
		return nil, nil
	}
	opcode := data[4]

	switch opcode {
	case opRegisterCollection:
		return decodeRegisterCollection(data)
	default:
		return nil, nil
	}
}

func decodeRegisterCollection(data []byte) (*Event, error) {
	if len(data) != registerCollectionPayloadLen {
		return nil, nil
	}
	flags := data[5]
	if flags&flagReservedAll != 0 {
		return nil, nil
	}

	var evmAddr [20]byte
	copy(evmAddr[:], data[6:26])

	return &Event{
		Opcode: OpcodeRegisterCollection,
		RegisterCollection: &RegisterCollection{
			Version:    CurrentVersion,
			EVMAddress: evmAddr,
			Rebaseable: flags&flagRebaseable != 0,
		},
	}, nil
}

// EncodeRegisterCollection produces the OP_RETURN data payload for a
// RegisterCollection event. It is the left inverse of Decode: for any valid
// event e, decoding ScriptPubKey(EncodeRegisterCollection(e)) reproduces e.
func EncodeRegisterCollection(evmAddress [20]byte, rebaseable bool) []byte {
	buf := make([]byte, registerCollectionPayloadLen)
	buf[0], buf[1], buf[2] = Magic[0], Magic[1], Magic[2]
	buf[3] = CurrentVersion
	buf[4] = opRegisterCollection
	if rebaseable {
		buf[5] = flagRebaseable
	}
	copy(buf[6:26], evmAddress[:])
	return buf
}

// ScriptPubKey wraps an encoded payload in a standard Bitcoin OP_RETURN
// output script, as txscript.NullDataScript does for generic null-data
// outputs.
func ScriptPubKey(payload []byte) ([]byte, error) {
	script, err := txscript.NullDataScript(payload)
	if err != nil {
		return nil, fmt.Errorf("build null data script: %w", err)
	}
	return script, nil
}

// extractNullData reports whether script is a standard OP_RETURN output and
// returns its data payload. Mirrors txscript.ExtractPkScriptAddrs' handling
// of null-data scripts but needs only the payload bytes.
func extractNullData(script []byte) ([]byte, bool) {
	if len(script) < 1 || script[0] != txscript.OP_RETURN {
		return nil, false
	}
	tokenizer := txscript.MakeScriptTokenizer(0, script[1:])
	if !tokenizer.Next() {
		return []byte{}, true
	}
	data := tokenizer.Data()
	if tokenizer.Next() {
		// More than one push after OP_RETURN is non-standard for this
		// protocol; treat as not-our-payload rather than concatenating.
		return nil, false
	}
	if err := tokenizer.Err(); err != nil {
		return nil, false
	}
	return data, true
}
