package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/brc721/brc721d/internal/daemonerr"
)

func parseEVMAddress(s string) ([20]byte, error) {
	var out [20]byte
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimPrefix(s, "0X")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return out, daemonerr.New(daemonerr.Config, "evm-collection-address must be 20 bytes of hex", err)
	}
	if len(raw) != 20 {
		return out, daemonerr.New(daemonerr.Config,
			fmt.Sprintf("evm-collection-address must be 20 bytes, got %d", len(raw)), nil)
	}
	copy(out[:], raw)
	return out, nil
}

func txCmd(envFile *string) *cobra.Command {
	cmd := &cobra.Command{Use: "tx", Short: "transaction-building commands"}

	var evmAddrHex, passphrase string
	var rebaseable bool
	var feeRate int64
	registerCmd := &cobra.Command{
		Use:   "register-collection",
		Short: "build and broadcast a register_collection transaction",
		RunE: func(cmd *cobra.Command, args []string) error {
			evmAddr, err := parseEVMAddress(evmAddrHex)
			if err != nil {
				return err
			}
			a, err := bootstrap(*envFile, false)
			if err != nil {
				return err
			}
			defer a.Close()
			txid, err := a.wallet.RegisterCollection(context.Background(), evmAddr, rebaseable, feeRate, passphrase)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), txid)
			return nil
		},
	}
	registerCmd.Flags().StringVar(&evmAddrHex, "evm-collection-address", "", "0x-prefixed 20-byte EVM collection address")
	registerCmd.Flags().BoolVar(&rebaseable, "rebaseable", false, "mark the collection as rebaseable")
	registerCmd.Flags().Int64Var(&feeRate, "fee-rate", 0, "fee rate in sat/vB (0 = use the node's estimate)")
	registerCmd.Flags().StringVar(&passphrase, "passphrase", "", "node wallet passphrase to unlock for signing")
	cmd.AddCommand(registerCmd)

	var amountSat int64
	var sendFeeRate int64
	var sendPassphrase string
	sendCmd := &cobra.Command{
		Use:   "send-amount <address>",
		Short: "build and broadcast a value-transfer transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(*envFile, false)
			if err != nil {
				return err
			}
			defer a.Close()
			txid, err := a.wallet.SendAmount(context.Background(), args[0], amountSat, sendFeeRate, sendPassphrase)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), txid)
			return nil
		},
	}
	sendCmd.Flags().Int64Var(&amountSat, "amount-sat", 0, "amount to send, in satoshis")
	sendCmd.Flags().Int64Var(&sendFeeRate, "fee-rate", 0, "fee rate in sat/vB (0 = use the node's estimate)")
	sendCmd.Flags().StringVar(&sendPassphrase, "passphrase", "", "node wallet passphrase to unlock for signing")
	cmd.AddCommand(sendCmd)

	return cmd
}
