// Package scanner implements the confirmation-lagged, reorg-safe block
// follower: the daemon's single writer to the cursor and collections rows.
// On each tick it fetches up to batch_size blocks and commits each one as
// its own atomic unit; batch_size never widens the commit unit.
package scanner

import (
	"context"
	"time"

	"github.com/btcsuite/btcd/txscript"
	"github.com/sirupsen/logrus"

	"github.com/brc721/brc721d/internal/codec"
	"github.com/brc721/brc721d/internal/daemonerr"
	"github.com/brc721/brc721d/internal/node"
	"github.com/brc721/brc721d/internal/obs"
	"github.com/brc721/brc721d/internal/store"
)

// Config carries the tunables from the configuration design (§6):
// confirmations, batch_size and the poll interval.
type Config struct {
	Confirmations int64
	BatchSize     int
	PollInterval  time.Duration
	MaxReorgDepth int64
	StartHeight   int64
}

const maxBackoff = 2 * time.Minute

// heightHash is one entry of the bounded ancestor history the scanner keeps
// in memory, mirroring the Store's ancestors table, to support walking
// backward during a reorg without relying on a Collection row existing at
// every height (most blocks carry none).
type heightHash struct {
	height int64
	hash   string
}

// Scanner drives the indexer forward. Durable state lives entirely in the
// Store, including the per-height ancestor hash history (the `ancestors`
// table, bounded to max_reorg_depth); the in-memory history is just a cache
// of it, reloaded via Store.LoadAncestors on every Run, so a restart never
// narrows how far back a reorg can be traced. The only state that does not
// survive a restart is the current retry backoff.
type Scanner struct {
	adapter node.Adapter
	store   *store.Store
	cfg     Config
	log     *logrus.Logger
	metrics *obs.Metrics

	history []heightHash
	backoff time.Duration
}

// New builds a Scanner. cfg.PollInterval is also the initial backoff.
func New(adapter node.Adapter, st *store.Store, cfg Config, log *logrus.Logger, metrics *obs.Metrics) *Scanner {
	return &Scanner{
		adapter: adapter,
		store:   st,
		cfg:     cfg,
		log:     log,
		metrics: metrics,
		backoff: cfg.PollInterval,
	}
}

// Run loops ticks until ctx is cancelled or the scanner hits a fatal error
// (anything other than a retryable Node error). On first start it
// initializes the cursor at (start_height-1, sentinel).
func (s *Scanner) Run(ctx context.Context) error {
	if err := s.store.InitCursor(ctx, s.cfg.StartHeight); err != nil {
		return err
	}
	if err := s.seedHistory(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		err := s.tick(ctx)
		if err == nil {
			s.backoff = s.cfg.PollInterval
			continue
		}
		if daemonerr.Is(err, daemonerr.Reorg) {
			continue
		}
		if daemonerr.Retryable(err) {
			s.log.WithError(err).Warn("scanner: retryable node error, backing off")
			if !sleepOrDone(ctx, s.backoff) {
				return nil
			}
			s.backoff *= 2
			if s.backoff > maxBackoff {
				s.backoff = maxBackoff
			}
			continue
		}
		return err
	}
}

// seedHistory loads the in-memory ancestor history from the Store's
// persisted ancestors table, falling back to the current cursor entry alone
// if the table holds nothing for it yet (a store predating this table, or a
// cursor sitting at start_height-1 with no block committed). Called once at
// the top of Run, so a restart resumes with the same reorg-walk depth it
// had before, rather than only the single entry at the current cursor.
func (s *Scanner) seedHistory(ctx context.Context) error {
	cursor, err := s.store.GetCursor(ctx)
	if err != nil {
		return err
	}
	ancestors, err := s.store.LoadAncestors(ctx)
	if err != nil {
		return err
	}
	s.history = make([]heightHash, 0, len(ancestors)+1)
	for _, a := range ancestors {
		s.history = append(s.history, heightHash{height: a.Height, hash: a.Hash})
	}
	if len(s.history) == 0 || s.history[len(s.history)-1].height != cursor.LastHeight {
		s.history = append(s.history, heightHash{height: cursor.LastHeight, hash: cursor.LastHash})
	}
	return nil
}

// tick executes one poll/fetch/decode/commit cycle, or one reorg-rollback
// cycle when the parent check fails.
func (s *Scanner) tick(ctx context.Context) error {
	cursor, err := s.store.GetCursor(ctx)
	if err != nil {
		return err
	}
	if cursor == nil {
		return daemonerr.New(daemonerr.Durability, "scanner tick before cursor init", nil)
	}

	tipHeight, _, err := s.adapter.Tip(ctx)
	if err != nil {
		return err
	}
	safeHeight := tipHeight - s.cfg.Confirmations
	if s.metrics != nil {
		lag := safeHeight - cursor.LastHeight
		if lag < 0 {
			lag = 0
		}
		s.metrics.TipLagBlocks.Set(float64(lag))
	}
	if cursor.LastHeight >= safeHeight {
		sleepOrDone(ctx, s.cfg.PollInterval)
		return nil
	}

	target := cursor.LastHeight + int64(s.cfg.BatchSize)
	if target > safeHeight {
		target = safeHeight
	}

	for h := cursor.LastHeight + 1; h <= target; h++ {
		view, err := s.adapter.BlockAt(ctx, h)
		if err != nil {
			return err
		}

		isFirstBlockEver := cursor.LastHash == "sentinel" && h == cursor.LastHeight+1
		if !isFirstBlockEver && view.PrevHash != cursor.LastHash {
			return s.reorg(ctx, cursor)
		}

		events := decodeBlock(view, s.log, s.metrics)

		if err := s.store.CommitBlock(ctx, cursor.LastHeight, view.Height, view.Hash, events); err != nil {
			if daemonerr.Is(err, daemonerr.StaleCursor) {
				s.log.Warn("scanner: stale cursor on commit, reloading")
				return nil
			}
			return err
		}

		s.log.WithFields(logrus.Fields{
			"height": view.Height,
			"hash":   view.Hash,
			"events": len(events),
		}).Info("scanner: block committed")
		if s.metrics != nil {
			s.metrics.BlocksScanned.Inc()
			s.metrics.CommitsTotal.Inc()
		}

		cursor = &store.ChainCursor{LastHeight: view.Height, LastHash: view.Hash}
		s.pushHistory(cursor.LastHeight, cursor.LastHash)
	}

	if err := s.store.PruneAncestors(ctx, cursor.LastHeight-s.cfg.MaxReorgDepth); err != nil {
		s.log.WithError(err).Warn("scanner: prune ancestor history failed")
	}

	return nil
}

// decodeBlock runs the codec over every output of every transaction in
// order, keeping each decoded event's (txid, vout) tag. An OP_RETURN output
// the codec rejects is logged at debug level and counted as a decode reject;
// other outputs are skipped silently.
func decodeBlock(view node.BlockView, log *logrus.Logger, metrics *obs.Metrics) []store.CommitEvent {
	var events []store.CommitEvent
	for _, tx := range view.Txs {
		for vout, out := range tx.Outputs {
			event, err := codec.Decode(out.ScriptPubKey)
			if err != nil {
				continue
			}
			if event == nil {
				if len(out.ScriptPubKey) > 0 && out.ScriptPubKey[0] == txscript.OP_RETURN {
					log.WithFields(logrus.Fields{"txid": tx.Txid, "vout": vout}).
						Debug("scanner: OP_RETURN output rejected by codec")
					if metrics != nil {
						metrics.DecodeRejects.Inc()
					}
				}
				continue
			}
			if event.RegisterCollection == nil {
				continue
			}
			events = append(events, store.CommitEvent{
				Txid:       tx.Txid,
				Vout:       uint32(vout),
				EVMAddress: event.RegisterCollection.EVMAddress,
				Rebaseable: event.RegisterCollection.Rebaseable,
			})
		}
	}
	return events
}

// reorg walks backward through the in-memory ancestor history, asking the
// node for its canonical hash at each height, until node-reported and
// last-observed hashes agree. That height is the common ancestor; the scan
// resumes from there after RollbackTo.
func (s *Scanner) reorg(ctx context.Context, cursor *store.ChainCursor) error {
	for depth := int64(0); depth <= s.cfg.MaxReorgDepth; depth++ {
		entry, ok := s.historyAt(cursor.LastHeight - depth)
		if !ok {
			break
		}
		view, err := s.adapter.BlockAt(ctx, entry.height)
		if err != nil {
			return err
		}
		if view.Hash == entry.hash {
			s.log.WithFields(logrus.Fields{
				"ancestor_height": entry.height,
				"depth":           depth,
			}).Warn("scanner: reorg detected, rolling back")
			if s.metrics != nil {
				s.metrics.ReorgsTotal.Inc()
				s.metrics.ReorgDepth.Set(float64(depth))
			}
			if err := s.store.RollbackTo(ctx, entry.height, entry.hash); err != nil {
				return err
			}
			s.truncateHistory(entry.height)
			return daemonerr.New(daemonerr.Reorg, "rolled back to common ancestor", nil)
		}
	}

	return daemonerr.New(daemonerr.DeepReorg,
		"no common ancestor found within max_reorg_depth", nil)
}

func (s *Scanner) pushHistory(height int64, hash string) {
	s.history = append(s.history, heightHash{height: height, hash: hash})
	keep := s.cfg.MaxReorgDepth + 1
	if int64(len(s.history)) > keep {
		s.history = s.history[int64(len(s.history))-keep:]
	}
}

func (s *Scanner) truncateHistory(height int64) {
	for i, e := range s.history {
		if e.height == height {
			s.history = s.history[:i+1]
			return
		}
	}
}

func (s *Scanner) historyAt(height int64) (heightHash, bool) {
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].height == height {
			return s.history[i], true
		}
	}
	return heightHash{}, false
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
