package main

import (
	"context"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brc721/brc721d/internal/config"
	"github.com/brc721/brc721d/internal/keyprovider"
	"github.com/brc721/brc721d/internal/lockfile"
	"github.com/brc721/brc721d/internal/node"
	"github.com/brc721/brc721d/internal/obs"
	"github.com/brc721/brc721d/internal/store"
	"github.com/brc721/brc721d/internal/wallet"
)

// rpcTimeout bounds a single JSON-RPC round trip to the node.
const rpcTimeout = 30 * time.Second

// rpcCallsPerSecond throttles the node connection shared by the scanner
// and any command invocation, per the concurrency design's "node RPC
// connection (rate-limited by the adapter)".
const rpcCallsPerSecond = 20

// app is the composition root every cmd/brc721d entrypoint builds once:
// config, logging, metrics, the locked Store, the node adapter and the
// watch-only Wallet built on top of them.
type app struct {
	cfg     config.Config
	log     *logrus.Logger
	metrics *obs.Metrics
	audit   *obs.AuditLog
	lock    *lockfile.Lock
	store   *store.Store
	adapter node.Adapter
	wallet  *wallet.Wallet
}

// bootstrap wires the composition root from envFile and, if reset is true,
// wipes the Store before returning. Callers must defer Close().
func bootstrap(envFile string, reset bool) (*app, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}

	log, err := obs.NewLogger(cfg.LogFile)
	if err != nil {
		return nil, err
	}

	lock, err := lockfile.Acquire(cfg.DataDir, cfg.Network)
	if err != nil {
		return nil, err
	}

	metrics := obs.NewMetrics()

	auditPath := filepath.Join(cfg.DataDir, cfg.Network, "audit.ndjson")
	audit, err := obs.NewAuditLog(auditPath)
	if err != nil {
		lock.Release()
		return nil, err
	}

	st, err := store.Open(cfg.StorePath())
	if err != nil {
		lock.Release()
		return nil, err
	}
	if reset {
		if err := st.Reset(context.Background()); err != nil {
			st.Close()
			lock.Release()
			return nil, err
		}
	}

	rpcClient := node.NewHTTPRPCClient(cfg.BitcoinRPCURL, cfg.BitcoinRPCUser, cfg.BitcoinRPCPass, rpcTimeout)
	limited := node.NewRateLimitedClient(rpcClient, rpcCallsPerSecond, time.Second)
	adapter := node.NewBitcoinCoreAdapter(limited)

	w := wallet.New(adapter, st, keyprovider.NewDefault(), log, metrics, audit)

	return &app{
		cfg:     cfg,
		log:     log,
		metrics: metrics,
		audit:   audit,
		lock:    lock,
		store:   st,
		adapter: adapter,
		wallet:  w,
	}, nil
}

// Close releases every resource bootstrap acquired, in reverse order.
func (a *app) Close() {
	if a.adapter != nil {
		if err := a.adapter.Close(); err != nil {
			a.log.WithError(err).Warn("closing node adapter")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.WithError(err).Warn("closing store")
		}
	}
	if a.lock != nil {
		if err := a.lock.Release(); err != nil {
			a.log.WithError(err).Warn("releasing data directory lock")
		}
	}
}
