// Package config loads daemon configuration from the process environment,
// optionally pre-populated by a .env file, with defaults matching the
// external interface contract. CLI-only values (mnemonic, passphrase,
// reset) are parsed at the cmd/brc721d entrypoint and passed down as
// explicit arguments; they never live here.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is every environment-sourced daemon setting.
type Config struct {
	BitcoinRPCURL  string
	BitcoinRPCUser string
	BitcoinRPCPass string

	StartHeight   int64
	Confirmations int64
	BatchSize     int
	MaxReorgDepth int64
	PollInterval  time.Duration

	DataDir  string
	Network  string
	LogFile  string
	APIListen string
}

// defaults match §6 of the external interface contract exactly, plus
// implementation-chosen constants noted inline.
func defaults() Config {
	return Config{
		BitcoinRPCURL:  "http://127.0.0.1:8332",
		BitcoinRPCUser: "dev",
		BitcoinRPCPass: "dev",
		StartHeight:    923580,
		Confirmations:  3,
		BatchSize:      1,
		MaxReorgDepth:  100, // spec's own illustrative value
		PollInterval:   10 * time.Second,
		DataDir:        ".brc721/",
		Network:        "regtest",
		LogFile:        "",
		APIListen:      "127.0.0.1:8083",
	}
}

// Load reads envFile if present (a missing file is not an error, matching
// the teacher's best-effort dotenv loading) and overlays it and the process
// environment onto the defaults.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("loading env file %s: %w", envFile, err)
		}
	}

	cfg := defaults()

	if v := os.Getenv("BITCOIN_RPC_URL"); v != "" {
		cfg.BitcoinRPCURL = v
	}
	if v := os.Getenv("BITCOIN_RPC_USER"); v != "" {
		cfg.BitcoinRPCUser = v
	}
	if v := os.Getenv("BITCOIN_RPC_PASS"); v != "" {
		cfg.BitcoinRPCPass = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("NETWORK"); v != "" {
		cfg.Network = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v := os.Getenv("API_LISTEN"); v != "" {
		cfg.APIListen = v
	}

	var err error
	if cfg.StartHeight, err = overlayInt64("START_HEIGHT", cfg.StartHeight); err != nil {
		return Config{}, err
	}
	if cfg.Confirmations, err = overlayInt64("CONFIRMATIONS", cfg.Confirmations); err != nil {
		return Config{}, err
	}
	if cfg.MaxReorgDepth, err = overlayInt64("MAX_REORG_DEPTH", cfg.MaxReorgDepth); err != nil {
		return Config{}, err
	}
	batchSize, err := overlayInt64("BATCH_SIZE", int64(cfg.BatchSize))
	if err != nil {
		return Config{}, err
	}
	cfg.BatchSize = int(batchSize)

	if v := os.Getenv("POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("parsing POLL_INTERVAL %q: %w", v, err)
		}
		cfg.PollInterval = d
	}

	return cfg, nil
}

func overlayInt64(envVar string, current int64) (int64, error) {
	v := os.Getenv(envVar)
	if v == "" {
		return current, nil
	}
	parsed, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s %q: %w", envVar, v, err)
	}
	return parsed, nil
}

// StorePath is the Store file path for network under DataDir, per §6's
// persisted layout ({data_dir}/{network}/brc721.sqlite).
func (c Config) StorePath() string {
	return filepath.Join(c.DataDir, c.Network, "brc721.sqlite")
}
