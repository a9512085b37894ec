// Command fetch polls DexScreener once and prints the token snapshot the
// server would serve, or the raw normalized pairs with -pairs.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"tokenticker/internal/config"
	"tokenticker/internal/feed"
	"tokenticker/internal/httpx"
	"tokenticker/internal/logging"
	"tokenticker/internal/sources"
	"tokenticker/internal/version"
)

func main() {
	var (
		configPath  string
		token       string
		timeout     int
		showPairs   bool
		maxPairs    int
		logLevel    string
		showVersion bool
	)

	_ = godotenv.Load()

	flag.StringVar(&configPath, "config", os.Getenv("CONFIG_FILE"), "path to config.json or config.yaml (optional)")
	flag.StringVar(&token, "token", "", "token address (defaults to the configured one)")
	flag.IntVar(&timeout, "timeout", 0, "request timeout seconds (defaults to token.fetch_timeout_sec)")
	flag.BoolVar(&showPairs, "pairs", false, "print the normalized pairs instead of the snapshot")
	flag.IntVar(&maxPairs, "n", 10, "max pairs to print with -pairs")
	flag.StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version.String())
		return
	}

	logger := logging.New(os.Stderr, logLevel)
	if err := run(logger, configPath, token, timeout, showPairs, maxPairs); err != nil {
		logger.Error("fetch failed", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, configPath, token string, timeout int, showPairs bool, maxPairs int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if token != "" {
		cfg.Token.Address = token
	}
	if timeout > 0 {
		cfg.Token.FetchTimeoutSec = timeout
	}
	// One-shot: no cache and no limiter.
	cfg.Token.CacheTTLSeconds = 0
	cfg.Token.MaxRequestsPerMinute = 0
	cfg.Token.MinRequestIntervalSec = 0
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	src := sources.Build(cfg.Token, httpx.New(cfg.Token.FetchTimeout()))
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Token.FetchTimeout()+time.Second)
	defer cancel()

	if showPairs {
		pairs, err := src.Pairs(ctx, cfg.Token.Address)
		if err != nil {
			return err
		}
		logger.Info("pairs received", "source", src.Name(), "count", len(pairs))
		if len(pairs) > maxPairs && maxPairs > 0 {
			pairs = pairs[:maxPairs]
		}
		return printJSON(struct {
			Pairs any `json:"pairs"`
		}{Pairs: pairs})
	}

	p := feed.New(feed.Config{
		TokenAddress: cfg.Token.Address,
		FetchTimeout: cfg.Token.FetchTimeout(),
	}, src, feed.WithLogger(logger))
	s, err := p.Refresh(ctx)
	if err != nil {
		return err
	}
	if err := printJSON(s); err != nil {
		return err
	}
	if s.Error != "" {
		return errors.New(s.Error)
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
