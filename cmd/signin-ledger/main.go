// signin-ledger receives sign-in and sign-out scans from a biometric
// device, keeps a bounded in-memory history with the set of people
// currently signed in, and serves both to a polling dashboard.
//
// The ledger lives in process memory only. Restarting the service starts
// with an empty history and no active sessions; the optional archive is a
// write-only audit copy and is never loaded back.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"example.com/signinledger/internal/archive"
	"example.com/signinledger/internal/config"
	"example.com/signinledger/internal/device"
	"example.com/signinledger/internal/ingest"
	"example.com/signinledger/internal/ledger"
	"example.com/signinledger/internal/metrics"
	transport "example.com/signinledger/internal/transport/http"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		port        string
		logLevel    string
		showVersion bool
	)
	flagSet := pflag.NewFlagSet("signin-ledger", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", os.Getenv("CONFIG_FILE"), "path to a YAML config file")
	flagSet.StringVarP(&port, "port", "p", "", "listen port (overrides PORT and the config file)")
	flagSet.StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")
	flagSet.BoolVar(&showVersion, "version", false, "print version and exit")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if showVersion {
		fmt.Println("signin-ledger", version)
		return nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if port != "" {
		cfg.Port = port
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	logger.Info("config loaded",
		"port", cfg.Port,
		"capacity", cfg.Ledger.Capacity,
		"tolerance", cfg.Ledger.Tolerance,
		"timezone", loc.String(),
		"archive", cfg.Archive.Driver,
		"archive_dsn", cfg.RedactedDSN(),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	m := metrics.New()
	live := transport.NewLiveHub(ctx, logger.With("component", "live"), time.Now, m.LiveListeners)
	deps := &transport.ServerDeps{
		Cfg: cfg,
		Ledger: ledger.New(ledger.Options{
			Capacity:  cfg.Ledger.Capacity,
			Tolerance: cfg.Ledger.Tolerance,
			Location:  loc,
			Observer:  transport.LedgerFeed{Metrics: m, Live: live},
		}),
		Metrics:   m,
		Live:      live,
		Device:    device.NewCommandBit(false),
		Log:       logger.With("component", "http"),
		Now:       time.Now,
		StartedAt: time.Now(),
	}

	store, err := archive.Open(ctx, archive.Config{
		Driver:    cfg.Archive.Driver,
		DSN:       cfg.Archive.DSN,
		Tolerance: cfg.Ledger.Tolerance,
	})
	if err != nil {
		return err
	}
	// The ingestor outlives ctx so events accepted while the server drains
	// still reach the archive.
	ingestCtx, stopIngest := context.WithCancel(context.Background())
	defer stopIngest()
	var ingestor *ingest.Ingestor
	if store != nil {
		defer store.Close()
		ingestor = ingest.NewIngestor(store,
			cfg.Archive.QueueMaxSize, cfg.Archive.BatchMaxSize, cfg.Archive.BatchMaxWait,
			logger.With("component", "ingest"), m)
		ingestor.Start(ingestCtx)
		deps.Archive = store
		deps.Ingestor = ingestor
		logger.Info("archive enabled",
			"driver", cfg.Archive.Driver,
			"queue", cfg.Archive.QueueMaxSize,
			"batch", cfg.Archive.BatchMaxSize,
			"wait", cfg.Archive.BatchMaxWait,
		)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           deps.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down", "timeout", cfg.ShutdownWait)
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownWait)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "err", err)
	}

	if ingestor != nil {
		stopIngest()
		ingestor.Wait()
	}
	logger.Info("stopped", "entries_discarded", deps.Ledger.Len())
	return nil
}

func newLogger(cfg config.Config) (*slog.Logger, error) {
	level, err := cfg.LogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if cfg.Log.Format == "text" {
		h = slog.NewTextHandler(os.Stderr, opts)
	} else {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger, nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `signin-ledger: in-memory sign-in/sign-out ledger for a biometric scanner.

History and active sessions are kept in memory only. A restart begins
with an empty ledger. Set ARCHIVE_DRIVER (postgres or sqlite) and
ARCHIVE_DSN to keep a write-only audit copy of stored events.

Usage:
  signin-ledger [flags]

Flags:
%s
Environment variables override the config file; flags override both.
`, flagSet.FlagUsages())
}
