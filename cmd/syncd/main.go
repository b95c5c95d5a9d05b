// Command syncd runs the sync core as a process. It can serve the web API over
// a local event log, relay JSON command lines from stdin through the outbox,
// and print events polled from an upstream feed as JSON lines on stdout.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/LerianStudio/lib-syncore/syncore/config"
	libLog "github.com/LerianStudio/lib-syncore/syncore/log"
	"github.com/LerianStudio/lib-syncore/syncore/platform"
	"github.com/LerianStudio/lib-syncore/syncore/runtime"
	libZap "github.com/LerianStudio/lib-syncore/syncore/zap"
)

func main() {
	configPath := flag.String("config", os.Getenv("SYNCORE_CONFIG"), "path to a YAML, JSON or TOML config file")
	flag.Parse()

	if err := run(*configPath); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "syncd:", err)
		os.Exit(1)
	}
}

var errNothingEnabled = errors.New("enable at least one of server, outbox or events")

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if !cfg.Server.Enabled && !cfg.Outbox.Enabled && !cfg.Events.Enabled {
		return errNothingEnabled
	}

	logger, err := libZap.New(libZap.Config{
		Environment: libZap.Environment(cfg.Log.Environment),
		Level:       cfg.Log.Level,
		ServiceName: cfg.Log.ServiceName,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	defer func() { _ = logger.Sync(context.Background()) }()

	stores, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	loop := platform.NewLoop(platform.WithLoopLogger(logger))
	if err := loop.Start(ctx); err != nil {
		return err
	}
	defer loop.Stop()

	group, gctx := runtime.NewGroup(ctx, logger)

	if cfg.Server.Enabled {
		srv, err := newServer(cfg, stores, logger)
		if err != nil {
			return err
		}

		group.Go("web-api", srv.run)
	}

	if cfg.Outbox.Enabled || cfg.Events.Enabled {
		relay, err := newRelay(gctx, cfg, stores, loop, logger)
		if err != nil {
			return err
		}
		defer relay.Close()

		group.Go("relay", func(ctx context.Context) error {
			return relay.run(ctx, os.Stdin, os.Stdout)
		})
	}

	logger.Log(ctx, libLog.LevelInfo, "syncd started",
		libLog.Bool("server", cfg.Server.Enabled),
		libLog.Bool("outbox", cfg.Outbox.Enabled),
		libLog.Bool("events", cfg.Events.Enabled),
		libLog.String("storage", cfg.Storage.Type))

	return group.Wait()
}
