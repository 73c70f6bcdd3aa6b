// Command peer runs one node of a Chord-ring distributed hash table.
//
// Usage (positional):
//
//	peer ip self port_self
//	peer ip self port_self id_self
//	peer ip self port_self ip_entry port_entry
//	peer ip self port_self id_self ip_entry port_entry
//
// Ambient flags (--log.level, --config, --metrics, ...) go before the
// positional arguments and never change the positional contract above.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/chordring/peer/internal/config"
	"github.com/chordring/peer/internal/node"
	"github.com/chordring/peer/internal/ring"
	"github.com/chordring/peer/internal/store"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/ethereum/go-ethereum/metrics/exp"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

func main() {
	app := &cli.App{
		Name:  "peer",
		Usage: "a node of a Chord-ring distributed hash table",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log.level", Value: "info"},
			&cli.BoolFlag{Name: "log.json"},
			&cli.StringFlag{Name: "config", Usage: "optional TOML config file"},
			&cli.BoolFlag{Name: "metrics"},
			&cli.StringFlag{Name: "metrics.addr", Value: "127.0.0.1:6060"},
			&cli.StringFlag{Name: "store.backend", Value: "map"},
			&cli.IntFlag{Name: "store.lru.size", Value: 4096},
			&cli.DurationFlag{Name: "stabilize.interval", Value: 500 * time.Millisecond},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	fileCfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("loading config file: %w", err)
	}

	logLevel := c.String("log.level")
	if !c.IsSet("log.level") {
		logLevel = fileCfg.LogLevel
	}
	setupLogging(logLevel, c.Bool("log.json") || fileCfg.LogJSON)

	metrics.Enabled = c.Bool("metrics") || fileCfg.Metrics
	if metrics.Enabled {
		addr := c.String("metrics.addr")
		if !c.IsSet("metrics.addr") {
			addr = fileCfg.MetricsAddr
		}
		go serveMetrics(addr)
	}

	self, entry, err := parsePositional(c.Args().Slice())
	if err != nil {
		return err
	}

	backend := config.StoreBackend(c.String("store.backend"))
	if !c.IsSet("store.backend") {
		backend = fileCfg.StoreBackend
	}
	lruSize := c.Int("store.lru.size")
	if !c.IsSet("store.lru.size") {
		lruSize = fileCfg.StoreLRUSize
	}
	kv, err := buildStore(backend, lruSize)
	if err != nil {
		return fmt.Errorf("building store: %w", err)
	}

	interval := c.Duration("stabilize.interval")
	if !c.IsSet("stabilize.interval") {
		interval = fileCfg.StabilizeInterval
	}

	logger := log.New("id", self.ID, "addr", self.Addr())
	n := node.New(node.Config{
		Self:              self,
		EntryPeer:         entry,
		Store:             kv,
		StabilizeInterval: interval,
		Logger:            logger,
	})
	if err := n.Listen(); err != nil {
		return fmt.Errorf("startup failed: %w", err)
	}
	logger.Info("peer listening")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		n.Run()
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		n.Close()
		return nil
	})
	return g.Wait()
}

func setupLogging(level string, jsonFmt bool) {
	lvl := parseLevel(level)

	var handler slog.Handler
	if jsonFmt {
		handler = log.JSONHandler(os.Stderr)
	} else {
		handler = log.NewTerminalHandlerWithLevel(os.Stderr, lvl, false)
	}
	glog := log.NewGlogHandler(handler)
	glog.Verbosity(lvl)
	log.SetDefault(log.NewLogger(glog))
}

func parseLevel(level string) slog.Level {
	switch level {
	case "trace":
		return log.LevelTrace
	case "debug":
		return log.LevelDebug
	case "info":
		return log.LevelInfo
	case "warn":
		return log.LevelWarn
	case "error":
		return log.LevelError
	case "crit":
		return log.LevelCrit
	default:
		return log.LevelInfo
	}
}

func serveMetrics(addr string) {
	exp.Exp(metrics.DefaultRegistry)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Warn("metrics server stopped", "err", err)
	}
}

// parsePositional implements the peer's exact positional-argument arity
// contract: ip/port/id for self, optionally followed by ip/port for an
// entry peer to join through. It is a hand-rolled switch rather than a
// generic positional parser, and is kept deliberately separate from
// ring/routing logic (CLI argument parsing is an external collaborator).
func parsePositional(args []string) (self ring.Peer, entry *ring.Peer, err error) {
	switch len(args) {
	case 2: // ip self port_self
		return ring.Peer{Host: args[0], Port: mustPort(args[1]), ID: 0}, nil, nil
	case 3: // ip self port_self id_self
		id, perr := parseID(args[2])
		if perr != nil {
			return ring.Peer{}, nil, perr
		}
		return ring.Peer{Host: args[0], Port: mustPort(args[1]), ID: id}, nil, nil
	case 4: // ip self port_self ip_entry port_entry
		self = ring.Peer{Host: args[0], Port: mustPort(args[1]), ID: 0}
		e := ring.Peer{Host: args[2], Port: mustPort(args[3]), ID: 0}
		return self, &e, nil
	case 5: // ip self port_self id_self ip_entry port_entry
		id, perr := parseID(args[2])
		if perr != nil {
			return ring.Peer{}, nil, perr
		}
		self = ring.Peer{Host: args[0], Port: mustPort(args[1]), ID: id}
		e := ring.Peer{Host: args[3], Port: mustPort(args[4]), ID: 0}
		return self, &e, nil
	default:
		return ring.Peer{}, nil, fmt.Errorf(
			"wrong number of arguments: usage: 'peer ip self port_self [id_self] [ip_entry port_entry]'")
	}
}

func mustPort(s string) uint16 {
	p, _ := strconv.ParseUint(s, 10, 16)
	return uint16(p)
}

func parseID(s string) (uint16, error) {
	id, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid id_self %q: %w", s, err)
	}
	return uint16(id), nil
}

func buildStore(backend config.StoreBackend, lruSize int) (store.Store, error) {
	switch backend {
	case config.StoreLRU:
		return store.NewLRU(lruSize)
	case config.StoreMap, "":
		return store.NewMap(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}
