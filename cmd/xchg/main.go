// Command xchg inspects typed arrays produced by scripts, manages stored
// snapshots and serves the remote exchange endpoint.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/cryguy/xchg"
	"github.com/cryguy/xchg/internal/config"
	"github.com/cryguy/xchg/internal/logging"
	"github.com/cryguy/xchg/internal/server"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const usage = `usage: xchg <command> [flags] [args]

commands:
  inspect <script> <global>...       run a script and report the named globals
  snapshots list                     list stored snapshots
  snapshots save <script> <global> <name>
  snapshots delete <name>
  serve                              serve the WebSocket exchange endpoint
  version                            print version and engine information
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}
	var err error
	switch args[0] {
	case "inspect":
		err = cmdInspect(args[1:], stdout)
	case "snapshots":
		err = cmdSnapshots(args[1:], stdout)
	case "serve":
		err = cmdServe(args[1:])
	case "version":
		err = cmdVersion(args[1:], stdout)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "xchg %s: %v\n", args[0], err)
		return 1
	}
	return 0
}

// common holds flags shared by every command.
type common struct {
	configPath string
	format     string
}

func (c *common) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "path to configuration file")
	fs.StringVar(&c.format, "format", "yaml", "output format (yaml, json)")
}

func (c *common) load() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func (c *common) write(w io.Writer, v any) error {
	switch c.format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q", c.format)
	}
}

// report describes one inspected global.
type report struct {
	Name       string          `json:"name" yaml:"name"`
	Kind       string          `json:"kind" yaml:"kind"`
	Length     int             `json:"length" yaml:"length"`
	ByteLength int             `json:"byte_length" yaml:"byte_length"`
	Values     []server.Number `json:"values,omitempty" yaml:"values,omitempty"`
	Raw        []byte          `json:"raw,omitempty" yaml:"raw,omitempty"`
}

func cmdInspect(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	var c common
	c.register(fs)
	raw := fs.Bool("raw", false, "include raw bytes")
	limit := fs.Int("limit", 64, "maximum values reported per array (0 for all)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		return fmt.Errorf("need a script and at least one global name")
	}
	cfg, logger, err := c.load()
	if err != nil {
		return err
	}
	defer logger.Sync()

	x, err := xchg.NewRuntime(cfg.Engine, logger)
	if err != nil {
		return err
	}
	defer x.Close()
	if err := x.RunFile(fs.Arg(0)); err != nil {
		return err
	}

	var reports []report
	for _, name := range fs.Args()[1:] {
		r, err := inspectGlobal(x, name, *raw, *limit)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		reports = append(reports, r)
	}
	return c.write(stdout, reports)
}

func inspectGlobal(x *xchg.Exchange, name string, withRaw bool, limit int) (report, error) {
	h, err := x.Import(name)
	if err != nil {
		return report{}, err
	}
	defer h.Release()

	kind, err := x.TypeFromValue(h)
	if err != nil {
		return report{}, err
	}
	r := report{Name: name, Kind: kind.String()}
	if !kind.Valid() {
		return r, nil
	}
	vals, err := x.FromValue(h)
	if err != nil {
		return report{}, err
	}
	r.Length = len(vals)
	r.ByteLength = len(vals) * kind.Size()
	if limit > 0 && len(vals) > limit {
		vals = vals[:limit]
	}
	r.Values = make([]server.Number, len(vals))
	for i, v := range vals {
		r.Values[i] = server.Number(v)
	}
	if withRaw {
		if r.Raw, err = x.RawFromValue(h); err != nil {
			return report{}, err
		}
	}
	return r, nil
}

func cmdSnapshots(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("snapshots", flag.ContinueOnError)
	var c common
	c.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("need a subcommand: list, save, delete")
	}
	cfg, logger, err := c.load()
	if err != nil {
		return err
	}
	defer logger.Sync()

	store, err := xchg.OpenSnapshotStore(cfg.Snapshots.DataDir, cfg.Snapshots.Store)
	if err != nil {
		return err
	}
	defer store.Close()
	ctx := context.Background()

	switch sub := fs.Arg(0); sub {
	case "list":
		infos, err := store.List(ctx)
		if err != nil {
			return err
		}
		if infos == nil {
			infos = []xchg.SnapshotInfo{}
		}
		return c.write(stdout, infos)

	case "delete":
		if fs.NArg() != 2 {
			return fmt.Errorf("usage: snapshots delete <name>")
		}
		return store.Delete(ctx, fs.Arg(1))

	case "save":
		if fs.NArg() != 4 {
			return fmt.Errorf("usage: snapshots save <script> <global> <name>")
		}
		x, err := xchg.NewRuntime(cfg.Engine, logger)
		if err != nil {
			return err
		}
		defer x.Close()
		if err := x.RunFile(fs.Arg(1)); err != nil {
			return err
		}
		h, err := x.Import(fs.Arg(2))
		if err != nil {
			return err
		}
		defer h.Release()
		return x.SaveSnapshot(ctx, store, fs.Arg(3), h)

	default:
		return fmt.Errorf("unknown snapshots subcommand %q", sub)
	}
}

func cmdServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	var c common
	c.register(fs)
	addr := fs.String("addr", "", "listen address (overrides server.addr)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, logger, err := c.load()
	if err != nil {
		return err
	}
	defer logger.Sync()
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	logger.Info("starting xchg",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("date", date),
	)

	engine := xchg.NewEngine(cfg.Engine, logger)
	defer engine.Shutdown()

	store, err := xchg.OpenSnapshotStore(cfg.Snapshots.DataDir, cfg.Snapshots.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.New(engine, store, cfg.Server, logger).ListenAndServe(ctx); err != nil {
		return err
	}
	logger.Info("server shutdown complete")
	return nil
}

type versionInfo struct {
	Version string          `json:"version" yaml:"version"`
	Commit  string          `json:"commit" yaml:"commit"`
	Date    string          `json:"date" yaml:"date"`
	Engine  xchg.EngineInfo `json:"engine" yaml:"engine"`
}

func cmdVersion(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	var c common
	c.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	return c.write(stdout, versionInfo{
		Version: version,
		Commit:  commit,
		Date:    date,
		Engine:  xchg.Info(),
	})
}
