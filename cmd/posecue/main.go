// Command posecue classifies body poses from a tracker, detects pose
// sequences and triggers robot behaviors.
//
// Usage:
//
//	posecue run     [-replay file.csv] [-loop] [-tray] [-web dir]
//	posecue predict [-replay file.csv] [-loop]
//	posecue detect
//	posecue drive
//	posecue import  [-source name] [-label standing] file.csv
//	posecue serve   [-web dir]
//
// Settings come from POSECUE_* environment variables.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"github.com/ayusman/posecue/internal/config"
	"github.com/ayusman/posecue/internal/logging"
	"github.com/ayusman/posecue/internal/store"
)

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, env *env, args []string) error
}

var commands = []command{
	{"run", "run the whole pipeline with the HTTP server", runAll},
	{"predict", "classify tracker windows into pose codes", runPredict},
	{"detect", "turn pose codes into action codes", runDetect},
	{"drive", "run robot behaviors for action codes", runDrive},
	{"import", "import a training or raw tracker CSV", runImport},
	{"serve", "serve the HTTP API without the pipeline", runServe},
}

// env carries what every command needs.
type env struct {
	settings *config.Config
	logger   *zap.Logger
}

// openStore opens the database under the data directory.
func (e *env) openStore() (*store.Store, error) {
	if err := os.MkdirAll(e.settings.Store.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return store.New(e.settings.Store.DBPath(), e.logger.Named("store"))
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: posecue <command> [flags]")
	fmt.Fprintln(os.Stderr)
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-8s %s\n", c.name, c.summary)
	}
}

func lookup(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	cmd, ok := lookup(os.Args[1])
	if !ok {
		fmt.Fprintf(os.Stderr, "posecue: unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}

	settings := config.Load()
	if err := settings.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "posecue: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(settings.Logging.Format, settings.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "posecue: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e := &env{settings: settings, logger: logger.Named(cmd.name)}
	if err := cmd.run(ctx, e, os.Args[2:]); err != nil {
		logger.Error("command failed", zap.String("command", cmd.name), zap.Error(err))
		stop()
		logger.Sync()
		os.Exit(1)
	}
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and <data dir>/web.
// Returns the first existing directory or empty string if none found.
func findWebDir(dataDir string) string {
	for _, p := range []string{"web", "../web", "../../web", filepath.Join(dataDir, "web")} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}
	return ""
}
