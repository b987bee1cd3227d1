package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ayusman/posecue/internal/app"
	"github.com/ayusman/posecue/internal/capture"
	"github.com/ayusman/posecue/internal/pnn"
	"github.com/ayusman/posecue/internal/robot"
	"github.com/ayusman/posecue/internal/server"
	"github.com/ayusman/posecue/internal/skeleton"
	"github.com/ayusman/posecue/internal/store"
	"github.com/ayusman/posecue/internal/tray"
)

const shutdownTimeout = 5 * time.Second

type trackerFlags struct {
	replay string
	loop   bool
}

func (f *trackerFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.replay, "replay", "", "raw tracker CSV to replay instead of the demo sequence")
	fs.BoolVar(&f.loop, "loop", false, "restart the replay when it ends")
}

func (f *trackerFlags) open(e *env) (skeleton.Tracker, error) {
	if f.replay == "" {
		e.logger.Warn("no tracker source given, replaying the built-in demo sequence")
		return demoTracker(e.settings.Pipeline.WindowSize, e.settings.Pipeline.PredictTick, true), nil
	}
	t, n, err := replayTracker(f.replay, e.settings.Pipeline.PredictTick, f.loop)
	if err != nil {
		return nil, err
	}
	e.logger.Info("replaying tracker dump", zap.String("file", f.replay), zap.Int("frames", n))
	return t, nil
}

func runPredict(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("predict", flag.ContinueOnError)
	var tf trackerFlags
	tf.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	return runStages(ctx, e, app.Roles{Predict: true}, &tf)
}

func runDetect(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("detect", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	return runStages(ctx, e, app.Roles{Detect: true}, nil)
}

func runDrive(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("drive", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	return runStages(ctx, e, app.Roles{Drive: true}, nil)
}

// runStages runs the selected stages in this process. Slots to stages in
// other processes use the configured kinds.
func runStages(ctx context.Context, e *env, roles app.Roles, tf *trackerFlags) error {
	st, err := e.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	cfg := app.Config{Settings: e.settings, Store: st, Roles: roles, Logger: e.logger}
	if tf != nil {
		if cfg.Tracker, err = tf.open(e); err != nil {
			return err
		}
	}

	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.Run(ctx)
}

func runAll(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	var tf trackerFlags
	tf.register(fs)
	withTray := fs.Bool("tray", false, "show the system tray menu")
	webDir := fs.String("web", "", "static UI directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	st, err := e.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	tracker, err := tf.open(e)
	if err != nil {
		return err
	}
	a, err := app.New(app.Config{
		Settings: e.settings,
		Store:    st,
		Roles:    app.AllRoles,
		Tracker:  tracker,
		Logger:   e.logger,
	})
	if err != nil {
		return err
	}
	defer a.Close()

	srv, closeCamera := newServer(e, st, a.Status(), a.PluginManager(), *webDir)
	defer closeCamera()
	defer srv.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Run(gctx) })
	g.Go(func() error { return listen(gctx, e.settings.Addr(), srv, e.logger) })

	if !*withTray {
		return g.Wait()
	}

	t := tray.New(a.Status(), e.logger.Named("tray"))
	t.OnSettings(func() { openBrowser("http://"+e.settings.Addr(), e.logger) })
	t.OnQuit(cancel)

	errc := make(chan error, 1)
	go func() {
		errc <- g.Wait()
		t.Quit()
	}()
	t.Run()
	cancel()
	return <-errc
}

func runServe(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	webDir := fs.String("web", "", "static UI directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	st, err := e.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	plugins := robot.NewManager(e.settings.Robot.PluginDir, e.logger.Named("plugins"))
	if err := plugins.Discover(); err != nil {
		return fmt.Errorf("discover plugins: %w", err)
	}

	srv, closeCamera := newServer(e, st, nil, plugins, *webDir)
	defer closeCamera()
	defer srv.Close()
	return listen(ctx, e.settings.Addr(), srv, e.logger)
}

func runImport(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	source := fs.String("source", "", "import source name, defaults to the file name")
	label := fs.String("label", pnn.Standing.String(), "label for raw rows without one")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("import needs exactly one CSV file")
	}
	path := fs.Arg(0)
	if *source == "" {
		*source = filepath.Base(path)
	}
	fallback, err := pnn.ParseLabel(*label)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	st, err := e.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	res, err := app.ImportSamples(st.Samples(), f, *source, fallback)
	if err != nil {
		return fmt.Errorf("import %s: %w", path, err)
	}
	fields := []zap.Field{
		zap.String("source", *source),
		zap.String("format", res.Format),
		zap.Int("imported", res.Imported),
		zap.Int64("replaced", res.Replaced),
	}
	for _, l := range pnn.Labels() {
		fields = append(fields, zap.Int(l.String(), res.Counts[l]))
	}
	e.logger.Info("samples imported", fields...)
	return nil
}

// newServer builds the HTTP server. A preview camera is attached when the
// overlay is enabled; the returned func releases it.
func newServer(e *env, st *store.Store, status *app.Status, plugins *robot.Manager, webDir string) (*server.Server, func()) {
	if webDir == "" {
		webDir = findWebDir(e.settings.Store.DataDir)
	}
	cfg := server.Config{
		StaticDir: webDir,
		Store:     st,
		Status:    status,
		Plugins:   plugins,
		Logger:    e.logger.Named("http"),
	}

	release := func() {}
	if e.settings.Pipeline.PreviewOverlay {
		cam, err := capture.OpenPreview(e.settings.Pipeline.CameraID)
		if err != nil {
			e.logger.Warn("preview disabled", zap.Error(err))
		} else {
			cfg.Camera = cam
			release = func() { cam.Close() }
		}
	}
	return server.New(cfg), release
}

// listen serves handler on addr until ctx is done.
func listen(ctx context.Context, addr string, handler http.Handler, logger *zap.Logger) error {
	srv := &http.Server{Addr: addr, Handler: handler}

	errc := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// openBrowser opens url with the platform URL handler.
func openBrowser(url string, logger *zap.Logger) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		logger.Warn("open browser failed", zap.String("url", url), zap.Error(err))
		return
	}
	go cmd.Wait()
}
