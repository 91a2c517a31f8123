package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"qsar/internal/admin"
	"qsar/internal/config"
	"qsar/internal/daemon"
	"qsar/internal/logging"
	"qsar/internal/metrics"
	"qsar/internal/paths"
	"qsar/internal/router"
	"qsar/internal/scheduler"
	"qsar/internal/server"
	"qsar/internal/slogutil"
	"qsar/internal/storage"
	"qsar/internal/watcher"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var (
	serveHost    string
	servePort    int
	serveVerbose int
	serveQuiet   bool
	servePIDFile string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the server",
	Long: `Start the raw-TCP HTTP server.

Examples:
  qsar serve                       # 127.0.0.1:3000, logs in ./logs/
  qsar serve --port 8080 -v        # debug output on the console
  qsar serve -c qsar.toml --pid-file /run/qsar.pid`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (overrides config)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().CountVarP(&serveVerbose, "verbose", "v", "Console verbosity (-v for debug)")
	serveCmd.Flags().BoolVarP(&serveQuiet, "quiet", "q", false, "Suppress console output")
	serveCmd.Flags().StringVar(&servePIDFile, "pid-file", "", "Write the server PID to this file")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	result, err := loadConfig()
	if err != nil {
		return err
	}
	cfg := result.Config
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = serveHost
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = servePort
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if servePIDFile != "" {
		pid := daemon.NewPIDFile(servePIDFile)
		if err := pid.Acquire(); err != nil {
			return err
		}
		defer func() { _ = pid.Release() }()
	}

	a, err := newApp(cfg, cmd.ErrOrStderr(), slogutil.LevelFromVerbosity(serveVerbose, serveQuiet))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.listen(); err != nil {
		_ = a.close(context.Background())
		return err
	}
	a.logger.Info("qsar listening", "addr", a.server.Addr().String(), "config", result.ConfigPath)

	runErr := a.serve(ctx)

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	closeErr := a.close(closeCtx)

	if runErr != nil {
		return runErr
	}
	return closeErr
}

// app is one running qsar instance and everything it owns.
type app struct {
	cfg     *config.Config
	factory *slogutil.LoggerFactory
	logger  *slog.Logger // incident log, tee'd to console
	metrics *metrics.Collector
	sink    *logging.AsyncSink
	store   *storage.AccessStore
	router  *router.Router
	server  *server.Server
	admin   *admin.Server

	watcher   *watcher.Watcher     // nil unless pages.watch
	scheduler *scheduler.Scheduler // nil unless a retention is set
	pruneID   string
}

func newApp(cfg *config.Config, console io.Writer, consoleLevel slog.Level) (_ *app, err error) {
	a := &app{
		cfg:     cfg,
		factory: slogutil.NewLoggerFactory(cfg, console, consoleLevel),
		metrics: metrics.NewCollector(),
	}
	defer func() {
		if err != nil {
			_ = a.close(context.Background())
		}
	}()

	accessLog, err := a.factory.AccessLogger()
	if err != nil {
		return nil, fmt.Errorf("open access log: %w", err)
	}
	a.logger, err = a.factory.IncidentLogger()
	if err != nil {
		return nil, fmt.Errorf("open incident log: %w", err)
	}

	var store logging.AccessStore
	if cfg.Storage.AccessDB {
		dbPath, err := paths.AccessDBPath(cfg)
		if err != nil {
			return nil, err
		}
		a.store, err = storage.OpenAccessStore(dbPath, a.logger)
		if err != nil {
			return nil, fmt.Errorf("open access store: %w", err)
		}
		store = a.store
	}

	a.sink = logging.NewAsyncSink(logging.AsyncOptions{
		QueueSize: cfg.Logging.QueueSize,
		Access:    accessLog,
		Incident:  a.logger,
		Store:     store,
		OnDrop:    func() { a.metrics.RecordLogDropped(1) },
	})

	table, err := router.TableFromFile(cfg.Pages.File)
	if err != nil {
		return nil, err
	}
	a.router = router.New(table, a.sink)

	if cfg.Pages.Watch && cfg.Pages.File != "" {
		wcfg := watcher.DefaultConfig()
		wcfg.PollInterval = cfg.PagesPollInterval()
		a.watcher = watcher.New(cfg.Pages.File, wcfg, a.logger.With("component", "watcher"), a.reloadPages)
	}

	if a.store != nil && cfg.Retention() > 0 {
		a.scheduler = scheduler.New(a.logger.With("component", "scheduler"), scheduler.DefaultConfig())
		a.scheduler.RegisterHandler(scheduler.TaskTypePrune, a.pruneAccess)
		sched, err := a.scheduler.Add(scheduler.TaskTypePrune, cfg.Storage.PruneSchedule)
		if err != nil {
			return nil, fmt.Errorf("storage.pruneSchedule: %w", err)
		}
		a.pruneID = sched.ID
	}

	a.server = server.New(server.Options{
		Addr:           cfg.Addr(),
		ReadBufferSize: cfg.Server.ReadBufferSize,
		ReadTimeout:    cfg.ReadTimeout(),
		Router:         a.router,
		Sink:           a.sink,
		Metrics:        a.metrics,
	})

	if cfg.Admin.Enabled {
		opts := admin.Options{
			Addr:              cfg.AdminAddr(),
			TokenHash:         cfg.Admin.TokenHash,
			Metrics:           a.metrics,
			Routes:            a.router,
			Logger:            a.logger.With("component", "admin"),
			ActiveConnections: a.server.ActiveConnections,
		}
		if a.store != nil {
			opts.Store = a.store
		}
		a.admin = admin.NewServer(opts)
	}
	return a, nil
}

// listen binds every configured listener.
func (a *app) listen() error {
	if err := a.server.Listen(); err != nil {
		return err
	}
	if a.admin != nil {
		if err := a.admin.Listen(); err != nil {
			_ = a.server.Shutdown(context.Background())
			return err
		}
	}
	return nil
}

// serve runs until ctx is cancelled or a listener fails, then drains
// in-flight connections.
func (a *app) serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() { errCh <- a.server.Serve(ctx) }()
	if a.admin != nil {
		go func() { errCh <- a.admin.Start() }()
	}
	if a.watcher != nil {
		if err := a.watcher.Start(ctx); err != nil {
			a.logger.Warn("pages watcher not started", "error", err.Error())
		}
		defer a.watcher.Stop()
	}
	if a.scheduler != nil {
		// Events that aged out while the server was down go now, not on the
		// first tick.
		if err := a.scheduler.RunNow(ctx, a.pruneID); err != nil {
			a.logger.Warn("startup prune failed", "error", err.Error())
		}
		a.scheduler.Start(ctx)
		defer func() {
			if err := a.scheduler.Stop(shutdownTimeout); err != nil {
				a.logger.Warn("scheduler stop", "error", err.Error())
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, server.ErrServerClosed) {
			runErr = err
		}
	}
	cancel()

	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("connections still open at shutdown", "error", err.Error())
	}
	if a.admin != nil {
		if err := a.admin.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("admin shutdown", "error", err.Error())
		}
	}
	return runErr
}

// reloadPages rebuilds the route table from path. A bad file keeps the
// current table.
func (a *app) reloadPages(path string) {
	table, err := router.TableFromFile(path)
	if err != nil {
		a.logger.Error("pages reload failed, keeping current routes", "path", path, "error", err.Error())
		return
	}
	a.router.SetTable(table)
	a.logger.Info("pages reloaded", "path", path, "routes", len(table.Routes()))
}

// pruneAccess deletes stored access events older than the retention window.
func (a *app) pruneAccess(ctx context.Context, _ *scheduler.Schedule) error {
	cutoff := time.Now().Add(-a.cfg.Retention())
	n, err := a.store.Prune(ctx, cutoff)
	if err != nil {
		return err
	}
	if n > 0 {
		a.logger.Info("access events pruned", "count", n, "cutoff", cutoff.Format(time.RFC3339))
	}
	return nil
}

// close flushes the sink, then closes the store and log files.
func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.sink != nil {
		if err := a.sink.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush logs: %w", err))
		}
		if n := a.sink.Dropped(); n > 0 && a.logger != nil {
			a.logger.Warn("log records dropped", "count", n)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.factory.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
