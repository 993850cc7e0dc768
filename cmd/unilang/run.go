package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"unilang/internal/config"
	"unilang/internal/engine"
	"unilang/internal/instance"
	"unilang/internal/logging"
	"unilang/internal/metrics"
	"unilang/internal/platform"
	"unilang/internal/replacer"
	"unilang/internal/shortcuts"
	"unilang/internal/store"
)

// crashReportAge is how long crash reports are kept.
const crashReportAge = 30 * 24 * time.Hour

func (c *cli) cmdRun(args []string) error {
	fs, configPath := c.flags("run")
	ibus := fs.Bool("ibus", false, "started by the IBus daemon; log to file")
	metricsFile := fs.String("metrics-file", "", "write a metrics snapshot at shutdown (.json, otherwise Prometheus text)")
	noWatch := fs.Bool("no-watch", false, "do not reload config or shortcuts when they change")
	if err := fs.Parse(args); err != nil {
		return err
	}

	loader := config.NewLoader(*configPath)
	cfg, err := loader.Load()
	if err != nil {
		return err
	}

	lc := cfg.LoggerConfig()
	if *ibus && (lc.Output == "stderr" || lc.Output == "stdout") {
		// The IBus daemon discards our standard streams.
		lc.Output = "file"
	}
	logger, err := logging.New(lc)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logger.Close()
	logging.SetDefault(logger)

	lock, err := instance.Acquire(config.GetDefaultPaths().LockFile)
	if err != nil {
		if errors.Is(err, instance.ErrLocked) {
			logger.Error("not starting", "error", err)
		}
		return err
	}
	defer lock.Release()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	table, err := shortcuts.Load(cfg.ShortcutsPath())
	if err != nil {
		return err
	}
	src := shortcuts.NewSource(table)

	reg := metrics.NewRegistry("unilang")
	em := metrics.NewEngine(reg)
	em.TableSize.Set(int64(table.Len()))

	backend := platform.New(logger.WithComponent("platform").Logger)
	if ok, reason := backend.Available(); !ok {
		return fmt.Errorf("%w: %s", platform.ErrNotAvailable, reason)
	}

	exec := replacer.New(backend,
		replacer.WithSettleDelay(cfg.SettleDelay()),
		replacer.WithLogger(logger.WithComponent("replacer").Logger),
	)

	crash := logging.NewCrashHandler(logging.CrashHandlerConfig{
		Version:   version,
		Component: "engine",
		Logger:    logger.Logger,
	})
	if reports, err := crash.Reports(); err == nil && len(reports) > 0 {
		logger.Warn("crash reports from earlier runs", "count", len(reports), "dir", logging.DefaultCrashDir())
	}
	if err := crash.Cleanup(crashReportAge); err != nil {
		logger.Debug("crash report cleanup failed", "error", err)
	}

	opts := []engine.Option{
		engine.WithBufferSize(cfg.Engine.BufferSize),
		engine.WithLogger(logger.WithComponent("engine").Logger),
		engine.WithMetrics(em),
		engine.WithCrashHandler(crash),
	}

	if cfg.Stats.Enabled {
		st, err := store.Open(cfg.StatsPath())
		if err != nil {
			return err
		}
		defer st.Close()
		recorder := store.NewRecorder(st, cfg.Stats.QueueSize, logger.WithComponent("stats").Logger)
		defer func() {
			recorder.Close()
			if n := recorder.Dropped(); n > 0 {
				logger.Warn("usage records dropped", "count", n)
			}
		}()
		opts = append(opts, engine.WithOnReplace(func(r engine.Replacement) {
			recorder.Record(store.Use{Pattern: r.Pattern, Replacement: r.Text, At: r.At})
		}))
	}

	coord := engine.New(backend, src, exec, opts...)
	coord.SetEnabled(cfg.Enabled)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !*noWatch {
		c.watch(ctx, cfg, loader, src, coord, em, logger)
		defer loader.Close()
	}

	if err := backend.Start(ctx, coord); err != nil {
		return fmt.Errorf("start %s: %w", backend.Name(), err)
	}
	defer backend.Stop()

	logger.Info("unilang running",
		"version", version,
		"backend", backend.Name(),
		"shortcuts", table.Len(),
		"enabled", cfg.Enabled,
		"settle_delay", exec.SettleDelay(),
	)

	<-ctx.Done()
	logger.Info("shutting down",
		"keys", em.Keys.Value(),
		"replacements", em.Replacements.Value(),
		"injector_errors", em.InjectorErrors.Value(),
		"recovered_panics", em.RecoveredPanics.Value(),
	)

	if *metricsFile != "" {
		if err := writeMetrics(reg, *metricsFile); err != nil {
			logger.Warn("metrics snapshot not written", "error", err)
		}
	}
	return nil
}

// watch starts config and shortcut hot reload. Failures only disable
// reloading.
func (c *cli) watch(ctx context.Context, cfg *config.Config, loader *config.Loader,
	src *shortcuts.Source, coord *engine.Coordinator, em *metrics.Engine, logger *logging.Logger) {

	if err := os.MkdirAll(filepath.Dir(loader.Path()), 0700); err == nil {
		if err := loader.Watch(); err != nil {
			logger.Warn("config reload disabled", "error", err)
		}
	}
	loader.OnChange(func(old, cur *config.Config) {
		coord.SetEnabled(cur.Enabled)
		if old.Engine != cur.Engine || old.Shortcuts != cur.Shortcuts || old.Stats != cur.Stats {
			logger.Warn("config change takes effect after restart", "path", loader.Path())
		}
	})
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-loader.Errors():
				logger.Warn("config not reloaded", "error", err)
			}
		}
	}()

	if !cfg.Shortcuts.Watch || cfg.Shortcuts.Path == "" {
		return
	}
	w := shortcuts.NewWatcher(cfg.ShortcutsPath(), src, logger.WithComponent("shortcuts").Logger)
	w.OnReload(func(t *shortcuts.Table) {
		em.TableReloads.Inc()
		em.TableSize.Set(int64(t.Len()))
	})
	if err := w.Start(ctx); err != nil {
		logger.Warn("shortcut reload disabled", "error", err)
		return
	}
	go func() {
		<-ctx.Done()
		w.Close()
	}()
}

func writeMetrics(reg *metrics.Registry, path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = reg.WriteJSON(f)
	} else {
		err = reg.WritePrometheus(f)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}
