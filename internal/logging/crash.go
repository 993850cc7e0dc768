package logging

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sync"
	"time"
)

// CrashReport describes a recovered panic.
type CrashReport struct {
	Timestamp  time.Time      `json:"timestamp"`
	Version    string         `json:"version"`
	GOOS       string         `json:"goos"`
	GOARCH     string         `json:"goarch"`
	PanicValue string         `json:"panic_value"`
	StackTrace string         `json:"stack_trace"`
	Component  string         `json:"component,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
}

// CrashHandler writes crash reports for recovered panics. Reports never
// include typed content; callers pass only structural context.
type CrashHandler struct {
	mu        sync.Mutex
	dir       string
	version   string
	component string
	logger    *slog.Logger
	onCrash   func(CrashReport)
}

// CrashHandlerConfig configures the crash handler.
type CrashHandlerConfig struct {
	// Dir is the directory to write crash reports. Defaults to
	// StateDir()/crashes.
	Dir string

	Version   string
	Component string
	Logger    *slog.Logger

	// OnCrash is called after a report is written.
	OnCrash func(CrashReport)
}

// DefaultCrashDir returns the platform-specific default crash directory.
func DefaultCrashDir() string {
	return filepath.Join(StateDir(), "crashes")
}

// NewCrashHandler creates a CrashHandler.
func NewCrashHandler(cfg CrashHandlerConfig) *CrashHandler {
	if cfg.Dir == "" {
		cfg.Dir = DefaultCrashDir()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &CrashHandler{
		dir:       cfg.Dir,
		version:   cfg.Version,
		component: cfg.Component,
		logger:    cfg.Logger,
		onCrash:   cfg.OnCrash,
	}
}

// HandlePanic records a panic value with the current goroutine's stack.
func (h *CrashHandler) HandlePanic(value any, context map[string]any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	report := CrashReport{
		Timestamp:  time.Now().UTC(),
		Version:    h.version,
		GOOS:       runtime.GOOS,
		GOARCH:     runtime.GOARCH,
		PanicValue: fmt.Sprint(value),
		StackTrace: string(debug.Stack()),
		Component:  h.component,
		Context:    context,
	}

	path, err := h.write(report)
	if err != nil {
		h.logger.Error("panic recovered; crash report not written", "panic", report.PanicValue, "error", err)
	} else {
		h.logger.Error("panic recovered", "panic", report.PanicValue, "report", path)
	}

	if h.onCrash != nil {
		h.onCrash(report)
	}
}

// Recover runs fn and converts a panic into a crash report.
func (h *CrashHandler) Recover(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			h.HandlePanic(r, nil)
		}
	}()
	fn()
}

func (h *CrashHandler) write(report CrashReport) (string, error) {
	if err := os.MkdirAll(h.dir, 0o750); err != nil {
		return "", fmt.Errorf("create crash dir: %w", err)
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal crash report: %w", err)
	}
	name := fmt.Sprintf("crash-%s-%s.json", report.Component, report.Timestamp.Format("20060102-150405.000000000"))
	path := filepath.Join(h.dir, name)
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return "", fmt.Errorf("write crash report: %w", err)
	}
	return path, nil
}

// Reports returns the crash reports on disk. Unreadable files are skipped.
func (h *CrashHandler) Reports() ([]CrashReport, error) {
	files, err := filepath.Glob(filepath.Join(h.dir, "crash-*.json"))
	if err != nil {
		return nil, err
	}

	reports := make([]CrashReport, 0, len(files))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			continue
		}
		var report CrashReport
		if err := json.Unmarshal(data, &report); err != nil {
			continue
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// Cleanup removes crash reports older than maxAge.
func (h *CrashHandler) Cleanup(maxAge time.Duration) error {
	files, err := filepath.Glob(filepath.Join(h.dir, "crash-*.json"))
	if err != nil {
		return err
	}
	cutoff := time.Now().Add(-maxAge)
	for _, file := range files {
		if info, err := os.Stat(file); err == nil && info.ModTime().Before(cutoff) {
			os.Remove(file)
		}
	}
	return nil
}
