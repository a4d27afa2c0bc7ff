// Package logging provides category-scoped structured logging for membria.
// Every component gets its own Category, which can be switched off at
// runtime with SetCategoryEnabled without touching the rest of the
// daemon's output. Output is backed by zap.
package logging

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category scopes a logger to one subsystem.
type Category string

const (
	CategoryBoot        Category = "boot"
	CategoryGraphStore   Category = "graphstore"
	CategoryMemory      Category = "memory"
	CategoryOutcome     Category = "outcome"
	CategoryCalibration Category = "calibration"
	CategoryPattern     Category = "pattern"
	CategorySkill       Category = "skill"
	CategoryChains      Category = "chains"
	CategoryContext     Category = "context"
	CategoryFirewall    Category = "firewall"
	CategoryJSONRPC     Category = "jsonrpc"
	CategoryWebhook     Category = "webhook"
	CategorySignalQueue Category = "signalqueue"
	CategoryIngest      Category = "ingest"
	CategoryEmbedding   Category = "embedding"
	CategoryMCP         Category = "mcp"
	CategorySupervisor  Category = "supervisor"
)

var (
	base     *zap.Logger
	loggers  = make(map[Category]*Logger)
	loggersMu sync.RWMutex

	enabled   map[string]bool
	enabledMu sync.RWMutex
)

// Init installs the process-wide zap logger. debugMode selects the
// development encoder/level (debug) vs. the production encoder (info).
// Safe to call once at daemon startup; later calls replace the base logger.
func Init(debugMode bool) error {
	cfg := zap.NewProductionConfig()
	if debugMode {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("build zap logger: %w", err)
	}

	loggersMu.Lock()
	base = l
	loggers = make(map[Category]*Logger)
	loggersMu.Unlock()
	return nil
}

// SetCategoryEnabled toggles a category on or off at runtime. No config
// key feeds it. Categories default to enabled when unspecified.
func SetCategoryEnabled(category string, on bool) {
	enabledMu.Lock()
	defer enabledMu.Unlock()
	if enabled == nil {
		enabled = make(map[string]bool)
	}
	enabled[category] = on
}

func categoryEnabled(c Category) bool {
	enabledMu.RLock()
	defer enabledMu.RUnlock()
	if enabled == nil {
		return true
	}
	on, ok := enabled[string(c)]
	if !ok {
		return true
	}
	return on
}

// Logger is a category-bound façade over the shared zap logger.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

// Get returns (creating if needed) the Logger for category. If the base
// logger hasn't been installed via Init, Get returns a no-op logger so
// that packages can log unconditionally without nil-checking.
func Get(category Category) *Logger {
	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	var sugar *zap.SugaredLogger
	if base != nil {
		sugar = base.Sugar().With("category", string(category))
	}
	l := &Logger{category: category, sugar: sugar}
	loggers[category] = l
	return l
}

func (l *Logger) enabled() bool { return l.sugar != nil && categoryEnabled(l.category) }

func (l *Logger) Debug(format string, args ...any) {
	if l.enabled() {
		l.sugar.Debugf(format, args...)
	}
}

func (l *Logger) Info(format string, args ...any) {
	if l.enabled() {
		l.sugar.Infof(format, args...)
	}
}

func (l *Logger) Warn(format string, args ...any) {
	if l.enabled() {
		l.sugar.Warnf(format, args...)
	}
}

func (l *Logger) Error(format string, args ...any) {
	if l.enabled() {
		l.sugar.Errorf(format, args...)
	}
}

// Sync flushes any buffered log entries; call during graceful shutdown.
func Sync() {
	loggersMu.RLock()
	defer loggersMu.RUnlock()
	if base != nil {
		_ = base.Sync()
	}
}
