// Package logging provides category-scoped structured logging for finsight.
// Every subsystem logs through a named zap logger so a single category can
// be followed through an interleaved turn (routing, agents, referral, ...).
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category identifies a logging subsystem.
type Category string

const (
	CategoryBoot     Category = "boot"     // startup, config, seeding
	CategoryAPI      Category = "api"      // HTTP/SSE surface
	CategoryRouting  Category = "routing"  // router decisions
	CategoryAgents   Category = "agents"   // capability invocations
	CategoryReferral Category = "referral" // cross-referral evaluation
	CategoryInsight  Category = "insight"  // finding merge/rank
	CategorySearch   Category = "search"   // external context lookup
	CategoryStore    Category = "store"    // sqlite persistence
	CategoryMonitor  Category = "monitor"  // background portfolio monitor
	CategoryLLM      Category = "llm"      // provider calls
	CategoryPrices   Category = "prices"   // market data

	CategoryProactive Category = "proactive" // session-open greeting fan-out
	CategoryAdvisor   Category = "advisor"   // advisor report generation
	CategoryTurn      Category = "turn"      // chat turn orchestration
)

var (
	mu      sync.RWMutex
	root    *zap.Logger
	loggers = make(map[Category]*zap.Logger)
)

// Initialize installs the process-wide root logger. Safe to call more than
// once; later calls replace the root and drop cached category loggers.
func Initialize(verbose bool) error {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	root = logger
	loggers = make(map[Category]*zap.Logger)
	return nil
}

// InitializeNop installs a no-op root logger. Used by tests.
func InitializeNop() {
	mu.Lock()
	defer mu.Unlock()
	root = zap.NewNop()
	loggers = make(map[Category]*zap.Logger)
}

// Get returns the logger for a category, creating it on first use.
func Get(cat Category) *zap.Logger {
	mu.RLock()
	if l, ok := loggers[cat]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[cat]; ok {
		return l
	}
	if root == nil {
		root = zap.NewNop()
	}
	l := root.Named(string(cat))
	loggers[cat] = l
	return l
}

// Sugar returns the sugared logger for a category.
func Sugar(cat Category) *zap.SugaredLogger {
	return Get(cat).Sugar()
}

// Sync flushes buffered log entries. Called on shutdown.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if root != nil {
		_ = root.Sync()
	}
}
