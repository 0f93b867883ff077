// Package engine exposes computed-style queries over an external browser
// engine subprocess, or over an in-process simulated resolver.
//
// The engine holds the caller's markup and stylesheets, assembles a probe
// document per query, and answers either by spawning the engine once per
// query (naive real mode), through a supervised long-lived daemon with
// batching (optimized real mode), or from the simulated resolver. CSS
// cascade itself is never reimplemented here; the external engine is the
// oracle.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hazyhaar/styleq/cache"
	"github.com/hazyhaar/styleq/document"
	"github.com/hazyhaar/styleq/engine/internal/daemon"
	"github.com/hazyhaar/styleq/engine/internal/driver"
	"github.com/hazyhaar/styleq/engine/internal/extract"
	"github.com/hazyhaar/styleq/engine/internal/sim"
	"github.com/hazyhaar/styleq/idgen"
	"github.com/hazyhaar/styleq/query"
)

// Engine answers computed-style queries. Create one with New; it is safe
// for concurrent use. In naive real mode queries run fully concurrently,
// one subprocess each; in daemon mode they serialize through the
// supervisor's queue.
type Engine struct {
	cfg    Config
	logger *slog.Logger
	newID  idgen.Generator

	mu     sync.RWMutex
	markup string
	sheets []string

	sup   *daemon.Supervisor
	store *cache.Store
}

// Option customizes engine construction.
type Option func(*Engine)

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithIDGenerator replaces the query ID generator. IDs must stay unique for
// the process lifetime; results are correlated by them.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(e *Engine) { e.newID = gen }
}

// WithCache attaches an already-open result cache, overriding
// Config.CachePath.
func WithCache(s *cache.Store) Option {
	return func(e *Engine) { e.store = s }
}

// New builds an Engine from cfg. In real mode the executable is validated
// here: a missing or non-executable engine fails construction with
// ErrEngineNotFound before anything is spawned. Simulated mode is never
// substituted silently.
func New(cfg Config, opts ...Option) (*Engine, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	e := &Engine{cfg: cfg, newID: idgen.Query}
	for _, o := range opts {
		o(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}

	if cfg.Mode == ModeReal {
		if err := driver.CheckExecutable(cfg.ExecutablePath); err != nil {
			return nil, err
		}
		if cfg.Daemon {
			e.sup = daemon.New(daemon.Config{
				ExecPath:  cfg.ExecutablePath,
				BatchSize: cfg.BatchSize,
				Timeout:   cfg.Timeout,
				Settle:    cfg.SettleDelay,
				Logger:    e.logger,
			})
		}
	}

	if e.store == nil && cfg.CachePath != "" {
		store, err := cache.Open(cfg.CachePath)
		if err != nil {
			return nil, fmt.Errorf("engine: open cache: %w", err)
		}
		e.store = store
	}

	e.logger.Info("engine: ready",
		"mode", cfg.Mode, "daemon", cfg.Daemon && cfg.Mode == ModeReal,
		"cache", e.store != nil)
	return e, nil
}

// SetMarkup replaces the markup that subsequent queries run against.
func (e *Engine) SetMarkup(html string) error {
	e.mu.Lock()
	e.markup = html
	e.mu.Unlock()
	return nil
}

// AddStylesheet appends a stylesheet. Submission order is preserved; later
// sheets win on equal specificity, per standard cascade.
func (e *Engine) AddStylesheet(css string) error {
	e.mu.Lock()
	e.sheets = append(e.sheets, css)
	e.mu.Unlock()
	return nil
}

// GetComputedStyle resolves one property for the first element matching
// selector. A structured engine-side failure (element not matched,
// malformed selector) comes back as *ComputeError.
func (e *Engine) GetComputedStyle(ctx context.Context, selector, property string) (string, error) {
	if property == "" {
		return "", fmt.Errorf("engine: property required (use GetAllComputedStyles for the full map)")
	}
	q := e.snapshot(selector, property)
	r, err := e.resolve(ctx, q)
	if err != nil {
		return "", err
	}
	if !r.Success {
		return "", &ComputeError{QueryID: q.ID, Message: r.Error}
	}
	return r.ComputedValue, nil
}

// GetAllComputedStyles resolves the full computed map for the first element
// matching selector.
func (e *Engine) GetAllComputedStyles(ctx context.Context, selector string) (map[string]string, error) {
	q := e.snapshot(selector, "")
	r, err := e.resolve(ctx, q)
	if err != nil {
		return nil, err
	}
	if !r.Success {
		return nil, &ComputeError{QueryID: q.ID, Message: r.Error}
	}
	return r.ComputedStyles, nil
}

// Query runs a fully caller-specified query and returns the raw result.
// Most callers want GetComputedStyle / GetAllComputedStyles instead.
func (e *Engine) Query(ctx context.Context, q query.StyleQuery) (query.StyleResult, error) {
	if q.ID == "" {
		q.ID = e.newID()
	}
	return e.resolve(ctx, q)
}

// Mode reports the configured mode.
func (e *Engine) Mode() Mode { return e.cfg.Mode }

// DaemonStats reports supervisor health. Zero value when the daemon path
// is not active.
func (e *Engine) DaemonStats() daemon.Stats {
	if e.sup == nil {
		return daemon.Stats{}
	}
	return e.sup.Snapshot()
}

// Close releases the daemon subprocess and the cache.
func (e *Engine) Close() error {
	var first error
	if e.sup != nil {
		if err := e.sup.Close(); err != nil {
			first = err
		}
	}
	if e.store != nil {
		if err := e.store.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// snapshot captures the current markup and stylesheets into an immutable
// query. Queries in flight are unaffected by later SetMarkup calls.
func (e *Engine) snapshot(selector, property string) query.StyleQuery {
	e.mu.RLock()
	defer e.mu.RUnlock()
	sheets := make([]string, len(e.sheets))
	copy(sheets, e.sheets)
	return query.StyleQuery{
		ID:       e.newID(),
		HTML:     e.markup,
		CSS:      sheets,
		Selector: selector,
		Property: property,
	}
}

func (e *Engine) resolve(ctx context.Context, q query.StyleQuery) (query.StyleResult, error) {
	var key string
	if e.store != nil {
		key = cache.Key(string(e.cfg.Mode), q)
		if r, ok, err := e.store.Get(ctx, key); err != nil {
			e.logger.Warn("engine: cache read failed", "error", err)
		} else if ok {
			// The cached payload keeps its own id; the invariant is
			// that callers see their query's id back.
			r.ID = q.ID
			return r, nil
		}
	}

	r, err := e.dispatch(ctx, q)
	if err != nil {
		return query.StyleResult{}, err
	}

	if e.store != nil && r.Success {
		if err := e.store.Put(ctx, key, r); err != nil {
			e.logger.Warn("engine: cache write failed", "error", err)
		}
	}
	return r, nil
}

func (e *Engine) dispatch(ctx context.Context, q query.StyleQuery) (query.StyleResult, error) {
	switch {
	case e.cfg.Mode == ModeSimulated:
		return sim.Resolve(q), nil
	case e.sup != nil:
		return e.sup.Submit(ctx, q)
	default:
		doc := document.Build(q, e.cfg.SettleDelay)
		raw, err := driver.Run(ctx, e.cfg.ExecutablePath, doc, e.cfg.Timeout)
		if err != nil {
			return query.StyleResult{}, err
		}
		return extract.Result(raw, q.ID)
	}
}
