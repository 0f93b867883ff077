// Package daemon supervises the long-lived engine subprocess used by the
// optimized query path.
//
// The supervisor owns exactly one engine handle at a time and serializes all
// access to it: concurrent callers queue into a bounded channel instead of
// racing to spawn competing processes. A single dispatch goroutine drains up
// to BatchSize pending queries per round and serves them with one engine
// round-trip over a batch probe document, demultiplexing the results by
// query ID.
//
// The engine's invocation surface is a file URL, so the long-lived process
// cannot be fed new documents directly. The supervisor instead keeps a
// keepalive render alive between rounds (warming the engine's master
// process) and performs each batch as one bounded render. Liveness tracks
// the keepalive process; its death is detected lazily and repaired with a
// transparent restart on the next incoming query.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/hazyhaar/styleq/document"
	"github.com/hazyhaar/styleq/engine/internal/driver"
	"github.com/hazyhaar/styleq/engine/internal/extract"
	"github.com/hazyhaar/styleq/query"
)

// ErrClosed is returned for queries submitted after Close.
var ErrClosed = errors.New("daemon: supervisor closed")

// State tracks the supervisor lifecycle.
type State int

const (
	StateUninitialized State = iota
	StateStarting
	StateReady
	StateBusy
	StateDead
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateBusy:
		return "busy"
	case StateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// Config configures a Supervisor.
type Config struct {
	// ExecPath is the engine executable.
	ExecPath string

	// BatchSize caps how many pending queries one round-trip serves, and
	// bounds the submission queue. Default: 5.
	BatchSize int

	// Timeout bounds each batch round-trip. Default: 10s.
	Timeout time.Duration

	// Settle is the emission-to-termination delay of batch probes.
	// Zero uses the assembler's batch default.
	Settle time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 5
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Handle wraps the one live engine subprocess. Owned exclusively by the
// Supervisor; alive is true only between a confirmed spawn and a confirmed
// or inferred exit.
type Handle struct {
	cmd     *exec.Cmd
	docPath string

	mu            sync.Mutex
	exited        bool
	lastUsed      time.Time
	queriesServed int64
}

// Alive reports liveness without side effects.
func (h *Handle) Alive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.exited
}

func (h *Handle) markExited() {
	h.mu.Lock()
	h.exited = true
	h.mu.Unlock()
}

func (h *Handle) served(n int) {
	h.mu.Lock()
	h.queriesServed += int64(n)
	h.lastUsed = time.Now()
	h.mu.Unlock()
}

func (h *Handle) stats() (int64, time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.queriesServed, h.lastUsed
}

// kill terminates the subprocess and removes its keepalive document. The
// waiter goroutine reaps the process.
func (h *Handle) kill() {
	if h.cmd != nil && h.cmd.Process != nil {
		_ = h.cmd.Process.Kill()
	}
	if h.docPath != "" {
		_ = os.Remove(h.docPath)
	}
}

// Stats is a point-in-time snapshot for health reporting.
type Stats struct {
	State         string
	Alive         bool
	QueriesServed int64
	LastUsed      time.Time
	Restarts      int
}

type item struct {
	q    query.StyleQuery
	resp chan outcome
}

type outcome struct {
	result query.StyleResult
	err    error
}

// Supervisor owns the daemon subprocess and its batch queue.
type Supervisor struct {
	cfg   Config
	queue chan item
	done  chan struct{}
	once  sync.Once
	wg    sync.WaitGroup

	// closeMu orders enqueues against shutdown: Submit enqueues under
	// the read lock, Close flips closed under the write lock before the
	// dispatcher drains. No enqueue can land after the final drain.
	closeMu sync.RWMutex
	closed  bool

	mu       sync.Mutex
	state    State
	handle   *Handle
	restarts int
}

// New creates a Supervisor and starts its dispatch loop. The engine is not
// spawned until the first query arrives.
func New(cfg Config) *Supervisor {
	cfg.defaults()
	s := &Supervisor{
		cfg:   cfg,
		queue: make(chan item, cfg.BatchSize),
		done:  make(chan struct{}),
		state: StateUninitialized,
	}
	s.wg.Add(1)
	go s.dispatch()
	return s
}

// Submit queues one query and waits for its terminal result. Queue
// admission blocks when BatchSize queries are already pending.
func (s *Supervisor) Submit(ctx context.Context, q query.StyleQuery) (query.StyleResult, error) {
	it := item{q: q, resp: make(chan outcome, 1)}

	s.closeMu.RLock()
	if s.closed {
		s.closeMu.RUnlock()
		return query.StyleResult{}, ErrClosed
	}
	select {
	case s.queue <- it:
		s.closeMu.RUnlock()
	case <-s.done:
		s.closeMu.RUnlock()
		return query.StyleResult{}, ErrClosed
	case <-ctx.Done():
		s.closeMu.RUnlock()
		return query.StyleResult{}, fmt.Errorf("daemon: submit: %w", ctx.Err())
	}

	select {
	case o := <-it.resp:
		return o.result, o.err
	case <-ctx.Done():
		// The dispatcher still delivers into the buffered channel, so
		// the query is not silently dropped; the caller just stops
		// waiting for it.
		return query.StyleResult{}, fmt.Errorf("daemon: await result: %w", ctx.Err())
	}
}

// Alive reports whether the supervisor currently believes its engine
// process is running. No side effects.
func (s *Supervisor) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle != nil && s.handle.Alive()
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateReady && (s.handle == nil || !s.handle.Alive()) {
		return StateDead
	}
	return s.state
}

// Snapshot returns health statistics.
func (s *Supervisor) Snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{State: s.state.String(), Restarts: s.restarts}
	if s.handle != nil {
		st.Alive = s.handle.Alive()
		st.QueriesServed, st.LastUsed = s.handle.stats()
	}
	return st
}

// Restart forcibly terminates any existing handle and spawns a fresh one.
func (s *Supervisor) Restart(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle != nil {
		s.handle.kill()
		s.handle = nil
	}
	return s.spawnLocked(ctx)
}

// Close shuts the supervisor down: the engine process is terminated and any
// queued queries fail with ErrClosed.
func (s *Supervisor) Close() error {
	s.closeMu.Lock()
	s.closed = true
	s.closeMu.Unlock()
	s.once.Do(func() { close(s.done) })
	s.wg.Wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle != nil {
		s.handle.kill()
		s.handle = nil
	}
	s.state = StateDead
	return nil
}

func (s *Supervisor) dispatch() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			s.failPending()
			return
		case first := <-s.queue:
			batch := s.gather(first)
			s.serveBatch(batch)
		}
	}
}

// gather drains up to BatchSize-1 additional pending queries without
// waiting; mid-burst callers coalesce into one round-trip.
func (s *Supervisor) gather(first item) []item {
	batch := []item{first}
	for len(batch) < s.cfg.BatchSize {
		select {
		case it := <-s.queue:
			batch = append(batch, it)
		default:
			return batch
		}
	}
	return batch
}

func (s *Supervisor) serveBatch(batch []item) {
	if err := s.ensureAlive(); err != nil {
		for _, it := range batch {
			it.resp <- outcome{err: err}
		}
		return
	}

	s.setState(StateBusy)
	defer s.setState(StateReady)

	// Queries drained from the queue may straddle a SetMarkup boundary
	// and carry different document snapshots; each snapshot renders
	// separately. The common case is a single group, one round-trip.
	for _, group := range groupByDocument(batch) {
		s.renderGroup(group)
	}

	s.mu.Lock()
	if s.handle != nil {
		s.handle.served(len(batch))
	}
	s.mu.Unlock()
}

func (s *Supervisor) renderGroup(group []item) {
	qs := make([]query.StyleQuery, len(group))
	for i, it := range group {
		qs[i] = it.q
	}

	doc := document.BuildBatch(qs, s.cfg.Settle)
	raw, err := driver.Run(context.Background(), s.cfg.ExecPath, doc, s.cfg.Timeout)
	if err != nil {
		s.cfg.Logger.Warn("daemon: batch render failed", "queries", len(qs), "error", err)
		for _, it := range group {
			it.resp <- outcome{err: err}
		}
		return
	}

	results, err := extract.Batch(raw, qs)
	if err != nil {
		for _, it := range group {
			it.resp <- outcome{err: err}
		}
		return
	}

	for _, it := range group {
		it.resp <- outcome{result: results[it.q.ID]}
	}
	s.cfg.Logger.Debug("daemon: batch served", "queries", len(group))
}

// groupByDocument splits a drained batch into runs sharing the same markup
// and stylesheets, preserving submission order within each group.
func groupByDocument(batch []item) [][]item {
	var keys []string
	groups := make(map[string][]item)
	for _, it := range batch {
		key := it.q.CombinedCSS() + "\x00" + it.q.HTML
		if _, seen := groups[key]; !seen {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], it)
	}
	out := make([][]item, 0, len(keys))
	for _, k := range keys {
		out = append(out, groups[k])
	}
	return out
}

// ensureAlive verifies the handle before a batch is issued against it,
// restarting transparently when the process died since the last round.
func (s *Supervisor) ensureAlive() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle != nil && s.handle.Alive() {
		return nil
	}
	if s.handle != nil {
		s.cfg.Logger.Info("daemon: engine process died, restarting")
		s.state = StateDead
		s.handle.kill()
		s.handle = nil
		s.restarts++
	}
	return s.spawnLocked(context.Background())
}

// spawnLocked starts the keepalive engine process. Caller holds s.mu.
func (s *Supervisor) spawnLocked(_ context.Context) error {
	if err := driver.CheckExecutable(s.cfg.ExecPath); err != nil {
		s.state = StateDead
		return err
	}
	s.state = StateStarting

	tmp, err := os.CreateTemp("", "styleq-daemon-*.html")
	if err != nil {
		s.state = StateDead
		return fmt.Errorf("daemon: create keepalive document: %w", err)
	}
	if _, err := tmp.WriteString(keepaliveDoc); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		s.state = StateDead
		return fmt.Errorf("daemon: write keepalive document: %w", err)
	}
	tmp.Close()

	cmd := exec.Command(s.cfg.ExecPath, "--headless", "file://"+tmp.Name())
	if err := cmd.Start(); err != nil {
		os.Remove(tmp.Name())
		s.state = StateDead
		return &driver.SpawnError{Path: s.cfg.ExecPath, Err: err}
	}

	h := &Handle{cmd: cmd, docPath: tmp.Name()}
	go func() {
		_ = cmd.Wait()
		h.markExited()
	}()

	s.handle = h
	s.state = StateReady
	s.cfg.Logger.Info("daemon: engine started", "pid", cmd.Process.Pid)
	return nil
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// failPending fails everything still queued at shutdown; no query is
// silently dropped.
func (s *Supervisor) failPending() {
	for {
		select {
		case it := <-s.queue:
			it.resp <- outcome{err: ErrClosed}
		default:
			return
		}
	}
}

// keepaliveDoc is the heartbeat page the daemon process renders between
// batches. It never terminates on its own.
const keepaliveDoc = `<!DOCTYPE html>
<html>
<head><title>styleq daemon</title></head>
<body>
<script>
console.log('STYLEQ_DAEMON_READY');
setInterval(function() {
  console.log('STYLEQ_DAEMON_HEARTBEAT:' + Date.now());
}, 5000);
</script>
</body>
</html>
`
