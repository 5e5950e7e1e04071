// Package engine implements C9: the correlation engine that owns the
// adapter registry, parses and validates queries, instantiates the right
// joiner, and streams CorrelatedEvents to the caller while publishing
// lifecycle hooks. Grounded on the teacher's CorrelationEngineImpl:
// registry-plus-hooks orchestration over otherwise independently testable
// components.
package engine

import (
	"context"
	"errors"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/platformbuilds/logcorrelate/internal/adapter"
	"github.com/platformbuilds/logcorrelate/internal/backpressure"
	"github.com/platformbuilds/logcorrelate/internal/config"
	"github.com/platformbuilds/logcorrelate/internal/correrr"
	"github.com/platformbuilds/logcorrelate/internal/dedup"
	"github.com/platformbuilds/logcorrelate/internal/join"
	"github.com/platformbuilds/logcorrelate/internal/logging"
	"github.com/platformbuilds/logcorrelate/internal/models"
	"github.com/platformbuilds/logcorrelate/internal/perfmon"
	"github.com/platformbuilds/logcorrelate/internal/query"
)

// Engine is the top-level correlation engine (spec §4.9).
type Engine struct {
	cfg    config.Config
	logger logging.Logger
	parser *query.Parser
	mon    *perfmon.Monitor
	dedupe dedup.Deduplicator
	merger *correlationMerger

	mu       sync.RWMutex
	adapters map[string]adapter.SourceAdapter

	queryMu sync.Mutex
	queries []context.CancelFunc

	hookMu              sync.Mutex
	onCorrelationFound  []func(*models.CorrelatedEvent)
	onPerformanceMetric []func(perfmon.Stats)
	onMemoryWarning     []func(error)
	onAdapterAdded      []func(string)

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds an Engine from cfg. A nil logger is replaced with a no-op one.
func New(cfg config.Config, logger logging.Logger) *Engine {
	logger = logging.OrNop(logger)

	var dedupe dedup.Deduplicator
	if cfg.Dedup.Enabled {
		if cfg.Dedup.RedisAddr != "" {
			rc, err := dedup.NewRedis(cfg.Dedup.RedisAddr, cfg.Dedup.RedisDB, cfg.Dedup.TTL)
			if err != nil {
				logger.Warn("engine: falling back to in-process dedup cache", "error", err)
				dedupe = dedup.NewLRU(cfg.Dedup.MaxCache, cfg.Dedup.TTL)
			} else {
				dedupe = rc
			}
		} else {
			dedupe = dedup.NewLRU(cfg.Dedup.MaxCache, cfg.Dedup.TTL)
		}
	}

	e := &Engine{
		cfg:      cfg,
		logger:   logger,
		parser:   query.NewParser(),
		mon:      perfmon.NewMonitor(perfmon.Thresholds{MaxHeapMB: int64(cfg.MaxMemoryMB)}),
		dedupe:   dedupe,
		merger:   newCorrelationMerger(cfg.MaxEvents),
		adapters: make(map[string]adapter.SourceAdapter),
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.wg.Add(1)
	go e.runMemorySampler(ctx)

	return e
}

// RegisterAdapter adds a by name; re-registration under the same name
// fails with a KindAdapterExists error.
func (e *Engine) RegisterAdapter(a adapter.SourceAdapter) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	name := a.Name()
	if _, exists := e.adapters[name]; exists {
		return correrr.AdapterExists(name)
	}
	e.adapters[name] = a
	e.fireAdapterAdded(name)
	return nil
}

// Adapter retrieves a registered adapter by name.
func (e *Engine) Adapter(name string) (adapter.SourceAdapter, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	a, ok := e.adapters[name]
	if !ok {
		return nil, correrr.AdapterNotFound(name)
	}
	return a, nil
}

// ListAdapters returns every registered adapter name.
func (e *Engine) ListAdapters() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.adapters))
	for name := range e.adapters {
		out = append(out, name)
	}
	return out
}

// OnCorrelationFound subscribes fn to every emitted correlation.
func (e *Engine) OnCorrelationFound(fn func(*models.CorrelatedEvent)) {
	e.hookMu.Lock()
	defer e.hookMu.Unlock()
	e.onCorrelationFound = append(e.onCorrelationFound, fn)
}

// OnPerformanceMetrics subscribes fn to periodic performance snapshots.
func (e *Engine) OnPerformanceMetrics(fn func(perfmon.Stats)) {
	e.hookMu.Lock()
	defer e.hookMu.Unlock()
	e.onPerformanceMetric = append(e.onPerformanceMetric, fn)
}

// OnMemoryWarning subscribes fn to heap-budget breaches.
func (e *Engine) OnMemoryWarning(fn func(error)) {
	e.hookMu.Lock()
	defer e.hookMu.Unlock()
	e.onMemoryWarning = append(e.onMemoryWarning, fn)
}

// OnAdapterAdded subscribes fn to adapter registrations.
func (e *Engine) OnAdapterAdded(fn func(string)) {
	e.hookMu.Lock()
	defer e.hookMu.Unlock()
	e.onAdapterAdded = append(e.onAdapterAdded, fn)
}

func (e *Engine) fireAdapterAdded(name string) {
	e.hookMu.Lock()
	subs := append([]func(string){}, e.onAdapterAdded...)
	e.hookMu.Unlock()
	for _, fn := range subs {
		fn(name)
	}
}

func (e *Engine) fireCorrelationFound(ce *models.CorrelatedEvent) {
	e.hookMu.Lock()
	subs := append([]func(*models.CorrelatedEvent){}, e.onCorrelationFound...)
	e.hookMu.Unlock()
	for _, fn := range subs {
		fn(ce)
	}
}

func (e *Engine) fireMemoryWarning(err error) {
	e.hookMu.Lock()
	subs := append([]func(error){}, e.onMemoryWarning...)
	e.hookMu.Unlock()
	for _, fn := range subs {
		fn(err)
	}
}

// Correlate parses queryText, validates it against the adapter registry,
// and returns a channel of Results streamed as they're produced: either a
// correlation or, as the last item before the channel closes, a terminal
// error if a stream failed or ctx was cancelled (spec §7). Already-emitted
// correlations before a terminal error remain valid.
func (e *Engine) Correlate(ctx context.Context, queryText string) (<-chan Result, error) {
	q, err := e.parser.Parse(queryText)
	if err != nil {
		return nil, err
	}

	streams := q.Streams()
	adapters := make([]adapter.SourceAdapter, len(streams))
	for i, sq := range streams {
		a, err := e.Adapter(sq.Source)
		if err != nil {
			return nil, err
		}
		adapters[i] = a
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.queryMu.Lock()
	e.queries = append(e.queries, cancel)
	e.queryMu.Unlock()
	out := make(chan Result, e.cfg.BufferSize)

	if len(streams) == 2 {
		e.runTwoStream(runCtx, cancel, q, streams, adapters, out)
	} else {
		e.runMultiStream(runCtx, cancel, q, streams, adapters, out)
	}
	return out, nil
}

func (e *Engine) openStream(ctx context.Context, a adapter.SourceAdapter, sq query.StreamQuery) (adapter.EventStream, error) {
	opts := adapter.StreamOptions{TimeRange: sq.TimeRange}.WithDefaults()
	return a.CreateStream(ctx, sq.Selector, opts)
}

// pump drains s, admits each event through dedup and backpressure, and
// forwards survivors to push. It closes done when the stream ends, and
// reports a terminal error via report when the stream ended abnormally
// (an adapter failure, or ctx cancellation) rather than at a clean EOF.
func (e *Engine) pump(ctx context.Context, s adapter.EventStream, bp *backpressure.Controller, push func(*models.LogEvent), report *errOnce, done func()) {
	defer done()
	defer s.Close()
	for {
		start := time.Now()
		ev, err := s.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				report.set(correrr.Cancelled(ctxErr))
			} else {
				e.mon.RecordError()
				report.set(err)
			}
			return
		}
		e.mon.RecordEvent(time.Since(start))

		if e.dedupe != nil {
			seen, derr := e.dedupe.Seen(ctx, dedup.Hash(ev))
			if derr == nil && seen {
				continue
			}
		}

		if !bp.Submit(ev) {
			continue
		}
		drained, derr := bp.Next(ctx)
		if derr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				report.set(correrr.Cancelled(ctxErr))
			}
			return
		}
		push(drained)
	}
}

func (e *Engine) runTwoStream(ctx context.Context, cancel context.CancelFunc, q *query.ParsedQuery, streams []query.StreamQuery, adapters []adapter.SourceAdapter, out chan Result) {
	j := join.NewTwoStreamJoiner(q, e.cfg.LateTolerance)
	report := newErrOnce()

	leftStream, lerr := e.openStream(ctx, adapters[0], streams[0])
	rightStream, rerr := e.openStream(ctx, adapters[1], streams[1])

	var wg sync.WaitGroup
	if lerr == nil {
		bp := backpressure.NewController(e.cfg.Backpressure, e.logger)
		wg.Add(1)
		go e.pump(ctx, leftStream, bp, func(ev *models.LogEvent) { j.Push(join.Left, ev) }, report, wg.Done)
	} else {
		e.logger.Error("engine: failed to open left stream", "source", streams[0].Source, "error", lerr)
		report.set(lerr)
	}
	if rerr == nil {
		bp := backpressure.NewController(e.cfg.Backpressure, e.logger)
		wg.Add(1)
		go e.pump(ctx, rightStream, bp, func(ev *models.LogEvent) { j.Push(join.Right, ev) }, report, wg.Done)
	} else {
		e.logger.Error("engine: failed to open right stream", "source", streams[1].Source, "error", rerr)
		report.set(rerr)
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		wg.Wait()
		j.Retire()
		j.Close()
	}()

	e.wg.Add(1)
	go e.forward(ctx, cancel, j.Out(), report, out)
}

func (e *Engine) runMultiStream(ctx context.Context, cancel context.CancelFunc, q *query.ParsedQuery, streams []query.StreamQuery, adapters []adapter.SourceAdapter, out chan Result) {
	j := join.NewMultiStreamJoiner(q, e.cfg.LateTolerance)
	report := newErrOnce()

	var wg sync.WaitGroup
	for i := range streams {
		s, err := e.openStream(ctx, adapters[i], streams[i])
		if err != nil {
			e.logger.Error("engine: failed to open stream", "source", streams[i].Source, "error", err)
			report.set(err)
			continue
		}
		bp := backpressure.NewController(e.cfg.Backpressure, e.logger)
		idx := i
		wg.Add(1)
		go e.pump(ctx, s, bp, func(ev *models.LogEvent) { j.Push(idx, ev) }, report, wg.Done)
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		wg.Wait()
		j.Retire()
		j.Close()
	}()

	e.wg.Add(1)
	go e.forward(ctx, cancel, j.Out(), report, out)
}

// forward drains the joiner's output into out, wrapping each correlation
// that survives the merge stage as a Result. Once the joiner's channel
// closes it checks report for a terminal error reported by any pump and,
// if present, delivers it as the final Result before closing out (spec §7:
// the call ends with the error, but correlations already sent remain
// valid).
func (e *Engine) forward(ctx context.Context, cancel context.CancelFunc, in <-chan *models.CorrelatedEvent, report *errOnce, out chan Result) {
	defer e.wg.Done()
	defer cancel()
	defer close(out)
	for {
		select {
		case ce, ok := <-in:
			if !ok {
				if err := report.get(); err != nil {
					select {
					case out <- Result{Err: err}:
					case <-ctx.Done():
					}
				}
				return
			}
			if !e.merger.Admit(ce) {
				continue
			}
			e.mon.RecordCorrelation()
			e.fireCorrelationFound(ce)
			select {
			case out <- Result{Correlation: ce}:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			if err := report.get(); err != nil {
				select {
				case out <- Result{Err: err}:
				default:
				}
			}
			return
		}
	}
}

// runMemorySampler periodically checks heap usage against MaxMemoryMB and
// fires memoryWarning hooks when it's exceeded (spec §4.9, §5 memory
// policy). It never forcibly terminates queries.
func (e *Engine) runMemorySampler(ctx context.Context) {
	defer e.wg.Done()
	interval := e.cfg.GCInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			var stats runtime.MemStats
			runtime.ReadMemStats(&stats)
			usedMB := int64(stats.HeapAlloc / (1024 * 1024))
			e.mon.ObserveHeap(usedMB)
			if e.cfg.MaxMemoryMB > 0 && usedMB > int64(e.cfg.MaxMemoryMB) {
				e.fireMemoryWarning(correrr.MemoryExceeded(usedMB, int64(e.cfg.MaxMemoryMB)))
			}

			e.hookMu.Lock()
			subs := append([]func(perfmon.Stats){}, e.onPerformanceMetric...)
			e.hookMu.Unlock()
			snap := e.mon.Snapshot()
			for _, fn := range subs {
				fn(snap)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Destroy cancels all in-flight queries and releases every registered
// adapter. Idempotent.
func (e *Engine) Destroy() error {
	e.cancel()

	e.queryMu.Lock()
	for _, cancelQuery := range e.queries {
		cancelQuery()
	}
	e.queryMu.Unlock()

	e.wg.Wait()

	e.mu.Lock()
	defer e.mu.Unlock()
	var firstErr error
	for _, a := range e.adapters {
		if err := a.Destroy(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if e.dedupe != nil {
		_ = e.dedupe.Close()
	}
	return firstErr
}
