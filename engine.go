package stm

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// defaultRetryLimit bounds consecutive aborts before a transaction yields a
// terminal error (§4.8, §7) instead of looping indefinitely.
const defaultRetryLimit = 1000

// Engine owns one global version clock and the logger/metrics an embedder
// configured for it (§4.1, §6 init()). Most programs use the package-level
// functions below, which operate on a lazily-initialized default Engine;
// an embedder that wants an isolated clock constructs its own with New.
type Engine struct {
	clock versionClock

	initOnce sync.Once
	inited   atomic.Bool

	logger     *zap.Logger
	metrics    *engineMetrics
	retryLimit int
	liveBytes  int64

	atomsMu sync.Mutex
	atoms   map[uint64]struct{}
}

// Config holds engine-wide settings assembled from Options (§A.3 of
// SPEC_FULL.md, grounded on Jekaa-go-mvcc-map/mvcc/options.go's functional
// options pattern).
type Config struct {
	logger     *zap.Logger
	metricsReg prometheus.Registerer
	retryLimit int
}

// Option configures a Config.
type Option func(*Config)

// WithLogger sets the *zap.Logger the engine reports through. The default
// is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Config) { c.logger = l }
}

// WithMetrics registers the engine's prometheus collectors against reg. If
// never called, metrics calls are no-ops.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *Config) { c.metricsReg = reg }
}

// WithRetryLimit overrides the default number of consecutive aborts a
// transaction tolerates before Atomically returns ErrRetryLimitExceeded.
func WithRetryLimit(n int) Option {
	return func(c *Config) { c.retryLimit = n }
}

func newConfig(opts []Option) Config {
	cfg := Config{retryLimit: defaultRetryLimit}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// New constructs an unstarted Engine; call Init before running any
// transaction against it.
func New() *Engine {
	return &Engine{atoms: make(map[uint64]struct{})}
}

// Init starts e's global version clock (§4.1, §6 init()). It must be called
// exactly once before the first transaction; a second call returns
// ErrDoubleInit.
func (e *Engine) Init(opts ...Option) error {
	cfg := newConfig(opts)
	err := ErrDoubleInit
	e.initOnce.Do(func() {
		if cfg.logger != nil {
			e.logger = cfg.logger
		} else {
			e.logger = zap.NewNop()
		}
		e.metrics = newEngineMetrics(cfg.metricsReg)
		e.retryLimit = cfg.retryLimit
		e.inited.Store(true)
		err = nil
	})
	if err != nil {
		return err
	}
	e.logger.Info("stm: engine initialized", zap.Int("retry_limit", e.retryLimit))
	return nil
}

func (e *Engine) addLiveBytes(delta int64) {
	atomic.AddInt64(&e.liveBytes, delta)
}

// trackAtom records that id has been read or written by a transaction
// running against e, so AtomCount reflects only atoms this particular
// engine has actually touched. atomSeq (atom.go) hands out identities
// process-wide, since two Engines may legitimately share the same Atoms;
// that global sequence is for deterministic lock ordering only and must
// not leak into a per-engine diagnostic.
func (e *Engine) trackAtom(id uint64) {
	e.atomsMu.Lock()
	e.atoms[id] = struct{}{}
	e.atomsMu.Unlock()
}

// Stats is a diagnostic snapshot of an Engine (§C.3 of SPEC_FULL.md).
type Stats struct {
	ClockValue     uint64
	LiveAllocBytes int64
	AtomCount      uint64
}

// Stats returns a point-in-time snapshot. It is not itself transactional
// and is meant for tests and debugging, not for driving application logic.
func (e *Engine) Stats() Stats {
	e.atomsMu.Lock()
	atomCount := uint64(len(e.atoms))
	e.atomsMu.Unlock()
	return Stats{
		ClockValue:     e.clock.load(),
		LiveAllocBytes: atomic.LoadInt64(&e.liveBytes),
		AtomCount:      atomCount,
	}
}

// CallOption configures a single Atomically/RunAtomically invocation.
type CallOption func(*callConfig)

type callConfig struct {
	name       string
	retryLimit int
}

// WithTxnName attaches a debug name to a transaction (§3 Transaction "name
// tag used for debugging"), threaded into abort/retry-limit log lines.
func WithTxnName(name string) CallOption {
	return func(c *callConfig) { c.name = name }
}

// WithCallRetryLimit overrides the engine's retry limit for one call site.
func WithCallRetryLimit(n int) CallOption {
	return func(c *callConfig) { c.retryLimit = n }
}

func (e *Engine) callConfig(opts []CallOption) callConfig {
	cfg := callConfig{retryLimit: e.retryLimit}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// RunAtomically runs fn as a transaction against e, retrying on conflict
// until it commits or the retry cap is exceeded (§4.7, §4.8, §6 begin/end).
// fn must be free of side effects other than Read/Write/Allocate/Free on e's
// atoms (§6 contract): the engine may invoke it more than once.
func RunAtomically[T any](e *Engine, fn func(*Tx) (T, error), opts ...CallOption) (T, error) {
	var zero T
	if e == nil {
		e = defaultEngine()
	}
	if !e.inited.Load() {
		return zero, ErrNotInitialized
	}
	cfg := e.callConfig(opts)
	tx := newTx(e, cfg.name)

	for attempt := 1; ; attempt++ {
		tx.beginAttempt()

		result, err := fn(tx)
		switch {
		case errors.Is(err, ErrRetry):
			tx.abortAttempt()
			e.metrics.observeOutcome("aborted_validation")
			if attempt > cfg.retryLimit {
				e.logRetryLimit(tx, attempt)
				return zero, ErrRetryLimitExceeded
			}
			continue
		case err != nil:
			tx.abortAttempt()
			return zero, err
		}

		// The last attempt this call permits blocks on its write locks
		// instead of racing try_lock, so contention on those locks cannot
		// reject it (§5's forward-progress carve-out). Read validation can
		// still fail it.
		forceLock := attempt == cfg.retryLimit+1
		if !tx.commit(forceLock) {
			tx.abortAttempt()
			e.metrics.observeOutcome("aborted_lock")
			if attempt > cfg.retryLimit {
				e.logRetryLimit(tx, attempt)
				return zero, ErrRetryLimitExceeded
			}
			continue
		}

		e.metrics.observeAttempts(attempt)
		e.metrics.observeOutcome("committed")
		return result, nil
	}
}

func (e *Engine) logRetryLimit(tx *Tx, attempt int) {
	e.logger.Error("stm: transaction exceeded retry limit",
		zap.String("txn", tx.name),
		fieldAttempt(attempt),
	)
}

var (
	defaultEngineOnce sync.Once
	defaultEngineInst *Engine
)

func defaultEngine() *Engine {
	defaultEngineOnce.Do(func() {
		defaultEngineInst = New()
	})
	return defaultEngineInst
}

// Init initializes the package-level default Engine (§6 init()). Every
// package-level Atomically call runs against this engine. Most single-clock
// programs never need to construct their own *Engine.
func Init(opts ...Option) error {
	return defaultEngine().Init(opts...)
}

// Atomically runs fn against the package-level default Engine. See
// RunAtomically.
func Atomically[T any](fn func(*Tx) (T, error), opts ...CallOption) (T, error) {
	return RunAtomically(defaultEngine(), fn, opts...)
}
