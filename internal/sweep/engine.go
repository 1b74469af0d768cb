package sweep

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/hochfrequenz/knightshock/internal/domain"
	"github.com/hochfrequenz/knightshock/internal/ignition"
	"github.com/hochfrequenz/knightshock/internal/kinetics"
)

// DefaultHorizon is the simulated time each case is integrated to [s]
const DefaultHorizon = 5e-3

// ErrCaseFailure marks the error text of a failed case
var ErrCaseFailure = errors.New("case failure")

// Options configures an Engine
type Options struct {
	Workers  int // 0 means runtime.NumCPU()
	Horizon  float64
	Reactor  kinetics.Kind
	Ignition ignition.Options
	MaxSteps int

	// HistoryDir, when set, receives one species-history CSV per case
	HistoryDir     string
	HistorySpecies int      // number of species written; <= 0 writes all
	HistoryExclude []string // species never written, e.g. the bath gas
}

// withDefaults fills zero values
func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.Horizon == 0 {
		o.Horizon = DefaultHorizon
	}
	if o.Reactor == "" {
		o.Reactor = kinetics.ConstantVolume
	}
	if o.Ignition.Method == "" {
		o.Ignition.Method = ignition.Inflection
	}
	return o
}

// Validate checks the options after defaults are applied
func (o Options) Validate() error {
	if !positive(o.Horizon) {
		return fmt.Errorf("horizon %g: %w", o.Horizon, ErrInvalidConfiguration)
	}
	if o.MaxSteps < 0 {
		return fmt.Errorf("max steps %d: %w", o.MaxSteps, ErrInvalidConfiguration)
	}
	if _, err := kinetics.ParseKind(string(o.Reactor)); err != nil {
		return fmt.Errorf("%v: %w", err, ErrInvalidConfiguration)
	}
	if err := o.Ignition.Validate(); err != nil {
		return fmt.Errorf("%v: %w", err, ErrInvalidConfiguration)
	}
	return nil
}

// Engine runs sweeps. It holds no state between runs; every Run starts
// fresh worker caches.
type Engine struct {
	loader kinetics.Loader
	opts   Options
	log    logrus.FieldLogger
}

// New creates an engine loading mechanisms through loader
func New(loader kinetics.Loader, opts Options) (*Engine, error) {
	if loader == nil {
		return nil, fmt.Errorf("nil mechanism loader: %w", ErrInvalidConfiguration)
	}
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Engine{loader: loader, opts: opts, log: logrus.StandardLogger()}, nil
}

// SetLogger replaces the engine's logger
func (e *Engine) SetLogger(log logrus.FieldLogger) {
	if log != nil {
		e.log = log
	}
}

// Options returns the effective options
func (e *Engine) Options() Options {
	return e.opts
}

// Run executes every case of the grid and appends each result to sink as
// it completes. Only the calling goroutine touches sink.
//
// A case whose simulation fails is recorded as a failed result and the sweep
// goes on. Cancelling ctx abandons cases still running without writing a
// row for them; Finish is still called and ctx.Err() is returned.
func (e *Engine) Run(ctx context.Context, grid Grid, sink Sink) (Summary, error) {
	if err := grid.Validate(); err != nil {
		return Summary{}, err
	}
	cases := grid.Cases()
	workers := min(e.opts.Workers, len(cases))

	sum := Summary{Info: Info{
		ID:      uuid.NewString(),
		Name:    grid.Name,
		Started: time.Now(),
		Total:   len(cases),
		Workers: workers,
	}}
	log := e.log.WithField("sweep", sum.ID)

	if err := sink.Begin(sum.Info); err != nil {
		abortSink(sink, err)
		return sum, fmt.Errorf("starting sink: %w", err)
	}
	log.WithFields(logrus.Fields{
		"cases":   len(cases),
		"workers": workers,
		"horizon": e.opts.Horizon,
		"reactor": e.opts.Reactor,
	}).Info("sweep started")

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan domain.ParameterCase)
	results := make(chan domain.SweepResult)

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer close(jobs)
		for _, c := range cases {
			select {
			case jobs <- c:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})
	for id := 1; id <= workers; id++ {
		g.Go(func() error {
			return e.worker(gctx, id, jobs, results, log)
		})
	}

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
		close(results)
	}()

	var sinkErr error
	for r := range results {
		if sinkErr != nil {
			continue
		}
		if err := sink.Append(r); err != nil {
			sinkErr = fmt.Errorf("appending case %d: %w", r.Case.Index, err)
			cancel()
			continue
		}
		sum.count(r)
	}
	<-done

	sum.Finished = time.Now()
	if sinkErr != nil {
		log.WithError(sinkErr).Error("sweep aborted")
		abortSink(sink, sinkErr)
		return sum, sinkErr
	}

	err := ctx.Err()
	sum.Cancelled = err != nil
	if ferr := sink.Finish(sum); ferr != nil && err == nil {
		err = fmt.Errorf("finishing sink: %w", ferr)
	}

	log.WithFields(logrus.Fields{
		"ok":        sum.OK,
		"undefined": sum.Undefined,
		"failed":    sum.Failed,
		"cancelled": sum.Cancelled,
		"elapsed":   sum.Elapsed().Round(time.Millisecond),
	}).Info("sweep finished")
	return sum, err
}

// worker runs cases until jobs is drained. Its mechanism cache lives for
// the worker's lifetime and is never shared.
func (e *Engine) worker(ctx context.Context, id int, jobs <-chan domain.ParameterCase, results chan<- domain.SweepResult, log logrus.FieldLogger) error {
	log = log.WithField("worker", id)
	cache := newMechanismCache(e.loader, log)
	log.Debug("worker started")
	defer func() {
		log.WithField("mechanisms", cache.len()).Debug("worker stopped")
	}()

	for c := range jobs {
		start := time.Now()
		r := e.runCase(ctx, cache, c, log)
		if err := ctx.Err(); err != nil {
			log.WithField("case", c.Index).Debug("case abandoned")
			return err
		}
		r.Worker = id
		r.Elapsed = time.Since(start)

		select {
		case results <- r:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// runCase simulates one case. Every failure, including a panic inside the
// stepper, becomes a failed result for this case only.
func (e *Engine) runCase(ctx context.Context, cache *mechanismCache, c domain.ParameterCase, log logrus.FieldLogger) (r domain.SweepResult) {
	log = log.WithFields(logrus.Fields{"case": c.Index, "mechanism": c.MechanismID})
	fail := func(err error) domain.SweepResult {
		if ctx.Err() == nil {
			log.WithError(err).Warn("case failed")
		}
		return domain.NewFailure(c, fmt.Errorf("%w: %v", ErrCaseFailure, err))
	}
	defer func() {
		if p := recover(); p != nil {
			r = fail(fmt.Errorf("panic: %v", p))
		}
	}()

	mech, err := cache.get(c.MechanismID)
	if err != nil {
		return fail(err)
	}
	reactor, err := mech.NewReactor(e.opts.Reactor)
	if err != nil {
		return fail(err)
	}

	initial := kinetics.State{
		Temperature: c.Temperature,
		Pressure:    c.Pressure,
		X:           c.Composition.X,
	}
	tr, err := kinetics.Run(ctx, reactor, initial, kinetics.RunOptions{
		Horizon:  e.opts.Horizon,
		MaxSteps: e.opts.MaxSteps,
	})
	if err != nil {
		return fail(err)
	}

	delay, defined, err := ignition.Delay(tr, e.opts.Ignition)
	if err != nil {
		return fail(err)
	}

	if e.opts.HistoryDir != "" {
		rank := ignition.RankOptions{Exclude: e.opts.HistoryExclude}
		if e.opts.HistorySpecies > 0 {
			rank.Count = ignition.Limit(e.opts.HistorySpecies)
		}
		path, err := writeHistory(e.opts.HistoryDir, c, tr, rank)
		if err != nil {
			log.WithError(err).Warn("writing species history")
		} else {
			log.WithField("path", path).Debug("species history written")
		}
	}

	log.WithFields(logrus.Fields{
		"delay":   delay,
		"defined": defined,
		"samples": tr.Len(),
	}).Debug("case finished")
	return domain.NewResult(c, delay, defined)
}

// mechanismCache maps mechanism id to the constructed mechanism, loaded on
// first use. Load failures are cached too so a broken mechanism is only
// attempted once per worker.
type mechanismCache struct {
	loader  kinetics.Loader
	log     logrus.FieldLogger
	entries map[string]cacheEntry
}

type cacheEntry struct {
	mech kinetics.Mechanism
	err  error
}

func newMechanismCache(loader kinetics.Loader, log logrus.FieldLogger) *mechanismCache {
	return &mechanismCache{
		loader:  loader,
		log:     log,
		entries: make(map[string]cacheEntry),
	}
}

func (mc *mechanismCache) get(id string) (kinetics.Mechanism, error) {
	if e, ok := mc.entries[id]; ok {
		return e.mech, e.err
	}

	start := time.Now()
	mech, err := mc.loader.Load(id)
	mc.entries[id] = cacheEntry{mech: mech, err: err}
	mc.log.WithFields(logrus.Fields{
		"mechanism": id,
		"elapsed":   time.Since(start).Round(time.Microsecond),
		"ok":        err == nil,
	}).Debug("mechanism loaded")
	return mech, err
}

func (mc *mechanismCache) len() int {
	return len(mc.entries)
}

// abortSink releases a sink that will not see Finish
func abortSink(sink Sink, cause error) {
	if a, ok := sink.(Aborter); ok {
		a.Abort(cause)
	}
}
