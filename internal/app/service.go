// Package service runs projection batches: it loads a point-in-time
// snapshot, fans (player, game) jobs out to a worker pool, gates the results
// and writes them back to the store.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/okian/projector/internal/adapters/mq/queue"
	"github.com/okian/projector/internal/adapters/mq/worker"
	"github.com/okian/projector/internal/adapters/repository"
	"github.com/okian/projector/internal/domain/dedupe"
	"github.com/okian/projector/internal/domain/gate"
	"github.com/okian/projector/internal/domain/goalie"
	"github.com/okian/projector/internal/domain/model"
	"github.com/okian/projector/internal/domain/projection"
	"github.com/okian/projector/internal/domain/snapshot"
	"github.com/okian/projector/pkg/logger"
	"github.com/okian/projector/pkg/metrics"
)

const (
	defaultQueueSize        = 10_000
	defaultDedupeSize       = 100_000
	defaultWriteBatchSize   = 500
	defaultWriteConcurrency = 4
	defaultWriteAttempts    = 3
	writeBackoff            = 50 * time.Millisecond
	enqueueBackoff          = time.Millisecond
)

// Store is what a batch reads from and writes to.
type Store interface {
	repository.SnapshotSource
	repository.ProjectionWriter
}

// Request is one batch: games dated within [From, To], computed from data
// as of AsOf. A zero AsOf means From.
type Request struct {
	From time.Time
	To   time.Time
	AsOf time.Time
}

// Failure is one unit that produced no projection.
type Failure struct {
	Key    model.Key
	Kind   model.Kind
	Reason string
	Err    error
}

// Computation is the compute stage output, sorted by key.
type Computation struct {
	Projections []model.Projection
	Failures    []Failure
	Jobs        int
	Duplicates  int
}

// Summary reports one batch run.
type Summary struct {
	RunID          string         `json:"run_id"`
	AsOf           time.Time      `json:"as_of"`
	From           time.Time      `json:"from"`
	To             time.Time      `json:"to"`
	Jobs           int            `json:"jobs"`
	Duplicates     int            `json:"duplicates"`
	Successful     int            `json:"successful"`
	Failed         int            `json:"failed"`
	Valid          int            `json:"valid"`
	Review         int            `json:"review"`
	Rejected       int            `json:"rejected"`
	Written        int            `json:"written"`
	FailuresByKind map[string]int `json:"failures_by_kind"`
	FailuresByWhy  map[string]int `json:"failures_by_reason"`
	StaleRows      []string       `json:"stale_rows,omitempty"`
	InvalidRows    []string       `json:"invalid_rows,omitempty"`
	Duration       time.Duration  `json:"duration"`
}

// Service runs projection batches against a Store.
type Service struct {
	store    Store
	composer *projection.Composer
	goalies  *goalie.Model
	gate     *gate.Gate

	workerCount      int
	queueSize        int
	dedupeSize       int
	writeBatchSize   int
	writeConcurrency int
	writeAttempts    int
	flagLog          io.Writer

	logger logger.Logger
	now    func() time.Time
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the job queue capacity.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the job key de-duplication cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithWriteBatchSize sets the number of projections per write transaction.
func WithWriteBatchSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.writeBatchSize = size
		}
	}
}

// WithWriteConcurrency bounds concurrent write transactions.
func WithWriteConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.writeConcurrency = n
		}
	}
}

// WithWriteAttempts sets how many times a batch is tried on transient failures.
func WithWriteAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.writeAttempts = n
		}
	}
}

// WithComposer sets the skater composer.
func WithComposer(c *projection.Composer) Option {
	return func(s *Service) {
		if c != nil {
			s.composer = c
		}
	}
}

// WithGoalieModel sets the goaltender model.
func WithGoalieModel(m *goalie.Model) Option {
	return func(s *Service) {
		if m != nil {
			s.goalies = m
		}
	}
}

// WithGate sets the outlier gate.
func WithGate(g *gate.Gate) Option {
	return func(s *Service) {
		if g != nil {
			s.gate = g
		}
	}
}

// WithFlagLog sets where flagged projections are written as JSON Lines.
func WithFlagLog(w io.Writer) Option {
	return func(s *Service) {
		s.flagLog = w
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the wall clock used for run timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a Service over store with default configuration.
func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:            store,
		workerCount:      runtime.NumCPU(),
		queueSize:        defaultQueueSize,
		dedupeSize:       defaultDedupeSize,
		writeBatchSize:   defaultWriteBatchSize,
		writeConcurrency: defaultWriteConcurrency,
		writeAttempts:    defaultWriteAttempts,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("runner")
	}
	if s.composer == nil {
		s.composer = projection.New()
	}
	if s.goalies == nil {
		s.goalies = goalie.New()
	}
	if s.gate == nil {
		s.gate = gate.New(gate.WithLogger(s.logger.Named("gate")))
	}
	return s
}

// Run executes one batch. Unit failures are counted, never returned; the
// returned error is non-nil only when the snapshot cannot be loaded, a unit
// fails fatally, the context ends, or a write batch fails after retries.
// Batches already committed stay committed.
func (s *Service) Run(ctx context.Context, req Request) (Summary, error) {
	start := s.now()
	from, to := model.Day(req.From), model.Day(req.To)
	asOf := req.AsOf
	if asOf.IsZero() {
		asOf = from
	}
	asOf = model.Day(asOf)

	sum := Summary{
		RunID:          uuid.NewString(),
		AsOf:           asOf,
		From:           from,
		To:             to,
		FailuresByKind: map[string]int{},
		FailuresByWhy:  map[string]int{},
	}
	if req.From.IsZero() || req.To.IsZero() || to.Before(from) {
		return sum, fmt.Errorf("%w: from=%s to=%s", ErrInvalidRequest, from.Format(time.DateOnly), to.Format(time.DateOnly))
	}
	log := s.logger.With(logger.String("run_id", sum.RunID))

	snap, err := snapshot.Load(ctx, s.store, asOf, from, to)
	if err != nil {
		return sum, fmt.Errorf("%w: %w", ErrSnapshotLoad, err)
	}
	sum.StaleRows = snap.Stale()
	if len(sum.StaleRows) > 0 {
		log.Warn(ctx, "snapshot contains rows newer than its as-of date", logger.Int("rows", len(sum.StaleRows)))
	}
	sum.InvalidRows = snap.Invalid()
	if len(sum.InvalidRows) > 0 {
		log.Warn(ctx, "snapshot withheld invalid baselines", logger.Any("rows", sum.InvalidRows))
	}

	comp, err := s.Compute(ctx, snap)
	sum.Jobs, sum.Duplicates = comp.Jobs, comp.Duplicates
	sum.Successful, sum.Failed = len(comp.Projections), len(comp.Failures)
	for _, f := range comp.Failures {
		sum.FailuresByKind[f.Kind.String()]++
		sum.FailuresByWhy[f.Reason]++
	}
	if err != nil {
		return sum, err
	}

	decision := s.gate.Evaluate(ctx, comp.Projections)
	sum.Valid, sum.Review, sum.Rejected = len(decision.Valid), len(decision.Review), len(decision.Rejected)

	if s.flagLog != nil {
		if err := gate.WriteFlagLog(s.flagLog, sum.RunID, start, decision); err != nil {
			log.Error(ctx, "failed to write flag log", logger.Error(err))
		}
	}

	persist := decision.Persistable()
	sort.Slice(persist, func(i, j int) bool { return persist[i].Key.Less(persist[j].Key) })
	written, err := s.write(ctx, persist)
	sum.Written = written
	sum.Duration = s.now().Sub(start)
	metrics.RecordBatchCompleted(float64(sum.Duration.Milliseconds()), s.now().Unix())

	log.Info(ctx, "batch completed",
		logger.String("from", from.Format(time.DateOnly)),
		logger.String("to", to.Format(time.DateOnly)),
		logger.Int("jobs", sum.Jobs),
		logger.Int("successful", sum.Successful),
		logger.Int("failed", sum.Failed),
		logger.Int("review", sum.Review),
		logger.Int("rejected", sum.Rejected),
		logger.Int("written", sum.Written),
		logger.Duration("duration", sum.Duration),
	)
	return sum, err
}

// Compute projects every job in snap without gating or persisting. The
// returned projections and failures are sorted by key.
func (s *Service) Compute(ctx context.Context, snap *snapshot.Snapshot) (Computation, error) {
	var comp Computation

	deduper := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	var jobs []model.Job
	for _, j := range Jobs(snap) {
		if deduper.SeenAndRecord(ctx, j.Key()) {
			comp.Duplicates++
			metrics.RecordJobDuplicate()
			continue
		}
		jobs = append(jobs, j)
	}
	comp.Jobs = len(jobs)
	if len(jobs) == 0 {
		return comp, nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	q := queue.NewInMemoryQueue(queue.WithCapacity(min(s.queueSize, len(jobs))))
	project := worker.ProjectorFunc(func(_ context.Context, j model.Job) (model.Projection, error) {
		if j.Goalie {
			return s.goalies.Project(snap, j.Request)
		}
		return s.composer.Skater(snap, j.Request)
	})
	pool := worker.NewPool(s.workerCount, q, project, worker.WithLogger(s.logger.Named("worker")))
	pool.Start(runCtx)

	produced := make(chan error, 1)
	go func() {
		produced <- s.produce(runCtx, q, jobs)
		if err := pool.Shutdown(context.WithoutCancel(runCtx)); err != nil {
			s.logger.Warn(runCtx, "worker pool shutdown", logger.Error(err))
		}
	}()

	var fatal error
	for r := range pool.Results() {
		if r.Err == nil {
			comp.Projections = append(comp.Projections, r.Projection)
			continue
		}
		kind := model.KindOf(r.Err)
		comp.Failures = append(comp.Failures, Failure{
			Key: r.Job.Key(), Kind: kind, Reason: model.Reason(r.Err), Err: r.Err,
		})
		if kind == model.KindFatal && fatal == nil {
			fatal = fmt.Errorf("%w: %w", ErrFatalUnit, r.Err)
			cancel()
		}
	}
	perr := <-produced

	sort.Slice(comp.Projections, func(i, j int) bool { return comp.Projections[i].Key.Less(comp.Projections[j].Key) })
	sort.Slice(comp.Failures, func(i, j int) bool { return comp.Failures[i].Key.Less(comp.Failures[j].Key) })

	switch {
	case fatal != nil:
		return comp, fatal
	case ctx.Err() != nil:
		return comp, ctx.Err()
	case perr != nil:
		return comp, perr
	}
	return comp, nil
}

// produce feeds jobs to q, backing off while it is full.
func (s *Service) produce(ctx context.Context, q queue.Queue, jobs []model.Job) error {
	for _, j := range jobs {
		for !q.Enqueue(ctx, j) {
			if q.IsClosed() {
				return ErrQueueClosed
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(enqueueBackoff):
			}
		}
	}
	return nil
}

// write upserts projections in key-ordered batches, at most writeConcurrency
// transactions at a time. Batches hold disjoint key sets.
func (s *Service) write(ctx context.Context, projections []model.Projection) (int, error) {
	if len(projections) == 0 {
		return 0, nil
	}
	var written atomic.Int64
	sem := semaphore.NewWeighted(int64(s.writeConcurrency))
	g, gctx := errgroup.WithContext(ctx)

	for lo := 0; lo < len(projections); lo += s.writeBatchSize {
		batch := projections[lo:min(lo+s.writeBatchSize, len(projections))]
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			if err := s.writeBatch(gctx, batch); err != nil {
				return err
			}
			written.Add(int64(len(batch)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(written.Load()), fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if err := ctx.Err(); err != nil {
		return int(written.Load()), fmt.Errorf("%w: %w", ErrWrite, err)
	}
	return int(written.Load()), nil
}

// writeBatch retries transient store failures with linear backoff.
func (s *Service) writeBatch(ctx context.Context, batch []model.Projection) error {
	var err error
	for attempt := 1; attempt <= s.writeAttempts; attempt++ {
		err = s.store.UpsertBatch(ctx, batch)
		if err == nil || !errors.Is(err, repository.ErrTransient) {
			return err
		}
		s.logger.Warn(ctx, "transient write failure",
			logger.Int("attempt", attempt),
			logger.Int("rows", len(batch)),
			logger.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * writeBackoff):
		}
	}
	return err
}
