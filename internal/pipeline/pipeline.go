// Package pipeline dispatches queued coregistration runs across a bounded
// set of workers and fans results out to subscribers.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"georeg/internal/batch"
	"georeg/internal/logging"
	"georeg/internal/storage"
)

// JobType enumerates supported run categories.
type JobType string

const (
	JobSession JobType = "session"
	JobPlanet  JobType = "planet"
	JobSingle  JobType = "single"
)

// Job is a single queued coregistration run. Exactly one of the request
// fields is read, picked by Type.
type Job struct {
	ID      string
	Type    JobType
	Session batch.SessionRequest
	Planet  batch.PlanetRequest
	Single  batch.SingleRequest
}

// InputPath names what the job processes, for logs and the run history.
func (j Job) InputPath() string {
	switch j.Type {
	case JobSession:
		return j.Session.SessionDir
	case JobPlanet:
		return j.Planet.TargetDir
	case JobSingle:
		return j.Single.TargetPath
	}
	return ""
}

// Result captures the outcome of a Job.
type Result struct {
	Job     Job
	Summary *batch.Summary
	Error   error
}

// Processor executes a job and returns a Result.
type Processor interface {
	Process(ctx context.Context, job Job) Result
}

// Runner executes coregistration runs; *batch.Runner satisfies it.
type Runner interface {
	RunSession(ctx context.Context, req batch.SessionRequest) (*batch.Summary, error)
	RunPlanet(ctx context.Context, req batch.PlanetRequest) (*batch.Summary, error)
	RunSingle(ctx context.Context, req batch.SingleRequest) (*batch.Summary, error)
}

// Pipeline orchestrates run dispatch across workers.
type Pipeline struct {
	processor Processor
	log       *slog.Logger
	jobs      chan Job
	wg        sync.WaitGroup
	cancel    context.CancelFunc
	startOnce sync.Once
	stopOnce  sync.Once
	store     *storage.Store
	mu        sync.Mutex
	subs      map[int]chan Result
	nextSubID int
}

// New creates a Pipeline with the given concurrency, dispatching jobs into
// the runner. The store may be nil, which disables run history.
func New(ctx context.Context, concurrency int, logger *slog.Logger, store *storage.Store, runner Runner) *Pipeline {
	if concurrency < 1 {
		concurrency = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	p := &Pipeline{
		log:    logger,
		jobs:   make(chan Job, concurrency*2),
		cancel: cancel,
		store:  store,
		subs:   make(map[int]chan Result),
	}

	p.startOnce.Do(func() {
		p.processor = newRouter(runner)
		for i := 0; i < concurrency; i++ {
			p.wg.Add(1)
			go p.worker(ctx, i)
		}
	})

	return p
}

// Submit queues a run and returns its id. The job's ID doubles as the run
// id in the history; an empty one is filled in.
func (p *Pipeline) Submit(job Job) (string, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	_ = p.store.RecordRunQueued(storage.RunRecord{
		ID:         job.ID,
		RunType:    string(job.Type),
		Status:     "queued",
		SessionDir: job.InputPath(),
	})

	select {
	case p.jobs <- job:
		return job.ID, nil
	default:
		_ = p.store.RecordRunResult(job.ID, "failed", 0, 0, 0, "run queue is full")
		return "", errors.New("run queue is full")
	}
}

// Stop signals workers to exit and waits for completion.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		p.cancel()
		close(p.jobs)
		p.wg.Wait()
		p.mu.Lock()
		for id, ch := range p.subs {
			close(ch)
			delete(p.subs, id)
		}
		p.mu.Unlock()
	})
}

func (p *Pipeline) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			start := time.Now()

			logging.LogRunStart(p.log, string(job.Type), job.ID, job.InputPath())
			res := p.processor.Process(ctx, job)
			duration := time.Since(start)

			if res.Error != nil {
				logging.LogRunError(p.log, string(job.Type), job.ID, duration, res.Error)
				// Runs that died before touching their history row still
				// need it closed out.
				_ = p.store.RecordRunResult(job.ID, "failed", 0, 0, 0, res.Error.Error())
			} else {
				logging.LogRunComplete(p.log, string(job.Type), job.ID, duration,
					res.Summary.Total, res.Summary.Passed, res.Summary.Failed)
			}

			p.broadcast(res)
		}
	}
}

// Subscribe returns a channel for receiving run results and an unsubscribe function.
func (p *Pipeline) Subscribe() (<-chan Result, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSubID
	p.nextSubID++
	ch := make(chan Result, 8)
	p.subs[id] = ch
	unsub := func() {
		p.mu.Lock()
		if c, ok := p.subs[id]; ok {
			close(c)
			delete(p.subs, id)
		}
		p.mu.Unlock()
	}
	return ch, unsub
}

func (p *Pipeline) broadcast(res Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, ch := range p.subs {
		select {
		case ch <- res:
		default:
			p.log.Warn("result channel full", "subscriber", id, "run", res.Job.ID)
		}
	}
}
