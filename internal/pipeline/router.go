package pipeline

import (
	"context"
	"fmt"
)

// router implements Processor and routes jobs to the batch runner. The run
// id each job carries is pushed into the request so the runner's history
// rows line up with what Submit already recorded.
type router struct {
	runner Runner
}

func newRouter(runner Runner) Processor {
	return &router{runner: runner}
}

func (r *router) Process(ctx context.Context, job Job) Result {
	switch job.Type {
	case JobSession:
		req := job.Session
		req.RunID = job.ID
		sum, err := r.runner.RunSession(ctx, req)
		return Result{Job: job, Summary: sum, Error: err}
	case JobPlanet:
		req := job.Planet
		req.RunID = job.ID
		sum, err := r.runner.RunPlanet(ctx, req)
		return Result{Job: job, Summary: sum, Error: err}
	case JobSingle:
		req := job.Single
		req.RunID = job.ID
		sum, err := r.runner.RunSingle(ctx, req)
		return Result{Job: job, Summary: sum, Error: err}
	default:
		return Result{Job: job, Error: fmt.Errorf("unknown job type: %s", job.Type)}
	}
}
