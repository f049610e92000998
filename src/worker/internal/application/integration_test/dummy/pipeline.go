package dummy

import (
	"context"

	"github.com/stemforge/stemforge-be/src/shared/separation/orchestrator"
	"github.com/stemforge/stemforge-be/src/worker/internal/application/jobs/separate"
)

var _ separate.Pipeline = &Pipeline{}

// Pipeline is a canned stand-in for the separation orchestrator. It
// records the requests it saw and plays back whatever result it was
// loaded with.
type Pipeline struct {
	Requests []orchestrator.Request
	Result   orchestrator.Result
	Err      error
}

func NewPipeline() *Pipeline {
	return &Pipeline{}
}

func (p *Pipeline) Run(ctx context.Context, request orchestrator.Request) (orchestrator.Result, error) {
	p.Requests = append(p.Requests, request)

	if p.Err != nil {
		return orchestrator.Result{}, p.Err
	}

	result := p.Result
	result.JobID = request.JobID
	return result, nil
}
