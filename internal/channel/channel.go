// Package channel abstracts how commands reach the trusted engine: through
// the supervised isolated worker process, or directly in-process for the
// non-isolated deployment.
package channel

import (
	"context"

	"github.com/geovault/geovault/internal/engine"
	"github.com/geovault/geovault/internal/models"
)

// Channel performs one command/response exchange with the trusted engine.
type Channel interface {
	Exchange(ctx context.Context, cmd models.Command) (models.Response, error)
}

// InProcess dispatches commands straight into an engine living in the caller's
// process. No trust boundary is crossed; behavior is otherwise identical to
// the isolated deployment.
type InProcess struct {
	dispatcher *engine.Dispatcher
}

// NewInProcess wraps a dispatcher as a Channel.
func NewInProcess(dispatcher *engine.Dispatcher) *InProcess {
	return &InProcess{dispatcher: dispatcher}
}

// Exchange runs the command synchronously. Exit is meaningless in-process and
// is treated as a no-op beyond its response.
func (c *InProcess) Exchange(ctx context.Context, cmd models.Command) (models.Response, error) {
	if err := ctx.Err(); err != nil {
		return models.Response{}, err
	}
	response, _ := c.dispatcher.Dispatch(cmd)
	return response, nil
}
