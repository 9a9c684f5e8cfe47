package query

import (
	"context"

	"github.com/google/uuid"
)

// Op tracks the single outstanding instance of one kind of asynchronous
// operation. Starting a new instance cancels the previous one with
// ErrSuperseded; completions are matched by token so a superseded instance
// can never be taken for the current one.
type Op struct {
	token  uuid.UUID
	cancel context.CancelCauseFunc
}

// Start supersedes any pending instance and returns the context and token for
// the new one.
func (o *Op) Start(parent context.Context) (context.Context, uuid.UUID) {
	o.Cancel(ErrSuperseded)

	ctx, cancel := context.WithCancelCause(parent)
	o.token = uuid.New()
	o.cancel = cancel
	return ctx, o.token
}

// Finish reports whether token belongs to the pending instance and, if so,
// clears it.
func (o *Op) Finish(token uuid.UUID) bool {
	if o.cancel == nil || token != o.token {
		return false
	}
	o.cancel(nil)
	o.cancel = nil
	o.token = uuid.Nil
	return true
}

func (o *Op) Cancel(cause error) {
	if o.cancel == nil {
		return
	}
	o.cancel(cause)
	o.cancel = nil
	o.token = uuid.Nil
}

func (o *Op) Pending() bool {
	return o.cancel != nil
}
