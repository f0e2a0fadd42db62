package agent

import (
	"context"
	"fmt"

	"github.com/me/agentq/pkg/model"
)

// Processor is the agent-specific work: analyze one upload. A nil error is
// success; the error text of a failure is stored as the audit status text.
type Processor interface {
	ProcessUpload(ctx context.Context, uploadID int64) error
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(ctx context.Context, uploadID int64) error

func (f ProcessorFunc) ProcessUpload(ctx context.Context, uploadID int64) error {
	return f(ctx, uploadID)
}

// safeProcess runs p and turns a panic into a processing failure.
func safeProcess(ctx context.Context, p Processor, uploadID int64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", model.ErrProcessingFailure, r)
		}
	}()
	return p.ProcessUpload(ctx, uploadID)
}
