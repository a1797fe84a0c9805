// Package engine defines the contract with the external document renderer.
//
// A renderer receives a report.Document (leveled, styled blocks) and an
// optional reference template path, and returns the finished document bytes.
// Implementations never retry; every failure is reported as an
// *errors.EngineError so the caller can record it on the job.
package engine

import (
	"context"

	"github.com/FocuswithJustin/hwpxreport/core/errors"
	"github.com/FocuswithJustin/hwpxreport/core/report"
)

// Engine renders one document.
type Engine interface {
	Render(ctx context.Context, doc *report.Document, templatePath string) ([]byte, error)
}

// Func adapts a function to the Engine interface.
type Func func(ctx context.Context, doc *report.Document, templatePath string) ([]byte, error)

// Render calls f.
func (f Func) Render(ctx context.Context, doc *report.Document, templatePath string) ([]byte, error) {
	return f(ctx, doc, templatePath)
}

// Classify normalizes an error returned by an engine. A context deadline
// becomes a timeout EngineError; any error that is not already an
// EngineError is wrapped as a render failure.
func Classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &errors.EngineError{Op: "render", Timeout: true, Err: err}
	}
	var ee *errors.EngineError
	if errors.As(err, &ee) {
		return err
	}
	return &errors.EngineError{Op: "render", Err: err}
}

// Unavailable is an engine that always fails, used when no renderer is
// configured.
var Unavailable = Func(func(context.Context, *report.Document, string) ([]byte, error) {
	return nil, &errors.EngineError{Op: "start", Message: "no rendering engine configured"}
})
