// Package fetch is the boundary between the scheduler and the tools that
// actually move bytes. Backends translate their own failure signatures into
// the typed errors declared here.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"favesave/internal/model"
)

var (
	// ErrCancelled is returned when a fetch observes cancellation at a
	// checkpoint or before it starts.
	ErrCancelled = errors.New("fetch cancelled")
	// ErrBlocked marks an upstream access denial.
	ErrBlocked = errors.New("access blocked upstream")
)

// BlockedError carries the backend message of an access denial.
type BlockedError struct {
	Message string
}

func (e *BlockedError) Error() string {
	return "blocked: " + e.Message
}

func (e *BlockedError) Is(target error) bool {
	return target == ErrBlocked
}

type Request struct {
	URL   string
	Dir   string
	Label string
	// Progress, when set, receives backend progress lines. It runs on the
	// fetching goroutine.
	Progress func(line string)
}

// Result describes what a backend wrote. Backends that let the extractor
// choose the extension report the path without it.
type Result struct {
	Path  string
	Bytes int64
}

type Fetcher interface {
	Fetch(ctx context.Context, req Request) (Result, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, req Request) (Result, error)

func (f FetcherFunc) Fetch(ctx context.Context, req Request) (Result, error) {
	return f(ctx, req)
}

// Checkpoint returns ErrCancelled once ctx is done.
func Checkpoint(ctx context.Context) error {
	if ctx.Err() != nil {
		return ErrCancelled
	}
	return nil
}

// Classify maps a fetch error to an outcome. Any failure after the context
// was cancelled counts as a cancellation.
func Classify(ctx context.Context, err error, took time.Duration) model.Outcome {
	switch {
	case err == nil:
		return model.Downloaded(took)
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled), ctx.Err() != nil:
		return model.Cancelled()
	case errors.Is(err, ErrBlocked):
		return model.Failed(err.Error(), true)
	default:
		return model.Failed(err.Error(), false)
	}
}

// Run performs one fetch and classifies it. Cancellation seen before the
// call short-circuits without touching the backend.
func Run(ctx context.Context, f Fetcher, req Request) model.Outcome {
	if err := Checkpoint(ctx); err != nil {
		return model.Cancelled()
	}
	start := time.Now()
	_, err := safeFetch(ctx, f, req)
	return Classify(ctx, err, time.Since(start))
}

func safeFetch(ctx context.Context, f Fetcher, req Request) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("fetch panicked: %v", r)
		}
	}()
	return f.Fetch(ctx, req)
}
