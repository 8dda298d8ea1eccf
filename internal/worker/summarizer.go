package worker

import "context"

// Summarizer produces a summary for one request. The pipeline depends only
// on this interface so transports can be swapped, including in-process
// implementations in tests.
type Summarizer interface {
	Summarize(ctx context.Context, req Request) (string, error)
}

// Func adapts a plain function to Summarizer.
type Func func(ctx context.Context, req Request) (string, error)

func (f Func) Summarize(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
