package remover

import (
	"context"
	"fmt"
	"time"
)

type timeoutRemover struct {
	next    Remover
	timeout time.Duration
}

// WithTimeout bounds every call to next by d. The call returns when the
// deadline passes even if next ignores its context, and a panic inside next
// is returned as an error instead of taking the process down.
func WithTimeout(next Remover, d time.Duration) Remover {
	return &timeoutRemover{next: next, timeout: d}
}

type result struct {
	data []byte
	err  error
}

func (t *timeoutRemover) Remove(ctx context.Context, data []byte, mimeType string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- result{err: fmt.Errorf("remover panicked: %v", rec)}
			}
		}()
		out, err := t.next.Remove(ctx, data, mimeType)
		done <- result{data: out, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("background removal aborted: %w", ctx.Err())
	case res := <-done:
		return res.data, res.err
	}
}
