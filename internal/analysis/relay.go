package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"

	"surveyinsights/backend/internal/observability"
)

type flusher interface {
	Flush()
}

// Relay copies every chunk from stream to w unmodified, flushing after each
// write. It returns nil once the stream reports io.EOF and stops early when
// ctx is done. The stream is closed before returning.
func Relay(ctx context.Context, w io.Writer, stream Stream) (int64, error) {
	defer stream.Close()

	f, _ := w.(flusher)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		chunk, err := stream.Recv()
		if len(chunk) > 0 {
			n, writeErr := w.Write(chunk)
			written += int64(n)
			observability.RelayedBytes.Add(float64(n))
			if writeErr != nil {
				return written, fmt.Errorf("write chunk: %w", writeErr)
			}
			if f != nil {
				f.Flush()
			}
		}
		if errors.Is(err, io.EOF) {
			return written, nil
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return written, ctxErr
			}
			return written, fmt.Errorf("read upstream: %w", err)
		}
	}
}
