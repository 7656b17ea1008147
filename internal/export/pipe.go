package export

import (
	"context"
	"errors"
	"io"

	"golang.org/x/sync/errgroup"
)

// sinkError marks a failure writing to the archive.
type sinkError struct{ err error }

func (e *sinkError) Error() string { return "write archive: " + e.err.Error() }
func (e *sinkError) Unwrap() error { return e.err }

// sourceError marks a failure reading the remote file.
type sourceError struct{ err error }

func (e *sourceError) Error() string { return "read remote file: " + e.err.Error() }
func (e *sourceError) Unwrap() error { return e.err }

type chunk struct {
	buf *[]byte
	n   int
}

// pipe copies src to dst with reads and writes running concurrently over a
// bounded channel of pooled chunks. It returns the bytes written to dst.
func (e *Exporter) pipe(ctx context.Context, src io.ReadCloser, dst io.Writer) (int64, error) {
	g, gctx := errgroup.WithContext(ctx)
	chunks := make(chan chunk, e.depth)

	// Unblock a pending read once either side gives up.
	stop := context.AfterFunc(gctx, func() { _ = src.Close() })
	defer stop()

	g.Go(func() error {
		defer close(chunks)
		for {
			buf := e.pool.Get().(*[]byte)
			n, err := src.Read(*buf)
			if n > 0 {
				select {
				case chunks <- chunk{buf: buf, n: n}:
				case <-gctx.Done():
					e.pool.Put(buf)
					return gctx.Err()
				}
			} else {
				e.pool.Put(buf)
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return &sourceError{err: err}
			}
		}
	})

	var written int64
	g.Go(func() error {
		for c := range chunks {
			_, err := dst.Write((*c.buf)[:c.n])
			e.pool.Put(c.buf)
			if err != nil {
				return &sinkError{err: err}
			}
			written += int64(c.n)
		}
		return nil
	})

	err := g.Wait()
	return written, err
}
