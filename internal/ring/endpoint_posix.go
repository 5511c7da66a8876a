//go:build !windows

package ring

import (
	"context"
	"fmt"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// fifoEndpoint is the POSIX SegmentEndpoint: a named FIFO at
// /tmp/tsmemseg_<name><NN>.fifo per spec §6, opened O_WRONLY|O_NONBLOCK so
// AcceptReader can poll for a reader connecting instead of blocking the
// whole process on open(2).
type fifoEndpoint struct {
	path string
}

// NewFIFOEndpoint creates (or reuses) the FIFO at path with mode 0700.
func NewFIFOEndpoint(path string) (*fifoEndpoint, error) {
	if err := unix.Mkfifo(path, 0700); err != nil && err != unix.EEXIST {
		return nil, fmt.Errorf("ring: mkfifo %s: %w", path, err)
	}
	return &fifoEndpoint{path: path}, nil
}

func (e *fifoEndpoint) Destroy() error {
	err := os.Remove(e.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// AcceptReader opens the FIFO for writing in non-blocking mode, retrying
// the open every 50ms while it fails with ENXIO (no reader yet), until a
// reader has opened the other end or ctx is canceled.
func (e *fifoEndpoint) AcceptReader(ctx context.Context) (ReaderHandle, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		fd, err := unix.Open(e.path, unix.O_WRONLY|unix.O_NONBLOCK, 0)
		if err != nil {
			if err == unix.ENXIO {
				// No reader has opened the FIFO yet.
				if !sleepOrDone(ctx, 50*time.Millisecond) {
					return nil, ctx.Err()
				}
				continue
			}
			return nil, fmt.Errorf("ring: open %s: %w", e.path, err)
		}
		return &fifoWriter{fd: fd, path: e.path}, nil
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

type fifoWriter struct {
	fd   int
	path string
}

// WriteAll writes content in full, using select(2) to wait for
// write-readiness whenever write(2) returns EAGAIN, matching spec §4.F's
// "honoring EAGAIN with select/poll loops on POSIX".
func (w *fifoWriter) WriteAll(content []byte) error {
	for len(content) > 0 {
		n, err := unix.Write(w.fd, content)
		if err != nil {
			if err == unix.EAGAIN {
				if werr := w.waitWritable(); werr != nil {
					return werr
				}
				continue
			}
			if err == unix.EPIPE {
				return fmt.Errorf("ring: %s: %w", w.path, syscall.EPIPE)
			}
			return fmt.Errorf("ring: write %s: %w", w.path, err)
		}
		content = content[n:]
	}
	return nil
}

func (w *fifoWriter) waitWritable() error {
	var wfds unix.FdSet
	wfds.Bits[w.fd/64] |= 1 << (uint(w.fd) % 64)
	_, err := unix.Select(w.fd+1, nil, &wfds, nil, &unix.Timeval{Sec: 1})
	return err
}

func (w *fifoWriter) Close() error {
	return unix.Close(w.fd)
}
