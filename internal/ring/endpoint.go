package ring

import "context"

// SegmentEndpoint abstracts the platform-specific delivery mechanism for
// one ring slot, per spec §9's "create/accept_reader/write_all/destroy"
// split. The POSIX implementation backs it with a FIFO; a Windows
// implementation would back it with two named-pipe instances, which this
// module does not implement (see DESIGN.md).
type SegmentEndpoint interface {
	// AcceptReader blocks until a reader opens the endpoint for reading,
	// or ctx is done. It returns a io.Writer-like handle valid for one
	// write_all/close_reader cycle.
	AcceptReader(ctx context.Context) (ReaderHandle, error)
	// Destroy removes the endpoint (POSIX unlink).
	Destroy() error
}

// ReaderHandle is a single connected reader session.
type ReaderHandle interface {
	// WriteAll writes content in full, looping on EAGAIN/partial writes.
	// It returns an error (typically EPIPE) if the reader disconnects
	// mid-write.
	WriteAll(content []byte) error
	// Close disconnects this reader session.
	Close() error
}
