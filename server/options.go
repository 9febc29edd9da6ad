package server

import (
	"io"
	"os"
	"time"

	"go.uber.org/zap"
)

// Option defines a function signature for configuring the Server.
type Option func(*options)

// options holds the configurable settings for a Server.
type options struct {
	stream io.ReadWriter // Default: os.Stdin/os.Stdout
	logger *zap.Logger   // Default: a production zap logger writing to stderr

	maxRequestTimeout      time.Duration // spec.md §6 maximum_request_timeout; 0 = unset
	supportsContentModified bool         // spec.md §6 supports_content_modified; default true
	concurrency            int64         // spec.md §6 concurrency; 0 = unbounded
	outputQueueLen         int
}

// defaultOptions returns the default server configuration.
func defaultOptions() *options {
	logger, err := zap.NewProduction()
	if err != nil {
		logger = zap.NewNop()
	}
	return &options{
		stream:                   ReadWriter{os.Stdin, os.Stdout},
		logger:                   logger,
		supportsContentModified:  true,
		outputQueueLen:           64,
	}
}

// WithStream sets the input/output stream for the server connection.
func WithStream(rw io.ReadWriter) Option {
	return func(o *options) {
		o.stream = rw
	}
}

// WithLogger sets the structured logger used by the server and its
// subcomponents.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMaxRequestTimeout bounds how long any single request may run before
// the invoker cancels it with RequestCancelled (spec.md §4.4 source 3). The
// zero value (the default) disables the timeout.
func WithMaxRequestTimeout(d time.Duration) Option {
	return func(o *options) {
		o.maxRequestTimeout = d
	}
}

// WithContentModifiedSupport toggles automatic cancellation of in-flight
// requests when a textDocument/didChange or textDocument/didClose
// notification targets the same document (spec.md §4.4 source 2, §6).
// Enabled by default.
func WithContentModifiedSupport(enabled bool) Option {
	return func(o *options) {
		o.supportsContentModified = enabled
	}
}

// WithConcurrency sets the global cap on simultaneously running request
// handlers (spec.md §6 concurrency). 0 (the default) means unbounded.
func WithConcurrency(n int64) Option {
	return func(o *options) {
		o.concurrency = n
	}
}

// WithOutputQueueLen sets how many outbound frames the Output Handler may
// buffer before Send blocks the caller.
func WithOutputQueueLen(n int) Option {
	return func(o *options) {
		o.outputQueueLen = n
	}
}

// ReadWriter combines an io.Reader and io.Writer into an io.ReadWriter.
// Useful for using os.Stdin and os.Stdout together.
type ReadWriter struct {
	io.Reader
	io.Writer
}

// Close attempts to close the underlying streams if they support it.
// Primarily useful if the stream is something like a net.Conn.
// os.Stdin/Stdout don't typically need closing in this context.
func (rw ReadWriter) Close() error {
	var errR, errW error
	cR, okR := rw.Reader.(io.Closer)
	cW, okW := rw.Writer.(io.Closer)

	if okR {
		errR = cR.Close()
	}

	// Close the writer only if it's a closer AND it's different from the reader's closer
	// (or if the reader wasn't a closer).
	if okW && (!okR || cR != cW) {
		errW = cW.Close()
	}

	if errR != nil {
		return errR // Prioritize reader error
	}
	return errW // Return writer error if reader error was nil
}
