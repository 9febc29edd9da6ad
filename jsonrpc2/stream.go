package jsonrpc2

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

const (
	headerContentLength = "Content-Length"
	headerContentType   = "Content-Type" // Optional, often utf-8
	headerSeparator     = "\r\n"
)

// Stream handles reading and writing JSON-RPC messages over an io.ReadWriter,
// framing them per the LSP base protocol (spec.md §4.1): a header block of
// "Key: Value\r\n" pairs terminated by "\r\n\r\n", followed by exactly
// Content-Length bytes of UTF-8 JSON payload.
type Stream struct {
	reader *bufio.Reader
	writer io.Writer
	source io.ReadWriter // Keep the original source
	logger *zap.Logger
}

// NewStream creates a new Stream. A nil logger disables framing diagnostics.
func NewStream(rw io.ReadWriter, logger *zap.Logger) *Stream {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stream{
		reader: bufio.NewReader(rw),
		writer: rw,
		source: rw,
		logger: logger,
	}
}

// Close closes the underlying source if it implements io.Closer.
func (s *Stream) Close() error {
	if closer, ok := s.source.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// ReadMessage reads a single JSON-RPC message from the stream. It advances
// the underlying reader only past a committed frame, so a message spanning
// multiple underlying Read calls resumes safely on the next call (the
// buffer-policy requirement of spec.md §4.1).
//
// A header block with an unparseable Content-Length does not make
// ReadMessage fail outright: it is logged, the partial frame is dropped,
// and the stream resynchronizes by discarding bytes up to and including the
// next "\r\n\r\n", then tries again — matching spec.md's resynchronization
// contract. Only a read error on the underlying source (EOF, broken pipe)
// is fatal.
func (s *Stream) ReadMessage() ([]byte, error) {
	for {
		contentLength, err := s.readHeaders()
		if err != nil {
			if _, ok := err.(*headerFormatError); ok {
				s.logger.Warn("jsonrpc2: malformed frame header, resynchronizing", zap.Error(err))
				if resyncErr := s.resync(); resyncErr != nil {
					return nil, resyncErr
				}
				continue
			}
			return nil, err
		}

		// Content-Length 0 is legal and produces an empty body (spec.md §4.1).
		jsonData := make([]byte, contentLength)
		if contentLength > 0 {
			if _, err := io.ReadFull(s.reader, jsonData); err != nil {
				return nil, fmt.Errorf("jsonrpc2: failed to read message content (expected %d bytes): %w", contentLength, err)
			}
		}
		return jsonData, nil
	}
}

// headerFormatError marks a resynchronizable framing defect, as opposed to
// a fatal I/O error on the underlying source.
type headerFormatError struct{ msg string }

func (e *headerFormatError) Error() string { return e.msg }

// readHeaders scans one header block and returns the declared Content-Length.
func (s *Stream) readHeaders() (int, error) {
	contentLength := -1
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			// EOF or other read error during header read is fatal: there is
			// no frame boundary left to resynchronize against.
			return 0, fmt.Errorf("jsonrpc2: failed to read header line: %w", err)
		}

		line = strings.TrimSuffix(line, "\n")
		line = strings.TrimSuffix(line, "\r") // tolerate a missing \r before \n

		if line == "" {
			break
		}

		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			return 0, &headerFormatError{fmt.Sprintf("malformed header line: %q", line)}
		}

		name := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1]) // tolerates leading whitespace after the colon

		if name == headerContentLength {
			length, err := strconv.Atoi(value)
			if err != nil {
				return 0, &headerFormatError{fmt.Sprintf("invalid Content-Length %q: %v", value, err)}
			}
			if length < 0 {
				return 0, &headerFormatError{fmt.Sprintf("negative Content-Length: %d", length)}
			}
			contentLength = length
		}
		// Unknown headers (including Content-Type) are ignored per spec.md §4.1.
	}

	if contentLength == -1 {
		return 0, &headerFormatError{"missing Content-Length header"}
	}
	return contentLength, nil
}

// resync discards bytes up to and including the next "\r\n\r\n" (or "\n\n"),
// so a malformed header block does not permanently desynchronize the stream.
func (s *Stream) resync() error {
	const term = "\r\n\r\n"
	matched := 0
	altMatched := 0
	for {
		b, err := s.reader.ReadByte()
		if err != nil {
			return fmt.Errorf("jsonrpc2: failed to resynchronize stream: %w", err)
		}
		if b == term[matched] {
			matched++
			if matched == len(term) {
				return nil
			}
		} else {
			matched = 0
			if b == term[0] {
				matched = 1
			}
		}
		// Tolerate bare \n\n terminators the same way readHeaders tolerates
		// a missing \r on individual lines.
		if b == '\n' {
			if altMatched == 1 {
				return nil
			}
			altMatched = 1
		} else {
			altMatched = 0
		}
	}
}

// WriteMessage writes a JSON-RPC message to the stream as one call to the
// underlying writer (spec.md §4.1: "One write per message to preserve
// boundary atomicity on byte-stream transports").
func (s *Stream) WriteMessage(msg interface{}) error {
	jsonData, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("jsonrpc2: failed to marshal message: %w", err)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s: %d%s%s", headerContentLength, len(jsonData), headerSeparator, headerSeparator)
	buf.Write(jsonData)

	if _, err := s.writer.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("jsonrpc2: failed to write message: %w", err)
	}
	return nil
}
