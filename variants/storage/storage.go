package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrInvalidLocator = errors.New("invalid object locator")
	ErrObjectNotFound = errors.New("object not found")
)

// Locator names one remote object.
type Locator struct {
	Bucket string
	Key    string
}

func (l Locator) String() string {
	return l.Bucket + "/" + l.Key
}

func (l Locator) Validate() error {
	if l.Bucket == "" {
		return fmt.Errorf("%w: bucket must not be empty", ErrInvalidLocator)
	}
	if l.Key == "" {
		return fmt.Errorf("%w: key must not be empty", ErrInvalidLocator)
	}
	return nil
}

var knownSchemes = []string{"s3://", "gs://", "file://"}

// ParseLocator parses "bucket/key", optionally prefixed with s3://, gs:// or file://. The scheme
// only documents intent; the configured backend decides where the object is read from.
func ParseLocator(s string) (Locator, error) {
	trimmed := s
	for _, scheme := range knownSchemes {
		if strings.HasPrefix(trimmed, scheme) {
			trimmed = strings.TrimPrefix(trimmed, scheme)
			break
		}
	}
	if strings.Contains(trimmed, "://") {
		return Locator{}, fmt.Errorf("%w: unsupported scheme in %q", ErrInvalidLocator, s)
	}
	trimmed = strings.TrimPrefix(trimmed, "/")
	bucket, key, _ := strings.Cut(trimmed, "/")
	loc := Locator{Bucket: bucket, Key: key}
	if err := loc.Validate(); err != nil {
		return Locator{}, fmt.Errorf("parsing %q: %w", s, err)
	}
	return loc, nil
}

// TransportError reports that the remote object could not be reached or read. The whole read
// must be retried; it cannot be resumed.
type TransportError struct {
	// Op is "open" or "read".
	Op      string
	Locator Locator
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Locator, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Session is an open byte stream over one object.
type Session interface {
	// ReadChunk reads up to len(p) bytes into p. It returns 0, io.EOF once the object is
	// exhausted and a *TransportError if the underlying stream fails.
	ReadChunk(p []byte) (int, error)
	Locator() Locator
	Close() error
}

type Backend interface {
	// Open starts streaming the object from its first byte. Failures are returned as
	// *TransportError.
	Open(ctx context.Context, loc Locator) (Session, error)

	// Validate returns a list of errors if the storage backend's configuration is invalid.
	Validate() []string
}

type streamSession struct {
	body    io.ReadCloser
	loc     Locator
	pending error
}

// NewSession adapts an object body to a Session. Every backend streams through this.
func NewSession(loc Locator, body io.ReadCloser) Session {
	return &streamSession{body: body, loc: loc}
}

func (s *streamSession) ReadChunk(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		if s.pending != nil {
			return 0, s.pending
		}
		n, err := s.body.Read(p)
		if err == io.EOF {
			s.pending = io.EOF
		} else if err != nil {
			s.pending = &TransportError{Op: "read", Locator: s.loc, Err: err}
		}
		if n > 0 {
			return n, nil
		}
	}
}

func (s *streamSession) Locator() Locator {
	return s.loc
}

func (s *streamSession) Close() error {
	return s.body.Close()
}
