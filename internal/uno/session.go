package uno

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Capability identifies the class of work a session is dedicated to.
type Capability string

const (
	// CapabilityConvert is the document conversion session.
	CapabilityConvert Capability = "convert"

	// CapabilityCompare is the document comparison session.
	CapabilityCompare Capability = "compare"
)

// Session is the live connection to the worker for one capability.
// At most one session per capability exists at a time; the service
// constructs both during startup and disposes them on teardown.
type Session struct {
	capability Capability
	conn       net.Conn
	enc        *json.Encoder
	dec        *json.Decoder

	// One in-flight round trip at a time per session.
	mu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// NewSession wraps an established connection for the given capability.
func NewSession(conn net.Conn, capability Capability) *Session {
	return &Session{
		capability: capability,
		conn:       conn,
		enc:        json.NewEncoder(conn),
		dec:        json.NewDecoder(bufio.NewReader(conn)),
	}
}

// Capability returns the session's capability kind.
func (s *Session) Capability() Capability {
	return s.capability
}

// call performs a single request/response round trip. The context deadline,
// if any, is applied to the connection; a call cannot be cancelled inside
// the worker, so callers with hard latency bounds time out at a higher
// level and dispose the session.
func (s *Session) call(ctx context.Context, op string, args map[string]any) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		s.conn.SetDeadline(deadline)
		defer s.conn.SetDeadline(time.Time{})
	}

	req := request{
		ID:   uuid.New().String(),
		Op:   op,
		Args: args,
	}
	if err := s.enc.Encode(&req); err != nil {
		return nil, fmt.Errorf("bridge send %s: %w", op, err)
	}

	// Skip frames that do not belong to this request; the worker may
	// emit stale responses after a disposed-and-rebuilt session.
	for {
		var resp response
		if err := s.dec.Decode(&resp); err != nil {
			return nil, fmt.Errorf("bridge recv %s: %w", op, err)
		}
		if resp.ID != req.ID {
			continue
		}
		if !resp.OK {
			return nil, &EngineError{Op: op, Message: resp.Error}
		}
		return resp.Result, nil
	}
}

// Dispose releases the underlying connection without waiting for any
// in-flight call. It is used by the timeout recovery path so a stuck call
// cannot block worker teardown. Safe to call more than once.
func (s *Session) Dispose() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}
