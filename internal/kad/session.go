package kad

import (
	"bufio"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionState is the lifecycle state of a Session.
type SessionState int

const (
	SessionOpen SessionState = iota
	SessionReading
	SessionWriting
	SessionClosed
)

// Session is a stateful wrapper around one duplex Stream: it reads
// length-prefixed messages and delivers them to the owning node's
// dispatcher, and serializes one-shot responses back out. A session closes
// on explicit close, a decode/serialize failure, or an underlying stream
// error; closing an already-closed session is a no-op.
type Session struct {
	id     uuid.UUID
	stream Stream
	sched  Scheduler

	writeTimeout time.Duration
	deliver      func(*Session, *Message)
	onClose      func(*Session)

	mu    sync.Mutex
	state SessionState
	buf   *bufio.Reader
}

// NewSession wraps stream in a Session that delivers decoded inbound
// messages to deliver and reports its own closure to onClose so the owning
// node can drop it from its session map.
func NewSession(stream Stream, sched Scheduler, writeTimeout time.Duration, deliver func(*Session, *Message), onClose func(*Session)) *Session {
	return &Session{
		id:           uuid.New(),
		stream:       stream,
		sched:        sched,
		writeTimeout: writeTimeout,
		deliver:      deliver,
		onClose:      onClose,
		state:        SessionOpen,
		buf:          bufio.NewReader(stream),
	}
}

// ID is the session's opaque handle, used to key the owning node's session
// map by identity rather than by stream address.
func (s *Session) ID() uuid.UUID { return s.id }

func (s *Session) RemotePeer() NodeId { return s.stream.RemotePeer() }

// ReadLoop reads frames until the stream errs, a frame fails to decode, or
// the session is closed, delivering each decoded message in the order
// received. It is meant to run on its own goroutine per session.
func (s *Session) ReadLoop() {
	for {
		s.mu.Lock()
		if s.state == SessionClosed {
			s.mu.Unlock()
			return
		}
		s.state = SessionReading
		s.mu.Unlock()

		msg, err := readMessage(s.buf)
		if err != nil {
			s.Close()
			return
		}

		s.deliver(s, msg)
	}
}

// Write serializes and sends one response, observing the session's write
// timeout. On a serialize failure or write error the session closes.
func (s *Session) Write(msg *Message) error {
	s.mu.Lock()
	if s.state == SessionClosed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.state = SessionWriting
	s.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- writeMessage(s.stream, msg)
	}()

	timedOut := make(chan struct{})
	handle := s.sched.Schedule(s.writeTimeout, func() { close(timedOut) })

	select {
	case err := <-done:
		handle.Cancel()
		if err != nil {
			s.Close()
			return err
		}
		return nil
	case <-timedOut:
		s.Close()
		return fmt.Errorf("%w: write timeout", ErrTransport)
	}
}

// Close transitions the session to Closed, resets the underlying stream,
// and reports the closure exactly once. Closing an already-closed session
// is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == SessionClosed {
		s.mu.Unlock()
		return
	}
	s.state = SessionClosed
	s.mu.Unlock()

	_ = s.stream.Reset()
	if s.onClose != nil {
		s.onClose(s)
	}
}
