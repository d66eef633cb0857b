package stream

import (
	"context"
	"io"
	"net/http"
)

// Session is the foreground consumer loop: it dequeues events, writes their
// encoded frames to the transport and flushes after each one. On early
// client departure it cancels the background task and waits for the queue
// to close before returning, so no background work outlives the handler.
type Session struct {
	w       io.Writer
	flusher http.Flusher
}

// NewSession creates a session over an SSE-capable response writer.
func NewSession(w io.Writer, flusher http.Flusher) *Session {
	return &Session{w: w, flusher: flusher}
}

// Run drains events until the queue closes or ctx is done. cancel must stop
// the producer feeding events; calling it more than once is harmless.
func (s *Session) Run(ctx context.Context, cancel context.CancelFunc, events <-chan Event) {
	defer func() {
		cancel()
		// Await producer quiescence: the driver closes the channel as its
		// final act, so draining to closure proves it has stopped.
		for range events {
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if _, err := s.w.Write(Encode(ev)); err != nil {
				return
			}
			s.flusher.Flush()
		}
	}
}
