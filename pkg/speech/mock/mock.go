// Package mock provides a scripted speech.Source for tests.
package mock

import (
	"context"

	"github.com/skawahara/agrivoice/pkg/speech"
)

// Compile-time assertion that Source satisfies the speech.Source interface.
var _ speech.Source = (*Source)(nil)

// Event is one scripted recognition event. Exactly one field should be set.
type Event struct {
	// Fragment is delivered via Handler.OnFragment when non-nil.
	Fragment *speech.Fragment

	// Error is delivered via Handler.OnError when non-empty.
	Error speech.ErrorCode
}

// Source replays a fixed script of events to its handler when started.
// Events are delivered synchronously from Start, which makes test assertions
// straightforward: by the time Start returns, every event has been handled.
type Source struct {
	// Handler receives the scripted events.
	Handler speech.Handler

	// Script is the ordered list of events to replay.
	Script []Event

	// StartErr, when non-nil, is returned from Start without delivering
	// any events. Use speech.ErrUnsupported to simulate a host without
	// recognition capability.
	StartErr error

	started bool
}

// Start delivers OnStarted, replays the script, and leaves the session open
// until Stop is called.
func (s *Source) Start(ctx context.Context) error {
	if s.StartErr != nil {
		return s.StartErr
	}
	s.started = true
	s.Handler.OnStarted()
	for _, ev := range s.Script {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch {
		case ev.Fragment != nil:
			s.Handler.OnFragment(*ev.Fragment)
		case ev.Error != "":
			s.Handler.OnError(ev.Error)
		}
	}
	return nil
}

// Stop delivers OnStopped if a session was started.
func (s *Source) Stop() error {
	if s.started {
		s.started = false
		s.Handler.OnStopped()
	}
	return nil
}
