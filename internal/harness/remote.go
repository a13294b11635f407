package harness

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/readykit/internal/fault"
	"github.com/roach88/readykit/internal/report"
)

// scriptedRemote accepts submits while online unless a failure is queued.
type scriptedRemote struct {
	online func() bool
	record func(kind, detail string)

	mu       sync.Mutex
	failNext []string
	accepted []string
	attempts map[string]int
	total    int
}

func newScriptedRemote(online func() bool, record func(kind, detail string)) *scriptedRemote {
	return &scriptedRemote{online: online, record: record, attempts: make(map[string]int)}
}

const opSubmit = "submit report"

// Submit implements syncqueue.Submitter.
func (s *scriptedRemote) Submit(ctx context.Context, r report.IncidentReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	s.attempts[r.ID]++

	var err error
	switch {
	case ctx.Err() != nil:
		err = fault.Wrap(fault.KindNetwork, opSubmit, ctx.Err())
	case !s.online():
		err = fault.Wrap(fault.KindNetwork, opSubmit, errors.New("network unreachable"))
	case len(s.failNext) > 0:
		reason := s.failNext[0]
		s.failNext = s.failNext[1:]
		err = scriptedError(reason)
	}
	if err != nil {
		s.record("submit", r.ID+" "+failureLabel(err))
		return err
	}
	s.accepted = append(s.accepted, r.ID)
	s.record("submit", r.ID+" ok")
	return nil
}

// failureLabel names err by reason when it has one, else by kind.
func failureLabel(err error) string {
	if reason := fault.ReasonOf(err); reason != "" {
		return reason
	}
	return string(fault.KindOf(err))
}

func scriptedError(reason string) error {
	switch reason {
	case ReasonNetwork:
		return fault.Wrap(fault.KindNetwork, opSubmit, errors.New("connection reset"))
	case ReasonRejected:
		return fault.Wrapf(fault.KindValidation, opSubmit, fault.ReasonRejected, errors.New("HTTP 422"))
	default:
		return fault.Wrap(fault.KindUnknown, opSubmit, errors.New("HTTP 500"))
	}
}

func (s *scriptedRemote) queueFailures(reason string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n; i++ {
		s.failNext = append(s.failNext, reason)
	}
}

func (s *scriptedRemote) snapshot() (accepted []string, attempts map[string]int, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempts = make(map[string]int, len(s.attempts))
	for k, v := range s.attempts {
		attempts[k] = v
	}
	return append([]string{}, s.accepted...), attempts, s.total
}
