package lifecycle

import (
	"sync"
	"time"
)

type Phase string

const (
	PhaseIdle            Phase = "IDLE"
	PhaseGuarded         Phase = "GUARDED"
	PhaseProvisioned     Phase = "PROVISIONED"
	PhaseCalling         Phase = "CALLING"
	PhaseActive          Phase = "ACTIVE"
	PhaseCallFailed      Phase = "CALL_FAILED"
	PhaseProvisionFailed Phase = "PROVISION_FAILED"
)

// Attempt is the supervised record of one dispatch attempt. Its terminal state
// stays queryable after the attempt finishes, so a failure partway through is
// never just a swallowed log line.
type Attempt struct {
	Channel   string
	Phase     Phase
	AgentID   string
	Reason    string
	StartedAt time.Time
	UpdatedAt time.Time
}

// Supervisor tracks the latest dispatch attempt per channel.
type Supervisor struct {
	mu       sync.Mutex
	attempts map[string]*Attempt
	now      func() time.Time
}

func NewSupervisor() *Supervisor {
	return &Supervisor{
		attempts: make(map[string]*Attempt, 4),
		now:      time.Now,
	}
}

func (s *Supervisor) begin(channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	s.attempts[channel] = &Attempt{
		Channel:   channel,
		Phase:     PhaseIdle,
		StartedAt: now,
		UpdatedAt: now,
	}
}

func (s *Supervisor) transition(channel string, phase Phase, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[channel]
	if !ok {
		return
	}
	a.Phase = phase
	a.Reason = reason
	a.UpdatedAt = s.now().UTC()
}

func (s *Supervisor) setAgent(channel, agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.attempts[channel]; ok {
		a.AgentID = agentID
	}
}

// Attempt returns a copy of the channel's latest dispatch attempt.
func (s *Supervisor) Attempt(channel string) (Attempt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[channel]
	if !ok {
		return Attempt{}, false
	}
	return *a, true
}
