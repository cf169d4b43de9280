package status

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/calldeck/calldeck/agent/contract"
	statex "github.com/calldeck/calldeck/agent/state"
)

const maxContextUpdates = 5

// PollingSession is the per-dispatch tracking record. Refresh is pull-based
// only: the timer slot exists in the tracker but is never armed.
type PollingSession struct {
	Channel    string `json:"channel"`
	AgentID    string `json:"agent_id"`
	PollCount  int    `json:"poll_count"`
	LastStatus string `json:"last_status"`
	Unchanged  int    `json:"unchanged"`
}

// ContextEntry caches pushed status updates for a channel, preferred over a
// live history fetch when present.
type ContextEntry struct {
	Channel        string                   `json:"channel"`
	AgentID        string                   `json:"agent_id"`
	Specialization contractx.Specialization `json:"specialization"`
	LatestStatus   string                   `json:"latest_status"`
	Updates        []contractx.StatusUpdate `json:"updates"`
}

// Tracker keeps status bookkeeping for dispatched call agents: on-demand
// lookups against the remote history API, cached pushed updates, and the
// stop path that releases the channel's dispatch guard.
type Tracker struct {
	store       statex.Store
	provisioner contractx.Provisioner
	significant contractx.SignificanceFn
	now         func() time.Time

	mu     sync.Mutex
	timers map[string]*time.Timer
}

type Option func(*Tracker)

// WithSignificance swaps the update-significance heuristic.
func WithSignificance(fn contractx.SignificanceFn) Option {
	return func(t *Tracker) {
		if fn != nil {
			t.significant = fn
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

func New(store statex.Store, provisioner contractx.Provisioner, opts ...Option) (*Tracker, error) {
	if store == nil {
		return nil, errors.New("state store is required")
	}
	if provisioner == nil {
		return nil, errors.New("agent provisioner is required")
	}

	t := &Tracker{
		store:       store,
		provisioner: provisioner,
		significant: DefaultSignificance,
		now:         time.Now,
		timers:      make(map[string]*time.Timer, 4),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t, nil
}

// Register starts tracking a freshly dispatched session.
func (t *Tracker) Register(ctx context.Context, session contractx.AgentSession) error {
	if strings.TrimSpace(session.AgentID) == "" {
		return errors.New("agent id is required")
	}
	if strings.TrimSpace(session.Channel) == "" {
		return errors.New("channel is required")
	}

	return statex.SetJSON(ctx, t.store, statex.PollKey(session.Channel, session.AgentID), PollingSession{
		Channel: session.Channel,
		AgentID: session.AgentID,
	})
}

// Latest returns a human-readable status for the channel's call agent. Cached
// pushed context wins over a live fetch. Remote failures come back as
// descriptive strings, never as errors past this boundary.
func (t *Tracker) Latest(ctx context.Context, channel, agentID, userID string) (string, error) {
	channel = strings.TrimSpace(channel)

	if entry, ok, err := statex.GetJSON[ContextEntry](ctx, t.store, statex.ContextKey(channel)); err == nil && ok {
		return formatContextEntry(entry), nil
	} else if err != nil {
		return "", err
	}

	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		session, ok, err := statex.GetJSON[contractx.AgentSession](ctx, t.store, statex.SessionKey(channel))
		if err != nil {
			return "", err
		}
		if !ok || (userID != "" && session.UserID != userID) {
			return "There's no active call agent for this conversation.", nil
		}
		agentID = session.AgentID
	}

	history, err := t.provisioner.History(ctx, agentID)
	if err != nil {
		log.Warn().Err(err).Str("agent_id", agentID).Msg("status fetch failed")
		return "I couldn't reach the call agent to check on the call — please try again in a moment.", nil
	}

	t.recordPoll(ctx, channel, agentID, history.Status)
	return formatHistory(agentID, history), nil
}

// Push stores an externally delivered status update and reports whether it is
// significant enough to re-engage the model.
func (t *Tracker) Push(ctx context.Context, channel, agentID string, kind contractx.UpdateKind, status string) (bool, error) {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return false, errors.New("channel is required")
	}

	key := statex.ContextKey(channel)
	entry, ok, err := statex.GetJSON[ContextEntry](ctx, t.store, key)
	if err != nil {
		return false, err
	}
	if !ok {
		entry = &ContextEntry{Channel: channel, AgentID: agentID}
	}

	previous := entry.LatestStatus
	entry.AgentID = agentID
	entry.LatestStatus = status
	entry.Updates = append(entry.Updates, contractx.StatusUpdate{
		Timestamp: t.now().UTC(),
		Status:    status,
		Kind:      kind,
	})
	if len(entry.Updates) > maxContextUpdates {
		entry.Updates = entry.Updates[len(entry.Updates)-maxContextUpdates:]
	}

	if err := statex.SetJSON(ctx, t.store, key, entry); err != nil {
		return false, err
	}

	return t.significant(status, previous), nil
}

// Stop ends local tracking for the channel's call agent and releases the
// dispatch guard so a new dispatch becomes possible. A call already bridged
// is not cancelled; only bookkeeping stops.
func (t *Tracker) Stop(ctx context.Context, channel, agentID, reason string) (string, error) {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return "", errors.New("channel is required")
	}

	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		if session, ok, err := statex.GetJSON[contractx.AgentSession](ctx, t.store, statex.SessionKey(channel)); err != nil {
			return "", err
		} else if ok {
			agentID = session.AgentID
		}
	}

	if agentID != "" {
		t.clearTimer(statex.PollKey(channel, agentID))
		if err := t.store.Delete(ctx, statex.PollKey(channel, agentID)); err != nil {
			return "", err
		}
	} else {
		// No session record; sweep any stray polling records for the channel.
		keys, err := t.store.List(ctx, statex.PollPrefix(channel))
		if err != nil {
			return "", err
		}
		for _, key := range keys {
			t.clearTimer(key)
			if err := t.store.Delete(ctx, key); err != nil {
				return "", err
			}
		}
	}

	if err := t.store.Delete(ctx, statex.ContextKey(channel)); err != nil {
		return "", err
	}
	if err := t.store.Delete(ctx, statex.SessionKey(channel)); err != nil {
		return "", err
	}
	if err := t.store.Delete(ctx, statex.GuardKey(channel)); err != nil {
		return "", err
	}

	if strings.TrimSpace(reason) == "" {
		reason = "requested"
	}
	return fmt.Sprintf("Stopped tracking the call agent for this conversation (reason: %s). You can start a new call now.", reason), nil
}

func (t *Tracker) recordPoll(ctx context.Context, channel, agentID, latest string) {
	key := statex.PollKey(channel, agentID)
	poll, ok, err := statex.GetJSON[PollingSession](ctx, t.store, key)
	if err != nil || !ok {
		return
	}

	poll.PollCount++
	if poll.LastStatus == latest {
		poll.Unchanged++
	} else {
		poll.Unchanged = 0
	}
	poll.LastStatus = latest

	if err := statex.SetJSON(ctx, t.store, key, poll); err != nil {
		log.Warn().Err(err).Str("channel", channel).Msg("poll bookkeeping update failed")
	}
}

func (t *Tracker) clearTimer(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if timer, ok := t.timers[key]; ok {
		timer.Stop()
		delete(t.timers, key)
	}
}

func formatContextEntry(entry *ContextEntry) string {
	if len(entry.Updates) == 0 {
		return fmt.Sprintf("The call is still in progress — latest update: %s", entry.LatestStatus)
	}
	last := entry.Updates[len(entry.Updates)-1]
	switch last.Kind {
	case contractx.UpdateKindCompleted:
		return fmt.Sprintf(
			"The call has completed. Outcome: %s. Only state prices or times the business confirmed — never fill in unconfirmed details. No further monitoring is needed.",
			last.Status,
		)
	case contractx.UpdateKindFailed:
		return fmt.Sprintf(
			"The call did not succeed: %s. Don't state any prices or times as confirmed. No further monitoring is needed.",
			last.Status,
		)
	default:
		return fmt.Sprintf("The call is still in progress — latest update: %s", last.Status)
	}
}

func formatHistory(agentID string, history contractx.HistoryResponse) string {
	lastLine := ""
	for i := len(history.Contents) - 1; i >= 0; i-- {
		if strings.TrimSpace(history.Contents[i].Content) != "" {
			lastLine = strings.TrimSpace(history.Contents[i].Content)
			break
		}
	}

	if strings.EqualFold(history.Status, "RUNNING") {
		if lastLine == "" {
			return fmt.Sprintf("The call (agent %s) is still in progress — no transcript yet.", agentID)
		}
		return fmt.Sprintf("The call (agent %s) is still in progress. Most recent exchange: %q", agentID, lastLine)
	}

	if lastLine == "" {
		return fmt.Sprintf("The call (agent %s) has ended with status %s.", agentID, history.Status)
	}
	return fmt.Sprintf("The call (agent %s) has ended with status %s. Final exchange: %q", agentID, history.Status, lastLine)
}
