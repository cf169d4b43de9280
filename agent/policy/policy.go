package policy

import (
	"context"
	"errors"
	"strings"
	"time"

	contractx "github.com/calldeck/calldeck/agent/contract"
	statex "github.com/calldeck/calldeck/agent/state"
)

// DefaultAction is the routing target used when a channel has no live
// preference.
const DefaultAction = "direct_dial"

const preferenceTTL = time.Hour

// Preference is the per-channel preferred routing action.
type Preference struct {
	Action string    `json:"action"`
	SetAt  time.Time `json:"set_at"`
}

// CallActionPolicy stores one routing preference per channel with a one-hour
// inactivity expiry.
type CallActionPolicy struct {
	store statex.Store
	now   func() time.Time
}

var _ contractx.ActionPolicy = (*CallActionPolicy)(nil)

func New(store statex.Store) (*CallActionPolicy, error) {
	if store == nil {
		return nil, errors.New("state store is required")
	}
	return &CallActionPolicy{
		store: store,
		now:   time.Now,
	}, nil
}

func (p *CallActionPolicy) Set(ctx context.Context, channel, action string) error {
	channel = strings.TrimSpace(channel)
	action = strings.TrimSpace(action)
	if channel == "" {
		return errors.New("channel is required")
	}
	if action == "" {
		return errors.New("action is required")
	}
	return statex.SetJSON(ctx, p.store, statex.ActionKey(channel), Preference{
		Action: action,
		SetAt:  p.now().UTC(),
	})
}

// Get returns the channel's preferred action, falling back to DefaultAction
// for unknown channels. An expired preference is evicted as a side effect.
func (p *CallActionPolicy) Get(ctx context.Context, channel string) (string, error) {
	key := statex.ActionKey(strings.TrimSpace(channel))
	pref, ok, err := statex.GetJSON[Preference](ctx, p.store, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return DefaultAction, nil
	}

	if p.now().Sub(pref.SetAt) > preferenceTTL {
		if err := p.store.Delete(ctx, key); err != nil {
			return "", err
		}
		return DefaultAction, nil
	}
	return pref.Action, nil
}
