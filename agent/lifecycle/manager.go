package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	contractx "github.com/calldeck/calldeck/agent/contract"
	promptx "github.com/calldeck/calldeck/agent/prompt"
	statex "github.com/calldeck/calldeck/agent/state"
)

// Registrar records a successfully dispatched session for later status
// lookups. Implemented by the status tracker.
type Registrar interface {
	Register(ctx context.Context, session contractx.AgentSession) error
}

type guardRecord struct {
	Held  bool      `json:"held"`
	Since time.Time `json:"since"`
}

// Manager provisions ephemeral calling agents and bridges them onto outbound
// calls, holding at most one active dispatch per channel. The guard record is
// set before the first external call and cleared on every terminal path that
// is not a live call; a live call keeps it held until an explicit stop.
type Manager struct {
	store       statex.Store
	directory   contractx.PhoneDirectory
	policy      contractx.ActionPolicy
	telephony   contractx.Telephony
	provisioner contractx.Provisioner
	issuer      contractx.CredentialIssuer
	registrar   Registrar
	prereqs     Prereqs
	scripts     promptx.ScriptSet
	supervisor  *Supervisor
	now         func() time.Time
	newID       func() string
}

func New(
	store statex.Store,
	dir contractx.PhoneDirectory,
	pol contractx.ActionPolicy,
	tel contractx.Telephony,
	prov contractx.Provisioner,
	issuer contractx.CredentialIssuer,
	registrar Registrar,
	prereqs Prereqs,
) (*Manager, error) {
	if store == nil {
		return nil, errors.New("state store is required")
	}
	if dir == nil {
		return nil, errors.New("phone directory is required")
	}
	if pol == nil {
		return nil, errors.New("call action policy is required")
	}
	if tel == nil {
		return nil, errors.New("telephony bridge is required")
	}
	if prov == nil {
		return nil, errors.New("agent provisioner is required")
	}
	if issuer == nil {
		return nil, errors.New("credential issuer is required")
	}
	if registrar == nil {
		return nil, errors.New("session registrar is required")
	}

	return &Manager{
		store:       store,
		directory:   dir,
		policy:      pol,
		telephony:   tel,
		provisioner: prov,
		issuer:      issuer,
		registrar:   registrar,
		prereqs:     prereqs,
		scripts:     promptx.LoadScriptSet(),
		supervisor:  NewSupervisor(),
		now:         time.Now,
		newID:       uuid.NewString,
	}, nil
}

// Attempt exposes the supervised state of the channel's latest dispatch.
func (m *Manager) Attempt(channel string) (Attempt, bool) {
	return m.supervisor.Attempt(channel)
}

// DispatchAgent validates the request, provisions an ephemeral agent, and
// places the outbound call. It returns as soon as the call is bridged; the
// call's own duration is decoupled from this return. The returned string is
// always something the orchestrating model can relay to the user.
func (m *Manager) DispatchAgent(ctx context.Context, req contractx.DispatchRequest) (string, error) {
	channel := strings.TrimSpace(req.Channel)
	if channel == "" {
		return "I can't start a call without a conversation channel.", fmt.Errorf("%w: channel is required", contractx.ErrValidation)
	}

	// 1. Configuration prerequisites, before any side effect.
	if missing := m.prereqs.Missing(); len(missing) > 0 {
		msg := "I can't place calls right now — missing configuration: " + strings.Join(missing, ", ") + "."
		return msg, fmt.Errorf("%w: %s", contractx.ErrConfigIncomplete, strings.Join(missing, ", "))
	}

	// 2. Caller-supplied fields.
	if msg, ok := validateCustomer(req.Specialization, req.Customer); !ok {
		return msg, fmt.Errorf("%w: %s", contractx.ErrValidation, msg)
	}

	// 3. Destination number, resolved from the directory when needed.
	phone, msg, err := m.resolvePhone(ctx, req)
	if err != nil {
		return msg, err
	}

	// 4. Per-channel mutual exclusion.
	acquired, err := m.acquireGuard(ctx, channel)
	if err != nil {
		return "Something went wrong checking for an active call — please try again.", err
	}
	if !acquired {
		return "A call for this conversation is already in progress. Ask me for its status, or stop it first.",
			fmt.Errorf("%w: channel=%s", contractx.ErrDispatchActive, channel)
	}

	m.supervisor.begin(channel)
	m.supervisor.transition(channel, PhaseGuarded, "")

	// Any exit below that does not reach a live call must release the guard;
	// a held guard with no call behind it would block the channel forever.
	active := false
	defer func() {
		if !active {
			m.releaseGuard(ctx, channel)
		}
	}()

	// 5. Session identity, scoped credential, remote provisioning.
	sessionID := m.newID()
	token, err := m.issuer.Issue(sessionID)
	if err != nil {
		m.supervisor.transition(channel, PhaseProvisionFailed, err.Error())
		return "I couldn't prepare credentials for the calling agent — please try again.",
			fmt.Errorf("%w: issue credential: %v", contractx.ErrProvisioning, err)
	}

	script, err := m.scripts.Script(req.Specialization, req.Customer)
	if err != nil {
		m.supervisor.transition(channel, PhaseProvisionFailed, err.Error())
		return "I don't have a call script for that kind of request.",
			fmt.Errorf("%w: %v", contractx.ErrValidation, err)
	}

	join, err := m.provisioner.Join(ctx, contractx.JoinRequest{
		SessionID:      sessionID,
		Token:          token,
		Specialization: req.Specialization,
		Script:         script,
		OpeningLine:    m.scripts.OpeningLine(req.Specialization, req.Customer),
	})
	if err != nil {
		m.supervisor.transition(channel, PhaseProvisionFailed, err.Error())
		log.Warn().Err(err).Str("channel", channel).Msg("agent provisioning failed")
		return "I couldn't set up the calling agent — the provisioning service didn't respond. Please try again in a moment.",
			fmt.Errorf("%w: %v", contractx.ErrProvisioning, err)
	}
	m.supervisor.setAgent(channel, join.AgentID)
	m.supervisor.transition(channel, PhaseProvisioned, "")

	session := contractx.AgentSession{
		AgentID:        join.AgentID,
		Specialization: req.Specialization,
		Channel:        channel,
		UserID:         req.UserID,
		CreatedAt:      m.now().UTC(),
	}
	if err := statex.SetJSON(ctx, m.store, statex.SessionKey(channel), session); err != nil {
		m.supervisor.transition(channel, PhaseProvisionFailed, err.Error())
		return "I couldn't record the calling agent session — please try again.",
			fmt.Errorf("%w: save session: %v", contractx.ErrProvisioning, err)
	}

	// 6. Routing preference, then the call itself.
	action, err := m.policy.Get(ctx, channel)
	if err != nil {
		log.Warn().Err(err).Str("channel", channel).Msg("call action lookup failed, using direct dial")
		action = ""
	}
	destination := routeDestination(action, phone)

	m.supervisor.transition(channel, PhaseCalling, "")
	result, err := m.telephony.Place(ctx, req.AppID, sessionID, destination)
	if err != nil {
		result = contractx.CallResult{OK: false, ReasonCode: contractx.ReasonUnknownFailure, Detail: err.Error()}
	}
	if !result.OK {
		m.supervisor.transition(channel, PhaseCallFailed, result.ReasonCode)
		log.Warn().
			Str("channel", channel).
			Str("agent_id", join.AgentID).
			Str("reason", result.ReasonCode).
			Msg("outbound call placement failed")
		// The agent exists even though the call didn't connect; tell the user
		// so they can dial manually, and leave the channel retryable.
		msg := fmt.Sprintf(
			"I set up a calling agent (id %s) but couldn't connect the call (%s). You can dial %s yourself, or ask me to retry.",
			join.AgentID, result.ReasonCode, phone,
		)
		return msg, nil
	}

	// 7. Live call: register tracking and return immediately.
	if err := m.registrar.Register(ctx, session); err != nil {
		log.Warn().Err(err).Str("channel", channel).Msg("status registration failed")
	}
	active = true
	m.supervisor.transition(channel, PhaseActive, "")

	target := strings.TrimSpace(req.Customer.TargetName)
	if target == "" {
		target = "the business"
	}
	return fmt.Sprintf(
		"On it — I've dispatched a calling agent to %s at %s. The call is underway; ask me for status anytime.",
		target, phone,
	), nil
}

func (m *Manager) resolvePhone(ctx context.Context, req contractx.DispatchRequest) (string, string, error) {
	phone := strings.TrimSpace(req.Phone)
	if phone != contractx.PhoneAuto && validPhone(phone) {
		return normalizePhone(phone), "", nil
	}

	target := strings.TrimSpace(req.Customer.TargetName)
	if target == "" {
		msg := "I don't know which business to call — please search for it first."
		return "", msg, fmt.Errorf("%w: no target name for phone resolution", contractx.ErrValidation)
	}

	resolved, ok, err := m.directory.Resolve(ctx, req.UserID, target)
	if err != nil {
		return "", "I couldn't look up the phone number — please try again.", err
	}
	if !ok {
		msg := fmt.Sprintf("I don't have a phone number for %s yet — please search for the business first.", target)
		return "", msg, fmt.Errorf("%w: no directory entry for %q", contractx.ErrValidation, target)
	}
	return resolved, "", nil
}

func (m *Manager) acquireGuard(ctx context.Context, channel string) (bool, error) {
	key := statex.GuardKey(channel)
	guard, ok, err := statex.GetJSON[guardRecord](ctx, m.store, key)
	if err != nil {
		return false, err
	}
	if ok && guard.Held {
		return false, nil
	}
	if err := statex.SetJSON(ctx, m.store, key, guardRecord{Held: true, Since: m.now().UTC()}); err != nil {
		return false, err
	}
	return true, nil
}

func (m *Manager) releaseGuard(ctx context.Context, channel string) {
	if err := m.store.Delete(ctx, statex.GuardKey(channel)); err != nil {
		log.Error().Err(err).Str("channel", channel).Msg("guard release failed")
	}
}

// routeDestination applies the channel's routing preference. Direct dial sends
// the bare number; any other action becomes a routing prefix the bridge
// understands.
func routeDestination(action, phone string) string {
	action = strings.TrimSpace(action)
	if action == "" || action == "direct_dial" {
		return phone
	}
	return action + ":" + phone
}
