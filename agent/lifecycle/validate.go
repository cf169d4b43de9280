package lifecycle

import (
	"fmt"
	"regexp"
	"strings"

	contractx "github.com/calldeck/calldeck/agent/contract"
)

// Prereqs lists the credentials a dispatch depends on. Checked before any side
// effect; the resulting message enumerates every missing item at once.
type Prereqs struct {
	TelephonyAPIKey   string `envconfig:"TELEPHONY_API_KEY" split_words:"true"`
	TelephonyCallerID string `envconfig:"TELEPHONY_CALLER_ID" split_words:"true"`
	AgentLLMAPIKey    string `envconfig:"AGENT_LLM_API_KEY" split_words:"true"`
	TTSVendor         string `envconfig:"TTS_VENDOR" split_words:"true" default:"elevenlabs"`
	ElevenLabsAPIKey  string `envconfig:"ELEVENLABS_API_KEY" split_words:"true"`
	AzureSpeechKey    string `envconfig:"AZURE_SPEECH_KEY" split_words:"true"`
	AzureSpeechRegion string `envconfig:"AZURE_SPEECH_REGION" split_words:"true"`
}

// Missing returns the human-readable names of absent prerequisites. Which
// speech-synthesis credentials count depends on the configured vendor.
func (p Prereqs) Missing() []string {
	var missing []string
	if strings.TrimSpace(p.TelephonyAPIKey) == "" {
		missing = append(missing, "telephony api key")
	}
	if strings.TrimSpace(p.TelephonyCallerID) == "" {
		missing = append(missing, "telephony caller id")
	}
	if strings.TrimSpace(p.AgentLLMAPIKey) == "" {
		missing = append(missing, "agent llm api key")
	}

	switch strings.ToLower(strings.TrimSpace(p.TTSVendor)) {
	case "azure":
		if strings.TrimSpace(p.AzureSpeechKey) == "" {
			missing = append(missing, "azure speech key")
		}
		if strings.TrimSpace(p.AzureSpeechRegion) == "" {
			missing = append(missing, "azure speech region")
		}
	default:
		if strings.TrimSpace(p.ElevenLabsAPIKey) == "" {
			missing = append(missing, "elevenlabs api key")
		}
	}
	return missing
}

// phonePattern accepts international numbers: optional +, 7 to 15 digits, no
// leading zero.
var phonePattern = regexp.MustCompile(`^\+?[1-9]\d{6,14}$`)

func validPhone(phone string) bool {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, strings.TrimSpace(phone))
	return phonePattern.MatchString(cleaned)
}

func normalizePhone(phone string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, strings.TrimSpace(phone))
}

// placeholderNames are tokens models fill in when they don't actually know the
// customer's name.
var placeholderNames = map[string]struct{}{
	"customer":  {},
	"user":      {},
	"unknown":   {},
	"n/a":       {},
	"na":        {},
	"none":      {},
	"test":      {},
	"anonymous": {},
	"name":      {},
	"john doe":  {},
	"jane doe":  {},
}

func validCustomerName(name string) bool {
	trimmed := strings.TrimSpace(name)
	if len(trimmed) < 2 {
		return false
	}
	_, placeholder := placeholderNames[strings.ToLower(trimmed)]
	return !placeholder
}

// validateCustomer checks the caller-supplied fields for one specialization.
// Failures come back as corrective messages the model can relay, so the
// conversation recovers by asking the user instead of crashing the turn.
func validateCustomer(spec contractx.Specialization, c contractx.CustomerFields) (string, bool) {
	if !validCustomerName(c.Name) {
		return "I need the customer's real name before calling — could you tell me who this is for?", false
	}

	switch spec {
	case contractx.SpecializationOrder:
		if len(c.Items) == 0 {
			return "I need at least one item to order before I can place the call.", false
		}
		mode := strings.ToLower(strings.TrimSpace(c.DeliveryMode))
		if mode == "" {
			return "Should this order be for pickup or delivery?", false
		}
		if mode == "delivery" && strings.TrimSpace(c.Address) == "" {
			return "I need a delivery address before I can place a delivery order.", false
		}
	case contractx.SpecializationReservation:
		if c.PartySize <= 0 {
			return "How many people should I book the table for?", false
		}
		if strings.TrimSpace(c.TimePreference) == "" {
			return "What time would you like the reservation for?", false
		}
	case contractx.SpecializationInquiry:
		if strings.TrimSpace(c.Topic) == "" {
			return "What should I ask the business about?", false
		}
	default:
		return fmt.Sprintf("I don't know how to handle a %q call.", spec), false
	}

	return "", true
}
