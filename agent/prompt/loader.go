package prompt

import (
	_ "embed"
	"fmt"
	"strconv"
	"strings"

	contractx "github.com/calldeck/calldeck/agent/contract"
)

var (
	//go:embed template/order.txt
	orderRaw string

	//go:embed template/reservation.txt
	reservationRaw string

	//go:embed template/inquiry.txt
	inquiryRaw string
)

// ScriptSet holds the loaded agent script templates.
type ScriptSet struct {
	Order       string
	Reservation string
	Inquiry     string
}

// LoadScriptSet returns the embedded templates with surrounding whitespace
// trimmed. Safe to call concurrently.
func LoadScriptSet() ScriptSet {
	return ScriptSet{
		Order:       strings.TrimSpace(orderRaw),
		Reservation: strings.TrimSpace(reservationRaw),
		Inquiry:     strings.TrimSpace(inquiryRaw),
	}
}

// Script renders the specialization's call script from the customer fields.
func (s ScriptSet) Script(spec contractx.Specialization, c contractx.CustomerFields) (string, error) {
	var raw string
	switch spec {
	case contractx.SpecializationOrder:
		raw = s.Order
	case contractx.SpecializationReservation:
		raw = s.Reservation
	case contractx.SpecializationInquiry:
		raw = s.Inquiry
	default:
		return "", fmt.Errorf("no script template for specialization=%s", spec)
	}

	replacer := strings.NewReplacer(
		"{business_name}", orFallback(c.TargetName, "the business"),
		"{customer_name}", c.Name,
		"{items}", strings.Join(c.Items, ", "),
		"{delivery_mode}", orFallback(c.DeliveryMode, "pickup"),
		"{address}", orFallback(c.Address, "not applicable"),
		"{party_size}", strconv.Itoa(c.PartySize),
		"{time_preference}", c.TimePreference,
		"{topic}", c.Topic,
	)
	return replacer.Replace(raw), nil
}

// OpeningLine renders the first sentence the agent speaks once the call is
// answered.
func (s ScriptSet) OpeningLine(spec contractx.Specialization, c contractx.CustomerFields) string {
	switch spec {
	case contractx.SpecializationOrder:
		return fmt.Sprintf("Hi, I'd like to place an order for %s.", c.Name)
	case contractx.SpecializationReservation:
		return fmt.Sprintf("Hi, I'd like to book a table for %d under the name %s.", c.PartySize, c.Name)
	default:
		return fmt.Sprintf("Hi, I'm calling on behalf of %s with a quick question.", c.Name)
	}
}

func orFallback(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
