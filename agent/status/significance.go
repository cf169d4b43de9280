package status

import "strings"

// keyPhrases mark the moments a call's status is worth re-engaging the model
// for. Phrase-based on purpose: the push channel delivers free text today.
var keyPhrases = []string{
	"confirmed",
	"booked",
	"total",
	"price",
	"ready",
	"declined",
	"unavailable",
	"voicemail",
	"no answer",
	"hung up",
	"failed",
}

const lengthDeltaThreshold = 40

// DefaultSignificance reports whether a pushed update differs meaningfully
// from the previous one: a key phrase that wasn't there before, or a large
// length delta. Injectable; see contract.SignificanceFn.
func DefaultSignificance(newStatus, oldStatus string) bool {
	newLower := strings.ToLower(newStatus)
	oldLower := strings.ToLower(oldStatus)
	if newLower == oldLower {
		return false
	}

	for _, phrase := range keyPhrases {
		if strings.Contains(newLower, phrase) && !strings.Contains(oldLower, phrase) {
			return true
		}
	}

	delta := len(newStatus) - len(oldStatus)
	if delta < 0 {
		delta = -delta
	}
	return delta > lengthDeltaThreshold
}
