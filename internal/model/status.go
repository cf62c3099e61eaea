package model

import "strings"

type Status string

const (
	StatusInitializing Status = "initializing"
	StatusPending      Status = "pending"
	StatusSuccess      Status = "success"
	StatusFailed       Status = "failed"
	StatusAbandoned    Status = "abandoned"
	StatusUnknown      Status = "unknown"
)

// NormalizeStatus maps a processor-reported status onto the canonical set.
// Anything unrecognised becomes StatusUnknown.
func NormalizeStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "initializing":
		return StatusInitializing
	case "pending", "ongoing", "processing", "queued", "open", "unpaid", "send_otp", "send_pin", "send_birthday", "send_phone", "send_address":
		return StatusPending
	case "success", "successful", "succeeded", "paid", "complete", "completed", "no_payment_required":
		return StatusSuccess
	case "failed", "failure", "declined", "reversed", "payment_failed":
		return StatusFailed
	case "abandoned", "canceled", "cancelled", "expired":
		return StatusAbandoned
	default:
		return StatusUnknown
	}
}

func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusAbandoned
}

// CanTransition reports whether a row in s may be moved to next.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusInitializing:
		return next == StatusPending || next.IsTerminal()
	case StatusPending:
		return next.IsTerminal()
	default:
		return false
	}
}

// Outcome describes what a status write actually did. None of these are
// errors; callers log them and answer 200.
type Outcome string

const (
	OutcomeProcessed        Outcome = "processed"
	OutcomeRefreshed        Outcome = "refreshed"
	OutcomeAlreadyProcessed Outcome = "already_processed"
	OutcomeLostRace         Outcome = "lost_race"
	OutcomeNoChange         Outcome = "no_change"
	OutcomeIgnored          Outcome = "ignored"
)

type TransitionResult struct {
	Outcome     Outcome      `json:"status"`
	OldStatus   Status       `json:"old_status,omitempty"`
	NewStatus   Status       `json:"new_status,omitempty"`
	Transaction *Transaction `json:"-"`
}
