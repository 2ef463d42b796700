// Package schedule holds the durable data model of the engine: repeat
// policies, schedule records, in-progress wizard sessions, and the pure
// next-run computation. It has no transport or execution dependencies.
package schedule

import "fmt"

// RepeatPolicy is the closed set of cadences a schedule can run on.
// The string values double as callback payloads and storage encoding.
type RepeatPolicy string

const (
	RepeatNone     RepeatPolicy = "none"
	RepeatEvery5m  RepeatPolicy = "5m"
	RepeatEvery15m RepeatPolicy = "15m"
	RepeatEvery30m RepeatPolicy = "30m"
	RepeatEvery45m RepeatPolicy = "45m"
	RepeatEvery1h  RepeatPolicy = "1h"
	RepeatEvery3h  RepeatPolicy = "3h"
	RepeatEvery6h  RepeatPolicy = "6h"
	RepeatEvery12h RepeatPolicy = "12h"
	RepeatDaily    RepeatPolicy = "1d"
	RepeatWeekly   RepeatPolicy = "1w"
	RepeatMonthly  RepeatPolicy = "1mo"
)

// ParseRepeat maps a callback payload to a policy.
func ParseRepeat(s string) (RepeatPolicy, bool) {
	p := RepeatPolicy(s)
	switch p {
	case RepeatNone, RepeatEvery5m, RepeatEvery15m, RepeatEvery30m, RepeatEvery45m,
		RepeatEvery1h, RepeatEvery3h, RepeatEvery6h, RepeatEvery12h,
		RepeatDaily, RepeatWeekly, RepeatMonthly:
		return p, true
	}
	return "", false
}

// MinuteStep returns (N, true) for the Every-N-minutes policies.
func (p RepeatPolicy) MinuteStep() (int, bool) {
	switch p {
	case RepeatEvery5m:
		return 5, true
	case RepeatEvery15m:
		return 15, true
	case RepeatEvery30m:
		return 30, true
	case RepeatEvery45m:
		return 45, true
	}
	return 0, false
}

// HourStep returns (N, true) for the Every-N-hours policies.
func (p RepeatPolicy) HourStep() (int, bool) {
	switch p {
	case RepeatEvery1h:
		return 1, true
	case RepeatEvery3h:
		return 3, true
	case RepeatEvery6h:
		return 6, true
	case RepeatEvery12h:
		return 12, true
	}
	return 0, false
}

// Label returns the human-readable cadence name shown in keyboards and
// summaries.
func (p RepeatPolicy) Label() string {
	switch p {
	case RepeatNone:
		return "No repeat"
	case RepeatEvery5m:
		return "Every 5 min"
	case RepeatEvery15m:
		return "Every 15 min"
	case RepeatEvery30m:
		return "Every 30 min"
	case RepeatEvery45m:
		return "Every 45 min"
	case RepeatEvery1h:
		return "Every 1 hour"
	case RepeatEvery3h:
		return "Every 3 hours"
	case RepeatEvery6h:
		return "Every 6 hours"
	case RepeatEvery12h:
		return "Every 12 hours"
	case RepeatDaily:
		return "Daily"
	case RepeatWeekly:
		return "Weekly"
	case RepeatMonthly:
		return "Monthly"
	default:
		return string(p)
	}
}

// ActionKind tags what a schedule does when it fires.
type ActionKind string

const (
	KindPrompt  ActionKind = "prompt"
	KindPayment ActionKind = "payment"
)

// PromptPayload is the action payload of a broadcast schedule.
type PromptPayload struct {
	Text string `json:"text"`
	// ConversationID carries AI context across runs of the same schedule.
	ConversationID string `json:"conversation_id,omitempty"`
}

// PaymentPayload is the action payload of a recurring payment schedule.
// Amount is denominated in the token's smallest units.
type PaymentPayload struct {
	RecipientName    string `json:"recipient_username"`
	RecipientAddress string `json:"recipient_address"`
	Symbol           string `json:"symbol"`
	TokenType        string `json:"token_type"`
	Decimals         int    `json:"decimals"`
	AmountSmallest   uint64 `json:"amount_smallest_units"`
}

// Record is the durable, engine-owned representation of one configured
// recurring action. ID is immutable; everything else is read-modify-write.
//
// Time fields are unix seconds in UTC. Zero means unset.
type Record struct {
	ID          string     `json:"id"`
	GroupID     int64      `json:"group_id"`
	CreatorID   int64      `json:"creator_user_id"`
	CreatorName string     `json:"creator_username"`
	Kind        ActionKind `json:"kind"`

	Prompt  *PromptPayload  `json:"prompt,omitempty"`
	Payment *PaymentPayload `json:"payment,omitempty"`

	StartHourUTC   int          `json:"start_hour_utc"`
	StartMinuteUTC int          `json:"start_minute_utc"`
	StartAt        int64        `json:"start_at,omitempty"` // optional absolute first run
	Repeat         RepeatPolicy `json:"repeat"`
	WeekMultiplier int          `json:"week_multiplier,omitempty"` // weekly only; 0 means 1

	Active            bool   `json:"active"`
	CreatedAt         int64  `json:"created_at"`
	LastRunAt         int64  `json:"last_run_at,omitempty"`
	NextRunAt         int64  `json:"next_run_at,omitempty"`
	RunCount          uint64 `json:"run_count"`
	LockedUntil       int64  `json:"locked_until,omitempty"`
	TimerHandle       string `json:"timer_handle,omitempty"`
	LastError         string `json:"last_error,omitempty"`
	LastAttemptStatus string `json:"last_attempt_status,omitempty"`
	NotifyOnSuccess   bool   `json:"notify_on_success"`
	NotifyOnFailure   bool   `json:"notify_on_failure"`
}

// Anchor returns the record's configured start instant parameters.
func (r *Record) Anchor() Anchor {
	return Anchor{
		Hour:           r.StartHourUTC,
		Minute:         r.StartMinuteUTC,
		WeekMultiplier: r.WeekMultiplier,
	}
}

// Validate checks the invariants a record must satisfy before persisting.
func (r *Record) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("record id is empty")
	}
	if r.GroupID == 0 || r.CreatorID == 0 {
		return fmt.Errorf("record %s: group and creator are required", r.ID)
	}
	if _, ok := ParseRepeat(string(r.Repeat)); !ok {
		return fmt.Errorf("record %s: invalid repeat policy %q", r.ID, r.Repeat)
	}
	if r.StartHourUTC < 0 || r.StartHourUTC > 23 {
		return fmt.Errorf("record %s: hour %d out of range", r.ID, r.StartHourUTC)
	}
	if r.StartMinuteUTC < 0 || r.StartMinuteUTC > 59 {
		return fmt.Errorf("record %s: minute %d out of range", r.ID, r.StartMinuteUTC)
	}
	switch r.Kind {
	case KindPrompt:
		if r.Prompt == nil || r.Prompt.Text == "" {
			return fmt.Errorf("record %s: prompt payload is empty", r.ID)
		}
	case KindPayment:
		p := r.Payment
		if p == nil {
			return fmt.Errorf("record %s: payment payload is missing", r.ID)
		}
		if p.RecipientAddress == "" {
			return fmt.Errorf("record %s: recipient address is empty", r.ID)
		}
		if p.TokenType == "" {
			return fmt.Errorf("record %s: token type is empty", r.ID)
		}
		if p.AmountSmallest == 0 {
			return fmt.Errorf("record %s: amount must be positive", r.ID)
		}
	default:
		return fmt.Errorf("record %s: unknown action kind %q", r.ID, r.Kind)
	}
	return nil
}
