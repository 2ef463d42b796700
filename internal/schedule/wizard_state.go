package schedule

// Step identifies one stop in the configuration wizard.
type Step string

const (
	StepPrompt    Step = "awaiting_prompt"
	StepRecipient Step = "awaiting_recipient"
	StepToken     Step = "awaiting_token"
	StepAmount    Step = "awaiting_amount"
	StepDate      Step = "awaiting_date"
	StepHour      Step = "awaiting_hour"
	StepMinute    Step = "awaiting_minute"
	StepRepeat    Step = "awaiting_repeat"
	StepConfirm   Step = "awaiting_confirm"
)

// stepOrder is the linear flow per action kind. Edit mode may re-enter any
// single field step directly and then jumps back to confirm.
var stepOrder = map[ActionKind][]Step{
	KindPrompt:  {StepPrompt, StepHour, StepMinute, StepRepeat, StepConfirm},
	KindPayment: {StepRecipient, StepToken, StepAmount, StepDate, StepHour, StepMinute, StepRepeat, StepConfirm},
}

// FirstStep returns the opening step of a kind's wizard.
func FirstStep(kind ActionKind) Step {
	return stepOrder[kind][0]
}

// NextStep returns the linear successor of a step, or ("", false) at the end
// of the flow or for a step the kind does not use.
func NextStep(kind ActionKind, s Step) (Step, bool) {
	order := stepOrder[kind]
	for i, cur := range order {
		if cur == s && i+1 < len(order) {
			return order[i+1], true
		}
	}
	return "", false
}

// ValidStep reports whether a step belongs to the kind's flow at all.
func ValidStep(kind ActionKind, s Step) bool {
	for _, cur := range stepOrder[kind] {
		if cur == s {
			return true
		}
	}
	return false
}

// ValidTransition checks a step move: either the linear successor, a jump
// from any field step to confirm (edit mode), or a jump from confirm back to
// a single field step (edit entry).
func ValidTransition(kind ActionKind, from, to Step) bool {
	if !ValidStep(kind, from) || !ValidStep(kind, to) {
		return false
	}
	if next, ok := NextStep(kind, from); ok && next == to {
		return true
	}
	if to == StepConfirm {
		return true
	}
	if from == StepConfirm && to != StepConfirm {
		return true
	}
	return false
}

// WizardState is one in-progress configuration session, owned exclusively by
// its creator. Optional numeric fields are pointers so "not collected yet"
// is distinguishable from zero.
type WizardState struct {
	GroupID     int64      `json:"group_id"`
	CreatorID   int64      `json:"creator_user_id"`
	CreatorName string     `json:"creator_username"`
	Kind        ActionKind `json:"kind"`
	Step        Step       `json:"step"`

	// ScheduleID is set when editing an existing record instead of creating.
	ScheduleID string `json:"schedule_id,omitempty"`

	// Prompt action fields.
	Prompt string `json:"prompt,omitempty"`

	// Payment action fields. AmountDisplay is the human amount; conversion
	// to smallest units happens at finalize using Decimals.
	RecipientName    string  `json:"recipient_username,omitempty"`
	RecipientAddress string  `json:"recipient_address,omitempty"`
	Symbol           string  `json:"symbol,omitempty"`
	TokenType        string  `json:"token_type,omitempty"`
	Decimals         int     `json:"decimals,omitempty"`
	AmountDisplay    float64 `json:"amount_display,omitempty"`
	Date             string  `json:"date,omitempty"` // YYYY-MM-DD, UTC

	HourUTC        *int         `json:"hour_utc,omitempty"`
	MinuteUTC      *int         `json:"minute_utc,omitempty"`
	Repeat         RepeatPolicy `json:"repeat,omitempty"`
	WeekMultiplier int          `json:"week_multiplier,omitempty"`
}

// Owner reports whether userID may mutate this session.
func (w *WizardState) Owner(userID int64) bool { return w.CreatorID == userID }
