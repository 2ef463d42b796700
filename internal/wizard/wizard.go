// Package wizard is the step machine behind schedule configuration: it owns
// session lifecycle, input validation per step, and finalization into a
// durable schedule record. It knows nothing about Telegram surfaces; the bot
// layer renders its state.
package wizard

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"schedbot/internal/schedule"
	"schedbot/pkg/logx"
)

// Caps bound how many active schedules of each kind a group may hold.
type Caps struct {
	Prompt  int
	Payment int
}

// ErrCapReached is wrapped into the finalize error when a group is full.
var ErrCapReached = fmt.Errorf("schedule cap reached")

// Registrar arms a schedule's timer after finalize. *runner.Registrar
// satisfies it.
type Registrar interface {
	Register(id string) (string, error)
}

// Engine drives wizard sessions from first step to a persisted record.
type Engine struct {
	sessions  *schedule.WizardStore
	schedules *schedule.Store
	registrar Registrar
	log       logx.Logger

	capsMu sync.RWMutex
	caps   Caps

	now func() time.Time
}

func NewEngine(sessions *schedule.WizardStore, schedules *schedule.Store, registrar Registrar, caps Caps, log logx.Logger) *Engine {
	e := &Engine{
		sessions:  sessions,
		schedules: schedules,
		registrar: registrar,
		log:       log,
		now:       time.Now,
	}
	e.SetCaps(caps)
	return e
}

// SetCaps updates the per-group limits. Config reload uses it; existing
// records above a lowered cap are untouched, only new creations are checked.
func (e *Engine) SetCaps(caps Caps) {
	if caps.Prompt <= 0 {
		caps.Prompt = 10
	}
	if caps.Payment <= 0 {
		caps.Payment = 50
	}
	e.capsMu.Lock()
	e.caps = caps
	e.capsMu.Unlock()
}

// Start opens a fresh session, replacing any prior one for the same
// (kind, group, creator).
func (e *Engine) Start(ctx context.Context, kind schedule.ActionKind, groupID, creatorID int64, creatorName string) (*schedule.WizardState, error) {
	st := &schedule.WizardState{
		GroupID:     groupID,
		CreatorID:   creatorID,
		CreatorName: creatorName,
		Kind:        kind,
		Step:        schedule.FirstStep(kind),
	}
	if err := e.sessions.Put(ctx, st); err != nil {
		return nil, fmt.Errorf("open wizard session: %w", err)
	}
	return st, nil
}

// StartEdit opens a session pre-filled from an existing record, positioned at
// the confirm step so the creator picks which field to revise.
func (e *Engine) StartEdit(ctx context.Context, rec *schedule.Record) (*schedule.WizardState, error) {
	h, m := rec.StartHourUTC, rec.StartMinuteUTC
	st := &schedule.WizardState{
		GroupID:        rec.GroupID,
		CreatorID:      rec.CreatorID,
		CreatorName:    rec.CreatorName,
		Kind:           rec.Kind,
		Step:           schedule.StepConfirm,
		ScheduleID:     rec.ID,
		HourUTC:        &h,
		MinuteUTC:      &m,
		Repeat:         rec.Repeat,
		WeekMultiplier: rec.WeekMultiplier,
	}
	switch rec.Kind {
	case schedule.KindPrompt:
		if rec.Prompt != nil {
			st.Prompt = rec.Prompt.Text
		}
	case schedule.KindPayment:
		if p := rec.Payment; p != nil {
			st.RecipientName = p.RecipientName
			st.RecipientAddress = p.RecipientAddress
			st.Symbol = p.Symbol
			st.TokenType = p.TokenType
			st.Decimals = p.Decimals
			st.AmountDisplay = float64(p.AmountSmallest) / math.Pow10(p.Decimals)
		}
		if rec.StartAt > 0 {
			st.Date = time.Unix(rec.StartAt, 0).UTC().Format("2006-01-02")
		}
	}
	if err := e.sessions.Put(ctx, st); err != nil {
		return nil, fmt.Errorf("open edit session: %w", err)
	}
	return st, nil
}

// Get loads the creator's current session.
func (e *Engine) Get(ctx context.Context, kind schedule.ActionKind, groupID, creatorID int64) (*schedule.WizardState, bool, error) {
	return e.sessions.Get(ctx, kind, groupID, creatorID)
}

// Cancel discards a session without touching any record.
func (e *Engine) Cancel(ctx context.Context, st *schedule.WizardState) error {
	return e.sessions.Delete(ctx, st.Kind, st.GroupID, st.CreatorID)
}

// GoTo moves the session to a step, enforcing the transition rules. Used by
// the edit submenu (confirm -> field) and by the back-to-confirm jump.
func (e *Engine) GoTo(ctx context.Context, st *schedule.WizardState, to schedule.Step) error {
	if !schedule.ValidTransition(st.Kind, st.Step, to) {
		return fmt.Errorf("cannot move from %s to %s", st.Step, to)
	}
	st.Step = to
	return e.sessions.Put(ctx, st)
}

// Apply validates input for the session's current step, stores it, and
// advances: linearly when creating, back to confirm when editing. The error
// text is user-facing.
func (e *Engine) Apply(ctx context.Context, st *schedule.WizardState, input string) error {
	input = strings.TrimSpace(input)
	if err := e.applyInput(st, input); err != nil {
		return err
	}
	if st.ScheduleID != "" {
		st.Step = schedule.StepConfirm
	} else if next, ok := schedule.NextStep(st.Kind, st.Step); ok {
		st.Step = next
	} else {
		st.Step = schedule.StepConfirm
	}
	if err := e.sessions.Put(ctx, st); err != nil {
		return fmt.Errorf("save wizard session: %w", err)
	}
	return nil
}

func (e *Engine) applyInput(st *schedule.WizardState, input string) error {
	switch st.Step {
	case schedule.StepPrompt:
		if input == "" {
			return fmt.Errorf("the prompt cannot be empty")
		}
		st.Prompt = input
	case schedule.StepRecipient:
		name, addr := splitRecipient(input)
		switch {
		case name != "" && addr == "":
			return fmt.Errorf("I can't look up @%s's wallet; send the wallet address, or \"@%s <address>\" to label it", name, name)
		case addr == "":
			return fmt.Errorf("please send the recipient's wallet address")
		case strings.ContainsAny(addr, " \t"):
			return fmt.Errorf("that doesn't look like a wallet address")
		}
		st.RecipientName = name
		st.RecipientAddress = addr
	case schedule.StepToken:
		if input == "" {
			return fmt.Errorf("please pick a token")
		}
		st.TokenType = input
	case schedule.StepAmount:
		amt, err := strconv.ParseFloat(input, 64)
		if err != nil || amt <= 0 || math.IsInf(amt, 0) || math.IsNaN(amt) {
			return fmt.Errorf("amount must be a positive number, e.g. 2.5")
		}
		if amt*math.Pow10(st.Decimals) >= math.MaxInt64 {
			return fmt.Errorf("that amount is too large")
		}
		st.AmountDisplay = amt
	case schedule.StepDate:
		d, err := time.ParseInLocation("2006-01-02", input, time.UTC)
		if err != nil {
			return fmt.Errorf("date must look like 2025-07-01")
		}
		today := e.now().UTC().Truncate(24 * time.Hour)
		if d.Before(today) {
			return fmt.Errorf("the start date is already in the past")
		}
		st.Date = input
	case schedule.StepHour:
		h, err := strconv.Atoi(input)
		if err != nil || h < 0 || h > 23 {
			return fmt.Errorf("hour must be 0-23 (UTC)")
		}
		st.HourUTC = &h
	case schedule.StepMinute:
		m, err := strconv.Atoi(input)
		if err != nil || m < 0 || m > 59 {
			return fmt.Errorf("minute must be 0-59")
		}
		st.MinuteUTC = &m
	case schedule.StepRepeat:
		p, ok := schedule.ParseRepeat(input)
		if !ok {
			return fmt.Errorf("unknown repeat option")
		}
		st.Repeat = p
	default:
		return fmt.Errorf("not expecting input right now")
	}
	return nil
}

// SetToken records a token choice with its full denomination metadata.
func (e *Engine) SetToken(ctx context.Context, st *schedule.WizardState, symbol, tokenType string, decimals int) error {
	if st.Step != schedule.StepToken && st.Step != schedule.StepConfirm {
		return fmt.Errorf("not expecting a token right now")
	}
	st.Symbol = symbol
	st.TokenType = tokenType
	st.Decimals = decimals
	if st.ScheduleID != "" {
		st.Step = schedule.StepConfirm
	} else {
		st.Step, _ = schedule.NextStep(st.Kind, schedule.StepToken)
	}
	return e.sessions.Put(ctx, st)
}

// SetWeekMultiplier records the weekly cadence multiplier (1, 2 or 4).
func (e *Engine) SetWeekMultiplier(ctx context.Context, st *schedule.WizardState, weeks int) error {
	if weeks != 1 && weeks != 2 && weeks != 4 {
		return fmt.Errorf("weekly cadence must be 1, 2 or 4 weeks")
	}
	st.Repeat = schedule.RepeatWeekly
	st.WeekMultiplier = weeks
	st.Step = schedule.StepConfirm
	return e.sessions.Put(ctx, st)
}

// Complete reports whether every field the kind requires has been collected.
func Complete(st *schedule.WizardState) error {
	if st.HourUTC == nil || st.MinuteUTC == nil {
		return fmt.Errorf("time of day is not set yet")
	}
	if st.Repeat == "" {
		return fmt.Errorf("repeat cadence is not set yet")
	}
	switch st.Kind {
	case schedule.KindPrompt:
		if st.Prompt == "" {
			return fmt.Errorf("the prompt is not set yet")
		}
	case schedule.KindPayment:
		if st.RecipientAddress == "" {
			return fmt.Errorf("the recipient's wallet address is not set yet")
		}
		if st.TokenType == "" {
			return fmt.Errorf("the token is not set yet")
		}
		if st.AmountDisplay <= 0 {
			return fmt.Errorf("the amount is not set yet")
		}
	}
	return nil
}

// Finalize turns a completed session into a persisted, armed schedule and
// discards the session. Editing preserves the record's identity and
// bookkeeping; only the configured fields change.
func (e *Engine) Finalize(ctx context.Context, st *schedule.WizardState) (*schedule.Record, error) {
	if err := Complete(st); err != nil {
		return nil, err
	}

	now := e.now().UTC()
	var rec *schedule.Record
	if st.ScheduleID != "" {
		existing, ok, err := e.schedules.Get(ctx, st.ScheduleID)
		if err != nil {
			return nil, fmt.Errorf("load schedule for edit: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("the schedule no longer exists")
		}
		rec = existing
	} else {
		if err := e.checkCap(ctx, st); err != nil {
			return nil, err
		}
		rec = &schedule.Record{
			ID:              uuid.NewString(),
			GroupID:         st.GroupID,
			CreatorID:       st.CreatorID,
			CreatorName:     st.CreatorName,
			Kind:            st.Kind,
			Active:          true,
			CreatedAt:       now.Unix(),
			NotifyOnSuccess: true,
			NotifyOnFailure: true,
		}
	}

	rec.StartHourUTC = *st.HourUTC
	rec.StartMinuteUTC = *st.MinuteUTC
	rec.Repeat = st.Repeat
	rec.WeekMultiplier = st.WeekMultiplier

	switch st.Kind {
	case schedule.KindPrompt:
		if rec.Prompt == nil {
			rec.Prompt = &schedule.PromptPayload{}
		}
		rec.Prompt.Text = st.Prompt
	case schedule.KindPayment:
		rec.Payment = &schedule.PaymentPayload{
			RecipientName:    st.RecipientName,
			RecipientAddress: st.RecipientAddress,
			Symbol:           st.Symbol,
			TokenType:        st.TokenType,
			Decimals:         st.Decimals,
			AmountSmallest:   toSmallestUnits(st.AmountDisplay, st.Decimals),
		}
		rec.StartAt = e.startAt(st)
	}

	if rec.Kind == schedule.KindPayment && rec.StartAt > now.Unix() {
		rec.NextRunAt = rec.StartAt
	} else {
		rec.NextRunAt = schedule.NextRun(now, rec.Repeat, rec.Anchor()).Unix()
	}

	if err := rec.Validate(); err != nil {
		return nil, err
	}
	if err := e.schedules.Put(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist schedule: %w", err)
	}

	handle, err := e.registrar.Register(rec.ID)
	if err != nil {
		return nil, fmt.Errorf("arm schedule timer: %w", err)
	}
	if rec.TimerHandle != handle {
		rec.TimerHandle = handle
		if err := e.schedules.Put(ctx, rec); err != nil {
			return nil, fmt.Errorf("persist timer handle: %w", err)
		}
	}

	if err := e.sessions.Delete(ctx, st.Kind, st.GroupID, st.CreatorID); err != nil {
		e.log.Warn("discard wizard session", logx.Err(err))
	}
	e.log.Info("schedule configured",
		logx.String("id", rec.ID),
		logx.String("kind", string(rec.Kind)),
		logx.Int64("group", rec.GroupID),
		logx.Bool("edit", st.ScheduleID != ""))
	return rec, nil
}

func (e *Engine) checkCap(ctx context.Context, st *schedule.WizardState) error {
	e.capsMu.RLock()
	caps := e.caps
	e.capsMu.RUnlock()
	limit := caps.Prompt
	noun := "scheduled prompts"
	if st.Kind == schedule.KindPayment {
		limit = caps.Payment
		noun = "scheduled payments"
	}
	n, err := e.schedules.CountActive(ctx, st.GroupID, st.Kind)
	if err != nil {
		return fmt.Errorf("count active schedules: %w", err)
	}
	if n >= limit {
		return fmt.Errorf("%w: this group already has %d %s (max %d)", ErrCapReached, n, noun, limit)
	}
	return nil
}

// startAt resolves the payment's explicit start date plus the chosen time of
// day into an absolute instant. Empty date means anchor-based start.
func (e *Engine) startAt(st *schedule.WizardState) int64 {
	if st.Date == "" {
		return 0
	}
	d, err := time.ParseInLocation("2006-01-02", st.Date, time.UTC)
	if err != nil {
		return 0
	}
	return time.Date(d.Year(), d.Month(), d.Day(), *st.HourUTC, *st.MinuteUTC, 0, 0, time.UTC).Unix()
}

// splitRecipient parses recipient input. A bare address yields ("", addr),
// "@name <address>" yields both, and a bare "@name" yields (name, "").
func splitRecipient(input string) (name, addr string) {
	if !strings.HasPrefix(input, "@") {
		return "", input
	}
	fields := strings.Fields(input)
	name = strings.TrimPrefix(fields[0], "@")
	if len(fields) > 1 {
		addr = strings.Join(fields[1:], " ")
	}
	return name, addr
}

// toSmallestUnits converts a display amount to integer smallest units,
// rounding to the nearest unit to absorb float representation error and
// saturating on overflow. The amount step bounds input well below this.
func toSmallestUnits(amount float64, decimals int) uint64 {
	v := math.Round(amount * math.Pow10(decimals))
	if v < 0 {
		return 0
	}
	if v >= math.MaxUint64 {
		return math.MaxUint64
	}
	return uint64(v)
}

// Summarize renders the session for the confirmation step.
func Summarize(st *schedule.WizardState) string {
	var b strings.Builder
	switch st.Kind {
	case schedule.KindPrompt:
		b.WriteString("Prompt: ")
		b.WriteString(st.Prompt)
	case schedule.KindPayment:
		b.WriteString("Pay ")
		b.WriteString(strconv.FormatFloat(st.AmountDisplay, 'f', -1, 64))
		if st.Symbol != "" {
			b.WriteString(" " + st.Symbol)
		}
		b.WriteString(" to ")
		if st.RecipientName != "" {
			b.WriteString("@" + st.RecipientName)
		} else {
			b.WriteString(st.RecipientAddress)
		}
		if st.Date != "" {
			b.WriteString("\nStarting: " + st.Date)
		}
	}
	if st.HourUTC != nil && st.MinuteUTC != nil {
		fmt.Fprintf(&b, "\nTime: %02d:%02d UTC", *st.HourUTC, *st.MinuteUTC)
	}
	if st.Repeat != "" {
		b.WriteString("\nRepeat: " + st.Repeat.Label())
		if st.Repeat == schedule.RepeatWeekly && st.WeekMultiplier > 1 {
			fmt.Fprintf(&b, " (every %d weeks)", st.WeekMultiplier)
		}
	}
	return b.String()
}
