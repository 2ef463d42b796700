package wizard

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"schedbot/internal/schedule"
	"schedbot/internal/storage"
	"schedbot/pkg/logx"
)

type fakeRegistrar struct {
	registered []string
}

func (f *fakeRegistrar) Register(id string) (string, error) {
	f.registered = append(f.registered, id)
	return fmt.Sprintf("h%d", len(f.registered)), nil
}

func testEngine(t *testing.T, caps Caps) (*Engine, *schedule.Store, *fakeRegistrar) {
	t.Helper()
	db, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "test.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	schedules := schedule.NewStore(db)
	reg := &fakeRegistrar{}
	return NewEngine(schedule.NewWizardStore(db), schedules, reg, caps, logx.Nop()), schedules, reg
}

func TestPromptWizardFullFlow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	eng, schedules, reg := testEngine(t, Caps{})

	st, err := eng.Start(ctx, schedule.KindPrompt, -100, 42, "alice")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if st.Step != schedule.StepPrompt {
		t.Fatalf("first step = %s", st.Step)
	}

	steps := []string{"Post the daily digest", "9", "30", "1d"}
	for _, input := range steps {
		if err := eng.Apply(ctx, st, input); err != nil {
			t.Fatalf("Apply(%q): %v", input, err)
		}
	}
	if st.Step != schedule.StepConfirm {
		t.Fatalf("step after inputs = %s", st.Step)
	}

	rec, err := eng.Finalize(ctx, st)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if rec.ID == "" || !rec.Active || rec.Kind != schedule.KindPrompt {
		t.Fatalf("record = %+v", rec)
	}
	if rec.StartHourUTC != 9 || rec.StartMinuteUTC != 30 || rec.Repeat != schedule.RepeatDaily {
		t.Fatalf("timing lost: %+v", rec)
	}
	if rec.Prompt.Text != "Post the daily digest" {
		t.Fatalf("prompt lost: %+v", rec.Prompt)
	}
	if rec.NextRunAt <= 0 {
		t.Fatal("next run not seeded")
	}
	if rec.TimerHandle == "" || len(reg.registered) != 1 {
		t.Fatalf("timer not armed: %+v", rec)
	}

	// Session is gone after finalize.
	if _, ok, _ := eng.Get(ctx, schedule.KindPrompt, -100, 42); ok {
		t.Fatal("session survived finalize")
	}
	if got, _, _ := schedules.Get(ctx, rec.ID); got == nil {
		t.Fatal("record not persisted")
	}
}

func TestPaymentWizardAmountConversion(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	eng, _, _ := testEngine(t, Caps{})

	st, err := eng.Start(ctx, schedule.KindPayment, -100, 42, "alice")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := eng.Apply(ctx, st, "0xabc"); err != nil {
		t.Fatalf("recipient: %v", err)
	}
	if err := eng.SetToken(ctx, st, "APT", "0x1::aptos_coin::AptosCoin", 8); err != nil {
		t.Fatalf("token: %v", err)
	}
	if st.Step != schedule.StepAmount {
		t.Fatalf("step after token = %s", st.Step)
	}
	tomorrow := time.Now().UTC().AddDate(0, 0, 1).Format("2006-01-02")
	for _, input := range []string{"2.5", tomorrow, "12", "0", "1w"} {
		if err := eng.Apply(ctx, st, input); err != nil {
			t.Fatalf("Apply(%q): %v", input, err)
		}
	}

	rec, err := eng.Finalize(ctx, st)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if rec.Payment.AmountSmallest != 250_000_000 {
		t.Fatalf("smallest units = %d, want 250000000", rec.Payment.AmountSmallest)
	}
	if rec.StartAt == 0 || rec.NextRunAt != rec.StartAt {
		t.Fatalf("future start not used as first run: start=%d next=%d", rec.StartAt, rec.NextRunAt)
	}
}

func TestRecipientRequiresAddress(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	eng, _, _ := testEngine(t, Caps{})

	st, err := eng.Start(ctx, schedule.KindPayment, -100, 42, "alice")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	// A bare @username cannot be resolved to a wallet; it must be rejected
	// here, not at finalize where the session would be stuck.
	if err := eng.Apply(ctx, st, "@bob"); err == nil {
		t.Fatal("bare @username accepted")
	}
	if st.Step != schedule.StepRecipient {
		t.Fatalf("step advanced past rejected recipient: %s", st.Step)
	}
	if err := eng.Apply(ctx, st, "some words"); err == nil {
		t.Fatal("multi-word non-address accepted")
	}

	if err := eng.Apply(ctx, st, "@bob 0xabc123"); err != nil {
		t.Fatalf("labelled address rejected: %v", err)
	}
	if st.RecipientName != "bob" || st.RecipientAddress != "0xabc123" {
		t.Fatalf("recipient = %q / %q", st.RecipientName, st.RecipientAddress)
	}
	if err := eng.SetToken(ctx, st, "APT", "0x1::aptos_coin::AptosCoin", 8); err != nil {
		t.Fatalf("token: %v", err)
	}
	tomorrow := time.Now().UTC().AddDate(0, 0, 1).Format("2006-01-02")
	for _, input := range []string{"1", tomorrow, "12", "0", "1d"} {
		if err := eng.Apply(ctx, st, input); err != nil {
			t.Fatalf("Apply(%q): %v", input, err)
		}
	}
	rec, err := eng.Finalize(ctx, st)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if rec.Payment.RecipientAddress != "0xabc123" || rec.Payment.RecipientName != "bob" {
		t.Fatalf("payload = %+v", rec.Payment)
	}
}

func TestAmountRejectsOverflow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	eng, _, _ := testEngine(t, Caps{})

	st, _ := eng.Start(ctx, schedule.KindPayment, -100, 42, "alice")
	if err := eng.Apply(ctx, st, "0xabc"); err != nil {
		t.Fatalf("recipient: %v", err)
	}
	if err := eng.SetToken(ctx, st, "APT", "0x1::aptos_coin::AptosCoin", 8); err != nil {
		t.Fatalf("token: %v", err)
	}
	for _, bad := range []string{"1e30", "99999999999999999999"} {
		if err := eng.Apply(ctx, st, bad); err == nil {
			t.Fatalf("amount %q accepted", bad)
		}
	}
	if st.Step != schedule.StepAmount {
		t.Fatalf("step advanced past rejected amount: %s", st.Step)
	}
	if err := eng.Apply(ctx, st, "2.5"); err != nil {
		t.Fatalf("sane amount rejected: %v", err)
	}
}

func TestToSmallestUnits(t *testing.T) {
	t.Parallel()
	tests := []struct {
		amount   float64
		decimals int
		want     uint64
	}{
		{2.5, 8, 250_000_000},
		{0.1, 8, 10_000_000},
		{1, 0, 1},
		{-1, 8, 0},
		{1e30, 8, math.MaxUint64},
	}
	for _, tt := range tests {
		if got := toSmallestUnits(tt.amount, tt.decimals); got != tt.want {
			t.Fatalf("toSmallestUnits(%v, %d) = %d, want %d", tt.amount, tt.decimals, got, tt.want)
		}
	}
}

func TestApplyRejectsBadInput(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	eng, _, _ := testEngine(t, Caps{})

	st, _ := eng.Start(ctx, schedule.KindPrompt, -100, 42, "alice")
	if err := eng.Apply(ctx, st, "   "); err == nil {
		t.Fatal("empty prompt accepted")
	}
	_ = eng.Apply(ctx, st, "hello")
	for _, bad := range []string{"24", "-1", "nine"} {
		if err := eng.Apply(ctx, st, bad); err == nil {
			t.Fatalf("hour %q accepted", bad)
		}
	}
	if st.Step != schedule.StepHour {
		t.Fatalf("step advanced past rejected input: %s", st.Step)
	}
	_ = eng.Apply(ctx, st, "9")
	if err := eng.Apply(ctx, st, "60"); err == nil {
		t.Fatal("minute 60 accepted")
	}
	_ = eng.Apply(ctx, st, "0")
	if err := eng.Apply(ctx, st, "fortnightly"); err == nil {
		t.Fatal("unknown repeat accepted")
	}
}

func TestCapEnforcement(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	eng, schedules, _ := testEngine(t, Caps{Prompt: 2, Payment: 50})

	build := func() error {
		st, err := eng.Start(ctx, schedule.KindPrompt, -100, 42, "alice")
		if err != nil {
			return err
		}
		for _, input := range []string{"digest", "9", "0", "1d"} {
			if err := eng.Apply(ctx, st, input); err != nil {
				return err
			}
		}
		_, err = eng.Finalize(ctx, st)
		return err
	}
	if err := build(); err != nil {
		t.Fatalf("first: %v", err)
	}
	if err := build(); err != nil {
		t.Fatalf("second: %v", err)
	}
	err := build()
	if !errors.Is(err, ErrCapReached) {
		t.Fatalf("third should hit cap, got %v", err)
	}
	n, _ := schedules.CountActive(ctx, -100, schedule.KindPrompt)
	if n != 2 {
		t.Fatalf("active count = %d, want exactly the cap", n)
	}
}

func TestEditPreservesUntouchedFields(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	eng, schedules, _ := testEngine(t, Caps{})

	st, _ := eng.Start(ctx, schedule.KindPrompt, -100, 42, "alice")
	for _, input := range []string{"original prompt", "9", "30", "1d"} {
		if err := eng.Apply(ctx, st, input); err != nil {
			t.Fatalf("Apply(%q): %v", input, err)
		}
	}
	rec, err := eng.Finalize(ctx, st)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	// Simulate accumulated bookkeeping.
	rec.RunCount = 7
	rec.LastRunAt = 1700000000
	rec.Prompt.ConversationID = "conv-1"
	if err := schedules.Put(ctx, rec); err != nil {
		t.Fatalf("Put: %v", err)
	}

	edit, err := eng.StartEdit(ctx, rec)
	if err != nil {
		t.Fatalf("StartEdit: %v", err)
	}
	if edit.Step != schedule.StepConfirm || edit.ScheduleID != rec.ID {
		t.Fatalf("edit session = %+v", edit)
	}
	if err := eng.GoTo(ctx, edit, schedule.StepHour); err != nil {
		t.Fatalf("GoTo hour: %v", err)
	}
	if err := eng.Apply(ctx, edit, "15"); err != nil {
		t.Fatalf("Apply hour: %v", err)
	}
	if edit.Step != schedule.StepConfirm {
		t.Fatalf("edit did not jump back to confirm: %s", edit.Step)
	}

	updated, err := eng.Finalize(ctx, edit)
	if err != nil {
		t.Fatalf("Finalize edit: %v", err)
	}
	if updated.ID != rec.ID {
		t.Fatal("edit changed the record id")
	}
	if updated.StartHourUTC != 15 {
		t.Fatalf("hour not updated: %d", updated.StartHourUTC)
	}
	if updated.StartMinuteUTC != 30 || updated.Repeat != schedule.RepeatDaily {
		t.Fatalf("untouched timing changed: %+v", updated)
	}
	if updated.Prompt.Text != "original prompt" || updated.Prompt.ConversationID != "conv-1" {
		t.Fatalf("untouched payload changed: %+v", updated.Prompt)
	}
	if updated.RunCount != 7 || updated.LastRunAt != 1700000000 || updated.CreatedAt != rec.CreatedAt {
		t.Fatalf("bookkeeping lost on edit: %+v", updated)
	}
}

func TestFinalizeIncomplete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	eng, _, _ := testEngine(t, Caps{})

	st, _ := eng.Start(ctx, schedule.KindPrompt, -100, 42, "alice")
	_ = eng.Apply(ctx, st, "hello")
	if _, err := eng.Finalize(ctx, st); err == nil {
		t.Fatal("finalize accepted incomplete session")
	}
}

func TestSummarize(t *testing.T) {
	t.Parallel()
	h, m := 9, 30
	s := Summarize(&schedule.WizardState{
		Kind: schedule.KindPrompt, Prompt: "daily digest",
		HourUTC: &h, MinuteUTC: &m, Repeat: schedule.RepeatDaily,
	})
	for _, want := range []string{"daily digest", "09:30 UTC", "Daily"} {
		if !strings.Contains(s, want) {
			t.Fatalf("summary %q missing %q", s, want)
		}
	}

	p := Summarize(&schedule.WizardState{
		Kind: schedule.KindPayment, AmountDisplay: 2.5, Symbol: "APT",
		RecipientName: "bob", Date: "2026-09-01",
		HourUTC: &h, MinuteUTC: &m, Repeat: schedule.RepeatWeekly, WeekMultiplier: 2,
	})
	for _, want := range []string{"2.5 APT", "@bob", "2026-09-01", "every 2 weeks"} {
		if !strings.Contains(p, want) {
			t.Fatalf("summary %q missing %q", p, want)
		}
	}
}
