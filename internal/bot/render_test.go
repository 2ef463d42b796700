package bot

import (
	"strings"
	"testing"

	"schedbot/internal/executor"
	"schedbot/internal/schedule"
	"schedbot/pkg/tgui"
)

func TestScopeKindRoundTrip(t *testing.T) {
	t.Parallel()
	for _, kind := range []schedule.ActionKind{schedule.KindPrompt, schedule.KindPayment} {
		got, ok := kindFor(scopeFor(kind))
		if !ok || got != kind {
			t.Fatalf("round trip %s: got %s ok=%v", kind, got, ok)
		}
	}
	if _, ok := kindFor("other"); ok {
		t.Fatal("unknown scope accepted")
	}
}

func TestListLabel(t *testing.T) {
	t.Parallel()
	prompt := &schedule.Record{
		Kind:         schedule.KindPrompt,
		Prompt:       &schedule.PromptPayload{Text: "Post the morning digest with market news"},
		StartHourUTC: 9, StartMinuteUTC: 30,
		Repeat: schedule.RepeatDaily,
	}
	got := listLabel(prompt)
	if !strings.Contains(got, "09:30") || !strings.Contains(got, "Daily") {
		t.Fatalf("prompt label: %q", got)
	}

	pay := &schedule.Record{
		Kind: schedule.KindPayment,
		Payment: &schedule.PaymentPayload{
			Symbol: "APT", RecipientName: "bob", AmountSmallest: 100, Decimals: 8,
		},
		Repeat: schedule.RepeatWeekly,
	}
	got = listLabel(pay)
	if !strings.Contains(got, "APT") || !strings.Contains(got, "bob") || !strings.Contains(got, "Weekly") {
		t.Fatalf("payment label: %q", got)
	}
}

func TestDetailTextEscapesAndShowsState(t *testing.T) {
	t.Parallel()
	rec := &schedule.Record{
		Kind:         schedule.KindPrompt,
		Prompt:       &schedule.PromptPayload{Text: "alert when <price> & volume spike"},
		StartHourUTC: 7, StartMinuteUTC: 15,
		Repeat:            schedule.RepeatEvery15m,
		Active:            true,
		NextRunAt:         1760000000,
		RunCount:          4,
		CreatorName:       "alice",
		LastAttemptStatus: "failure",
		LastError:         "upstream down",
	}
	got := detailText(rec)
	if strings.Contains(got, "<price>") {
		t.Fatalf("unescaped HTML in %q", got)
	}
	for _, want := range []string{"&lt;price&gt;", "07:15 UTC", "Runs so far: 4", "upstream down", "alice"} {
		if !strings.Contains(got, want) {
			t.Fatalf("detail text %q missing %q", got, want)
		}
	}

	rec.Active = false
	if got := detailText(rec); !strings.Contains(got, "Paused") {
		t.Fatalf("paused state missing: %q", got)
	}
}

func TestPaymentReceipt(t *testing.T) {
	t.Parallel()
	rec := &schedule.Record{
		Kind:        schedule.KindPayment,
		CreatorName: "alice",
		Payment: &schedule.PaymentPayload{
			Symbol: "APT", RecipientAddress: "0xabc", Decimals: 8, AmountSmallest: 250_000_000,
		},
	}
	got := paymentReceipt(rec, &executor.Outcome{TxHash: "0xfeed"})
	for _, want := range []string{"2.5 APT", "0xabc", "0xfeed", "alice"} {
		if !strings.Contains(got, want) {
			t.Fatalf("receipt %q missing %q", got, want)
		}
	}
}

func TestKeyboardCallbackDataWithinLimit(t *testing.T) {
	t.Parallel()
	// UUID payloads are the longest the engine produces.
	id := "123e4567-e89b-12d3-a456-426614174000"
	for _, data := range []string{
		tgui.Data(scopePayment, actRunNow, id),
		tgui.Data(scopePayment, actToggle, id),
		tgui.Data(scopePrompt, actField, string(schedule.StepConfirm)),
		tgui.Data(scopePrompt, actRepeat, string(schedule.RepeatEvery15m)),
	} {
		if len(data) > tgui.MaxCallbackDataLen {
			t.Fatalf("callback data %q exceeds %d bytes", data, tgui.MaxCallbackDataLen)
		}
	}
}

func TestTextStep(t *testing.T) {
	t.Parallel()
	if !textStep(schedule.StepPrompt) || !textStep(schedule.StepAmount) {
		t.Fatal("input steps should accept text")
	}
	if textStep(schedule.StepRepeat) || textStep(schedule.StepConfirm) {
		t.Fatal("keyboard-only steps should not accept text")
	}
}

func TestHourKeyboardCoversAllHours(t *testing.T) {
	t.Parallel()
	rm := hourKeyboard(scopePrompt)
	var count int
	for _, row := range rm.InlineKeyboard {
		count += len(row)
	}
	// 24 hour buttons plus the cancel row.
	if count != 25 {
		t.Fatalf("hour keyboard has %d buttons, want 25", count)
	}
}
