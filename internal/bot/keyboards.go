package bot

import (
	"fmt"
	"strconv"

	tele "gopkg.in/telebot.v4"

	"schedbot/internal/schedule"
	"schedbot/pkg/tgui"
)

// Callback scopes. Prompt and payment wizards share actions but live in
// separate scopes so the handler knows which session to load.
const (
	scopePrompt  = "sched"
	scopePayment = "schedpay"
)

// Callback actions.
const (
	actHour    = "hour"
	actMinute  = "min"
	actRepeat  = "rep"
	actWeeks   = "week"
	actToken   = "tok"
	actConfirm = "ok"
	actCancel  = "cancel"
	actEdit    = "edit"
	actField   = "field"
	actToggle  = "toggle"
	actDelete  = "del"
	actRunNow  = "runnow"
	actNotify  = "notif"
	actOpen    = "open"
	actList    = "list"
	actClose   = "close"
	actRetry   = "retry"
	actPause   = "pause"
)

func scopeFor(kind schedule.ActionKind) string {
	if kind == schedule.KindPayment {
		return scopePayment
	}
	return scopePrompt
}

func kindFor(scope string) (schedule.ActionKind, bool) {
	switch scope {
	case scopePrompt:
		return schedule.KindPrompt, true
	case scopePayment:
		return schedule.KindPayment, true
	}
	return "", false
}

// hourKeyboard is a 6-wide grid of 0-23 plus a cancel row.
func hourKeyboard(scope string) *tele.ReplyMarkup {
	btns := make([]tele.Btn, 0, 24)
	for h := 0; h < 24; h++ {
		btns = append(btns, tgui.Btn(fmt.Sprintf("%02d", h), tgui.Data(scope, actHour, strconv.Itoa(h))))
	}
	rm := tgui.Grid(6, btns)
	appendCancelRow(rm, scope)
	return rm
}

// minuteKeyboard offers 5-minute steps; exact minutes arrive as text.
func minuteKeyboard(scope string) *tele.ReplyMarkup {
	btns := make([]tele.Btn, 0, 12)
	for m := 0; m < 60; m += 5 {
		btns = append(btns, tgui.Btn(fmt.Sprintf(":%02d", m), tgui.Data(scope, actMinute, strconv.Itoa(m))))
	}
	rm := tgui.Grid(6, btns)
	appendCancelRow(rm, scope)
	return rm
}

var repeatRows = [][]schedule.RepeatPolicy{
	{schedule.RepeatNone},
	{schedule.RepeatEvery5m, schedule.RepeatEvery15m, schedule.RepeatEvery30m, schedule.RepeatEvery45m},
	{schedule.RepeatEvery1h, schedule.RepeatEvery3h, schedule.RepeatEvery6h, schedule.RepeatEvery12h},
	{schedule.RepeatDaily, schedule.RepeatWeekly, schedule.RepeatMonthly},
}

func repeatKeyboard(scope string) *tele.ReplyMarkup {
	kb := tgui.NewInline()
	for _, row := range repeatRows {
		btns := make([]tele.Btn, 0, len(row))
		for _, p := range row {
			btns = append(btns, tgui.Btn(p.Label(), tgui.Data(scope, actRepeat, string(p))))
		}
		kb.Row(btns...)
	}
	kb.Row(tgui.Btn("Cancel", tgui.Data(scope, actCancel, "")))
	return kb.Markup()
}

// weeklyKeyboard picks the weekly multiplier. Payments only.
func weeklyKeyboard(scope string) *tele.ReplyMarkup {
	return tgui.NewInline().
		Row(
			tgui.Btn("Every week", tgui.Data(scope, actWeeks, "1")),
			tgui.Btn("Every 2 weeks", tgui.Data(scope, actWeeks, "2")),
			tgui.Btn("Every 4 weeks", tgui.Data(scope, actWeeks, "4")),
		).
		Row(tgui.Btn("Cancel", tgui.Data(scope, actCancel, ""))).
		Markup()
}

// tokenOption is a curated token the keyboard offers directly. Anything else
// is typed as a full on-chain type.
type tokenOption struct {
	Symbol   string
	Type     string
	Decimals int
}

var tokenOptions = []tokenOption{
	{Symbol: "APT", Type: "0x1::aptos_coin::AptosCoin", Decimals: 8},
}

func tokenKeyboard(scope string) *tele.ReplyMarkup {
	kb := tgui.NewInline()
	for i, t := range tokenOptions {
		kb.Row(tgui.Btn(t.Symbol, tgui.Data(scope, actToken, strconv.Itoa(i))))
	}
	kb.Row(tgui.Btn("Cancel", tgui.Data(scope, actCancel, "")))
	return kb.Markup()
}

func confirmKeyboard(scope string) *tele.ReplyMarkup {
	return tgui.NewInline().
		Row(
			tgui.Btn("✅ Confirm", tgui.Data(scope, actConfirm, "")),
			tgui.Btn("✏️ Edit", tgui.Data(scope, actEdit, "")),
		).
		Row(tgui.Btn("Cancel", tgui.Data(scope, actCancel, ""))).
		Markup()
}

// editKeyboard lists the revisable fields for the kind.
func editKeyboard(kind schedule.ActionKind) *tele.ReplyMarkup {
	scope := scopeFor(kind)
	kb := tgui.NewInline()
	if kind == schedule.KindPrompt {
		kb.Row(tgui.Btn("Prompt", tgui.Data(scope, actField, string(schedule.StepPrompt))))
	} else {
		kb.Row(
			tgui.Btn("Recipient", tgui.Data(scope, actField, string(schedule.StepRecipient))),
			tgui.Btn("Token", tgui.Data(scope, actField, string(schedule.StepToken))),
		)
		kb.Row(
			tgui.Btn("Amount", tgui.Data(scope, actField, string(schedule.StepAmount))),
			tgui.Btn("Date", tgui.Data(scope, actField, string(schedule.StepDate))),
		)
	}
	kb.Row(
		tgui.Btn("Hour", tgui.Data(scope, actField, string(schedule.StepHour))),
		tgui.Btn("Minute", tgui.Data(scope, actField, string(schedule.StepMinute))),
		tgui.Btn("Repeat", tgui.Data(scope, actField, string(schedule.StepRepeat))),
	)
	kb.Row(tgui.Btn("« Back", tgui.Data(scope, actField, string(schedule.StepConfirm))))
	return kb.Markup()
}

// listKeyboard shows one row per schedule plus a close row.
func listKeyboard(kind schedule.ActionKind, recs []*schedule.Record) *tele.ReplyMarkup {
	scope := scopeFor(kind)
	kb := tgui.NewInline()
	for _, rec := range recs {
		kb.Row(tgui.Btn(listLabel(rec), tgui.Data(scope, actOpen, rec.ID)))
	}
	kb.Row(tgui.Btn("Close", tgui.Data(scope, actClose, "")))
	return kb.Markup()
}

// detailKeyboard is the per-schedule management panel.
func detailKeyboard(rec *schedule.Record) *tele.ReplyMarkup {
	scope := scopeFor(rec.Kind)
	toggle := "⏸ Pause"
	if !rec.Active {
		toggle = "▶️ Resume"
	}
	return tgui.NewInline().
		Row(
			tgui.Btn(toggle, tgui.Data(scope, actToggle, rec.ID)),
			tgui.Btn("▶ Run now", tgui.Data(scope, actRunNow, rec.ID)),
		).
		Row(
			tgui.Btn("✏️ Edit", tgui.Data(scope, actEdit, rec.ID)),
			tgui.Btn("🔔 Alerts", tgui.Data(scope, actNotify, rec.ID)),
		).
		Row(
			tgui.Btn("🗑 Delete", tgui.Data(scope, actDelete, rec.ID)),
			tgui.Btn("« List", tgui.Data(scope, actList, "")),
		).
		Markup()
}

// failureKeyboard is attached to failure notifications.
func failureKeyboard(rec *schedule.Record) *tele.ReplyMarkup {
	scope := scopeFor(rec.Kind)
	return tgui.NewInline().
		Row(
			tgui.Btn("🔁 Retry now", tgui.Data(scope, actRetry, rec.ID)),
			tgui.Btn("⏸ Pause", tgui.Data(scope, actPause, rec.ID)),
		).
		Markup()
}

func appendCancelRow(rm *tele.ReplyMarkup, scope string) {
	rows := append(rm.InlineKeyboard, []tele.InlineButton{
		{Text: "Cancel", Data: tgui.Data(scope, actCancel, "")},
	})
	rm.InlineKeyboard = rows
}
