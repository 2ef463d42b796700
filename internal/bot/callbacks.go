package bot

import (
	"context"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"schedbot/internal/schedule"
	"schedbot/internal/wizard"
	"schedbot/pkg/logx"
	"schedbot/pkg/tgui"
)

func (b *Bot) handleCallback(c tele.Context) error {
	cb := c.Callback()
	if cb == nil || c.Chat() == nil || c.Sender() == nil {
		return nil
	}
	scope, action, payload := tgui.ParseData(strings.TrimPrefix(cb.Data, "\f"))
	kind, ok := kindFor(scope)
	if !ok {
		return nil
	}
	ctx, cancel := handlerCtx()
	defer cancel()

	switch action {
	case actHour, actMinute, actRepeat, actWeeks, actToken, actConfirm, actCancel, actEdit, actField:
		// actEdit with an id payload comes from a management panel, the rest
		// are wizard-session actions.
		if action == actEdit && payload != "" {
			return b.cbStartEdit(ctx, c, payload)
		}
		return b.cbWizard(ctx, c, kind, action, payload)
	case actOpen, actList, actClose, actToggle, actDelete, actRunNow, actNotify, actRetry, actPause:
		return b.cbManage(ctx, c, kind, action, payload)
	default:
		return c.Respond(&tele.CallbackResponse{Text: "Unknown action"})
	}
}

func (b *Bot) cbWizard(ctx context.Context, c tele.Context, kind schedule.ActionKind, action, payload string) error {
	st, ok, err := b.engine.Get(ctx, kind, c.Chat().ID, c.Sender().ID)
	if err != nil {
		b.log.Error("load wizard session", logx.Err(err))
		return c.Respond(&tele.CallbackResponse{Text: "Something went wrong"})
	}
	if !ok {
		return c.Respond(&tele.CallbackResponse{Text: "No wizard in progress. Start one with /schedule."})
	}
	if !st.Owner(c.Sender().ID) {
		return c.Respond(&tele.CallbackResponse{Text: "This wizard belongs to someone else"})
	}

	switch action {
	case actCancel:
		if err := b.engine.Cancel(ctx, st); err != nil {
			b.log.Warn("cancel wizard", logx.Err(err))
		}
		_ = c.Respond(&tele.CallbackResponse{Text: "Cancelled"})
		return c.Edit("Schedule setup cancelled.")

	case actHour, actMinute:
		if err := b.engine.Apply(ctx, st, payload); err != nil {
			return c.Respond(&tele.CallbackResponse{Text: err.Error()})
		}

	case actRepeat:
		// Weekly payments go through the multiplier picker first.
		if payload == string(schedule.RepeatWeekly) && kind == schedule.KindPayment {
			return c.Edit("Pay on this weekday every how many weeks?", weeklyKeyboard(scopeFor(kind)))
		}
		if err := b.engine.Apply(ctx, st, payload); err != nil {
			return c.Respond(&tele.CallbackResponse{Text: err.Error()})
		}

	case actWeeks:
		weeks, _ := strconv.Atoi(payload)
		if err := b.engine.SetWeekMultiplier(ctx, st, weeks); err != nil {
			return c.Respond(&tele.CallbackResponse{Text: err.Error()})
		}

	case actToken:
		i, err := strconv.Atoi(payload)
		if err != nil || i < 0 || i >= len(tokenOptions) {
			return c.Respond(&tele.CallbackResponse{Text: "Unknown token"})
		}
		t := tokenOptions[i]
		if err := b.engine.SetToken(ctx, st, t.Symbol, t.Type, t.Decimals); err != nil {
			return c.Respond(&tele.CallbackResponse{Text: err.Error()})
		}

	case actEdit:
		return c.Edit("What do you want to change?", editKeyboard(kind))

	case actField:
		to := schedule.Step(payload)
		if err := b.engine.GoTo(ctx, st, to); err != nil {
			return c.Respond(&tele.CallbackResponse{Text: "Cannot edit that right now"})
		}

	case actConfirm:
		return b.cbFinalize(ctx, c, st)
	}

	text, rm := b.stepPrompt(st)
	if rm != nil {
		return c.Edit(text, rm)
	}
	return c.Edit(text)
}

func (b *Bot) cbFinalize(ctx context.Context, c tele.Context, st *schedule.WizardState) error {
	rec, err := b.engine.Finalize(ctx, st)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: tgui.TruncRunes(err.Error(), 190)})
	}
	_ = c.Respond(&tele.CallbackResponse{Text: "Scheduled ✅"})
	next := time.Unix(rec.NextRunAt, 0).UTC().Format("2006-01-02 15:04 UTC")
	return c.Edit("✅ Schedule saved.\n\n" + wizard.Summarize(st) + "\nFirst run: " + next)
}

// cbStartEdit opens an edit wizard from a management panel.
func (b *Bot) cbStartEdit(ctx context.Context, c tele.Context, id string) error {
	rec, err := b.loadOwned(ctx, c, id)
	if err != nil {
		return b.respondErr(c, err)
	}
	st, err := b.engine.StartEdit(ctx, rec)
	if err != nil {
		b.log.Error("start edit", logx.Err(err))
		return c.Respond(&tele.CallbackResponse{Text: "Something went wrong"})
	}
	return c.Edit("What do you want to change?", editKeyboard(st.Kind))
}

func (b *Bot) cbManage(ctx context.Context, c tele.Context, kind schedule.ActionKind, action, payload string) error {
	switch action {
	case actClose:
		return c.Delete()

	case actList:
		recs, err := b.schedules.ListActive(ctx, c.Chat().ID, kind)
		if err != nil {
			return c.Respond(&tele.CallbackResponse{Text: "Could not load schedules"})
		}
		if len(recs) == 0 {
			return c.Edit("No active schedules.")
		}
		return c.Edit("Pick a schedule:", listKeyboard(kind, recs))

	case actOpen:
		rec, ok, err := b.schedules.Get(ctx, payload)
		if err != nil || !ok {
			return c.Respond(&tele.CallbackResponse{Text: "Schedule not found"})
		}
		return c.Edit(detailText(rec), detailKeyboard(rec), tele.ModeHTML)
	}

	rec, err := b.loadOwned(ctx, c, payload)
	if err != nil {
		return b.respondErr(c, err)
	}

	switch action {
	case actToggle:
		rec.Active = !rec.Active
		if rec.Active {
			now := time.Now().UTC()
			rec.NextRunAt = schedule.NextRun(now, rec.Repeat, rec.Anchor()).Unix()
			if _, err := b.registrar.Register(rec.ID); err != nil {
				b.log.Error("re-arm schedule", logx.String("id", rec.ID), logx.Err(err))
			}
		}
		if err := b.schedules.Put(ctx, rec); err != nil {
			return c.Respond(&tele.CallbackResponse{Text: "Could not save"})
		}
		return c.Edit(detailText(rec), detailKeyboard(rec), tele.ModeHTML)

	case actPause:
		rec.Active = false
		if err := b.schedules.Put(ctx, rec); err != nil {
			return c.Respond(&tele.CallbackResponse{Text: "Could not save"})
		}
		return c.Respond(&tele.CallbackResponse{Text: "Paused"})

	case actDelete:
		rec.Active = false
		if err := b.schedules.Put(ctx, rec); err != nil {
			return c.Respond(&tele.CallbackResponse{Text: "Could not save"})
		}
		b.registrar.Cancel(rec.ID)
		_ = c.Respond(&tele.CallbackResponse{Text: "Deleted"})
		return c.Edit("Schedule deleted.")

	case actRunNow, actRetry:
		rec.NextRunAt = time.Now().UTC().Unix()
		if err := b.schedules.Put(ctx, rec); err != nil {
			return c.Respond(&tele.CallbackResponse{Text: "Could not save"})
		}
		if _, err := b.registrar.Register(rec.ID); err != nil {
			b.log.Error("arm schedule for run-now", logx.String("id", rec.ID), logx.Err(err))
		}
		return c.Respond(&tele.CallbackResponse{Text: "Will run within a minute"})

	case actNotify:
		rec.NotifyOnSuccess = !rec.NotifyOnSuccess
		if err := b.schedules.Put(ctx, rec); err != nil {
			return c.Respond(&tele.CallbackResponse{Text: "Could not save"})
		}
		state := "off"
		if rec.NotifyOnSuccess {
			state = "on"
		}
		return c.Respond(&tele.CallbackResponse{Text: "Success alerts " + state})
	}
	return nil
}

// loadOwned fetches a record and enforces that the callback sender created
// it. Mutations are creator-only.
func (b *Bot) loadOwned(ctx context.Context, c tele.Context, id string) (*schedule.Record, error) {
	rec, ok, err := b.schedules.Get(ctx, id)
	if err != nil {
		b.log.Error("load schedule", logx.String("id", id), logx.Err(err))
		return nil, err
	}
	if !ok {
		return nil, errNotFound
	}
	if rec.CreatorID != c.Sender().ID {
		return nil, errNotCreator
	}
	return rec, nil
}

func (b *Bot) respondErr(c tele.Context, err error) error {
	msg := "Something went wrong"
	switch err {
	case errNotCreator:
		msg = "Only the creator can change this schedule"
	case errNotFound:
		msg = "Schedule not found"
	}
	return c.Respond(&tele.CallbackResponse{Text: msg})
}
