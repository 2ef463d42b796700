package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"schedbot/internal/schedule"
	"schedbot/internal/wizard"
	"schedbot/pkg/logx"
	"schedbot/pkg/tgui"
)

const handlerTimeout = 15 * time.Second

func handlerCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), handlerTimeout)
}

func (b *Bot) handleSchedulePrompt(c tele.Context) error {
	return b.startWizard(c, schedule.KindPrompt)
}

func (b *Bot) handleSchedulePayment(c tele.Context) error {
	return b.startWizard(c, schedule.KindPayment)
}

func (b *Bot) startWizard(c tele.Context, kind schedule.ActionKind) error {
	ctx, cancel := handlerCtx()
	defer cancel()
	st, err := b.engine.Start(ctx, kind, c.Chat().ID, c.Sender().ID, displayName(c.Sender()))
	if err != nil {
		b.log.Error("start wizard", logx.Err(err))
		return c.Send("Something went wrong, try again.")
	}
	text, rm := b.stepPrompt(st)
	return c.Send(text, rm)
}

// stepPrompt renders the ask for the session's current step.
func (b *Bot) stepPrompt(st *schedule.WizardState) (string, *tele.ReplyMarkup) {
	scope := scopeFor(st.Kind)
	switch st.Step {
	case schedule.StepPrompt:
		return "What should the AI do on this schedule? Send the prompt as a message.", nil
	case schedule.StepRecipient:
		return "Who gets paid? Send the wallet address, or \"@username <address>\" to label it.", nil
	case schedule.StepToken:
		return "Pick a token, or send a full token type (like 0x1::aptos_coin::AptosCoin).", tokenKeyboard(scope)
	case schedule.StepAmount:
		return "How much per payment? Send a number, e.g. 2.5", nil
	case schedule.StepDate:
		return "When should payments start? Send a date like 2026-09-01 (UTC).", nil
	case schedule.StepHour:
		return "Pick the hour (UTC):", hourKeyboard(scope)
	case schedule.StepMinute:
		return "Pick the minute:", minuteKeyboard(scope)
	case schedule.StepRepeat:
		return "How often should it repeat?", repeatKeyboard(scope)
	case schedule.StepConfirm:
		return "Review your schedule:\n\n" + wizard.Summarize(st), confirmKeyboard(scope)
	default:
		return "Let's continue.", nil
	}
}

// handleText feeds free-form messages into whichever wizard session the
// sender has open in this chat. Non-wizard text is ignored.
func (b *Bot) handleText(c tele.Context) error {
	chat, sender := c.Chat(), c.Sender()
	if chat == nil || sender == nil {
		return nil
	}
	ctx, cancel := handlerCtx()
	defer cancel()

	st := b.openSession(ctx, chat.ID, sender.ID)
	if st == nil {
		return nil
	}
	if !textStep(st.Step) {
		return nil
	}
	input := c.Text()
	if st.Step == schedule.StepToken {
		// Typed custom token: derive the symbol from the type path.
		return b.applyCustomToken(ctx, c, st, input)
	}
	if err := b.engine.Apply(ctx, st, input); err != nil {
		return c.Send(err.Error())
	}
	text, rm := b.stepPrompt(st)
	if rm != nil {
		return c.Send(text, rm)
	}
	return c.Send(text)
}

// openSession finds the sender's in-flight session in this chat, trying the
// prompt wizard first.
func (b *Bot) openSession(ctx context.Context, chatID, senderID int64) *schedule.WizardState {
	for _, kind := range []schedule.ActionKind{schedule.KindPrompt, schedule.KindPayment} {
		st, ok, err := b.engine.Get(ctx, kind, chatID, senderID)
		if err != nil {
			b.log.Warn("load wizard session", logx.Err(err))
			continue
		}
		if ok {
			return st
		}
	}
	return nil
}

// textStep reports whether a step accepts free-form text input.
func textStep(s schedule.Step) bool {
	switch s {
	case schedule.StepPrompt, schedule.StepRecipient, schedule.StepToken,
		schedule.StepAmount, schedule.StepDate, schedule.StepHour, schedule.StepMinute:
		return true
	}
	return false
}

func (b *Bot) applyCustomToken(ctx context.Context, c tele.Context, st *schedule.WizardState, input string) error {
	input = strings.TrimSpace(input)
	if input == "" {
		return c.Send("Please pick a token or send its full type.")
	}
	symbol := input
	if i := strings.LastIndex(input, "::"); i >= 0 {
		symbol = input[i+2:]
	}
	if err := b.engine.SetToken(ctx, st, symbol, input, defaultTokenDecimals); err != nil {
		return c.Send(err.Error())
	}
	text, rm := b.stepPrompt(st)
	if rm != nil {
		return c.Send(text, rm)
	}
	return c.Send(text)
}

const defaultTokenDecimals = 8

func (b *Bot) handleListPrompts(c tele.Context) error {
	return b.sendList(c, schedule.KindPrompt)
}

func (b *Bot) handleListPayments(c tele.Context) error {
	return b.sendList(c, schedule.KindPayment)
}

func (b *Bot) sendList(c tele.Context, kind schedule.ActionKind) error {
	ctx, cancel := handlerCtx()
	defer cancel()
	recs, err := b.schedules.ListActive(ctx, c.Chat().ID, kind)
	if err != nil {
		b.log.Error("list schedules", logx.Err(err))
		return c.Send("Could not load schedules, try again.")
	}
	title := "Scheduled prompts"
	if kind == schedule.KindPayment {
		title = "Scheduled payments"
	}
	if len(recs) == 0 {
		return c.Send(fmt.Sprintf("%s: none yet.", title))
	}
	return c.Send(fmt.Sprintf("%s (%d):", title, len(recs)), listKeyboard(kind, recs))
}

// listLabel is the one-line button label for a schedule in the list view.
func listLabel(rec *schedule.Record) string {
	var what string
	switch rec.Kind {
	case schedule.KindPrompt:
		if rec.Prompt != nil {
			what = tgui.TruncRunes(rec.Prompt.Text, 24)
		}
	case schedule.KindPayment:
		if p := rec.Payment; p != nil {
			to := p.RecipientName
			if to == "" {
				to = tgui.TruncRunes(p.RecipientAddress, 10)
			}
			what = fmt.Sprintf("%s → %s", p.Symbol, to)
		}
	}
	return fmt.Sprintf("%s · %02d:%02d · %s", what, rec.StartHourUTC, rec.StartMinuteUTC, rec.Repeat.Label())
}

// detailText renders the management panel body for one schedule, in
// Telegram HTML parse mode.
func detailText(rec *schedule.Record) string {
	var parts []tgui.H
	switch rec.Kind {
	case schedule.KindPrompt:
		parts = append(parts, tgui.B("Scheduled prompt"))
		if rec.Prompt != nil {
			parts = append(parts, tgui.Esc(rec.Prompt.Text))
		}
	case schedule.KindPayment:
		parts = append(parts, tgui.B("Scheduled payment"))
		if p := rec.Payment; p != nil {
			amt := float64(p.AmountSmallest)
			for i := 0; i < p.Decimals; i++ {
				amt /= 10
			}
			to := tgui.Code(p.RecipientAddress)
			if p.RecipientName != "" {
				to = tgui.Esc("@" + p.RecipientName)
			}
			parts = append(parts, tgui.Esc(fmt.Sprintf("%g %s → ", amt, p.Symbol))+to)
		}
	}
	parts = append(parts, tgui.Esc(fmt.Sprintf("Time: %02d:%02d UTC · %s", rec.StartHourUTC, rec.StartMinuteUTC, rec.Repeat.Label())))
	if !rec.Active {
		parts = append(parts, tgui.B("Paused"))
	} else if rec.NextRunAt > 0 {
		parts = append(parts, tgui.Esc("Next run: "+time.Unix(rec.NextRunAt, 0).UTC().Format("2006-01-02 15:04 UTC")))
	}
	if rec.RunCount > 0 {
		parts = append(parts, tgui.Esc(fmt.Sprintf("Runs so far: %d", rec.RunCount)))
	}
	if rec.LastAttemptStatus == "failure" && rec.LastError != "" {
		parts = append(parts, tgui.Esc("Last error: "+tgui.TruncRunes(rec.LastError, 120)))
	}
	parts = append(parts, tgui.Esc("Created by "+rec.CreatorName))

	var out tgui.H
	for i, p := range parts {
		if i > 0 {
			out += "\n"
		}
		out += p
	}
	return out.String()
}

var (
	errNotCreator = errors.New("only the creator can change this schedule")
	errNotFound   = errors.New("schedule not found")
)
