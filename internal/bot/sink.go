package bot

import (
	"bytes"
	"context"
	"fmt"
	"time"

	tele "gopkg.in/telebot.v4"
	"golang.org/x/time/rate"

	"schedbot/internal/executor"
	"schedbot/internal/schedule"
	"schedbot/pkg/logx"
	"schedbot/pkg/tgui"
)

// sender is the slice of telebot the sink needs. *tele.Bot satisfies it.
type sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Sink posts execution results into groups and alerts creators. All sends go
// through one rate limiter so unattended bursts stay under Telegram's global
// limits.
type Sink struct {
	tb      sender
	limiter *rate.Limiter
	log     logx.Logger
}

func NewSink(ratePerSec float64, log logx.Logger) *Sink {
	if ratePerSec <= 0 {
		ratePerSec = 20
	}
	return &Sink{
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), 1),
		log:     log,
	}
}

// bind attaches the live telebot instance. Called once by New.
func (s *Sink) bind(tb sender) { s.tb = tb }

// Deliver posts a successful outcome into the schedule's group. Long text is
// split at Telegram's limits; an image goes first with the opening chunk as
// caption.
func (s *Sink) Deliver(ctx context.Context, rec *schedule.Record, out *executor.Outcome) error {
	group := &tele.Chat{ID: rec.GroupID}
	switch rec.Kind {
	case schedule.KindPayment:
		text := paymentReceipt(rec, out)
		return s.send(ctx, group, text, tele.ModeHTML)
	default:
		if out == nil || (out.Text == "" && len(out.Image) == 0) {
			// The run succeeded but produced nothing postable; say so rather
			// than leave the group silent.
			return s.send(ctx, group, "The model processed the request but returned no text.")
		}
		if len(out.Image) > 0 {
			return s.sendPhoto(ctx, group, out.Image, out.Text)
		}
		for _, chunk := range tgui.Split(out.Text, tgui.MaxMessageLen) {
			if err := s.send(ctx, group, chunk); err != nil {
				return err
			}
		}
		return nil
	}
}

// NotifySuccess DMs the creator; if the DM is blocked it posts a short note
// in the group naming them. Best effort.
func (s *Sink) NotifySuccess(ctx context.Context, rec *schedule.Record, _ *executor.Outcome) {
	text := fmt.Sprintf("✅ Your %s ran successfully (run #%d).", kindNoun(rec.Kind), rec.RunCount)
	s.notify(ctx, rec, text, nil)
}

// NotifyFailure alerts the creator with retry and pause shortcuts.
func (s *Sink) NotifyFailure(ctx context.Context, rec *schedule.Record, runErr error) {
	text := fmt.Sprintf("⚠️ Your %s failed: %s", kindNoun(rec.Kind), tgui.TruncRunes(runErr.Error(), 300))
	s.notify(ctx, rec, text, failureKeyboard(rec))
}

func (s *Sink) notify(ctx context.Context, rec *schedule.Record, text string, rm *tele.ReplyMarkup) {
	dm := &tele.Chat{ID: rec.CreatorID}
	var err error
	if rm != nil {
		err = s.send(ctx, dm, text, rm)
	} else {
		err = s.send(ctx, dm, text)
	}
	if err == nil {
		return
	}
	// DM refused (user never opened the bot, or blocked it): fall back to
	// the group, naming the creator so the alert reaches them.
	s.log.Debug("dm failed, falling back to group",
		logx.String("id", rec.ID), logx.Err(err))
	fallback := fmt.Sprintf("%s (for %s)", text, rec.CreatorName)
	var ferr error
	if rm != nil {
		ferr = s.send(ctx, &tele.Chat{ID: rec.GroupID}, fallback, rm)
	} else {
		ferr = s.send(ctx, &tele.Chat{ID: rec.GroupID}, fallback)
	}
	if ferr != nil {
		s.log.Warn("notification undeliverable", logx.String("id", rec.ID), logx.Err(ferr))
	}
}

func (s *Sink) send(ctx context.Context, to *tele.Chat, text string, opts ...interface{}) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := s.tb.Send(to, text, opts...)
	return err
}

func (s *Sink) sendPhoto(ctx context.Context, to *tele.Chat, img []byte, text string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	chunks := tgui.Split(text, tgui.MaxCaptionLen)
	var caption string
	if len(chunks) > 0 {
		caption, chunks = chunks[0], chunks[1:]
	}
	photo := &tele.Photo{File: tele.FromReader(bytes.NewReader(img)), Caption: caption}
	if _, err := s.tb.Send(to, photo); err != nil {
		return err
	}
	for _, chunk := range chunks {
		if err := s.send(ctx, to, chunk); err != nil {
			return err
		}
	}
	return nil
}

func paymentReceipt(rec *schedule.Record, out *executor.Outcome) string {
	p := rec.Payment
	if p == nil {
		return "Scheduled payment sent."
	}
	amt := float64(p.AmountSmallest)
	for i := 0; i < p.Decimals; i++ {
		amt /= 10
	}
	to := tgui.Code(p.RecipientAddress)
	if p.RecipientName != "" {
		to = tgui.Esc("@" + p.RecipientName)
	}
	h := tgui.B("Scheduled payment sent") + "\n" +
		tgui.Esc(fmt.Sprintf("%g %s → ", amt, p.Symbol)) + to
	if out != nil && out.TxHash != "" {
		h += "\n" + tgui.Esc("Tx: ") + tgui.Code(out.TxHash)
	}
	h += "\n" + tgui.I("Scheduled by "+rec.CreatorName+" · "+time.Now().UTC().Format("2006-01-02 15:04 UTC"))
	return h.String()
}

func kindNoun(kind schedule.ActionKind) string {
	if kind == schedule.KindPayment {
		return "scheduled payment"
	}
	return "scheduled prompt"
}
