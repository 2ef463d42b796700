// Package bot is the Telegram surface of the engine: slash commands open
// wizards, inline keyboards drive them, and the sink posts execution results
// back into groups.
package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"schedbot/internal/runner"
	"schedbot/internal/schedule"
	"schedbot/internal/wizard"
	"schedbot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

// Bot wires telebot handlers to the wizard engine and schedule store.
type Bot struct {
	cfg       Config
	tb        *tele.Bot
	engine    *wizard.Engine
	schedules *schedule.Store
	registrar *runner.Registrar
	sink      *Sink
	log       logx.Logger

	runMu   sync.Mutex
	running bool
	stopWG  sync.WaitGroup
}

func New(cfg Config, engine *wizard.Engine, schedules *schedule.Store, registrar *runner.Registrar, sink *Sink, log logx.Logger) (*Bot, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	tb, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	b := &Bot{
		cfg:       cfg,
		tb:        tb,
		engine:    engine,
		schedules: schedules,
		registrar: registrar,
		sink:      sink,
		log:       log,
	}
	sink.bind(tb)
	b.route()
	return b, nil
}

func (b *Bot) route() {
	b.tb.Handle("/schedule", b.requireGroupAdmin(b.handleSchedulePrompt))
	b.tb.Handle("/schedulepayment", b.requireGroupAdmin(b.handleSchedulePayment))
	b.tb.Handle("/listscheduled", b.requireGroupAdmin(b.handleListPrompts))
	b.tb.Handle("/listscheduledpayments", b.requireGroupAdmin(b.handleListPayments))
	b.tb.Handle(tele.OnText, b.handleText)
	b.tb.Handle(tele.OnCallback, b.handleCallback)
}

// Start begins long polling. Non-blocking; polling runs until Stop.
func (b *Bot) Start(ctx context.Context) {
	b.runMu.Lock()
	if b.running {
		b.runMu.Unlock()
		return
	}
	b.running = true
	b.stopWG.Add(1)
	b.runMu.Unlock()

	_ = b.tb.SetCommands([]tele.Command{
		{Text: "schedule", Description: "Schedule a recurring AI prompt"},
		{Text: "schedulepayment", Description: "Schedule a recurring payment"},
		{Text: "listscheduled", Description: "Manage scheduled prompts"},
		{Text: "listscheduledpayments", Description: "Manage scheduled payments"},
	})

	go func() {
		defer b.stopWG.Done()
		b.log.Info("telegram polling started")
		b.tb.Start()
	}()
}

// Stop halts polling, bounded by ctx. The long poll may linger; shutdown
// stays snappy regardless.
func (b *Bot) Stop(ctx context.Context) {
	b.runMu.Lock()
	wasRunning := b.running
	b.running = false
	b.runMu.Unlock()
	if !wasRunning {
		return
	}
	go b.tb.Stop()

	done := make(chan struct{})
	go func() {
		b.stopWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		b.log.Info("telegram polling stopped")
	case <-ctx.Done():
		b.log.Warn("telegram stop cancelled", logx.Err(ctx.Err()))
	case <-time.After(2 * time.Second):
		b.log.Warn("telegram stop grace elapsed; continuing shutdown")
	}
}

// requireGroupAdmin gates a command to group chats and group admins.
func (b *Bot) requireGroupAdmin(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		chat := c.Chat()
		if chat == nil || (chat.Type != tele.ChatGroup && chat.Type != tele.ChatSuperGroup) {
			return c.Send("This command only works in group chats.")
		}
		ok, err := b.isAdmin(chat, c.Sender())
		if err != nil {
			b.log.Warn("admin lookup failed", logx.Int64("chat", chat.ID), logx.Err(err))
			return c.Send("Could not verify group admin rights, try again.")
		}
		if !ok {
			return c.Send("Only group admins can manage schedules.")
		}
		return next(c)
	}
}

func (b *Bot) isAdmin(chat *tele.Chat, user *tele.User) (bool, error) {
	if user == nil {
		return false, nil
	}
	member, err := b.tb.ChatMemberOf(chat, user)
	if err != nil {
		return false, err
	}
	switch member.Role {
	case tele.Creator, tele.Administrator:
		return true, nil
	}
	return false, nil
}

func displayName(u *tele.User) string {
	if u == nil {
		return "unknown"
	}
	if u.Username != "" {
		return u.Username
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}
