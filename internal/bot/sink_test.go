package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"

	"schedbot/internal/executor"
	"schedbot/internal/schedule"
	"schedbot/pkg/logx"
	"schedbot/pkg/tgui"
)

type sentMsg struct {
	to   int64
	what interface{}
}

type fakeSender struct {
	sent []sentMsg
	fail map[int64]bool
}

func (f *fakeSender) Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	id, _ := strconv.ParseInt(to.Recipient(), 10, 64)
	if f.fail[id] {
		return nil, fmt.Errorf("forbidden: bot was blocked by the user")
	}
	f.sent = append(f.sent, sentMsg{to: id, what: what})
	return &tele.Message{}, nil
}

func testSink(fail map[int64]bool) (*Sink, *fakeSender) {
	s := NewSink(1000, logx.Nop())
	f := &fakeSender{fail: fail}
	s.bind(f)
	return s, f
}

func TestDeliverEmptyOutcomePostsPlaceholder(t *testing.T) {
	t.Parallel()
	s, f := testSink(nil)
	rec := &schedule.Record{Kind: schedule.KindPrompt, GroupID: -100}

	if err := s.Deliver(context.Background(), rec, &executor.Outcome{}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if len(f.sent) != 1 || f.sent[0].to != -100 {
		t.Fatalf("sends = %+v", f.sent)
	}
	text, ok := f.sent[0].what.(string)
	if !ok || !strings.Contains(text, "returned no text") {
		t.Fatalf("placeholder missing: %#v", f.sent[0].what)
	}
}

func TestDeliverSplitsLongText(t *testing.T) {
	t.Parallel()
	s, f := testSink(nil)
	rec := &schedule.Record{Kind: schedule.KindPrompt, GroupID: -100}
	out := &executor.Outcome{Text: strings.TrimSpace(strings.Repeat("word ", 2000))}

	if err := s.Deliver(context.Background(), rec, out); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if len(f.sent) < 2 {
		t.Fatalf("long text not split: %d sends", len(f.sent))
	}
	for _, m := range f.sent {
		text, ok := m.what.(string)
		if !ok || len(text) > tgui.MaxMessageLen {
			t.Fatalf("chunk too long or wrong type: %#v", m.what)
		}
	}
}

func TestNotifyFailureFallsBackToGroup(t *testing.T) {
	t.Parallel()
	s, f := testSink(map[int64]bool{42: true})
	rec := &schedule.Record{
		ID: "s1", Kind: schedule.KindPayment,
		GroupID: -100, CreatorID: 42, CreatorName: "alice",
	}

	s.NotifyFailure(context.Background(), rec, fmt.Errorf("insufficient balance"))
	if len(f.sent) != 1 || f.sent[0].to != -100 {
		t.Fatalf("sends = %+v", f.sent)
	}
	text := f.sent[0].what.(string)
	if !strings.Contains(text, "insufficient balance") || !strings.Contains(text, "(for alice)") {
		t.Fatalf("fallback text: %q", text)
	}
}
