package executor

import (
	"context"
	"errors"

	"schedbot/internal/schedule"
)

// unattendedSuffix is appended to the API prompt only; it is never shown in
// chat or stored on the record.
const unattendedSuffix = " - This is a prescheduled prompt, DO NOT seek a response from anyone or offer follow ups."

// PromptExecutor runs broadcast schedules through the AI collaborator.
type PromptExecutor struct {
	gen Generator
}

func NewPromptExecutor(gen Generator) *PromptExecutor {
	return &PromptExecutor{gen: gen}
}

func (e *PromptExecutor) Kind() schedule.ActionKind { return schedule.KindPrompt }

func (e *PromptExecutor) Execute(ctx context.Context, rec *schedule.Record) (*Outcome, error) {
	if rec.Prompt == nil || rec.Prompt.Text == "" {
		return nil, errors.New("scheduled prompt text is missing")
	}
	res, err := e.gen.Generate(ctx, GenerateRequest{
		Prompt:         rec.Prompt.Text + unattendedSuffix,
		ConversationID: rec.Prompt.ConversationID,
	})
	if err != nil {
		return nil, err
	}
	return &Outcome{
		Text:           res.Text,
		Image:          res.Image,
		ImageMIME:      res.ImageMIME,
		ConversationID: res.ConversationID,
		TotalTokens:    res.TotalTokens,
	}, nil
}
