// Package executor runs a schedule's action against its external
// collaborator (AI generation or payment submission) and normalizes the
// result. Executors never touch the store; bookkeeping belongs to the runner.
package executor

import (
	"context"
	"fmt"

	"schedbot/internal/schedule"
)

// Outcome is the normalized result of one successful execution.
type Outcome struct {
	// Prompt broadcasts.
	Text           string
	Image          []byte
	ImageMIME      string
	ConversationID string
	TotalTokens    int32

	// Payments.
	TxHash string
}

// Executor runs one action kind.
type Executor interface {
	Kind() schedule.ActionKind
	Execute(ctx context.Context, rec *schedule.Record) (*Outcome, error)
}

// Registry dispatches by action kind.
type Registry struct {
	m map[schedule.ActionKind]Executor
}

func NewRegistry(execs ...Executor) *Registry {
	m := make(map[schedule.ActionKind]Executor, len(execs))
	for _, e := range execs {
		m[e.Kind()] = e
	}
	return &Registry{m: m}
}

// Execute dispatches to the executor registered for the record's kind.
func (r *Registry) Execute(ctx context.Context, rec *schedule.Record) (*Outcome, error) {
	e, ok := r.m[rec.Kind]
	if !ok {
		return nil, fmt.Errorf("no executor for action kind %q", rec.Kind)
	}
	return e.Execute(ctx, rec)
}
