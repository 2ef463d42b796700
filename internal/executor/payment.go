package executor

import (
	"context"
	"errors"
	"fmt"

	"schedbot/internal/payment"
	"schedbot/internal/schedule"
)

// CredentialsProvider resolves a group's payment credentials.
type CredentialsProvider interface {
	Get(ctx context.Context, groupID int64) (*payment.Credentials, bool, error)
}

// Payer submits transfers. *payment.Client satisfies it.
type Payer interface {
	PayUsers(ctx context.Context, jwt string, req payment.PayRequest) (*payment.PayResponse, error)
}

// PaymentExecutor runs recurring token payments.
type PaymentExecutor struct {
	payer Payer
	creds CredentialsProvider
}

func NewPaymentExecutor(payer Payer, creds CredentialsProvider) *PaymentExecutor {
	return &PaymentExecutor{payer: payer, creds: creds}
}

func (e *PaymentExecutor) Kind() schedule.ActionKind { return schedule.KindPayment }

func (e *PaymentExecutor) Execute(ctx context.Context, rec *schedule.Record) (*Outcome, error) {
	p := rec.Payment
	if p == nil {
		return nil, errors.New("scheduled payment details are missing")
	}
	if p.AmountSmallest == 0 {
		return nil, errors.New("scheduled payment amount cannot be zero")
	}
	if p.TokenType == "" {
		return nil, errors.New("scheduled payment token is missing")
	}
	if p.RecipientAddress == "" {
		return nil, errors.New("scheduled payment recipient is missing")
	}

	creds, ok, err := e.creds.Get(ctx, rec.GroupID)
	if err != nil {
		return nil, fmt.Errorf("load group credentials: %w", err)
	}
	if !ok || creds.JWT == "" {
		return nil, fmt.Errorf("no payment credentials for group %d", rec.GroupID)
	}

	resp, err := e.payer.PayUsers(ctx, creds.JWT, payment.PayRequest{
		Amount:   p.AmountSmallest,
		Users:    []string{p.RecipientAddress},
		CoinType: p.TokenType,
		Version:  payment.VersionFor(p.TokenType),
	})
	if err != nil {
		return nil, err
	}
	return &Outcome{TxHash: resp.Hash}, nil
}
