package payment

import (
	"context"
	"strconv"

	"schedbot/internal/schedule"
	"schedbot/pkg/logx"
)

// UsageBiller reports AI token usage from unattended runs against the
// group's payment account. Failures are logged, never surfaced; billing must
// not break broadcasts.
type UsageBiller struct {
	client *Client
	creds  *CredentialsStore
	model  string
	log    logx.Logger
}

func NewUsageBiller(client *Client, creds *CredentialsStore, model string, log logx.Logger) *UsageBiller {
	return &UsageBiller{client: client, creds: creds, model: model, log: log}
}

func (b *UsageBiller) ReportUsage(ctx context.Context, rec *schedule.Record, totalTokens int32) {
	c, ok, err := b.creds.Get(ctx, rec.GroupID)
	if err != nil || !ok || c.JWT == "" {
		if err != nil {
			b.log.Warn("load credentials for billing", logx.Int64("group", rec.GroupID), logx.Err(err))
		}
		return
	}
	err = b.client.ReportUsage(ctx, c.JWT, UsageReport{
		TotalTokens: totalTokens,
		Model:       b.model,
		GroupID:     strconv.FormatInt(rec.GroupID, 10),
	})
	if err != nil {
		b.log.Warn("report usage", logx.Int64("group", rec.GroupID), logx.Err(err))
	}
}
