package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"schedbot/internal/storage"
)

// Credentials are the per-group secrets needed to act against the payment
// service. They are provisioned out of band by the group sponsor.
type Credentials struct {
	GroupID   int64  `json:"group_id"`
	JWT       string `json:"jwt"`
	Sponsor   string `json:"sponsor,omitempty"`
	UpdatedAt int64  `json:"updated_at"`
}

// CredentialsStore persists group credentials in their own bucket.
type CredentialsStore struct {
	db *storage.DB
}

func NewCredentialsStore(db *storage.DB) *CredentialsStore {
	return &CredentialsStore{db: db}
}

func credKey(groupID int64) string {
	return strconv.FormatInt(groupID, 10)
}

func (s *CredentialsStore) Put(ctx context.Context, c *Credentials) error {
	if c.GroupID == 0 {
		return fmt.Errorf("credentials missing group id")
	}
	c.UpdatedAt = time.Now().Unix()
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	return s.db.Put(ctx, storage.BucketCredentials, credKey(c.GroupID), data)
}

func (s *CredentialsStore) Get(ctx context.Context, groupID int64) (*Credentials, bool, error) {
	data, ok, err := s.db.Get(ctx, storage.BucketCredentials, credKey(groupID))
	if err != nil || !ok {
		return nil, false, err
	}
	var c Credentials
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, false, fmt.Errorf("decode credentials for group %d: %w", groupID, err)
	}
	return &c, true, nil
}

func (s *CredentialsStore) Delete(ctx context.Context, groupID int64) error {
	return s.db.Delete(ctx, storage.BucketCredentials, credKey(groupID))
}
