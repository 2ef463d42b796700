package schedule

import (
	"context"
	"encoding/json"
	"fmt"

	"schedbot/internal/storage"
)

// Store persists schedule records, keyed by id.
//
// Listing is a bucket scan with in-memory filtering; the engine never
// maintains a secondary index on group id.
type Store struct {
	db *storage.DB
}

func NewStore(db *storage.DB) *Store { return &Store{db: db} }

func (s *Store) Put(ctx context.Context, rec *Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode schedule %s: %w", rec.ID, err)
	}
	return s.db.Put(ctx, storage.BucketSchedules, rec.ID, b)
}

func (s *Store) Get(ctx context.Context, id string) (*Record, bool, error) {
	data, ok, err := s.db.Get(ctx, storage.BucketSchedules, id)
	if err != nil || !ok {
		return nil, false, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, false, fmt.Errorf("decode schedule %s: %w", id, err)
	}
	return &rec, true, nil
}

// All returns every stored record, active or not.
func (s *Store) All(ctx context.Context) ([]*Record, error) {
	var out []*Record
	err := s.db.Scan(ctx, storage.BucketSchedules, func(key string, data []byte) error {
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("decode schedule %s: %w", key, err)
		}
		out = append(out, &rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListActive returns the active records of one group, optionally filtered to
// a single action kind (empty kind matches all).
func (s *Store) ListActive(ctx context.Context, groupID int64, kind ActionKind) ([]*Record, error) {
	all, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	var out []*Record
	for _, rec := range all {
		if rec.GroupID != groupID || !rec.Active {
			continue
		}
		if kind != "" && rec.Kind != kind {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// CountActive returns how many active records of a kind a group holds.
func (s *Store) CountActive(ctx context.Context, groupID int64, kind ActionKind) (int, error) {
	list, err := s.ListActive(ctx, groupID, kind)
	if err != nil {
		return 0, err
	}
	return len(list), nil
}

// WizardStore persists in-progress wizard sessions keyed by
// (kind, group, creator). One session per key; a new command overwrites.
type WizardStore struct {
	db *storage.DB
}

func NewWizardStore(db *storage.DB) *WizardStore { return &WizardStore{db: db} }

func sessionKey(kind ActionKind, groupID, creatorID int64) string {
	return fmt.Sprintf("%s:%d:%d", kind, groupID, creatorID)
}

func (s *WizardStore) Put(ctx context.Context, st *WizardState) error {
	b, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode wizard state: %w", err)
	}
	return s.db.Put(ctx, storage.BucketSessions, sessionKey(st.Kind, st.GroupID, st.CreatorID), b)
}

func (s *WizardStore) Get(ctx context.Context, kind ActionKind, groupID, creatorID int64) (*WizardState, bool, error) {
	data, ok, err := s.db.Get(ctx, storage.BucketSessions, sessionKey(kind, groupID, creatorID))
	if err != nil || !ok {
		return nil, false, err
	}
	var st WizardState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, false, fmt.Errorf("decode wizard state: %w", err)
	}
	return &st, true, nil
}

func (s *WizardStore) Delete(ctx context.Context, kind ActionKind, groupID, creatorID int64) error {
	return s.db.Delete(ctx, storage.BucketSessions, sessionKey(kind, groupID, creatorID))
}
