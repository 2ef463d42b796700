package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"schedbot/internal/storage"
	"schedbot/pkg/logx"
)

func TestVersionFor(t *testing.T) {
	t.Parallel()
	if got := VersionFor("0x1::aptos_coin::AptosCoin"); got != CoinV1 {
		t.Fatalf("legacy coin type: got %s", got)
	}
	if got := VersionFor("0xfa11"); got != CoinV2 {
		t.Fatalf("fungible asset: got %s", got)
	}
}

func TestPayUsers(t *testing.T) {
	t.Parallel()
	var gotAuth string
	var gotReq PayRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pay-users" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(PayResponse{Hash: "0xdeadbeef"})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, logx.Nop())
	resp, err := c.PayUsers(context.Background(), "tok123", PayRequest{
		Amount:   5_000_000,
		Users:    []string{"0xabc"},
		CoinType: "0x1::aptos_coin::AptosCoin",
		Version:  CoinV1,
	})
	if err != nil {
		t.Fatalf("PayUsers: %v", err)
	}
	if resp.Hash != "0xdeadbeef" {
		t.Fatalf("hash = %q", resp.Hash)
	}
	if gotAuth != "Bearer tok123" {
		t.Fatalf("auth header = %q", gotAuth)
	}
	if gotReq.Amount != 5_000_000 || len(gotReq.Users) != 1 || gotReq.Users[0] != "0xabc" {
		t.Fatalf("request body = %+v", gotReq)
	}
}

func TestPayUsersClientError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "insufficient balance", http.StatusPaymentRequired)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, logx.Nop())
	if _, err := c.PayUsers(context.Background(), "tok", PayRequest{Amount: 1}); err == nil {
		t.Fatal("expected error on 402")
	}
}

func TestBreakerOpensAfterConsecutiveServerErrors(t *testing.T) {
	t.Parallel()
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, logx.Nop())
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		_, _ = c.PayUsers(ctx, "tok", PayRequest{Amount: 1})
	}
	// The breaker trips after six consecutive failures and short-circuits
	// the remaining calls without touching the server.
	if hits >= 10 {
		t.Fatalf("breaker never opened: server hit %d times", hits)
	}
}

func TestCredentialsStoreRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "test.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	defer db.Close()

	cs := NewCredentialsStore(db)
	if _, ok, _ := cs.Get(ctx, -100); ok {
		t.Fatal("credentials should not exist yet")
	}
	if err := cs.Put(ctx, &Credentials{GroupID: -100, JWT: "jwt-abc", Sponsor: "alice"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := cs.Get(ctx, -100)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if got.JWT != "jwt-abc" || got.Sponsor != "alice" || got.UpdatedAt == 0 {
		t.Fatalf("credentials lost: %+v", got)
	}
	if err := cs.Delete(ctx, -100); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := cs.Get(ctx, -100); ok {
		t.Fatal("credentials should be deleted")
	}
}
