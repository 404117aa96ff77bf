package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jmerrifield20/reviewledger/pkg/client"
)

// ── Stub server ─────────────────────────────────────────────────────────

const stubToken = "stub-session-token"

func stubServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	seen := map[string]bool{}

	authed := func(w http.ResponseWriter, r *http.Request) bool {
		if r.Header.Get("Authorization") != "Bearer "+stubToken {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "session token required"})
			return false
		}
		return true
	}

	mux.HandleFunc("/api/v1/sessions", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"session_id": "550e8400-e29b-41d4-a716-446655440000",
			"token":      stubToken,
			"policy":     "duplicate",
		})
	})

	mux.HandleFunc("/api/v1/sessions/current", func(w http.ResponseWriter, r *http.Request) {
		if !authed(w, r) {
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("/api/v1/reviews", func(w http.ResponseWriter, r *http.Request) {
		if !authed(w, r) {
			return
		}
		if r.Method == http.MethodGet {
			json.NewEncoder(w).Encode(map[string]any{
				"reviews": []map[string]any{
					{"sequence": 1, "payload": map[string]any{"User_ID": "U1", "Review": "ok"}, "seal": "abc"},
				},
				"count": 1,
			})
			return
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		key := body["user_id"] + "|" + body["product_id"] + "|" + body["review"]
		if seen[key] {
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(map[string]any{"accepted": false, "decision": "duplicate", "message": "possible spam"})
			return
		}
		seen[key] = true
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"accepted": true,
			"decision": "accepted",
			"record":   map[string]any{"sequence": 1, "seal": "abc", "previous_seal": "def"},
			"verdict":  map[string]any{"score": 0.8, "label": "real", "confidence": 0.8},
		})
	})

	mux.HandleFunc("/api/v1/reviews/check", func(w http.ResponseWriter, r *http.Request) {
		if !authed(w, r) {
			return
		}
		json.NewEncoder(w).Encode(map[string]bool{"duplicate": true})
	})

	mux.HandleFunc("/api/v1/ledger", func(w http.ResponseWriter, r *http.Request) {
		if !authed(w, r) {
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"records": 2, "root": "abc", "policy": "duplicate"})
	})

	mux.HandleFunc("/api/v1/ledger/verify", func(w http.ResponseWriter, r *http.Request) {
		if !authed(w, r) {
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"valid": true})
	})

	mux.HandleFunc("/api/v1/ledger/records/", func(w http.ResponseWriter, r *http.Request) {
		if !authed(w, r) {
			return
		}
		if r.URL.Path != "/api/v1/ledger/records/0" {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "record not found"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"sequence": 0, "previous_seal": "0", "seal": "g"})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

var ctx = context.Background()

// ── Tests ─────────────────────────────────────────────────────────────────

func TestNew_requiresURL(t *testing.T) {
	if _, err := client.New(""); err == nil {
		t.Error("expected error for empty server URL")
	}
}

func TestNew_rejectsNilHTTPClient(t *testing.T) {
	if _, err := client.New("http://localhost:8080", client.WithHTTPClient(nil)); err == nil {
		t.Error("expected error for nil http client")
	}
}

func TestWithTimeout_leavesCallerClientUntouched(t *testing.T) {
	srv := stubServer(t)
	hc := &http.Client{Timeout: 3 * time.Second}
	c, err := client.New(srv.URL, client.WithHTTPClient(hc), client.WithTimeout(time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if hc.Timeout != 3*time.Second {
		t.Errorf("caller's client timeout changed to %v", hc.Timeout)
	}
	if _, err := c.CreateSession(ctx); err != nil {
		t.Fatalf("client should still work after WithTimeout: %v", err)
	}
}

func TestCreateSession_adoptsToken(t *testing.T) {
	srv := stubServer(t)
	c := client.MustNew(srv.URL)

	s, err := c.CreateSession(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if s.Token != stubToken || c.Token() != stubToken {
		t.Errorf("token not adopted: session %q, client %q", s.Token, c.Token())
	}
	if s.Policy != "duplicate" {
		t.Errorf("policy: got %q", s.Policy)
	}
}

func TestSubmit_acceptedThenDuplicate(t *testing.T) {
	srv := stubServer(t)
	c := client.MustNew(srv.URL, client.WithSessionToken(stubToken))
	r := client.Review{UserID: "U1", ProductID: "P1", Review: "great product"}

	res, err := c.Submit(ctx, r)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Accepted || res.Verdict == nil || res.Verdict.Label != "real" {
		t.Errorf("unexpected first result: %+v", res)
	}

	res, err = c.Submit(ctx, r)
	if err != nil {
		t.Fatalf("rejection must not be an error: %v", err)
	}
	if res.Accepted || res.Decision != "duplicate" {
		t.Errorf("unexpected second result: %+v", res)
	}
}

func TestSubmit_unauthorizedIsAPIError(t *testing.T) {
	srv := stubServer(t)
	c := client.MustNew(srv.URL)

	_, err := c.Submit(ctx, client.Review{UserID: "U1", Review: "x"})
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusUnauthorized || apiErr.Message != "session token required" {
		t.Errorf("unexpected APIError: %+v", apiErr)
	}
}

func TestReadEndpoints(t *testing.T) {
	srv := stubServer(t)
	c := client.MustNew(srv.URL, client.WithSessionToken(stubToken))

	dup, err := c.Check(ctx, client.Review{UserID: "U1", ProductID: "P1", Review: "x"})
	if err != nil || !dup {
		t.Errorf("Check: dup=%v err=%v", dup, err)
	}

	reviews, err := c.Reviews(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(reviews) != 1 || reviews[0].Payload.UserID != "U1" {
		t.Errorf("Reviews: %+v", reviews)
	}

	o, err := c.Ledger(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if o.Records != 2 || o.Root != "abc" {
		t.Errorf("Ledger: %+v", o)
	}

	v, err := c.Verify(ctx)
	if err != nil || !v.Valid {
		t.Errorf("Verify: %+v, %v", v, err)
	}

	rec, err := c.Record(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if rec.PreviousSeal != "0" {
		t.Errorf("Record(0).PreviousSeal: got %q", rec.PreviousSeal)
	}
	if _, err := c.Record(ctx, 42); err == nil {
		t.Error("expected error for missing record")
	}
}

func TestEndSession_clearsToken(t *testing.T) {
	srv := stubServer(t)
	c := client.MustNew(srv.URL, client.WithSessionToken(stubToken))
	if err := c.EndSession(ctx); err != nil {
		t.Fatal(err)
	}
	if c.Token() != "" {
		t.Error("token should be cleared after EndSession")
	}
}
