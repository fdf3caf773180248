package auth

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dwell/cmd/internal/directory"
	"dwell/cmd/security/password"
)

// Fast parameters for tests; production cost comes from password.FromEnv.
var testPWCfg = password.Config{
	Params: password.Argon2idParams{
		MemoryKiB:   8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	},
	Policy: password.Policy{MinLength: 8, MaxLength: 256},
}

var testKey = []byte(strings.Repeat("k", 32))

func newAuthServer(t *testing.T) (*httptest.Server, *directory.InMemoryStore) {
	t.Helper()

	dir := directory.NewInMemoryStore()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	h, err := NewHandler(log, dir, testPWCfg, testKey)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}

	mux := http.NewServeMux()
	h.Register(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, dir
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()

	b, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeAuth(t *testing.T, resp *http.Response) authResponse {
	t.Helper()

	var out authResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode auth response: %v", err)
	}
	return out
}

func TestRegisterLoginRoundTrip(t *testing.T) {
	srv, _ := newAuthServer(t)

	resp := postJSON(t, srv.URL+"/api/auth/register", registerRequest{
		Email:     "Nina@Example.com",
		Password:  "correct horse battery",
		FirstName: "Nina",
		LastName:  "Okafor",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d", resp.StatusCode)
	}
	created := decodeAuth(t, resp)
	if created.User.Email != "nina@example.com" {
		t.Fatalf("email not normalized: %q", created.User.Email)
	}
	if created.Token == "" || created.ExpiresAt.Before(time.Now()) {
		t.Fatalf("bad token in register response: %+v", created)
	}

	resp = postJSON(t, srv.URL+"/api/auth/login", loginRequest{
		Email:    "nina@example.com",
		Password: "correct horse battery",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
	logged := decodeAuth(t, resp)
	if logged.User.ID != created.User.ID {
		t.Fatalf("login resolved a different user: %s != %s", logged.User.ID, created.User.ID)
	}

	// The issued token authenticates requests.
	a, err := NewTokenAuthenticator(testKey)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/chats", nil)
	req.Header.Set("Authorization", "Bearer "+logged.Token)
	userID, err := a.AuthenticateRequest(req)
	if err != nil {
		t.Fatalf("authenticate issued token: %v", err)
	}
	if userID != created.User.ID {
		t.Fatalf("authenticated as %s, want %s", userID, created.User.ID)
	}
}

func TestRegisterRejectsBadInput(t *testing.T) {
	srv, _ := newAuthServer(t)

	cases := []struct {
		name string
		req  registerRequest
		want int
	}{
		{"bad email", registerRequest{Email: "not-an-email", Password: "long enough pw"}, http.StatusBadRequest},
		{"short password", registerRequest{Email: "a@example.com", Password: "short"}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := postJSON(t, srv.URL+"/api/auth/register", tc.req)
			if resp.StatusCode != tc.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tc.want)
			}
		})
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	srv, _ := newAuthServer(t)

	req := registerRequest{Email: "dup@example.com", Password: "long enough pw"}
	if resp := postJSON(t, srv.URL+"/api/auth/register", req); resp.StatusCode != http.StatusCreated {
		t.Fatalf("first register status = %d", resp.StatusCode)
	}
	if resp := postJSON(t, srv.URL+"/api/auth/register", req); resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate register status = %d, want 409", resp.StatusCode)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	srv, _ := newAuthServer(t)

	if resp := postJSON(t, srv.URL+"/api/auth/register", registerRequest{
		Email:    "sam@example.com",
		Password: "long enough pw",
	}); resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d", resp.StatusCode)
	}

	// Wrong password and unknown user answer identically.
	resp := postJSON(t, srv.URL+"/api/auth/login", loginRequest{Email: "sam@example.com", Password: "wrong password"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong password status = %d", resp.StatusCode)
	}
	resp = postJSON(t, srv.URL+"/api/auth/login", loginRequest{Email: "ghost@example.com", Password: "whatever pw"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unknown user status = %d", resp.StatusCode)
	}
}
