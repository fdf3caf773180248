package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"dwell/cmd/internal/directory"
	"dwell/cmd/security/password"
	"dwell/cmd/security/token"
)

const (
	defaultMaxBodyBytes = 16 << 10 // 16 KiB
	defaultTokenTTL     = 24 * time.Hour
)

// Handler serves registration and login.
type Handler struct {
	log   *slog.Logger
	users directory.Users

	pwCfg    password.Config
	tokenKey []byte
	tokenTTL time.Duration

	maxBodyBytes int64

	// Dummy hash for timing-resistant login checks.
	dummyHash string
}

// HandlerOption configures optional handler behavior.
type HandlerOption func(*Handler)

// WithTokenTTL overrides the default access token lifetime.
func WithTokenTTL(ttl time.Duration) HandlerOption {
	return func(h *Handler) {
		if h == nil || ttl <= 0 {
			return
		}
		h.tokenTTL = ttl
	}
}

// NewHandler constructs the auth Handler.
func NewHandler(log *slog.Logger, users directory.Users, pwCfg password.Config, tokenKey []byte, opts ...HandlerOption) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if users == nil {
		return nil, errors.New("auth: nil users store")
	}
	if len(tokenKey) < token.MinKeyBytes {
		return nil, token.ErrHMACKeyTooShort
	}

	h := &Handler{
		log:          log,
		users:        users,
		pwCfg:        pwCfg,
		tokenKey:     tokenKey,
		tokenTTL:     defaultTokenTTL,
		maxBodyBytes: defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}

	if hash, err := pwCfg.Hash("dummy-password-for-timing-only"); err == nil {
		h.dummyHash = hash
	}

	return h, nil
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("POST /api/auth/register", h.handleRegister)
	mux.HandleFunc("POST /api/auth/login", h.handleLogin)
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "a valid email is required")
		return
	}

	hash, err := h.pwCfg.Hash(req.Password)
	if err != nil {
		switch {
		case errors.Is(err, password.ErrPasswordTooShort), errors.Is(err, password.ErrPasswordTooLong):
			writeError(w, http.StatusBadRequest, "invalid_password", err.Error())
		default:
			h.log.Error("auth.register.hash.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	user, err := h.users.CreateUser(r.Context(), directory.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		AvatarURL:    strings.TrimSpace(req.AvatarURL),
	})
	if err != nil {
		if directory.IsConflict(err) {
			writeError(w, http.StatusConflict, "email_taken", "email already registered")
			return
		}
		h.log.Error("auth.register.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.log.Info("auth.register.ok", "user_id", user.ID)
	h.writeAuthResponse(w, http.StatusCreated, user)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	user, err := h.users.GetUserByEmail(r.Context(), email)
	if err != nil {
		// Timing resistance: perform a dummy verify when the user is missing.
		if h.dummyHash != "" {
			_, _ = h.pwCfg.Verify(h.dummyHash, req.Password)
		}
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
		return
	}

	ok, err := h.pwCfg.Verify(user.PasswordHash, req.Password)
	if err != nil || !ok {
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
		return
	}

	h.log.Info("auth.login.ok", "user_id", user.ID)
	h.writeAuthResponse(w, http.StatusOK, user)
}

func (h *Handler) writeAuthResponse(w http.ResponseWriter, status int, user directory.User) {
	tok, exp, err := token.Issue(user.ID, h.tokenTTL, time.Now().UTC(), h.tokenKey)
	if err != nil {
		h.log.Error("auth.token.issue.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	writeJSON(w, status, authResponse{
		User:      toUserResponse(user),
		Token:     tok,
		ExpiresAt: exp,
	})
}
