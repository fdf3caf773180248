package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"dwell/cmd/internal/chat"
	chatv1 "dwell/shared/contracts/chat/v1"

	"github.com/coder/websocket"
)

const (
	wsDefaultSendQueueSize = 64
	wsMinSendQueueSize     = 16

	wsDefaultWriteTimeout = 5 * time.Second
	wsDefaultReadIdle     = 5 * time.Minute
	wsCloseGrace          = 1 * time.Second

	wsMaxPingFailures = 3

	// Security defaults:
	// - Origin is required by default.
	// - Only localhost is allowed by default (secure-by-default for dev).
	wsDefaultOriginRequired = true
	wsDefaultAllowedOrigins = "http://localhost,http://127.0.0.1"
)

// Authenticator resolves the authenticated user behind an upgrade request.
// Implementations must not write to the response.
type Authenticator interface {
	AuthenticateRequest(r *http.Request) (userID string, err error)
}

// WSGateway is the WebSocket entrypoint for live conversations.
//
// It rejects unauthenticated or non-participant requests with plain HTTP
// statuses before the upgrade, then bridges one conversation's bus topic to
// the connection: inbound frames become persisted messages, published
// events become outbound frames.
type WSGateway struct {
	log  *slog.Logger
	svc  *chat.Service
	bus  Bus
	auth Authenticator

	devInsecure    bool
	originRequired bool
	allowedOrigins []string

	// Derived for websocket.Accept origin checks.
	// Accept() authorizes same-host origins by default, but for cross-origin it requires OriginPatterns.
	originPatterns []string

	writeTimeout    time.Duration
	readIdleTimeout time.Duration
	sendQueueSize   int

	heartbeatEvery   time.Duration
	heartbeatTimeout time.Duration

	rateEvents int
	rateWindow time.Duration
}

// NewWSGateway constructs a gateway with secure defaults.
func NewWSGateway(log *slog.Logger, svc *chat.Service, bus Bus, auth Authenticator) (*WSGateway, error) {
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if svc == nil {
		return nil, errors.New("realtime: nil chat service")
	}
	if bus == nil {
		return nil, errors.New("realtime: nil bus")
	}
	if auth == nil {
		return nil, errors.New("realtime: nil authenticator")
	}

	g := &WSGateway{log: log, svc: svc, bus: bus, auth: auth}

	// NOTE: InsecureSkipVerify is a dev-only knob (TLS verification). It is not an origin policy.
	g.devInsecure = envBoolWS("DWELL_WS_DEV_INSECURE", false)

	g.originRequired = envBoolWS("DWELL_WS_ORIGIN_REQUIRED", wsDefaultOriginRequired)
	g.allowedOrigins = envCSVWS("DWELL_WS_ALLOWED_ORIGINS", wsDefaultAllowedOrigins)

	// websocket.Accept enforces its own origin policy:
	// - same-host is ok
	// - cross-origin requires OriginPatterns (host patterns)
	// We derive these patterns from allowed origins so the two layers agree.
	g.originPatterns = deriveOriginPatternsFromAllowedOrigins(g.allowedOrigins)

	g.writeTimeout = envDurationWS("DWELL_WS_WRITE_TIMEOUT", wsDefaultWriteTimeout)
	g.readIdleTimeout = envDurationWS("DWELL_WS_READ_IDLE_TIMEOUT", wsDefaultReadIdle)

	g.sendQueueSize = envIntWS("DWELL_WS_SEND_QUEUE", wsDefaultSendQueueSize)
	if g.sendQueueSize < wsMinSendQueueSize {
		g.sendQueueSize = wsMinSendQueueSize
	}

	g.heartbeatEvery = envDurationWS("DWELL_WS_HEARTBEAT_INTERVAL", heartbeatInterval)
	g.heartbeatTimeout = envDurationWS("DWELL_WS_HEARTBEAT_TIMEOUT", heartbeatTimeout)

	g.rateEvents = envIntWS("DWELL_WS_RATE_EVENTS", rateLimitEvents)
	g.rateWindow = envDurationWS("DWELL_WS_RATE_WINDOW", rateLimitWindow)

	return g, nil
}

// ServeHTTP adapter so it can be mounted as http.Handler.
func (g *WSGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// HandleWS authorizes the request, upgrades it, and runs the session loop.
// Authorization failures answer with plain HTTP statuses; the handshake
// never completes for a request the user is not allowed to make.
func (g *WSGateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		metricRejects.WithLabelValues("origin").Inc()
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conversationID := strings.TrimSpace(r.PathValue("conversation_id"))
	if conversationID == "" {
		metricRejects.WithLabelValues("bad_request").Inc()
		http.Error(w, "missing conversation id", http.StatusBadRequest)
		return
	}

	userID, err := g.auth.AuthenticateRequest(r)
	if err != nil {
		metricRejects.WithLabelValues("auth").Inc()
		g.log.Info("ws.reject.auth", "err", err, "remote", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conv, err := g.svc.GetConversation(r.Context(), conversationID, userID)
	if err != nil {
		switch {
		case chat.IsNotFound(err):
			metricRejects.WithLabelValues("not_found").Inc()
			http.Error(w, "not found", http.StatusNotFound)
		case chat.IsForbidden(err):
			metricRejects.WithLabelValues("forbidden").Inc()
			g.log.Info("ws.reject.acl", "conversation_id", conversationID, "user_id", userID)
			http.Error(w, "forbidden", http.StatusForbidden)
		default:
			g.log.Error("ws.gate.fail", "conversation_id", conversationID, "err", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Subscribe before completing the handshake so a client that dials and
	// immediately receives a peer's message never races the subscription.
	sub, err := g.bus.Subscribe(ctx, Topic(conv.ID))
	if err != nil {
		g.log.Error("ws.subscribe.fail", "conversation_id", conv.ID, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = sub.Close() }()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.devInsecure,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	conn.SetReadLimit(maxFrameBytes)

	metricConnections.Inc()
	defer metricConnections.Dec()

	g.log.Info("ws.session.open",
		"conversation_id", conv.ID,
		"user_id", userID,
		"remote", r.RemoteAddr,
	)

	out := make(chan []byte, g.sendQueueSize)
	sessionDone := make(chan struct{})

	var closeOnce sync.Once

	// shutdown is idempotent. It does NOT close out; the writer drains until
	// sessionDone is observed.
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			close(sessionDone)
			_ = sub.Close()
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	rl := NewFrameLimiter(g.rateEvents, g.rateWindow)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)

		for {
			select {
			case <-ctx.Done():
				return
			case <-sessionDone:
				return
			case payload, ok := <-sub.C():
				if !ok {
					return
				}
				if err := writeFrame(ctx, conn, payload, g.writeTimeout); err != nil {
					g.log.Info("ws.write.fail", "conversation_id", conv.ID, "user_id", userID,
						"close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			case payload := <-out:
				if err := writeFrame(ctx, conn, payload, g.writeTimeout); err != nil {
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.heartbeatEvery)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-sessionDone:
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.heartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					g.log.Info("ws.ping.fail", "user_id", userID, "failures", failures, "err", err)
					if failures >= wsMaxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

readLoop:
	for {
		readCtx, readCancel := context.WithTimeout(ctx, g.readIdleTimeout)
		data, err := readFrame(readCtx, conn)
		readCancel()

		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
				break readLoop
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
				break readLoop
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
				break readLoop
			default:
				g.log.Info("ws.read.fail", "user_id", userID, "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
				break readLoop
			}
		}

		now := time.Now().UTC()
		if !rl.Allow(now) {
			g.trySendError(out, sessionDone, "rate_limited", "too many messages")
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}

		// A malformed or invalid frame is the client's problem, not the
		// session's: report it and keep reading.
		var in chatv1.MessageCreate
		if err := json.Unmarshal(data, &in); err != nil {
			metricBadFrames.Inc()
			g.log.Info("ws.frame.bad_json", "user_id", userID, "err", err)
			g.trySendError(out, sessionDone, "bad_json", "invalid JSON")
			continue readLoop
		}
		if err := in.Validate(); err != nil {
			metricBadFrames.Inc()
			g.trySendError(out, sessionDone, "invalid_message", err.Error())
			continue readLoop
		}

		view, err := g.svc.AppendMessage(ctx, conv.ID, userID, in.Content, now)
		if err != nil {
			g.log.Error("ws.append.fail", "conversation_id", conv.ID, "user_id", userID, "err", err)
			g.trySendError(out, sessionDone, "send_failed", "message not delivered")
			continue readLoop
		}

		payload, err := json.Marshal(eventFromView(view))
		if err != nil {
			g.log.Error("ws.event.marshal_fail", "err", err)
			continue readLoop
		}
		if err := g.bus.Publish(ctx, Topic(conv.ID), payload); err != nil {
			// The message is durable; only live fan-out suffered.
			g.log.Error("ws.publish.fail", "conversation_id", conv.ID, "err", err)
			continue readLoop
		}
		metricMessages.Inc()
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}

	g.log.Info("ws.session.close", "conversation_id", conv.ID, "user_id", userID)
}

// ---- send helpers ----

type wsErrorPayload struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func (g *WSGateway) trySendError(out chan<- []byte, done <-chan struct{}, code, msg string) {
	b, _ := json.Marshal(wsErrorPayload{Error: code, Message: msg})
	select {
	case <-done:
	case out <- b:
	default:
	}
}

func eventFromView(v chat.MessageView) chatv1.MessageEvent {
	return chatv1.MessageEvent{
		ID:             v.ID,
		ConversationID: v.ConversationID,
		SenderID:       v.SenderID,
		Content:        v.Content,
		IsRead:         v.IsRead,
		CreatedAt:      v.CreatedAt,
		Sender: chatv1.UserSummary{
			ID:        v.Sender.ID,
			Email:     v.Sender.Email,
			FirstName: v.Sender.FirstName,
			LastName:  v.Sender.LastName,
			AvatarURL: v.Sender.AvatarURL,
		},
	}
}

// ---- frame IO ----

func readFrame(ctx context.Context, conn *websocket.Conn) ([]byte, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return nil, fmt.Errorf("unsupported message type: %v", mt)
	}
	return data, nil
}

func writeFrame(parent context.Context, conn *websocket.Conn, payload []byte, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	return conn.Write(ctx, websocket.MessageText, payload)
}

// ---- read error classification ----

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
)

func classifyReadErr(err error) readErrKind {
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}
	return readErrUnknown
}

// ---- origin policy ----

func (g *WSGateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.originRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	if len(g.allowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	originHost := originHostOnly(origin)

	for _, a := range g.allowedOrigins {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if a == "*" {
			// Strongly discouraged, but honored if explicitly configured.
			return nil
		}

		// Full origin match (scheme + host + optional port).
		if origin == a {
			return nil
		}

		// Host match fallback (ignores port/scheme).
		if originHost != "" && originHost == originHostOnly(a) {
			return nil
		}
	}

	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	// URL form.
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		h := strings.TrimSpace(u.Host)
		if h == "" {
			return ""
		}
		if host, _, err := net.SplitHostPort(h); err == nil {
			return strings.ToLower(host)
		}
		return strings.ToLower(h)
	}

	// host[:port] form.
	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

func deriveOriginPatternsFromAllowedOrigins(allowed []string) []string {
	// websocket.Accept matches OriginPatterns against the origin host using filepath.Match patterns.
	// We keep this strict: only hosts extracted from allowlist are accepted.
	seen := make(map[string]struct{}, len(allowed))

	for _, a := range allowed {
		h := originHostOnly(a)
		if h == "" || h == "*" {
			continue
		}
		seen[h] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}

	// Stable in-file sort (avoid importing sort just for this).
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j] < out[i] {
				out[i], out[j] = out[j], out[i]
			}
		}
	}

	return out
}

// ---- env helpers ----

func envBoolWS(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envIntWS(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDurationWS(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func envCSVWS(key string, def string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		raw = def
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
