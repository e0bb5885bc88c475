package httpapp

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/truthtally/truthtally/internal/auth"
	"github.com/truthtally/truthtally/internal/config"
	"github.com/truthtally/truthtally/internal/metrics"
	"github.com/truthtally/truthtally/internal/moderation"
	"github.com/truthtally/truthtally/internal/rate"
	"github.com/truthtally/truthtally/internal/tally"
)

const (
	defaultPageSize = 50
	maxBodyBytes    = 1 << 20
)

type Server struct {
	moderation *moderation.Service
	votes      *tally.Engine
	auth       *auth.Service
	limiter    rate.Limiter
	cfg        config.Config
	logger     *slog.Logger
	metrics    http.Handler
}

func NewServer(mod *moderation.Service, votes *tally.Engine, authSvc *auth.Service, limiter rate.Limiter, cfg config.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		moderation: mod,
		votes:      votes,
		auth:       authSvc,
		limiter:    limiter,
		cfg:        cfg,
		logger:     logger,
		metrics:    promhttp.Handler(),
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.route(rec, r)

	metrics.HTTPRequest(r.Method, strconv.Itoa(rec.status))
	s.logger.Info("http request",
		"method", r.Method,
		"path", r.URL.RequestURI(),
		"status", rec.status,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

func (s *Server) route(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasPrefix(r.URL.Path, "/api/"):
		s.handleAPI(w, r)
	case r.URL.Path == "/healthz":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	case r.URL.Path == "/metrics":
		s.metrics.ServeHTTP(w, r)
	default:
		notFound(w, r)
	}
}

func (s *Server) handleAPI(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api")
	segments := splitPath(path)

	switch {
	case len(segments) == 2 && segments[0] == "auth" && segments[1] == "register":
		if r.Method == http.MethodPost {
			s.handleRegister(w, r)
			return
		}
	case len(segments) == 2 && segments[0] == "auth" && segments[1] == "login":
		if r.Method == http.MethodPost {
			s.handleLogin(w, r)
			return
		}
	case len(segments) == 2 && segments[0] == "auth" && segments[1] == "logout":
		if r.Method == http.MethodPost {
			s.handleLogout(w, r)
			return
		}
	case len(segments) == 2 && segments[0] == "auth" && segments[1] == "me":
		if r.Method == http.MethodGet {
			s.handleMe(w, r)
			return
		}
	case len(segments) == 1 && segments[0] == "politicians":
		if r.Method == http.MethodGet {
			s.handleListPoliticians(w, r)
			return
		}
		if r.Method == http.MethodPost {
			s.handleCreatePolitician(w, r)
			return
		}
	case len(segments) == 2 && segments[0] == "politicians":
		if r.Method == http.MethodGet {
			s.handleGetPolitician(w, r, segments[1])
			return
		}
		if r.Method == http.MethodPatch {
			s.handleUpdatePolitician(w, r, segments[1])
			return
		}
		if r.Method == http.MethodDelete {
			s.handleDeletePolitician(w, r, segments[1])
			return
		}
	case len(segments) == 3 && segments[0] == "politicians" && segments[2] == "approve-delete":
		if r.Method == http.MethodPatch {
			s.handleApprovePoliticianDelete(w, r, segments[1])
			return
		}
	case len(segments) == 3 && segments[0] == "politicians" && segments[2] == "statements":
		if r.Method == http.MethodGet {
			s.handleListStatements(w, r, segments[1])
			return
		}
	case len(segments) == 1 && segments[0] == "statements":
		if r.Method == http.MethodGet {
			s.handleListStatements(w, r, r.URL.Query().Get("politicianId"))
			return
		}
		if r.Method == http.MethodPost {
			s.handleCreateStatement(w, r)
			return
		}
	case len(segments) == 2 && segments[0] == "statements":
		if r.Method == http.MethodGet {
			s.handleGetStatement(w, r, segments[1])
			return
		}
		if r.Method == http.MethodDelete {
			s.handleDeleteStatement(w, r, segments[1])
			return
		}
	case len(segments) == 3 && segments[0] == "statements" && segments[2] == "status":
		if r.Method == http.MethodPatch {
			s.handleUpdateStatus(w, r, segments[1])
			return
		}
	case len(segments) == 3 && segments[0] == "statements" && segments[2] == "vote":
		if r.Method == http.MethodPost {
			s.handleVote(w, r, segments[1])
			return
		}
	case len(segments) == 3 && segments[0] == "statements" && segments[2] == "approve-delete":
		if r.Method == http.MethodPatch {
			s.handleApproveStatementDelete(w, r, segments[1])
			return
		}
	case len(segments) == 2 && segments[0] == "moderation" && segments[1] == "flagged":
		if r.Method == http.MethodGet {
			s.handleFlagged(w, r)
			return
		}
	case len(segments) == 2 && segments[0] == "moderation" && segments[1] == "pending":
		if r.Method == http.MethodGet {
			s.handlePending(w, r)
			return
		}
	case len(segments) == 3 && segments[0] == "audit":
		if r.Method == http.MethodGet {
			s.handleAudit(w, r, segments[1], segments[2])
			return
		}
	case len(segments) == 1 && segments[0] == "stats":
		if r.Method == http.MethodGet {
			s.handleStats(w, r)
			return
		}
	default:
		notFound(w, r)
		return
	}
	methodNotAllowed(w, r)
}

func (s *Server) allowRateLimit(w http.ResponseWriter, r *http.Request, action string, limit int) bool {
	if limit <= 0 {
		return true
	}
	ipKey := fmt.Sprintf("%s:ip:%s", action, s.clientIP(r))
	if ok, retry := s.limiter.Allow(ipKey, limit, time.Minute); !ok {
		writeRateLimit(w, r, retry)
		return false
	}
	return true
}

// allowActorLimit applies the same limit keyed by user, so one account cannot
// spread writes across addresses.
func (s *Server) allowActorLimit(w http.ResponseWriter, r *http.Request, action string, limit int, ident auth.Identity) bool {
	if !s.allowRateLimit(w, r, action, limit) {
		return false
	}
	if limit <= 0 {
		return true
	}
	userKey := fmt.Sprintf("%s:user:%s", action, ident.UserID)
	if ok, retry := s.limiter.Allow(userKey, limit, time.Minute); !ok {
		writeRateLimit(w, r, retry)
		return false
	}
	return true
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer ")), true
}

func (s *Server) requireAuth(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	bearer, ok := bearerToken(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, errors.New("missing bearer token"))
		return auth.Identity{}, false
	}
	ident, err := s.auth.Authenticate(r.Context(), bearer)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			writeError(w, r, http.StatusUnauthorized, err)
		} else {
			writeError(w, r, http.StatusUnauthorized, errors.New("invalid bearer token"))
		}
		return auth.Identity{}, false
	}
	return ident, true
}

func (s *Server) clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func readJSON(body io.ReadCloser, dest any) error {
	defer body.Close()
	dec := json.NewDecoder(io.LimitReader(body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dest)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeRateLimit(w http.ResponseWriter, r *http.Request, retry time.Duration) {
	seconds := int(retry.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	writeJSON(w, http.StatusTooManyRequests, errorBody{
		StatusCode: http.StatusTooManyRequests,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Path:       r.URL.Path,
		Error:      "rate limit exceeded",
		RetryAfter: seconds,
	})
}

func notFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, errors.New("not found"))
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func parseIntDefault(value string, def int) int {
	if value == "" {
		return def
	}
	if n, err := strconv.Atoi(value); err == nil {
		return n
	}
	return def
}

func pageParams(r *http.Request) (limit, offset int) {
	q := r.URL.Query()
	return parseIntDefault(q.Get("limit"), defaultPageSize), max(parseIntDefault(q.Get("offset"), 0), 0)
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}
