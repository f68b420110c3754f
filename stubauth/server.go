// Package stubauth is a development implementation of the auth backend
// contract: POST /auth/login and POST /auth/switch-role. Unlike the portal
// client's advisory bookkeeping, this backend enforces role exclusivity
// authoritatively across the tokens it has issued.
package stubauth

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-portal-sessions/tabs"
	"github.com/jrsteele09/go-portal-sessions/users"
)

const defaultTokenTTL = time.Hour

// Server implements the auth backend HTTP contract.
type Server struct {
	mux      *http.ServeMux
	userRepo users.UserRepo
	secret   []byte
	tokenTTL time.Duration
	logger   zerolog.Logger
	nowTime  func() time.Time

	holdsLock sync.Mutex
	holds     map[tabs.Role]roleHold
}

// ServerOption modifies a Server instance.
type ServerOption func(*Server)

// WithTokenTTL sets how long issued tokens (and their role holds) live.
func WithTokenTTL(ttl time.Duration) ServerOption {
	return func(s *Server) {
		if ttl > 0 {
			s.tokenTTL = ttl
		}
	}
}

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(nowFunc func() time.Time) ServerOption {
	return func(s *Server) {
		s.nowTime = nowFunc
	}
}

// WithLogger sets the server's logger.
func WithLogger(logger zerolog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates the stub backend over the given user repository.
func New(userRepo users.UserRepo, secret []byte, options ...ServerOption) (*Server, error) {
	if userRepo == nil {
		return nil, errors.New("[stubauth.New] userRepo is required")
	}
	if len(secret) == 0 {
		return nil, errors.New("[stubauth.New] signing secret is required")
	}

	s := &Server{
		mux:      http.NewServeMux(),
		userRepo: userRepo,
		secret:   secret,
		tokenTTL: defaultTokenTTL,
		logger:   zerolog.Nop(),
		nowTime:  time.Now,
		holds:    make(map[tabs.Role]roleHold),
	}
	for _, opt := range options {
		opt(s)
	}

	s.mux.HandleFunc("POST /auth/login", s.LoginHandler())
	s.mux.HandleFunc("POST /auth/switch-role", s.SwitchRoleHandler())
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// AddUser registers an account, hashing its password. Intended for seeding.
func (s *Server) AddUser(email, name, password string, roles ...tabs.Role) error {
	if err := users.ValidatePasswordStrength(password); err != nil {
		return errors.Wrap(err, "[Server.AddUser]")
	}
	passwordHash, err := users.HashPassword(password)
	if err != nil {
		return errors.Wrap(err, "[Server.AddUser] HashPassword")
	}
	return s.userRepo.Upsert(&users.User{
		Email:        email,
		Name:         name,
		PasswordHash: passwordHash,
		Roles:        roles,
		DateJoined:   s.nowTime(),
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type loginResponse struct {
	Success bool         `json:"success"`
	Token   string       `json:"token,omitempty"`
	User    tabs.Profile `json:"user,omitempty"`
	Error   string       `json:"error,omitempty"`
}

type switchRoleRequest struct {
	TargetRole string `json:"targetRole"`
}

type switchRoleResponse struct {
	Success bool   `json:"success"`
	Role    string `json:"role,omitempty"`
	Token   string `json:"token,omitempty"`
	Error   string `json:"error,omitempty"`
}

// LoginHandler validates credentials and the requested role, enforces role
// exclusivity and issues a token.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, loginResponse{Error: "malformed request"})
			return
		}

		role, err := tabs.ParseRole(req.Role)
		if err != nil || role == tabs.RoleNone {
			writeJSON(w, http.StatusBadRequest, loginResponse{Error: "unknown role"})
			return
		}

		user, err := s.userRepo.GetByEmail(req.Email)
		if err != nil || !users.CheckPasswordHash(req.Password, user.PasswordHash) {
			writeJSON(w, http.StatusUnauthorized, loginResponse{Error: "invalid email or password"})
			return
		}
		if user.Blocked {
			writeJSON(w, http.StatusForbidden, loginResponse{Error: "account is blocked"})
			return
		}
		if !user.HasRole(role) {
			writeJSON(w, http.StatusForbidden, loginResponse{Error: "account may not sign in as " + string(role)})
			return
		}

		token, jti, err := s.mintToken(user.ID, user.Email, user.Name, role)
		if err != nil {
			s.logger.Err(err).Msg("token mint failed")
			writeJSON(w, http.StatusInternalServerError, loginResponse{Error: "internal error"})
			return
		}

		if !s.acquireRole(role, user.Email, jti) {
			writeJSON(w, http.StatusConflict, loginResponse{Error: "role " + string(role) + " is already in use"})
			return
		}

		user.LastLogin = s.nowTime()
		if err := s.userRepo.Upsert(user); err != nil {
			s.logger.Err(err).Msg("failed to record last login")
		}

		s.logger.Info().Str("email", user.Email).Str("role", string(role)).Msg("login")
		writeJSON(w, http.StatusOK, loginResponse{
			Success: true,
			Token:   token,
			User:    user.Profile(),
		})
	}
}

// SwitchRoleHandler moves a live session to another role, releasing the old
// hold and acquiring the new one.
func (s *Server) SwitchRoleHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			writeJSON(w, http.StatusUnauthorized, switchRoleResponse{Error: "missing bearer token"})
			return
		}
		claims, err := s.parseToken(raw)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, switchRoleResponse{Error: "invalid or expired token"})
			return
		}

		var req switchRoleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, switchRoleResponse{Error: "malformed request"})
			return
		}
		target, err := tabs.ParseRole(req.TargetRole)
		if err != nil || target == tabs.RoleNone {
			writeJSON(w, http.StatusBadRequest, switchRoleResponse{Error: "unknown role"})
			return
		}

		user, err := s.userRepo.GetByID(claims.Subject)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, switchRoleResponse{Error: "unknown account"})
			return
		}
		if !user.HasRole(target) {
			writeJSON(w, http.StatusForbidden, switchRoleResponse{Error: "account may not sign in as " + string(target)})
			return
		}

		currentRole, err := tabs.ParseRole(claims.Role)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, switchRoleResponse{Error: "invalid or expired token"})
			return
		}

		token, jti, err := s.mintToken(user.ID, user.Email, user.Name, target)
		if err != nil {
			s.logger.Err(err).Msg("token mint failed")
			writeJSON(w, http.StatusInternalServerError, switchRoleResponse{Error: "internal error"})
			return
		}

		if !s.switchHold(currentRole, claims.ID, target, user.Email, jti) {
			writeJSON(w, http.StatusConflict, switchRoleResponse{Error: "role " + string(target) + " is already in use"})
			return
		}

		s.logger.Info().Str("email", user.Email).Str("from", string(currentRole)).Str("to", string(target)).Msg("role switch")
		writeJSON(w, http.StatusOK, switchRoleResponse{
			Success: true,
			Role:    string(target),
			Token:   token,
		})
	}
}

// acquireRole takes the hold on role for email. A hold owned by the same
// account is replaced (re-login regains the session); one owned by a
// different account rejects the request.
func (s *Server) acquireRole(role tabs.Role, email, jti string) bool {
	s.holdsLock.Lock()
	defer s.holdsLock.Unlock()

	s.expireHoldsLocked()
	if hold, ok := s.holds[role]; ok && hold.email != email {
		return false
	}
	s.holds[role] = roleHold{email: email, jti: jti, expiresAt: s.nowTime().Add(s.tokenTTL)}
	return true
}

// switchHold releases the source role (if still owned by the presenting
// token) and acquires the target.
func (s *Server) switchHold(from tabs.Role, fromJTI string, to tabs.Role, email, jti string) bool {
	s.holdsLock.Lock()
	defer s.holdsLock.Unlock()

	s.expireHoldsLocked()
	if hold, ok := s.holds[to]; ok && hold.email != email {
		return false
	}
	if hold, ok := s.holds[from]; ok && hold.jti == fromJTI {
		delete(s.holds, from)
	}
	s.holds[to] = roleHold{email: email, jti: jti, expiresAt: s.nowTime().Add(s.tokenTTL)}
	return true
}

func (s *Server) expireHoldsLocked() {
	now := s.nowTime()
	for role, hold := range s.holds {
		if hold.expiresAt.Before(now) {
			delete(s.holds, role)
		}
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
