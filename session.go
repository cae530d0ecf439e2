package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionMirrorKey is the mirror slot holding the current session token id.
const SessionMirrorKey = "pewpi_session"

// Event types published on the optional bus wired via WithSessionBus.
const (
	EventAuthLogin  = "auth.login"
	EventAuthLogout = "auth.logout"
)

const (
	sessionTokenType  = "session"
	defaultSessionTTL = 24 * time.Hour
)

// User is the identity attached to a session.
type User struct {
	ID              string    `json:"id"`
	Identifier      string    `json:"identifier"`
	Method          string    `json:"method"`
	AuthenticatedAt time.Time `json:"authenticated_at"`
}

// SessionInfo is a read-only view of one active session.
type SessionInfo struct {
	TokenID   string    `json:"token_id"`
	User      User      `json:"user"`
	CreatedAt time.Time `json:"created_at"`
}

// AuthResult reports an authentication attempt. Credential rejections are
// soft failures: Success=false with an Error string, never a raised error.
type AuthResult struct {
	Success      bool         `json:"success"`
	User         *User        `json:"user,omitempty"`
	SessionToken *IssuedToken `json:"session_token,omitempty"`
	Error        string       `json:"error,omitempty"`
}

type sessionRecord struct {
	user      *User
	tokenID   string
	createdAt time.Time
}

// SessionOption customizes manager construction.
type SessionOption func(*SessionManager)

// WithSessionMirror sets the external session-pointer mirror. Defaults to
// NoopMirror (no persistence).
func WithSessionMirror(mirror SessionMirror) SessionOption {
	return func(sm *SessionManager) {
		if mirror != nil {
			sm.mirror = mirror
		}
	}
}

// WithSessionBus wires an event bus for auth.login / auth.logout
// notifications. Publishing is best effort.
func WithSessionBus(bus *EventBus) SessionOption {
	return func(sm *SessionManager) {
		sm.bus = bus
	}
}

// WithSessionTTL overrides the 24h default session token lifetime.
func WithSessionTTL(ttl time.Duration) SessionOption {
	return func(sm *SessionManager) {
		if ttl > 0 {
			sm.sessionTTL = ttl
		}
	}
}

// WithSessionLogger overrides the manager logger.
func WithSessionLogger(logger Logger) SessionOption {
	return func(sm *SessionManager) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

// WithSessionClock injects a custom clock (useful for tests).
func WithSessionClock(clock func() time.Time) SessionOption {
	return func(sm *SessionManager) {
		if clock != nil {
			sm.now = clock
		}
	}
}

// WithCredentialValidator registers or replaces the strategy for one auth
// method.
func WithCredentialValidator(v CredentialValidator) SessionOption {
	return func(sm *SessionManager) {
		if v != nil {
			sm.validators[v.Method()] = v
		}
	}
}

// SessionManager composes the TokenStore into a single-active-identity
// session layer: a successful shape check mints a session token, records a
// session keyed by the token id, and tracks one "current user" slot.
// Multiple sessions may exist in the map, but only one identity is current.
type SessionManager struct {
	mu          sync.Mutex
	initialized bool
	tokens      *TokenStore
	sessions    map[string]*sessionRecord
	current     *User
	mirror      SessionMirror
	bus         *EventBus
	validators  map[string]CredentialValidator
	sessionTTL  time.Duration
	logger      Logger
	now         func() time.Time
}

// NewSessionManager builds a manager around the given token store. The
// store is a hard dependency; Initialize fails without it.
func NewSessionManager(tokens *TokenStore, opts ...SessionOption) *SessionManager {
	sm := &SessionManager{
		tokens:     tokens,
		mirror:     NoopMirror{},
		validators: defaultCredentialValidators(),
		sessionTTL: defaultSessionTTL,
		logger:     defLogger{},
		now:        time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	return sm
}

func (sm *SessionManager) Name() string { return "session" }

// Initialize wires up the manager and attempts a best-effort session
// restore: if the mirror holds a token id that still validates, the current
// user is reconstructed from the token payload. Repeated calls are no-op
// successes.
func (sm *SessionManager) Initialize() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.initialized {
		return nil
	}
	if sm.tokens == nil {
		return ErrNilDependency
	}

	sm.sessions = make(map[string]*sessionRecord)
	sm.initialized = true
	sm.restoreLocked()
	return nil
}

func (sm *SessionManager) restoreLocked() {
	tokenID, ok, err := sm.mirror.Get(SessionMirrorKey)
	if err != nil {
		sm.logger.Warn("session mirror read failed: %v", err)
		return
	}
	if !ok || tokenID == "" {
		return
	}

	valid, err := sm.tokens.ValidateToken(tokenID)
	if err != nil || !valid {
		return
	}

	tok, err := sm.tokens.GetToken(tokenID)
	if err != nil {
		return
	}

	user := userFromPayload(tok.Payload)
	if user == nil {
		sm.logger.Warn("restored session token %s has no user payload", tokenID)
		return
	}
	user.AuthenticatedAt = tok.CreatedAt

	sm.sessions[tokenID] = &sessionRecord{
		user:      user,
		tokenID:   tokenID,
		createdAt: tok.CreatedAt,
	}
	sm.current = user
	sm.logger.Info("restored session for %s", user.Identifier)
}

// Authenticate runs the method's credential strategy and, on success, mints
// a session token, records the session, sets the current-user slot, and
// best-effort persists the token id to the mirror. Unknown methods use the
// password policy.
func (sm *SessionManager) Authenticate(ctx context.Context, identifier, credential, method string) (*AuthResult, error) {
	sm.mu.Lock()

	if !sm.initialized {
		sm.mu.Unlock()
		return nil, ErrNotInitialized
	}

	if method == "" {
		method = MethodPassword
	}
	validator, ok := sm.validators[method]
	if !ok {
		validator = sm.validators[MethodPassword]
	}

	if err := validator.Validate(identifier, credential); err != nil {
		sm.mu.Unlock()
		sm.logger.Debug("authentication rejected for %s (%s): %v", identifier, method, err)
		return &AuthResult{Success: false, Error: resultInvalidCredentials}, nil
	}

	user := &User{
		ID:              "usr_" + uuid.NewString(),
		Identifier:      identifier,
		Method:          method,
		AuthenticatedAt: sm.now(),
	}

	token, err := sm.tokens.CreateToken(sessionTokenType, map[string]any{
		"userId":     user.ID,
		"identifier": user.Identifier,
		"method":     user.Method,
	}, sm.sessionTTL)
	if err != nil {
		sm.mu.Unlock()
		return nil, err
	}

	sm.sessions[token.ID] = &sessionRecord{
		user:      user,
		tokenID:   token.ID,
		createdAt: sm.now(),
	}
	sm.current = user

	if err := sm.mirror.Set(SessionMirrorKey, token.ID); err != nil {
		sm.logger.Warn("session mirror write failed: %v", err)
	}
	sm.mu.Unlock()

	sm.publish(ctx, EventAuthLogin, map[string]any{
		"userId":     user.ID,
		"identifier": user.Identifier,
		"method":     user.Method,
	})

	out := *user
	return &AuthResult{Success: true, User: &out, SessionToken: token}, nil
}

// AuthenticateWallet drives the wallet flow end to end: connect, sign a
// challenge, then authenticate with the wallet method using the address as
// identifier and the signature as credential.
func (sm *SessionManager) AuthenticateWallet(ctx context.Context, provider WalletProvider, kind string) (*AuthResult, error) {
	if provider == nil {
		return nil, ErrNilDependency
	}

	account, err := provider.Connect(ctx, kind)
	if err != nil {
		return &AuthResult{Success: false, Error: err.Error()}, nil
	}

	signature, err := provider.SignMessage(ctx, walletChallenge)
	if err != nil {
		return &AuthResult{Success: false, Error: err.Error()}, nil
	}

	return sm.Authenticate(ctx, account.Address, signature, MethodWallet)
}

// ValidateSession is true iff a session record exists for the token id and
// the underlying token still validates.
func (sm *SessionManager) ValidateSession(tokenID string) (bool, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !sm.initialized {
		return false, ErrNotInitialized
	}

	if _, ok := sm.sessions[tokenID]; !ok {
		return false, nil
	}

	return sm.tokens.ValidateToken(tokenID)
}

// GetCurrentUser returns a copy of the single current-user slot, or nil.
func (sm *SessionManager) GetCurrentUser() *User {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.current == nil {
		return nil
	}
	out := *sm.current
	return &out
}

// Logout revokes and deletes every session belonging to the current user,
// matched by user id, clears the current-user slot, and removes the mirror
// entry. A logout with no current user is a no-op.
func (sm *SessionManager) Logout(ctx context.Context) error {
	sm.mu.Lock()

	if !sm.initialized {
		sm.mu.Unlock()
		return ErrNotInitialized
	}

	if sm.current == nil {
		sm.mu.Unlock()
		return nil
	}

	user := sm.current
	for tokenID, rec := range sm.sessions {
		if rec.user.ID != user.ID {
			continue
		}
		if _, err := sm.tokens.RevokeToken(tokenID); err != nil {
			sm.mu.Unlock()
			return err
		}
		if _, err := sm.tokens.DeleteToken(tokenID); err != nil {
			sm.mu.Unlock()
			return err
		}
		delete(sm.sessions, tokenID)
	}

	sm.current = nil
	if err := sm.mirror.Delete(SessionMirrorKey); err != nil {
		sm.logger.Warn("session mirror delete failed: %v", err)
	}
	sm.mu.Unlock()

	sm.publish(ctx, EventAuthLogout, map[string]any{
		"userId":     user.ID,
		"identifier": user.Identifier,
	})
	return nil
}

// Sessions returns read-only views of the active session map.
func (sm *SessionManager) Sessions() []SessionInfo {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	out := make([]SessionInfo, 0, len(sm.sessions))
	for _, rec := range sm.sessions {
		out = append(out, SessionInfo{
			TokenID:   rec.tokenID,
			User:      *rec.user,
			CreatedAt: rec.createdAt,
		})
	}
	return out
}

// Status reports the initialized flag plus session counts.
func (sm *SessionManager) Status() Status {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	currentUser := 0
	if sm.current != nil {
		currentUser = 1
	}

	return Status{
		Name:        sm.Name(),
		Initialized: sm.initialized,
		Counts: map[string]int{
			"sessions":     len(sm.sessions),
			"current_user": currentUser,
		},
	}
}

func (sm *SessionManager) publish(ctx context.Context, eventType string, data map[string]any) {
	if sm.bus == nil {
		return
	}
	if err := sm.bus.Emit(ctx, eventType, data); err != nil {
		sm.logger.Warn("auth event publish failed: %v", err)
	}
}

func userFromPayload(payload map[string]any) *User {
	id, _ := payload["userId"].(string)
	identifier, _ := payload["identifier"].(string)
	method, _ := payload["method"].(string)

	if id == "" || identifier == "" {
		return nil
	}
	return &User{ID: id, Identifier: identifier, Method: method}
}
