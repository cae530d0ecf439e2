package services

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// TokenIDPrefix namespaces every id minted by the store. The "token" auth
// method uses it for its prefix shape check.
const TokenIDPrefix = "tok_"

// tokenValueSize is the number of random bytes backing a token value.
const tokenValueSize = 32

// Token is a read-only snapshot of a stored token. Valid reflects the lazy
// expiry check performed at snapshot time.
type Token struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	ExpiresAt time.Time      `json:"expires_at"`
	Valid     bool           `json:"valid"`
}

// IssuedToken is returned by CreateToken. Value is the opaque secret; it is
// only surfaced here, snapshots never include it.
type IssuedToken struct {
	ID        string    `json:"id"`
	Value     string    `json:"value"`
	Type      string    `json:"type"`
	ExpiresAt time.Time `json:"expires_at"`
}

type tokenRecord struct {
	id        string
	tokenType string
	value     string
	payload   map[string]any
	createdAt time.Time
	expiresAt time.Time
	valid     bool
}

// TokenStoreOption customizes store construction.
type TokenStoreOption func(*TokenStore)

// WithTokenClock injects a custom clock (useful for tests).
func WithTokenClock(clock func() time.Time) TokenStoreOption {
	return func(ts *TokenStore) {
		if clock != nil {
			ts.now = clock
		}
	}
}

// WithTokenLogger overrides the store logger.
func WithTokenLogger(logger Logger) TokenStoreOption {
	return func(ts *TokenStore) {
		if logger != nil {
			ts.logger = logger
		}
	}
}

// WithValueGenerator selects the entropy source for token values.
func WithValueGenerator(gen ValueGenerator) TokenStoreOption {
	return func(ts *TokenStore) {
		if gen != nil {
			ts.gen = gen
		}
	}
}

// TokenStore owns the full lifecycle of opaque bearer tokens: creation,
// validation with lazy expiry, revocation, and caller-scheduled cleanup.
// Other components hold token ids only, never records.
type TokenStore struct {
	mu          sync.Mutex
	initialized bool
	tokens      map[string]*tokenRecord
	gen         ValueGenerator
	now         func() time.Time
	logger      Logger
}

// NewTokenStore returns an uninitialized store. Call Initialize before use.
func NewTokenStore(opts ...TokenStoreOption) *TokenStore {
	ts := &TokenStore{
		gen:    CryptoGenerator{},
		now:    time.Now,
		logger: defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(ts)
		}
	}

	return ts
}

func (ts *TokenStore) Name() string { return "token-store" }

// Initialize prepares the store. The first call clears any token state;
// repeated calls are no-op successes so a coordinating loader can
// re-initialize defensively.
func (ts *TokenStore) Initialize() error {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.initialized {
		return nil
	}

	ts.tokens = make(map[string]*tokenRecord)
	ts.initialized = true
	return nil
}

// CreateToken mints a token of the given type carrying an arbitrary payload.
// ttl is relative to the store clock; the returned value is the only copy of
// the secret the store hands out.
func (ts *TokenStore) CreateToken(tokenType string, payload map[string]any, ttl time.Duration) (*IssuedToken, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if !ts.initialized {
		return nil, ErrNotInitialized
	}

	value, err := ts.gen.Generate(tokenValueSize)
	if err != nil {
		ts.logger.Error("token value generation failed: %v", err)
		return nil, err
	}

	now := ts.now()
	rec := &tokenRecord{
		id:        TokenIDPrefix + uuid.NewString(),
		tokenType: tokenType,
		value:     value,
		payload:   clonePayload(payload),
		createdAt: now,
		expiresAt: now.Add(ttl),
		valid:     true,
	}
	ts.tokens[rec.id] = rec

	return &IssuedToken{
		ID:        rec.id,
		Value:     rec.value,
		Type:      rec.tokenType,
		ExpiresAt: rec.expiresAt,
	}, nil
}

// ValidateToken reports whether the token is currently valid. Unknown ids
// are simply invalid. A token observed past its expiry has its valid flag
// flipped permanently, so expiry is monotonic even if the clock moves back.
func (ts *TokenStore) ValidateToken(id string) (bool, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if !ts.initialized {
		return false, ErrNotInitialized
	}

	return ts.validateLocked(id), nil
}

func (ts *TokenStore) validateLocked(id string) bool {
	rec, ok := ts.tokens[id]
	if !ok {
		return false
	}

	if rec.valid && ts.now().After(rec.expiresAt) {
		rec.valid = false
	}
	return rec.valid
}

// GetToken returns a snapshot with validity recomputed, or ErrTokenNotFound
// for unknown ids. The secret value is not part of the snapshot.
func (ts *TokenStore) GetToken(id string) (*Token, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if !ts.initialized {
		return nil, ErrNotInitialized
	}

	rec, ok := ts.tokens[id]
	if !ok {
		return nil, ErrTokenNotFound
	}

	valid := ts.validateLocked(id)

	return &Token{
		ID:        rec.id,
		Type:      rec.tokenType,
		Payload:   clonePayload(rec.payload),
		CreatedAt: rec.createdAt,
		ExpiresAt: rec.expiresAt,
		Valid:     valid,
	}, nil
}

// RevokeToken invalidates a token without deleting it; the record stays
// retrievable as invalid. Returns false for unknown ids.
func (ts *TokenStore) RevokeToken(id string) (bool, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if !ts.initialized {
		return false, ErrNotInitialized
	}

	rec, ok := ts.tokens[id]
	if !ok {
		return false, nil
	}

	rec.valid = false
	return true, nil
}

// DeleteToken removes a record entirely. Used by logout's revoke-and-delete
// path. Returns false for unknown ids.
func (ts *TokenStore) DeleteToken(id string) (bool, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if !ts.initialized {
		return false, ErrNotInitialized
	}

	if _, ok := ts.tokens[id]; !ok {
		return false, nil
	}

	delete(ts.tokens, id)
	return true, nil
}

// CleanupExpiredTokens deletes every record past its expiry and returns the
// count removed. The store never self-schedules this; callers decide the
// sweep cadence.
func (ts *TokenStore) CleanupExpiredTokens() (int, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if !ts.initialized {
		return 0, ErrNotInitialized
	}

	now := ts.now()
	removed := 0
	for id, rec := range ts.tokens {
		if now.After(rec.expiresAt) {
			delete(ts.tokens, id)
			removed++
		}
	}

	if removed > 0 {
		ts.logger.Debug("token cleanup removed %d expired tokens", removed)
	}
	return removed, nil
}

// Status reports the initialized flag plus token counts.
func (ts *TokenStore) Status() Status {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	valid := 0
	now := ts.now()
	for _, rec := range ts.tokens {
		if rec.valid && !now.After(rec.expiresAt) {
			valid++
		}
	}

	return Status{
		Name:        ts.Name(),
		Initialized: ts.initialized,
		Counts: map[string]int{
			"tokens": len(ts.tokens),
			"valid":  valid,
		},
	}
}

func clonePayload(payload map[string]any) map[string]any {
	if payload == nil {
		return nil
	}
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = v
	}
	return out
}
