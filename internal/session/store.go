package session

import (
	"log/slog"
	"strings"
	"sync"
	"time"
)

const defaultRememberTTL = 30 * 24 * time.Hour

// CookieJar is the cookie tier. A zero expires means a session-scoped cookie.
type CookieJar interface {
	Get(name string) (string, bool, error)
	Set(name string, value string, expires time.Time) error
	Delete(name string) error
}

// KV is a durable or ephemeral key/value tier.
type KV interface {
	Get(key string) (string, bool, error)
	Set(key string, value string) error
	Delete(key string) error
}

// Tiers groups the three storage tiers. A nil tier is treated as unavailable:
// writes to it are skipped and reads miss.
type Tiers struct {
	Cookies   CookieJar
	Durable   KV
	Ephemeral KV
}

// Snapshot is a loggable view of the session. It never carries the token.
type Snapshot struct {
	Authenticated bool   `json:"authenticated"`
	Role          string `json:"role,omitempty"`
	RawRole       string `json:"rawRole,omitempty"`
	Kind          Role   `json:"-"`
}

type Store struct {
	tiers       Tiers
	logger      *slog.Logger
	now         func() time.Time
	rememberTTL time.Duration

	// mu serialises multi-fact writes so a concurrent reader never sees a
	// half-written role.
	mu sync.RWMutex
}

type Option func(*Store)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func WithRememberTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.rememberTTL = ttl
		}
	}
}

func New(tiers Tiers, opts ...Option) *Store {
	s := &Store{
		tiers:       tiers,
		logger:      slog.Default(),
		now:         time.Now,
		rememberTTL: defaultRememberTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "session")

	return s
}

func (s *Store) SetToken(token string, rememberMe bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.setCookie(factToken, token, s.cookieExpiry(rememberMe))
	s.setStorage(s.storageFor(rememberMe), factToken, token)
}

func (s *Store) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, read := range s.readers() {
		if token, ok := read(factToken); ok {
			return token, true
		}
	}

	return "", false
}

// Remembered reports whether the token lives in the durable tier, i.e. the
// session was created with remember-me.
func (s *Store) Remembered() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.tiers.Durable == nil {
		return false
	}
	_, ok := s.kvReader(s.tiers.Durable)(factToken)
	return ok
}

func (s *Store) IsAuthenticated() bool {
	_, ok := s.Token()
	return ok
}

// SetRole normalises and persists the role facts. A content creator flag
// overrides whatever role was passed; any other role that does not already
// denote a company is forced to the company role.
func (s *Store) SetRole(role string, rawRole string, rememberMe bool, isContentCreator bool) {
	switch {
	case isContentCreator:
		role = RoleContentCreator.String()
		rawRole = RoleContentCreator.Raw()
	case !denotesCompany(role):
		role = RoleCompany.String()
		rawRole = RoleCompany.Raw()
	}

	role = strings.ToUpper(role)
	rawRole = strings.ToUpper(rawRole)
	if rawRole == "" {
		rawRole = strings.TrimPrefix(role, rolePrefix)
	}

	facts := newRoleFacts(role, rawRole, isContentCreator)

	s.mu.Lock()
	defer s.mu.Unlock()

	expires := s.cookieExpiry(rememberMe)
	target := s.storageFor(rememberMe)
	for _, f := range []fact{factRole, factRawRole, factUserType, factIsContentCreator, factIsCompany} {
		s.setCookie(f, facts[f], expires)
		s.setStorage(target, f, facts[f])
	}
}

// Role returns the prefixed role, resolving tiers cookie first, then durable,
// then ephemeral. Within a tier: userType, isContentCreator, isCompany, role.
func (s *Store) Role() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, read := range s.readers() {
		if res, ok := resolveTier(read); ok && res.role != "" {
			return res.role, true
		}
	}

	return "", false
}

// RawRole follows the same chain as Role but returns the un-prefixed token.
func (s *Store) RawRole() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, read := range s.readers() {
		if res, ok := resolveTier(read); ok && res.raw != "" {
			return res.raw, true
		}
	}

	return "", false
}

// Kind resolves the role into its tagged form. Role strings that the
// substring rules cannot classify fall through to the next tier.
func (s *Store) Kind() (Role, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.kindLocked()
}

func (s *Store) IsContentCreator() bool {
	kind, ok := s.Kind()
	return ok && kind == RoleContentCreator
}

func (s *Store) IsCompany() bool {
	return !s.IsContentCreator()
}

func (s *Store) Snapshot() Snapshot {
	role, _ := s.Role()
	raw, _ := s.RawRole()
	kind, _ := s.Kind()

	return Snapshot{
		Authenticated: s.IsAuthenticated(),
		Role:          role,
		RawRole:       raw,
		Kind:          kind,
	}
}

// ClearSession removes every session fact from every tier. Clearing an
// empty session is a no-op.
func (s *Store) ClearSession() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range allFacts {
		if s.tiers.Cookies != nil {
			if err := s.tiers.Cookies.Delete(cookieKeys[f]); err != nil {
				s.logger.Debug("cookie tier delete failed", "key", cookieKeys[f], "error", err)
			}
		}
		for _, kv := range []KV{s.tiers.Durable, s.tiers.Ephemeral} {
			if kv == nil {
				continue
			}
			if err := kv.Delete(storageKeys[f]); err != nil {
				s.logger.Debug("storage tier delete failed", "key", storageKeys[f], "error", err)
			}
		}
	}
}

func (s *Store) kindLocked() (Role, bool) {
	for _, read := range s.readers() {
		res, ok := resolveTier(read)
		if ok && res.kind != 0 {
			return res.kind, true
		}
	}

	return 0, false
}

func (s *Store) cookieExpiry(rememberMe bool) time.Time {
	if !rememberMe {
		return time.Time{}
	}
	return s.now().Add(s.rememberTTL)
}

func (s *Store) storageFor(rememberMe bool) KV {
	if rememberMe {
		return s.tiers.Durable
	}
	return s.tiers.Ephemeral
}

func (s *Store) setCookie(f fact, value string, expires time.Time) {
	if s.tiers.Cookies == nil {
		return
	}
	if err := s.tiers.Cookies.Set(cookieKeys[f], value, expires); err != nil {
		s.logger.Debug("cookie tier write failed", "key", cookieKeys[f], "error", err)
	}
}

func (s *Store) setStorage(kv KV, f fact, value string) {
	if kv == nil {
		return
	}
	if err := kv.Set(storageKeys[f], value); err != nil {
		s.logger.Debug("storage tier write failed", "key", storageKeys[f], "error", err)
	}
}

// readers returns the tiers in resolution order.
func (s *Store) readers() []tierReader {
	readers := make([]tierReader, 0, 3)
	if s.tiers.Cookies != nil {
		readers = append(readers, s.cookieReader())
	}
	for _, kv := range []KV{s.tiers.Durable, s.tiers.Ephemeral} {
		if kv != nil {
			readers = append(readers, s.kvReader(kv))
		}
	}

	return readers
}

func (s *Store) cookieReader() tierReader {
	return func(f fact) (string, bool) {
		value, ok, err := s.tiers.Cookies.Get(cookieKeys[f])
		if err != nil {
			s.logger.Debug("cookie tier read failed", "key", cookieKeys[f], "error", err)
			return "", false
		}
		return value, ok && value != ""
	}
}

func (s *Store) kvReader(kv KV) tierReader {
	return func(f fact) (string, bool) {
		value, ok, err := kv.Get(storageKeys[f])
		if err != nil {
			s.logger.Debug("storage tier read failed", "key", storageKeys[f], "error", err)
			return "", false
		}
		return value, ok && value != ""
	}
}
