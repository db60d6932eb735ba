// Package session keeps the signed-in console user between runs: the bearer
// token in the OS keyring and the user record in a YAML file.
package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"gopkg.in/yaml.v3"

	"github.com/gvafram3/parcel-console/internal/apiclient"
	"github.com/gvafram3/parcel-console/internal/model"
)

const (
	tokenAccount = "bearer-token"
	userFile     = "user.yaml"
)

var (
	ErrNoSession = errors.New("not signed in")
	ErrExpired   = errors.New("session expired")
)

// record is the on-disk shape of user.yaml.
type record struct {
	User      model.User `yaml:"user"`
	ExpiresAt time.Time  `yaml:"expires_at,omitempty"`
}

// Manager owns the current session. It is safe for concurrent use; list
// stores call Viewer and Token from their fetch goroutines.
type Manager struct {
	keys    Keyring
	service string
	dir     string
	now     func() time.Time
	log     zerolog.Logger

	mu        sync.Mutex
	loaded    bool
	rec       *record
	onSignOut []func()
}

// NewManager builds a manager storing the token under service in keys and
// the user record under dir.
func NewManager(keys Keyring, service, dir string, logger zerolog.Logger) *Manager {
	return &Manager{
		keys:    keys,
		service: service,
		dir:     dir,
		now:     time.Now,
		log:     logger.With().Str("module", "session").Logger(),
	}
}

// OnSignOut registers fn to run after the session is torn down by Clear or
// by HandleAPIError.
func (m *Manager) OnSignOut(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSignOut = append(m.onSignOut, fn)
}

// Save stores a fresh sign-in.
func (m *Manager) Save(res apiclient.LoginResult) error {
	if err := os.MkdirAll(m.dir, 0o700); err != nil {
		return fmt.Errorf("failed to create session dir: %w", err)
	}
	rec := &record{User: res.User, ExpiresAt: res.ExpiresAt}
	data, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := m.keys.Set(m.service, tokenAccount, res.Token); err != nil {
		return err
	}
	if err := os.WriteFile(m.path(), data, 0o600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}

	m.mu.Lock()
	m.rec, m.loaded = rec, true
	m.mu.Unlock()
	m.log.Info().Str("user_id", res.User.ID).Str("role", string(res.User.Role)).Msg("signed in")
	return nil
}

// Token implements oauth2.TokenSource.
func (m *Manager) Token() (*oauth2.Token, error) {
	rec, err := m.current()
	if err != nil {
		return nil, err
	}
	if !rec.ExpiresAt.IsZero() && !m.now().Before(rec.ExpiresAt) {
		return nil, ErrExpired
	}
	tok, err := m.keys.Get(m.service, tokenAccount)
	if errors.Is(err, ErrSecretNotFound) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{AccessToken: tok, TokenType: "Bearer", Expiry: rec.ExpiresAt}, nil
}

// CurrentUser returns the signed-in user.
func (m *Manager) CurrentUser() (model.User, error) {
	rec, err := m.current()
	if err != nil {
		return model.User{}, err
	}
	return rec.User, nil
}

// Viewer reports the signed-in user's role and scope. ok is false when
// nobody is signed in.
func (m *Manager) Viewer() (model.Viewer, bool) {
	rec, err := m.current()
	if err != nil {
		return model.Viewer{}, false
	}
	return rec.User.Viewer(), true
}

// Clear signs out. Clearing an absent session is not an error.
func (m *Manager) Clear() error {
	if err := m.keys.Delete(m.service, tokenAccount); err != nil && !errors.Is(err, ErrSecretNotFound) {
		return err
	}
	if err := os.Remove(m.path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}

	m.mu.Lock()
	m.rec, m.loaded = nil, true
	hooks := append([]func(){}, m.onSignOut...)
	m.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
	return nil
}

// HandleAPIError tears the session down when the backend rejected the
// token. Other errors are ignored. It is meant for liststore.WithErrorHandler.
func (m *Manager) HandleAPIError(err error) {
	if !errors.Is(err, apiclient.ErrUnauthorized) {
		return
	}
	m.log.Warn().Err(err).Msg("backend rejected the session, signing out")
	if cerr := m.Clear(); cerr != nil {
		m.log.Error().Err(cerr).Msg("failed to clear session")
	}
}

func (m *Manager) path() string { return filepath.Join(m.dir, userFile) }

func (m *Manager) current() (*record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.loaded {
		rec, err := m.read()
		if err != nil {
			return nil, err
		}
		m.rec, m.loaded = rec, true
	}
	if m.rec == nil {
		return nil, ErrNoSession
	}
	return m.rec, nil
}

func (m *Manager) read() (*record, error) {
	data, err := os.ReadFile(m.path())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}
	var rec record
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode session file: %w", err)
	}
	return &rec, nil
}
