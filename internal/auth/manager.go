// Package auth implements SSH key challenge-response authentication.
//
// Flow:
//  1. Client sends its public key; the server checks it against the
//     authorized set and issues a random challenge.
//  2. Client signs the challenge with its private key.
//  3. Server verifies the signature and issues a bearer token.
//  4. Client presents the token on every subsequent request.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/tlindqvist/syncbox/internal/apperr"
	"github.com/tlindqvist/syncbox/internal/metastore"
)

// Challenge is an issued, not-yet-verified challenge. ExpiresAt is Unix
// seconds.
type Challenge struct {
	Challenge string `json:"challenge"`
	PublicKey string `json:"public_key"`
	ExpiresAt int64  `json:"expires_at"`
}

// Token is an issued bearer token. ExpiresAt is Unix seconds.
type Token struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

// Manager owns the in-memory authorized-key set and drives the
// challenge-response protocol on top of the metadata store's
// token/challenge tables. One Manager is constructed per server
// instance; there is no process-wide state.
type Manager struct {
	store           *metastore.Store
	keysPath        string
	tokenExpiry     time.Duration
	challengeExpiry time.Duration

	mu   sync.RWMutex // guards keys only; store access is not under this lock
	keys map[string]struct{}
}

// NewManager creates a Manager. LoadAuthorizedKeys must be called before
// the first CreateChallenge.
func NewManager(store *metastore.Store, keysPath string, tokenExpiry, challengeExpiry time.Duration) *Manager {
	return &Manager{
		store:           store,
		keysPath:        keysPath,
		tokenExpiry:     tokenExpiry,
		challengeExpiry: challengeExpiry,
		keys:            make(map[string]struct{}),
	}
}

// LoadAuthorizedKeys reads the key file and atomically replaces the
// in-memory set. Safe to call at any time for hot reload.
func (m *Manager) LoadAuthorizedKeys() error {
	keys, err := loadKeyFile(m.keysPath)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.keys = keys
	m.mu.Unlock()
	slog.Info("authorized keys loaded", slog.Int("count", len(keys)))
	return nil
}

// IsAuthorized reports whether publicKey is in the current authorized
// set. This is the sole gate on CreateChallenge.
func (m *Manager) IsAuthorized(publicKey string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.keys[normalizeKey(publicKey)]
	return ok
}

// CreateChallenge issues a single-use random challenge for an authorized
// public key and persists it with its expiry.
func (m *Manager) CreateChallenge(publicKey string) (*Challenge, error) {
	if !m.IsAuthorized(publicKey) {
		return nil, fmt.Errorf("%w: key not authorized", apperr.ErrUnauthorized)
	}
	if _, _, _, _, err := ssh.ParseAuthorizedKey([]byte(publicKey)); err != nil {
		return nil, fmt.Errorf("%w: invalid public key format", apperr.ErrValidation)
	}

	challenge, err := randomHex()
	if err != nil {
		return nil, err
	}
	expiresAt := time.Now().Add(m.challengeExpiry).Unix()
	if err := m.store.StoreChallenge(challenge, normalizeKey(publicKey), expiresAt); err != nil {
		return nil, err
	}
	slog.Debug("challenge created", slog.String("key", keyPrefix(publicKey)))
	return &Challenge{
		Challenge: challenge,
		PublicKey: publicKey,
		ExpiresAt: expiresAt,
	}, nil
}

// VerifyChallenge checks the signature over an issued challenge and, on
// success, issues and persists a bearer token.
//
// The challenge lookup consumes the stored row even when the signature
// later fails to verify, so a challenge is usable for exactly one
// verification attempt.
func (m *Manager) VerifyChallenge(challenge, publicKey, signature string) (*Token, error) {
	ok, err := m.store.ValidateChallenge(challenge, normalizeKey(publicKey))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: invalid or expired challenge", apperr.ErrUnauthorized)
	}

	key, _, _, _, err := ssh.ParseAuthorizedKey([]byte(publicKey))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid public key format", apperr.ErrValidation)
	}
	sigBlob, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return nil, fmt.Errorf("%w: signature is not valid base64", apperr.ErrValidation)
	}
	var sig ssh.Signature
	if err := ssh.Unmarshal(sigBlob, &sig); err != nil {
		return nil, fmt.Errorf("%w: malformed signature", apperr.ErrValidation)
	}
	if err := key.Verify([]byte(challenge), &sig); err != nil {
		slog.Warn("signature verification failed", slog.String("key", keyPrefix(publicKey)))
		return nil, fmt.Errorf("%w: signature verification failed", apperr.ErrUnauthorized)
	}

	token, err := randomHex()
	if err != nil {
		return nil, err
	}
	expiresAt := time.Now().Add(m.tokenExpiry).Unix()
	if err := m.store.StoreToken(token, expiresAt); err != nil {
		return nil, err
	}
	slog.Info("key authenticated", slog.String("key", keyPrefix(publicKey)))
	return &Token{Token: token, ExpiresAt: expiresAt}, nil
}

// ValidateToken reports whether token is known and unexpired. Unknown or
// expired tokens return false, not an error.
func (m *Manager) ValidateToken(token string) (bool, error) {
	return m.store.ValidateToken(token)
}

// CleanupExpired sweeps expired tokens and expired unconsumed
// challenges. Intended to run on a periodic timer.
func (m *Manager) CleanupExpired() error {
	if err := m.store.CleanupExpiredTokens(); err != nil {
		return err
	}
	return m.store.CleanupExpiredChallenges()
}

// randomHex returns 32 cryptographically random bytes, hex-encoded.
func randomHex() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("auth: random: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// keyPrefix truncates a public key for log lines.
func keyPrefix(key string) string {
	if len(key) > 30 {
		return key[:30] + "..."
	}
	return key
}
