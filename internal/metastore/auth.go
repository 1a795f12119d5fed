package metastore

import "fmt"

// StoreToken persists a bearer token. expiresAt is Unix seconds.
func (s *Store) StoreToken(token string, expiresAt int64) error {
	_, err := s.conn.Exec(`INSERT INTO auth_tokens (token, created_at, expires_at) VALUES (?, ?, ?)`,
		token, nowSeconds(), expiresAt)
	if err != nil {
		return fmt.Errorf("metastore: store token: %w", err)
	}
	return nil
}

// ValidateToken reports whether token exists and has not expired.
// On success last_used is refreshed as a side effect.
func (s *Store) ValidateToken(token string) (bool, error) {
	now := nowSeconds()
	var one int
	err := s.conn.QueryRow(`SELECT 1 FROM auth_tokens WHERE token = ? AND expires_at > ?`, token, now).Scan(&one)
	if err != nil {
		if isNoRows(err) {
			return false, nil
		}
		return false, fmt.Errorf("metastore: validate token: %w", err)
	}
	if _, err := s.conn.Exec(`UPDATE auth_tokens SET last_used = ? WHERE token = ?`, now, token); err != nil {
		return false, fmt.Errorf("metastore: touch token: %w", err)
	}
	return true, nil
}

// CleanupExpiredTokens hard-deletes expired tokens.
func (s *Store) CleanupExpiredTokens() error {
	if _, err := s.conn.Exec(`DELETE FROM auth_tokens WHERE expires_at < ?`, nowSeconds()); err != nil {
		return fmt.Errorf("metastore: cleanup tokens: %w", err)
	}
	return nil
}

// StoreChallenge persists a challenge keyed by (challenge, public_key).
// expiresAt is Unix seconds.
func (s *Store) StoreChallenge(challenge, publicKey string, expiresAt int64) error {
	_, err := s.conn.Exec(`INSERT INTO auth_challenges (challenge, public_key, expires_at) VALUES (?, ?, ?)`,
		challenge, publicKey, expiresAt)
	if err != nil {
		return fmt.Errorf("metastore: store challenge: %w", err)
	}
	return nil
}

// ValidateChallenge reports whether the (challenge, publicKey) pair
// exists and has not expired. A matching row is consumed (deleted) so a
// challenge can be looked up successfully at most once, regardless of
// what the caller does with the result.
func (s *Store) ValidateChallenge(challenge, publicKey string) (bool, error) {
	var one int
	err := s.conn.QueryRow(`
		SELECT 1 FROM auth_challenges
		WHERE challenge = ? AND public_key = ? AND expires_at > ?
	`, challenge, publicKey, nowSeconds()).Scan(&one)
	if err != nil {
		if isNoRows(err) {
			return false, nil
		}
		return false, fmt.Errorf("metastore: validate challenge: %w", err)
	}
	if _, err := s.conn.Exec(`DELETE FROM auth_challenges WHERE challenge = ?`, challenge); err != nil {
		return false, fmt.Errorf("metastore: consume challenge: %w", err)
	}
	return true, nil
}

// CleanupExpiredChallenges hard-deletes challenges that expired without
// ever being consumed.
func (s *Store) CleanupExpiredChallenges() error {
	if _, err := s.conn.Exec(`DELETE FROM auth_challenges WHERE expires_at < ?`, nowSeconds()); err != nil {
		return fmt.Errorf("metastore: cleanup challenges: %w", err)
	}
	return nil
}
