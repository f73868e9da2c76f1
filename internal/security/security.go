package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/argon2"
)

const (
	memory      = 64 * 1024
	iterations  = 3
	parallelism = 2
	keyLength   = 32
	saltLength  = 16
)

var ErrMalformedHash = errors.New("malformed argon2id hash")

// GenerateHash creates an encoded argon2id hash of a token
func GenerateHash(token string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	hash := argon2.IDKey([]byte(token), salt, iterations, memory, parallelism, keyLength)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, memory, iterations, parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// VerifyHash checks a token against a hash produced by GenerateHash
func VerifyHash(token string, encodedHash string) (bool, error) {
	// "", "argon2id", "v=..", "m=..,t=..,p=..", salt, hash
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false, ErrMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}
	if version != argon2.Version {
		return false, fmt.Errorf("%w: unsupported version %d", ErrMalformedHash, version)
	}

	var mem, iter uint32
	var par uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &iter, &par); err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, fmt.Errorf("failed to decode salt: %w", err)
	}
	storedHash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, fmt.Errorf("failed to decode hash: %w", err)
	}

	computedHash := argon2.IDKey([]byte(token), salt, iter, mem, par, uint32(len(storedHash)))

	return subtle.ConstantTimeCompare(storedHash, computedHash) == 1, nil
}

// TokenVerifier checks bearer tokens against one configured hash. Tokens that
// verified once are remembered by digest so argon2 runs once per token.
type TokenVerifier struct {
	hash string

	mu       sync.RWMutex
	accepted map[[sha256.Size]byte]struct{}
}

func NewTokenVerifier(encodedHash string) *TokenVerifier {
	return &TokenVerifier{
		hash:     encodedHash,
		accepted: make(map[[sha256.Size]byte]struct{}),
	}
}

func (v *TokenVerifier) Verify(token string) bool {
	if token == "" {
		return false
	}

	digest := sha256.Sum256([]byte(token))
	v.mu.RLock()
	_, ok := v.accepted[digest]
	v.mu.RUnlock()
	if ok {
		return true
	}

	match, err := VerifyHash(token, v.hash)
	if err != nil || !match {
		return false
	}

	v.mu.Lock()
	v.accepted[digest] = struct{}{}
	v.mu.Unlock()
	return true
}

// MessageTracker rate limits senders over a sliding window
type MessageTracker struct {
	mu        sync.Mutex
	messages  map[string][]time.Time
	window    time.Duration
	max       int
	now       func() time.Time
	lastSweep time.Time
}

func NewMessageTracker(window time.Duration, max int) *MessageTracker {
	return &MessageTracker{
		messages: make(map[string][]time.Time),
		window:   window,
		max:      max,
		now:      time.Now,
	}
}

// Allow records a message from key and reports whether it is within the limit.
func (m *MessageTracker) Allow(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cutoff := now.Add(-m.window)
	m.sweep(now, cutoff)

	kept := m.messages[key][:0]
	for _, t := range m.messages[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= m.max {
		m.messages[key] = kept
		return false
	}
	m.messages[key] = append(kept, now)
	return true
}

// sweep drops senders with nothing left in the window, at most once per window.
func (m *MessageTracker) sweep(now, cutoff time.Time) {
	if now.Sub(m.lastSweep) < m.window {
		return
	}
	m.lastSweep = now

	for key, times := range m.messages {
		if len(times) == 0 || !times[len(times)-1].After(cutoff) {
			delete(m.messages, key)
		}
	}
}

// Reset forgets everything tracked for key.
func (m *MessageTracker) Reset(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.messages, key)
}
