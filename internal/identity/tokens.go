package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenStore keeps e-mail verification tokens and revoked access tokens.
type TokenStore interface {
	SaveVerification(ctx context.Context, token, userID string, ttl time.Duration) error
	// TakeVerification returns the owner of token and forgets it. Unknown or
	// expired tokens give "".
	TakeVerification(ctx context.Context, token string) (string, error)
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

func verificationKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "verify:" + hex.EncodeToString(sum[:])
}

func linkCodeKey(code string) string {
	sum := sha256.Sum256([]byte(code))
	return "tglink:" + hex.EncodeToString(sum[:])
}

func revokedKey(tokenID string) string {
	return "blacklist:" + tokenID
}

// RedisTokenStore is a TokenStore on Redis keys with TTLs.
type RedisTokenStore struct {
	rdb *redis.Client
}

func NewRedisTokenStore(rdb *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{rdb: rdb}
}

func (s *RedisTokenStore) SaveVerification(ctx context.Context, token, userID string, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, verificationKey(token), userID, ttl).Err(); err != nil {
		return fmt.Errorf("save verification token: %w", err)
	}
	return nil
}

func (s *RedisTokenStore) TakeVerification(ctx context.Context, token string) (string, error) {
	userID, err := s.rdb.GetDel(ctx, verificationKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("take verification token: %w", err)
	}
	return userID, nil
}

// SaveLinkCode stores a one-time Telegram link code for userID.
func (s *RedisTokenStore) SaveLinkCode(ctx context.Context, code, userID string, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, linkCodeKey(code), userID, ttl).Err(); err != nil {
		return fmt.Errorf("save link code: %w", err)
	}
	return nil
}

// TakeLinkCode returns the owner of code and forgets it. Unknown or expired
// codes give "".
func (s *RedisTokenStore) TakeLinkCode(ctx context.Context, code string) (string, error) {
	userID, err := s.rdb.GetDel(ctx, linkCodeKey(code)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("take link code: %w", err)
	}
	return userID, nil
}

func (s *RedisTokenStore) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := s.rdb.Set(ctx, revokedKey(tokenID), 1, ttl).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (s *RedisTokenStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := s.rdb.Exists(ctx, revokedKey(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return n > 0, nil
}

// MemoryTokenStore is an in-process TokenStore for tests and local runs.
type MemoryTokenStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{entries: make(map[string]memoryEntry), now: time.Now}
}

func (s *MemoryTokenStore) set(key, value string, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memoryEntry{value: value, expiresAt: s.now().Add(ttl)}
}

func (s *MemoryTokenStore) get(key string, remove bool) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return "", false
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.entries, key)
		return "", false
	}
	if remove {
		delete(s.entries, key)
	}
	return e.value, true
}

func (s *MemoryTokenStore) SaveVerification(_ context.Context, token, userID string, ttl time.Duration) error {
	s.set(verificationKey(token), userID, ttl)
	return nil
}

func (s *MemoryTokenStore) TakeVerification(_ context.Context, token string) (string, error) {
	userID, _ := s.get(verificationKey(token), true)
	return userID, nil
}

func (s *MemoryTokenStore) SaveLinkCode(_ context.Context, code, userID string, ttl time.Duration) error {
	s.set(linkCodeKey(code), userID, ttl)
	return nil
}

func (s *MemoryTokenStore) TakeLinkCode(_ context.Context, code string) (string, error) {
	userID, _ := s.get(linkCodeKey(code), true)
	return userID, nil
}

func (s *MemoryTokenStore) Revoke(_ context.Context, tokenID string, ttl time.Duration) error {
	if ttl > 0 {
		s.set(revokedKey(tokenID), "1", ttl)
	}
	return nil
}

func (s *MemoryTokenStore) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	_, ok := s.get(revokedKey(tokenID), false)
	return ok, nil
}
