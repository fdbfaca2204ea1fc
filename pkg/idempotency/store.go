package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	Header = "Idempotency-Key"

	// ClaimTTL bounds how long an in-flight marker survives a crashed request.
	ClaimTTL = 30 * time.Second

	inFlight  = "\x00in-flight"
	maxKeyLen = 255
	sealSep   = "|"
)

var (
	ErrInFlight = errors.New("idempotency: request with this key is still in progress")
	ErrMismatch = errors.New("idempotency: key was already used with a different request")
)

type Store struct {
	rdb   redis.Cmdable
	ttl   time.Duration
	claim time.Duration
}

// NewStore keeps completed results for ttl. In-flight claims expire after ClaimTTL, or ttl
// when that is shorter.
func NewStore(rdb redis.Cmdable, ttl time.Duration) *Store {
	claim := ClaimTTL
	if ttl > 0 && ttl < claim {
		claim = ttl
	}
	return &Store{rdb: rdb, ttl: ttl, claim: claim}
}

// HeaderKey returns the trimmed Idempotency-Key header, or "" when absent or too long.
func HeaderKey(r *http.Request) string {
	k := strings.TrimSpace(r.Header.Get(Header))
	if len(k) > maxKeyLen {
		return ""
	}
	return k
}

func (s *Store) Key(scope, owner, key string) string {
	return fmt.Sprintf("idem:%s:%s:%s", scope, owner, key)
}

// Begin claims key. When the key was already completed the stored result is returned with
// claimed=false; when another request holds it, ErrInFlight.
func (s *Store) Begin(ctx context.Context, key string) (result string, claimed bool, err error) {
	ok, err := s.rdb.SetNX(ctx, key, inFlight, s.claim).Result()
	if err != nil {
		return "", false, err
	}
	if ok {
		return "", true, nil
	}
	val, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET; treat as a fresh claim attempt
		return s.Begin(ctx, key)
	}
	if err != nil {
		return "", false, err
	}
	if val == inFlight {
		return "", false, ErrInFlight
	}
	return val, false, nil
}

func (s *Store) Complete(ctx context.Context, key, result string) error {
	return s.rdb.Set(ctx, key, result, s.ttl).Err()
}

// Release drops a claim so the client can retry after a failed attempt.
func (s *Store) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

// Fingerprint hashes the JSON form of a request body so a replay can be matched to it.
func Fingerprint(req any) (string, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Seal binds result to the fingerprint of the request that produced it.
func Seal(fingerprint, result string) string {
	return fingerprint + sealSep + result
}

// Unseal returns the result stored by Seal, or ErrMismatch when it was produced for another
// request.
func Unseal(fingerprint, stored string) (string, error) {
	fp, result, ok := strings.Cut(stored, sealSep)
	if !ok {
		return "", fmt.Errorf("idempotency: malformed stored result %q", stored)
	}
	if fp != fingerprint {
		return "", ErrMismatch
	}
	return result, nil
}
