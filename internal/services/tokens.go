package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"kaaj/internal/apperrors"
	"kaaj/internal/backend"
	"kaaj/internal/config"

	"github.com/gofrs/uuid"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
)

const (
	refreshPrefix  = "refresh:"
	sessionPrefix  = "session:"
	sessionsPrefix = "sessions:"
	verifyPrefix   = "verify:"
)

// Claims are the access token claims. Subject is the user id and SessionID
// stays stable across refreshes.
type Claims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// TokenService issues HS256 access tokens and keeps refresh and verification
// tokens in redis.
type TokenService struct {
	rdb *redis.Client
	cfg config.AuthConfig
	now func() time.Time
}

func NewTokenService(rdb *redis.Client, cfg config.AuthConfig) *TokenService {
	return &TokenService{rdb: rdb, cfg: cfg, now: time.Now}
}

func newID() (string, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Issue starts a session for uid, or continues session sid when it is set.
func (s *TokenService) Issue(ctx context.Context, uid, sid string) (backend.Tokens, error) {
	if sid == "" {
		var err error
		if sid, err = newID(); err != nil {
			return backend.Tokens{}, apperrors.Wrap(apperrors.KindInternal, err)
		}
	}
	now := s.now()
	jti, err := newID()
	if err != nil {
		return backend.Tokens{}, apperrors.Wrap(apperrors.KindInternal, err)
	}
	expiresAt := now.Add(s.cfg.AccessTokenTTL)
	claims := Claims{
		SessionID: sid,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   uid,
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return backend.Tokens{}, apperrors.Wrap(apperrors.KindInternal, err)
	}

	refresh, err := newID()
	if err != nil {
		return backend.Tokens{}, apperrors.Wrap(apperrors.KindInternal, err)
	}
	ttl := s.cfg.RefreshTokenTTL
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, refreshPrefix+refresh, uid+"|"+sid, ttl)
		pipe.Set(ctx, sessionPrefix+sid, refresh, ttl)
		pipe.SAdd(ctx, sessionsPrefix+uid, sid)
		pipe.Expire(ctx, sessionsPrefix+uid, ttl)
		return nil
	})
	if err != nil {
		return backend.Tokens{}, storeError(err, apperrors.KindInternal)
	}

	return backend.Tokens{
		SessionID:    sid,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
	}, nil
}

// consume deletes a refresh token and returns the user and session it named.
func (s *TokenService) consume(ctx context.Context, refresh string) (uid, sid string, err error) {
	val, err := s.rdb.GetDel(ctx, refreshPrefix+refresh).Result()
	if errors.Is(err, redis.Nil) {
		return "", "", nil
	}
	if err != nil {
		return "", "", storeError(err, apperrors.KindInternal)
	}
	uid, sid, ok := strings.Cut(val, "|")
	if !ok {
		return "", "", apperrors.Wrap(apperrors.KindInternal, fmt.Errorf("malformed refresh record"))
	}
	return uid, sid, nil
}

// Rotate trades a refresh token for a fresh pair in the same session. A token
// is good for exactly one rotation.
func (s *TokenService) Rotate(ctx context.Context, refresh string) (string, backend.Tokens, error) {
	uid, sid, err := s.consume(ctx, refresh)
	if err != nil {
		return "", backend.Tokens{}, err
	}
	if uid == "" {
		return "", backend.Tokens{}, apperrors.New(apperrors.KindTokenExpired)
	}
	tokens, err := s.Issue(ctx, uid, sid)
	return uid, tokens, err
}

// Revoke ends the session of a refresh token. Unknown tokens are ignored.
func (s *TokenService) Revoke(ctx context.Context, refresh string) (uid, sid string, err error) {
	uid, sid, err = s.consume(ctx, refresh)
	if err != nil || uid == "" {
		return "", "", err
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sessionPrefix+sid)
		pipe.SRem(ctx, sessionsPrefix+uid, sid)
		return nil
	})
	return uid, sid, storeError(err, apperrors.KindInternal)
}

// RevokeAll ends every session of uid except keep.
func (s *TokenService) RevokeAll(ctx context.Context, uid, keep string) error {
	sids, err := s.rdb.SMembers(ctx, sessionsPrefix+uid).Result()
	if err != nil {
		return storeError(err, apperrors.KindInternal)
	}
	for _, sid := range sids {
		if sid == keep {
			continue
		}
		refresh, err := s.rdb.Get(ctx, sessionPrefix+sid).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return storeError(err, apperrors.KindInternal)
		}
		_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if refresh != "" {
				pipe.Del(ctx, refreshPrefix+refresh)
			}
			pipe.Del(ctx, sessionPrefix+sid)
			pipe.SRem(ctx, sessionsPrefix+uid, sid)
			return nil
		})
		if err != nil {
			return storeError(err, apperrors.KindInternal)
		}
	}
	return nil
}

// Active reports whether session sid has not been revoked.
func (s *TokenService) Active(ctx context.Context, sid string) (bool, error) {
	n, err := s.rdb.Exists(ctx, sessionPrefix+sid).Result()
	if err != nil {
		return false, storeError(err, apperrors.KindInternal)
	}
	return n > 0, nil
}

// Parse validates an access token's signature, issuer and expiry.
func (s *TokenService) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	},
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, apperrors.Wrap(apperrors.KindTokenExpired, err)
	case err != nil:
		return nil, apperrors.Wrap(apperrors.KindNotAuthenticated, err)
	case claims.Subject == "" || claims.SessionID == "":
		return nil, apperrors.New(apperrors.KindNotAuthenticated)
	}
	return claims, nil
}

// IssueVerification stores a single-use email verification token for uid.
func (s *TokenService) IssueVerification(ctx context.Context, uid string) (string, error) {
	token, err := newID()
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindInternal, err)
	}
	if err := s.rdb.Set(ctx, verifyPrefix+token, uid, s.cfg.VerificationTTL).Err(); err != nil {
		return "", storeError(err, apperrors.KindInternal)
	}
	return token, nil
}

// ConsumeVerification returns the user a verification token was issued to.
func (s *TokenService) ConsumeVerification(ctx context.Context, token string) (string, error) {
	uid, err := s.rdb.GetDel(ctx, verifyPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return "", apperrors.New(apperrors.KindTokenExpired)
	}
	if err != nil {
		return "", storeError(err, apperrors.KindInternal)
	}
	return uid, nil
}
