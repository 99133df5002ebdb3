// Package token 签发与校验无状态的 Bearer Token (HS256 JWT)。
package token

import (
	"errors"
	"strings"
	"time"

	"supertodo/internal/apperr"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL 默认有效期 30 天。
const DefaultTTL = 30 * 24 * time.Hour

// Service 持有签名密钥与有效期。
type Service struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// Option 调整 Service 行为。
type Option func(*Service)

// WithClock 替换时钟（测试用）。
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService 创建 Token Service。ttl <= 0 时使用 DefaultTTL。
func NewService(secret, issuer string, ttl time.Duration, opts ...Option) (*Service, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("jwt secret is empty")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Service{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// TTL 返回签发的有效期。
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Issue 为 userID 签发令牌，返回令牌与过期时间。
func (s *Service) Issue(userID string) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, errors.New("token subject is empty")
	}
	now := s.now()
	exp := now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	// NumericDate 精度为秒，返回值与令牌内容保持一致
	return signed, exp.Truncate(time.Second), nil
}

// Verify 校验签名、签发者与有效期，返回 subject。
func (s *Service) Verify(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", apperr.New(apperr.KindTokenInvalid, "token is required")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return "", mapJWTError(err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", apperr.New(apperr.KindTokenInvalid, "token subject is missing")
	}
	return claims.Subject, nil
}

func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return apperr.Wrap(apperr.KindTokenExpired, "token has expired", err)
	}
	return apperr.Wrap(apperr.KindTokenInvalid, "token is invalid", err)
}
