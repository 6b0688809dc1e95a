// Package auth resolves bearer tokens into caller identities.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/pscheid92/forumcast/internal/domain"
)

// JWTResolver implements domain.IdentityResolver for HS256 tokens whose subject is the numeric
// user id.
type JWTResolver struct {
	secret []byte
	issuer string
	users  domain.UserRepository
	clock  clockwork.Clock
	group  singleflight.Group
}

var _ domain.IdentityResolver = (*JWTResolver)(nil)

// NewJWTResolver creates a resolver. An empty issuer disables the issuer check.
func NewJWTResolver(secret, issuer string, users domain.UserRepository, clock clockwork.Clock) *JWTResolver {
	return &JWTResolver{
		secret: []byte(secret),
		issuer: issuer,
		users:  users,
		clock:  clock,
	}
}

// Resolve returns nil for an empty token (anonymous caller) and ErrNotAuthenticated for a token
// that fails verification or names an unknown user.
func (r *JWTResolver) Resolve(ctx context.Context, token string) (*domain.Identity, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return nil, nil
	}

	userID, err := r.subject(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNotAuthenticated, err)
	}

	key := strconv.FormatInt(userID, 10)
	v, err, _ := r.group.Do(key, func() (any, error) {
		return r.users.GetByID(ctx, userID)
	})
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, fmt.Errorf("%w: unknown user %d", domain.ErrNotAuthenticated, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve user %d: %w", userID, err)
	}

	user := v.(*domain.User)
	return &domain.Identity{UserID: user.ID, Name: user.Name, Admin: user.Admin}, nil
}

func (r *JWTResolver) subject(token string) (int64, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(r.clock.Now),
		jwt.WithExpirationRequired(),
	}
	if r.issuer != "" {
		opts = append(opts, jwt.WithIssuer(r.issuer))
	}

	claims := &jwt.RegisteredClaims{}
	if _, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return r.secret, nil
	}, opts...); err != nil {
		return 0, err
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return 0, fmt.Errorf("invalid subject %q", claims.Subject)
	}
	return userID, nil
}

// Issue signs a token for userID valid for ttl. forumcast-publish --token-for prints one.
func (r *JWTResolver) Issue(userID int64, ttl time.Duration) (string, error) {
	now := r.clock.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		Issuer:    r.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
