// Package token issues and verifies access tokens and mints opaque refresh
// tokens.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	apperrors "github.com/utafrali/TrainingPlatform/pkg/errors"
	"github.com/utafrali/TrainingPlatform/pkg/middleware"
	"github.com/utafrali/TrainingPlatform/services/auth/internal/domain"
)

const (
	// TypeAccess is the typ claim of access tokens.
	TypeAccess = "access"

	// MinSecretLength is the shortest signing key accepted outside development.
	MinSecretLength = 32

	refreshTokenBytes = 32
)

// Claims is the payload of an access token.
type Claims struct {
	Role string `json:"role"`
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

// Config configures an Issuer.
type Config struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// AllowWeakSecret accepts keys shorter than MinSecretLength (development).
	AllowWeakSecret bool
}

// Issuer signs HS256 access tokens and generates refresh token values.
type Issuer struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewIssuer validates cfg and creates an Issuer.
func NewIssuer(cfg Config) (*Issuer, error) {
	if cfg.Secret == "" {
		return nil, errors.New("token signing secret is empty")
	}
	if len(cfg.Secret) < MinSecretLength && !cfg.AllowWeakSecret {
		return nil, fmt.Errorf("token signing secret must be at least %d bytes, got %d", MinSecretLength, len(cfg.Secret))
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token TTLs must be positive")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "training-auth"
	}
	return &Issuer{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithClock replaces the time source. Intended for tests.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	cpy := *i
	cpy.now = now
	return &cpy
}

// AccessTTL returns the access token lifetime.
func (i *Issuer) AccessTTL() time.Duration { return i.accessTTL }

// RefreshTTL returns the refresh token lifetime.
func (i *Issuer) RefreshTTL() time.Duration { return i.refreshTTL }

// Issue creates a fresh access token and refresh token value for identity.
// The refresh value is not persisted here.
func (i *Issuer) Issue(identity *domain.Identity) (domain.TokenPair, error) {
	now := i.now()

	access, err := i.signAccess(identity, now)
	if err != nil {
		return domain.TokenPair{}, err
	}
	refresh, err := NewRefreshValue()
	if err != nil {
		return domain.TokenPair{}, err
	}

	return domain.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessTTL:        i.accessTTL,
		RefreshExpiresAt: now.Add(i.refreshTTL),
	}, nil
}

// IssueAccess signs a new access token for identity.
func (i *Issuer) IssueAccess(identity *domain.Identity) (string, error) {
	return i.signAccess(identity, i.now())
}

// NewRefresh returns a fresh refresh token value and the instant it expires.
func (i *Issuer) NewRefresh() (string, time.Time, error) {
	value, err := NewRefreshValue()
	if err != nil {
		return "", time.Time{}, err
	}
	return value, i.now().Add(i.refreshTTL), nil
}

func (i *Issuer) signAccess(identity *domain.Identity, now time.Time) (string, error) {
	claims := &Claims{
		Role: identity.Role,
		Type: TypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.ID,
			Issuer:    i.issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.accessTTL)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// Verify parses an access token. It returns an error matching
// apperrors.ErrTokenExpired once the expiry has passed and one matching
// apperrors.ErrInvalidToken for everything else.
func (i *Issuer) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.TokenExpired()
		}
		return nil, apperrors.InvalidToken(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, apperrors.InvalidToken(errors.New("unexpected claims"))
	}
	if claims.Type != TypeAccess {
		return nil, apperrors.InvalidToken(fmt.Errorf("token type %q", claims.Type))
	}
	if claims.Subject == "" || !domain.IsValidRole(claims.Role) {
		return nil, apperrors.InvalidToken(errors.New("missing subject or role"))
	}
	return claims, nil
}

// Validator adapts Verify to the auth gate.
func (i *Issuer) Validator() middleware.TokenValidator {
	return func(token string) (*middleware.Claims, error) {
		claims, err := i.Verify(token)
		if err != nil {
			return nil, err
		}
		return &middleware.Claims{SubjectID: claims.Subject, Role: claims.Role}, nil
	}
}

// NewRefreshValue returns 32 random bytes encoded as unpadded base64url.
func NewRefreshValue() (string, error) {
	b := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashRefreshToken returns the hex SHA-256 digest the registry keys on.
func HashRefreshToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
