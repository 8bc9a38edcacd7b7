package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/utafrali/TrainingPlatform/pkg/errors"
	"github.com/utafrali/TrainingPlatform/services/auth/internal/domain"
	"github.com/utafrali/TrainingPlatform/services/auth/internal/event"
	"github.com/utafrali/TrainingPlatform/services/auth/internal/repository"
	"github.com/utafrali/TrainingPlatform/services/auth/internal/token"
)

// DefaultBcryptCost is the cost factor for secret hashing.
const DefaultBcryptCost = 12

// minSecretLength is the minimum secret length required at signup.
const minSecretLength = 8

// maxSecretBytes is bcrypt's input limit, counted in bytes.
const maxSecretBytes = 72

// newDummyHash hashes a fixed secret at cost. It is compared against when the
// email is unknown so that a miss costs the same as a wrong secret.
func newDummyHash(cost int) []byte {
	h, err := bcrypt.GenerateFromPassword([]byte("training-platform-dummy-secret"), cost)
	if err != nil {
		h, _ = bcrypt.GenerateFromPassword([]byte("training-platform-dummy-secret"), DefaultBcryptCost)
	}
	return h
}

// AuthService implements signup, login, refresh rotation and logout.
type AuthService struct {
	identities repository.IdentityRepository
	registry   repository.RefreshTokenRegistry
	issuer     *token.Issuer
	producer   *event.Producer
	logger     *slog.Logger
	bcryptCost int
	dummyHash  []byte
	now        func() time.Time
}

// Option customizes an AuthService.
type Option func(*AuthService)

// WithBcryptCost overrides DefaultBcryptCost.
func WithBcryptCost(cost int) Option {
	return func(s *AuthService) { s.bcryptCost = cost }
}

// WithClock replaces the time source used for janitor cutoffs and timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *AuthService) { s.now = now }
}

// NewAuthService creates a new auth service.
func NewAuthService(
	identities repository.IdentityRepository,
	registry repository.RefreshTokenRegistry,
	issuer *token.Issuer,
	producer *event.Producer,
	logger *slog.Logger,
	opts ...Option,
) *AuthService {
	s := &AuthService{
		identities: identities,
		registry:   registry,
		issuer:     issuer,
		producer:   producer,
		logger:     logger,
		bcryptCost: DefaultBcryptCost,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.dummyHash = newDummyHash(s.bcryptCost)
	return s
}

// SignupInput holds the parameters for creating an identity.
type SignupInput struct {
	Email  string
	Secret string
	Name   string
	Role   string
}

// LoginInput holds the parameters for a login.
type LoginInput struct {
	Email  string
	Secret string
}

// Session is an identity together with its freshly issued tokens.
type Session struct {
	Identity *domain.Identity
	Tokens   domain.TokenPair
}

// Signup creates an identity and opens a session for it.
func (s *AuthService) Signup(ctx context.Context, input SignupInput) (*Session, error) {
	email := domain.NormalizeEmail(input.Email)
	if email == "" {
		return nil, apperrors.InvalidInput("email is required")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.InvalidInput("name is required")
	}
	role := input.Role
	if role == "" {
		role = domain.RoleLearner
	}
	if !domain.IsValidRole(role) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("role must be one of %s", strings.Join(domain.ValidRoles(), ", ")))
	}
	if err := validateSecret(input.Secret); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Secret), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash secret: %w", err)
	}

	now := s.now()
	identity := &domain.Identity{
		ID:         uuid.New().String(),
		Email:      email,
		Name:       name,
		Role:       role,
		SecretHash: string(hash),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.identities.Create(ctx, identity); err != nil {
		return nil, err
	}

	tokens, err := s.openSession(ctx, identity)
	if err != nil {
		return nil, err
	}

	if err := s.producer.PublishIdentityRegistered(ctx, identity); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish identity.registered event",
			slog.String("identity_id", identity.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "identity registered",
		slog.String("identity_id", identity.ID),
		slog.String("role", identity.Role),
	)

	return &Session{Identity: identity, Tokens: tokens}, nil
}

// Login verifies credentials and opens a session.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*Session, error) {
	identity, err := s.VerifyCredentials(ctx, input.Email, input.Secret)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidCredentials) {
			loginFailures.WithLabelValues("invalid_credentials").Inc()
		} else {
			loginFailures.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	tokens, err := s.openSession(ctx, identity)
	if err != nil {
		return nil, err
	}
	logins.Inc()

	s.logger.InfoContext(ctx, "identity logged in",
		slog.String("identity_id", identity.ID),
	)

	return &Session{Identity: identity, Tokens: tokens}, nil
}

// VerifyCredentials returns the identity owning email when secret matches
// its stored hash. An unknown email and a wrong secret both yield
// apperrors.ErrInvalidCredentials.
func (s *AuthService) VerifyCredentials(ctx context.Context, email, secret string) (*domain.Identity, error) {
	if strings.TrimSpace(email) == "" || secret == "" {
		return nil, apperrors.InvalidCredentials()
	}

	identity, err := s.identities.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(secret))
			return nil, apperrors.InvalidCredentials()
		}
		return nil, fmt.Errorf("lookup identity: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(identity.SecretHash), []byte(secret)); err != nil {
		return nil, apperrors.InvalidCredentials()
	}
	return identity, nil
}

// Refresh exchanges a refresh token for a new access token and a new refresh
// token. The presented token is consumed; presenting it again fails.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (domain.TokenPair, error) {
	if refreshToken == "" {
		return domain.TokenPair{}, apperrors.InvalidOrExpiredRefreshToken()
	}

	next, expiresAt, err := s.issuer.NewRefresh()
	if err != nil {
		return domain.TokenPair{}, err
	}

	ownerID, err := s.registry.Rotate(ctx, token.HashRefreshToken(refreshToken), token.HashRefreshToken(next), expiresAt)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidRefreshToken) {
			rotations.WithLabelValues("rejected").Inc()
			s.logger.WarnContext(ctx, "refresh token rejected")
		}
		return domain.TokenPair{}, err
	}

	// The presented token is consumed from here on; a failure below leaves
	// the caller without a usable refresh token.
	identity, err := s.identities.GetByID(ctx, ownerID)
	if err != nil {
		s.rotationLost(ctx, ownerID, err)
		return domain.TokenPair{}, fmt.Errorf("load refresh token owner: %w", err)
	}

	access, err := s.issuer.IssueAccess(identity)
	if err != nil {
		s.rotationLost(ctx, ownerID, err)
		return domain.TokenPair{}, err
	}
	rotations.WithLabelValues("rotated").Inc()

	return domain.TokenPair{
		AccessToken:      access,
		RefreshToken:     next,
		AccessTTL:        s.issuer.AccessTTL(),
		RefreshExpiresAt: expiresAt,
	}, nil
}

// Logout revokes a single refresh token. An empty or unknown token is not an
// error.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}

	ownerID, err := s.registry.Revoke(ctx, token.HashRefreshToken(refreshToken))
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	if ownerID == "" {
		return nil
	}

	s.publishRevoked(ctx, ownerID, event.ScopeSingle)
	s.logger.InfoContext(ctx, "session revoked", slog.String("identity_id", ownerID))
	return nil
}

// LogoutAll revokes every refresh token held by identityID.
func (s *AuthService) LogoutAll(ctx context.Context, identityID string) error {
	if err := s.registry.RevokeAllForOwner(ctx, identityID); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}

	s.publishRevoked(ctx, identityID, event.ScopeAll)
	s.logger.InfoContext(ctx, "all sessions revoked", slog.String("identity_id", identityID))
	return nil
}

// GetIdentity retrieves an identity by ID.
func (s *AuthService) GetIdentity(ctx context.Context, id string) (*domain.Identity, error) {
	return s.identities.GetByID(ctx, id)
}

// PurgeExpired removes refresh records that expired before now.
func (s *AuthService) PurgeExpired(ctx context.Context) (int64, error) {
	return s.registry.PurgeExpired(ctx, s.now())
}

func (s *AuthService) openSession(ctx context.Context, identity *domain.Identity) (domain.TokenPair, error) {
	tokens, err := s.issuer.Issue(identity)
	if err != nil {
		return domain.TokenPair{}, err
	}
	if err := s.registry.Store(ctx, identity.ID, token.HashRefreshToken(tokens.RefreshToken), tokens.RefreshExpiresAt); err != nil {
		return domain.TokenPair{}, fmt.Errorf("store refresh token: %w", err)
	}
	return tokens, nil
}

func (s *AuthService) rotationLost(ctx context.Context, ownerID string, err error) {
	rotations.WithLabelValues("lost").Inc()
	s.logger.ErrorContext(ctx, "refresh token consumed but replacement not delivered",
		slog.String("identity_id", ownerID),
		slog.String("error", err.Error()),
	)
}

func (s *AuthService) publishRevoked(ctx context.Context, identityID, scope string) {
	if err := s.producer.PublishSessionRevoked(ctx, identityID, scope); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish session.revoked event",
			slog.String("identity_id", identityID),
			slog.String("error", err.Error()),
		)
	}
}

// validateSecret checks that a secret meets the minimum strength requirements.
func validateSecret(secret string) error {
	if len(secret) < minSecretLength {
		return apperrors.InvalidInput(fmt.Sprintf("secret must be at least %d characters", minSecretLength))
	}
	if len(secret) > maxSecretBytes {
		return apperrors.InvalidInput(fmt.Sprintf("secret must be at most %d bytes", maxSecretBytes))
	}

	var hasUpper, hasLower, hasDigit bool
	for _, c := range secret {
		switch {
		case unicode.IsUpper(c):
			hasUpper = true
		case unicode.IsLower(c):
			hasLower = true
		case unicode.IsDigit(c):
			hasDigit = true
		}
	}

	if !hasUpper || !hasLower || !hasDigit {
		return apperrors.InvalidInput("secret must contain at least one uppercase letter, one lowercase letter, and one digit")
	}
	return nil
}
