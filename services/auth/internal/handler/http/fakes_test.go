package http

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/utafrali/TrainingPlatform/pkg/errors"
	"github.com/utafrali/TrainingPlatform/pkg/health"
	"github.com/utafrali/TrainingPlatform/pkg/logger"
	"github.com/utafrali/TrainingPlatform/pkg/middleware"
	"github.com/utafrali/TrainingPlatform/services/auth/internal/domain"
	"github.com/utafrali/TrainingPlatform/services/auth/internal/event"
	"github.com/utafrali/TrainingPlatform/services/auth/internal/service"
	"github.com/utafrali/TrainingPlatform/services/auth/internal/token"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// --- In-memory identity repository ---

type memIdentities struct {
	mu      sync.Mutex
	byID    map[string]*domain.Identity
	byEmail map[string]string
}

func newMemIdentities() *memIdentities {
	return &memIdentities{byID: map[string]*domain.Identity{}, byEmail: map[string]string{}}
}

func (m *memIdentities) Create(_ context.Context, identity *domain.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.byEmail[identity.Email]; taken {
		return apperrors.EmailAlreadyRegistered(identity.Email)
	}
	cpy := *identity
	m.byID[identity.ID] = &cpy
	m.byEmail[identity.Email] = identity.ID
	return nil
}

func (m *memIdentities) GetByID(_ context.Context, id string) (*domain.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	identity, ok := m.byID[id]
	if !ok {
		return nil, apperrors.NotFound("identity", id)
	}
	cpy := *identity
	return &cpy, nil
}

func (m *memIdentities) GetByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	m.mu.Lock()
	id, ok := m.byEmail[domain.NormalizeEmail(email)]
	m.mu.Unlock()
	if !ok {
		return nil, apperrors.NotFound("identity", email)
	}
	return m.GetByID(ctx, id)
}

func (m *memIdentities) seed(t *testing.T, id, email, secret, role string) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, m.Create(context.Background(), &domain.Identity{
		ID:         id,
		Email:      email,
		Name:       "Test " + role,
		Role:       role,
		SecretHash: string(hash),
	}))
}

// --- In-memory refresh registry ---

type memRecord struct {
	owner     string
	expiresAt time.Time
}

type memRegistry struct {
	mu      sync.Mutex
	records map[string]memRecord
	now     func() time.Time
}

func newMemRegistry(now func() time.Time) *memRegistry {
	return &memRegistry{records: map[string]memRecord{}, now: now}
}

func (r *memRegistry) Store(_ context.Context, ownerID, tokenHash string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[tokenHash] = memRecord{owner: ownerID, expiresAt: expiresAt}
	return nil
}

func (r *memRegistry) Rotate(_ context.Context, oldHash, newHash string, newExpiresAt time.Time) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[oldHash]
	if !ok || !r.now().Before(rec.expiresAt) {
		return "", apperrors.InvalidOrExpiredRefreshToken()
	}
	delete(r.records, oldHash)
	r.records[newHash] = memRecord{owner: rec.owner, expiresAt: newExpiresAt}
	return rec.owner, nil
}

func (r *memRegistry) Revoke(_ context.Context, tokenHash string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[tokenHash]
	if !ok {
		return "", nil
	}
	delete(r.records, tokenHash)
	return rec.owner, nil
}

func (r *memRegistry) RevokeAllForOwner(_ context.Context, ownerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for h, rec := range r.records {
		if rec.owner == ownerID {
			delete(r.records, h)
		}
	}
	return nil
}

func (r *memRegistry) PurgeExpired(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for h, rec := range r.records {
		if !rec.expiresAt.After(before) {
			delete(r.records, h)
			n++
		}
	}
	return n, nil
}

func (r *memRegistry) live(ownerID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rec := range r.records {
		if rec.owner == ownerID {
			n++
		}
	}
	return n
}

// --- Wiring ---

type testEnv struct {
	clock      *testClock
	identities *memIdentities
	registry   *memRegistry
	issuer     *token.Issuer
	handler    http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}

	iss, err := token.NewIssuer(token.Config{
		Secret:     "0123456789abcdef0123456789abcdef",
		Issuer:     "training-auth",
		AccessTTL:  30 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
	})
	require.NoError(t, err)
	iss = iss.WithClock(clock.Now)

	identities := newMemIdentities()
	registry := newMemRegistry(clock.Now)
	log := logger.Discard()
	svc := service.NewAuthService(identities, registry, iss, event.NewProducer(nil, log), log,
		service.WithBcryptCost(bcrypt.MinCost), service.WithClock(clock.Now))

	cors := middleware.DefaultCORSConfig()
	handler := NewRouter(RouterConfig{
		Service:   svc,
		Validator: iss.Validator(),
		Health:    health.NewHandler(),
		Logger:    log,
		CORS:      cors,
		Cookie:    CookieConfig{Secure: false, TTL: iss.RefreshTTL()},
	})

	return &testEnv{clock: clock, identities: identities, registry: registry, issuer: iss, handler: handler}
}
