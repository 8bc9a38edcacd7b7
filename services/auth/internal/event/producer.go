package event

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/utafrali/TrainingPlatform/pkg/kafka"
	"github.com/utafrali/TrainingPlatform/services/auth/internal/domain"
)

// Kafka topics for auth domain events.
var (
	TopicIdentityRegistered = pkgkafka.Topic("identity", "registered")
	TopicSessionRevoked     = pkgkafka.Topic("session", "revoked")
)

const (
	AggregateTypeIdentity = "identity"
	SourceAuthService     = "auth-service"
)

// Revocation scopes carried by session.revoked.
const (
	ScopeSingle = "single"
	ScopeAll    = "all"
)

// IdentityRegisteredData is the payload for identity.registered.
type IdentityRegisteredData struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// SessionRevokedData is the payload for session.revoked. It never carries
// token values.
type SessionRevokedData struct {
	IdentityID string `json:"identity_id"`
	Scope      string `json:"scope"`
}

// Publisher sends an event to a topic. *pkgkafka.Producer implements it.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes auth domain events. A nil publisher turns it into a
// no-op, which is how the service runs with Kafka disabled.
type Producer struct {
	kafka  Publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer for the auth service.
func NewProducer(kafka Publisher, logger *slog.Logger) *Producer {
	return &Producer{kafka: kafka, logger: logger}
}

// PublishIdentityRegistered publishes identity.registered.
func (p *Producer) PublishIdentityRegistered(ctx context.Context, id *domain.Identity) error {
	data := IdentityRegisteredData{ID: id.ID, Email: id.Email, Name: id.Name, Role: id.Role}
	return p.publish(ctx, TopicIdentityRegistered, "identity.registered", id.ID, data)
}

// PublishSessionRevoked publishes session.revoked for a single logout or a
// logout-all.
func (p *Producer) PublishSessionRevoked(ctx context.Context, identityID, scope string) error {
	data := SessionRevokedData{IdentityID: identityID, Scope: scope}
	return p.publish(ctx, TopicSessionRevoked, "session.revoked", identityID, data)
}

func (p *Producer) publish(ctx context.Context, topic, eventType, aggregateID string, data any) error {
	if p == nil || p.kafka == nil {
		return nil
	}

	evt, err := pkgkafka.NewEvent(ctx, eventType, pkgkafka.Subject{
		AggregateID:   aggregateID,
		AggregateType: AggregateTypeIdentity,
		Source:        SourceAuthService,
	}, data)
	if err != nil {
		return err
	}

	if err := p.kafka.Publish(ctx, topic, evt); err != nil {
		return fmt.Errorf("publish %s event: %w", eventType, err)
	}

	p.logger.DebugContext(ctx, "published "+eventType+" event",
		slog.String("identity_id", aggregateID),
	)
	return nil
}
