package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/TrainingPlatform/pkg/logger"
)

var identity = Subject{AggregateID: "id-1", AggregateType: "identity", Source: "auth-service"}

func TestNewEvent(t *testing.T) {
	ctx := logger.WithCorrelationID(context.Background(), "corr-9")

	e, err := NewEvent(ctx, "session.revoked", identity, map[string]string{"scope": "all"})
	require.NoError(t, err)

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, "session.revoked", e.Type)
	assert.Equal(t, "id-1", e.AggregateID)
	assert.Equal(t, "identity", e.AggregateType)
	assert.Equal(t, "auth-service", e.Source)
	assert.Equal(t, 1, e.Version)
	assert.Equal(t, "corr-9", e.CorrelationID)
	assert.WithinDuration(t, time.Now(), e.OccurredAt, time.Second)
	assert.JSONEq(t, `{"scope":"all"}`, string(e.Data))
}

func TestNewEvent_NoCorrelation(t *testing.T) {
	e, err := NewEvent(context.Background(), "identity.registered", identity, nil)
	require.NoError(t, err)

	raw, err := json.Marshal(e)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "correlation_id")
}

func TestNewEvent_UnencodablePayload(t *testing.T) {
	_, err := NewEvent(context.Background(), "identity.registered", identity, make(chan int))
	assert.ErrorContains(t, err, "encode identity.registered payload")
}

func TestDecodeEvent(t *testing.T) {
	e, err := NewEvent(context.Background(), "session.revoked", identity, map[string]string{"scope": "single"})
	require.NoError(t, err)
	raw, err := json.Marshal(e)
	require.NoError(t, err)

	got, err := DecodeEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)

	var data struct {
		Scope string `json:"scope"`
	}
	require.NoError(t, got.UnmarshalData(&data))
	assert.Equal(t, "single", data.Scope)

	_, err = DecodeEvent([]byte("{"))
	assert.Error(t, err)
}

func TestTopic(t *testing.T) {
	assert.Equal(t, "training.identity.registered", Topic("identity", "registered"))
}
