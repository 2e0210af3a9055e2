package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mantrip/internal/attendance/models"
)

func TestInMemoryPublisher(t *testing.T) {
	p := NewInMemory()
	ctx := context.Background()

	require.NoError(t, p.Publish(ctx, Event{Type: TypeCreated, Record: models.Record{PersonName: "Jon", Year: 2020}}))
	require.NoError(t, p.Publish(ctx, Event{Type: TypeUpdated, Record: models.Record{PersonName: "Jon", Year: 2020, Attended: true}}))

	got := p.Events()
	require.Len(t, got, 2)
	assert.Equal(t, TypeCreated, got[0].Type)
	assert.True(t, got[1].Record.Attended)

	got[0].Type = TypeDeleted
	assert.Equal(t, TypeCreated, p.Events()[0].Type, "Events must return a copy")
	assert.NoError(t, p.Close())
}

func TestNewKafkaRequiresConfig(t *testing.T) {
	_, err := NewKafka(nil, "attendance")
	assert.ErrorContains(t, err, "brokers are required")

	_, err = NewKafka([]string{"localhost:9092"}, "")
	assert.ErrorContains(t, err, "topic is required")
}
