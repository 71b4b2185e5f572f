package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teresa-solution/tenancy-allocation-service/internal/model"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event model.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func TestDispatcher_PublishesInOrder(t *testing.T) {
	pub := &recordingPublisher{}
	d := NewDispatcher(pub, 10, time.Second)

	d.Emit(model.Event{Type: model.EventTenancyCreated})
	d.Emit(model.Event{Type: model.EventTenancyEnded})
	d.Close()

	require.Len(t, pub.events, 2)
	assert.Equal(t, model.EventTenancyCreated, pub.events[0].Type)
	assert.Equal(t, model.EventTenancyEnded, pub.events[1].Type)
	assert.NotEqual(t, uuid.Nil, pub.events[0].ID)
	assert.False(t, pub.events[0].OccurredAt.IsZero())
}

func TestDispatcher_EmitAfterCloseIsDropped(t *testing.T) {
	pub := &recordingPublisher{}
	d := NewDispatcher(pub, 1, time.Second)
	d.Close()

	assert.NotPanics(t, func() { d.Emit(model.Event{Type: model.EventTenancyCreated}) })
	assert.Empty(t, pub.events)
}

func TestDispatcher_PublishFailureDoesNotStopWorker(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	d := NewDispatcher(pub, 4, time.Second)
	d.Emit(model.Event{Type: model.EventApplicationRejected})
	d.Emit(model.Event{Type: model.EventApplicationRejected})
	d.Close()
	assert.Empty(t, pub.events)
}

type fakeRedis struct {
	channel string
	message interface{}
}

func (f *fakeRedis) Publish(_ context.Context, channel string, message interface{}) *redis.IntCmd {
	f.channel = channel
	f.message = message
	return redis.NewIntResult(1, nil)
}

func (f *fakeRedis) Close() error { return nil }

func TestRedisPublisher_Publish(t *testing.T) {
	client := &fakeRedis{}
	pub := NewRedisPublisherWithClient(client, "tenancy.events")

	tenancyID := uuid.New()
	err := pub.Publish(context.Background(), model.Event{
		ID:        uuid.New(),
		Type:      model.EventTenancyCreated,
		TenancyID: &tenancyID,
	})
	require.NoError(t, err)
	assert.Equal(t, "tenancy.events", client.channel)

	data, ok := client.message.([]byte)
	require.True(t, ok)
	var decoded model.Event
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, model.EventTenancyCreated, decoded.Type)
	assert.Equal(t, tenancyID, *decoded.TenancyID)
}
