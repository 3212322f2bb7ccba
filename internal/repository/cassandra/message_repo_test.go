package cassandra

import (
	"testing"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"travelchat-backend/internal/domain"
)

func TestBucket(t *testing.T) {
	assert.Equal(t, 202606, Bucket(time.Date(2026, 6, 30, 23, 59, 0, 0, time.UTC)))
	assert.Equal(t, 202701, Bucket(time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)))

	// bucket is computed in UTC
	loc := time.FixedZone("UTC+3", 3*60*60)
	assert.Equal(t, 202605, Bucket(time.Date(2026, 6, 1, 1, 0, 0, 0, loc)))
}

func TestApplyReads_OrdersByReadTime(t *testing.T) {
	first, second := uuid.New(), uuid.New()
	now := time.Now().UTC()
	msg := newTestMessage()
	applyReads(msg, map[gocql.UUID]time.Time{
		gocql.UUID(second): now.Add(time.Second),
		gocql.UUID(first):  now,
	})

	assert.True(t, msg.IsRead)
	assert.Equal(t, []uuid.UUID{first, second}, msg.ReadBy)
	assert.Equal(t, now, msg.ReadAt[first])
}

func TestApplyReads_Empty(t *testing.T) {
	msg := newTestMessage()
	applyReads(msg, nil)

	assert.False(t, msg.IsRead)
	assert.NotNil(t, msg.ReadBy)
	assert.Empty(t, msg.ReadBy)
}

func TestNullableRoundTrip(t *testing.T) {
	assert.Nil(t, toNullable(nil))
	assert.Nil(t, fromNullable(nil))

	id := uuid.New()
	assert.Equal(t, id, *fromNullable(toNullable(&id)))
}

func newTestMessage() *domain.Message {
	return &domain.Message{MessageID: uuid.New(), ConversationID: uuid.New()}
}
