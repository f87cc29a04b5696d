package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOwnerChangedMessageJSON(t *testing.T) {
	msg := &OwnerChangedMessage{
		OwnerID:   "u1",
		Origin:    "proc-a",
		Timestamp: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}
	data, err := msg.ToJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"ownerId":"u1","origin":"proc-a","timestamp":"2024-01-01T12:00:00Z"}`, string(data))

	parsed, err := OwnerChangedMessageFromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, msg.OwnerID, parsed.OwnerID)
	assert.Equal(t, msg.Origin, parsed.Origin)
	assert.True(t, parsed.Timestamp.Equal(msg.Timestamp))
}

func TestOwnerChangedMessageRejectsBadInput(t *testing.T) {
	_, err := OwnerChangedMessageFromJSON([]byte(`{"ownerId": 5}`))
	assert.Error(t, err)

	_, err = OwnerChangedMessageFromJSON([]byte(`{"origin":"x"}`))
	assert.Error(t, err)
}

func TestNewOwnerChangedMessage(t *testing.T) {
	msg := NewOwnerChangedMessage("u1", "o")
	assert.Equal(t, "u1", msg.OwnerID)
	assert.WithinDuration(t, time.Now(), msg.Timestamp, time.Second)
	assert.NotEqual(t, NewOrigin(), NewOrigin())
}
