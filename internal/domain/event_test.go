package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelOf(t *testing.T) {
	assert.Equal(t, ChannelMessage, ChannelOf(EventChatMessage))
	assert.Equal(t, ChannelTyping, ChannelOf(EventTypingStart))
	assert.Equal(t, ChannelTyping, ChannelOf(EventTypingStop))
	assert.Equal(t, ChannelStatus, ChannelOf(EventUserOnline))
	assert.Equal(t, ChannelStatus, ChannelOf(EventUserOffline))
	assert.Equal(t, ChannelMessageStatus, ChannelOf(EventMessageRead))
	assert.Equal(t, ChannelError, ChannelOf(EventError))
}

func TestChatMessageEvent_WireShape(t *testing.T) {
	msg := &Message{
		MessageID:      uuid.New(),
		ConversationID: uuid.New(),
		SenderID:       uuid.New(),
		Type:           MessageTypeText,
		Content:        "Is this available?",
		CreatedAt:      time.Now().UTC(),
	}

	raw, err := json.Marshal(NewChatMessageEvent(msg))
	require.NoError(t, err)

	var ev map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &ev))
	assert.Equal(t, "chat_message", ev["type"])
	assert.Equal(t, msg.ConversationID.String(), ev["conversationId"])

	body := ev["message"].(map[string]interface{})
	for _, key := range []string{"id", "senderId", "content", "type", "attachments", "createdAt"} {
		assert.Contains(t, body, key)
	}
	assert.Equal(t, []interface{}{}, body["attachments"])
}
