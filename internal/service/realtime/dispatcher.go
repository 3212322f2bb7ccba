package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"travelchat-backend/internal/domain"
	"travelchat-backend/pkg/constants"
	"travelchat-backend/pkg/logger"
	"travelchat-backend/pkg/metrics"
)

// Transport hands an encoded event to every live session of a user and reports
// how many sessions (or, across replicas, how many subscribers) took it
type Transport interface {
	Deliver(ctx context.Context, userID uuid.UUID, payload []byte) (int, error)
}

// ConversationLookup resolves who an event concerns
type ConversationLookup interface {
	Get(ctx context.Context, conversationID uuid.UUID) (*domain.Conversation, error)
	Counterparts(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

// OfflineNotifier persists the durable record of a new message for a recipient.
// push is true when no live session took the event.
type OfflineNotifier interface {
	NotifyNewMessage(ctx context.Context, recipientID uuid.UUID, event *domain.ChatMessageEvent, push bool) error
}

// Dispatcher fans realtime events out to the affected users
type Dispatcher struct {
	transport     Transport
	conversations ConversationLookup
	offline       OfflineNotifier
	metrics       *metrics.Metrics

	wg sync.WaitGroup
}

// NewDispatcher creates a dispatcher. offline may be nil to disable the fallback.
func NewDispatcher(transport Transport, conversations ConversationLookup, offline OfflineNotifier, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		transport:     transport,
		conversations: conversations,
		offline:       offline,
		metrics:       m,
	}
}

// Publish delivers event to every live session of userID on channel and reports
// whether at least one took it. New-message events are also recorded as a
// Notification, pushed to devices when nothing was delivered.
func (d *Dispatcher) Publish(ctx context.Context, userID uuid.UUID, channel domain.Channel, event interface{}) bool {
	delivered := d.deliver(ctx, userID, channel, event)

	if channel == domain.ChannelMessage {
		if ev, ok := event.(*domain.ChatMessageEvent); ok {
			d.notifyAsync(ctx, userID, ev, !delivered)
		}
	}
	return delivered
}

// MessageAccepted fans a new message out to every participant except its sender.
// Callers hold the conversation lock so recipients see messages in acceptance order.
func (d *Dispatcher) MessageAccepted(ctx context.Context, conv *domain.Conversation, msg *domain.Message) {
	event := domain.NewChatMessageEvent(msg)
	for _, recipientID := range conv.Others(msg.SenderID) {
		d.Publish(ctx, recipientID, domain.ChannelMessage, event)
	}
}

// MessageRead sends a read receipt to the original sender only
func (d *Dispatcher) MessageRead(ctx context.Context, msg *domain.Message, receipt *domain.ReadReceipt) {
	if msg.SenderID == domain.SystemSenderID || msg.SenderID == receipt.ReaderID {
		return
	}
	d.deliver(ctx, msg.SenderID, domain.ChannelMessageStatus, &domain.MessageReadEvent{
		Type:           domain.EventMessageRead,
		ConversationID: receipt.ConversationID,
		MessageID:      receipt.MessageID,
		ReadBy:         receipt.ReaderID,
		ReadAt:         receipt.ReadAt,
	})
}

// TypingChanged tells the other participants that userID started or stopped typing.
// Typing events are not retried.
func (d *Dispatcher) TypingChanged(ctx context.Context, conversationID, userID uuid.UUID, typing bool) {
	conv, err := d.conversations.Get(ctx, conversationID)
	if err != nil {
		logger.FromContext(ctx).Debug("Dropping typing event",
			zap.String("conversation_id", conversationID.String()), zap.Error(err))
		return
	}

	eventType := domain.EventTypingStop
	if typing {
		eventType = domain.EventTypingStart
	}
	event := &domain.TypingEvent{
		Type:           eventType,
		ConversationID: conversationID,
		UserID:         userID,
	}
	for _, other := range conv.Others(userID) {
		d.deliver(ctx, other, domain.ChannelTyping, event)
	}
}

// PresenceChanged tells everyone sharing a conversation with userID about the transition
func (d *Dispatcher) PresenceChanged(ctx context.Context, userID uuid.UUID, online bool, lastSeen time.Time) {
	counterparts, err := d.conversations.Counterparts(ctx, userID)
	if err != nil {
		logger.FromContext(ctx).Warn("Failed to resolve presence audience",
			zap.String("user_id", userID.String()), zap.Error(err))
		return
	}

	event := &domain.PresenceEvent{Type: domain.EventUserOnline, UserID: userID}
	if !online {
		event.Type = domain.EventUserOffline
		seen := lastSeen.UTC()
		event.LastSeen = &seen
	}
	for _, other := range counterparts {
		d.deliver(ctx, other, domain.ChannelStatus, event)
	}
}

// Wait blocks until every pending notification fallback has finished
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, userID uuid.UUID, channel domain.Channel, event interface{}) bool {
	payload, err := json.Marshal(event)
	if err != nil {
		logger.FromContext(ctx).Error("Failed to encode realtime event",
			zap.String("channel", string(channel)), zap.Error(err))
		d.metrics.RecordDelivery(string(channel), "error")
		return false
	}

	deliverCtx, cancel := context.WithTimeout(ctx, constants.FanoutTimeout)
	defer cancel()

	n, err := d.transport.Deliver(deliverCtx, userID, payload)
	if err != nil {
		logger.FromContext(ctx).Warn("Realtime delivery failed",
			zap.String("user_id", userID.String()),
			zap.String("channel", string(channel)),
			zap.Error(err))
		d.metrics.RecordDelivery(string(channel), "error")
		return false
	}
	if n == 0 {
		d.metrics.RecordDelivery(string(channel), "offline")
		return false
	}
	d.metrics.RecordDelivery(string(channel), "delivered")
	return true
}

func (d *Dispatcher) notifyAsync(ctx context.Context, recipientID uuid.UUID, event *domain.ChatMessageEvent, push bool) {
	if d.offline == nil {
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.NotificationTimeout)
		defer cancel()

		if err := d.offline.NotifyNewMessage(notifyCtx, recipientID, event, push); err != nil {
			d.metrics.RecordOfflineNotification("failed")
			logger.FromContext(ctx).Error("Failed to record message notification",
				zap.String("recipient_id", recipientID.String()),
				zap.String("message_id", event.Message.ID.String()),
				zap.Error(err))
			return
		}
		d.metrics.RecordOfflineNotification("created")
	}()
}
