package chat

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"travelchat-backend/internal/domain"
	"travelchat-backend/internal/repository/memory"
	"travelchat-backend/internal/service/conversation"
	"travelchat-backend/internal/service/moderation"
	"travelchat-backend/internal/service/notification"
	"travelchat-backend/internal/service/presence"
	"travelchat-backend/internal/service/realtime"
	apperrors "travelchat-backend/pkg/errors"
)

type harness struct {
	chat          *Service
	conversations *conversation.Service
	moderation    *moderation.Service
	notifications *notification.Service
	tracker       *presence.Tracker
	hub           *realtime.Hub
	dispatcher    *realtime.Dispatcher
	messages      *memory.MessageRepository
	clock         *testClock

	customer uuid.UUID
	provider uuid.UUID
}

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

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, func(m *memory.MessageRepository) MessageRepository { return m })
}

// newHarnessWith lets a test wrap the message store the pipeline sees
func newHarnessWith(t *testing.T, wrap func(*memory.MessageRepository) MessageRepository) *harness {
	t.Helper()

	clock := &testClock{now: time.Now().UTC()}
	messages := memory.NewMessageRepository()
	conversations := conversation.NewService(memory.NewConversationRepository(), nil)
	mod := moderation.NewService(memory.NewBlockRepository())
	notifications := notification.NewService(memory.NewNotificationRepository(), nil, nil, domain.DefaultRetention)

	hub := realtime.NewHub(nil)
	dispatcher := realtime.NewDispatcher(hub, conversations, notifications, nil)
	tracker := presence.NewTracker(dispatcher, presence.WithClock(clock.Now))
	hub.AddListener(tracker)

	svc := NewService(Deps{
		Messages:      wrap(messages),
		Conversations: conversations,
		Blocks:        mod,
		Dispatcher:    dispatcher,
		Typing:        tracker,
		Locker:        memory.NewLocker(),
		Idempotency:   memory.NewIdempotencyStore(10 * time.Minute),
		Notifications: notifications,
	})

	return &harness{
		chat:          svc,
		conversations: conversations,
		moderation:    mod,
		notifications: notifications,
		tracker:       tracker,
		hub:           hub,
		dispatcher:    dispatcher,
		messages:      messages,
		clock:         clock,
		customer:      uuid.New(),
		provider:      uuid.New(),
	}
}

func (h *harness) openConversation(t *testing.T) *domain.Conversation {
	t.Helper()
	out, err := h.conversations.FindOrCreate(context.Background(), &domain.ConversationCreate{
		Type:           domain.ConversationTypeCustomerProvider,
		ParticipantIDs: []uuid.UUID{h.customer, h.provider},
		ParticipantRoles: map[uuid.UUID]domain.Role{
			h.customer: domain.RoleCustomer,
			h.provider: domain.RolePropertyOwner,
		},
	})
	require.NoError(t, err)
	return out.Conversation
}

func (h *harness) connect(userID uuid.UUID) *realtime.Session {
	s := realtime.NewSession(userID, 64)
	h.hub.Register(context.Background(), s)
	return s
}

func (h *harness) send(t *testing.T, convID, senderID uuid.UUID, content string) *domain.Message {
	t.Helper()
	msg, err := h.chat.SendMessage(context.Background(), &SendMessageInput{
		ConversationID: convID,
		SenderID:       senderID,
		Content:        content,
	})
	require.NoError(t, err)
	return msg
}

func (h *harness) conversation(t *testing.T, id uuid.UUID) *domain.Conversation {
	t.Helper()
	conv, err := h.conversations.Get(context.Background(), id)
	require.NoError(t, err)
	return conv
}

type frame struct {
	Type string `json:"type"`
}

func frames(t *testing.T, s *realtime.Session, channel domain.Channel) []json.RawMessage {
	t.Helper()
	var out []json.RawMessage
	for {
		select {
		case raw := <-s.Outbound():
			var f frame
			require.NoError(t, json.Unmarshal(raw, &f))
			if domain.ChannelOf(f.Type) == channel {
				out = append(out, raw)
			}
		default:
			return out
		}
	}
}

func TestScenario_FirstContact(t *testing.T) {
	h := newHarness(t)

	conv := h.openConversation(t)

	assert.ElementsMatch(t, []uuid.UUID{h.customer, h.provider}, conv.Participants)
	assert.Equal(t, int64(0), conv.MessageCount)
	assert.True(t, conv.IsActive)
}

func TestScenario_SendToLiveRecipient(t *testing.T) {
	h := newHarness(t)
	conv := h.openConversation(t)
	providerSession := h.connect(h.provider)

	msg := h.send(t, conv.ConversationID, h.customer, "Is this available?")
	h.dispatcher.Wait()

	assert.Equal(t, h.customer, msg.SenderID)
	assert.Equal(t, domain.RoleCustomer, msg.SenderRole)
	assert.False(t, msg.IsRead)
	assert.Empty(t, msg.ReadBy)

	updated := h.conversation(t, conv.ConversationID)
	assert.Equal(t, int64(1), updated.MessageCount)
	assert.Equal(t, int64(1), updated.UnreadCount[h.provider])
	assert.Equal(t, int64(0), updated.UnreadCount[h.customer])

	events := frames(t, providerSession, domain.ChannelMessage)
	require.Len(t, events, 1)
	var ev domain.ChatMessageEvent
	require.NoError(t, json.Unmarshal(events[0], &ev))
	assert.Equal(t, domain.EventChatMessage, ev.Type)
	assert.Equal(t, msg.MessageID, ev.Message.ID)
	assert.Equal(t, "Is this available?", ev.Message.Content)
}

func TestScenario_SendToOfflineRecipientCreatesNotification(t *testing.T) {
	h := newHarness(t)
	conv := h.openConversation(t)

	msg := h.send(t, conv.ConversationID, h.customer, "Is this available?")
	h.dispatcher.Wait()

	list, err := h.notifications.GetNotifications(context.Background(), h.provider, 10, 0, false)
	require.NoError(t, err)
	require.Len(t, list.Notifications, 1)
	n := list.Notifications[0]
	assert.Equal(t, domain.NotificationTypeMessage, n.Type)
	assert.False(t, n.IsRead)
	assert.Equal(t, conv.ConversationID.String(), n.Data["conversationId"])
	assert.Equal(t, h.customer.String(), n.Data["senderId"])
	assert.Equal(t, msg.MessageID.String(), n.Data["messageId"])

	senderList, err := h.notifications.GetNotifications(context.Background(), h.customer, 10, 0, false)
	require.NoError(t, err)
	assert.Empty(t, senderList.Notifications)
}

func TestScenario_MarkReadNotifiesSender(t *testing.T) {
	h := newHarness(t)
	conv := h.openConversation(t)
	customerSession := h.connect(h.customer)
	msg := h.send(t, conv.ConversationID, h.customer, "Is this available?")

	receipt, err := h.chat.MarkRead(context.Background(), msg.MessageID, h.provider)
	require.NoError(t, err)
	assert.True(t, receipt.Applied)

	updated := h.conversation(t, conv.ConversationID)
	assert.Equal(t, int64(0), updated.UnreadCount[h.provider])

	stored, err := h.messages.GetByID(context.Background(), msg.MessageID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{h.provider}, stored.ReadBy)
	assert.True(t, stored.IsRead)

	events := frames(t, customerSession, domain.ChannelMessageStatus)
	require.Len(t, events, 1)
	var ev domain.MessageReadEvent
	require.NoError(t, json.Unmarshal(events[0], &ev))
	assert.Equal(t, domain.EventMessageRead, ev.Type)
	assert.Equal(t, msg.MessageID, ev.MessageID)
	assert.Equal(t, h.provider, ev.ReadBy)
}

func TestScenario_ReplyAcrossConversationsRejected(t *testing.T) {
	h := newHarness(t)
	conv := h.openConversation(t)
	h.send(t, conv.ConversationID, h.customer, "first")

	guide := uuid.New()
	other, err := h.conversations.FindOrCreate(context.Background(), &domain.ConversationCreate{
		Type:           domain.ConversationTypeCustomerProvider,
		ParticipantIDs: []uuid.UUID{h.customer, guide},
		ParticipantRoles: map[uuid.UUID]domain.Role{
			h.customer: domain.RoleCustomer,
			guide:      domain.RoleTourGuide,
		},
	})
	require.NoError(t, err)
	foreign := h.send(t, other.Conversation.ConversationID, guide, "tour at 9")

	_, err = h.chat.SendMessage(context.Background(), &SendMessageInput{
		ConversationID: conv.ConversationID,
		SenderID:       h.customer,
		Type:           domain.MessageTypeReply,
		Content:        "about that",
		ReplyToID:      &foreign.MessageID,
	})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))

	assert.Equal(t, int64(1), h.conversation(t, conv.ConversationID).MessageCount)
}

func TestScenario_BlockedSendIsGeneric(t *testing.T) {
	h := newHarness(t)
	conv := h.openConversation(t)
	h.send(t, conv.ConversationID, h.customer, "hello")

	_, err := h.moderation.Block(context.Background(), h.provider, h.customer, "spam")
	require.NoError(t, err)

	_, err = h.chat.SendMessage(context.Background(), &SendMessageInput{
		ConversationID: conv.ConversationID,
		SenderID:       h.customer,
		Content:        "are you there?",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrBlocked))
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeSendRejected))
	assert.NotContains(t, strings.ToLower(apperrors.GetAppError(err).Message), "block")

	assert.Equal(t, int64(1), h.conversation(t, conv.ConversationID).MessageCount)

	reply := h.send(t, conv.ConversationID, h.provider, "the blocker can still write")
	assert.NotNil(t, reply)
}

func TestScenario_TypingExpiresAfterDisconnect(t *testing.T) {
	h := newHarness(t)
	conv := h.openConversation(t)
	customerSession := h.connect(h.customer)
	providerSession := h.connect(h.provider)

	require.NoError(t, h.chat.StartTyping(context.Background(), conv.ConversationID, h.customer))
	assert.Contains(t, h.tracker.TypingUsers(conv.ConversationID), h.customer)
	assert.Len(t, frames(t, providerSession, domain.ChannelTyping), 1)
	assert.Empty(t, frames(t, customerSession, domain.ChannelTyping))

	customerSession.Close()
	h.clock.Advance(presence.DefaultTypingTTL + time.Second)

	assert.NotContains(t, h.tracker.TypingUsers(conv.ConversationID), h.customer)
}

func TestDisconnectClearsTyping(t *testing.T) {
	h := newHarness(t)
	conv := h.openConversation(t)
	customerSession := h.connect(h.customer)
	providerSession := h.connect(h.provider)

	require.NoError(t, h.chat.StartTyping(context.Background(), conv.ConversationID, h.customer))
	h.hub.Unregister(context.Background(), customerSession)

	assert.Empty(t, h.tracker.TypingUsers(conv.ConversationID))

	typing := frames(t, providerSession, domain.ChannelTyping)
	require.Len(t, typing, 2)
	var stop domain.TypingEvent
	require.NoError(t, json.Unmarshal(typing[1], &stop))
	assert.Equal(t, domain.EventTypingStop, stop.Type)
}

func TestSend_Validation(t *testing.T) {
	h := newHarness(t)
	conv := h.openConversation(t)
	ctx := context.Background()
	missing := uuid.New()

	tests := []struct {
		name  string
		input *SendMessageInput
		code  apperrors.ErrorCode
	}{
		{"empty", &SendMessageInput{Content: "   "}, apperrors.ErrCodeValidation},
		{"too long", &SendMessageInput{Content: strings.Repeat("x", domain.MaxContentLength+1)}, apperrors.ErrCodeValidation},
		{"too many attachments", &SendMessageInput{Attachments: make([]string, domain.MaxAttachments+1)}, apperrors.ErrCodeValidation},
		{"reply without target", &SendMessageInput{Type: domain.MessageTypeReply, Content: "x"}, apperrors.ErrCodeMissingField},
		{"system from client", &SendMessageInput{Type: domain.MessageTypeSystem, Content: "x"}, apperrors.ErrCodeValidation},
		{"unknown reply target", &SendMessageInput{Content: "x", ReplyToID: &missing}, apperrors.ErrCodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.input.ConversationID = conv.ConversationID
			tt.input.SenderID = h.customer
			_, err := h.chat.SendMessage(ctx, tt.input)
			assert.True(t, apperrors.HasCode(err, tt.code), "got %v", err)
		})
	}

	assert.Equal(t, int64(0), h.conversation(t, conv.ConversationID).MessageCount)
}

func TestSend_NonParticipant(t *testing.T) {
	h := newHarness(t)
	conv := h.openConversation(t)

	_, err := h.chat.SendMessage(context.Background(), &SendMessageInput{
		ConversationID: conv.ConversationID,
		SenderID:       uuid.New(),
		Content:        "hi",
	})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeConversationNotFound))
}

func TestSend_ArchivedConversation(t *testing.T) {
	h := newHarness(t)
	conv := h.openConversation(t)
	require.NoError(t, h.conversations.Archive(context.Background(), conv.ConversationID, h.provider))

	_, err := h.chat.SendMessage(context.Background(), &SendMessageInput{
		ConversationID: conv.ConversationID,
		SenderID:       h.customer,
		Content:        "hi",
	})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeConversationNotFound))
}

func TestSend_StrictlyIncreasingTimestamps(t *testing.T) {
	h := newHarness(t)
	conv := h.openConversation(t)
	h.chat.now = func() time.Time { return time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC) }

	first := h.send(t, conv.ConversationID, h.customer, "one")
	second := h.send(t, conv.ConversationID, h.provider, "two")
	third := h.send(t, conv.ConversationID, h.customer, "three")

	assert.True(t, second.CreatedAt.After(first.CreatedAt))
	assert.True(t, third.CreatedAt.After(second.CreatedAt))
	assert.Equal(t, time.Millisecond, second.CreatedAt.Sub(first.CreatedAt))
}

func TestSend_ConcurrentOrdering(t *testing.T) {
	h := newHarness(t)
	conv := h.openConversation(t)
	providerSession := h.connect(h.provider)

	const senders = 20
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.chat.SendMessage(context.Background(), &SendMessageInput{
				ConversationID: conv.ConversationID,
				SenderID:       h.customer,
				Content:        "concurrent",
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	h.dispatcher.Wait()

	page, err := h.chat.History(context.Background(), &HistoryInput{
		ConversationID: conv.ConversationID,
		ReaderID:       h.provider,
		Limit:          100,
	})
	require.NoError(t, err)
	require.Len(t, page.Messages, senders)

	var delivered []uuid.UUID
	for _, raw := range frames(t, providerSession, domain.ChannelMessage) {
		var ev domain.ChatMessageEvent
		require.NoError(t, json.Unmarshal(raw, &ev))
		delivered = append(delivered, ev.Message.ID)
	}
	require.Len(t, delivered, senders)
	for i, m := range page.Messages {
		assert.Equal(t, m.MessageID, delivered[i], "live order must match history order")
		if i > 0 {
			assert.True(t, page.Messages[i-1].Before(m))
		}
	}

	assert.Equal(t, int64(senders), h.conversation(t, conv.ConversationID).UnreadCount[h.provider])
}

func TestSend_IdempotencyKey(t *testing.T) {
	h := newHarness(t)
	conv := h.openConversation(t)
	input := func() *SendMessageInput {
		return &SendMessageInput{
			ConversationID: conv.ConversationID,
			SenderID:       h.customer,
			Content:        "book for 2 nights",
			IdempotencyKey: "client-retry-1",
		}
	}

	first, err := h.chat.SendMessage(context.Background(), input())
	require.NoError(t, err)
	second, err := h.chat.SendMessage(context.Background(), input())
	require.NoError(t, err)

	assert.Equal(t, first.MessageID, second.MessageID)
	assert.Equal(t, int64(1), h.conversation(t, conv.ConversationID).MessageCount)
}

func TestMarkRead_Idempotent(t *testing.T) {
	h := newHarness(t)
	conv := h.openConversation(t)
	customerSession := h.connect(h.customer)
	msg := h.send(t, conv.ConversationID, h.customer, "hello")

	first, err := h.chat.MarkRead(context.Background(), msg.MessageID, h.provider)
	require.NoError(t, err)
	h.clock.Advance(time.Minute)
	h.chat.now = h.clock.Now
	second, err := h.chat.MarkRead(context.Background(), msg.MessageID, h.provider)
	require.NoError(t, err)

	assert.True(t, first.Applied)
	assert.False(t, second.Applied)
	assert.Equal(t, first.ReadAt, second.ReadAt)

	stored, err := h.messages.GetByID(context.Background(), msg.MessageID)
	require.NoError(t, err)
	assert.Len(t, stored.ReadBy, 1)
	assert.Len(t, frames(t, customerSession, domain.ChannelMessageStatus), 1)
}

func TestMarkRead_OwnMessageIsNoop(t *testing.T) {
	h := newHarness(t)
	conv := h.openConversation(t)
	msg := h.send(t, conv.ConversationID, h.customer, "hello")

	receipt, err := h.chat.MarkRead(context.Background(), msg.MessageID, h.customer)
	require.NoError(t, err)
	assert.False(t, receipt.Applied)

	stored, err := h.messages.GetByID(context.Background(), msg.MessageID)
	require.NoError(t, err)
	assert.False(t, stored.IsRead)
	assert.Empty(t, stored.ReadBy)
}

func TestMarkRead_OlderMessageKeepsNewerUnread(t *testing.T) {
	h := newHarness(t)
	conv := h.openConversation(t)
	older := h.send(t, conv.ConversationID, h.customer, "one")
	h.send(t, conv.ConversationID, h.customer, "two")

	_, err := h.chat.MarkRead(context.Background(), older.MessageID, h.provider)
	require.NoError(t, err)
	assert.Equal(t, int64(2), h.conversation(t, conv.ConversationID).UnreadCount[h.provider])

	n, err := h.chat.MarkConversationRead(context.Background(), conv.ConversationID, h.provider)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int64(0), h.conversation(t, conv.ConversationID).UnreadCount[h.provider])
}

func TestUnreadTracksSendsSinceLastRead(t *testing.T) {
	h := newHarness(t)
	conv := h.openConversation(t)

	var last *domain.Message
	for i := 0; i < 3; i++ {
		last = h.send(t, conv.ConversationID, h.customer, "m")
	}
	_, err := h.chat.MarkRead(context.Background(), last.MessageID, h.provider)
	require.NoError(t, err)
	h.send(t, conv.ConversationID, h.customer, "after read")
	h.send(t, conv.ConversationID, h.provider, "reply")
	h.send(t, conv.ConversationID, h.customer, "again")

	updated := h.conversation(t, conv.ConversationID)
	assert.Equal(t, int64(1), updated.UnreadCount[h.provider])
	assert.Equal(t, int64(0), updated.UnreadCount[h.customer])
	assert.Equal(t, int64(6), updated.MessageCount)
}

// racingMessages runs onForwardScan once, right after the first forward history scan
type racingMessages struct {
	*memory.MessageRepository

	once          sync.Once
	onForwardScan func()
}

func (m *racingMessages) List(ctx context.Context, query domain.HistoryQuery) ([]*domain.Message, error) {
	page, err := m.MessageRepository.List(ctx, query)
	if query.Direction == domain.HistoryForward && query.After != nil && m.onForwardScan != nil {
		m.once.Do(m.onForwardScan)
	}
	return page, err
}

func TestMarkRead_ConcurrentSendKeepsUnread(t *testing.T) {
	racing := &racingMessages{}
	h := newHarnessWith(t, func(m *memory.MessageRepository) MessageRepository {
		racing.MessageRepository = m
		return racing
	})
	conv := h.openConversation(t)
	first := h.send(t, conv.ConversationID, h.customer, "Is this available?")

	sent := make(chan error, 1)
	racing.onForwardScan = func() {
		go func() {
			_, err := h.chat.SendMessage(context.Background(), &SendMessageInput{
				ConversationID: conv.ConversationID,
				SenderID:       h.customer,
				Content:        "Also, is parking included?",
			})
			sent <- err
		}()
		// Give the send a chance to land between the scan and the reset.
		select {
		case err := <-sent:
			sent <- err
		case <-time.After(100 * time.Millisecond):
		}
	}

	_, err := h.chat.MarkRead(context.Background(), first.MessageID, h.provider)
	require.NoError(t, err)
	require.NoError(t, <-sent)

	updated := h.conversation(t, conv.ConversationID)
	assert.Equal(t, int64(2), updated.MessageCount)
	assert.Equal(t, int64(1), updated.UnreadCount[h.provider])
}

func TestMarkConversationRead_ConcurrentSendKeepsUnread(t *testing.T) {
	h := newHarness(t)
	conv := h.openConversation(t)
	for i := 0; i < 3; i++ {
		h.send(t, conv.ConversationID, h.customer, "m")
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := h.chat.MarkConversationRead(context.Background(), conv.ConversationID, h.provider)
		assert.NoError(t, err)
	}()
	go func() {
		defer wg.Done()
		_, err := h.chat.SendMessage(context.Background(), &SendMessageInput{
			ConversationID: conv.ConversationID,
			SenderID:       h.customer,
			Content:        "one more",
		})
		assert.NoError(t, err)
	}()
	wg.Wait()

	// Either order is valid, but the send must never be erased by the reset.
	page, err := h.chat.History(context.Background(), &HistoryInput{
		ConversationID: conv.ConversationID,
		ReaderID:       h.provider,
		Direction:      domain.HistoryForward,
		Limit:          10,
	})
	require.NoError(t, err)
	require.Len(t, page.Messages, 4)

	unreadByProvider := 0
	for _, m := range page.Messages {
		if !m.HasReadBy(h.provider) {
			unreadByProvider++
		}
	}
	assert.Equal(t, int64(unreadByProvider), h.conversation(t, conv.ConversationID).UnreadCount[h.provider])
}

func TestHistory_DirectionsAndCursor(t *testing.T) {
	h := newHarness(t)
	conv := h.openConversation(t)
	var sent []uuid.UUID
	for i := 0; i < 5; i++ {
		sent = append(sent, h.send(t, conv.ConversationID, h.customer, "m").MessageID)
	}
	ctx := context.Background()

	page, err := h.chat.History(ctx, &HistoryInput{ConversationID: conv.ConversationID, ReaderID: h.provider, Limit: 3})
	require.NoError(t, err)
	require.Len(t, page.Messages, 3)
	assert.True(t, page.HasMore)
	assert.Equal(t, sent[0], page.Messages[0].MessageID)

	next, err := h.chat.History(ctx, &HistoryInput{ConversationID: conv.ConversationID, ReaderID: h.provider, Limit: 3, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, next.Messages, 2)
	assert.False(t, next.HasMore)
	assert.Equal(t, sent[3], next.Messages[0].MessageID)

	back, err := h.chat.History(ctx, &HistoryInput{ConversationID: conv.ConversationID, ReaderID: h.provider, Limit: 2, Direction: domain.HistoryBackward})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{sent[4], sent[3]}, []uuid.UUID{back.Messages[0].MessageID, back.Messages[1].MessageID})

	_, err = h.chat.History(ctx, &HistoryInput{ConversationID: conv.ConversationID, ReaderID: uuid.New()})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeConversationNotFound))
}

func TestIterateHistory(t *testing.T) {
	h := newHarness(t)
	conv := h.openConversation(t)
	for i := 0; i < 7; i++ {
		h.send(t, conv.ConversationID, h.provider, "m")
	}

	count := 0
	for msg, err := range h.chat.IterateHistory(context.Background(), conv.ConversationID, h.customer, domain.HistoryBackward, 2) {
		require.NoError(t, err)
		require.NotNil(t, msg)
		count++
	}
	assert.Equal(t, 7, count)

	for _, err := range h.chat.IterateHistory(context.Background(), conv.ConversationID, uuid.New(), domain.HistoryForward, 2) {
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeConversationNotFound))
	}
}

func TestFlagAndModerate(t *testing.T) {
	h := newHarness(t)
	conv := h.openConversation(t)
	msg, err := h.chat.SendMessage(context.Background(), &SendMessageInput{
		ConversationID: conv.ConversationID,
		SenderID:       h.customer,
		Content:        "call me off-platform",
		Attachments:    []string{"chat/card.png"},
	})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = h.chat.FlagMessage(ctx, msg.MessageID, uuid.New(), domain.RoleCustomer, "spam")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeMessageNotFound))

	flagged, err := h.chat.FlagMessage(ctx, msg.MessageID, h.provider, domain.RolePropertyOwner, "spam")
	require.NoError(t, err)
	assert.True(t, flagged.IsFlagged)
	flagged, err = h.chat.FlagMessage(ctx, msg.MessageID, h.provider, domain.RolePropertyOwner, "off-platform payment")
	require.NoError(t, err)
	assert.Equal(t, "off-platform payment", flagged.FlagReason)

	_, err = h.chat.ModerateMessage(ctx, msg.MessageID, h.provider, domain.RolePropertyOwner, domain.ModerationRemoved)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeForbidden))

	admin := uuid.New()
	moderated, err := h.chat.ModerateMessage(ctx, msg.MessageID, admin, domain.RoleSuperAdmin, domain.ModerationRemoved)
	require.NoError(t, err)
	assert.False(t, moderated.IsFlagged)
	assert.Equal(t, domain.ModerationRemoved, moderated.ModerationStatus)
	require.NotNil(t, moderated.ModeratedBy)
	assert.Equal(t, admin, *moderated.ModeratedBy)

	page, err := h.chat.History(ctx, &HistoryInput{ConversationID: conv.ConversationID, ReaderID: h.provider})
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Empty(t, page.Messages[0].Content)
	assert.Empty(t, page.Messages[0].Attachments)
}

func TestPostSystemMessage(t *testing.T) {
	h := newHarness(t)
	conv := h.openConversation(t)
	providerSession := h.connect(h.provider)
	customerSession := h.connect(h.customer)

	_, err := h.moderation.Block(context.Background(), h.provider, h.customer, "")
	require.NoError(t, err)

	msg, err := h.chat.PostSystemMessage(context.Background(), conv.ConversationID, "Booking confirmed")
	require.NoError(t, err)
	assert.Equal(t, domain.MessageTypeSystem, msg.Type)
	assert.Equal(t, domain.SystemSenderID, msg.SenderID)

	updated := h.conversation(t, conv.ConversationID)
	assert.Equal(t, int64(1), updated.UnreadCount[h.provider])
	assert.Equal(t, int64(1), updated.UnreadCount[h.customer])
	assert.Len(t, frames(t, providerSession, domain.ChannelMessage), 1)
	assert.Len(t, frames(t, customerSession, domain.ChannelMessage), 1)
}

func TestEraseUserMessages(t *testing.T) {
	h := newHarness(t)
	conv := h.openConversation(t)
	h.send(t, conv.ConversationID, h.customer, "mine")
	h.send(t, conv.ConversationID, h.provider, "theirs")
	h.send(t, conv.ConversationID, h.customer, "mine too")
	h.dispatcher.Wait()

	result, err := h.chat.EraseUserMessages(context.Background(), h.customer)
	require.NoError(t, err)
	assert.Equal(t, 2, result.MessagesDeleted)
	assert.Equal(t, int64(1), result.NotificationsDeleted)

	page, err := h.chat.History(context.Background(), &HistoryInput{ConversationID: conv.ConversationID, ReaderID: h.provider})
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, h.provider, page.Messages[0].SenderID)
}

func TestNextTimestamp(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 500_000, time.UTC)
	assert.Equal(t, now.Truncate(time.Millisecond), nextTimestamp(now, nil))

	last := now.Add(time.Second)
	assert.Equal(t, last.Truncate(time.Millisecond).Add(time.Millisecond), nextTimestamp(now, &last))
}
