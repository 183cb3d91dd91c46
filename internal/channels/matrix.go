// ABOUTME: Matrix connector built on mautrix sync
// ABOUTME: Routes allowed-room text messages inbound and replies via SendText

package channels

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// MatrixChannelID is the registry id for the Matrix connector.
const MatrixChannelID = "matrix"

const (
	matrixTypingTimeout  = 30 * time.Second
	matrixNetworkTimeout = 10 * time.Second
	matrixSendTimeout    = 30 * time.Second
)

// MatrixOptions configures a Matrix connector.
type MatrixOptions struct {
	Homeserver  string
	UserID      string
	AccessToken string
	// AllowedRooms restricts which rooms are bridged. Empty allows all.
	AllowedRooms []string
	Logger       *slog.Logger
}

// Matrix connects a Matrix account to the gateway. Conversation ids are
// room ids.
type Matrix struct {
	client       *mautrix.Client
	userID       id.UserID
	allowedRooms []string
	logger       *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMatrix creates a connector for the given account.
func NewMatrix(opts MatrixOptions) (*Matrix, error) {
	client, err := mautrix.NewClient(opts.Homeserver, id.UserID(opts.UserID), opts.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("creating matrix client: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Matrix{
		client:       client,
		userID:       id.UserID(opts.UserID),
		allowedRooms: opts.AllowedRooms,
		logger:       logger.With("component", "matrix"),
	}, nil
}

// ID implements Handle.
func (m *Matrix) ID() string { return MatrixChannelID }

// Start begins syncing with the homeserver and delivering text messages to
// inbound. Returns immediately; sync runs until ctx ends or Stop.
func (m *Matrix) Start(ctx context.Context, inbound chan<- InboundMessage) error {
	syncer, ok := m.client.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return fmt.Errorf("unexpected syncer type: %T", m.client.Syncer)
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	m.mu.Lock()
	m.cancel = cancel
	m.done = done
	m.mu.Unlock()

	syncer.OnEventType(event.EventMessage, func(_ context.Context, evt *event.Event) {
		m.handleMessage(ctx, evt, inbound)
	})

	m.logger.Info("connecting to homeserver", "user_id", m.userID)
	go func() {
		defer close(done)
		if err := m.client.SyncWithContext(ctx); err != nil && ctx.Err() == nil {
			m.logger.Error("matrix sync failed", "error", err)
		}
	}()
	return nil
}

// Stop ends the sync loop and waits for it to exit.
func (m *Matrix) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (m *Matrix) handleMessage(ctx context.Context, evt *event.Event, inbound chan<- InboundMessage) {
	if evt.Sender == m.userID {
		return
	}
	content, ok := evt.Content.Parsed.(*event.MessageEventContent)
	if !ok || content.MsgType != event.MsgText || content.Body == "" {
		return
	}
	roomID := evt.RoomID.String()
	if !m.roomAllowed(roomID) {
		m.logger.Debug("ignoring message from non-allowed room", "room", roomID)
		return
	}

	m.setTyping(evt.RoomID, true)

	msg := InboundMessage{
		ChannelID:      MatrixChannelID,
		ConversationID: roomID,
		Text:           content.Body,
	}
	select {
	case inbound <- msg:
	case <-ctx.Done():
	}
}

// SendMessage implements Handle. conversationID is the room id.
func (m *Matrix) SendMessage(ctx context.Context, conversationID, text string) error {
	roomID := id.RoomID(conversationID)
	m.setTyping(roomID, false)

	ctx, cancel := context.WithTimeout(ctx, matrixSendTimeout)
	defer cancel()
	if _, err := m.client.SendText(ctx, roomID, text); err != nil {
		return fmt.Errorf("sending to room %s: %w", conversationID, err)
	}
	return nil
}

func (m *Matrix) roomAllowed(roomID string) bool {
	if len(m.allowedRooms) == 0 {
		return true
	}
	for _, allowed := range m.allowedRooms {
		if allowed == roomID {
			return true
		}
	}
	return false
}

func (m *Matrix) setTyping(roomID id.RoomID, typing bool) {
	var timeout time.Duration
	if typing {
		timeout = matrixTypingTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), matrixNetworkTimeout)
	defer cancel()
	if _, err := m.client.UserTyping(ctx, roomID, typing, timeout); err != nil {
		m.logger.Debug("failed to set typing indicator", "room", roomID.String(), "error", err)
	}
}
