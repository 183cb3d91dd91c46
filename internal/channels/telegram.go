// ABOUTME: Telegram connector speaking the Bot API over HTTPS
// ABOUTME: Supports long-poll getUpdates and webhook modes, with rate-limited sends

package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/chaihq/chai/internal/dedupe"
)

// TelegramChannelID is the registry id for the Telegram connector.
const TelegramChannelID = "telegram"

const (
	telegramAPIBase     = "https://api.telegram.org"
	telegramPollTimeout = 30 * time.Second
	telegramPollBackoff = 2 * time.Second
)

// Telegram connects a bot to the gateway. Conversation ids are chat ids.
type Telegram struct {
	token   string
	apiBase string
	client  *http.Client
	limiter *rate.Limiter
	seen    *dedupe.Cache
	logger  *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewTelegram creates a connector for the given bot token. An empty apiBase
// uses the public Bot API endpoint.
func NewTelegram(token, apiBase string, logger *slog.Logger) *Telegram {
	if apiBase == "" {
		apiBase = telegramAPIBase
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Telegram{
		token:   token,
		apiBase: apiBase,
		client:  &http.Client{Timeout: telegramPollTimeout + 15*time.Second},
		// Bot API global sending limit is about 30 messages per second.
		limiter: rate.NewLimiter(rate.Limit(25), 5),
		seen:    dedupe.New(10*time.Minute, 4096),
		logger:  logger.With("component", "telegram"),
	}
}

// ID implements Handle.
func (t *Telegram) ID() string { return TelegramChannelID }

// Update is one Bot API update envelope.
type Update struct {
	UpdateID int64            `json:"update_id"`
	Message  *telegramMessage `json:"message"`
}

type telegramMessage struct {
	Chat telegramChat `json:"chat"`
	Text string       `json:"text"`
}

type telegramChat struct {
	ID int64 `json:"id"`
}

type telegramResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

// StartPolling launches the long-poll loop. Received messages are delivered
// to inbound. Returns immediately; the loop runs until ctx ends or Stop.
func (t *Telegram) StartPolling(ctx context.Context, inbound chan<- InboundMessage) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	t.mu.Lock()
	t.cancel = cancel
	t.done = done
	t.mu.Unlock()

	go func() {
		defer close(done)
		t.pollLoop(ctx, inbound)
	}()
}

// Stop ends the polling loop and waits for it to exit.
func (t *Telegram) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (t *Telegram) pollLoop(ctx context.Context, inbound chan<- InboundMessage) {
	t.logger.Info("starting long-poll loop")
	var offset int64
	for {
		if ctx.Err() != nil {
			return
		}
		updates, err := t.getUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			t.logger.Warn("getUpdates failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(telegramPollBackoff):
			}
			continue
		}
		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			t.deliver(ctx, u, inbound)
		}
	}
}

// HandleUpdate processes a single update delivered out of band, such as a
// webhook payload. Duplicate update ids are dropped.
func (t *Telegram) HandleUpdate(ctx context.Context, u Update, inbound chan<- InboundMessage) {
	t.deliver(ctx, u, inbound)
}

func (t *Telegram) deliver(ctx context.Context, u Update, inbound chan<- InboundMessage) {
	if u.Message == nil || u.Message.Text == "" {
		return
	}
	if t.seen.Seen(strconv.FormatInt(u.UpdateID, 10)) {
		t.logger.Debug("dropping duplicate update", "update_id", u.UpdateID)
		return
	}
	msg := InboundMessage{
		ChannelID:      TelegramChannelID,
		ConversationID: strconv.FormatInt(u.Message.Chat.ID, 10),
		Text:           u.Message.Text,
	}
	select {
	case inbound <- msg:
	case <-ctx.Done():
	}
}

func (t *Telegram) getUpdates(ctx context.Context, offset int64) ([]Update, error) {
	body := map[string]any{
		"timeout": int(telegramPollTimeout / time.Second),
	}
	if offset > 0 {
		body["offset"] = offset
	}
	raw, err := t.call(ctx, "getUpdates", body)
	if err != nil {
		return nil, err
	}
	var updates []Update
	if err := json.Unmarshal(raw, &updates); err != nil {
		return nil, fmt.Errorf("decoding updates: %w", err)
	}
	return updates, nil
}

// SendMessage implements Handle. conversationID is the chat id.
func (t *Telegram) SendMessage(ctx context.Context, conversationID, text string) error {
	chatID, err := strconv.ParseInt(conversationID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id %q: %w", conversationID, err)
	}
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err = t.call(ctx, "sendMessage", map[string]any{
		"chat_id": chatID,
		"text":    text,
	})
	return err
}

// SetWebhook registers url with the Bot API. A non-empty secret is sent back
// by Telegram in the X-Telegram-Bot-Api-Secret-Token header on each delivery.
func (t *Telegram) SetWebhook(ctx context.Context, url, secret string) error {
	body := map[string]any{"url": url}
	if secret != "" {
		body["secret_token"] = secret
	}
	_, err := t.call(ctx, "setWebhook", body)
	return err
}

// DeleteWebhook removes any registered webhook so long-polling can resume.
func (t *Telegram) DeleteWebhook(ctx context.Context) error {
	_, err := t.call(ctx, "deleteWebhook", map[string]any{})
	return err
}

func (t *Telegram) call(ctx context.Context, method string, body map[string]any) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding %s request: %w", method, err)
	}
	url := fmt.Sprintf("%s/bot%s/%s", t.apiBase, t.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", method, err)
	}
	var decoded telegramResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decoding %s response (status %d): %w", method, resp.StatusCode, err)
	}
	if !decoded.OK {
		return nil, fmt.Errorf("%s: api error: %s", method, decoded.Description)
	}
	return decoded.Result, nil
}
