// pagerelay - Facebook Messenger channel implementation
// Bridges the Graph API webhook to the message bus and exposes the outbound
// send and media retrieval operations.

package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"pagerelay/pkg/bus"
	"pagerelay/pkg/config"
	"pagerelay/pkg/logger"
	"pagerelay/pkg/messenger"
	"pagerelay/pkg/utils"
)

// Response literals required by the platform handshake. The ack goes back on
// every webhook POST regardless of outcome: the platform retries aggressively
// on anything else, and a retry storm is worse than a dropped malformed batch.
const (
	ackResponse   = "EVENT_RECEIVED"
	verifyError   = "ERROR"
	subscribeMode = "subscribe"
)

// SaveErrorSentinel is returned by SaveMedia when the download or write
// fails. Callers treat any non-empty, non-sentinel result as a file path.
const SaveErrorSentinel = "ERROR"

// ErrSendFailed is the only error SendMessage surfaces. The transport detail
// is logged, not part of the returned contract.
var ErrSendFailed = errors.New("failed to send message")

type ChannelState string

const (
	StateInitializing ChannelState = "initializing"
	StateReady        ChannelState = "ready"
	StateDegraded     ChannelState = "degraded"
)

// MessengerChannel implements the Channel interface for Facebook Messenger.
// Inbound traffic arrives on a webhook HTTP server; outbound calls go to the
// version-prefixed Graph API.
type MessengerChannel struct {
	*BaseChannel
	config     config.MessengerConfig
	normalizer *messenger.Normalizer
	server     *http.Server
	client     *http.Client
	stateMu    sync.RWMutex
	state      ChannelState
}

// NewMessengerChannel merges cfg over the documented defaults and validates
// the result. A missing access token, page id or verify token fails here,
// before any network call: the channel must not exist in an invalid state.
func NewMessengerChannel(cfg config.MessengerConfig, b bus.Broker) (*MessengerChannel, error) {
	merged, err := config.New(cfg)
	if err != nil {
		return nil, err
	}

	c := &MessengerChannel{
		BaseChannel: NewBaseChannel(messenger.ChannelName, b),
		config:      merged,
		client:      &http.Client{Timeout: 30 * time.Second},
		state:       StateInitializing,
	}

	norm, err := messenger.NewNormalizer(c.PublishEvent)
	if err != nil {
		return nil, err
	}
	c.normalizer = norm

	return c, nil
}

// Start registers the webhook routes, brings up the HTTP server and kicks
// off the authentication status check in the background.
func (c *MessengerChannel) Start(ctx context.Context) error {
	logger.InfoC(messenger.ChannelName, "Starting Messenger channel...")

	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", c.handleWebhook)
	mux.HandleFunc("/health/messenger", c.handleHealth)

	addr := fmt.Sprintf(":%d", c.config.Port)
	c.server = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	c.setRunning(true)
	logger.InfoCF(messenger.ChannelName, "Messenger channel started", map[string]interface{}{
		"address": addr,
		"page_id": c.config.PageID,
	})

	go func() {
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.ErrorCF(messenger.ChannelName, "HTTP server error", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	// Advisory only: a failed check degrades the channel but blocks nothing.
	go c.CheckStatus(ctx)

	return nil
}

// Stop gracefully shuts down the webhook server.
func (c *MessengerChannel) Stop(ctx context.Context) error {
	logger.InfoC(messenger.ChannelName, "Stopping Messenger channel...")

	if c.server != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		c.server.Shutdown(shutdownCtx)
	}

	c.setRunning(false)
	logger.InfoC(messenger.ChannelName, "Messenger channel stopped")
	return nil
}

func (c *MessengerChannel) State() ChannelState {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

func (c *MessengerChannel) setState(s ChannelState) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.state = s
}

// handleWebhook routes the two platform surfaces sharing one path: GET for
// the subscription handshake, POST for event delivery.
func (c *MessengerChannel) handleWebhook(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		c.handleVerification(w, r)
	case http.MethodPost:
		c.handleInbound(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (c *MessengerChannel) handleVerification(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	mode := query.Get("hub.mode")
	token := query.Get("hub.verify_token")
	challenge := query.Get("hub.challenge")

	response := c.VerifySubscription(mode, token, challenge)
	if response != verifyError {
		logger.InfoC(messenger.ChannelName, "Webhook verified")
	} else {
		logger.WarnCF(messenger.ChannelName, "Webhook verification rejected", map[string]interface{}{
			"mode": mode,
		})
	}
	w.Write([]byte(response))
}

// VerifySubscription implements the subscription handshake gate: the
// challenge is echoed back only on an exact mode and token match. Anything
// else, including missing parameters, gets the fixed error literal.
func (c *MessengerChannel) VerifySubscription(mode, token, challenge string) string {
	if mode == subscribeMode && token == c.config.VerifyToken {
		return challenge
	}
	return verifyError
}

func (c *MessengerChannel) handleInbound(w http.ResponseWriter, r *http.Request) {
	deliveryID := uuid.NewString()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		logger.ErrorCF(messenger.ChannelName, "Failed to read webhook body", map[string]interface{}{
			"delivery_id": deliveryID,
			"error":       err.Error(),
		})
		w.Write([]byte(ackResponse))
		return
	}
	defer r.Body.Close()

	w.Write([]byte(c.HandleInbound(deliveryID, body)))
}

// HandleInbound feeds one raw webhook delivery through the normalizer and
// returns the acknowledgement literal. It never fails; an unparseable
// payload is logged and dropped, still acknowledged.
func (c *MessengerChannel) HandleInbound(deliveryID string, body []byte) string {
	var payload messenger.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		logger.WarnCF(messenger.ChannelName, "Discarding unparseable webhook payload", map[string]interface{}{
			"delivery_id": deliveryID,
			"error":       err.Error(),
		})
		return ackResponse
	}

	logger.DebugCF(messenger.ChannelName, "Processing webhook delivery", map[string]interface{}{
		"delivery_id": deliveryID,
		"entries":     len(payload.Entry),
	})

	c.normalizer.Normalize(payload)
	return ackResponse
}

// CheckStatus performs an authenticated read against the Graph API and
// publishes a ready or auth_failure signal with the outcome. It is
// diagnostic: a degraded channel still handles webhooks and sends.
func (c *MessengerChannel) CheckStatus(ctx context.Context) {
	statusURL := fmt.Sprintf("%s/%s/%s", c.config.GraphBaseURL, c.config.Version, c.config.PageID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
	if err != nil {
		c.reportAuthFailure(&APIError{Kind: ErrKindValidation, Msg: err.Error()})
		return
	}
	q := req.URL.Query()
	q.Set("access_token", c.config.AccessToken)
	q.Set("fields", "id,name")
	req.URL.RawQuery = q.Encode()

	resp, err := c.client.Do(req)
	if err != nil {
		c.reportAuthFailure(&APIError{Kind: ErrKindNetwork, Msg: err.Error()})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.reportAuthFailure(&APIError{
			Kind: ErrKindUpstreamStatus,
			Msg:  fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(detail)),
		})
		return
	}

	c.setState(StateReady)
	logger.InfoC(messenger.ChannelName, "Successfully authenticated with the Messenger API")
	c.PublishSignal(bus.Signal{Kind: bus.SignalReady, Ready: true})
}

func (c *MessengerChannel) reportAuthFailure(apiErr *APIError) {
	c.setState(StateDegraded)
	logger.ErrorCF(messenger.ChannelName, "API status check failed", map[string]interface{}{
		"kind":  apiErr.Kind.String(),
		"error": apiErr.Msg,
	})

	var instructions []string
	switch apiErr.Kind {
	case ErrKindUpstreamStatus:
		instructions = []string{
			"Failed to authenticate with the Facebook Messenger API",
			"Please check your access token and ensure it has the necessary permissions",
		}
	default:
		instructions = []string{
			"An error occurred while checking the API status",
			fmt.Sprintf("Error details: %s", apiErr.Msg),
			"Please verify your access token and Facebook Page ID",
		}
	}

	c.PublishSignal(bus.Signal{Kind: bus.SignalAuthFailure, Instructions: instructions})
}

// Send delivers a bus outbound message via the send API.
func (c *MessengerChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("messenger channel not running")
	}

	logger.DebugCF(messenger.ChannelName, "Sending message", map[string]interface{}{
		"recipient_id": msg.RecipientID,
		"preview":      utils.Truncate(msg.Content, 100),
	})

	_, err := c.SendMessage(ctx, msg.RecipientID, msg.Content)
	return err
}

// SendMessage posts a text message to the Graph send endpoint. Callers get a
// coarse pass/fail: any failure collapses to ErrSendFailed with the
// underlying detail logged.
func (c *MessengerChannel) SendMessage(ctx context.Context, recipientID, text string) (*messenger.SendResponse, error) {
	sendURL := fmt.Sprintf("%s/%s/me/messages", c.config.GraphBaseURL, c.config.Version)

	payload := messenger.SendRequest{
		Recipient:   messenger.Party{ID: recipientID},
		Message:     messenger.MessageContent{Text: text},
		AccessToken: c.config.AccessToken,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		c.logSendFailure(recipientID, &APIError{Kind: ErrKindValidation, Msg: err.Error()})
		return nil, ErrSendFailed
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sendURL, bytes.NewReader(data))
	if err != nil {
		c.logSendFailure(recipientID, &APIError{Kind: ErrKindValidation, Msg: err.Error()})
		return nil, ErrSendFailed
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logSendFailure(recipientID, &APIError{Kind: ErrKindNetwork, Msg: err.Error()})
		return nil, ErrSendFailed
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logSendFailure(recipientID, &APIError{
			Kind: ErrKindUpstreamStatus,
			Msg:  fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(detail)),
		})
		return nil, ErrSendFailed
	}

	var sendResp messenger.SendResponse
	if err := json.NewDecoder(resp.Body).Decode(&sendResp); err != nil {
		c.logSendFailure(recipientID, &APIError{Kind: ErrKindValidation, Msg: err.Error()})
		return nil, ErrSendFailed
	}

	logger.DebugCF(messenger.ChannelName, "Message sent", map[string]interface{}{
		"recipient_id": recipientID,
		"message_id":   sendResp.MessageID,
	})
	return &sendResp, nil
}

func (c *MessengerChannel) logSendFailure(recipientID string, apiErr *APIError) {
	logger.ErrorCF(messenger.ChannelName, "Error sending message", map[string]interface{}{
		"recipient_id": recipientID,
		"kind":         apiErr.Kind.String(),
		"error":        apiErr.Msg,
	})
}

// SaveMedia downloads the media referenced by evt and writes it to dir (the
// configured media dir or the system temp directory when dir is empty). It
// returns the written file path, "" when the event carries no media, or
// SaveErrorSentinel when the download or write fails.
func (c *MessengerChannel) SaveMedia(ctx context.Context, evt bus.MessageEvent, dir string) string {
	if evt.MediaURL == "" {
		return ""
	}

	if dir == "" {
		dir = c.config.MediaDir
	}
	if dir == "" {
		dir = os.TempDir()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, evt.MediaURL, nil)
	if err != nil {
		logger.ErrorCF(messenger.ChannelName, "Error saving media", map[string]interface{}{
			"message_id": evt.MessageID,
			"error":      err.Error(),
		})
		return SaveErrorSentinel
	}
	req.Header.Set("Authorization", "Bearer "+c.config.AccessToken)

	baseName := fmt.Sprintf("file-%d", time.Now().UnixMilli())
	path, err := utils.DownloadMedia(c.client, req, dir, baseName, utils.DefaultMaxDownloadBytes)
	if err != nil {
		logger.ErrorCF(messenger.ChannelName, "Error saving media", map[string]interface{}{
			"message_id": evt.MessageID,
			"error":      err.Error(),
		})
		return SaveErrorSentinel
	}

	logger.DebugCF(messenger.ChannelName, "Media saved", map[string]interface{}{
		"message_id": evt.MessageID,
		"path":       path,
	})
	return path
}

// handleHealth reports the channel lifecycle state.
func (c *MessengerChannel) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":  "ok",
		"state":   string(c.State()),
		"running": c.IsRunning(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}
