package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"text/template"
	"time"

	"cshealth/internal/config"
	"cshealth/internal/domain"
	"cshealth/internal/permanent"
	"cshealth/internal/templatefmt"

	tgbot "github.com/go-telegram/bot"
	"github.com/slack-go/slack"
)

const maxErrorBody = 512

// SendResult returns channel-specific metadata after successful delivery.
// Params: sender-specific metadata fields.
// Returns: optional message identifiers.
type SendResult struct {
	MessageID   int
	ExternalRef string
}

// ChannelSender sends one outbound notification to one channel.
// Params: context and notification payload.
// Returns: channel send metadata and transport error when send fails.
type ChannelSender interface {
	Channel() string
	Send(ctx context.Context, notification domain.Notification) (SendResult, error)
}

// Dispatcher renders and delivers alert notifications with per-channel retries.
// Params: sender list, retry policy, message templates, and severity floor.
// Returns: send helper for manager layer.
type Dispatcher struct {
	senders     map[string]ChannelSender
	channels    []string
	retries     map[string]config.NotifyRetry
	templates   map[string]*template.Template
	minSeverity domain.Severity
	logger      *slog.Logger
}

// NewDispatcher builds notification dispatcher from enabled channels.
// Params: notify config (already validated) and optional logger.
// Returns: configured dispatcher or template parse error.
func NewDispatcher(cfg config.NotifyConfig, logger *slog.Logger) (*Dispatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		senders:     make(map[string]ChannelSender),
		retries:     make(map[string]config.NotifyRetry),
		templates:   make(map[string]*template.Template),
		minSeverity: domain.Severity(strings.ToLower(strings.TrimSpace(cfg.MinSeverity))),
		logger:      logger,
	}
	if !d.minSeverity.IsKnown() {
		d.minSeverity = domain.SeverityHigh
	}
	for _, channel := range config.NotifyChannelNames() {
		if !config.NotifyChannelEnabled(cfg, channel) {
			continue
		}
		sender := newSenderForChannel(channel, cfg)
		if sender == nil {
			continue
		}
		body, err := templatefmt.ParseNotificationTemplate("notify."+channel+".message", config.NotifyChannelMessage(cfg, channel))
		if err != nil {
			return nil, err
		}
		d.AddSender(sender, config.NotifyChannelRetry(cfg, channel), body)
	}
	return d, nil
}

// AddSender registers one channel sender.
// Params: sender, retry policy, and message template.
// Returns: none.
func (d *Dispatcher) AddSender(sender ChannelSender, retry config.NotifyRetry, body *template.Template) {
	channel := sender.Channel()
	if _, exists := d.senders[channel]; !exists {
		d.channels = append(d.channels, channel)
		sort.Strings(d.channels)
	}
	d.senders[channel] = sender
	d.retries[channel] = retry
	d.templates[channel] = body
}

// newSenderForChannel builds transport sender implementation for one channel key.
// Params: normalized channel key and full notify config.
// Returns: channel sender or nil when channel is unknown.
func newSenderForChannel(channel string, cfg config.NotifyConfig) ChannelSender {
	switch channel {
	case config.NotifyChannelTelegram:
		return NewTelegramSender(cfg.Telegram)
	case config.NotifyChannelHTTP:
		return NewWebhookSender(cfg.HTTP)
	case config.NotifyChannelSlack:
		return NewSlackSender(cfg.Slack)
	default:
		return nil
	}
}

// Channels returns configured channel list.
// Params: none.
// Returns: deterministic sender keys.
func (d *Dispatcher) Channels() []string {
	return append([]string(nil), d.channels...)
}

// Enabled reports whether any channel is configured.
func (d *Dispatcher) Enabled() bool {
	return d != nil && len(d.senders) > 0
}

// ShouldNotify reports whether alert severity reaches the configured floor.
// Params: alert.
// Returns: true for severities at or above min severity.
func (d *Dispatcher) ShouldNotify(alert domain.Alert) bool {
	return d.Enabled() && alert.Severity.IsKnown() && alert.Severity.Rank() <= d.minSeverity.Rank()
}

// Notify renders and sends notification to every configured channel.
// Params: context and notification without channel/message.
// Returns: joined delivery errors; one failing channel does not stop others.
func (d *Dispatcher) Notify(ctx context.Context, notification domain.Notification) error {
	if !d.Enabled() {
		return nil
	}
	var errs []error
	for _, channel := range d.channels {
		if _, err := d.Send(ctx, channel, notification); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Send sends one notification to one channel with retry policy.
// Params: destination channel and notification payload.
// Returns: channel metadata and final error after retries.
func (d *Dispatcher) Send(ctx context.Context, channel string, notification domain.Notification) (SendResult, error) {
	sender, ok := d.senders[channel]
	if !ok {
		return SendResult{}, fmt.Errorf("notify channel %q is not configured", channel)
	}
	body := d.templates[channel]
	if body == nil {
		return SendResult{}, fmt.Errorf("notify channel %q has no message template", channel)
	}

	rendered := notification
	rendered.Channel = channel
	message, err := templatefmt.Render(body, rendered)
	if err != nil {
		return SendResult{}, fmt.Errorf("render notify template for channel %q: %w", channel, err)
	}
	rendered.Message = message

	return d.sendWithRetry(ctx, sender, rendered, d.retries[channel])
}

// sendWithRetry sends one notification with channel-specific retry policy.
// Params: sender, payload, and retry policy for the sender channel.
// Returns: channel metadata and final error after retries or on permanent failure.
func (d *Dispatcher) sendWithRetry(ctx context.Context, sender ChannelSender, notification domain.Notification, retry config.NotifyRetry) (SendResult, error) {
	if !retry.Enabled {
		return sender.Send(ctx, notification)
	}

	attempt := 0
	backoff := time.Duration(retry.InitialMS) * time.Millisecond
	maxBackoff := time.Duration(retry.MaxMS) * time.Millisecond
	timer := time.NewTimer(time.Hour)
	stopTimer(timer)
	defer stopTimer(timer)

	for {
		attempt++
		result, err := sender.Send(ctx, notification)
		if err == nil {
			if retry.LogEachAttempt && attempt > 1 {
				d.logger.Info("notify send recovered after retries", "channel", sender.Channel(), "alert_id", notification.Alert.ID, "attempt", attempt)
			}
			return result, nil
		}
		if retry.LogEachAttempt {
			d.logger.Warn("notify send attempt failed", "channel", sender.Channel(), "alert_id", notification.Alert.ID, "attempt", attempt, "error", err.Error())
		}
		if permanent.Is(err) {
			return SendResult{}, fmt.Errorf("channel %s permanent failure: %w", sender.Channel(), err)
		}
		if retry.MaxAttempts > 0 && attempt >= retry.MaxAttempts {
			return SendResult{}, fmt.Errorf("channel %s failed after %d attempts: %w", sender.Channel(), attempt, err)
		}

		timer.Reset(backoff)
		select {
		case <-ctx.Done():
			return SendResult{}, ctx.Err()
		case <-timer.C:
		}

		if strings.EqualFold(retry.Backoff, "exponential") {
			backoff *= 2
			if maxBackoff > 0 && backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
}

func stopTimer(timer *time.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
}

// TelegramSender sends notifications to Telegram Bot API.
// Params: bot token, chat id, and base URL.
// Returns: Telegram channel sender.
type TelegramSender struct {
	client  *tgbot.Bot
	chatID  any
	initErr error
}

// NewTelegramSender creates Telegram sender with HTTP client.
// Params: Telegram notifier config.
// Returns: initialized sender; configuration errors surface on Send.
func NewTelegramSender(cfg config.TelegramNotifier) *TelegramSender {
	sender := &TelegramSender{
		chatID: normalizeChatID(cfg.ChatID),
	}
	if strings.TrimSpace(cfg.BotToken) == "" {
		sender.initErr = permanent.Mark(errors.New("telegram bot token is required"))
		return sender
	}
	if strings.TrimSpace(cfg.ChatID) == "" {
		sender.initErr = permanent.Mark(errors.New("telegram chat_id is required"))
		return sender
	}

	options := []tgbot.Option{tgbot.WithSkipGetMe()}
	if base := strings.TrimRight(strings.TrimSpace(cfg.APIBase), "/"); base != "" {
		options = append(options, tgbot.WithServerURL(base))
	}
	botClient, err := tgbot.New(cfg.BotToken, options...)
	if err != nil {
		sender.initErr = permanent.Mark(fmt.Errorf("init telegram bot: %w", err))
		return sender
	}
	sender.client = botClient
	return sender
}

// Channel returns sender channel name.
func (s *TelegramSender) Channel() string {
	return config.NotifyChannelTelegram
}

// Send posts one notification message to Telegram chat.
// Params: context and notification payload.
// Returns: sent message ID or transport error.
func (s *TelegramSender) Send(ctx context.Context, notification domain.Notification) (SendResult, error) {
	if s.initErr != nil {
		return SendResult{}, s.initErr
	}
	sent, err := s.client.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID: s.chatID,
		Text:   notification.Message,
	})
	if err != nil {
		return SendResult{}, fmt.Errorf("telegram send: %w", err)
	}
	if sent == nil || sent.ID <= 0 {
		return SendResult{}, errors.New("telegram send returned empty message id")
	}
	return SendResult{MessageID: sent.ID}, nil
}

// normalizeChatID converts numeric chat IDs to int64 and keeps non-numeric IDs as string.
func normalizeChatID(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if numeric, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return numeric
	}
	return trimmed
}

// WebhookSender posts notification JSON to configured HTTP endpoint.
// Params: endpoint URL, method, timeout, and headers.
// Returns: generic HTTP sender.
type WebhookSender struct {
	cfg    config.HTTPNotifier
	client *http.Client
}

// NewWebhookSender creates generic HTTP sender.
func NewWebhookSender(cfg config.HTTPNotifier) *WebhookSender {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSender{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

// Channel returns sender channel name.
func (s *WebhookSender) Channel() string {
	return config.NotifyChannelHTTP
}

// Send delivers JSON payload to configured HTTP endpoint.
// Params: context and rendered notification.
// Returns: transport error, or permanent error for non-retryable 4xx responses.
func (s *WebhookSender) Send(ctx context.Context, notification domain.Notification) (SendResult, error) {
	body, err := json.Marshal(notification)
	if err != nil {
		return SendResult{}, permanent.Mark(fmt.Errorf("encode http notify payload: %w", err))
	}

	method := strings.ToUpper(strings.TrimSpace(s.cfg.Method))
	if method == "" {
		method = http.MethodPost
	}
	request, err := http.NewRequestWithContext(ctx, method, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return SendResult{}, permanent.Mark(fmt.Errorf("build http notify request: %w", err))
	}
	request.Header.Set("Content-Type", "application/json")
	for key, value := range s.cfg.Headers {
		request.Header.Set(key, value)
	}

	response, err := s.client.Do(request)
	if err != nil {
		return SendResult{}, fmt.Errorf("http notify send: %w", err)
	}
	defer response.Body.Close()
	if statusErr := permanent.FromStatus("http notify", response.StatusCode); statusErr != nil {
		return SendResult{}, withResponseBody(statusErr, response)
	}
	return SendResult{}, nil
}

// withResponseBody appends trimmed response body to status error, keeping its permanent marker.
func withResponseBody(statusErr error, response *http.Response) error {
	raw, readErr := io.ReadAll(io.LimitReader(response.Body, maxErrorBody))
	body := strings.TrimSpace(string(raw))
	if readErr != nil || body == "" {
		return statusErr
	}
	wrapped := fmt.Errorf("%w body=%s", statusErr, body)
	if permanent.Is(statusErr) {
		return permanent.Mark(wrapped)
	}
	return wrapped
}

// SlackSender posts notifications to a Slack channel with bot token.
// Params: Slack client and channel ID.
// Returns: Slack channel sender.
type SlackSender struct {
	client    *slack.Client
	channelID string
	initErr   error
}

// NewSlackSender creates Slack sender.
// Params: Slack notifier config; API URL override targets test servers and proxies.
// Returns: initialized sender; configuration errors surface on Send.
func NewSlackSender(cfg config.SlackNotifier) *SlackSender {
	sender := &SlackSender{channelID: strings.TrimSpace(cfg.ChannelID)}
	if strings.TrimSpace(cfg.BotToken) == "" {
		sender.initErr = permanent.Mark(errors.New("slack bot token is required"))
		return sender
	}
	if sender.channelID == "" {
		sender.initErr = permanent.Mark(errors.New("slack channel_id is required"))
		return sender
	}
	var options []slack.Option
	if apiURL := strings.TrimSpace(cfg.APIURL); apiURL != "" {
		if !strings.HasSuffix(apiURL, "/") {
			apiURL += "/"
		}
		options = append(options, slack.OptionAPIURL(apiURL))
	}
	sender.client = slack.New(cfg.BotToken, options...)
	return sender
}

// Channel returns sender channel name.
func (s *SlackSender) Channel() string {
	return config.NotifyChannelSlack
}

// Send posts rendered message to Slack channel.
// Params: context and rendered notification.
// Returns: message timestamp as external reference or API error.
func (s *SlackSender) Send(ctx context.Context, notification domain.Notification) (SendResult, error) {
	if s.initErr != nil {
		return SendResult{}, s.initErr
	}
	_, timestamp, err := s.client.PostMessageContext(ctx, s.channelID, slack.MsgOptionText(notification.Message, false))
	if err != nil {
		var slackErr slack.SlackErrorResponse
		if errors.As(err, &slackErr) {
			return SendResult{}, permanent.Mark(fmt.Errorf("slack send: %w", err))
		}
		return SendResult{}, fmt.Errorf("slack send: %w", err)
	}
	return SendResult{ExternalRef: timestamp}, nil
}
