package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/pitarabot/core/logger"
	"github.com/m3rciful/pitarabot/core/metrics"
	"github.com/m3rciful/pitarabot/core/netutil"
	"github.com/m3rciful/pitarabot/core/telegram/middleware"
)

// SendOptions selects parse mode and markup for outbound text.
type SendOptions struct {
	Markdown bool
	Keyboard *tele.ReplyMarkup
}

// Client is the subset of the Bot API the conversation needs.
type Client interface {
	SendText(ctx context.Context, chatID int64, text string, opts SendOptions) (int, error)
	SendVoice(ctx context.Context, chatID int64, audio []byte) error
	EditText(ctx context.Context, chatID int64, messageID int, text string, opts SendOptions) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
	// FileURL resolves a file id into a downloadable URL.
	FileURL(ctx context.Context, fileID string) (string, error)
}

// BotClient implements Client on top of telebot.
type BotClient struct {
	bot     *tele.Bot
	metrics *metrics.Metrics
}

// NewBotClient wraps bot.
func NewBotClient(bot *tele.Bot, m *metrics.Metrics) *BotClient {
	return &BotClient{bot: bot, metrics: m}
}

// Bot exposes the underlying telebot instance.
func (c *BotClient) Bot() *tele.Bot { return c.bot }

func (o SendOptions) telebot() *tele.SendOptions {
	so := &tele.SendOptions{ReplyMarkup: o.Keyboard}
	if o.Markdown {
		so.ParseMode = tele.ModeMarkdown
	}
	return so
}

func (c *BotClient) SendText(ctx context.Context, chatID int64, text string, opts SendOptions) (int, error) {
	msg, err := c.bot.Send(tele.ChatID(chatID), text, opts.telebot())
	if err != nil {
		c.logFailure(ctx, "sendMessage", err)
		return 0, fmt.Errorf("sendMessage: %w", err)
	}
	c.sent(ctx, "text", opts.Keyboard != nil)
	return msg.ID, nil
}

func (c *BotClient) SendVoice(ctx context.Context, chatID int64, audio []byte) error {
	voice := &tele.Voice{File: tele.FromReader(bytes.NewReader(audio))}
	if _, err := c.bot.Send(tele.ChatID(chatID), voice); err != nil {
		c.logFailure(ctx, "sendVoice", err)
		return fmt.Errorf("sendVoice: %w", err)
	}
	c.sent(ctx, "voice", false)
	return nil
}

func (c *BotClient) EditText(ctx context.Context, chatID int64, messageID int, text string, opts SendOptions) error {
	target := tele.StoredMessage{MessageID: strconv.Itoa(messageID), ChatID: chatID}
	if _, err := c.bot.Edit(target, text, opts.telebot()); err != nil {
		c.logFailure(ctx, "editMessageText", err)
		return fmt.Errorf("editMessageText: %w", err)
	}
	c.sent(ctx, "edit", opts.Keyboard != nil)
	return nil
}

func (c *BotClient) AnswerCallback(ctx context.Context, callbackID, text string) error {
	resp := &tele.CallbackResponse{Text: text}
	if err := c.bot.Respond(&tele.Callback{ID: callbackID}, resp); err != nil {
		c.logFailure(ctx, "answerCallbackQuery", err)
		return fmt.Errorf("answerCallbackQuery: %w", err)
	}
	c.metrics.RecordSent("answer")
	return nil
}

func (c *BotClient) FileURL(ctx context.Context, fileID string) (string, error) {
	f, err := c.bot.FileByID(fileID)
	if err != nil {
		c.logFailure(ctx, "getFile", err)
		return "", fmt.Errorf("getFile: %w", err)
	}
	if f.FilePath == "" {
		return "", fmt.Errorf("getFile: empty file_path for %s", fileID)
	}
	return c.bot.URL + "/file/bot" + c.bot.Token + "/" + f.FilePath, nil
}

func (c *BotClient) sent(ctx context.Context, kind string, kb bool) {
	middleware.CountSent(ctx, kb)
	c.metrics.RecordSent(kind)
}

func (c *BotClient) logFailure(ctx context.Context, endpoint string, err error) {
	status := StatusFromError(err)
	attrs := []slog.Attr{
		slog.String("status", "fail"),
		slog.String("endpoint", endpoint),
		slog.String("err", logger.SanitizeLimit(netutil.ErrorString(err), 256)),
		slog.String("error_kind", netutil.ClassifyError(err, status)),
	}
	if status != 0 {
		attrs = append(attrs, slog.Int("http_code", status))
	}
	logger.Warn(ctx, logger.CompTG, "api.call", attrs...)
}

// StatusFromError extracts the Bot API status code carried by err, or 0.
func StatusFromError(err error) int {
	if err == nil {
		return 0
	}
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var floodErr tele.FloodError
	if errors.As(err, &floodErr) {
		return http.StatusTooManyRequests
	}

	// telebot formats unknown API errors as "telegram: <description> (<code>)"
	msg := err.Error()
	lastOpen := strings.LastIndex(msg, "(")
	lastClose := strings.LastIndex(msg, ")")
	if lastOpen >= 0 && lastClose > lastOpen+1 {
		if code, convErr := strconv.Atoi(strings.TrimSpace(msg[lastOpen+1 : lastClose])); convErr == nil {
			return code
		}
	}
	return 0
}

// IsParseError reports whether Telegram rejected the message entities.
func IsParseError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "can't parse entities")
}
