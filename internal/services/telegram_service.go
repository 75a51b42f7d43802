package services

import (
	"fmt"
	"html"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// TelegramService posts operator alerts to one admin chat.
type TelegramService struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	log    *zap.SugaredLogger
}

// NewTelegramService returns nil when the bot is not configured.
func NewTelegramService(botToken string, adminChatID int64, log *zap.SugaredLogger) (*TelegramService, error) {
	return newTelegramService(botToken, adminChatID, tgbotapi.APIEndpoint, log)
}

func newTelegramService(botToken string, adminChatID int64, endpoint string, log *zap.SugaredLogger) (*TelegramService, error) {
	if botToken == "" || adminChatID == 0 {
		log.Infof("[tg][skip] token or admin chat empty (token? %v chatID=%d)", botToken != "", adminChatID)
		return nil, nil
	}
	bot, err := tgbotapi.NewBotAPIWithClient(botToken, endpoint, &http.Client{Timeout: 10 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	log.Infof("[tg][init] authorized as @%s", bot.Self.UserName)
	return &TelegramService{bot: bot, chatID: adminChatID, log: log}, nil
}

func (t *TelegramService) SendMessage(text string) error {
	if t == nil {
		return nil
	}
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram sendMessage failed: %w", err)
	}
	return nil
}

func (t *TelegramService) NotifyAccountLocked(accountID, email string, until time.Time) error {
	text := fmt.Sprintf("🔒 <b>Account locked</b>\nid: <code>%s</code>\nemail: %s\nuntil: %s UTC",
		html.EscapeString(accountID), html.EscapeString(email), until.UTC().Format("2006-01-02 15:04"))
	return t.SendMessage(text)
}
