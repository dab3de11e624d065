package notifier

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"nluhub/internal/models"
)

// Reviewer approves or rejects authorization requests on behalf of a user.
type Reviewer interface {
	ReviewAuthorizationRequest(ctx context.Context, reviewer *models.User, requestID int64, approve bool) error
}

// UserLookup resolves the account linked to a Telegram chat.
type UserLookup interface {
	GetByTelegramChatID(ctx context.Context, chatID int64) (*models.User, error)
}

// botAPI is the part of tgbotapi.BotAPI the bot uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot delivers authorization requests to repository admins on Telegram and
// takes their approve or reject answers.
type Bot struct {
	api      botAPI
	logger   *zap.Logger
	users    UserLookup
	reviewer Reviewer
}

// NewBot creates a new Telegram bot instance. It returns nil when no token
// is configured.
func NewBot(token string, users UserLookup, logger *zap.Logger) (*Bot, error) {
	if token == "" {
		logger.Info("Telegram bot is disabled (notifications.telegram_bot_token is empty)")
		return nil, nil
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot API: %w", err)
	}

	logger.Info("Telegram bot authorized", zap.String("username", api.Self.UserName))

	return &Bot{api: api, logger: logger, users: users}, nil
}

// SetReviewer wires the service that applies review decisions.
func (b *Bot) SetReviewer(r Reviewer) {
	if b != nil {
		b.reviewer = r
	}
}

// Start begins listening for updates from Telegram
func (b *Bot) Start(ctx context.Context) error {
	if b == nil {
		return nil
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	b.logger.Info("Telegram bot started, waiting for updates...")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Telegram bot shutting down...")
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.CallbackQuery != nil {
				b.handleCallbackQuery(ctx, update.CallbackQuery)
			} else if update.Message != nil {
				b.handleMessage(update.Message)
			}
		}
	}
}

// handleCallbackQuery processes "approve:<id>" and "reject:<id>" buttons.
func (b *Bot) handleCallbackQuery(ctx context.Context, query *tgbotapi.CallbackQuery) {
	b.logger.Info("Received callback query",
		zap.String("data", query.Data),
		zap.Int64("telegram_user_id", query.From.ID),
	)

	callback := tgbotapi.NewCallback(query.ID, "")
	if _, err := b.api.Request(callback); err != nil {
		b.logger.Error("Failed to send callback response", zap.Error(err))
	}

	action, idStr, ok := strings.Cut(query.Data, ":")
	if !ok {
		b.logger.Error("Failed to parse callback data: invalid format", zap.String("data", query.Data))
		b.sendMessage(query.From.ID, "Could not process the request.")
		return
	}
	requestID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		b.logger.Error("Failed to parse request ID", zap.String("id", idStr), zap.Error(err))
		b.sendMessage(query.From.ID, "Could not process the request.")
		return
	}

	var approve bool
	var responseMessage string
	switch action {
	case "approve":
		approve = true
		responseMessage = "Access granted."
	case "reject":
		responseMessage = "Access request rejected."
	default:
		b.logger.Error("Unknown action", zap.String("action", action))
		b.sendMessage(query.From.ID, "Unknown action.")
		return
	}

	reviewer, err := b.users.GetByTelegramChatID(ctx, query.From.ID)
	if err != nil || reviewer == nil {
		b.sendMessage(query.From.ID, "This Telegram account is not linked to a user. Set your chat id in your profile first.")
		return
	}
	if b.reviewer == nil {
		b.sendMessage(query.From.ID, "Reviews are not available right now.")
		return
	}

	if err := b.reviewer.ReviewAuthorizationRequest(ctx, reviewer, requestID, approve); err != nil {
		b.logger.Warn("Authorization review from Telegram failed",
			zap.Int64("request_id", requestID),
			zap.Int64("user_id", reviewer.ID),
			zap.Error(err))
		b.sendMessage(query.From.ID, "Could not review the request: "+reviewErrorText(err))
		return
	}

	b.logger.Info("Authorization request reviewed",
		zap.Int64("request_id", requestID),
		zap.String("action", action),
		zap.Int64("user_id", reviewer.ID),
	)

	b.sendMessage(query.From.ID, responseMessage)

	if query.Message != nil {
		edit := tgbotapi.NewEditMessageText(
			query.Message.Chat.ID,
			query.Message.MessageID,
			query.Message.Text+"\n\n"+responseMessage,
		)
		if _, err := b.api.Send(edit); err != nil {
			b.logger.Error("Failed to edit message", zap.Error(err))
		}
	}
}

// ReviewError lets a reviewer hand a user-facing reason back to the bot.
type ReviewError interface {
	error
	UserMessage() string
}

func reviewErrorText(err error) string {
	var re ReviewError
	if errors.As(err, &re) {
		return re.UserMessage()
	}
	return "internal error."
}

func (b *Bot) handleMessage(message *tgbotapi.Message) {
	if !message.IsCommand() {
		return
	}
	switch message.Command() {
	case "start", "help":
		b.sendMessage(message.Chat.ID, fmt.Sprintf(
			"Hi %s!\n\n"+
				"I notify repository admins about new authorization requests. "+
				"Answer with the buttons under each request to approve or reject it.\n\n"+
				"Link this chat by setting telegram_chat_id to %d in your user profile.",
			message.From.FirstName, message.Chat.ID))
	default:
		b.sendMessage(message.Chat.ID, "Unknown command. Use /help.")
	}
}

// SendAuthorizationRequest asks one admin to review a pending request.
func (b *Bot) SendAuthorizationRequest(chatID int64, repo *models.Repository, req *models.AuthorizationRequest) error {
	if b == nil {
		return errors.New("bot is disabled")
	}

	text := req.Text
	if len(text) > 150 {
		text = text[:150] + "..."
	}
	notificationText := fmt.Sprintf(
		"New authorization request\n\n"+
			"Repository: %s\n"+
			"User: %s\n\n"+
			"%s",
		repo.Name, req.UserNickname, text)

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Approve", fmt.Sprintf("approve:%d", req.ID)),
			tgbotapi.NewInlineKeyboardButtonData("Reject", fmt.Sprintf("reject:%d", req.ID)),
		),
	)

	msg := tgbotapi.NewMessage(chatID, notificationText)
	msg.ReplyMarkup = keyboard

	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send authorization request notification",
			zap.Int64("chat_id", chatID),
			zap.Int64("request_id", req.ID),
			zap.Error(err),
		)
		return fmt.Errorf("failed to send notification: %w", err)
	}
	return nil
}

// SendText delivers a plain message.
func (b *Bot) SendText(chatID int64, text string) error {
	if b == nil {
		return errors.New("bot is disabled")
	}
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}
