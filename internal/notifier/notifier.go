// Package notifier tells users about authorization events by e-mail and
// Telegram.
package notifier

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"nluhub/internal/models"
)

// Notifier is what the services call. Delivery is best effort: failures
// are logged and never fail the request that caused them.
type Notifier interface {
	AuthorizationRequested(ctx context.Context, repo *models.Repository, req *models.AuthorizationRequest, admins []*models.User)
	RoleChanged(ctx context.Context, repo *models.Repository, user *models.User, role models.Role)
}

// Nop drops every notification.
type Nop struct{}

func (Nop) AuthorizationRequested(context.Context, *models.Repository, *models.AuthorizationRequest, []*models.User) {
}

func (Nop) RoleChanged(context.Context, *models.Repository, *models.User, models.Role) {}

type emailSender interface {
	Send(to, subject, body string) error
}

type telegramSender interface {
	SendAuthorizationRequest(chatID int64, repo *models.Repository, req *models.AuthorizationRequest) error
	SendText(chatID int64, text string) error
}

// Dispatcher fans notifications out to the configured channels.
type Dispatcher struct {
	email    emailSender
	telegram telegramSender
	webURL   string
	logger   *zap.Logger
}

// NewDispatcher accepts nil channels.
func NewDispatcher(email *Email, bot *Bot, webURL string, logger *zap.Logger) *Dispatcher {
	d := &Dispatcher{webURL: strings.TrimRight(webURL, "/"), logger: logger}
	if email != nil {
		d.email = email
	}
	if bot != nil {
		d.telegram = bot
	}
	return d
}

func (d *Dispatcher) repositoryURL(repo *models.Repository) string {
	if d.webURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s/%s", d.webURL, repo.OwnerNickname, repo.Slug)
}

func (d *Dispatcher) AuthorizationRequested(ctx context.Context, repo *models.Repository, req *models.AuthorizationRequest, admins []*models.User) {
	subject := fmt.Sprintf("New authorization request for %s", repo.Name)
	body := fmt.Sprintf("%s asked for access to %s:\n\n%s\n\n%s",
		req.UserNickname, repo.Name, req.Text, d.repositoryURL(repo))

	for _, admin := range admins {
		if admin.ID == req.UserID {
			continue
		}
		if d.email != nil {
			if err := d.email.Send(admin.Email, subject, body); err != nil {
				d.logger.Warn("Failed to e-mail authorization request",
					zap.Int64("user_id", admin.ID), zap.Int64("request_id", req.ID), zap.Error(err))
			}
		}
		if d.telegram != nil && admin.TelegramChatID != nil {
			if err := d.telegram.SendAuthorizationRequest(*admin.TelegramChatID, repo, req); err != nil {
				d.logger.Warn("Failed to send authorization request to Telegram",
					zap.Int64("user_id", admin.ID), zap.Int64("request_id", req.ID), zap.Error(err))
			}
		}
	}
}

func (d *Dispatcher) RoleChanged(ctx context.Context, repo *models.Repository, user *models.User, role models.Role) {
	if role == models.RoleNotSet {
		return
	}
	subject := fmt.Sprintf("New role in %s", repo.Name)
	body := fmt.Sprintf("Hi %s, you are now %s in %s.\n\n%s",
		user.Name, role.String(), repo.Name, d.repositoryURL(repo))

	if d.email != nil {
		if err := d.email.Send(user.Email, subject, body); err != nil {
			d.logger.Warn("Failed to e-mail role change", zap.Int64("user_id", user.ID), zap.Error(err))
		}
	}
	if d.telegram != nil && user.TelegramChatID != nil {
		if err := d.telegram.SendText(*user.TelegramChatID, body); err != nil {
			d.logger.Warn("Failed to send role change to Telegram", zap.Int64("user_id", user.ID), zap.Error(err))
		}
	}
}
