package bot

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/bowerhall/gatekeeper/internal/logger"
	"github.com/bowerhall/gatekeeper/internal/verifier"
)

type telegram struct {
	api *tgbotapi.BotAPI
}

func newTelegram(token string) (Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	logger.Info("telegram connected", "bot", api.Self.UserName)
	return &telegram{api: api}, nil
}

func (t *telegram) Start(ctx context.Context, sink Sink) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	u.AllowedUpdates = []string{"message"}
	updates := t.api.GetUpdatesChan(u)
	defer t.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return fmt.Errorf("telegram update channel closed")
			}
			for _, ev := range telegramEvents(update) {
				deliver(sink, ev)
			}
		}
	}
}

// telegramEvents maps one update to zero or more verifier events. Only join
// notices, leave notices and plain text are of interest.
func telegramEvents(update tgbotapi.Update) []verifier.Event {
	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return nil
	}

	chatID := msg.Chat.ID
	ts := time.Unix(int64(msg.Date), 0)

	switch {
	case len(msg.NewChatMembers) > 0:
		users := make([]verifier.Principal, 0, len(msg.NewChatMembers))
		for i := range msg.NewChatMembers {
			users = append(users, telegramPrincipal(&msg.NewChatMembers[i]))
		}

		joined := verifier.MemberJoined{
			Users:     users,
			ChatID:    chatID,
			Timestamp: ts,
			MessageID: int64(msg.MessageID),
		}
		if msg.From != nil {
			joined.Actor = telegramPrincipal(msg.From)
		}
		return []verifier.Event{joined}

	case msg.LeftChatMember != nil:
		return []verifier.Event{verifier.MemberLeft{
			User:   telegramPrincipal(msg.LeftChatMember),
			ChatID: chatID,
		}}

	case msg.Text != "" && msg.From != nil:
		logger.Debug("message received", "chat", chatID, "from", msg.From.ID, "text", truncate(msg.Text, 50))
		return []verifier.Event{verifier.TextMessage{
			User:      telegramPrincipal(msg.From),
			ChatID:    chatID,
			MessageID: int64(msg.MessageID),
			Text:      msg.Text,
			Timestamp: ts,
		}}
	}

	return nil
}

func telegramPrincipal(u *tgbotapi.User) verifier.Principal {
	return verifier.Principal{
		ID:    u.ID,
		Name:  displayName(u.FirstName, u.UserName),
		IsBot: u.IsBot,
	}
}

func (t *telegram) SendMessage(chatID int64, text string) (int64, error) {
	sent, err := t.api.Send(tgbotapi.NewMessage(chatID, text))
	if err != nil {
		return 0, err
	}
	logger.Debug("message sent", "chat", chatID, "message", sent.MessageID, "chars", len(text))
	return int64(sent.MessageID), nil
}

func (t *telegram) Notify(chatID int64, text string) error {
	_, err := t.api.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

func (t *telegram) DeleteMessage(chatID, messageID int64) error {
	_, err := t.api.Request(tgbotapi.NewDeleteMessage(chatID, int(messageID)))
	return err
}

func (t *telegram) BanMember(chatID, userID int64) error {
	_, err := t.api.Request(tgbotapi.BanChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: chatID, UserID: userID},
	})
	return err
}

func (t *telegram) UnbanMember(chatID, userID int64) error {
	_, err := t.api.Request(tgbotapi.UnbanChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: chatID, UserID: userID},
		OnlyIfBanned:     true,
	})
	return err
}

func (t *telegram) ListAdmins(chatID int64) (map[int64]struct{}, error) {
	members, err := t.api.GetChatAdministrators(tgbotapi.ChatAdministratorsConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: chatID},
	})
	if err != nil {
		return nil, err
	}

	admins := make(map[int64]struct{}, len(members))
	for _, m := range members {
		if m.User != nil {
			admins[m.User.ID] = struct{}{}
		}
	}
	return admins, nil
}
