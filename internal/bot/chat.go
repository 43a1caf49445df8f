package bot

import (
	"context"
	"errors"
	"freelance-market-bot/internal/chat"
	"freelance-market-bot/internal/db"
	"freelance-market-bot/internal/session"
	"strings"
)

// Telegram не принимает сообщения длиннее 4096 символов.
const maxMessageRunes = 4000

func (b *Bot) openClientChat(c *callback, id string) error {
	return b.openChat(c, id, db.RoleClient)
}

func (b *Bot) openExecutorChat(c *callback, id string) error {
	return b.openChat(c, id, db.RoleContractor)
}

func (b *Bot) openChat(c *callback, id string, role db.Role) error {
	u, err := b.Auth.Current(c.ctx, c.chatID, role)
	if err != nil {
		return err
	}
	o, err := b.Orders.Get(c.ctx, id)
	if err != nil {
		return err
	}
	peer, err := chat.Counterpart(o, u)
	if err != nil {
		return err
	}
	if !chat.Open(o.Status) {
		return chat.ErrChatClosed
	}
	if err := b.Sessions.Set(c.ctx, c.chatID, session.InChat{OrderID: o.ID, Role: role}); err != nil {
		return err
	}
	who := "исполнителем"
	if role == db.RoleContractor {
		who = "заказчиком"
	}
	b.replyWithKeyboard(c.chatID, "💬 Открыт чат с "+who+" "+peer+
		"\n\nНапишите сообщение, и оно будет переслано. Для выхода напишите /exit или нажмите «Выйти из чата».", chatKeyboard(o.ID))
	return nil
}

func isExitChat(text string) bool {
	return text == "/exit" || strings.EqualFold(text, "выйти")
}

func (b *Bot) chatMessage(ctx context.Context, chatID int64, s session.InChat, text string) error {
	if isExitChat(text) {
		return b.exitChat(ctx, chatID)
	}
	u, err := b.Auth.Current(ctx, chatID, s.Role)
	if err != nil {
		return err
	}
	_, err = b.Chat.Send(ctx, s.OrderID, u, text)
	switch {
	case errors.Is(err, chat.ErrUndeliverable):
		b.reply(chatID, "❌ Ошибка при отправке сообщения")
		return nil
	case err != nil:
		return err
	}
	b.reply(chatID, "✅ Сообщение доставлено")
	return nil
}

func (b *Bot) exitChatCallback(c *callback, _ string) error {
	return b.exitChat(c.ctx, c.chatID)
}

func (b *Bot) exitChat(ctx context.Context, chatID int64) error {
	st, err := b.Sessions.Get(ctx, chatID)
	if err != nil {
		return err
	}
	if err := b.Sessions.Clear(ctx, chatID); err != nil {
		return err
	}
	if s, ok := st.(session.InChat); ok && s.Role == db.RoleContractor {
		b.replyWithKeyboard(chatID, "Вы вышли из чата.", executorKeyboard())
		return nil
	}
	b.replyWithKeyboard(chatID, "Вы вышли из чата.", clientKeyboard())
	return nil
}

func (b *Bot) chatHistory(c *callback, id string) error {
	o, err := b.Orders.Get(c.ctx, id)
	if err != nil {
		return err
	}
	u, _, err := b.party(c.ctx, c.chatID, o)
	if err != nil {
		return err
	}
	msgs, err := b.Chat.History(c.ctx, o.ID, u)
	if err != nil {
		return err
	}
	b.reply(c.chatID, clip(chat.FormatHistory(o, msgs)))
	return nil
}

// clip оставляет конец длинного текста: свежие сообщения важнее старых.
func clip(text string) string {
	r := []rune(text)
	if len(r) <= maxMessageRunes {
		return text
	}
	return "…\n" + string(r[len(r)-maxMessageRunes:])
}
