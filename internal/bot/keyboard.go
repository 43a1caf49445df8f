package bot

import (
	"context"
	"freelance-market-bot/internal/chat"
	"freelance-market-bot/internal/db"
	"freelance-market-bot/internal/logger"
	"freelance-market-bot/internal/tg"
	"github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

func roleKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tg.Keyboard(
		tg.Btn("Я Заказчик", cbClient),
		tg.Btn("Я Исполнитель", cbExecutor),
	)
}

func clientKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tg.Keyboard(
		tg.Btn("Создать заказ", cbCreateOrder),
		tg.Btn("Мои заказы", cbClientOrders),
		tg.Btn("Наши работы", cbOurWorks),
		tg.Btn("Выйти", cbClientLogout),
	)
}

func clientGuestKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tg.Keyboard(
		tg.Btn("Войти", cbClientLogin),
		tg.Btn("Зарегистрироваться", cbClientRegister),
		tg.Btn("Наши работы", cbOurWorks),
		tg.Btn("Мне нужна консультация", cbConsultation),
		tg.Btn("← Назад", cbBackToMainMenu),
	)
}

func executorKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tg.Keyboard(
		tg.Btn("Мои заказы", cbExecutorOrders),
		tg.Btn("💸 Вывести средства", cbWithdraw),
		tg.Btn("Выйти", cbExecutorLogout),
	)
}

func executorGuestKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tg.Keyboard(
		tg.Btn("Войти", cbExecutorLogin),
		tg.Btn("← Назад", cbBackToMainMenu),
	)
}

func paymentKeyboard(orderID string) tgbotapi.InlineKeyboardMarkup {
	return tg.Keyboard(
		tg.Btn("✅ Я оплатил", data(pfxPaymentConfirm, orderID)),
		tg.Btn("❓ Помощь с оплатой", data(pfxPaymentHelp, orderID)),
	)
}

func offerKeyboard(orderID string) tgbotapi.InlineKeyboardMarkup {
	return tg.Keyboard(
		tg.Btn("Принять заказ", data(pfxAcceptOrder, orderID)),
		tg.Btn("Отказаться", data(pfxDeclineOrder, orderID)),
	)
}

func paidKeyboard(orderID string) tgbotapi.InlineKeyboardMarkup {
	return tg.Keyboard(
		tg.Btn("🚀 Взять в работу", data(pfxStartWork, orderID)),
		tg.Btn("❌ Отказаться", data(pfxDeclinePaid, orderID)),
	)
}

func inWorkExecutorKeyboard(orderID string) tgbotapi.InlineKeyboardMarkup {
	return tg.Keyboard(
		tg.Btn("💬 Открыть чат с клиентом", data(pfxExecutorChat, orderID)),
		tg.Btn("🎯 Сдать заказ на проверку", data(pfxSubmitWork, orderID)),
		tg.Btn("⚖️ Открыть спор", data(pfxOpenDispute, orderID)),
	)
}

func inWorkClientKeyboard(orderID string) tgbotapi.InlineKeyboardMarkup {
	return tg.Keyboard(
		tg.Btn("💬 Открыть чат с исполнителем", data(pfxClientChat, orderID)),
		tg.Btn("⚖️ Открыть спор", data(pfxOpenDispute, orderID)),
	)
}

func reviewKeyboard(orderID string) tgbotapi.InlineKeyboardMarkup {
	return tg.Keyboard(
		tg.Btn("✅ Принять работу", data(pfxAcceptWork, orderID)),
		tg.Btn("✏️ Отправить на доработку", data(pfxRequestRevision, orderID)),
		tg.Btn("💬 Открыть чат с исполнителем", data(pfxClientChat, orderID)),
		tg.Btn("⚖️ Открыть спор", data(pfxOpenDispute, orderID)),
	)
}

func chatKeyboard(orderID string) tgbotapi.InlineKeyboardMarkup {
	return tg.Keyboard(
		tg.Btn("📜 История переписки", data(pfxChatHistory, orderID)),
		tg.Btn("🚪 Выйти из чата", cbExitChat),
	)
}

// clientOrderButtons: действия заказчика, доступные в текущем статусе заказа.
func clientOrderButtons(o *db.Order) []tg.Button {
	var btns []tg.Button
	switch o.Status {
	case db.StatusPending:
		btns = append(btns, tg.Btn("❌ Отменить заказ", data(pfxCancelOrder, o.ID)))
	case db.StatusAcceptedWaitingPayment, db.StatusWaitingPayment:
		btns = append(btns,
			tg.Btn("✅ Я оплатил", data(pfxPaymentConfirm, o.ID)),
			tg.Btn("🔄 Новый QR-код", data(pfxPaymentNew, o.ID)),
			tg.Btn("❌ Отменить заказ", data(pfxCancelOrder, o.ID)))
	case db.StatusInWork:
		btns = append(btns, tg.Btn("💬 Чат с исполнителем", data(pfxClientChat, o.ID)))
	case db.StatusOnReview:
		btns = append(btns,
			tg.Btn("✅ Принять работу", data(pfxAcceptWork, o.ID)),
			tg.Btn("✏️ Отправить на доработку", data(pfxRequestRevision, o.ID)),
			tg.Btn("💬 Чат с исполнителем", data(pfxClientChat, o.ID)))
	case db.StatusDispute:
		btns = append(btns, tg.Btn("💬 Чат с исполнителем", data(pfxClientChat, o.ID)))
	}
	if o.ExecutorUsername != "" && o.Status != db.StatusPending {
		btns = append(btns, tg.Btn("📜 История переписки", data(pfxChatHistory, o.ID)))
	}
	return btns
}

func executorOrderButtons(o *db.Order, username string) []tg.Button {
	var btns []tg.Button
	switch o.Status {
	case db.StatusPending:
		if o.OfferedTo == username {
			btns = append(btns,
				tg.Btn("Принять заказ", data(pfxAcceptOrder, o.ID)),
				tg.Btn("Отказаться", data(pfxDeclineOrder, o.ID)))
		}
	case db.StatusAcceptedWaitingPayment, db.StatusWaitingPayment:
		btns = append(btns, tg.Btn("❌ Отказаться", data(pfxDeclinePaid, o.ID)))
	case db.StatusPaymentConfirmed:
		btns = append(btns,
			tg.Btn("🚀 Взять в работу", data(pfxStartWork, o.ID)),
			tg.Btn("❌ Отказаться", data(pfxDeclinePaid, o.ID)))
	case db.StatusInWork:
		btns = append(btns,
			tg.Btn("💬 Чат с клиентом", data(pfxExecutorChat, o.ID)),
			tg.Btn("🎯 Сдать заказ на проверку", data(pfxSubmitWork, o.ID)))
	case db.StatusOnReview, db.StatusDispute:
		btns = append(btns, tg.Btn("💬 Чат с клиентом", data(pfxExecutorChat, o.ID)))
	}
	if o.ExecutorUsername == username && o.Status != db.StatusPending {
		btns = append(btns, tg.Btn("📜 История переписки", data(pfxChatHistory, o.ID)))
	}
	return btns
}

func (b *Bot) reply(chatID int64, text string) {
	if err := tg.SendText(b.Sender, chatID, text); err != nil {
		logger.Warn("Failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (b *Bot) replyWithKeyboard(chatID int64, text string, kb tgbotapi.InlineKeyboardMarkup) {
	if err := tg.SendWithKeyboard(b.Sender, chatID, text, kb); err != nil {
		logger.Warn("Failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// show заменяет меню, на котором нажата кнопка. Если править нельзя, отправляет новое сообщение.
func (b *Bot) show(c *callback, text string, kb *tgbotapi.InlineKeyboardMarkup) {
	if err := tg.EditWithKeyboard(b.Sender, c.chatID, c.messageID, text, kb); err == nil {
		return
	}
	if kb != nil {
		b.replyWithKeyboard(c.chatID, text, *kb)
		return
	}
	b.reply(c.chatID, text)
}

// notify доставляет сообщение второй стороне по её текущему чату.
// Возвращает chat.ErrUndeliverable, если пользователь вышел или Telegram отказал.
func (b *Bot) notify(ctx context.Context, username, text string, kb *tgbotapi.InlineKeyboardMarkup) error {
	if username == "" {
		return chat.ErrUndeliverable
	}
	u, err := b.Store.GetUser(ctx, username)
	if err != nil || u.ChatID == nil {
		logger.Warn("Notification target unreachable", zap.String("username", username), zap.Error(err))
		return chat.ErrUndeliverable
	}
	if kb != nil {
		err = tg.SendWithKeyboard(b.Sender, *u.ChatID, text, *kb)
	} else {
		err = tg.SendText(b.Sender, *u.ChatID, text)
	}
	if err != nil {
		logger.Warn("Notification failed", zap.String("username", username), zap.Error(err))
		return chat.ErrUndeliverable
	}
	return nil
}

// warnUndelivered сообщает инициатору, что действие выполнено, но уведомление могло не дойти.
func (b *Bot) warnUndelivered(chatID int64, err error) {
	if err != nil {
		b.reply(chatID, "⚠️ Действие выполнено, но уведомление второй стороне может не дойти.")
	}
}

func kbPtr(kb tgbotapi.InlineKeyboardMarkup) *tgbotapi.InlineKeyboardMarkup {
	return &kb
}

// toAdmin отправляет администратору сообщение с кнопками решения.
func (b *Bot) toAdmin(text string, kb tgbotapi.InlineKeyboardMarkup) {
	if b.AdminID == 0 {
		logger.Warn("Admin id is not configured, dropping admin message", zap.String("text", text))
		return
	}
	if err := tg.SendWithKeyboard(b.Sender, b.AdminID, text, kb); err != nil {
		logger.Error("Failed to notify admin", zap.Error(err))
	}
}
