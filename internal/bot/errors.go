package bot

import (
	"context"
	"errors"
	"fmt"
	"freelance-market-bot/internal/auth"
	"freelance-market-bot/internal/chat"
	"freelance-market-bot/internal/db"
	"freelance-market-bot/internal/logger"
	"freelance-market-bot/internal/order"
	"freelance-market-bot/internal/payment"
	"go.uber.org/zap"
)

// errorReply: ответ пользователю на ошибку. clear означает сбросить ожидание ввода.
func errorReply(err error) (text string, clear bool, known bool) {
	var te *order.TransitionError
	switch {
	case errors.Is(err, order.ErrAccessDenied):
		return "⛔ У вас нет доступа к этому заказу.", false, true
	case errors.Is(err, order.ErrExecutorGone):
		return "Не удалось завершить заказ: исполнитель недоступен. Администратор уже уведомлён.", true, true
	case errors.Is(err, order.ErrNotFound):
		return "Заказ не найден.", true, true
	case errors.Is(err, payment.ErrNoPayment):
		return "Платёж не найден.", false, true
	case errors.Is(err, auth.ErrNotLoggedIn):
		return "Пожалуйста, войдите в систему.", true, true
	case errors.As(err, &te):
		return fmt.Sprintf("Действие недоступно: заказ в статусе «%s».", te.From.Title()), true, true
	case errors.Is(err, chat.ErrChatClosed):
		return "Чат по этому заказу закрыт.", true, true
	case errors.Is(err, chat.ErrNotSaved):
		return "❌ Ошибка при отправке сообщения. Попробуйте ещё раз.", false, true
	case errors.Is(err, chat.ErrUndeliverable):
		return "✅ Действие выполнено, но уведомление второй стороне может не дойти.", false, true
	case errors.Is(err, db.ErrNotFound):
		return "Не найдено.", true, true
	case errors.Is(err, errBadCallback):
		return "Неизвестная команда. Нажмите /start, чтобы открыть меню.", true, true
	}
	return "Произошла ошибка. Попробуйте позже или нажмите /start.", true, false
}

// fail показывает ошибку пользователю. Неожиданные ошибки логируются и уходят администратору,
// ожидание ввода сбрасывается, чтобы пользователь не застрял.
func (b *Bot) fail(ctx context.Context, chatID int64, err error) {
	text, clear, known := errorReply(err)
	if !known {
		logger.Error("Handler failed", zap.Int64("chat_id", chatID), zap.Error(err))
		logger.NotifyAdmin(fmt.Sprintf("Ошибка обработки для чата %d: %v", chatID, err))
	}
	if clear {
		if cerr := b.Sessions.Clear(ctx, chatID); cerr != nil {
			logger.Warn("Failed to clear state", zap.Int64("chat_id", chatID), zap.Error(cerr))
		}
	}
	b.reply(chatID, text)
}
