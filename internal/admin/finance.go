package admin

import (
	"context"
	"errors"
	"fmt"
	"freelance-market-bot/internal/chat"
	"freelance-market-bot/internal/db"
	"freelance-market-bot/internal/logger"
	"freelance-market-bot/internal/order"
	"freelance-market-bot/internal/payment"
	"freelance-market-bot/internal/tg"
	"github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Telegram не принимает сообщения длиннее 4096 символов.
const maxMessageRunes = 4000

func WithdrawalKeyboard(id string) tgbotapi.InlineKeyboardMarkup {
	return tg.Keyboard(
		tg.Btn("✅ Выплачено", pfxWithdrawalPay+id),
		tg.Btn("❌ Отклонить", pfxWithdrawalRej+id),
	)
}

func RefundKeyboard(paymentID string) tgbotapi.InlineKeyboardMarkup {
	return tg.Keyboard(tg.Btn("✅ Возврат выполнен", pfxRefundDone+paymentID))
}

func RefundText(o *db.Order, p *db.Payment) string {
	return fmt.Sprintf("↩️ Требуется возврат\n\n📋 Заказ: %s (#%s)\n👤 Заказчик: %s\n💰 Сумма: %s руб.\n🆔 Платёж: %s",
		o.Title, o.ShortID(), o.CustomerUsername, p.Amount.StringFixed(2), p.ID)
}

func DisputeKeyboard(orderID string) tgbotapi.InlineKeyboardMarkup {
	return tg.Keyboard(
		tg.Btn("▶️ Продолжить работу", pfxDisputeResume+orderID),
		tg.Btn("❌ Отменить заказ", pfxDisputeCancel+orderID),
		tg.Btn("📜 История переписки", pfxHistory+orderID),
	)
}

func withdrawalText(w *db.Withdrawal) string {
	return fmt.Sprintf("💸 Заявка на вывод\n\nИсполнитель: %s\nСумма: %s руб.\nСоздана: %s",
		w.Username, w.Amount.StringFixed(2), w.CreatedAt.Format("02.01.2006 15:04"))
}

func (p *Panel) listWithdrawals(ctx context.Context, chatID int64) {
	pending, err := p.Ledger.Pending(ctx)
	if err != nil {
		p.fail(chatID, "заявки на вывод", err)
		return
	}
	if len(pending) == 0 {
		p.reply(chatID, "Нет заявок на вывод.")
		return
	}
	for i := range pending {
		w := &pending[i]
		p.send(chatID, withdrawalText(w), WithdrawalKeyboard(w.ID))
	}
}

func (p *Panel) processWithdrawal(ctx context.Context, c press, id string, approve bool) {
	w, err := p.Ledger.ProcessWithdrawal(ctx, id, approve)
	switch {
	case errors.Is(err, db.ErrStatusConflict):
		p.edit(c, "Заявка уже обработана.", nil)
		return
	case errors.Is(err, db.ErrNotFound):
		p.edit(c, "Заявка не найдена.", nil)
		return
	case err != nil && w == nil:
		p.fail(c.chatID, "заявка на вывод", err)
		return
	case err != nil:
		// заявка отклонена, но сумма не вернулась на баланс
		logger.Error("Withdrawal refund failed", zap.String("withdrawal_id", id), zap.Error(err))
		p.reply(c.chatID, fmt.Sprintf("⚠️ Заявка отклонена, но вернуть %s руб. на баланс %s не удалось: %v. Исправьте баланс вручную.",
			w.Amount.StringFixed(2), w.Username, err))
		return
	}

	if approve {
		logger.LogAdminAction(c.chatID, "withdrawal_paid", id)
		p.edit(c, fmt.Sprintf("✅ Выплата %s руб. исполнителю %s отмечена.", w.Amount.StringFixed(2), w.Username), nil)
		p.notifyUser(ctx, w.Username, 0, fmt.Sprintf("✅ Ваша заявка на вывод %s руб. выполнена.", w.Amount.StringFixed(2)))
		return
	}
	logger.LogAdminAction(c.chatID, "withdrawal_rejected", id)
	p.edit(c, fmt.Sprintf("❌ Заявка %s на %s руб. отклонена, сумма возвращена на баланс.", w.Username, w.Amount.StringFixed(2)), nil)
	p.notifyUser(ctx, w.Username, 0, fmt.Sprintf("❌ Заявка на вывод %s руб. отклонена. Сумма возвращена на баланс.", w.Amount.StringFixed(2)))
}

func (p *Panel) listRefunds(ctx context.Context, chatID int64) {
	refunds, err := p.Payments.RefundsPending(ctx)
	if err != nil {
		p.fail(chatID, "возвраты", err)
		return
	}
	if len(refunds) == 0 {
		p.reply(chatID, "Нет ожидающих возвратов.")
		return
	}
	for i := range refunds {
		pay := &refunds[i]
		o, err := p.Orders.Get(ctx, pay.OrderID)
		if err != nil {
			logger.Warn("Refund without order", zap.String("payment_id", pay.ID), zap.Error(err))
			o = &db.Order{ID: pay.OrderID, Title: pay.Description, CustomerUsername: pay.CustomerUsername}
		}
		p.send(chatID, RefundText(o, pay), RefundKeyboard(pay.ID))
	}
}

func (p *Panel) refundDone(ctx context.Context, c press, paymentID string) {
	pay, err := p.Payments.MarkRefunded(ctx, paymentID)
	switch {
	case errors.Is(err, db.ErrStatusConflict):
		p.edit(c, "Возврат уже отмечен.", nil)
		return
	case errors.Is(err, payment.ErrNoPayment):
		p.edit(c, "Платёж не найден.", nil)
		return
	case err != nil:
		p.fail(c.chatID, "возврат", err)
		return
	}
	logger.LogAdminAction(c.chatID, "refund_done", paymentID)
	p.edit(c, fmt.Sprintf("✅ Возврат %s руб. клиенту %s отмечен.", pay.Amount.StringFixed(2), pay.CustomerUsername), nil)

	title := pay.Description
	if o, err := p.Orders.Get(ctx, pay.OrderID); err == nil {
		title = o.Title
	}
	p.notifyUser(ctx, pay.CustomerUsername, pay.UserChatID,
		fmt.Sprintf("💰 Возврат %s руб. по заказу «%s» выполнен.", pay.Amount.StringFixed(2), title))
}

func disputeText(o *db.Order) string {
	return fmt.Sprintf("⚖️ Спор по заказу %s (#%s)\n💰 Сумма: %s руб.\n👤 Заказчик: %s\n👨‍💼 Исполнитель: %s",
		o.Title, o.ShortID(), o.Amount.StringFixed(0), o.CustomerUsername, o.ExecutorUsername)
}

func (p *Panel) listDisputes(ctx context.Context, chatID int64) {
	orders, err := p.Store.OrdersByStatus(ctx, db.StatusDispute)
	if err != nil {
		p.fail(chatID, "споры", err)
		return
	}
	if len(orders) == 0 {
		p.reply(chatID, "Открытых споров нет.")
		return
	}
	for i := range orders {
		o := &orders[i]
		p.send(chatID, disputeText(o), DisputeKeyboard(o.ID))
	}
}

func (p *Panel) disputeError(c press, err error) {
	var te *order.TransitionError
	switch {
	case errors.As(err, &te):
		p.edit(c, fmt.Sprintf("Спор уже закрыт: заказ в статусе «%s».", te.From.Title()), nil)
	case errors.Is(err, order.ErrNotFound):
		p.edit(c, "Заказ не найден.", nil)
	default:
		p.fail(c.chatID, "спор", err)
	}
}

func (p *Panel) resumeDispute(ctx context.Context, c press, id string) {
	o, err := p.Orders.ResumeWork(ctx, id)
	if err != nil {
		p.disputeError(c, err)
		return
	}
	logger.LogAdminAction(c.chatID, "dispute_resume", id)
	p.edit(c, fmt.Sprintf("▶️ Работа по заказу «%s» продолжена.", o.Title), nil)
	text := fmt.Sprintf("⚖️ Администратор рассмотрел спор по заказу «%s». Работа продолжается.", o.Title)
	p.notifyUser(ctx, o.CustomerUsername, o.CustomerChatID, text)
	p.notifyUser(ctx, o.ExecutorUsername, o.ExecutorChatID, text)
}

func (p *Panel) cancelDispute(ctx context.Context, c press, id string) {
	o, err := p.Orders.Cancel(ctx, id, order.ActorAdmin, "")
	if err != nil {
		p.disputeError(c, err)
		return
	}
	logger.LogAdminAction(c.chatID, "dispute_cancel", id)
	p.edit(c, fmt.Sprintf("❌ Заказ «%s» отменён по итогам спора.", o.Title), nil)

	clientText := fmt.Sprintf("⚖️ Администратор отменил заказ «%s» по итогам спора.", o.Title)
	pay, err := p.Payments.Release(ctx, o.ID)
	if err != nil {
		p.fail(c.chatID, "закрытие платежа", err)
	}
	if pay != nil && pay.Status == db.PaymentRefundPending {
		clientText += "\nОплаченная сумма будет возвращена."
		p.send(c.chatID, RefundText(o, pay), RefundKeyboard(pay.ID))
	}
	p.notifyUser(ctx, o.CustomerUsername, o.CustomerChatID, clientText)
	p.notifyUser(ctx, o.ExecutorUsername, o.ExecutorChatID, fmt.Sprintf("⚖️ Администратор отменил заказ «%s» по итогам спора.", o.Title))
}

func (p *Panel) history(ctx context.Context, c press, id string) {
	o, err := p.Orders.Get(ctx, id)
	if err != nil {
		p.disputeError(c, err)
		return
	}
	msgs, err := p.Chat.History(ctx, id, &db.User{Role: db.RoleAdmin})
	if err != nil {
		p.fail(c.chatID, "история", err)
		return
	}
	text := []rune(chat.FormatHistory(o, msgs))
	if len(text) > maxMessageRunes {
		text = append([]rune("…\n"), text[len(text)-maxMessageRunes:]...)
	}
	p.reply(c.chatID, string(text))
}
