package bot

import (
	"context"
	"fmt"
	"freelance-market-bot/internal/db"
	"freelance-market-bot/internal/order"
	"freelance-market-bot/internal/payment"
	"freelance-market-bot/internal/tg"
	"time"
)

// Уведомления, которые отправляют фоновые задачи и HTTP-обработчик платежей.

// NotifyPaymentConfirmed: оплата подтверждена уведомлением YooMoney.
func (b *Bot) NotifyPaymentConfirmed(ctx context.Context, o *db.Order, p *db.Payment) error {
	_ = b.notifyCustomer(ctx, o, payment.ConfirmedCaption(o, p), nil)
	return b.notifyExecutor(ctx, o, paidNotice(o, p), kbPtr(paidKeyboard(o.ID)))
}

func (b *Bot) NotifyPaymentExpired(ctx context.Context, o *db.Order, p *db.Payment) error {
	text := fmt.Sprintf("⏰ Срок оплаты заказа «%s» истёк.\nЕсли вы ещё хотите оплатить заказ, создайте новый QR-код.", o.Title)
	return b.sendTo(b.chatOf(ctx, o.CustomerUsername, p.UserChatID), text,
		kbPtr(tg.Keyboard(tg.Btn("🔄 Новый QR-код", data(pfxPaymentNew, o.ID)))))
}

// NotifyDeadline напоминает исполнителю о сроке. Просрочка сообщается обеим сторонам.
func (b *Bot) NotifyDeadline(ctx context.Context, o *db.Order, overdue bool) error {
	if !overdue {
		text := fmt.Sprintf("⏰ До окончания срока по заказу «%s» осталось меньше суток.\n%s",
			o.Title, order.FormatRemaining(*o.DeadlineAt, time.Now()))
		return b.notifyExecutor(ctx, o, text, kbPtr(inWorkExecutorKeyboard(o.ID)))
	}
	text := fmt.Sprintf("⏰ Срок выполнения заказа «%s» истёк!", o.Title)
	errExec := b.notifyExecutor(ctx, o, text, nil)
	errCust := b.notifyCustomer(ctx, o, text, nil)
	if errExec != nil {
		return errExec
	}
	return errCust
}
