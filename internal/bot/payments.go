package bot

import (
	"context"
	"errors"
	"fmt"
	"freelance-market-bot/internal/db"
	"freelance-market-bot/internal/logger"
	"freelance-market-bot/internal/order"
	"freelance-market-bot/internal/payment"
	"freelance-market-bot/internal/tg"
	"go.uber.org/zap"
	"strings"
)

const paymentHelpText = `❓ ПОМОЩЬ С ОПЛАТОЙ

1. Отсканируйте QR-код камерой телефона или в приложении банка.
2. Проверьте сумму и подтвердите перевод на кошелёк YooMoney.
3. После оплаты нажмите «✅ Я оплатил» или напишите «оплатил».

Если QR-код не открывается, нажмите «◀️ Назад к оплате», чтобы получить его снова.
Если возникли проблемы, напишите администратору.`

const expiredText = "⏰ Срок действия платежа истёк.\nСоздайте новый QR-код для оплаты."

const noPendingText = "У вас нет ожидающих платежей.\nЕсли вы оплатили заказ, используйте кнопку 'Я оплатил' в сообщении с QR-кодом."

// sendQR отправляет заказчику QR-код со ссылкой на оплату.
func (b *Bot) sendQR(ctx context.Context, o *db.Order, p *db.Payment) error {
	png, err := payment.QRCode(b.Payments.URL(p, o))
	if err != nil {
		return fmt.Errorf("render qr: %w", err)
	}
	chatID := b.chatOf(ctx, o.CustomerUsername, o.CustomerChatID)
	return tg.SendPhoto(b.Sender, chatID, "payment_"+o.ShortID()+".png", png, payment.Caption(o, p), kbPtr(paymentKeyboard(o.ID)))
}

// customerOrder возвращает заказ, если пользователь чата является его заказчиком.
func (b *Bot) customerOrder(ctx context.Context, chatID int64, id string) (*db.User, *db.Order, error) {
	customer, err := b.Auth.Current(ctx, chatID, db.RoleClient)
	if err != nil {
		return nil, nil, err
	}
	o, err := b.Orders.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if o.CustomerUsername != customer.Username {
		return nil, nil, order.ErrAccessDenied
	}
	return customer, o, nil
}

func (b *Bot) paymentConfirm(c *callback, id string) error {
	return b.confirmPayment(c.ctx, c.chatID, id)
}

// confirmPayment: заказчик сообщил об оплате: платёж client_confirmed, заказ payment_confirmed.
func (b *Bot) confirmPayment(ctx context.Context, chatID int64, id string) error {
	customer, o, err := b.customerOrder(ctx, chatID, id)
	if err != nil {
		return err
	}
	p, err := b.Payments.ClientConfirm(ctx, o.ID)
	if errors.Is(err, payment.ErrExpired) {
		b.replyWithKeyboard(chatID, expiredText, tg.Keyboard(tg.Btn("🔄 Новый QR-код", data(pfxPaymentNew, o.ID))))
		return nil
	}
	if err != nil {
		return err
	}

	o, err = b.Orders.ConfirmPayment(ctx, o.ID, order.ActorCustomer, customer.Username)
	var te *order.TransitionError
	if errors.As(err, &te) && te.From == db.StatusPaymentConfirmed {
		b.reply(chatID, "Оплата по этому заказу уже подтверждена.")
		return nil
	}
	if err != nil {
		return err
	}
	logger.Info("Payment confirmed by client",
		zap.String("order_id", o.ID),
		zap.String("payment_id", p.ID),
		zap.String("customer", customer.Username))

	b.reply(chatID, payment.ConfirmedCaption(o, p))
	b.warnUndelivered(chatID, b.notifyExecutor(ctx, o, paidNotice(o, p), kbPtr(paidKeyboard(o.ID))))
	return nil
}

func paidNotice(o *db.Order, p *db.Payment) string {
	return fmt.Sprintf("💰 ЗАКАЗ ОПЛАЧЕН КЛИЕНТОМ!\n\n📋 Заказ: %s\n💰 Сумма: %s руб.\n👤 Клиент: %s\n\nКлиент подтвердил оплату заказа.\nГотовы приступить к работе?",
		o.Title, p.Amount.StringFixed(0), o.CustomerUsername)
}

// paidText обрабатывает слово «оплатил» без кнопки: один ожидающий платёж подтверждается сразу,
// при нескольких пользователь выбирает заказ.
func (b *Bot) paidText(ctx context.Context, chatID int64) {
	if err := b.paidKeyword(ctx, chatID); err != nil {
		b.fail(ctx, chatID, err)
	}
}

func (b *Bot) paidKeyword(ctx context.Context, chatID int64) error {
	if _, err := b.Auth.Current(ctx, chatID, db.RoleClient); err != nil {
		return err
	}
	pending, err := b.Payments.Pending(ctx, chatID)
	if err != nil {
		return err
	}
	switch len(pending) {
	case 0:
		return b.offerNewQR(ctx, chatID)
	case 1:
		return b.confirmPayment(ctx, chatID, pending[0].OrderID)
	}
	btns := make([]tg.Button, 0, len(pending))
	for _, p := range pending {
		title := strings.TrimPrefix(p.Description, "Оплата заказа: ")
		btns = append(btns, tg.Btn(fmt.Sprintf("%s - %s руб.", title, p.Amount.StringFixed(0)), data(pfxPaymentConfirm, p.OrderID)))
	}
	b.replyWithKeyboard(chatID, "У вас несколько ожидающих платежей.\nВыберите заказ, который вы оплатили:", tg.Keyboard(btns...))
	return nil
}

// offerNewQR отвечает на «оплатил», когда ожидающих платежей нет: по заказам
// с истёкшим счётом предлагает новый QR-код.
func (b *Bot) offerNewQR(ctx context.Context, chatID int64) error {
	lapsed, err := b.Payments.Lapsed(ctx, chatID)
	if err != nil {
		return err
	}
	if len(lapsed) == 0 {
		b.reply(chatID, noPendingText)
		return nil
	}
	btns := make([]tg.Button, 0, len(lapsed))
	for _, p := range lapsed {
		title := strings.TrimPrefix(p.Description, "Оплата заказа: ")
		btns = append(btns, tg.Btn("🔄 Новый QR-код: "+title, data(pfxPaymentNew, p.OrderID)))
	}
	b.replyWithKeyboard(chatID, expiredText, tg.Keyboard(btns...))
	return nil
}

func (b *Bot) paymentHelp(c *callback, id string) error {
	b.replyWithKeyboard(c.chatID, paymentHelpText, tg.Keyboard(tg.Btn("◀️ Назад к оплате", data(pfxBackToPayment, id))))
	return nil
}

func (b *Bot) backToPayment(c *callback, id string) error {
	_, o, err := b.customerOrder(c.ctx, c.chatID, id)
	if err != nil {
		return err
	}
	p, err := b.Payments.Active(c.ctx, o.ID)
	if err != nil {
		return err
	}
	if p.Status != db.PaymentPending {
		b.reply(c.chatID, "Оплата по этому заказу уже отмечена.")
		return nil
	}
	return b.sendQR(c.ctx, o, p)
}

// paymentNew выставляет новый счёт вместо просроченного.
func (b *Bot) paymentNew(c *callback, id string) error {
	_, o, err := b.customerOrder(c.ctx, c.chatID, id)
	if err != nil {
		return err
	}
	if o.Status != db.StatusAcceptedWaitingPayment && o.Status != db.StatusWaitingPayment {
		return &order.TransitionError{From: o.Status, Event: order.EventSendInvoice}
	}
	if _, err := b.Payments.ExpireOverdue(c.ctx); err != nil {
		logger.Warn("Failed to expire overdue payments", zap.Error(err))
	}
	return b.invoice(c.ctx, o)
}
