package bot

import (
	"context"
	"errors"
	"fmt"
	"freelance-market-bot/internal/admin"
	"freelance-market-bot/internal/chat"
	"freelance-market-bot/internal/db"
	"freelance-market-bot/internal/logger"
	"freelance-market-bot/internal/order"
	"freelance-market-bot/internal/payment"
	"freelance-market-bot/internal/session"
	"freelance-market-bot/internal/tg"
	"github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"time"
)

func offerText(o *db.Order) string {
	return fmt.Sprintf("Новый заказ:\nОписание: %s\nСроки: %s\nБюджет: %s руб.\nЗаказчик: %s",
		o.Description, o.DeadlineText, o.Amount.StringFixed(0), o.CustomerUsername)
}

// offer отправляет предложение заказа исполнителю.
func (b *Bot) offer(ctx context.Context, o *db.Order, executor *db.User) {
	if err := b.notify(ctx, executor.Username, offerText(o), kbPtr(offerKeyboard(o.ID))); err != nil {
		logger.NotifyAdmin(fmt.Sprintf("Исполнитель %s не получил предложение заказа %s: он не в сети.", executor.Username, o.ShortID()))
	}
}

// chatOf: текущий чат пользователя, иначе чат, из которого он оформлял заказ.
func (b *Bot) chatOf(ctx context.Context, username string, fallback int64) int64 {
	u, err := b.Store.GetUser(ctx, username)
	if err == nil && u.ChatID != nil {
		return *u.ChatID
	}
	return fallback
}

func (b *Bot) sendTo(chatID int64, text string, kb *tgbotapi.InlineKeyboardMarkup) error {
	if chatID == 0 {
		return chat.ErrUndeliverable
	}
	var err error
	if kb != nil {
		err = tg.SendWithKeyboard(b.Sender, chatID, text, *kb)
	} else {
		err = tg.SendText(b.Sender, chatID, text)
	}
	if err != nil {
		logger.Warn("Failed to deliver message", zap.Int64("chat_id", chatID), zap.Error(err))
		return chat.ErrUndeliverable
	}
	return nil
}

func (b *Bot) notifyCustomer(ctx context.Context, o *db.Order, text string, kb *tgbotapi.InlineKeyboardMarkup) error {
	return b.sendTo(b.chatOf(ctx, o.CustomerUsername, o.CustomerChatID), text, kb)
}

func (b *Bot) notifyExecutor(ctx context.Context, o *db.Order, text string, kb *tgbotapi.InlineKeyboardMarkup) error {
	return b.sendTo(b.chatOf(ctx, o.ExecutorUsername, o.ExecutorChatID), text, kb)
}

// party определяет, кем из сторон заказа является пользователь этого чата.
func (b *Bot) party(ctx context.Context, chatID int64, o *db.Order) (*db.User, order.Actor, error) {
	if u, err := b.Auth.Current(ctx, chatID, db.RoleClient); err == nil && u.Username == o.CustomerUsername {
		return u, order.ActorCustomer, nil
	}
	if u, err := b.Auth.Current(ctx, chatID, db.RoleContractor); err == nil && u.Username == o.ExecutorUsername {
		return u, order.ActorExecutor, nil
	}
	return nil, "", order.ErrAccessDenied
}

func (b *Bot) acceptOrder(c *callback, id string) error {
	executor, err := b.Auth.Current(c.ctx, c.chatID, db.RoleContractor)
	if err != nil {
		return err
	}
	o, err := b.Orders.Accept(c.ctx, id, executor, c.chatID)
	if err != nil {
		return err
	}
	b.show(c, fmt.Sprintf("✅ Вы приняли заказ!\n\n📋 Заказ: %s\n💰 Сумма: %s руб.\n\nЗаказчику отправлен QR-код для оплаты. Мы сообщим, когда оплата будет подтверждена.",
		o.Title, o.Amount.StringFixed(0)), nil)
	b.warnUndelivered(c.chatID, b.notifyCustomer(c.ctx, o, fmt.Sprintf("✅ Исполнитель %s принял ваш заказ!", executor.Username), nil))
	return b.invoice(c.ctx, o)
}

// invoice выставляет заказчику счёт: платёж, QR-код и переход в waiting_payment.
func (b *Bot) invoice(ctx context.Context, o *db.Order) error {
	p, err := b.Payments.Create(ctx, o)
	if errors.Is(err, payment.ErrAlreadyActive) {
		p, err = b.Payments.Active(ctx, o.ID)
	}
	if err != nil {
		return err
	}
	if err := b.sendQR(ctx, o, p); err != nil {
		logger.Warn("Failed to send payment QR", zap.String("order_id", o.ID), zap.Error(err))
		logger.NotifyAdmin(fmt.Sprintf("QR-код оплаты заказа %s не доставлен заказчику %s.", o.ShortID(), o.CustomerUsername))
	}
	if o.Status == db.StatusAcceptedWaitingPayment {
		var te *order.TransitionError
		if _, err := b.Orders.SendInvoice(ctx, o.ID); err != nil && !errors.As(err, &te) {
			return err
		}
	}
	return nil
}

func (b *Bot) declineOrder(c *callback, id string) error {
	executor, err := b.Auth.Current(c.ctx, c.chatID, db.RoleContractor)
	if err != nil {
		return err
	}
	o, next, err := b.Orders.Decline(c.ctx, id, executor.Username)
	if err != nil {
		return err
	}
	b.show(c, "Вы отказались от заказа.", nil)
	if next != nil {
		b.offer(c.ctx, o, next)
		return nil
	}
	_ = b.notifyCustomer(c.ctx, o, fmt.Sprintf("😔 К сожалению, сейчас нет свободных исполнителей для заказа «%s». Заказ отменён.", o.Title), kbPtr(clientKeyboard()))
	return nil
}

func (b *Bot) cancelOrder(c *callback, id string) error {
	customer, err := b.Auth.Current(c.ctx, c.chatID, db.RoleClient)
	if err != nil {
		return err
	}
	o, err := b.Orders.Cancel(c.ctx, id, order.ActorCustomer, customer.Username)
	if err != nil {
		return err
	}
	b.show(c, fmt.Sprintf("❌ Заказ «%s» отменён.", o.Title), nil)
	b.releasePayment(c.ctx, o)

	switch {
	case o.ExecutorUsername != "":
		_ = b.notifyExecutor(c.ctx, o, fmt.Sprintf("❌ Заказчик отменил заказ «%s».", o.Title), nil)
	case o.OfferedTo != "":
		_ = b.notify(c.ctx, o.OfferedTo, fmt.Sprintf("❌ Заказчик отменил заказ «%s».", o.Title), nil)
	}
	return nil
}

// releasePayment закрывает платёж отменённого заказа; оплаченный уходит администратору на возврат.
func (b *Bot) releasePayment(ctx context.Context, o *db.Order) *db.Payment {
	p, err := b.Payments.Release(ctx, o.ID)
	if err != nil {
		logger.Error("Failed to release payment", zap.String("order_id", o.ID), zap.Error(err))
		logger.NotifyAdmin(fmt.Sprintf("Не удалось закрыть платёж заказа %s: %v", o.ShortID(), err))
		return nil
	}
	if p != nil && p.Status == db.PaymentRefundPending {
		b.toAdmin(admin.RefundText(o, p), admin.RefundKeyboard(p.ID))
	}
	return p
}

func deadlineLine(o *db.Order) string {
	if o.DeadlineAt == nil {
		return "⏱ Срок: " + o.DeadlineText
	}
	return order.FormatRemaining(*o.DeadlineAt, time.Now())
}

func (b *Bot) startWork(c *callback, id string) error {
	executor, err := b.Auth.Current(c.ctx, c.chatID, db.RoleContractor)
	if err != nil {
		return err
	}
	o, err := b.Orders.StartWork(c.ctx, id, executor.Username)
	if err != nil {
		return err
	}
	b.replyWithKeyboard(c.chatID, fmt.Sprintf("🚀 РАБОТА НАД ПРОЕКТОМ НАЧАЛАСЬ!\n\n📋 Заказ: %s\n💰 Сумма: %s руб.\n👤 Клиент: %s\n%s\n\n"+
		"Используйте чат для связи с клиентом. Когда работа будет готова, сдайте заказ на проверку.",
		o.Title, o.Amount.StringFixed(0), o.CustomerUsername, deadlineLine(o)), inWorkExecutorKeyboard(o.ID))
	err = b.notifyCustomer(c.ctx, o, fmt.Sprintf("🚀 Исполнитель %s приступил к работе над заказом «%s»!\n%s",
		executor.Username, o.Title, deadlineLine(o)), kbPtr(inWorkClientKeyboard(o.ID)))
	b.warnUndelivered(c.chatID, err)
	return nil
}

func (b *Bot) declinePaid(c *callback, id string) error {
	executor, err := b.Auth.Current(c.ctx, c.chatID, db.RoleContractor)
	if err != nil {
		return err
	}
	o, err := b.Orders.DeclinePaid(c.ctx, id, executor.Username)
	if err != nil {
		return err
	}
	p := b.releasePayment(c.ctx, o)
	b.show(c, fmt.Sprintf("❌ ВЫ ОТКАЗАЛИСЬ ОТ ЗАКАЗА\n\n📋 Заказ: %s\n\nЗаказчик получит уведомление.", o.Title), nil)

	text := fmt.Sprintf("😔 К сожалению, исполнитель %s не может взять ваш заказ в работу.\n\n📋 Заказ: %s", executor.Username, o.Title)
	if p != nil && p.Status == db.PaymentRefundPending {
		text += "\n\n💰 Оплаченная сумма будет возвращена администратором."
	}
	b.warnUndelivered(c.chatID, b.notifyCustomer(c.ctx, o, text, kbPtr(clientKeyboard())))
	return nil
}

func (b *Bot) submitWork(c *callback, id string) error {
	executor, err := b.Auth.Current(c.ctx, c.chatID, db.RoleContractor)
	if err != nil {
		return err
	}
	o, err := b.Orders.Submit(c.ctx, id, executor.Username)
	if err != nil {
		return err
	}
	b.replyWithKeyboard(c.chatID, fmt.Sprintf("🎯 Заказ «%s» отправлен на проверку заказчику.", o.Title), chatKeyboard(o.ID))
	err = b.notifyCustomer(c.ctx, o, fmt.Sprintf("🎯 Исполнитель %s сдал заказ «%s» на проверку.\n\nПроверьте результат и примите работу или отправьте её на доработку.",
		executor.Username, o.Title), kbPtr(reviewKeyboard(o.ID)))
	b.warnUndelivered(c.chatID, err)
	return nil
}

func (b *Bot) acceptWork(c *callback, id string) error {
	customer, err := b.Auth.Current(c.ctx, c.chatID, db.RoleClient)
	if err != nil {
		return err
	}
	o, err := b.Orders.AcceptWork(c.ctx, id, customer.Username)
	if o == nil {
		return err
	}
	credited := err == nil

	b.replyWithKeyboard(c.chatID, fmt.Sprintf("✅ Работа принята! Заказ «%s» завершён. Спасибо, что выбрали нас!", o.Title), clientKeyboard())
	text := fmt.Sprintf("🎉 Заказчик принял работу по заказу «%s»!\n💰 На ваш баланс зачислено %s руб.", o.Title, o.Amount.StringFixed(2))
	if !credited {
		text = fmt.Sprintf("🎉 Заказчик принял работу по заказу «%s»!\nНачисление проверит администратор.", o.Title)
	}
	_ = b.notifyExecutor(c.ctx, o, text, kbPtr(executorKeyboard()))
	return nil
}

// onReview проверяет, что пользователь является заказчиком и заказ ждёт проверки.
func (b *Bot) onReview(ctx context.Context, chatID int64, id string, ev order.Event) (*db.Order, error) {
	customer, err := b.Auth.Current(ctx, chatID, db.RoleClient)
	if err != nil {
		return nil, err
	}
	o, err := b.Orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.CustomerUsername != customer.Username {
		return nil, order.ErrAccessDenied
	}
	if _, err := order.Next(o.Status, ev, order.ActorCustomer); err != nil {
		return nil, err
	}
	return o, nil
}

func (b *Bot) requestRevisionStart(c *callback, id string) error {
	o, err := b.onReview(c.ctx, c.chatID, id, order.EventRequestRevision)
	if err != nil {
		return err
	}
	if err := b.Sessions.Set(c.ctx, c.chatID, session.RevisionComment{OrderID: o.ID}); err != nil {
		return err
	}
	b.reply(c.chatID, "✏️ Опишите, что нужно доработать:")
	return nil
}

func (b *Bot) revisionComment(ctx context.Context, chatID int64, s session.RevisionComment, text string) error {
	customer, err := b.Auth.Current(ctx, chatID, db.RoleClient)
	if err != nil {
		return err
	}
	o, err := b.Orders.RequestRevision(ctx, s.OrderID, customer.Username)
	if err != nil {
		return err
	}
	if err := b.Sessions.Clear(ctx, chatID); err != nil {
		logger.Warn("Failed to clear state", zap.Int64("chat_id", chatID), zap.Error(err))
	}
	_, err = b.Chat.Send(ctx, o.ID, customer, "✏️ Доработка: "+text)
	if err != nil && !errors.Is(err, chat.ErrUndeliverable) {
		return err
	}
	b.replyWithKeyboard(chatID, "✏️ Заказ отправлен на доработку. Исполнитель получил ваш комментарий.", inWorkClientKeyboard(o.ID))
	b.warnUndelivered(chatID, err)
	_ = b.notifyExecutor(ctx, o, fmt.Sprintf("✏️ Заказ «%s» возвращён на доработку (доработка №%d).\nКомментарий заказчика есть в чате заказа.",
		o.Title, o.RevisionCount), kbPtr(inWorkExecutorKeyboard(o.ID)))
	return nil
}

func (b *Bot) openDisputeStart(c *callback, id string) error {
	o, err := b.Orders.Get(c.ctx, id)
	if err != nil {
		return err
	}
	_, actor, err := b.party(c.ctx, c.chatID, o)
	if err != nil {
		return err
	}
	if _, err := order.Next(o.Status, order.EventOpenDispute, actor); err != nil {
		return err
	}
	if err := b.Sessions.Set(c.ctx, c.chatID, session.DisputeReason{OrderID: o.ID}); err != nil {
		return err
	}
	b.reply(c.chatID, "⚖️ Опишите причину спора:")
	return nil
}

func (b *Bot) disputeReason(ctx context.Context, chatID int64, s session.DisputeReason, text string) error {
	o, err := b.Orders.Get(ctx, s.OrderID)
	if err != nil {
		return err
	}
	u, actor, err := b.party(ctx, chatID, o)
	if err != nil {
		return err
	}
	o, err = b.Orders.OpenDispute(ctx, o.ID, actor, u.Username)
	if err != nil {
		return err
	}
	if err := b.Sessions.Clear(ctx, chatID); err != nil {
		logger.Warn("Failed to clear state", zap.Int64("chat_id", chatID), zap.Error(err))
	}
	if _, err := b.Chat.Send(ctx, o.ID, u, "⚖️ Открыт спор: "+text); err != nil && !errors.Is(err, chat.ErrUndeliverable) {
		logger.Warn("Failed to relay dispute reason", zap.String("order_id", o.ID), zap.Error(err))
	}
	b.reply(chatID, "⚖️ Спор открыт. Администратор рассмотрит его в ближайшее время.\nПереписка в чате заказа остаётся доступной.")
	b.toAdmin(fmt.Sprintf("⚖️ ОТКРЫТ СПОР\n\n📋 Заказ: %s (#%s)\n💰 Сумма: %s руб.\n👤 Заказчик: %s\n👨‍💼 Исполнитель: %s\nИнициатор: %s\n\nПричина: %s",
		o.Title, o.ShortID(), o.Amount.StringFixed(0), o.CustomerUsername, o.ExecutorUsername, u.Username, text), admin.DisputeKeyboard(o.ID))
	return nil
}
