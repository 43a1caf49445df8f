package services

import (
	"context"
	"freelance-market-bot/internal/db"
	"freelance-market-bot/internal/logger"
	"freelance-market-bot/internal/order"
	"freelance-market-bot/internal/payment"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"time"
)

// Notifier доставляет пользователям сообщения фоновых задач.
type Notifier interface {
	NotifyPaymentConfirmed(ctx context.Context, o *db.Order, p *db.Payment) error
	NotifyPaymentExpired(ctx context.Context, o *db.Order, p *db.Payment) error
	NotifyDeadline(ctx context.Context, o *db.Order, overdue bool) error
}

// Напоминание о сроке уходит исполнителю за сутки.
const reminderWindow = 24 * time.Hour

type Jobs struct {
	Orders   *order.Service
	Payments *payment.Service
	Notifier Notifier
	now      func() time.Time
}

func NewJobs(orders *order.Service, payments *payment.Service, n Notifier) *Jobs {
	return &Jobs{Orders: orders, Payments: payments, Notifier: n, now: time.Now}
}

// ExpirePayments закрывает просроченные платежи и предлагает клиенту новый QR-код.
func (j *Jobs) ExpirePayments(ctx context.Context) {
	expired, err := j.Payments.ExpireOverdue(ctx)
	if err != nil {
		logger.Error("Payment expiry failed", zap.Error(err))
		logger.NotifyAdmin("Ошибка закрытия просроченных платежей: " + err.Error())
	}
	for i := range expired {
		p := &expired[i]
		o, err := j.Orders.Get(ctx, p.OrderID)
		if err != nil {
			logger.Warn("Expired payment without order", zap.String("payment_id", p.ID), zap.Error(err))
			continue
		}
		if o.Status != db.StatusWaitingPayment && o.Status != db.StatusAcceptedWaitingPayment {
			continue
		}
		if err := j.Notifier.NotifyPaymentExpired(ctx, o, p); err != nil {
			logger.Warn("Failed to notify about expired payment", zap.String("order_id", o.ID), zap.Error(err))
		}
		logger.Info("Payment expired", zap.String("payment_id", p.ID), zap.String("order_id", o.ID))
	}
}

// NotifyDeadlines напоминает о сроке за сутки и один раз сообщает о просрочке.
func (j *Jobs) NotifyDeadlines(ctx context.Context) {
	orders, err := j.Orders.Deadlines(ctx)
	if err != nil {
		logger.Error("Deadline scan failed", zap.Error(err))
		return
	}
	now := j.now()
	for i := range orders {
		o := &orders[i]
		var overdue bool
		switch left := o.DeadlineAt.Sub(now); {
		case left <= 0 && !o.OverdueNotified:
			overdue = true
		case left > 0 && left <= reminderWindow && !o.DeadlineNotified:
		default:
			continue
		}
		if err := j.Notifier.NotifyDeadline(ctx, o, overdue); err != nil {
			logger.Warn("Failed to send deadline notice", zap.String("order_id", o.ID), zap.Error(err))
		}
		if err := j.Orders.MarkNotified(ctx, o.ID, !overdue, overdue); err != nil {
			logger.Error("Failed to mark deadline notice", zap.String("order_id", o.ID), zap.Error(err))
		}
	}
}

// Schedule регистрирует задачи в планировщике. Паника внутри задачи не роняет процесс.
func (j *Jobs) Schedule(c *cron.Cron, ctx context.Context) error {
	if _, err := c.AddFunc("*/5 * * * *", func() {
		defer logger.NotifyOnPanic("ExpirePayments")
		j.ExpirePayments(ctx)
	}); err != nil {
		return err
	}
	_, err := c.AddFunc("@every 30m", func() {
		defer logger.NotifyOnPanic("NotifyDeadlines")
		j.NotifyDeadlines(ctx)
	})
	return err
}
