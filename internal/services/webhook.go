package services

import (
	"context"
	"errors"
	"fmt"
	"freelance-market-bot/internal/db"
	"freelance-market-bot/internal/logger"
	"freelance-market-bot/internal/order"
	"freelance-market-bot/internal/payment"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"net/http"
	"time"
)

// NewRouter собирает HTTP-поверхность бота. Без секрета уведомления YooMoney не принимаются.
func NewRouter(j *Jobs, secret string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if secret != "" {
		r.Post("/yoomoney/notification", NotificationHandler(j, secret))
	}
	return r
}

// NotificationHandler принимает HTTP-уведомления YooMoney о входящих переводах.
// На всё, кроме неверной подписи и битой формы, отвечаем 200, иначе YooMoney будет повторять запрос.
func NotificationHandler(j *Jobs, secret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer logger.NotifyOnPanic("NotificationHandler")
		if err := r.ParseForm(); err != nil {
			logger.Warn("Bad notification form", zap.Error(err))
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		n, err := payment.ParseNotification(r.PostForm, secret)
		if errors.Is(err, payment.ErrBadSignature) {
			logger.NotifyAdmin("Недействительная подпись уведомления YooMoney, label=" + r.PostForm.Get("label"))
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte("invalid signature"))
			return
		}
		if err != nil {
			logger.Warn("Bad notification", zap.Error(err))
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if n.Unaccepted || n.Codepro == "true" {
			logger.Warn("Notification for a held transfer", zap.String("label", n.Label), zap.String("operation_id", n.OperationID))
			logger.NotifyAdmin(fmt.Sprintf("Перевод %s по платежу %s требует ручного зачисления", n.OperationID, n.Label))
			w.WriteHeader(http.StatusOK)
			return
		}
		if err := j.ConfirmByNotification(r.Context(), n); err != nil {
			logger.Warn("Notification not applied", zap.String("label", n.Label), zap.Error(err))
		}
		w.WriteHeader(http.StatusOK)
	}
}

// ConfirmByNotification подтверждает платёж и продвигает заказ, как если бы клиент нажал «Я оплатил».
func (j *Jobs) ConfirmByNotification(ctx context.Context, n payment.Notification) error {
	p, err := j.Payments.Verify(ctx, n)
	switch {
	case errors.Is(err, payment.ErrAmountTooLow):
		logger.NotifyAdmin(fmt.Sprintf("Платёж %s: получено %s руб., меньше суммы заказа", n.Label, n.WithdrawAmount.StringFixed(2)))
		return err
	case errors.Is(err, db.ErrStatusConflict):
		// повторное уведомление или платёж уже закрыт
		return nil
	case err != nil:
		return err
	}
	logger.Info("Payment verified", zap.String("payment_id", p.ID), zap.String("operation_id", n.OperationID))

	o, err := j.Orders.ConfirmPayment(ctx, p.OrderID, order.ActorSystem, "")
	var te *order.TransitionError
	if errors.As(err, &te) {
		// клиент уже подтвердил оплату вручную
		return nil
	}
	if err != nil {
		logger.NotifyAdmin(fmt.Sprintf("Платёж %s подтверждён, но заказ %s не переведён: %v", p.ID, p.OrderID, err))
		return err
	}
	return j.Notifier.NotifyPaymentConfirmed(ctx, o, p)
}
