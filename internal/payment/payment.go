package payment

import (
	"context"
	"errors"
	"fmt"
	"freelance-market-bot/internal/db"
	"freelance-market-bot/internal/logger"
	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"
	"net/url"
	"time"
)

const quickpayURL = "https://yoomoney.ru/quickpay/confirm.xml"

var (
	ErrNoPayment     = errors.New("no active payment")
	ErrExpired       = errors.New("payment expired")
	ErrAlreadyActive = errors.New("order already has an active payment")
	ErrAmountTooLow  = errors.New("paid amount is less than order amount")
)

type Store interface {
	db.Orders
	db.Payments
}

// Service: платежи через перевод на кошелёк YooMoney с ручным подтверждением.
type Service struct {
	store  Store
	wallet string
	ttl    time.Duration
	now    func() time.Time
}

func NewService(store Store, wallet string, ttl time.Duration) *Service {
	return &Service{store: store, wallet: wallet, ttl: ttl, now: time.Now}
}

// Create заводит платёж по заказу. У заказа не бывает двух активных платежей.
func (s *Service) Create(ctx context.Context, o *db.Order) (*db.Payment, error) {
	now := s.now()
	p := &db.Payment{
		ID:               uuid.NewString(),
		OrderID:          o.ID,
		UserChatID:       o.CustomerChatID,
		CustomerUsername: o.CustomerUsername,
		Amount:           o.Amount,
		Description:      "Оплата заказа: " + o.Title,
		Status:           db.PaymentPending,
		CreatedAt:        now,
		ExpiresAt:        now.Add(s.ttl),
	}
	if err := s.store.CreatePayment(ctx, p); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			return nil, ErrAlreadyActive
		}
		return nil, fmt.Errorf("create payment: %w", err)
	}
	logger.Info("Payment created",
		zap.String("payment_id", p.ID),
		zap.String("order_id", o.ID),
		zap.String("amount", p.Amount.String()))
	return p, nil
}

// URL: ссылка быстрой оплаты на кошелёк; label связывает перевод с платежом.
func (s *Service) URL(p *db.Payment, o *db.Order) string {
	return BuildURL(s.wallet, p, o)
}

func BuildURL(wallet string, p *db.Payment, o *db.Order) string {
	q := url.Values{}
	q.Set("receiver", wallet)
	q.Set("quickpay-form", "small")
	q.Set("targets", "Оплата заказа: "+o.Title)
	q.Set("sum", p.Amount.StringFixed(2))
	q.Set("label", p.ID)
	q.Set("comment", "Заказ "+o.ID)
	return quickpayURL + "?" + q.Encode()
}

// QRCode: PNG 256×256 со ссылкой на оплату.
func QRCode(link string) ([]byte, error) {
	return qrcode.Encode(link, qrcode.Medium, 256)
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Caption: подпись к QR-коду.
func Caption(o *db.Order, p *db.Payment) string {
	return fmt.Sprintf("💳 ОПЛАТА ЗАКАЗА\n\n"+
		"📋 Заказ: %s\n"+
		"💰 Сумма: %s руб.\n"+
		"🆔 Номер платежа: %s...\n\n"+
		"📱 Отсканируйте QR-код для оплаты через YooMoney\n"+
		"⏰ Действителен до: %s\n\n"+
		"После оплаты напишите слово \"оплатил\" для подтверждения.",
		o.Title, p.Amount.StringFixed(0), short(p.ID), p.ExpiresAt.Format("02.01.2006 15:04"))
}

// ConfirmedCaption: сообщение заказчику после подтверждения.
func ConfirmedCaption(o *db.Order, p *db.Payment) string {
	return fmt.Sprintf("✅ ОПЛАТА ПОДТВЕРЖДЕНА\n\n"+
		"📋 Заказ: %s\n"+
		"💰 Сумма: %s руб.\n"+
		"🆔 Номер платежа: %s...\n\n"+
		"Исполнитель получил уведомление и скоро приступит к работе.",
		o.Title, p.Amount.StringFixed(0), short(p.ID))
}

func (s *Service) Active(ctx context.Context, orderID string) (*db.Payment, error) {
	p, err := s.store.ActivePayment(ctx, orderID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrNoPayment
	}
	return p, err
}

// Pending: ожидающие подтверждения платежи заказчика.
func (s *Service) Pending(ctx context.Context, chatID int64) ([]db.Payment, error) {
	return s.store.PaymentsByUser(ctx, chatID, db.PaymentPending)
}

// Lapsed: просроченные платежи заказчика по заказам, которые всё ещё ждут оплаты.
// Платежи, закрытые кроном, уже не активны, но заказчику нужно предложить новый QR-код.
func (s *Service) Lapsed(ctx context.Context, chatID int64) ([]db.Payment, error) {
	expired, err := s.store.PaymentsByUser(ctx, chatID, db.PaymentExpired)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []db.Payment
	for _, p := range expired {
		if seen[p.OrderID] {
			continue
		}
		o, err := s.store.GetOrder(ctx, p.OrderID)
		if errors.Is(err, db.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !awaitsPayment(o) {
			continue
		}
		if _, err := s.store.ActivePayment(ctx, o.ID); err == nil {
			continue
		} else if !errors.Is(err, db.ErrNotFound) {
			return nil, err
		}
		seen[p.OrderID] = true
		out = append(out, p)
	}
	return out, nil
}

func awaitsPayment(o *db.Order) bool {
	return o.Status == db.StatusAcceptedWaitingPayment || o.Status == db.StatusWaitingPayment
}

// lapsedOrder сообщает, что активного платежа нет, а последний платёж заказа истёк.
func (s *Service) lapsedOrder(ctx context.Context, orderID string) (bool, error) {
	o, err := s.store.GetOrder(ctx, orderID)
	if errors.Is(err, db.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !awaitsPayment(o) {
		return false, nil
	}
	expired, err := s.store.PaymentsByUser(ctx, o.CustomerChatID, db.PaymentExpired)
	if err != nil {
		return false, err
	}
	for _, p := range expired {
		if p.OrderID == orderID {
			return true, nil
		}
	}
	return false, nil
}

// ClientConfirm отмечает «оплатил». Просроченный платёж закрывается и даёт ErrExpired,
// так же как и платёж, который уже закрыл крон.
func (s *Service) ClientConfirm(ctx context.Context, orderID string) (*db.Payment, error) {
	p, err := s.Active(ctx, orderID)
	if errors.Is(err, ErrNoPayment) {
		lapsed, lerr := s.lapsedOrder(ctx, orderID)
		if lerr != nil {
			return nil, lerr
		}
		if lapsed {
			return nil, ErrExpired
		}
	}
	if err != nil {
		return nil, err
	}
	switch p.Status {
	case db.PaymentClientConfirmed, db.PaymentVerified:
		return p, nil
	}
	if !s.now().Before(p.ExpiresAt) {
		if _, err := s.store.TransitionPayment(ctx, p.ID, db.PaymentPending, db.PaymentExpired, db.PaymentPatch{}); err != nil && !errors.Is(err, db.ErrStatusConflict) {
			return nil, err
		}
		return nil, ErrExpired
	}
	now := s.now()
	return s.store.TransitionPayment(ctx, p.ID, db.PaymentPending, db.PaymentClientConfirmed, db.PaymentPatch{PaidAt: &now})
}

// Verify подтверждает платёж по уведомлению YooMoney (label = id платежа).
func (s *Service) Verify(ctx context.Context, n Notification) (*db.Payment, error) {
	p, err := s.store.GetPayment(ctx, n.Label)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrNoPayment
	}
	if err != nil {
		return nil, err
	}
	if n.WithdrawAmount.LessThan(p.Amount) {
		return nil, ErrAmountTooLow
	}
	if p.Status != db.PaymentPending && p.Status != db.PaymentClientConfirmed {
		return nil, fmt.Errorf("payment %s in status %s: %w", short(p.ID), p.Status, db.ErrStatusConflict)
	}
	now := s.now()
	patch := db.PaymentPatch{OperationID: &n.OperationID}
	if p.PaidAt == nil {
		patch.PaidAt = &now
	}
	return s.store.TransitionPayment(ctx, p.ID, p.Status, db.PaymentVerified, patch)
}

// ExpireOverdue закрывает просроченные неоплаченные платежи.
func (s *Service) ExpireOverdue(ctx context.Context) ([]db.Payment, error) {
	pending, err := s.store.PaymentsByStatus(ctx, db.PaymentPending)
	if err != nil {
		return nil, err
	}
	now := s.now()
	var expired []db.Payment
	for _, p := range pending {
		if now.Before(p.ExpiresAt) {
			continue
		}
		updated, err := s.store.TransitionPayment(ctx, p.ID, db.PaymentPending, db.PaymentExpired, db.PaymentPatch{})
		if errors.Is(err, db.ErrStatusConflict) {
			continue
		}
		if err != nil {
			return expired, err
		}
		expired = append(expired, *updated)
	}
	return expired, nil
}

// Release закрывает активный платёж отменённого заказа. Неоплаченный истекает,
// оплаченный уходит в refund_pending и возвращается для уведомления администратора.
func (s *Service) Release(ctx context.Context, orderID string) (*db.Payment, error) {
	p, err := s.Active(ctx, orderID)
	if errors.Is(err, ErrNoPayment) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	to := db.PaymentRefundPending
	if p.Status == db.PaymentPending {
		to = db.PaymentExpired
	}
	return s.store.TransitionPayment(ctx, p.ID, p.Status, to, db.PaymentPatch{})
}

// MarkRefunded: администратор вернул деньги вручную.
func (s *Service) MarkRefunded(ctx context.Context, paymentID string) (*db.Payment, error) {
	p, err := s.store.TransitionPayment(ctx, paymentID, db.PaymentRefundPending, db.PaymentRefunded, db.PaymentPatch{})
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrNoPayment
	}
	return p, err
}

func (s *Service) RefundsPending(ctx context.Context) ([]db.Payment, error) {
	return s.store.PaymentsByStatus(ctx, db.PaymentRefundPending)
}

func (s *Service) Get(ctx context.Context, id string) (*db.Payment, error) {
	p, err := s.store.GetPayment(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrNoPayment
	}
	return p, err
}
