package ledger

import (
	"context"
	"errors"
	"fmt"
	"freelance-market-bot/internal/db"
	"freelance-market-bot/internal/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"strings"
	"time"
)

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrBelowMinimum      = errors.New("amount below minimum withdrawal")
	ErrInsufficientFunds = db.ErrInsufficientFunds
)

type Store interface {
	db.Users
	db.Withdrawals
}

// Ledger: балансы исполнителей. Все изменения атомарны на стороне хранилища.
type Ledger struct {
	store         Store
	minWithdrawal decimal.Decimal
}

func New(store Store, minWithdrawal decimal.Decimal) *Ledger {
	return &Ledger{store: store, minWithdrawal: minWithdrawal}
}

func (l *Ledger) MinWithdrawal() decimal.Decimal {
	return l.minWithdrawal
}

// ParseAmount принимает «15 000», «1500,50», «2000 руб».
func ParseAmount(text string) (decimal.Decimal, error) {
	s := strings.ToLower(strings.TrimSpace(text))
	s = strings.TrimSuffix(s, "₽")
	s = strings.TrimSuffix(s, "руб.")
	s = strings.TrimSuffix(s, "руб")
	s = strings.NewReplacer(" ", "", "\u00a0", "", ",", ".").Replace(s)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

func (l *Ledger) Balance(ctx context.Context, username string) (decimal.Decimal, error) {
	u, err := l.store.GetUser(ctx, username)
	if err != nil {
		return decimal.Zero, err
	}
	return u.Balance, nil
}

// Credit начисляет исполнителю оплату заказа.
func (l *Ledger) Credit(ctx context.Context, username string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return l.Adjust(ctx, username, amount)
}

// Adjust прибавляет delta. Отрицательная delta списывается только при достаточном балансе.
func (l *Ledger) Adjust(ctx context.Context, username string, delta decimal.Decimal) (decimal.Decimal, error) {
	var (
		bal decimal.Decimal
		err error
	)
	if delta.IsNegative() {
		bal, err = l.store.WithdrawBalance(ctx, username, delta.Neg())
	} else {
		bal, err = l.store.AddBalance(ctx, username, delta)
	}
	if err != nil {
		return decimal.Zero, err
	}
	logger.Info("Balance adjusted",
		zap.String("username", username),
		zap.String("delta", delta.String()),
		zap.String("balance", bal.String()))
	return bal, nil
}

// SetBalance: ручная установка баланса администратором.
func (l *Ledger) SetBalance(ctx context.Context, username string, balance decimal.Decimal) error {
	if balance.IsNegative() {
		return ErrInvalidAmount
	}
	return l.store.SetBalance(ctx, username, balance)
}

// RequestWithdrawal списывает сумму сразу и создаёт заявку на выплату.
// Частичных выводов нет: либо вся сумма, либо отказ.
func (l *Ledger) RequestWithdrawal(ctx context.Context, username string, amount decimal.Decimal) (*db.Withdrawal, decimal.Decimal, error) {
	if !amount.IsPositive() {
		return nil, decimal.Zero, ErrInvalidAmount
	}
	if amount.LessThan(l.minWithdrawal) {
		return nil, decimal.Zero, ErrBelowMinimum
	}
	bal, err := l.store.WithdrawBalance(ctx, username, amount)
	if err != nil {
		return nil, decimal.Zero, err
	}
	w := &db.Withdrawal{
		ID:        uuid.NewString(),
		Username:  username,
		Amount:    amount,
		Status:    db.WithdrawalRequested,
		CreatedAt: time.Now(),
	}
	if err := l.store.CreateWithdrawal(ctx, w); err != nil {
		if _, rerr := l.store.AddBalance(ctx, username, amount); rerr != nil {
			logger.Error("Failed to restore balance after withdrawal error",
				zap.String("username", username), zap.String("amount", amount.String()), zap.Error(rerr))
			logger.NotifyAdmin(fmt.Sprintf("Не удалось вернуть %s руб. исполнителю %s: %v", amount.StringFixed(2), username, rerr))
		}
		return nil, decimal.Zero, fmt.Errorf("create withdrawal: %w", err)
	}
	logger.Info("Withdrawal requested", zap.String("username", username), zap.String("amount", amount.String()))
	return w, bal, nil
}

// ProcessWithdrawal: решение администратора по заявке. Отклонённая сумма возвращается на баланс.
func (l *Ledger) ProcessWithdrawal(ctx context.Context, id string, approve bool) (*db.Withdrawal, error) {
	to := db.WithdrawalPaid
	if !approve {
		to = db.WithdrawalRejected
	}
	w, err := l.store.TransitionWithdrawal(ctx, id, db.WithdrawalRequested, to, time.Now())
	if err != nil {
		return nil, err
	}
	if !approve {
		if _, err := l.store.AddBalance(ctx, w.Username, w.Amount); err != nil {
			return w, fmt.Errorf("refund withdrawal: %w", err)
		}
	}
	return w, nil
}

func (l *Ledger) Pending(ctx context.Context) ([]db.Withdrawal, error) {
	return l.store.WithdrawalsByStatus(ctx, db.WithdrawalRequested)
}
