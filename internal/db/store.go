package db

import (
	"context"
	"errors"
	"github.com/shopspring/decimal"
	"time"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrDuplicate         = errors.New("record already exists")
	ErrStatusConflict    = errors.New("status changed concurrently")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

type Users interface {
	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, username string) (*User, error)
	UserByChat(ctx context.Context, chatID int64, role Role) (*User, error)
	// BindChat привязывает чат к пользователю и отвязывает его от других пользователей той же роли.
	BindChat(ctx context.Context, username string, chatID int64) error
	UnbindChat(ctx context.Context, username string) error
	// ListUsers возвращает пользователей роли; исполнители по убыванию рейтинга.
	ListUsers(ctx context.Context, role Role) ([]User, error)
	SetRating(ctx context.Context, username string, rating int) error
	SetBalance(ctx context.Context, username string, balance decimal.Decimal) error
	// AddBalance атомарно прибавляет delta и возвращает новый баланс.
	AddBalance(ctx context.Context, username string, delta decimal.Decimal) (decimal.Decimal, error)
	// WithdrawBalance атомарно списывает amount, только если баланса хватает.
	WithdrawBalance(ctx context.Context, username string, amount decimal.Decimal) (decimal.Decimal, error)
	IncrementCompleted(ctx context.Context, username string) error
	DeleteUser(ctx context.Context, username string) error
}

type Orders interface {
	CreateOrder(ctx context.Context, o *Order) error
	GetOrder(ctx context.Context, id string) (*Order, error)
	// TransitionOrder меняет статус from -> to (compare-and-swap) и применяет patch.
	// Если текущий статус не from, возвращает ErrStatusConflict.
	TransitionOrder(ctx context.Context, id string, from, to OrderStatus, patch OrderPatch) (*Order, error)
	PatchOrder(ctx context.Context, id string, patch OrderPatch) error
	OrdersByCustomer(ctx context.Context, username string) ([]Order, error)
	// OrdersByExecutor: принятые исполнителем заказы и ожидающие предложения ему.
	OrdersByExecutor(ctx context.Context, username string) ([]Order, error)
	OrdersByStatus(ctx context.Context, statuses ...OrderStatus) ([]Order, error)
	ListOrders(ctx context.Context) ([]Order, error)
}

type Messages interface {
	AddMessage(ctx context.Context, m *Message) error
	// MarkDelivered отмечает, что сообщение дошло до собеседника.
	MarkDelivered(ctx context.Context, id string) error
	// MessagesByOrder возвращает журнал заказа по возрастанию времени.
	MessagesByOrder(ctx context.Context, orderID string) ([]Message, error)
}

type Payments interface {
	// CreatePayment возвращает ErrDuplicate, если у заказа уже есть активный платёж.
	CreatePayment(ctx context.Context, p *Payment) error
	GetPayment(ctx context.Context, id string) (*Payment, error)
	ActivePayment(ctx context.Context, orderID string) (*Payment, error)
	TransitionPayment(ctx context.Context, id string, from, to PaymentStatus, patch PaymentPatch) (*Payment, error)
	PaymentsByUser(ctx context.Context, chatID int64, status PaymentStatus) ([]Payment, error)
	PaymentsByStatus(ctx context.Context, status PaymentStatus) ([]Payment, error)
}

type Portfolio interface {
	AddPortfolioItem(ctx context.Context, item *PortfolioItem) error
	GetPortfolioItem(ctx context.Context, id string) (*PortfolioItem, error)
	PortfolioItems(ctx context.Context, category string) ([]PortfolioItem, error)
	DeletePortfolioItem(ctx context.Context, id string) error
}

type States interface {
	SaveState(ctx context.Context, st UserState) error
	LoadState(ctx context.Context, chatID int64) (*UserState, error)
	DeleteState(ctx context.Context, chatID int64) error
}

type Withdrawals interface {
	CreateWithdrawal(ctx context.Context, w *Withdrawal) error
	GetWithdrawal(ctx context.Context, id string) (*Withdrawal, error)
	TransitionWithdrawal(ctx context.Context, id string, from, to WithdrawalStatus, at time.Time) (*Withdrawal, error)
	WithdrawalsByStatus(ctx context.Context, status WithdrawalStatus) ([]Withdrawal, error)
}

// Store: всё хранилище целиком. Реализации: gormstore, dynamostore, jsonstore.
type Store interface {
	Users
	Orders
	Messages
	Payments
	Portfolio
	States
	Withdrawals
	Close() error
}

// OrderPatch: поля, меняемые вместе со статусом. nil не меняется.
type OrderPatch struct {
	ExecutorUsername *string
	ExecutorChatID   *int64
	OfferedTo        *string
	DeclinedBy       StringList
	RevisionCount    *int
	DeadlineAt       *time.Time
	DeadlineNotified *bool
	OverdueNotified  *bool
	AcceptedAt       *time.Time
	PaidAt           *time.Time
	StartedAt        *time.Time
	SubmittedAt      *time.Time
	CompletedAt      *time.Time
}

// Columns: patch в виде колонка -> значение (имена совпадают с атрибутами DynamoDB).
func (p OrderPatch) Columns() map[string]interface{} {
	cols := map[string]interface{}{}
	if p.ExecutorUsername != nil {
		cols["executor_username"] = *p.ExecutorUsername
	}
	if p.ExecutorChatID != nil {
		cols["executor_chat_id"] = *p.ExecutorChatID
	}
	if p.OfferedTo != nil {
		cols["offered_to"] = *p.OfferedTo
	}
	if p.DeclinedBy != nil {
		cols["declined_by"] = p.DeclinedBy
	}
	if p.RevisionCount != nil {
		cols["revision_count"] = *p.RevisionCount
	}
	if p.DeadlineAt != nil {
		cols["deadline_at"] = *p.DeadlineAt
	}
	if p.DeadlineNotified != nil {
		cols["deadline_notified"] = *p.DeadlineNotified
	}
	if p.OverdueNotified != nil {
		cols["overdue_notified"] = *p.OverdueNotified
	}
	if p.AcceptedAt != nil {
		cols["accepted_at"] = *p.AcceptedAt
	}
	if p.PaidAt != nil {
		cols["paid_at"] = *p.PaidAt
	}
	if p.StartedAt != nil {
		cols["started_at"] = *p.StartedAt
	}
	if p.SubmittedAt != nil {
		cols["submitted_at"] = *p.SubmittedAt
	}
	if p.CompletedAt != nil {
		cols["completed_at"] = *p.CompletedAt
	}
	return cols
}

// Apply применяет patch к заказу в памяти.
func (p OrderPatch) Apply(o *Order) {
	if p.ExecutorUsername != nil {
		o.ExecutorUsername = *p.ExecutorUsername
	}
	if p.ExecutorChatID != nil {
		o.ExecutorChatID = *p.ExecutorChatID
	}
	if p.OfferedTo != nil {
		o.OfferedTo = *p.OfferedTo
	}
	if p.DeclinedBy != nil {
		o.DeclinedBy = append([]string(nil), p.DeclinedBy...)
	}
	if p.RevisionCount != nil {
		o.RevisionCount = *p.RevisionCount
	}
	if p.DeadlineAt != nil {
		t := *p.DeadlineAt
		o.DeadlineAt = &t
	}
	if p.DeadlineNotified != nil {
		o.DeadlineNotified = *p.DeadlineNotified
	}
	if p.OverdueNotified != nil {
		o.OverdueNotified = *p.OverdueNotified
	}
	o.AcceptedAt = pickTime(p.AcceptedAt, o.AcceptedAt)
	o.PaidAt = pickTime(p.PaidAt, o.PaidAt)
	o.StartedAt = pickTime(p.StartedAt, o.StartedAt)
	o.SubmittedAt = pickTime(p.SubmittedAt, o.SubmittedAt)
	o.CompletedAt = pickTime(p.CompletedAt, o.CompletedAt)
}

type PaymentPatch struct {
	PaidAt      *time.Time
	OperationID *string
}

func (p PaymentPatch) Columns() map[string]interface{} {
	cols := map[string]interface{}{}
	if p.PaidAt != nil {
		cols["paid_at"] = *p.PaidAt
	}
	if p.OperationID != nil {
		cols["operation_id"] = *p.OperationID
	}
	return cols
}

func (p PaymentPatch) Apply(pay *Payment) {
	pay.PaidAt = pickTime(p.PaidAt, pay.PaidAt)
	if p.OperationID != nil {
		pay.OperationID = *p.OperationID
	}
}

func pickTime(patch, cur *time.Time) *time.Time {
	if patch == nil {
		return cur
	}
	t := *patch
	return &t
}

// Ptr: указатель на значение, для заполнения patch-структур.
func Ptr[T any](v T) *T {
	return &v
}
