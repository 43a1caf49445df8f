package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"github.com/shopspring/decimal"
	"time"
)

type Role string

const (
	RoleClient     Role = "client"
	RoleContractor Role = "contractor"
	RoleAdmin      Role = "admin"
)

const (
	DefaultRating     = 10
	UserStatusActive  = "active"
	UserStatusBlocked = "blocked"
)

// User: заказчик или исполнитель. Баланс и рейтинг имеют смысл только для исполнителя.
type User struct {
	Username        string          `gorm:"primaryKey;size:64" json:"username"`
	PasswordHash    string          `json:"password_hash"`
	Role            Role            `gorm:"index;size:16" json:"role"`
	ChatID          *int64          `gorm:"index" json:"chat_id,omitempty"`
	Balance         decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0" json:"balance"`
	Rating          int             `gorm:"not null;default:10" json:"rating"`
	CompletedOrders int             `json:"completed_orders"`
	Status          string          `gorm:"size:16" json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
}

type OrderStatus string

const (
	StatusPending                OrderStatus = "pending"
	StatusAcceptedWaitingPayment OrderStatus = "accepted_waiting_payment"
	StatusWaitingPayment         OrderStatus = "waiting_payment"
	StatusPaymentConfirmed       OrderStatus = "payment_confirmed"
	StatusInWork                 OrderStatus = "in_work"
	StatusOnReview               OrderStatus = "on_review"
	StatusCompleted              OrderStatus = "completed"
	StatusCancelled              OrderStatus = "cancelled"
	StatusDispute                OrderStatus = "dispute"
	StatusExecutorDeclinedPaid   OrderStatus = "executor_declined_paid"
)

var statusTitles = map[OrderStatus]string{
	StatusPending:                "⏳ Ожидает исполнителя",
	StatusAcceptedWaitingPayment: "💳 Принят, ожидает оплаты",
	StatusWaitingPayment:         "💳 Ожидает оплаты",
	StatusPaymentConfirmed:       "✅ Оплата подтверждена",
	StatusInWork:                 "🛠 В работе",
	StatusOnReview:               "🔍 На проверке",
	StatusCompleted:              "🏁 Завершён",
	StatusCancelled:              "❌ Отменён",
	StatusDispute:                "⚖️ Спор",
	StatusExecutorDeclinedPaid:   "↩️ Исполнитель отказался",
}

// Title: подпись статуса для пользователя.
func (s OrderStatus) Title() string {
	if t, ok := statusTitles[s]; ok {
		return t
	}
	return string(s)
}

// Order: заказ. Исполнитель пуст, пока заказ никто не принял.
type Order struct {
	ID               string          `gorm:"primaryKey;size:36" json:"id"`
	Title            string          `json:"title"`
	Description      string          `json:"description"`
	DeadlineText     string          `json:"deadline_text"`
	Amount           decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
	CustomerUsername string          `gorm:"index;size:64" json:"customer_username"`
	CustomerChatID   int64           `json:"customer_chat_id"`
	ExecutorUsername string          `gorm:"index;size:64" json:"executor_username"`
	ExecutorChatID   int64           `json:"executor_chat_id"`
	OfferedTo        string          `gorm:"index;size:64" json:"offered_to"`
	DeclinedBy       StringList      `gorm:"type:text" json:"declined_by"`
	Status           OrderStatus     `gorm:"index;size:32" json:"status"`
	RevisionCount    int             `json:"revision_count"`
	DeadlineAt       *time.Time      `json:"deadline_at,omitempty"`
	DeadlineNotified bool            `gorm:"default:false" json:"deadline_notified"`
	OverdueNotified  bool            `gorm:"default:false" json:"overdue_notified"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	AcceptedAt       *time.Time      `json:"accepted_at,omitempty"`
	PaidAt           *time.Time      `json:"paid_at,omitempty"`
	StartedAt        *time.Time      `json:"started_at,omitempty"`
	SubmittedAt      *time.Time      `json:"submitted_at,omitempty"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
}

// ShortID: первые 8 символов id для сообщений.
func (o Order) ShortID() string {
	if len(o.ID) > 8 {
		return o.ID[:8]
	}
	return o.ID
}

// Message: запись журнала чата по заказу, только добавление.
type Message struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	OrderID   string    `gorm:"index;size:36" json:"order_id"`
	Username  string    `gorm:"size:64" json:"username"`
	UserRole  Role      `gorm:"size:16" json:"user_role"`
	Text      string    `json:"text"`
	Delivered bool      `json:"delivered"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

type PaymentStatus string

const (
	PaymentPending         PaymentStatus = "pending"
	PaymentClientConfirmed PaymentStatus = "client_confirmed"
	PaymentVerified        PaymentStatus = "verified"
	PaymentExpired         PaymentStatus = "expired"
	PaymentRefundPending   PaymentStatus = "refund_pending"
	PaymentRefunded        PaymentStatus = "refunded"
)

// Active: платёж, который блокирует создание нового платежа по тому же заказу.
func (s PaymentStatus) Active() bool {
	return s == PaymentPending || s == PaymentClientConfirmed || s == PaymentVerified
}

type Payment struct {
	ID               string          `gorm:"primaryKey;size:36" json:"id"`
	OrderID          string          `gorm:"index;size:36" json:"order_id"`
	UserChatID       int64           `gorm:"index" json:"user_id"`
	CustomerUsername string          `gorm:"size:64" json:"customer_username"`
	Amount           decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
	Description      string          `json:"description"`
	Status           PaymentStatus   `gorm:"index;size:24" json:"status"`
	OperationID      string          `gorm:"size:64" json:"operation_id,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	ExpiresAt        time.Time       `gorm:"index" json:"expires_at"`
	PaidAt           *time.Time      `json:"paid_at,omitempty"`
}

const (
	CategorySites = "sites"
	CategoryVideo = "video"
)

// PortfolioItem: статичный маркетинговый контент раздела «Наши работы».
type PortfolioItem struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	Category    string     `gorm:"index;size:16" json:"category"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Images      StringList `gorm:"type:text" json:"images"`
	Links       StringList `gorm:"type:text" json:"links"`
	CreatedAt   time.Time  `json:"created_at"`
}

// UserState: сохранённое ожидание ввода. Payload хранит JSON конкретного состояния.
type UserState struct {
	ChatID    int64     `gorm:"primaryKey;autoIncrement:false" json:"chat_id"`
	Kind      string    `gorm:"size:48" json:"kind"`
	Payload   string    `json:"payload"`
	UpdatedAt time.Time `json:"updated_at"`
}

type WithdrawalStatus string

const (
	WithdrawalRequested WithdrawalStatus = "requested"
	WithdrawalPaid      WithdrawalStatus = "paid"
	WithdrawalRejected  WithdrawalStatus = "rejected"
)

type Withdrawal struct {
	ID          string           `gorm:"primaryKey;size:36" json:"id"`
	Username    string           `gorm:"index;size:64" json:"username"`
	Amount      decimal.Decimal  `gorm:"type:numeric(14,2);not null" json:"amount"`
	Status      WithdrawalStatus `gorm:"index;size:16" json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	ProcessedAt *time.Time       `json:"processed_at,omitempty"`
}

// StringList хранится в SQL как JSON-массив в текстовой колонке.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *StringList) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("StringList: unsupported type %T", src)
	}
	if len(raw) == 0 {
		*l = nil
		return nil
	}
	return json.Unmarshal(raw, (*[]string)(l))
}

// Contains сообщает, есть ли s в списке.
func (l StringList) Contains(s string) bool {
	for _, v := range l {
		if v == s {
			return true
		}
	}
	return false
}
