package dynamostore

import (
	"freelance-market-bot/internal/db"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/shopspring/decimal"
	"time"
)

// Деньги хранятся как N, чтобы ADD и сравнения в условиях работали на стороне DynamoDB.
func number(d decimal.Decimal) attributevalue.Number {
	return attributevalue.Number(d.String())
}

func fromNumber(n attributevalue.Number) decimal.Decimal {
	if n == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(string(n))
	if err != nil {
		return decimal.Zero
	}
	return d
}

type userItem struct {
	Username        string                `dynamodbav:"username"`
	PasswordHash    string                `dynamodbav:"password_hash"`
	Role            string                `dynamodbav:"role"`
	ChatID          *int64                `dynamodbav:"chat_id,omitempty"`
	Balance         attributevalue.Number `dynamodbav:"balance"`
	Rating          int                   `dynamodbav:"rating"`
	CompletedOrders int                   `dynamodbav:"completed_orders"`
	Status          string                `dynamodbav:"status"`
	CreatedAt       time.Time             `dynamodbav:"created_at"`
}

func toUserItem(u *db.User) userItem {
	return userItem{
		Username:        u.Username,
		PasswordHash:    u.PasswordHash,
		Role:            string(u.Role),
		ChatID:          u.ChatID,
		Balance:         number(u.Balance),
		Rating:          u.Rating,
		CompletedOrders: u.CompletedOrders,
		Status:          u.Status,
		CreatedAt:       u.CreatedAt,
	}
}

func (it userItem) user() db.User {
	return db.User{
		Username:        it.Username,
		PasswordHash:    it.PasswordHash,
		Role:            db.Role(it.Role),
		ChatID:          it.ChatID,
		Balance:         fromNumber(it.Balance),
		Rating:          it.Rating,
		CompletedOrders: it.CompletedOrders,
		Status:          it.Status,
		CreatedAt:       it.CreatedAt,
	}
}

// Пустые строки в ключах GSI недопустимы, поэтому индексируемые поля omitempty.
type orderItem struct {
	ID               string                `dynamodbav:"id"`
	Title            string                `dynamodbav:"title"`
	Description      string                `dynamodbav:"description"`
	DeadlineText     string                `dynamodbav:"deadline_text"`
	Amount           attributevalue.Number `dynamodbav:"amount"`
	CustomerUsername string                `dynamodbav:"customer_username,omitempty"`
	CustomerChatID   int64                 `dynamodbav:"customer_chat_id"`
	ExecutorUsername string                `dynamodbav:"executor_username,omitempty"`
	ExecutorChatID   int64                 `dynamodbav:"executor_chat_id"`
	OfferedTo        string                `dynamodbav:"offered_to,omitempty"`
	DeclinedBy       []string              `dynamodbav:"declined_by"`
	Status           string                `dynamodbav:"status"`
	RevisionCount    int                   `dynamodbav:"revision_count"`
	DeadlineAt       *time.Time            `dynamodbav:"deadline_at,omitempty"`
	DeadlineNotified bool                  `dynamodbav:"deadline_notified"`
	OverdueNotified  bool                  `dynamodbav:"overdue_notified"`
	CreatedAt        time.Time             `dynamodbav:"created_at"`
	UpdatedAt        time.Time             `dynamodbav:"updated_at"`
	AcceptedAt       *time.Time            `dynamodbav:"accepted_at,omitempty"`
	PaidAt           *time.Time            `dynamodbav:"paid_at,omitempty"`
	StartedAt        *time.Time            `dynamodbav:"started_at,omitempty"`
	SubmittedAt      *time.Time            `dynamodbav:"submitted_at,omitempty"`
	CompletedAt      *time.Time            `dynamodbav:"completed_at,omitempty"`
	ActivePaymentID  string                `dynamodbav:"active_payment_id,omitempty"`
}

func toOrderItem(o *db.Order) orderItem {
	return orderItem{
		ID:               o.ID,
		Title:            o.Title,
		Description:      o.Description,
		DeadlineText:     o.DeadlineText,
		Amount:           number(o.Amount),
		CustomerUsername: o.CustomerUsername,
		CustomerChatID:   o.CustomerChatID,
		ExecutorUsername: o.ExecutorUsername,
		ExecutorChatID:   o.ExecutorChatID,
		OfferedTo:        o.OfferedTo,
		DeclinedBy:       o.DeclinedBy,
		Status:           string(o.Status),
		RevisionCount:    o.RevisionCount,
		DeadlineAt:       o.DeadlineAt,
		DeadlineNotified: o.DeadlineNotified,
		OverdueNotified:  o.OverdueNotified,
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
		AcceptedAt:       o.AcceptedAt,
		PaidAt:           o.PaidAt,
		StartedAt:        o.StartedAt,
		SubmittedAt:      o.SubmittedAt,
		CompletedAt:      o.CompletedAt,
	}
}

func (it orderItem) order() db.Order {
	return db.Order{
		ID:               it.ID,
		Title:            it.Title,
		Description:      it.Description,
		DeadlineText:     it.DeadlineText,
		Amount:           fromNumber(it.Amount),
		CustomerUsername: it.CustomerUsername,
		CustomerChatID:   it.CustomerChatID,
		ExecutorUsername: it.ExecutorUsername,
		ExecutorChatID:   it.ExecutorChatID,
		OfferedTo:        it.OfferedTo,
		DeclinedBy:       it.DeclinedBy,
		Status:           db.OrderStatus(it.Status),
		RevisionCount:    it.RevisionCount,
		DeadlineAt:       it.DeadlineAt,
		DeadlineNotified: it.DeadlineNotified,
		OverdueNotified:  it.OverdueNotified,
		CreatedAt:        it.CreatedAt,
		UpdatedAt:        it.UpdatedAt,
		AcceptedAt:       it.AcceptedAt,
		PaidAt:           it.PaidAt,
		StartedAt:        it.StartedAt,
		SubmittedAt:      it.SubmittedAt,
		CompletedAt:      it.CompletedAt,
	}
}

type messageItem struct {
	ID        string    `dynamodbav:"id"`
	OrderID   string    `dynamodbav:"order_id"`
	Username  string    `dynamodbav:"username"`
	UserRole  string    `dynamodbav:"user_role"`
	Text      string    `dynamodbav:"text"`
	Delivered bool      `dynamodbav:"delivered"`
	CreatedAt time.Time `dynamodbav:"created_at"`
}

type paymentItem struct {
	ID               string                `dynamodbav:"id"`
	OrderID          string                `dynamodbav:"order_id"`
	UserChatID       int64                 `dynamodbav:"user_id"`
	CustomerUsername string                `dynamodbav:"customer_username"`
	Amount           attributevalue.Number `dynamodbav:"amount"`
	Description      string                `dynamodbav:"description"`
	Status           string                `dynamodbav:"status"`
	OperationID      string                `dynamodbav:"operation_id,omitempty"`
	CreatedAt        time.Time             `dynamodbav:"created_at"`
	ExpiresAt        time.Time             `dynamodbav:"expires_at"`
	PaidAt           *time.Time            `dynamodbav:"paid_at,omitempty"`
}

func toPaymentItem(p *db.Payment) paymentItem {
	return paymentItem{
		ID:               p.ID,
		OrderID:          p.OrderID,
		UserChatID:       p.UserChatID,
		CustomerUsername: p.CustomerUsername,
		Amount:           number(p.Amount),
		Description:      p.Description,
		Status:           string(p.Status),
		OperationID:      p.OperationID,
		CreatedAt:        p.CreatedAt,
		ExpiresAt:        p.ExpiresAt,
		PaidAt:           p.PaidAt,
	}
}

func (it paymentItem) payment() db.Payment {
	return db.Payment{
		ID:               it.ID,
		OrderID:          it.OrderID,
		UserChatID:       it.UserChatID,
		CustomerUsername: it.CustomerUsername,
		Amount:           fromNumber(it.Amount),
		Description:      it.Description,
		Status:           db.PaymentStatus(it.Status),
		OperationID:      it.OperationID,
		CreatedAt:        it.CreatedAt,
		ExpiresAt:        it.ExpiresAt,
		PaidAt:           it.PaidAt,
	}
}

type portfolioItem struct {
	ID          string    `dynamodbav:"id"`
	Category    string    `dynamodbav:"category"`
	Title       string    `dynamodbav:"title"`
	Description string    `dynamodbav:"description"`
	Images      []string  `dynamodbav:"images"`
	Links       []string  `dynamodbav:"links"`
	CreatedAt   time.Time `dynamodbav:"created_at"`
}

type stateItem struct {
	ChatID    int64     `dynamodbav:"chat_id"`
	Kind      string    `dynamodbav:"kind"`
	Payload   string    `dynamodbav:"payload"`
	UpdatedAt time.Time `dynamodbav:"updated_at"`
}

type withdrawalItem struct {
	ID          string                `dynamodbav:"id"`
	Username    string                `dynamodbav:"username"`
	Amount      attributevalue.Number `dynamodbav:"amount"`
	Status      string                `dynamodbav:"status"`
	CreatedAt   time.Time             `dynamodbav:"created_at"`
	ProcessedAt *time.Time            `dynamodbav:"processed_at,omitempty"`
}

func (it withdrawalItem) withdrawal() db.Withdrawal {
	return db.Withdrawal{
		ID:          it.ID,
		Username:    it.Username,
		Amount:      fromNumber(it.Amount),
		Status:      db.WithdrawalStatus(it.Status),
		CreatedAt:   it.CreatedAt,
		ProcessedAt: it.ProcessedAt,
	}
}
