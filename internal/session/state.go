package session

import (
	"encoding/json"
	"fmt"
	"freelance-market-bot/internal/db"
)

// Kind: имя ожидаемого ввода, под которым состояние хранится в user_states.
type Kind string

const (
	KindClientLoginUsername    Kind = "client_login_username"
	KindClientLoginPassword    Kind = "client_login_password"
	KindClientRegisterUsername Kind = "client_register_username"
	KindClientRegisterPassword Kind = "client_register_password"
	KindExecutorLoginUsername  Kind = "executor_login_username"
	KindExecutorLoginPassword  Kind = "executor_login_password"

	KindOrderDescription Kind = "order_description"
	KindOrderDeadline    Kind = "order_deadline"
	KindOrderBudget      Kind = "order_budget"

	KindInChat          Kind = "in_chat"
	KindRevisionComment Kind = "revision_comment"
	KindDisputeReason   Kind = "dispute_reason"
	KindWithdrawAmount  Kind = "withdraw_amount"

	KindAdminRegisterLogin    Kind = "admin_register_login"
	KindAdminRegisterPassword Kind = "admin_register_password"
	KindAdminRating           Kind = "admin_new_rating"
	KindAdminBalance          Kind = "admin_new_balance"
	KindAdminDeleteConfirm    Kind = "admin_delete_confirm"

	KindPortfolioTitle       Kind = "portfolio_title"
	KindPortfolioDescription Kind = "portfolio_description"
	KindPortfolioImages      Kind = "portfolio_images"
	KindPortfolioLinks       Kind = "portfolio_links"
)

// State: одно из состояний ожидания ввода. Каждое несёт уже собранные данные.
type State interface {
	Kind() Kind
}

type ClientLoginUsername struct{}
type ClientLoginPassword struct{ Username string }
type ClientRegisterUsername struct{}
type ClientRegisterPassword struct{ Username string }
type ExecutorLoginUsername struct{}
type ExecutorLoginPassword struct{ Username string }

type OrderDescription struct{}
type OrderDeadline struct{ Description string }
type OrderBudget struct {
	Description string
	Deadline    string
}

// InChat: сообщения пересылаются второй стороне заказа, пока пользователь не выйдет из чата.
// Role: под какой ролью пользователь открыл чат.
type InChat struct {
	OrderID string
	Role    db.Role
}
type RevisionComment struct{ OrderID string }
type DisputeReason struct{ OrderID string }
type WithdrawAmount struct{ Username string }

type AdminRegisterLogin struct{}
type AdminRegisterPassword struct{ Login string }
type AdminRating struct{ Login string }
type AdminBalance struct{ Login string }
type AdminDeleteConfirm struct{ Login string }

type PortfolioTitle struct{ Category string }
type PortfolioDescription struct {
	Category string
	Title    string
}
type PortfolioImages struct {
	Category    string
	Title       string
	Description string
	Images      []string
}
type PortfolioLinks struct {
	Category    string
	Title       string
	Description string
	Images      []string
}

func (ClientLoginUsername) Kind() Kind    { return KindClientLoginUsername }
func (ClientLoginPassword) Kind() Kind    { return KindClientLoginPassword }
func (ClientRegisterUsername) Kind() Kind { return KindClientRegisterUsername }
func (ClientRegisterPassword) Kind() Kind { return KindClientRegisterPassword }
func (ExecutorLoginUsername) Kind() Kind  { return KindExecutorLoginUsername }
func (ExecutorLoginPassword) Kind() Kind  { return KindExecutorLoginPassword }
func (OrderDescription) Kind() Kind       { return KindOrderDescription }
func (OrderDeadline) Kind() Kind          { return KindOrderDeadline }
func (OrderBudget) Kind() Kind            { return KindOrderBudget }
func (InChat) Kind() Kind                 { return KindInChat }
func (RevisionComment) Kind() Kind        { return KindRevisionComment }
func (DisputeReason) Kind() Kind          { return KindDisputeReason }
func (WithdrawAmount) Kind() Kind         { return KindWithdrawAmount }
func (AdminRegisterLogin) Kind() Kind     { return KindAdminRegisterLogin }
func (AdminRegisterPassword) Kind() Kind  { return KindAdminRegisterPassword }
func (AdminRating) Kind() Kind            { return KindAdminRating }
func (AdminBalance) Kind() Kind           { return KindAdminBalance }
func (AdminDeleteConfirm) Kind() Kind     { return KindAdminDeleteConfirm }
func (PortfolioTitle) Kind() Kind         { return KindPortfolioTitle }
func (PortfolioDescription) Kind() Kind   { return KindPortfolioDescription }
func (PortfolioImages) Kind() Kind        { return KindPortfolioImages }
func (PortfolioLinks) Kind() Kind         { return KindPortfolioLinks }

type decoder func(payload string) (State, error)

func decodeAs[T State](payload string) (State, error) {
	var s T
	if payload != "" {
		if err := json.Unmarshal([]byte(payload), &s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

var decoders = map[Kind]decoder{
	KindClientLoginUsername:    decodeAs[ClientLoginUsername],
	KindClientLoginPassword:    decodeAs[ClientLoginPassword],
	KindClientRegisterUsername: decodeAs[ClientRegisterUsername],
	KindClientRegisterPassword: decodeAs[ClientRegisterPassword],
	KindExecutorLoginUsername:  decodeAs[ExecutorLoginUsername],
	KindExecutorLoginPassword:  decodeAs[ExecutorLoginPassword],
	KindOrderDescription:       decodeAs[OrderDescription],
	KindOrderDeadline:          decodeAs[OrderDeadline],
	KindOrderBudget:            decodeAs[OrderBudget],
	KindInChat:                 decodeAs[InChat],
	KindRevisionComment:        decodeAs[RevisionComment],
	KindDisputeReason:          decodeAs[DisputeReason],
	KindWithdrawAmount:         decodeAs[WithdrawAmount],
	KindAdminRegisterLogin:     decodeAs[AdminRegisterLogin],
	KindAdminRegisterPassword:  decodeAs[AdminRegisterPassword],
	KindAdminRating:            decodeAs[AdminRating],
	KindAdminBalance:           decodeAs[AdminBalance],
	KindAdminDeleteConfirm:     decodeAs[AdminDeleteConfirm],
	KindPortfolioTitle:         decodeAs[PortfolioTitle],
	KindPortfolioDescription:   decodeAs[PortfolioDescription],
	KindPortfolioImages:        decodeAs[PortfolioImages],
	KindPortfolioLinks:         decodeAs[PortfolioLinks],
}

// Encode превращает состояние в пару (kind, payload) для user_states.
func Encode(s State) (Kind, string, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return "", "", err
	}
	return s.Kind(), string(raw), nil
}

// Decode восстанавливает состояние. Неизвестный kind возвращает ошибку.
func Decode(kind Kind, payload string) (State, error) {
	dec, ok := decoders[kind]
	if !ok {
		return nil, fmt.Errorf("session: unknown state kind %q", kind)
	}
	return dec(payload)
}
