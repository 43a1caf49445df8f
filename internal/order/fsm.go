package order

import (
	"errors"
	"fmt"
	"freelance-market-bot/internal/db"
)

type Event string

const (
	EventAccept          Event = "accept"
	EventCancel          Event = "cancel"
	EventSendInvoice     Event = "send_invoice"
	EventConfirmPayment  Event = "confirm_payment"
	EventDeclinePaid     Event = "decline_paid"
	EventStartWork       Event = "start_work"
	EventSubmit          Event = "submit"
	EventAcceptWork      Event = "accept_work"
	EventRequestRevision Event = "request_revision"
	EventOpenDispute     Event = "open_dispute"
	EventResumeWork      Event = "resume_work"
)

type Actor string

const (
	ActorCustomer Actor = "customer"
	ActorExecutor Actor = "executor"
	ActorAdmin    Actor = "admin"
	ActorSystem   Actor = "system"
)

var (
	ErrAccessDenied = errors.New("access denied")
	ErrNotFound     = errors.New("order not found")
	ErrNoExecutors  = errors.New("no executors available")
	// исполнителя заказа уже нет, зачислять оплату некому
	ErrExecutorGone = errors.New("order executor no longer exists")
)

// TransitionError: событие не допустимо из текущего статуса.
type TransitionError struct {
	From  db.OrderStatus
	Event Event
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("order: event %q is not allowed in status %q", e.Event, e.From)
}

type edge struct {
	from  db.OrderStatus
	event Event
}

type rule struct {
	to     db.OrderStatus
	actors []Actor
}

var transitions = map[edge]rule{
	{db.StatusPending, EventAccept}: {db.StatusAcceptedWaitingPayment, []Actor{ActorExecutor}},
	{db.StatusPending, EventCancel}: {db.StatusCancelled, []Actor{ActorCustomer, ActorSystem}},

	{db.StatusAcceptedWaitingPayment, EventSendInvoice}:    {db.StatusWaitingPayment, []Actor{ActorSystem}},
	{db.StatusAcceptedWaitingPayment, EventConfirmPayment}: {db.StatusPaymentConfirmed, []Actor{ActorCustomer, ActorSystem}},
	{db.StatusWaitingPayment, EventConfirmPayment}:         {db.StatusPaymentConfirmed, []Actor{ActorCustomer, ActorSystem}},
	{db.StatusAcceptedWaitingPayment, EventCancel}:         {db.StatusCancelled, []Actor{ActorCustomer}},
	{db.StatusWaitingPayment, EventCancel}:                 {db.StatusCancelled, []Actor{ActorCustomer}},

	{db.StatusAcceptedWaitingPayment, EventDeclinePaid}: {db.StatusExecutorDeclinedPaid, []Actor{ActorExecutor}},
	{db.StatusWaitingPayment, EventDeclinePaid}:         {db.StatusExecutorDeclinedPaid, []Actor{ActorExecutor}},
	{db.StatusPaymentConfirmed, EventDeclinePaid}:       {db.StatusExecutorDeclinedPaid, []Actor{ActorExecutor}},

	{db.StatusPaymentConfirmed, EventStartWork}: {db.StatusInWork, []Actor{ActorExecutor}},
	{db.StatusInWork, EventSubmit}:              {db.StatusOnReview, []Actor{ActorExecutor}},
	{db.StatusOnReview, EventAcceptWork}:        {db.StatusCompleted, []Actor{ActorCustomer}},
	{db.StatusOnReview, EventRequestRevision}:   {db.StatusInWork, []Actor{ActorCustomer}},

	{db.StatusInWork, EventOpenDispute}:   {db.StatusDispute, []Actor{ActorCustomer, ActorExecutor}},
	{db.StatusOnReview, EventOpenDispute}: {db.StatusDispute, []Actor{ActorCustomer, ActorExecutor}},
	{db.StatusDispute, EventResumeWork}:   {db.StatusInWork, []Actor{ActorAdmin}},
	{db.StatusDispute, EventCancel}:       {db.StatusCancelled, []Actor{ActorAdmin}},
}

// Next возвращает статус после события. Неизвестная пара (статус, событие) даёт
// *TransitionError, для недопустимого участника ErrAccessDenied.
func Next(from db.OrderStatus, ev Event, actor Actor) (db.OrderStatus, error) {
	r, ok := transitions[edge{from, ev}]
	if !ok {
		return "", &TransitionError{From: from, Event: ev}
	}
	for _, a := range r.actors {
		if a == actor {
			return r.to, nil
		}
	}
	return "", ErrAccessDenied
}

// Terminal: из статуса нет переходов.
func Terminal(s db.OrderStatus) bool {
	return s == db.StatusCompleted || s == db.StatusCancelled || s == db.StatusExecutorDeclinedPaid
}

// Active: заказ ещё в работе (для статистики и напоминаний).
func Active(s db.OrderStatus) bool {
	return s == db.StatusInWork || s == db.StatusPending || s == db.StatusWaitingPayment
}
