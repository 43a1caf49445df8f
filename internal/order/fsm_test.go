package order

import (
	"errors"
	"freelance-market-bot/internal/db"
	"testing"
)

var allStatuses = []db.OrderStatus{
	db.StatusPending,
	db.StatusAcceptedWaitingPayment,
	db.StatusWaitingPayment,
	db.StatusPaymentConfirmed,
	db.StatusInWork,
	db.StatusOnReview,
	db.StatusCompleted,
	db.StatusCancelled,
	db.StatusDispute,
	db.StatusExecutorDeclinedPaid,
}

var allEvents = []Event{
	EventAccept, EventCancel, EventSendInvoice, EventConfirmPayment, EventDeclinePaid,
	EventStartWork, EventSubmit, EventAcceptWork, EventRequestRevision, EventOpenDispute, EventResumeWork,
}

func TestNextValidEdges(t *testing.T) {
	tests := []struct {
		from  db.OrderStatus
		event Event
		actor Actor
		want  db.OrderStatus
	}{
		{db.StatusPending, EventAccept, ActorExecutor, db.StatusAcceptedWaitingPayment},
		{db.StatusAcceptedWaitingPayment, EventConfirmPayment, ActorCustomer, db.StatusPaymentConfirmed},
		{db.StatusWaitingPayment, EventConfirmPayment, ActorSystem, db.StatusPaymentConfirmed},
		{db.StatusAcceptedWaitingPayment, EventSendInvoice, ActorSystem, db.StatusWaitingPayment},
		{db.StatusPaymentConfirmed, EventStartWork, ActorExecutor, db.StatusInWork},
		{db.StatusInWork, EventSubmit, ActorExecutor, db.StatusOnReview},
		{db.StatusOnReview, EventAcceptWork, ActorCustomer, db.StatusCompleted},
		{db.StatusOnReview, EventRequestRevision, ActorCustomer, db.StatusInWork},
		{db.StatusPaymentConfirmed, EventDeclinePaid, ActorExecutor, db.StatusExecutorDeclinedPaid},
		{db.StatusAcceptedWaitingPayment, EventDeclinePaid, ActorExecutor, db.StatusExecutorDeclinedPaid},
		{db.StatusInWork, EventOpenDispute, ActorExecutor, db.StatusDispute},
		{db.StatusDispute, EventResumeWork, ActorAdmin, db.StatusInWork},
		{db.StatusDispute, EventCancel, ActorAdmin, db.StatusCancelled},
	}

	for _, tt := range tests {
		got, err := Next(tt.from, tt.event, tt.actor)
		if err != nil {
			t.Errorf("Next(%s, %s, %s): %v", tt.from, tt.event, tt.actor, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Next(%s, %s) = %s, ожидалось %s", tt.from, tt.event, got, tt.want)
		}
	}
}

func TestNextRejectsWrongActor(t *testing.T) {
	tests := []struct {
		from  db.OrderStatus
		event Event
		actor Actor
	}{
		{db.StatusPending, EventAccept, ActorCustomer},
		{db.StatusOnReview, EventAcceptWork, ActorExecutor},
		{db.StatusDispute, EventResumeWork, ActorCustomer},
		{db.StatusPaymentConfirmed, EventStartWork, ActorSystem},
	}
	for _, tt := range tests {
		if _, err := Next(tt.from, tt.event, tt.actor); !errors.Is(err, ErrAccessDenied) {
			t.Errorf("Next(%s, %s, %s): ожидался ErrAccessDenied, получено %v", tt.from, tt.event, tt.actor, err)
		}
	}
}

func TestNoShortcuts(t *testing.T) {
	_, err := Next(db.StatusPending, EventAcceptWork, ActorCustomer)
	var te *TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("pending -> completed должно быть запрещено, получено %v", err)
	}
	if te.From != db.StatusPending || te.Event != EventAcceptWork {
		t.Errorf("TransitionError = %+v", te)
	}
}

func TestTerminalStatusesHaveNoEdges(t *testing.T) {
	for _, st := range allStatuses {
		if !Terminal(st) {
			continue
		}
		for _, ev := range allEvents {
			for _, a := range []Actor{ActorCustomer, ActorExecutor, ActorAdmin, ActorSystem} {
				if to, err := Next(st, ev, a); err == nil {
					t.Errorf("из терминального %s событие %s привело в %s", st, ev, to)
				}
			}
		}
	}
}

func TestEveryEdgeLeadsToKnownStatus(t *testing.T) {
	known := map[db.OrderStatus]bool{}
	for _, st := range allStatuses {
		known[st] = true
	}
	for e, r := range transitions {
		if !known[e.from] || !known[r.to] {
			t.Errorf("неизвестный статус в переходе %s --%s--> %s", e.from, e.event, r.to)
		}
		if len(r.actors) == 0 {
			t.Errorf("у перехода %s --%s--> нет участников", e.from, e.event)
		}
	}
}
