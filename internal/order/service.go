package order

import (
	"context"
	"errors"
	"fmt"
	"freelance-market-bot/internal/db"
	"freelance-market-bot/internal/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"time"
)

// Crediter зачисляет исполнителю оплату за принятую работу.
type Crediter interface {
	Credit(ctx context.Context, username string, amount decimal.Decimal) (decimal.Decimal, error)
}

type Service struct {
	store  db.Store
	ledger Crediter
	now    func() time.Time
}

func NewService(store db.Store, ledger Crediter) *Service {
	return &Service{store: store, ledger: ledger, now: time.Now}
}

// Draft: данные нового заказа, собранные в диалоге с заказчиком.
type Draft struct {
	Description  string
	DeadlineText string
	Amount       decimal.Decimal
}

// Title: короткое название заказа из первой строки описания.
func (d Draft) Title() string {
	r := []rune(d.Description)
	for i, c := range r {
		if c == '\n' {
			r = r[:i]
			break
		}
	}
	if len(r) > 40 {
		return string(r[:40]) + "…"
	}
	return string(r)
}

func (s *Service) Get(ctx context.Context, id string) (*db.Order, error) {
	o, err := s.store.GetOrder(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrNotFound
	}
	return o, err
}

// Create сохраняет заказ в статусе pending и предлагает его исполнителю с наибольшим рейтингом.
func (s *Service) Create(ctx context.Context, customer *db.User, chatID int64, d Draft) (*db.Order, *db.User, error) {
	executor, err := s.pickExecutor(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	now := s.now()
	o := &db.Order{
		ID:               uuid.NewString(),
		Title:            d.Title(),
		Description:      d.Description,
		DeadlineText:     d.DeadlineText,
		Amount:           d.Amount,
		CustomerUsername: customer.Username,
		CustomerChatID:   chatID,
		OfferedTo:        executor.Username,
		Status:           db.StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.CreateOrder(ctx, o); err != nil {
		return nil, nil, fmt.Errorf("create order: %w", err)
	}
	logger.Info("Order created",
		zap.String("order_id", o.ID),
		zap.String("customer", customer.Username),
		zap.String("offered_to", executor.Username))
	return o, executor, nil
}

func (s *Service) pickExecutor(ctx context.Context, skip db.StringList) (*db.User, error) {
	executors, err := s.store.ListUsers(ctx, db.RoleContractor)
	if err != nil {
		return nil, err
	}
	for i := range executors {
		e := executors[i]
		if e.Status == db.UserStatusBlocked || skip.Contains(e.Username) {
			continue
		}
		return &e, nil
	}
	return nil, ErrNoExecutors
}

// Accept закрепляет заказ за исполнителем. Второй принявший получает ErrAccessDenied.
func (s *Service) Accept(ctx context.Context, id string, executor *db.User, chatID int64) (*db.Order, error) {
	return s.fire(ctx, id, EventAccept, ActorExecutor, executor.Username, func(o *db.Order) db.OrderPatch {
		now := s.now()
		return db.OrderPatch{
			ExecutorUsername: db.Ptr(executor.Username),
			ExecutorChatID:   db.Ptr(chatID),
			AcceptedAt:       &now,
		}
	})
}

// Decline фиксирует отказ от предложения и передаёт заказ следующему исполнителю.
// Если исполнителей не осталось, заказ отменяется и next == nil.
func (s *Service) Decline(ctx context.Context, id, username string) (o *db.Order, next *db.User, err error) {
	o, err = s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if o.Status != db.StatusPending {
		return nil, nil, &TransitionError{From: o.Status, Event: EventCancel}
	}
	if o.OfferedTo != username {
		return nil, nil, ErrAccessDenied
	}

	declined := append(db.StringList{}, o.DeclinedBy...)
	declined = append(declined, username)

	next, err = s.pickExecutor(ctx, declined)
	if errors.Is(err, ErrNoExecutors) {
		o, err = s.store.TransitionOrder(ctx, id, db.StatusPending, db.StatusCancelled,
			db.OrderPatch{DeclinedBy: declined, OfferedTo: db.Ptr("")})
		if err != nil {
			return nil, nil, s.conflict(ctx, id, EventCancel, username, err)
		}
		logger.LogTransition(id, string(db.StatusPending), string(db.StatusCancelled), string(ActorSystem))
		return o, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	o, err = s.store.TransitionOrder(ctx, id, db.StatusPending, db.StatusPending,
		db.OrderPatch{DeclinedBy: declined, OfferedTo: db.Ptr(next.Username)})
	if err != nil {
		return nil, nil, s.conflict(ctx, id, EventCancel, username, err)
	}
	logger.Info("Order re-offered",
		zap.String("order_id", id),
		zap.String("declined_by", username),
		zap.String("offered_to", next.Username))
	return o, next, nil
}

func (s *Service) SendInvoice(ctx context.Context, id string) (*db.Order, error) {
	return s.fire(ctx, id, EventSendInvoice, ActorSystem, "", nil)
}

// ConfirmPayment: заказчик сообщил об оплате либо пришло уведомление от платёжной системы.
func (s *Service) ConfirmPayment(ctx context.Context, id string, actor Actor, username string) (*db.Order, error) {
	return s.fire(ctx, id, EventConfirmPayment, actor, username, func(*db.Order) db.OrderPatch {
		now := s.now()
		return db.OrderPatch{PaidAt: &now}
	})
}

func (s *Service) Cancel(ctx context.Context, id string, actor Actor, username string) (*db.Order, error) {
	return s.fire(ctx, id, EventCancel, actor, username, nil)
}

func (s *Service) DeclinePaid(ctx context.Context, id, executor string) (*db.Order, error) {
	return s.fire(ctx, id, EventDeclinePaid, ActorExecutor, executor, nil)
}

// StartWork запускает отсчёт срока: deadline считается от момента начала работы.
func (s *Service) StartWork(ctx context.Context, id, executor string) (*db.Order, error) {
	return s.fire(ctx, id, EventStartWork, ActorExecutor, executor, func(o *db.Order) db.OrderPatch {
		now := s.now()
		patch := db.OrderPatch{StartedAt: &now}
		if d, ok := ParseDeadline(o.DeadlineText); ok {
			patch.DeadlineAt = db.Ptr(now.Add(d))
		}
		return patch
	})
}

func (s *Service) Submit(ctx context.Context, id, executor string) (*db.Order, error) {
	return s.fire(ctx, id, EventSubmit, ActorExecutor, executor, func(*db.Order) db.OrderPatch {
		now := s.now()
		return db.OrderPatch{SubmittedAt: &now}
	})
}

// AcceptWork завершает заказ и зачисляет исполнителю сумму заказа.
// Заказ не завершается, если учётной записи исполнителя больше нет.
func (s *Service) AcceptWork(ctx context.Context, id, customer string) (*db.Order, error) {
	if err := s.executorExists(ctx, id); err != nil {
		return nil, err
	}
	o, err := s.fire(ctx, id, EventAcceptWork, ActorCustomer, customer, func(*db.Order) db.OrderPatch {
		now := s.now()
		return db.OrderPatch{CompletedAt: &now}
	})
	if err != nil {
		return nil, err
	}
	if _, err := s.ledger.Credit(ctx, o.ExecutorUsername, o.Amount); err != nil {
		logger.Error("Failed to credit executor",
			zap.String("order_id", o.ID),
			zap.String("executor", o.ExecutorUsername),
			zap.Error(err))
		logger.NotifyAdmin(fmt.Sprintf("Заказ %s завершён, но начислить %s руб. исполнителю %s не удалось: %v",
			o.ShortID(), o.Amount.StringFixed(2), o.ExecutorUsername, err))
		return o, fmt.Errorf("credit executor: %w", err)
	}
	if err := s.store.IncrementCompleted(ctx, o.ExecutorUsername); err != nil {
		logger.Warn("Failed to increment completed orders", zap.String("executor", o.ExecutorUsername), zap.Error(err))
	}
	return o, nil
}

func (s *Service) executorExists(ctx context.Context, id string) error {
	o, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if o.ExecutorUsername == "" {
		return nil
	}
	_, err = s.store.GetUser(ctx, o.ExecutorUsername)
	if errors.Is(err, db.ErrNotFound) {
		logger.NotifyAdmin(fmt.Sprintf("Заказчик принимает заказ %s, но исполнителя %s нет в базе. Заказ оставлен на проверке.",
			o.ShortID(), o.ExecutorUsername))
		return ErrExecutorGone
	}
	return err
}

func (s *Service) RequestRevision(ctx context.Context, id, customer string) (*db.Order, error) {
	return s.fire(ctx, id, EventRequestRevision, ActorCustomer, customer, func(o *db.Order) db.OrderPatch {
		return db.OrderPatch{RevisionCount: db.Ptr(o.RevisionCount + 1)}
	})
}

func (s *Service) OpenDispute(ctx context.Context, id string, actor Actor, username string) (*db.Order, error) {
	return s.fire(ctx, id, EventOpenDispute, actor, username, nil)
}

func (s *Service) ResumeWork(ctx context.Context, id string) (*db.Order, error) {
	return s.fire(ctx, id, EventResumeWork, ActorAdmin, "", nil)
}

// authorize проверяет, что участник является стороной заказа.
func authorize(o *db.Order, ev Event, actor Actor, username string) error {
	switch actor {
	case ActorCustomer:
		if o.CustomerUsername != username {
			return ErrAccessDenied
		}
	case ActorExecutor:
		if ev == EventAccept {
			if o.ExecutorUsername != "" && o.ExecutorUsername != username {
				return ErrAccessDenied
			}
			if o.OfferedTo != "" && o.OfferedTo != username {
				return ErrAccessDenied
			}
			return nil
		}
		if o.ExecutorUsername != username {
			return ErrAccessDenied
		}
	}
	return nil
}

const casAttempts = 3

// fire проверяет права и таблицу переходов и меняет статус через compare-and-swap.
// Если статус успел измениться, проверка повторяется на свежем заказе.
func (s *Service) fire(ctx context.Context, id string, ev Event, actor Actor, username string, patch func(*db.Order) db.OrderPatch) (*db.Order, error) {
	var lastErr error
	for attempt := 0; attempt < casAttempts; attempt++ {
		o, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := authorize(o, ev, actor, username); err != nil {
			return nil, err
		}
		to, err := Next(o.Status, ev, actor)
		if err != nil {
			return nil, err
		}
		var p db.OrderPatch
		if patch != nil {
			p = patch(o)
		}
		updated, err := s.store.TransitionOrder(ctx, id, o.Status, to, p)
		if err == nil {
			logger.LogTransition(id, string(o.Status), string(to), string(actor))
			return updated, nil
		}
		if !errors.Is(err, db.ErrStatusConflict) {
			return nil, fmt.Errorf("transition %s: %w", ev, err)
		}
		lastErr = err
	}
	return nil, s.conflict(ctx, id, ev, username, lastErr)
}

// conflict переводит проигранную гонку в ошибку для пользователя.
func (s *Service) conflict(ctx context.Context, id string, ev Event, username string, err error) error {
	if !errors.Is(err, db.ErrStatusConflict) {
		return err
	}
	fresh, gerr := s.Get(ctx, id)
	if gerr != nil {
		return gerr
	}
	if fresh.ExecutorUsername != "" && fresh.ExecutorUsername != username && ev == EventAccept {
		return ErrAccessDenied
	}
	return &TransitionError{From: fresh.Status, Event: ev}
}

// Deadlines возвращает заказы в работе, у которых задан срок.
func (s *Service) Deadlines(ctx context.Context) ([]db.Order, error) {
	orders, err := s.store.OrdersByStatus(ctx, db.StatusInWork, db.StatusOnReview)
	if err != nil {
		return nil, err
	}
	out := orders[:0]
	for _, o := range orders {
		if o.DeadlineAt != nil {
			out = append(out, o)
		}
	}
	return out, nil
}

// MarkNotified отмечает отправленные напоминания о сроке.
func (s *Service) MarkNotified(ctx context.Context, id string, reminder, overdue bool) error {
	patch := db.OrderPatch{}
	if reminder {
		patch.DeadlineNotified = db.Ptr(true)
	}
	if overdue {
		patch.OverdueNotified = db.Ptr(true)
	}
	return s.store.PatchOrder(ctx, id, patch)
}
