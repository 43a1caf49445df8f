package order

import (
	"context"
	"errors"
	"freelance-market-bot/internal/db"
	"freelance-market-bot/internal/db/jsonstore"
	"freelance-market-bot/internal/ledger"
	"github.com/shopspring/decimal"
	"sync"
	"testing"
	"time"
)

func newService(t *testing.T, executors ...db.User) (*Service, *jsonstore.Store) {
	t.Helper()
	s := jsonstore.NewMemory()
	ctx := context.Background()
	if err := s.CreateUser(ctx, &db.User{Username: "alice", Role: db.RoleClient}); err != nil {
		t.Fatal(err)
	}
	for i := range executors {
		e := executors[i]
		e.Role = db.RoleContractor
		if err := s.CreateUser(ctx, &e); err != nil {
			t.Fatal(err)
		}
	}
	return NewService(s, ledger.New(s, decimal.NewFromInt(500))), s
}

func draft() Draft {
	return Draft{Description: "Сайт для кофейни", DeadlineText: "3 дня", Amount: decimal.NewFromInt(15000)}
}

func TestOrderHappyPath(t *testing.T) {
	svc, s := newService(t,
		db.User{Username: "bob", Rating: 10},
		db.User{Username: "carol", Rating: 7},
	)
	ctx := context.Background()
	alice, _ := s.GetUser(ctx, "alice")
	bob, _ := s.GetUser(ctx, "bob")

	o, offered, err := svc.Create(ctx, alice, 1, draft())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if offered.Username != "bob" {
		t.Fatalf("заказ предложен %s, ожидался bob", offered.Username)
	}

	steps := []struct {
		desc string
		do   func() (*db.Order, error)
		want db.OrderStatus
	}{
		{"bob принимает", func() (*db.Order, error) { return svc.Accept(ctx, o.ID, bob, 2) }, db.StatusAcceptedWaitingPayment},
		{"alice оплатила", func() (*db.Order, error) { return svc.ConfirmPayment(ctx, o.ID, ActorCustomer, "alice") }, db.StatusPaymentConfirmed},
		{"bob начинает", func() (*db.Order, error) { return svc.StartWork(ctx, o.ID, "bob") }, db.StatusInWork},
		{"bob сдаёт", func() (*db.Order, error) { return svc.Submit(ctx, o.ID, "bob") }, db.StatusOnReview},
		{"alice принимает", func() (*db.Order, error) { return svc.AcceptWork(ctx, o.ID, "alice") }, db.StatusCompleted},
	}

	for _, st := range steps {
		got, err := st.do()
		if err != nil {
			t.Fatalf("%s: %v", st.desc, err)
		}
		if got.Status != st.want {
			t.Fatalf("%s: статус %s, ожидался %s", st.desc, got.Status, st.want)
		}
		if st.want == db.StatusInWork {
			if got.DeadlineAt == nil {
				t.Error("после начала работы должен быть задан срок")
			}
			u, _ := s.GetUser(ctx, "bob")
			if !u.Balance.IsZero() {
				t.Errorf("баланс до приёмки = %s", u.Balance)
			}
		}
	}

	u, _ := s.GetUser(ctx, "bob")
	if !u.Balance.Equal(decimal.NewFromInt(15000)) {
		t.Errorf("баланс bob = %s, ожидалось 15000", u.Balance)
	}
	if u.CompletedOrders != 1 {
		t.Errorf("выполнено заказов = %d", u.CompletedOrders)
	}
}

func TestAcceptTwice(t *testing.T) {
	svc, s := newService(t, db.User{Username: "bob", Rating: 10}, db.User{Username: "carol", Rating: 9})
	ctx := context.Background()
	alice, _ := s.GetUser(ctx, "alice")
	bob, _ := s.GetUser(ctx, "bob")
	carol, _ := s.GetUser(ctx, "carol")

	o, _, err := svc.Create(ctx, alice, 1, draft())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Accept(ctx, o.ID, bob, 2); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Accept(ctx, o.ID, carol, 3); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("второй исполнитель: ожидался ErrAccessDenied, получено %v", err)
	}
	var te *TransitionError
	if _, err := svc.Accept(ctx, o.ID, bob, 2); !errors.As(err, &te) {
		t.Errorf("повторное принятие: ожидался TransitionError, получено %v", err)
	}

	got, _ := s.GetOrder(ctx, o.ID)
	if got.ExecutorUsername != "bob" {
		t.Errorf("исполнитель = %s", got.ExecutorUsername)
	}
}

func TestConcurrentAccept(t *testing.T) {
	names := []string{"bob", "carol", "dave", "erin", "frank"}
	var executors []db.User
	for _, n := range names {
		executors = append(executors, db.User{Username: n, Rating: 5})
	}
	svc, s := newService(t, executors...)
	ctx := context.Background()

	// заказ без адресата: принять может любой
	if err := s.CreateOrder(ctx, &db.Order{ID: "o1", CustomerUsername: "alice", Amount: decimal.NewFromInt(100), Status: db.StatusPending}); err != nil {
		t.Fatal(err)
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		wins   []string
		denied int
	)
	for _, n := range names {
		wg.Add(1)
		go func(n string) {
			defer wg.Done()
			_, err := svc.Accept(ctx, "o1", &db.User{Username: n}, 1)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins = append(wins, n)
			case errors.Is(err, ErrAccessDenied):
				denied++
			default:
				t.Errorf("%s: неожиданная ошибка %v", n, err)
			}
		}(n)
	}
	wg.Wait()

	if len(wins) != 1 {
		t.Fatalf("победителей %d: %v", len(wins), wins)
	}
	if denied != len(names)-1 {
		t.Errorf("отказано %d, ожидалось %d", denied, len(names)-1)
	}
	o, _ := s.GetOrder(ctx, "o1")
	if o.ExecutorUsername != wins[0] {
		t.Errorf("в заказе %s, победил %s", o.ExecutorUsername, wins[0])
	}
}

func TestDeclineReoffers(t *testing.T) {
	svc, s := newService(t, db.User{Username: "bob", Rating: 10}, db.User{Username: "carol", Rating: 8})
	ctx := context.Background()
	alice, _ := s.GetUser(ctx, "alice")

	o, _, err := svc.Create(ctx, alice, 1, draft())
	if err != nil {
		t.Fatal(err)
	}

	if _, _, err := svc.Decline(ctx, o.ID, "carol"); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("отказ не адресату: %v", err)
	}

	o, next, err := svc.Decline(ctx, o.ID, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if next == nil || next.Username != "carol" || o.OfferedTo != "carol" {
		t.Fatalf("после отказа bob заказ у %v (%s)", next, o.OfferedTo)
	}
	if o.Status != db.StatusPending {
		t.Errorf("статус = %s", o.Status)
	}

	o, next, err = svc.Decline(ctx, o.ID, "carol")
	if err != nil {
		t.Fatal(err)
	}
	if next != nil {
		t.Errorf("исполнителей не осталось, но предложено %s", next.Username)
	}
	if o.Status != db.StatusCancelled {
		t.Errorf("статус = %s, ожидался cancelled", o.Status)
	}
	if !o.DeclinedBy.Contains("bob") || !o.DeclinedBy.Contains("carol") {
		t.Errorf("отказавшиеся = %v", o.DeclinedBy)
	}
}

func TestCreateWithoutExecutors(t *testing.T) {
	svc, s := newService(t)
	ctx := context.Background()
	alice, _ := s.GetUser(ctx, "alice")
	if _, _, err := svc.Create(ctx, alice, 1, draft()); !errors.Is(err, ErrNoExecutors) {
		t.Errorf("ожидался ErrNoExecutors, получено %v", err)
	}
}

func TestRevisionAndDispute(t *testing.T) {
	svc, s := newService(t, db.User{Username: "bob", Rating: 10})
	ctx := context.Background()
	if err := s.CreateOrder(ctx, &db.Order{
		ID: "o1", CustomerUsername: "alice", ExecutorUsername: "bob",
		Amount: decimal.NewFromInt(100), Status: db.StatusOnReview,
	}); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.RequestRevision(ctx, "o1", "bob"); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("доработку запросил исполнитель: %v", err)
	}
	o, err := svc.RequestRevision(ctx, "o1", "alice")
	if err != nil {
		t.Fatal(err)
	}
	if o.Status != db.StatusInWork || o.RevisionCount != 1 {
		t.Errorf("после доработки %s, правок %d", o.Status, o.RevisionCount)
	}

	if _, err := svc.OpenDispute(ctx, "o1", ActorExecutor, "bob"); err != nil {
		t.Fatal(err)
	}
	o, err = svc.ResumeWork(ctx, "o1")
	if err != nil {
		t.Fatal(err)
	}
	if o.Status != db.StatusInWork {
		t.Errorf("после спора статус %s", o.Status)
	}
}

func TestDeadlines(t *testing.T) {
	svc, s := newService(t)
	ctx := context.Background()
	due := time.Now().Add(time.Hour)
	for _, o := range []*db.Order{
		{ID: "with", Status: db.StatusInWork, DeadlineAt: &due},
		{ID: "without", Status: db.StatusInWork},
		{ID: "done", Status: db.StatusCompleted, DeadlineAt: &due},
	} {
		if err := s.CreateOrder(ctx, o); err != nil {
			t.Fatal(err)
		}
	}
	orders, err := svc.Deadlines(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(orders) != 1 || orders[0].ID != "with" {
		t.Errorf("получено %v", orders)
	}

	if err := svc.MarkNotified(ctx, "with", true, false); err != nil {
		t.Fatal(err)
	}
	o, _ := s.GetOrder(ctx, "with")
	if !o.DeadlineNotified || o.OverdueNotified {
		t.Errorf("флаги = %v/%v", o.DeadlineNotified, o.OverdueNotified)
	}
}

func TestAcceptWorkExecutorDeleted(t *testing.T) {
	svc, s := newService(t, db.User{Username: "bob", Rating: 10})
	ctx := context.Background()
	alice, _ := s.GetUser(ctx, "alice")
	bob, _ := s.GetUser(ctx, "bob")

	o, _, err := svc.Create(ctx, alice, 1, draft())
	if err != nil {
		t.Fatal(err)
	}
	steps := []func() (*db.Order, error){
		func() (*db.Order, error) { return svc.Accept(ctx, o.ID, bob, 2) },
		func() (*db.Order, error) { return svc.ConfirmPayment(ctx, o.ID, ActorCustomer, "alice") },
		func() (*db.Order, error) { return svc.StartWork(ctx, o.ID, "bob") },
		func() (*db.Order, error) { return svc.Submit(ctx, o.ID, "bob") },
	}
	for _, step := range steps {
		if _, err := step(); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.DeleteUser(ctx, "bob"); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.AcceptWork(ctx, o.ID, "alice"); !errors.Is(err, ErrExecutorGone) {
		t.Fatalf("ожидался ErrExecutorGone, получено %v", err)
	}
	got, _ := s.GetOrder(ctx, o.ID)
	if got.Status != db.StatusOnReview {
		t.Errorf("заказ без начисления перешёл в %s", got.Status)
	}
}
