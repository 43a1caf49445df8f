package gormstore

import (
	"context"
	"errors"
	"fmt"
	"freelance-market-bot/internal/db"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
	"os"
	"sync"
	"testing"
)

// newStore подключается к TEST_DATABASE_URL. Таблицы каждого теста получают
// свой префикс и удаляются после теста.
func newStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL не задан")
	}
	prefix := "t" + uuid.NewString()[:8] + "_"
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		NamingStrategy: schema.NamingStrategy{TablePrefix: prefix},
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := Migrate(gdb); err != nil {
		t.Fatal(err)
	}
	s := New(gdb)
	t.Cleanup(func() {
		_ = gdb.Migrator().DropTable(&db.User{}, &db.Order{}, &db.Message{}, &db.Payment{}, &db.PortfolioItem{}, &db.UserState{}, &db.Withdrawal{})
		_ = s.Close()
	})
	return s
}

func seedOrder(t *testing.T, s *Store, id string) {
	t.Helper()
	err := s.CreateOrder(context.Background(), &db.Order{
		ID:               id,
		Title:            "Лендинг",
		Amount:           decimal.NewFromInt(15000),
		CustomerUsername: "alice",
		CustomerChatID:   100,
		Status:           db.StatusPending,
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
}

func TestTransitionOrderCompareAndSwap(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	seedOrder(t, s, "o1")

	o, err := s.TransitionOrder(ctx, "o1", db.StatusPending, db.StatusAcceptedWaitingPayment,
		db.OrderPatch{ExecutorUsername: db.Ptr("bob"), ExecutorChatID: db.Ptr(int64(200))})
	if err != nil {
		t.Fatalf("первый переход: %v", err)
	}
	if o.Status != db.StatusAcceptedWaitingPayment || o.ExecutorUsername != "bob" || o.ExecutorChatID != 200 {
		t.Errorf("получено %s/%s/%d", o.Status, o.ExecutorUsername, o.ExecutorChatID)
	}

	_, err = s.TransitionOrder(ctx, "o1", db.StatusPending, db.StatusAcceptedWaitingPayment,
		db.OrderPatch{ExecutorUsername: db.Ptr("carol")})
	if !errors.Is(err, db.ErrStatusConflict) {
		t.Fatalf("ожидался ErrStatusConflict, получено %v", err)
	}
	if got, _ := s.GetOrder(ctx, "o1"); got.ExecutorUsername != "bob" {
		t.Errorf("исполнитель перезаписан: %s", got.ExecutorUsername)
	}

	if _, err := s.TransitionOrder(ctx, "nope", db.StatusPending, db.StatusCancelled, db.OrderPatch{}); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("ожидался ErrNotFound, получено %v", err)
	}
}

func TestConcurrentAcceptSingleWinner(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	seedOrder(t, s, "o1")

	const n = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		winners   []string
		conflicts int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			_, err := s.TransitionOrder(ctx, "o1", db.StatusPending, db.StatusAcceptedWaitingPayment,
				db.OrderPatch{ExecutorUsername: db.Ptr(name)})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, name)
			case errors.Is(err, db.ErrStatusConflict):
				conflicts++
			default:
				t.Errorf("%s: %v", name, err)
			}
		}(fmt.Sprintf("executor%d", i))
	}
	wg.Wait()

	if len(winners) != 1 || conflicts != n-1 {
		t.Fatalf("победителей %v, конфликтов %d", winners, conflicts)
	}
	if got, _ := s.GetOrder(ctx, "o1"); got.ExecutorUsername != winners[0] {
		t.Errorf("в заказе %s, победил %s", got.ExecutorUsername, winners[0])
	}
}

func TestWithdrawBalance(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	if err := s.CreateUser(ctx, &db.User{Username: "bob", Role: db.RoleContractor, Rating: 10, Balance: decimal.NewFromInt(1000)}); err != nil {
		t.Fatal(err)
	}

	left, err := s.WithdrawBalance(ctx, "bob", decimal.NewFromInt(600))
	if err != nil || !left.Equal(decimal.NewFromInt(400)) {
		t.Fatalf("списание 600: %s, %v", left, err)
	}
	if _, err := s.WithdrawBalance(ctx, "bob", decimal.NewFromInt(600)); !errors.Is(err, db.ErrInsufficientFunds) {
		t.Errorf("списание сверх баланса: %v", err)
	}
	if _, err := s.WithdrawBalance(ctx, "nobody", decimal.NewFromInt(1)); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("неизвестный пользователь: %v", err)
	}
	bob, _ := s.GetUser(ctx, "bob")
	if !bob.Balance.Equal(decimal.NewFromInt(400)) {
		t.Errorf("баланс %s", bob.Balance)
	}
}

func TestConcurrentWithdrawNeverOverdraws(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	if err := s.CreateUser(ctx, &db.User{Username: "bob", Role: db.RoleContractor, Rating: 10, Balance: decimal.NewFromInt(1000)}); err != nil {
		t.Fatal(err)
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.WithdrawBalance(ctx, "bob", decimal.NewFromInt(300))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if !errors.Is(err, db.ErrInsufficientFunds) {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	bob, _ := s.GetUser(ctx, "bob")
	if ok != 3 || !bob.Balance.Equal(decimal.NewFromInt(100)) {
		t.Errorf("успешных списаний %d, баланс %s", ok, bob.Balance)
	}
}

func TestCreatePaymentOneActive(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	seedOrder(t, s, "o1")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created []string
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := &db.Payment{
				ID:         uuid.NewString(),
				OrderID:    "o1",
				UserChatID: 100,
				Amount:     decimal.NewFromInt(15000),
				Status:     db.PaymentPending,
			}
			err := s.CreatePayment(ctx, p)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				created = append(created, p.ID)
			} else if !errors.Is(err, db.ErrDuplicate) {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	if len(created) != 1 {
		t.Fatalf("создано активных платежей: %d", len(created))
	}

	if _, err := s.TransitionPayment(ctx, created[0], db.PaymentPending, db.PaymentExpired, db.PaymentPatch{}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.TransitionPayment(ctx, created[0], db.PaymentPending, db.PaymentExpired, db.PaymentPatch{}); !errors.Is(err, db.ErrStatusConflict) {
		t.Errorf("повторное истечение: %v", err)
	}
	next := &db.Payment{ID: uuid.NewString(), OrderID: "o1", UserChatID: 100, Amount: decimal.NewFromInt(15000), Status: db.PaymentPending}
	if err := s.CreatePayment(ctx, next); err != nil {
		t.Errorf("после истечения новый платёж: %v", err)
	}
	if err := s.CreatePayment(ctx, &db.Payment{ID: uuid.NewString(), OrderID: "missing", Status: db.PaymentPending}); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("платёж без заказа: %v", err)
	}
}

func TestMarkDelivered(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	if err := s.AddMessage(ctx, &db.Message{ID: "m1", OrderID: "o1", Username: "alice", UserRole: db.RoleClient, Text: "привет"}); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkDelivered(ctx, "m1"); err != nil {
		t.Fatal(err)
	}
	msgs, err := s.MessagesByOrder(ctx, "o1")
	if err != nil || len(msgs) != 1 || !msgs[0].Delivered {
		t.Errorf("журнал: %+v, %v", msgs, err)
	}
	if err := s.MarkDelivered(ctx, "missing"); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("неизвестное сообщение: %v", err)
	}
}
