package chat

import (
	"context"
	"errors"
	"freelance-market-bot/internal/db"
	"freelance-market-bot/internal/db/jsonstore"
	"freelance-market-bot/internal/order"
	"freelance-market-bot/internal/tg/mock_tg"
	"github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/mock/gomock"
	"strings"
	"testing"
)

const (
	aliceChat = int64(100)
	bobChat   = int64(200)
)

func setup(t *testing.T, status db.OrderStatus) (*jsonstore.Store, *db.User, *db.User) {
	t.Helper()
	s := jsonstore.NewMemory()
	ctx := context.Background()
	alice := &db.User{Username: "alice", Role: db.RoleClient, ChatID: db.Ptr(aliceChat)}
	bob := &db.User{Username: "bob", Role: db.RoleContractor, ChatID: db.Ptr(bobChat)}
	for _, u := range []*db.User{alice, bob} {
		if err := s.CreateUser(ctx, u); err != nil {
			t.Fatal(err)
		}
	}
	err := s.CreateOrder(ctx, &db.Order{
		ID:               "order-1",
		CustomerUsername: "alice",
		ExecutorUsername: "bob",
		Amount:           decimal.NewFromInt(15000),
		Status:           status,
	})
	if err != nil {
		t.Fatal(err)
	}
	return s, alice, bob
}

func TestSendDeliversToCounterpartOnly(t *testing.T) {
	tests := []struct {
		desc   string
		from   func(alice, bob *db.User) *db.User
		target int64
		prefix string
	}{
		{"заказчик пишет исполнителю", func(a, _ *db.User) *db.User { return a }, bobChat, "👤 Заказчик: "},
		{"исполнитель пишет заказчику", func(_, b *db.User) *db.User { return b }, aliceChat, "👨‍💼 Исполнитель: "},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			sender := mock_tg.NewMockSender(ctrl)
			s, alice, bob := setup(t, db.StatusInWork)
			from := tt.from(alice, bob)

			sender.EXPECT().Send(gomock.Any()).DoAndReturn(func(c tgbotapi.Chattable) (tgbotapi.Message, error) {
				msg, ok := c.(tgbotapi.MessageConfig)
				if !ok {
					t.Fatalf("ожидался MessageConfig, получено %T", c)
				}
				if msg.ChatID != tt.target {
					t.Errorf("доставлено в %d, ожидалось %d", msg.ChatID, tt.target)
				}
				if !strings.HasPrefix(msg.Text, tt.prefix) {
					t.Errorf("текст %q", msg.Text)
				}
				return tgbotapi.Message{}, nil
			}).Times(1)

			relay := NewRelay(s, sender)
			m, err := relay.Send(context.Background(), "order-1", from, "привет")
			if err != nil {
				t.Fatalf("Send: %v", err)
			}
			if !m.Delivered {
				t.Error("сообщение не отмечено доставленным")
			}

			log, _ := s.MessagesByOrder(context.Background(), "order-1")
			if len(log) != 1 || log[0].Username != from.Username || log[0].Text != "привет" || !log[0].Delivered {
				t.Errorf("журнал = %+v", log)
			}
		})
	}
}

func TestSendToLoggedOutCounterpart(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mock_tg.NewMockSender(ctrl)
	s, alice, _ := setup(t, db.StatusInWork)
	if err := s.UnbindChat(context.Background(), "bob"); err != nil {
		t.Fatal(err)
	}

	relay := NewRelay(s, sender)
	m, err := relay.Send(context.Background(), "order-1", alice, "вы тут?")
	if !errors.Is(err, ErrUndeliverable) {
		t.Fatalf("ожидался ErrUndeliverable, получено %v", err)
	}
	if m == nil || m.Delivered {
		t.Errorf("сообщение = %+v", m)
	}
	log, _ := s.MessagesByOrder(context.Background(), "order-1")
	if len(log) != 1 {
		t.Errorf("сообщение должно остаться в журнале, записей %d", len(log))
	}
}

func TestSendDeliveryError(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mock_tg.NewMockSender(ctrl)
	s, _, bob := setup(t, db.StatusOnReview)
	sender.EXPECT().Send(gomock.Any()).Return(tgbotapi.Message{}, errors.New("Forbidden: bot was blocked by the user"))

	_, err := NewRelay(s, sender).Send(context.Background(), "order-1", bob, "готово")
	if !errors.Is(err, ErrUndeliverable) {
		t.Errorf("ожидался ErrUndeliverable, получено %v", err)
	}
}

// brokenLog: хранилище, в котором журнал переписки недоступен для записи.
type brokenLog struct {
	*jsonstore.Store
}

func (brokenLog) AddMessage(context.Context, *db.Message) error {
	return errors.New("disk full")
}

func TestSendNotSavedIsNotForwarded(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mock_tg.NewMockSender(ctrl)
	sender.EXPECT().Send(gomock.Any()).Times(0)
	s, alice, _ := setup(t, db.StatusInWork)

	_, err := NewRelay(brokenLog{s}, sender).Send(context.Background(), "order-1", alice, "привет")
	if !errors.Is(err, ErrNotSaved) {
		t.Fatalf("ожидался ErrNotSaved, получено %v", err)
	}
}

func TestSendRejected(t *testing.T) {
	tests := []struct {
		desc    string
		status  db.OrderStatus
		from    *db.User
		orderID string
		want    error
	}{
		{"посторонний", db.StatusInWork, &db.User{Username: "mallory", Role: db.RoleClient}, "order-1", order.ErrAccessDenied},
		{"исполнитель под ролью заказчика", db.StatusInWork, &db.User{Username: "bob", Role: db.RoleClient}, "order-1", order.ErrAccessDenied},
		{"заказ ещё не оплачен", db.StatusWaitingPayment, &db.User{Username: "alice", Role: db.RoleClient}, "order-1", ErrChatClosed},
		{"нет заказа", db.StatusInWork, &db.User{Username: "alice", Role: db.RoleClient}, "missing", order.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			sender := mock_tg.NewMockSender(ctrl)
			s, _, _ := setup(t, tt.status)

			_, err := NewRelay(s, sender).Send(context.Background(), tt.orderID, tt.from, "текст")
			if !errors.Is(err, tt.want) {
				t.Errorf("ошибка = %v, ожидалась %v", err, tt.want)
			}
			log, _ := s.MessagesByOrder(context.Background(), "order-1")
			if len(log) != 0 {
				t.Errorf("отклонённое сообщение попало в журнал")
			}
		})
	}
}

func TestHistory(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mock_tg.NewMockSender(ctrl)
	sender.EXPECT().Send(gomock.Any()).Return(tgbotapi.Message{}, nil).Times(2)
	s, alice, bob := setup(t, db.StatusInWork)
	relay := NewRelay(s, sender)
	ctx := context.Background()

	if _, err := relay.Send(ctx, "order-1", alice, "когда будет макет?"); err != nil {
		t.Fatal(err)
	}
	if _, err := relay.Send(ctx, "order-1", bob, "завтра"); err != nil {
		t.Fatal(err)
	}

	msgs, err := relay.History(ctx, "order-1", bob)
	if err != nil {
		t.Fatal(err)
	}
	o, _ := s.GetOrder(ctx, "order-1")
	text := FormatHistory(o, msgs)
	if !strings.Contains(text, "👤 Заказчик: когда будет макет?") || !strings.Contains(text, "👨‍💼 Исполнитель: завтра") {
		t.Errorf("история:\n%s", text)
	}

	if _, err := relay.History(ctx, "order-1", &db.User{Username: "mallory", Role: db.RoleContractor}); !errors.Is(err, order.ErrAccessDenied) {
		t.Errorf("посторонний прочитал историю: %v", err)
	}
}
