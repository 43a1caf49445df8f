package bot

import (
	"context"
	"freelance-market-bot/internal/auth"
	"freelance-market-bot/internal/chat"
	"freelance-market-bot/internal/db"
	"freelance-market-bot/internal/db/jsonstore"
	"freelance-market-bot/internal/ledger"
	"freelance-market-bot/internal/order"
	"freelance-market-bot/internal/payment"
	"freelance-market-bot/internal/session"
	"freelance-market-bot/internal/tg/mock_tg"
	"github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/mock/gomock"
	"golang.org/x/crypto/bcrypt"
	"strings"
	"sync"
	"testing"
	"time"
)

const (
	aliceChat = int64(100)
	bobChat   = int64(200)
)

type sent struct {
	chatID int64
	text   string
	photo  bool
}

// inbox собирает исходящие сообщения по чатам.
type inbox struct {
	mu   sync.Mutex
	msgs []sent
}

func (in *inbox) record(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	switch m := c.(type) {
	case tgbotapi.MessageConfig:
		in.msgs = append(in.msgs, sent{chatID: m.ChatID, text: m.Text})
	case tgbotapi.EditMessageTextConfig:
		in.msgs = append(in.msgs, sent{chatID: m.ChatID, text: m.Text})
	case tgbotapi.PhotoConfig:
		in.msgs = append(in.msgs, sent{chatID: m.ChatID, text: m.Caption, photo: true})
	}
	return tgbotapi.Message{MessageID: 1}, nil
}

// to возвращает все тексты, отправленные в чат.
func (in *inbox) to(chatID int64) []sent {
	in.mu.Lock()
	defer in.mu.Unlock()
	var out []sent
	for _, m := range in.msgs {
		if m.chatID == chatID {
			out = append(out, m)
		}
	}
	return out
}

func (in *inbox) got(chatID int64, substr string) bool {
	for _, m := range in.to(chatID) {
		if strings.Contains(m.text, substr) {
			return true
		}
	}
	return false
}

func newBot(t *testing.T) (*Bot, *jsonstore.Store, *inbox) {
	t.Helper()
	ctrl := gomock.NewController(t)
	sender := mock_tg.NewMockSender(ctrl)
	in := &inbox{}
	sender.EXPECT().Send(gomock.Any()).DoAndReturn(in.record).AnyTimes()
	sender.EXPECT().Request(gomock.Any()).Return(&tgbotapi.APIResponse{Ok: true}, nil).AnyTimes()

	s := jsonstore.NewMemory()
	l := ledger.New(s, decimal.NewFromInt(500))
	b := New(Deps{
		Sender:   sender,
		Store:    s,
		Sessions: session.NewManager(s),
		Auth:     auth.NewService(s).WithCost(bcrypt.MinCost),
		Orders:   order.NewService(s, l),
		Ledger:   l,
		Payments: payment.NewService(s, "4100111222333", 24*time.Hour),
		Chat:     chat.NewRelay(s, sender),
	})
	return b, s, in
}

func text(chatID int64, s string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 10,
		From:      &tgbotapi.User{ID: chatID},
		Chat:      &tgbotapi.Chat{ID: chatID},
		Text:      s,
	}}
}

func click(chatID int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: chatID},
		Message: &tgbotapi.Message{MessageID: 5, Chat: &tgbotapi.Chat{ID: chatID}},
		Data:    data,
	}}
}

func play(b *Bot, updates ...tgbotapi.Update) {
	for _, u := range updates {
		b.HandleUpdate(context.Background(), u)
	}
}

func registerExecutor(t *testing.T, b *Bot, name string) {
	t.Helper()
	if _, err := b.Auth.Register(context.Background(), name, "pass1", db.RoleContractor, 0); err != nil {
		t.Fatal(err)
	}
}

// placeOrder регистрирует alice, логинит bob и оформляет заказ.
func placeOrder(t *testing.T, b *Bot, s *jsonstore.Store) *db.Order {
	t.Helper()
	registerExecutor(t, b, "bob")
	play(b,
		click(bobChat, cbExecutorLogin), text(bobChat, "bob"), text(bobChat, "pass1"),
		click(aliceChat, cbClientRegister), text(aliceChat, "alice"), text(aliceChat, "secret"),
		click(aliceChat, cbCreateOrder),
		text(aliceChat, "Сайт для кофейни"),
		text(aliceChat, "3 дня"),
		text(aliceChat, "15 000"),
	)
	orders, err := s.OrdersByCustomer(context.Background(), "alice")
	if err != nil || len(orders) != 1 {
		t.Fatalf("заказы alice: %v, %v", orders, err)
	}
	return &orders[0]
}

func status(t *testing.T, s *jsonstore.Store, id string) db.OrderStatus {
	t.Helper()
	o, err := s.GetOrder(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return o.Status
}

func TestOrderFlow(t *testing.T) {
	b, s, in := newBot(t)
	ctx := context.Background()
	o := placeOrder(t, b, s)

	if o.Status != db.StatusPending || !o.Amount.Equal(decimal.NewFromInt(15000)) || o.OfferedTo != "bob" {
		t.Fatalf("новый заказ: %+v", o)
	}
	if !in.got(bobChat, "Новый заказ:") {
		t.Fatal("исполнитель не получил предложение")
	}

	play(b, click(bobChat, data(pfxAcceptOrder, o.ID)))
	if st := status(t, s, o.ID); st != db.StatusWaitingPayment {
		t.Fatalf("после принятия статус %s", st)
	}
	var qr bool
	for _, m := range in.to(aliceChat) {
		qr = qr || m.photo
	}
	if !qr {
		t.Fatal("заказчику не отправлен QR-код")
	}

	play(b, text(aliceChat, "оплатил"))
	if st := status(t, s, o.ID); st != db.StatusPaymentConfirmed {
		t.Fatalf("после оплаты статус %s", st)
	}
	if !in.got(bobChat, "ЗАКАЗ ОПЛАЧЕН КЛИЕНТОМ") {
		t.Error("исполнитель не узнал об оплате")
	}

	play(b, click(bobChat, data(pfxStartWork, o.ID)))
	got, _ := s.GetOrder(ctx, o.ID)
	if got.Status != db.StatusInWork || got.DeadlineAt == nil {
		t.Fatalf("после начала работы: статус %s, срок %v", got.Status, got.DeadlineAt)
	}

	play(b,
		click(bobChat, data(pfxSubmitWork, o.ID)),
		click(aliceChat, data(pfxAcceptWork, o.ID)),
	)
	if st := status(t, s, o.ID); st != db.StatusCompleted {
		t.Fatalf("после приёмки статус %s", st)
	}
	bob, _ := s.GetUser(ctx, "bob")
	if !bob.Balance.Equal(decimal.NewFromInt(15000)) || bob.CompletedOrders != 1 {
		t.Errorf("исполнитель после завершения: баланс %s, заказов %d", bob.Balance, bob.CompletedOrders)
	}
	if !in.got(bobChat, "зачислено 15000.00 руб.") {
		t.Error("исполнитель не получил уведомление о зачислении")
	}

	// завершённый заказ нельзя отменить
	play(b, click(aliceChat, data(pfxCancelOrder, o.ID)))
	if st := status(t, s, o.ID); st != db.StatusCompleted {
		t.Errorf("завершённый заказ изменился: %s", st)
	}
}

func TestForeignExecutorCannotAccept(t *testing.T) {
	b, s, in := newBot(t)
	o := placeOrder(t, b, s)
	registerExecutor(t, b, "carol")
	const carolChat = int64(300)
	play(b,
		click(carolChat, cbExecutorLogin), text(carolChat, "carol"), text(carolChat, "pass1"),
		click(carolChat, data(pfxAcceptOrder, o.ID)),
	)
	if st := status(t, s, o.ID); st != db.StatusPending {
		t.Fatalf("заказ принят чужим исполнителем: %s", st)
	}
	if !in.got(carolChat, "⛔") {
		t.Error("чужой исполнитель не получил отказ в доступе")
	}
}

func TestBudgetMustBeNumber(t *testing.T) {
	b, s, in := newBot(t)
	registerExecutor(t, b, "bob")
	play(b,
		click(aliceChat, cbClientRegister), text(aliceChat, "alice"), text(aliceChat, "secret"),
		click(aliceChat, cbCreateOrder),
		text(aliceChat, "Монтаж ролика"),
		text(aliceChat, "2 недели"),
		text(aliceChat, "много"),
	)
	if !in.got(aliceChat, budgetNotNumber) {
		t.Fatal("нет повторного запроса бюджета")
	}
	if !b.Sessions.Is(context.Background(), aliceChat, session.KindOrderBudget) {
		t.Fatal("ожидание бюджета сброшено")
	}
	play(b, text(aliceChat, "40000"))
	orders, _ := s.OrdersByCustomer(context.Background(), "alice")
	if len(orders) != 1 || orders[0].DeadlineText != "2 недели" {
		t.Errorf("заказ: %+v", orders)
	}
}

func TestChatRelay(t *testing.T) {
	b, s, in := newBot(t)
	o := placeOrder(t, b, s)
	play(b,
		click(bobChat, data(pfxAcceptOrder, o.ID)),
		text(aliceChat, "оплатил"),
		click(bobChat, data(pfxStartWork, o.ID)),
		click(aliceChat, data(pfxClientChat, o.ID)),
		text(aliceChat, "Добавьте меню на главную"),
		text(aliceChat, "/exit"),
		text(aliceChat, "это уже не в чат"),
	)
	if !in.got(bobChat, "👤 Заказчик: Добавьте меню на главную") {
		t.Error("сообщение не переслано исполнителю")
	}
	if !in.got(aliceChat, "✅ Сообщение доставлено") {
		t.Error("отправитель не получил подтверждение")
	}
	if in.got(bobChat, "это уже не в чат") {
		t.Error("после выхода из чата сообщения не должны пересылаться")
	}
	msgs, err := s.MessagesByOrder(context.Background(), o.ID)
	if err != nil || len(msgs) != 1 {
		t.Errorf("журнал чата: %v, %v", msgs, err)
	}
}

func TestUnknownCallback(t *testing.T) {
	b, _, in := newBot(t)
	play(b, click(aliceChat, "buy_server_1"))
	if !in.got(aliceChat, "Неизвестная команда") {
		t.Error("нет ответа на неизвестную кнопку")
	}
}

func TestPaidAfterPaymentExpired(t *testing.T) {
	b, s, in := newBot(t)
	ctx := context.Background()
	o := placeOrder(t, b, s)
	play(b, click(bobChat, data(pfxAcceptOrder, o.ID)))

	p, err := s.ActivePayment(ctx, o.ID)
	if err != nil {
		t.Fatal(err)
	}
	// так платёж закрывает крон
	if _, err := s.TransitionPayment(ctx, p.ID, db.PaymentPending, db.PaymentExpired, db.PaymentPatch{}); err != nil {
		t.Fatal(err)
	}

	play(b, text(aliceChat, "оплатил"))
	if !in.got(aliceChat, "Срок действия платежа истёк") {
		t.Error("на «оплатил» нет предложения нового QR-кода")
	}
	play(b, click(aliceChat, data(pfxPaymentConfirm, o.ID)))
	if in.got(aliceChat, "Платёж не найден") {
		t.Error("кнопка «Я оплатил» ответила, что платежа нет")
	}
	if st := status(t, s, o.ID); st != db.StatusWaitingPayment {
		t.Fatalf("заказ без оплаты перешёл в %s", st)
	}

	play(b, click(aliceChat, data(pfxPaymentNew, o.ID)))
	if _, err := s.ActivePayment(ctx, o.ID); err != nil {
		t.Errorf("новый платёж не создан: %v", err)
	}
}
