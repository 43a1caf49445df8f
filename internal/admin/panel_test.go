package admin

import (
	"bytes"
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
	"github.com/xuri/excelize/v2"
	"go.uber.org/mock/gomock"
	"golang.org/x/crypto/bcrypt"
	"strings"
	"sync"
	"testing"
	"time"
)

const adminID = int64(1)

// outbox запоминает тексты всех исходящих сообщений.
type outbox struct {
	mu    sync.Mutex
	texts []string
	docs  []string
}

func (o *outbox) record(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch m := c.(type) {
	case tgbotapi.MessageConfig:
		o.texts = append(o.texts, m.Text)
	case tgbotapi.EditMessageTextConfig:
		o.texts = append(o.texts, m.Text)
	case tgbotapi.DocumentConfig:
		if f, ok := m.File.(tgbotapi.FileBytes); ok {
			o.docs = append(o.docs, f.Name)
		}
	}
	return tgbotapi.Message{}, nil
}

func (o *outbox) last() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.texts) == 0 {
		return ""
	}
	return o.texts[len(o.texts)-1]
}

func newPanel(t *testing.T) (*Panel, *jsonstore.Store, *outbox) {
	t.Helper()
	ctrl := gomock.NewController(t)
	sender := mock_tg.NewMockSender(ctrl)
	out := &outbox{}
	sender.EXPECT().Send(gomock.Any()).DoAndReturn(out.record).AnyTimes()
	sender.EXPECT().Request(gomock.Any()).Return(&tgbotapi.APIResponse{Ok: true}, nil).AnyTimes()

	s := jsonstore.NewMemory()
	l := ledger.New(s, decimal.NewFromInt(500))
	p := NewPanel(Deps{
		Sender:   sender,
		Store:    s,
		Sessions: session.NewManager(s),
		Auth:     auth.NewService(s).WithCost(bcrypt.MinCost),
		Orders:   order.NewService(s, l),
		Ledger:   l,
		Payments: payment.NewService(s, "4100111222333", 24*time.Hour),
		Chat:     chat.NewRelay(s, sender),
		AdminID:  adminID,
	})
	return p, s, out
}

func tap(data string) *tgbotapi.CallbackQuery {
	return &tgbotapi.CallbackQuery{
		ID:      "q",
		From:    &tgbotapi.User{ID: adminID},
		Message: &tgbotapi.Message{MessageID: 7, Chat: &tgbotapi.Chat{ID: adminID}},
		Data:    data,
	}
}

// typeText передаёт ввод администратора с текущим состоянием, как это делает бот.
func typeText(t *testing.T, p *Panel, text string) {
	t.Helper()
	ctx := context.Background()
	st, err := p.Sessions.Get(ctx, adminID)
	if err != nil {
		t.Fatal(err)
	}
	if !p.HandleText(ctx, adminID, text, st) {
		t.Fatalf("ввод %q не обработан, состояние %T", text, st)
	}
}

func addExecutor(t *testing.T, s *jsonstore.Store, name string, rating int, balance int64) {
	t.Helper()
	u := &db.User{Username: name, Role: db.RoleContractor, Rating: rating, Balance: decimal.NewFromInt(balance), Status: db.UserStatusActive}
	if err := s.CreateUser(context.Background(), u); err != nil {
		t.Fatal(err)
	}
}

func TestSplitData(t *testing.T) {
	tests := []struct {
		data   string
		prefix string
		arg    string
		ok     bool
	}{
		{"entrepreneur_bob", pfxExecutor, "bob", true},
		{"delete_entrepreneur_bob", pfxDeleteExecutor, "bob", true},
		{"change_rating_bob", pfxChangeRating, "bob", true},
		{"withdrawal_reject_w-1", pfxWithdrawalRej, "w-1", true},
		{"dispute_cancel_order-1", pfxDisputeCancel, "order-1", true},
		{"entrepreneur_", "", "", false},
		{"client", "", "", false},
	}
	for _, tt := range tests {
		prefix, arg, ok := splitData(tt.data)
		if prefix != tt.prefix || arg != tt.arg || ok != tt.ok {
			t.Errorf("splitData(%q) = (%q, %q, %v), ожидалось (%q, %q, %v)", tt.data, prefix, arg, ok, tt.prefix, tt.arg, tt.ok)
		}
	}
}

func TestParseLinks(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"нет", nil},
		{" Нет ", nil},
		{"https://a.ru", []string{"https://a.ru"}},
		{"https://a.ru\n\n  https://b.ru  \n", []string{"https://a.ru", "https://b.ru"}},
	}
	for _, tt := range tests {
		got := parseLinks(tt.in)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Errorf("parseLinks(%q) = %v, ожидалось %v", tt.in, got, tt.want)
		}
	}
}

func TestCallbackFromStranger(t *testing.T) {
	p, _, _ := newPanel(t)
	q := tap(cbStats)
	q.From.ID = 42
	if p.HandleCallback(context.Background(), q) {
		t.Error("кнопку панели обработали для не-администратора")
	}
}

func TestRegisterExecutor(t *testing.T) {
	p, s, out := newPanel(t)
	ctx := context.Background()
	addExecutor(t, s, "bob", 10, 0)

	if !p.HandleCallback(ctx, tap(cbRegisterExecutor)) {
		t.Fatal("кнопка регистрации не обработана")
	}
	typeText(t, p, "bob")
	if !strings.Contains(out.last(), "уже существует") {
		t.Errorf("занятый логин: %q", out.last())
	}
	typeText(t, p, "carol")
	typeText(t, p, "123")
	if !strings.Contains(out.last(), "слишком короткий") {
		t.Errorf("короткий пароль: %q", out.last())
	}
	typeText(t, p, "secret")

	u, err := s.GetUser(ctx, "carol")
	if err != nil {
		t.Fatalf("исполнитель не создан: %v", err)
	}
	if u.Role != db.RoleContractor || u.Rating != 10 || !u.Balance.IsZero() || u.ChatID != nil {
		t.Errorf("новый исполнитель: %+v", u)
	}
	if st, _ := p.Sessions.Get(ctx, adminID); st != nil {
		t.Errorf("состояние не сброшено: %T", st)
	}
}

func TestSetRating(t *testing.T) {
	p, s, out := newPanel(t)
	ctx := context.Background()
	addExecutor(t, s, "bob", 10, 0)
	p.HandleCallback(ctx, tap(pfxChangeRating+"bob"))

	for _, bad := range []string{"0", "11", "пять"} {
		typeText(t, p, bad)
		if out.last() != "Рейтинг должен быть от 1 до 10." {
			t.Errorf("%q: ответ %q", bad, out.last())
		}
	}
	typeText(t, p, "7")
	u, _ := s.GetUser(ctx, "bob")
	if u.Rating != 7 {
		t.Errorf("рейтинг %d, ожидался 7", u.Rating)
	}
}

func TestListExecutors(t *testing.T) {
	p, s, out := newPanel(t)
	addExecutor(t, s, "bob", 9, 1500)
	p.HandleCallback(context.Background(), tap(cbAllExecutors))
	if out.last() != "Исполнители:" {
		t.Errorf("ответ %q", out.last())
	}
	u, _ := s.GetUser(context.Background(), "bob")
	if got := executorLabel(*u); got != "bob (★9 | 1500₽)" {
		t.Errorf("подпись %q", got)
	}
}

func TestDeleteExecutorNeedsConfirmation(t *testing.T) {
	p, s, _ := newPanel(t)
	ctx := context.Background()
	addExecutor(t, s, "bob", 10, 0)

	p.HandleCallback(ctx, tap(pfxDeleteExecutor+"bob"))
	typeText(t, p, "может быть")
	typeText(t, p, "нет")
	if _, err := s.GetUser(ctx, "bob"); err != nil {
		t.Fatalf("исполнитель удалён без подтверждения: %v", err)
	}

	p.HandleCallback(ctx, tap(pfxDeleteExecutor+"bob"))
	typeText(t, p, "да")
	if _, err := s.GetUser(ctx, "bob"); err == nil {
		t.Error("исполнитель не удалён")
	}
}

func TestDeleteExecutorWithOpenOrder(t *testing.T) {
	p, s, out := newPanel(t)
	ctx := context.Background()
	addExecutor(t, s, "bob", 10, 0)
	o := &db.Order{
		ID:               "order-1",
		Title:            "Ролик",
		Amount:           decimal.NewFromInt(15000),
		CustomerUsername: "alice",
		ExecutorUsername: "bob",
		Status:           db.StatusOnReview,
	}
	if err := s.CreateOrder(ctx, o); err != nil {
		t.Fatal(err)
	}

	p.HandleCallback(ctx, tap(pfxDeleteExecutor+"bob"))
	typeText(t, p, "да")
	if _, err := s.GetUser(ctx, "bob"); err != nil {
		t.Fatalf("исполнитель с заказом на проверке удалён: %v", err)
	}
	if !strings.Contains(out.last(), "незавершённые заказы") {
		t.Errorf("последнее сообщение %q", out.last())
	}

	if _, err := s.TransitionOrder(ctx, o.ID, db.StatusOnReview, db.StatusCompleted, db.OrderPatch{}); err != nil {
		t.Fatal(err)
	}
	p.HandleCallback(ctx, tap(pfxDeleteExecutor+"bob"))
	typeText(t, p, "да")
	if _, err := s.GetUser(ctx, "bob"); err == nil {
		t.Error("исполнитель без открытых заказов не удалён")
	}
}

func TestProcessWithdrawal(t *testing.T) {
	tests := []struct {
		desc    string
		approve bool
		balance int64
		status  db.WithdrawalStatus
	}{
		{"выплата", true, 400, db.WithdrawalPaid},
		{"отказ возвращает сумму", false, 1000, db.WithdrawalRejected},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			p, s, out := newPanel(t)
			ctx := context.Background()
			addExecutor(t, s, "bob", 10, 1000)
			w, _, err := p.Ledger.RequestWithdrawal(ctx, "bob", decimal.NewFromInt(600))
			if err != nil {
				t.Fatal(err)
			}
			data := pfxWithdrawalRej + w.ID
			if tt.approve {
				data = pfxWithdrawalPay + w.ID
			}
			p.HandleCallback(ctx, tap(data))

			got, _ := s.GetWithdrawal(ctx, w.ID)
			if got.Status != tt.status {
				t.Errorf("статус %s, ожидался %s", got.Status, tt.status)
			}
			u, _ := s.GetUser(ctx, "bob")
			if !u.Balance.Equal(decimal.NewFromInt(tt.balance)) {
				t.Errorf("баланс %s, ожидался %d", u.Balance, tt.balance)
			}

			p.HandleCallback(ctx, tap(data))
			if out.last() != "Заявка уже обработана." {
				t.Errorf("повторное нажатие: %q", out.last())
			}
			u, _ = s.GetUser(ctx, "bob")
			if !u.Balance.Equal(decimal.NewFromInt(tt.balance)) {
				t.Errorf("повторное нажатие изменило баланс: %s", u.Balance)
			}
		})
	}
}

func TestPortfolioAddFlow(t *testing.T) {
	p, s, _ := newPanel(t)
	ctx := context.Background()

	p.HandleCallback(ctx, tap(cbAddSites))
	typeText(t, p, "Лендинг кофейни")
	typeText(t, p, "Одностраничник с меню")

	st, _ := p.Sessions.Get(ctx, adminID)
	if !p.HandlePhoto(ctx, adminID, "photo-1", st) {
		t.Fatal("фото не принято")
	}
	typeText(t, p, "ещё")
	typeText(t, p, "готово")
	typeText(t, p, "https://coffee.example\nhttps://coffee.example/menu")

	items, err := s.PortfolioItems(ctx, db.CategorySites)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("работ в портфолио: %d", len(items))
	}
	it := items[0]
	if it.Title != "Лендинг кофейни" || len(it.Images) != 1 || len(it.Links) != 2 {
		t.Errorf("работа сохранена неверно: %+v", it)
	}

	p.HandleCallback(ctx, tap(pfxDeleteExecute+it.ID))
	if items, _ := s.PortfolioItems(ctx, db.CategorySites); len(items) != 0 {
		t.Errorf("работа не удалена")
	}
}

func TestDisputeCancelQueuesRefund(t *testing.T) {
	p, s, out := newPanel(t)
	ctx := context.Background()
	o := &db.Order{
		ID:               "order-1",
		Title:            "Ролик",
		Amount:           decimal.NewFromInt(15000),
		CustomerUsername: "alice",
		CustomerChatID:   100,
		ExecutorUsername: "bob",
		ExecutorChatID:   200,
		Status:           db.StatusAcceptedWaitingPayment,
	}
	if err := s.CreateOrder(ctx, o); err != nil {
		t.Fatal(err)
	}
	pay, err := p.Payments.Create(ctx, o)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Payments.ClientConfirm(ctx, o.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.TransitionOrder(ctx, o.ID, db.StatusAcceptedWaitingPayment, db.StatusDispute, db.OrderPatch{}); err != nil {
		t.Fatal(err)
	}

	p.HandleCallback(ctx, tap(pfxDisputeCancel+o.ID))

	got, _ := s.GetOrder(ctx, o.ID)
	if got.Status != db.StatusCancelled {
		t.Errorf("статус заказа %s", got.Status)
	}
	refund, _ := s.GetPayment(ctx, pay.ID)
	if refund.Status != db.PaymentRefundPending {
		t.Fatalf("платёж в статусе %s, ожидался refund_pending", refund.Status)
	}

	p.HandleCallback(ctx, tap(pfxRefundDone+pay.ID))
	refund, _ = s.GetPayment(ctx, pay.ID)
	if refund.Status != db.PaymentRefunded {
		t.Errorf("возврат не отмечен: %s", refund.Status)
	}
	if !strings.Contains(out.last(), "Возврат 15000.00 руб.") {
		t.Errorf("последнее сообщение %q", out.last())
	}
}

func TestStatsAndExport(t *testing.T) {
	p, s, out := newPanel(t)
	ctx := context.Background()
	addExecutor(t, s, "bob", 10, 1200)
	addExecutor(t, s, "carol", 8, 300)
	if err := s.CreateUser(ctx, &db.User{Username: "alice", Role: db.RoleClient}); err != nil {
		t.Fatal(err)
	}
	statuses := []db.OrderStatus{db.StatusPending, db.StatusInWork, db.StatusCompleted, db.StatusOnReview}
	for i, st := range statuses {
		o := &db.Order{ID: "o-" + string(rune('a'+i)), Title: "Заказ", Amount: decimal.NewFromInt(1000), CustomerUsername: "alice", Status: st, CreatedAt: time.Now()}
		if err := s.CreateOrder(ctx, o); err != nil {
			t.Fatal(err)
		}
	}

	st, err := CollectStats(ctx, s)
	if err != nil {
		t.Fatal(err)
	}
	if st.Clients != 1 || st.Executors != 2 || st.Orders != 4 || st.ActiveOrders != 2 || st.CompletedOrders != 1 {
		t.Errorf("статистика: %+v", st)
	}
	if !st.ExecutorsBalance.Equal(decimal.NewFromInt(1500)) {
		t.Errorf("сумма балансов %s", st.ExecutorsBalance)
	}

	data, err := ExportXLSX(ctx, s)
	if err != nil {
		t.Fatal(err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := f.GetRows(ordersSheet)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 5 {
		t.Errorf("строк на листе заказов: %d, ожидалось 5", len(rows))
	}
	rows, _ = f.GetRows(executorsSheet)
	if len(rows) != 3 {
		t.Errorf("строк на листе исполнителей: %d, ожидалось 3", len(rows))
	}

	p.HandleCallback(ctx, tap(cbExport))
	if len(out.docs) != 1 || !strings.HasSuffix(out.docs[0], ".xlsx") {
		t.Errorf("отчёт не отправлен: %v", out.docs)
	}
}
