package admin

import (
	"context"
	"fmt"
	"freelance-market-bot/internal/db"
	"freelance-market-bot/internal/order"
	"freelance-market-bot/internal/tg"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"time"
)

type Stats struct {
	Clients            int
	Executors          int
	Orders             int
	ActiveOrders       int
	CompletedOrders    int
	Disputes           int
	ExecutorsBalance   decimal.Decimal
	PendingWithdrawals decimal.Decimal
}

// CollectStats считает сводку по пользователям, заказам и балансам.
func CollectStats(ctx context.Context, store db.Store) (Stats, error) {
	var st Stats
	clients, err := store.ListUsers(ctx, db.RoleClient)
	if err != nil {
		return st, err
	}
	executors, err := store.ListUsers(ctx, db.RoleContractor)
	if err != nil {
		return st, err
	}
	orders, err := store.ListOrders(ctx)
	if err != nil {
		return st, err
	}
	withdrawals, err := store.WithdrawalsByStatus(ctx, db.WithdrawalRequested)
	if err != nil {
		return st, err
	}

	st.Clients = len(clients)
	st.Executors = len(executors)
	st.Orders = len(orders)
	for _, e := range executors {
		st.ExecutorsBalance = st.ExecutorsBalance.Add(e.Balance)
	}
	for _, o := range orders {
		switch {
		case order.Active(o.Status):
			st.ActiveOrders++
		case o.Status == db.StatusCompleted:
			st.CompletedOrders++
		case o.Status == db.StatusDispute:
			st.Disputes++
		}
	}
	for _, w := range withdrawals {
		st.PendingWithdrawals = st.PendingWithdrawals.Add(w.Amount)
	}
	return st, nil
}

func (s Stats) String() string {
	return fmt.Sprintf("📊 Статистика\n\n"+
		"👤 Заказчиков: %d\n"+
		"👨‍💼 Исполнителей: %d\n"+
		"📋 Заказов всего: %d\n"+
		"🛠 Активных заказов: %d\n"+
		"🏁 Завершённых: %d\n"+
		"⚖️ Споров: %d\n"+
		"💰 Сумма балансов исполнителей: %s руб.\n"+
		"💸 Ожидает выплаты: %s руб.",
		s.Clients, s.Executors, s.Orders, s.ActiveOrders, s.CompletedOrders, s.Disputes,
		s.ExecutorsBalance.StringFixed(2), s.PendingWithdrawals.StringFixed(2))
}

func (p *Panel) showStats(ctx context.Context, chatID int64) {
	st, err := CollectStats(ctx, p.Store)
	if err != nil {
		p.fail(chatID, "статистика", err)
		return
	}
	p.send(chatID, st.String(), *backKeyboard(cbBack))
}

const (
	ordersSheet    = "Заказы"
	executorsSheet = "Исполнители"
)

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("02.01.2006 15:04")
}

// ExportXLSX строит отчёт: лист заказов и лист исполнителей.
func ExportXLSX(ctx context.Context, store db.Store) ([]byte, error) {
	orders, err := store.ListOrders(ctx)
	if err != nil {
		return nil, err
	}
	executors, err := store.ListUsers(ctx, db.RoleContractor)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ordersSheet); err != nil {
		return nil, err
	}
	header := []interface{}{"ID", "Название", "Заказчик", "Исполнитель", "Сумма", "Статус", "Сроки", "Доработок", "Создан", "Оплачен", "Завершён"}
	if err := f.SetSheetRow(ordersSheet, "A1", &header); err != nil {
		return nil, err
	}
	for i, o := range orders {
		amount, _ := o.Amount.Float64()
		row := []interface{}{
			o.ID, o.Title, o.CustomerUsername, o.ExecutorUsername, amount, o.Status.Title(),
			o.DeadlineText, o.RevisionCount, o.CreatedAt.Format("02.01.2006 15:04"), formatTime(o.PaidAt), formatTime(o.CompletedAt),
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(ordersSheet, cell, &row); err != nil {
			return nil, err
		}
	}

	if _, err := f.NewSheet(executorsSheet); err != nil {
		return nil, err
	}
	header = []interface{}{"Логин", "Рейтинг", "Баланс", "Выполнено заказов", "Статус"}
	if err := f.SetSheetRow(executorsSheet, "A1", &header); err != nil {
		return nil, err
	}
	for i, e := range executors {
		balance, _ := e.Balance.Float64()
		row := []interface{}{e.Username, e.Rating, balance, e.CompletedOrders, e.Status}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(executorsSheet, cell, &row); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (p *Panel) export(ctx context.Context, chatID int64) {
	data, err := ExportXLSX(ctx, p.Store)
	if err != nil {
		p.fail(chatID, "выгрузка", err)
		return
	}
	name := fmt.Sprintf("orders_report_%s.xlsx", time.Now().Format("20060102_150405"))
	if err := tg.SendDocument(p.Sender, chatID, name, data, fmt.Sprintf("Отчет по заказам за %s", time.Now().Format("02.01.2006"))); err != nil {
		p.fail(chatID, "выгрузка", err)
	}
}
