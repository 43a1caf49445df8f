package gormstore

import (
	"context"
	"errors"
	"freelance-market-bot/internal/db"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"time"
)

// Store: хранилище на Postgres через gorm.
type Store struct {
	db *gorm.DB
}

var _ db.Store = (*Store)(nil)

var activePaymentStatuses = []db.PaymentStatus{db.PaymentPending, db.PaymentClientConfirmed, db.PaymentVerified}

func Open(dsn string) (*Store, error) {
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, err
	}
	if err := Migrate(gdb); err != nil {
		return nil, err
	}
	return New(gdb), nil
}

func New(gdb *gorm.DB) *Store {
	return &Store{db: gdb}
}

func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(&db.User{}, &db.Order{}, &db.Message{}, &db.Payment{}, &db.PortfolioItem{}, &db.UserState{}, &db.Withdrawal{})
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return db.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return db.ErrDuplicate
	}
	return err
}

// --- пользователи ---

func (s *Store) CreateUser(ctx context.Context, u *db.User) error {
	return translate(s.db.WithContext(ctx).Create(u).Error)
}

func (s *Store) GetUser(ctx context.Context, username string) (*db.User, error) {
	var u db.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (s *Store) UserByChat(ctx context.Context, chatID int64, role db.Role) (*db.User, error) {
	var u db.User
	if err := s.db.WithContext(ctx).Where("chat_id = ? AND role = ?", chatID, role).First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (s *Store) BindChat(ctx context.Context, username string, chatID int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var u db.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("username = ?", username).First(&u).Error; err != nil {
			return translate(err)
		}
		err := tx.Model(&db.User{}).
			Where("chat_id = ? AND role = ? AND username <> ?", chatID, u.Role, username).
			Update("chat_id", nil).Error
		if err != nil {
			return err
		}
		return tx.Model(&db.User{}).Where("username = ?", username).Update("chat_id", chatID).Error
	})
}

func (s *Store) UnbindChat(ctx context.Context, username string) error {
	res := s.db.WithContext(ctx).Model(&db.User{}).Where("username = ?", username).Update("chat_id", nil)
	return affected(res)
}

func (s *Store) ListUsers(ctx context.Context, role db.Role) ([]db.User, error) {
	var users []db.User
	q := s.db.WithContext(ctx).Where("role = ?", role)
	if role == db.RoleContractor {
		q = q.Order("rating desc, completed_orders desc, username")
	} else {
		q = q.Order("username")
	}
	return users, q.Find(&users).Error
}

func (s *Store) SetRating(ctx context.Context, username string, rating int) error {
	res := s.db.WithContext(ctx).Model(&db.User{}).
		Where("username = ? AND role = ?", username, db.RoleContractor).
		Update("rating", rating)
	return affected(res)
}

func (s *Store) SetBalance(ctx context.Context, username string, balance decimal.Decimal) error {
	res := s.db.WithContext(ctx).Model(&db.User{}).
		Where("username = ? AND role = ?", username, db.RoleContractor).
		Update("balance", balance)
	return affected(res)
}

// AddBalance: UPDATE ... SET balance = balance + ? RETURNING balance, без чтения перед записью.
func (s *Store) AddBalance(ctx context.Context, username string, delta decimal.Decimal) (decimal.Decimal, error) {
	var u db.User
	res := s.db.WithContext(ctx).Model(&u).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "balance"}}}).
		Where("username = ?", username).
		Update("balance", gorm.Expr("balance + ?", delta))
	if err := affected(res); err != nil {
		return decimal.Zero, err
	}
	return u.Balance, nil
}

func (s *Store) WithdrawBalance(ctx context.Context, username string, amount decimal.Decimal) (decimal.Decimal, error) {
	var u db.User
	res := s.db.WithContext(ctx).Model(&u).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "balance"}}}).
		Where("username = ? AND balance >= ?", username, amount).
		Update("balance", gorm.Expr("balance - ?", amount))
	if res.Error != nil {
		return decimal.Zero, res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetUser(ctx, username); err != nil {
			return decimal.Zero, err
		}
		return decimal.Zero, db.ErrInsufficientFunds
	}
	return u.Balance, nil
}

func (s *Store) IncrementCompleted(ctx context.Context, username string) error {
	res := s.db.WithContext(ctx).Model(&db.User{}).Where("username = ?", username).
		Update("completed_orders", gorm.Expr("completed_orders + 1"))
	return affected(res)
}

func (s *Store) DeleteUser(ctx context.Context, username string) error {
	return affected(s.db.WithContext(ctx).Where("username = ?", username).Delete(&db.User{}))
}

// --- заказы ---

func (s *Store) CreateOrder(ctx context.Context, o *db.Order) error {
	return translate(s.db.WithContext(ctx).Create(o).Error)
}

func (s *Store) GetOrder(ctx context.Context, id string) (*db.Order, error) {
	var o db.Order
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&o).Error; err != nil {
		return nil, translate(err)
	}
	return &o, nil
}

// TransitionOrder: условное обновление WHERE id = ? AND status = ?, как резервирование в транзакции.
func (s *Store) TransitionOrder(ctx context.Context, id string, from, to db.OrderStatus, patch db.OrderPatch) (*db.Order, error) {
	cols := patch.Columns()
	cols["status"] = to
	cols["updated_at"] = time.Now()
	res := s.db.WithContext(ctx).Model(&db.Order{}).Where("id = ? AND status = ?", id, from).Updates(cols)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetOrder(ctx, id); err != nil {
			return nil, err
		}
		return nil, db.ErrStatusConflict
	}
	return s.GetOrder(ctx, id)
}

func (s *Store) PatchOrder(ctx context.Context, id string, patch db.OrderPatch) error {
	cols := patch.Columns()
	if len(cols) == 0 {
		return nil
	}
	cols["updated_at"] = time.Now()
	return affected(s.db.WithContext(ctx).Model(&db.Order{}).Where("id = ?", id).Updates(cols))
}

func (s *Store) OrdersByCustomer(ctx context.Context, username string) ([]db.Order, error) {
	var orders []db.Order
	err := s.db.WithContext(ctx).Where("customer_username = ?", username).Order("created_at desc").Find(&orders).Error
	return orders, err
}

func (s *Store) OrdersByExecutor(ctx context.Context, username string) ([]db.Order, error) {
	var orders []db.Order
	err := s.db.WithContext(ctx).
		Where("executor_username = ? OR (offered_to = ? AND status = ?)", username, username, db.StatusPending).
		Order("created_at desc").Find(&orders).Error
	return orders, err
}

func (s *Store) OrdersByStatus(ctx context.Context, statuses ...db.OrderStatus) ([]db.Order, error) {
	var orders []db.Order
	err := s.db.WithContext(ctx).Where("status IN ?", statuses).Order("created_at").Find(&orders).Error
	return orders, err
}

func (s *Store) ListOrders(ctx context.Context) ([]db.Order, error) {
	var orders []db.Order
	return orders, s.db.WithContext(ctx).Order("created_at").Find(&orders).Error
}

// --- сообщения ---

func (s *Store) AddMessage(ctx context.Context, m *db.Message) error {
	return translate(s.db.WithContext(ctx).Create(m).Error)
}

func (s *Store) MarkDelivered(ctx context.Context, id string) error {
	return affected(s.db.WithContext(ctx).Model(&db.Message{}).Where("id = ?", id).Update("delivered", true))
}

func (s *Store) MessagesByOrder(ctx context.Context, orderID string) ([]db.Message, error) {
	var msgs []db.Message
	err := s.db.WithContext(ctx).Where("order_id = ?", orderID).Order("created_at, id").Find(&msgs).Error
	return msgs, err
}

// --- платежи ---

// CreatePayment блокирует строку заказа, чтобы два платежа не создались параллельно.
func (s *Store) CreatePayment(ctx context.Context, p *db.Payment) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var o db.Order
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", p.OrderID).First(&o).Error; err != nil {
			return translate(err)
		}
		var active int64
		err := tx.Model(&db.Payment{}).Where("order_id = ? AND status IN ?", p.OrderID, activePaymentStatuses).Count(&active).Error
		if err != nil {
			return err
		}
		if active > 0 {
			return db.ErrDuplicate
		}
		return translate(tx.Create(p).Error)
	})
}

func (s *Store) GetPayment(ctx context.Context, id string) (*db.Payment, error) {
	var p db.Payment
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (s *Store) ActivePayment(ctx context.Context, orderID string) (*db.Payment, error) {
	var p db.Payment
	err := s.db.WithContext(ctx).
		Where("order_id = ? AND status IN ?", orderID, activePaymentStatuses).
		Order("created_at desc").First(&p).Error
	if err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (s *Store) TransitionPayment(ctx context.Context, id string, from, to db.PaymentStatus, patch db.PaymentPatch) (*db.Payment, error) {
	cols := patch.Columns()
	cols["status"] = to
	res := s.db.WithContext(ctx).Model(&db.Payment{}).Where("id = ? AND status = ?", id, from).Updates(cols)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetPayment(ctx, id); err != nil {
			return nil, err
		}
		return nil, db.ErrStatusConflict
	}
	return s.GetPayment(ctx, id)
}

func (s *Store) PaymentsByUser(ctx context.Context, chatID int64, status db.PaymentStatus) ([]db.Payment, error) {
	var pays []db.Payment
	err := s.db.WithContext(ctx).Where("user_chat_id = ? AND status = ?", chatID, status).Order("created_at").Find(&pays).Error
	return pays, err
}

func (s *Store) PaymentsByStatus(ctx context.Context, status db.PaymentStatus) ([]db.Payment, error) {
	var pays []db.Payment
	err := s.db.WithContext(ctx).Where("status = ?", status).Order("created_at").Find(&pays).Error
	return pays, err
}

// --- портфолио ---

func (s *Store) AddPortfolioItem(ctx context.Context, item *db.PortfolioItem) error {
	return translate(s.db.WithContext(ctx).Create(item).Error)
}

func (s *Store) GetPortfolioItem(ctx context.Context, id string) (*db.PortfolioItem, error) {
	var item db.PortfolioItem
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&item).Error; err != nil {
		return nil, translate(err)
	}
	return &item, nil
}

func (s *Store) PortfolioItems(ctx context.Context, category string) ([]db.PortfolioItem, error) {
	var items []db.PortfolioItem
	err := s.db.WithContext(ctx).Where("category = ?", category).Order("created_at").Find(&items).Error
	return items, err
}

func (s *Store) DeletePortfolioItem(ctx context.Context, id string) error {
	return affected(s.db.WithContext(ctx).Where("id = ?", id).Delete(&db.PortfolioItem{}))
}

// --- состояния ввода ---

func (s *Store) SaveState(ctx context.Context, st db.UserState) error {
	st.UpdatedAt = time.Now()
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&st).Error
}

func (s *Store) LoadState(ctx context.Context, chatID int64) (*db.UserState, error) {
	var st db.UserState
	if err := s.db.WithContext(ctx).Where("chat_id = ?", chatID).First(&st).Error; err != nil {
		return nil, translate(err)
	}
	return &st, nil
}

func (s *Store) DeleteState(ctx context.Context, chatID int64) error {
	return s.db.WithContext(ctx).Where("chat_id = ?", chatID).Delete(&db.UserState{}).Error
}

// --- выводы средств ---

func (s *Store) CreateWithdrawal(ctx context.Context, w *db.Withdrawal) error {
	return translate(s.db.WithContext(ctx).Create(w).Error)
}

func (s *Store) GetWithdrawal(ctx context.Context, id string) (*db.Withdrawal, error) {
	var w db.Withdrawal
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&w).Error; err != nil {
		return nil, translate(err)
	}
	return &w, nil
}

func (s *Store) TransitionWithdrawal(ctx context.Context, id string, from, to db.WithdrawalStatus, at time.Time) (*db.Withdrawal, error) {
	res := s.db.WithContext(ctx).Model(&db.Withdrawal{}).Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{"status": to, "processed_at": at})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetWithdrawal(ctx, id); err != nil {
			return nil, err
		}
		return nil, db.ErrStatusConflict
	}
	return s.GetWithdrawal(ctx, id)
}

func (s *Store) WithdrawalsByStatus(ctx context.Context, status db.WithdrawalStatus) ([]db.Withdrawal, error) {
	var ws []db.Withdrawal
	err := s.db.WithContext(ctx).Where("status = ?", status).Order("created_at").Find(&ws).Error
	return ws, err
}

func affected(res *gorm.DB) error {
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return db.ErrNotFound
	}
	return nil
}
