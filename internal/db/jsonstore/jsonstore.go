package jsonstore

import (
	"context"
	"encoding/json"
	"errors"
	"freelance-market-bot/internal/db"
	"github.com/shopspring/decimal"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// snapshot: содержимое файла данных.
type snapshot struct {
	Users       map[string]*db.User          `json:"users"`
	Orders      map[string]*db.Order         `json:"orders"`
	Messages    []*db.Message                `json:"messages"`
	Payments    map[string]*db.Payment       `json:"payments"`
	Portfolio   map[string]*db.PortfolioItem `json:"portfolio"`
	States      map[int64]*db.UserState      `json:"states"`
	Withdrawals map[string]*db.Withdrawal    `json:"withdrawals"`
}

// Store держит данные в памяти и после каждого изменения переписывает файл целиком.
// С пустым path работает только в памяти.
type Store struct {
	mu   sync.RWMutex
	path string
	data snapshot
}

var _ db.Store = (*Store)(nil)

func New(path string) (*Store, error) {
	s := &Store{path: path, data: emptySnapshot()}
	if path == "" {
		return s, nil
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		return nil, err
	}
	s.data.fill()
	return s, nil
}

// NewMemory: хранилище без файла, для тестов.
func NewMemory() *Store {
	s, _ := New("")
	return s
}

func emptySnapshot() snapshot {
	var sn snapshot
	sn.fill()
	return sn
}

func (sn *snapshot) fill() {
	if sn.Users == nil {
		sn.Users = map[string]*db.User{}
	}
	if sn.Orders == nil {
		sn.Orders = map[string]*db.Order{}
	}
	if sn.Payments == nil {
		sn.Payments = map[string]*db.Payment{}
	}
	if sn.Portfolio == nil {
		sn.Portfolio = map[string]*db.PortfolioItem{}
	}
	if sn.States == nil {
		sn.States = map[int64]*db.UserState{}
	}
	if sn.Withdrawals == nil {
		sn.Withdrawals = map[string]*db.Withdrawal{}
	}
}

// flush вызывается под s.mu. Запись через временный файл и rename.
func (s *Store) flush() error {
	if s.path == "" {
		return nil
	}
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".store-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

// commit пишет файл после изменения в памяти. Если запись не удалась, изменение
// откатывается: в памяти остаётся то же, что на диске.
func (s *Store) commit(undo ...func()) error {
	if err := s.flush(); err != nil {
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
		return err
	}
	return nil
}

// put кладёт v под ключ k и возвращает откат.
func put[K comparable, V any](m map[K]*V, k K, v *V) func() {
	prev, had := m[k]
	m[k] = v
	return func() {
		if had {
			m[k] = prev
		} else {
			delete(m, k)
		}
	}
}

func drop[K comparable, V any](m map[K]*V, k K) func() {
	prev, had := m[k]
	delete(m, k)
	return func() {
		if had {
			m[k] = prev
		}
	}
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flush()
}

// --- пользователи ---

func (s *Store) CreateUser(_ context.Context, u *db.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.Users[u.Username]; ok {
		return db.ErrDuplicate
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	cp := *u
	return s.commit(put(s.data.Users, u.Username, &cp))
}

func (s *Store) GetUser(_ context.Context, username string) (*db.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.data.Users[username]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Store) UserByChat(_ context.Context, chatID int64, role db.Role) (*db.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.data.Users {
		if u.Role == role && u.ChatID != nil && *u.ChatID == chatID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, db.ErrNotFound
}

func (s *Store) BindChat(_ context.Context, username string, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.data.Users[username]
	if !ok {
		return db.ErrNotFound
	}
	var undo []func()
	for name, other := range s.data.Users {
		if name != username && other.Role == u.Role && other.ChatID != nil && *other.ChatID == chatID {
			unbound := *other
			unbound.ChatID = nil
			undo = append(undo, put(s.data.Users, name, &unbound))
		}
	}
	next := *u
	next.ChatID = db.Ptr(chatID)
	undo = append(undo, put(s.data.Users, username, &next))
	return s.commit(undo...)
}

func (s *Store) UnbindChat(_ context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.data.Users[username]
	if !ok {
		return db.ErrNotFound
	}
	next := *u
	next.ChatID = nil
	return s.commit(put(s.data.Users, username, &next))
}

func (s *Store) ListUsers(_ context.Context, role db.Role) ([]db.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var users []db.User
	for _, u := range s.data.Users {
		if u.Role == role {
			users = append(users, *u)
		}
	}
	sort.Slice(users, func(i, j int) bool {
		if role == db.RoleContractor {
			if users[i].Rating != users[j].Rating {
				return users[i].Rating > users[j].Rating
			}
			if users[i].CompletedOrders != users[j].CompletedOrders {
				return users[i].CompletedOrders > users[j].CompletedOrders
			}
		}
		return users[i].Username < users[j].Username
	})
	return users, nil
}

func (s *Store) contractor(username string) (*db.User, error) {
	u, ok := s.data.Users[username]
	if !ok || u.Role != db.RoleContractor {
		return nil, db.ErrNotFound
	}
	return u, nil
}

func (s *Store) SetRating(_ context.Context, username string, rating int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, err := s.contractor(username)
	if err != nil {
		return err
	}
	next := *u
	next.Rating = rating
	return s.commit(put(s.data.Users, username, &next))
}

func (s *Store) SetBalance(_ context.Context, username string, balance decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, err := s.contractor(username)
	if err != nil {
		return err
	}
	next := *u
	next.Balance = balance
	return s.commit(put(s.data.Users, username, &next))
}

func (s *Store) AddBalance(_ context.Context, username string, delta decimal.Decimal) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.data.Users[username]
	if !ok {
		return decimal.Zero, db.ErrNotFound
	}
	next := *u
	next.Balance = u.Balance.Add(delta)
	if err := s.commit(put(s.data.Users, username, &next)); err != nil {
		return decimal.Zero, err
	}
	return next.Balance, nil
}

func (s *Store) WithdrawBalance(_ context.Context, username string, amount decimal.Decimal) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.data.Users[username]
	if !ok {
		return decimal.Zero, db.ErrNotFound
	}
	if u.Balance.LessThan(amount) {
		return decimal.Zero, db.ErrInsufficientFunds
	}
	next := *u
	next.Balance = u.Balance.Sub(amount)
	if err := s.commit(put(s.data.Users, username, &next)); err != nil {
		return decimal.Zero, err
	}
	return next.Balance, nil
}

func (s *Store) IncrementCompleted(_ context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.data.Users[username]
	if !ok {
		return db.ErrNotFound
	}
	next := *u
	next.CompletedOrders++
	return s.commit(put(s.data.Users, username, &next))
}

func (s *Store) DeleteUser(_ context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.Users[username]; !ok {
		return db.ErrNotFound
	}
	return s.commit(drop(s.data.Users, username))
}

// --- заказы ---

func copyOrder(o *db.Order) db.Order {
	cp := *o
	cp.DeclinedBy = append(db.StringList(nil), o.DeclinedBy...)
	return cp
}

func (s *Store) CreateOrder(_ context.Context, o *db.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.Orders[o.ID]; ok {
		return db.ErrDuplicate
	}
	now := time.Now()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	cp := copyOrder(o)
	return s.commit(put(s.data.Orders, o.ID, &cp))
}

func (s *Store) GetOrder(_ context.Context, id string) (*db.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.data.Orders[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := copyOrder(o)
	return &cp, nil
}

func (s *Store) TransitionOrder(_ context.Context, id string, from, to db.OrderStatus, patch db.OrderPatch) (*db.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.data.Orders[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	if o.Status != from {
		return nil, db.ErrStatusConflict
	}
	next := copyOrder(o)
	next.Status = to
	patch.Apply(&next)
	next.UpdatedAt = time.Now()
	if err := s.commit(put(s.data.Orders, id, &next)); err != nil {
		return nil, err
	}
	cp := copyOrder(&next)
	return &cp, nil
}

func (s *Store) PatchOrder(_ context.Context, id string, patch db.OrderPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.data.Orders[id]
	if !ok {
		return db.ErrNotFound
	}
	next := copyOrder(o)
	patch.Apply(&next)
	next.UpdatedAt = time.Now()
	return s.commit(put(s.data.Orders, id, &next))
}

func (s *Store) filterOrders(keep func(*db.Order) bool, newestFirst bool) []db.Order {
	var out []db.Order
	for _, o := range s.data.Orders {
		if keep(o) {
			out = append(out, copyOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if newestFirst {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *Store) OrdersByCustomer(_ context.Context, username string) ([]db.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterOrders(func(o *db.Order) bool { return o.CustomerUsername == username }, true), nil
}

func (s *Store) OrdersByExecutor(_ context.Context, username string) ([]db.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterOrders(func(o *db.Order) bool {
		return o.ExecutorUsername == username || (o.OfferedTo == username && o.Status == db.StatusPending)
	}, true), nil
}

func (s *Store) OrdersByStatus(_ context.Context, statuses ...db.OrderStatus) ([]db.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterOrders(func(o *db.Order) bool {
		for _, st := range statuses {
			if o.Status == st {
				return true
			}
		}
		return false
	}, false), nil
}

func (s *Store) ListOrders(_ context.Context) ([]db.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterOrders(func(*db.Order) bool { return true }, false), nil
}

// --- сообщения ---

func (s *Store) AddMessage(_ context.Context, m *db.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	cp := *m
	n := len(s.data.Messages)
	s.data.Messages = append(s.data.Messages, &cp)
	return s.commit(func() { s.data.Messages = s.data.Messages[:n] })
}

func (s *Store) MarkDelivered(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.data.Messages {
		if m.ID != id {
			continue
		}
		if m.Delivered {
			return nil
		}
		next := *m
		next.Delivered = true
		s.data.Messages[i] = &next
		return s.commit(func() { s.data.Messages[i] = m })
	}
	return db.ErrNotFound
}

func (s *Store) MessagesByOrder(_ context.Context, orderID string) ([]db.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []db.Message
	for _, m := range s.data.Messages {
		if m.OrderID == orderID {
			out = append(out, *m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// --- платежи ---

func (s *Store) activePayment(orderID string) *db.Payment {
	var found *db.Payment
	for _, p := range s.data.Payments {
		if p.OrderID == orderID && p.Status.Active() {
			if found == nil || p.CreatedAt.After(found.CreatedAt) {
				found = p
			}
		}
	}
	return found
}

func (s *Store) CreatePayment(_ context.Context, p *db.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.Orders[p.OrderID]; !ok {
		return db.ErrNotFound
	}
	if _, ok := s.data.Payments[p.ID]; ok {
		return db.ErrDuplicate
	}
	if s.activePayment(p.OrderID) != nil {
		return db.ErrDuplicate
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	cp := *p
	return s.commit(put(s.data.Payments, p.ID, &cp))
}

func (s *Store) GetPayment(_ context.Context, id string) (*db.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.data.Payments[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Store) ActivePayment(_ context.Context, orderID string) (*db.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p := s.activePayment(orderID)
	if p == nil {
		return nil, db.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Store) TransitionPayment(_ context.Context, id string, from, to db.PaymentStatus, patch db.PaymentPatch) (*db.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.data.Payments[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	if p.Status != from {
		return nil, db.ErrStatusConflict
	}
	next := *p
	next.Status = to
	patch.Apply(&next)
	if err := s.commit(put(s.data.Payments, id, &next)); err != nil {
		return nil, err
	}
	cp := next
	return &cp, nil
}

func (s *Store) paymentsWhere(keep func(*db.Payment) bool) []db.Payment {
	var out []db.Payment
	for _, p := range s.data.Payments {
		if keep(p) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) PaymentsByUser(_ context.Context, chatID int64, status db.PaymentStatus) ([]db.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paymentsWhere(func(p *db.Payment) bool { return p.UserChatID == chatID && p.Status == status }), nil
}

func (s *Store) PaymentsByStatus(_ context.Context, status db.PaymentStatus) ([]db.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paymentsWhere(func(p *db.Payment) bool { return p.Status == status }), nil
}

// --- портфолио ---

func copyItem(item *db.PortfolioItem) db.PortfolioItem {
	cp := *item
	cp.Images = append(db.StringList(nil), item.Images...)
	cp.Links = append(db.StringList(nil), item.Links...)
	return cp
}

func (s *Store) AddPortfolioItem(_ context.Context, item *db.PortfolioItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.Portfolio[item.ID]; ok {
		return db.ErrDuplicate
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	cp := copyItem(item)
	return s.commit(put(s.data.Portfolio, item.ID, &cp))
}

func (s *Store) GetPortfolioItem(_ context.Context, id string) (*db.PortfolioItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.data.Portfolio[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := copyItem(item)
	return &cp, nil
}

func (s *Store) PortfolioItems(_ context.Context, category string) ([]db.PortfolioItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []db.PortfolioItem
	for _, item := range s.data.Portfolio {
		if item.Category == category {
			out = append(out, copyItem(item))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) DeletePortfolioItem(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.Portfolio[id]; !ok {
		return db.ErrNotFound
	}
	return s.commit(drop(s.data.Portfolio, id))
}

// --- состояния ввода ---

func (s *Store) SaveState(_ context.Context, st db.UserState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st.UpdatedAt = time.Now()
	return s.commit(put(s.data.States, st.ChatID, &st))
}

func (s *Store) LoadState(_ context.Context, chatID int64) (*db.UserState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.data.States[chatID]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *st
	return &cp, nil
}

func (s *Store) DeleteState(_ context.Context, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.States[chatID]; !ok {
		return nil
	}
	return s.commit(drop(s.data.States, chatID))
}

// --- выводы средств ---

func (s *Store) CreateWithdrawal(_ context.Context, w *db.Withdrawal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.Withdrawals[w.ID]; ok {
		return db.ErrDuplicate
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now()
	}
	cp := *w
	return s.commit(put(s.data.Withdrawals, w.ID, &cp))
}

func (s *Store) GetWithdrawal(_ context.Context, id string) (*db.Withdrawal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.data.Withdrawals[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (s *Store) TransitionWithdrawal(_ context.Context, id string, from, to db.WithdrawalStatus, at time.Time) (*db.Withdrawal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.data.Withdrawals[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	if w.Status != from {
		return nil, db.ErrStatusConflict
	}
	next := *w
	next.Status = to
	next.ProcessedAt = db.Ptr(at)
	if err := s.commit(put(s.data.Withdrawals, id, &next)); err != nil {
		return nil, err
	}
	cp := next
	return &cp, nil
}

func (s *Store) WithdrawalsByStatus(_ context.Context, status db.WithdrawalStatus) ([]db.Withdrawal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []db.Withdrawal
	for _, w := range s.data.Withdrawals {
		if w.Status == status {
			out = append(out, *w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
