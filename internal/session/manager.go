package session

import (
	"context"
	"errors"
	"freelance-market-bot/internal/db"
	"freelance-market-bot/internal/logger"
	"go.uber.org/zap"
	"sync"
)

// Manager хранит текущее состояние ввода каждого чата. Кэш в памяти,
// запись сразу уходит в хранилище, чтобы перезапуск бота не терял диалог.
type Manager struct {
	store db.States
	mu    sync.RWMutex
	cache map[int64]State
	// чаты, для которых точно известно, что состояния нет
	empty map[int64]struct{}
}

func NewManager(store db.States) *Manager {
	return &Manager{
		store: store,
		cache: make(map[int64]State),
		empty: make(map[int64]struct{}),
	}
}

// Get возвращает состояние чата или nil, если бот ничего не ждёт.
func (m *Manager) Get(ctx context.Context, chatID int64) (State, error) {
	m.mu.RLock()
	st, ok := m.cache[chatID]
	_, none := m.empty[chatID]
	m.mu.RUnlock()
	if ok {
		return st, nil
	}
	if none {
		return nil, nil
	}

	row, err := m.store.LoadState(ctx, chatID)
	if errors.Is(err, db.ErrNotFound) {
		m.mu.Lock()
		m.empty[chatID] = struct{}{}
		m.mu.Unlock()
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	st, err = Decode(Kind(row.Kind), row.Payload)
	if err != nil {
		// битое состояние не должно блокировать пользователя
		logger.Warn("Dropping undecodable state", zap.Int64("chat_id", chatID), zap.Error(err))
		_ = m.Clear(ctx, chatID)
		return nil, nil
	}
	m.mu.Lock()
	m.cache[chatID] = st
	m.mu.Unlock()
	return st, nil
}

func (m *Manager) Set(ctx context.Context, chatID int64, st State) error {
	kind, payload, err := Encode(st)
	if err != nil {
		return err
	}
	if err := m.store.SaveState(ctx, db.UserState{ChatID: chatID, Kind: string(kind), Payload: payload}); err != nil {
		return err
	}
	m.mu.Lock()
	m.cache[chatID] = st
	delete(m.empty, chatID)
	m.mu.Unlock()
	return nil
}

func (m *Manager) Clear(ctx context.Context, chatID int64) error {
	m.mu.Lock()
	delete(m.cache, chatID)
	m.empty[chatID] = struct{}{}
	m.mu.Unlock()
	return m.store.DeleteState(ctx, chatID)
}

// Is сообщает, ждёт ли чат ввода данного вида.
func (m *Manager) Is(ctx context.Context, chatID int64, kind Kind) bool {
	st, err := m.Get(ctx, chatID)
	return err == nil && st != nil && st.Kind() == kind
}
