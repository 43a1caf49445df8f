package bot

import (
	"sync"
	"time"
)

const defaultCommandWindow = 2 * time.Second

// окна для команд, которые нельзя повторять часто
var commandWindows = map[string]time.Duration{
	"оплатил":        5 * time.Second,
	"/admin_export":  30 * time.Second,
	"/admin_backup":  60 * time.Second,
	"/admin_restore": 60 * time.Second,
}

type limitSlot struct {
	userID int64
	cmd    string
}

// RateLimiter ограничивает частоту команд одного пользователя. Состояние живёт в памяти процесса.
type RateLimiter struct {
	mu      sync.Mutex
	adminID int64
	seen    map[limitSlot]time.Time
	now     func() time.Time
}

func NewRateLimiter(adminID int64) *RateLimiter {
	return &RateLimiter{adminID: adminID, seen: make(map[limitSlot]time.Time), now: time.Now}
}

// IsLimited сообщает, что команда повторена раньше, чем закончилось её окно.
func (r *RateLimiter) IsLimited(userID int64, cmd string) bool {
	if r.adminID != 0 && userID == r.adminID {
		return false
	}
	window, ok := commandWindows[cmd]
	if !ok {
		window = defaultCommandWindow
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	slot := limitSlot{userID: userID, cmd: cmd}
	now := r.now()
	if last, ok := r.seen[slot]; ok && now.Sub(last) < window {
		return true
	}
	r.seen[slot] = now
	return false
}
