package bot

import (
	"testing"
	"time"
)

func TestRateLimiter(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	r := NewRateLimiter(1)
	r.now = func() time.Time { return now }

	if r.IsLimited(100, "/start") {
		t.Fatal("первый вызов не должен ограничиваться")
	}
	if !r.IsLimited(100, "/start") {
		t.Error("повтор сразу же должен ограничиваться")
	}
	if r.IsLimited(200, "/start") {
		t.Error("лимит одного пользователя не должен влиять на другого")
	}
	if r.IsLimited(100, "/help") {
		t.Error("лимит считается по команде")
	}

	now = now.Add(3 * time.Second)
	if r.IsLimited(100, "/start") {
		t.Error("после 2 секунд команда снова доступна")
	}

	if r.IsLimited(100, "оплатил") {
		t.Fatal("первое «оплатил» должно пройти")
	}
	now = now.Add(3 * time.Second)
	if !r.IsLimited(100, "оплатил") {
		t.Error("для «оплатил» лимит 5 секунд")
	}

	for i := 0; i < 3; i++ {
		if r.IsLimited(1, "/admin_export") {
			t.Error("администратор не ограничивается")
		}
	}
}

func TestLimitKey(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"/start", "/start"},
		{"/admin_restore backup.dump", "/admin_restore"},
		{"оплатил", "оплатил"},
		{"Оплатил!", "оплатил"},
		{"привет", ""},
		{"15 000", ""},
	}
	for _, tt := range tests {
		if got := limitKey(tt.text); got != tt.want {
			t.Errorf("limitKey(%q) = %q, ожидалось %q", tt.text, got, tt.want)
		}
	}
}
