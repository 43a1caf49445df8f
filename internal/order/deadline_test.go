package order

import (
	"testing"
	"time"
)

func TestParseDeadline(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"3 дня", 72 * time.Hour, true},
		{"1 день", 24 * time.Hour, true},
		{"5 часов", 5 * time.Hour, true},
		{"2 недели", 336 * time.Hour, true},
		{"30 минут", time.Hour, true},
		{"150 минут", 2 * time.Hour, true},
		{"Примерно 10 Дней", 240 * time.Hour, true},
		{"как можно скорее", 0, false},
		{"0 дней", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseDeadline(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParseDeadline(%q) = %v, %v; ожидалось %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestFormatRemaining(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		deadline time.Time
		want     string
	}{
		{now.Add(50*time.Hour + 5*time.Minute), "⏱ Осталось: 2 дн. 2 ч. 5 мин."},
		{now.Add(3*time.Hour + 30*time.Minute), "⏱ Осталось: 3 ч. 30 мин."},
		{now.Add(15 * time.Minute), "⏱ Осталось: 15 мин."},
		{now, "⏰ Время истекло!"},
		{now.Add(-time.Hour), "⏰ Время истекло!"},
	}
	for _, tt := range tests {
		if got := FormatRemaining(tt.deadline, now); got != tt.want {
			t.Errorf("FormatRemaining(%v) = %q, ожидалось %q", tt.deadline.Sub(now), got, tt.want)
		}
	}
}
