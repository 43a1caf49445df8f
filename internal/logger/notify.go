package logger

import (
	"fmt"
	"freelance-market-bot/internal/tg"
	"go.uber.org/zap"
	"sync"
)

var (
	sender  tg.Sender
	adminID int64
	once    sync.Once
)

// InitNotifier инициализирует Telegram-уведомления об ошибках
func InitNotifier(s tg.Sender, admin int64) {
	once.Do(func() {
		sender = s
		adminID = admin
	})
}

// NotifyAdmin отправляет критическое уведомление админу
func NotifyAdmin(msg string) {
	if sender == nil || adminID == 0 {
		return
	}
	if err := tg.SendText(sender, adminID, "[ALERT] "+msg); err != nil {
		log.Warn("admin notification failed", zap.Error(err))
	}
}

// NotifyOnPanic ловит панику, логирует и уведомляет
func NotifyOnPanic(context string) {
	if r := recover(); r != nil {
		log.Error("panic recovered", zap.String("context", context), zap.String("panic", toString(r)), zap.Stack("stack"))
		NotifyAdmin("Panic in " + context + ": " + toString(r))
	}
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case error:
		return t.Error()
	default:
		return fmt.Sprint(v)
	}
}
