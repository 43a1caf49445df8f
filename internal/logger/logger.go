package logger

import (
	"go.uber.org/zap"
)

var log, _ = zap.NewProduction()

// SetLogger подменяет логгер (zap.NewNop() в тестах).
func SetLogger(l *zap.Logger) {
	if l != nil {
		log = l
	}
}

func Sync() {
	_ = log.Sync()
}

func Info(msg string, fields ...zap.Field) {
	log.Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	log.Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	log.Error(msg, fields...)
}

func LogAdminAction(adminID int64, action, params string) {
	log.Info("admin_action", zap.Int64("admin_id", adminID), zap.String("action", action), zap.String("params", params))
}

func LogTransition(orderID, from, to, actor string) {
	log.Info("order_transition", zap.String("order_id", orderID), zap.String("from", from), zap.String("to", to), zap.String("actor", actor))
}
