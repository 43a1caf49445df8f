package chat

import (
	"context"
	"errors"
	"fmt"
	"freelance-market-bot/internal/db"
	"freelance-market-bot/internal/logger"
	"freelance-market-bot/internal/order"
	"freelance-market-bot/internal/tg"
	"github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"strings"
	"time"
)

var (
	// ErrUndeliverable: сообщение записано, но собеседнику не доставлено.
	ErrUndeliverable = errors.New("counterpart unreachable")
	ErrChatClosed    = errors.New("chat is not available in this order status")
	// ErrNotSaved: сообщение не записано в журнал и поэтому не отправлено.
	ErrNotSaved = errors.New("chat message not saved")
)

type Store interface {
	db.Users
	db.Orders
	db.Messages
}

type Relay struct {
	store  Store
	sender tg.Sender
}

func NewRelay(store Store, sender tg.Sender) *Relay {
	return &Relay{store: store, sender: sender}
}

// Open: статусы, в которых стороны переписываются.
func Open(s db.OrderStatus) bool {
	return s == db.StatusInWork || s == db.StatusOnReview || s == db.StatusDispute
}

func roleTitle(r db.Role) string {
	if r == db.RoleClient {
		return "👤 Заказчик"
	}
	return "👨‍💼 Исполнитель"
}

// Format: текст, который видит собеседник.
func Format(from db.Role, text string) string {
	return roleTitle(from) + ": " + text
}

// Counterpart возвращает логин второй стороны заказа для участника from.
func Counterpart(o *db.Order, from *db.User) (string, error) {
	switch {
	case from.Role == db.RoleClient && o.CustomerUsername == from.Username:
		return o.ExecutorUsername, nil
	case from.Role == db.RoleContractor && o.ExecutorUsername != "" && o.ExecutorUsername == from.Username:
		return o.CustomerUsername, nil
	}
	return "", order.ErrAccessDenied
}

// Send записывает сообщение в журнал заказа и пересылает его второй стороне.
// Несохранённое сообщение не пересылается. Возвращает ErrUndeliverable, если
// сообщение записано, но не доставлено.
func (r *Relay) Send(ctx context.Context, orderID string, from *db.User, text string) (*db.Message, error) {
	o, err := r.store.GetOrder(ctx, orderID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, order.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	to, err := Counterpart(o, from)
	if err != nil {
		return nil, err
	}
	if !Open(o.Status) {
		return nil, ErrChatClosed
	}

	msg := &db.Message{
		ID:        uuid.NewString(),
		OrderID:   o.ID,
		Username:  from.Username,
		UserRole:  from.Role,
		Text:      text,
		CreatedAt: time.Now(),
	}

	if err := r.store.AddMessage(ctx, msg); err != nil {
		logger.Error("Failed to save chat message",
			zap.String("order_id", o.ID),
			zap.String("from", from.Username),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrNotSaved, err)
	}

	deliverErr := r.deliver(ctx, to, Format(from.Role, text), o.ID)
	if deliverErr == nil {
		msg.Delivered = true
		if err := r.store.MarkDelivered(ctx, msg.ID); err != nil {
			logger.Warn("Failed to mark chat message delivered",
				zap.String("order_id", o.ID),
				zap.String("message_id", msg.ID),
				zap.Error(err))
		}
	}
	if deliverErr != nil {
		logger.Warn("Chat message not delivered",
			zap.String("order_id", o.ID),
			zap.String("from", from.Username),
			zap.String("to", to),
			zap.Error(deliverErr))
		return msg, ErrUndeliverable
	}
	return msg, nil
}

func (r *Relay) deliver(ctx context.Context, to, text, orderID string) error {
	u, err := r.store.GetUser(ctx, to)
	if err != nil {
		return err
	}
	if u.ChatID == nil {
		return errors.New("counterpart is logged out")
	}
	msg := tgbotapi.NewMessage(*u.ChatID, text)
	msg.ReplyMarkup = tg.Keyboard(tg.Btn("💬 Ответить", chatButtonData(u.Role, orderID)))
	_, err = r.sender.Send(msg)
	return err
}

func chatButtonData(role db.Role, orderID string) string {
	if role == db.RoleClient {
		return "open_client_chat_" + orderID
	}
	return "open_contractor_chat_" + orderID
}

// History возвращает журнал переписки; читать его могут только стороны заказа.
func (r *Relay) History(ctx context.Context, orderID string, viewer *db.User) ([]db.Message, error) {
	o, err := r.store.GetOrder(ctx, orderID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, order.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if viewer.Role != db.RoleAdmin {
		if _, err := Counterpart(o, viewer); err != nil {
			return nil, err
		}
	}
	return r.store.MessagesByOrder(ctx, orderID)
}

// FormatHistory: журнал в виде одного текстового сообщения.
func FormatHistory(o *db.Order, msgs []db.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📜 История чата по заказу #%s\n\n", o.ShortID())
	if len(msgs) == 0 {
		b.WriteString("Сообщений пока нет.")
		return b.String()
	}
	for _, m := range msgs {
		fmt.Fprintf(&b, "[%s] %s\n", m.CreatedAt.Format("02.01 15:04"), Format(m.UserRole, m.Text))
	}
	return strings.TrimRight(b.String(), "\n")
}
