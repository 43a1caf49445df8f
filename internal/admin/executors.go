package admin

import (
	"context"
	"errors"
	"fmt"
	"freelance-market-bot/internal/auth"
	"freelance-market-bot/internal/db"
	"freelance-market-bot/internal/ledger"
	"freelance-market-bot/internal/logger"
	"freelance-market-bot/internal/order"
	"freelance-market-bot/internal/session"
	"freelance-market-bot/internal/tg"
	"strconv"
	"strings"
)

func (p *Panel) registerStart(ctx context.Context, c press) {
	if err := p.Sessions.Set(ctx, c.chatID, session.AdminRegisterLogin{}); err != nil {
		p.fail(c.chatID, "регистрация", err)
		return
	}
	p.reply(c.chatID, "Введите логин нового исполнителя:")
}

func (p *Panel) registerLogin(ctx context.Context, chatID int64, text string) {
	switch err := p.Auth.ValidateUsername(ctx, text); {
	case errors.Is(err, auth.ErrUsernameTaken):
		p.reply(chatID, "Пользователь с таким логином уже существует. Введите другой логин:")
		return
	case errors.Is(err, auth.ErrBadUsername):
		p.reply(chatID, "Логин может содержать только латинские буквы, цифры и _ (от 3 до 32 символов). Введите другой логин:")
		return
	case err != nil:
		p.fail(chatID, "регистрация", err)
		return
	}
	if err := p.Sessions.Set(ctx, chatID, session.AdminRegisterPassword{Login: text}); err != nil {
		p.fail(chatID, "регистрация", err)
		return
	}
	p.reply(chatID, "Введите пароль:")
}

func (p *Panel) registerPassword(ctx context.Context, chatID int64, s session.AdminRegisterPassword, text string) {
	u, err := p.Auth.Register(ctx, s.Login, text, db.RoleContractor, 0)
	switch {
	case errors.Is(err, auth.ErrWeakPassword):
		p.reply(chatID, "Пароль слишком короткий (минимум 4 символа). Введите другой пароль:")
		return
	case errors.Is(err, auth.ErrUsernameTaken):
		_ = p.Sessions.Set(ctx, chatID, session.AdminRegisterLogin{})
		p.reply(chatID, "Пользователь с таким логином уже существует. Введите другой логин:")
		return
	case err != nil:
		_ = p.Sessions.Clear(ctx, chatID)
		p.fail(chatID, "регистрация", err)
		return
	}
	_ = p.Sessions.Clear(ctx, chatID)
	logger.LogAdminAction(chatID, "register_executor", u.Username)
	p.send(chatID, fmt.Sprintf("✅ Исполнитель %s зарегистрирован!\nРейтинг: %d/10, баланс: 0 руб.", u.Username, u.Rating), p.menu())
}

func executorLabel(u db.User) string {
	return fmt.Sprintf("%s (★%d | %s₽)", u.Username, u.Rating, u.Balance.StringFixed(0))
}

func (p *Panel) listExecutors(ctx context.Context, c press) {
	users, err := p.Store.ListUsers(ctx, db.RoleContractor)
	if err != nil {
		p.fail(c.chatID, "список исполнителей", err)
		return
	}
	if len(users) == 0 {
		p.edit(c, "Исполнителей пока нет.", backKeyboard(cbBack))
		return
	}
	btns := make([]tg.Button, 0, len(users)+1)
	for _, u := range users {
		btns = append(btns, tg.Btn(executorLabel(u), pfxExecutor+u.Username))
	}
	btns = append(btns, tg.Btn("← Назад", cbBack))
	kb := tg.Keyboard(btns...)
	p.edit(c, "Исполнители:", &kb)
}

func executorCard(u *db.User) string {
	chat := "не в сети"
	if u.ChatID != nil {
		chat = strconv.FormatInt(*u.ChatID, 10)
	}
	return fmt.Sprintf("👤 Логин: %s\n⭐ Рейтинг: %d/10\n💰 Баланс: %s руб.\n✅ Выполнено заказов: %d\n💬 Chat ID: %s",
		u.Username, u.Rating, u.Balance.StringFixed(2), u.CompletedOrders, chat)
}

func (p *Panel) executorDetails(ctx context.Context, c press, login string) {
	u, err := p.Store.GetUser(ctx, login)
	if errors.Is(err, db.ErrNotFound) {
		p.reply(c.chatID, "Исполнитель не найден.")
		return
	}
	if err != nil {
		p.fail(c.chatID, "исполнитель", err)
		return
	}
	kb := tg.Keyboard(
		tg.Btn("⭐ Изменить рейтинг", pfxChangeRating+login),
		tg.Btn("💰 Изменить баланс", pfxChangeBalance+login),
		tg.Btn("🗑 Удалить", pfxDeleteExecutor+login),
		tg.Btn("← Назад", cbAllExecutors),
	)
	p.edit(c, executorCard(u), &kb)
}

func (p *Panel) askRating(ctx context.Context, c press, login string) {
	if err := p.Sessions.Set(ctx, c.chatID, session.AdminRating{Login: login}); err != nil {
		p.fail(c.chatID, "рейтинг", err)
		return
	}
	p.reply(c.chatID, "Введите новый рейтинг (от 1 до 10):")
}

func (p *Panel) setRating(ctx context.Context, chatID int64, s session.AdminRating, text string) {
	r, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || r < 1 || r > 10 {
		p.reply(chatID, "Рейтинг должен быть от 1 до 10.")
		return
	}
	_ = p.Sessions.Clear(ctx, chatID)
	if err := p.Store.SetRating(ctx, s.Login, r); err != nil {
		p.fail(chatID, "рейтинг", err)
		return
	}
	logger.LogAdminAction(chatID, "set_rating", fmt.Sprintf("%s=%d", s.Login, r))
	p.send(chatID, fmt.Sprintf("✅ Рейтинг исполнителя %s: %d/10", s.Login, r), p.menu())
}

func (p *Panel) askBalance(ctx context.Context, c press, login string) {
	if err := p.Sessions.Set(ctx, c.chatID, session.AdminBalance{Login: login}); err != nil {
		p.fail(c.chatID, "баланс", err)
		return
	}
	p.reply(c.chatID, "Введите новый баланс:")
}

func (p *Panel) setBalance(ctx context.Context, chatID int64, s session.AdminBalance, text string) {
	amount, err := ledger.ParseAmount(text)
	if err != nil {
		p.reply(chatID, "Введите баланс числом, например 1500:")
		return
	}
	if amount.IsNegative() {
		p.reply(chatID, "Баланс не может быть отрицательным.")
		return
	}
	_ = p.Sessions.Clear(ctx, chatID)
	if err := p.Ledger.SetBalance(ctx, s.Login, amount); err != nil {
		p.fail(chatID, "баланс", err)
		return
	}
	logger.LogAdminAction(chatID, "set_balance", fmt.Sprintf("%s=%s", s.Login, amount.StringFixed(2)))
	p.send(chatID, fmt.Sprintf("✅ Баланс исполнителя %s: %s руб.", s.Login, amount.StringFixed(2)), p.menu())
}

func (p *Panel) askDelete(ctx context.Context, c press, login string) {
	if err := p.Sessions.Set(ctx, c.chatID, session.AdminDeleteConfirm{Login: login}); err != nil {
		p.fail(c.chatID, "удаление", err)
		return
	}
	p.reply(c.chatID, fmt.Sprintf("Вы уверены, что хотите удалить исполнителя %s? Напишите 'да' или 'нет':", login))
}

func (p *Panel) deleteExecutor(ctx context.Context, chatID int64, s session.AdminDeleteConfirm, text string) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "да":
	case "нет":
		_ = p.Sessions.Clear(ctx, chatID)
		p.send(chatID, "Удаление отменено.", p.menu())
		return
	default:
		p.reply(chatID, "Напишите 'да' или 'нет':")
		return
	}
	_ = p.Sessions.Clear(ctx, chatID)
	open, err := openOrders(ctx, p.Store, s.Login)
	if err != nil {
		p.fail(chatID, "удаление", err)
		return
	}
	if len(open) > 0 {
		ids := make([]string, 0, len(open))
		for _, o := range open {
			ids = append(ids, fmt.Sprintf("%s (%s)", o.ShortID(), o.Status.Title()))
		}
		p.send(chatID, fmt.Sprintf("⛔ У исполнителя %s есть незавершённые заказы: %s.\nЗавершите или отмените их перед удалением.",
			s.Login, strings.Join(ids, ", ")), p.menu())
		return
	}
	if err := p.Store.DeleteUser(ctx, s.Login); err != nil {
		p.fail(chatID, "удаление", err)
		return
	}
	logger.LogAdminAction(chatID, "delete_executor", s.Login)
	p.send(chatID, fmt.Sprintf("🗑 Исполнитель %s удалён.", s.Login), p.menu())
}

// openOrders: заказы исполнителя, которые ещё могут дойти до начисления.
func openOrders(ctx context.Context, store db.Orders, login string) ([]db.Order, error) {
	orders, err := store.OrdersByExecutor(ctx, login)
	if err != nil {
		return nil, err
	}
	var open []db.Order
	for _, o := range orders {
		if !order.Terminal(o.Status) {
			open = append(open, o)
		}
	}
	return open, nil
}
