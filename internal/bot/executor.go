package bot

import (
	"context"
	"errors"
	"fmt"
	"freelance-market-bot/internal/admin"
	"freelance-market-bot/internal/auth"
	"freelance-market-bot/internal/db"
	"freelance-market-bot/internal/ledger"
	"freelance-market-bot/internal/logger"
	"freelance-market-bot/internal/order"
	"freelance-market-bot/internal/session"
	"freelance-market-bot/internal/tg"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"time"
)

const executorGuestText = "Выберите действие (Исполнитель):"

func executorWelcome(u *db.User) string {
	return fmt.Sprintf("Добро пожаловать, %s!\nВаш баланс: %s руб.\nВыберите действие:", u.Username, u.Balance.StringFixed(2))
}

func (b *Bot) executorMenu(c *callback, _ string) error {
	u, err := b.Auth.Current(c.ctx, c.chatID, db.RoleContractor)
	if errors.Is(err, auth.ErrNotLoggedIn) {
		b.show(c, executorGuestText, kbPtr(executorGuestKeyboard()))
		return nil
	}
	if err != nil {
		return err
	}
	b.show(c, executorWelcome(u), kbPtr(executorKeyboard()))
	return nil
}

func (b *Bot) executorLoginStart(c *callback, _ string) error {
	if err := b.Sessions.Set(c.ctx, c.chatID, session.ExecutorLoginUsername{}); err != nil {
		return err
	}
	b.reply(c.chatID, "Введите логин:")
	return nil
}

func (b *Bot) executorLoginUsername(ctx context.Context, chatID int64, text string) error {
	if err := b.Sessions.Set(ctx, chatID, session.ExecutorLoginPassword{Username: text}); err != nil {
		return err
	}
	b.reply(chatID, "Введите пароль:")
	return nil
}

func (b *Bot) executorLoginPassword(ctx context.Context, chatID int64, s session.ExecutorLoginPassword, text string) error {
	if err := b.Sessions.Clear(ctx, chatID); err != nil {
		return err
	}
	u, err := b.Auth.Login(ctx, s.Username, text, db.RoleContractor, chatID)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		b.replyWithKeyboard(chatID, "Данные неверные. Попробуйте снова.", executorGuestKeyboard())
		return nil
	}
	if err != nil {
		return err
	}
	b.replyWithKeyboard(chatID, executorWelcome(u), executorKeyboard())
	return nil
}

func (b *Bot) executorLogout(c *callback, _ string) error {
	_ = b.Sessions.Clear(c.ctx, c.chatID)
	if _, err := b.Auth.Logout(c.ctx, c.chatID, db.RoleContractor); err != nil && !errors.Is(err, auth.ErrNotLoggedIn) {
		logger.Error("Logout failed", zap.Int64("chat_id", c.chatID), zap.Error(err))
		b.reply(c.chatID, "Ошибка при выходе из аккаунта.")
		return nil
	}
	b.show(c, "Вы успешно вышли из аккаунта.\n"+executorGuestText, kbPtr(executorGuestKeyboard()))
	return nil
}

func (b *Bot) executorOrders(c *callback, _ string) error {
	u, err := b.Auth.Current(c.ctx, c.chatID, db.RoleContractor)
	if err != nil {
		return err
	}
	orders, err := b.Store.OrdersByExecutor(c.ctx, u.Username)
	if err != nil {
		return err
	}
	if len(orders) == 0 {
		b.replyWithKeyboard(c.chatID, "У вас пока нет заказов.", executorKeyboard())
		return nil
	}
	now := time.Now()
	for i := range orders {
		o := &orders[i]
		text := orderCard(o, now)
		if o.Status != db.StatusPending {
			text += "\nЗаказчик: " + o.CustomerUsername
		}
		b.sendCard(c.chatID, text, executorOrderButtons(o, u.Username))
	}
	return nil
}

func balanceLine(balance, min decimal.Decimal) string {
	return fmt.Sprintf("💰 Ваш баланс: %s руб.\nМинимальная сумма вывода: %s руб.", balance.StringFixed(2), min.StringFixed(2))
}

func (b *Bot) withdrawStart(c *callback, _ string) error {
	u, err := b.Auth.Current(c.ctx, c.chatID, db.RoleContractor)
	if err != nil {
		return err
	}
	min := b.Ledger.MinWithdrawal()
	if u.Balance.LessThan(min) {
		b.replyWithKeyboard(c.chatID, balanceLine(u.Balance, min)+"\n\nНедостаточно средств для вывода.", executorKeyboard())
		return nil
	}
	if err := b.Sessions.Set(c.ctx, c.chatID, session.WithdrawAmount{Username: u.Username}); err != nil {
		return err
	}
	kb := tg.Keyboard(
		tg.Btn(fmt.Sprintf("Вывести всё (%s руб.)", u.Balance.StringFixed(2)), data(pfxWithdrawAmount, withdrawArg(u.Username, u.Balance))),
		tg.Btn("← Назад", cbExecutor),
	)
	b.replyWithKeyboard(c.chatID, balanceLine(u.Balance, min)+"\n\nВведите сумму для вывода:", kb)
	return nil
}

func (b *Bot) withdrawAmount(ctx context.Context, chatID int64, s session.WithdrawAmount, text string) error {
	amount, err := ledger.ParseAmount(text)
	if err != nil || !amount.IsPositive() {
		b.reply(chatID, "Введите сумму числом, например 1500:")
		return nil
	}
	return b.requestWithdrawal(ctx, chatID, s.Username, amount)
}

func (b *Bot) withdrawQuick(c *callback, arg string) error {
	login, amount, err := parseWithdrawArg(arg)
	if err != nil {
		return err
	}
	return b.requestWithdrawal(c.ctx, c.chatID, login, amount)
}

// requestWithdrawal списывает сумму и отправляет заявку администратору.
// При ошибке суммы ожидание ввода сохраняется, чтобы можно было ввести другую.
func (b *Bot) requestWithdrawal(ctx context.Context, chatID int64, username string, amount decimal.Decimal) error {
	u, err := b.Auth.Current(ctx, chatID, db.RoleContractor)
	if err != nil {
		return err
	}
	if u.Username != username {
		return order.ErrAccessDenied
	}

	w, remaining, err := b.Ledger.RequestWithdrawal(ctx, username, amount)
	var retry string
	switch {
	case errors.Is(err, ledger.ErrBelowMinimum):
		retry = fmt.Sprintf("Минимальная сумма вывода: %s руб. Введите другую сумму:", b.Ledger.MinWithdrawal().StringFixed(2))
	case errors.Is(err, ledger.ErrInsufficientFunds):
		bal, _ := b.Ledger.Balance(ctx, username)
		retry = fmt.Sprintf("Недостаточно средств. Ваш баланс: %s руб. Введите другую сумму:", bal.StringFixed(2))
	case errors.Is(err, ledger.ErrInvalidAmount):
		retry = "Введите сумму числом, например 1500:"
	case err != nil:
		return err
	}
	if retry != "" {
		if err := b.Sessions.Set(ctx, chatID, session.WithdrawAmount{Username: username}); err != nil {
			return err
		}
		b.reply(chatID, retry)
		return nil
	}

	if err := b.Sessions.Clear(ctx, chatID); err != nil {
		logger.Warn("Failed to clear state", zap.Int64("chat_id", chatID), zap.Error(err))
	}
	b.replyWithKeyboard(chatID, fmt.Sprintf("✅ Заявка на вывод %s руб. создана!\nОстаток на балансе: %s руб.\nАдминистратор обработает её в ближайшее время.",
		w.Amount.StringFixed(2), remaining.StringFixed(2)), executorKeyboard())
	b.toAdmin(fmt.Sprintf("💸 Заявка на вывод\n\nИсполнитель: %s\nСумма: %s руб.\nОстаток: %s руб.",
		username, w.Amount.StringFixed(2), remaining.StringFixed(2)), admin.WithdrawalKeyboard(w.ID))
	return nil
}
