package bot

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
	"go.uber.org/zap"
	"strings"
	"time"
)

const (
	startText          = "Добро пожаловать в нашего бота! Выберите роль:"
	clientGuestText    = "Выберите действие (Заказчик):"
	usernameTakenText  = "Пользователь с таким логином уже существует. Попробуйте другой логин."
	badUsernameText    = "Логин может содержать только латинские буквы, цифры и _ (от 3 до 32 символов). Введите другой логин:"
	weakPasswordText   = "Пароль слишком короткий (минимум 4 символа). Введите другой пароль:"
	budgetNotNumber    = "Просим вас написать число. Это поможет нам подобрать лучшее решение для вашей ситуации."
	noExecutorsText    = "К сожалению, в системе нет доступных исполнителей."
	orderThanksText    = "Спасибо за предоставленную информацию. Мы скоро свяжемся с вами."
	consultationAnswer = "Запрос на консультацию принят! Специалист скоро с вами свяжется."
)

func (b *Bot) startMenu(chatID int64) {
	b.replyWithKeyboard(chatID, startText, roleKeyboard())
}

func (b *Bot) mainMenuCallback(c *callback, _ string) error {
	if err := b.Sessions.Clear(c.ctx, c.chatID); err != nil {
		return err
	}
	b.show(c, startText, kbPtr(roleKeyboard()))
	return nil
}

func (b *Bot) clientMenu(c *callback, _ string) error {
	u, err := b.Auth.Current(c.ctx, c.chatID, db.RoleClient)
	if errors.Is(err, auth.ErrNotLoggedIn) {
		b.show(c, clientGuestText, kbPtr(clientGuestKeyboard()))
		return nil
	}
	if err != nil {
		return err
	}
	b.show(c, fmt.Sprintf("Добро пожаловать, %s!", u.Username), kbPtr(clientKeyboard()))
	return nil
}

func (b *Bot) clientLoginStart(c *callback, _ string) error {
	if err := b.Sessions.Set(c.ctx, c.chatID, session.ClientLoginUsername{}); err != nil {
		return err
	}
	b.reply(c.chatID, "Введите ваш логин:")
	return nil
}

func (b *Bot) clientLoginUsername(ctx context.Context, chatID int64, text string) error {
	if err := b.Sessions.Set(ctx, chatID, session.ClientLoginPassword{Username: text}); err != nil {
		return err
	}
	b.reply(chatID, "Введите пароль:")
	return nil
}

func (b *Bot) clientLoginPassword(ctx context.Context, chatID int64, s session.ClientLoginPassword, text string) error {
	if err := b.Sessions.Clear(ctx, chatID); err != nil {
		return err
	}
	u, err := b.Auth.Login(ctx, s.Username, text, db.RoleClient, chatID)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		b.replyWithKeyboard(chatID, "Неверный логин или пароль. Попробуйте снова.", clientGuestKeyboard())
		return nil
	}
	if err != nil {
		return err
	}
	b.replyWithKeyboard(chatID, fmt.Sprintf("Добро пожаловать, %s!", u.Username), clientKeyboard())
	return nil
}

func (b *Bot) clientRegisterStart(c *callback, _ string) error {
	if err := b.Sessions.Set(c.ctx, c.chatID, session.ClientRegisterUsername{}); err != nil {
		return err
	}
	b.reply(c.chatID, "Введите желаемый логин:")
	return nil
}

func (b *Bot) clientRegisterUsername(ctx context.Context, chatID int64, text string) error {
	switch err := b.Auth.ValidateUsername(ctx, text); {
	case errors.Is(err, auth.ErrUsernameTaken):
		b.reply(chatID, usernameTakenText)
		return nil
	case errors.Is(err, auth.ErrBadUsername):
		b.reply(chatID, badUsernameText)
		return nil
	case err != nil:
		return err
	}
	if err := b.Sessions.Set(ctx, chatID, session.ClientRegisterPassword{Username: text}); err != nil {
		return err
	}
	b.reply(chatID, "Введите пароль:")
	return nil
}

func (b *Bot) clientRegisterPassword(ctx context.Context, chatID int64, s session.ClientRegisterPassword, text string) error {
	u, err := b.Auth.Register(ctx, s.Username, text, db.RoleClient, chatID)
	switch {
	case errors.Is(err, auth.ErrWeakPassword):
		b.reply(chatID, weakPasswordText)
		return nil
	case errors.Is(err, auth.ErrUsernameTaken):
		// логин заняли, пока вводился пароль
		if err := b.Sessions.Set(ctx, chatID, session.ClientRegisterUsername{}); err != nil {
			return err
		}
		b.reply(chatID, usernameTakenText)
		return nil
	case err != nil:
		return err
	}
	if err := b.Sessions.Clear(ctx, chatID); err != nil {
		return err
	}
	b.replyWithKeyboard(chatID, fmt.Sprintf("Регистрация прошла успешно!\nДобро пожаловать, %s!", u.Username), clientKeyboard())
	return nil
}

func (b *Bot) clientLogout(c *callback, _ string) error {
	_ = b.Sessions.Clear(c.ctx, c.chatID)
	u, err := b.Auth.Logout(c.ctx, c.chatID, db.RoleClient)
	if err != nil && !errors.Is(err, auth.ErrNotLoggedIn) {
		logger.Error("Logout failed", zap.Int64("chat_id", c.chatID), zap.Error(err))
		b.reply(c.chatID, "Ошибка при выходе из аккаунта.")
		return nil
	}
	if u != nil {
		logger.Info("User logged out", zap.String("username", u.Username))
	}
	b.show(c, "Вы успешно вышли из аккаунта.\n"+clientGuestText, kbPtr(clientGuestKeyboard()))
	return nil
}

func (b *Bot) createOrderStart(c *callback, _ string) error {
	if _, err := b.Auth.Current(c.ctx, c.chatID, db.RoleClient); err != nil {
		if errors.Is(err, auth.ErrNotLoggedIn) {
			b.replyWithKeyboard(c.chatID, "Для создания заказа необходимо войти в аккаунт.", clientGuestKeyboard())
			return nil
		}
		return err
	}
	if err := b.Sessions.Set(c.ctx, c.chatID, session.OrderDescription{}); err != nil {
		return err
	}
	b.reply(c.chatID, "Опишите ваш заказ:")
	return nil
}

func (b *Bot) orderDescription(ctx context.Context, chatID int64, text string) error {
	if err := b.Sessions.Set(ctx, chatID, session.OrderDeadline{Description: text}); err != nil {
		return err
	}
	b.reply(chatID, "1. Какие у нас есть сроки?")
	return nil
}

func (b *Bot) orderDeadline(ctx context.Context, chatID int64, s session.OrderDeadline, text string) error {
	if err := b.Sessions.Set(ctx, chatID, session.OrderBudget{Description: s.Description, Deadline: text}); err != nil {
		return err
	}
	b.reply(chatID, "2. Какой у вас ориентировочный бюджет? (Введите число, например 15 000)")
	return nil
}

func (b *Bot) orderBudget(ctx context.Context, chatID int64, s session.OrderBudget, text string) error {
	amount, err := ledger.ParseAmount(text)
	if err != nil || !amount.IsPositive() {
		b.reply(chatID, budgetNotNumber)
		return nil
	}
	customer, err := b.Auth.Current(ctx, chatID, db.RoleClient)
	if err != nil {
		return err
	}
	if err := b.Sessions.Clear(ctx, chatID); err != nil {
		return err
	}

	o, executor, err := b.Orders.Create(ctx, customer, chatID, order.Draft{
		Description:  s.Description,
		DeadlineText: s.Deadline,
		Amount:       amount,
	})
	if errors.Is(err, order.ErrNoExecutors) {
		b.reply(chatID, noExecutorsText)
		return nil
	}
	if err != nil {
		return err
	}
	b.reply(chatID, orderThanksText)
	b.offer(ctx, o, executor)
	return nil
}

func (b *Bot) consultation(c *callback, _ string) error {
	who := fmt.Sprintf("чат %d", c.chatID)
	if u, err := b.Auth.Current(c.ctx, c.chatID, db.RoleClient); err == nil {
		who = fmt.Sprintf("%s (чат %d)", u.Username, c.chatID)
	}
	logger.NotifyAdmin("Запрос на консультацию: " + who)
	b.reply(c.chatID, consultationAnswer)
	return nil
}

func (b *Bot) clientOrders(c *callback, _ string) error {
	u, err := b.Auth.Current(c.ctx, c.chatID, db.RoleClient)
	if err != nil {
		return err
	}
	orders, err := b.Store.OrdersByCustomer(c.ctx, u.Username)
	if err != nil {
		return err
	}
	if len(orders) == 0 {
		b.replyWithKeyboard(c.chatID, "У вас пока нет заказов.", clientKeyboard())
		return nil
	}
	for i := range orders {
		o := &orders[i]
		b.sendCard(c.chatID, orderCard(o, time.Now()), clientOrderButtons(o))
	}
	return nil
}

func (b *Bot) sendCard(chatID int64, text string, btns []tg.Button) {
	if len(btns) == 0 {
		b.reply(chatID, text)
		return
	}
	b.replyWithKeyboard(chatID, text, tg.Keyboard(btns...))
}

// orderCard: карточка заказа в списке «Мои заказы».
func orderCard(o *db.Order, now time.Time) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📋 Заказ #%s\n", o.ShortID())
	fmt.Fprintf(&sb, "Описание: %s\n", o.Description)
	fmt.Fprintf(&sb, "Сроки: %s\n", o.DeadlineText)
	fmt.Fprintf(&sb, "Бюджет: %s руб.\n", o.Amount.StringFixed(0))
	fmt.Fprintf(&sb, "Статус: %s", o.Status.Title())
	if o.ExecutorUsername != "" {
		fmt.Fprintf(&sb, "\nИсполнитель: %s", o.ExecutorUsername)
	}
	if o.DeadlineAt != nil && (o.Status == db.StatusInWork || o.Status == db.StatusOnReview) {
		sb.WriteString("\n" + order.FormatRemaining(*o.DeadlineAt, now))
	}
	return sb.String()
}
