package bot

import (
	"context"
	"freelance-market-bot/internal/admin"
	"freelance-market-bot/internal/auth"
	"freelance-market-bot/internal/chat"
	"freelance-market-bot/internal/db"
	"freelance-market-bot/internal/ledger"
	"freelance-market-bot/internal/logger"
	"freelance-market-bot/internal/order"
	"freelance-market-bot/internal/payment"
	"freelance-market-bot/internal/session"
	"freelance-market-bot/internal/tg"
	"github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"strings"
)

type Deps struct {
	Sender   tg.Sender
	Store    db.Store
	Sessions *session.Manager
	Auth     *auth.Service
	Orders   *order.Service
	Ledger   *ledger.Ledger
	Payments *payment.Service
	Chat     *chat.Relay
	Admin    *admin.Panel
	AdminID  int64
}

type Bot struct {
	Deps
	limiter *RateLimiter
	routes  *router
}

func New(d Deps) *Bot {
	b := &Bot{Deps: d, limiter: NewRateLimiter(d.AdminID)}
	b.routes = b.buildRoutes()
	return b
}

func (b *Bot) buildRoutes() *router {
	r := newRouter()
	r.on(cbClient, (*Bot).clientMenu)
	r.on(cbExecutor, (*Bot).executorMenu)
	r.on(cbBackToMainMenu, (*Bot).mainMenuCallback)
	r.on(cbClientLogin, (*Bot).clientLoginStart)
	r.on(cbClientRegister, (*Bot).clientRegisterStart)
	r.on(cbClientLogout, (*Bot).clientLogout)
	r.on(cbCreateOrder, (*Bot).createOrderStart)
	r.on(cbConsultation, (*Bot).consultation)
	r.on(cbClientOrders, (*Bot).clientOrders)
	r.on(cbExecutorLogin, (*Bot).executorLoginStart)
	r.on(cbExecutorLogout, (*Bot).executorLogout)
	r.on(cbExecutorOrders, (*Bot).executorOrders)
	r.on(cbWithdraw, (*Bot).withdrawStart)
	r.on(cbExitChat, (*Bot).exitChatCallback)
	r.on(cbOurWorks, (*Bot).ourWorks)
	r.on(cbCategorySites, (*Bot).categorySites)
	r.on(cbCategoryVideo, (*Bot).categoryVideo)
	r.on(cbBackToSites, (*Bot).categorySitesFresh)
	r.on(cbBackToVideo, (*Bot).categoryVideoFresh)
	r.on(cbBackToOurWorks, (*Bot).ourWorksFresh)

	r.onPrefix(pfxAcceptOrder, (*Bot).acceptOrder)
	r.onPrefix(pfxDeclineOrder, (*Bot).declineOrder)
	r.onPrefix(pfxCancelOrder, (*Bot).cancelOrder)
	r.onPrefix(pfxPaymentConfirm, (*Bot).paymentConfirm)
	r.onPrefix(pfxPaymentHelp, (*Bot).paymentHelp)
	r.onPrefix(pfxBackToPayment, (*Bot).backToPayment)
	r.onPrefix(pfxPaymentNew, (*Bot).paymentNew)
	r.onPrefix(pfxStartWork, (*Bot).startWork)
	r.onPrefix(pfxDeclinePaid, (*Bot).declinePaid)
	r.onPrefix(pfxSubmitWork, (*Bot).submitWork)
	r.onPrefix(pfxAcceptWork, (*Bot).acceptWork)
	r.onPrefix(pfxRequestRevision, (*Bot).requestRevisionStart)
	r.onPrefix(pfxOpenDispute, (*Bot).openDisputeStart)
	r.onPrefix(pfxClientChat, (*Bot).openClientChat)
	r.onPrefix(pfxExecutorChat, (*Bot).openExecutorChat)
	r.onPrefix(pfxChatHistory, (*Bot).chatHistory)
	r.onPrefix(pfxWithdrawAmount, (*Bot).withdrawQuick)
	r.onPrefix(pfxPortfolioItem, (*Bot).portfolioItem)
	r.onPrefix(pfxSubcategory, (*Bot).subcategory)
	return r
}

// Run читает обновления long polling до отмены ctx.
func (b *Bot) Run(ctx context.Context, api *tgbotapi.BotAPI) {
	logger.Info("Authorized on account", zap.String("username", api.Self.UserName))

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.HandleUpdate(ctx, update)
		}
	}
}

func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer logger.NotifyOnPanic("HandleUpdate")

	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.From != nil:
		b.handleMessage(ctx, update.Message)
	}
}

// callback: нажатая кнопка.
type callback struct {
	ctx       context.Context
	id        string
	chatID    int64
	messageID int
	userID    int64
	data      string
}

func (b *Bot) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	if q.Message == nil || q.From == nil {
		return
	}
	tg.Answer(b.Sender, q.ID, "")

	if b.Admin != nil && b.Admin.HandleCallback(ctx, q) {
		return
	}

	c := &callback{
		ctx:       ctx,
		id:        q.ID,
		chatID:    q.Message.Chat.ID,
		messageID: q.Message.MessageID,
		userID:    q.From.ID,
		data:      q.Data,
	}
	h, arg, ok := b.routes.match(q.Data)
	if !ok {
		logger.Warn("Unknown callback data", zap.String("data", q.Data), zap.Int64("user_id", q.From.ID))
		b.reply(c.chatID, "Неизвестная команда. Нажмите /start, чтобы открыть меню.")
		return
	}
	if err := h(b, c, arg); err != nil {
		b.fail(ctx, c.chatID, err)
	}
}

func (b *Bot) handleMessage(ctx context.Context, m *tgbotapi.Message) {
	chatID := m.Chat.ID
	text := strings.TrimSpace(m.Text)

	if len(m.Photo) > 0 {
		b.handlePhoto(ctx, m)
		return
	}
	if text == "" {
		return
	}

	if key := limitKey(text); key != "" && b.limiter.IsLimited(m.From.ID, key) {
		b.reply(chatID, "Пожалуйста, не так быстро! Подождите пару секунд...")
		return
	}

	switch {
	case strings.EqualFold(text, "админ"):
		if b.Admin == nil || !b.Admin.IsAdmin(m.From.ID) {
			b.reply(chatID, "Вы не являетесь администратором.")
			return
		}
		b.Admin.Open(ctx, chatID)
		return
	case strings.HasPrefix(text, "/start"):
		if err := b.Sessions.Clear(ctx, chatID); err != nil {
			logger.Warn("Failed to clear state", zap.Int64("chat_id", chatID), zap.Error(err))
		}
		b.startMenu(chatID)
		return
	case strings.HasPrefix(text, "/admin_") && b.Admin != nil && b.Admin.IsAdmin(m.From.ID):
		b.Admin.HandleCommand(ctx, m)
		return
	}

	st, err := b.Sessions.Get(ctx, chatID)
	if err != nil {
		b.fail(ctx, chatID, err)
		return
	}
	if st != nil {
		b.handleState(ctx, m, text, st)
		return
	}

	switch {
	case isPaidKeyword(text):
		b.paidText(ctx, chatID)
	case strings.HasPrefix(text, "/help"):
		b.reply(chatID, helpText)
	default:
		b.reply(chatID, "Неизвестная команда. Нажмите /start, чтобы открыть меню.")
	}
}

// handleState передаёт текст обработчику ожидаемого ввода.
func (b *Bot) handleState(ctx context.Context, m *tgbotapi.Message, text string, st session.State) {
	chatID := m.Chat.ID
	var err error
	switch s := st.(type) {
	case session.ClientLoginUsername:
		err = b.clientLoginUsername(ctx, chatID, text)
	case session.ClientLoginPassword:
		b.hideSecret(chatID, m.MessageID)
		err = b.clientLoginPassword(ctx, chatID, s, text)
	case session.ClientRegisterUsername:
		err = b.clientRegisterUsername(ctx, chatID, text)
	case session.ClientRegisterPassword:
		b.hideSecret(chatID, m.MessageID)
		err = b.clientRegisterPassword(ctx, chatID, s, text)
	case session.ExecutorLoginUsername:
		err = b.executorLoginUsername(ctx, chatID, text)
	case session.ExecutorLoginPassword:
		b.hideSecret(chatID, m.MessageID)
		err = b.executorLoginPassword(ctx, chatID, s, text)
	case session.OrderDescription:
		err = b.orderDescription(ctx, chatID, text)
	case session.OrderDeadline:
		err = b.orderDeadline(ctx, chatID, s, text)
	case session.OrderBudget:
		err = b.orderBudget(ctx, chatID, s, text)
	case session.InChat:
		err = b.chatMessage(ctx, chatID, s, text)
	case session.RevisionComment:
		err = b.revisionComment(ctx, chatID, s, text)
	case session.DisputeReason:
		err = b.disputeReason(ctx, chatID, s, text)
	case session.WithdrawAmount:
		err = b.withdrawAmount(ctx, chatID, s, text)
	default:
		if b.Admin != nil && b.Admin.HandleText(ctx, chatID, text, st) {
			return
		}
		logger.Warn("No handler for state", zap.String("kind", string(st.Kind())), zap.Int64("chat_id", chatID))
		_ = b.Sessions.Clear(ctx, chatID)
		b.reply(chatID, "Неизвестное состояние. Нажмите /start, чтобы открыть меню.")
		return
	}
	if err != nil {
		b.fail(ctx, chatID, err)
	}
}

func (b *Bot) handlePhoto(ctx context.Context, m *tgbotapi.Message) {
	chatID := m.Chat.ID
	st, err := b.Sessions.Get(ctx, chatID)
	if err != nil {
		b.fail(ctx, chatID, err)
		return
	}
	fileID := m.Photo[len(m.Photo)-1].FileID
	if st != nil && b.Admin != nil && b.Admin.HandlePhoto(ctx, chatID, fileID, st) {
		return
	}
	b.reply(chatID, "Отправьте фото в нужный момент процесса добавления.")
}

// hideSecret удаляет сообщение с паролем из переписки.
func (b *Bot) hideSecret(chatID int64, messageID int) {
	if _, err := b.Sender.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		logger.Warn("Failed to delete password message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func isPaidKeyword(text string) bool {
	return strings.EqualFold(strings.Trim(text, " .!"), "оплатил")
}

func limitKey(text string) string {
	if strings.HasPrefix(text, "/") {
		return strings.Fields(text)[0]
	}
	if isPaidKeyword(text) {
		return "оплатил"
	}
	return ""
}

const helpText = `Доступные команды:
/start — Главное меню
/help — Показать эту справку

Заказчик: войдите или зарегистрируйтесь, создайте заказ и оплатите его по QR-коду.
После оплаты напишите «оплатил» или нажмите «✅ Я оплатил».
Исполнитель: войдите, принимайте заказы и выводите заработанное.
В чате по заказу напишите /exit или «выйти», чтобы вернуться в меню.`
