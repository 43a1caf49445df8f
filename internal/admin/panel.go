package admin

import (
	"context"
	"fmt"
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

// Callback data панели администратора.
const (
	cbRegisterExecutor = "register_entrepreneur"
	cbAllExecutors     = "all_entrepreneurs"
	cbPortfolioMenu    = "portfolio_menu"
	cbStats            = "admin_stats"
	cbExport           = "admin_export"
	cbWithdrawals      = "admin_withdrawals"
	cbRefunds          = "admin_refunds"
	cbDisputes         = "admin_disputes"
	cbBackup           = "admin_backup"
	cbBack             = "admin_back"
	cbAddSites         = "add_portfolio_sites"
	cbAddVideo         = "add_portfolio_video"
	cbViewPortfolio    = "view_portfolio"
	cbViewSites        = "admin_view_sites"
	cbViewVideo        = "admin_view_video"

	pfxExecutor       = "entrepreneur_"
	pfxChangeRating   = "change_rating_"
	pfxChangeBalance  = "change_balance_"
	pfxDeleteExecutor = "delete_entrepreneur_"
	pfxItem           = "admin_item_"
	pfxDeleteConfirm  = "delete_confirm_"
	pfxDeleteExecute  = "delete_execute_"
	pfxWithdrawalPay  = "withdrawal_pay_"
	pfxWithdrawalRej  = "withdrawal_reject_"
	pfxRefundDone     = "refund_done_"
	pfxDisputeResume  = "dispute_resume_"
	pfxDisputeCancel  = "dispute_cancel_"
	pfxHistory        = "admin_history_"
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
	// Backup есть только у postgres-хранилища.
	Backup  *Backup
	AdminID int64
}

// Panel: меню и команды администратора.
type Panel struct {
	Deps
}

func NewPanel(d Deps) *Panel {
	return &Panel{Deps: d}
}

func (p *Panel) IsAdmin(userID int64) bool {
	return p.AdminID != 0 && userID == p.AdminID
}

func (p *Panel) menu() tgbotapi.InlineKeyboardMarkup {
	btns := []tg.Button{
		tg.Btn("➕ Зарегистрировать исполнителя", cbRegisterExecutor),
		tg.Btn("👥 Все исполнители", cbAllExecutors),
		tg.Btn("🖼 Портфолио", cbPortfolioMenu),
		tg.Btn("📊 Статистика", cbStats),
		tg.Btn("📥 Выгрузка заказов (Excel)", cbExport),
		tg.Btn("💸 Заявки на вывод", cbWithdrawals),
		tg.Btn("↩️ Возвраты", cbRefunds),
		tg.Btn("⚖️ Споры", cbDisputes),
	}
	if p.Backup != nil {
		btns = append(btns, tg.Btn("💾 Резервная копия БД", cbBackup))
	}
	return tg.Keyboard(btns...)
}

// Open показывает панель администратора.
func (p *Panel) Open(ctx context.Context, chatID int64) {
	if err := p.Sessions.Clear(ctx, chatID); err != nil {
		logger.Warn("Failed to clear state", zap.Int64("chat_id", chatID), zap.Error(err))
	}
	p.send(chatID, "Добро пожаловать, Администратор!", p.menu())
}

// HandleCommand обрабатывает /admin_* команды.
func (p *Panel) HandleCommand(ctx context.Context, m *tgbotapi.Message) {
	chatID := m.Chat.ID
	cmd := m.Command()
	switch cmd {
	case "admin_stats":
		p.showStats(ctx, chatID)
	case "admin_export":
		p.export(ctx, chatID)
	case "admin_withdrawals":
		p.listWithdrawals(ctx, chatID)
	case "admin_refunds":
		p.listRefunds(ctx, chatID)
	case "admin_disputes":
		p.listDisputes(ctx, chatID)
	case "admin_backup":
		p.backup(ctx, chatID)
	case "admin_restore":
		p.restore(ctx, chatID, strings.TrimSpace(m.CommandArguments()))
	default:
		p.reply(chatID, "Неизвестная команда администратора.")
		return
	}
	logger.LogAdminAction(m.From.ID, cmd, m.Text)
}

// HandleCallback обрабатывает кнопки панели. false, если кнопка не относится к панели.
func (p *Panel) HandleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) bool {
	if q.From == nil || q.Message == nil || !p.IsAdmin(q.From.ID) {
		return false
	}
	c := press{chatID: q.Message.Chat.ID, messageID: q.Message.MessageID}
	d := q.Data

	switch {
	case d == cbBack:
		p.Open(ctx, c.chatID)
	case d == cbRegisterExecutor:
		p.registerStart(ctx, c)
	case d == cbAllExecutors:
		p.listExecutors(ctx, c)
	case d == cbPortfolioMenu:
		p.portfolioMenu(c)
	case d == cbStats:
		p.showStats(ctx, c.chatID)
	case d == cbExport:
		p.export(ctx, c.chatID)
	case d == cbWithdrawals:
		p.listWithdrawals(ctx, c.chatID)
	case d == cbRefunds:
		p.listRefunds(ctx, c.chatID)
	case d == cbDisputes:
		p.listDisputes(ctx, c.chatID)
	case d == cbBackup:
		p.backup(ctx, c.chatID)
	case d == cbAddSites:
		p.addItemStart(ctx, c, db.CategorySites)
	case d == cbAddVideo:
		p.addItemStart(ctx, c, db.CategoryVideo)
	case d == cbViewPortfolio:
		p.viewPortfolio(c)
	case d == cbViewSites:
		p.listItems(ctx, c, db.CategorySites)
	case d == cbViewVideo:
		p.listItems(ctx, c, db.CategoryVideo)
	default:
		prefix, arg, ok := splitData(d)
		if !ok {
			return false
		}
		switch prefix {
		case pfxExecutor:
			p.executorDetails(ctx, c, arg)
		case pfxChangeRating:
			p.askRating(ctx, c, arg)
		case pfxChangeBalance:
			p.askBalance(ctx, c, arg)
		case pfxDeleteExecutor:
			p.askDelete(ctx, c, arg)
		case pfxItem:
			p.showItem(ctx, c, arg)
		case pfxDeleteConfirm:
			p.confirmDeleteItem(ctx, c, arg)
		case pfxDeleteExecute:
			p.deleteItem(ctx, c, arg)
		case pfxWithdrawalPay:
			p.processWithdrawal(ctx, c, arg, true)
		case pfxWithdrawalRej:
			p.processWithdrawal(ctx, c, arg, false)
		case pfxRefundDone:
			p.refundDone(ctx, c, arg)
		case pfxDisputeResume:
			p.resumeDispute(ctx, c, arg)
		case pfxDisputeCancel:
			p.cancelDispute(ctx, c, arg)
		case pfxHistory:
			p.history(ctx, c, arg)
		}
	}
	logger.LogAdminAction(q.From.ID, "callback", d)
	return true
}

// Префиксы с аргументом; порядок важен: длинные раньше коротких с общим началом.
var prefixes = []string{
	pfxDeleteExecutor, pfxExecutor, pfxChangeRating, pfxChangeBalance,
	pfxItem, pfxDeleteConfirm, pfxDeleteExecute,
	pfxWithdrawalPay, pfxWithdrawalRej, pfxRefundDone,
	pfxDisputeResume, pfxDisputeCancel, pfxHistory,
}

func splitData(d string) (prefix, arg string, ok bool) {
	for _, p := range prefixes {
		if strings.HasPrefix(d, p) && len(d) > len(p) {
			return p, d[len(p):], true
		}
	}
	return "", "", false
}

// HandleText принимает ввод для состояний администратора. false, если состояние не наше.
func (p *Panel) HandleText(ctx context.Context, chatID int64, text string, st session.State) bool {
	switch s := st.(type) {
	case session.AdminRegisterLogin:
		p.registerLogin(ctx, chatID, text)
	case session.AdminRegisterPassword:
		p.registerPassword(ctx, chatID, s, text)
	case session.AdminRating:
		p.setRating(ctx, chatID, s, text)
	case session.AdminBalance:
		p.setBalance(ctx, chatID, s, text)
	case session.AdminDeleteConfirm:
		p.deleteExecutor(ctx, chatID, s, text)
	case session.PortfolioTitle:
		p.itemTitle(ctx, chatID, s, text)
	case session.PortfolioDescription:
		p.itemDescription(ctx, chatID, s, text)
	case session.PortfolioImages:
		p.itemImagesText(ctx, chatID, s, text)
	case session.PortfolioLinks:
		p.itemLinks(ctx, chatID, s, text)
	default:
		return false
	}
	return true
}

// HandlePhoto принимает фото работы при добавлении в портфолио.
func (p *Panel) HandlePhoto(ctx context.Context, chatID int64, fileID string, st session.State) bool {
	s, ok := st.(session.PortfolioImages)
	if !ok {
		return false
	}
	s.Images = append(s.Images, fileID)
	if err := p.Sessions.Set(ctx, chatID, s); err != nil {
		p.fail(chatID, "сохранение фото", err)
		return true
	}
	p.reply(chatID, "✅ Фото добавлено! Отправьте еще фото или напишите 'готово':")
	return true
}

// press: нажатая кнопка панели.
type press struct {
	chatID    int64
	messageID int
}

func (p *Panel) reply(chatID int64, text string) {
	if err := tg.SendText(p.Sender, chatID, text); err != nil {
		logger.Warn("Failed to send admin message", zap.Error(err))
	}
}

func (p *Panel) send(chatID int64, text string, kb tgbotapi.InlineKeyboardMarkup) {
	if err := tg.SendWithKeyboard(p.Sender, chatID, text, kb); err != nil {
		logger.Warn("Failed to send admin message", zap.Error(err))
	}
}

// edit заменяет сообщение с кнопкой; если не вышло, отправляет новое.
func (p *Panel) edit(c press, text string, kb *tgbotapi.InlineKeyboardMarkup) {
	if err := tg.EditWithKeyboard(p.Sender, c.chatID, c.messageID, text, kb); err == nil {
		return
	}
	if kb != nil {
		p.send(c.chatID, text, *kb)
		return
	}
	p.reply(c.chatID, text)
}

func (p *Panel) fail(chatID int64, action string, err error) {
	logger.Error("Admin action failed", zap.String("action", action), zap.Error(err))
	p.reply(chatID, fmt.Sprintf("Ошибка (%s): %v", action, err))
}

// notifyUser пишет пользователю в текущий чат, иначе в fallback.
func (p *Panel) notifyUser(ctx context.Context, username string, fallback int64, text string) {
	chatID := fallback
	if u, err := p.Store.GetUser(ctx, username); err == nil && u.ChatID != nil {
		chatID = *u.ChatID
	}
	if chatID == 0 {
		logger.Warn("User unreachable", zap.String("username", username))
		return
	}
	if err := tg.SendText(p.Sender, chatID, text); err != nil {
		logger.Warn("Failed to notify user", zap.String("username", username), zap.Error(err))
	}
}

func backKeyboard(data string) *tgbotapi.InlineKeyboardMarkup {
	kb := tg.Keyboard(tg.Btn("← Назад", data))
	return &kb
}
