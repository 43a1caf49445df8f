package admin

import (
	"context"
	"errors"
	"fmt"
	"freelance-market-bot/internal/db"
	"freelance-market-bot/internal/logger"
	"freelance-market-bot/internal/session"
	"freelance-market-bot/internal/tg"
	"github.com/google/uuid"
	"strings"
	"time"
)

func categoryTitle(category string) string {
	if category == db.CategoryVideo {
		return "Видео"
	}
	return "Сайты"
}

func (p *Panel) portfolioMenu(c press) {
	kb := tg.Keyboard(
		tg.Btn("➕ Добавить сайт", cbAddSites),
		tg.Btn("➕ Добавить видео", cbAddVideo),
		tg.Btn("📂 Просмотр", cbViewPortfolio),
		tg.Btn("← Назад", cbBack),
	)
	p.edit(c, "Управление портфолио:", &kb)
}

func (p *Panel) addItemStart(ctx context.Context, c press, category string) {
	if err := p.Sessions.Set(ctx, c.chatID, session.PortfolioTitle{Category: category}); err != nil {
		p.fail(c.chatID, "портфолио", err)
		return
	}
	p.reply(c.chatID, fmt.Sprintf("Категория: %s\nВведите название работы:", categoryTitle(category)))
}

func (p *Panel) itemTitle(ctx context.Context, chatID int64, s session.PortfolioTitle, text string) {
	if err := p.Sessions.Set(ctx, chatID, session.PortfolioDescription{Category: s.Category, Title: text}); err != nil {
		p.fail(chatID, "портфолио", err)
		return
	}
	p.reply(chatID, "Введите описание работы:")
}

func (p *Panel) itemDescription(ctx context.Context, chatID int64, s session.PortfolioDescription, text string) {
	next := session.PortfolioImages{Category: s.Category, Title: s.Title, Description: text}
	if err := p.Sessions.Set(ctx, chatID, next); err != nil {
		p.fail(chatID, "портфолио", err)
		return
	}
	p.reply(chatID, "Отправьте фото работы (можно несколько). Когда закончите, напишите 'готово':")
}

func isDone(text string) bool {
	return strings.EqualFold(strings.TrimSpace(text), "готово")
}

func (p *Panel) itemImagesText(ctx context.Context, chatID int64, s session.PortfolioImages, text string) {
	if !isDone(text) {
		p.reply(chatID, "Отправьте фото или напишите 'готово':")
		return
	}
	next := session.PortfolioLinks{Category: s.Category, Title: s.Title, Description: s.Description, Images: s.Images}
	if err := p.Sessions.Set(ctx, chatID, next); err != nil {
		p.fail(chatID, "портфолио", err)
		return
	}
	p.reply(chatID, "Отправьте ссылки на работу (каждую с новой строки) или напишите 'нет':")
}

// parseLinks: ссылки по одной в строке; «нет» означает без ссылок.
func parseLinks(text string) []string {
	if strings.EqualFold(strings.TrimSpace(text), "нет") {
		return nil
	}
	var links []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			links = append(links, l)
		}
	}
	return links
}

func (p *Panel) itemLinks(ctx context.Context, chatID int64, s session.PortfolioLinks, text string) {
	item := &db.PortfolioItem{
		ID:          uuid.NewString(),
		Category:    s.Category,
		Title:       s.Title,
		Description: s.Description,
		Images:      s.Images,
		Links:       parseLinks(text),
		CreatedAt:   time.Now(),
	}
	_ = p.Sessions.Clear(ctx, chatID)
	if err := p.Store.AddPortfolioItem(ctx, item); err != nil {
		p.fail(chatID, "портфолио", err)
		return
	}
	logger.LogAdminAction(chatID, "portfolio_add", item.Category+": "+item.Title)
	p.send(chatID, fmt.Sprintf("✅ Работа «%s» добавлена в портфолио!", item.Title), p.menu())
}

func (p *Panel) viewPortfolio(c press) {
	kb := tg.Keyboard(
		tg.Btn("🌐 Сайты", cbViewSites),
		tg.Btn("🎬 Видео", cbViewVideo),
		tg.Btn("← Назад", cbPortfolioMenu),
	)
	p.edit(c, "Выберите категорию:", &kb)
}

func viewData(category string) string {
	if category == db.CategoryVideo {
		return cbViewVideo
	}
	return cbViewSites
}

func (p *Panel) listItems(ctx context.Context, c press, category string) {
	items, err := p.Store.PortfolioItems(ctx, category)
	if err != nil {
		p.fail(c.chatID, "портфолио", err)
		return
	}
	if len(items) == 0 {
		p.edit(c, "В этой категории пока нет работ.", backKeyboard(cbViewPortfolio))
		return
	}
	btns := make([]tg.Button, 0, len(items)+1)
	for _, it := range items {
		btns = append(btns, tg.Btn(it.Title, pfxItem+it.ID))
	}
	btns = append(btns, tg.Btn("← Назад", cbViewPortfolio))
	kb := tg.Keyboard(btns...)
	p.edit(c, categoryTitle(category)+":", &kb)
}

func (p *Panel) showItem(ctx context.Context, c press, id string) {
	it, err := p.Store.GetPortfolioItem(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		p.reply(c.chatID, "Работа не найдена.")
		return
	}
	if err != nil {
		p.fail(c.chatID, "портфолио", err)
		return
	}
	text := fmt.Sprintf("📌 %s\nКатегория: %s\n\n%s\n\nФото: %d\nСсылки: %s",
		it.Title, categoryTitle(it.Category), it.Description, len(it.Images), strings.Join(it.Links, ", "))
	kb := tg.Keyboard(
		tg.Btn("🗑 Удалить", pfxDeleteConfirm+it.ID),
		tg.Btn("← Назад", viewData(it.Category)),
	)
	p.edit(c, text, &kb)
}

func (p *Panel) confirmDeleteItem(ctx context.Context, c press, id string) {
	it, err := p.Store.GetPortfolioItem(ctx, id)
	if err != nil {
		p.fail(c.chatID, "портфолио", err)
		return
	}
	kb := tg.Keyboard(
		tg.Btn("✅ Да, удалить", pfxDeleteExecute+it.ID),
		tg.Btn("❌ Отмена", pfxItem+it.ID),
	)
	p.edit(c, fmt.Sprintf("Удалить работу «%s»?", it.Title), &kb)
}

func (p *Panel) deleteItem(ctx context.Context, c press, id string) {
	if err := p.Store.DeletePortfolioItem(ctx, id); err != nil && !errors.Is(err, db.ErrNotFound) {
		p.fail(c.chatID, "портфолио", err)
		return
	}
	logger.LogAdminAction(c.chatID, "portfolio_delete", id)
	p.edit(c, "🗑 Работа удалена.", backKeyboard(cbViewPortfolio))
}
