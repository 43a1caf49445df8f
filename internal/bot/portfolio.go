package bot

import (
	"fmt"
	"freelance-market-bot/internal/db"
	"freelance-market-bot/internal/logger"
	"freelance-market-bot/internal/tg"
	"github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"strings"
)

// Подпись к фото ограничена 1024 символами.
const maxCaptionRunes = 1000

type subcategory struct {
	key      string
	label    string
	category string
}

// Разделы, которые показываются, пока администратор не добавил работы в категорию.
var defaultSubcategories = []subcategory{
	{"landing", "🚀 Лендинги", db.CategorySites},
	{"shop", "🛒 Интернет-магазины", db.CategorySites},
	{"corporate", "🏢 Корпоративные сайты", db.CategorySites},
	{"ads", "📺 Рекламные ролики", db.CategoryVideo},
	{"motion", "✨ Моушн-дизайн", db.CategoryVideo},
	{"social", "📱 Видео для соцсетей", db.CategoryVideo},
}

func findSubcategory(key string) (subcategory, bool) {
	for _, s := range defaultSubcategories {
		if s.key == key {
			return s, true
		}
	}
	return subcategory{}, false
}

func ourWorksKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tg.Keyboard(
		tg.Btn("🌐 Сайты", cbCategorySites),
		tg.Btn("🎬 Видео", cbCategoryVideo),
		tg.Btn("← Назад", cbClient),
	)
}

func (b *Bot) ourWorks(c *callback, _ string) error {
	b.show(c, "Выберите категорию:", kbPtr(ourWorksKeyboard()))
	return nil
}

// ourWorksFresh: возврат из карточки с фото: её текст не отредактировать, шлём новое меню.
func (b *Bot) ourWorksFresh(c *callback, _ string) error {
	b.replyWithKeyboard(c.chatID, "Выберите категорию:", ourWorksKeyboard())
	return nil
}

func (b *Bot) categorySites(c *callback, _ string) error {
	return b.showCategory(c, db.CategorySites, true)
}

func (b *Bot) categoryVideo(c *callback, _ string) error {
	return b.showCategory(c, db.CategoryVideo, true)
}

func (b *Bot) categorySitesFresh(c *callback, _ string) error {
	return b.showCategory(c, db.CategorySites, false)
}

func (b *Bot) categoryVideoFresh(c *callback, _ string) error {
	return b.showCategory(c, db.CategoryVideo, false)
}

func (b *Bot) showCategory(c *callback, category string, edit bool) error {
	items, err := b.Store.PortfolioItems(c.ctx, category)
	if err != nil {
		return err
	}

	var (
		text string
		btns []tg.Button
	)
	if len(items) > 0 {
		text = "Наши сайты:"
		if category == db.CategoryVideo {
			text = "Наши видео:"
		}
		for _, it := range items {
			btns = append(btns, tg.Btn(it.Title, data(pfxPortfolioItem, it.ID)))
		}
	} else {
		text = "Выберите тип сайта:"
		if category == db.CategoryVideo {
			text = "Выберите тип видео:"
		}
		for _, s := range defaultSubcategories {
			if s.category == category {
				btns = append(btns, tg.Btn(s.label, data(pfxSubcategory, s.key)))
			}
		}
	}
	btns = append(btns, tg.Btn("← Назад", cbBackToOurWorks))
	kb := tg.Keyboard(btns...)

	if edit {
		b.show(c, text, &kb)
	} else {
		b.replyWithKeyboard(c.chatID, text, kb)
	}
	return nil
}

func backToCategory(category string) string {
	if category == db.CategoryVideo {
		return cbBackToVideo
	}
	return cbBackToSites
}

func itemCaption(it *db.PortfolioItem) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🔥 %s\n━━━━━━━━━━━━━━━━━\n\n%s", strings.ToUpper(it.Title), it.Description)
	if len(it.Links) > 0 {
		sb.WriteString("\n\n🔗 Ссылки:")
		for _, l := range it.Links {
			sb.WriteString("\n• " + l)
		}
	}
	return sb.String()
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func (b *Bot) portfolioItem(c *callback, id string) error {
	it, err := b.Store.GetPortfolioItem(c.ctx, id)
	if err != nil {
		return err
	}
	kb := tg.Keyboard(tg.Btn("← Назад", backToCategory(it.Category)))
	caption := itemCaption(it)
	if len(it.Images) == 0 {
		b.replyWithKeyboard(c.chatID, caption, kb)
		return nil
	}
	for _, img := range it.Images[1:] {
		if err := tg.SendPhotoRef(b.Sender, c.chatID, img, "", nil); err != nil {
			logger.Warn("Failed to send portfolio image", zap.String("item_id", it.ID), zap.Error(err))
		}
	}
	if err := tg.SendPhotoRef(b.Sender, c.chatID, it.Images[0], truncateRunes(caption, maxCaptionRunes), &kb); err != nil {
		logger.Warn("Failed to send portfolio photo", zap.String("item_id", it.ID), zap.Error(err))
		b.replyWithKeyboard(c.chatID, caption, kb)
	}
	return nil
}

func (b *Bot) subcategory(c *callback, key string) error {
	s, ok := findSubcategory(key)
	if !ok {
		return errBadCallback
	}
	text := s.label + "\n\nПримеры наших работ:\n• Проект 1\n• Проект 2\n• Проект 3\n\n" +
		"Чтобы обсудить похожий проект, создайте заказ или запросите консультацию."
	b.show(c, text, kbPtr(tg.Keyboard(tg.Btn("← Назад", backToCategory(s.category)))))
	return nil
}
