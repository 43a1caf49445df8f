package tg

import (
	"github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"strings"
)

//go:generate mockgen -source=sender.go -destination=mock_tg/sender_mock.go -package=mock_tg

// Sender: часть *tgbotapi.BotAPI, которой пользуются обработчики.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Button описывает inline-кнопку: подпись и callback data.
type Button struct {
	Text string
	Data string
}

func Btn(text, data string) Button {
	return Button{Text: text, Data: data}
}

// Keyboard строит inline-клавиатуру по одной кнопке в строке.
func Keyboard(buttons ...Button) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, b := range buttons {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func SendText(s Sender, chatID int64, text string) error {
	_, err := s.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

func SendWithKeyboard(s Sender, chatID int64, text string, kb tgbotapi.InlineKeyboardMarkup) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = kb
	_, err := s.Send(msg)
	return err
}

// EditWithKeyboard заменяет текст сообщения с кнопками (меню «на месте»).
func EditWithKeyboard(s Sender, chatID int64, messageID int, text string, kb *tgbotapi.InlineKeyboardMarkup) error {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ReplyMarkup = kb
	_, err := s.Send(edit)
	return err
}

func SendPhoto(s Sender, chatID int64, name string, png []byte, caption string, kb *tgbotapi.InlineKeyboardMarkup) error {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: name, Bytes: png})
	photo.Caption = caption
	if kb != nil {
		photo.ReplyMarkup = *kb
	}
	_, err := s.Send(photo)
	return err
}

// SendPhotoRef отправляет уже загруженное фото по file_id или URL.
func SendPhotoRef(s Sender, chatID int64, ref string, caption string, kb *tgbotapi.InlineKeyboardMarkup) error {
	var file tgbotapi.RequestFileData = tgbotapi.FileID(ref)
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		file = tgbotapi.FileURL(ref)
	}
	photo := tgbotapi.NewPhoto(chatID, file)
	photo.Caption = caption
	if kb != nil {
		photo.ReplyMarkup = *kb
	}
	_, err := s.Send(photo)
	return err
}

func SendDocument(s Sender, chatID int64, name string, data []byte, caption string) error {
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: name, Bytes: data})
	doc.Caption = caption
	_, err := s.Send(doc)
	return err
}

// Answer закрывает «часики» на нажатой кнопке. Ошибка не важна.
func Answer(s Sender, callbackID, text string) {
	_, _ = s.Request(tgbotapi.NewCallback(callbackID, text))
}
