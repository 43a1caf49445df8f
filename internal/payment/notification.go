package payment

import (
	"crypto/sha1"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"github.com/shopspring/decimal"
	"net/url"
	"strings"
)

var ErrBadSignature = errors.New("notification signature mismatch")

// Notification: HTTP-уведомление YooMoney о входящем переводе.
type Notification struct {
	NotificationType string
	OperationID      string
	Amount           decimal.Decimal
	WithdrawAmount   decimal.Decimal
	Currency         string
	Datetime         string
	Sender           string
	Codepro          string
	Label            string
	Unaccepted       bool
}

// ParseNotification проверяет sha1_hash и разбирает форму уведомления.
func ParseNotification(form url.Values, secret string) (Notification, error) {
	if !CheckSignature(form, secret) {
		return Notification{}, ErrBadSignature
	}
	amount, err := decimal.NewFromString(form.Get("amount"))
	if err != nil {
		return Notification{}, err
	}
	n := Notification{
		NotificationType: form.Get("notification_type"),
		OperationID:      form.Get("operation_id"),
		Amount:           amount,
		WithdrawAmount:   amount,
		Currency:         form.Get("currency"),
		Datetime:         form.Get("datetime"),
		Sender:           form.Get("sender"),
		Codepro:          form.Get("codepro"),
		Label:            form.Get("label"),
		Unaccepted:       form.Get("unaccepted") == "true",
	}
	// withdraw_amount: сумма, списанная с плательщика, её и сравниваем с заказом
	if raw := form.Get("withdraw_amount"); raw != "" {
		if w, err := decimal.NewFromString(raw); err == nil {
			n.WithdrawAmount = w
		}
	}
	return n, nil
}

// CheckSignature: sha1 от notification_type&operation_id&amount&currency&datetime&sender&codepro&secret&label.
func CheckSignature(form url.Values, secret string) bool {
	got := strings.ToLower(form.Get("sha1_hash"))
	if got == "" || secret == "" {
		return false
	}
	want := Signature(form, secret)
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func Signature(form url.Values, secret string) string {
	parts := []string{
		form.Get("notification_type"),
		form.Get("operation_id"),
		form.Get("amount"),
		form.Get("currency"),
		form.Get("datetime"),
		form.Get("sender"),
		form.Get("codepro"),
		secret,
		form.Get("label"),
	}
	sum := sha1.Sum([]byte(strings.Join(parts, "&")))
	return hex.EncodeToString(sum[:])
}
