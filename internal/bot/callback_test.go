package bot

import (
	"errors"
	"github.com/shopspring/decimal"
	"testing"
)

func TestRouterMatch(t *testing.T) {
	b := New(Deps{})
	tests := []struct {
		data string
		arg  string
		ok   bool
	}{
		{cbClient, "", true},
		{cbBackToMainMenu, "", true},
		{"accept_order_3f2a", "3f2a", true},
		{"decline_paid_order_3f2a", "3f2a", true},
		{"decline_order_3f2a", "3f2a", true},
		{"open_contractor_chat_3f2a", "3f2a", true},
		{"withdraw_amount_bob_smith_1500.00", "bob_smith_1500.00", true},
		{"accept_order_", "", false},
		{"buy_server_1", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		h, arg, ok := b.routes.match(tt.data)
		if ok != tt.ok || arg != tt.arg {
			t.Errorf("match(%q) = (%q, %v), ожидалось (%q, %v)", tt.data, arg, ok, tt.arg, tt.ok)
		}
		if ok && h == nil {
			t.Errorf("match(%q): пустой обработчик", tt.data)
		}
	}
}

func TestWithdrawArg(t *testing.T) {
	arg := withdrawArg("bob_smith", decimal.RequireFromString("1500.5"))
	if arg != "bob_smith_1500.50" {
		t.Fatalf("withdrawArg = %q", arg)
	}
	login, amount, err := parseWithdrawArg(arg)
	if err != nil || login != "bob_smith" || !amount.Equal(decimal.RequireFromString("1500.50")) {
		t.Errorf("parseWithdrawArg(%q) = (%q, %s, %v)", arg, login, amount, err)
	}

	for _, bad := range []string{"bob", "_100", "bob_", "bob_сто"} {
		if _, _, err := parseWithdrawArg(bad); !errors.Is(err, errBadCallback) {
			t.Errorf("parseWithdrawArg(%q): ошибка %v, ожидалась errBadCallback", bad, err)
		}
	}
}
