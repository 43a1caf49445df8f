package ledger

import (
	"context"
	"errors"
	"freelance-market-bot/internal/db"
	"freelance-market-bot/internal/db/jsonstore"
	"github.com/shopspring/decimal"
	"testing"
)

func newLedger(t *testing.T, balance string) (*Ledger, *jsonstore.Store) {
	t.Helper()
	s := jsonstore.NewMemory()
	err := s.CreateUser(context.Background(), &db.User{
		Username: "bob",
		Role:     db.RoleContractor,
		Balance:  decimal.RequireFromString(balance),
		Rating:   db.DefaultRating,
	})
	if err != nil {
		t.Fatal(err)
	}
	return New(s, decimal.NewFromInt(500)), s
}

func TestAdjustRoundTrip(t *testing.T) {
	l, _ := newLedger(t, "1234.56")
	ctx := context.Background()

	if _, err := l.Adjust(ctx, "bob", decimal.NewFromInt(100)); err != nil {
		t.Fatal(err)
	}
	bal, err := l.Adjust(ctx, "bob", decimal.NewFromInt(-100))
	if err != nil {
		t.Fatal(err)
	}
	if !bal.Equal(decimal.RequireFromString("1234.56")) {
		t.Errorf("баланс = %s, ожидался 1234.56", bal)
	}
}

func TestAdjustCents(t *testing.T) {
	l, _ := newLedger(t, "0")
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		if _, err := l.Adjust(ctx, "bob", decimal.RequireFromString("0.10")); err != nil {
			t.Fatal(err)
		}
	}
	bal, _ := l.Balance(ctx, "bob")
	if !bal.Equal(decimal.NewFromInt(1)) {
		t.Errorf("10 × 0.10 = %s", bal)
	}
}

func TestRequestWithdrawal(t *testing.T) {
	tests := []struct {
		desc    string
		balance string
		amount  string
		wantErr error
		wantBal string
	}{
		{"больше баланса", "800", "900", ErrInsufficientFunds, "800"},
		{"меньше минимума", "800", "100", ErrBelowMinimum, "800"},
		{"отрицательная сумма", "800", "-10", ErrInvalidAmount, "800"},
		{"весь баланс", "800", "800", nil, "0"},
		{"часть баланса", "1500", "600", nil, "900"},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			l, s := newLedger(t, tt.balance)
			ctx := context.Background()
			_, _, err := l.RequestWithdrawal(ctx, "bob", decimal.RequireFromString(tt.amount))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ошибка = %v, ожидалась %v", err, tt.wantErr)
			}
			u, _ := s.GetUser(ctx, "bob")
			if !u.Balance.Equal(decimal.RequireFromString(tt.wantBal)) {
				t.Errorf("баланс = %s, ожидался %s", u.Balance, tt.wantBal)
			}
		})
	}
}

func TestRejectWithdrawalRefunds(t *testing.T) {
	l, _ := newLedger(t, "1000")
	ctx := context.Background()

	w, _, err := l.RequestWithdrawal(ctx, "bob", decimal.NewFromInt(700))
	if err != nil {
		t.Fatal(err)
	}
	pending, _ := l.Pending(ctx)
	if len(pending) != 1 {
		t.Fatalf("ожидалась одна заявка, получено %d", len(pending))
	}

	if _, err := l.ProcessWithdrawal(ctx, w.ID, false); err != nil {
		t.Fatal(err)
	}
	bal, _ := l.Balance(ctx, "bob")
	if !bal.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("после отклонения баланс = %s", bal)
	}

	if _, err := l.ProcessWithdrawal(ctx, w.ID, true); !errors.Is(err, db.ErrStatusConflict) {
		t.Errorf("повторная обработка: %v", err)
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"15 000", "15000", true},
		{"1500,50", "1500.5", true},
		{"2000 руб", "2000", true},
		{"2000₽", "2000", true},
		{"много", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, err := ParseAmount(tt.in)
		if tt.ok != (err == nil) {
			t.Errorf("ParseAmount(%q): ошибка %v", tt.in, err)
			continue
		}
		if tt.ok && !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("ParseAmount(%q) = %s, ожидалось %s", tt.in, got, tt.want)
		}
	}
}
