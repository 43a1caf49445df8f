package session

import (
	"context"
	"freelance-market-bot/internal/db"
	"freelance-market-bot/internal/db/jsonstore"
	"path/filepath"
	"reflect"
	"testing"
)

func TestEncodeDecode(t *testing.T) {
	states := []State{
		ClientLoginUsername{},
		ClientLoginPassword{Username: "alice"},
		OrderBudget{Description: "Лендинг", Deadline: "3 дня"},
		InChat{OrderID: "o-1", Role: db.RoleClient},
		AdminRating{Login: "bob"},
		PortfolioImages{Category: "sites", Title: "Кофейня", Description: "Сайт", Images: []string{"f1", "f2"}},
		WithdrawAmount{Username: "bob"},
	}
	for _, st := range states {
		kind, payload, err := Encode(st)
		if err != nil {
			t.Fatalf("%s: %v", st.Kind(), err)
		}
		got, err := Decode(kind, payload)
		if err != nil {
			t.Fatalf("%s: %v", kind, err)
		}
		if !reflect.DeepEqual(got, st) {
			t.Errorf("%s: получено %#v, ожидалось %#v", kind, got, st)
		}
	}
}

func TestEveryKindDecodes(t *testing.T) {
	for kind := range decoders {
		st, err := Decode(kind, "")
		if err != nil {
			t.Fatalf("%s: %v", kind, err)
		}
		if st.Kind() != kind {
			t.Errorf("%s декодирован как %s", kind, st.Kind())
		}
	}
	if _, err := Decode("nope", "{}"); err == nil {
		t.Error("неизвестный kind должен давать ошибку")
	}
}

func TestManager(t *testing.T) {
	ctx := context.Background()
	store := jsonstore.NewMemory()
	m := NewManager(store)

	if st, err := m.Get(ctx, 1); err != nil || st != nil {
		t.Fatalf("пустое состояние: %v, %v", st, err)
	}
	if err := m.Set(ctx, 1, OrderDeadline{Description: "Лендинг"}); err != nil {
		t.Fatal(err)
	}
	if !m.Is(ctx, 1, KindOrderDeadline) {
		t.Error("ожидалось order_deadline")
	}
	st, _ := m.Get(ctx, 1)
	if d, ok := st.(OrderDeadline); !ok || d.Description != "Лендинг" {
		t.Errorf("состояние = %#v", st)
	}

	// новый менеджер поднимает состояние из хранилища
	st, err := NewManager(store).Get(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := st.(OrderDeadline); !ok {
		t.Errorf("после перезапуска: %#v", st)
	}

	if err := m.Clear(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if st, _ := NewManager(store).Get(ctx, 1); st != nil {
		t.Errorf("состояние не очищено: %#v", st)
	}
}

func TestManagerSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "db.json")
	s1, err := jsonstore.New(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := NewManager(s1).Set(ctx, 7, InChat{OrderID: "o-7"}); err != nil {
		t.Fatal(err)
	}

	s2, err := jsonstore.New(path)
	if err != nil {
		t.Fatal(err)
	}
	st, err := NewManager(s2).Get(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	if c, ok := st.(InChat); !ok || c.OrderID != "o-7" {
		t.Errorf("состояние = %#v", st)
	}
}

func TestManagerDropsBrokenState(t *testing.T) {
	ctx := context.Background()
	store := jsonstore.NewMemory()
	if err := store.SaveState(ctx, db.UserState{ChatID: 3, Kind: "removed_kind", Payload: "{}"}); err != nil {
		t.Fatal(err)
	}
	st, err := NewManager(store).Get(ctx, 3)
	if err != nil || st != nil {
		t.Errorf("ожидалось пустое состояние, получено %#v, %v", st, err)
	}
	if _, err := store.LoadState(ctx, 3); err == nil {
		t.Error("битое состояние осталось в хранилище")
	}
}
