package dynamostore

import (
	"freelance-market-bot/internal/db"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"
	"testing"
)

func TestUpdateExpression(t *testing.T) {
	u := newUpdate()
	u.Exists("id")
	if err := u.Expect("status", "pending"); err != nil {
		t.Fatal(err)
	}
	cols := db.OrderPatch{ExecutorUsername: db.Ptr("bob"), OfferedTo: db.Ptr("")}.Columns()
	cols["status"] = "accepted_waiting_payment"
	if err := u.SetColumns(cols); err != nil {
		t.Fatal(err)
	}

	want := "SET #executor_username = :v_executor_username, #status = :v_status REMOVE #offered_to"
	if got := aws.ToString(u.Expression()); got != want {
		t.Errorf("Expression = %q, ожидалось %q", got, want)
	}
	wantCond := "attribute_exists(#id) AND #status = :c_status"
	if got := aws.ToString(u.Condition()); got != wantCond {
		t.Errorf("Condition = %q, ожидалось %q", got, wantCond)
	}
	from, ok := u.values[":c_status"].(*types.AttributeValueMemberS)
	if !ok || from.Value != "pending" {
		t.Errorf(":c_status = %#v", u.values[":c_status"])
	}
	if u.names["#offered_to"] != "offered_to" {
		t.Errorf("names = %v", u.names)
	}
}

func TestEmptyUpdateHasNoMaps(t *testing.T) {
	u := newUpdate()
	if u.Names() != nil || u.Values() != nil || u.Condition() != nil {
		t.Error("пустой update не должен отдавать пустые карты")
	}
}

func TestMoneyAsNumber(t *testing.T) {
	it := toUserItem(&db.User{Username: "bob", Balance: decimal.RequireFromString("1234.50")})
	if string(it.Balance) != "1234.5" {
		t.Errorf("balance = %s", it.Balance)
	}
	if got := it.user().Balance; !got.Equal(decimal.RequireFromString("1234.5")) {
		t.Errorf("обратное преобразование = %s", got)
	}
	if !fromNumber("").IsZero() {
		t.Error("пустое число должно быть нулём")
	}
}
