package dynamostore

import (
	"context"
	"errors"
	"freelance-market-bot/internal/db"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"
	"sort"
	"strconv"
	"time"
)

const (
	tableUsers       = "users"
	tableOrders      = "orders"
	tableMessages    = "messages"
	tablePayments    = "payments"
	tablePortfolio   = "portfolio"
	tableStates      = "user_states"
	tableWithdrawals = "withdrawals"

	indexChatID    = "chat_id-index"
	indexRole      = "role-index"
	indexCustomer  = "customer_username-index"
	indexExecutor  = "executor_username-index"
	indexOfferedTo = "offered_to-index"
	indexStatus    = "status-index"
	indexOrderID   = "order_id-index"
	indexCategory  = "category-index"
)

// Store: хранилище в DynamoDB. Таблицы: PK id/username/chat_id, выборки через GSI.
// Один активный платёж на заказ обеспечивается атрибутом active_payment_id заказа.
type Store struct {
	ddb    *dynamodb.Client
	prefix string
}

var _ db.Store = (*Store)(nil)

func New(ddb *dynamodb.Client, prefix string) *Store {
	return &Store{ddb: ddb, prefix: prefix}
}

func (s *Store) table(name string) string {
	return s.prefix + name
}

func (s *Store) Close() error { return nil }

func strKey(col, v string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{col: &types.AttributeValueMemberS{Value: v}}
}

func numKey(col string, v int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{col: &types.AttributeValueMemberN{Value: strconv.FormatInt(v, 10)}}
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

// canceledAt сообщает, какие элементы транзакции не прошли условие.
func canceledAt(err error) []bool {
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return nil
	}
	failed := make([]bool, len(tce.CancellationReasons))
	for i, r := range tce.CancellationReasons {
		failed[i] = aws.ToString(r.Code) == "ConditionalCheckFailed"
	}
	return failed
}

func (s *Store) put(ctx context.Context, table, keyCol string, item interface{}) error {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return err
	}
	_, err = s.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(s.table(table)),
		Item:                     av,
		ConditionExpression:      aws.String("attribute_not_exists(#id)"),
		ExpressionAttributeNames: map[string]string{"#id": keyCol},
	})
	if isConditionFailed(err) {
		return db.ErrDuplicate
	}
	return err
}

func (s *Store) get(ctx context.Context, table string, key map[string]types.AttributeValue, out interface{}) error {
	res, err := s.ddb.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table(table)),
		Key:            key,
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return err
	}
	if len(res.Item) == 0 {
		return db.ErrNotFound
	}
	return attributevalue.UnmarshalMap(res.Item, out)
}

// query читает все страницы GSI по равенству ключа, с необязательным фильтром.
func (s *Store) query(ctx context.Context, table, index, keyCol string, key types.AttributeValue, filter *update, out interface{}) error {
	names := map[string]string{"#k": keyCol}
	values := map[string]types.AttributeValue{":k": key}
	var filterExpr *string
	if filter != nil {
		for k, v := range filter.names {
			names[k] = v
		}
		for k, v := range filter.values {
			values[k] = v
		}
		filterExpr = filter.Condition()
	}
	p := dynamodb.NewQueryPaginator(s.ddb, &dynamodb.QueryInput{
		TableName:                 aws.String(s.table(table)),
		IndexName:                 aws.String(index),
		KeyConditionExpression:    aws.String("#k = :k"),
		FilterExpression:          filterExpr,
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	var items []map[string]types.AttributeValue
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return err
		}
		items = append(items, page.Items...)
	}
	return attributevalue.UnmarshalListOfMaps(items, out)
}

func (s *Store) scan(ctx context.Context, table string, out interface{}) error {
	p := dynamodb.NewScanPaginator(s.ddb, &dynamodb.ScanInput{TableName: aws.String(s.table(table))})
	var items []map[string]types.AttributeValue
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return err
		}
		items = append(items, page.Items...)
	}
	return attributevalue.UnmarshalListOfMaps(items, out)
}

// updateItem выполняет UpdateItem; при невыполненном условии возвращает errCondition.
func (s *Store) updateItem(ctx context.Context, table string, key map[string]types.AttributeValue, u *update) (map[string]types.AttributeValue, error) {
	res, err := s.ddb.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table(table)),
		Key:                       key,
		UpdateExpression:          u.Expression(),
		ConditionExpression:       u.Condition(),
		ExpressionAttributeNames:  u.Names(),
		ExpressionAttributeValues: u.Values(),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if isConditionFailed(err) {
		return nil, errCondition
	}
	if err != nil {
		return nil, err
	}
	return res.Attributes, nil
}

var errCondition = errors.New("condition failed")

// --- пользователи ---

func (s *Store) CreateUser(ctx context.Context, u *db.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	return s.put(ctx, tableUsers, "username", toUserItem(u))
}

func (s *Store) getUserItem(ctx context.Context, username string) (userItem, error) {
	var it userItem
	err := s.get(ctx, tableUsers, strKey("username", username), &it)
	return it, err
}

func (s *Store) GetUser(ctx context.Context, username string) (*db.User, error) {
	it, err := s.getUserItem(ctx, username)
	if err != nil {
		return nil, err
	}
	u := it.user()
	return &u, nil
}

func (s *Store) usersByChat(ctx context.Context, chatID int64) ([]userItem, error) {
	var items []userItem
	key := &types.AttributeValueMemberN{Value: strconv.FormatInt(chatID, 10)}
	err := s.query(ctx, tableUsers, indexChatID, "chat_id", key, nil, &items)
	return items, err
}

func (s *Store) UserByChat(ctx context.Context, chatID int64, role db.Role) (*db.User, error) {
	items, err := s.usersByChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		if it.Role == string(role) {
			u := it.user()
			return &u, nil
		}
	}
	return nil, db.ErrNotFound
}

func (s *Store) BindChat(ctx context.Context, username string, chatID int64) error {
	owner, err := s.getUserItem(ctx, username)
	if err != nil {
		return err
	}
	others, err := s.usersByChat(ctx, chatID)
	if err != nil {
		return err
	}
	for _, it := range others {
		if it.Username == username || it.Role != owner.Role {
			continue
		}
		if err := s.UnbindChat(ctx, it.Username); err != nil && !errors.Is(err, db.ErrNotFound) {
			return err
		}
	}
	u := newUpdate()
	u.Exists("username")
	if err := u.Set("chat_id", chatID); err != nil {
		return err
	}
	_, err = s.updateItem(ctx, tableUsers, strKey("username", username), u)
	if errors.Is(err, errCondition) {
		return db.ErrNotFound
	}
	return err
}

func (s *Store) UnbindChat(ctx context.Context, username string) error {
	u := newUpdate()
	u.Exists("username")
	u.Remove("chat_id")
	_, err := s.updateItem(ctx, tableUsers, strKey("username", username), u)
	if errors.Is(err, errCondition) {
		return db.ErrNotFound
	}
	return err
}

func (s *Store) ListUsers(ctx context.Context, role db.Role) ([]db.User, error) {
	var items []userItem
	if err := s.query(ctx, tableUsers, indexRole, "role", &types.AttributeValueMemberS{Value: string(role)}, nil, &items); err != nil {
		return nil, err
	}
	users := make([]db.User, 0, len(items))
	for _, it := range items {
		users = append(users, it.user())
	}
	sort.Slice(users, func(i, j int) bool {
		if role == db.RoleContractor {
			if users[i].Rating != users[j].Rating {
				return users[i].Rating > users[j].Rating
			}
			if users[i].CompletedOrders != users[j].CompletedOrders {
				return users[i].CompletedOrders > users[j].CompletedOrders
			}
		}
		return users[i].Username < users[j].Username
	})
	return users, nil
}

func (s *Store) setContractorField(ctx context.Context, username, col string, v interface{}) error {
	u := newUpdate()
	u.Exists("username")
	if err := u.Expect("role", string(db.RoleContractor)); err != nil {
		return err
	}
	if err := u.Set(col, v); err != nil {
		return err
	}
	_, err := s.updateItem(ctx, tableUsers, strKey("username", username), u)
	if errors.Is(err, errCondition) {
		return db.ErrNotFound
	}
	return err
}

func (s *Store) SetRating(ctx context.Context, username string, rating int) error {
	return s.setContractorField(ctx, username, "rating", rating)
}

func (s *Store) SetBalance(ctx context.Context, username string, balance decimal.Decimal) error {
	return s.setContractorField(ctx, username, "balance", number(balance))
}

func balanceFrom(attrs map[string]types.AttributeValue) (decimal.Decimal, error) {
	var it userItem
	if err := attributevalue.UnmarshalMap(attrs, &it); err != nil {
		return decimal.Zero, err
	}
	return fromNumber(it.Balance), nil
}

func (s *Store) AddBalance(ctx context.Context, username string, delta decimal.Decimal) (decimal.Decimal, error) {
	res, err := s.ddb.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table(tableUsers)),
		Key:                       strKey("username", username),
		UpdateExpression:          aws.String("ADD balance :d"),
		ConditionExpression:       aws.String("attribute_exists(#u)"),
		ExpressionAttributeNames:  map[string]string{"#u": "username"},
		ExpressionAttributeValues: map[string]types.AttributeValue{":d": &types.AttributeValueMemberN{Value: delta.String()}},
		ReturnValues:              types.ReturnValueAllNew,
	})
	if isConditionFailed(err) {
		return decimal.Zero, db.ErrNotFound
	}
	if err != nil {
		return decimal.Zero, err
	}
	return balanceFrom(res.Attributes)
}

func (s *Store) WithdrawBalance(ctx context.Context, username string, amount decimal.Decimal) (decimal.Decimal, error) {
	res, err := s.ddb.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table(tableUsers)),
		Key:                       strKey("username", username),
		UpdateExpression:          aws.String("SET balance = balance - :a"),
		ConditionExpression:       aws.String("attribute_exists(#u) AND balance >= :a"),
		ExpressionAttributeNames:  map[string]string{"#u": "username"},
		ExpressionAttributeValues: map[string]types.AttributeValue{":a": &types.AttributeValueMemberN{Value: amount.String()}},
		ReturnValues:              types.ReturnValueAllNew,
	})
	if isConditionFailed(err) {
		if _, gerr := s.getUserItem(ctx, username); gerr != nil {
			return decimal.Zero, gerr
		}
		return decimal.Zero, db.ErrInsufficientFunds
	}
	if err != nil {
		return decimal.Zero, err
	}
	return balanceFrom(res.Attributes)
}

func (s *Store) IncrementCompleted(ctx context.Context, username string) error {
	_, err := s.ddb.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table(tableUsers)),
		Key:                       strKey("username", username),
		UpdateExpression:          aws.String("ADD completed_orders :one"),
		ConditionExpression:       aws.String("attribute_exists(#u)"),
		ExpressionAttributeNames:  map[string]string{"#u": "username"},
		ExpressionAttributeValues: map[string]types.AttributeValue{":one": &types.AttributeValueMemberN{Value: "1"}},
	})
	if isConditionFailed(err) {
		return db.ErrNotFound
	}
	return err
}

func (s *Store) DeleteUser(ctx context.Context, username string) error {
	_, err := s.ddb.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                aws.String(s.table(tableUsers)),
		Key:                      strKey("username", username),
		ConditionExpression:      aws.String("attribute_exists(#u)"),
		ExpressionAttributeNames: map[string]string{"#u": "username"},
	})
	if isConditionFailed(err) {
		return db.ErrNotFound
	}
	return err
}

// --- заказы ---

func (s *Store) CreateOrder(ctx context.Context, o *db.Order) error {
	now := time.Now()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	return s.put(ctx, tableOrders, "id", toOrderItem(o))
}

func (s *Store) getOrderItem(ctx context.Context, id string) (orderItem, error) {
	var it orderItem
	err := s.get(ctx, tableOrders, strKey("id", id), &it)
	return it, err
}

func (s *Store) GetOrder(ctx context.Context, id string) (*db.Order, error) {
	it, err := s.getOrderItem(ctx, id)
	if err != nil {
		return nil, err
	}
	o := it.order()
	return &o, nil
}

func orderFrom(attrs map[string]types.AttributeValue) (*db.Order, error) {
	var it orderItem
	if err := attributevalue.UnmarshalMap(attrs, &it); err != nil {
		return nil, err
	}
	o := it.order()
	return &o, nil
}

func (s *Store) TransitionOrder(ctx context.Context, id string, from, to db.OrderStatus, patch db.OrderPatch) (*db.Order, error) {
	u := newUpdate()
	u.Exists("id")
	if err := u.Expect("status", string(from)); err != nil {
		return nil, err
	}
	cols := patch.Columns()
	cols["status"] = string(to)
	cols["updated_at"] = time.Now()
	if err := u.SetColumns(cols); err != nil {
		return nil, err
	}
	attrs, err := s.updateItem(ctx, tableOrders, strKey("id", id), u)
	if errors.Is(err, errCondition) {
		if _, gerr := s.getOrderItem(ctx, id); gerr != nil {
			return nil, gerr
		}
		return nil, db.ErrStatusConflict
	}
	if err != nil {
		return nil, err
	}
	return orderFrom(attrs)
}

func (s *Store) PatchOrder(ctx context.Context, id string, patch db.OrderPatch) error {
	cols := patch.Columns()
	if len(cols) == 0 {
		return nil
	}
	cols["updated_at"] = time.Now()
	u := newUpdate()
	u.Exists("id")
	if err := u.SetColumns(cols); err != nil {
		return err
	}
	_, err := s.updateItem(ctx, tableOrders, strKey("id", id), u)
	if errors.Is(err, errCondition) {
		return db.ErrNotFound
	}
	return err
}

func (s *Store) ordersByIndex(ctx context.Context, index, keyCol, key string, filter *update) ([]db.Order, error) {
	var items []orderItem
	if err := s.query(ctx, tableOrders, index, keyCol, &types.AttributeValueMemberS{Value: key}, filter, &items); err != nil {
		return nil, err
	}
	out := make([]db.Order, 0, len(items))
	for _, it := range items {
		out = append(out, it.order())
	}
	return out, nil
}

func newestFirst(orders []db.Order) {
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })
}

func (s *Store) OrdersByCustomer(ctx context.Context, username string) ([]db.Order, error) {
	orders, err := s.ordersByIndex(ctx, indexCustomer, "customer_username", username, nil)
	if err != nil {
		return nil, err
	}
	newestFirst(orders)
	return orders, nil
}

func (s *Store) OrdersByExecutor(ctx context.Context, username string) ([]db.Order, error) {
	orders, err := s.ordersByIndex(ctx, indexExecutor, "executor_username", username, nil)
	if err != nil {
		return nil, err
	}
	pending := newUpdate()
	if err := pending.Expect("status", string(db.StatusPending)); err != nil {
		return nil, err
	}
	offered, err := s.ordersByIndex(ctx, indexOfferedTo, "offered_to", username, pending)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	for _, o := range orders {
		seen[o.ID] = true
	}
	for _, o := range offered {
		if !seen[o.ID] {
			orders = append(orders, o)
		}
	}
	newestFirst(orders)
	return orders, nil
}

func (s *Store) OrdersByStatus(ctx context.Context, statuses ...db.OrderStatus) ([]db.Order, error) {
	var out []db.Order
	for _, st := range statuses {
		orders, err := s.ordersByIndex(ctx, indexStatus, "status", string(st), nil)
		if err != nil {
			return nil, err
		}
		out = append(out, orders...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListOrders(ctx context.Context) ([]db.Order, error) {
	var items []orderItem
	if err := s.scan(ctx, tableOrders, &items); err != nil {
		return nil, err
	}
	out := make([]db.Order, 0, len(items))
	for _, it := range items {
		out = append(out, it.order())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// --- сообщения ---

func (s *Store) AddMessage(ctx context.Context, m *db.Message) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	return s.put(ctx, tableMessages, "id", messageItem{
		ID:        m.ID,
		OrderID:   m.OrderID,
		Username:  m.Username,
		UserRole:  string(m.UserRole),
		Text:      m.Text,
		Delivered: m.Delivered,
		CreatedAt: m.CreatedAt,
	})
}

func (s *Store) MarkDelivered(ctx context.Context, id string) error {
	_, err := s.ddb.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table(tableMessages)),
		Key:                       strKey("id", id),
		UpdateExpression:          aws.String("SET #d = :t"),
		ConditionExpression:       aws.String("attribute_exists(#id)"),
		ExpressionAttributeNames:  map[string]string{"#id": "id", "#d": "delivered"},
		ExpressionAttributeValues: map[string]types.AttributeValue{":t": &types.AttributeValueMemberBOOL{Value: true}},
	})
	if isConditionFailed(err) {
		return db.ErrNotFound
	}
	return err
}

func (s *Store) MessagesByOrder(ctx context.Context, orderID string) ([]db.Message, error) {
	var items []messageItem
	if err := s.query(ctx, tableMessages, indexOrderID, "order_id", &types.AttributeValueMemberS{Value: orderID}, nil, &items); err != nil {
		return nil, err
	}
	out := make([]db.Message, 0, len(items))
	for _, it := range items {
		out = append(out, db.Message{
			ID:        it.ID,
			OrderID:   it.OrderID,
			Username:  it.Username,
			UserRole:  db.Role(it.UserRole),
			Text:      it.Text,
			Delivered: it.Delivered,
			CreatedAt: it.CreatedAt,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// --- платежи ---

// CreatePayment одной транзакцией кладёт платёж и занимает active_payment_id заказа.
func (s *Store) CreatePayment(ctx context.Context, p *db.Payment) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	av, err := attributevalue.MarshalMap(toPaymentItem(p))
	if err != nil {
		return err
	}
	_, err = s.ddb.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:                aws.String(s.table(tablePayments)),
				Item:                     av,
				ConditionExpression:      aws.String("attribute_not_exists(#id)"),
				ExpressionAttributeNames: map[string]string{"#id": "id"},
			}},
			{Update: &types.Update{
				TableName:                 aws.String(s.table(tableOrders)),
				Key:                       strKey("id", p.OrderID),
				UpdateExpression:          aws.String("SET active_payment_id = :pid"),
				ConditionExpression:       aws.String("attribute_exists(#id) AND attribute_not_exists(active_payment_id)"),
				ExpressionAttributeNames:  map[string]string{"#id": "id"},
				ExpressionAttributeValues: map[string]types.AttributeValue{":pid": &types.AttributeValueMemberS{Value: p.ID}},
			}},
		},
	})
	if failed := canceledAt(err); failed != nil {
		if len(failed) > 1 && failed[1] {
			if _, gerr := s.getOrderItem(ctx, p.OrderID); gerr != nil {
				return gerr
			}
		}
		return db.ErrDuplicate
	}
	return err
}

func (s *Store) GetPayment(ctx context.Context, id string) (*db.Payment, error) {
	var it paymentItem
	if err := s.get(ctx, tablePayments, strKey("id", id), &it); err != nil {
		return nil, err
	}
	p := it.payment()
	return &p, nil
}

func (s *Store) ActivePayment(ctx context.Context, orderID string) (*db.Payment, error) {
	o, err := s.getOrderItem(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.ActivePaymentID == "" {
		return nil, db.ErrNotFound
	}
	return s.GetPayment(ctx, o.ActivePaymentID)
}

func (s *Store) TransitionPayment(ctx context.Context, id string, from, to db.PaymentStatus, patch db.PaymentPatch) (*db.Payment, error) {
	u := newUpdate()
	u.Exists("id")
	if err := u.Expect("status", string(from)); err != nil {
		return nil, err
	}
	cols := patch.Columns()
	cols["status"] = string(to)
	if err := u.SetColumns(cols); err != nil {
		return nil, err
	}

	// Переход из активного статуса в неактивный освобождает заказ под новый платёж.
	if from.Active() && !to.Active() {
		return s.releasePayment(ctx, id, u)
	}

	attrs, err := s.updateItem(ctx, tablePayments, strKey("id", id), u)
	if errors.Is(err, errCondition) {
		if _, gerr := s.GetPayment(ctx, id); gerr != nil {
			return nil, gerr
		}
		return nil, db.ErrStatusConflict
	}
	if err != nil {
		return nil, err
	}
	var it paymentItem
	if err := attributevalue.UnmarshalMap(attrs, &it); err != nil {
		return nil, err
	}
	p := it.payment()
	return &p, nil
}

func (s *Store) releasePayment(ctx context.Context, id string, u *update) (*db.Payment, error) {
	cur, err := s.GetPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	_, err = s.ddb.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Update: &types.Update{
				TableName:                 aws.String(s.table(tablePayments)),
				Key:                       strKey("id", id),
				UpdateExpression:          u.Expression(),
				ConditionExpression:       u.Condition(),
				ExpressionAttributeNames:  u.Names(),
				ExpressionAttributeValues: u.Values(),
			}},
			{Update: &types.Update{
				TableName:                 aws.String(s.table(tableOrders)),
				Key:                       strKey("id", cur.OrderID),
				UpdateExpression:          aws.String("REMOVE active_payment_id"),
				ConditionExpression:       aws.String("active_payment_id = :pid"),
				ExpressionAttributeValues: map[string]types.AttributeValue{":pid": &types.AttributeValueMemberS{Value: id}},
			}},
		},
	})
	if canceledAt(err) != nil {
		return nil, db.ErrStatusConflict
	}
	if err != nil {
		return nil, err
	}
	return s.GetPayment(ctx, id)
}

func (s *Store) PaymentsByUser(ctx context.Context, chatID int64, status db.PaymentStatus) ([]db.Payment, error) {
	filter := newUpdate()
	if err := filter.Expect("user_id", chatID); err != nil {
		return nil, err
	}
	return s.paymentsByStatus(ctx, status, filter)
}

func (s *Store) PaymentsByStatus(ctx context.Context, status db.PaymentStatus) ([]db.Payment, error) {
	return s.paymentsByStatus(ctx, status, nil)
}

func (s *Store) paymentsByStatus(ctx context.Context, status db.PaymentStatus, filter *update) ([]db.Payment, error) {
	var items []paymentItem
	if err := s.query(ctx, tablePayments, indexStatus, "status", &types.AttributeValueMemberS{Value: string(status)}, filter, &items); err != nil {
		return nil, err
	}
	out := make([]db.Payment, 0, len(items))
	for _, it := range items {
		out = append(out, it.payment())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// --- портфолио ---

func (s *Store) AddPortfolioItem(ctx context.Context, item *db.PortfolioItem) error {
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	return s.put(ctx, tablePortfolio, "id", portfolioItem{
		ID:          item.ID,
		Category:    item.Category,
		Title:       item.Title,
		Description: item.Description,
		Images:      item.Images,
		Links:       item.Links,
		CreatedAt:   item.CreatedAt,
	})
}

func (it portfolioItem) item() db.PortfolioItem {
	return db.PortfolioItem{
		ID:          it.ID,
		Category:    it.Category,
		Title:       it.Title,
		Description: it.Description,
		Images:      it.Images,
		Links:       it.Links,
		CreatedAt:   it.CreatedAt,
	}
}

func (s *Store) GetPortfolioItem(ctx context.Context, id string) (*db.PortfolioItem, error) {
	var it portfolioItem
	if err := s.get(ctx, tablePortfolio, strKey("id", id), &it); err != nil {
		return nil, err
	}
	item := it.item()
	return &item, nil
}

func (s *Store) PortfolioItems(ctx context.Context, category string) ([]db.PortfolioItem, error) {
	var items []portfolioItem
	if err := s.query(ctx, tablePortfolio, indexCategory, "category", &types.AttributeValueMemberS{Value: category}, nil, &items); err != nil {
		return nil, err
	}
	out := make([]db.PortfolioItem, 0, len(items))
	for _, it := range items {
		out = append(out, it.item())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) DeletePortfolioItem(ctx context.Context, id string) error {
	_, err := s.ddb.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                aws.String(s.table(tablePortfolio)),
		Key:                      strKey("id", id),
		ConditionExpression:      aws.String("attribute_exists(#id)"),
		ExpressionAttributeNames: map[string]string{"#id": "id"},
	})
	if isConditionFailed(err) {
		return db.ErrNotFound
	}
	return err
}

// --- состояния ввода ---

func (s *Store) SaveState(ctx context.Context, st db.UserState) error {
	av, err := attributevalue.MarshalMap(stateItem{
		ChatID:    st.ChatID,
		Kind:      st.Kind,
		Payload:   st.Payload,
		UpdatedAt: time.Now(),
	})
	if err != nil {
		return err
	}
	_, err = s.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table(tableStates)),
		Item:      av,
	})
	return err
}

func (s *Store) LoadState(ctx context.Context, chatID int64) (*db.UserState, error) {
	var it stateItem
	if err := s.get(ctx, tableStates, numKey("chat_id", chatID), &it); err != nil {
		return nil, err
	}
	return &db.UserState{ChatID: it.ChatID, Kind: it.Kind, Payload: it.Payload, UpdatedAt: it.UpdatedAt}, nil
}

func (s *Store) DeleteState(ctx context.Context, chatID int64) error {
	_, err := s.ddb.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table(tableStates)),
		Key:       numKey("chat_id", chatID),
	})
	return err
}

// --- выводы средств ---

func (s *Store) CreateWithdrawal(ctx context.Context, w *db.Withdrawal) error {
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now()
	}
	return s.put(ctx, tableWithdrawals, "id", withdrawalItem{
		ID:          w.ID,
		Username:    w.Username,
		Amount:      number(w.Amount),
		Status:      string(w.Status),
		CreatedAt:   w.CreatedAt,
		ProcessedAt: w.ProcessedAt,
	})
}

func (s *Store) GetWithdrawal(ctx context.Context, id string) (*db.Withdrawal, error) {
	var it withdrawalItem
	if err := s.get(ctx, tableWithdrawals, strKey("id", id), &it); err != nil {
		return nil, err
	}
	w := it.withdrawal()
	return &w, nil
}

func (s *Store) TransitionWithdrawal(ctx context.Context, id string, from, to db.WithdrawalStatus, at time.Time) (*db.Withdrawal, error) {
	u := newUpdate()
	u.Exists("id")
	if err := u.Expect("status", string(from)); err != nil {
		return nil, err
	}
	if err := u.SetColumns(map[string]interface{}{"status": string(to), "processed_at": at}); err != nil {
		return nil, err
	}
	attrs, err := s.updateItem(ctx, tableWithdrawals, strKey("id", id), u)
	if errors.Is(err, errCondition) {
		if _, gerr := s.GetWithdrawal(ctx, id); gerr != nil {
			return nil, gerr
		}
		return nil, db.ErrStatusConflict
	}
	if err != nil {
		return nil, err
	}
	var it withdrawalItem
	if err := attributevalue.UnmarshalMap(attrs, &it); err != nil {
		return nil, err
	}
	w := it.withdrawal()
	return &w, nil
}

func (s *Store) WithdrawalsByStatus(ctx context.Context, status db.WithdrawalStatus) ([]db.Withdrawal, error) {
	var items []withdrawalItem
	if err := s.query(ctx, tableWithdrawals, indexStatus, "status", &types.AttributeValueMemberS{Value: string(status)}, nil, &items); err != nil {
		return nil, err
	}
	out := make([]db.Withdrawal, 0, len(items))
	for _, it := range items {
		out = append(out, it.withdrawal())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
