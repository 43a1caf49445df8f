package dynamostore

import (
	"context"
	"errors"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Options: параметры подключения. Endpoint задаётся для локального DynamoDB.
type Options struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
	TablePrefix     string
}

// Connect создаёт клиента и при необходимости таблицы.
func Connect(ctx context.Context, opts Options) (*Store, error) {
	cfg, err := newAWSConfig(ctx, opts)
	if err != nil {
		return nil, err
	}
	s := New(dynamodb.NewFromConfig(cfg), opts.TablePrefix)
	if err := s.EnsureTables(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func newAWSConfig(ctx context.Context, opts Options) (aws.Config, error) {
	// Локальный DynamoDB не проверяет ключи, но SDK без них не работает.
	creds := credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(opts.Region),
		config.WithCredentialsProvider(creds),
	}

	if opts.Endpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
			if service == dynamodb.ServiceID {
				return aws.Endpoint{URL: opts.Endpoint, SigningRegion: region, HostnameImmutable: true}, nil
			}
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		})
		loadOpts = append(loadOpts, config.WithEndpointResolverWithOptions(resolver))
	}

	return config.LoadDefaultConfig(ctx, loadOpts...)
}

type index struct {
	name string
	key  string
	typ  types.ScalarAttributeType
}

type tableDef struct {
	name    string
	key     string
	keyType types.ScalarAttributeType
	indexes []index
}

var tableDefs = []tableDef{
	{name: tableUsers, key: "username", keyType: types.ScalarAttributeTypeS, indexes: []index{
		{name: indexChatID, key: "chat_id", typ: types.ScalarAttributeTypeN},
		{name: indexRole, key: "role", typ: types.ScalarAttributeTypeS},
	}},
	{name: tableOrders, key: "id", keyType: types.ScalarAttributeTypeS, indexes: []index{
		{name: indexCustomer, key: "customer_username", typ: types.ScalarAttributeTypeS},
		{name: indexExecutor, key: "executor_username", typ: types.ScalarAttributeTypeS},
		{name: indexOfferedTo, key: "offered_to", typ: types.ScalarAttributeTypeS},
		{name: indexStatus, key: "status", typ: types.ScalarAttributeTypeS},
	}},
	{name: tableMessages, key: "id", keyType: types.ScalarAttributeTypeS, indexes: []index{
		{name: indexOrderID, key: "order_id", typ: types.ScalarAttributeTypeS},
	}},
	{name: tablePayments, key: "id", keyType: types.ScalarAttributeTypeS, indexes: []index{
		{name: indexStatus, key: "status", typ: types.ScalarAttributeTypeS},
	}},
	{name: tablePortfolio, key: "id", keyType: types.ScalarAttributeTypeS, indexes: []index{
		{name: indexCategory, key: "category", typ: types.ScalarAttributeTypeS},
	}},
	{name: tableStates, key: "chat_id", keyType: types.ScalarAttributeTypeN},
	{name: tableWithdrawals, key: "id", keyType: types.ScalarAttributeTypeS, indexes: []index{
		{name: indexStatus, key: "status", typ: types.ScalarAttributeTypeS},
	}},
}

// EnsureTables создаёт недостающие таблицы (PAY_PER_REQUEST).
func (s *Store) EnsureTables(ctx context.Context) error {
	for _, def := range tableDefs {
		if err := s.createTable(ctx, def); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) createTable(ctx context.Context, def tableDef) error {
	attrs := []types.AttributeDefinition{{AttributeName: aws.String(def.key), AttributeType: def.keyType}}
	var gsis []types.GlobalSecondaryIndex
	for _, idx := range def.indexes {
		attrs = append(attrs, types.AttributeDefinition{AttributeName: aws.String(idx.key), AttributeType: idx.typ})
		gsis = append(gsis, types.GlobalSecondaryIndex{
			IndexName:  aws.String(idx.name),
			KeySchema:  []types.KeySchemaElement{{AttributeName: aws.String(idx.key), KeyType: types.KeyTypeHash}},
			Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
		})
	}

	_, err := s.ddb.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:              aws.String(s.table(def.name)),
		AttributeDefinitions:   attrs,
		KeySchema:              []types.KeySchemaElement{{AttributeName: aws.String(def.key), KeyType: types.KeyTypeHash}},
		GlobalSecondaryIndexes: gsis,
		BillingMode:            types.BillingModePayPerRequest,
	})
	var inUse *types.ResourceInUseException
	if errors.As(err, &inUse) {
		return nil
	}
	return err
}
