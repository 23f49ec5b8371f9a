// Package dynamo stores chat channels and messages in DynamoDB. Issues and
// accounts stay in Postgres; only the chat tables move.
package dynamo

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"github.com/spec-kit/factory-support/internal/config"
)

// API is the subset of *dynamodb.Client the store uses.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

// NewClient builds a DynamoDB client. A configured endpoint selects DynamoDB
// Local with static dummy credentials.
func NewClient(ctx context.Context, cfg config.StoreConfig) (*dynamodb.Client, error) {
	if cfg.DynamoEndpoint != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.DynamoRegion),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("dummy", "dummy", "dummy")),
		)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(cfg.DynamoEndpoint)
		}), nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.DynamoRegion))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return dynamodb.NewFromConfig(awsCfg), nil
}

// Tables names the three tables of one deployment.
type Tables struct {
	Chats    string
	Messages string
	Counters string
}

// TablesWithPrefix derives table names from the configured prefix.
func TablesWithPrefix(prefix string) Tables {
	return Tables{
		Chats:    prefix + "_chats",
		Messages: prefix + "_messages",
		Counters: prefix + "_counters",
	}
}

// EnsureTables creates missing tables. Intended for DynamoDB Local and tests.
func EnsureTables(ctx context.Context, api API, tables Tables, logger *zap.Logger) error {
	tableDefs := []struct {
		name string
		keys []types.KeySchemaElement
		defs []types.AttributeDefinition
	}{
		{
			name: tables.Chats,
			keys: []types.KeySchemaElement{{AttributeName: aws.String(attrIssueID), KeyType: types.KeyTypeHash}},
			defs: []types.AttributeDefinition{{AttributeName: aws.String(attrIssueID), AttributeType: types.ScalarAttributeTypeN}},
		},
		{
			name: tables.Messages,
			keys: []types.KeySchemaElement{
				{AttributeName: aws.String(attrChatID), KeyType: types.KeyTypeHash},
				{AttributeName: aws.String(attrID), KeyType: types.KeyTypeRange},
			},
			defs: []types.AttributeDefinition{
				{AttributeName: aws.String(attrChatID), AttributeType: types.ScalarAttributeTypeN},
				{AttributeName: aws.String(attrID), AttributeType: types.ScalarAttributeTypeN},
			},
		},
		{
			name: tables.Counters,
			keys: []types.KeySchemaElement{{AttributeName: aws.String(attrName), KeyType: types.KeyTypeHash}},
			defs: []types.AttributeDefinition{{AttributeName: aws.String(attrName), AttributeType: types.ScalarAttributeTypeS}},
		},
	}

	for _, table := range tableDefs {
		_, err := api.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table.name)})
		if err == nil {
			continue
		}
		var missing *types.ResourceNotFoundException
		if !errors.As(err, &missing) {
			return fmt.Errorf("describe table %s: %w", table.name, err)
		}
		if _, err := api.CreateTable(ctx, &dynamodb.CreateTableInput{
			TableName:            aws.String(table.name),
			KeySchema:            table.keys,
			AttributeDefinitions: table.defs,
			BillingMode:          types.BillingModePayPerRequest,
		}); err != nil {
			return fmt.Errorf("create table %s: %w", table.name, err)
		}
		logger.Info("created dynamodb table", zap.String("table", table.name))
	}
	return nil
}
