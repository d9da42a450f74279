package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"journalsync/config"
)

// dynamoAPI is the part of *dynamodb.Client the sheet store uses.
type dynamoAPI interface {
	CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

const (
	attrSheet = "Sheet"
	attrRow   = "Row"
	attrCells = "Cells"

	maxAppendConflicts = 5
)

// DynamoSheetOpener stores every sheet as items keyed by (Sheet, Row).
type DynamoSheetOpener struct {
	api    dynamoAPI
	table  string
	logger *slog.Logger

	mu    sync.Mutex
	ready bool
}

// GetDynamoDBClient builds a client; a configured endpoint (DynamoDB Local)
// overrides resolution and explicit keys override the default chain.
func GetDynamoDBClient(ctx context.Context, cfg config.DynamoDBConfig) (*dynamodb.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.Endpoint != "" {
		customResolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{URL: cfg.Endpoint}, nil
		})
		opts = append(opts, awsconfig.WithEndpointResolverWithOptions(customResolver))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.StaticCredentialsProvider{
			Value: aws.Credentials{AccessKeyID: cfg.AccessKeyID, SecretAccessKey: cfg.SecretAccessKey},
		}))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return dynamodb.NewFromConfig(awsCfg), nil
}

func NewDynamoSheetOpener(client *dynamodb.Client, table string, logger *slog.Logger) *DynamoSheetOpener {
	return newDynamoSheetOpener(client, table, logger)
}

func newDynamoSheetOpener(api dynamoAPI, table string, logger *slog.Logger) *DynamoSheetOpener {
	if logger == nil {
		logger = slog.Default()
	}
	return &DynamoSheetOpener{api: api, table: table, logger: logger}
}

func (o *DynamoSheetOpener) Name() string { return "dynamodb" }

func (o *DynamoSheetOpener) Open(ctx context.Context, sheetName string) (Sheet, error) {
	if err := o.ensureTableExists(ctx); err != nil {
		return nil, err
	}
	return &dynamoSheet{api: o.api, table: o.table, sheet: sheetName, next: -1}, nil
}

func (o *DynamoSheetOpener) ensureTableExists(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ready {
		return nil
	}
	_, err := o.api.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(o.table),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(attrSheet), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(attrRow), AttributeType: types.ScalarAttributeTypeN},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(attrSheet), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String(attrRow), KeyType: types.KeyTypeRange},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	var inUse *types.ResourceInUseException
	switch {
	case err == nil:
		o.logger.Info("created dynamodb table", "table", o.table)
		waiter := dynamodb.NewTableExistsWaiter(o.api)
		if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(o.table)}, 2*time.Minute); err != nil {
			return fmt.Errorf("wait for table %s: %w", o.table, err)
		}
	case errors.As(err, &inUse):
		o.logger.Debug("dynamodb table already exists", "table", o.table)
	default:
		return fmt.Errorf("create table %s: %w", o.table, err)
	}
	o.ready = true
	return nil
}

type dynamoSheet struct {
	api   dynamoAPI
	table string
	sheet string
	next  int // next free row index, -1 until rows were counted
}

func (s *dynamoSheet) Rows(ctx context.Context) ([][]string, error) {
	var rows [][]string
	var startKey map[string]types.AttributeValue
	last := -1
	for {
		out, err := s.api.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.table),
			KeyConditionExpression: aws.String("#s = :s"),
			ExpressionAttributeNames: map[string]string{
				"#s": attrSheet,
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":s": &types.AttributeValueMemberS{Value: s.sheet},
			},
			ScanIndexForward:  aws.Bool(true),
			ConsistentRead:    aws.Bool(true),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("query sheet %s: %w", s.sheet, err)
		}
		for _, item := range out.Items {
			idx, cells := decodeRowItem(item)
			if idx > last {
				last = idx
			}
			rows = append(rows, cells)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	s.next = last + 1
	return rows, nil
}

func (s *dynamoSheet) AppendRow(ctx context.Context, row []string) error {
	if s.next < 0 {
		if _, err := s.Rows(ctx); err != nil {
			return err
		}
	}
	cells := make([]types.AttributeValue, len(row))
	for i, c := range row {
		cells[i] = &types.AttributeValueMemberS{Value: c}
	}
	for conflicts := 0; ; conflicts++ {
		_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(s.table),
			Item: map[string]types.AttributeValue{
				attrSheet: &types.AttributeValueMemberS{Value: s.sheet},
				attrRow:   &types.AttributeValueMemberN{Value: strconv.Itoa(s.next)},
				attrCells: &types.AttributeValueMemberL{Value: cells},
			},
			ConditionExpression:      aws.String("attribute_not_exists(#r)"),
			ExpressionAttributeNames: map[string]string{"#r": attrRow},
		})
		var conflict *types.ConditionalCheckFailedException
		if errors.As(err, &conflict) && conflicts < maxAppendConflicts {
			// another writer took this row index
			s.next++
			continue
		}
		if err != nil {
			return fmt.Errorf("put row %d of %s: %w", s.next, s.sheet, err)
		}
		s.next++
		return nil
	}
}

func (s *dynamoSheet) Close() error { return nil }

func decodeRowItem(item map[string]types.AttributeValue) (int, []string) {
	idx := -1
	if n, ok := item[attrRow].(*types.AttributeValueMemberN); ok {
		if v, err := strconv.Atoi(n.Value); err == nil {
			idx = v
		}
	}
	var cells []string
	if l, ok := item[attrCells].(*types.AttributeValueMemberL); ok {
		cells = make([]string, 0, len(l.Value))
		for _, av := range l.Value {
			if sv, ok := av.(*types.AttributeValueMemberS); ok {
				cells = append(cells, sv.Value)
			} else {
				cells = append(cells, "")
			}
		}
	}
	return idx, cells
}
