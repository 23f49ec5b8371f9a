package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/spec-kit/factory-support/internal/domain"
	"github.com/spec-kit/factory-support/internal/repository"
)

const (
	attrIssueID   = "issue_id"
	attrChatID    = "chat_id"
	attrID        = "id"
	attrUserID    = "user_id"
	attrContent   = "content"
	attrCreatedAt = "created_at"
	attrName      = "name"
	attrValue     = "value"

	counterChats    = "chats"
	counterMessages = "messages"
)

// Store implements the channel and message repositories on DynamoDB.
// Channel uniqueness comes from a conditional put keyed by issue id; ids are
// drawn from atomic counters so they grow monotonically like BIGSERIAL.
type Store struct {
	api    API
	tables Tables
	now    func() time.Time
}

// NewStore builds a store over api.
func NewStore(api API, tables Tables) *Store {
	return &Store{api: api, tables: tables, now: func() time.Time { return time.Now().UTC() }}
}

// Ping checks the chats table is reachable.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.tables.Chats)})
	return err
}

// Channels returns the store as a ChannelRepository.
func (s *Store) Channels() repository.ChannelRepository { return channels{s} }

// Messages returns the store as a MessageRepository.
func (s *Store) Messages() repository.MessageRepository { return messages{s} }

type channels struct{ s *Store }

func (c channels) GetOrCreate(ctx context.Context, issueID int64) (*domain.Channel, error) {
	ch, err := c.FindByIssue(ctx, issueID)
	if err == nil {
		return ch, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	id, err := c.s.nextID(ctx, counterChats)
	if err != nil {
		return nil, err
	}
	created := &domain.Channel{ID: id, IssueID: issueID, CreatedAt: c.s.now()}
	_, err = c.s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.s.tables.Chats),
		Item:                channelItem(created),
		ConditionExpression: aws.String("attribute_not_exists(#issue)"),
		ExpressionAttributeNames: map[string]string{
			"#issue": attrIssueID,
		},
	})
	if err != nil {
		var conflict *types.ConditionalCheckFailedException
		if errors.As(err, &conflict) {
			return c.FindByIssue(ctx, issueID)
		}
		return nil, fmt.Errorf("put chat for issue %d: %w", issueID, err)
	}
	return created, nil
}

func (c channels) FindByIssue(ctx context.Context, issueID int64) (*domain.Channel, error) {
	out, err := c.s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.s.tables.Chats),
		Key:            map[string]types.AttributeValue{attrIssueID: numberAttr(issueID)},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get chat for issue %d: %w", issueID, err)
	}
	if len(out.Item) == 0 {
		return nil, repository.ErrNotFound
	}
	return parseChannel(out.Item)
}

type messages struct{ s *Store }

func (m messages) Create(ctx context.Context, msg *domain.Message) error {
	id, err := m.s.nextID(ctx, counterMessages)
	if err != nil {
		return err
	}
	msg.ID = id
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = m.s.now()
	}
	if _, err := m.s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(m.s.tables.Messages),
		Item:      messageItem(msg),
	}); err != nil {
		return fmt.Errorf("put message: %w", err)
	}
	return nil
}

func (m messages) ListByChannel(ctx context.Context, channelID int64, page repository.Page) ([]domain.Message, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(m.s.tables.Messages),
		KeyConditionExpression: aws.String("#chat = :chat AND #id > :after"),
		ExpressionAttributeNames: map[string]string{
			"#chat": attrChatID,
			"#id":   attrID,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":chat":  numberAttr(channelID),
			":after": numberAttr(page.AfterID),
		},
		ScanIndexForward: aws.Bool(true),
		ConsistentRead:   aws.Bool(true),
	}

	result := make([]domain.Message, 0)
	for {
		if page.Limit > 0 {
			input.Limit = aws.Int32(int32(page.Limit - len(result)))
		}
		out, err := m.s.api.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("query messages: %w", err)
		}
		for _, item := range out.Items {
			msg, err := parseMessage(item)
			if err != nil {
				return nil, err
			}
			result = append(result, *msg)
		}
		if len(out.LastEvaluatedKey) == 0 || (page.Limit > 0 && len(result) >= page.Limit) {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
	return result, nil
}

func (s *Store) nextID(ctx context.Context, counter string) (int64, error) {
	out, err := s.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                aws.String(s.tables.Counters),
		Key:                      map[string]types.AttributeValue{attrName: &types.AttributeValueMemberS{Value: counter}},
		UpdateExpression:         aws.String("ADD #value :one"),
		ExpressionAttributeNames: map[string]string{"#value": attrValue},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": numberAttr(1),
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, fmt.Errorf("next %s id: %w", counter, err)
	}
	return getNumber(out.Attributes, attrValue)
}

func numberAttr(v int64) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(v, 10)}
}

func channelItem(ch *domain.Channel) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrIssueID:   numberAttr(ch.IssueID),
		attrID:        numberAttr(ch.ID),
		attrCreatedAt: &types.AttributeValueMemberS{Value: ch.CreatedAt.Format(time.RFC3339Nano)},
	}
}

func messageItem(msg *domain.Message) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrChatID:    numberAttr(msg.ChannelID),
		attrID:        numberAttr(msg.ID),
		attrUserID:    numberAttr(msg.AuthorID),
		attrContent:   &types.AttributeValueMemberS{Value: msg.Content},
		attrCreatedAt: &types.AttributeValueMemberS{Value: msg.CreatedAt.UTC().Format(time.RFC3339Nano)},
	}
}

func parseChannel(item map[string]types.AttributeValue) (*domain.Channel, error) {
	var (
		ch  domain.Channel
		err error
	)
	if ch.ID, err = getNumber(item, attrID); err != nil {
		return nil, err
	}
	if ch.IssueID, err = getNumber(item, attrIssueID); err != nil {
		return nil, err
	}
	if ch.CreatedAt, err = getTime(item, attrCreatedAt); err != nil {
		return nil, err
	}
	return &ch, nil
}

func parseMessage(item map[string]types.AttributeValue) (*domain.Message, error) {
	var (
		msg domain.Message
		err error
	)
	if msg.ID, err = getNumber(item, attrID); err != nil {
		return nil, err
	}
	if msg.ChannelID, err = getNumber(item, attrChatID); err != nil {
		return nil, err
	}
	if msg.AuthorID, err = getNumber(item, attrUserID); err != nil {
		return nil, err
	}
	if msg.CreatedAt, err = getTime(item, attrCreatedAt); err != nil {
		return nil, err
	}
	msg.Content = getString(item, attrContent)
	return &msg, nil
}

func getString(item map[string]types.AttributeValue, key string) string {
	if v, ok := item[key].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func getNumber(item map[string]types.AttributeValue, key string) (int64, error) {
	if v, ok := item[key].(*types.AttributeValueMemberN); ok {
		return strconv.ParseInt(v.Value, 10, 64)
	}
	return 0, fmt.Errorf("failed to parse %s", key)
}

func getTime(item map[string]types.AttributeValue, key string) (time.Time, error) {
	raw := getString(item, key)
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse %s (%s): %w", key, raw, err)
	}
	return t, nil
}
