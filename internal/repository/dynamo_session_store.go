package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/sirupsen/logrus"
	"github.com/swapsoft/pwdbudget/internal/models"
)

// DynamoAPI is the part of *dynamodb.Client the session store uses.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoSessionStore keeps one item per session: PK OTPUSER#<user>,
// SK OFFICE#<office>. The TTL attribute lets DynamoDB expire items.
type DynamoSessionStore struct {
	client    DynamoAPI
	tableName string
	logger    *logrus.Logger
}

func NewDynamoSessionStore(client DynamoAPI, tableName string, logger *logrus.Logger) *DynamoSessionStore {
	return &DynamoSessionStore{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

func dynamoPK(userID string) string { return "OTPUSER#" + userID }
func dynamoSK(office string) string { return "OFFICE#" + office }

func dynamoKey(key models.SessionKey) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: dynamoPK(key.UserID)},
		"SK": &types.AttributeValueMemberS{Value: dynamoSK(key.Office)},
	}
}

func (s *DynamoSessionStore) Put(ctx context.Context, sess *models.OTPSession) error {
	item, err := attributevalue.MarshalMap(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal OTP session: %w", err)
	}
	for k, v := range dynamoKey(sess.Key()) {
		item[k] = v
	}
	item["TTL"] = &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", sess.RetainUntil().Unix())}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		s.logger.WithError(err).Error("Failed to store OTP session in DynamoDB")
		return fmt.Errorf("failed to store OTP session: %w", err)
	}
	return nil
}

func (s *DynamoSessionStore) Get(ctx context.Context, key models.SessionKey) (*models.OTPSession, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            dynamoKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get OTP session: %w", err)
	}
	if result.Item == nil {
		return nil, ErrSessionNotFound
	}

	var sess models.OTPSession
	if err := attributevalue.UnmarshalMap(result.Item, &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal OTP session: %w", err)
	}
	return &sess, nil
}

func (s *DynamoSessionStore) Delete(ctx context.Context, key models.SessionKey) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       dynamoKey(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete OTP session: %w", err)
	}
	return nil
}

func (s *DynamoSessionStore) FindByUser(ctx context.Context, userID string) ([]*models.OTPSession, error) {
	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: dynamoPK(userID)},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query OTP sessions: %w", err)
	}

	var sessions []models.OTPSession
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &sessions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal OTP sessions: %w", err)
	}

	out := make([]*models.OTPSession, 0, len(sessions))
	for i := range sessions {
		out = append(out, &sessions[i])
	}
	return out, nil
}

// Sweep is a no-op; the table's TTL attribute expires items.
func (s *DynamoSessionStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}
