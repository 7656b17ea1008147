package lock

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoAPI is the subset of *dynamodb.Client used by DynamoLocker.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// DynamoLocker keeps leases in a DynamoDB table keyed by "lock_key" with
// TTL enabled on "expires_at".
type DynamoLocker struct {
	client    DynamoAPI
	tableName string
	ttl       time.Duration
	now       func() time.Time
}

// NewDynamoLocker creates a DynamoLocker with DefaultTTL.
func NewDynamoLocker(client DynamoAPI, tableName string) *DynamoLocker {
	return &DynamoLocker{
		client:    client,
		tableName: tableName,
		ttl:       DefaultTTL,
		now:       time.Now,
	}
}

func (d *DynamoLocker) Acquire(ctx context.Context, key, owner string) (*Lease, error) {
	now := d.now().Unix()
	lease := Lease{
		Key:       key,
		Owner:     owner,
		ExpiresAt: now + int64(d.ttl.Seconds()),
	}

	item, err := attributevalue.MarshalMap(lease)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lease: %w", err)
	}

	// DynamoDB TTL deletion lags, so expiry is checked in the condition too.
	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item:      item,
		ConditionExpression: aws.String(
			"attribute_not_exists(lock_key) OR expires_at < :now OR #owner = :owner",
		),
		ExpressionAttributeNames: map[string]string{"#owner": "owner"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now":   &types.AttributeValueMemberN{Value: strconv.FormatInt(now, 10)},
			":owner": &types.AttributeValueMemberS{Value: owner},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, ErrHeld
		}
		return nil, fmt.Errorf("failed to acquire lease: %w", err)
	}
	return &lease, nil
}

func (d *DynamoLocker) Release(ctx context.Context, key, owner string) error {
	_, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]types.AttributeValue{
			"lock_key": &types.AttributeValueMemberS{Value: key},
		},
		ConditionExpression:      aws.String("#owner = :owner"),
		ExpressionAttributeNames: map[string]string{"#owner": "owner"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":owner": &types.AttributeValueMemberS{Value: owner},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrNotHeld
		}
		return fmt.Errorf("failed to release lease: %w", err)
	}
	return nil
}
