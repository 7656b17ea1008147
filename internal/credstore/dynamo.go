package credstore

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jun/vaultgw/internal/model"
)

// DynamoAPI is the subset of *dynamodb.Client used here.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// credentialItem is the table layout: one item keyed by model.CredentialKey.
type credentialItem struct {
	ID           string    `dynamodbav:"id"`
	AccessToken  string    `dynamodbav:"access_token"`
	RefreshToken string    `dynamodbav:"refresh_token,omitempty"`
	Scope        string    `dynamodbav:"scope"`
	TokenType    string    `dynamodbav:"token_type"`
	Expiry       time.Time `dynamodbav:"expiry"`
	AccountEmail string    `dynamodbav:"account_email,omitempty"`
	UpdatedAt    time.Time `dynamodbav:"updated_at"`
}

// DynamoBackend stores the credential row in a DynamoDB table with a
// string partition key "id".
type DynamoBackend struct {
	client    DynamoAPI
	tableName string
}

func NewDynamoBackend(client DynamoAPI, tableName string) *DynamoBackend {
	return &DynamoBackend{client: client, tableName: tableName}
}

func (d *DynamoBackend) Get(ctx context.Context) (*model.CredentialSet, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.tableName),
		ConsistentRead: aws.Bool(true),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: model.CredentialKey},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb get credential: %w", err)
	}
	if out.Item == nil {
		return nil, ErrNoCredential
	}

	var item credentialItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal credential: %w", err)
	}

	return &model.CredentialSet{
		AccessToken:  item.AccessToken,
		RefreshToken: item.RefreshToken,
		Scope:        item.Scope,
		TokenType:    item.TokenType,
		Expiry:       item.Expiry,
		AccountEmail: item.AccountEmail,
		UpdatedAt:    item.UpdatedAt,
	}, nil
}

func (d *DynamoBackend) Put(ctx context.Context, cs *model.CredentialSet) error {
	item, err := attributevalue.MarshalMap(credentialItem{
		ID:           model.CredentialKey,
		AccessToken:  cs.AccessToken,
		RefreshToken: cs.RefreshToken,
		Scope:        cs.Scope,
		TokenType:    cs.TokenType,
		Expiry:       cs.Expiry,
		AccountEmail: cs.AccountEmail,
		UpdatedAt:    cs.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}

	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("dynamodb put credential: %w", err)
	}
	return nil
}
