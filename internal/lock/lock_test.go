package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLocker_AcquireAndRelease(t *testing.T) {
	m := NewMemoryLocker()
	ctx := context.Background()

	lease, err := m.Acquire(ctx, "root/2025", "owner-a")
	require.NoError(t, err)
	assert.Equal(t, "root/2025", lease.Key)
	assert.Equal(t, "owner-a", lease.Owner)

	_, err = m.Acquire(ctx, "root/2025", "owner-b")
	assert.ErrorIs(t, err, ErrHeld)
	_, err = m.Acquire(ctx, "root/2025", "owner-a")
	assert.NoError(t, err, "holder should re-acquire")

	assert.ErrorIs(t, m.Release(ctx, "root/2025", "owner-b"), ErrNotHeld)
	require.NoError(t, m.Release(ctx, "root/2025", "owner-a"))
	_, err = m.Acquire(ctx, "root/2025", "owner-b")
	assert.NoError(t, err, "lease should be free after release")
}

func TestMemoryLocker_ExpiredLeaseIsTakenOver(t *testing.T) {
	m := NewMemoryLocker()
	now := time.Unix(1_700_000_000, 0)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := m.Acquire(ctx, "k", "owner-a")
	require.NoError(t, err)
	now = now.Add(DefaultTTL + time.Second)
	_, err = m.Acquire(ctx, "k", "owner-b")
	assert.NoError(t, err, "expired lease should be taken over")
}

func TestAcquireWait_PollsUntilReleased(t *testing.T) {
	orig := sleep
	released := make(chan struct{})
	var once sync.Once
	m := NewMemoryLocker()
	ctx := context.Background()
	_, err := m.Acquire(ctx, "k", "owner-a")
	require.NoError(t, err)
	sleep = func(ctx context.Context, _ time.Duration) error {
		once.Do(func() {
			_ = m.Release(ctx, "k", "owner-a")
			close(released)
		})
		return ctx.Err()
	}
	t.Cleanup(func() { sleep = orig })

	lease, err := AcquireWait(ctx, m, "k", "owner-b")
	require.NoError(t, err)
	<-released
	assert.Equal(t, "owner-b", lease.Owner)
}

func TestAcquireWait_ContextCanceled(t *testing.T) {
	m := NewMemoryLocker()
	_, _ = m.Acquire(context.Background(), "k", "owner-a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := AcquireWait(ctx, m, "k", "owner-b")
	require.ErrorIs(t, err, context.Canceled)
}

type fakeDynamo struct {
	putErr    error
	deleteErr error
	lastPut   *dynamodb.PutItemInput
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.lastPut = in
	return &dynamodb.PutItemOutput{}, f.putErr
}

func (f *fakeDynamo) DeleteItem(_ context.Context, _ *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	return &dynamodb.DeleteItemOutput{}, f.deleteErr
}

func TestDynamoLocker_Acquire(t *testing.T) {
	fake := &fakeDynamo{}
	d := NewDynamoLocker(fake, "folder-locks")

	lease, err := d.Acquire(context.Background(), "root/2025", "owner-a")
	require.NoError(t, err)
	assert.Greater(t, lease.ExpiresAt, time.Now().Unix(), "lease should expire in the future")
	require.NotNil(t, fake.lastPut.ConditionExpression)
	assert.Contains(t, *fake.lastPut.ConditionExpression, "attribute_not_exists(lock_key)")
	key, ok := fake.lastPut.Item["lock_key"].(*types.AttributeValueMemberS)
	require.True(t, ok, "unexpected key attribute %#v", fake.lastPut.Item["lock_key"])
	assert.Equal(t, "root/2025", key.Value)
}

func TestDynamoLocker_ConditionFailures(t *testing.T) {
	msg := "The conditional request failed"
	fake := &fakeDynamo{
		putErr:    &types.ConditionalCheckFailedException{Message: &msg},
		deleteErr: &types.ConditionalCheckFailedException{Message: &msg},
	}
	d := NewDynamoLocker(fake, "folder-locks")

	_, err := d.Acquire(context.Background(), "k", "owner-b")
	assert.ErrorIs(t, err, ErrHeld)
	assert.ErrorIs(t, d.Release(context.Background(), "k", "owner-b"), ErrNotHeld)
}
