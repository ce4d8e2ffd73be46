package scheduler

import (
	"context"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestLockerDisabledWithoutClient(t *testing.T) {
	locker := NewLocker(nil)
	assert.Nil(t, locker)
	assert.False(t, locker.Enabled())

	_, ok, err := locker.TryLock(context.Background(), payoutBatchLockKey, time.Minute)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrLockNotConfigured)
	assert.NoError(t, locker.Release(context.Background(), payoutBatchLockKey, "token"))
}

func TestLockerValidatesArguments(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })
	locker := NewLocker(client)

	_, _, err := locker.TryLock(context.Background(), "", time.Minute)
	assert.ErrorIs(t, err, ErrLockKeyEmpty)

	_, _, err = locker.TryLock(context.Background(), payoutBatchLockKey, 0)
	assert.ErrorIs(t, err, ErrLockTTLInvalid)

	assert.NoError(t, locker.Release(context.Background(), payoutBatchLockKey, ""))
}
