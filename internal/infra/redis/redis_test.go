package redis

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnquest/learnquest/internal/domain"
)

// testClient connects to LEARNQUEST_TEST_REDIS or skips.
func testClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("LEARNQUEST_TEST_REDIS")
	if addr == "" {
		t.Skip("LEARNQUEST_TEST_REDIS not set")
	}
	cfg := DefaultConfig()
	cfg.Addr = addr
	client, err := NewClient(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "learnquest:lock:user:42", LockKey(42))
	assert.Equal(t, "learnquest:notifications:42", NotificationChannel(42))
}

func TestNewClient_Unreachable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:1"
	cfg.DialTimeout = 100 * time.Millisecond
	_, err := NewClient(context.Background(), cfg)
	assert.Error(t, err)
}

func TestLocker_ReleaseFailureIsLogged(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { client.Close() })
	logger, hook := test.NewNullLogger()

	l := NewLocker(client, time.Second, 0, logger)
	l.unlocker(LockKey(7), "token")()

	entry := hook.LastEntry()
	require.NotNil(t, entry, "release error must be logged")
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, LockKey(7), entry.Data["key"])
	assert.NotNil(t, entry.Data[logrus.ErrorKey])
	assert.Len(t, hook.AllEntries(), 1)
}

func TestLocker_ExpiredBeforeReleaseIsLogged(t *testing.T) {
	client := testClient(t)
	logger, hook := test.NewNullLogger()
	userID := time.Now().UnixNano()
	l := NewLocker(client, 5*time.Second, 5*time.Millisecond, logger)

	unlock, err := l.Lock(context.Background(), userID)
	require.NoError(t, err)
	require.NoError(t, client.Del(context.Background(), LockKey(userID)).Err())
	unlock()

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
}

func TestLocker_ExclusiveAndTimeout(t *testing.T) {
	client := testClient(t)
	userID := time.Now().UnixNano()
	l := NewLocker(client, 5*time.Second, 5*time.Millisecond, nil)

	unlock, err := l.Lock(context.Background(), userID)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, userID)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrLockTimeout)

	unlock()
	unlock()
	again, err := l.Lock(context.Background(), userID)
	require.NoError(t, err)
	again()
}

func TestLocker_ReleaseKeepsForeignToken(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()
	userID := time.Now().UnixNano()
	l := NewLocker(client, 5*time.Second, 5*time.Millisecond, nil)

	unlock, err := l.Lock(ctx, userID)
	require.NoError(t, err)

	// Simulate expiry and takeover by another process.
	require.NoError(t, client.Set(ctx, LockKey(userID), "someone-else", time.Minute).Err())
	unlock()

	val, err := client.Get(ctx, LockKey(userID)).Result()
	require.NoError(t, err)
	assert.Equal(t, "someone-else", val)
	client.Del(ctx, LockKey(userID))
}

func TestPubSubSink_Deliver(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()
	sink := NewPubSubSink(client)
	userID := time.Now().UnixNano()

	sub := sink.Subscribe(ctx, userID)
	defer sub.Close()
	_, err := sub.Receive(ctx) // subscription confirmation
	require.NoError(t, err)

	n := &domain.Notification{UserID: userID, Type: domain.NotifyBadgeEarned, Title: "New badge: First Steps"}
	require.NoError(t, sink.Deliver(ctx, n))

	select {
	case msg := <-sub.Channel():
		var got domain.Notification
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, n.Title, got.Title)
		assert.Equal(t, domain.NotifyBadgeEarned, got.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("notification not received")
	}
}
