package redisclient

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/care-scheduling/internal/appointment"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

var lockDate = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func TestProviderDayLocker_HoldsKeyDuringCriticalSection(t *testing.T) {
	mr, client := setupTestRedis(t)
	locker := NewProviderDayLocker(client, 5*time.Second, 0)
	providerID := uuid.New()
	key := lockKey(providerID, lockDate)

	ran := false
	err := locker.WithProviderDayLock(context.Background(), providerID, lockDate, func(ctx context.Context) error {
		ran = true
		assert.True(t, mr.Exists(key))
		deadline, ok := ctx.Deadline()
		assert.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(5*time.Second), deadline, time.Second)
		return nil
	})

	require.NoError(t, err)
	assert.True(t, ran)
	assert.False(t, mr.Exists(key), "lock must be released after the critical section")
}

func TestProviderDayLocker_ReturnsErrorWhenHeld(t *testing.T) {
	mr, client := setupTestRedis(t)
	locker := NewProviderDayLocker(client, 5*time.Second, 50*time.Millisecond)
	providerID := uuid.New()
	key := lockKey(providerID, lockDate)
	require.NoError(t, mr.Set(key, "someone-else"))

	err := locker.WithProviderDayLock(context.Background(), providerID, lockDate, func(ctx context.Context) error {
		t.Fatal("critical section must not run")
		return nil
	})

	assert.ErrorIs(t, err, ErrLockNotAcquired)
	got, _ := mr.Get(key)
	assert.Equal(t, "someone-else", got)
}

func TestProviderDayLocker_WaitsForRelease(t *testing.T) {
	mr, client := setupTestRedis(t)
	locker := NewProviderDayLocker(client, 5*time.Second, 2*time.Second)
	providerID := uuid.New()
	key := lockKey(providerID, lockDate)
	require.NoError(t, mr.Set(key, "someone-else"))

	go func() {
		time.Sleep(100 * time.Millisecond)
		mr.Del(key)
	}()

	ran := false
	err := locker.WithProviderDayLock(context.Background(), providerID, lockDate, func(ctx context.Context) error {
		ran = true
		return nil
	})

	require.NoError(t, err)
	assert.True(t, ran)
}

func TestProviderDayLocker_DoesNotReleaseForeignToken(t *testing.T) {
	mr, client := setupTestRedis(t)
	locker := NewProviderDayLocker(client, 5*time.Second, 0)
	providerID := uuid.New()
	key := lockKey(providerID, lockDate)

	err := locker.WithProviderDayLock(context.Background(), providerID, lockDate, func(ctx context.Context) error {
		// Simulate our key expiring and another instance taking over.
		return mr.Set(key, "new-holder")
	})

	require.NoError(t, err)
	got, _ := mr.Get(key)
	assert.Equal(t, "new-holder", got)
}

func TestProviderDayLocker_ScopesByProviderAndDay(t *testing.T) {
	_, client := setupTestRedis(t)
	locker := NewProviderDayLocker(client, 5*time.Second, 0)
	providerID := uuid.New()

	err := locker.WithProviderDayLock(context.Background(), providerID, lockDate, func(ctx context.Context) error {
		// Another day and another provider are independent keys.
		if err := locker.WithProviderDayLock(ctx, providerID, lockDate.AddDate(0, 0, 1), func(context.Context) error { return nil }); err != nil {
			return err
		}
		return locker.WithProviderDayLock(ctx, uuid.New(), lockDate, func(context.Context) error { return nil })
	})

	require.NoError(t, err)
}

func TestNumberSequence_Next(t *testing.T) {
	mr, client := setupTestRedis(t)
	seq := NewNumberSequence(client)
	ctx := context.Background()
	day := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	first, err := seq.Next(ctx, day)
	require.NoError(t, err)
	second, err := seq.Next(ctx, day)
	require.NoError(t, err)
	other, err := seq.Next(ctx, day.AddDate(0, 0, 1))
	require.NoError(t, err)

	assert.Equal(t, "APT-20250601-0001", first)
	assert.Equal(t, "APT-20250601-0002", second)
	assert.Equal(t, "APT-20250602-0001", other)
	assert.Equal(t, sequenceKeyTTL, mr.TTL("apptnum:20250601"))
}

func TestStreamSink_Deliver(t *testing.T) {
	_, client := setupTestRedis(t)
	sink := NewStreamSink(client, "appointments:events", 1000)
	ctx := context.Background()

	ev := appointment.Event{
		ID:                uuid.New(),
		Type:              appointment.EventCancelled,
		AppointmentID:     uuid.New(),
		AppointmentNumber: "APT-20250601-0001",
		Reason:            "patient request",
	}
	require.NoError(t, sink.Deliver(ctx, ev))

	msgs, err := client.XRange(ctx, "appointments:events", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	values := msgs[0].Values
	assert.Equal(t, "appointment.cancelled", values["type"])
	assert.Equal(t, ev.AppointmentID.String(), values["appointment_id"])

	var decoded appointment.Event
	require.NoError(t, json.Unmarshal([]byte(values["payload"].(string)), &decoded))
	assert.Equal(t, "patient request", decoded.Reason)
	assert.Equal(t, ev.AppointmentNumber, decoded.AppointmentNumber)
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedisClient(context.Background(), ClientOptions{Addr: mr.Addr()})
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, 10, client.Options().PoolSize)
	assert.True(t, client.Options().ContextTimeoutEnabled)
}

func TestNewRedisClientUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisClient(context.Background(), ClientOptions{Addr: addr, PoolSize: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping redis")
}
