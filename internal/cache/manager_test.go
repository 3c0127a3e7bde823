package cache

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 Manager 测试
// =============================================================================

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Manager) {
	t.Helper()

	mr := miniredis.RunT(t)

	config := Config{
		Addr:       mr.Addr(),
		Password:   "",
		DB:         0,
		DefaultTTL: 1 * time.Minute,
	}
	manager, err := NewManager(config, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	return mr, manager
}

func TestNewManager(t *testing.T) {
	_, manager := setupTestRedis(t)

	assert.NotNil(t, manager)
	assert.NoError(t, manager.Ping(context.Background()))
}

func TestNewManager_ConnectFailure(t *testing.T) {
	config := Config{
		Addr: "localhost:1", // 连不上的地址
	}

	manager, err := NewManager(config, zap.NewNop())
	assert.Nil(t, manager)
	assert.Error(t, err)
}

func TestNewManager_ZeroConfigGetsDefaults(t *testing.T) {
	mr := miniredis.RunT(t)

	manager, err := NewManager(Config{Addr: mr.Addr()}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	def := DefaultConfig()
	assert.Equal(t, def.DefaultTTL, manager.config.DefaultTTL)
	assert.Equal(t, def.MaxRetries, manager.config.MaxRetries)
	assert.Equal(t, def.PoolSize, manager.config.PoolSize)

	// 零值有含义的字段不补
	assert.Zero(t, manager.config.MinIdleConns)
	assert.Zero(t, manager.config.HealthCheckInterval)
}

func TestNewManager_ZeroTTLNeverMeansNoExpiry(t *testing.T) {
	mr := miniredis.RunT(t)

	manager, err := NewManager(Config{Addr: mr.Addr()}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	// 配置没给 DefaultTTL,ttl 参数也是零:键仍然要带过期时间,
	// 否则帧条目只进不出
	require.NoError(t, manager.Set(context.Background(), "frame", "v", 0))
	assert.Positive(t, mr.TTL("frame"))
}

func TestManager_SetAndGet(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "test-key", "test-value", 1*time.Minute))

	value, err := manager.Get(ctx, "test-key")
	require.NoError(t, err)
	assert.Equal(t, "test-value", value)
}

func TestManager_GetMiss(t *testing.T) {
	_, manager := setupTestRedis(t)

	value, err := manager.Get(context.Background(), "non-existent")
	assert.True(t, IsCacheMiss(err))
	assert.Equal(t, "", value)
}

func TestManager_SetDefaultTTL(t *testing.T) {
	mr, manager := setupTestRedis(t)
	ctx := context.Background()

	// ttl 为零时落到配置的默认 TTL
	require.NoError(t, manager.Set(ctx, "defaulted", "v", 0))

	mr.FastForward(2 * time.Minute)
	_, err := manager.Get(ctx, "defaulted")
	assert.True(t, IsCacheMiss(err))
}

func TestManager_Delete(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "test-key", "test-value", 1*time.Minute))
	require.NoError(t, manager.Delete(ctx, "test-key"))

	_, err := manager.Get(ctx, "test-key")
	assert.True(t, IsCacheMiss(err))
}

func TestManager_DeleteByPrefix(t *testing.T) {
	mr, manager := setupTestRedis(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, manager.Set(ctx, fmt.Sprintf("vf:frame:%d", i), "v", time.Minute))
	}
	require.NoError(t, manager.Set(ctx, "other:key", "keep", time.Minute))

	require.NoError(t, manager.DeleteByPrefix(ctx, "vf:frame:"))

	// 前缀内全删,前缀外保留
	for i := 0; i < 5; i++ {
		_, err := manager.Get(ctx, fmt.Sprintf("vf:frame:%d", i))
		assert.True(t, IsCacheMiss(err))
	}
	kept, err := manager.Get(ctx, "other:key")
	require.NoError(t, err)
	assert.Equal(t, "keep", kept)
	assert.Len(t, mr.Keys(), 1)
}

func TestManager_DeleteByPrefix_ManyPages(t *testing.T) {
	mr, manager := setupTestRedis(t)
	ctx := context.Background()

	// 超过单页 SCAN 的 100 条,游标要推进好几轮
	for i := 0; i < 250; i++ {
		require.NoError(t, manager.Set(ctx, fmt.Sprintf("vf:frame:%03d", i), "v", time.Minute))
	}

	require.NoError(t, manager.DeleteByPrefix(ctx, "vf:frame:"))
	assert.Empty(t, mr.Keys())
}

func TestManager_SetJSON(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	type TestData struct {
		Name  string `json:"name"`
		Value int    `json:"value"`
	}

	data := TestData{Name: "frame-7", Value: 123}
	require.NoError(t, manager.SetJSON(ctx, "test-json", data, 1*time.Minute))

	var result TestData
	require.NoError(t, manager.GetJSON(ctx, "test-json", &result))
	assert.Equal(t, data, result)
}

func TestManager_SetJSONFramePayload(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	// 帧条目那个量级的载荷:分析文本加上一段二进制图像数据
	type entry struct {
		Analysis string `json:"analysis"`
		Image    []byte `json:"image"`
	}
	in := entry{
		Analysis: "two people at a whiteboard",
		Image:    bytes.Repeat([]byte{0xFF, 0xD8, 0xEE}, 4096),
	}
	require.NoError(t, manager.SetJSON(ctx, "vf:frame:big", in, time.Minute))

	var out entry
	require.NoError(t, manager.GetJSON(ctx, "vf:frame:big", &out))
	assert.Equal(t, in.Analysis, out.Analysis)
	assert.Equal(t, in.Image, out.Image)
}

func TestManager_GetJSONMiss(t *testing.T) {
	_, manager := setupTestRedis(t)

	var result map[string]any
	err := manager.GetJSON(context.Background(), "non-existent", &result)
	assert.True(t, IsCacheMiss(err))
}

func TestManager_SetJSONInvalidData(t *testing.T) {
	_, manager := setupTestRedis(t)

	// channel 无法 JSON 序列化
	err := manager.SetJSON(context.Background(), "test-invalid", make(chan int), 1*time.Minute)
	assert.Error(t, err)
}

func TestManager_GetJSONInvalidPayload(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "test-invalid-json", "not a json", 1*time.Minute))

	var result map[string]any
	err := manager.GetJSON(ctx, "test-invalid-json", &result)
	assert.Error(t, err)
	assert.False(t, IsCacheMiss(err), "decode failure is not a miss")
}

func TestManager_TTLExpiry(t *testing.T) {
	mr, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "test-ttl", "value", 100*time.Millisecond))

	value, err := manager.Get(ctx, "test-ttl")
	require.NoError(t, err)
	assert.Equal(t, "value", value)

	mr.FastForward(200 * time.Millisecond)

	_, err = manager.Get(ctx, "test-ttl")
	assert.True(t, IsCacheMiss(err))
}

func TestManager_Ping(t *testing.T) {
	_, manager := setupTestRedis(t)
	assert.NoError(t, manager.Ping(context.Background()))
}

func TestManager_ClosedOperations(t *testing.T) {
	_, manager := setupTestRedis(t)
	require.NoError(t, manager.Close())

	ctx := context.Background()
	_, err := manager.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, manager.Set(ctx, "k", "v", time.Minute), ErrClosed)
	assert.ErrorIs(t, manager.Ping(ctx), ErrClosed)
	assert.ErrorIs(t, manager.Delete(ctx, "k"), ErrClosed)
	assert.ErrorIs(t, manager.DeleteByPrefix(ctx, "vf:"), ErrClosed)

	var dest map[string]any
	assert.ErrorIs(t, manager.GetJSON(ctx, "k", &dest), ErrClosed)

	// 关闭不算未命中,上层不能把它当 miss 吞掉
	assert.False(t, IsCacheMiss(err))

	// 重复关闭是空操作
	assert.NoError(t, manager.Close())
}

func TestManager_GetStats(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "k", "v", time.Minute))
	_, err := manager.Get(ctx, "k")
	require.NoError(t, err)

	stats := manager.GetStats()
	assert.Positive(t, stats.TotalConns, "operations should have opened at least one conn")
}

func TestManager_ConcurrentOperations(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func(id int) {
			key := fmt.Sprintf("concurrent-%d", id)
			assert.NoError(t, manager.Set(ctx, key, "value", 1*time.Minute))
			done <- true
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	for i := 0; i < 10; i++ {
		go func(id int) {
			key := fmt.Sprintf("concurrent-%d", id)
			value, err := manager.Get(ctx, key)
			assert.NoError(t, err)
			assert.Equal(t, "value", value)
			done <- true
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}
}
