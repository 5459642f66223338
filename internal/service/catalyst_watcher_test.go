package service

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

type recordingSink struct {
	mu    sync.Mutex
	flags []domain.CatalystFlag
}

func (s *recordingSink) SetCatalyst(_ context.Context, flag domain.CatalystFlag) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags = append(s.flags, flag)
}

func (s *recordingSink) snapshot() []domain.CatalystFlag {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.CatalystFlag, len(s.flags))
	copy(out, s.flags)
	return out
}

func TestParseCatalyst(t *testing.T) {
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	flag, err := ParseCatalyst([]byte(`{"asset":"xrp","direction":"down","reason":"SEC ruling"}`), at)
	require.NoError(t, err)
	assert.True(t, flag.Active)
	assert.Equal(t, "DOWN", flag.Direction)
	assert.Equal(t, domain.SideNo, flag.Side())
	assert.Equal(t, at, flag.SetAt)

	flag, err = ParseCatalyst([]byte(`{"asset":"XRP"}`), at)
	require.NoError(t, err)
	assert.Equal(t, "UP", flag.Direction)

	flag, err = ParseCatalyst([]byte(`{"asset":"XRP","active":false}`), at)
	require.NoError(t, err)
	assert.False(t, flag.Active)

	_, err = ParseCatalyst([]byte(`{"asset":"BTC","direction":"UP"}`), at)
	assert.Error(t, err)

	_, err = ParseCatalyst([]byte(`not json`), at)
	assert.Error(t, err)
}

func TestCatalystWatcher_CheckFileOnlyOnChange(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "catalyst.json")
	sink := &recordingSink{}
	w := NewCatalystWatcher(path, time.Second, sink, nil, discardLogger())

	require.NoError(t, w.CheckFile(ctx), "a missing file is not an error")
	assert.Empty(t, sink.snapshot())

	first := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	require.NoError(t, os.WriteFile(path, []byte(`{"asset":"XRP","direction":"UP"}`), 0o600))
	require.NoError(t, os.Chtimes(path, first, first))

	require.NoError(t, w.CheckFile(ctx))
	require.NoError(t, w.CheckFile(ctx))
	flags := sink.snapshot()
	require.Len(t, flags, 1)
	assert.True(t, flags[0].SetAt.Equal(first))

	second := first.Add(time.Hour)
	require.NoError(t, os.WriteFile(path, []byte(`{"asset":"XRP","active":false}`), 0o600))
	require.NoError(t, os.Chtimes(path, second, second))
	require.NoError(t, w.CheckFile(ctx))

	flags = sink.snapshot()
	require.Len(t, flags, 2)
	assert.False(t, flags[1].Active)
}

func TestCatalystWatcher_BadFileIsReported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalyst.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"asset":"DOGE"}`), 0o600))
	sink := &recordingSink{}
	w := NewCatalystWatcher(path, time.Second, sink, nil, discardLogger())

	assert.Error(t, w.CheckFile(context.Background()))
	assert.Empty(t, sink.snapshot())
}

func TestCatalystWatcher_BusMessages(t *testing.T) {
	bus := newMemBus()
	sink := &recordingSink{}
	w := NewCatalystWatcher("", time.Second, sink, bus, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		bus.mu.Lock()
		defer bus.mu.Unlock()
		_, ok := bus.subs[domain.ChannelCatalyst]
		return ok
	}, time.Second, 5*time.Millisecond)

	ctxPub := context.Background()
	require.NoError(t, bus.Publish(ctxPub, domain.ChannelCatalyst, []byte(`{"asset":"BTC"}`)))
	require.NoError(t, bus.Publish(ctxPub, domain.ChannelCatalyst, []byte(`{"asset":"XRP","direction":"UP"}`)))

	require.Eventually(t, func() bool { return len(sink.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "UP", sink.snapshot()[0].Direction)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestCatalystWatcher_ResubscribesAfterFailure(t *testing.T) {
	bus := newMemBus()
	bus.failSubs = 2
	sink := &recordingSink{}
	w := NewCatalystWatcher("", time.Second, sink, bus, discardLogger())
	w.resubscribeDelay = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		bus.mu.Lock()
		defer bus.mu.Unlock()
		_, ok := bus.subs[domain.ChannelCatalyst]
		return ok
	}, time.Second, 5*time.Millisecond)

	select {
	case err := <-done:
		t.Fatalf("watcher stopped on a failed subscription: %v", err)
	default:
	}

	require.NoError(t, bus.Publish(context.Background(), domain.ChannelCatalyst, []byte(`{"asset":"XRP","direction":"DOWN"}`)))
	require.Eventually(t, func() bool { return len(sink.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "DOWN", sink.snapshot()[0].Direction)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}
