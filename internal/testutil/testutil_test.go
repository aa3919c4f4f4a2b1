package testutil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManualWall_Advance(t *testing.T) {
	w := NewManualWall()
	assert.Equal(t, Epoch, w.Now())

	w.Advance(90 * time.Second)
	assert.Equal(t, Epoch.Add(90*time.Second), w.Now())

	w.Set(Epoch)
	assert.Equal(t, Epoch, w.Now())
}

func TestFetcher_CountsCalls(t *testing.T) {
	f := NewFetcher(func(n int64) (any, error) { return n, nil })

	v, err := f.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	v, err = f.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
	assert.Equal(t, int64(2), f.Calls())
}

func TestFetcher_GateBlocksUntilRelease(t *testing.T) {
	f := Constant("ok")
	f.Gate()

	done := make(chan any, 1)
	go func() {
		v, _ := f.Fetch(context.Background())
		done <- v
	}()

	require.Eventually(t, func() bool { return f.Calls() == 1 }, time.Second, time.Millisecond)
	select {
	case <-done:
		t.Fatal("fetch returned before release")
	default:
	}

	f.Release()
	select {
	case v := <-done:
		assert.Equal(t, "ok", v)
	case <-time.After(time.Second):
		t.Fatal("fetch did not return after release")
	}
}

func TestFetcher_GateHonorsContext(t *testing.T) {
	f := Constant("ok")
	f.Gate()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Fetch(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
}
