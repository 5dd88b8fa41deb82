package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/orbitrap-sim/lcmssim/internal/spectrum"
)

func TestPublishWithNoSubscribersSucceedsSilently(t *testing.T) {
	b := New(10)
	require.NotPanics(t, func() {
		b.Publish(spectrum.Scan{ScanNumber: 1})
	})
}

func TestSubscriberSeesMessagesInOrder(t *testing.T) {
	b := New(10)
	sub := b.Subscribe()
	defer sub.Close()

	for i := int32(1); i <= 5; i++ {
		b.Publish(spectrum.Scan{ScanNumber: i})
	}

	ctx := context.Background()
	for i := int32(1); i <= 5; i++ {
		scan, lag, _, ok := sub.Recv(ctx)
		require.True(t, ok)
		require.False(t, lag)
		require.Equal(t, i, scan.ScanNumber)
	}
}

func TestMultipleSubscribersEachSeeAllMessages(t *testing.T) {
	b := New(100)
	subs := []*Subscriber{b.Subscribe(), b.Subscribe(), b.Subscribe()}
	defer func() {
		for _, s := range subs {
			s.Close()
		}
	}()

	for i := int32(1); i <= 50; i++ {
		b.Publish(spectrum.Scan{ScanNumber: i})
	}

	ctx := context.Background()
	for _, s := range subs {
		for i := int32(1); i <= 50; i++ {
			scan, _, _, ok := s.Recv(ctx)
			require.True(t, ok)
			require.Equal(t, i, scan.ScanNumber)
		}
	}
}

func TestSlowSubscriberReportsLagAndCatchesUp(t *testing.T) {
	b := New(4)
	sub := b.Subscribe()
	defer sub.Close()

	for i := int32(1); i <= 10; i++ {
		b.Publish(spectrum.Scan{ScanNumber: i})
	}

	scan, lag, dropped, ok := sub.Recv(context.Background())
	require.True(t, ok)
	require.True(t, lag)
	require.Equal(t, uint64(6), dropped)
	require.Equal(t, int32(7), scan.ScanNumber)

	for i := int32(8); i <= 10; i++ {
		scan, lag, _, ok := sub.Recv(context.Background())
		require.True(t, ok)
		require.False(t, lag)
		require.Equal(t, i, scan.ScanNumber)
	}
}

func TestRecvReturnsFalseOnContextCancel(t *testing.T) {
	b := New(10)
	sub := b.Subscribe()
	defer sub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, _, _, ok := sub.Recv(ctx)
	require.False(t, ok)
}

func TestRecvReturnsFalseAfterClose(t *testing.T) {
	b := New(10)
	sub := b.Subscribe()
	defer sub.Close()

	b.Publish(spectrum.Scan{ScanNumber: 1})
	_, _, _, ok := sub.Recv(context.Background())
	require.True(t, ok)

	b.Close()
	_, _, _, ok = sub.Recv(context.Background())
	require.False(t, ok)
}

func TestSubscriberCount(t *testing.T) {
	b := New(10)
	require.Equal(t, 0, b.SubscriberCount())
	s1 := b.Subscribe()
	s2 := b.Subscribe()
	require.Equal(t, 2, b.SubscriberCount())
	s1.Close()
	require.Equal(t, 1, b.SubscriberCount())
	s2.Close()
}
