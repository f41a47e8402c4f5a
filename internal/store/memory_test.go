package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMemory(t *testing.T, namespace string, origins ...string) []*MemoryStore {
	backend := NewMemoryBackend()
	views := make([]*MemoryStore, 0, len(origins))
	for _, origin := range origins {
		view := backend.OpenView(namespace, origin)
		t.Cleanup(func() { view.Close() })
		views = append(views, view)
	}
	return views
}

func TestMemoryStore_ViewsShareValues(t *testing.T) {
	views := setupMemory(t, "user1", "tab-a", "tab-b")
	ctx := context.Background()

	require.NoError(t, views[0].Set(ctx, "cart", "[1]"))

	value, err := views[1].Get(ctx, "cart")
	require.NoError(t, err)
	assert.Equal(t, "[1]", value)

	require.NoError(t, views[1].Remove(ctx, "cart"))
	_, err = views[0].Get(ctx, "cart")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_NamespacesAreIsolated(t *testing.T) {
	backend := NewMemoryBackend()
	alice := backend.OpenView("alice", "tab-a")
	bob := backend.OpenView("bob", "tab-b")
	t.Cleanup(func() {
		alice.Close()
		bob.Close()
	})

	var seen changeRecorder
	_, err := alice.OnExternalChange("cart", seen.record)
	require.NoError(t, err)

	require.NoError(t, bob.Set(context.Background(), "cart", "[]"))

	_, err = alice.Get(context.Background(), "cart")
	assert.ErrorIs(t, err, ErrNotFound)

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, seen.snapshot())
}

func TestMemoryStore_DeliversOnlyExternalChangesInOrder(t *testing.T) {
	views := setupMemory(t, "user1", "tab-a", "tab-b")
	ctx := context.Background()

	var seenByA, seenByB changeRecorder
	_, err := views[0].OnExternalChange("cart", seenByA.record)
	require.NoError(t, err)
	_, err = views[1].OnExternalChange("cart", seenByB.record)
	require.NoError(t, err)

	for _, v := range []string{"[1]", "[2]", "[3]"} {
		require.NoError(t, views[1].Set(ctx, "cart", v))
	}
	require.NoError(t, views[1].Remove(ctx, "cart"))

	require.Eventually(t, func() bool {
		return len(seenByA.snapshot()) == 4
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []Change{
		{Key: "cart", Value: "[1]"},
		{Key: "cart", Value: "[2]"},
		{Key: "cart", Value: "[3]"},
		{Key: "cart", Removed: true},
	}, seenByA.snapshot())
	assert.Empty(t, seenByB.snapshot())
}

func TestMemoryStore_ClosedViewStopsReceiving(t *testing.T) {
	backend := NewMemoryBackend()
	tabA := backend.OpenView("user1", "tab-a")
	tabB := backend.OpenView("user1", "tab-b")
	t.Cleanup(func() { tabB.Close() })

	var seen changeRecorder
	_, err := tabA.OnExternalChange("cart", seen.record)
	require.NoError(t, err)

	require.NoError(t, tabA.Close())
	require.NoError(t, tabA.Close())

	require.NoError(t, tabB.Set(context.Background(), "cart", "[]"))
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, seen.snapshot())
}
