package cart

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_cart/storefront/internal/catalog"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/notify"
	"github.com/fjod/go_cart/storefront/internal/session"
	"github.com/fjod/go_cart/storefront/internal/store"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type persisterMock struct {
	mu       sync.Mutex
	cart     []domain.CartItem
	wishlist []domain.WishlistItem
	saves    int
	clears   int
}

func (p *persisterMock) SaveCart(_ context.Context, items []domain.CartItem) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cart = slices.Clone(items)
	p.saves++
}

func (p *persisterMock) SaveWishlist(_ context.Context, items []domain.WishlistItem) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.wishlist = slices.Clone(items)
	p.saves++
}

func (p *persisterMock) ClearCart(context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cart = nil
	p.clears++
}

func (p *persisterMock) writes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.saves + p.clears
}

type catalogFunc func(ctx context.Context) (catalog.Snapshot, error)

func (f catalogFunc) Snapshot(ctx context.Context) (catalog.Snapshot, error) { return f(ctx) }

type fixture struct {
	engine   *Engine
	persist  *persisterMock
	activity *session.Activity
	rec      *notify.Recorder
	clock    *clockwork.FakeClock
}

func setupEngine(t *testing.T, cat catalog.Catalog) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClock()
	f := &fixture{
		persist:  &persisterMock{},
		activity: session.NewActivity(clock, session.DefaultTimeout, session.DefaultWarnBefore),
		rec:      notify.NewRecorder(0),
		clock:    clock,
	}
	f.engine = NewEngine(Options{
		Persister: f.persist,
		Activity:  f.activity,
		Debouncer: session.NewDebouncer(clock, session.DefaultDebounce),
		Catalog:   cat,
		Sink:      f.rec,
		Log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return f
}

func product(id string, price float64) domain.CartItem {
	return domain.CartItem{ID: id, Name: "Product " + id, Price: price}
}

func ids(items []domain.CartItem) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.ID)
	}
	return out
}

func messages(notes []notify.Notification) []string {
	out := make([]string, 0, len(notes))
	for _, n := range notes {
		out = append(out, n.Message)
	}
	return out
}

func TestAddToCart_MergesOnReAdd(t *testing.T) {
	f := setupEngine(t, nil)
	ctx := context.Background()

	f.engine.AddToCart(ctx, product("p1", 10))
	f.engine.AddToCart(ctx, product("p1", 10))

	items := f.engine.CartItems()
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Quantity)
	assert.Equal(t, items, f.persist.cart)

	assert.Equal(t, []string{
		"Product p1 added to cart",
		"Increased Product p1 quantity in cart",
	}, messages(f.rec.Drain()))
}

func TestAddToCart_IgnoresIncomingQuantityAndKeepsOrder(t *testing.T) {
	f := setupEngine(t, nil)
	ctx := context.Background()

	p := product("p2", 5)
	p.Quantity = 7
	f.engine.AddToCart(ctx, product("p1", 10))
	f.engine.AddToCart(ctx, p)
	f.engine.AddToCart(ctx, product("p1", 10))

	items := f.engine.CartItems()
	assert.Equal(t, []string{"p1", "p2"}, ids(items))
	assert.Equal(t, 1, items[1].Quantity)
}

func TestAddToCart_RefreshesSession(t *testing.T) {
	f := setupEngine(t, nil)

	f.clock.Advance(20 * time.Minute)
	f.engine.AddToCart(context.Background(), product("p1", 10))

	assert.Equal(t, session.DefaultTimeout, f.activity.Remaining())
}

func TestRemoveFromCart(t *testing.T) {
	f := setupEngine(t, nil)
	ctx := context.Background()

	f.engine.AddToCart(ctx, product("p1", 10))
	f.rec.Drain()

	f.engine.RemoveFromCart(ctx, "p1", "Blue Mug")
	assert.Empty(t, f.engine.CartItems())
	assert.Empty(t, f.persist.cart)
	assert.Equal(t, []string{"Blue Mug removed from cart"}, messages(f.rec.Drain()))

	writes := f.persist.writes()
	f.engine.RemoveFromCart(ctx, "missing", "Nothing")
	assert.Empty(t, f.rec.Drain())
	assert.Equal(t, writes, f.persist.writes())
}

func TestSaveForLater_MovesAtomically(t *testing.T) {
	f := setupEngine(t, nil)
	ctx := context.Background()

	f.engine.AddToCart(ctx, product("p1", 10))
	f.engine.AddToCart(ctx, product("p2", 20))
	f.engine.SaveForLater(ctx, "p1")

	assert.Equal(t, []string{"p2"}, ids(f.engine.CartItems()))
	wishlist := f.engine.WishlistItems()
	require.Len(t, wishlist, 1)
	assert.Equal(t, "p1", wishlist[0].ID)
	assert.Equal(t, wishlist, f.persist.wishlist)
}

func TestSaveForLater_AlreadyWishlistedLeavesOneEntry(t *testing.T) {
	f := setupEngine(t, nil)
	ctx := context.Background()

	f.engine.AddToWishlist(ctx, product("p1", 10).ToWishlist())
	f.engine.AddToCart(ctx, product("p1", 10))
	f.engine.SaveForLater(ctx, "p1")

	assert.Empty(t, f.engine.CartItems())
	assert.Len(t, f.engine.WishlistItems(), 1)
}

func TestSaveForLater_UnknownIDIsNoop(t *testing.T) {
	f := setupEngine(t, nil)

	f.engine.SaveForLater(context.Background(), "missing")

	assert.Empty(t, f.engine.WishlistItems())
	assert.Empty(t, f.rec.Drain())
	assert.Zero(t, f.persist.writes())
}

func TestMoveToCart_MergesAndRemovesFromWishlist(t *testing.T) {
	f := setupEngine(t, nil)
	ctx := context.Background()

	f.engine.AddToCart(ctx, product("p1", 10))
	f.engine.AddToWishlist(ctx, product("p1", 10).ToWishlist())
	f.rec.Drain()

	f.engine.MoveToCart(ctx, "p1")

	items := f.engine.CartItems()
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Quantity)
	assert.Empty(t, f.engine.WishlistItems())
	assert.Equal(t, []string{"Increased Product p1 quantity in cart"}, messages(f.rec.Drain()))
}

func TestAddToWishlist_DuplicateIsInformational(t *testing.T) {
	f := setupEngine(t, nil)
	ctx := context.Background()

	entry := product("p1", 10).ToWishlist()
	f.engine.AddToWishlist(ctx, entry)
	f.engine.AddToWishlist(ctx, entry)

	assert.Len(t, f.engine.WishlistItems(), 1)
	notes := f.rec.Drain()
	require.Len(t, notes, 2)
	assert.Equal(t, notify.Success, notes[0].Type)
	assert.Equal(t, notify.Info, notes[1].Type)
	assert.Equal(t, "Product p1 is already in your wishlist", notes[1].Message)
}

func TestRemoveFromWishlistAndSaved(t *testing.T) {
	f := setupEngine(t, nil)
	ctx := context.Background()

	f.engine.AddToWishlist(ctx, product("p1", 10).ToWishlist())
	f.engine.AddToWishlist(ctx, product("p2", 10).ToWishlist())
	f.rec.Drain()

	f.engine.RemoveFromWishlist(ctx, "p1", "Lamp")
	f.engine.RemoveFromSaved(ctx, "p2")
	f.engine.RemoveFromSaved(ctx, "p2")

	assert.Empty(t, f.engine.WishlistItems())
	assert.Empty(t, f.persist.wishlist)
	assert.Equal(t, []string{
		"Lamp removed from wishlist",
		"Product p2 removed from saved items",
	}, messages(f.rec.Drain()))
}

func TestMoveAllToCart_EmptiesSource(t *testing.T) {
	f := setupEngine(t, nil)
	ctx := context.Background()

	f.engine.AddToWishlist(ctx, product("A", 1).ToWishlist())
	f.engine.AddToWishlist(ctx, product("B", 2).ToWishlist())
	f.engine.AddToCart(ctx, product("A", 1))
	f.rec.Drain()

	f.engine.MoveAllToCart(ctx)

	items := f.engine.CartItems()
	require.Len(t, items, 2)
	assert.Equal(t, "A", items[0].ID)
	assert.Equal(t, 2, items[0].Quantity)
	assert.Equal(t, "B", items[1].ID)
	assert.Equal(t, 1, items[1].Quantity)
	assert.Empty(t, f.engine.WishlistItems())
	assert.Empty(t, f.persist.wishlist)
	assert.Len(t, f.rec.Drain(), 1)
}

func TestMoveAllToCart_EmptyWishlistIsSilent(t *testing.T) {
	f := setupEngine(t, nil)

	f.engine.MoveAllToCart(context.Background())

	assert.Empty(t, f.rec.Drain())
	assert.Zero(t, f.persist.writes())
}

func TestUpdateQuantity_FloorRejectsDecrement(t *testing.T) {
	f := setupEngine(t, nil)
	ctx := context.Background()

	f.engine.AddToCart(ctx, product("p1", 10))
	f.engine.UpdateQuantity(ctx, "p1", -1)

	assert.Equal(t, 1, f.engine.CartItems()[0].Quantity)
}

func TestUpdateQuantity_DebounceWindow(t *testing.T) {
	f := setupEngine(t, nil)
	ctx := context.Background()

	f.engine.AddToCart(ctx, product("p1", 10))
	f.engine.UpdateQuantity(ctx, "p1", 1)
	last := f.activity.LastActivity()
	writes := f.persist.writes()

	f.clock.Advance(100 * time.Millisecond)
	f.engine.UpdateQuantity(ctx, "p1", 1)

	assert.Equal(t, 2, f.engine.CartItems()[0].Quantity)
	assert.Equal(t, last, f.activity.LastActivity())
	assert.Equal(t, writes, f.persist.writes())

	f.clock.Advance(300 * time.Millisecond)
	f.engine.UpdateQuantity(ctx, "p1", 2)
	assert.Equal(t, 4, f.engine.CartItems()[0].Quantity)
}

func TestUpdateQuantity_RejectedStepsDoNotOpenWindow(t *testing.T) {
	f := setupEngine(t, nil)
	ctx := context.Background()

	f.engine.AddToCart(ctx, product("p1", 10))
	f.engine.UpdateQuantity(ctx, "missing", 1)
	f.engine.UpdateQuantity(ctx, "p1", -1)
	f.engine.UpdateQuantity(ctx, "p1", 1)

	assert.Equal(t, 2, f.engine.CartItems()[0].Quantity)
}

func TestUpdateQuantity_OtherMutationsDoNotResetWindow(t *testing.T) {
	f := setupEngine(t, nil)
	ctx := context.Background()

	f.engine.AddToCart(ctx, product("p1", 10))
	f.engine.UpdateQuantity(ctx, "p1", 1)
	f.clock.Advance(400 * time.Millisecond)
	f.engine.AddToCart(ctx, product("p2", 10))
	f.engine.UpdateQuantity(ctx, "p1", 1)

	assert.Equal(t, 3, f.engine.CartItems()[0].Quantity)
}

func TestUpdateItemQuantity_NotDebounced(t *testing.T) {
	f := setupEngine(t, nil)
	ctx := context.Background()

	f.engine.AddToCart(ctx, product("p1", 10))
	f.engine.UpdateItemQuantity(ctx, "p1", 5)
	f.engine.UpdateItemQuantity(ctx, "p1", 8)
	assert.Equal(t, 8, f.engine.CartItems()[0].Quantity)

	f.engine.UpdateItemQuantity(ctx, "p1", -3)
	assert.Equal(t, 1, f.engine.CartItems()[0].Quantity)
}

func TestClearCart_HidesWarning(t *testing.T) {
	f := setupEngine(t, nil)
	ctx := context.Background()

	f.engine.AddToCart(ctx, product("p1", 10))
	f.activity.RaiseWarning()

	f.engine.ClearCart(ctx)

	assert.True(t, f.engine.IsEmpty())
	assert.False(t, f.engine.ShowSessionWarning())
	assert.Equal(t, 1, f.persist.clears)
}

func TestDerivedTotals(t *testing.T) {
	f := setupEngine(t, nil)
	ctx := context.Background()

	original := 15.0
	discounted := product("p1", 10)
	discounted.OriginalPrice = &original
	markup := product("p2", 20)
	lower := 18.0
	markup.OriginalPrice = &lower

	f.engine.AddToCart(ctx, discounted)
	f.engine.AddToCart(ctx, discounted)
	f.engine.AddToCart(ctx, markup)

	assert.Equal(t, 3, f.engine.CartCount())
	assert.InDelta(t, 40.0, f.engine.CartTotal(), 1e-9)
	assert.InDelta(t, 10.0, f.engine.CartSavings(), 1e-9)
}

func TestValidateWithCatalog_RemovesStockOuts(t *testing.T) {
	cat := catalog.Static{
		{ID: "X", Name: "X", Price: 120, InStock: true},
	}
	f := setupEngine(t, cat)
	ctx := context.Background()

	f.engine.AddToCart(ctx, product("X", 100))
	f.engine.AddToCart(ctx, product("Y", 50))
	f.rec.Drain()

	ok, err := f.engine.ValidateWithCatalog(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	items := f.engine.CartItems()
	require.Len(t, items, 1)
	assert.Equal(t, "X", items[0].ID)
	assert.Equal(t, 120.0, items[0].Price)
	assert.Equal(t, items, f.persist.cart)

	notes := f.rec.Drain()
	require.Len(t, notes, 2)
	assert.Equal(t, "Price of Product X changed from $100.00 to $120.00", notes[0].Message)
	assert.Equal(t, "Product Y is no longer available and was removed from your cart", notes[1].Message)
	for _, n := range notes {
		assert.Equal(t, notify.Error, n.Type)
	}
}

func TestValidateWithCatalog_OutOfStockAndCustomLines(t *testing.T) {
	cat := catalog.Static{
		{ID: "X", Name: "X", Price: 10, InStock: false},
		{ID: "Z", Name: "Z", Price: 5, InStock: true},
	}
	f := setupEngine(t, cat)
	ctx := context.Background()

	custom := product("custom-1", 99)
	custom.IsCustom = true
	f.engine.AddToCart(ctx, product("X", 10))
	f.engine.AddToCart(ctx, custom)
	f.engine.AddToCart(ctx, product("Z", 5))
	f.rec.Drain()

	ok, err := f.engine.ValidateWithCatalog(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []string{"custom-1", "Z"}, ids(f.engine.CartItems()))
	assert.Equal(t, []string{"Product X is out of stock and was removed from your cart"}, messages(f.rec.Drain()))
}

func TestValidateWithCatalog_CleanCartIsUntouched(t *testing.T) {
	f := setupEngine(t, catalog.Static{{ID: "X", Price: 10, InStock: true}})
	ctx := context.Background()

	f.engine.AddToCart(ctx, product("X", 10))
	f.rec.Drain()
	writes := f.persist.writes()

	ok, err := f.engine.ValidateWithCatalog(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, writes, f.persist.writes())
	assert.Empty(t, f.rec.Drain())
}

func TestValidateWithCatalog_CatalogFailureLeavesCart(t *testing.T) {
	boom := errors.New("catalog down")
	f := setupEngine(t, catalogFunc(func(context.Context) (catalog.Snapshot, error) {
		return catalog.Snapshot{}, boom
	}))
	ctx := context.Background()

	f.engine.AddToCart(ctx, product("X", 10))

	ok, err := f.engine.ValidateWithCatalog(ctx)
	require.ErrorIs(t, err, boom)
	assert.False(t, ok)
	assert.Len(t, f.engine.CartItems(), 1)
}

func TestValidateWithCatalog_DoesNotResurrectRemovedLine(t *testing.T) {
	var f *fixture
	f = setupEngine(t, catalogFunc(func(ctx context.Context) (catalog.Snapshot, error) {
		// the user acts while the catalog is loading
		f.engine.RemoveFromCart(ctx, "Y", "Y")
		f.engine.AddToCart(ctx, product("W", 1))
		return catalog.NewSnapshot([]domain.Product{{ID: "X", Price: 12, InStock: true}}), nil
	}))
	ctx := context.Background()

	f.engine.AddToCart(ctx, product("X", 10))
	f.engine.AddToCart(ctx, product("Y", 10))
	f.rec.Drain()

	ok, err := f.engine.ValidateWithCatalog(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	items := f.engine.CartItems()
	assert.Equal(t, []string{"X", "W"}, ids(items))
	assert.Equal(t, 12.0, items[0].Price)

	notes := messages(f.rec.Drain())
	assert.Contains(t, notes, "Price of Product X changed from $10.00 to $12.00")
	assert.NotContains(t, notes, "Product Y is no longer available and was removed from your cart")
}

func TestValidateWithCatalog_CancelledBeforeCommit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := setupEngine(t, catalogFunc(func(context.Context) (catalog.Snapshot, error) {
		cancel()
		return catalog.Snapshot{}, nil
	}))

	f.engine.AddToCart(context.Background(), product("X", 10))

	ok, err := f.engine.ValidateWithCatalog(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, ok)
	assert.Len(t, f.engine.CartItems(), 1)
}

func TestExpire_RechecksIdleness(t *testing.T) {
	f := setupEngine(t, nil)
	ctx := context.Background()

	assert.False(t, f.engine.Expire(), "empty cart never expires")

	f.engine.AddToCart(ctx, product("p1", 10))
	assert.False(t, f.engine.Expire(), "session still active")

	f.clock.Advance(31 * time.Minute)
	f.activity.RaiseWarning()
	assert.True(t, f.engine.Expire())
	assert.True(t, f.engine.IsEmpty())
	assert.False(t, f.engine.ShowSessionWarning())
	assert.Equal(t, 1, f.persist.clears)
}

func TestReplace_NeverPersists(t *testing.T) {
	f := setupEngine(t, nil)

	f.activity.RaiseWarning()
	f.engine.ReplaceCart([]domain.CartItem{
		{ID: "p1", Quantity: 0},
		{ID: "p1", Quantity: 4},
		{ID: ""},
		{ID: "p2", Quantity: 3},
	})
	f.engine.ReplaceWishlist([]domain.WishlistItem{{ID: "w1"}, {ID: "w1"}})

	items := f.engine.CartItems()
	assert.Equal(t, []string{"p1", "p2"}, ids(items))
	assert.Equal(t, 1, items[0].Quantity)
	assert.Len(t, f.engine.WishlistItems(), 1)
	assert.True(t, f.engine.ShowSessionWarning())
	assert.Zero(t, f.persist.writes())
	assert.Empty(t, f.rec.Drain())

	f.engine.ReplaceCart(nil)
	assert.True(t, f.engine.IsEmpty())
	assert.False(t, f.engine.ShowSessionWarning())
}

func TestEngine_PersistsThroughCollections(t *testing.T) {
	backend := store.NewMemoryBackend()
	view := backend.OpenView("user1", "tab-a")
	t.Cleanup(func() { view.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	collections := store.NewCollections(view, store.DefaultKeys(), log)
	clock := clockwork.NewFakeClock()
	engine := NewEngine(Options{
		Persister: collections,
		Activity:  session.NewActivity(clock, 0, 0),
		Debouncer: session.NewDebouncer(clock, 0),
		Log:       log,
	})
	ctx := context.Background()

	engine.AddToCart(ctx, product("p1", 10))
	engine.AddToWishlist(ctx, product("w1", 3).ToWishlist())

	assert.Equal(t, engine.CartItems(), collections.LoadCart(ctx))
	for _, key := range store.DefaultKeys().Wishlist {
		raw, err := view.Get(ctx, key)
		require.NoError(t, err)
		decoded, err := store.DecodeWishlist(raw)
		require.NoError(t, err)
		assert.Equal(t, engine.WishlistItems(), decoded)
	}

	engine.ClearCart(ctx)
	_, err := view.Get(ctx, "cart")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
