// Package cart holds one tab's cart and wishlist: every mutation a page can
// issue, the derived totals, and reconciliation against the catalog.
package cart

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/fjod/go_cart/storefront/internal/catalog"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/notify"
	"github.com/fjod/go_cart/storefront/internal/session"
)

const defaultPersistTimeout = 2 * time.Second

// Persister writes whole collections. Failures are the persister's concern;
// the engine never waits on a retry.
type Persister interface {
	SaveCart(ctx context.Context, items []domain.CartItem)
	SaveWishlist(ctx context.Context, items []domain.WishlistItem)
	ClearCart(ctx context.Context)
}

type Options struct {
	Persister Persister
	Activity  *session.Activity
	Debouncer *session.Debouncer
	Catalog   catalog.Catalog
	Sink      notify.Sink
	Log       *slog.Logger

	// PersistTimeout bounds writes issued by the session guard, which has no
	// caller context.
	PersistTimeout time.Duration
}

type Engine struct {
	persist        Persister
	activity       *session.Activity
	debounce       *session.Debouncer
	catalog        catalog.Catalog
	sink           notify.Sink
	log            *slog.Logger
	persistTimeout time.Duration

	mu       sync.Mutex
	cart     []domain.CartItem
	wishlist []domain.WishlistItem
}

func NewEngine(opts Options) *Engine {
	e := &Engine{
		persist:        opts.Persister,
		activity:       opts.Activity,
		debounce:       opts.Debouncer,
		catalog:        opts.Catalog,
		sink:           opts.Sink,
		log:            opts.Log,
		persistTimeout: opts.PersistTimeout,
	}
	if e.sink == nil {
		e.sink = notify.SinkFunc(func(notify.Notification) {})
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	if e.persistTimeout <= 0 {
		e.persistTimeout = defaultPersistTimeout
	}
	return e
}

// AddToCart appends the product with quantity 1, or bumps the quantity of
// the line that already carries its id.
func (e *Engine) AddToCart(ctx context.Context, item domain.CartItem) {
	e.mu.Lock()
	increased := e.mergeLocked(item)
	e.commitCartLocked(ctx)
	e.mu.Unlock()

	e.emit(addedNote(item.Name, increased))
}

// RemoveFromCart drops the line with id. name is only used for the
// notification.
func (e *Engine) RemoveFromCart(ctx context.Context, id, name string) {
	e.mu.Lock()
	i := e.cartIndex(id)
	if i < 0 {
		e.mu.Unlock()
		return
	}
	e.cart = slices.Delete(e.cart, i, i+1)
	e.commitCartLocked(ctx)
	e.mu.Unlock()

	e.emit(notify.Notification{Message: name + " removed from cart", Type: notify.Info})
}

// SaveForLater moves a cart line to the wishlist. A line whose id is already
// wishlisted just leaves the cart.
func (e *Engine) SaveForLater(ctx context.Context, id string) {
	e.mu.Lock()
	i := e.cartIndex(id)
	if i < 0 {
		e.mu.Unlock()
		return
	}
	item := e.cart[i]
	e.cart = slices.Delete(e.cart, i, i+1)
	if e.wishlistIndex(id) < 0 {
		e.wishlist = append(e.wishlist, item.ToWishlist())
	}
	e.commitCartLocked(ctx)
	e.persist.SaveWishlist(ctx, e.wishlist)
	e.mu.Unlock()

	e.emit(notify.Notification{Message: item.Name + " saved for later", Type: notify.Success})
}

// MoveToCart moves a wishlist entry into the cart with AddToCart semantics.
func (e *Engine) MoveToCart(ctx context.Context, id string) {
	e.mu.Lock()
	i := e.wishlistIndex(id)
	if i < 0 {
		e.mu.Unlock()
		return
	}
	entry := e.wishlist[i]
	increased := e.mergeLocked(entry.ToCart())
	e.wishlist = slices.Delete(e.wishlist, i, i+1)
	e.commitCartLocked(ctx)
	e.persist.SaveWishlist(ctx, e.wishlist)
	e.mu.Unlock()

	e.emit(addedNote(entry.Name, increased))
}

// RemoveFromSaved drops a wishlist entry, naming it from state.
func (e *Engine) RemoveFromSaved(ctx context.Context, id string) {
	e.mu.Lock()
	i := e.wishlistIndex(id)
	if i < 0 {
		e.mu.Unlock()
		return
	}
	name := e.wishlist[i].Name
	e.wishlist = slices.Delete(e.wishlist, i, i+1)
	e.persist.SaveWishlist(ctx, e.wishlist)
	e.mu.Unlock()

	e.emit(notify.Notification{Message: name + " removed from saved items", Type: notify.Info})
}

func (e *Engine) AddToWishlist(ctx context.Context, item domain.WishlistItem) {
	e.mu.Lock()
	if e.wishlistIndex(item.ID) >= 0 {
		e.mu.Unlock()
		e.emit(notify.Notification{Message: item.Name + " is already in your wishlist", Type: notify.Info})
		return
	}
	e.wishlist = append(e.wishlist, item)
	e.persist.SaveWishlist(ctx, e.wishlist)
	e.mu.Unlock()

	e.emit(notify.Notification{Message: item.Name + " added to wishlist", Type: notify.Success})
}

func (e *Engine) RemoveFromWishlist(ctx context.Context, id, name string) {
	e.mu.Lock()
	i := e.wishlistIndex(id)
	if i < 0 {
		e.mu.Unlock()
		return
	}
	e.wishlist = slices.Delete(e.wishlist, i, i+1)
	e.persist.SaveWishlist(ctx, e.wishlist)
	e.mu.Unlock()

	e.emit(notify.Notification{Message: name + " removed from wishlist", Type: notify.Info})
}

// MoveAllToCart merges every wishlist entry into the cart and empties the
// wishlist.
func (e *Engine) MoveAllToCart(ctx context.Context) {
	e.mu.Lock()
	if len(e.wishlist) == 0 {
		e.mu.Unlock()
		return
	}
	for _, entry := range e.wishlist {
		e.mergeLocked(entry.ToCart())
	}
	e.wishlist = nil
	e.commitCartLocked(ctx)
	e.persist.SaveWishlist(ctx, e.wishlist)
	e.mu.Unlock()

	e.emit(notify.Notification{Message: "All items moved to cart", Type: notify.Success})
}

// UpdateQuantity adds delta to a line's quantity. A result below 1 leaves
// the line unchanged. Only a step that would apply opens the debounce
// window; steps inside it are dropped.
func (e *Engine) UpdateQuantity(ctx context.Context, id string, delta int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	i := e.cartIndex(id)
	if i < 0 || delta == 0 {
		return
	}
	quantity := e.cart[i].Quantity + delta
	if quantity < 1 {
		return
	}
	if !e.debounce.Allow() {
		return
	}
	e.cart[i].Quantity = quantity
	e.commitCartLocked(ctx)
}

// UpdateItemQuantity sets a line's quantity to max(1, value).
func (e *Engine) UpdateItemQuantity(ctx context.Context, id string, value int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	i := e.cartIndex(id)
	if i < 0 {
		return
	}
	e.cart[i].Quantity = max(1, value)
	e.commitCartLocked(ctx)
}

// ClearCart empties the cart, removes its persisted copy and hides any
// expiry warning.
func (e *Engine) ClearCart(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.cart = nil
	e.persist.ClearCart(ctx)
	e.activity.HideWarning()
	e.activity.Touch()
}

// ValidateWithCatalog reconciles the cart with the catalog. It reports true
// when nothing had to change. The catalog is read without holding the
// engine, so the result is applied only to lines still present afterwards.
// A catalog failure or a cancelled ctx leaves the cart untouched.
func (e *Engine) ValidateWithCatalog(ctx context.Context) (bool, error) {
	items := e.CartItems()
	if len(items) == 0 {
		return true, nil
	}

	snapshot, err := e.catalog.Snapshot(ctx)
	if err != nil {
		return false, fmt.Errorf("load catalog: %w", err)
	}

	found := Reconcile(items, snapshot)
	if len(found) == 0 {
		return true, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	e.mu.Lock()
	applied := make([]Discrepancy, 0, len(found))
	for _, d := range found {
		i := e.cartIndex(d.ItemID)
		if i < 0 {
			continue
		}
		if d.Removes() {
			e.cart = slices.Delete(e.cart, i, i+1)
		} else {
			e.cart[i].Price = d.NewPrice
		}
		applied = append(applied, d)
	}
	if len(applied) > 0 {
		e.commitCartLocked(ctx)
	}
	e.mu.Unlock()

	e.log.Info("cart reconciled with catalog",
		slog.Int("discrepancies", len(found)),
		slog.Int("applied", len(applied)))

	for _, d := range applied {
		e.emit(notify.Notification{Message: d.Message(), Type: notify.Error})
	}
	return false, nil
}

// Expire clears the cart if it is non-empty and the session is idle. The
// guard checks outside the engine lock, so the idle test is repeated here.
func (e *Engine) Expire() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.cart) == 0 || e.activity.Remaining() > 0 {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.persistTimeout)
	defer cancel()

	e.cart = nil
	e.persist.ClearCart(ctx)
	e.activity.HideWarning()
	return true
}

func (e *Engine) IsEmpty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.cart) == 0
}

// ReplaceCart swaps in a cart written elsewhere. It never persists.
func (e *Engine) ReplaceCart(items []domain.CartItem) {
	items = normalizeCart(items)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.cart = items
	if len(items) == 0 {
		e.activity.HideWarning()
	}
}

// ReplaceWishlist swaps in a wishlist written elsewhere. It never persists.
func (e *Engine) ReplaceWishlist(items []domain.WishlistItem) {
	items = normalizeWishlist(items)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.wishlist = items
}

func (e *Engine) CartItems() []domain.CartItem {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.cart)
}

func (e *Engine) WishlistItems() []domain.WishlistItem {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.wishlist)
}

func (e *Engine) CartCount() int {
	return e.Totals().Count
}

func (e *Engine) CartTotal() float64 {
	return e.Totals().Total
}

func (e *Engine) CartSavings() float64 {
	return e.Totals().Savings
}

func (e *Engine) ShowSessionWarning() bool {
	return e.activity.WarningVisible()
}

// Totals is the derived view of the cart at one instant.
type Totals struct {
	Count   int     `json:"count"`
	Total   float64 `json:"total"`
	Savings float64 `json:"savings"`
}

func (e *Engine) Totals() Totals {
	e.mu.Lock()
	defer e.mu.Unlock()
	return totalsOf(e.cart)
}

func totalsOf(items []domain.CartItem) Totals {
	var t Totals
	for _, item := range items {
		t.Count += item.Quantity
		t.Total += item.Price * float64(item.Quantity)
		t.Savings += item.Savings() * float64(item.Quantity)
	}
	return t
}

// mergeLocked adds item with quantity 1 or increments the existing line and
// reports whether it incremented.
func (e *Engine) mergeLocked(item domain.CartItem) bool {
	if i := e.cartIndex(item.ID); i >= 0 {
		e.cart[i].Quantity++
		return true
	}
	item.Quantity = 1
	e.cart = append(e.cart, item)
	return false
}

// commitCartLocked persists the cart and refreshes the session clock.
func (e *Engine) commitCartLocked(ctx context.Context) {
	e.persist.SaveCart(ctx, e.cart)
	e.activity.Touch()
}

func (e *Engine) cartIndex(id string) int {
	return slices.IndexFunc(e.cart, func(c domain.CartItem) bool { return c.ID == id })
}

func (e *Engine) wishlistIndex(id string) int {
	return slices.IndexFunc(e.wishlist, func(w domain.WishlistItem) bool { return w.ID == id })
}

func (e *Engine) emit(n notify.Notification) {
	e.sink.Notify(n)
}

func addedNote(name string, increased bool) notify.Notification {
	if increased {
		return notify.Notification{Message: "Increased " + name + " quantity in cart", Type: notify.Success}
	}
	return notify.Notification{Message: name + " added to cart", Type: notify.Success}
}

// normalizeCart drops lines without an id, keeps the first line per id and
// lifts quantities below 1.
func normalizeCart(items []domain.CartItem) []domain.CartItem {
	out := make([]domain.CartItem, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item.ID == "" {
			continue
		}
		if _, dup := seen[item.ID]; dup {
			continue
		}
		seen[item.ID] = struct{}{}
		item.Quantity = max(1, item.Quantity)
		out = append(out, item)
	}
	return out
}

func normalizeWishlist(items []domain.WishlistItem) []domain.WishlistItem {
	out := make([]domain.WishlistItem, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item.ID == "" {
			continue
		}
		if _, dup := seen[item.ID]; dup {
			continue
		}
		seen[item.ID] = struct{}{}
		out = append(out, item)
	}
	return out
}
