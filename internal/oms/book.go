package oms

import (
	"fmt"
	"math"
	"sort"
	"time"

	"candlebot/internal/models"
)

// level is one price level: a FIFO queue of arena handles. Queue order is
// insertion order, and ids are monotonic, so FIFO equals sequence order.
type level struct {
	price float64
	queue []int
}

// levelSet keeps levels sorted best-first. desc=true means higher prices
// first (limit bids, sell stops); desc=false means lower prices first
// (limit asks, buy stops). Best-first order equals the outward-from-open
// sweep the execution engine walks.
type levelSet struct {
	levels []level
	desc   bool
}

func (s *levelSet) search(price float64) int {
	return sort.Search(len(s.levels), func(i int) bool {
		if s.desc {
			return s.levels[i].price <= price
		}
		return s.levels[i].price >= price
	})
}

func (s *levelSet) add(price float64, h int) {
	i := s.search(price)
	if i < len(s.levels) && s.levels[i].price == price {
		s.levels[i].queue = append(s.levels[i].queue, h)
		return
	}
	s.levels = append(s.levels, level{})
	copy(s.levels[i+1:], s.levels[i:])
	s.levels[i] = level{price: price, queue: []int{h}}
}

func (s *levelSet) removeLevel(i int) {
	s.levels = append(s.levels[:i], s.levels[i+1:]...)
}

// OrderBook holds every non-terminal order for one symbol. Orders live in
// a dense arena slice; price levels and the market queue hold arena
// handles; byID maps order id to handle for O(1) cancellation. Cancelled
// entries become tombstones that level queues skip and drop on the next
// sweep.
type OrderBook struct {
	symbol string
	seq    *Sequence

	arena []models.Order
	byID  map[uint64]int

	bids     levelSet // limit buys, highest price first
	asks     levelSet // limit sells, lowest price first
	stopBids levelSet // buy stops, lowest trigger first
	stopAsks levelSet // sell stops, highest trigger first
	market   []int    // market orders in submission order

	archive     []models.Order
	archiveByID map[uint64]int
}

// NewOrderBook creates an empty book. seq may be shared across books; nil
// gets the book its own counter.
func NewOrderBook(symbol string, seq *Sequence) *OrderBook {
	if seq == nil {
		seq = NewSequence()
	}
	return &OrderBook{
		symbol:      symbol,
		seq:         seq,
		byID:        make(map[uint64]int),
		bids:        levelSet{desc: true},
		asks:        levelSet{},
		stopBids:    levelSet{},
		stopAsks:    levelSet{desc: true},
		archiveByID: make(map[uint64]int),
	}
}

func (b *OrderBook) Symbol() string {
	return b.symbol
}

func badPrice(p float64) bool {
	return p <= 0 || math.IsNaN(p) || math.IsInf(p, 0)
}

func validateRequest(req models.OrderRequest, now time.Time) (models.TimeInForce, models.RejectReason) {
	if req.Qty <= 0 || math.IsNaN(req.Qty) || math.IsInf(req.Qty, 0) {
		return "", models.RejectQtyNotPositive
	}
	switch req.Kind {
	case models.OrderKindMarket:
		if req.LimitPrice != 0 {
			return "", models.RejectBadLimitPrice
		}
		if req.StopPrice != 0 {
			return "", models.RejectBadStopPrice
		}
	case models.OrderKindLimit:
		if badPrice(req.LimitPrice) {
			return "", models.RejectBadLimitPrice
		}
	case models.OrderKindStop:
		if badPrice(req.StopPrice) {
			return "", models.RejectBadStopPrice
		}
	case models.OrderKindStopLimit:
		if badPrice(req.LimitPrice) {
			return "", models.RejectBadLimitPrice
		}
		if badPrice(req.StopPrice) {
			return "", models.RejectBadStopPrice
		}
	default:
		return "", models.RejectUnknownOrderKind
	}
	tif := req.TimeInForce
	if tif == "" {
		tif = models.TimeInForceGTC
	}
	switch tif {
	case models.TimeInForceGTC, models.TimeInForceDay, models.TimeInForceIOC, models.TimeInForceFOK:
	case models.TimeInForceGTD:
		if req.ExpireAt.IsZero() || !req.ExpireAt.After(now) {
			return "", models.RejectExpiryInThePast
		}
	default:
		return "", models.RejectBadTimeInForce
	}
	return tif, ""
}

// Insert validates the request and rests the resulting order. A rejected
// request mutates nothing: the returned order carries the Rejected state
// and no id, and the error is a *RejectError.
func (b *OrderBook) Insert(req models.OrderRequest, now time.Time) (models.Order, error) {
	tif, reason := validateRequest(req, now)
	if reason != "" {
		rejected := models.Order{
			ClientID:    req.ClientID,
			Symbol:      b.symbol,
			Side:        req.Side,
			Kind:        req.Kind,
			Qty:         req.Qty,
			LimitPrice:  req.LimitPrice,
			StopPrice:   req.StopPrice,
			TimeInForce: req.TimeInForce,
			ExpireAt:    req.ExpireAt,
			State:       models.OrderStateRejected,
			CreateTime:  now,
			UpdateTime:  now,
		}
		return rejected, &RejectError{Reason: reason}
	}

	id := b.seq.Next()
	o := models.Order{
		ID:          id,
		ClientID:    req.ClientID,
		Symbol:      b.symbol,
		Side:        req.Side,
		Kind:        req.Kind,
		Qty:         req.Qty,
		LimitPrice:  req.LimitPrice,
		StopPrice:   req.StopPrice,
		TimeInForce: tif,
		ExpireAt:    req.ExpireAt,
		State:       models.OrderStateWorking,
		Sequence:    id,
		CreateTime:  now,
		UpdateTime:  now,
	}
	b.place(o)
	return o, nil
}

// Restore rests an order carried over from a checkpoint, keeping its id,
// sequence and partial-fill progress.
func (b *OrderBook) Restore(o models.Order) error {
	if o.State.IsTerminal() {
		return fmt.Errorf("restore order %d: %w", o.ID, ErrOrderTerminal)
	}
	if _, dup := b.byID[o.ID]; dup {
		return fmt.Errorf("restore order %d: duplicate id", o.ID)
	}
	o.Symbol = b.symbol
	b.place(o)
	b.seq.Bump(o.ID)
	return nil
}

func (b *OrderBook) place(o models.Order) {
	h := len(b.arena)
	b.arena = append(b.arena, o)
	b.byID[o.ID] = h
	switch {
	case o.Kind == models.OrderKindMarket:
		b.market = append(b.market, h)
	case o.Kind == models.OrderKindLimit,
		o.Kind == models.OrderKindStopLimit && o.Triggered:
		b.restLimit(h, o.Side, o.LimitPrice)
	default:
		if o.Side == models.OrderSideBuy {
			b.stopBids.add(o.StopPrice, h)
		} else {
			b.stopAsks.add(o.StopPrice, h)
		}
	}
}

func (b *OrderBook) restLimit(h int, side models.OrderSide, price float64) {
	if side == models.OrderSideBuy {
		b.bids.add(price, h)
	} else {
		b.asks.add(price, h)
	}
}

// Cancel tombstones the order in O(1). Cancelling a terminal order is a
// no-op that returns the archived snapshot and ErrOrderTerminal.
func (b *OrderBook) Cancel(id uint64, now time.Time) (models.Order, error) {
	h, ok := b.byID[id]
	if !ok {
		if i, done := b.archiveByID[id]; done {
			return b.archive[i], ErrOrderTerminal
		}
		return models.Order{}, fmt.Errorf("cancel order %d: %w", id, ErrUnknownOrder)
	}
	o := &b.arena[h]
	o.State = models.OrderStateCancelled
	o.UpdateTime = now
	b.retire(h)
	return *o, nil
}

// retire moves a now-terminal arena entry to the archive. The handle left
// behind in its queue is a tombstone the sweeps drop.
func (b *OrderBook) retire(h int) {
	o := b.arena[h]
	if !o.State.IsTerminal() {
		panic(fmt.Sprintf("oms: retire of live order %d state=%s book=%s", o.ID, o.State, b.debugString()))
	}
	delete(b.byID, o.ID)
	b.archiveByID[o.ID] = len(b.archive)
	b.archive = append(b.archive, o)
}

// Get returns the current snapshot of any order the book has seen.
func (b *OrderBook) Get(id uint64) (models.Order, bool) {
	if h, ok := b.byID[id]; ok {
		return b.arena[h], true
	}
	if i, ok := b.archiveByID[id]; ok {
		return b.archive[i], true
	}
	return models.Order{}, false
}

// OpenOrders returns live orders in id order.
func (b *OrderBook) OpenOrders() []models.Order {
	out := make([]models.Order, 0, len(b.byID))
	for _, o := range b.arena {
		if !o.State.IsTerminal() {
			out = append(out, o)
		}
	}
	return out
}

func (b *OrderBook) Len() int {
	return len(b.byID)
}

// Best returns the best resting limit price for the side.
func (b *OrderBook) Best(side models.OrderSide) (float64, bool) {
	set := &b.asks
	if side == models.OrderSideBuy {
		set = &b.bids
	}
	for i := range set.levels {
		for _, h := range set.levels[i].queue {
			if !b.arena[h].State.IsTerminal() {
				return set.levels[i].price, true
			}
		}
	}
	return 0, false
}

// OrdersAt returns the live limit orders resting at the price, in queue
// priority order.
func (b *OrderBook) OrdersAt(side models.OrderSide, price float64) []models.Order {
	set := &b.asks
	if side == models.OrderSideBuy {
		set = &b.bids
	}
	i := set.search(price)
	if i >= len(set.levels) || set.levels[i].price != price {
		return nil
	}
	var out []models.Order
	for _, h := range set.levels[i].queue {
		if !b.arena[h].State.IsTerminal() {
			out = append(out, b.arena[h])
		}
	}
	return out
}

// compact drops tombstoned handles from a queue in place.
func (b *OrderBook) compact(q []int) []int {
	out := q[:0]
	for _, h := range q {
		if !b.arena[h].State.IsTerminal() {
			out = append(out, h)
		}
	}
	return out
}

// expire flips Day and GTD orders whose validity ended at this bar
// boundary. Runs before any matching for the bar.
func (b *OrderBook) expire(barTime time.Time) {
	for h := range b.arena {
		o := &b.arena[h]
		if o.State.IsTerminal() {
			continue
		}
		expired := false
		switch o.TimeInForce {
		case models.TimeInForceDay:
			y0, d0 := o.CreateTime.UTC().Year(), o.CreateTime.UTC().YearDay()
			y1, d1 := barTime.UTC().Year(), barTime.UTC().YearDay()
			expired = y1 > y0 || (y1 == y0 && d1 > d0)
		case models.TimeInForceGTD:
			expired = !barTime.Before(o.ExpireAt)
		}
		if expired {
			o.State = models.OrderStateExpired
			o.UpdateTime = barTime
			b.retire(h)
		}
	}
}

// expireImmediates cancels whatever is left of IOC and FOK orders at the
// end of the bar that evaluated them.
func (b *OrderBook) expireImmediates(barTime time.Time) {
	for h := range b.arena {
		o := &b.arena[h]
		if o.State.IsTerminal() {
			continue
		}
		if o.TimeInForce == models.TimeInForceIOC || o.TimeInForce == models.TimeInForceFOK {
			o.State = models.OrderStateCancelled
			o.UpdateTime = barTime
			b.retire(h)
		}
	}
}

func (b *OrderBook) debugString() string {
	bestBid, _ := b.Best(models.OrderSideBuy)
	bestAsk, _ := b.Best(models.OrderSideSell)
	return fmt.Sprintf("{symbol=%s live=%d archived=%d best_bid=%v best_ask=%v}",
		b.symbol, len(b.byID), len(b.archive), bestBid, bestAsk)
}
