package oms

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"candlebot/internal/logger"
	"candlebot/internal/models"
)

// OMS is the facade the driver talks to: one book per symbol behind a
// shared id sequence, one execution engine, one position manager. A run
// owns exactly one OMS and drives it from a single goroutine.
type OMS struct {
	seq        *Sequence
	books      map[string]*OrderBook
	symbolByID map[uint64]string
	exec       *ExecutionEngine
	positions  *PositionManager
	log        *logger.Logger
}

func New(cfg Config, log *logger.Logger) *OMS {
	return &OMS{
		seq:        NewSequence(),
		books:      make(map[string]*OrderBook),
		symbolByID: make(map[uint64]string),
		exec:       NewExecutionEngine(cfg),
		positions:  NewPositionManager(),
		log:        log,
	}
}

func (m *OMS) book(symbol string) *OrderBook {
	b, ok := m.books[symbol]
	if !ok {
		b = NewOrderBook(symbol, m.seq)
		m.books[symbol] = b
	}
	return b
}

// Submit validates and rests a new order. now is virtual time (the
// current bar), never the wall clock. A missing client id gets a uuid.
func (m *OMS) Submit(req models.OrderRequest, now time.Time) (models.Order, error) {
	if req.ClientID == "" {
		req.ClientID = uuid.NewString()
	}
	order, err := m.book(req.Symbol).Insert(req, now)
	if err != nil {
		m.log.WithComponent("oms").WithError(err).WithField("symbol", req.Symbol).
			Warn("order rejected")
		return order, err
	}
	m.symbolByID[order.ID] = req.Symbol
	m.log.WithComponent("oms").WithFields(logrus.Fields{
		"symbol": req.Symbol, "order_id": order.ID,
		"side": order.Side, "kind": order.Kind, "qty": order.Qty,
	}).Debug("order accepted")
	return order, nil
}

// Cancel tombstones a live order. Cancelling an already terminal order
// returns its final snapshot and ErrOrderTerminal.
func (m *OMS) Cancel(id uint64, now time.Time) (models.Order, error) {
	symbol, ok := m.symbolByID[id]
	if !ok {
		return models.Order{}, fmt.Errorf("cancel order %d: %w", id, ErrUnknownOrder)
	}
	order, err := m.books[symbol].Cancel(id, now)
	if err == nil {
		m.log.WithComponent("oms").WithFields(logrus.Fields{
			"symbol": symbol, "order_id": id,
		}).Debug("order cancelled")
	}
	return order, err
}

// ProcessBar matches the symbol's book against the candle and folds the
// fills into positions. A malformed candle aborts only this symbol's bar.
func (m *OMS) ProcessBar(symbol string, c models.Candle) ([]models.Fill, error) {
	fills, err := m.exec.ProcessBar(m.book(symbol), c)
	if err != nil {
		return nil, fmt.Errorf("process bar %s %s: %w", symbol, c.Datetime.Format(time.RFC3339), err)
	}
	for _, f := range fills {
		pos := m.positions.Apply(f)
		m.log.WithComponent("oms").WithFields(logrus.Fields{
			"symbol": symbol, "order_id": f.OrderID,
			"price": f.Price, "qty": f.Qty, "maker": f.IsMaker, "position": pos.Qty.String(),
		}).Debug("fill")
	}
	return fills, nil
}

// Order returns the current snapshot of any order the run has seen.
func (m *OMS) Order(id uint64) (models.Order, bool) {
	symbol, ok := m.symbolByID[id]
	if !ok {
		return models.Order{}, false
	}
	return m.books[symbol].Get(id)
}

// OpenOrders returns the live orders for the symbol in id order.
func (m *OMS) OpenOrders(symbol string) []models.Order {
	return m.book(symbol).OpenOrders()
}

func (m *OMS) Position(symbol string) models.Position {
	return m.positions.Position(symbol)
}

func (m *OMS) Positions() []models.Position {
	return m.positions.Positions()
}

func (m *OMS) PositionManager() *PositionManager {
	return m.positions
}

// Snapshot returns every live order (all symbols, id order) and every
// position, suitable for checkpointing as one unit.
func (m *OMS) Snapshot() ([]models.Order, []models.Position) {
	var orders []models.Order
	for _, b := range m.books {
		orders = append(orders, b.OpenOrders()...)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })
	return orders, m.positions.Positions()
}

// Restore loads a checkpoint produced by Snapshot into a fresh OMS.
func (m *OMS) Restore(orders []models.Order, positions []models.Position) error {
	for _, o := range orders {
		if err := m.book(o.Symbol).Restore(o); err != nil {
			return err
		}
		m.symbolByID[o.ID] = o.Symbol
	}
	for _, p := range positions {
		m.positions.Restore(p)
	}
	return nil
}
