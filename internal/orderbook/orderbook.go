// Package orderbook projects decoded orders into a price-time sorted book.
// Time priority is the order's slot reservation time, not arrival order.
package orderbook

import (
	"bytes"
	"slices"

	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/chronos/backend/internal/codec"
)

type Book struct {
	Asks []codec.Order
	Bids []codec.Order
}

// Project builds the book from open orders. The result does not depend on
// the order of the input and never shares its backing array.
func Project(orders []codec.Order) Book {
	var book Book
	for _, o := range orders {
		if o.Status != codec.OrderStatusOpen {
			continue
		}
		switch o.Side {
		case codec.SideSell:
			book.Asks = append(book.Asks, o)
		case codec.SideBuy:
			book.Bids = append(book.Bids, o)
		}
	}
	slices.SortFunc(book.Asks, func(a, b codec.Order) int {
		if a.Price != b.Price {
			return cmpUint(a.Price, b.Price)
		}
		return timePriority(a, b)
	})
	slices.SortFunc(book.Bids, func(a, b codec.Order) int {
		if a.Price != b.Price {
			return cmpUint(b.Price, a.Price)
		}
		return timePriority(a, b)
	})
	return book
}

func timePriority(a, b codec.Order) int {
	switch {
	case a.SlotReservationTime < b.SlotReservationTime:
		return -1
	case a.SlotReservationTime > b.SlotReservationTime:
		return 1
	}
	return bytes.Compare(a.Address[:], b.Address[:])
}

func cmpUint(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func (b Book) BestAsk() (codec.Order, bool) {
	if len(b.Asks) == 0 {
		return codec.Order{}, false
	}
	return b.Asks[0], true
}

func (b Book) BestBid() (codec.Order, bool) {
	if len(b.Bids) == 0 {
		return codec.Order{}, false
	}
	return b.Bids[0], true
}

// Spread is best ask minus best bid. A crossed book reports 0.
func (b Book) Spread() (uint64, bool) {
	ask, okAsk := b.BestAsk()
	bid, okBid := b.BestBid()
	if !okAsk || !okBid {
		return 0, false
	}
	if ask.Price <= bid.Price {
		return 0, true
	}
	return ask.Price - bid.Price, true
}

// ByMarket keeps the orders that belong to market.
func ByMarket(orders []codec.Order, market solana.PublicKey) []codec.Order {
	out := make([]codec.Order, 0, len(orders))
	for _, o := range orders {
		if o.Market.Equals(market) {
			out = append(out, o)
		}
	}
	return out
}

type Level struct {
	Price    uint64
	Quantity uint64
	Orders   int
}

// Depth aggregates remaining quantity per price level, best level first, up
// to levels entries per side. levels <= 0 means no limit.
func Depth(book Book, levels int) (asks, bids []Level) {
	return aggregate(book.Asks, levels), aggregate(book.Bids, levels)
}

func aggregate(side []codec.Order, levels int) []Level {
	var out []Level
	for _, o := range side {
		n := len(out)
		if n > 0 && out[n-1].Price == o.Price {
			out[n-1].Quantity += o.Remaining()
			out[n-1].Orders++
			continue
		}
		if levels > 0 && n == levels {
			break
		}
		out = append(out, Level{Price: o.Price, Quantity: o.Remaining(), Orders: 1})
	}
	return out
}
