package engine

import (
	"sort"
	"time"

	"quantlab/types"

	"github.com/shopspring/decimal"
)

// RoundTrip is a closed trade: shares bought and later sold in the same
// symbol. Buy lots are consumed first in, first out, so one SELL can close
// several lots and one lot can be split across several SELLs. Each SELL
// produces exactly one round trip.
type RoundTrip struct {
	Symbol     string
	Quantity   int64
	EntryTime  time.Time
	ExitTime   time.Time
	EntryPrice decimal.Decimal
	ExitPrice  decimal.Decimal
	GrossPnL   decimal.Decimal
	Fees       decimal.Decimal
	NetPnL     decimal.Decimal
}

type lot struct {
	qty         int64
	price       decimal.Decimal
	feePerShare decimal.Decimal
	time        time.Time
}

// PairRoundTrips pairs the trade history into closed round trips ordered by
// exit time. Open lots at the end of the history are not reported.
func PairRoundTrips(trades []types.Trade) []RoundTrip {
	ordered := append([]types.Trade(nil), trades...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Timestamp.Before(ordered[j].Timestamp) })

	open := make(map[string][]lot)
	var trips []RoundTrip
	for _, tr := range ordered {
		if tr.Quantity <= 0 {
			continue
		}
		switch tr.Side {
		case types.SideTypeBuy:
			open[tr.Symbol] = append(open[tr.Symbol], lot{
				qty:         tr.Quantity,
				price:       tr.Price,
				feePerShare: tr.Fees().Div(decimal.NewFromInt(tr.Quantity)),
				time:        tr.Timestamp,
			})
		case types.SideTypeSell:
			if trip, ok := closeLots(open, tr); ok {
				trips = append(trips, trip)
			}
		}
	}
	return trips
}

func closeLots(open map[string][]lot, sell types.Trade) (RoundTrip, bool) {
	lots := open[sell.Symbol]
	remaining := sell.Quantity
	matched := int64(0)
	cost := decimal.Zero
	fees := sell.Fees()
	var entry time.Time

	for remaining > 0 && len(lots) > 0 {
		l := &lots[0]
		take := min(l.qty, remaining)
		q := decimal.NewFromInt(take)
		if matched == 0 {
			entry = l.time
		}
		cost = cost.Add(l.price.Mul(q))
		fees = fees.Add(l.feePerShare.Mul(q))
		matched += take
		remaining -= take
		l.qty -= take
		if l.qty == 0 {
			lots = lots[1:]
		}
	}
	open[sell.Symbol] = lots
	if matched == 0 {
		return RoundTrip{}, false
	}

	q := decimal.NewFromInt(matched)
	gross := sell.Price.Mul(q).Sub(cost)
	return RoundTrip{
		Symbol:     sell.Symbol,
		Quantity:   matched,
		EntryTime:  entry,
		ExitTime:   sell.Timestamp,
		EntryPrice: cost.Div(q),
		ExitPrice:  sell.Price,
		GrossPnL:   gross,
		Fees:       fees,
		NetPnL:     gross.Sub(fees),
	}, true
}
