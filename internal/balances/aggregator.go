// Package balances reduces on-chain open-orders account state into the
// per-asset derived balances the dashboard displays.
package balances

import (
	"sync/atomic"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"trade-desk-gateway/internal/domain"
)

// MarketLookup resolves an active market membership to its descriptor.
type MarketLookup interface {
	MarketByIndex(index int) (*domain.MarketDescriptor, bool)
}

// MapLookup is a MarketLookup over a plain map keyed by market index.
type MapLookup map[int]domain.MarketDescriptor

// MarketByIndex implements MarketLookup.
func (m MapLookup) MarketByIndex(index int) (*domain.MarketDescriptor, bool) {
	desc, ok := m[index]
	if !ok {
		return nil, false
	}
	return &desc, true
}

// Input is a consistent snapshot of the account state the aggregation reads.
// OpenOrders may omit markets the account never placed an order on.
type Input struct {
	Memberships []domain.MarketMembership
	Markets     MarketLookup
	OpenOrders  []domain.OpenOrdersAccount
}

// Aggregate reduces the snapshot into per-mint {inOrders, unsettled} totals.
// Amounts stay in raw fixed-point integers until the single scale by
// 10^decimals, so repeated float rounding cannot lose precision. Entries are
// created lazily; accumulation is commutative per asset, so membership order
// does not matter.
//
// A membership whose market cannot be resolved indicates a stale market list
// relative to the account state. It is logged and counted, then skipped; the
// rest of the aggregation still completes.
func Aggregate(in Input) (domain.SpotBalances, int) {
	balances := make(domain.SpotBalances)

	byMarket := make(map[string]*domain.OpenOrdersAccount, len(in.OpenOrders))
	for i := range in.OpenOrders {
		byMarket[in.OpenOrders[i].Market] = &in.OpenOrders[i]
	}

	missing := 0
	for _, membership := range in.Memberships {
		market, ok := in.Markets.MarketByIndex(membership.MarketIndex)
		if !ok {
			missing++
			logrus.WithFields(logrus.Fields{
				"component":   "balances",
				"marketIndex": membership.MarketIndex,
			}).Warn("active membership references unknown market")
			continue
		}

		var baseUnsettled, quoteUnsettled float64
		var baseLocked, quoteLocked float64

		if oo := byMarket[market.Address]; oo != nil {
			baseUnsettled = toUIDecimals(oo.BaseTokenFree, market.BaseDecimals)
			// Rebates settle together with the quote side; sum raw
			// integers before scaling.
			quoteUnsettled = toUIDecimals(oo.QuoteTokenFree+oo.ReferrerRebatesAccrued, market.QuoteDecimals)
			baseLocked = toUIDecimals(oo.BaseTokenTotal-oo.BaseTokenFree, market.BaseDecimals)
			quoteLocked = toUIDecimals(oo.QuoteTokenTotal-oo.QuoteTokenFree, market.QuoteDecimals)
		}

		quote := balances[market.QuoteMint]
		quote.InOrders += quoteLocked
		quote.Unsettled += quoteUnsettled
		balances[market.QuoteMint] = quote

		base := balances[market.BaseMint]
		base.InOrders += baseLocked
		base.Unsettled += baseUnsettled
		balances[market.BaseMint] = base
	}

	return balances, missing
}

// toUIDecimals converts a raw fixed-point amount to a UI-scaled float.
func toUIDecimals(raw uint64, decimals uint8) float64 {
	return decimal.NewFromUint64(raw).Shift(-int32(decimals)).InexactFloat64()
}

// Tracker holds the current derived-balance snapshot. Recompute swaps the
// whole mapping in one atomic store, so readers never observe a mix of old
// and new per-asset entries.
type Tracker struct {
	current atomic.Pointer[domain.SpotBalances]
}

// NewTracker creates a tracker with an empty snapshot.
func NewTracker() *Tracker {
	t := &Tracker{}
	empty := make(domain.SpotBalances)
	t.current.Store(&empty)
	return t
}

// Recompute aggregates the input and installs the result as the current
// snapshot. Returns the count of unresolvable market memberships.
func (t *Tracker) Recompute(in Input) int {
	balances, missing := Aggregate(in)
	t.current.Store(&balances)
	return missing
}

// Current returns the current snapshot. Callers must not mutate it.
func (t *Tracker) Current() domain.SpotBalances {
	return *t.current.Load()
}
