package balances

import (
	"math"
	"testing"

	"trade-desk-gateway/internal/domain"
)

const floatTolerance = 1e-12

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) <= floatTolerance
}

func testMarkets() MapLookup {
	return MapLookup{
		0: {
			Address:       "mktSOLUSDC",
			BaseMint:      "SOL",
			QuoteMint:     "USDC",
			BaseDecimals:  9,
			QuoteDecimals: 6,
		},
		1: {
			Address:       "mktBTCUSDC",
			BaseMint:      "BTC",
			QuoteMint:     "USDC",
			BaseDecimals:  8,
			QuoteDecimals: 6,
		},
	}
}

func TestAggregate_SingleMarket(t *testing.T) {
	in := Input{
		Memberships: []domain.MarketMembership{{MarketIndex: 0}},
		Markets:     testMarkets(),
		OpenOrders: []domain.OpenOrdersAccount{{
			Market:                 "mktSOLUSDC",
			BaseTokenFree:          30,
			BaseTokenTotal:         100,
			QuoteTokenFree:         2_000_000,
			QuoteTokenTotal:        5_000_000,
			ReferrerRebatesAccrued: 500,
		}},
	}

	balances, missing := Aggregate(in)
	if missing != 0 {
		t.Fatalf("expected 0 missing markets, got %d", missing)
	}

	sol := balances["SOL"]
	// Locked base: (100 - 30) raw at 9 decimals.
	if !almostEqual(sol.InOrders, 0.00000007) {
		t.Errorf("SOL inOrders: expected 0.00000007, got %v", sol.InOrders)
	}
	if !almostEqual(sol.Unsettled, 0.00000003) {
		t.Errorf("SOL unsettled: expected 0.00000003, got %v", sol.Unsettled)
	}

	usdc := balances["USDC"]
	if !almostEqual(usdc.InOrders, 3.0) {
		t.Errorf("USDC inOrders: expected 3.0, got %v", usdc.InOrders)
	}
	// Unsettled quote includes accrued rebates: 2_000_500 raw at 6 decimals.
	if !almostEqual(usdc.Unsettled, 2.0005) {
		t.Errorf("USDC unsettled: expected 2.0005, got %v", usdc.Unsettled)
	}
}

func TestAggregate_SixDecimalScaling(t *testing.T) {
	markets := MapLookup{
		0: {
			Address:       "mktBONKUSDC",
			BaseMint:      "BONK",
			QuoteMint:     "USDC",
			BaseDecimals:  6,
			QuoteDecimals: 6,
		},
	}

	in := Input{
		Memberships: []domain.MarketMembership{{MarketIndex: 0}},
		Markets:     markets,
		OpenOrders: []domain.OpenOrdersAccount{{
			Market:         "mktBONKUSDC",
			BaseTokenFree:  30,
			BaseTokenTotal: 100,
		}},
	}

	balances, _ := Aggregate(in)

	bonk := balances["BONK"]
	if !almostEqual(bonk.InOrders, 0.00007) {
		t.Errorf("BONK inOrders: expected 0.00007, got %v", bonk.InOrders)
	}
	if !almostEqual(bonk.Unsettled, 0.00003) {
		t.Errorf("BONK unsettled: expected 0.00003, got %v", bonk.Unsettled)
	}
}

func TestAggregate_SharedQuoteAccumulates(t *testing.T) {
	in := Input{
		Memberships: []domain.MarketMembership{{MarketIndex: 0}, {MarketIndex: 1}},
		Markets:     testMarkets(),
		OpenOrders: []domain.OpenOrdersAccount{
			{Market: "mktSOLUSDC", QuoteTokenFree: 1_000_000, QuoteTokenTotal: 1_000_000},
			{Market: "mktBTCUSDC", QuoteTokenFree: 250_000, QuoteTokenTotal: 750_000},
		},
	}

	balances, missing := Aggregate(in)
	if missing != 0 {
		t.Fatalf("expected 0 missing markets, got %d", missing)
	}

	usdc := balances["USDC"]
	if !almostEqual(usdc.Unsettled, 1.25) {
		t.Errorf("USDC unsettled: expected 1.25, got %v", usdc.Unsettled)
	}
	if !almostEqual(usdc.InOrders, 0.5) {
		t.Errorf("USDC inOrders: expected 0.5, got %v", usdc.InOrders)
	}
}

func TestAggregate_OrderIndependent(t *testing.T) {
	markets := testMarkets()
	openOrders := []domain.OpenOrdersAccount{
		{Market: "mktSOLUSDC", BaseTokenFree: 5, BaseTokenTotal: 9, QuoteTokenFree: 100, QuoteTokenTotal: 300, ReferrerRebatesAccrued: 7},
		{Market: "mktBTCUSDC", BaseTokenFree: 11, BaseTokenTotal: 20, QuoteTokenFree: 40, QuoteTokenTotal: 90},
	}

	forward, _ := Aggregate(Input{
		Memberships: []domain.MarketMembership{{MarketIndex: 0}, {MarketIndex: 1}},
		Markets:     markets,
		OpenOrders:  openOrders,
	})
	reversed, _ := Aggregate(Input{
		Memberships: []domain.MarketMembership{{MarketIndex: 1}, {MarketIndex: 0}},
		Markets:     markets,
		OpenOrders:  []domain.OpenOrdersAccount{openOrders[1], openOrders[0]},
	})

	if len(forward) != len(reversed) {
		t.Fatalf("result sizes differ: %d vs %d", len(forward), len(reversed))
	}
	for mint, want := range forward {
		got := reversed[mint]
		if !almostEqual(got.InOrders, want.InOrders) || !almostEqual(got.Unsettled, want.Unsettled) {
			t.Errorf("%s: %+v vs %+v", mint, want, got)
		}
	}
}

func TestAggregate_NoOpenOrdersRecordYieldsZeroEntry(t *testing.T) {
	in := Input{
		Memberships: []domain.MarketMembership{{MarketIndex: 0}},
		Markets:     testMarkets(),
		OpenOrders:  nil,
	}

	balances, missing := Aggregate(in)
	if missing != 0 {
		t.Fatalf("expected 0 missing markets, got %d", missing)
	}

	sol, ok := balances["SOL"]
	if !ok {
		t.Fatal("expected SOL entry for active membership")
	}
	if sol.InOrders != 0 || sol.Unsettled != 0 {
		t.Errorf("expected zero balances, got %+v", sol)
	}
	usdc, ok := balances["USDC"]
	if !ok {
		t.Fatal("expected USDC entry for active membership")
	}
	if usdc.InOrders != 0 || usdc.Unsettled != 0 {
		t.Errorf("expected zero balances, got %+v", usdc)
	}
}

func TestAggregate_MissingMarketSkipped(t *testing.T) {
	in := Input{
		Memberships: []domain.MarketMembership{{MarketIndex: 0}, {MarketIndex: 42}},
		Markets:     testMarkets(),
		OpenOrders: []domain.OpenOrdersAccount{
			{Market: "mktSOLUSDC", QuoteTokenFree: 1_000_000, QuoteTokenTotal: 1_000_000},
		},
	}

	balances, missing := Aggregate(in)
	if missing != 1 {
		t.Fatalf("expected 1 missing market, got %d", missing)
	}

	// The resolvable membership still aggregates.
	if !almostEqual(balances["USDC"].Unsettled, 1.0) {
		t.Errorf("USDC unsettled: expected 1.0, got %v", balances["USDC"].Unsettled)
	}
}

func TestTracker_SwapsWholeSnapshot(t *testing.T) {
	tracker := NewTracker()

	if got := tracker.Current(); len(got) != 0 {
		t.Fatalf("expected empty initial snapshot, got %v", got)
	}

	missing := tracker.Recompute(Input{
		Memberships: []domain.MarketMembership{{MarketIndex: 0}},
		Markets:     testMarkets(),
		OpenOrders: []domain.OpenOrdersAccount{
			{Market: "mktSOLUSDC", QuoteTokenFree: 500_000, QuoteTokenTotal: 500_000},
		},
	})
	if missing != 0 {
		t.Fatalf("expected 0 missing markets, got %d", missing)
	}

	first := tracker.Current()
	if !almostEqual(first["USDC"].Unsettled, 0.5) {
		t.Errorf("USDC unsettled: expected 0.5, got %v", first["USDC"].Unsettled)
	}

	// Recomputing with no memberships replaces, not merges.
	tracker.Recompute(Input{Markets: testMarkets()})
	if got := tracker.Current(); len(got) != 0 {
		t.Errorf("expected empty snapshot after recompute, got %v", got)
	}

	// The earlier snapshot is unaffected by the swap.
	if !almostEqual(first["USDC"].Unsettled, 0.5) {
		t.Errorf("previous snapshot mutated: %v", first["USDC"])
	}
}
