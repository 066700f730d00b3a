package domain

// OpenOrdersAccount is the on-chain record tracking locked and free balances
// for one spot market while orders are outstanding. All amounts are raw
// fixed-point integers in the asset's native units.
type OpenOrdersAccount struct {
	Market                 string `json:"market"`                 // market address this account belongs to
	BaseTokenFree          uint64 `json:"baseTokenFree"`          // settleable base amount
	BaseTokenTotal         uint64 `json:"baseTokenTotal"`         // free + locked base amount
	QuoteTokenFree         uint64 `json:"quoteTokenFree"`         // settleable quote amount
	QuoteTokenTotal        uint64 `json:"quoteTokenTotal"`        // free + locked quote amount
	ReferrerRebatesAccrued uint64 `json:"referrerRebatesAccrued"` // rebates owed, settled together with quote
}

// MarketDescriptor resolves a market to its asset pair.
type MarketDescriptor struct {
	Address       string `json:"address"`   // market address
	BaseMint      string `json:"baseMint"`  // base asset mint address
	QuoteMint     string `json:"quoteMint"` // quote asset mint address
	BaseDecimals  uint8  `json:"baseDecimals"`
	QuoteDecimals uint8  `json:"quoteDecimals"`
}

// MarketMembership is one active spot-market position of an account.
type MarketMembership struct {
	MarketIndex int `json:"marketIndex"`
}

// AssetBalance is the UI-scaled derived balance for one asset.
type AssetBalance struct {
	InOrders  float64 `json:"inOrders"`  // locked in resting orders
	Unsettled float64 `json:"unsettled"` // settleable trade proceeds
}

// SpotBalances maps asset mint address to its derived balance. The whole map
// is recomputed from a consistent snapshot; it is never patched in place.
type SpotBalances map[string]AssetBalance
