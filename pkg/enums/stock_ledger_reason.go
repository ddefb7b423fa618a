package enums

// StockLedgerReason maps to the stock_ledger_reason_enum enum in Postgres.
type StockLedgerReason string

const (
	StockLedgerReasonInitial  StockLedgerReason = "initial"
	StockLedgerReasonRestock  StockLedgerReason = "restock"
	StockLedgerReasonPurchase StockLedgerReason = "purchase"
	StockLedgerReasonCheckout StockLedgerReason = "checkout"
)

var ledgerReasons = set[StockLedgerReason]{
	kind: "stock ledger reason",
	values: []StockLedgerReason{
		StockLedgerReasonInitial,
		StockLedgerReasonRestock,
		StockLedgerReasonPurchase,
		StockLedgerReasonCheckout,
	},
}

func (r StockLedgerReason) IsValid() bool { return ledgerReasons.has(r) }

// IsDecrement reports whether the reason always removes stock.
func (r StockLedgerReason) IsDecrement() bool {
	return r == StockLedgerReasonPurchase || r == StockLedgerReasonCheckout
}

func ParseStockLedgerReason(value string) (StockLedgerReason, error) {
	return ledgerReasons.parse(value)
}
