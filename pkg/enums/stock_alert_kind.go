package enums

// StockAlertKind maps to the stock_alert_kind_enum enum in Postgres.
type StockAlertKind string

const (
	StockAlertLowStock   StockAlertKind = "low_stock"
	StockAlertOutOfStock StockAlertKind = "out_of_stock"
)

var stockAlertKinds = set[StockAlertKind]{
	kind:   "stock alert kind",
	values: []StockAlertKind{StockAlertLowStock, StockAlertOutOfStock},
	fold:   true,
}

func (k StockAlertKind) String() string { return string(k) }
func (k StockAlertKind) IsValid() bool  { return stockAlertKinds.has(k) }

func ParseStockAlertKind(value string) (StockAlertKind, error) {
	return stockAlertKinds.parse(value)
}
