package models

// All lists every persisted model in dependency order. Used by sqlite-backed
// tests and local tooling; Postgres schemas come from the goose migrations.
func All() []any {
	return []any{
		&User{},
		&Sweet{},
		&Order{},
		&OrderItem{},
		&StockLedgerEvent{},
		&OutboxEvent{},
		&OutboxDLQ{},
		&StockAlert{},
	}
}
