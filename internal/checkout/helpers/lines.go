package helpers

import (
	"fmt"

	"github.com/angelmondragon/sweetshop-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/sweetshop-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MaxLines caps how many distinct sweets one order may contain.
const MaxLines = 100

// LineRequest is one requested (sweet, quantity) pair.
type LineRequest struct {
	SweetID  uuid.UUID
	Quantity int
}

// PricedLine is a request resolved against the authoritative catalog row.
type PricedLine struct {
	SweetID   uuid.UUID
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
}

// InsufficientItem names a line whose stock cannot cover the requested quantity.
type InsufficientItem struct {
	SweetID   uuid.UUID `json:"sweet_id"`
	Name      string    `json:"name"`
	Requested int       `json:"requested"`
	Available int       `json:"available"`
}

// MergeLines validates the request and sums quantities of repeated sweets, keeping first-seen order.
func MergeLines(items []LineRequest) ([]LineRequest, error) {
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order must contain at least one item")
	}
	merged := make([]LineRequest, 0, len(items))
	index := make(map[uuid.UUID]int, len(items))
	for i, item := range items {
		if item.SweetID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("items[%d].sweet_id is required", i))
		}
		if item.Quantity < 1 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("items[%d].quantity must be at least 1", i)).
				WithDetails(map[string]any{"sweet_id": item.SweetID, "quantity": item.Quantity})
		}
		if pos, ok := index[item.SweetID]; ok {
			merged[pos].Quantity += item.Quantity
			continue
		}
		index[item.SweetID] = len(merged)
		merged = append(merged, item)
	}
	if len(merged) > MaxLines {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("order cannot contain more than %d distinct items", MaxLines))
	}
	return merged, nil
}

// IDs returns the sweet ids of lines in order.
func IDs(lines []LineRequest) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.SweetID)
	}
	return ids
}

// MissingSweets lists requested ids absent from catalog.
func MissingSweets(lines []LineRequest, catalog map[uuid.UUID]models.Sweet) []uuid.UUID {
	var missing []uuid.UUID
	for _, line := range lines {
		if _, ok := catalog[line.SweetID]; !ok {
			missing = append(missing, line.SweetID)
		}
	}
	return missing
}

// Shortfalls lists every line whose requested quantity exceeds current stock.
func Shortfalls(lines []LineRequest, catalog map[uuid.UUID]models.Sweet) []InsufficientItem {
	var short []InsufficientItem
	for _, line := range lines {
		sweet, ok := catalog[line.SweetID]
		if !ok {
			continue
		}
		if sweet.Quantity < line.Quantity {
			short = append(short, InsufficientItem{
				SweetID:   sweet.ID,
				Name:      sweet.Name,
				Requested: line.Quantity,
				Available: sweet.Quantity,
			})
		}
	}
	return short
}

// PriceLines resolves lines against catalog prices and returns them with the order total.
func PriceLines(lines []LineRequest, catalog map[uuid.UUID]models.Sweet) ([]PricedLine, decimal.Decimal) {
	priced := make([]PricedLine, 0, len(lines))
	total := decimal.Zero
	for _, line := range lines {
		sweet := catalog[line.SweetID]
		lineTotal := sweet.Price.Mul(decimal.NewFromInt(int64(line.Quantity))).Round(2)
		priced = append(priced, PricedLine{
			SweetID:   sweet.ID,
			Name:      sweet.Name,
			Quantity:  line.Quantity,
			UnitPrice: sweet.Price,
			LineTotal: lineTotal,
		})
		total = total.Add(lineTotal)
	}
	return priced, total.Round(2)
}

// IndexSweets keys catalog rows by id.
func IndexSweets(rows []models.Sweet) map[uuid.UUID]models.Sweet {
	out := make(map[uuid.UUID]models.Sweet, len(rows))
	for _, row := range rows {
		out[row.ID] = row
	}
	return out
}
