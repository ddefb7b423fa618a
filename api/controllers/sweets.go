package controllers

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/sweetshop-backend/api/responses"
	"github.com/angelmondragon/sweetshop-backend/api/validators"
	"github.com/angelmondragon/sweetshop-backend/internal/sweets"
	"github.com/angelmondragon/sweetshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/sweetshop-backend/pkg/errors"
	"github.com/angelmondragon/sweetshop-backend/pkg/logger"
)

const (
	maxSearchLength     = 120
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

type createSweetRequest struct {
	Name        string           `json:"name" validate:"required,max=120"`
	Category    string           `json:"category" validate:"required"`
	Price       *decimal.Decimal `json:"price" validate:"required"`
	Quantity    int              `json:"quantity" validate:"min=0,max=2147483647"`
	Description string           `json:"description" validate:"max=2000"`
	Image       string           `json:"image" validate:"omitempty,max=2048"`
	Featured    bool             `json:"featured"`
}

type updateSweetRequest struct {
	Name        *string          `json:"name" validate:"omitempty,max=120"`
	Category    *string          `json:"category"`
	Price       *decimal.Decimal `json:"price"`
	Description *string          `json:"description" validate:"omitempty,max=2000"`
	Image       *string          `json:"image" validate:"omitempty,max=2048"`
	Featured    *bool            `json:"featured"`
}

type restockRequest struct {
	Quantity int `json:"quantity" validate:"required,min=1,max=2147483647"`
}

// SweetsList returns the catalog, optionally filtered.
func SweetsList(svc sweets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("sweets service"))
			return
		}

		filters, err := parseSweetFilters(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.List(r.Context(), filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func parseSweetFilters(r *http.Request) (sweets.ListFilters, error) {
	q := r.URL.Query()
	filters := sweets.ListFilters{
		Query: validators.SanitizeString(q.Get("q"), maxSearchLength),
	}

	if raw := strings.TrimSpace(q.Get("category")); raw != "" {
		category, err := enums.ParseSweetCategory(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid category")
		}
		filters.Category = &category
	}

	var err error
	if filters.MinPrice, err = validators.ParseQueryDecimal(r, "min_price"); err != nil {
		return filters, err
	}
	if filters.MaxPrice, err = validators.ParseQueryDecimal(r, "max_price"); err != nil {
		return filters, err
	}
	if filters.Featured, err = validators.ParseQueryBool(r, "featured"); err != nil {
		return filters, err
	}
	return filters, nil
}

func SweetsGet(svc sweets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("sweets service"))
			return
		}

		id, err := validators.ParseUUIDParam(r, "sweetId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sweet, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, sweet)
	}
}

func SweetsCreate(svc sweets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("sweets service"))
			return
		}

		who, err := callerFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body createSweetRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		category, err := enums.ParseSweetCategory(body.Category)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid category"))
			return
		}

		created, err := svc.Create(r.Context(), sweets.Actor{UserID: who.UserID, Role: who.Role}, sweets.CreateSweetInput{
			Name:        body.Name,
			Category:    category,
			Price:       *body.Price,
			Quantity:    body.Quantity,
			Description: body.Description,
			Image:       body.Image,
			Featured:    body.Featured,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, created)
	}
}

func SweetsUpdate(svc sweets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("sweets service"))
			return
		}

		id, err := validators.ParseUUIDParam(r, "sweetId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body updateSweetRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := sweets.UpdateSweetInput{
			Name:        body.Name,
			Price:       body.Price,
			Description: body.Description,
			Image:       body.Image,
			Featured:    body.Featured,
		}
		if body.Category != nil {
			category, err := enums.ParseSweetCategory(*body.Category)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid category"))
				return
			}
			input.Category = &category
		}

		updated, err := svc.Update(r.Context(), id, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, updated)
	}
}

func SweetsDelete(svc sweets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("sweets service"))
			return
		}

		id, err := validators.ParseUUIDParam(r, "sweetId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Delete(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}

// SweetsPurchase removes exactly one unit. Repeating the call buys another unit.
func SweetsPurchase(svc sweets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("sweets service"))
			return
		}

		who, err := callerFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		id, err := validators.ParseUUIDParam(r, "sweetId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Purchase(r.Context(), sweets.Actor{UserID: who.UserID, Role: who.Role}, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func SweetsRestock(svc sweets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("sweets service"))
			return
		}

		who, err := callerFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		id, err := validators.ParseUUIDParam(r, "sweetId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body restockRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sweet, err := svc.Restock(r.Context(), sweets.Actor{UserID: who.UserID, Role: who.Role}, id, body.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, sweet)
	}
}

func SweetsStats(svc sweets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("sweets service"))
			return
		}

		stats, err := svc.Stats(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, stats)
	}
}

// SweetsHistory lists the stock ledger of one sweet, newest first.
func SweetsHistory(svc sweets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("sweets service"))
			return
		}

		id, err := validators.ParseUUIDParam(r, "sweetId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", defaultHistoryLimit, 1, maxHistoryLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entries, err := svc.History(r.Context(), id, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, entries)
	}
}
