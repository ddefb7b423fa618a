package outbox

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/sweetshop-backend/pkg/db/models"
	"github.com/angelmondragon/sweetshop-backend/pkg/pagination"
)

const maxDLQErrorLen = 1024

var errTxRequired = errors.New("transaction required")

// DLQRepository stores outbox rows the publisher gave up on.
type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errTxRequired
	}
	if entry.ErrorMessage != nil {
		msg := truncate(*entry.ErrorMessage, maxDLQErrorLen)
		entry.ErrorMessage = &msg
	}
	return tx.Create(&entry).Error
}

// FindByEventID returns nil without error when the event was never dead-lettered.
func (r *DLQRepository) FindByEventID(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	var entry models.OutboxDLQ
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).First(&entry).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	case err != nil:
		return nil, err
	}
	return &entry, nil
}

// List returns a keyset page of entries, newest first, with one extra row when more follow.
func (r *DLQRepository) List(ctx context.Context, cursor *pagination.Cursor, limit int) ([]models.OutboxDLQ, error) {
	var rows []models.OutboxDLQ
	err := r.db.WithContext(ctx).
		Scopes(pagination.Keyset(cursor, limit)).
		Find(&rows).Error
	return rows, err
}

// DeleteTx removes the entry for eventID and reports whether one existed.
func (r *DLQRepository) DeleteTx(tx *gorm.DB, eventID uuid.UUID) (bool, error) {
	if tx == nil {
		return false, errTxRequired
	}
	res := tx.Where("event_id = ?", eventID).Delete(&models.OutboxDLQ{})
	return res.RowsAffected > 0, res.Error
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
