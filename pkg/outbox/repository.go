package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-inventory/pkg/db/models"
)

const maxLastErrorLen = 1024

type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// InsertBatch writes rows with the caller's transaction.
func (r *Repository) InsertBatch(tx *gorm.DB, rows []models.OutboxEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if len(rows) == 0 {
		return nil
	}
	return tx.Create(&rows).Error
}

// FetchUnpublishedForPublish claims up to limit unpublished rows that still
// have attempts left. Rows are locked with SKIP LOCKED so parallel publishers
// never pick the same event.
func (r *Repository) FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	query := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("published_at IS NULL")
	if maxAttempts > 0 {
		query = query.Where("attempt_count < ?", maxAttempts)
	}
	var rows []models.OutboxEvent
	err := query.
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *Repository) MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"published_at": r.now().UTC(),
		}).Error
}

func (r *Repository) MarkFailedTx(tx *gorm.DB, id uuid.UUID, cause error) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_error":    lastError(cause),
			"attempt_count": gorm.Expr("attempt_count + 1"),
		}).Error
}

// MarkTerminalTx parks a row that went to the DLQ: attempt_count is raised to
// terminalAttempts so FetchUnpublishedForPublish never returns it again.
func (r *Repository) MarkTerminalTx(tx *gorm.DB, id uuid.UUID, cause error, terminalAttempts int) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_error":    lastError(cause),
			"attempt_count": terminalAttempts,
		}).Error
}

// PrunePublished deletes up to limit rows delivered before cutoff, oldest first.
func (r *Repository) PrunePublished(ctx context.Context, tx *gorm.DB, cutoff time.Time, limit int) (int64, error) {
	return r.prune(ctx, tx, limit, "published_at IS NOT NULL AND published_at < ?", cutoff.UTC())
}

// PruneParked deletes up to limit undelivered rows that reached maxAttempts and
// were created before cutoff. The relay no longer fetches them, and their
// payload is kept in the DLQ.
func (r *Repository) PruneParked(ctx context.Context, tx *gorm.DB, cutoff time.Time, maxAttempts, limit int) (int64, error) {
	if maxAttempts <= 0 {
		return 0, nil
	}
	return r.prune(ctx, tx, limit, "published_at IS NULL AND attempt_count >= ? AND created_at < ?", maxAttempts, cutoff.UTC())
}

func (r *Repository) prune(ctx context.Context, tx *gorm.DB, limit int, cond string, args ...any) (int64, error) {
	conn := tx
	if conn == nil {
		conn = r.db
	}
	if limit <= 0 {
		return 0, errors.New("prune limit must be positive")
	}
	ids := conn.WithContext(ctx).Model(&models.OutboxEvent{}).
		Select("id").
		Where(cond, args...).
		Order("created_at ASC").
		Limit(limit)
	res := conn.WithContext(ctx).Where("id IN (?)", ids).Delete(&models.OutboxEvent{})
	return res.RowsAffected, res.Error
}

func lastError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > maxLastErrorLen {
		return msg[:maxLastErrorLen]
	}
	return msg
}
