package inventory

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	dbpkg "github.com/angelmondragon/storefront-inventory/pkg/db"
	pkgerrors "github.com/angelmondragon/storefront-inventory/pkg/errors"
)

// ShortfallDetail is attached to INSUFFICIENT_STOCK errors so callers can offer
// a reduced quantity.
type ShortfallDetail struct {
	ProductID uuid.UUID `json:"product_id"`
	Requested int       `json:"requested"`
	Available int       `json:"available"`
}

func insufficientStock(details ...ShortfallDetail) error {
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").WithDetails(details)
}

func invariantViolation(productID uuid.UUID, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return pkgerrors.New(pkgerrors.CodeInvariantViolation, fmt.Sprintf("product %s: %s", productID, msg))
}

func productNotFound(productID uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("product %s not found", productID))
}

func validationError(format string, args ...any) error {
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf(format, args...))
}

func lockConflict(err error) error {
	return pkgerrors.Wrap(pkgerrors.CodeLockConflict, err, "inventory row is locked by another operation")
}

// isLockConflict matches both driver-level contention and the version guard
// on inventory_records.
func isLockConflict(err error) bool {
	return dbpkg.IsLockConflict(err) || pkgerrors.IsCode(err, pkgerrors.CodeLockConflict)
}

// internalError wraps unexpected storage failures that are not already typed.
func internalError(err error, message string) error {
	if err == nil {
		return nil
	}
	if pkgerrors.As(err) != nil || dbpkg.IsLockConflict(err) {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, message)
}

var errLostHold = errors.New("order hold changed while locked")
