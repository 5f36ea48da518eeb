package inventory

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-inventory/pkg/enums"
)

// CleanupExpiredReservations expires every active hold past its expiry. Each
// hold is finished in its own transaction so one failure does not stall the
// rest; holds refreshed after they were listed are left alone. It keeps
// pulling batches until a short or failing batch is seen.
func (s *Service) CleanupExpiredReservations(ctx context.Context) (result SweepResult, err error) {
	ctx, done := s.observe(ctx, "sweep")
	defer func() { done(err) }()

	cutoff := s.now().UTC()
	var errs error
	for {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		batch, err := s.registry.FindExpired(ctx, cutoff, s.sweep)
		if err != nil {
			return result, internalError(err, "find expired reservations")
		}
		failed := 0
		for _, hold := range batch {
			expired := false
			txErr := s.inTx(ctx, func(u *unitOfWork) error {
				rec, err := u.lock(hold.ProductID)
				if err != nil {
					return err
				}
				_, finished, err := u.finishHold(rec, hold.ID, enums.ReservationStatusExpired, "reservation expired", &cutoff)
				expired = finished != nil
				return err
			})
			if txErr != nil {
				failed++
				errs = multierr.Append(errs, fmt.Errorf("expire reservation %s: %w", hold.ID, txErr))
				s.logg.Error(s.logg.WithFields(ctx, map[string]any{
					"reservation_id": hold.ID.String(),
					"product_id":     hold.ProductID.String(),
				}), "failed to expire reservation", txErr)
				continue
			}
			if expired {
				result.Expired++
			}
		}
		result.Failed += failed
		if len(batch) < s.sweep || failed > 0 {
			break
		}
	}

	s.metrics.AddExpired(result.Expired)
	if result.Expired > 0 || result.Failed > 0 {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"expired": result.Expired,
			"failed":  result.Failed,
		}), "expired reservations swept")
	}
	return result, errs
}
