package inventory

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-inventory/api/middleware"
	"github.com/angelmondragon/storefront-inventory/api/responses"
	"github.com/angelmondragon/storefront-inventory/api/validators"
	inventorysvc "github.com/angelmondragon/storefront-inventory/internal/inventory"
	"github.com/angelmondragon/storefront-inventory/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-inventory/pkg/errors"
	"github.com/angelmondragon/storefront-inventory/pkg/logger"
	"github.com/angelmondragon/storefront-inventory/pkg/pagination"
)

const maxReasonLength = 500

// Service is the slice of the allocation engine the HTTP layer calls.
type Service interface {
	GetInventory(ctx context.Context, productID uuid.UUID) (inventorysvc.RecordView, error)
	GetBatch(ctx context.Context, productIDs []uuid.UUID) (inventorysvc.BatchResult, error)
	ReserveForCart(ctx context.Context, in inventorysvc.ReserveCartInput) (inventorysvc.ReservationResult, error)
	ReserveForOrder(ctx context.Context, in inventorysvc.ReserveOrderInput) (inventorysvc.ReservationResult, error)
	ReleaseCartReservation(ctx context.Context, holderID string, productIDs []uuid.UUID) (inventorysvc.ReleaseResult, error)
	ReleaseOrderReservation(ctx context.Context, orderID uuid.UUID) (inventorysvc.ReleaseResult, error)
	DeductInventory(ctx context.Context, in inventorysvc.DeductInput) (inventorysvc.DeductResult, error)
	AdjustInventory(ctx context.Context, in inventorysvc.AdjustInput) (inventorysvc.RecordView, error)
	ReceiveStock(ctx context.Context, in inventorysvc.ReceiveInput) (inventorysvc.RecordView, error)
	UpdateWarningThreshold(ctx context.Context, productID uuid.UUID, threshold int) (inventorysvc.RecordView, error)
	GetLowStockProducts(ctx context.Context, page, size int) (inventorysvc.LowStockPage, error)
	ListTransactions(ctx context.Context, productID uuid.UUID, filter inventorysvc.TransactionFilter) (inventorysvc.TransactionPage, error)
	CleanupExpiredReservations(ctx context.Context) (inventorysvc.SweepResult, error)
	Reconcile(ctx context.Context, productID uuid.UUID) (inventorysvc.ReconcileReport, error)
	ListCartReservations(ctx context.Context, holderID string) ([]inventorysvc.HoldView, error)
}

type batchRequest struct {
	ProductIDs []uuid.UUID `json:"product_ids"`
}

type reserveCartRequest struct {
	HolderID       string              `json:"holder_id" validate:"required,max=128"`
	Items          []inventorysvc.Item `json:"items" validate:"required,min=1,dive"`
	ExpiresMinutes *int                `json:"expires_minutes,omitempty" validate:"omitempty,gte=1"`
}

type reserveOrderRequest struct {
	OrderID        uuid.UUID           `json:"order_id" validate:"required"`
	Items          []inventorysvc.Item `json:"items" validate:"required,min=1,dive"`
	ExpiresMinutes *int                `json:"expires_minutes,omitempty" validate:"omitempty,gte=1"`
}

type deductRequest struct {
	OrderID uuid.UUID           `json:"order_id" validate:"required"`
	Items   []inventorysvc.Item `json:"items" validate:"required,min=1,dive"`
}

type adjustRequest struct {
	Type     string `json:"type" validate:"required,oneof=ADD SUBTRACT SET"`
	Quantity int    `json:"quantity" validate:"gte=0"`
	Reason   string `json:"reason" validate:"required,max=500"`
}

type receiveRequest struct {
	Quantity    int    `json:"quantity" validate:"required,gt=0"`
	ReferenceID string `json:"reference_id" validate:"max=128"`
	Reason      string `json:"reason" validate:"max=500"`
}

type thresholdRequest struct {
	WarningThreshold *int `json:"warning_threshold" validate:"required,gte=0"`
}

// Get returns one product's record, seeding it on first access.
func Get(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := productParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.GetInventory(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func Batch(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload batchRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if len(payload.ProductIDs) == 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnprocessable, "product_ids must not be empty"))
			return
		}
		result, err := svc.GetBatch(r.Context(), payload.ProductIDs)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func ReserveCart(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload reserveCartRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.ReserveForCart(r.Context(), inventorysvc.ReserveCartInput{
			HolderID: payload.HolderID,
			Items:    payload.Items,
			TTL:      minutes(payload.ExpiresMinutes),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

func ReserveOrder(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload reserveOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.ReserveForOrder(r.Context(), inventorysvc.ReserveOrderInput{
			OrderID: payload.OrderID,
			Items:   payload.Items,
			TTL:     minutes(payload.ExpiresMinutes),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// ReleaseCart releases the holder's holds. Releasing nothing is still a
// success so clients can retry freely.
func ReleaseCart(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		holder := strings.TrimSpace(r.URL.Query().Get("holder_id"))
		if holder == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "holder_id is required"))
			return
		}
		productIDs, err := validators.ParseQueryUUIDs(r, "product_ids")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.ReleaseCartReservation(r.Context(), holder, productIDs)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func ReleaseOrder(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseUUID(chi.URLParam(r, "order_id"), "order_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.ReleaseOrderReservation(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !result.Found {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "order has no reservations"))
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func Deduct(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload deductRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.DeductInventory(r.Context(), inventorysvc.DeductInput{
			OrderID: payload.OrderID,
			Items:   payload.Items,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func Adjust(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := productParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		operatorID, err := operatorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload adjustRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		adjustment, err := enums.ParseAdjustmentType(payload.Type)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid adjustment type"))
			return
		}
		view, err := svc.AdjustInventory(r.Context(), inventorysvc.AdjustInput{
			ProductID:  productID,
			Type:       adjustment,
			Quantity:   payload.Quantity,
			Reason:     validators.SanitizeString(payload.Reason, maxReasonLength),
			OperatorID: operatorID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func Receive(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := productParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		operatorID, err := operatorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload receiveRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.ReceiveStock(r.Context(), inventorysvc.ReceiveInput{
			ProductID:   productID,
			Quantity:    payload.Quantity,
			ReferenceID: validators.SanitizeString(payload.ReferenceID, 128),
			Reason:      validators.SanitizeString(payload.Reason, maxReasonLength),
			OperatorID:  &operatorID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func Threshold(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := productParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload thresholdRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.UpdateWarningThreshold(r.Context(), productID, *payload.WarningThreshold)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func LowStock(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := validators.ParseQueryInt(r, "page", pagination.DefaultPage, 1, 100000)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		size, err := validators.ParseQueryInt(r, "size", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.GetLowStockProducts(r.Context(), page, size)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// Transactions pages through a product's audit history, newest first unless
// order=asc.
func Transactions(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := productParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter, err := transactionFilter(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.ListTransactions(r.Context(), productID, filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// Cleanup runs one sweep. Holds that fail to expire are counted in the body
// rather than failing the whole request; only a sweep that could not run at
// all is an error.
func Cleanup(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := svc.CleanupExpiredReservations(r.Context())
		if err != nil && result.Failed == 0 {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err != nil {
			logg.Warn(logg.WithFields(r.Context(), map[string]any{
				"expired": result.Expired,
				"failed":  result.Failed,
				"error":   err.Error(),
			}), "expired reservation sweep partially failed")
		}
		responses.WriteSuccess(w, result)
	}
}

func Reconcile(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := productParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		report, err := svc.Reconcile(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

func CartReservations(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		holder := strings.TrimSpace(r.URL.Query().Get("holder_id"))
		if holder == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "holder_id is required"))
			return
		}
		holds, err := svc.ListCartReservations(r.Context(), holder)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"holder_id": holder, "holds": holds})
	}
}

func productParam(r *http.Request) (uuid.UUID, error) {
	return validators.ParseUUID(chi.URLParam(r, "product_id"), "product_id")
}

func operatorFromContext(ctx context.Context) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(ctx)
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return id, nil
}

func transactionFilter(r *http.Request) (inventorysvc.TransactionFilter, error) {
	var filter inventorysvc.TransactionFilter
	from, err := validators.ParseQueryTime(r, "from")
	if err != nil {
		return filter, err
	}
	to, err := validators.ParseQueryTime(r, "to")
	if err != nil {
		return filter, err
	}
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return filter, err
	}
	filter.From = from
	filter.To = to
	filter.Limit = limit
	filter.Cursor = strings.TrimSpace(r.URL.Query().Get("cursor"))

	if raw := strings.TrimSpace(r.URL.Query().Get("type")); raw != "" {
		txType, err := enums.ParseInventoryTransactionType(strings.ToUpper(raw))
		if err != nil {
			return filter, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid transaction type").WithDetails(map[string]any{"field": "type"})
		}
		filter.Type = &txType
	}
	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get("order"))) {
	case "", "desc":
	case "asc":
		filter.Ascending = true
	default:
		return filter, pkgerrors.New(pkgerrors.CodeValidation, "order must be asc or desc").WithDetails(map[string]any{"field": "order"})
	}
	return filter, nil
}

func minutes(value *int) time.Duration {
	if value == nil {
		return 0
	}
	return time.Duration(*value) * time.Minute
}
