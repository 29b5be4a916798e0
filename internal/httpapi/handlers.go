// Package httpapi exposes the promotional engine over HTTP for POS clients.
package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/promo-engine/internal/billing"
	"github.com/noah-isme/promo-engine/internal/common"
	"github.com/noah-isme/promo-engine/internal/obs"
	"github.com/noah-isme/promo-engine/internal/snapshot"
)

// dateLayout is the date-only format accepted for as_of fields.
const dateLayout = "2006-01-02"

// Handler exposes bill evaluation and snapshot endpoints.
type Handler struct {
	Snapshots *snapshot.Service
	Engine    billing.Engine
	Logger    zerolog.Logger
	Validate  *validator.Validate
}

// NewHandler constructs a Handler with a ready validator.
func NewHandler(snapshots *snapshot.Service, engine billing.Engine, logger zerolog.Logger) *Handler {
	return &Handler{
		Snapshots: snapshots,
		Engine:    engine,
		Logger:    logger,
		Validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

type evaluateLineRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  string `json:"quantity" validate:"required"`
	UOM       string `json:"uom" validate:"required"`
	// UnitPrice overrides the snapshot price when the POS captured a manual
	// price. Empty means price from the catalog.
	UnitPrice string `json:"unit_price,omitempty"`
}

type evaluateRequest struct {
	AsOf  string                `json:"as_of,omitempty"`
	Lines []evaluateLineRequest `json:"lines" validate:"required,min=1,max=500,dive"`
}

// Evaluate handles POST /api/v1/bills/evaluate.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req evaluateRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		h.countEvaluation("bad_request")
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "invalid request body", err.Error())
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		h.countEvaluation("bad_request")
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "invalid request", validationDetails(err))
		return
	}

	asOf, err := parseAsOf(req.AsOf, h.Snapshots)
	if err != nil {
		h.countEvaluation("bad_request")
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "invalid as_of date", err.Error())
		return
	}

	snap, err := h.Snapshots.Current(r.Context())
	if err != nil {
		h.countEvaluation("unavailable")
		h.Logger.Error().Err(err).Msg("load snapshot")
		common.JSONError(w, http.StatusServiceUnavailable, "SNAPSHOT_UNAVAILABLE", "catalog snapshot not loaded", nil)
		return
	}

	lines, lineErr := h.buildLines(req.Lines, snap)
	if lineErr != nil {
		h.countEvaluation("bad_request")
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", lineErr.Error(), nil)
		return
	}

	result := h.Engine.EvaluateBill(lines, snap.Products, snap.View, asOf)
	h.recordResult(result)
	if obs.BillEvaluationDuration != nil {
		obs.BillEvaluationDuration.Observe(obs.DurationMillis(time.Since(start)))
	}

	common.JSON(w, http.StatusOK, map[string]any{"data": result})
}

// buildLines converts request lines into engine lines, resolving the unit
// price from the snapshot when the request omits it.
func (h *Handler) buildLines(reqLines []evaluateLineRequest, snap *snapshot.Snapshot) ([]billing.Line, error) {
	lines := make([]billing.Line, 0, len(reqLines))
	for i, rl := range reqLines {
		productID, err := uuid.Parse(rl.ProductID)
		if err != nil {
			return nil, errors.New("line " + strconv.Itoa(i) + ": invalid product_id")
		}
		qty, err := decimal.NewFromString(rl.Quantity)
		if err != nil {
			return nil, errors.New("line " + strconv.Itoa(i) + ": invalid quantity")
		}

		line := billing.Line{ProductID: productID, Quantity: qty, UOM: rl.UOM}
		if rl.UnitPrice != "" {
			price, err := decimal.NewFromString(rl.UnitPrice)
			if err != nil || price.IsNegative() {
				return nil, errors.New("line " + strconv.Itoa(i) + ": invalid unit_price")
			}
			line.UnitPrice = price
		} else if product, ok := snap.Products[productID]; ok {
			// Snapshot prices are per base unit. Scale to the requested UOM;
			// an unknown UOM keeps price zero and surfaces as a line error.
			if factor, ok := product.Conversions.Factor(rl.UOM); ok {
				line.UnitPrice = product.UnitPrice.Mul(factor)
			}
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func (h *Handler) recordResult(result billing.BillResult) {
	h.countEvaluation("ok")
	if obs.BillLinesEvaluated != nil {
		for _, lr := range result.Lines {
			switch {
			case lr.ErrorCode != "":
				obs.BillLinesEvaluated.WithLabelValues("error").Inc()
			case lr.SchemeID != nil:
				obs.BillLinesEvaluated.WithLabelValues("discounted").Inc()
			default:
				obs.BillLinesEvaluated.WithLabelValues("plain").Inc()
			}
		}
	}
	if obs.SchemesApplied != nil {
		for _, lr := range result.Lines {
			if lr.SchemeKind != "" {
				obs.SchemesApplied.WithLabelValues(lr.SchemeKind).Inc()
			}
		}
	}
}

func (h *Handler) countEvaluation(result string) {
	if obs.BillEvaluationsTotal != nil {
		obs.BillEvaluationsTotal.WithLabelValues(result).Inc()
	}
}

// Schemes handles GET /api/v1/schemes. An optional active_on date filters to
// schemes valid on that day.
func (h *Handler) Schemes(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Snapshots.Current(r.Context())
	if err != nil {
		common.JSONError(w, http.StatusServiceUnavailable, "SNAPSHOT_UNAVAILABLE", "catalog snapshot not loaded", nil)
		return
	}

	schemes := snap.View.Schemes()
	if raw := r.URL.Query().Get("active_on"); raw != "" {
		activeOn, err := time.Parse(dateLayout, raw)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "VALIDATION", "invalid active_on date", err.Error())
			return
		}
		filtered := schemes[:0:0]
		for _, s := range schemes {
			if s.ActiveOn(activeOn) {
				filtered = append(filtered, s)
			}
		}
		schemes = filtered
	}

	common.JSON(w, http.StatusOK, map[string]any{
		"data":     schemes,
		"taken_at": snap.TakenAt,
	})
}

// Product handles GET /api/v1/products/{id}.
func (h *Handler) Product(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "invalid product id", nil)
		return
	}
	snap, err := h.Snapshots.Current(r.Context())
	if err != nil {
		common.JSONError(w, http.StatusServiceUnavailable, "SNAPSHOT_UNAVAILABLE", "catalog snapshot not loaded", nil)
		return
	}
	product, ok := snap.Products.Get(id)
	if !ok {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "product not found", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": product})
}

// RefreshSnapshot handles POST /api/v1/snapshot/refresh.
func (h *Handler) RefreshSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Snapshots.Refresh(r.Context())
	if err != nil {
		if obs.SnapshotRefreshTotal != nil {
			obs.SnapshotRefreshTotal.WithLabelValues("error").Inc()
		}
		h.Logger.Error().Err(err).Msg("refresh snapshot")
		common.JSONError(w, http.StatusBadGateway, "REFRESH_FAILED", "snapshot refresh failed", nil)
		return
	}
	if obs.SnapshotRefreshTotal != nil {
		obs.SnapshotRefreshTotal.WithLabelValues("ok").Inc()
	}
	if obs.SnapshotSchemesLoaded != nil {
		obs.SnapshotSchemesLoaded.Set(float64(snap.View.Len()))
	}
	if obs.SnapshotInvalidSchemes != nil {
		obs.SnapshotInvalidSchemes.Set(float64(len(snap.View.Invalid())))
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"products":        len(snap.Products),
			"schemes":         snap.View.Len(),
			"invalid_schemes": len(snap.View.Invalid()),
			"taken_at":        snap.TakenAt,
		},
	})
}

// parseAsOf resolves the evaluation date: explicit date, else the service
// clock so tests can pin time.
func parseAsOf(raw string, snapshots *snapshot.Service) (time.Time, error) {
	if raw == "" {
		if snapshots != nil && snapshots.Now != nil {
			return snapshots.Now(), nil
		}
		return time.Now().UTC(), nil
	}
	if t, err := time.Parse(dateLayout, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func validationDetails(err error) any {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	details := make([]map[string]string, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, map[string]string{
			"field": fe.Namespace(),
			"rule":  fe.Tag(),
		})
	}
	return details
}

