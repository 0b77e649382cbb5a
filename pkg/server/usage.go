package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/dialbill/pkg/billing"
	"github.com/dmitrymomot/dialbill/pkg/logger"
	"github.com/dmitrymomot/dialbill/pkg/tenant"
)

// UsageRecorder is satisfied by *billing.Meter.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, ev billing.UsageEvent) (billing.UsageResult, error)
}

// MinutesRecorder is satisfied by *billing.AccrualBiller.
type MinutesRecorder interface {
	RecordMinutes(ctx context.Context, ev billing.MinutesEvent) (billing.AccrualResult, error)
}

type usageRequest struct {
	TenantID   string          `json:"tenant_id"`
	Category   string          `json:"category"`
	RawCostUSD decimal.Decimal `json:"raw_cost_usd"`
	SelfBilled bool            `json:"self_billed"`
}

type usageResponse struct {
	Outcome    billing.Outcome    `json:"outcome"`
	BilledUSD  decimal.Decimal    `json:"billed_usd"`
	BalanceUSD decimal.Decimal    `json:"balance_usd"`
	Suspended  bool               `json:"suspended,omitempty"`
	TopUp      billing.SkipReason `json:"topup_skipped,omitempty"`
	Charged    bool               `json:"topup_charged,omitempty"`
}

type minutesRequest struct {
	TenantID   string          `json:"tenant_id"`
	Minutes    decimal.Decimal `json:"minutes"`
	RawCostUSD decimal.Decimal `json:"raw_cost_usd"`
}

type minutesResponse struct {
	Outcome       billing.Outcome `json:"outcome"`
	BillableCents int64           `json:"billable_cents"`
	AccruedCents  int64           `json:"accrued_cents"`
	ChargedCents  int64           `json:"charged_cents,omitempty"`
}

func (s *Server) recordUsage(w http.ResponseWriter, r *http.Request) {
	var req usageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	res, err := s.usage.RecordUsage(r.Context(), billing.UsageEvent{
		TenantID:   req.TenantID,
		Category:   req.Category,
		RawCostUSD: req.RawCostUSD,
		SelfBilled: req.SelfBilled,
	})
	if err != nil {
		s.billingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, usageResponse{
		Outcome:    res.Outcome,
		BilledUSD:  res.BilledUSD,
		BalanceUSD: res.BalanceUSD,
		Suspended:  res.Suspended,
		TopUp:      res.TopUp.Skipped,
		Charged:    res.TopUp.Charged,
	})
}

func (s *Server) recordMinutes(w http.ResponseWriter, r *http.Request) {
	var req minutesRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	res, err := s.minutes.RecordMinutes(r.Context(), billing.MinutesEvent{
		TenantID:   req.TenantID,
		Minutes:    req.Minutes,
		RawCostUSD: req.RawCostUSD,
	})
	if err != nil {
		s.billingError(w, r, err)
		return
	}
	out := minutesResponse{
		Outcome:       res.Outcome,
		BillableCents: res.BillableCents,
		AccruedCents:  res.AccruedCents,
	}
	if res.Charge.Charged {
		out.ChargedCents = res.Charge.AmountCents
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) billingError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, billing.ErrInvalidUsage):
		writeError(w, http.StatusBadRequest, "invalid_usage", err.Error())
	case errors.Is(err, tenant.ErrTenantNotFound):
		writeError(w, http.StatusNotFound, "not_found", "tenant not found")
	case errors.Is(err, billing.ErrUsageSuspended):
		writeError(w, http.StatusPaymentRequired, "usage_suspended", err.Error())
	case errors.Is(err, billing.ErrTenantUnlinked):
		writeError(w, http.StatusConflict, "tenant_unlinked", err.Error())
	default:
		s.log.ErrorContext(r.Context(), "usage not recorded", logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "")
	}
}
