package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dmitrymomot/dialbill/pkg/billing"
	"github.com/dmitrymomot/dialbill/pkg/carrier"
	"github.com/dmitrymomot/dialbill/pkg/logger"
	"github.com/dmitrymomot/dialbill/pkg/tenant"
)

type complianceResult struct {
	TenantID string                `json:"tenant_id"`
	Status   string                `json:"status"`
	Previous string                `json:"previous"`
	Fee      billing.OneTimeStatus `json:"fee,omitempty"`
	Notified bool                  `json:"notified,omitempty"`
}

// complianceCallback records a messaging-registration status change. The
// approval fee is attempted only on the first transition into approved, and
// its failure never fails the callback. The approval email is gated by its own
// stamp, so every approved callback may retry a notice that failed before.
func (s *Server) complianceCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if s.cfg.CarrierAuthToken != "" {
		if err := carrier.VerifyRequest(r, s.cfg.CarrierAuthToken, s.cfg.PublicURL); err != nil {
			s.log.WarnContext(ctx, "compliance callback rejected", logger.Error(err))
			writeError(w, http.StatusForbidden, "invalid_signature", "")
			return
		}
	} else if s.cfg.Strict {
		writeError(w, http.StatusForbidden, "invalid_signature", "callback signing is not configured")
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	tenantID := strings.TrimSpace(firstValue(r, "tenant_id", "TenantId", "tenant"))
	raw := firstValue(r, "status", "Status", "CampaignStatus", "BrandStatus")
	status := tenant.ParseComplianceStatus(raw)
	if tenantID == "" || status == tenant.ComplianceUnknown {
		writeError(w, http.StatusBadRequest, "bad_request", "tenant_id and status are required")
		return
	}
	log := s.log.With(logger.TenantID(tenantID), slog.String("status", string(status)))

	prev, err := s.tenants.SetCompliance(ctx, tenantID, status)
	if err != nil {
		if errors.Is(err, tenant.ErrTenantNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "tenant not found")
			return
		}
		log.ErrorContext(ctx, "failed to store compliance status", logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}

	out := complianceResult{TenantID: tenantID, Status: string(status), Previous: string(prev)}
	if status.Approved() && !prev.Approved() {
		res, err := s.fees.ChargeOnceIfEligible(ctx, tenantID)
		out.Fee = res.Status
		switch {
		case err != nil:
			log.ErrorContext(ctx, "approval fee check failed", logger.Error(err))
		case res.Err != nil:
			log.WarnContext(ctx, "approval fee not charged", logger.Error(res.Err))
		default:
			log.InfoContext(ctx, "approval fee processed",
				slog.String("fee_status", string(res.Status)),
				logger.Cents("amount_cents", res.AmountCents))
		}
	}
	if status.Approved() && s.notifier != nil {
		sent, err := s.notifier.NotifyApproval(ctx, tenantID)
		out.Notified = sent
		if err != nil {
			log.WarnContext(ctx, "approval notice not sent", logger.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func firstValue(r *http.Request, keys ...string) string {
	for _, k := range keys {
		if v := r.Form.Get(k); v != "" {
			return v
		}
	}
	return ""
}
