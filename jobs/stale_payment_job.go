package jobs

import (
	"log/slog"
	"time"

	"github.com/anjiri1684/payment_gateway/store"
)

const staleAfter = 30 * time.Minute

// ReportStalePayments logs payments that were initiated but never verified
// within the grace window. Read-only reconciliation report; the operator
// decides what to do with them.
func ReportStalePayments(st store.Store, logger *slog.Logger) func() {
	return func() {
		stale, err := st.StaleInitiated(staleAfter)
		if err != nil {
			logger.Error("stale payment sweep failed", "error", err)
			return
		}
		for _, p := range stale {
			logger.Warn("payment initiated but not verified",
				"reference_id", p.ReferenceID,
				"service_from", p.ServiceFrom,
				"amount", p.Amount,
				"initiated_at", p.InitiatedAt)
		}
	}
}
