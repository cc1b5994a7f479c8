package handler

import (
	"bytes"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/finance"
)

const reportName = "financial-report"

// FinanceSummary возвращает финансовую сводку за период ?range=.
// Если обновление не удалось, но есть прежняя сводка, она возвращается
// с признаком stale вместе с описанием ошибки.
func (h *Handler) FinanceSummary(w http.ResponseWriter, r *http.Request) {
	rng, err := finance.ParseRange(r.URL.Query().Get("range"))
	if err != nil {
		h.fail(w, "load financial summary", err)
		return
	}

	report, err := h.finance.Refresh(r.Context(), rng)
	if err != nil {
		if !report.Stale {
			h.fail(w, "load financial summary", err)
			return
		}
		_, detail := h.classify("load financial summary", err)
		writeJSON(w, http.StatusOK, dataBody{Data: report, Error: &detail})
		return
	}
	writeData(w, http.StatusOK, report)
}

// FinanceExport отдаёт последние транзакции периода файлом CSV.
func (h *Handler) FinanceExport(w http.ResponseWriter, r *http.Request) {
	rng, err := finance.ParseRange(r.URL.Query().Get("range"))
	if err != nil {
		h.fail(w, "export financial report", err)
		return
	}

	report, err := h.finance.Refresh(r.Context(), rng)
	if err != nil && !report.Stale {
		h.fail(w, "export financial report", err)
		return
	}

	var buf bytes.Buffer
	if err := finance.WriteCSV(&buf, report.RecentTransactions); err != nil {
		h.logger.Error("write csv", zap.Error(err))
		writeError(w, http.StatusInternalServerError, errorDetail{Code: "internal", Message: "export failed"})
		return
	}

	filename := finance.ExportFilename(reportName, time.Now())
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
