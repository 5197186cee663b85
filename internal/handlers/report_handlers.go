package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/swapsoft/pwdbudget/internal/apperr"
	"github.com/swapsoft/pwdbudget/internal/models"
	"github.com/swapsoft/pwdbudget/internal/report"
	"github.com/swapsoft/pwdbudget/internal/service"
)

// ReportService is the budget reporting used by ReportHandlers.
type ReportService interface {
	CrossHeadSummary(ctx context.Context, office string, f report.Filter) (*service.Summary, error)
	BudgetCounts(ctx context.Context, office string) ([]models.BudgetCount, error)
}

type ReportHandlers struct {
	reports ReportService
	logger  *logrus.Logger
}

func NewReportHandlers(reports ReportService, logger *logrus.Logger) *ReportHandlers {
	return &ReportHandlers{
		reports: reports,
		logger:  logger,
	}
}

type SummaryRequest struct {
	Office string `json:"office"`
	Year   string `json:"year"`
	// Role "contractor" limits the summary to ContractorName's works.
	Role           string `json:"role,omitempty"`
	ContractorName string `json:"contractorName,omitempty"`
}

type SummaryResponse struct {
	Success bool `json:"success"`
	*service.Summary
}

type BudgetCountResponse struct {
	Success bool                 `json:"success"`
	Data    []models.BudgetCount `json:"data"`
}

func (h *ReportHandlers) CrossHeadSummary(w http.ResponseWriter, r *http.Request) {
	var req SummaryRequest
	if err := decodeBody(r, &req); err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}

	f := report.Filter{Year: strings.TrimSpace(req.Year)}
	if strings.EqualFold(req.Role, "contractor") {
		f.Contractor = strings.TrimSpace(req.ContractorName)
		if f.Contractor == "" {
			respondWithError(w, r, h.logger, apperr.Validation("Contractor name is required"))
			return
		}
	}

	sum, err := h.reports.CrossHeadSummary(r.Context(), strings.TrimSpace(req.Office), f)
	if err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, SummaryResponse{Success: true, Summary: sum})
}

func (h *ReportHandlers) BudgetCounts(w http.ResponseWriter, r *http.Request) {
	var req OfficeRequest
	if err := decodeBody(r, &req); err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}

	counts, err := h.reports.BudgetCounts(r.Context(), strings.TrimSpace(req.Office))
	if err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, BudgetCountResponse{Success: true, Data: counts})
}
