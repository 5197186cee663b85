package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/swapsoft/pwdbudget/internal/models"
	"github.com/swapsoft/pwdbudget/internal/service"
)

// NotificationService is the reminder pipeline used by NotificationHandlers.
type NotificationService interface {
	CountDue(ctx context.Context, office string, w service.Window) (int64, error)
	RunWindow(ctx context.Context, office string, w service.Window) ([]models.NotificationResult, error)
	AggregateTotal(ctx context.Context, office string) (int64, error)
	AllDue(ctx context.Context, office string) ([]models.WorkRecord, error)
}

type NotificationHandlers struct {
	notifications NotificationService
	logger        *logrus.Logger
}

func NewNotificationHandlers(notifications NotificationService, logger *logrus.Logger) *NotificationHandlers {
	return &NotificationHandlers{
		notifications: notifications,
		logger:        logger,
	}
}

type OfficeRequest struct {
	Office string `json:"office"`
}

type CountResponse struct {
	Success bool   `json:"success"`
	Window  string `json:"window,omitempty"`
	Count   int64  `json:"count"`
}

type SendResponse struct {
	Success bool                        `json:"success"`
	Window  string                      `json:"window"`
	Records int                         `json:"records"`
	Sent    int                         `json:"sent"`
	Failed  int                         `json:"failed"`
	Results []models.NotificationResult `json:"results"`
}

type WorksResponse struct {
	Success bool                `json:"success"`
	Data    []models.WorkRecord `json:"data"`
}

// Count counts the works due within the window named in the path.
func (h *NotificationHandlers) Count(w http.ResponseWriter, r *http.Request) {
	window, office, err := h.windowRequest(r)
	if err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}

	n, err := h.notifications.CountDue(r.Context(), office, window)
	if err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, CountResponse{Success: true, Window: window.String(), Count: n})
}

// Send texts reminders for the works due within the window named in the path.
func (h *NotificationHandlers) Send(w http.ResponseWriter, r *http.Request) {
	window, office, err := h.windowRequest(r)
	if err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}

	results, err := h.notifications.RunWindow(r.Context(), office, window)
	if err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}

	resp := SendResponse{Success: true, Window: window.String(), Records: len(results), Results: results}
	for _, res := range results {
		resp.Sent += res.Delivered()
		resp.Failed += len(res.Outcomes) - res.Delivered()
	}
	respondWithJSON(w, http.StatusOK, resp)
}

// Total sums the counts of every window.
func (h *NotificationHandlers) Total(w http.ResponseWriter, r *http.Request) {
	var req OfficeRequest
	if err := decodeBody(r, &req); err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}

	n, err := h.notifications.AggregateTotal(r.Context(), req.Office)
	if err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, CountResponse{Success: true, Count: n})
}

// AllDue lists the whole schedule of an office.
func (h *NotificationHandlers) AllDue(w http.ResponseWriter, r *http.Request) {
	var req OfficeRequest
	if err := decodeBody(r, &req); err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}

	works, err := h.notifications.AllDue(r.Context(), req.Office)
	if err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, WorksResponse{Success: true, Data: works})
}

func (h *NotificationHandlers) windowRequest(r *http.Request) (service.Window, string, error) {
	window, err := service.ParseWindow(mux.Vars(r)["window"])
	if err != nil {
		return 0, "", err
	}

	var req OfficeRequest
	if err := decodeBody(r, &req); err != nil {
		return 0, "", err
	}
	return window, req.Office, nil
}
