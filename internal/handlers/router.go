package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/swapsoft/pwdbudget/internal/metrics"
	"github.com/swapsoft/pwdbudget/internal/middleware"
)

// RouterDeps are the handlers and middleware the router wires together.
type RouterDeps struct {
	Auth           *AuthHandlers
	Notifications  *NotificationHandlers
	Reports        *ReportHandlers
	Offices        OfficeStatusReporter
	AuthMiddleware *middleware.AuthMiddleware
	RateLimiter    *middleware.RateLimiter
	Metrics        *metrics.Metrics
	MetricsHandler http.Handler
	AllowedOrigins []string
	Logger         *logrus.Logger
}

func NewRouter(d RouterDeps) *mux.Router {
	router := mux.NewRouter()
	router.NotFoundHandler = notFound(d.Logger)

	router.Use(middleware.RequestID)
	router.Use(middleware.Recovery(d.Logger))
	router.Use(middleware.CORS(d.AllowedOrigins))
	router.Use(middleware.Logging(d.Logger))
	router.Use(middleware.Metrics(d.Metrics))

	router.HandleFunc("/health", Health(d.Offices)).Methods("GET", "OPTIONS")
	if d.MetricsHandler != nil {
		router.Handle("/metrics", d.MetricsHandler).Methods("GET")
	}

	api := router.PathPrefix("/api").Subrouter()

	user := api.PathPrefix("/user").Subrouter()
	if d.RateLimiter != nil {
		user.Use(d.RateLimiter.Limit)
	}
	user.HandleFunc("/login", d.Auth.Login).Methods("POST", "OPTIONS")
	user.HandleFunc("/verify-otp", d.Auth.VerifyOTP).Methods("POST", "OPTIONS")
	user.HandleFunc("/resend-otp", d.Auth.ResendOTP).Methods("POST", "OPTIONS")
	user.Handle("/profile", d.AuthMiddleware.RequireAuth(http.HandlerFunc(d.Auth.Profile))).Methods("GET", "OPTIONS")

	notifications := api.PathPrefix("/notifications").Subrouter()
	notifications.HandleFunc("/total", d.Notifications.Total).Methods("POST", "OPTIONS")
	notifications.HandleFunc("/all-due", d.Notifications.AllDue).Methods("POST", "OPTIONS")
	notifications.HandleFunc("/{window:today|week|half-month|month}/count", d.Notifications.Count).Methods("POST", "OPTIONS")
	notifications.HandleFunc("/{window:today|week|half-month|month}/send", d.Notifications.Send).Methods("POST", "OPTIONS")

	budget := api.PathPrefix("/budget").Subrouter()
	budget.HandleFunc("/cross-head-summary", d.Reports.CrossHeadSummary).Methods("POST", "OPTIONS")
	budget.HandleFunc("/count", d.Reports.BudgetCounts).Methods("POST", "OPTIONS")

	return router
}
