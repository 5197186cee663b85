package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swapsoft/pwdbudget/internal/apperr"
	"github.com/swapsoft/pwdbudget/internal/metrics"
	"github.com/swapsoft/pwdbudget/internal/middleware"
	"github.com/swapsoft/pwdbudget/internal/models"
	"github.com/swapsoft/pwdbudget/internal/report"
	"github.com/swapsoft/pwdbudget/internal/service"
	"github.com/swapsoft/pwdbudget/internal/tenant"
)

const office = "P_W_Division_Akola"

type fakeAuth struct {
	loginErr error
	smsSent  bool
	lastOTP  string
}

func (f *fakeAuth) Login(ctx context.Context, userID, password, office string) (*service.LoginResult, error) {
	if userID == "" || password == "" || office == "" {
		return nil, apperr.Validation("User ID, password, and office are required")
	}
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &service.LoginResult{UserID: userID, Name: "R. Patil", Post: "EE", MaskedMobile: "******3210", SMSSent: f.smsSent}, nil
}

func (f *fakeAuth) VerifyOTP(ctx context.Context, userID, otp, office string) (*service.VerifyResult, error) {
	f.lastOTP = otp
	if otp != "123456" {
		return nil, apperr.New(apperr.CodeInvalidOTP, "Invalid OTP")
	}
	return &service.VerifyResult{
		UserID: userID, Post: "EE", Office: "P_W_Division_Akola",
		Token: &models.AccessToken{Token: "tok", TokenType: "Bearer", ExpiresIn: 3600},
	}, nil
}

func (f *fakeAuth) ResendOTP(ctx context.Context, userID, office string) (*service.ResendResult, error) {
	return &service.ResendResult{MaskedMobile: "******3210", SMSSent: true}, nil
}

func (f *fakeAuth) Profile(ctx context.Context, userID, office string) (*models.Profile, error) {
	return &models.Profile{UserID: userID, Office: office, Name: "R. Patil"}, nil
}

type fakeNotifications struct {
	window   service.Window
	office   string
	totalErr error
}

func (f *fakeNotifications) CountDue(ctx context.Context, office string, w service.Window) (int64, error) {
	if office == "" {
		return 0, apperr.Validation("Office parameter is required")
	}
	f.window, f.office = w, office
	return 4, nil
}

func (f *fakeNotifications) RunWindow(ctx context.Context, office string, w service.Window) ([]models.NotificationResult, error) {
	f.window, f.office = w, office
	return []models.NotificationResult{
		{WorkID: "W-1", Outcomes: []models.DispatchOutcome{{Success: true}, {Success: false, Error: "gateway"}}},
		{WorkID: "W-2", Outcomes: []models.DispatchOutcome{{Success: true}}},
	}, nil
}

func (f *fakeNotifications) AggregateTotal(ctx context.Context, office string) (int64, error) {
	if f.totalErr != nil {
		return 0, f.totalErr
	}
	return 18, nil
}

func (f *fakeNotifications) AllDue(ctx context.Context, office string) ([]models.WorkRecord, error) {
	return []models.WorkRecord{{WorkID: "W-1"}}, nil
}

type fakeReports struct {
	filter report.Filter
}

func (f *fakeReports) CrossHeadSummary(ctx context.Context, office string, flt report.Filter) (*service.Summary, error) {
	f.filter = flt
	return &service.Summary{
		Rows:   report.Merge(nil),
		Errors: []service.HeadError{{Head: "CRF", Error: "query failed"}},
	}, nil
}

func (f *fakeReports) BudgetCounts(ctx context.Context, office string) ([]models.BudgetCount, error) {
	if office == "Nowhere" {
		return nil, apperr.Newf(apperr.CodeUnknownTenant, "invalid office selection %q", office)
	}
	return []models.BudgetCount{{Head: "Building", Table: "BudgetMasterBuilding", Count: 3}}, nil
}

type fakeOffices []tenant.OfficeStatus

func (f fakeOffices) Status() []tenant.OfficeStatus { return f }

type fakeVerifier struct{}

func (fakeVerifier) VerifyToken(token string) (*service.Claims, error) {
	if token != "tok" {
		return nil, errors.New("bad token")
	}
	return &service.Claims{UserID: "EE01", Office: office, Type: "access"}, nil
}

type testServer struct {
	router        http.Handler
	auth          *fakeAuth
	notifications *fakeNotifications
	reports       *fakeReports
}

func newTestServer(t *testing.T, offices fakeOffices) *testServer {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	s := &testServer{auth: &fakeAuth{smsSent: true}, notifications: &fakeNotifications{}, reports: &fakeReports{}}
	s.router = NewRouter(RouterDeps{
		Auth:           NewAuthHandlers(s.auth, logger),
		Notifications:  NewNotificationHandlers(s.notifications, logger),
		Reports:        NewReportHandlers(s.reports, logger),
		Offices:        offices,
		AuthMiddleware: middleware.NewAuthMiddleware(fakeVerifier{}, logger),
		Metrics:        metrics.NewMetrics(prometheus.NewRegistry()),
		AllowedOrigins: []string{"*"},
		Logger:         logger,
	})
	return s
}

func (s *testServer) do(t *testing.T, method, path, body string, headers ...string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var out map[string]interface{}
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w.Code, out
}

func TestLogin(t *testing.T) {
	s := newTestServer(t, nil)

	code, body := s.do(t, "POST", "/api/user/login", `{"userId":"EE01","password":"secret","office":"P_W_Division_Akola"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "OTP sent successfully", body["message"])
	assert.Equal(t, "R. Patil", body["Name"])
	assert.Equal(t, "EE01", body["userId"])
	assert.Equal(t, "******3210", body["mobileNo"])

	s.auth.smsSent = false
	code, body = s.do(t, "POST", "/api/user/login", `{"userId":"EE01","password":"secret","office":"P_W_Division_Akola"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["smsSent"])
}

func TestLogin_Errors(t *testing.T) {
	s := newTestServer(t, nil)

	code, body := s.do(t, "POST", "/api/user/login", `{"userId":"EE01"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "User ID, password, and office are required", body["message"])
	assert.Equal(t, "VALIDATION_ERROR", body["code"])

	code, body = s.do(t, "POST", "/api/user/login", `{not json`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Invalid request body", body["message"])

	s.auth.loginErr = apperr.New(apperr.CodeInvalidCredential, "Invalid password")
	code, body = s.do(t, "POST", "/api/user/login", `{"userId":"EE01","password":"x","office":"P_W_Division_Akola"}`)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Invalid password", body["message"])

	s.auth.loginErr = apperr.Wrap(apperr.CodeDatabaseUnavailable, errors.New("dial tcp 10.0.0.5:5432: refused"), "database unavailable")
	code, body = s.do(t, "POST", "/api/user/login", `{"userId":"EE01","password":"x","office":"P_W_Division_Akola"}`)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.NotContains(t, body["error"], "10.0.0.5", "causes are not leaked")
}

func TestVerifyOTP(t *testing.T) {
	s := newTestServer(t, nil)

	code, body := s.do(t, "POST", "/api/user/verify-otp", `{"userId":"EE01","otp":"123456"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Login successful", body["message"])
	assert.Equal(t, "EE", body["post"])
	assert.Equal(t, "tok", body["access_token"])

	code, body = s.do(t, "POST", "/api/user/verify-otp", `{"userId":"EE01","otp":"000000"}`)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "INVALID_OTP", body["code"])
}

func TestResendOTP(t *testing.T) {
	s := newTestServer(t, nil)

	code, body := s.do(t, "POST", "/api/user/resend-otp", `{"userId":"EE01","office":"P_W_Division_Akola"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "OTP resent successfully", body["message"])
	assert.Equal(t, "EE01", body["userId"])
}

func TestProfile_RequiresToken(t *testing.T) {
	s := newTestServer(t, nil)

	code, _ := s.do(t, "GET", "/api/user/profile", "")
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body := s.do(t, "GET", "/api/user/profile", "", "Authorization", "Bearer tok")
	assert.Equal(t, http.StatusOK, code)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "EE01", data["userId"])
	assert.Equal(t, office, data["office"])
}

func TestNotificationCountAndSend(t *testing.T) {
	s := newTestServer(t, nil)

	code, body := s.do(t, "POST", "/api/notifications/half-month/count", `{"office":"P_W_Division_Akola"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(4), body["count"])
	assert.Equal(t, service.HalfMonth, s.notifications.window)

	code, body = s.do(t, "POST", "/api/notifications/week/send", `{"office":"P_W_Division_Akola"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(2), body["records"])
	assert.Equal(t, float64(2), body["sent"])
	assert.Equal(t, float64(1), body["failed"])

	code, body = s.do(t, "POST", "/api/notifications/year/count", `{"office":"P_W_Division_Akola"}`)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NOT_FOUND", body["code"])
	assert.Equal(t, false, body["success"])

	code, body = s.do(t, "POST", "/api/notifications/today/count", `{}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Office parameter is required", body["message"])
}

func TestNotificationTotal(t *testing.T) {
	s := newTestServer(t, nil)

	code, body := s.do(t, "POST", "/api/notifications/total", `{"office":"P_W_Division_Akola"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(18), body["count"])

	s.notifications.totalErr = apperr.Wrap(apperr.CodeAggregation, errors.New("timeout"), "Failed to aggregate notification counts")
	code, body = s.do(t, "POST", "/api/notifications/total", `{"office":"P_W_Division_Akola"}`)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "AGGREGATION_FAILURE", body["code"])
}

func TestNotificationAllDue(t *testing.T) {
	s := newTestServer(t, nil)

	code, body := s.do(t, "POST", "/api/notifications/all-due", `{"office":"P_W_Division_Akola"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, body["data"], 1)
}

func TestCrossHeadSummary(t *testing.T) {
	s := newTestServer(t, nil)

	code, body := s.do(t, "POST", "/api/budget/cross-head-summary", `{"office":"P_W_Division_Akola","year":"2024-2025","role":"contractor","contractorName":"Shinde Constructions"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, report.Filter{Year: "2024-2025", Contractor: "Shinde Constructions"}, s.reports.filter)
	assert.Len(t, body["rows"], 1)
	assert.Len(t, body["errors"], 1)

	code, _ = s.do(t, "POST", "/api/budget/cross-head-summary", `{"office":"P_W_Division_Akola","year":"2024-2025","role":"contractor"}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestBudgetCounts(t *testing.T) {
	s := newTestServer(t, nil)

	code, body := s.do(t, "POST", "/api/budget/count", `{"office":"P_W_Division_Akola"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, body["data"], 1)

	code, body = s.do(t, "POST", "/api/budget/count", `{"office":"Nowhere"}`)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "UNKNOWN_TENANT", body["code"])
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name    string
		offices fakeOffices
		code    int
		status  string
	}{
		{"all up", fakeOffices{{Office: "A", Connected: true}, {Office: "B", Connected: true}}, http.StatusOK, "ok"},
		{"one down", fakeOffices{{Office: "A", Connected: true}, {Office: "B", Error: "refused"}}, http.StatusOK, "degraded"},
		{"all down", fakeOffices{{Office: "A", Error: "refused"}}, http.StatusServiceUnavailable, "unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, tt.offices)
			code, body := s.do(t, "GET", "/health", "")
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.status, body["status"])
		})
	}
}
