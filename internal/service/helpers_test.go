package service

import (
	"context"
	"io"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/swapsoft/pwdbudget/internal/apperr"
	"github.com/swapsoft/pwdbudget/internal/config"
	"github.com/swapsoft/pwdbudget/internal/metrics"
	"github.com/swapsoft/pwdbudget/internal/models"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testMetrics() *metrics.Metrics {
	return metrics.NewMetrics(prometheus.NewRegistry())
}

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sentMessage struct {
	Mobile  string
	Message string
}

// recordingSender keeps every message and fails the numbers listed in fail.
type recordingSender struct {
	mu   sync.Mutex
	sent []sentMessage
	fail map[string]bool
}

func (s *recordingSender) Send(ctx context.Context, mobile, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail[mobile] {
		return apperr.Newf(apperr.CodeGateway, "gateway rejected %s", mobile)
	}
	s.sent = append(s.sent, sentMessage{Mobile: mobile, Message: message})
	return nil
}

func (s *recordingSender) Sent() []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sentMessage, len(s.sent))
	copy(out, s.sent)
	return out
}

var codePattern = regexp.MustCompile(`\b\d{6}\b`)

// lastCode extracts the code from the most recent message.
func (s *recordingSender) lastCode(t *testing.T) string {
	t.Helper()
	sent := s.Sent()
	require.NotEmpty(t, sent, "no message was sent")
	code := codePattern.FindString(sent[len(sent)-1].Message)
	require.NotEmpty(t, code, "message carries no code")
	return code
}

// fakeUsers is an in-memory CredentialSource keyed by office then user id.
type fakeUsers struct {
	creds map[string]map[string]models.Credential
	err   error
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{creds: make(map[string]map[string]models.Credential)}
}

func (f *fakeUsers) add(c models.Credential) {
	if f.creds[c.Office] == nil {
		f.creds[c.Office] = make(map[string]models.Credential)
	}
	f.creds[c.Office][c.UserID] = c
}

func (f *fakeUsers) FindCredential(ctx context.Context, office, userID string) (*models.Credential, error) {
	if f.err != nil {
		return nil, f.err
	}
	users, ok := f.creds[office]
	if !ok {
		return nil, apperr.Newf(apperr.CodeUnknownTenant, "invalid office selection %q", office)
	}
	c, ok := users[userID]
	if !ok {
		return nil, apperr.Newf(apperr.CodeUserNotFound, "Invalid credentials - Please Verify your office %s", office)
	}
	return &c, nil
}

func (f *fakeUsers) Profile(ctx context.Context, office, userID string) (*models.Profile, error) {
	c, err := f.FindCredential(ctx, office, userID)
	if err != nil {
		return nil, err
	}
	return &models.Profile{UserID: c.UserID, Name: c.Name, Post: c.Post, Mobile: c.Mobile, Office: c.Office}, nil
}

func newTestJWTService(t *testing.T) *JWTService {
	t.Helper()
	s, err := NewJWTService(&config.JWTConfig{SecretKey: testSecret, AccessExpiry: time.Hour}, testLogger())
	require.NoError(t, err)
	return s
}
