// Package sms sends text messages through the WishbySMS HTTP gateway.
package sms

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/swapsoft/pwdbudget/internal/apperr"
	"github.com/swapsoft/pwdbudget/internal/config"
)

const (
	defaultBaseURL = "https://login.wishbysms.com/api/sendhttp.php"
	defaultTimeout = 15 * time.Second
)

// Client calls the gateway's sendhttp endpoint. The response body is opaque;
// only transport errors and non-2xx statuses count as failures.
type Client struct {
	baseURL       string
	apiKey        string
	senderID      string
	dltTemplateID string
	countryCode   string
	route         string
	httpClient    *http.Client
	logger        *logrus.Logger
}

func NewClient(cfg *config.SMSConfig, logger *logrus.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	cc := cfg.CountryCode
	if cc == "" {
		cc = "91"
	}
	route := cfg.Route
	if route == "" {
		route = "4"
	}
	return &Client{
		baseURL:       baseURL,
		apiKey:        cfg.APIKey,
		senderID:      cfg.SenderID,
		dltTemplateID: cfg.DLTTemplateID,
		countryCode:   cc,
		route:         route,
		httpClient:    &http.Client{Timeout: timeout},
		logger:        logger,
	}
}

// Send delivers message to mobile. Failures are returned as
// apperr.ErrGateway. The message text is never logged.
func (c *Client) Send(ctx context.Context, mobile, message string) error {
	if c.apiKey == "" {
		return apperr.New(apperr.CodeGateway, "sms: API key not configured")
	}

	to := NormalizeMobile(mobile, c.countryCode)
	if to == "" {
		return apperr.Newf(apperr.CodeGateway, "sms: invalid mobile number %q", MaskMobile(mobile))
	}

	q := url.Values{}
	q.Set("authkey", c.apiKey)
	q.Set("mobiles", to)
	q.Set("message", message)
	q.Set("sender", c.senderID)
	q.Set("route", c.route)
	q.Set("country", c.countryCode)
	if c.dltTemplateID != "" {
		q.Set("DLT_TE_ID", c.dltTemplateID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return apperr.Wrap(apperr.CodeGateway, err, "sms: failed to build request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WithError(err).WithField("mobile", MaskMobile(to)).Warn("SMS gateway request failed")
		return apperr.Wrap(apperr.CodeGateway, err, "sms: gateway request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.WithFields(logrus.Fields{
			"mobile": MaskMobile(to),
			"status": resp.StatusCode,
		}).Warn("SMS gateway rejected request")
		return apperr.Newf(apperr.CodeGateway, "sms: request failed status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	c.logger.WithField("mobile", MaskMobile(to)).Debug("SMS sent")
	return nil
}

// NormalizeMobile strips everything but digits and prefixes the country
// code to a bare national number. It returns "" when no digits remain.
func NormalizeMobile(mobile, countryCode string) string {
	var b strings.Builder
	for _, r := range mobile {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := strings.TrimLeft(b.String(), "0")
	if digits == "" {
		return ""
	}
	if len(digits) == 10 {
		return countryCode + digits
	}
	return digits
}

// MaskMobile replaces every digit followed by at least four more digits
// with '*', leaving the last four visible.
func MaskMobile(mobile string) string {
	out := []byte(mobile)
	for i := range out {
		if !isDigit(out[i]) {
			continue
		}
		if i+4 < len(mobile) && allDigits(mobile[i+1:i+5]) {
			out[i] = '*'
		}
	}
	return string(out)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return true
}

// LogSender stands in for the gateway when no API key is configured. It only
// logs the masked destination.
type LogSender struct {
	logger *logrus.Logger
}

func NewLogSender(logger *logrus.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, mobile, message string) error {
	s.logger.WithField("mobile", MaskMobile(mobile)).Info("SMS gateway not configured, message dropped")
	return nil
}
