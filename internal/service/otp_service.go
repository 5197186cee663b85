package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"hash/fnv"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/swapsoft/pwdbudget/internal/apperr"
	"github.com/swapsoft/pwdbudget/internal/config"
	"github.com/swapsoft/pwdbudget/internal/metrics"
	"github.com/swapsoft/pwdbudget/internal/models"
	"github.com/swapsoft/pwdbudget/internal/repository"
	"github.com/swapsoft/pwdbudget/internal/sms"
	"golang.org/x/crypto/bcrypt"
)

const (
	loginMessage  = "Your one time password login (OTP) is %s Please use it to verify your mobile number with -Swapsoft"
	resendMessage = "Your OTP for login is %s - Swapsoft"
)

// CredentialSource looks office users up in their office database.
type CredentialSource interface {
	FindCredential(ctx context.Context, office, userID string) (*models.Credential, error)
	Profile(ctx context.Context, office, userID string) (*models.Profile, error)
}

// Sender delivers one text message to one mobile number.
type Sender interface {
	Send(ctx context.Context, mobile, message string) error
}

// LoginResult is returned once a code has been issued.
type LoginResult struct {
	UserID       string `json:"userId"`
	Name         string `json:"Name"`
	Post         string `json:"post"`
	MaskedMobile string `json:"mobileNo"`
	SMSSent      bool   `json:"smsSent"`
}

// VerifyResult is returned after a code has been consumed.
type VerifyResult struct {
	UserID string              `json:"userId"`
	Name   string              `json:"name"`
	Post   string              `json:"post"`
	Office string              `json:"office"`
	Token  *models.AccessToken `json:"token"`
}

// ResendResult is returned after a fresh code replaced the live one.
type ResendResult struct {
	MaskedMobile string `json:"mobileNo"`
	SMSSent      bool   `json:"smsSent"`
}

// OTPService runs the two-step login: password check plus SMS code, then code
// verification. At most one code is live per (office, user).
type OTPService struct {
	users    CredentialSource
	sessions repository.SessionStore
	sender   Sender
	tokens   *JWTService
	cfg      *config.OTPConfig
	metrics  *metrics.Metrics
	logger   *logrus.Logger
	nowF     func() time.Time

	// serializes issue and verify per session key; keys share a fixed set
	// of mutexes so the set never grows
	locks [lockStripes]sync.Mutex
}

const lockStripes = 64

func NewOTPService(
	users CredentialSource,
	sessions repository.SessionStore,
	sender Sender,
	tokens *JWTService,
	cfg *config.OTPConfig,
	m *metrics.Metrics,
	logger *logrus.Logger,
) *OTPService {
	return &OTPService{
		users:    users,
		sessions: sessions,
		sender:   sender,
		tokens:   tokens,
		cfg:      cfg,
		metrics:  m,
		logger:   logger,
		nowF:     time.Now,
	}
}

// Login checks the password of userID in office and sends a fresh code to the
// user's registered mobile. A failed SMS is reported through SMSSent; the
// session stays so the user can ask for a resend.
func (s *OTPService) Login(ctx context.Context, userID, password, office string) (*LoginResult, error) {
	userID, office = strings.TrimSpace(userID), strings.TrimSpace(office)
	if userID == "" || password == "" || office == "" {
		return nil, apperr.Validation("User ID, password, and office are required")
	}

	cred, err := s.users.FindCredential(ctx, office, userID)
	if err != nil {
		s.metrics.RecordOTP("login", "rejected")
		return nil, err
	}

	if !passwordMatches(cred.Password, password) {
		s.metrics.RecordOTP("login", "rejected")
		return nil, apperr.New(apperr.CodeInvalidCredential, "Invalid password")
	}

	code, err := s.issue(ctx, cred)
	if err != nil {
		return nil, err
	}

	sent := s.deliver(ctx, cred, fmt.Sprintf(loginMessage, code), "login")
	s.metrics.RecordOTP("login", "issued")

	return &LoginResult{
		UserID:       cred.UserID,
		Name:         cred.Name,
		Post:         cred.Post,
		MaskedMobile: sms.MaskMobile(cred.Mobile),
		SMSSent:      sent,
	}, nil
}

// VerifyOTP consumes the live code of userID. When office is empty the session
// is looked up across offices; more than one live session is ambiguous.
func (s *OTPService) VerifyOTP(ctx context.Context, userID, otp, office string) (*VerifyResult, error) {
	userID, otp, office = strings.TrimSpace(userID), strings.TrimSpace(otp), strings.TrimSpace(office)
	if userID == "" || otp == "" {
		return nil, apperr.Validation("User ID and OTP are required")
	}

	now := s.nowF()
	sess, err := s.lookup(ctx, userID, office, now)
	if err != nil {
		s.metrics.RecordOTP("verify", outcomeOf(err))
		return nil, err
	}

	unlock := s.lock(sess.Key())
	defer unlock()

	// re-read under the lock; a concurrent verify may have consumed it
	sess, err = s.sessions.Get(ctx, sess.Key())
	if errors.Is(err, repository.ErrSessionNotFound) {
		s.metrics.RecordOTP("verify", "no_session")
		return nil, apperr.New(apperr.CodeNoSession, "No OTP request found. Please login again.")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read OTP session: %w", err)
	}

	if sess.Expired(now) {
		s.discard(ctx, sess.Key())
		s.metrics.RecordOTP("verify", "expired")
		return nil, apperr.New(apperr.CodeExpired, "OTP has expired. Please login again.")
	}

	if s.cfg.MaxAttempts > 0 && sess.Attempts >= s.cfg.MaxAttempts {
		s.discard(ctx, sess.Key())
		s.metrics.RecordOTP("verify", "too_many_attempts")
		return nil, apperr.ErrTooManyAttempts
	}

	if err := bcrypt.CompareHashAndPassword([]byte(sess.CodeHash), []byte(otp)); err != nil {
		if s.cfg.MaxAttempts > 0 {
			sess.Attempts++
			if err := s.sessions.Put(ctx, sess); err != nil {
				s.logger.WithError(err).WithField("user_id", userID).Warn("Failed to record OTP attempt")
			}
		}
		s.metrics.RecordOTP("verify", "invalid")
		return nil, apperr.New(apperr.CodeInvalidOTP, "Invalid OTP")
	}

	if err := s.sessions.Delete(ctx, sess.Key()); err != nil {
		return nil, fmt.Errorf("failed to consume OTP session: %w", err)
	}

	token, err := s.tokens.IssueAccessToken(sess.UserID, sess.Office, sess.Post)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordOTP("verify", "success")
	s.logger.WithFields(logrus.Fields{
		"user_id": sess.UserID,
		"office":  sess.Office,
	}).Info("OTP verified")

	return &VerifyResult{
		UserID: sess.UserID,
		Name:   sess.Name,
		Post:   sess.Post,
		Office: sess.Office,
		Token:  token,
	}, nil
}

// ResendOTP replaces the live code of userID in office with a fresh one.
func (s *OTPService) ResendOTP(ctx context.Context, userID, office string) (*ResendResult, error) {
	userID, office = strings.TrimSpace(userID), strings.TrimSpace(office)
	if userID == "" || office == "" {
		return nil, apperr.Validation("User ID and office are required")
	}

	cred, err := s.users.FindCredential(ctx, office, userID)
	if err != nil {
		return nil, err
	}

	code, err := s.issue(ctx, cred)
	if err != nil {
		return nil, err
	}

	sent := s.deliver(ctx, cred, fmt.Sprintf(resendMessage, code), "resend")
	s.metrics.RecordOTP("resend", "issued")

	return &ResendResult{
		MaskedMobile: sms.MaskMobile(cred.Mobile),
		SMSSent:      sent,
	}, nil
}

// Profile returns the profile of userID in office.
func (s *OTPService) Profile(ctx context.Context, userID, office string) (*models.Profile, error) {
	if userID == "" || office == "" {
		return nil, apperr.Validation("User ID and office are required")
	}
	return s.users.Profile(ctx, office, userID)
}

// Sweep drops sessions that expired before now.
func (s *OTPService) Sweep(ctx context.Context) (int, error) {
	n, err := s.sessions.Sweep(ctx, s.nowF())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep OTP sessions: %w", err)
	}
	if n > 0 {
		s.logger.WithField("removed", n).Debug("Swept expired OTP sessions")
	}
	return n, nil
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *OTPService) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.WithError(err).Warn("OTP sweep failed")
			}
		}
	}
}

func (s *OTPService) issue(ctx context.Context, cred *models.Credential) (string, error) {
	code, err := s.generateRandomOTP(s.cfg.Length)
	if err != nil {
		return "", fmt.Errorf("failed to generate OTP: %w", err)
	}

	cost := s.cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash OTP: %w", err)
	}

	now := s.nowF()
	sess := &models.OTPSession{
		UserID:    cred.UserID,
		Office:    cred.Office,
		CodeHash:  string(hash),
		Mobile:    cred.Mobile,
		Name:      cred.Name,
		Post:      cred.Post,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.Expiry),
	}

	unlock := s.lock(sess.Key())
	defer unlock()

	if err := s.sessions.Put(ctx, sess); err != nil {
		s.logger.WithError(err).WithField("user_id", cred.UserID).Error("Failed to store OTP session")
		return "", fmt.Errorf("failed to store OTP: %w", err)
	}
	return code, nil
}

func (s *OTPService) deliver(ctx context.Context, cred *models.Credential, message, purpose string) bool {
	err := s.sender.Send(ctx, cred.Mobile, message)
	s.metrics.RecordSMS(purpose, err == nil)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"user_id": cred.UserID,
			"office":  cred.Office,
			"mobile":  sms.MaskMobile(cred.Mobile),
		}).Error("Failed to send OTP")
		return false
	}
	return true
}

func (s *OTPService) lookup(ctx context.Context, userID, office string, now time.Time) (*models.OTPSession, error) {
	if office != "" {
		sess, err := s.sessions.Get(ctx, models.SessionKey{Office: office, UserID: userID})
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, apperr.New(apperr.CodeNoSession, "No OTP request found. Please login again.")
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read OTP session: %w", err)
		}
		return sess, nil
	}

	all, err := s.sessions.FindByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to read OTP sessions: %w", err)
	}
	if len(all) == 0 {
		return nil, apperr.New(apperr.CodeNoSession, "No OTP request found. Please login again.")
	}

	var live []*models.OTPSession
	for _, sess := range all {
		if !sess.Expired(now) {
			live = append(live, sess)
		}
	}
	switch len(live) {
	case 0:
		// only expired sessions; the caller deletes the one it reports on
		return all[0], nil
	case 1:
		return live[0], nil
	default:
		return nil, apperr.Validation("OTP requests are pending in several offices, please specify the office")
	}
}

func (s *OTPService) discard(ctx context.Context, key models.SessionKey) {
	if err := s.sessions.Delete(ctx, key); err != nil {
		s.logger.WithError(err).WithField("user_id", key.UserID).Warn("Failed to delete OTP session")
	}
}

func (s *OTPService) lock(key models.SessionKey) func() {
	mu := &s.locks[lockStripe(key)]
	mu.Lock()
	return mu.Unlock
}

func lockStripe(key models.SessionKey) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key.Office))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(key.UserID))
	return h.Sum32() % lockStripes
}

func (s *OTPService) generateRandomOTP(length int) (string, error) {
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + num.Int64()))
	}
	return b.String(), nil
}

// passwordMatches accepts bcrypt hashes and the legacy plaintext passwords
// still stored by some offices.
func passwordMatches(stored, given string) bool {
	if strings.HasPrefix(stored, "$2a$") || strings.HasPrefix(stored, "$2b$") || strings.HasPrefix(stored, "$2y$") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(given)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(given)) == 1
}

func outcomeOf(err error) string {
	switch apperr.CodeOf(err) {
	case apperr.CodeNoSession:
		return "no_session"
	case apperr.CodeValidation:
		return "ambiguous"
	default:
		return "error"
	}
}
