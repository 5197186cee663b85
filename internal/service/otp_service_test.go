package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swapsoft/pwdbudget/internal/apperr"
	"github.com/swapsoft/pwdbudget/internal/config"
	"github.com/swapsoft/pwdbudget/internal/models"
	"github.com/swapsoft/pwdbudget/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

const (
	officeA = "P_W_Division_Akola"
	officeB = "P_W_Division_Washim"
)

type otpFixture struct {
	svc    *OTPService
	store  *repository.MemorySessionStore
	sender *recordingSender
	users  *fakeUsers
	clock  *clock
	tokens *JWTService
}

func newOTPFixture(t *testing.T, maxAttempts int) *otpFixture {
	t.Helper()

	users := newFakeUsers()
	users.add(models.Credential{UserID: "EE01", Name: "R. Patil", Password: "secret", Post: "Executive Engineer", Mobile: "9876543210", Office: officeA})
	users.add(models.Credential{UserID: "EE01", Name: "R. Patil", Password: "secret", Post: "Executive Engineer", Mobile: "9876543210", Office: officeB})

	f := &otpFixture{
		store:  repository.NewMemorySessionStore(),
		sender: &recordingSender{},
		users:  users,
		clock:  &clock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)},
		tokens: newTestJWTService(t),
	}
	cfg := &config.OTPConfig{
		Length:      6,
		Expiry:      120000 * time.Millisecond,
		MaxAttempts: maxAttempts,
		BcryptCost:  bcrypt.MinCost,
	}
	f.svc = NewOTPService(users, f.store, f.sender, f.tokens, cfg, testMetrics(), testLogger())
	f.svc.nowF = f.clock.Now
	return f
}

func (f *otpFixture) storedSessions(t *testing.T, userID string) int {
	t.Helper()
	all, err := f.store.FindByUser(context.Background(), userID)
	require.NoError(t, err)
	return len(all)
}

func TestOTPService_LoginThenVerify(t *testing.T) {
	f := newOTPFixture(t, 0)
	ctx := context.Background()

	res, err := f.svc.Login(ctx, "EE01", "secret", officeA)
	require.NoError(t, err)
	assert.Equal(t, "EE01", res.UserID)
	assert.Equal(t, "R. Patil", res.Name)
	assert.Equal(t, "Executive Engineer", res.Post)
	assert.Equal(t, "******3210", res.MaskedMobile)
	assert.True(t, res.SMSSent)

	sent := f.sender.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "9876543210", sent[0].Mobile)
	code := f.sender.lastCode(t)
	assert.Equal(t, fmt.Sprintf(loginMessage, code), sent[0].Message)

	stored, err := f.store.Get(ctx, models.SessionKey{Office: officeA, UserID: "EE01"})
	require.NoError(t, err)
	assert.NotEqual(t, code, stored.CodeHash, "the code is stored hashed")
	assert.Equal(t, f.clock.Now().Add(2*time.Minute), stored.ExpiresAt)

	v, err := f.svc.VerifyOTP(ctx, "EE01", code, officeA)
	require.NoError(t, err)
	assert.Equal(t, "Executive Engineer", v.Post)
	assert.Equal(t, officeA, v.Office)
	require.NotNil(t, v.Token)

	claims, err := f.tokens.VerifyToken(v.Token.Token)
	require.NoError(t, err)
	assert.Equal(t, "EE01", claims.UserID)
	assert.Equal(t, officeA, claims.Office)

	_, err = f.svc.VerifyOTP(ctx, "EE01", code, officeA)
	assert.ErrorIs(t, err, apperr.ErrNoSession, "a code verifies exactly once")
}

func TestOTPService_VerifyAfterExpiry(t *testing.T) {
	f := newOTPFixture(t, 0)
	ctx := context.Background()

	_, err := f.svc.Login(ctx, "EE01", "secret", officeA)
	require.NoError(t, err)
	code := f.sender.lastCode(t)

	f.clock.Advance(121 * time.Second)

	_, err = f.svc.VerifyOTP(ctx, "EE01", code, officeA)
	assert.ErrorIs(t, err, apperr.ErrExpired)

	_, err = f.svc.VerifyOTP(ctx, "EE01", code, officeA)
	assert.ErrorIs(t, err, apperr.ErrNoSession, "an expired session is deleted")
}

func TestOTPService_VerifyAtExpiryBoundary(t *testing.T) {
	f := newOTPFixture(t, 0)
	ctx := context.Background()

	_, err := f.svc.Login(ctx, "EE01", "secret", officeA)
	require.NoError(t, err)
	code := f.sender.lastCode(t)

	f.clock.Advance(120 * time.Second)

	_, err = f.svc.VerifyOTP(ctx, "EE01", code, officeA)
	assert.NoError(t, err)
}

func TestOTPService_WrongCodeKeepsSession(t *testing.T) {
	f := newOTPFixture(t, 0)
	ctx := context.Background()

	_, err := f.svc.Login(ctx, "EE01", "secret", officeA)
	require.NoError(t, err)
	code := f.sender.lastCode(t)

	for i := 0; i < 5; i++ {
		_, err = f.svc.VerifyOTP(ctx, "EE01", wrongCode(code), officeA)
		assert.ErrorIs(t, err, apperr.ErrInvalidOTP)
	}

	_, err = f.svc.VerifyOTP(ctx, "EE01", code, officeA)
	assert.NoError(t, err, "attempts are unlimited by default")
}

func TestOTPService_MaxAttempts(t *testing.T) {
	f := newOTPFixture(t, 2)
	ctx := context.Background()

	_, err := f.svc.Login(ctx, "EE01", "secret", officeA)
	require.NoError(t, err)
	code := f.sender.lastCode(t)

	for i := 0; i < 2; i++ {
		_, err = f.svc.VerifyOTP(ctx, "EE01", wrongCode(code), officeA)
		assert.ErrorIs(t, err, apperr.ErrInvalidOTP)
	}

	_, err = f.svc.VerifyOTP(ctx, "EE01", code, officeA)
	assert.ErrorIs(t, err, apperr.ErrTooManyAttempts)

	_, err = f.svc.VerifyOTP(ctx, "EE01", code, officeA)
	assert.ErrorIs(t, err, apperr.ErrNoSession)
}

func TestOTPService_ResendReplacesCode(t *testing.T) {
	f := newOTPFixture(t, 0)
	ctx := context.Background()

	_, err := f.svc.Login(ctx, "EE01", "secret", officeA)
	require.NoError(t, err)
	first := f.sender.lastCode(t)

	res, err := f.svc.ResendOTP(ctx, "EE01", officeA)
	require.NoError(t, err)
	assert.True(t, res.SMSSent)
	second := f.sender.lastCode(t)
	assert.Equal(t, fmt.Sprintf(resendMessage, second), f.sender.Sent()[1].Message)
	assert.Equal(t, 1, f.storedSessions(t, "EE01"))

	if first != second {
		_, err = f.svc.VerifyOTP(ctx, "EE01", first, officeA)
		assert.ErrorIs(t, err, apperr.ErrInvalidOTP, "the replaced code no longer verifies")
	}

	_, err = f.svc.VerifyOTP(ctx, "EE01", second, officeA)
	assert.NoError(t, err)
}

func TestOTPService_ResendRestartsExpiry(t *testing.T) {
	f := newOTPFixture(t, 0)
	ctx := context.Background()

	_, err := f.svc.Login(ctx, "EE01", "secret", officeA)
	require.NoError(t, err)

	f.clock.Advance(100 * time.Second)
	_, err = f.svc.ResendOTP(ctx, "EE01", officeA)
	require.NoError(t, err)
	code := f.sender.lastCode(t)

	f.clock.Advance(100 * time.Second)
	_, err = f.svc.VerifyOTP(ctx, "EE01", code, officeA)
	assert.NoError(t, err)
}

func TestOTPService_LoginFailures(t *testing.T) {
	f := newOTPFixture(t, 0)
	ctx := context.Background()

	tests := []struct {
		name                     string
		userID, password, office string
		want                     error
		message                  string
	}{
		{"missing password", "EE01", "", officeA, apperr.ErrValidation, "User ID, password, and office are required"},
		{"missing office", "EE01", "secret", " ", apperr.ErrValidation, "User ID, password, and office are required"},
		{"unknown office", "EE01", "secret", "Nowhere", apperr.ErrUnknownTenant, ""},
		{"unknown user", "XX99", "secret", officeA, apperr.ErrUserNotFound, "Invalid credentials - Please Verify your office " + officeA},
		{"wrong password", "EE01", "nope", officeA, apperr.ErrInvalidCredential, "Invalid password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Login(ctx, tt.userID, tt.password, tt.office)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			if tt.message != "" {
				assert.Equal(t, tt.message, apperr.MessageOf(err))
			}
		})
	}

	assert.Empty(t, f.sender.Sent())
	assert.Equal(t, 0, f.storedSessions(t, "EE01"))
}

func TestOTPService_LoginPropagatesDatabaseFailure(t *testing.T) {
	f := newOTPFixture(t, 0)
	f.users.err = apperr.Wrap(apperr.CodeDatabaseUnavailable, fmt.Errorf("dial tcp: refused"), "query failed for office "+officeA)

	_, err := f.svc.Login(context.Background(), "EE01", "secret", officeA)
	assert.ErrorIs(t, err, apperr.ErrDatabaseUnavailable)
}

func TestOTPService_SMSFailureKeepsSession(t *testing.T) {
	f := newOTPFixture(t, 0)
	f.sender.fail = map[string]bool{"9876543210": true}
	ctx := context.Background()

	res, err := f.svc.Login(ctx, "EE01", "secret", officeA)
	require.NoError(t, err)
	assert.False(t, res.SMSSent)
	assert.Equal(t, 1, f.storedSessions(t, "EE01"))
}

func TestOTPService_OfficesAreIndependent(t *testing.T) {
	f := newOTPFixture(t, 0)
	ctx := context.Background()

	_, err := f.svc.Login(ctx, "EE01", "secret", officeA)
	require.NoError(t, err)
	codeA := f.sender.lastCode(t)

	_, err = f.svc.Login(ctx, "EE01", "secret", officeB)
	require.NoError(t, err)
	codeB := f.sender.lastCode(t)

	assert.Equal(t, 2, f.storedSessions(t, "EE01"))

	v, err := f.svc.VerifyOTP(ctx, "EE01", codeA, officeA)
	require.NoError(t, err)
	assert.Equal(t, officeA, v.Office)

	v, err = f.svc.VerifyOTP(ctx, "EE01", codeB, officeB)
	require.NoError(t, err)
	assert.Equal(t, officeB, v.Office)
}

func TestOTPService_VerifyWithoutOffice(t *testing.T) {
	f := newOTPFixture(t, 0)
	ctx := context.Background()

	_, err := f.svc.VerifyOTP(ctx, "EE01", "123456", "")
	assert.ErrorIs(t, err, apperr.ErrNoSession)

	_, err = f.svc.Login(ctx, "EE01", "secret", officeA)
	require.NoError(t, err)
	codeA := f.sender.lastCode(t)

	_, err = f.svc.Login(ctx, "EE01", "secret", officeB)
	require.NoError(t, err)

	_, err = f.svc.VerifyOTP(ctx, "EE01", codeA, "")
	assert.ErrorIs(t, err, apperr.ErrValidation, "two live sessions are ambiguous")

	// let office B's session lapse; office A's is re-issued and stays live
	f.clock.Advance(90 * time.Second)
	_, err = f.svc.ResendOTP(ctx, "EE01", officeA)
	require.NoError(t, err)
	codeA = f.sender.lastCode(t)
	f.clock.Advance(60 * time.Second)

	v, err := f.svc.VerifyOTP(ctx, "EE01", codeA, "")
	require.NoError(t, err)
	assert.Equal(t, officeA, v.Office)
}

func TestOTPService_VerifyValidation(t *testing.T) {
	f := newOTPFixture(t, 0)

	_, err := f.svc.VerifyOTP(context.Background(), "EE01", "", officeA)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, "User ID and OTP are required", apperr.MessageOf(err))
}

func TestOTPService_ConcurrentVerifySucceedsOnce(t *testing.T) {
	f := newOTPFixture(t, 0)
	ctx := context.Background()

	_, err := f.svc.Login(ctx, "EE01", "secret", officeA)
	require.NoError(t, err)
	code := f.sender.lastCode(t)

	var ok int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.VerifyOTP(ctx, "EE01", code, officeA); err == nil {
				atomic.AddInt32(&ok, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok)
}

func TestLockStripe_FixedSet(t *testing.T) {
	key := models.SessionKey{Office: officeA, UserID: "EE01"}
	assert.Equal(t, lockStripe(key), lockStripe(key))

	seen := make(map[uint32]bool)
	for i := 0; i < 1000; i++ {
		stripe := lockStripe(models.SessionKey{Office: officeA, UserID: fmt.Sprintf("U%04d", i)})
		assert.Less(t, stripe, uint32(lockStripes))
		seen[stripe] = true
	}
	assert.Greater(t, len(seen), lockStripes/2)
}

func TestOTPService_Sweep(t *testing.T) {
	f := newOTPFixture(t, 0)
	ctx := context.Background()

	_, err := f.svc.Login(ctx, "EE01", "secret", officeA)
	require.NoError(t, err)

	n, err := f.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// expired but retained: a late verify still says the code expired
	f.clock.Advance(3 * time.Minute)
	n, err = f.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	_, err = f.svc.VerifyOTP(ctx, "EE01", f.sender.lastCode(t), officeA)
	assert.ErrorIs(t, err, apperr.ErrExpired)

	_, err = f.svc.Login(ctx, "EE01", "secret", officeB)
	require.NoError(t, err)
	f.clock.Advance(5 * time.Minute)
	n, err = f.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, f.storedSessions(t, "EE01"))
}

func TestOTPService_Profile(t *testing.T) {
	f := newOTPFixture(t, 0)

	p, err := f.svc.Profile(context.Background(), "EE01", officeA)
	require.NoError(t, err)
	assert.Equal(t, "R. Patil", p.Name)

	_, err = f.svc.Profile(context.Background(), "EE01", "")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestPasswordMatches(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)

	assert.True(t, passwordMatches(string(hash), "secret"))
	assert.False(t, passwordMatches(string(hash), "Secret"))
	assert.True(t, passwordMatches("plain", "plain"))
	assert.False(t, passwordMatches("plain", "plain "))
	assert.False(t, passwordMatches("", "x"))
}

func TestGenerateRandomOTP(t *testing.T) {
	s := &OTPService{}
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := s.generateRandomOTP(6)
		require.NoError(t, err)
		assert.Regexp(t, `^\d{6}$`, code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 40)
}

func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}
