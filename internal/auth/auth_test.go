package auth

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/digital-twin-risk-engine/internal/domain"
)

type captureSender struct {
	codes map[string]string
	err   error
}

func (c *captureSender) Send(ctx context.Context, username, code string) error {
	if c.err != nil {
		return c.err
	}
	c.codes[username] = code
	return nil
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return logger
}

func setupService(t *testing.T) (*Service, *captureSender, *fakeClock) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	sender := &captureSender{codes: map[string]string{}}
	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	svc, err := NewService(domain.AuthConfig{
		Users:         map[string]string{"clinician": string(hash)},
		CodeTTL:       2 * time.Minute,
		MaxAttempts:   3,
		RatePerMinute: 6,
	}, sender, testLogger(), WithClock(clock.Now))
	require.NoError(t, err)
	return svc, sender, clock
}

func requireAuthError(t *testing.T, err error, reason string) {
	t.Helper()
	var authErr *domain.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Contains(t, authErr.Reason, reason)
	assert.Equal(t, domain.ErrCodeAuth, domain.ErrorCode(err))
}

func TestNewService_Validation(t *testing.T) {
	_, err := NewService(domain.AuthConfig{}, &captureSender{}, testLogger())
	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)

	_, err = NewService(domain.AuthConfig{Users: map[string]string{"a": "plain"}}, &captureSender{}, testLogger())
	require.ErrorAs(t, err, &cfgErr)

	_, err = NewService(domain.AuthConfig{Users: map[string]string{"a": "x"}}, nil, testLogger())
	require.ErrorAs(t, err, &cfgErr)
}

func TestService_LoginFlow(t *testing.T) {
	svc, sender, clock := setupService(t)
	ctx := context.Background()

	challenge, err := svc.Begin(ctx, "clinician", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "clinician", challenge.Username)
	assert.Equal(t, clock.t.Add(2*time.Minute), challenge.ExpiresAt)

	code := sender.codes["clinician"]
	require.Len(t, code, codeDigits)

	session, err := svc.Verify(ctx, challenge.ID, code)
	require.NoError(t, err)
	assert.Equal(t, "clinician", session.Username)
	assert.NotEmpty(t, session.ID)

	// consumed
	_, err = svc.Verify(ctx, challenge.ID, code)
	requireAuthError(t, err, "unknown")
}

func TestService_Begin_UsernameIsCaseInsensitive(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	sender := &captureSender{codes: map[string]string{}}
	svc, err := NewService(domain.AuthConfig{
		Users: map[string]string{"Admin": string(hash)},
	}, sender, testLogger())
	require.NoError(t, err)

	for _, username := range []string{"Admin", "admin", " ADMIN "} {
		challenge, err := svc.Begin(context.Background(), username, "s3cret")
		require.NoError(t, err, username)
		assert.Equal(t, "admin", challenge.Username)
	}
	assert.Contains(t, sender.codes, "admin")
}

func TestService_Begin_RejectsBadCredentials(t *testing.T) {
	svc, sender, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.Begin(ctx, "clinician", "wrong")
	requireAuthError(t, err, "invalid username or password")

	_, err = svc.Begin(ctx, "intruder", "s3cret")
	requireAuthError(t, err, "invalid username or password")

	assert.Empty(t, sender.codes)
}

func TestService_Verify_ExpiredCode(t *testing.T) {
	svc, sender, clock := setupService(t)
	ctx := context.Background()

	challenge, err := svc.Begin(ctx, "clinician", "s3cret")
	require.NoError(t, err)

	clock.Advance(2*time.Minute + time.Second)
	_, err = svc.Verify(ctx, challenge.ID, sender.codes["clinician"])
	requireAuthError(t, err, "expired")
}

func TestService_Verify_LocksAfterMaxAttempts(t *testing.T) {
	svc, sender, _ := setupService(t)
	ctx := context.Background()

	challenge, err := svc.Begin(ctx, "clinician", "s3cret")
	require.NoError(t, err)
	code := sender.codes["clinician"]
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	_, err = svc.Verify(ctx, challenge.ID, wrong)
	requireAuthError(t, err, "invalid one-time code")
	_, err = svc.Verify(ctx, challenge.ID, wrong)
	requireAuthError(t, err, "invalid one-time code")
	_, err = svc.Verify(ctx, challenge.ID, wrong)
	requireAuthError(t, err, "too many invalid codes")

	_, err = svc.Verify(ctx, challenge.ID, code)
	requireAuthError(t, err, "unknown")
}

func TestService_Begin_RateLimited(t *testing.T) {
	svc, _, clock := setupService(t)
	ctx := context.Background()

	// burst equals max attempts
	for i := 0; i < 3; i++ {
		_, err := svc.Begin(ctx, "clinician", "wrong")
		requireAuthError(t, err, "invalid username or password")
	}
	_, err := svc.Begin(ctx, "clinician", "s3cret")
	requireAuthError(t, err, "too many login attempts")

	// 6 per minute refills one token every 10s
	clock.Advance(10 * time.Second)
	_, err = svc.Begin(ctx, "clinician", "s3cret")
	assert.NoError(t, err)
}

func TestService_Begin_SenderFailure(t *testing.T) {
	svc, sender, _ := setupService(t)
	sender.err = errors.New("outbox unavailable")

	_, err := svc.Begin(context.Background(), "clinician", "s3cret")

	require.Error(t, err)
	assert.Empty(t, svc.challenges)
}

func TestGenerateCode(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := generateCode()
		require.NoError(t, err)
		require.Len(t, code, codeDigits)
		assert.Empty(t, strings.Trim(code, "0123456789"))
	}
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("pw")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("pw")))
}

func TestFileCodeSender(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth", "outbox.log")
	sender := NewFileCodeSender(path)

	require.NoError(t, sender.Send(context.Background(), "clinician", "123456"))
	require.NoError(t, sender.Send(context.Background(), "clinician", "654321"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[1], "\tclinician\t654321"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}
