package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/testschool/testschool-backend/internal/repos"
	"github.com/testschool/testschool-backend/internal/repos/testutil"
	"github.com/testschool/testschool-backend/internal/requestdata"
	"github.com/testschool/testschool-backend/internal/types"
)

// memoryOTPService is an in-process stand-in for the Redis-backed store.
type memoryOTPService struct {
	mu    sync.Mutex
	codes map[string]string
}

func newMemoryOTPService() *memoryOTPService {
	return &memoryOTPService{codes: map[string]string{}}
}

func (m *memoryOTPService) Store(ctx context.Context, email, code string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[strings.ToLower(email)] = code
	return 10 * time.Minute, nil
}

func (m *memoryOTPService) Consume(ctx context.Context, email, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.codes[strings.ToLower(email)]
	if !ok {
		return ErrNoOTP
	}
	if stored != code {
		return ErrInvalidOTP
	}
	delete(m.codes, strings.ToLower(email))
	return nil
}

func (m *memoryOTPService) lastCode(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[strings.ToLower(email)]
}

type sentMail struct {
	To      string
	Subject string
	Body    string
}

type memoryMailService struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *memoryMailService) Send(ctx context.Context, to, subject, htmlBody string, attachments []Attachment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, Body: htmlBody})
	return nil
}

func (m *memoryMailService) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type authFixture struct {
	service AuthService
	otp     *memoryOTPService
	mail    *memoryMailService
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	gormDB := testutil.NewTestDB(t)
	log := testutil.NewTestLogger(t)
	otp := newMemoryOTPService()
	mail := &memoryMailService{}
	service := NewAuthService(
		gormDB,
		log,
		repos.NewUserRepo(gormDB, log),
		otp,
		mail,
		"access-secret",
		"refresh-secret",
		15*time.Minute,
		7*24*time.Hour,
		"http://localhost:3000",
	)
	return &authFixture{service: service, otp: otp, mail: mail}
}

func TestRegisterVerifyLogin(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	email := "student@example.com"

	if err := f.service.RegisterUser(ctx, "Student", email, "Passw0rd!"); err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	if f.mail.count() != 1 {
		t.Fatalf("mails sent = %d, want 1", f.mail.count())
	}

	// Unverified accounts cannot log in.
	if _, err := f.service.LoginUser(ctx, email, "Passw0rd!"); err != ErrEmailNotVerified {
		t.Fatalf("login before verify: err = %v, want ErrEmailNotVerified", err)
	}

	code := f.otp.lastCode(email)
	if len(code) != 6 {
		t.Fatalf("OTP code = %q, want 6 digits", code)
	}
	if err := f.service.VerifyOTP(ctx, email, code); err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}

	result, err := f.service.LoginUser(ctx, email, "Passw0rd!")
	if err != nil {
		t.Fatalf("LoginUser: %v", err)
	}
	if result.AccessToken == "" || result.RefreshToken == "" {
		t.Fatal("login returned empty tokens")
	}
	if result.User.Role != types.RoleStudent {
		t.Errorf("role = %s, want %s", result.User.Role, types.RoleStudent)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	if err := f.service.RegisterUser(ctx, "A", "dup@example.com", "pw1234"); err != nil {
		t.Fatalf("first RegisterUser: %v", err)
	}
	if err := f.service.RegisterUser(ctx, "B", "Dup@Example.com", "pw5678"); err != ErrEmailInUse {
		t.Fatalf("second RegisterUser: err = %v, want ErrEmailInUse", err)
	}
}

func TestVerifyOTPRejectsWrongCode(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	email := "otp@example.com"

	if err := f.service.RegisterUser(ctx, "O", email, "pw1234"); err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	if err := f.service.VerifyOTP(ctx, email, "000000"); err != ErrInvalidOTP {
		t.Fatalf("err = %v, want ErrInvalidOTP", err)
	}
	if err := f.service.VerifyOTP(ctx, "unknown@example.com", "111111"); err != ErrNoOTP {
		t.Fatalf("err = %v, want ErrNoOTP", err)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	email := "wrongpw@example.com"
	registerAndVerify(t, f, email, "correct-pw")

	if _, err := f.service.LoginUser(ctx, email, "bad-pw"); err != ErrInvalidCredentials {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
	if _, err := f.service.LoginUser(ctx, "ghost@example.com", "whatever"); err != ErrInvalidCredentials {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestRefreshAndLogout(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	email := "refresh@example.com"
	registerAndVerify(t, f, email, "pw1234")

	login, err := f.service.LoginUser(ctx, email, "pw1234")
	if err != nil {
		t.Fatalf("LoginUser: %v", err)
	}

	access, err := f.service.RefreshUser(ctx, login.RefreshToken)
	if err != nil {
		t.Fatalf("RefreshUser: %v", err)
	}
	if access == "" {
		t.Fatal("refresh returned empty access token")
	}

	if _, err := f.service.RefreshUser(ctx, "not-a-token"); err != ErrInvalidToken {
		t.Fatalf("garbage refresh: err = %v, want ErrInvalidToken", err)
	}

	if err := f.service.LogoutUser(ctx, login.RefreshToken); err != nil {
		t.Fatalf("LogoutUser: %v", err)
	}
	// The stored hash is gone, so the old refresh token is dead.
	if _, err := f.service.RefreshUser(ctx, login.RefreshToken); err != ErrInvalidToken {
		t.Fatalf("refresh after logout: err = %v, want ErrInvalidToken", err)
	}
}

func TestSetContextFromToken(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	email := "ctx@example.com"
	registerAndVerify(t, f, email, "pw1234")

	login, err := f.service.LoginUser(ctx, email, "pw1234")
	if err != nil {
		t.Fatalf("LoginUser: %v", err)
	}

	authed, err := f.service.SetContextFromToken(ctx, login.AccessToken)
	if err != nil {
		t.Fatalf("SetContextFromToken: %v", err)
	}
	rd := requestdata.GetRequestData(authed)
	if rd == nil {
		t.Fatal("no request data in context")
	}
	if rd.UserID != login.User.ID {
		t.Errorf("userID = %s, want %s", rd.UserID, login.User.ID)
	}
	if rd.Role != types.RoleStudent {
		t.Errorf("role = %s, want %s", rd.Role, types.RoleStudent)
	}

	// A refresh token is not an access token.
	if _, err := f.service.SetContextFromToken(ctx, login.RefreshToken); err != ErrInvalidToken {
		t.Fatalf("refresh as access: err = %v, want ErrInvalidToken", err)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	email := "reset@example.com"
	registerAndVerify(t, f, email, "old-pw")

	if err := f.service.ForgotPassword(ctx, email); err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	// Unknown addresses are silently accepted.
	if err := f.service.ForgotPassword(ctx, "ghost@example.com"); err != nil {
		t.Fatalf("ForgotPassword unknown: %v", err)
	}

	f.mail.mu.Lock()
	lastBody := f.mail.sent[len(f.mail.sent)-1].Body
	f.mail.mu.Unlock()
	token := extractResetToken(t, lastBody)

	if err := f.service.ResetPassword(ctx, token, "new-pw"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if _, err := f.service.LoginUser(ctx, email, "old-pw"); err != ErrInvalidCredentials {
		t.Fatalf("old password: err = %v, want ErrInvalidCredentials", err)
	}
	if _, err := f.service.LoginUser(ctx, email, "new-pw"); err != nil {
		t.Fatalf("new password login: %v", err)
	}

	if err := f.service.ResetPassword(ctx, token, "again"); err != ErrInvalidToken {
		t.Fatalf("token reuse: err = %v, want ErrInvalidToken", err)
	}
}

func registerAndVerify(t *testing.T, f *authFixture, email, password string) {
	t.Helper()
	ctx := context.Background()
	if err := f.service.RegisterUser(ctx, "User", email, password); err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	if err := f.service.VerifyOTP(ctx, email, f.otp.lastCode(email)); err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}
}

func extractResetToken(t *testing.T, body string) string {
	t.Helper()
	marker := "token="
	idx := strings.Index(body, marker)
	if idx < 0 {
		t.Fatalf("no reset token in mail body %q", body)
	}
	rest := body[idx+len(marker):]
	if end := strings.IndexAny(rest, `"<&`); end >= 0 {
		rest = rest[:end]
	}
	if len(rest) != 64 {
		t.Fatalf("reset token %q has length %d, want 64", rest, len(rest))
	}
	return rest
}
