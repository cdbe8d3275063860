package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/testschool/testschool-backend/internal/logger"
	"github.com/testschool/testschool-backend/internal/repos"
	"github.com/testschool/testschool-backend/internal/requestdata"
	"github.com/testschool/testschool-backend/internal/types"
)

var (
	ErrEmailInUse         = fmt.Errorf("Email already in use")
	ErrInvalidCredentials = fmt.Errorf("Invalid credentials")
	ErrEmailNotVerified   = fmt.Errorf("Email not verified")
	ErrUserNotFound       = fmt.Errorf("User not found")
	ErrInvalidOTP         = fmt.Errorf("Invalid OTP")
	ErrOTPExpired         = fmt.Errorf("OTP expired")
	ErrNoOTP              = fmt.Errorf("No OTP found")
	ErrInvalidToken       = fmt.Errorf("Invalid token")
)

type JWTClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type LoginResult struct {
	User         *types.User
	AccessToken  string
	RefreshToken string
}

type AuthService interface {
	RegisterUser(ctx context.Context, name, email, password string) error
	ResendOTP(ctx context.Context, email string) error
	VerifyOTP(ctx context.Context, email, code string) error
	LoginUser(ctx context.Context, email, password string) (*LoginResult, error)
	RefreshUser(ctx context.Context, refreshToken string) (string, error)
	LogoutUser(ctx context.Context, refreshToken string) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, password string) error
	SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error)
	RefreshTTL() time.Duration
}

type authService struct {
	db               *gorm.DB
	log              *logger.Logger
	userRepo         repos.UserRepo
	otpService       OTPService
	mailService      MailService
	jwtAccessSecret  string
	jwtRefreshSecret string
	accessTTL        time.Duration
	refreshTTL       time.Duration
	clientOrigin     string
}

func NewAuthService(
	db *gorm.DB,
	log *logger.Logger,
	userRepo repos.UserRepo,
	otpService OTPService,
	mailService MailService,
	jwtAccessSecret string,
	jwtRefreshSecret string,
	accessTTL time.Duration,
	refreshTTL time.Duration,
	clientOrigin string,
) AuthService {
	return &authService{
		db:               db,
		log:              log.With("service", "AuthService"),
		userRepo:         userRepo,
		otpService:       otpService,
		mailService:      mailService,
		jwtAccessSecret:  jwtAccessSecret,
		jwtRefreshSecret: jwtRefreshSecret,
		accessTTL:        accessTTL,
		refreshTTL:       refreshTTL,
		clientOrigin:     clientOrigin,
	}
}

func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (as *authService) RegisterUser(ctx context.Context, name, email, password string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	exists, err := as.userRepo.EmailExists(ctx, nil, email)
	if err != nil {
		return fmt.Errorf("Failed to check email: %w", err)
	}
	if exists {
		return ErrEmailInUse
	}
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("Failed to hash password: %w", err)
	}
	user := &types.User{
		ID:           uuid.New(),
		Name:         strings.TrimSpace(name),
		Email:        email,
		PasswordHash: string(passwordHash),
		Role:         types.RoleStudent,
		IsVerified:   false,
	}
	if _, err := as.userRepo.Create(ctx, nil, []*types.User{user}); err != nil {
		return fmt.Errorf("Failed to create user: %w", err)
	}
	return as.sendOTP(ctx, email, "Verify your email")
}

func (as *authService) ResendOTP(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := as.userRepo.GetByEmail(ctx, nil, email)
	if err != nil {
		return fmt.Errorf("Failed to load user: %w", err)
	}
	if user == nil {
		return ErrUserNotFound
	}
	return as.sendOTP(ctx, email, "Your OTP code")
}

func (as *authService) sendOTP(ctx context.Context, email, subject string) error {
	code, err := generateOTPCode()
	if err != nil {
		return fmt.Errorf("Failed to generate OTP: %w", err)
	}
	ttl, err := as.otpService.Store(ctx, email, code)
	if err != nil {
		return fmt.Errorf("Failed to store OTP: %w", err)
	}
	body := fmt.Sprintf("<p>Your OTP is <b>%s</b>. Expires in %d minutes.</p>", code, int(ttl.Minutes()))
	if err := as.mailService.Send(ctx, email, subject, body, nil); err != nil {
		return fmt.Errorf("Failed to send OTP mail: %w", err)
	}
	return nil
}

func (as *authService) VerifyOTP(ctx context.Context, email, code string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := as.otpService.Consume(ctx, email, code); err != nil {
		return err
	}
	user, err := as.userRepo.GetByEmail(ctx, nil, email)
	if err != nil {
		return fmt.Errorf("Failed to load user: %w", err)
	}
	if user == nil {
		return ErrUserNotFound
	}
	user.IsVerified = true
	return as.userRepo.Save(ctx, nil, user)
}

func (as *authService) LoginUser(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := as.userRepo.GetByEmail(ctx, nil, email)
	if err != nil {
		return nil, fmt.Errorf("Failed to load user: %w", err)
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.IsVerified {
		return nil, ErrEmailNotVerified
	}
	accessToken, err := as.signToken(user, as.jwtAccessSecret, as.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("Failed to sign access token: %w", err)
	}
	refreshToken, err := as.signToken(user, as.jwtRefreshSecret, as.refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("Failed to sign refresh token: %w", err)
	}
	user.RefreshTokenHash = HashToken(refreshToken)
	if err := as.userRepo.Save(ctx, nil, user); err != nil {
		return nil, fmt.Errorf("Failed to persist refresh token hash: %w", err)
	}
	return &LoginResult{User: user, AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

func (as *authService) RefreshUser(ctx context.Context, refreshToken string) (string, error) {
	claims, err := as.parseToken(refreshToken, as.jwtRefreshSecret)
	if err != nil {
		return "", ErrInvalidToken
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return "", ErrInvalidToken
	}
	users, err := as.userRepo.GetByIDs(ctx, nil, []uuid.UUID{userID})
	if err != nil {
		return "", fmt.Errorf("Failed to load user: %w", err)
	}
	if len(users) == 0 {
		return "", ErrInvalidToken
	}
	user := users[0]
	if user.RefreshTokenHash == "" ||
		subtle.ConstantTimeCompare([]byte(user.RefreshTokenHash), []byte(HashToken(refreshToken))) != 1 {
		return "", ErrInvalidToken
	}
	return as.signToken(user, as.jwtAccessSecret, as.accessTTL)
}

func (as *authService) LogoutUser(ctx context.Context, refreshToken string) error {
	claims, err := as.parseToken(refreshToken, as.jwtRefreshSecret)
	if err != nil {
		return nil
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil
	}
	users, err := as.userRepo.GetByIDs(ctx, nil, []uuid.UUID{userID})
	if err != nil || len(users) == 0 {
		return nil
	}
	user := users[0]
	user.RefreshTokenHash = ""
	return as.userRepo.Save(ctx, nil, user)
}

func (as *authService) ForgotPassword(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := as.userRepo.GetByEmail(ctx, nil, email)
	if err != nil {
		return fmt.Errorf("Failed to load user: %w", err)
	}
	if user == nil {
		// Do not reveal whether the address exists.
		return nil
	}
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return fmt.Errorf("Failed to generate reset token: %w", err)
	}
	token := hex.EncodeToString(raw)
	user.RefreshTokenHash = HashToken(token)
	if err := as.userRepo.Save(ctx, nil, user); err != nil {
		return fmt.Errorf("Failed to persist reset token: %w", err)
	}
	resetLink := fmt.Sprintf("%s/auth/reset-password?token=%s", as.clientOrigin, token)
	body := fmt.Sprintf(`<p>Reset your password: <a href="%s">%s</a></p>`, resetLink, resetLink)
	if err := as.mailService.Send(ctx, email, "Password reset", body, nil); err != nil {
		return fmt.Errorf("Failed to send reset mail: %w", err)
	}
	return nil
}

func (as *authService) ResetPassword(ctx context.Context, token, password string) error {
	user, err := as.userRepo.GetByRefreshTokenHash(ctx, nil, HashToken(token))
	if err != nil {
		return fmt.Errorf("Failed to load user: %w", err)
	}
	if user == nil {
		return ErrInvalidToken
	}
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("Failed to hash password: %w", err)
	}
	user.PasswordHash = string(passwordHash)
	user.RefreshTokenHash = ""
	return as.userRepo.Save(ctx, nil, user)
}

func (as *authService) SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error) {
	claims, err := as.parseToken(tokenString, as.jwtAccessSecret)
	if err != nil {
		return ctx, ErrInvalidToken
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return ctx, ErrInvalidToken
	}
	rd := &requestdata.RequestData{
		TokenString: tokenString,
		UserID:      userID,
		Role:        types.Role(claims.Role),
	}
	return requestdata.WithRequestData(ctx, rd), nil
}

func (as *authService) RefreshTTL() time.Duration {
	return as.refreshTTL
}

func (as *authService) signToken(user *types.User, secret string, ttl time.Duration) (string, error) {
	claims := JWTClaims{
		Role: string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func (as *authService) parseToken(tokenString, secret string) (*JWTClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*JWTClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func generateOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
