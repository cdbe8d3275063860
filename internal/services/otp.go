package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/testschool/testschool-backend/internal/logger"
	"github.com/testschool/testschool-backend/internal/utils"
)

// OTPService keeps one-time verification codes in Redis. The code itself is
// never stored, only its sha256 hex; expiry rides on the key TTL and a
// successful consume deletes the key.
type OTPService interface {
	Store(ctx context.Context, email, code string) (time.Duration, error)
	Consume(ctx context.Context, email, code string) error
}

type otpService struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

func NewOTPService(log *logger.Logger) (OTPService, error) {
	serviceLog := log.With("service", "OTPService")
	addr := strings.TrimSpace(utils.GetEnv("REDIS_ADDR", "localhost:6379", log))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	ttlMin := utils.GetEnvAsInt("OTP_TTL_MIN", 10, log)

	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		serviceLog.Warn("Redis ping failed (continuing)", "addr", addr, "error", err)
	}
	return &otpService{
		log: serviceLog,
		rdb: rdb,
		ttl: time.Duration(ttlMin) * time.Minute,
	}, nil
}

func otpKey(email string) string {
	return "otp:" + strings.ToLower(strings.TrimSpace(email))
}

func (os *otpService) Store(ctx context.Context, email, code string) (time.Duration, error) {
	if err := os.rdb.Set(ctx, otpKey(email), HashToken(code), os.ttl).Err(); err != nil {
		return 0, err
	}
	return os.ttl, nil
}

func (os *otpService) Consume(ctx context.Context, email, code string) error {
	key := otpKey(email)
	stored, err := os.rdb.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return ErrNoOTP
	}
	if err != nil {
		return fmt.Errorf("Failed to fetch OTP: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(HashToken(code))) != 1 {
		return ErrInvalidOTP
	}
	if err := os.rdb.Del(ctx, key).Err(); err != nil {
		os.log.Warn("Failed to delete consumed OTP", "error", err)
	}
	return nil
}
