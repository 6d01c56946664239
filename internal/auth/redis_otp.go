package auth

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"clearr.app/backend/internal/core"
)

const (
	otpCodeLength      = 6
	otpCodeTTL         = 5 * time.Minute
	otpResendAfter     = time.Minute
	otpMaxAttempts     = 5
	otpOperationBudget = 2 * time.Second
)

// CodeDelivery hands a freshly generated code to the user.
type CodeDelivery func(ctx context.Context, phone, code string) error

// RedisOTPVerifier keeps hashed one-time codes in Redis and delivers
// them through a pluggable channel. Used when no SMS provider is
// configured.
type RedisOTPVerifier struct {
	client      redis.UniversalClient
	keyPrefix   string
	codeTTL     time.Duration
	resendAfter time.Duration
	maxAttempts int
	deliver     CodeDelivery
	now         func() time.Time
}

type otpChallenge struct {
	Phone     string    `json:"phone"`
	CodeHash  string    `json:"codeHash"`
	ExpiresAt time.Time `json:"expiresAt"`
	Attempts  int       `json:"attempts"`
}

// NewRedisOTPVerifier logs the code when no delivery is supplied.
func NewRedisOTPVerifier(client redis.UniversalClient, logger *zap.Logger, deliver CodeDelivery) *RedisOTPVerifier {
	if deliver == nil {
		deliver = func(_ context.Context, phone, code string) error {
			logger.Info("verification code issued", zap.String("phone", MaskPhone(phone)), zap.String("code", code))
			return nil
		}
	}
	return &RedisOTPVerifier{
		client:      client,
		keyPrefix:   "clearr:auth:otp",
		codeTTL:     otpCodeTTL,
		resendAfter: otpResendAfter,
		maxAttempts: otpMaxAttempts,
		deliver:     deliver,
		now:         time.Now,
	}
}

func (v *RedisOTPVerifier) SendCode(ctx context.Context, phone string) error {
	ctx, cancel := context.WithTimeout(ctx, otpOperationBudget)
	defer cancel()

	resendKey := v.resendKey(phone)
	allowed, err := v.client.SetNX(ctx, resendKey, "1", v.resendAfter).Result()
	if err != nil {
		return err
	}
	if !allowed {
		return fmt.Errorf("%w: verification code recently sent", core.ErrRateLimited)
	}

	code, err := generateNumericCode(otpCodeLength)
	if err != nil {
		_ = v.client.Del(ctx, resendKey).Err()
		return fmt.Errorf("generate otp code: %w", err)
	}
	codeHash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		_ = v.client.Del(ctx, resendKey).Err()
		return fmt.Errorf("hash otp code: %w", err)
	}
	raw, err := json.Marshal(otpChallenge{
		Phone:     phone,
		CodeHash:  string(codeHash),
		ExpiresAt: v.now().UTC().Add(v.codeTTL),
	})
	if err != nil {
		_ = v.client.Del(ctx, resendKey).Err()
		return fmt.Errorf("marshal otp challenge: %w", err)
	}
	if err := v.client.Set(ctx, v.codeKey(phone), raw, v.codeTTL).Err(); err != nil {
		_ = v.client.Del(ctx, resendKey).Err()
		return err
	}
	if err := v.deliver(ctx, phone, code); err != nil {
		_ = v.client.Del(ctx, resendKey, v.codeKey(phone)).Err()
		return fmt.Errorf("deliver otp code: %w", err)
	}
	return nil
}

func (v *RedisOTPVerifier) CheckCode(ctx context.Context, phone, code string) (bool, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return false, nil
	}
	ctx, cancel := context.WithTimeout(ctx, otpOperationBudget)
	defer cancel()

	key := v.codeKey(phone)
	raw, err := v.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var challenge otpChallenge
	if err := json.Unmarshal(raw, &challenge); err != nil {
		return false, fmt.Errorf("unmarshal otp challenge: %w", err)
	}
	if challenge.Phone != phone || v.now().UTC().After(challenge.ExpiresAt) || challenge.Attempts >= v.maxAttempts {
		_ = v.client.Del(ctx, key).Err()
		return false, nil
	}
	if bcrypt.CompareHashAndPassword([]byte(challenge.CodeHash), []byte(code)) != nil {
		challenge.Attempts++
		if challenge.Attempts >= v.maxAttempts {
			_ = v.client.Del(ctx, key).Err()
			return false, nil
		}
		if updated, err := json.Marshal(challenge); err == nil {
			_ = v.client.Set(ctx, key, updated, redis.KeepTTL).Err()
		}
		return false, nil
	}
	if err := v.client.Del(ctx, key).Err(); err != nil {
		return false, err
	}
	return true, nil
}

func (v *RedisOTPVerifier) codeKey(phone string) string {
	return fmt.Sprintf("%s:code:%s", v.keyPrefix, phone)
}

func (v *RedisOTPVerifier) resendKey(phone string) string {
	return fmt.Sprintf("%s:resend:%s", v.keyPrefix, phone)
}

func generateNumericCode(length int) (string, error) {
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

// MaskPhone keeps the last four digits.
func MaskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}
