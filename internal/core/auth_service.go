package core

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"clearr.app/backend/internal/store"
	"clearr.app/backend/internal/utils"
)

// PhoneVerifier sends and checks one-time codes for an E.164 phone number.
type PhoneVerifier interface {
	SendCode(ctx context.Context, phone string) error
	CheckCode(ctx context.Context, phone, code string) (bool, error)
}

// TokenIssuer signs session tokens for an authenticated user.
type TokenIssuer interface {
	Issue(userID, phoneNumber string) (string, error)
}

type AuthService struct {
	store    store.Store
	verifier PhoneVerifier
	tokens   TokenIssuer
	logger   *zap.Logger
	now      func() time.Time
}

func NewAuthService(s store.Store, verifier PhoneVerifier, tokens TokenIssuer, logger *zap.Logger, now func() time.Time) *AuthService {
	if now == nil {
		now = time.Now
	}
	return &AuthService{store: s, verifier: verifier, tokens: tokens, logger: logger, now: now}
}

// SignupDetails are required only when the phone number is new.
type SignupDetails struct {
	FullName string
	Email    string
}

type AuthResult struct {
	User      *store.User `json:"user"`
	Token     string      `json:"token"`
	IsNewUser bool        `json:"isNewUser"`
}

func (s *AuthService) SendOTP(ctx context.Context, phoneNumber string) error {
	if !utils.ValidPhoneNumber(phoneNumber) {
		return newError(ErrValidation, "Invalid phone number format")
	}
	phone := utils.NormalizePhoneNumber(phoneNumber)
	if err := s.verifier.SendCode(ctx, phone); err != nil {
		if errors.Is(err, ErrRateLimited) {
			return newError(ErrRateLimited, "Please wait before requesting another code")
		}
		s.logger.Error("failed to send verification code", zap.String("phone", phone), zap.Error(err))
		return wrapError(ErrDependency, "Failed to send verification code", err)
	}
	return nil
}

// VerifyOTP checks the code and logs the user in, creating the account on
// first verification.
func (s *AuthService) VerifyOTP(ctx context.Context, phoneNumber, code string, signup SignupDetails) (*AuthResult, error) {
	if !utils.ValidPhoneNumber(phoneNumber) {
		return nil, newError(ErrValidation, "Invalid phone number format")
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, newError(ErrValidation, "Verification code is required")
	}
	phone := utils.NormalizePhoneNumber(phoneNumber)

	ok, err := s.verifier.CheckCode(ctx, phone, code)
	if err != nil {
		s.logger.Error("failed to check verification code", zap.String("phone", phone), zap.Error(err))
		return nil, wrapError(ErrDependency, "Failed to verify code", err)
	}
	if !ok {
		return nil, newError(ErrValidation, "Invalid verification code")
	}

	user, err := s.store.GetUserByPhone(ctx, phone)
	if err != nil {
		return nil, storeError(err, "User not found")
	}

	isNew := false
	switch {
	case user == nil:
		if user, err = s.signup(ctx, phone, signup); err != nil {
			return nil, err
		}
		isNew = true
	case !user.IsActive():
		return nil, newError(ErrForbidden, "Account has been deactivated")
	}

	token, err := s.tokens.Issue(user.ID, phone)
	if err != nil {
		return nil, wrapError(ErrDependency, "Authentication failed", err)
	}
	s.logger.Info("user authenticated", zap.String("user_id", user.ID), zap.Bool("new_user", isNew))
	return &AuthResult{User: user, Token: token, IsNewUser: isNew}, nil
}

func (s *AuthService) signup(ctx context.Context, phone string, in SignupDetails) (*store.User, error) {
	name := strings.TrimSpace(in.FullName)
	if name == "" {
		return nil, newError(ErrValidation, "Full name required for new account")
	}
	if utf8.RuneCountInString(name) < 2 {
		return nil, newError(ErrValidation, "Full name must be at least 2 characters")
	}
	user := &store.User{
		PhoneNumber:         phone,
		FullName:            name,
		NotificationEnabled: true,
		PreferredMode:       ModePersonal,
		IsVerified:          true,
		CreatedAt:           s.now().UTC(),
	}
	if email := strings.TrimSpace(in.Email); email != "" {
		if !utils.ValidEmail(email) {
			return nil, newError(ErrValidation, "Invalid email format")
		}
		user.Email = &email
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, wrapError(ErrValidation, "Phone number or email already registered", err)
		}
		return nil, storeError(err, "User not found")
	}
	return user, nil
}
