// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// This file defines the AccountService: sign-up, login, profile maintenance,
// password resets and the admin dashboard. Passwords are stored as bcrypt
// hashes and sessions are stateless HS256 tokens.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/verbavid/verbavid-api/internal/cloud"
	"github.com/verbavid/verbavid-api/internal/core/model"
)

const (
	newUserWindow = 7 * 24 * time.Hour
	statsMonths   = 6
	monthLayout   = "2006-01"
)

// Claims is the token payload. Admin tokens also carry the role.
type Claims struct {
	UserID uint   `json:"id"`
	Email  string `json:"email"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// UserUpdate is a partial profile change. Nil fields are left untouched.
type UserUpdate struct {
	Name     *string
	Email    *string
	Password *string
}

// AccountService implements the account and admin operations.
type AccountService struct {
	Store AccountStore
	Auth  cloud.Auth
	now   func() time.Time
}

func NewAccountService(store AccountStore, auth cloud.Auth) *AccountService {
	return &AccountService{Store: store, Auth: auth, now: time.Now}
}

// WithClock replaces the time source, used by tests.
func (s *AccountService) WithClock(now func() time.Time) *AccountService {
	s.now = now
	return s
}

func (s *AccountService) hash(password string) (string, error) {
	out, err := bcrypt.GenerateFromPassword([]byte(password), s.Auth.BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(out), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Name length bounds, in characters, after surrounding spaces are trimmed.
const (
	MinNameLength = 3
	MaxNameLength = 30
)

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if n := utf8.RuneCountInString(name); n < MinNameLength || n > MaxNameLength {
		return "", ErrInvalidName
	}
	return name, nil
}

// Signup registers a regular user. A taken email yields ErrUserExists.
func (s *AccountService) Signup(ctx context.Context, name string, email string, password string) (*model.User, error) {
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}
	email = normalizeEmail(email)
	if _, err := s.Store.FindUserByEmail(ctx, email); err == nil {
		return nil, ErrUserExists
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}
	hash, err := s.hash(password)
	if err != nil {
		return nil, err
	}
	user := &model.User{Name: name, Email: email, PasswordHash: hash, Role: model.RoleUser}
	if err = s.Store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	slog.Info("user signed up", "user_id", user.ID)
	return user, nil
}

// authenticate checks the credentials. Unknown emails and wrong passwords are
// indistinguishable to the caller.
func (s *AccountService) authenticate(ctx context.Context, email string, password string) (*model.User, error) {
	user, err := s.Store.FindUserByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// Login returns the user and a token valid for Auth.UserTokenTTL.
func (s *AccountService) Login(ctx context.Context, email string, password string) (*model.User, string, error) {
	user, err := s.authenticate(ctx, email, password)
	if err != nil {
		return nil, "", err
	}
	token, err := s.issueToken(user, "", s.Auth.UserTokenTTL)
	return user, token, err
}

// AdminLogin is Login restricted to admins. The token carries the admin role
// and is valid for Auth.AdminTokenTTL.
func (s *AccountService) AdminLogin(ctx context.Context, email string, password string) (*model.User, string, error) {
	user, err := s.authenticate(ctx, email, password)
	if err != nil {
		return nil, "", err
	}
	if !user.IsAdmin() {
		return nil, "", ErrNotAdmin
	}
	token, err := s.issueToken(user, model.RoleAdmin, s.Auth.AdminTokenTTL)
	return user, token, err
}

func (s *AccountService) issueToken(user *model.User, role string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := &Claims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.Auth.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ParseToken validates a token and returns its claims. Every failure maps to
// ErrInvalidToken.
func (s *AccountService) ParseToken(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(s.Auth.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// RequireAdmin validates an admin token.
func (s *AccountService) RequireAdmin(token string) (*Claims, error) {
	claims, err := s.ParseToken(token)
	if err != nil {
		return nil, err
	}
	if claims.Role != model.RoleAdmin {
		return nil, ErrNotAdmin
	}
	return claims, nil
}

func (s *AccountService) Profile(ctx context.Context, id uint) (*model.User, error) {
	return s.Store.FindUserByID(ctx, id)
}

// Update applies a partial change to a user. A new password is re-hashed and
// an email already held by another user yields ErrUserExists.
func (s *AccountService) Update(ctx context.Context, id uint, update UserUpdate) (*model.User, error) {
	user, err := s.Store.FindUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if update.Name != nil {
		if user.Name, err = normalizeName(*update.Name); err != nil {
			return nil, err
		}
	}
	if update.Email != nil {
		email := normalizeEmail(*update.Email)
		if email != user.Email {
			if other, findErr := s.Store.FindUserByEmail(ctx, email); findErr == nil && other.ID != user.ID {
				return nil, ErrUserExists
			}
			user.Email = email
		}
	}
	if update.Password != nil && *update.Password != "" {
		if user.PasswordHash, err = s.hash(*update.Password); err != nil {
			return nil, err
		}
	}
	if err = s.Store.SaveUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *AccountService) Delete(ctx context.Context, id uint) error {
	return s.Store.DeleteUser(ctx, id)
}

func (s *AccountService) ListUsers(ctx context.Context) ([]model.User, error) {
	return s.Store.ListUsers(ctx)
}

// ForgotPassword issues a reset token valid for Auth.ResetTokenTTL and
// returns it. Delivery of the token is left to the caller.
func (s *AccountService) ForgotPassword(ctx context.Context, email string) (string, error) {
	user, err := s.Store.FindUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return "", err
	}
	token := uuid.NewString()
	expiry := s.now().Add(s.Auth.ResetTokenTTL)
	user.ResetToken = &token
	user.ResetTokenExpiry = &expiry
	if err = s.Store.SaveUser(ctx, user); err != nil {
		return "", err
	}
	slog.Info("password reset requested", "user_id", user.ID, "expires", expiry)
	return token, nil
}

// ResetPassword sets a new password for the holder of a live reset token.
// The token is single use.
func (s *AccountService) ResetPassword(ctx context.Context, token string, password string) error {
	if token == "" {
		return ErrInvalidToken
	}
	user, err := s.Store.FindUserByResetToken(ctx, token)
	if errors.Is(err, ErrUserNotFound) {
		return ErrInvalidToken
	}
	if err != nil {
		return err
	}
	if user.ResetTokenExpiry == nil || !s.now().Before(*user.ResetTokenExpiry) {
		return ErrInvalidToken
	}
	if user.PasswordHash, err = s.hash(password); err != nil {
		return err
	}
	user.ResetToken = nil
	user.ResetTokenExpiry = nil
	return s.Store.SaveUser(ctx, user)
}

// CreateAdmin creates an admin account, or promotes and re-keys the existing
// account with that email.
func (s *AccountService) CreateAdmin(ctx context.Context, name string, email string, password string) (*model.User, error) {
	hash, err := s.hash(password)
	if err != nil {
		return nil, err
	}
	email = normalizeEmail(email)
	user, err := s.Store.FindUserByEmail(ctx, email)
	switch {
	case errors.Is(err, ErrUserNotFound):
		user = &model.User{Name: name, Email: email, PasswordHash: hash, Role: model.RoleAdmin}
		err = s.Store.CreateUser(ctx, user)
	case err == nil:
		user.PasswordHash = hash
		user.Role = model.RoleAdmin
		err = s.Store.SaveUser(ctx, user)
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Stats returns the total user count, the sign-ups of the last seven days and
// the sign-ups per month for the current and previous five months, oldest
// first. Months without sign-ups are reported with a zero count.
//
// Logic Flow:
//  1. Count every user.
//  2. Count the users created in the last seven days.
//  3. Load the creation times since the first day of the oldest month and
//     bucket them by UTC month.
func (s *AccountService) Stats(ctx context.Context) (*model.DashboardStats, error) {
	now := s.now().UTC()
	total, err := s.Store.CountUsers(ctx, time.Time{})
	if err != nil {
		return nil, err
	}
	recent, err := s.Store.CountUsers(ctx, now.Add(-newUserWindow))
	if err != nil {
		return nil, err
	}

	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(statsMonths - 1), 0)
	times, err := s.Store.UserCreationTimes(ctx, first)
	if err != nil {
		return nil, err
	}

	monthly := make([]model.MonthlyCount, statsMonths)
	index := make(map[string]int, statsMonths)
	for i := range monthly {
		month := first.AddDate(0, i, 0).Format(monthLayout)
		monthly[i] = model.MonthlyCount{Month: month}
		index[month] = i
	}
	for _, t := range times {
		if i, ok := index[t.UTC().Format(monthLayout)]; ok {
			monthly[i].Count++
		}
	}

	return &model.DashboardStats{TotalUsers: total, NewUsers: recent, MonthlyStats: monthly}, nil
}
