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

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/verbavid/verbavid-api/internal/core/model"
)

// AccountStore persists users and ratings.
type AccountStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	SaveUser(ctx context.Context, user *model.User) error
	DeleteUser(ctx context.Context, id uint) error
	FindUserByID(ctx context.Context, id uint) (*model.User, error)
	FindUserByEmail(ctx context.Context, email string) (*model.User, error)
	FindUserByResetToken(ctx context.Context, token string) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	CountUsers(ctx context.Context, since time.Time) (int64, error)
	UserCreationTimes(ctx context.Context, since time.Time) ([]time.Time, error)
	CreateRating(ctx context.Context, rating *model.Rating) error
}

// GormAccountStore is the AccountStore backed by gorm.
type GormAccountStore struct {
	db *gorm.DB
}

func NewGormAccountStore(db *gorm.DB) *GormAccountStore {
	return &GormAccountStore{db: db}
}

func (s *GormAccountStore) CreateUser(ctx context.Context, user *model.User) error {
	err := s.db.WithContext(ctx).Create(user).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrUserExists
	}
	return err
}

func (s *GormAccountStore) SaveUser(ctx context.Context, user *model.User) error {
	err := s.db.WithContext(ctx).Save(user).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrUserExists
	}
	return err
}

func (s *GormAccountStore) DeleteUser(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&model.User{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *GormAccountStore) findUser(ctx context.Context, query string, arg interface{}) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).Where(query, arg).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *GormAccountStore) FindUserByID(ctx context.Context, id uint) (*model.User, error) {
	return s.findUser(ctx, "id = ?", id)
}

func (s *GormAccountStore) FindUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.findUser(ctx, "email = ?", email)
}

func (s *GormAccountStore) FindUserByResetToken(ctx context.Context, token string) (*model.User, error) {
	return s.findUser(ctx, "reset_token = ?", token)
}

func (s *GormAccountStore) ListUsers(ctx context.Context) ([]model.User, error) {
	users := make([]model.User, 0)
	err := s.db.WithContext(ctx).Order("created_at DESC").Find(&users).Error
	return users, err
}

// CountUsers counts the users created at or after since. A zero since counts everyone.
func (s *GormAccountStore) CountUsers(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	q := s.db.WithContext(ctx).Model(&model.User{})
	if !since.IsZero() {
		q = q.Where("created_at >= ?", since)
	}
	err := q.Count(&count).Error
	return count, err
}

func (s *GormAccountStore) UserCreationTimes(ctx context.Context, since time.Time) ([]time.Time, error) {
	times := make([]time.Time, 0)
	err := s.db.WithContext(ctx).Model(&model.User{}).
		Where("created_at >= ?", since).
		Order("created_at").
		Pluck("created_at", &times).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load sign-up times: %w", err)
	}
	return times, nil
}

func (s *GormAccountStore) CreateRating(ctx context.Context, rating *model.Rating) error {
	return s.db.WithContext(ctx).Create(rating).Error
}
