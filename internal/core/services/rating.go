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
	"strings"

	"github.com/verbavid/verbavid-api/internal/core/model"
)

const (
	MinRating = 1
	MaxRating = 5
)

// RatingService records user feedback.
type RatingService struct {
	Store AccountStore
}

// Create stores a rating from userID. Values outside 1 to 5 yield ErrInvalidRating.
func (s *RatingService) Create(ctx context.Context, userID uint, rating int, comment string) (*model.Rating, error) {
	if rating < MinRating || rating > MaxRating {
		return nil, ErrInvalidRating
	}
	out := &model.Rating{UserID: userID, Rating: rating, Comment: strings.TrimSpace(comment)}
	if err := s.Store.CreateRating(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}
