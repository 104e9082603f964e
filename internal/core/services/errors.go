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

// Package services contains the business logic behind the HTTP handlers and
// the operator CLI: video generation and publishing, accounts, ratings and
// the admin dashboard.
package services

import "errors"

var (
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrNotAdmin           = errors.New("access denied, admin only")
	ErrInvalidRating      = errors.New("rating must be between 1 and 5")
	ErrInvalidName        = errors.New("name must be between 3 and 30 characters")
	ErrVideoNotFound      = errors.New("video not found")
	ErrPublishingDisabled = errors.New("video publishing is not configured")
)
