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

// Package model defines the core data structures for the application.
// This file contains the persisted account types. They are stored through
// gorm and never read by the video pipeline.
package model

import "time"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is a registered account. Admins are users with RoleAdmin.
type User struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	Name             string     `gorm:"not null" json:"name"`
	Email            string     `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash     string     `gorm:"not null" json:"-"`
	Role             string     `gorm:"default:user;index" json:"role"`
	ResetToken       *string    `gorm:"index" json:"-"`
	ResetTokenExpiry *time.Time `json:"-"`
	CreatedAt        time.Time  `gorm:"index" json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// TableName overrides the table name
func (User) TableName() string {
	return "users"
}

// IsAdmin reports whether the account may use the admin routes.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Rating is a user's 1 to 5 score of the service.
type Rating struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index;not null" json:"user"`
	Rating    int       `gorm:"not null" json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"createdAt"`
}

// TableName overrides the table name
func (Rating) TableName() string {
	return "ratings"
}

// MonthlyCount is the number of sign-ups in one calendar month (YYYY-MM).
type MonthlyCount struct {
	Month string `json:"month"`
	Count int64  `json:"count"`
}

// DashboardStats is the admin overview of the user base.
type DashboardStats struct {
	TotalUsers   int64          `json:"totalUsers"`
	NewUsers     int64          `json:"newUsers"`
	MonthlyStats []MonthlyCount `json:"monthlyStats"`
}
