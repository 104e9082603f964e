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

// This file defines the admin routes: login, the user base statistics and
// user maintenance.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Dashboard configures the admin routes on r. Every route except login is
// guarded by adminAuth.
//
// Inputs:
//   - r: The "/admin" router group.
//   - h: The handlers.
//   - adminAuth: The admin token middleware.
func Dashboard(r *gin.RouterGroup, h *Handlers, adminAuth gin.HandlerFunc) {
	r.POST("/login", h.AdminLogin)

	guarded := r.Group("", adminAuth)
	{
		guarded.GET("/stats", h.Stats)
		guarded.GET("/users", h.ListUsers)
		guarded.PUT("/users/:id", h.UpdateUser)
		guarded.DELETE("/users/:id", h.DeleteUser)
	}
}

func (h *Handlers) AdminLogin(c *gin.Context) {
	var body LoginRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		abortWithBadRequest(c, err)
		return
	}
	user, token, err := h.Accounts.AdminLogin(c.Request.Context(), body.Email, body.Password)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Admin login successful", "token": token, "user": newUserView(user)})
}

// Stats returns the total and recent sign-ups and the monthly breakdown.
func (h *Handlers) Stats(c *gin.Context) {
	stats, err := h.Accounts.Stats(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
