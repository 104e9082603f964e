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

package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/verbavid/verbavid-api/internal/core/model"
	"github.com/verbavid/verbavid-api/internal/core/services"
)

type SignupRequest struct {
	Name     string `json:"name" binding:"required,min=3,max=30"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6,max=30"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6,max=30"`
}

// UpdateUserRequest changes any subset of the profile.
type UpdateUserRequest struct {
	Name     *string `json:"name" binding:"omitempty,min=3,max=30"`
	Email    *string `json:"email" binding:"omitempty,email"`
	Password *string `json:"password" binding:"omitempty,min=6,max=30"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type ResetPasswordRequest struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required,min=6,max=30"`
}

type RatingRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment" binding:"max=1000"`
}

// UserView is the public part of a user.
type UserView struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
}

func newUserView(u *model.User) UserView {
	return UserView{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
}

func (r UpdateUserRequest) toUpdate() services.UserUpdate {
	return services.UserUpdate{Name: r.Name, Email: r.Email, Password: r.Password}
}

func userID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return 0, false
	}
	return uint(id), true
}

func (h *Handlers) setSessionCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(TokenCookie, token, int(h.Accounts.Auth.UserTokenTTL.Seconds()), "/", "", false, true)
}

func (h *Handlers) Signup(c *gin.Context) {
	var body SignupRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		abortWithBadRequest(c, err)
		return
	}
	if _, err := h.Accounts.Signup(c.Request.Context(), body.Name, body.Email, body.Password); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Signup successful. You can now login."})
}

func (h *Handlers) Login(c *gin.Context) {
	var body LoginRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		abortWithBadRequest(c, err)
		return
	}
	user, token, err := h.Accounts.Login(c.Request.Context(), body.Email, body.Password)
	if err != nil {
		abortWithError(c, err)
		return
	}
	h.setSessionCookie(c, token)
	c.JSON(http.StatusOK, gin.H{"message": "Login successful", "token": token, "user": newUserView(user)})
}

// Logout clears the session cookie. Tokens are stateless and stay valid
// until they expire.
func (h *Handlers) Logout(c *gin.Context) {
	c.SetCookie(TokenCookie, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

func (h *Handlers) Profile(c *gin.Context) {
	user, err := h.Accounts.Profile(c.Request.Context(), ClaimsFrom(c).UserID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, newUserView(user))
}

func (h *Handlers) UpdateProfile(c *gin.Context) {
	h.updateUser(c, ClaimsFrom(c).UserID)
}

// UpdateUser changes a user. Users may only change themselves; admin tokens
// may change anyone.
func (h *Handlers) UpdateUser(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}
	if claims := ClaimsFrom(c); claims.UserID != id && claims.Role != model.RoleAdmin {
		abortWithError(c, services.ErrNotAdmin)
		return
	}
	h.updateUser(c, id)
}

func (h *Handlers) updateUser(c *gin.Context, id uint) {
	var body UpdateUserRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		abortWithBadRequest(c, err)
		return
	}
	user, err := h.Accounts.Update(c.Request.Context(), id, body.toUpdate())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User updated successfully", "user": newUserView(user)})
}

// DeleteUser removes a user under the same rule as UpdateUser.
func (h *Handlers) DeleteUser(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}
	if claims := ClaimsFrom(c); claims.UserID != id && claims.Role != model.RoleAdmin {
		abortWithError(c, services.ErrNotAdmin)
		return
	}
	if err := h.Accounts.Delete(c.Request.Context(), id); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully"})
}

func (h *Handlers) ListUsers(c *gin.Context) {
	users, err := h.Accounts.ListUsers(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	out := make([]UserView, 0, len(users))
	for i := range users {
		out = append(out, newUserView(&users[i]))
	}
	c.JSON(http.StatusOK, out)
}

// ForgotPassword issues a reset token. The answer is the same whether or
// not the email is registered.
func (h *Handlers) ForgotPassword(c *gin.Context) {
	var body ForgotPasswordRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		abortWithBadRequest(c, err)
		return
	}
	if _, err := h.Accounts.ForgotPassword(c.Request.Context(), body.Email); err != nil && !errors.Is(err, services.ErrUserNotFound) {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "If the email is registered, a password reset has been issued."})
}

func (h *Handlers) ResetPassword(c *gin.Context) {
	var body ResetPasswordRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		abortWithBadRequest(c, err)
		return
	}
	if err := h.Accounts.ResetPassword(c.Request.Context(), body.Token, body.Password); err != nil {
		if errors.Is(err, services.ErrInvalidToken) {
			abortWithBadRequest(c, err)
			return
		}
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password reset successful"})
}

// CreateRating stores the caller's rating.
func (h *Handlers) CreateRating(c *gin.Context) {
	var body RatingRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}
	rating, err := h.Ratings.Create(c.Request.Context(), ClaimsFrom(c).UserID, body.Rating, body.Comment)
	if errors.Is(err, services.ErrInvalidRating) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "message": "Rating must be between 1 and 5"})
		return
	}
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "message": "Rating saved successfully", "data": rating})
}
