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

// Package api contains the gin handlers and middleware of the HTTP server.
//
// Functions:
//   - RegisterRoutes: Attaches every route of the service to a router.
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/verbavid/verbavid-api/internal/core/services"
)

// Handlers holds the services behind the routes.
type Handlers struct {
	Videos   *services.VideoService
	Accounts *services.AccountService
	Ratings  *services.RatingService
}

// RegisterRoutes attaches the pipeline, account, admin, rating and video
// publishing routes to r.
func RegisterRoutes(r gin.IRouter, h *Handlers) {
	r.GET("/ping", Ping)
	r.POST("/render-video", h.RenderVideo)
	r.POST("/render-video-document", h.RenderVideoDocument)

	userAuth := AuthMiddleware(h.Accounts)
	adminAuth := AdminMiddleware(h.Accounts)

	auth := r.Group("/auth")
	{
		auth.POST("/signup", h.Signup)
		auth.POST("/login", h.Login)
		auth.POST("/logout", h.Logout)
		auth.POST("/forgot-password", h.ForgotPassword)
		auth.POST("/reset-password", h.ResetPassword)
		auth.GET("/profile", userAuth, h.Profile)
		auth.PUT("/profile", userAuth, h.UpdateProfile)
		auth.GET("/users", userAuth, h.ListUsers)
		auth.PUT("/users/:id", userAuth, h.UpdateUser)
		auth.DELETE("/users/:id", userAuth, h.DeleteUser)
	}

	Dashboard(r.Group("/admin"), h, adminAuth)

	r.POST("/rating", userAuth, h.CreateRating)

	videos := r.Group("/api/v1/videos")
	{
		videos.GET("/:id", h.RenderHistory)
		videos.POST("/:id/publish", userAuth, h.PublishVideo)
		videos.GET("/:id/preview", h.PreviewVideo)
		videos.GET("/:id/download", h.DownloadVideo)
	}
}
