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
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/verbavid/verbavid-api/internal/core/commands"
	"github.com/verbavid/verbavid-api/internal/core/model"
	"github.com/verbavid/verbavid-api/internal/core/services"
	"github.com/verbavid/verbavid-api/internal/core/workflow"
)

// MaxDocumentBytes bounds uploaded documents.
const MaxDocumentBytes = 20 << 20

// VideoOptions are the optional presets shared by both render routes.
type VideoOptions struct {
	Template    string `json:"template" form:"template"`
	Orientation string `json:"orientation" form:"orientation"`
	VideoLength string `json:"videoLength" form:"videoLength"`
}

// RenderVideoRequest is the body of POST /render-video.
type RenderVideoRequest struct {
	UserPrompt string `json:"userPrompt" binding:"required"`
	VideoOptions
}

// RenderVideoResponse is returned by both render routes.
type RenderVideoResponse struct {
	RequestID  string   `json:"requestId"`
	OutputPath string   `json:"outputPath"`
	Stages     []string `json:"stages"`
}

func newRenderVideoResponse(result *workflow.VideoResult) RenderVideoResponse {
	return RenderVideoResponse{RequestID: result.RequestID, OutputPath: result.OutputPath, Stages: result.Stages}
}

func Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}

// RenderVideo runs the pipeline on a free text prompt and answers once the
// video is rendered.
func (h *Handlers) RenderVideo(c *gin.Context) {
	var body RenderVideoRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		abortWithBadRequest(c, err)
		return
	}
	req := model.NewVideoRequest(body.UserPrompt, body.Template, body.Orientation, body.VideoLength)
	result, err := h.Videos.Generate(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, newRenderVideoResponse(result))
}

// RenderVideoDocument runs the pipeline on the text of the multipart
// "document" field.
func (h *Handlers) RenderVideoDocument(c *gin.Context) {
	var opts VideoOptions
	if err := c.ShouldBind(&opts); err != nil {
		abortWithBadRequest(c, err)
		return
	}
	header, err := c.FormFile("document")
	if err != nil {
		abortWithBadRequest(c, fmt.Errorf("missing document upload: %w", err))
		return
	}
	if header.Size > MaxDocumentBytes {
		abortWithBadRequest(c, fmt.Errorf("document exceeds %d bytes", MaxDocumentBytes))
		return
	}
	f, err := header.Open()
	if err != nil {
		abortWithBadRequest(c, err)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, MaxDocumentBytes))
	if err != nil {
		abortWithBadRequest(c, err)
		return
	}
	if len(data) == 0 {
		abortWithBadRequest(c, errors.New("document is empty"))
		return
	}

	req := model.NewVideoRequest("", opts.Template, opts.Orientation, opts.VideoLength)
	upload := &commands.DocumentUpload{FileName: header.Filename, Data: data}
	result, err := h.Videos.GenerateFromDocument(c.Request.Context(), req, upload)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, newRenderVideoResponse(result))
}

// PublishVideo uploads a finished video to the video bucket.
func (h *Handlers) PublishVideo(c *gin.Context) {
	obj, err := h.Videos.Publish(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"uri": obj.URI(), "url": obj.PublicURL(), "size": obj.Size})
}

// PreviewVideo returns a signed URL valid for 15 minutes.
func (h *Handlers) PreviewVideo(c *gin.Context) {
	u, err := h.Videos.SignedURL(c.Request.Context(), c.Param("id"), services.DefaultSignedURLTTL)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": u})
}

// DownloadVideo streams the local artifact as an attachment.
func (h *Handlers) DownloadVideo(c *gin.Context) {
	id := c.Param("id")
	path, err := h.Videos.ArtifactPath(id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.FileAttachment(path, id+".mp4")
}

// RenderHistory lists the recorded render jobs of a request. With the id
// "recent" it lists the latest jobs of every request instead.
func (h *Handlers) RenderHistory(c *gin.Context) {
	id := c.Param("id")
	var (
		jobs []*model.RenderJob
		err  error
	)
	if id == "recent" {
		limit, convErr := strconv.Atoi(c.DefaultQuery("limit", "20"))
		if convErr != nil || limit <= 0 {
			limit = 20
		}
		jobs, err = h.Videos.RecentRenders(c.Request.Context(), limit)
	} else {
		jobs, err = h.Videos.RenderHistory(c.Request.Context(), id)
	}
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, jobs)
}
