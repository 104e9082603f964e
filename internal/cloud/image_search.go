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

// Package cloud provides components for interacting with Google Cloud and the
// other external services the pipeline depends on.
// This file implements the stock photo search client used to illustrate captions.
//
// Logic Flow:
//  1. The caller supplies a sanitized query and the target orientation.
//  2. The client waits for its rate limiter.
//  3. One photo is requested, framed for the orientation.
//  4. The best matching source URL is returned, or "" when nothing matched.
package cloud

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/verbavid/verbavid-api/internal/core/model"
)

// ImageSearcher finds one representative image for a query. A query without
// results returns "" and a nil error.
type ImageSearcher interface {
	SearchImage(ctx context.Context, query string, orientation model.Orientation) (string, error)
}

// PexelsClient searches the Pexels photo API.
type PexelsClient struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

type pexelsSearchResponse struct {
	TotalResults int `json:"total_results"`
	Photos       []struct {
		ID  int64 `json:"id"`
		Src struct {
			Original  string `json:"original"`
			Large2x   string `json:"large2x"`
			Large     string `json:"large"`
			Portrait  string `json:"portrait"`
			Landscape string `json:"landscape"`
		} `json:"src"`
	} `json:"photos"`
}

// NewPexelsClient creates a client from the image search configuration.
func NewPexelsClient(config ImageSearch) *PexelsClient {
	rps := config.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	return &PexelsClient{
		endpoint: config.Endpoint,
		apiKey:   config.APIKey,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		limiter: rate.NewLimiter(rate.Every(time.Second/time.Duration(rps)), rps),
	}
}

// SearchImage returns the URL of the first photo matching query.
func (p *PexelsClient) SearchImage(ctx context.Context, query string, orientation model.Orientation) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", err
	}
	values := url.Values{}
	values.Set("query", query)
	values.Set("per_page", strconv.Itoa(1))
	values.Set("orientation", string(orientation))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"?"+values.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("image search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", fmt.Errorf("%w: image search returned %d", model.ErrRateLimited, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("image search returned %d: %s", resp.StatusCode, string(body))
	}

	var out pexelsSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode image search response: %w", err)
	}
	if len(out.Photos) == 0 {
		return "", nil
	}
	src := out.Photos[0].Src
	switch orientation {
	case model.OrientationPortrait:
		if src.Portrait != "" {
			return src.Portrait, nil
		}
	case model.OrientationLandscape:
		if src.Landscape != "" {
			return src.Landscape, nil
		}
	}
	for _, candidate := range []string{src.Large2x, src.Large, src.Original} {
		if candidate != "" {
			return candidate, nil
		}
	}
	return "", nil
}
