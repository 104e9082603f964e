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

// Package cloud defines the data structures for application configuration,
// loaded from TOML files. It provides a structured way to manage settings
// for the video pipeline and the services around it: the caption models,
// the image search client, the render engine, artifact storage, accounts,
// Pub/Sub topics and prompt templates.
//
// Structs:
//   - Storage: Where render artifacts are written and published, and for how long they are kept.
//   - CaptionSettings: Retry and truncation policy of the caption generator.
//   - PromptTemplates: The text templates for prompts sent to the caption models.
//   - ImageSearch: Stock photo search endpoint, pacing and caching.
//   - Render: How the external render engine is invoked.
//   - Auth: Token signing and lifetimes.
//   - Database, Redis: Connection settings for account storage and the shared image cache.
//   - AgentModel: Configuration for a generative text model.
//   - Config: The top-level struct that aggregates all other configuration structs.
//
// Functions:
//   - NewConfig: A constructor that initializes a new Config object with empty maps.
//   - ApplyDefaults: Fills every unset value with its default.
package cloud

import (
	"time"

	"google.golang.org/genai"
)

// DefaultSafetySettings defines the content safety thresholds for Gemini models.
// User prompts are free text, so only high-probability harmful content is blocked.
var DefaultSafetySettings = []*genai.SafetySetting{
	{
		Category:  genai.HarmCategoryDangerousContent,
		Threshold: genai.HarmBlockThresholdBlockOnlyHigh,
	},
	{
		Category:  genai.HarmCategoryHarassment,
		Threshold: genai.HarmBlockThresholdBlockOnlyHigh,
	},
	{
		Category:  genai.HarmCategoryHateSpeech,
		Threshold: genai.HarmBlockThresholdBlockOnlyHigh,
	},
	{
		Category:  genai.HarmCategorySexuallyExplicit,
		Threshold: genai.HarmBlockThresholdBlockOnlyHigh,
	},
}

// Model providers understood by NewTextModel.
const (
	ProviderGemini = "gemini" // Gemini API with an API key.
	ProviderVertex = "vertex" // Gemini on Vertex AI with application default credentials.
	ProviderOpenAI = "openai" // OpenAI chat completions.
)

// BigQueryDataSource represents the configuration for the render history dataset.
type BigQueryDataSource struct {
	DatasetName    string `toml:"dataset"`          // The name of the BigQuery dataset.
	RenderJobTable string `toml:"render_job_table"` // The table receiving one row per render job.
}

// PromptTemplates holds the text/template sources for the caption prompts.
type PromptTemplates struct {
	CaptionPrompt  string `toml:"caption"`  // Captions from a free text prompt.
	DocumentPrompt string `toml:"document"` // Captions from extracted document text.
	SummaryPrompt  string `toml:"summary"`  // Compression pass for oversized input.
}

// AgentModel represents the configuration for a generative text model.
type AgentModel struct {
	Provider           string  `toml:"provider"`            // One of gemini, vertex or openai.
	Model              string  `toml:"model"`               // The provider's model name.
	SystemInstructions string  `toml:"system_instructions"` // The system instructions for the model.
	Temperature        float32 `toml:"temperature"`         // The temperature parameter.
	TopP               float32 `toml:"top_p"`               // The top_p parameter.
	TopK               float32 `toml:"top_k"`               // The top_k parameter (Gemini only).
	MaxTokens          int32   `toml:"max_tokens"`          // The maximum number of output tokens.
	RateLimit          int     `toml:"rate_limit"`          // Requests per second.
}

// TopicSubscription represents the configuration for a Pub/Sub topic subscription.
type TopicSubscription struct {
	Name             string `toml:"name"`               // The name of the Pub/Sub subscription.
	DeadLetterTopic  string `toml:"dead_letter_topic"`  // The name of the dead-letter topic for the subscription.
	TimeoutInSeconds int    `toml:"timeout_in_seconds"` // The timeout for the subscription in seconds.
}

// Storage represents where render artifacts live.
type Storage struct {
	VideoBucket   string        `toml:"video_bucket"`   // Bucket receiving published videos. Publishing is disabled when empty.
	OutputDir     string        `toml:"output_dir"`     // Local root of the per-request render directories.
	Retention     time.Duration `toml:"retention"`      // Age after which a render directory is swept.
	SweepSchedule string        `toml:"sweep_schedule"` // Cron spec of the retention sweep.
}

// CaptionSettings is the retry and truncation policy of the caption generator.
type CaptionSettings struct {
	Model                 string        `toml:"model"`                   // Key into Config.AgentModels.
	MaxAttempts           int           `toml:"max_attempts"`            // Total model calls per request.
	BaseDelay             time.Duration `toml:"base_delay"`              // First rate limit backoff, doubled per attempt.
	MaxDelay              time.Duration `toml:"max_delay"`               // Backoff cap.
	InputCeiling          int           `toml:"input_ceiling"`           // Characters kept before the first call.
	TokenLimitCeiling     int           `toml:"token_limit_ceiling"`     // Characters kept after a token limit error.
	SummaryTokenThreshold int           `toml:"summary_token_threshold"` // Estimated tokens above which input is summarized.
}

// ImageSearch configures the stock photo lookup.
type ImageSearch struct {
	Endpoint          string        `toml:"endpoint"`            // Search endpoint of the Pexels API.
	APIKey            string        `toml:"api_key"`             // Overridden by PEXELS_API_KEY.
	RequestsPerSecond int           `toml:"requests_per_second"` // Outbound pacing.
	CacheSize         int           `toml:"cache_size"`          // LRU capacity in entries.
	CacheTTL          time.Duration `toml:"cache_ttl"`           // Lifetime of redis entries.
	Timeout           time.Duration `toml:"timeout"`             // Per request HTTP timeout.
}

// Render configures the external render engine.
type Render struct {
	Command    string        `toml:"command"`     // Launcher of the engine CLI, usually npx.
	ProjectDir string        `toml:"project_dir"` // Working directory of the render project.
	EntryPoint string        `toml:"entry_point"` // Composition entry file inside ProjectDir.
	Timeout    time.Duration `toml:"timeout"`     // Hard limit of a single render.
}

// Auth configures account tokens.
type Auth struct {
	JWTSecret     string        `toml:"jwt_secret"`      // Overridden by JWT_SECRET.
	UserTokenTTL  time.Duration `toml:"user_token_ttl"`  // Lifetime of user tokens.
	AdminTokenTTL time.Duration `toml:"admin_token_ttl"` // Lifetime of admin tokens.
	ResetTokenTTL time.Duration `toml:"reset_token_ttl"` // Lifetime of password reset tokens.
	BcryptCost    int           `toml:"bcrypt_cost"`
}

// Database configures account persistence.
type Database struct {
	Driver       string `toml:"driver"` // postgres or sqlite.
	DSN          string `toml:"dsn"`    // Overridden by DATABASE_URL.
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// Redis configures the optional shared image cache tier.
type Redis struct {
	Enabled  bool   `toml:"enabled"`
	Addr     string `toml:"addr"` // Overridden by REDIS_URL.
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// Config represents the overall configuration for the application, loaded from TOML files.
// It acts as the root container for all other configuration structs.
type Config struct {
	// Application holds general application settings.
	Application struct {
		Name                      string `toml:"name"`                         // The name of the application.
		GoogleProjectId           string `toml:"google_project_id"`            // The Google Cloud project ID. Cloud clients are skipped when empty.
		GoogleLocation            string `toml:"location"`                     // The Google Cloud location.
		Port                      string `toml:"port"`                         // HTTP port, overridden by PORT.
		ThreadPoolSize            int    `toml:"thread_pool_size"`             // Concurrent image lookups per request.
		SignerServiceAccountEmail string `toml:"signer_service_account_email"` // The service account email used for signing GCS URLs.
		GeminiAPIKey              string `toml:"gemini_api_key"`               // Overridden by GEMINI_API_KEY.
		OpenAIAPIKey              string `toml:"openai_api_key"`               // Overridden by OPENAI_API_KEY.
	} `toml:"application"`
	Storage            Storage                      `toml:"storage"`
	Captions           CaptionSettings              `toml:"captions"`
	ImageSearch        ImageSearch                  `toml:"image_search"`
	Render             Render                       `toml:"render"`
	Auth               Auth                         `toml:"auth"`
	Database           Database                     `toml:"database"`
	Redis              Redis                        `toml:"redis"`
	BigQueryDataSource BigQueryDataSource           `toml:"big_query_data_source"`
	PromptTemplates    PromptTemplates              `toml:"prompt_templates"`
	TopicSubscriptions map[string]TopicSubscription `toml:"topic_subscriptions"` // Keyed by a logical name (e.g., "RenderRequestTopic").
	AgentModels        map[string]AgentModel        `toml:"agent_models"`        // Keyed by a logical name (e.g., "caption-flash").
}

// NewConfig is a constructor function that creates a new, initialized Config instance.
// The maps are initialized so the configuration loader can populate them.
//
// Outputs:
//   - *Config: A pointer to a new Config struct with its map fields initialized.
func NewConfig() *Config {
	return &Config{
		TopicSubscriptions: make(map[string]TopicSubscription),
		AgentModels:        make(map[string]AgentModel),
	}
}

// ApplyDefaults fills every unset value with the value the service runs with
// out of the box.
func (c *Config) ApplyDefaults() {
	setString(&c.Application.Name, "verbavid-api")
	setString(&c.Application.Port, "8000")
	setInt(&c.Application.ThreadPoolSize, 8)

	setString(&c.Storage.OutputDir, "out")
	setDuration(&c.Storage.Retention, 24*time.Hour)
	setString(&c.Storage.SweepSchedule, "@every 30m")

	setString(&c.Captions.Model, "caption")
	setInt(&c.Captions.MaxAttempts, 3)
	setDuration(&c.Captions.BaseDelay, time.Second)
	setDuration(&c.Captions.MaxDelay, 30*time.Second)
	setInt(&c.Captions.InputCeiling, 500_000)
	setInt(&c.Captions.TokenLimitCeiling, 10_000)
	setInt(&c.Captions.SummaryTokenThreshold, 800_000)

	setString(&c.ImageSearch.Endpoint, "https://api.pexels.com/v1/search")
	setInt(&c.ImageSearch.RequestsPerSecond, 5)
	setInt(&c.ImageSearch.CacheSize, 2048)
	setDuration(&c.ImageSearch.CacheTTL, 24*time.Hour)
	setDuration(&c.ImageSearch.Timeout, 10*time.Second)

	setString(&c.Render.Command, "npx")
	setString(&c.Render.ProjectDir, "video-generator")
	setString(&c.Render.EntryPoint, "src/index.ts")
	setDuration(&c.Render.Timeout, 15*time.Minute)

	setDuration(&c.Auth.UserTokenTTL, time.Hour)
	setDuration(&c.Auth.AdminTokenTTL, 7*24*time.Hour)
	setDuration(&c.Auth.ResetTokenTTL, time.Hour)
	setInt(&c.Auth.BcryptCost, 10)

	setString(&c.Database.Driver, "sqlite")
	setString(&c.Database.DSN, "verbavid.db")
	setInt(&c.Database.MaxOpenConns, 25)
	setInt(&c.Database.MaxIdleConns, 5)

	setString(&c.Redis.Addr, "localhost:6379")

	if c.AgentModels == nil {
		c.AgentModels = make(map[string]AgentModel)
	}
	if _, ok := c.AgentModels[c.Captions.Model]; !ok {
		c.AgentModels[c.Captions.Model] = AgentModel{
			Provider:    ProviderGemini,
			Model:       "gemini-2.0-flash",
			Temperature: 0.7,
			TopP:        0.95,
			TopK:        40,
			MaxTokens:   2048,
			RateLimit:   5,
		}
	}
	if c.TopicSubscriptions == nil {
		c.TopicSubscriptions = make(map[string]TopicSubscription)
	}
}

func setString(target *string, value string) {
	if *target == "" {
		*target = value
	}
}

func setInt(target *int, value int) {
	if *target <= 0 {
		*target = value
	}
}

func setDuration(target *time.Duration, value time.Duration) {
	if *target <= 0 {
		*target = value
	}
}
