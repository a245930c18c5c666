package model

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds the full mopscov configuration. It is built once, validated,
// and then passed by value into component constructors.
type Config struct {
	HTTP         HTTPConfig         `yaml:"http" mapstructure:"http"`
	RateLimiting RateLimitingConfig `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	Cache        CacheConfig        `yaml:"cache" mapstructure:"cache"`
	Concurrency  ConcurrencyConfig  `yaml:"concurrency" mapstructure:"concurrency"`
	Classifier   ClassifierConfig   `yaml:"classifier" mapstructure:"classifier"`
	Matrix       MatrixConfig       `yaml:"matrix" mapstructure:"matrix"`
	Analysis     AnalysisConfig     `yaml:"analysis" mapstructure:"analysis"`
	Paths        PathsConfig        `yaml:"paths" mapstructure:"paths"`
	Sheets       SheetsConfig       `yaml:"sheets" mapstructure:"sheets"`
	Journal      JournalConfig      `yaml:"journal" mapstructure:"journal"`
	Output       OutputConfig       `yaml:"output" mapstructure:"output"`
	LLM          LLMConfig          `yaml:"llm" mapstructure:"llm"`
}

// HTTPConfig controls how MOPS pages and PDFs are fetched
type HTTPConfig struct {
	BaseURL        string        `yaml:"base_url" mapstructure:"base_url" validate:"required,url"`
	DownloadOrigin string        `yaml:"download_origin" mapstructure:"download_origin" validate:"required,url"`
	Timeout        time.Duration `yaml:"timeout" mapstructure:"timeout" validate:"gt=0"`
	UserAgent      string        `yaml:"user_agent" mapstructure:"user_agent" validate:"required"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes" validate:"gt=0"`
	MaxPDFBytes    int64         `yaml:"max_pdf_bytes" mapstructure:"max_pdf_bytes" validate:"gt=0"`
	InsecureTLS    bool          `yaml:"insecure_tls" mapstructure:"insecure_tls"`
	HTTPProxy      string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy     string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy        string        `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
	MaxRetries     int           `yaml:"max_retries" mapstructure:"max_retries" validate:"gte=1,lte=10"`
	RetryDelay     time.Duration `yaml:"retry_delay" mapstructure:"retry_delay" validate:"gte=0"`
	RequestDelay   time.Duration `yaml:"request_delay" mapstructure:"request_delay" validate:"gte=0"`
	RespectRobots  bool          `yaml:"respect_robots" mapstructure:"respect_robots"`
}

// RateLimitingConfig is the per-host token bucket
type RateLimitingConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second" validate:"gt=0"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size" validate:"gte=1"`
}

// CacheConfig controls the listing page cache
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// ConcurrencyConfig bounds parallel company discovery and downloads
type ConcurrencyConfig struct {
	Workers   int `yaml:"workers" mapstructure:"workers" validate:"gte=1,lte=32"`
	Downloads int `yaml:"downloads" mapstructure:"downloads" validate:"gte=1,lte=16"`
}

// ClassifierConfig selects strict or flexible classification
type ClassifierConfig struct {
	Strict bool `yaml:"strict" mapstructure:"strict"`
}

// MatrixConfig controls quarter columns and cell rendering
type MatrixConfig struct {
	MaxYears          int    `yaml:"max_years" mapstructure:"max_years" validate:"gte=1,lte=10"`
	ShowAll           bool   `yaml:"show_all" mapstructure:"show_all"`
	Separator         string `yaml:"separator" mapstructure:"separator" validate:"required"`
	CategorySeparator string `yaml:"category_separator" mapstructure:"category_separator" validate:"required"`
	MaxDisplayItems   int    `yaml:"max_display_items" mapstructure:"max_display_items" validate:"gte=1,lte=20"`
	Categorized       bool   `yaml:"categorized" mapstructure:"categorized"`
	TruncateIndicator string `yaml:"truncate_indicator" mapstructure:"truncate_indicator" validate:"required"`
}

// AnalysisConfig holds the thresholds used by the coverage analyzer
type AnalysisConfig struct {
	WarnThresholdMonths   int `yaml:"warn_threshold_months" mapstructure:"warn_threshold_months" validate:"gte=0"`
	ChangeThreshold       int `yaml:"change_threshold" mapstructure:"change_threshold" validate:"gte=0"`
	BulkDownloadThreshold int `yaml:"bulk_download_threshold" mapstructure:"bulk_download_threshold" validate:"gte=0"`
}

// PathsConfig locates inputs and outputs on disk
type PathsConfig struct {
	DownloadsDir string `yaml:"downloads_dir" mapstructure:"downloads_dir" validate:"required"`
	StockList    string `yaml:"stock_list" mapstructure:"stock_list"`
	OutputDir    string `yaml:"output_dir" mapstructure:"output_dir" validate:"required"`
}

// SheetsConfig configures the Google Sheets publisher
type SheetsConfig struct {
	SpreadsheetID    string `yaml:"spreadsheet_id,omitempty" mapstructure:"spreadsheet_id"`
	CredentialsFile  string `yaml:"credentials_file,omitempty" mapstructure:"credentials_file"`
	Worksheet        string `yaml:"worksheet" mapstructure:"worksheet" validate:"required"`
	SummaryWorksheet string `yaml:"summary_worksheet" mapstructure:"summary_worksheet"`
}

// JournalConfig selects where download sessions are journaled
type JournalConfig struct {
	Backend     string `yaml:"backend" mapstructure:"backend" validate:"oneof=file postgres"`
	DatabaseURL string `yaml:"database_url,omitempty" mapstructure:"database_url" validate:"required_if=Backend postgres"`
}

// OutputConfig controls CLI output
type OutputConfig struct {
	Verbose   bool `yaml:"verbose" mapstructure:"verbose"`
	CSVBackup bool `yaml:"csv_backup" mapstructure:"csv_backup"`
}

// LLMConfig configures the optional coverage narrative
type LLMConfig struct {
	Provider  string `yaml:"provider" mapstructure:"provider" validate:"omitempty,oneof=openai"`
	Model     string `yaml:"model" mapstructure:"model"`
	APIKey    string `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL   string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout   int    `yaml:"timeout" mapstructure:"timeout" validate:"gte=0"` // seconds
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens" validate:"gte=0"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() Config {
	return Config{
		HTTP: HTTPConfig{
			BaseURL:        "https://doc.twse.com.tw/server-java/t57sb01",
			DownloadOrigin: "https://doc.twse.com.tw",
			Timeout:        30 * time.Second,
			UserAgent:      "Mozilla/5.0 (compatible; mopscov/0.3; +https://github.com/ppiankov/mopscov)",
			MaxBodyBytes:   2_000_000,
			MaxPDFBytes:    100_000_000,
			MaxRetries:     3,
			RetryDelay:     1 * time.Second,
			RequestDelay:   1 * time.Second,
			RespectRobots:  true,
		},
		RateLimiting: RateLimitingConfig{
			RequestsPerSecond: 1.0,
			BurstSize:         1,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       ".mopscov-cache",
			MemoryTTL: 10 * time.Minute,
			DiskTTL:   12 * time.Hour,
		},
		Concurrency: ConcurrencyConfig{
			Workers:   2,
			Downloads: 3,
		},
		Classifier: ClassifierConfig{
			Strict: false,
		},
		Matrix: MatrixConfig{
			MaxYears:          3,
			ShowAll:           true,
			Separator:         "/",
			CategorySeparator: " → ",
			MaxDisplayItems:   5,
			Categorized:       false,
			TruncateIndicator: "+",
		},
		Analysis: AnalysisConfig{
			WarnThresholdMonths:   6,
			ChangeThreshold:       5,
			BulkDownloadThreshold: 5,
		},
		Paths: PathsConfig{
			DownloadsDir: "downloads",
			StockList:    "StockID_TWSE_TPEX.csv",
			OutputDir:    "data/reports",
		},
		Sheets: SheetsConfig{
			Worksheet:        "MOPS下載狀態",
			SummaryWorksheet: "統計摘要",
		},
		Journal: JournalConfig{
			Backend: "file",
		},
		Output: OutputConfig{
			CSVBackup: true,
		},
		LLM: LLMConfig{
			Timeout:   30,
			MaxTokens: 600,
		},
	}
}

var configValidator = validator.New()

// Validate checks field constraints declared in struct tags
func (c Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("%w: config: %v", ErrValidation, err)
	}
	return nil
}
