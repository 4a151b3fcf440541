package container

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/serroba/contact-intake/internal/export"
	"github.com/serroba/contact-intake/internal/ratelimit"
)

// Options configures the server and the consumer. Flags can also be set
// through SERVICE_* environment variables.
type Options struct {
	Port      int    `default:"8888"           help:"Port to listen on"        short:"p" validate:"min=1,max=65535"`
	RedisAddr string `default:"localhost:6379" help:"Redis server address"     short:"r" validate:"required"`
	LogFormat string `default:"console"        help:"Log format: console|json"           validate:"oneof=console json"`

	DatabaseURL string `help:"Postgres connection string, used when no PostgREST URL is set" validate:"omitempty,url"`
	SupabaseURL string `help:"PostgREST base URL of the submissions store"                    validate:"omitempty,url"`
	SupabaseKey string `help:"PostgREST service key"                                         validate:"required_with=SupabaseURL"`

	AdmissionStrategy      string `default:"local" help:"Admission strategy: local|shared"          validate:"oneof=local shared"`
	AdmissionStore         string `default:"redis" help:"Shared counter store: redis|memory"        validate:"oneof=redis memory"`
	AdmissionWindowSeconds int    `default:"60"    help:"Admission window in seconds"               validate:"min=1"`
	AdmissionMax           int    `default:"5"     help:"Contact submissions allowed per window"    validate:"min=1"`
	AdminAdmissionMax      int    `default:"60"    help:"Admin requests allowed per window"         validate:"min=1"`
	IgnoreForwardedFor     bool   `help:"Ignore X-Forwarded-For in admission keys; set when no proxy overwrites it"`

	ExportPageSize int    `default:"100"     help:"Rows fetched per upstream page during export" validate:"min=1,max=1000"`
	ExportQuoting  string `default:"rfc4180" help:"CSV quoting: rfc4180|legacy"                  validate:"oneof=rfc4180 legacy"`

	RecaptchaSecret string `help:"reCAPTCHA secret; verification is skipped when empty"`
	JWTSecret       string `help:"HMAC secret of admin bearer tokens"                    validate:"omitempty,min=16"`
	NotifyURL       string `help:"Webhook notified of new submissions"                   validate:"omitempty,url"`
	ConsumerGroup   string `default:"contact-notify" help:"Redis stream consumer group"  validate:"required"`
}

// Validate checks option values.
func (o *Options) Validate() error {
	if err := validator.New().Struct(o); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}

	return nil
}

// AdmissionConfig returns the contact admission window.
func (o *Options) AdmissionConfig() ratelimit.Config {
	return ratelimit.Config{
		Window:       time.Duration(o.AdmissionWindowSeconds) * time.Second,
		MaxPerWindow: o.AdmissionMax,
	}
}

// AdminAdmissionConfig returns the admin admission window.
func (o *Options) AdminAdmissionConfig() ratelimit.Config {
	return ratelimit.Config{
		Window:       time.Duration(o.AdmissionWindowSeconds) * time.Second,
		MaxPerWindow: o.AdminAdmissionMax,
	}
}

// Quoting returns the CSV quoting mode.
func (o *Options) Quoting() export.Quoting {
	if o.ExportQuoting == "legacy" {
		return export.QuoteLegacy
	}

	return export.QuoteRFC4180
}
