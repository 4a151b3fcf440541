package container_test

import (
	"testing"
	"time"

	"github.com/serroba/contact-intake/internal/container"
	"github.com/serroba/contact-intake/internal/export"
	"github.com/stretchr/testify/assert"
)

func TestOptions_Validate(t *testing.T) {
	t.Run("defaults are valid", func(t *testing.T) {
		assert.NoError(t, testOptions("localhost:6379").Validate())
	})

	tests := []struct {
		name   string
		mutate func(o *container.Options)
	}{
		{"unknown strategy", func(o *container.Options) { o.AdmissionStrategy = "global" }},
		{"unknown counter store", func(o *container.Options) { o.AdmissionStore = "etcd" }},
		{"zero window", func(o *container.Options) { o.AdmissionWindowSeconds = 0 }},
		{"zero allowance", func(o *container.Options) { o.AdmissionMax = 0 }},
		{"oversized page", func(o *container.Options) { o.ExportPageSize = 5000 }},
		{"unknown quoting", func(o *container.Options) { o.ExportQuoting = "excel" }},
		{"unknown log format", func(o *container.Options) { o.LogFormat = "xml" }},
		{"short jwt secret", func(o *container.Options) { o.JWTSecret = "short" }},
		{"postgrest without key", func(o *container.Options) { o.SupabaseURL = "https://db.example.com" }},
		{"bad notify url", func(o *container.Options) { o.NotifyURL = "not a url" }},
		{"port out of range", func(o *container.Options) { o.Port = 70000 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions("localhost:6379")
			tt.mutate(opts)

			assert.Error(t, opts.Validate())
		})
	}

	t.Run("empty jwt secret is allowed", func(t *testing.T) {
		opts := testOptions("localhost:6379")
		opts.JWTSecret = ""

		assert.NoError(t, opts.Validate())
	})
}

func TestOptions_Derived(t *testing.T) {
	opts := testOptions("localhost:6379")

	assert.Equal(t, time.Minute, opts.AdmissionConfig().Window)
	assert.Equal(t, 2, opts.AdmissionConfig().MaxPerWindow)
	assert.Equal(t, 10, opts.AdminAdmissionConfig().MaxPerWindow)
	assert.Equal(t, export.QuoteRFC4180, opts.Quoting())

	opts.ExportQuoting = "legacy"
	assert.Equal(t, export.QuoteLegacy, opts.Quoting())
}
