// internal/workers/whatsapp/config.go
package whatsapp

import (
	"time"

	"notification-system/internal/common/config"
)

const WorkerName = "whatsapp"

// Config holds the whatsapp worker settings.
type Config struct {
	PollInterval    time.Duration
	BatchSize       int
	RateDelay       time.Duration
	MaxRetries      int
	Lease           time.Duration
	SendTimeout     time.Duration
	StartDelay      time.Duration
	DefaultTemplate string
}

// NewConfig builds the worker config from the application configuration.
func NewConfig(cfg *config.Config, startDelay time.Duration) *Config {
	wc := config.GetWorkerConfig(cfg, WorkerName)
	return &Config{
		PollInterval:    config.GetDuration(wc.PollInterval),
		BatchSize:       wc.BatchSize,
		RateDelay:       config.GetDuration(wc.RateDelay),
		MaxRetries:      wc.MaxRetries,
		Lease:           config.GetDuration(wc.Lease),
		SendTimeout:     config.GetDuration(wc.SendTimeout),
		StartDelay:      startDelay,
		DefaultTemplate: cfg.Providers.WhatsApp.DefaultTemplate,
	}
}
