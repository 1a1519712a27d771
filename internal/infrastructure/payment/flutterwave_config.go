package payment

import (
	"errors"
	"strings"
	"time"
)

// DefaultFlutterwaveBaseURL is the production API host
const DefaultFlutterwaveBaseURL = "https://api.flutterwave.com"

// FlutterwaveConfig contains the Flutterwave v3 credentials
type FlutterwaveConfig struct {
	// BaseURL is the API host; tests point it at an httptest server
	BaseURL string
	// SecretKey authenticates API calls (Bearer)
	SecretKey string
	// WebhookHash is the secret hash configured on the dashboard and sent
	// back in the verif-hash header of every webhook
	WebhookHash string
	Timeout     time.Duration
}

// Configuration errors
var (
	ErrFlutterwaveMissingSecretKey   = errors.New("flutterwave: missing secret key")
	ErrFlutterwaveMissingWebhookHash = errors.New("flutterwave: missing webhook secret hash")
)

// Validate checks required fields and fills defaults
func (c *FlutterwaveConfig) Validate() error {
	if strings.TrimSpace(c.SecretKey) == "" {
		return ErrFlutterwaveMissingSecretKey
	}
	if strings.TrimSpace(c.WebhookHash) == "" {
		return ErrFlutterwaveMissingWebhookHash
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultFlutterwaveBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	return nil
}
