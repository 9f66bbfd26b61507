package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Config struct {
	UID         string             `yaml:"uid"`
	APIKey      string             `yaml:"api_key"`
	SecretKey   string             `yaml:"secret_key"`
	AccountName string             `yaml:"account_name"`
	OMSID       int64              `yaml:"oms_id"`
	RestBaseURL string             `yaml:"rest_base_url"`
	WSBaseURL   string             `yaml:"ws_base_url"`
	Connector   ConnectorConfig    `yaml:"connector"`
	Instruments []InstrumentConfig `yaml:"instruments"`
}

type ConnectorConfig struct {
	HTTPTimeoutSec       int64   `yaml:"http_timeout_sec"`
	ShortPollIntervalSec int64   `yaml:"short_poll_interval_sec"`
	LongPollIntervalSec  int64   `yaml:"long_poll_interval_sec"`
	StreamRecencySec     int64   `yaml:"stream_recency_sec"`
	HeartbeatSec         int64   `yaml:"heartbeat_sec"`
	FeeRate              Decimal `yaml:"fee_rate"`
	EventQueueSize       int     `yaml:"event_queue_size"`
	AuthRetryAttempts    int     `yaml:"auth_retry_attempts"`
	RequestsPerSecond    int     `yaml:"requests_per_second"`
}

type InstrumentConfig struct {
	Pair       string `yaml:"pair"`
	BaseAsset  string `yaml:"base_asset"`
	QuoteAsset string `yaml:"quote_asset"`
	VenueID    int64  `yaml:"venue_id"`
}

func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return Config{}, fmt.Errorf("config must contain a single YAML document")
		}
		return Config{}, err
	}
	cfg.normalize()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.UID = strings.TrimSpace(c.UID)
	c.APIKey = strings.TrimSpace(c.APIKey)
	c.SecretKey = strings.TrimSpace(c.SecretKey)
	c.AccountName = strings.TrimSpace(c.AccountName)
	c.RestBaseURL = strings.TrimSpace(c.RestBaseURL)
	c.WSBaseURL = strings.TrimSpace(c.WSBaseURL)
	for i := range c.Instruments {
		c.Instruments[i].Pair = strings.ToUpper(strings.TrimSpace(c.Instruments[i].Pair))
		c.Instruments[i].BaseAsset = strings.ToUpper(strings.TrimSpace(c.Instruments[i].BaseAsset))
		c.Instruments[i].QuoteAsset = strings.ToUpper(strings.TrimSpace(c.Instruments[i].QuoteAsset))
	}
}

func (c *Config) applyDefaults() {
	if c.OMSID == 0 {
		c.OMSID = 1
	}
	if c.Connector.HTTPTimeoutSec == 0 {
		c.Connector.HTTPTimeoutSec = 15
	}
	if c.Connector.ShortPollIntervalSec == 0 {
		c.Connector.ShortPollIntervalSec = 5
	}
	if c.Connector.LongPollIntervalSec == 0 {
		c.Connector.LongPollIntervalSec = 120
	}
	if c.Connector.StreamRecencySec == 0 {
		c.Connector.StreamRecencySec = 60
	}
	if c.Connector.HeartbeatSec == 0 {
		c.Connector.HeartbeatSec = 1
	}
	if !c.Connector.FeeRate.IsSet() {
		c.Connector.FeeRate = Decimal{Decimal: decimal.RequireFromString("0.02"), set: true}
	}
	if c.Connector.EventQueueSize == 0 {
		c.Connector.EventQueueSize = 128
	}
	if c.Connector.AuthRetryAttempts == 0 {
		c.Connector.AuthRetryAttempts = 3
	}
	if c.Connector.RequestsPerSecond == 0 {
		c.Connector.RequestsPerSecond = 10
	}
}

func (c *Config) Validate() error {
	if c.UID == "" {
		return errors.New("uid is required")
	}
	if c.APIKey == "" || c.SecretKey == "" {
		return errors.New("api_key/secret_key are required")
	}
	if err := validateBaseURL(c.RestBaseURL, "rest_base_url", "http", "https"); err != nil {
		return err
	}
	if err := validateBaseURL(c.WSBaseURL, "ws_base_url", "ws", "wss"); err != nil {
		return err
	}
	if c.Connector.ShortPollIntervalSec > c.Connector.LongPollIntervalSec {
		return errors.New("short_poll_interval_sec must not exceed long_poll_interval_sec")
	}
	if c.Connector.FeeRate.Sign() < 0 {
		return errors.New("fee_rate must not be negative")
	}
	seen := make(map[string]struct{}, len(c.Instruments))
	for _, inst := range c.Instruments {
		if inst.Pair == "" || inst.BaseAsset == "" || inst.QuoteAsset == "" {
			return fmt.Errorf("instrument %q must define pair, base_asset and quote_asset", inst.Pair)
		}
		if _, dup := seen[inst.Pair]; dup {
			return fmt.Errorf("instrument %q defined twice", inst.Pair)
		}
		seen[inst.Pair] = struct{}{}
	}
	return nil
}

func validateBaseURL(raw, field string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("%s must use one of schemes %v", field, schemes)
}
