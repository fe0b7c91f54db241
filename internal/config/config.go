// Package config loads the bridge configuration from a JSON file and
// fills in defaults for everything left unset.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"printhub/internal/salesbook"
	"printhub/pkg/cts310"
)

// Pollers configures the daemon's background loops, in seconds.
type Pollers struct {
	StatusInterval int `json:"statusIntervalSeconds,omitempty"`
}

// Config is the root of config.json.
type Config struct {
	Serial    cts310.SerialConfig `json:"serial"`
	Driver    cts310.Config       `json:"driver"`
	SalesBook salesbook.Config    `json:"salesBook"`
	Pollers   Pollers             `json:"pollers"`

	// SequenceFile stores the persisted NKF sequence counter.
	SequenceFile string `json:"sequenceFile,omitempty"`
}

// Load reads and decodes path, then applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	c.ApplyDefaults()
	return &c, nil
}

// ApplyDefaults fills every unset field with its working default.
func (c *Config) ApplyDefaults() {
	if c.Serial.Port == "" {
		c.Serial.Port = "/dev/ttyUSB0"
	}
	if c.SequenceFile == "" {
		c.SequenceFile = "sequence.json"
	}
	c.SalesBook.ApplyDefaults()
	if c.Pollers.StatusInterval <= 0 {
		c.Pollers.StatusInterval = 60
	}
}
