// Package config loads the server configuration and label profiles.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/ryabkov82/um-label-server/internal/logging"
	"github.com/ryabkov82/um-label-server/internal/objectstore"
)

// EnvConfigPath names the environment variable holding the server config file path
const EnvConfigPath = "LABEL_SERVER_CONFIG"

// Server is the configuration of the job server
type Server struct {
	Port            string             `toml:"port"`
	AllowedBaseDir  string             `toml:"allowed_base_dir"`
	OutputDir       string             `toml:"output_dir"`
	APIKey          string             `toml:"api_key"`
	Workers         int                `toml:"workers"`          // render workers per job
	QueueSize       int                `toml:"queue_size"`       // report deliveries waiting for a sender
	DeliveryWorkers int                `toml:"delivery_workers"` // concurrent report deliveries
	Log             logging.Config     `toml:"log"`
	S3              objectstore.Config `toml:"s3"`
	Callback        Callback           `toml:"callback"`
}

// Callback holds credentials used when delivering reports
type Callback struct {
	BasicUser string `toml:"basic_user"`
	BasicPass string `toml:"basic_pass"`
}

// Default returns the built-in server configuration
func Default() Server {
	return Server{
		Port:            "8080",
		AllowedBaseDir:  "/data/incoming",
		OutputDir:       "/data/labels",
		Workers:         4,
		QueueSize:       100,
		DeliveryWorkers: 2,
		Log:             logging.Default(),
	}
}

// LoadServer applies defaults, then the TOML file at path (if path is not
// empty), then environment overrides read through getenv.
func LoadServer(path string, getenv func(string) string) (*Server, error) {
	cfg := Default()
	if getenv == nil {
		getenv = os.Getenv
	}

	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Server) applyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	str("PORT", &c.Port)
	str("ALLOWED_BASE_DIR", &c.AllowedBaseDir)
	str("OUTPUT_DIR", &c.OutputDir)
	str("LABEL_API_KEY", &c.APIKey)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("LOG_FILE", &c.Log.File)
	str("S3_ENDPOINT", &c.S3.Endpoint)
	str("S3_ACCESS_KEY", &c.S3.AccessKey)
	str("S3_SECRET_KEY", &c.S3.SecretKey)
	str("S3_BUCKET", &c.S3.Bucket)
	str("S3_REGION", &c.S3.Region)
	str("S3_PREFIX", &c.S3.Prefix)
	str("CALLBACK_BASIC_USER", &c.Callback.BasicUser)
	str("CALLBACK_BASIC_PASS", &c.Callback.BasicPass)

	if v := strings.TrimSpace(getenv("S3_USE_SSL")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("S3_USE_SSL: %w", err)
		}
		c.S3.UseSSL = b
	}
	if v := strings.TrimSpace(getenv("LABEL_WORKERS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LABEL_WORKERS: %w", err)
		}
		c.Workers = n
	}
	return nil
}

// Validate checks the merged configuration
func (c *Server) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("invalid port %q", c.Port)
	}
	if c.AllowedBaseDir == "" {
		return errors.New("allowed_base_dir is required")
	}
	if c.OutputDir == "" {
		return errors.New("output_dir is required")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("queue_size must be positive, got %d", c.QueueSize)
	}
	if c.DeliveryWorkers < 1 {
		return fmt.Errorf("delivery_workers must be positive, got %d", c.DeliveryWorkers)
	}
	if c.S3.Enabled() {
		if err := c.S3.Validate(); err != nil {
			return fmt.Errorf("s3: %w", err)
		}
	}
	return nil
}
