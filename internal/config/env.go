package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variables overriding file settings
const (
	EnvHTTPPort           = "NARRATION_HTTP_PORT"
	EnvDataDir            = "NARRATION_DATA_DIR"
	EnvPlaybackOutput     = "NARRATION_PLAYBACK_OUTPUT"
	EnvRecognizerEnabled  = "NARRATION_RECOGNIZER_ENABLED"
	EnvRecognizerEndpoint = "NARRATION_RECOGNIZER_ENDPOINT"
	EnvRecognizerAPIKey   = "NARRATION_RECOGNIZER_API_KEY"
	EnvLogLevel           = "NARRATION_LOG_LEVEL"
)

// LoadEnv loads .env files into the process environment without replacing
// variables that are already set. With no arguments it reads ./.env.
func LoadEnv(paths ...string) error {
	return godotenv.Load(paths...)
}

// ApplyEnv copies NARRATION_* overrides into c
func (c *Config) ApplyEnv() error {
	if err := intFromEnv(EnvHTTPPort, &c.HTTP.Port); err != nil {
		return err
	}

	if v := os.Getenv(EnvDataDir); v != "" {
		c.Documents.DataDir = v
	}

	if v := os.Getenv(EnvPlaybackOutput); v != "" {
		c.Playback.Output = v
	}

	if v := os.Getenv(EnvRecognizerEnabled); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s must be a boolean, got '%s'", EnvRecognizerEnabled, v)
		}
		c.Recognizer.Enabled = enabled
	}

	if v := os.Getenv(EnvRecognizerEndpoint); v != "" {
		c.Recognizer.Endpoint = v
	}

	if v := os.Getenv(EnvRecognizerAPIKey); v != "" {
		c.Recognizer.APIKey = v
	}

	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}

	return nil
}

// intFromEnv parses an integer environment override
func intFromEnv(key string, dst *int) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s must be an integer, got '%s'", key, v)
	}
	*dst = n
	return nil
}
