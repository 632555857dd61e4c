package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// DefaultArchiveURL is the public archive endpoint.
const DefaultArchiveURL = "https://astroarchive.noao.edu"

// ArchiveEnv holds the archive client settings read from the environment.
type ArchiveEnv struct {
	URL      string        `envconfig:"ARCHIVE_URL" default:"https://astroarchive.noao.edu"`
	Username string        `envconfig:"ARCHIVE_USERNAME"`
	Password string        `envconfig:"ARCHIVE_PASSWORD"`
	Timeout  time.Duration `envconfig:"ARCHIVE_TIMEOUT" default:"60s"`
	Verbose  bool          `envconfig:"ARCHIVE_VERBOSE" default:"false"`
}

// LoadArchiveEnv reads ArchiveEnv from the process environment.
func LoadArchiveEnv() (*ArchiveEnv, error) {
	var env ArchiveEnv
	if err := envconfig.Process("", &env); err != nil {
		return nil, fmt.Errorf("failed to read archive environment: %w", err)
	}
	if env.Timeout < 0 {
		return nil, fmt.Errorf("ARCHIVE_TIMEOUT must be non-negative, got %s", env.Timeout)
	}
	return &env, nil
}

// HasCredentials reports whether both username and password are set.
func (e *ArchiveEnv) HasCredentials() bool {
	return e.Username != "" && e.Password != ""
}
