// Package config loads storage client settings from a YAML file and
// MANTA_* environment variables, and builds the request signer they
// describe.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/vitalvas/mantasig/httpsig"
)

// Defaults applied by Load.
const (
	DefaultURL     = "https://us-east.manta.joyent.com"
	DefaultTimeout = 20 * time.Second
)

var (
	// ErrNoUser is returned by Validate when no account name is set.
	ErrNoUser = errors.New("config: user must not be empty")

	// ErrKeySource is returned by Validate when both or neither of
	// KeyPath and KeyContent are set.
	ErrKeySource = errors.New("config: exactly one of key_path and key_content must be set")

	// ErrInvalidTimeout is returned for a negative or unparseable timeout.
	ErrInvalidTimeout = errors.New("config: invalid timeout")
)

// Config holds storage client settings.
type Config struct {
	URL        string        `yaml:"url"`
	User       string        `yaml:"user"`
	KeyPath    string        `yaml:"key_path"`
	KeyContent string        `yaml:"key_content"`
	KeyID      string        `yaml:"key_id"`
	Passphrase string        `yaml:"password"`

	// Timeout is read from "timeout" by UnmarshalYAML, in the same forms
	// MANTA_TIMEOUT accepts.
	Timeout time.Duration `yaml:"-"`

	// Headers lists extra headers to cover in the signature. Empty keeps
	// the Date-only signing string.
	Headers []string `yaml:"headers"`
}

// Default returns a Config with the default URL and timeout.
func Default() Config {
	return Config{
		URL:     DefaultURL,
		Timeout: DefaultTimeout,
	}
}

// DefaultKeyPath returns $HOME/.ssh/id_rsa, or an empty string when the
// home directory is unknown.
func DefaultKeyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".ssh", "id_rsa")
}

// Load reads the YAML file at path, when path is not empty, over Default
// and then applies environment overrides. When neither a key path nor key
// content is configured, DefaultKeyPath is used.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: %w", err)
		}

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}

	if cfg.KeyPath == "" && cfg.KeyContent == "" {
		cfg.KeyPath = DefaultKeyPath()
	}

	return cfg, nil
}

// UnmarshalYAML decodes a Config, reading timeout as either a Go duration
// or bare milliseconds.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	type plain Config

	raw := struct {
		plain   `yaml:",inline"`
		Timeout *yaml.Node `yaml:"timeout"`
	}{plain: plain(*c)}

	if err := value.Decode(&raw); err != nil {
		return err
	}

	*c = Config(raw.plain)

	if raw.Timeout != nil {
		if raw.Timeout.Kind != yaml.ScalarNode {
			return fmt.Errorf("%w: line %d", ErrInvalidTimeout, raw.Timeout.Line)
		}

		d, err := parseTimeout(raw.Timeout.Value)
		if err != nil {
			return err
		}

		c.Timeout = d
	}

	return nil
}

// applyEnv overlays MANTA_* variables. A key source from the environment
// replaces the other key source from the file.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("MANTA_URL"); ok && v != "" {
		c.URL = v
	}

	if v, ok := lookup("MANTA_USER"); ok && v != "" {
		c.User = v
	}

	if v, ok := lookup("MANTA_KEY_PATH"); ok && v != "" {
		c.KeyPath = v
		c.KeyContent = ""
	}

	if v, ok := lookup("MANTA_KEY_CONTENT"); ok && v != "" {
		c.KeyContent = v
		c.KeyPath = ""
	}

	if v, ok := lookup("MANTA_KEY_ID"); ok && v != "" {
		c.KeyID = v
	}

	if v, ok := lookup("MANTA_PASSWORD"); ok && v != "" {
		c.Passphrase = v
	}

	if v, ok := lookup("MANTA_TIMEOUT"); ok && v != "" {
		d, err := parseTimeout(v)
		if err != nil {
			return err
		}

		c.Timeout = d
	}

	return nil
}

// parseTimeout accepts a Go duration ("30s") or a bare number of
// milliseconds ("20000").
func parseTimeout(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)

	d, err := time.ParseDuration(v)
	if err != nil {
		ms, msErr := strconv.ParseInt(v, 10, 64)
		if msErr != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTimeout, v)
		}

		d = time.Duration(ms) * time.Millisecond
	}

	if d < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeout, v)
	}

	return d, nil
}

// Validate checks the settings needed to sign requests.
func (c Config) Validate() error {
	if c.User == "" {
		return ErrNoUser
	}

	if (c.KeyPath == "") == (c.KeyContent == "") {
		return ErrKeySource
	}

	if c.Timeout < 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTimeout, c.Timeout)
	}

	return nil
}

// NewSigner loads the configured key and returns a Signer for User. A
// configured KeyID is cross-checked against the loaded key. logger may be
// nil.
func (c Config) NewSigner(logger logrus.FieldLogger) (*httpsig.Signer, error) {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	keyCfg := httpsig.KeyConfig{
		Passphrase:  []byte(c.Passphrase),
		Fingerprint: c.KeyID,
	}

	var (
		key *httpsig.Key
		err error
	)

	if c.KeyContent != "" {
		logger.Debug("loading signing key from configuration content")
		key, err = httpsig.ParseKey([]byte(c.KeyContent), keyCfg)
	} else {
		logger.WithField("path", c.KeyPath).Debug("loading signing key")
		key, err = httpsig.LoadKeyFile(c.KeyPath, keyCfg)
	}

	clear(keyCfg.Passphrase)

	if err != nil {
		return nil, err
	}

	signer, err := httpsig.NewSigner(key, httpsig.SignerConfig{
		Account: c.User,
		Headers: c.Headers,
	})
	if err != nil {
		key.Close()
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"key_id":      signer.Context().KeyID,
		"fingerprint": key.Fingerprint(),
	}).Info("signing key loaded")

	return signer, nil
}

// String describes the configuration without secrets.
func (c Config) String() string {
	source := "key_path=" + c.KeyPath
	if c.KeyContent != "" {
		source = "key_content=<redacted>"
	}

	return fmt.Sprintf("url=%s user=%s %s timeout=%s", c.URL, c.User, source, c.Timeout)
}
