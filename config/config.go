// Package config loads the YAML configuration of the validation engine: the
// validation policy and the logging setup.
package config

import (
	"bytes"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/georgepadayatti/adesval/certvalidator"
	"github.com/georgepadayatti/adesval/certvalidator/trustlist"
	"github.com/georgepadayatti/adesval/evidence"
	"github.com/georgepadayatti/adesval/keys"
	"github.com/georgepadayatti/adesval/sign/ades"
	"github.com/georgepadayatti/adesval/sign/validation"
)

// Common errors
var (
	ErrConfigurationError   = errors.New("configuration error")
	ErrMissingRequiredField = errors.New("missing required field")
)

// ConfigError represents a configuration error with context.
type ConfigError struct {
	Field   string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config error in '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("config error: %s", e.Message)
}

func (e *ConfigError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrConfigurationError
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

// AlgorithmConfig accepts one algorithm, optionally until an expiry date.
type AlgorithmConfig struct {
	Name string `yaml:"name" json:"name"`

	// Expires is an RFC 3339 timestamp or a YYYY-MM-DD date. Empty means
	// the algorithm never expires.
	Expires string `yaml:"expires" json:"expires,omitempty"`
}

// UnmarshalYAML accepts both a bare algorithm name and a mapping.
func (a *AlgorithmConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		a.Name = node.Value
		a.Expires = ""
		return nil
	}
	type plain AlgorithmConfig
	return node.Decode((*plain)(a))
}

func (a AlgorithmConfig) expiry() (*time.Time, error) {
	if a.Expires == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, a.Expires); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid expiry %q for %s", a.Expires, a.Name)
}

// TrustStoreConfig points at a PKCS#12 trust store.
type TrustStoreConfig struct {
	File     string `yaml:"file" json:"file"`
	Password string `yaml:"password" json:"password,omitempty"`
}

// TrustedListConfig points at an ETSI TS 119 612 trusted list whose
// approved services contribute trust anchors.
type TrustedListConfig struct {
	File string `yaml:"file" json:"file"`

	// Signers are PEM or DER files with the list operator certificates.
	Signers []string `yaml:"signers" json:"signers,omitempty"`

	// AllowUnsigned reads the list without verifying its signature when
	// no signers are configured.
	AllowUnsigned bool `yaml:"allow-unsigned" json:"allow_unsigned"`

	// AllowExpired accepts a list past its next update.
	AllowExpired bool `yaml:"allow-expired" json:"allow_expired"`

	// ServiceTypes restricts the services used. Empty uses every service.
	ServiceTypes []string `yaml:"service-types" json:"service_types,omitempty"`
}

func (c *TrustedListConfig) load(at time.Time) ([]*x509.Certificate, error) {
	data, err := os.ReadFile(c.File)
	if err != nil {
		return nil, err
	}
	var tl *trustlist.TrustedList
	if len(c.Signers) > 0 {
		signers, err := keys.LoadCertsFromPemDerFiles(c.Signers)
		if err != nil {
			return nil, err
		}
		tl, err = trustlist.ParseSigned(data, signers)
		if err != nil {
			return nil, err
		}
	} else {
		tl, err = trustlist.Parse(data)
		if err != nil {
			return nil, err
		}
	}
	if !c.AllowExpired && tl.Expired(at) {
		return nil, fmt.Errorf("trusted list %s expired on %s", c.File, tl.NextUpdate.Format(time.RFC3339))
	}
	return tl.Anchors(at, c.ServiceTypes...), nil
}

// PolicyConfig is the YAML form of a validation policy.
type PolicyConfig struct {
	// Name identifies the policy in reports.
	Name string `yaml:"name" json:"name,omitempty"`

	// RequiredLevel is B, T or LTA, with or without a format prefix.
	RequiredLevel string `yaml:"required-level" json:"required_level,omitempty"`

	// DigestAlgorithms lists acceptable digest algorithms. Empty accepts
	// every algorithm.
	DigestAlgorithms []AlgorithmConfig `yaml:"digest-algorithms" json:"digest_algorithms,omitempty"`

	// EncryptionAlgorithms lists acceptable encryption algorithms. Empty
	// accepts every algorithm.
	EncryptionAlgorithms []AlgorithmConfig `yaml:"encryption-algorithms" json:"encryption_algorithms,omitempty"`

	// TrustAnchors are PEM or DER certificate files.
	TrustAnchors []string `yaml:"trust-anchors" json:"trust_anchors,omitempty"`

	// TrustStore is a PKCS#12 trust store holding further anchors.
	TrustStore *TrustStoreConfig `yaml:"trust-store" json:"trust_store,omitempty"`

	// TrustedLists contribute the certificates of their approved services.
	TrustedLists []TrustedListConfig `yaml:"trusted-lists" json:"trusted_lists,omitempty"`

	IncludeAnchorInChain bool `yaml:"include-anchor-in-chain" json:"include_anchor_in_chain"`
	RequireRevocation    bool `yaml:"require-revocation" json:"require_revocation"`

	// Constraints are CEL signature acceptance expressions.
	Constraints []string `yaml:"constraints" json:"constraints,omitempty"`
}

// Validate checks the fields that can be checked without touching files.
func (c *PolicyConfig) Validate() error {
	if c.RequiredLevel != "" {
		if _, err := ades.ParseSignatureLevel(c.RequiredLevel); err != nil {
			return &ConfigError{Field: "required-level", Message: err.Error(), Err: err}
		}
	}
	for _, a := range append(append([]AlgorithmConfig{}, c.DigestAlgorithms...), c.EncryptionAlgorithms...) {
		if a.Name == "" {
			return &ConfigError{Field: "algorithms", Message: "algorithm name is empty", Err: ErrMissingRequiredField}
		}
		if _, err := a.expiry(); err != nil {
			return &ConfigError{Field: "algorithms", Message: err.Error()}
		}
	}
	if c.TrustStore != nil && c.TrustStore.File == "" {
		return &ConfigError{Field: "trust-store.file", Message: "required field is missing", Err: ErrMissingRequiredField}
	}
	for _, tl := range c.TrustedLists {
		if tl.File == "" {
			return &ConfigError{Field: "trusted-lists.file", Message: "required field is missing", Err: ErrMissingRequiredField}
		}
		if len(tl.Signers) == 0 && !tl.AllowUnsigned {
			return &ConfigError{Field: "trusted-lists.signers", Message: fmt.Sprintf("%s has no signers and allow-unsigned is off", tl.File)}
		}
	}
	return nil
}

// LoadAnchors loads the trust anchors in force now.
func (c *PolicyConfig) LoadAnchors(extra ...string) (*certvalidator.TrustedSource, error) {
	return c.LoadAnchorsAt(time.Now(), extra...)
}

// LoadAnchorsAt loads the configured trust anchors from certificate files,
// the trust store and the trusted lists, taking the services approved at
// at. Certificates of the extra files are added as well.
func (c *PolicyConfig) LoadAnchorsAt(at time.Time, extra ...string) (*certvalidator.TrustedSource, error) {
	files := append(append([]string{}, c.TrustAnchors...), extra...)
	certs, err := keys.LoadCertsFromPemDerFiles(files)
	if err != nil {
		return nil, &ConfigError{Field: "trust-anchors", Message: err.Error(), Err: err}
	}
	if c.TrustStore != nil {
		ks, err := keys.Load(c.TrustStore.File, c.TrustStore.Password)
		if err != nil {
			return nil, &ConfigError{Field: "trust-store", Message: err.Error(), Err: err}
		}
		certs = append(certs, ks.Certificates()...)
	}
	for i := range c.TrustedLists {
		tlCerts, err := c.TrustedLists[i].load(at)
		if err != nil {
			return nil, &ConfigError{Field: "trusted-lists", Message: err.Error(), Err: err}
		}
		certs = append(certs, tlCerts...)
	}
	return certvalidator.NewTrustedSource(evidence.CertificatesFromX509(certs)...), nil
}

// ToPolicy builds the validation policy using anchors as trust anchors.
// A nil anchors loads them with LoadAnchors.
func (c *PolicyConfig) ToPolicy(anchors certvalidator.CertificateSource) (*validation.Policy, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if anchors == nil {
		src, err := c.LoadAnchors()
		if err != nil {
			return nil, err
		}
		anchors = src
	}

	p := validation.DefaultPolicy(anchors)
	if c.Name != "" {
		p.Name = c.Name
	}
	if c.RequiredLevel != "" {
		level, _ := ades.ParseSignatureLevel(c.RequiredLevel)
		p.RequiredLevel = level
	}
	if c.DigestAlgorithms != nil {
		p.AcceptableDigestAlgorithms = algorithmTable(c.DigestAlgorithms)
	}
	if c.EncryptionAlgorithms != nil {
		p.AcceptableEncryptionAlgorithms = algorithmTable(c.EncryptionAlgorithms)
	}
	p.IncludeAnchorInChain = c.IncludeAnchorInChain
	p.RequireRevocation = c.RequireRevocation
	p.SignatureConstraints = append([]string(nil), c.Constraints...)
	return p, nil
}

// algorithmTable assumes the entries were validated.
func algorithmTable(algs []AlgorithmConfig) map[string]*time.Time {
	table := make(map[string]*time.Time, len(algs))
	for _, a := range algs {
		exp, _ := a.expiry()
		table[a.Name] = exp
	}
	return table
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `yaml:"level" json:"level,omitempty"`

	// Format is the log format (text, json).
	Format string `yaml:"format" json:"format,omitempty"`

	// Output is the log output (stdout, stderr, or file path).
	Output string `yaml:"output" json:"output,omitempty"`
}

// SetDefaults sets default values for logging configuration.
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "text"
	}
	if c.Output == "" {
		c.Output = "stderr"
	}
}

// NewLogger builds a logger from the configuration. The returned closer
// releases the output file, if any.
func (c *LoggingConfig) NewLogger(stdout, stderr io.Writer) (*slog.Logger, io.Closer, error) {
	cfg := *c
	cfg.SetDefaults()

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, nil, &ConfigError{Field: "logging.level", Message: fmt.Sprintf("unknown level %q", cfg.Level), Err: err}
	}

	var (
		w      io.Writer
		closer io.Closer = io.NopCloser(nil)
	)
	switch cfg.Output {
	case "stdout":
		w = stdout
	case "stderr":
		w = stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, &ConfigError{Field: "logging.output", Message: err.Error(), Err: err}
		}
		w, closer = f, f
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		closer.Close()
		return nil, nil, &ConfigError{Field: "logging.format", Message: fmt.Sprintf("unknown format %q", cfg.Format)}
	}
	return slog.New(handler), closer, nil
}

// AppConfig contains the complete application configuration.
type AppConfig struct {
	// Policy contains the validation policy.
	Policy *PolicyConfig `yaml:"policy" json:"policy,omitempty"`

	// Logging contains logging configuration.
	Logging *LoggingConfig `yaml:"logging" json:"logging,omitempty"`
}

// LoadAppConfig loads the complete application configuration from a file.
func LoadAppConfig(filename string) (*AppConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseAppConfig(data)
}

// ParseAppConfig parses the application configuration from YAML data and
// applies defaults.
func ParseAppConfig(data []byte) (*AppConfig, error) {
	var config AppConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if config.Policy == nil {
		config.Policy = &PolicyConfig{}
	}
	if err := config.Policy.Validate(); err != nil {
		return nil, err
	}
	if config.Logging == nil {
		config.Logging = &LoggingConfig{}
	}
	config.Logging.SetDefaults()

	return &config, nil
}
