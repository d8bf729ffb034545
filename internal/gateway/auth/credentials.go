// Package auth manages agent credentials: provisioning the on-disk credential
// record at boot and selecting the auth mode for each execution.
package auth

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/promptgate/promptgate/internal/common/config"
	"github.com/promptgate/promptgate/internal/common/errors"
	"github.com/promptgate/promptgate/internal/common/logger"
)

const (
	// StoreDirName is the credential store directory under the home dir.
	StoreDirName = ".credentials-store"
	// StoreFileName is the credential record file inside the store dir.
	StoreFileName = "credentials.json"

	defaultExpiryWindow = time.Hour
)

// Environment variable names of the child-process credential groups. The two
// groups are mutually exclusive in any spawned environment.
const (
	EnvAccessToken  = "CLAUDE_ACCESS_TOKEN"
	EnvRefreshToken = "CLAUDE_REFRESH_TOKEN"
	EnvExpiresAt    = "CLAUDE_EXPIRES_AT"
	EnvAPIKey       = "ANTHROPIC_API_KEY"
)

// OAuthCredentials is the persisted OAuth portion of the credential record.
type OAuthCredentials struct {
	AccessToken      string   `json:"accessToken"`
	RefreshToken     string   `json:"refreshToken"`
	ExpiresAtEpochMs int64    `json:"expiresAtEpochMs"`
	Scopes           []string `json:"scopes"`
	SubscriptionTier string   `json:"subscriptionTier"`
	RateLimitTier    string   `json:"rateLimitTier"`
}

// CredentialRecord is the on-disk credential store format consumed by the
// agent CLI.
type CredentialRecord struct {
	OAuth OAuthCredentials `json:"oauth"`
}

// State is the in-memory credential state the mode selector evaluates per
// request. It is written once at boot and read-only afterwards.
type State struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	APIKey       string

	// PreferSubscription carries the caller's declared intent. Mode selection
	// never consults it: subscription already wins whenever valid, and an
	// expired subscription falls back to the API key regardless.
	PreferSubscription bool
}

// HasSubscriptionTokens reports whether both OAuth tokens are present,
// regardless of expiry.
func (s State) HasSubscriptionTokens() bool {
	return s.AccessToken != "" && s.RefreshToken != ""
}

// Provisioner writes the credential record to persistent local storage.
type Provisioner struct {
	storeDir string
	logger   *logger.Logger
}

// NewProvisioner creates a provisioner targeting the configured store
// directory, defaulting to <user home>/.credentials-store.
func NewProvisioner(cfg config.CredentialsConfig, log *logger.Logger) (*Provisioner, error) {
	storeDir := cfg.StoreDir
	if storeDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, errors.Provisioning("cannot resolve home directory", err)
		}
		storeDir = filepath.Join(home, StoreDirName)
	}

	return &Provisioner{
		storeDir: storeDir,
		logger:   log.WithFields(zap.String("component", "credential-provisioner")),
	}, nil
}

// StorePath returns the full path of the credential record file.
func (p *Provisioner) StorePath() string {
	return filepath.Join(p.storeDir, StoreFileName)
}

// Provision materializes the credential record from the raw secrets and
// returns the credential state for the mode selector.
//
// When either OAuth token is absent, provisioning is skipped entirely and the
// gateway falls back to API-key mode; this is not an error. A write failure
// is a ProvisioningError but is fatal to subscription mode only: the returned
// state still carries the API key, so the caller decides whether to continue.
func (p *Provisioner) Provision(cfg config.CredentialsConfig) (State, error) {
	now := time.Now()
	expiresAt := ParseExpiry(cfg.ExpiresAt, now)

	state := State{
		AccessToken:        cfg.AccessToken,
		RefreshToken:       cfg.RefreshToken,
		ExpiresAt:          expiresAt,
		APIKey:             cfg.APIKey,
		PreferSubscription: cfg.PreferSubscription,
	}

	if !state.HasSubscriptionTokens() {
		p.logger.Info("subscription tokens absent, skipping credential provisioning",
			zap.Bool("api_key_present", cfg.APIKey != ""))
		return state, nil
	}

	record := CredentialRecord{
		OAuth: OAuthCredentials{
			AccessToken:      cfg.AccessToken,
			RefreshToken:     cfg.RefreshToken,
			ExpiresAtEpochMs: expiresAt.UnixMilli(),
			Scopes:           []string{"user:inference", "user:profile"},
			SubscriptionTier: "max",
			RateLimitTier:    "default",
		},
	}

	if err := p.write(record); err != nil {
		return state, err
	}

	p.logger.Info("credential record provisioned",
		zap.String("path", p.StorePath()),
		zap.Time("expires_at", expiresAt))
	return state, nil
}

// write creates the store directory if absent and writes the record whole.
// The record is overwritten wholesale on each boot, never partially mutated.
func (p *Provisioner) write(record CredentialRecord) error {
	if err := os.MkdirAll(p.storeDir, 0o700); err != nil {
		return errors.Provisioning("failed to create credential store directory", err)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return errors.Provisioning("failed to encode credential record", err)
	}

	if err := os.WriteFile(p.StorePath(), data, 0o600); err != nil {
		return errors.Provisioning("failed to write credential record", err)
	}

	return nil
}

// ParseExpiry interprets the raw expiry input: an epoch-millisecond string, an
// RFC3339 timestamp, or empty for the default one-hour window from now.
// Unparseable values also fall back to the default window.
func ParseExpiry(raw string, now time.Time) time.Time {
	if raw == "" {
		return now.Add(defaultExpiryWindow)
	}

	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms)
	}

	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t
	}

	return now.Add(defaultExpiryWindow)
}
