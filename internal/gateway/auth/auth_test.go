package auth

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptgate/promptgate/internal/common/config"
	"github.com/promptgate/promptgate/internal/common/errors"
	"github.com/promptgate/promptgate/internal/common/logger"
)

func TestSelectMode(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name  string
		state State
		want  Mode
	}{
		{
			name: "valid subscription wins",
			state: State{
				AccessToken:  "at",
				RefreshToken: "rt",
				ExpiresAt:    now.Add(time.Hour),
				APIKey:       "sk",
			},
			want: ModeSubscription,
		},
		{
			name: "expired subscription falls back to api key",
			state: State{
				AccessToken:  "at",
				RefreshToken: "rt",
				ExpiresAt:    now.Add(-time.Minute),
				APIKey:       "sk",
			},
			want: ModeAPIKey,
		},
		{
			name: "expiry exactly now is not valid",
			state: State{
				AccessToken:  "at",
				RefreshToken: "rt",
				ExpiresAt:    now,
				APIKey:       "sk",
			},
			want: ModeAPIKey,
		},
		{
			name: "missing refresh token disables subscription",
			state: State{
				AccessToken: "at",
				ExpiresAt:   now.Add(time.Hour),
				APIKey:      "sk",
			},
			want: ModeAPIKey,
		},
		{
			name:  "api key only",
			state: State{APIKey: "sk"},
			want:  ModeAPIKey,
		},
		{
			name: "expired subscription without api key",
			state: State{
				AccessToken:  "at",
				RefreshToken: "rt",
				ExpiresAt:    now.Add(-time.Minute),
			},
			want: ModeNone,
		},
		{
			name:  "nothing configured",
			state: State{},
			want:  ModeNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SelectMode(tt.state, now))
		})
	}
}

func TestSelectModeIgnoresPreferenceOverValidity(t *testing.T) {
	now := time.Now()
	state := State{
		AccessToken:        "at",
		RefreshToken:       "rt",
		ExpiresAt:          now.Add(-time.Minute),
		APIKey:             "sk",
		PreferSubscription: true,
	}
	assert.Equal(t, ModeAPIKey, SelectMode(state, now))
}

func newTestProvisioner(t *testing.T, cfg config.CredentialsConfig) *Provisioner {
	t.Helper()
	cfg.StoreDir = filepath.Join(t.TempDir(), StoreDirName)
	p, err := NewProvisioner(cfg, logger.Default())
	require.NoError(t, err)
	return p
}

func TestProvisionWritesRecord(t *testing.T) {
	cfg := config.CredentialsConfig{
		AccessToken:  "at-xyz",
		RefreshToken: "rt-xyz",
		ExpiresAt:    "1700000000000",
	}
	p := newTestProvisioner(t, cfg)
	cfg.StoreDir = p.storeDir

	state, err := p.Provision(cfg)
	require.NoError(t, err)
	assert.True(t, state.HasSubscriptionTokens())
	assert.Equal(t, time.UnixMilli(1700000000000), state.ExpiresAt)

	data, err := os.ReadFile(p.StorePath())
	require.NoError(t, err)

	var record CredentialRecord
	require.NoError(t, json.Unmarshal(data, &record))
	assert.Equal(t, "at-xyz", record.OAuth.AccessToken)
	assert.Equal(t, "rt-xyz", record.OAuth.RefreshToken)
	assert.Equal(t, int64(1700000000000), record.OAuth.ExpiresAtEpochMs)
	assert.Equal(t, []string{"user:inference", "user:profile"}, record.OAuth.Scopes)
	assert.Equal(t, "max", record.OAuth.SubscriptionTier)
	assert.Equal(t, "default", record.OAuth.RateLimitTier)

	info, err := os.Stat(p.StorePath())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestProvisionOverwritesWholeRecord(t *testing.T) {
	cfg := config.CredentialsConfig{AccessToken: "first", RefreshToken: "first-rt"}
	p := newTestProvisioner(t, cfg)
	cfg.StoreDir = p.storeDir

	_, err := p.Provision(cfg)
	require.NoError(t, err)

	cfg.AccessToken = "second"
	cfg.RefreshToken = "second-rt"
	_, err = p.Provision(cfg)
	require.NoError(t, err)

	data, err := os.ReadFile(p.StorePath())
	require.NoError(t, err)

	var record CredentialRecord
	require.NoError(t, json.Unmarshal(data, &record))
	assert.Equal(t, "second", record.OAuth.AccessToken)
}

func TestProvisionSkipsWithoutTokens(t *testing.T) {
	cfg := config.CredentialsConfig{APIKey: "sk-only"}
	p := newTestProvisioner(t, cfg)
	cfg.StoreDir = p.storeDir

	state, err := p.Provision(cfg)
	require.NoError(t, err)
	assert.False(t, state.HasSubscriptionTokens())
	assert.Equal(t, "sk-only", state.APIKey)

	_, statErr := os.Stat(p.StorePath())
	assert.True(t, os.IsNotExist(statErr))
}

func TestProvisionWriteFailureKeepsAPIKey(t *testing.T) {
	// Point the store at a path under a regular file so MkdirAll fails.
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	cfg := config.CredentialsConfig{
		AccessToken:  "at",
		RefreshToken: "rt",
		APIKey:       "sk-fallback",
		StoreDir:     filepath.Join(blocker, "store"),
	}
	p, err := NewProvisioner(cfg, logger.Default())
	require.NoError(t, err)

	state, provErr := p.Provision(cfg)
	require.Error(t, provErr)

	appErr, ok := provErr.(*errors.AppError)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeProvisioningFailed, appErr.Code)

	// The state still carries the API key, so the caller can fall back.
	assert.Equal(t, "sk-fallback", state.APIKey)
}

func TestParseExpiry(t *testing.T) {
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, now.Add(time.Hour), ParseExpiry("", now))
	assert.Equal(t, time.UnixMilli(1700000000000), ParseExpiry("1700000000000", now))

	rfc := "2026-06-01T10:00:00Z"
	want, err := time.Parse(time.RFC3339, rfc)
	require.NoError(t, err)
	assert.Equal(t, want, ParseExpiry(rfc, now))

	assert.Equal(t, now.Add(time.Hour), ParseExpiry("not-a-timestamp", now))
}
