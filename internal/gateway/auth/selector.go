package auth

import "time"

// Mode is the credential mode an execution runs under.
type Mode string

const (
	ModeSubscription Mode = "subscription"
	ModeAPIKey       Mode = "api_key"
	ModeNone         Mode = "none"
)

// SelectMode derives the auth mode from the credential state at the given
// instant. It is a pure function and must be re-evaluated per request since
// subscription validity is time-dependent.
//
// Subscription wins whenever it is valid: both tokens present and expiry
// strictly in the future. A caller's "prefer subscription" intent never
// overrides validity; an expired subscription falls back to the API key if
// one is configured, else ModeNone.
func SelectMode(state State, now time.Time) Mode {
	if state.HasSubscriptionTokens() && state.ExpiresAt.After(now) {
		return ModeSubscription
	}
	if state.APIKey != "" {
		return ModeAPIKey
	}
	return ModeNone
}
