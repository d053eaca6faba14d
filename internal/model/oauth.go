package model

import "time"

// OAuthState is one pending authorization attempt
type OAuthState struct {
	State        string    `json:"state"`
	CodeVerifier string    `json:"codeVerifier"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Expired reports whether the attempt is older than ttl at now.
func (s *OAuthState) Expired(now time.Time, ttl time.Duration) bool {
	return ttl > 0 && now.Sub(s.CreatedAt) > ttl
}

// TokenRecord is the persisted platform connection
type TokenRecord struct {
	AccessToken  string     `json:"accessToken"`
	RefreshToken string     `json:"refreshToken,omitempty"`
	TokenType    string     `json:"tokenType,omitempty"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
	ObtainedAt   time.Time  `json:"obtainedAt"`
	ChannelID    string     `json:"channelId,omitempty"`
	ChannelName  string     `json:"channelName,omitempty"`
}

// Expired reports whether the access token is past its expiry at now.
// A record without an expiry never expires by the clock.
func (r *TokenRecord) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && !now.Before(*r.ExpiresAt)
}

// Identity is the minimal channel metadata attached to a connection
type Identity struct {
	ChannelID   string `json:"channelId"`
	ChannelName string `json:"channelName"`
}

// Signal is an outcome reported by the authorization window
type Signal struct {
	Type         SignalType `json:"type" validate:"required,oneof=success error code"`
	State        string     `json:"state" validate:"required"`
	IdentityName string     `json:"identityName,omitempty"`
	Message      string     `json:"message,omitempty"`
	Code         string     `json:"code,omitempty"`
}

// Resolution is the settled outcome of an authorization attempt
type Resolution struct {
	State        string    `json:"state"`
	Success      bool      `json:"success"`
	IdentityName string    `json:"identityName,omitempty"`
	Error        string    `json:"error,omitempty"`
	ResolvedAt   time.Time `json:"resolvedAt"`
}

type OAuthStartResponse struct {
	AuthorizationURL string `json:"authorizationUrl"`
	State            string `json:"state"`
}

type OAuthCallbackRequest struct {
	Code  string `json:"code" validate:"required"`
	State string `json:"state" validate:"required"`
}

// ConnectionStatus reports the stored connection. IdentityName is the
// provider-neutral display name; ChannelName carries the same value.
type ConnectionStatus struct {
	Connected    bool   `json:"connected"`
	IdentityName string `json:"identityName,omitempty"`
	ChannelName  string `json:"channelName,omitempty"`
	ChannelID    string `json:"channelId,omitempty"`
}

// ChannelInfo is returned by the connection test
type ChannelInfo struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	SubscriberCount uint64 `json:"subscriberCount"`
	VideoCount      uint64 `json:"videoCount"`
	ViewCount       uint64 `json:"viewCount"`
}
