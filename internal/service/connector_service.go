package service

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"golang.org/x/oauth2"
	"google.golang.org/api/youtube/v3"

	"github.com/shortsmith/api/internal/config"
	"github.com/shortsmith/api/internal/model"
	"github.com/shortsmith/api/internal/store"
)

const (
	oauthStatePrefix = "oauth:state:"
	oauthTokenKey    = "oauth:token:youtube"
	stateAlphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	stateLength      = 32

	// DefaultChannelName is reported when the identity lookup failed.
	DefaultChannelName = "YouTube Channel"
)

// ChannelAPI is the part of the YouTube client the connector needs.
type ChannelAPI interface {
	FetchIdentity(ctx context.Context, accessToken string) (*model.Identity, error)
	ChannelInfo(ctx context.Context, accessToken string) (*model.ChannelInfo, error)
}

// ConnectorService owns the YouTube connection: the PKCE authorization
// flow, the stored token and its refresh.
type ConnectorService struct {
	kv         store.KV
	oauth      *oauth2.Config
	channels   ChannelAPI
	revokeURL  string
	stateTTL   time.Duration
	httpClient *http.Client
	relay      *SignalRelay
	sweeper    *cron.Cron

	consumeMu sync.Mutex
	refreshMu sync.Mutex
	now       func() time.Time
	logger    arbor.ILogger
}

// NewOAuthConfig builds the Google OAuth client for the upload scopes.
func NewOAuthConfig(cfg *config.OAuthConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       []string{youtube.YoutubeUploadScope, youtube.YoutubeReadonlyScope},
		Endpoint: oauth2.Endpoint{
			AuthURL:   cfg.AuthURL,
			TokenURL:  cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func NewConnectorService(cfg *config.OAuthConfig, kv store.KV, channels ChannelAPI, logger arbor.ILogger) *ConnectorService {
	s := &ConnectorService{
		kv:         kv,
		oauth:      NewOAuthConfig(cfg),
		channels:   channels,
		revokeURL:  cfg.RevokeURL,
		stateTTL:   cfg.StateTTL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		now:        time.Now,
		logger:     logger,
	}
	s.relay = newSignalRelay(s, cfg.StateTTL, logger)
	return s
}

// Relay returns the signal relay bound to this connector.
func (s *ConnectorService) Relay() *SignalRelay {
	return s.relay
}

// IsConfigured reports whether client credentials are present.
func (s *ConnectorService) IsConfigured() bool {
	return s.oauth.ClientID != "" && s.oauth.ClientSecret != ""
}

// StartAuthorization creates a single-use state with its PKCE verifier and
// returns the consent URL.
func (s *ConnectorService) StartAuthorization(ctx context.Context) (*model.OAuthStartResponse, error) {
	if !s.IsConfigured() {
		return nil, fmt.Errorf("google oauth: %w", model.ErrNotConfigured)
	}

	state, err := randomState()
	if err != nil {
		return nil, err
	}
	verifier := oauth2.GenerateVerifier()

	data, err := json.Marshal(&model.OAuthState{State: state, CodeVerifier: verifier, CreatedAt: s.now().UTC()})
	if err != nil {
		return nil, err
	}
	if err := s.kv.Put(ctx, oauthStatePrefix+state, data, s.stateTTL); err != nil {
		return nil, fmt.Errorf("failed to save oauth state: %w", err)
	}

	authURL := s.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(verifier),
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	)
	s.relay.Expect(state)

	s.logger.Info().Str("state", state[:6]).Msg("OAuth authorization started")
	return &model.OAuthStartResponse{AuthorizationURL: authURL, State: state}, nil
}

// CompleteAuthorization trades code for tokens. The state is consumed before
// the exchange, so a replay fails even if the first exchange did.
func (s *ConnectorService) CompleteAuthorization(ctx context.Context, code, state string) (*model.TokenRecord, error) {
	st, err := s.consumeState(ctx, state)
	if err != nil {
		return nil, err
	}

	tok, err := s.oauth.Exchange(ctx, code, oauth2.VerifierOption(st.CodeVerifier))
	if err != nil {
		return nil, fmt.Errorf("token exchange: %w", err)
	}

	rec := &model.TokenRecord{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		ObtainedAt:   s.now().UTC(),
		ChannelName:  DefaultChannelName,
	}
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry.UTC()
		rec.ExpiresAt = &exp
	}

	if id, err := s.channels.FetchIdentity(ctx, tok.AccessToken); err != nil {
		s.logger.Warn().Err(err).Msg("Channel lookup failed, storing connection without identity")
	} else {
		rec.ChannelID = id.ChannelID
		if id.ChannelName != "" {
			rec.ChannelName = id.ChannelName
		}
	}

	if err := s.saveToken(ctx, rec); err != nil {
		return nil, err
	}
	s.logger.Info().Str("channel", rec.ChannelName).Msg("YouTube account connected")
	return rec, nil
}

func (s *ConnectorService) consumeState(ctx context.Context, state string) (*model.OAuthState, error) {
	if state == "" {
		return nil, model.ErrInvalidState
	}

	s.consumeMu.Lock()
	defer s.consumeMu.Unlock()

	key := oauthStatePrefix + state
	data, err := s.kv.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidKey) {
		return nil, model.ErrInvalidState
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load oauth state: %w", err)
	}
	if err := s.kv.Delete(ctx, key); err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to consume oauth state: %w", err)
	}

	var st model.OAuthState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, model.ErrInvalidState
	}
	if st.Expired(s.now(), s.stateTTL) {
		return nil, model.ErrInvalidState
	}
	return &st, nil
}

// EnsureFreshToken returns a usable access token, refreshing it once when
// it has expired. Every way of needing the consent flow again wraps
// model.ErrReauthorizationRequired.
func (s *ConnectorService) EnsureFreshToken(ctx context.Context) (string, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	rec, err := s.loadToken(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("%w: no connected account", model.ErrReauthorizationRequired)
	}
	if err != nil {
		return "", err
	}
	if !rec.Expired(s.now()) {
		return rec.AccessToken, nil
	}
	if rec.RefreshToken == "" {
		return "", fmt.Errorf("%w: token expired and no refresh token", model.ErrReauthorizationRequired)
	}

	tok, err := s.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: rec.RefreshToken}).Token()
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) && (rerr.ErrorCode == "invalid_grant" || rerr.ErrorCode == "unauthorized_client") {
			return "", fmt.Errorf("%w: refresh rejected: %s", model.ErrReauthorizationRequired, rerr.ErrorCode)
		}
		return "", fmt.Errorf("token refresh: %w", err)
	}

	rec.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		rec.RefreshToken = tok.RefreshToken
	}
	if tok.TokenType != "" {
		rec.TokenType = tok.TokenType
	}
	rec.ObtainedAt = s.now().UTC()
	rec.ExpiresAt = nil
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry.UTC()
		rec.ExpiresAt = &exp
	}
	if err := s.saveToken(ctx, rec); err != nil {
		return "", err
	}
	s.logger.Info().Msg("YouTube access token refreshed")
	return rec.AccessToken, nil
}

// Status reports whether an account is connected.
func (s *ConnectorService) Status(ctx context.Context) (*model.ConnectionStatus, error) {
	rec, err := s.loadToken(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return &model.ConnectionStatus{Connected: false}, nil
	}
	if err != nil {
		return nil, err
	}
	return &model.ConnectionStatus{
		Connected:    true,
		IdentityName: rec.ChannelName,
		ChannelName:  rec.ChannelName,
		ChannelID:    rec.ChannelID,
	}, nil
}

// Disconnect revokes the grant at the provider when possible and forgets
// the connection.
func (s *ConnectorService) Disconnect(ctx context.Context) error {
	rec, err := s.loadToken(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	token := rec.RefreshToken
	if token == "" {
		token = rec.AccessToken
	}
	if err := s.revoke(ctx, token); err != nil {
		s.logger.Warn().Err(err).Msg("Token revocation failed, deleting local connection anyway")
	}

	if err := s.kv.Delete(ctx, oauthTokenKey); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to delete connection: %w", err)
	}
	s.logger.Info().Msg("YouTube account disconnected")
	return nil
}

// TestConnection proves the stored token works by reading the channel.
func (s *ConnectorService) TestConnection(ctx context.Context) (*model.ChannelInfo, error) {
	token, err := s.EnsureFreshToken(ctx)
	if err != nil {
		return nil, err
	}
	return s.channels.ChannelInfo(ctx, token)
}

func (s *ConnectorService) revoke(ctx context.Context, token string) error {
	if s.revokeURL == "" || token == "" {
		return nil
	}
	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("revoke returned status %d", resp.StatusCode)
	}
	return nil
}

// SweepExpired drops authorization attempts past their TTL. Backends that
// honor TTLs never hold any; the file store relies on this.
func (s *ConnectorService) SweepExpired(ctx context.Context) int {
	keys, err := s.kv.Keys(ctx, oauthStatePrefix)
	if err != nil {
		s.logger.Warn().Err(err).Msg("OAuth state sweep failed")
		return 0
	}

	removed := 0
	now := s.now()
	s.consumeMu.Lock()
	for _, key := range keys {
		data, err := s.kv.Get(ctx, key)
		if err != nil {
			continue
		}
		var st model.OAuthState
		if json.Unmarshal(data, &st) == nil && !st.Expired(now, s.stateTTL) {
			continue
		}
		if err := s.kv.Delete(ctx, key); err == nil {
			removed++
		}
	}
	s.consumeMu.Unlock()

	removed += s.relay.Sweep(now)
	if removed > 0 {
		s.logger.Debug().Int("removed", removed).Msg("Expired OAuth state swept")
	}
	return removed
}

// StartSweeper runs SweepExpired on schedule until StopSweeper.
func (s *ConnectorService) StartSweeper(schedule string) error {
	if schedule == "" {
		schedule = "@every 5m"
	}
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		s.SweepExpired(context.Background())
	}); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	c.Start()
	s.sweeper = c
	s.logger.Info().Str("schedule", schedule).Msg("OAuth state sweeper started")
	return nil
}

func (s *ConnectorService) StopSweeper() {
	if s.sweeper != nil {
		<-s.sweeper.Stop().Done()
	}
}

func (s *ConnectorService) loadToken(ctx context.Context) (*model.TokenRecord, error) {
	data, err := s.kv.Get(ctx, oauthTokenKey)
	if err != nil {
		return nil, err
	}
	var rec model.TokenRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("corrupt token record: %w", err)
	}
	return &rec, nil
}

func (s *ConnectorService) saveToken(ctx context.Context, rec *model.TokenRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.kv.Put(ctx, oauthTokenKey, data, 0); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

func randomState() (string, error) {
	b := make([]byte, stateLength)
	max := big.NewInt(int64(len(stateAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate state: %w", err)
		}
		b[i] = stateAlphabet[n.Int64()]
	}
	return string(b), nil
}
