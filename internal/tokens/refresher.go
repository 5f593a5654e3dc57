package tokens

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/angelmondragon/pickflow-backend/pkg/config"
	"github.com/angelmondragon/pickflow-backend/pkg/enums"
)

// ErrGrantRevoked marks refresh failures where the refresh token itself is no
// longer usable and the tenant must reconnect.
var ErrGrantRevoked = errors.New("refresh grant revoked")

var revokedGrantCodes = map[string]struct{}{
	"invalid_grant":       {},
	"unauthorized_client": {},
	"invalid_client":      {},
}

// OAuthRefresher exchanges refresh tokens at the provider token endpoints.
type OAuthRefresher struct {
	configs    map[enums.Provider]*oauth2.Config
	httpClient *http.Client
	now        func() time.Time
}

// NewOAuthRefresher builds the per-provider oauth2 configs.
func NewOAuthRefresher(qbo config.QBOConfig, xero config.XeroConfig, httpClient *http.Client) *OAuthRefresher {
	return &OAuthRefresher{
		configs:    OAuthConfigs(qbo, xero),
		httpClient: httpClient,
		now:        time.Now,
	}
}

// OAuthConfigs maps provider settings into oauth2 configs. Both providers accept
// client credentials in the Authorization header.
func OAuthConfigs(qbo config.QBOConfig, xero config.XeroConfig) map[enums.Provider]*oauth2.Config {
	return map[enums.Provider]*oauth2.Config{
		enums.ProviderQBO: {
			ClientID:     qbo.ClientID,
			ClientSecret: qbo.ClientSecret,
			RedirectURL:  qbo.RedirectURL,
			Scopes:       []string{"com.intuit.quickbooks.accounting"},
			Endpoint: oauth2.Endpoint{
				AuthURL:   qbo.AuthURL,
				TokenURL:  qbo.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		enums.ProviderXero: {
			ClientID:     xero.ClientID,
			ClientSecret: xero.ClientSecret,
			RedirectURL:  xero.RedirectURL,
			Scopes:       xero.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   xero.AuthURL,
				TokenURL:  xero.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
	}
}

// Refresh trades the current refresh token for a new credential.
func (r *OAuthRefresher) Refresh(ctx context.Context, current TokenData) (TokenData, error) {
	conf, ok := r.configs[current.Provider]
	if !ok {
		return TokenData{}, fmt.Errorf("no oauth config for provider %q", current.Provider)
	}
	refreshToken := current.RefreshToken()
	if refreshToken == "" {
		return TokenData{}, fmt.Errorf("%w: refresh token missing", ErrGrantRevoked)
	}

	if r.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
	}
	// An expired seed forces the token source to hit the token endpoint.
	seed := &oauth2.Token{RefreshToken: refreshToken, Expiry: r.now().Add(-time.Minute)}
	tok, err := conf.TokenSource(ctx, seed).Token()
	if err != nil {
		return TokenData{}, classifyRefreshError(err)
	}
	return fromOAuthToken(current.Provider, tok, current.RemoteAccountID(), r.now())
}

func classifyRefreshError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if _, revoked := revokedGrantCodes[retrieveErr.ErrorCode]; revoked {
			return fmt.Errorf("%w: %s", ErrGrantRevoked, retrieveErr.ErrorCode)
		}
	}
	return fmt.Errorf("refresh token: %w", err)
}

// fromOAuthToken builds TokenData for the provider from an oauth2 token response.
func fromOAuthToken(provider enums.Provider, tok *oauth2.Token, accountID string, now time.Time) (TokenData, error) {
	if tok == nil || tok.AccessToken == "" {
		return TokenData{}, errors.New("token endpoint returned no access token")
	}
	switch provider {
	case enums.ProviderQBO:
		expiresIn := extraInt(tok, "expires_in")
		if expiresIn == 0 {
			expiresIn = tok.ExpiresIn
		}
		if expiresIn == 0 && !tok.Expiry.IsZero() {
			expiresIn = int64(tok.Expiry.Sub(now).Seconds())
		}
		return NewQBOTokenData(QBOToken{
			AccessToken:           tok.AccessToken,
			RefreshToken:          tok.RefreshToken,
			ExpiresIn:             expiresIn,
			RefreshTokenExpiresIn: extraInt(tok, "x_refresh_token_expires_in"),
			RealmID:               accountID,
			CreatedAt:             now.UTC(),
		}), nil
	case enums.ProviderXero:
		expiresAt := tok.Expiry
		if expiresAt.IsZero() {
			expiresAt = jwtExpiry(tok.AccessToken)
		}
		idToken, _ := tok.Extra("id_token").(string)
		return NewXeroTokenData(XeroToken{
			AccessToken:  tok.AccessToken,
			RefreshToken: tok.RefreshToken,
			IDToken:      idToken,
			ExpiresAt:    expiresAt.UTC(),
			TenantID:     accountID,
			CreatedAt:    now.UTC(),
		}), nil
	default:
		return TokenData{}, fmt.Errorf("unsupported provider %q", provider)
	}
}

func extraInt(tok *oauth2.Token, key string) int64 {
	switch v := tok.Extra(key).(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	default:
		return 0
	}
}

// jwtExpiry reads the exp claim from a Xero access token, which is a JWT. The
// signature is not checked: the token came straight from the token endpoint.
func jwtExpiry(accessToken string) time.Time {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
