package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tidwall/gjson"
)

const (
	assertionTTL          = time.Hour
	jwtBearerGrantType    = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	maxTokenResponseBytes = 1 << 20
)

// ServiceAccount is the non-interactive credential used to obtain FCM access tokens
type ServiceAccount struct {
	ClientEmail string
	PrivateKey  string // PEM, PKCS8 or PKCS1
}

// TokenSigner signs service-account assertions and exchanges them for access tokens
type TokenSigner struct {
	account    ServiceAccount
	tokenURL   string
	scope      string
	httpClient *http.Client
	now        func() time.Time
}

// NewTokenSigner creates a new token signer
func NewTokenSigner(account ServiceAccount, tokenURL, scope string, httpClient *http.Client) *TokenSigner {
	return &TokenSigner{
		account:    account,
		tokenURL:   tokenURL,
		scope:      scope,
		httpClient: httpClient,
		now:        time.Now,
	}
}

// SignAssertion builds the RS256 JWT presented to the token endpoint
func (s *TokenSigner) SignAssertion() (string, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(s.account.PrivateKey))
	if err != nil {
		return "", &AuthError{Op: "parse private key", Err: err}
	}

	now := s.now()
	claims := jwt.MapClaims{
		"iss":   s.account.ClientEmail,
		"sub":   s.account.ClientEmail,
		"aud":   s.tokenURL,
		"iat":   now.Unix(),
		"exp":   now.Add(assertionTTL).Unix(),
		"scope": s.scope,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(key)
	if err != nil {
		return "", &AuthError{Op: "sign assertion", Err: err}
	}
	return signed, nil
}

// AccessToken exchanges a freshly signed assertion for a bearer access token.
// The token is valid for one hour and is never cached.
func (s *TokenSigner) AccessToken(ctx context.Context) (string, error) {
	assertion, err := s.SignAssertion()
	if err != nil {
		return "", err
	}

	form := url.Values{
		"grant_type": {jwtBearerGrantType},
		"assertion":  {assertion},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", &AuthError{Op: "build token request", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", &AuthError{Op: "exchange token", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseBytes))
	if err != nil {
		return "", &AuthError{Op: "read token response", Err: err}
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		reason := gjson.GetBytes(body, "error_description").String()
		if reason == "" {
			reason = gjson.GetBytes(body, "error").String()
		}
		return "", &AuthError{
			Op:  "exchange token",
			Err: fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, reason),
		}
	}

	accessToken := gjson.GetBytes(body, "access_token").String()
	if accessToken == "" {
		return "", &AuthError{Op: "exchange token", Err: errors.New("access_token missing from response")}
	}
	return accessToken, nil
}
