package gmail

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
)

// AuthCodeURL returns the consent URL that yields an offline refresh token.
func AuthCodeURL(creds Credentials, state string) string {
	return OAuthConfig(creds).AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// CodeFromRedirect accepts either the bare authorization code or the full
// redirect URL pasted from the browser.
func CodeFromRedirect(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("no authorization code given")
	}
	if !strings.Contains(input, "://") {
		return input, nil
	}
	u, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("parse redirect url: %w", err)
	}
	code := u.Query().Get("code")
	if code == "" {
		return "", fmt.Errorf("no authorization code found in URL")
	}
	return code, nil
}

// Exchange trades an authorization code for a refresh token.
func Exchange(ctx context.Context, creds Credentials, code string) (string, error) {
	token, err := OAuthConfig(creds).Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("exchange authorization code: %w", err)
	}
	if token.RefreshToken == "" {
		return "", fmt.Errorf("no refresh token received; revoke access at https://myaccount.google.com/permissions and retry")
	}
	return token.RefreshToken, nil
}
