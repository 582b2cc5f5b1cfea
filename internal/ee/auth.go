package ee

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Scopes requested for every Earth Engine call.
var Scopes = []string{
	"https://www.googleapis.com/auth/earthengine",
	"https://www.googleapis.com/auth/cloud-platform",
}

// Credentials selects how the HTTP client authenticates. A static access
// token wins over a key file; with neither, application default credentials
// are used.
type Credentials struct {
	File        string
	AccessToken string
}

func AuthenticatedClient(ctx context.Context, creds Credentials) (*http.Client, error) {
	if creds.AccessToken != "" {
		return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: creds.AccessToken,
			TokenType:   "Bearer",
		})), nil
	}
	if creds.File != "" {
		data, err := os.ReadFile(creds.File)
		if err != nil {
			return nil, fmt.Errorf("failed to read credentials file: %w", err)
		}
		c, err := google.CredentialsFromJSON(ctx, data, Scopes...)
		if err != nil {
			return nil, fmt.Errorf("failed to parse credentials file: %w", err)
		}
		return oauth2.NewClient(ctx, c.TokenSource), nil
	}
	hc, err := google.DefaultClient(ctx, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to find default credentials: %w", err)
	}
	return hc, nil
}
