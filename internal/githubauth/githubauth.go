package githubauth

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/go-github/v55/github"
	"golang.org/x/oauth2"
)

const appJWTExpiry = 10 * time.Minute

// AppAuth holds GitHub App credentials used to mint short-lived installation
// tokens for authenticated clones.
type AppAuth struct {
	AppID          int
	InstallationID int
	PrivateKeyPath string
	APIBaseURL     string
}

// FromEnv builds AppAuth from the standard environment variables. Returns nil
// when no app is configured, in which case clones run unauthenticated.
func FromEnv() *AppAuth {
	appID, _ := strconv.Atoi(os.Getenv("GITHUB_APP_ID"))
	installationID, _ := strconv.Atoi(os.Getenv("GITHUB_INSTALLATION_ID"))
	if appID == 0 || installationID == 0 {
		return nil
	}
	return &AppAuth{
		AppID:          appID,
		InstallationID: installationID,
		PrivateKeyPath: os.Getenv("GITHUB_PRIVATE_KEY_PATH"),
		APIBaseURL:     os.Getenv("GITHUB_API_BASE_URL"),
	}
}

// InstallationToken signs an app JWT with the private key and exchanges it
// for an installation access token.
func (a *AppAuth) InstallationToken(ctx context.Context) (string, error) {
	pemBytes, err := os.ReadFile(a.PrivateKeyPath)
	if err != nil {
		return "", fmt.Errorf("reading private key: %w", err)
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return "", fmt.Errorf("failed to parse private key: %w", err)
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"iat": now.Unix(),
		"exp": now.Add(appJWTExpiry).Unix(),
		"iss": a.AppID,
	}
	appJWT, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("failed to sign app JWT: %w", err)
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: appJWT})
	client := github.NewClient(oauth2.NewClient(ctx, ts))
	if a.APIBaseURL != "" {
		client, err = client.WithEnterpriseURLs(a.APIBaseURL, a.APIBaseURL)
		if err != nil {
			return "", fmt.Errorf("configuring API base URL: %w", err)
		}
	}

	token, _, err := client.Apps.CreateInstallationToken(ctx, int64(a.InstallationID), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create installation token: %w", err)
	}
	return token.GetToken(), nil
}

// CloneURL injects an installation token into a repository HTTPS URL.
func CloneURL(token, repoURL string) (string, error) {
	u, err := url.Parse(repoURL)
	if err != nil {
		return "", fmt.Errorf("parsing repository URL: %w", err)
	}
	u.User = url.UserPassword("x-access-token", token)
	return u.String(), nil
}

// MaskURL hides credentials embedded in a clone URL for logging.
func MaskURL(cloneURL string) string {
	u, err := url.Parse(cloneURL)
	if err != nil || u.User == nil {
		return cloneURL
	}
	username := u.User.Username()
	if _, hasToken := u.User.Password(); hasToken {
		u.User = url.UserPassword(username, "****")
		return u.String()
	}
	return cloneURL
}
