package gdrive

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// DefaultTokenFile is the default file name for the stored OAuth token
const DefaultTokenFile = "gdrive-token.json"

// Token represents a stored OAuth2 token
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	Expiry       time.Time `json:"expiry"`
}

func (t *Token) toOAuth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		Expiry:       t.Expiry,
	}
}

func fromOAuth2Token(t *oauth2.Token) *Token {
	return &Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		Expiry:       t.Expiry,
	}
}

// Authenticator handles OAuth2 authentication for Google Drive. Only the
// read-only Drive scope is requested.
type Authenticator struct {
	config    *oauth2.Config
	tokenPath string
}

// NewAuthenticator creates a new authenticator. An empty tokenPath uses the
// user config directory.
func NewAuthenticator(clientID, clientSecret, tokenPath string) *Authenticator {
	if tokenPath == "" {
		if configDir, err := os.UserConfigDir(); err == nil {
			tokenPath = filepath.Join(configDir, "treecmp", DefaultTokenFile)
		} else {
			tokenPath = DefaultTokenFile
		}
	}

	return &Authenticator{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Scopes:       []string{drive.DriveReadonlyScope},
			Endpoint:     google.Endpoint,
		},
		tokenPath: tokenPath,
	}
}

// Token returns a valid token, refreshing and re-saving it when expired
func (a *Authenticator) Token(ctx context.Context) (*oauth2.Token, error) {
	token, err := a.loadToken()
	if err != nil {
		return nil, fmt.Errorf("no Google Drive token found, run 'treecmp auth gdrive' first")
	}

	if token.Valid() {
		return token, nil
	}

	if token.RefreshToken != "" {
		if refreshed, err := a.RefreshToken(ctx, token); err == nil {
			return refreshed, nil
		}
	}

	return nil, fmt.Errorf("token expired and refresh failed, run 'treecmp auth gdrive' to re-authenticate")
}

// Service returns an authenticated Drive service
func (a *Authenticator) Service(ctx context.Context) (*drive.Service, error) {
	token, err := a.Token(ctx)
	if err != nil {
		return nil, err
	}

	service, err := drive.NewService(ctx, option.WithHTTPClient(a.config.Client(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("failed to create Drive service: %w", err)
	}
	return service, nil
}

func generateRandomState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// Authenticate runs the interactive authorization code flow: it prints the
// consent URL to out, reads the code from in and saves the token.
func (a *Authenticator) Authenticate(ctx context.Context, in io.Reader, out io.Writer) (*oauth2.Token, error) {
	state, err := generateRandomState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state: %w", err)
	}

	authURL := a.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
	fmt.Fprintf(out, "\nTo allow treecmp to read Google Drive:\n\n")
	fmt.Fprintf(out, "1. Visit this URL:\n   %s\n\n", authURL)
	fmt.Fprintf(out, "2. Sign in and authorize read-only access\n\n")
	fmt.Fprintf(out, "Enter authorization code: ")

	var code string
	if _, err := fmt.Fscan(in, &code); err != nil {
		return nil, fmt.Errorf("failed to read authorization code: %w", err)
	}

	token, err := a.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code for token: %w", err)
	}

	if err := a.saveToken(token); err != nil {
		return nil, fmt.Errorf("failed to save token: %w", err)
	}

	fmt.Fprintln(out, "\nAuthentication successful, token saved to", a.tokenPath)
	return token, nil
}

// RefreshToken refreshes an expired token and saves the result
func (a *Authenticator) RefreshToken(ctx context.Context, token *oauth2.Token) (*oauth2.Token, error) {
	newToken, err := a.config.TokenSource(ctx, token).Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	if err := a.saveToken(newToken); err != nil {
		return nil, fmt.Errorf("failed to save refreshed token: %w", err)
	}

	return newToken, nil
}

func (a *Authenticator) loadToken() (*oauth2.Token, error) {
	data, err := os.ReadFile(a.tokenPath)
	if err != nil {
		return nil, err
	}

	var token Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("invalid token file: %w", err)
	}

	return token.toOAuth2Token(), nil
}

// saveToken writes the token atomically with owner-only permissions
func (a *Authenticator) saveToken(token *oauth2.Token) error {
	dir := filepath.Dir(a.tokenPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(fromOAuth2Token(token), "", "  ")
	if err != nil {
		return err
	}

	tempPath := a.tokenPath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp token file: %w", err)
	}

	if err := os.Rename(tempPath, a.tokenPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename token file: %w", err)
	}

	return nil
}

// TokenPath returns the path where the token is stored
func (a *Authenticator) TokenPath() string {
	return a.tokenPath
}
