package client

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"github.com/128technology/pca-importer/logger"
)

// Credential is the username and password pair exchanged for a Token.
type Credential struct {
	Username string
	Password string
}

// Token is the bearer token returned by a successful login.
type Token string

// GetToken logs into the PCA host at baseURL and returns the bearer token
// carried in the authorization response header. Every failure wraps
// ErrAuthentication.
func GetToken(ctx context.Context, httpClient *http.Client, baseURL string, credential Credential) (Token, error) {
	if httpClient == nil {
		httpClient = NewHTTPClient(DefaultTimeout, false)
	}

	loginURL := strings.TrimSuffix(baseURL, "/") + loginEndpoint
	form := url.Values{}
	form.Set("username", credential.Username)
	form.Set("password", credential.Password)

	logger.Log.Info("Authenticating to %v as %v", baseURL, credential.Username)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, loginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", errors.Wrapf(ErrAuthentication, "building login request: %v", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := httpClient.Do(req)
	if err != nil {
		logger.Log.Error("Login request to %v failed: %v", loginURL, err.Error())
		return "", errors.Wrapf(ErrAuthentication, "login request: %v", err)
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		logger.Log.Error("Login failed: %v - %s", resp.StatusCode, body)
		return "", errors.Wrap(ErrAuthentication, (&StatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(body),
		}).Error())
	}

	token, err := parseBearer(resp.Header.Get("authorization"))
	if err != nil {
		logger.Log.Error("Login to %v returned no usable token: %v", loginURL, err.Error())
		return "", err
	}

	logger.Log.Info("Bearer token successfully retrieved.")
	return token, nil
}

func parseBearer(header string) (Token, error) {
	if header == "" {
		return "", errors.Wrap(ErrAuthentication, "authorization header not found in response")
	}

	if !strings.HasPrefix(header, bearerPrefix) {
		return "", errors.Wrap(ErrAuthentication, "authorization header is not a bearer token")
	}

	token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
	if token == "" {
		return "", errors.Wrap(ErrAuthentication, "authorization header carries an empty bearer token")
	}

	return Token(token), nil
}
