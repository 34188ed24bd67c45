// ABOUTME: Credential resolution from env, filesystem, or GCP Secret Manager
// ABOUTME: The environment names the secrets; the source says how to dereference them

package secrets

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fernet/fernet-go"
)

// Environment variable names holding (or pointing at) the secret values.
const (
	EnvAccount  = "SENTRY_ACCOUNT"
	EnvPassword = "SENTRY_PASSWORD"
	EnvKey      = "SENTRY_KEY"
)

// ErrNoCredentials is returned when the account or password cannot be
// resolved from the configured source.
var ErrNoCredentials = errors.New("credentials not available")

// Credentials holds the login values. When Key is set, Password is Fernet
// ciphertext and must be decrypted immediately before use; the plaintext is
// never held at rest.
type Credentials struct {
	Account  string
	Password string
	Key      string
}

// Plaintext returns the password ready to be typed into the login form,
// decrypting it with Key when one is present.
func (c Credentials) Plaintext() (string, error) {
	if c.Key == "" {
		return c.Password, nil
	}

	key, err := fernet.DecodeKey(c.Key)
	if err != nil {
		return "", fmt.Errorf("decoding password key: %w", err)
	}
	plain := fernet.VerifyAndDecrypt([]byte(c.Password), 0, []*fernet.Key{key})
	if plain == nil {
		return "", errors.New("password ciphertext failed verification")
	}
	return string(plain), nil
}

// Source resolves named secrets. Implementations correspond to the
// secrets.source configuration values.
type Source interface {
	// Lookup resolves the secret named by an environment variable. A
	// missing variable resolves to ("", nil); only dereferencing failures
	// are errors.
	Lookup(ctx context.Context, envName string) (string, error)
}

// New returns the Source for a configured source name.
func New(source, gcpBaseURL string, logger *slog.Logger) (Source, error) {
	logger = logger.With("component", "secrets")
	switch source {
	case "env", "":
		return envSource{}, nil
	case "fs":
		return fsSource{logger: logger}, nil
	case "gcp":
		return &gcpSource{
			baseURL: strings.TrimRight(gcpBaseURL, "/"),
			client:  &http.Client{Timeout: 10 * time.Second},
			logger:  logger,
		}, nil
	default:
		return nil, fmt.Errorf("unknown secrets source %q", source)
	}
}

// Load resolves the full credential set from a source. Account and password
// are required; the decryption key is optional.
func Load(ctx context.Context, src Source) (Credentials, error) {
	account, err := src.Lookup(ctx, EnvAccount)
	if err != nil {
		return Credentials{}, fmt.Errorf("resolving account: %w", err)
	}
	password, err := src.Lookup(ctx, EnvPassword)
	if err != nil {
		return Credentials{}, fmt.Errorf("resolving password: %w", err)
	}
	key, err := src.Lookup(ctx, EnvKey)
	if err != nil {
		return Credentials{}, fmt.Errorf("resolving password key: %w", err)
	}

	if account == "" || password == "" {
		return Credentials{}, ErrNoCredentials
	}

	return Credentials{Account: account, Password: password, Key: key}, nil
}

// envSource treats environment values as the secrets themselves.
type envSource struct{}

func (envSource) Lookup(_ context.Context, envName string) (string, error) {
	return strings.TrimRight(os.Getenv(envName), "\r\n"), nil
}

// fsSource treats environment values as paths to files holding the secrets.
type fsSource struct {
	logger *slog.Logger
}

func (s fsSource) Lookup(_ context.Context, envName string) (string, error) {
	path := os.Getenv(envName)
	if path == "" {
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading secret file for %s: %w", envName, err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

// metadataTokenURL is the GCE metadata server's service-account token
// endpoint.
const metadataTokenURL = "http://169.254.169.254/computeMetadata/v1/instance/service-accounts/default/token"

// gcpSource treats environment values as Secret Manager references in the
// form SECRET_NAME/versions/SECRET_VERSION, resolved against a base URL like
// https://secretmanager.googleapis.com/v1/projects/PROJECT_ID/secrets.
type gcpSource struct {
	baseURL  string
	client   *http.Client
	logger   *slog.Logger
	tokenURL string // overridable in tests; defaults to metadataTokenURL
}

func (s *gcpSource) Lookup(ctx context.Context, envName string) (string, error) {
	ref := os.Getenv(envName)
	if ref == "" {
		return "", nil
	}

	token, err := s.accessToken(ctx)
	if err != nil {
		return "", fmt.Errorf("fetching metadata token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/"+ref+":access", nil)
	if err != nil {
		return "", fmt.Errorf("building secret request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching secret %s: %w", ref, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading secret response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("secret manager returned status %d for %s", resp.StatusCode, ref)
	}

	var payload struct {
		Payload struct {
			Data string `json:"data"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("parsing secret response: %w", err)
	}

	decoded, err := base64.StdEncoding.DecodeString(payload.Payload.Data)
	if err != nil {
		return "", fmt.Errorf("decoding secret payload for %s: %w", envName, err)
	}
	return string(decoded), nil
}

func (s *gcpSource) accessToken(ctx context.Context) (string, error) {
	url := s.tokenURL
	if url == "" {
		url = metadataTokenURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Metadata-Flavor", "Google")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("metadata server returned status %d", resp.StatusCode)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("parsing metadata token: %w", err)
	}
	return payload.AccessToken, nil
}
