// HTTP client for the remote document store
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"github.com/desertthunder/songbook/internal/models"
	"github.com/desertthunder/songbook/internal/shared"
)

const defaultBaseURL string = "http://localhost:8090"

// DocumentServiceOpts configures a [DocumentService].
type DocumentServiceOpts struct {
	BaseURL string

	// Token is a static bearer token, used when client credentials are not set.
	Token string

	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string

	RateLimit float64 // requests per second, 0 for unlimited
	Timeout   time.Duration

	// Client is the base client; its transport carries every request, including token fetches.
	Client *http.Client
}

// DocumentService implements [DocumentStore] over the document store's JSON API.
type DocumentService struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

type documentsResponse struct {
	Documents []models.Document `json:"documents"`
}

// NewDocumentService creates a new document store client.
//
// Authentication uses the OAuth2 client credentials flow when ClientID, ClientSecret and TokenURL are all set,
// a static bearer token when only Token is set, and no credentials otherwise.
func NewDocumentService(opts DocumentServiceOpts) *DocumentService {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	base := opts.Client
	if base == nil {
		base = http.DefaultClient
	}

	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)

	var client *http.Client
	switch {
	case opts.ClientID != "" && opts.ClientSecret != "" && opts.TokenURL != "":
		cc := &clientcredentials.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			TokenURL:     opts.TokenURL,
			Scopes:       opts.Scopes,
		}
		client = cc.Client(ctx)
	case opts.Token != "":
		client = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token, TokenType: "Bearer"}))
	default:
		c := *base
		client = &c
	}

	if opts.Timeout > 0 {
		client.Timeout = opts.Timeout
	}

	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}

	return &DocumentService{
		baseURL:    baseURL,
		httpClient: client,
		limiter:    rate.NewLimiter(limit, 1),
	}
}

// DocumentServiceFromConfig builds a [DocumentService] from the remote section of the config.
//
// client is the base transport client; nil uses [http.DefaultClient].
func DocumentServiceFromConfig(rc shared.RemoteConfig, client *http.Client) *DocumentService {
	return NewDocumentService(DocumentServiceOpts{
		BaseURL:      rc.BaseURL,
		Token:        rc.Token,
		ClientID:     rc.ClientID,
		ClientSecret: rc.ClientSecret,
		TokenURL:     rc.TokenURL,
		Scopes:       rc.Scopes,
		RateLimit:    rc.RateLimit,
		Timeout:      rc.Timeout.Duration,
		Client:       client,
	})
}

// Collection fetches every document of a top-level collection.
//
// Calls GET /v1/collections/{name}/documents
func (d *DocumentService) Collection(ctx context.Context, name string) ([]models.Document, error) {
	endpoint := fmt.Sprintf("/v1/collections/%s/documents", url.PathEscape(name))

	var resp documentsResponse
	if err := d.doRequest(ctx, endpoint, &resp); err != nil {
		return nil, &shared.RemoteFetchError{Collection: name, Err: err}
	}
	return resp.Documents, nil
}

// UserCollection fetches every document of a collection nested under userID.
//
// Calls GET /v1/users/{userID}/collections/{name}/documents
func (d *DocumentService) UserCollection(ctx context.Context, userID, name string) ([]models.Document, error) {
	if userID == "" {
		return nil, &shared.RemoteFetchError{Collection: name, Err: fmt.Errorf("%w: user id", shared.ErrMissingArgument)}
	}

	endpoint := fmt.Sprintf("/v1/users/%s/collections/%s/documents", url.PathEscape(userID), url.PathEscape(name))

	var resp documentsResponse
	if err := d.doRequest(ctx, endpoint, &resp); err != nil {
		return nil, &shared.RemoteFetchError{Collection: name, Err: err}
	}
	return resp.Documents, nil
}

func (d *DocumentService) doRequest(ctx context.Context, endpoint string, result any) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
			return fmt.Errorf("%w (status %d): %s", shared.ErrAPIRequest, resp.StatusCode, errResp.Error)
		}
		return fmt.Errorf("%w: status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
