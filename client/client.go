package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/attestry/attestry"
	"github.com/attestry/attestry/internal/domain"
	"github.com/attestry/attestry/jwt"
)

const (
	defaultTimeout = 3 * time.Second
	tokenLifetime  = 5 * time.Minute
)

// Client signs documents locally and talks to one attestry node. Reads
// resolved at a fixed instant are cached since they are stable for the
// cache lifetime.
type Client struct {
	client     *http.Client
	cache      *cache.Cache
	baseURL    string
	audience   string
	privatekey string
	aid        string
	userAgent  string
}

func New(baseURL string, audience string, privatekey string) (*Client, error) {
	aid, err := attestry.PrivKeyToAddr(privatekey, "aid")
	if err != nil {
		return nil, err
	}

	httpClient := http.Client{
		Timeout: defaultTimeout,
	}

	c := &Client{
		client:     &httpClient,
		cache:      cache.New(10*time.Minute, 15*time.Minute),
		baseURL:    baseURL,
		audience:   audience,
		privatekey: privatekey,
		aid:        aid,
		userAgent:  "attestry-client",
	}
	httpClient.Transport = c
	return c, nil
}

func (c *Client) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", c.userAgent)
	return http.DefaultTransport.RoundTrip(req)
}

// AID returns this client's account identity.
func (c *Client) AID() string {
	return c.aid
}

// BearerToken mints a short-lived viewer token for the configured node.
func (c *Client) BearerToken() (string, error) {
	return jwt.Create(jwt.Claims{
		Issuer:         c.aid,
		Subject:        "attestry",
		Audience:       c.audience,
		ExpirationTime: strconv.FormatInt(time.Now().Add(tokenLifetime).Unix(), 10),
		IssuedAt:       strconv.FormatInt(time.Now().Unix(), 10),
	}, c.privatekey)
}

// Create submits the first revision of a new stream.
func (c *Client) Create(ctx context.Context, kind string, fields map[string]any) (attestry.CommitResult, error) {
	return c.commit(ctx, attestry.Document[map[string]any]{
		Kind:     kind,
		Value:    fields,
		Author:   c.aid,
		SignedAt: time.Now().UTC(),
	})
}

// Update appends a revision. base pins the optimistic-concurrency base;
// nil lets the node use its current head.
func (c *Client) Update(ctx context.Context, streamID string, fields map[string]any, base *string) (attestry.CommitResult, error) {
	return c.commit(ctx, attestry.Document[map[string]any]{
		StreamID: &streamID,
		Value:    fields,
		Author:   c.aid,
		Previous: base,
		SignedAt: time.Now().UTC(),
	})
}

func (c *Client) commit(ctx context.Context, doc attestry.Document[map[string]any]) (attestry.CommitResult, error) {
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return attestry.CommitResult{}, err
	}

	signature, err := attestry.SignBytes(docBytes, c.privatekey)
	if err != nil {
		return attestry.CommitResult{}, err
	}

	sd := attestry.SignedDocument{
		Document: string(docBytes),
		Proof: attestry.Proof{
			Type:      "secp256k1",
			Signature: attestry.SignatureHex(signature),
		},
	}

	body, err := json.Marshal(sd)
	if err != nil {
		return attestry.CommitResult{}, err
	}

	var result attestry.CommitResult
	err = c.do(ctx, http.MethodPost, "/commit", nil, bytes.NewReader(body), &result)
	if err != nil {
		return attestry.CommitResult{}, err
	}
	return result, nil
}

// GetEntity resolves a stream at its head, or at asOf when supplied.
func (c *Client) GetEntity(ctx context.Context, streamID string, asOf *time.Time) (domain.Snapshot, error) {
	query := url.Values{}
	cacheKey := ""
	if asOf != nil {
		query.Set("asOf", asOf.UTC().Format(time.RFC3339))
		cacheKey = streamID + "@" + query.Get("asOf")
		if cached, ok := c.cache.Get(cacheKey); ok {
			return cached.(domain.Snapshot), nil
		}
	}

	var snapshot domain.Snapshot
	err := c.do(ctx, http.MethodGet, "/streams/"+url.PathEscape(streamID), query, nil, &snapshot)
	if err != nil {
		return domain.Snapshot{}, err
	}

	if cacheKey != "" {
		c.cache.Set(cacheKey, snapshot, cache.DefaultExpiration)
	}
	return snapshot, nil
}

// GetChain fetches the revision chain, newest first.
func (c *Client) GetChain(ctx context.Context, streamID string, asOf *time.Time) ([]domain.Revision, error) {
	query := url.Values{}
	if asOf != nil {
		query.Set("asOf", asOf.UTC().Format(time.RFC3339))
	}

	var chain []domain.Revision
	err := c.do(ctx, http.MethodGet, "/streams/"+url.PathEscape(streamID)+"/chain", query, nil, &chain)
	if err != nil {
		return nil, err
	}
	return chain, nil
}

// ListByOwner lists head snapshots for one kind. Empty owner lists the
// authenticated viewer's streams.
func (c *Client) ListByOwner(ctx context.Context, kind string, owner string) ([]domain.Snapshot, error) {
	query := url.Values{}
	query.Set("kind", kind)
	if owner != "" {
		query.Set("owner", owner)
	}

	var snapshots []domain.Snapshot
	err := c.do(ctx, http.MethodGet, "/streams", query, nil, &snapshots)
	if err != nil {
		return nil, err
	}
	return snapshots, nil
}

func (c *Client) ListAttestationsForTarget(ctx context.Context, targetStreamID string) ([]domain.Snapshot, error) {
	query := url.Values{}
	query.Set("target", targetStreamID)

	var snapshots []domain.Snapshot
	err := c.do(ctx, http.MethodGet, "/attestations", query, nil, &snapshots)
	if err != nil {
		return nil, err
	}
	return snapshots, nil
}

// Viewer resolves the identity the node sees for this client's token.
func (c *Client) Viewer(ctx context.Context) (string, error) {
	var result struct {
		AID string `json:"aid"`
	}
	err := c.do(ctx, http.MethodGet, "/viewer", nil, nil, &result)
	if err != nil {
		return "", err
	}
	return result.AID, nil
}

func (c *Client) do(ctx context.Context, method string, path string, query url.Values, body io.Reader, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	token, err := c.BearerToken()
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	res, err := c.client.Do(req)
	if err != nil {
		return domain.SubmissionError{Err: err}
	}
	defer res.Body.Close()

	payload, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}

	if res.StatusCode != http.StatusOK {
		return statusError(res.StatusCode, payload)
	}

	return json.Unmarshal(payload, out)
}

func statusError(status int, payload []byte) error {
	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	json.Unmarshal(payload, &body)

	switch status {
	case http.StatusBadRequest:
		switch body.Code {
		case "immutable_field":
			return domain.ImmutableFieldError{}
		case "schema_not_found":
			return domain.SchemaNotFoundError{}
		default:
			return domain.ValidationError{Reason: body.Error}
		}
	case http.StatusUnauthorized:
		return domain.UnauthenticatedError{}
	case http.StatusForbidden:
		return domain.NotAuthorizedError{}
	case http.StatusNotFound:
		return domain.NotFoundError{Resource: "stream"}
	case http.StatusConflict:
		return domain.ConflictError{}
	default:
		return fmt.Errorf("unexpected status %d: %s", status, body.Error)
	}
}
