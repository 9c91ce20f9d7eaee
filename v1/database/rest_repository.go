package database

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/miladnoo/Heray/monitoring"
	"github.com/miladnoo/Heray/v1/models"
	"golang.org/x/oauth2"
)

const (
	restMembersPath = "/rest/v1/members"
	memberColumns   = "id,full_name,email,phone,created_at,updated_at"
)

// RESTError is the error body returned by the hosted datastore's REST API
type RESTError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

// RESTRepository implements MemberRepository against a hosted PostgREST
// datastore. Row-level security on the datastore may hide rows or reject
// reads made with a public key; both surface as regular results or errors.
// Calls whose context carries a session credential (WithAccessToken) run as
// that session instead of the access key.
type RESTRepository struct {
	BaseURL string
	APIKey  string
	Client  *http.Client

	// sessionClient sends caller-supplied bearers; Client always sends APIKey
	sessionClient *http.Client
}

// NewRESTRepository creates a client for the hosted datastore. The access key
// is sent both as the apikey header and as the bearer credential.
func NewRESTRepository(baseURL, apiKey string, timeout time.Duration) *RESTRepository {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	base := &http.Client{Timeout: timeout}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: apiKey,
		TokenType:   "Bearer",
	}))
	client.Timeout = timeout

	return &RESTRepository{
		BaseURL:       strings.TrimRight(baseURL, "/"),
		APIKey:        apiKey,
		Client:        client,
		sessionClient: base,
	}
}

// FindByEmail looks a member up with a case-insensitive literal match
func (r *RESTRepository) FindByEmail(ctx context.Context, email string) (*models.Member, error) {
	query := url.Values{}
	query.Set("select", memberColumns)
	query.Set("email", "ilike."+escapeLikePattern(strings.TrimSpace(email)))
	query.Set("limit", "1")

	var members []models.Member
	if err := r.do(ctx, "select", http.MethodGet, query, nil, &members); err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, nil
	}
	return &members[0], nil
}

// CreateMember inserts a member without reading it back. Insert-only
// policies reject RETURNING, so the datastore answers 201 with no body.
func (r *RESTRepository) CreateMember(ctx context.Context, insert *models.MemberInsert) error {
	payload, err := json.Marshal([]*models.MemberInsert{insert})
	if err != nil {
		return fmt.Errorf("failed to marshal member: %w", err)
	}
	return r.do(ctx, "insert", http.MethodPost, nil, payload, nil)
}

// ListMembers returns all visible members, newest first
func (r *RESTRepository) ListMembers(ctx context.Context) ([]models.Member, error) {
	query := url.Values{}
	query.Set("select", memberColumns)
	query.Set("order", "created_at.desc,id.desc")

	var members []models.Member
	if err := r.do(ctx, "list", http.MethodGet, query, nil, &members); err != nil {
		return nil, err
	}
	if members == nil {
		members = []models.Member{}
	}
	return members, nil
}

// Ping reports an error only when the datastore cannot be reached or is failing;
// access-control rejections still prove it is up
func (r *RESTRepository) Ping(ctx context.Context) error {
	query := url.Values{}
	query.Set("select", "id")
	query.Set("limit", "1")

	req, err := r.newRequest(ctx, http.MethodGet, query, nil)
	if err != nil {
		return err
	}
	res, err := r.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach datastore: %w", err)
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)

	if res.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("datastore returned status %d", res.StatusCode)
	}
	return nil
}

// Close drops idle keep-alive connections
func (r *RESTRepository) Close() error {
	r.Client.CloseIdleConnections()
	return nil
}

func (r *RESTRepository) newRequest(ctx context.Context, method string, query url.Values, body []byte) (*http.Request, error) {
	endpoint := r.BaseURL + restMembersPath
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", r.APIKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Prefer", "return=minimal")
	}
	return req, nil
}

func (r *RESTRepository) do(ctx context.Context, operation, method string, query url.Values, body []byte, out any) error {
	req, err := r.newRequest(ctx, method, query, body)
	if err != nil {
		return err
	}

	start := time.Now()
	res, err := r.clientFor(req).Do(req)
	monitoring.RecordDBLatency(ctx, "members", operation, time.Since(start))
	if err != nil {
		monitoring.RecordExternalCall(ctx, "datastore", operation, time.Since(start), err)
		return newStorageError(operation, fmt.Errorf("failed to send request: %w", err))
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		monitoring.RecordExternalCall(ctx, "datastore", operation, time.Since(start), err)
		return newStorageError(operation, fmt.Errorf("failed to read response: %w", err))
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		restErr := decodeRESTError(res.StatusCode, data)
		monitoring.RecordExternalCall(ctx, "datastore", operation, time.Since(start), restErr)
		if restErr.Code == pgUniqueViolation {
			return ErrDuplicateEmail
		}
		return &StorageError{Operation: operation, Message: restErr.Message, Err: restErr}
	}
	monitoring.RecordExternalCall(ctx, "datastore", operation, time.Since(start), nil)

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return newStorageError(operation, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

// clientFor picks the client for req, switching the bearer to the session
// credential carried by the request context when there is one
func (r *RESTRepository) clientFor(req *http.Request) *http.Client {
	token := AccessTokenFromContext(req.Context())
	if token == "" {
		return r.Client
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if r.sessionClient != nil {
		return r.sessionClient
	}
	return &http.Client{Timeout: r.Client.Timeout}
}

func (e *RESTError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Code)
	}
	return e.Message
}

func decodeRESTError(status int, data []byte) *RESTError {
	var restErr RESTError
	if err := json.Unmarshal(data, &restErr); err != nil || restErr.Message == "" {
		restErr.Message = fmt.Sprintf("datastore returned status %d", status)
	}
	return &restErr
}

// escapeLikePattern makes an ilike operand match literally
func escapeLikePattern(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`, `*`, `\*`)
	return replacer.Replace(s)
}
