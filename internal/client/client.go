// Package client provides a Go client for the TruthTally API.
package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/truthtally/truthtally/internal/model"
)

// Client is a TruthTally API client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Token      string
	TokenExp   time.Time
}

// New creates a new TruthTally client.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

var ErrAlreadyRegistered = errors.New("already registered")

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"error"`
	Reason     string `json:"reason"`
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("api error (%d): %s (%s)", e.StatusCode, e.Message, e.Reason)
	}
	return fmt.Sprintf("api error (%d): %s", e.StatusCode, e.Message)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// Register creates an account.
func (c *Client) Register(email, password string) (*model.User, error) {
	var user model.User
	err := c.do(http.MethodPost, "/api/auth/register", map[string]string{"email": email, "password": password}, &user)
	if StatusCode(err) == http.StatusConflict {
		return nil, ErrAlreadyRegistered
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Login exchanges credentials for a bearer token and keeps it on the client.
func (c *Client) Login(email, password string) (*model.User, error) {
	var result struct {
		Token     string     `json:"token"`
		ExpiresAt time.Time  `json:"expiresAt"`
		User      model.User `json:"user"`
	}
	if err := c.do(http.MethodPost, "/api/auth/login", map[string]string{"email": email, "password": password}, &result); err != nil {
		return nil, err
	}
	c.Token = result.Token
	c.TokenExp = result.ExpiresAt
	return &result.User, nil
}

// RegisterAndLogin registers (if needed) and logs in.
func (c *Client) RegisterAndLogin(email, password string) (*model.User, error) {
	if _, err := c.Register(email, password); err != nil && !errors.Is(err, ErrAlreadyRegistered) {
		return nil, fmt.Errorf("register: %w", err)
	}
	return c.Login(email, password)
}

// IsAuthenticated returns true if the client has a valid token.
func (c *Client) IsAuthenticated() bool {
	return c.Token != "" && time.Now().Before(c.TokenExp)
}

// Identity is the caller as the server sees it.
type Identity struct {
	UserID string     `json:"userId"`
	Email  string     `json:"email"`
	Role   model.Role `json:"role"`
}

func (c *Client) Me() (*Identity, error) {
	var ident Identity
	if err := c.do(http.MethodGet, "/api/auth/me", nil, &ident); err != nil {
		return nil, err
	}
	return &ident, nil
}

// Politician is the create payload; dates are RFC 3339 or YYYY-MM-DD.
type Politician struct {
	Name      string `json:"name"`
	Party     string `json:"party"`
	Office    string `json:"office"`
	Region    string `json:"region"`
	TermStart string `json:"termStart"`
	TermEnd   string `json:"termEnd"`
}

func (c *Client) CreatePolitician(p Politician) (*model.Politician, error) {
	var pol model.Politician
	if err := c.do(http.MethodPost, "/api/politicians", p, &pol); err != nil {
		return nil, err
	}
	return &pol, nil
}

// UpdatePolitician sends only the given fields.
func (c *Client) UpdatePolitician(id string, fields map[string]string) (*model.Politician, error) {
	var pol model.Politician
	if err := c.do(http.MethodPatch, "/api/politicians/"+url.PathEscape(id), fields, &pol); err != nil {
		return nil, err
	}
	return &pol, nil
}

func (c *Client) GetPolitician(id string) (*model.Politician, error) {
	var pol model.Politician
	if err := c.do(http.MethodGet, "/api/politicians/"+url.PathEscape(id), nil, &pol); err != nil {
		return nil, err
	}
	return &pol, nil
}

func (c *Client) ListPoliticians(limit, offset int) ([]model.Politician, error) {
	var result struct {
		Politicians []model.Politician `json:"politicians"`
	}
	if err := c.do(http.MethodGet, "/api/politicians"+pageQuery(limit, offset, nil), nil, &result); err != nil {
		return nil, err
	}
	return result.Politicians, nil
}

func (c *Client) DeletePolitician(id string) (*model.Politician, error) {
	var pol model.Politician
	if err := c.do(http.MethodDelete, "/api/politicians/"+url.PathEscape(id), nil, &pol); err != nil {
		return nil, err
	}
	return &pol, nil
}

func (c *Client) ApprovePoliticianDelete(id string) (*model.Politician, error) {
	var pol model.Politician
	if err := c.do(http.MethodPatch, "/api/politicians/"+url.PathEscape(id)+"/approve-delete", nil, &pol); err != nil {
		return nil, err
	}
	return &pol, nil
}

// Statement is the create payload.
type Statement struct {
	PoliticianID string `json:"politicianId"`
	Text         string `json:"text"`
	SourceURL    string `json:"sourceUrl"`
	DateMade     string `json:"dateMade"`
}

func (c *Client) CreateStatement(s Statement) (*model.Statement, error) {
	var stmt model.Statement
	if err := c.do(http.MethodPost, "/api/statements", s, &stmt); err != nil {
		return nil, err
	}
	return &stmt, nil
}

func (c *Client) GetStatement(id string) (*model.StatementView, error) {
	var stmt model.StatementView
	if err := c.do(http.MethodGet, "/api/statements/"+url.PathEscape(id), nil, &stmt); err != nil {
		return nil, err
	}
	return &stmt, nil
}

// ListStatements lists live statements, optionally for one politician.
func (c *Client) ListStatements(politicianID string, limit, offset int) ([]model.StatementView, error) {
	extra := url.Values{}
	if politicianID != "" {
		extra.Set("politicianId", politicianID)
	}
	var result struct {
		Statements []model.StatementView `json:"statements"`
	}
	if err := c.do(http.MethodGet, "/api/statements"+pageQuery(limit, offset, extra), nil, &result); err != nil {
		return nil, err
	}
	return result.Statements, nil
}

// VoteResult is the tally after a vote.
type VoteResult struct {
	Vote         model.Vote `json:"vote"`
	Upvotes      int        `json:"upvotes"`
	Downvotes    int        `json:"downvotes"`
	Flagged      bool       `json:"flagged"`
	NewlyFlagged bool       `json:"newlyFlagged"`
}

// Vote casts +1 or -1 on a statement.
func (c *Client) Vote(statementID string, value int) (*VoteResult, error) {
	var res VoteResult
	if err := c.do(http.MethodPost, "/api/statements/"+url.PathEscape(statementID)+"/vote", map[string]int{"value": value}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) UpdateStatus(statementID string, status model.StatementStatus) (*model.Statement, error) {
	var stmt model.Statement
	if err := c.do(http.MethodPatch, "/api/statements/"+url.PathEscape(statementID)+"/status", map[string]string{"status": string(status)}, &stmt); err != nil {
		return nil, err
	}
	return &stmt, nil
}

func (c *Client) DeleteStatement(id string) (*model.Statement, error) {
	var stmt model.Statement
	if err := c.do(http.MethodDelete, "/api/statements/"+url.PathEscape(id), nil, &stmt); err != nil {
		return nil, err
	}
	return &stmt, nil
}

func (c *Client) ApproveStatementDelete(id string) (*model.Statement, error) {
	var stmt model.Statement
	if err := c.do(http.MethodPatch, "/api/statements/"+url.PathEscape(id)+"/approve-delete", nil, &stmt); err != nil {
		return nil, err
	}
	return &stmt, nil
}

func (c *Client) Flagged(limit int) ([]model.StatementView, error) {
	var result struct {
		Statements []model.StatementView `json:"statements"`
	}
	if err := c.do(http.MethodGet, "/api/moderation/flagged"+pageQuery(limit, 0, nil), nil, &result); err != nil {
		return nil, err
	}
	return result.Statements, nil
}

// PendingDeletes is the review queue of delete requests.
type PendingDeletes struct {
	Politicians []model.Politician `json:"politicians"`
	Statements  []model.Statement  `json:"statements"`
}

func (c *Client) Pending(limit int) (*PendingDeletes, error) {
	var result PendingDeletes
	if err := c.do(http.MethodGet, "/api/moderation/pending"+pageQuery(limit, 0, nil), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Audit returns the edit log of one entity, oldest first.
func (c *Client) Audit(entityType, id string) ([]model.EditLog, error) {
	var result struct {
		Entries []model.EditLog `json:"entries"`
	}
	path := "/api/audit/" + url.PathEscape(entityType) + "/" + url.PathEscape(id)
	if err := c.do(http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result.Entries, nil
}

func (c *Client) Stats() (*model.SiteStats, error) {
	var stats model.SiteStats
	if err := c.do(http.MethodGet, "/api/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func pageQuery(limit, offset int, extra url.Values) string {
	q := url.Values{}
	for k, v := range extra {
		q[k] = v
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

// do performs a request and decodes a 2xx body into out.
func (c *Client) do(method, path string, body, out any) error {
	resp, err := c.doRequest(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if json.Unmarshal(data, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = string(data)
		}
		apiErr.StatusCode = resp.StatusCode
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// doRequest performs an authenticated HTTP request.
func (c *Client) doRequest(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	return c.HTTPClient.Do(req)
}

// TestHelper provides utilities for creating authenticated clients in tests.
type TestHelper struct {
	BaseURL  string
	Password string
}

// NewTestHelper creates a new test helper for the given base URL.
func NewTestHelper(baseURL string) *TestHelper {
	return &TestHelper{BaseURL: baseURL, Password: "correct-horse-battery"}
}

// CreateAuthenticatedClient registers email (if needed) and returns a logged
// in client.
func (h *TestHelper) CreateAuthenticatedClient(email string) (*Client, *model.User, error) {
	c := New(h.BaseURL)
	user, err := c.RegisterAndLogin(email, h.Password)
	if err != nil {
		return nil, nil, err
	}
	return c, user, nil
}

// GetToken returns an access token for email.
func (h *TestHelper) GetToken(email string) (string, error) {
	c, _, err := h.CreateAuthenticatedClient(email)
	if err != nil {
		return "", err
	}
	return c.Token, nil
}
