package hostflowsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal hostflow marketplace HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:     baseURL,
		BearerToken: token,
		Timeout:     30 * time.Second,
	}
}

// Entity is a listing, event, group or job application as the backend stores it.
// Field names in Fields are backend-owned and differ from form field names.
type Entity struct {
	ID          string         `json:"id"`
	OwnerID     string         `json:"owner_id"`
	Kind        string         `json:"kind"`
	Status      string         `json:"status"`
	Fields      map[string]any `json:"fields"`
	Media       []Media        `json:"media"`
	CreatedAt   string         `json:"created_at"`
	UpdatedAt   string         `json:"updated_at"`
	SubmittedAt string         `json:"submitted_at,omitempty"`
}

// Media is an uploaded asset.
type Media struct {
	ID          string `json:"id"`
	EntityID    string `json:"entity_id"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	URL         string `json:"url"`
	CreatedAt   string `json:"created_at"`
}

// File is an upload payload.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Profile is the authenticated user.
type Profile struct {
	UserID string   `json:"user_id"`
	Name   string   `json:"name"`
	Email  string   `json:"email"`
	Phone  string   `json:"phone"`
	Roles  []string `json:"roles"`
}

// Membership describes the caller's relation to a group.
type Membership struct {
	GroupID string `json:"group_id"`
	Member  bool   `json:"member"`
	Role    string `json:"role,omitempty"`
	Members int    `json:"members"`
}

// APIError wraps non-2xx responses. Code is the backend's structured error code
// when the response carried the standard error envelope.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsCode reports whether err is an APIError carrying code.
func IsCode(err error, code string) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Code == code
}

// CreateDraft creates a draft entity from minimal fields.
func (c *Client) CreateDraft(ctx context.Context, kind string, fields map[string]any) (Entity, error) {
	body := map[string]any{
		"kind":   kind,
		"fields": fields,
	}
	var resp Entity
	err := c.do(ctx, http.MethodPost, "v1/entities", body, &resp)
	return resp, err
}

// UpdateBasicInfo patches the basic info section.
func (c *Client) UpdateBasicInfo(ctx context.Context, id string, fields map[string]any) error {
	return c.updateSection(ctx, id, "basic", fields)
}

// UpdateLocation patches the location section.
func (c *Client) UpdateLocation(ctx context.Context, id string, fields map[string]any) error {
	return c.updateSection(ctx, id, "location", fields)
}

// UpdateVenuePricing patches the venue/pricing section.
func (c *Client) UpdateVenuePricing(ctx context.Context, id string, fields map[string]any) error {
	return c.updateSection(ctx, id, "pricing", fields)
}

func (c *Client) updateSection(ctx context.Context, id, section string, fields map[string]any) error {
	body := map[string]any{"fields": fields}
	return c.do(ctx, http.MethodPatch, entityPath(id, section), body, nil)
}

// UpdateAmenities replaces the amenities (or group rules) list.
func (c *Client) UpdateAmenities(ctx context.Context, id string, items []string) error {
	if items == nil {
		items = []string{}
	}
	body := map[string]any{"items": items}
	return c.do(ctx, http.MethodPut, entityPath(id, "amenities"), body, nil)
}

// Submit moves the entity to pending review.
func (c *Client) Submit(ctx context.Context, id string) (Entity, error) {
	var resp Entity
	err := c.do(ctx, http.MethodPost, entityPath(id, "submit"), nil, &resp)
	return resp, err
}

// Approve publishes a submitted entity. Requires the moderator role.
func (c *Client) Approve(ctx context.Context, id string) (Entity, error) {
	var resp Entity
	err := c.do(ctx, http.MethodPost, entityPath(id, "approve"), nil, &resp)
	return resp, err
}

// GetEntity fetches an entity by id.
func (c *Client) GetEntity(ctx context.Context, id string) (Entity, error) {
	var resp Entity
	err := c.do(ctx, http.MethodGet, entityPath(id, ""), nil, &resp)
	return resp, err
}

// MyEntities lists entities owned by the caller, drafts included.
func (c *Client) MyEntities(ctx context.Context) ([]Entity, error) {
	var resp struct {
		Items []Entity `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "v1/me/entities", nil, &resp)
	return resp.Items, err
}

// Me returns the authenticated profile.
func (c *Client) Me(ctx context.Context) (Profile, error) {
	var resp Profile
	err := c.do(ctx, http.MethodGet, "v1/me", nil, &resp)
	return resp, err
}

// DevLogin mints a token on a sandbox backend and stores it on the client.
func (c *Client) DevLogin(ctx context.Context, p Profile) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "v1/auth/dev/login", p, &resp); err != nil {
		return "", err
	}
	c.BearerToken = resp.Token
	return resp.Token, nil
}

// JoinGroup adds the caller to a group.
func (c *Client) JoinGroup(ctx context.Context, groupID string) (Membership, error) {
	var resp Membership
	err := c.do(ctx, http.MethodPost, groupPath(groupID, "join"), nil, &resp)
	return resp, err
}

// LeaveGroup removes the caller from a group.
func (c *Client) LeaveGroup(ctx context.Context, groupID string) (Membership, error) {
	var resp Membership
	err := c.do(ctx, http.MethodPost, groupPath(groupID, "leave"), nil, &resp)
	return resp, err
}

// Membership returns the caller's membership in a group.
func (c *Client) Membership(ctx context.Context, groupID string) (Membership, error) {
	var resp Membership
	err := c.do(ctx, http.MethodGet, groupPath(groupID, "membership"), nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(endpoint), &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return decodeAPIError(resp.StatusCode, b)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func decodeAPIError(status int, body []byte) *APIError {
	ae := &APIError{StatusCode: status, Body: string(body)}
	var env struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &env) == nil {
		ae.Code = env.Error.Code
		ae.Message = env.Error.Message
	}
	return ae
}

func (c *Client) url(endpoint string) string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
}

func entityPath(id, section string) string {
	p := fmt.Sprintf("v1/entities/%s", url.PathEscape(id))
	if section != "" {
		p += "/" + section
	}
	return p
}

func groupPath(id, action string) string {
	return fmt.Sprintf("v1/groups/%s/%s", url.PathEscape(id), action)
}
