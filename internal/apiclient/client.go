// Package apiclient talks to the upstream attendance REST API. Responses are
// decoded into meeting types and validated before they reach the engine.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"presensi/internal/meeting"
	"presensi/internal/metrics"
	"presensi/internal/store"
)

var (
	// ErrNoToken means no bearer token is stored for the client's key.
	ErrNoToken = errors.New("no upstream token")
	// ErrUnauthorized means the upstream rejected the bearer token.
	ErrUnauthorized = errors.New("upstream unauthorized")
	// ErrInvalidRequest means a request failed validation before being sent.
	ErrInvalidRequest = errors.New("invalid request")
)

// APIError is a non-2xx upstream response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("upstream error %d: %s", e.StatusCode, e.Message)
}

// Client calls the upstream API on behalf of one token key.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Tokens  store.TokenStore
	Key     string

	validate *validator.Validate
	log      *slog.Logger
}

// New creates a client. Tokens may be nil when only Login is used.
func New(baseURL string, timeout time.Duration, tokens store.TokenStore, log *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		HTTP:     &http.Client{Timeout: timeout},
		Tokens:   tokens,
		validate: newValidator(),
		log:      log,
	}
}

// As returns a copy of c that reads its bearer token under key.
func (c *Client) As(key string) *Client {
	cp := *c
	cp.Key = key
	return &cp
}

// User is the upstream profile of the signed-in account.
type User struct {
	ID       int64  `json:"id" validate:"required"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Role     string `json:"role" validate:"required,oneof=admin student"`
	NIM      string `json:"nim,omitempty"`
}

// Session is the outcome of a successful login.
type Session struct {
	Token string
	User  User
}

// Login exchanges credentials for a bearer token and loads the profile with
// it. Nothing is persisted; callers store Session.Token under their own key.
func (c *Client) Login(ctx context.Context, username, password string) (Session, error) {
	if username == "" || password == "" {
		return Session{}, errors.New("username and password required")
	}
	var resp struct {
		AccessToken string `json:"access_token"`
	}
	body := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", "login", "", body, &resp); err != nil {
		return Session{}, err
	}
	if resp.AccessToken == "" {
		return Session{}, errors.New("login response missing access token")
	}

	user, err := c.profile(ctx, resp.AccessToken)
	if err != nil {
		return Session{}, fmt.Errorf("fetch user profile: %w", err)
	}
	return Session{Token: resp.AccessToken, User: user}, nil
}

// Logout forgets the stored token for c.Key.
func (c *Client) Logout(ctx context.Context) error {
	if c.Tokens == nil {
		return nil
	}
	return c.Tokens.Delete(ctx, c.Key)
}

// Profile loads the signed-in user.
func (c *Client) Profile(ctx context.Context) (User, error) {
	tok, err := c.token(ctx)
	if err != nil {
		return User{}, err
	}
	return c.profile(ctx, tok)
}

func (c *Client) profile(ctx context.Context, tok string) (User, error) {
	var u User
	if err := c.do(ctx, http.MethodGet, "/user/profile", "profile", tok, nil, &u); err != nil {
		return User{}, err
	}
	if err := c.validate.Struct(u); err != nil {
		return User{}, fmt.Errorf("invalid profile: %w", err)
	}
	return u, nil
}

// History returns every attendance record visible to the token. Records that
// fail validation are dropped.
func (c *Client) History(ctx context.Context) ([]meeting.AttendanceRecord, error) {
	tok, err := c.token(ctx)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Data    struct {
			History []meeting.AttendanceRecord `json:"history"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/admin/history", "history", tok, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "" && resp.Status != "success" {
		return nil, &APIError{StatusCode: http.StatusOK, Message: firstNonEmpty(resp.Message, resp.Status)}
	}
	return keepValid(c, "attendance_record", resp.Data.History), nil
}

// MeetingsByClass lists the meetings scheduled for a class.
func (c *Client) MeetingsByClass(ctx context.Context, classID int64) ([]meeting.Meeting, error) {
	tok, err := c.token(ctx)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Meetings []meeting.Meeting `json:"meetings"`
	}
	path := "/meetings/by-class/" + strconv.FormatInt(classID, 10)
	if err := c.do(ctx, http.MethodGet, path, "meetings_by_class", tok, nil, &resp); err != nil {
		return nil, err
	}
	for i := range resp.Meetings {
		if resp.Meetings[i].ClassID == 0 {
			resp.Meetings[i].ClassID = classID
		}
	}
	return keepValid(c, "meeting", resp.Meetings), nil
}

// CreateMeetingRequest is the payload for scheduling a meeting.
type CreateMeetingRequest struct {
	ClassID   int64         `json:"class_id" validate:"required"`
	Date      meeting.Date  `json:"date"`
	StartTime meeting.Clock `json:"start_time"`
	EndTime   meeting.Clock `json:"end_time"`
}

// CreateMeeting schedules a meeting upstream and returns it as stored.
func (c *Client) CreateMeeting(ctx context.Context, req CreateMeetingRequest) (meeting.Meeting, error) {
	if err := c.validate.Struct(req); err != nil {
		return meeting.Meeting{}, fmt.Errorf("%w: meeting: %v", ErrInvalidRequest, err)
	}
	if req.Date.IsZero() {
		return meeting.Meeting{}, fmt.Errorf("%w: meeting date required", ErrInvalidRequest)
	}
	tok, err := c.token(ctx)
	if err != nil {
		return meeting.Meeting{}, err
	}
	var resp struct {
		Meeting *meeting.Meeting `json:"meeting"`
	}
	if err := c.do(ctx, http.MethodPost, "/meetings/create", "create_meeting", tok, req, &resp); err != nil {
		return meeting.Meeting{}, err
	}
	if resp.Meeting == nil {
		// Older backends only acknowledge; echo the request back.
		return meeting.Meeting{ClassID: req.ClassID, Date: req.Date, StartTime: req.StartTime, EndTime: req.EndTime}, nil
	}
	return *resp.Meeting, nil
}

// StudentsByClass lists the students enrolled in a class.
func (c *Client) StudentsByClass(ctx context.Context, classID int64) ([]meeting.Student, error) {
	tok, err := c.token(ctx)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Students []meeting.Student `json:"students"`
	}
	path := "/class-students/by-class/" + strconv.FormatInt(classID, 10)
	if err := c.do(ctx, http.MethodGet, path, "students_by_class", tok, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Students, nil
}

func (c *Client) token(ctx context.Context) (string, error) {
	if c.Tokens == nil {
		return "", ErrNoToken
	}
	tok, err := c.Tokens.Get(ctx, c.Key)
	if errors.Is(err, store.ErrTokenNotFound) || (err == nil && tok == "") {
		return "", ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("load token: %w", err)
	}
	return tok, nil
}

func (c *Client) do(ctx context.Context, method, path, endpoint, tok string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	start := time.Now()
	resp, err := c.HTTP.Do(req)
	metrics.UpstreamLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()
	metrics.UpstreamRequests.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(raw, resp.Status)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}

func keepValid[T any](c *Client, kind string, items []T) []T {
	out := items[:0]
	for _, it := range items {
		if err := c.validate.Struct(it); err != nil {
			metrics.RecordsRejected.WithLabelValues(kind).Inc()
			c.log.Warn("dropping invalid upstream record", slog.String("kind", kind), slog.String("error", err.Error()))
			continue
		}
		out = append(out, it)
	}
	return out
}

func errorMessage(raw []byte, fallback string) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil {
		if m := firstNonEmpty(body.Message, body.Error); m != "" {
			return m
		}
	}
	if s := strings.TrimSpace(string(raw)); s != "" {
		return s
	}
	return fallback
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
