package httpclient

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
	"sync"
	"time"

	"github.com/mind-engage/examportal/pkg/attempt"
)

// StatusError is a non-2xx reply from the portal.
type StatusError struct {
	Op      string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %d %s", e.Op, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %d %s", e.Op, e.Code, http.StatusText(e.Code))
}

// Unwrap lets callers match 409 with attempt.ErrAlreadySubmitted.
func (e *StatusError) Unwrap() error {
	if e.Code == http.StatusConflict {
		return attempt.ErrAlreadySubmitted
	}
	return nil
}

type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	// Optional; a plain client with Timeout is used when nil.
	HTTPClient *http.Client
}

// Client implements attempt.Service against portald.
type Client struct {
	base string
	http *http.Client

	mu    sync.RWMutex
	token string
}

var _ attempt.Service = (*Client)(nil)

func New(cfg Config) *Client {
	h := cfg.HTTPClient
	if h == nil {
		h = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{base: strings.TrimRight(cfg.BaseURL, "/"), http: h, token: cfg.Token}
}

// Login exchanges credentials for a bearer token and keeps it for later calls.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var out struct {
		AccessToken string `json:"access_token"`
	}
	in := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, "login", http.MethodPost, "/auth/login", in, &out); err != nil {
		return "", err
	}
	c.mu.Lock()
	c.token = out.AccessToken
	c.mu.Unlock()
	return out.AccessToken, nil
}

func (c *Client) StartAttempt(ctx context.Context, testID string) (attempt.Test, attempt.Attempt, error) {
	var out struct {
		Test    attempt.Test    `json:"test"`
		Attempt attempt.Attempt `json:"attempt"`
	}
	if err := c.do(ctx, "start attempt", http.MethodPost, testPath(testID, "start"), nil, &out); err != nil {
		return attempt.Test{}, attempt.Attempt{}, err
	}
	return out.Test, out.Attempt, nil
}

type answerReq struct {
	SectionID       string   `json:"sectionId"`
	QuestionID      string   `json:"questionId"`
	SelectedOption  *string  `json:"selectedOption"`
	NumericalAnswer *float64 `json:"numericalAnswer"`
	Seq             int64    `json:"seq,omitempty"`
}

func (c *Client) SaveAnswer(ctx context.Context, testID string, rec attempt.AnswerRecord) error {
	body := answerReq{
		SectionID:       rec.SectionID,
		QuestionID:      rec.QuestionID,
		SelectedOption:  rec.SelectedOption,
		NumericalAnswer: rec.NumericalAnswer,
		Seq:             rec.Seq,
	}
	return c.do(ctx, "save answer", http.MethodPost, testPath(testID, "answer"), body, nil)
}

func (c *Client) SubmitAttempt(ctx context.Context, testID string) error {
	return c.do(ctx, "submit attempt", http.MethodPost, testPath(testID, "submit"), nil, nil)
}

func (c *Client) FetchResult(ctx context.Context, testID string) (attempt.Result, error) {
	var out attempt.Result
	err := c.do(ctx, "fetch result", http.MethodGet, testPath(testID, "my-result"), nil, &out)
	return out, err
}

func testPath(testID, action string) string {
	return "/tests/" + url.PathEscape(testID) + "/" + action
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.mu.RLock()
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	c.mu.RUnlock()

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		return statusError(op, res)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode: %w", op, err)
	}
	return nil
}

func statusError(op string, res *http.Response) error {
	se := &StatusError{Op: op, Code: res.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
	var msg struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(raw, &msg) == nil {
		se.Message = msg.Message
		if se.Message == "" {
			se.Message = msg.Error
		}
	} else {
		se.Message = strings.TrimSpace(string(raw))
	}
	return se
}

// IsStatus reports whether err is a portal reply with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}
