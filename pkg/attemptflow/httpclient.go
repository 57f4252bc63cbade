package attemptflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPClient talks to the quizdesk API with a bearer token.
type HTTPClient struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *HTTPClient) StartAttempt(ctx context.Context, questionSetID string) (Attempt, error) {
	var a Attempt
	err := c.do(ctx, http.MethodPost, "/attempts",
		map[string]string{"question_set_id": questionSetID}, &a)
	return a, err
}

func (c *HTTPClient) GetAttempt(ctx context.Context, attemptID string) (Attempt, error) {
	var a Attempt
	err := c.do(ctx, http.MethodGet, "/attempts/"+attemptID, nil, &a)
	return a, err
}

func (c *HTTPClient) SubmitAnswer(ctx context.Context, attemptID string, ans Answer) (QuestionAttempt, error) {
	var it QuestionAttempt
	err := c.do(ctx, http.MethodPost, "/attempts/"+attemptID+"/answers", ans, &it)
	return it, err
}

func (c *HTTPClient) FinishAttempt(ctx context.Context, attemptID string) (Attempt, error) {
	var a Attempt
	err := c.do(ctx, http.MethodPost, "/attempts/"+attemptID+"/finish", nil, &a)
	return a, err
}

func (c *HTTPClient) GetResult(ctx context.Context, attemptID string) (Result, error) {
	var res Result
	err := c.do(ctx, http.MethodGet, "/attempts/"+attemptID+"/result", nil, &res)
	return res, err
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		switch resp.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrNotFound, strings.TrimSpace(string(msg)))
		case http.StatusConflict:
			return fmt.Errorf("%w: %s", ErrConflict, strings.TrimSpace(string(msg)))
		case http.StatusUnprocessableEntity, http.StatusBadRequest:
			return fmt.Errorf("%w: %s", ErrRejected, strings.TrimSpace(string(msg)))
		default:
			return fmt.Errorf("%s %s: %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
		}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
