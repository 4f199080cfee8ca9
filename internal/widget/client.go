package widget

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"

	"github.com/MegaGrindStone/elf-therapist/internal/models"
)

// Client talks to the therapist server. It keeps the session cookie the server hands out, so every call
// made through one Client belongs to the same session.
type Client struct {
	baseURL *url.URL
	client  *http.Client

	logger *slog.Logger
}

// StatusError is returned when the server answers with a non-success status.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

type sessionResponse struct {
	SessionID       string `json:"session_id"`
	TherapistNumber int    `json:"therapist_number"`
}

type chatRequest struct {
	Message string `json:"message"`
}

const readChunkSize = 4096

// NewClient creates a Client for the server at baseURL.
func NewClient(baseURL string, logger *slog.Logger) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	return &Client{
		baseURL: u,
		client:  &http.Client{Jar: jar},
		logger:  logger.With(slog.String("module", "client")),
	}, nil
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Open loads the chat page once, which makes the server start a session for this client.
func (c *Client) Open(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	_, err = io.Copy(io.Discard, resp.Body)
	return err
}

// Session fetches the session information of this client.
func (c *Client) Session(ctx context.Context) (models.Session, error) {
	resp, err := c.do(ctx, http.MethodGet, "/session", nil)
	if err != nil {
		return models.Session{}, err
	}
	defer resp.Body.Close()

	var sr sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return models.Session{}, fmt.Errorf("failed to decode session: %w", err)
	}

	return models.Session{
		ID:              sr.SessionID,
		TherapistNumber: sr.TherapistNumber,
	}, nil
}

// Chat sends message and returns the streamed reply body as it is read from the connection. The chunk
// boundaries are those of the underlying reads and carry no meaning. The returned sequence must be ranged
// over exactly once, it closes the response body when it ends or when the caller stops early.
func (c *Client) Chat(ctx context.Context, message string) (iter.Seq2[[]byte, error], error) {
	body, err := json.Marshal(chatRequest{Message: message})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/chat", body)
	if err != nil {
		return nil, err
	}

	return func(yield func([]byte, error) bool) {
		defer resp.Body.Close()

		buf := make([]byte, readChunkSize)
		for {
			n, err := resp.Body.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				if !yield(chunk, nil) {
					return
				}
			}
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(nil, fmt.Errorf("error reading reply: %w", err))
				return
			}
		}
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	u := c.baseURL.JoinPath(path)

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		c.logger.Debug("Unexpected status",
			slog.String("path", path),
			slog.Int("status", resp.StatusCode))
		return nil, &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       string(bytes.TrimSpace(msg)),
		}
	}

	return resp, nil
}
