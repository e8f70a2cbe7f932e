package telegram

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

	"github.com/nhle/review-notifier/internal/sink"
)

const name = "telegram"

// DefaultAPIURL is the public Bot API endpoint.
const DefaultAPIURL = "https://api.telegram.org"

// Client sends messages through the Telegram Bot API using HTML parse
// mode. It never retries.
type Client struct {
	apiURL     string
	token      string
	chatID     string
	httpClient *http.Client
}

var _ sink.Sink = (*Client)(nil)

// NewClient creates a Telegram sink for one chat. A zero timeout falls
// back to 15s.
func NewClient(apiURL, token, chatID string, timeout time.Duration) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		apiURL: strings.TrimRight(apiURL, "/"),
		token:  token,
		chatID: chatID,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Name returns "telegram".
func (c *Client) Name() string { return name }

// Format returns sink.FormatHTML.
func (c *Client) Format() sink.Format { return sink.FormatHTML }

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

// BotUser is the getMe result.
type BotUser struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
}

// Send posts msg.Body to the configured chat.
func (c *Client) Send(ctx context.Context, msg sink.Message) error {
	return c.call(ctx, http.MethodPost, "sendMessage", sendMessageRequest{
		ChatID:                c.chatID,
		Text:                  msg.Body,
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	}, nil)
}

// GetMe returns the bot account behind the token.
func (c *Client) GetMe(ctx context.Context) (*BotUser, error) {
	var u BotUser
	if err := c.call(ctx, http.MethodGet, "getMe", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Test checks the token with getMe and sends a test message.
func (c *Client) Test(ctx context.Context) error {
	bot, err := c.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("checking bot token: %w", err)
	}
	body := fmt.Sprintf("✅ <b>Test message</b>\n\nReview notifier is connected as @%s.", bot.Username)
	if err := c.Send(ctx, sink.Message{Title: "Test message", Body: body}); err != nil {
		return fmt.Errorf("sending test message: %w", err)
	}
	return nil
}

func (c *Client) call(ctx context.Context, method, apiMethod string, body, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+"/bot"+c.token+"/"+apiMethod, bodyReader)
	if err != nil {
		// The URL carries the token; never surface it.
		return &sink.Error{Sink: name, Description: "creating request " + apiMethod}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return &sink.Error{Sink: name, Description: apiMethod + ": " + err.Error(), Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &sink.Error{Sink: name, StatusCode: resp.StatusCode, Description: "reading response body", Err: err}
	}

	var ar apiResponse
	if err := json.Unmarshal(respBody, &ar); err != nil {
		return &sink.Error{
			Sink:        name,
			StatusCode:  resp.StatusCode,
			Description: fmt.Sprintf("unexpected response to %s", apiMethod),
			Err:         err,
		}
	}

	if !ar.OK {
		code := ar.ErrorCode
		if code == 0 {
			code = resp.StatusCode
		}
		desc := ar.Description
		if desc == "" {
			desc = "unknown error"
		}
		return &sink.Error{Sink: name, StatusCode: code, Description: desc}
	}

	if result != nil && len(ar.Result) > 0 {
		if err := json.Unmarshal(ar.Result, result); err != nil {
			return fmt.Errorf("unmarshaling %s result: %w", apiMethod, err)
		}
	}
	return nil
}
