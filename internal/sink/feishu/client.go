package feishu

import (
	"context"
	"encoding/json"
	"fmt"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"

	"github.com/nhle/review-notifier/internal/sink"
)

const name = "feishu"

// messageCreator is the slice of the lark IM API the sink uses.
type messageCreator interface {
	Create(ctx context.Context, req *larkim.CreateMessageReq, options ...larkcore.RequestOptionFunc) (*larkim.CreateMessageResp, error)
}

// Client sends plain-text messages to a Feishu/Lark chat.
type Client struct {
	messages messageCreator
	chatID   string
}

var _ sink.Sink = (*Client)(nil)

// NewClient creates a Feishu sink for one chat. opts are passed to the lark
// client, e.g. lark.WithOpenBaseUrl for a Lark (non-China) tenant.
func NewClient(appID, appSecret, chatID string, opts ...lark.ClientOptionFunc) *Client {
	larkCli := lark.NewClient(appID, appSecret, opts...)
	return &Client{messages: larkCli.Im.Message, chatID: chatID}
}

// Name returns "feishu".
func (c *Client) Name() string { return name }

// Format returns sink.FormatText.
func (c *Client) Format() sink.Format { return sink.FormatText }

// Send delivers msg.Body as a text message.
func (c *Client) Send(ctx context.Context, msg sink.Message) error {
	content, err := json.Marshal(map[string]string{"text": msg.Body})
	if err != nil {
		return fmt.Errorf("marshaling message content: %w", err)
	}

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(larkim.ReceiveIdTypeChatId).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(c.chatID).
			MsgType(larkim.MsgTypeText).
			Content(string(content)).
			Build()).
		Build()

	resp, err := c.messages.Create(ctx, req)
	if err != nil {
		return &sink.Error{Sink: name, Description: "send message failed: " + err.Error(), Err: err}
	}
	if !resp.Success() {
		return &sink.Error{Sink: name, StatusCode: resp.Code, Description: resp.Msg}
	}
	return nil
}

// Test sends a test message; Feishu has no separate credential check.
func (c *Client) Test(ctx context.Context) error {
	if err := c.Send(ctx, sink.Message{
		Title: "Test message",
		Body:  "✅ Test message\n\nReview notifier is connected.",
	}); err != nil {
		return fmt.Errorf("sending test message: %w", err)
	}
	return nil
}
