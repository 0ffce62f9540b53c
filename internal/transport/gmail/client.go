// Package gmail sends campaign mail through the Gmail REST API on behalf
// of a connected mailbox, refreshing the access token when it expires.
package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ignite/profile-mailer/internal/domain"
	"github.com/ignite/profile-mailer/internal/pkg/httpretry"
)

const sendPath = "/gmail/v1/users/me/messages/send"

// Client posts raw RFC 5322 messages to users.messages.send.
type Client struct {
	baseURL string
	http    httpretry.HTTPDoer
}

// NewClient targets baseURL (https://gmail.googleapis.com in production).
func NewClient(baseURL string, doer httpretry.HTTPDoer) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: doer}
}

type sendRequest struct {
	Raw string `json:"raw"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// SendRaw sends raw with accessToken. A 401 is domain.ErrAuthExpired; any
// other failure wraps domain.ErrTransport. A 5xx is not repeated since
// Gmail may already have delivered the message.
func (c *Client) SendRaw(ctx context.Context, accessToken string, raw []byte) error {
	ctx = httpretry.WithClass(ctx, httpretry.NonIdempotent)
	payload, err := json.Marshal(sendRequest{Raw: base64.URLEncoding.EncodeToString(raw)})
	if err != nil {
		return fmt.Errorf("%w: encode request: %v", domain.ErrTransport, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+sendPath, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", domain.ErrTransport, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return domain.ErrAuthExpired
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	}

	msg := strings.TrimSpace(string(body))
	var ae apiError
	if json.Unmarshal(body, &ae) == nil && ae.Error.Message != "" {
		msg = ae.Error.Message
	}
	return fmt.Errorf("%w: gmail api status %d: %s", domain.ErrTransport, resp.StatusCode, msg)
}
