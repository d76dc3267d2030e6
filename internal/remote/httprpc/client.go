// Package httprpc implements remote.Client against a JSON-over-HTTP chat bridge.
//
// Endpoints:
//
//	POST {base}/v1/invoke                  {"action","channel","args"} -> reply
//	GET  {base}/v1/messages/{id}                                       -> reply
//	POST {base}/v1/messages/{id}/forward   {"user_id"}
//
// A reply is {"id","channel_id","blocks":[{"title","body"}],"has_image"}.
package httprpc

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

	"github.com/google/uuid"

	"fisherbot/internal/classifier"
	"fisherbot/internal/remote"
	logx "fisherbot/pkg/logx"
)

const maxReplyBytes = 1 << 20

type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

type Client struct {
	base    *url.URL
	token   string
	timeout time.Duration
	hc      *http.Client
	log     logx.Logger
}

var _ remote.Client = (*Client)(nil)

func New(cfg Config, log logx.Logger) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, errors.New("remote.base_url is required")
	}
	u, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("remote.base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("remote.base_url: unsupported scheme %q", u.Scheme)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		base:    u,
		token:   cfg.Token,
		timeout: cfg.Timeout,
		hc:      &http.Client{},
		log:     log.With(logx.String("comp", "remote")),
	}, nil
}

type wireBlock struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type wireReply struct {
	ID        string      `json:"id"`
	ChannelID string      `json:"channel_id"`
	Blocks    []wireBlock `json:"blocks"`
	HasImage  bool        `json:"has_image"`
}

type invokeRequest struct {
	Action  string            `json:"action"`
	Channel string            `json:"channel"`
	Args    map[string]string `json:"args,omitempty"`
}

type forwardRequest struct {
	UserID string `json:"user_id"`
}

func (c *Client) Invoke(ctx context.Context, action, channel string, args map[string]string) (remote.Reply, error) {
	var wr wireReply
	err := c.call(ctx, http.MethodPost, "/v1/invoke", invokeRequest{Action: action, Channel: channel, Args: args}, &wr)
	if err != nil {
		return remote.Reply{}, remote.Normalize("invoke "+action, err)
	}
	return decodeReply(wr)
}

func (c *Client) FetchReply(ctx context.Context, refID string) (remote.Reply, error) {
	if strings.TrimSpace(refID) == "" {
		return remote.Reply{}, fmt.Errorf("fetch reply: %w: empty reference", remote.ErrUnreadable)
	}
	var wr wireReply
	if err := c.call(ctx, http.MethodGet, "/v1/messages/"+url.PathEscape(refID), nil, &wr); err != nil {
		return remote.Reply{}, remote.Normalize("fetch reply", err)
	}
	return decodeReply(wr)
}

func (c *Client) Forward(ctx context.Context, refID, userID string) error {
	path := "/v1/messages/" + url.PathEscape(refID) + "/forward"
	return remote.Normalize("forward", c.call(ctx, http.MethodPost, path, forwardRequest{UserID: userID}, nil))
}

func decodeReply(wr wireReply) (remote.Reply, error) {
	if wr.ID == "" && len(wr.Blocks) == 0 && !wr.HasImage {
		return remote.Reply{}, fmt.Errorf("decode reply: %w: empty reply", remote.ErrUnreadable)
	}
	out := remote.Reply{ID: wr.ID, ChannelID: wr.ChannelID, HasImage: wr.HasImage}
	for _, b := range wr.Blocks {
		out.Blocks = append(out.Blocks, classifier.TextBlock{Title: b.Title, Body: b.Body})
	}
	return out, nil
}

func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return err
	}
	reqID := uuid.NewString()
	req.Header.Set("X-Request-ID", reqID)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	c.log.Debug("remote call",
		logx.String("method", method),
		logx.String("path", path),
		logx.Int("status", resp.StatusCode),
		logx.String("req_id", reqID),
		logx.Duration("took", time.Since(start)),
	)

	switch {
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusGatewayTimeout:
		return fmt.Errorf("%w: status %d", remote.ErrTimeout, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: status %d", remote.ErrUnreadable, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("remote status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxReplyBytes))
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxReplyBytes)).Decode(out); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("%w: %v", remote.ErrUnreadable, err)
	}
	return nil
}
