// Package api implements the chatsync.Backend collaborator surface
// over the messenger backend's REST API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/parley-chat/parley/pkg/chatsync"
)

// Config configures the REST client.
type Config struct {
	// BaseURL points at the API root, e.g. http://localhost:8000/api/v1.
	BaseURL string
	// HTTPClient defaults to a client with a 15s timeout.
	HTTPClient *http.Client
	// Header is attached to every request (session cookie etc.).
	Header http.Header
}

// Client talks to the backend. Failures are wrapped and returned to the
// caller; nothing is retried automatically.
type Client struct {
	baseURL string
	hc      *http.Client
	header  http.Header
}

var _ chatsync.Backend = &Client{}

func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		return nil, errors.New("api client: BaseURL is empty")
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{baseURL: base, hc: hc, header: cfg.Header}, nil
}

func (c *Client) CurrentUserID(ctx context.Context) (string, error) {
	var out struct {
		UserID string `json:"user_id"`
	}
	if err := c.do(ctx, http.MethodGet, "/user_id", nil, &out); err != nil {
		return "", err
	}
	if out.UserID == "" {
		return "", errors.New("api client: empty user_id in response")
	}
	return out.UserID, nil
}

func (c *Client) Chats(ctx context.Context) ([]chatsync.Chat, error) {
	var dtos []chatDTO
	if err := c.do(ctx, http.MethodGet, "/chats", nil, &dtos); err != nil {
		return nil, err
	}
	chats := make([]chatsync.Chat, 0, len(dtos))
	for _, d := range dtos {
		chats = append(chats, d.chat())
	}
	return chats, nil
}

func (c *Client) Messages(ctx context.Context, chatID string) ([]chatsync.Message, error) {
	var dtos []messageDTO
	if err := c.do(ctx, http.MethodGet, "/messages/"+url.PathEscape(chatID), nil, &dtos); err != nil {
		return nil, err
	}
	msgs := make([]chatsync.Message, 0, len(dtos))
	for _, d := range dtos {
		msgs = append(msgs, d.message())
	}
	return msgs, nil
}

func (c *Client) SendMessage(ctx context.Context, chatID, content string) (chatsync.Message, error) {
	body := map[string]any{"chat_id": chatID, "content": content}
	var dto messageDTO
	if err := c.do(ctx, http.MethodPost, "/send_message", body, &dto); err != nil {
		return chatsync.Message{}, err
	}
	msg := dto.message()
	if msg.ChatID == "" {
		msg.ChatID = chatID
	}
	return msg, nil
}

func (c *Client) CreateChat(ctx context.Context, otherUserID string) (chatsync.Chat, error) {
	body := map[string]any{"target_user_id": otherUserID}
	var dto chatDTO
	if err := c.do(ctx, http.MethodPost, "/chat_create", body, &dto); err != nil {
		return chatsync.Chat{}, err
	}
	return dto.chat(), nil
}

func (c *Client) DeleteChat(ctx context.Context, chatID string) error {
	return c.do(ctx, http.MethodDelete, "/delete_chat?chat_id="+url.QueryEscape(chatID), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errors.Wrapf(err, "marshal %s %s body", method, path)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrapf(err, "build %s %s", method, path)
	}
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Debug().Str("component", "api_client").Str("path", path).Int("status", resp.StatusCode).Msg("request failed")
		return errors.Errorf("%s %s: unexpected status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decode %s %s response", method, path)
	}
	return nil
}

// flexID tolerates backends that serialize ids as JSON numbers.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" {
		s = ""
	}
	*f = flexID(s)
	return nil
}

type messageDTO struct {
	ID        flexID    `json:"id"`
	ChatID    flexID    `json:"chat_id"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func (d messageDTO) message() chatsync.Message {
	return chatsync.Message{
		ID:        string(d.ID),
		ChatID:    string(d.ChatID),
		SenderID:  d.SenderID,
		Content:   d.Content,
		CreatedAt: d.CreatedAt,
		Confirmed: true,
	}
}

type memberDTO struct {
	SupertokensID string `json:"supertokens_id"`
	Username      string `json:"username"`
	AvatarURL     string `json:"avatar_url"`
}

type chatDTO struct {
	ID        flexID       `json:"id"`
	CreatedAt time.Time    `json:"created_at"`
	Members   []memberDTO  `json:"members"`
	Messages  []messageDTO `json:"messages"`
}

// chat converts the DTO, deriving the roster preview from the message
// with the greatest timestamp included in the snapshot.
func (d chatDTO) chat() chatsync.Chat {
	ch := chatsync.Chat{
		ID:        string(d.ID),
		CreatedAt: d.CreatedAt,
	}
	for _, m := range d.Members {
		ch.Members = append(ch.Members, chatsync.Participant{
			ID:        m.SupertokensID,
			Username:  m.Username,
			AvatarURL: m.AvatarURL,
		})
	}
	for _, m := range d.Messages {
		if ch.Preview == nil || m.CreatedAt.After(ch.Preview.CreatedAt) {
			ch.Preview = &chatsync.Preview{
				Content:   m.Content,
				SenderID:  m.SenderID,
				CreatedAt: m.CreatedAt,
			}
		}
	}
	return ch
}
