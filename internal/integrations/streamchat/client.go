// Package streamchat talks to the hosted chat vendor that mirrors each
// ticket's brand and creator conversations.
package streamchat

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

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/marketplace-support/internal/config"
)

const channelType = "messaging"

// ErrNotConfigured is returned when no API credentials are present.
var ErrNotConfigured = errors.New("chat vendor credentials not configured")

// Client calls the chat vendor REST API with a server-side token.
type Client struct {
	apiKey     string
	apiSecret  []byte
	baseURL    string
	userTTL    time.Duration
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

// NewClient builds a client. Calls fail with ErrNotConfigured when the key
// or secret is empty.
func NewClient(cfg config.StreamConfig, logger *zap.Logger) *Client {
	ttl := time.Duration(cfg.UserTokenTTLMin) * time.Minute
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Client{
		apiKey:     cfg.APIKey,
		apiSecret:  []byte(cfg.APISecret),
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		userTTL:    ttl,
		httpClient: &http.Client{Timeout: cfg.Timeout()},
		logger:     logger,
		now:        time.Now,
	}
}

// Configured reports whether credentials are present.
func (c *Client) Configured() bool {
	return c != nil && c.apiKey != "" && len(c.apiSecret) > 0
}

// ChannelID returns the vendor channel id for one side of a ticket.
func ChannelID(ticketID, side string) string {
	return fmt.Sprintf("ticket-%s-%s", ticketID, side)
}

// CreateSeparateTicketChannels creates one channel per counterparty, each
// shared only with the assigned agent, and returns their ids.
func (c *Client) CreateSeparateTicketChannels(ctx context.Context, ticketID, agentID, brandUserID, creatorUserID string) (string, string, error) {
	if !c.Configured() {
		return "", "", ErrNotConfigured
	}
	brandChannel := ChannelID(ticketID, "brand")
	if err := c.upsertChannel(ctx, brandChannel, agentID, ticketID, []string{agentID, brandUserID}); err != nil {
		return "", "", fmt.Errorf("create brand channel: %w", err)
	}
	creatorChannel := ChannelID(ticketID, "creator")
	if err := c.upsertChannel(ctx, creatorChannel, agentID, ticketID, []string{agentID, creatorUserID}); err != nil {
		return "", "", fmt.Errorf("create creator channel: %w", err)
	}
	c.logger.Debug("chat channels created",
		zap.String("ticket_id", ticketID),
		zap.String("brand_channel", brandChannel),
		zap.String("creator_channel", creatorChannel))
	return brandChannel, creatorChannel, nil
}

type channelQuery struct {
	Data  channelData `json:"data"`
	State bool        `json:"state"`
}

type channelData struct {
	CreatedByID string   `json:"created_by_id"`
	Members     []string `json:"members"`
	TicketID    string   `json:"ticket_id"`
}

func (c *Client) upsertChannel(ctx context.Context, channelID, createdBy, ticketID string, members []string) error {
	body, err := json.Marshal(channelQuery{
		Data:  channelData{CreatedByID: createdBy, Members: members, TicketID: ticketID},
		State: false,
	})
	if err != nil {
		return err
	}
	endpoint := fmt.Sprintf("%s/channels/%s/%s/query?api_key=%s",
		c.baseURL, channelType, url.PathEscape(channelID), url.QueryEscape(c.apiKey))
	return c.post(ctx, endpoint, body)
}

func (c *Client) post(ctx context.Context, endpoint string, body []byte) error {
	token, err := c.serverToken()
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", token)
	req.Header.Set("Stream-Auth-Type", "jwt")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("chat vendor returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}

func (c *Client) serverToken() (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"server": true})
	return token.SignedString(c.apiSecret)
}

// CreateUserToken issues a client-side token the browser uses to connect.
func (c *Client) CreateUserToken(userID string) (string, time.Time, error) {
	if !c.Configured() {
		return "", time.Time{}, ErrNotConfigured
	}
	now := c.now()
	expires := now.Add(c.userTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"iat":     now.Unix(),
		"exp":     expires.Unix(),
	})
	signed, err := token.SignedString(c.apiSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// APIKey exposes the public key the frontend pairs with user tokens.
func (c *Client) APIKey() string {
	return c.apiKey
}
