// Package zoho keeps marketplace orders mirrored as CRM deals.
package zoho

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/marketplace-support/internal/config"
	"github.com/spec-kit/marketplace-support/internal/events"
)

// Deal is the CRM record written for each order.
type Deal struct {
	DealName    string  `json:"Deal_Name"`
	Stage       string  `json:"Stage"`
	Amount      float64 `json:"Amount"`
	Currency    string  `json:"Currency,omitempty"`
	OrderID     string  `json:"Marketplace_Order_ID"`
	TicketID    string  `json:"Support_Ticket_ID,omitempty"`
	BrandName   string  `json:"Brand_Name,omitempty"`
	CreatorName string  `json:"Creator_Name,omitempty"`
}

type upsertRequest struct {
	Data               []Deal   `json:"data"`
	DuplicateCheckFlds []string `json:"duplicate_check_fields"`
}

// Client upserts deals. It is a no-op when no access token is configured.
type Client struct {
	baseURL    string
	token      string
	timeout    time.Duration
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient builds a CRM client.
func NewClient(cfg config.ZohoConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.AccessToken,
		timeout:    cfg.Timeout(),
		httpClient: &http.Client{Timeout: cfg.Timeout()},
		logger:     logger,
	}
}

// Enabled reports whether deal sync will run.
func (c *Client) Enabled() bool {
	return c != nil && c.token != "" && c.baseURL != ""
}

// UpsertDeal writes deal keyed on the order id.
func (c *Client) UpsertDeal(ctx context.Context, deal Deal) error {
	body, err := json.Marshal(upsertRequest{
		Data:               []Deal{deal},
		DuplicateCheckFlds: []string{"Marketplace_Order_ID"},
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/crm/v2/Deals/upsert", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Zoho-oauthtoken "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("crm returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}

// Register subscribes deal sync to order events.
func (c *Client) Register(d events.Dispatcher) {
	if !c.Enabled() || d == nil {
		return
	}
	d.Subscribe(events.EventOrderCreated, c.handleOrderCreated)
	d.Subscribe(events.EventOrderStatusChanged, c.handleOrderStatusChanged)
}

func (c *Client) handleOrderCreated(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.OrderCreatedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	c.syncAsync(Deal{
		DealName:    fmt.Sprintf("%s x %s: %s", payload.BrandName, payload.CreatorName, payload.PackageTitle),
		Stage:       stageFor(payload.Status),
		Amount:      payload.TotalAmount,
		Currency:    payload.Currency,
		OrderID:     event.OrderID,
		TicketID:    payload.TicketID,
		BrandName:   payload.BrandName,
		CreatorName: payload.CreatorName,
	})
	return nil
}

func (c *Client) handleOrderStatusChanged(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.OrderStatusChangedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	c.syncAsync(Deal{
		DealName: "Order " + event.OrderID,
		Stage:    stageFor(string(payload.NewStatus)),
		OrderID:  event.OrderID,
		TicketID: event.TicketID,
	})
	return nil
}

// syncAsync runs the upsert off the request path.
func (c *Client) syncAsync(deal Deal) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		if err := c.UpsertDeal(ctx, deal); err != nil {
			c.logger.Warn("crm deal sync failed", zap.String("order_id", deal.OrderID), zap.Error(err))
			return
		}
		c.logger.Debug("crm deal synced", zap.String("order_id", deal.OrderID), zap.String("stage", deal.Stage))
	}()
}

func stageFor[S ~string](status S) string {
	switch string(status) {
	case "pending":
		return "Qualification"
	case "accepted", "in_progress":
		return "Negotiation/Review"
	case "review", "revision_requested", "price_revision_pending":
		return "Proposal/Price Quote"
	case "completed":
		return "Closed Won"
	case "rejected", "cancelled":
		return "Closed Lost"
	}
	return "Qualification"
}
