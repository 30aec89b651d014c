package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BTreeMap/Shanbot/internal/util"
)

// DefaultManyChatBaseURL is the public ManyChat API root.
const DefaultManyChatBaseURL = "https://api.manychat.com"

// ResponseFields are the subscriber custom fields a reply is split across, in order.
var ResponseFields = []string{"o1 Response", "o1 Response 2", "o1 Response 3"}

// ManyChatService sets reply custom fields on a subscriber; a ManyChat flow then sends them.
type ManyChatService struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// ManyChatOption configures a ManyChatService.
type ManyChatOption func(*ManyChatService)

// WithManyChatBaseURL overrides the API root.
func WithManyChatBaseURL(u string) ManyChatOption {
	return func(s *ManyChatService) {
		if u != "" {
			s.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) ManyChatOption {
	return func(s *ManyChatService) { s.http = c }
}

// NewManyChatService returns ErrNotConfigured when apiKey is empty.
func NewManyChatService(apiKey string, opts ...ManyChatOption) (*ManyChatService, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("%w: ManyChat API key missing", ErrNotConfigured)
	}
	s := &ManyChatService{
		apiKey:  apiKey,
		baseURL: DefaultManyChatBaseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

type customField struct {
	FieldName  string `json:"field_name"`
	FieldValue string `json:"field_value"`
}

type setCustomFieldsRequest struct {
	SubscriberID string        `json:"subscriber_id"`
	Fields       []customField `json:"fields"`
}

type manyChatResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// SendReply splits the text into at most len(ResponseFields) chunks and writes them in one call.
// Unused fields are cleared so a shorter reply never carries an older tail.
func (s *ManyChatService) SendReply(ctx context.Context, r Reply) error {
	if r.SubscriberID == "" {
		return fmt.Errorf("subscriber id is required")
	}
	chunks := util.SplitIntoMessages(r.Text, len(ResponseFields))
	if len(chunks) == 0 {
		return fmt.Errorf("reply for %s is empty", r.SubscriberID)
	}

	req := setCustomFieldsRequest{SubscriberID: r.SubscriberID}
	for i, name := range ResponseFields {
		value := ""
		if i < len(chunks) {
			value = chunks[i]
		}
		req.Fields = append(req.Fields, customField{FieldName: name, FieldValue: value})
	}
	if err := s.setCustomFields(ctx, req); err != nil {
		slog.Error("ManyChatService.SendReply: failed", "subscriberID", r.SubscriberID, "error", err)
		return err
	}
	slog.Debug("ManyChatService.SendReply: reply fields set", "subscriberID", r.SubscriberID, "chunks", len(chunks))
	return nil
}

func (s *ManyChatService) setCustomFields(ctx context.Context, body setCustomFieldsRequest) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode setCustomFields: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/fb/subscriber/setCustomFields", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build setCustomFields request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("setCustomFields: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("setCustomFields: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var result manyChatResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("setCustomFields: decode response: %w", err)
	}
	if result.Status != "success" {
		return fmt.Errorf("setCustomFields: status %q: %s", result.Status, result.Message)
	}
	return nil
}
