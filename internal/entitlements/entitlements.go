package entitlements

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUnavailable = errors.New("entitlements: service unavailable")
	ErrNotPremium  = errors.New("entitlements: premium required")
)

// Entitlement is a user's purchased access, as reported by the billing
// service. The game server never decides payment state itself.
type Entitlement struct {
	Premium   bool       `json:"premium"`
	PartyPass bool       `json:"partyPass"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

func (e Entitlement) Active() bool {
	if !e.Premium && !e.PartyPass {
		return false
	}
	if e.ExpiresAt != nil && e.ExpiresAt.Before(time.Now()) {
		return false
	}
	return true
}

// Checker answers whether a user currently holds an active entitlement.
type Checker interface {
	HasActiveEntitlement(ctx context.Context, userID uuid.UUID) (Entitlement, error)
}

// Generator produces question texts for a topic. Backed by an external
// service; the server only stores and relays the output.
type Generator interface {
	Generate(ctx context.Context, topic string, vibe string, n int) ([]string, error)
}

// HTTPChecker queries a billing endpoint over HTTP.
type HTTPChecker struct {
	baseURL string
	client  *http.Client
}

func NewHTTPChecker(baseURL string) *HTTPChecker {
	return &HTTPChecker{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *HTTPChecker) HasActiveEntitlement(ctx context.Context, userID uuid.UUID) (Entitlement, error) {
	url := fmt.Sprintf("%s/entitlements/%s", c.baseURL, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Entitlement{}, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Entitlement{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return Entitlement{}, nil
	default:
		return Entitlement{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var ent Entitlement
	if err := json.NewDecoder(resp.Body).Decode(&ent); err != nil {
		return Entitlement{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return ent, nil
}

// HTTPGenerator calls a question-generation endpoint over HTTP.
type HTTPGenerator struct {
	baseURL string
	client  *http.Client
}

func NewHTTPGenerator(baseURL string) *HTTPGenerator {
	return &HTTPGenerator{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type generateRequest struct {
	Topic string `json:"topic"`
	Vibe  string `json:"vibe"`
	Count int    `json:"count"`
}

type generateResponse struct {
	Questions []string `json:"questions"`
}

func (g *HTTPGenerator) Generate(ctx context.Context, topic string, vibe string, n int) ([]string, error) {
	body, err := json.Marshal(generateRequest{Topic: topic, Vibe: vibe, Count: n})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return out.Questions, nil
}
