// Package planner turns a project idea into a step-by-step plan. It asks an
// OpenAI-compatible chat completions endpoint when settings allow and always
// falls back to a deterministic local heuristic otherwise.
package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Source tells where a plan came from.
type Source string

const (
	SourceRemote   Source = "remote"
	SourceFallback Source = "fallback"
)

// Result is a plan and its origin. Reason explains a fallback.
type Result struct {
	Source Source `json:"source"`
	Text   string `json:"text"`
	Reason string `json:"reason,omitempty"`
}

const systemPrompt = "You are a concise product planner. Reply with a short plan: " +
	"numbered steps followed by what to do in the next 48 hours."

// Option configures a Planner.
type Option func(*Planner)

// WithHTTPClient sets the client used for remote calls.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Planner) {
		if c != nil {
			p.client = c
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Planner) {
		if l != nil {
			p.log = l
		}
	}
}

// BreakerConfig tunes the remote-call circuit breaker.
type BreakerConfig struct {
	MaxRequests         uint32        `yaml:"max_requests"`
	Interval            time.Duration `yaml:"interval"`
	Timeout             time.Duration `yaml:"timeout"`
	ConsecutiveFailures uint32        `yaml:"consecutive_failures"`
}

// DefaultBreakerConfig opens after three consecutive failures and probes
// again after thirty seconds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{MaxRequests: 1, Interval: time.Minute, Timeout: 30 * time.Second, ConsecutiveFailures: 3}
}

// WithBreaker overrides the circuit breaker configuration.
func WithBreaker(cfg BreakerConfig) Option {
	return func(p *Planner) { p.breakerCfg = cfg }
}

// Planner produces plans. It is safe for concurrent use.
type Planner struct {
	settings   *SettingsStore
	client     *http.Client
	log        *zap.Logger
	breakerCfg BreakerConfig
	breaker    *gobreaker.CircuitBreaker
}

// New builds a planner reading its settings from settings.
func New(settings *SettingsStore, opts ...Option) *Planner {
	p := &Planner{
		settings:   settings,
		client:     &http.Client{Timeout: 30 * time.Second},
		log:        zap.NewNop(),
		breakerCfg: DefaultBreakerConfig(),
	}
	for _, opt := range opts {
		opt(p)
	}
	threshold := p.breakerCfg.ConsecutiveFailures
	if threshold == 0 {
		threshold = 3
	}
	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "planner",
		MaxRequests: p.breakerCfg.MaxRequests,
		Interval:    p.breakerCfg.Interval,
		Timeout:     p.breakerCfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.log.Info("planner breaker state changed",
				zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	return p
}

// Settings returns the settings store.
func (p *Planner) Settings() *SettingsStore { return p.settings }

// Plan never fails: any missing setting or remote failure yields the local
// heuristic with a reason.
func (p *Planner) Plan(ctx context.Context, idea string) Result {
	st, err := p.settings.Load(ctx)
	if err != nil {
		return p.fallback(idea, fmt.Sprintf("settings unavailable: %v", err))
	}
	if !st.Ready() {
		return p.fallback(idea, "api key or model not configured")
	}
	out, err := p.breaker.Execute(func() (interface{}, error) {
		return p.complete(ctx, st, idea)
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return p.fallback(idea, "remote planner temporarily disabled")
	case err != nil:
		return p.fallback(idea, fmt.Sprintf("remote request failed: %v", err))
	}
	return Result{Source: SourceRemote, Text: out.(string)}
}

func (p *Planner) fallback(idea, reason string) Result {
	p.log.Debug("planner fallback", zap.String("reason", reason))
	return Result{Source: SourceFallback, Text: Fallback(idea), Reason: reason}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (p *Planner) complete(ctx context.Context, st Settings, idea string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: st.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: strings.TrimSpace(idea)},
		},
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, st.endpoint(), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+st.APIKey)
	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode completion: %w", err)
	}
	if len(decoded.Choices) == 0 || strings.TrimSpace(decoded.Choices[0].Message.Content) == "" {
		return "", errors.New("completion has no content")
	}
	return decoded.Choices[0].Message.Content, nil
}
