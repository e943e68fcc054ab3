package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"creatorstudio/internal/blob"
)

const (
	// DefaultSettingsKey is the blob key the settings are kept under.
	DefaultSettingsKey = "planner/settings.json"
	// DefaultEndpoint is an OpenAI-compatible chat completions URL.
	DefaultEndpoint = "https://api.openai.com/v1/chat/completions"
)

// Settings configure the remote completion call. They are stored apart from
// the record store as a flat key-value document.
type Settings struct {
	APIKey   string `json:"apiKey"`
	Model    string `json:"model"`
	Endpoint string `json:"endpoint,omitempty"`
}

// Ready reports whether a remote call can be attempted.
func (s Settings) Ready() bool {
	return strings.TrimSpace(s.APIKey) != "" && strings.TrimSpace(s.Model) != ""
}

func (s Settings) endpoint() string {
	if strings.TrimSpace(s.Endpoint) == "" {
		return DefaultEndpoint
	}
	return s.Endpoint
}

// Redacted returns a copy safe to print.
func (s Settings) Redacted() Settings {
	if s.APIKey != "" {
		s.APIKey = "****"
	}
	return s
}

// SettingsStore persists Settings in a blob store.
type SettingsStore struct {
	blobs blob.Store
	key   string
}

// NewSettingsStore keeps settings under key in bs, DefaultSettingsKey when empty.
func NewSettingsStore(bs blob.Store, key string) *SettingsStore {
	if key == "" {
		key = DefaultSettingsKey
	}
	return &SettingsStore{blobs: bs, key: key}
}

// Load returns the saved settings, or zero Settings when none were saved.
func (s *SettingsStore) Load(ctx context.Context) (Settings, error) {
	data, _, err := blob.ReadAll(ctx, s.blobs, s.key)
	if errors.Is(err, blob.ErrNotFound) {
		return Settings{}, nil
	}
	if err != nil {
		return Settings{}, err
	}
	var kv map[string]string
	if err := json.Unmarshal(data, &kv); err != nil {
		return Settings{}, fmt.Errorf("decode planner settings: %w", err)
	}
	return Settings{APIKey: kv["apiKey"], Model: kv["model"], Endpoint: kv["endpoint"]}, nil
}

// Save replaces the stored settings.
func (s *SettingsStore) Save(ctx context.Context, st Settings) error {
	kv := map[string]string{"apiKey": st.APIKey, "model": st.Model}
	if st.Endpoint != "" {
		kv["endpoint"] = st.Endpoint
	}
	data, err := json.Marshal(kv)
	if err != nil {
		return err
	}
	_, err = blob.Replace(ctx, s.blobs, s.key, data, blob.PutOptions{ContentType: "application/json"})
	return err
}
