package publish

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"unicode/utf8"
)

const DefaultShopifyAPIVersion = "2024-01"

type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}

type WebflowConfig struct {
	APIToken     string `json:"api_token"`
	CollectionID string `json:"collection_id"`
	SiteURL      string `json:"site_url,omitempty"`
}

type WordPressConfig struct {
	SiteURL     string `json:"site_url"`
	Username    string `json:"username"`
	AppPassword string `json:"app_password"`
}

type ShopifyConfig struct {
	ShopDomain  string `json:"shop_domain"`
	AccessToken string `json:"access_token"`
	BlogID      string `json:"blog_id"`
	APIVersion  string `json:"api_version,omitempty"`
	BlogHandle  string `json:"blog_handle,omitempty"`
}

func required(provider string, fields map[string]string) error {
	var missing []string
	for name, value := range fields {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return &ConfigError{Message: fmt.Sprintf("%s config requires %s", provider, strings.Join(missing, ", "))}
}

// ValidateConfig checks raw against the provider's required keys and returns
// the normalized JSON.
func ValidateConfig(provider string, raw json.RawMessage) (json.RawMessage, error) {
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}
	var cfg any
	switch provider {
	case PlatformWebflow:
		var c WebflowConfig
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, &ConfigError{Message: "config must be a JSON object"}
		}
		if err := required(provider, map[string]string{"api_token": c.APIToken, "collection_id": c.CollectionID}); err != nil {
			return nil, err
		}
		cfg = c
	case PlatformWordPress:
		var c WordPressConfig
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, &ConfigError{Message: "config must be a JSON object"}
		}
		if err := required(provider, map[string]string{"site_url": c.SiteURL, "username": c.Username, "app_password": c.AppPassword}); err != nil {
			return nil, err
		}
		cfg = c
	case PlatformShopify:
		var c ShopifyConfig
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, &ConfigError{Message: "config must be a JSON object"}
		}
		if err := required(provider, map[string]string{"shop_domain": c.ShopDomain, "access_token": c.AccessToken, "blog_id": c.BlogID}); err != nil {
			return nil, err
		}
		if c.APIVersion == "" {
			c.APIVersion = DefaultShopifyAPIVersion
		}
		cfg = c
	default:
		return nil, &ConfigError{Message: "provider must be one of webflow, wordpress, shopify"}
	}
	encoded, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode integration config: %w", err)
	}
	return encoded, nil
}

// MergeConfig overlays update onto current so that clients can resend a
// redacted config without clobbering stored secrets.
func MergeConfig(current, update json.RawMessage) (json.RawMessage, error) {
	base := map[string]any{}
	if len(current) > 0 {
		if err := json.Unmarshal(current, &base); err != nil {
			return nil, fmt.Errorf("decode stored config: %w", err)
		}
	}
	var overlay map[string]any
	if err := json.Unmarshal(update, &overlay); err != nil {
		return nil, &ConfigError{Message: "config must be a JSON object"}
	}
	for key, value := range overlay {
		if s, ok := value.(string); ok && isSecretKey(key) && strings.HasPrefix(s, redactMask) {
			continue
		}
		base[key] = value
	}
	return json.Marshal(base)
}

const redactMask = "••••"

func isSecretKey(key string) bool {
	key = strings.ToLower(key)
	return strings.Contains(key, "token") || strings.Contains(key, "password") || strings.Contains(key, "secret")
}

// Redact masks every secret-looking key. Values longer than eight runes keep
// their last four characters; shorter ones are masked entirely.
func Redact(raw json.RawMessage) json.RawMessage {
	var cfg map[string]any
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return json.RawMessage(`{}`)
	}
	for key, value := range cfg {
		if !isSecretKey(key) {
			continue
		}
		s, _ := value.(string)
		tail := ""
		if utf8.RuneCountInString(s) > 8 {
			runes := []rune(s)
			tail = string(runes[len(runes)-4:])
		}
		cfg[key] = redactMask + tail
	}
	out, err := json.Marshal(cfg)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return out
}

// FromIntegration builds the publisher for a stored integration.
func FromIntegration(provider string, raw json.RawMessage, client *http.Client) (Publisher, error) {
	if client == nil {
		client = defaultHTTPClient()
	}
	if _, err := ValidateConfig(provider, raw); err != nil {
		return nil, err
	}
	switch provider {
	case PlatformWebflow:
		var cfg WebflowConfig
		_ = json.Unmarshal(raw, &cfg)
		return NewWebflow(cfg, client), nil
	case PlatformWordPress:
		var cfg WordPressConfig
		_ = json.Unmarshal(raw, &cfg)
		return NewWordPress(cfg, client), nil
	default:
		var cfg ShopifyConfig
		_ = json.Unmarshal(raw, &cfg)
		return NewShopify(cfg, client), nil
	}
}
