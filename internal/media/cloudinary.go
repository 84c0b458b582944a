package media

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"blogwriter/api/internal/metrics"
	"github.com/tidwall/gjson"
)

const cloudinaryBaseURL = "https://api.cloudinary.com"

type CloudinaryConfig struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

type Cloudinary struct {
	cfg     CloudinaryConfig
	baseURL string
	client  *http.Client
	now     func() time.Time
}

func NewCloudinary(cfg CloudinaryConfig, client *http.Client) *Cloudinary {
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	return &Cloudinary{cfg: cfg, baseURL: cloudinaryBaseURL, client: client, now: time.Now}
}

func (c *Cloudinary) Name() string {
	return ProviderCloudinary
}

// Sign joins params as sorted k=v pairs with "&", appends the secret and
// returns the hex SHA-1 digest.
func Sign(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for key, value := range params {
		if value != "" {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	pairs := make([]string, len(keys))
	for i, key := range keys {
		pairs[i] = key + "=" + params[key]
	}
	sum := sha1.Sum([]byte(strings.Join(pairs, "&") + secret))
	return hex.EncodeToString(sum[:])
}

func (c *Cloudinary) endpoint(resource, action string) string {
	return c.baseURL + "/v1_1/" + url.PathEscape(c.cfg.CloudName) + "/" + resource + "/" + action
}

func resourceType(contentType string) string {
	if strings.HasPrefix(contentType, "video/") {
		return "video"
	}
	return "image"
}

func (c *Cloudinary) Upload(ctx context.Context, input UploadInput) (Asset, error) {
	folder := strings.Trim(c.cfg.Folder+"/"+input.OrganizationID, "/")
	params := map[string]string{
		"folder":    folder,
		"timestamp": strconv.FormatInt(c.now().Unix(), 10),
	}

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	for key, value := range params {
		_ = form.WriteField(key, value)
	}
	_ = form.WriteField("api_key", c.cfg.APIKey)
	_ = form.WriteField("signature", Sign(params, c.cfg.APISecret))
	part, err := form.CreateFormFile("file", input.FileName)
	if err != nil {
		return Asset{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, input.Body); err != nil {
		return Asset{}, fmt.Errorf("buffer upload: %w", err)
	}
	if err := form.Close(); err != nil {
		return Asset{}, fmt.Errorf("close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(resourceType(input.ContentType), "upload"), &buf)
	if err != nil {
		return Asset{}, fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	body, err := c.do(req)
	if err != nil {
		return Asset{}, err
	}
	return Asset{
		PublicID:    gjson.GetBytes(body, "public_id").String(),
		URL:         gjson.GetBytes(body, "secure_url").String(),
		ContentType: input.ContentType,
		Bytes:       gjson.GetBytes(body, "bytes").Int(),
		Width:       int(gjson.GetBytes(body, "width").Int()),
		Height:      int(gjson.GetBytes(body, "height").Int()),
		Folder:      folder,
		CreatedAt:   gjson.GetBytes(body, "created_at").Time(),
	}, nil
}

func (c *Cloudinary) Delete(ctx context.Context, publicID, contentType string) error {
	params := map[string]string{
		"public_id": publicID,
		"timestamp": strconv.FormatInt(c.now().Unix(), 10),
	}
	form := url.Values{}
	for key, value := range params {
		form.Set(key, value)
	}
	form.Set("api_key", c.cfg.APIKey)
	form.Set("signature", Sign(params, c.cfg.APISecret))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(resourceType(contentType), "destroy"), strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create destroy request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := c.do(req)
	if err != nil {
		return err
	}
	if result := gjson.GetBytes(body, "result").String(); result != "ok" && result != "not found" {
		return fmt.Errorf("cloudinary destroy: %s", result)
	}
	return nil
}

func (c *Cloudinary) List(ctx context.Context, prefix string, max int) ([]Asset, error) {
	if max <= 0 || max > 500 {
		max = 100
	}
	query := url.Values{}
	query.Set("type", "upload")
	query.Set("prefix", strings.Trim(c.cfg.Folder+"/"+prefix, "/"))
	query.Set("max_results", strconv.Itoa(max))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("resources", "image")+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create list request: %w", err)
	}
	req.SetBasicAuth(c.cfg.APIKey, c.cfg.APISecret)

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	assets := []Asset{}
	gjson.GetBytes(body, "resources").ForEach(func(_, item gjson.Result) bool {
		assets = append(assets, Asset{
			PublicID:    item.Get("public_id").String(),
			URL:         item.Get("secure_url").String(),
			ContentType: item.Get("resource_type").String() + "/" + item.Get("format").String(),
			Bytes:       item.Get("bytes").Int(),
			Width:       int(item.Get("width").Int()),
			Height:      int(item.Get("height").Int()),
			Folder:      item.Get("folder").String(),
			CreatedAt:   item.Get("created_at").Time(),
		})
		return true
	})
	return assets, nil
}

func (c *Cloudinary) do(req *http.Request) (body []byte, err error) {
	defer func() { metrics.Upstream("cloudinary", err) }()

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cloudinary request: %w", err)
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read cloudinary response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message := gjson.GetBytes(body, "error.message").String()
		if message == "" {
			message = strings.TrimSpace(string(body))
		}
		return nil, &ProviderError{Provider: ProviderCloudinary, Status: resp.StatusCode, Message: message}
	}
	return body, nil
}

// ProviderError is a non-2xx answer from a storage backend.
type ProviderError struct {
	Provider string
	Status   int
	Message  string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.Status, e.Message)
}
