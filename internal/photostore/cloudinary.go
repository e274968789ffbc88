package photostore

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is the Cloudinary upload API root.
const DefaultBaseURL = "https://api.cloudinary.com/v1_1"

// Cloudinary uploads capture photos through the signed upload REST endpoint.
type Cloudinary struct {
	BaseURL   string
	CloudName string
	APIKey    string
	APISecret string
	HTTP      *http.Client
	Now       func() time.Time
}

// NewCloudinary creates a Cloudinary uploader.
func NewCloudinary(cloudName, apiKey, apiSecret string) *Cloudinary {
	return &Cloudinary{
		BaseURL:   DefaultBaseURL,
		CloudName: cloudName,
		APIKey:    apiKey,
		APISecret: apiSecret,
		HTTP:      &http.Client{Timeout: 30 * time.Second},
		Now:       time.Now,
	}
}

// Upload is the part of the Cloudinary response kept by the service.
type Upload struct {
	PublicID  string `json:"public_id"`
	SecureURL string `json:"secure_url"`
	Bytes     int    `json:"bytes"`
}

// UploadDataURL uploads a "data:image/...;base64," photo under folder with
// the given public id.
func (c *Cloudinary) UploadDataURL(ctx context.Context, folder, publicID, dataURL string) (*Upload, error) {
	params := map[string]string{
		"timestamp": strconv.FormatInt(c.Now().Unix(), 10),
		"api_key":   c.APIKey,
	}
	if folder != "" {
		params["folder"] = folder
	}
	if publicID != "" {
		params["public_id"] = publicID
	}
	params["signature"] = c.sign(params)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		_ = w.WriteField(k, params[k])
	}
	_ = w.WriteField("file", dataURL)
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("cloudinary: build form: %w", err)
	}

	url := fmt.Sprintf("%s/%s/image/upload", strings.TrimRight(c.BaseURL, "/"), c.CloudName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("cloudinary: upload failed (%d): %s", resp.StatusCode, string(body))
	}

	var out Upload
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("cloudinary: decode response: %w", err)
	}
	if out.SecureURL == "" {
		return nil, fmt.Errorf("cloudinary: response has no secure_url")
	}
	return &out, nil
}

// sign computes the request signature. api_key and file are not signed.
func (c *Cloudinary) sign(params map[string]string) string {
	pairs := make([]string, 0, len(params))
	for k, v := range params {
		if k == "api_key" || k == "file" || v == "" {
			continue
		}
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return fmt.Sprintf("%x", sha1.Sum([]byte(strings.Join(pairs, "&")+c.APISecret)))
}
