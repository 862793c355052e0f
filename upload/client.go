package upload

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/VascoOnEarth/PhotoShare/core"
	"github.com/sirupsen/logrus"
)

// APIError is a non-2xx response from the server or the object store.
type APIError struct {
	Method  string
	URL     string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.Status, e.Message)
}

type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 2 * time.Minute},
	}
}

// Upload prepares the image at path and publishes it. It returns the new
// image id. A failed step is not retried and earlier steps are not undone.
func (c *Client) Upload(ctx context.Context, path, description string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	head, _ := br.Peek(512)
	data, err := Prepare(br, http.DetectContentType(head))
	if err != nil {
		return "", err
	}

	slot, err := c.RequestUploadSlot(ctx)
	if err != nil {
		return "", err
	}

	log := logrus.WithFields(logrus.Fields{
		"file":       path,
		"storage_id": slot.StorageID,
		"size":       len(data),
	})
	log.Debug("Sending image bytes")

	if err := c.Put(ctx, slot.UploadURL, data); err != nil {
		return "", err
	}

	var desc *string
	if description != "" {
		desc = &description
	}
	return c.Register(ctx, slot.StorageID, desc)
}

func (c *Client) RequestUploadSlot(ctx context.Context) (*core.UploadSlot, error) {
	var slot core.UploadSlot
	if err := c.do(ctx, http.MethodPost, "/api/images/upload-url", nil, &slot); err != nil {
		return nil, err
	}
	return &slot, nil
}

// Put sends JPEG bytes to a slot's upload URL. Presigned bucket URLs carry
// their own authorization so no bearer token is sent.
func (c *Client) Put(ctx context.Context, uploadURL string, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkResponse(resp)
}

type registerRequest struct {
	StorageID   string  `json:"storageId"`
	Description *string `json:"description,omitempty"`
}

func (c *Client) Register(ctx context.Context, storageID string, description *string) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	body := registerRequest{StorageID: storageID, Description: description}
	if err := c.do(ctx, http.MethodPost, "/api/images", body, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	msg := resp.Status
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		msg = body.Error
	} else if s := strings.TrimSpace(string(raw)); s != "" {
		msg = s
	}

	// Presigned query strings are credentials.
	u := *resp.Request.URL
	u.RawQuery = ""
	return &APIError{
		Method:  resp.Request.Method,
		URL:     u.Redacted(),
		Status:  resp.StatusCode,
		Message: msg,
	}
}
