package conga

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
)

// REST endpoints.
const (
	deviceListPath = "/api/user_machine/list"
	fileListPath   = "/api/user/file_list"
)

// Plan listing request constants.
const (
	// planFileType selects cleaning plans in the file listing.
	planFileType = 2

	// planSortNewestFirst sorts the listing newest first.
	planSortNewestFirst = -1

	// planPageSize is the single page fetched per refresh.
	planPageSize = 10
)

const (
	// defaultRequestTimeout bounds a single REST call.
	defaultRequestTimeout = 15 * time.Second

	// maxResponseSize caps how much of a response body is read (1MB).
	maxResponseSize = 1 << 20
)

// apiCredentialSource supplies REST credentials.
// Satisfied by *CredentialBroker.
type apiCredentialSource interface {
	APICredential(ctx context.Context) (APICredential, error)
	Invalidate()
}

// Device is a vacuum registered to the account.
type Device struct {
	// SerialNumber is the cloud-assigned primary key.
	SerialNumber string `json:"sn"`

	// DisplayName is the user-chosen name.
	DisplayName string `json:"note_name"`
}

// Name returns the display name, falling back to the serial number.
func (d Device) Name() string {
	if d.DisplayName != "" {
		return d.DisplayName
	}
	return d.SerialNumber
}

// envelope is the common REST response wrapper. Code is zero on success;
// 401 and 403 report an expired or rejected token.
type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// page is a paginated listing.
type page struct {
	PageItems   []json.RawMessage `json:"page_items"`
	LastPageKey any               `json:"last_page_key,omitempty"`
}

// fileListRequest is the body of a plan listing call.
type fileListRequest struct {
	SerialNumber string `json:"sn"`
	FileType     int    `json:"file_type"`
	Sort         int    `json:"sort"`
	PageSize     int    `json:"page_size"`
	LastPageKey  any    `json:"last_page_key"`
}

// APIClient calls the vacuum cloud REST API.
//
// Every call is authorised with the broker's APICredential. A call rejected
// as unauthorised invalidates the broker and is retried exactly once.
//
// Thread Safety: All methods are safe for concurrent use.
type APIClient struct {
	baseURL     string
	httpClient  *http.Client
	credentials apiCredentialSource
	logger      Logger
}

// NewAPIClient creates a REST client rooted at baseURL.
// If httpClient is nil a client with a 15 second timeout is used.
func NewAPIClient(baseURL string, credentials apiCredentialSource, httpClient *http.Client) *APIClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	return &APIClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  httpClient,
		credentials: credentials,
		logger:      noopLogger{},
	}
}

// SetLogger sets the logger for the client.
func (c *APIClient) SetLogger(logger Logger) {
	c.logger = logger
}

// ListDevices returns the vacuums registered to the account, in the order
// the service lists them.
func (c *APIClient) ListDevices(ctx context.Context) ([]Device, error) {
	data, err := c.post(ctx, deviceListPath, struct{}{})
	if err != nil {
		return nil, err
	}

	items, err := pageItems(data)
	if err != nil {
		return nil, err
	}

	devices := make([]Device, 0, len(items))
	for _, raw := range items {
		var d Device
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("%w: device record: %w", ErrInvalidResponse, err)
		}
		if d.SerialNumber == "" {
			continue
		}
		devices = append(devices, d)
	}
	return devices, nil
}

// ListPlanItems fetches one page of the plan listing for a device and
// returns its raw items.
func (c *APIClient) ListPlanItems(ctx context.Context, serial string) ([]json.RawMessage, error) {
	data, err := c.post(ctx, fileListPath, fileListRequest{
		SerialNumber: serial,
		FileType:     planFileType,
		Sort:         planSortNewestFirst,
		PageSize:     planPageSize,
		LastPageKey:  nil,
	})
	if err != nil {
		return nil, err
	}
	return pageItems(data)
}

// post performs an authorised POST, retrying once after invalidating
// credentials if the first attempt is rejected as unauthorised.
func (c *APIClient) post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding request: %w", ErrInvalidCommand, err)
	}

	for attempt := 0; ; attempt++ {
		cred, err := c.credentials.APICredential(ctx)
		if err != nil {
			return nil, err
		}

		data, err := c.do(ctx, cred, path, payload)
		if errors.Is(err, ErrAuthorization) && attempt == 0 {
			c.logger.Warn("api call unauthorised, renewing credentials", "path", path)
			c.credentials.Invalidate()
			continue
		}
		return data, err
	}
}

// do sends a single request and classifies the outcome.
func (c *APIClient) do(ctx context.Context, cred APICredential, path string, payload []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %w", ErrDeviceUnreachable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", cred.Token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDeviceUnreachable, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrDeviceUnreachable, path, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s: HTTP %d", ErrAuthorization, path, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("%w: %s: HTTP %d", ErrDeviceUnreachable, path, resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidResponse, path, err)
	}
	c.logger.Debug("api call complete", "path", path, "code", env.Code)

	switch env.Code {
	case 0:
		return env.Data, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s: code %d: %s", ErrAuthorization, path, env.Code, env.Msg)
	default:
		return nil, fmt.Errorf("%w: %s: code %d: %s", ErrDeviceUnreachable, path, env.Code, env.Msg)
	}
}

// pageItems extracts listing items from a response's data field.
// Accepts both {"page_items": [...]} and a bare array.
func pageItems(data json.RawMessage) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("%w: listing: %w", ErrInvalidResponse, err)
		}
		return items, nil
	}

	var p page
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return nil, fmt.Errorf("%w: listing: %w", ErrInvalidResponse, err)
	}
	return p.PageItems, nil
}
