package energytracker

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	// DefaultBaseURL is the Energy Tracker public API endpoint.
	DefaultBaseURL = "https://public-api.energy-tracker.best-ios-apps.de"

	// requestTimeout bounds every individual call, not a whole poll
	// cycle.
	requestTimeout = 10 * time.Second

	// timestampLayout serializes timestamps with millisecond
	// precision, which the submit endpoint requires.
	timestampLayout = "2006-01-02T15:04:05.000Z07:00"
)

// Notice severities and tags for standing diagnostic notices raised on
// auth failures.
const (
	NoticeSeverityError = "error"

	NoticeTagInvalidToken            = "auth_error_invalid_token"
	NoticeTagInsufficientPermissions = "auth_error_insufficient_permissions"
)

// NoticeSink receives standing diagnostic notices. Registering the
// same key twice must deduplicate, not stack.
type NoticeSink interface {
	Register(key, severity, tag string)
}

// Config holds client settings.
type Config struct {
	// BaseURL defaults to DefaultBaseURL.
	BaseURL string
	// Token is the bearer token for the API.
	Token string
}

// Client talks to the Energy Tracker public API. Every failed call
// returns an *APIError with a fully classified condition; the client
// never retries on its own.
type Client struct {
	baseURL string
	credID  string
	http    *http.Client
	notices NoticeSink
}

// NewClient builds a client. notices may be nil when no diagnostic
// surface exists (e.g. one-shot CLI calls).
func NewClient(cfg Config, notices NoticeSink) (*Client, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, fmt.Errorf("energy tracker token is empty")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	httpClient := oauth2.NewClient(context.Background(), source)
	httpClient.Timeout = requestTimeout

	digest := sha256.Sum256([]byte(token))

	return &Client{
		baseURL: baseURL,
		credID:  hex.EncodeToString(digest[:])[:8],
		http:    httpClient,
		notices: notices,
	}, nil
}

// SubmitReading sends one meter reading. allowRounding is transmitted
// only when true; the server treats an absent parameter differently
// from an explicit false.
func (c *Client) SubmitReading(ctx context.Context, deviceID string, value float64, timestamp time.Time, allowRounding bool) error {
	payload := struct {
		Value     float64 `json:"value"`
		Timestamp string  `json:"timestamp"`
	}{
		Value:     value,
		Timestamp: timestamp.Format(timestampLayout),
	}

	query := url.Values{}
	if allowRounding {
		query.Set("allowRounding", "true")
	}

	path := fmt.Sprintf("/v1/devices/standard/%s/meter-readings", url.PathEscape(deviceID))
	if err := c.do(ctx, http.MethodPost, path, query, payload, nil); err != nil {
		return err
	}

	log.Printf("[%s] reading sent: %g", deviceID, value)
	return nil
}

// ListDevices returns all standard devices matching the filter, in
// server order.
func (c *Client) ListDevices(ctx context.Context, filter DeviceFilter) ([]Device, error) {
	query := url.Values{}
	if filter.Name != "" {
		query.Set("name", filter.Name)
	}
	if filter.FolderPath != "" {
		query.Set("folderPath", filter.FolderPath)
	}
	if !filter.UpdatedAfter.IsZero() {
		query.Set("updatedAfter", filter.UpdatedAfter.Format(timestampLayout))
	}
	if !filter.UpdatedBefore.IsZero() {
		query.Set("updatedBefore", filter.UpdatedBefore.Format(timestampLayout))
	}

	var devices []Device
	if err := c.do(ctx, http.MethodGet, "/v1/devices/standard", query, nil, &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

// ListReadings returns readings for one device, newest first unless
// the filter says otherwise.
func (c *Client) ListReadings(ctx context.Context, deviceID string, filter ReadingFilter) ([]MeterReading, error) {
	sortOrder := filter.Sort
	if sortOrder == "" {
		sortOrder = SortDescending
	}

	query := url.Values{}
	query.Set("sort", string(sortOrder))
	if filter.MeterID != "" {
		query.Set("meterId", filter.MeterID)
	}
	if !filter.From.IsZero() {
		query.Set("from", filter.From.Format(timestampLayout))
	}
	if !filter.To.IsZero() {
		query.Set("to", filter.To.Format(timestampLayout))
	}

	path := fmt.Sprintf("/v3/devices/standard/%s/meter-readings", url.PathEscape(deviceID))

	var readings []MeterReading
	if err := c.do(ctx, http.MethodGet, path, query, nil, &readings); err != nil {
		return nil, err
	}
	return readings, nil
}

// LatestReading returns the device's most recent reading, or nil when
// it has none.
func (c *Client) LatestReading(ctx context.Context, deviceID string) (*MeterReading, error) {
	readings, err := c.ListReadings(ctx, deviceID, ReadingFilter{Sort: SortDescending})
	if err != nil {
		return nil, err
	}
	if len(readings) == 0 {
		return nil, nil
	}
	return &readings[0], nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyTransport(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return classifyTransport(err)
	}

	if resp.StatusCode >= 400 {
		return c.classifyStatus(resp.StatusCode, resp.Header, data)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// classifyStatus maps a non-2xx response onto a condition. First match
// wins; 401 and 403 additionally raise a standing diagnostic notice
// keyed by a prefix of the credential hash, so repeats deduplicate per
// credential.
func (c *Client) classifyStatus(status int, header http.Header, body []byte) *APIError {
	message := parseErrorMessage(body)

	switch {
	case status == http.StatusBadRequest:
		if message == "" {
			message = "Invalid input"
		}
		log.Printf("energy tracker api: bad request: %s", message)
		return newAPIError(ConditionBadRequest, map[string]string{"error": message})

	case status == http.StatusUnauthorized:
		c.registerNotice("auth_error_401_"+c.credID, NoticeTagInvalidToken)
		log.Printf("energy tracker api: unauthorized: check the access token")
		return newAPIError(ConditionAuthFailed, nil)

	case status == http.StatusForbidden:
		c.registerNotice("auth_error_403_"+c.credID, NoticeTagInsufficientPermissions)
		log.Printf("energy tracker api: forbidden: insufficient permissions")
		return newAPIError(ConditionAuthFailed, nil)

	case status == http.StatusNotFound:
		return newAPIError(ConditionDeviceNotFound, nil)

	case status == http.StatusTooManyRequests:
		// A Retry-After that does not parse as an integer is treated
		// as absent, not as an error.
		if raw := header.Get("Retry-After"); raw != "" {
			if seconds, err := strconv.Atoi(raw); err == nil && seconds > 0 {
				log.Printf("energy tracker api: rate limited, retry after %d seconds", seconds)
				return newAPIError(ConditionRateLimit, map[string]string{"retry_after": strconv.Itoa(seconds)})
			}
		}
		log.Printf("energy tracker api: rate limited")
		return newAPIError(ConditionRateLimitNoTime, nil)

	case status >= 500 && status <= 599:
		if message == "" {
			message = "Internal server error"
		}
		log.Printf("energy tracker api: server error %d: %s", status, message)
		return newAPIError(ConditionServerError, map[string]string{"error": message})

	default:
		if message == "" {
			message = "Unknown error"
		}
		log.Printf("energy tracker api: unexpected http %d: %s", status, message)
		return newAPIError(ConditionUnknownError, map[string]string{"error": message})
	}
}

func (c *Client) registerNotice(key, tag string) {
	if c.notices == nil {
		return
	}
	c.notices.Register(key, NoticeSeverityError, tag)
}
