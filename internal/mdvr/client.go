package mdvr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"roadapp/api/internal/model"
)

// ErrNoData marks a well-formed vendor response that simply carries
// nothing for the requested device. Callers treat it as a legitimate
// absence, not a failure.
var ErrNoData = errors.New("no data from vendor")

// ErrVendorUnavailable marks a transport failure or a vendor-side
// infrastructure fault. Callers fall back to stale cached data.
var ErrVendorUnavailable = errors.New("vendor unavailable")

// The vendor reports its own backend faults inside otherwise
// well-formed error messages. Substring matching is the only signal
// available to tell an outage from genuine absence.
var infraErrorMarkers = []string{
	"database", "connection", "timeout", "timed out",
	"sql", "refused", "unavailable", "internal error",
}

// IsInfraError reports whether a vendor error message describes an
// infrastructure fault rather than missing data.
func IsInfraError(msg string) bool {
	m := strings.ToLower(msg)
	for _, marker := range infraErrorMarkers {
		if strings.Contains(m, marker) {
			return true
		}
	}
	return false
}

const (
	requestTimeout = 30 * time.Second
	maxAttempts    = 3
	// Vendor tokens live 24h; refresh an hour early.
	tokenLifetime = 23 * time.Hour
)

// Client is the authenticated vendor HTTP client. Tokens are acquired
// lazily and refreshed before expiry; requests retry with exponential
// backoff before escalating to ErrVendorUnavailable.
type Client struct {
	baseURL  string
	account  string
	password string
	http     *http.Client

	parser     *GPSParser
	classifier *AlarmClassifier
	ts         *TimestampNormalizer

	mu          sync.Mutex
	token       string
	tokenIssued time.Time
}

func NewClient(baseURL, account, password string, ts *TimestampNormalizer) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		account:    account,
		password:   password,
		http:       &http.Client{Timeout: requestTimeout},
		parser:     NewGPSParser(ts),
		classifier: NewAlarmClassifier(ts),
		ts:         ts,
	}
}

func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Since(c.tokenIssued) < tokenLifetime {
		return c.token, nil
	}

	body, _ := json.Marshal(map[string]string{
		"account":  c.account,
		"password": c.password,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/basic/login", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrVendorUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: login: %v", ErrVendorUnavailable, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: login: %v", ErrVendorUnavailable, err)
	}

	var parsed struct {
		Code    *int   `json:"code"`
		Message string `json:"message"`
		Data    struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil || parsed.Data.Token == "" {
		return "", fmt.Errorf("%w: login rejected: %s", ErrVendorUnavailable, parsed.Message)
	}
	c.token = parsed.Data.Token
	c.tokenIssued = time.Now()
	log.Printf("[VendorClient] Acquired new vendor token")
	return c.token, nil
}

// post sends an authenticated JSON request and returns the raw body.
// Transport failures retry with backoff; a vendor error message that
// looks like an infrastructure fault maps to ErrVendorUnavailable,
// anything else passes through for the parsers to classify.
func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", ErrNoData, err)
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			backoff := time.Duration(1<<(attempt-2)) * time.Second
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrVendorUnavailable, ctx.Err())
			}
		}

		token, err := c.ensureToken(ctx)
		if err != nil {
			lastErr = err
			continue
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrVendorUnavailable, err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Token", token)

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%w: %s: %v", ErrVendorUnavailable, path, err)
			log.Printf("[VendorClient] Attempt %d/%d failed for %s: %v", attempt, maxAttempts, path, err)
			continue
		}
		raw, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("%w: %s: %v", ErrVendorUnavailable, path, err)
			continue
		}
		if resp.StatusCode == http.StatusUnauthorized {
			c.mu.Lock()
			c.token = ""
			c.mu.Unlock()
			lastErr = fmt.Errorf("%w: token rejected", ErrVendorUnavailable)
			continue
		}
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("%w: %s: status %d", ErrVendorUnavailable, path, resp.StatusCode)
			continue
		}

		var env envelope
		if json.Unmarshal(raw, &env) == nil && !env.ok() && IsInfraError(env.Message) {
			return nil, fmt.Errorf("%w: %s", ErrVendorUnavailable, env.Message)
		}
		return raw, nil
	}
	return nil, lastErr
}

// LatestGps fetches and parses the latest fix for one device. The V2
// endpoint is always queried; it still answers in dialect A for some
// device generations, so the parser handles both.
func (c *Client) LatestGps(ctx context.Context, deviceID string, opts ParseOptions) (*model.GpsFix, error) {
	raw, err := c.post(ctx, "/api/v1/gps/getLatestGpsV2", map[string]any{"deviceIds": []string{deviceID}})
	if err != nil {
		return nil, err
	}
	return c.parser.ParseLatest(raw, deviceID, opts)
}

// Track fetches and parses a detailed track for one device.
func (c *Client) Track(ctx context.Context, deviceID string, startMs, endMs int64) (*model.TrackPlayback, error) {
	raw, err := c.post(ctx, "/api/v1/gps/queryDetailedTrack", map[string]any{
		"deviceId":  deviceID,
		"startTime": startMs / 1000,
		"endTime":   endMs / 1000,
	})
	if err != nil {
		return nil, err
	}
	return c.parser.ParseTrack(raw, deviceID)
}

// DeviceStates fetches the state list for a set of devices.
func (c *Client) DeviceStates(ctx context.Context, deviceIDs []string) ([]DeviceState, error) {
	raw, err := c.post(ctx, "/api/v1/device/getDeviceStatusList", map[string]any{"deviceIds": deviceIDs})
	if err != nil {
		return nil, err
	}
	return ParseDeviceStates(raw, c.ts)
}

// DeviceList fetches one page of the vendor's device inventory and
// returns the entries along with the total count across all pages.
func (c *Client) DeviceList(ctx context.Context, page, pageSize int) ([]RegistryEntry, int, error) {
	raw, err := c.post(ctx, "/api/v1/device/getList", map[string]any{
		"page":     page,
		"pageSize": pageSize,
	})
	if err != nil {
		return nil, 0, err
	}
	return ParseDeviceList(raw)
}

// TrackDates fetches the dates a device has recorded history for
// within a date range. Dates are vendor-local YYYY-MM-DD strings.
func (c *Client) TrackDates(ctx context.Context, deviceID, startDate, endDate string) ([]string, error) {
	raw, err := c.post(ctx, "/api/v1/gps/queryTrackDates", map[string]any{
		"deviceId":  deviceID,
		"startDate": startDate,
		"endDate":   endDate,
	})
	if err != nil {
		return nil, err
	}
	return ParseTrackDates(raw)
}

// VehicleAlarms fetches and classifies the alarm list for one device
// over a time range.
func (c *Client) VehicleAlarms(ctx context.Context, deviceID string, startMs, endMs int64) (*model.AlarmSummary, error) {
	raw, err := c.post(ctx, "/api/v1/alarm/getVehicleAlarm", map[string]any{
		"deviceId":  deviceID,
		"startTime": startMs / 1000,
		"endTime":   endMs / 1000,
	})
	if err != nil {
		return nil, err
	}
	return c.classifier.ParseAlarmList(raw, deviceID)
}

// SendCommand dispatches a text/configuration command to a device and
// reports whether the vendor accepted it.
func (c *Client) SendCommand(ctx context.Context, deviceID string, payload map[string]any) (bool, error) {
	body := map[string]any{"deviceId": deviceID}
	for k, v := range payload {
		body[k] = v
	}
	raw, err := c.post(ctx, "/api/v1/device/sendText", body)
	if err != nil {
		return false, err
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return false, fmt.Errorf("%w: malformed command response: %v", ErrNoData, err)
	}
	if !env.ok() {
		return false, nil
	}
	return true, nil
}
