package location

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPReporter POSTs persisted samples to the backend's driver-location
// endpoint. Fire-and-forget: a non-2xx response is reported as an error
// for the caller to log, nothing more.
type HTTPReporter struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewHTTPReporter(baseURL, token string) *HTTPReporter {
	return &HTTPReporter{BaseURL: baseURL, Token: token, Client: &http.Client{Timeout: 3 * time.Second}}
}

func (h *HTTPReporter) Publish(ctx context.Context, u Update) error {
	body := map[string]any{
		"driverId":    u.DriverID,
		"driverName":  u.DriverName,
		"latitude":    u.Sample.Coord.Lat,
		"longitude":   u.Sample.Coord.Lng,
		"vehicleType": u.VehicleType,
		"status":      u.Status,
		"rideId":      u.RideID,
		"timestamp":   u.Sample.Time.UTC().Format(time.RFC3339),
	}
	b, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.BaseURL+"/driver-location/update", bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if h.Token != "" {
		req.Header.Set("Authorization", "Bearer "+h.Token)
	}
	resp, err := h.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("location update rejected: %s", resp.Status)
	}
	return nil
}
