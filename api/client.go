package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// DefaultBaseURL is the build-time backend address. --backend-url only
	// overrides it at deployment; a client keeps its base for its lifetime.
	DefaultBaseURL    = "http://localhost:8000"
	DefaultSerialPort = "COM3"
	DefaultBaudRate   = 115200
	DefaultTimeout    = 10 * time.Second
)

// Client talks to the ParkMaster backend. Every call is a single attempt;
// nothing is retried.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        logrus.FieldLogger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient = &http.Client{Timeout: d} }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Client) { c.log = log }
}

func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		log:        logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// CheckHealth returns the backend's health report.
func (c *Client) CheckHealth(ctx context.Context) (*Payload, error) {
	b, err := c.do(ctx, "health", http.MethodGet, "/health", nil)
	if err != nil {
		return nil, err
	}
	p, err := decodePayload(b)
	return p, errors.Wrap(err, "health: decode response")
}

// GetImages returns the stored image names in the order the backend lists them.
func (c *Client) GetImages(ctx context.Context) ([]string, error) {
	b, err := c.do(ctx, "images_list", http.MethodGet, "/images/list", nil)
	if err != nil {
		return nil, err
	}
	var names []string
	if err := json.Unmarshal(b, &names); err != nil {
		return nil, errors.Wrap(err, "images_list: decode response")
	}
	return names, nil
}

// ImageURL is the address the raw bytes of name are served from. The name is
// used as given.
func (c *Client) ImageURL(name string) string {
	return c.baseURL + "/images/" + name
}

// Images is GetImages with each name resolved to its URL.
func (c *Client) Images(ctx context.Context) ([]ImageInfo, error) {
	names, err := c.GetImages(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ImageInfo, 0, len(names))
	for _, n := range names {
		out = append(out, ImageInfo{Name: n, URL: c.ImageURL(n)})
	}
	return out, nil
}

func (c *Client) ConnectSerial(ctx context.Context, opts SerialOptions) (*Payload, error) {
	b, err := c.do(ctx, "serial_connect", http.MethodPost, "/serial/connect", opts.request())
	if err != nil {
		return nil, err
	}
	return c.confirmation("serial_connect", b), nil
}

func (c *Client) DisconnectSerial(ctx context.Context) (*Payload, error) {
	b, err := c.do(ctx, "serial_disconnect", http.MethodPost, "/serial/disconnect", nil)
	if err != nil {
		return nil, err
	}
	return c.confirmation("serial_disconnect", b), nil
}

// confirmation decodes the body of a 2xx serial reply. The status code is
// what confirms the command, so an unreadable body yields an empty payload.
func (c *Client) confirmation(op string, b []byte) *Payload {
	p, err := decodePayload(b)
	if err != nil {
		c.log.WithError(err).WithField("op", op).Warn("unreadable confirmation body")
		return &Payload{v: structpb.NewNullValue()}
	}
	return p
}

// GetPreviousVehicle never fails: on any error it logs and returns
// PreviousFallback.
func (c *Client) GetPreviousVehicle(ctx context.Context) VehicleSnapshot {
	return c.vehicle(ctx, "previous", PreviousFallback())
}

// GetCurrentVehicle never fails: on any error it logs and returns
// CurrentFallback.
func (c *Client) GetCurrentVehicle(ctx context.Context) VehicleSnapshot {
	return c.vehicle(ctx, "current", CurrentFallback())
}

func (c *Client) vehicle(ctx context.Context, which string, fallback VehicleSnapshot) VehicleSnapshot {
	op := "vehicles_" + which
	b, err := c.do(ctx, op, http.MethodGet, "/vehicles/"+which, nil)
	if err == nil {
		var v VehicleSnapshot
		if err = json.Unmarshal(b, &v); err == nil {
			err = v.Validate()
		}
		if err == nil {
			return v
		}
		err = errors.Wrapf(err, "%s: decode response", op)
	}

	c.log.WithError(err).WithField("op", op).Warn("vehicle lookup failed, using fallback")
	vehicleFallbacks.WithLabelValues(which).Inc()
	return fallback
}

func (c *Client) do(ctx context.Context, op, method, path string, body interface{}) ([]byte, error) {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrapf(err, "%s: encode request", op)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		backendRequests.WithLabelValues(op, outcomeTransportError).Inc()
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		backendRequests.WithLabelValues(op, outcomeStatusError).Inc()
		return nil, newStatusError(op, resp)
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		backendRequests.WithLabelValues(op, outcomeTransportError).Inc()
		return nil, err
	}
	backendRequests.WithLabelValues(op, outcomeOK).Inc()
	c.log.WithFields(logrus.Fields{"op": op, "status": resp.StatusCode}).Debug("backend call")
	return b, nil
}
