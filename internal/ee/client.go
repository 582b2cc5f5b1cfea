package ee

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/tidwall/gjson"
)

const DefaultBaseURL = "https://earthengine.googleapis.com"

var ErrMissingProject = errors.New("missing Earth Engine cloud project (EE_PROJECT)")

// Client talks to the Earth Engine REST API v1 of one cloud project.
type Client struct {
	project        string
	baseURL        string
	httpClient     *http.Client
	retries        uint
	initialBackoff time.Duration
}

type Option func(*Client)

// WithHTTPClient sets the authenticated client used for every call.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithRetries bounds the attempts made for a retryable failure.
func WithRetries(n uint) Option {
	return func(c *Client) {
		if n > 0 {
			c.retries = n
		}
	}
}

func WithInitialBackoff(d time.Duration) Option {
	return func(c *Client) { c.initialBackoff = d }
}

func NewClient(project string, opts ...Option) (*Client, error) {
	if project == "" {
		return nil, ErrMissingProject
	}
	c := &Client{
		project:        project,
		baseURL:        DefaultBaseURL,
		httpClient:     http.DefaultClient,
		retries:        5,
		initialBackoff: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Project() string { return c.project }

func (c *Client) projectPath(method string) string {
	return "projects/" + c.project + "/" + method
}

// Compute evaluates node and returns the JSON result.
func (c *Client) Compute(ctx context.Context, node *Node) (json.RawMessage, error) {
	expr, err := Encode(node)
	if err != nil {
		return nil, err
	}
	data, err := c.do(ctx, http.MethodPost, c.projectPath("value:compute"), map[string]any{
		"expression": expr,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to compute value: %w", err)
	}
	return json.RawMessage(gjson.GetBytes(data, "result").Raw), nil
}

// PixelGrid is a north-up raster grid in a geographic CRS.
type PixelGrid struct {
	Width      int
	Height     int
	ScaleX     float64
	ScaleY     float64
	TranslateX float64
	TranslateY float64
	CRS        string
}

func (g PixelGrid) wire() map[string]any {
	crs := g.CRS
	if crs == "" {
		crs = "EPSG:4326"
	}
	return map[string]any{
		"dimensions": map[string]int{"width": g.Width, "height": g.Height},
		"affineTransform": map[string]float64{
			"scaleX":     g.ScaleX,
			"shearX":     0,
			"translateX": g.TranslateX,
			"shearY":     0,
			"scaleY":     g.ScaleY,
			"translateY": g.TranslateY,
		},
		"crsCode": crs,
	}
}

// Image file formats of computePixels and maps requests.
const (
	FormatGeoTIFF = "GEO_TIFF"
	FormatPNG     = "PNG"
	FormatJPEG    = "JPEG"

	// FormatAutoJPEGPNG lets the tile server pick JPEG for opaque tiles and
	// PNG for the others.
	FormatAutoJPEGPNG = "AUTO_JPEG_PNG"
)

type PixelsRequest struct {
	Image  Image
	Format string
	Grid   PixelGrid
}

// ComputePixels renders an image synchronously and returns the encoded file.
func (c *Client) ComputePixels(ctx context.Context, req PixelsRequest) ([]byte, error) {
	expr, err := Encode(req.Image.node)
	if err != nil {
		return nil, err
	}
	format := req.Format
	if format == "" {
		format = FormatGeoTIFF
	}
	data, err := c.do(ctx, http.MethodPost, c.projectPath("image:computePixels"), map[string]any{
		"expression": expr,
		"fileFormat": format,
		"grid":       req.Grid.wire(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to compute pixels: %w", err)
	}
	return data, nil
}

// Destination says where an export lands. Bucket wins over DriveFolder.
type Destination struct {
	DriveFolder    string
	Bucket         string
	FilenamePrefix string
}

func (d Destination) String() string {
	if d.Bucket != "" {
		return "gs://" + d.Bucket + "/" + d.FilenamePrefix
	}
	return "drive://" + d.DriveFolder + "/" + d.FilenamePrefix
}

type ExportRequest struct {
	Image       Image
	Description string
	RequestID   string
	MaxPixels   int64
	Destination Destination
}

// ExportImage submits an asynchronous GeoTIFF export.
func (c *Client) ExportImage(ctx context.Context, req ExportRequest) (*Operation, error) {
	expr, err := Encode(req.Image.node)
	if err != nil {
		return nil, err
	}
	options := map[string]any{"fileFormat": FormatGeoTIFF}
	if req.Destination.Bucket != "" {
		options["cloudStorageDestination"] = map[string]string{
			"bucket":         req.Destination.Bucket,
			"filenamePrefix": req.Destination.FilenamePrefix,
		}
	} else {
		options["driveDestination"] = map[string]string{
			"folder":         req.Destination.DriveFolder,
			"filenamePrefix": req.Destination.FilenamePrefix,
		}
	}
	payload := map[string]any{
		"expression":        expr,
		"description":       req.Description,
		"fileExportOptions": options,
	}
	if req.MaxPixels > 0 {
		payload["maxPixels"] = strconv.FormatInt(req.MaxPixels, 10)
	}
	if req.RequestID != "" {
		payload["requestId"] = req.RequestID
	}

	data, err := c.do(ctx, http.MethodPost, c.projectPath("image:export"), payload)
	if err != nil {
		return nil, fmt.Errorf("failed to export %s: %w", req.Description, err)
	}
	return parseOperation(gjson.ParseBytes(data)), nil
}

// Map is a server-side tile source for a visualized image.
type Map struct {
	Name    string
	baseURL string
}

// TileURL is the XYZ template of the map tiles.
func (m *Map) TileURL() string {
	return m.baseURL + "/v1/" + m.Name + "/tiles/{z}/{x}/{y}"
}

func (c *Client) CreateMap(ctx context.Context, img Image) (*Map, error) {
	expr, err := Encode(img.node)
	if err != nil {
		return nil, err
	}
	data, err := c.do(ctx, http.MethodPost, c.projectPath("maps"), map[string]any{
		"expression": expr,
		"fileFormat": FormatAutoJPEGPNG,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create map: %w", err)
	}
	name := gjson.GetBytes(data, "name").String()
	if name == "" {
		return nil, fmt.Errorf("failed to create map: response has no map name")
	}
	return &Map{Name: name, baseURL: c.baseURL}, nil
}

func (c *Client) GetOperation(ctx context.Context, name string) (*Operation, error) {
	data, err := c.do(ctx, http.MethodGet, name, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get operation %s: %w", name, err)
	}
	return parseOperation(gjson.ParseBytes(data)), nil
}

// ListOperations returns up to pageSize of the most recent project operations.
func (c *Client) ListOperations(ctx context.Context, pageSize int) ([]*Operation, error) {
	path := c.projectPath("operations")
	if pageSize > 0 {
		path += "?" + url.Values{"pageSize": {strconv.Itoa(pageSize)}}.Encode()
	}
	data, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	var ops []*Operation
	for _, r := range gjson.GetBytes(data, "operations").Array() {
		ops = append(ops, parseOperation(r))
	}
	return ops, nil
}

func (c *Client) CancelOperation(ctx context.Context, name string) error {
	if _, err := c.do(ctx, http.MethodPost, name+":cancel", map[string]any{}); err != nil {
		return fmt.Errorf("failed to cancel operation %s: %w", name, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request payload: %w", err)
		}
	}
	endpoint := c.baseURL + "/v1/" + path

	operation := func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return data, nil
		}
		apiErr := decodeAPIError(resp.StatusCode, data)
		if apiErr.Temporary() {
			return nil, apiErr
		}
		return nil, backoff.Permanent(apiErr)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialBackoff
	return backoff.Retry(ctx, operation, backoff.WithBackOff(b), backoff.WithMaxTries(c.retries))
}
