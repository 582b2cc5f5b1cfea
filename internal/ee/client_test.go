package ee

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient("demo",
		WithBaseURL(srv.URL),
		WithHTTPClient(srv.Client()),
		WithRetries(3),
		WithInitialBackoff(time.Millisecond),
	)
	require.NoError(t, err)
	return c
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	data, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestNewClientRequiresProject(t *testing.T) {
	_, err := NewClient("")
	assert.ErrorIs(t, err, ErrMissingProject)
}

func TestCompute(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/projects/demo/value:compute", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body := decodeBody(t, r)
		assert.Contains(t, body, "expression")
		w.Write([]byte(`{"result": [1651363200000, 1651795200000]}`))
	})

	raw, err := c.Compute(context.Background(), LoadImageCollection("COPERNICUS/S2_SR").AggregateArray(TimeStart))
	require.NoError(t, err)

	var millis []int64
	require.NoError(t, json.Unmarshal(raw, &millis))
	assert.Equal(t, []int64{1651363200000, 1651795200000}, millis)
}

func TestExportImageToDrive(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/projects/demo/image:export", r.URL.Path)
		body := decodeBody(t, r)
		assert.Equal(t, "ndvi_2022-05-01_2022-05-06", body["description"])
		assert.Equal(t, "1000000000000", body["maxPixels"])
		assert.Equal(t, "req-1", body["requestId"])
		options := body["fileExportOptions"].(map[string]any)
		assert.Equal(t, "GEO_TIFF", options["fileFormat"])
		assert.Equal(t, map[string]any{
			"folder":         "earthengine",
			"filenamePrefix": "ndvi_2022-05-01_2022-05-06",
		}, options["driveDestination"])
		assert.NotContains(t, options, "cloudStorageDestination")

		w.Write([]byte(`{
			"name": "projects/demo/operations/ABC",
			"metadata": {"state": "PENDING", "description": "ndvi_2022-05-01_2022-05-06", "createTime": "2022-05-10T10:00:00Z"}
		}`))
	})

	op, err := c.ExportImage(context.Background(), ExportRequest{
		Image:       LoadImage("X"),
		Description: "ndvi_2022-05-01_2022-05-06",
		RequestID:   "req-1",
		MaxPixels:   1e12,
		Destination: Destination{DriveFolder: "earthengine", FilenamePrefix: "ndvi_2022-05-01_2022-05-06"},
	})
	require.NoError(t, err)
	assert.Equal(t, "projects/demo/operations/ABC", op.Name)
	assert.Equal(t, StatePending, op.State)
	assert.False(t, op.Done)
	assert.Equal(t, time.Date(2022, 5, 10, 10, 0, 0, 0, time.UTC), op.CreateTime.UTC())
}

func TestExportImageToBucket(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		options := decodeBody(t, r)["fileExportOptions"].(map[string]any)
		assert.Equal(t, map[string]any{"bucket": "imagery", "filenamePrefix": "rgb_a"}, options["cloudStorageDestination"])
		assert.NotContains(t, options, "driveDestination")
		w.Write([]byte(`{"name": "projects/demo/operations/B"}`))
	})

	dest := Destination{DriveFolder: "ignored", Bucket: "imagery", FilenamePrefix: "rgb_a"}
	op, err := c.ExportImage(context.Background(), ExportRequest{Image: LoadImage("X"), Description: "rgb_a", Destination: dest})
	require.NoError(t, err)
	assert.Equal(t, StatePending, op.State)
	assert.Equal(t, "gs://imagery/rgb_a", dest.String())
}

func TestRetriesTemporaryFailures(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error": {"code": 503, "message": "backend busy", "status": "UNAVAILABLE"}}`))
			return
		}
		w.Write([]byte(`{"result": 3}`))
	})

	raw, err := c.Compute(context.Background(), Constant(3))
	require.NoError(t, err)
	assert.JSONEq(t, "3", string(raw))
	assert.Equal(t, int32(2), calls.Load())
}

func TestPermanentFailureIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": {"code": 400, "message": "Image.load: Image asset 'X' not found.", "status": "INVALID_ARGUMENT"}}`))
	})

	_, err := c.Compute(context.Background(), LoadImage("X").Node())
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "INVALID_ARGUMENT", apiErr.Status)
	assert.Contains(t, apiErr.Message, "not found")
	assert.NotErrorIs(t, err, ErrUnauthorized)
}

func TestForbiddenIsUnauthorized(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error": {"code": 403, "message": "Permission denied", "status": "PERMISSION_DENIED"}}`))
	})

	_, err := c.Compute(context.Background(), Constant(1))
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestRetriesAreBounded(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.Compute(context.Background(), Constant(1))
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetOperation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/projects/demo/operations/ABC", r.URL.Path)
		w.Write([]byte(`{
			"name": "projects/demo/operations/ABC",
			"done": true,
			"metadata": {
				"state": "SUCCEEDED",
				"updateTime": "2022-05-10T11:00:00Z",
				"destinationUris": ["https://drive.google.com/#folders/xyz"]
			}
		}`))
	})

	op, err := c.GetOperation(context.Background(), "projects/demo/operations/ABC")
	require.NoError(t, err)
	assert.True(t, op.Done)
	assert.Equal(t, StateSucceeded, op.State)
	assert.True(t, Terminal(op.State))
	assert.Equal(t, []string{"https://drive.google.com/#folders/xyz"}, op.DestinationURIs)
}

func TestOperationStateFallsBackToDone(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name": "projects/demo/operations/F", "done": true, "error": {"code": 3, "message": "Export too large"}}`))
	})

	op, err := c.GetOperation(context.Background(), "projects/demo/operations/F")
	require.NoError(t, err)
	assert.Equal(t, StateFailed, op.State)
	assert.Equal(t, "Export too large", op.Error)
}

func TestListAndCancelOperations(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/projects/demo/operations":
			assert.Equal(t, "25", r.URL.Query().Get("pageSize"))
			w.Write([]byte(`{"operations": [
				{"name": "projects/demo/operations/A", "metadata": {"state": "RUNNING"}},
				{"name": "projects/demo/operations/B", "metadata": {"state": "FAILED"}}
			]}`))
		case "/v1/projects/demo/operations/A:cancel":
			assert.Equal(t, http.MethodPost, r.Method)
			w.Write([]byte(`{}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})

	ops, err := c.ListOperations(context.Background(), 25)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, StateRunning, ops[0].State)
	assert.Equal(t, StateFailed, ops[1].State)

	require.NoError(t, c.CancelOperation(context.Background(), "projects/demo/operations/A"))
}

func TestCreateMap(t *testing.T) {
	var base string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/projects/demo/maps", r.URL.Path)
		assert.Equal(t, "AUTO_JPEG_PNG", decodeBody(t, r)["fileFormat"])
		w.Write([]byte(`{"name": "projects/demo/maps/m1"}`))
	})
	base = c.baseURL

	m, err := c.CreateMap(context.Background(), LoadImage("X"))
	require.NoError(t, err)
	assert.Equal(t, base+"/v1/projects/demo/maps/m1/tiles/{z}/{x}/{y}", m.TileURL())
}

func TestComputePixels(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/projects/demo/image:computePixels", r.URL.Path)
		body := decodeBody(t, r)
		assert.Equal(t, "PNG", body["fileFormat"])
		grid := body["grid"].(map[string]any)
		assert.Equal(t, "EPSG:4326", grid["crsCode"])
		assert.Equal(t, map[string]any{"width": 64.0, "height": 32.0}, grid["dimensions"])
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("\x89PNG"))
	})

	data, err := c.ComputePixels(context.Background(), PixelsRequest{
		Image:  LoadImage("X"),
		Format: FormatPNG,
		Grid:   PixelGrid{Width: 64, Height: 32, ScaleX: 0.001, ScaleY: -0.001, TranslateX: 10, TranslateY: 20},
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), data)
}

func invocation(name string, args map[string]any) map[string]any {
	return map[string]any{"functionInvocationValue": map[string]any{
		"functionName": name,
		"arguments":    args,
	}}
}

func constant(v any) map[string]any {
	return map[string]any{"constantValue": v}
}

func TestExportImageRequestBody(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = decodeBody(t, r)
		w.Write([]byte(`{"name": "projects/demo/operations/N"}`))
	})

	g, err := NewGeometry(square)
	require.NoError(t, err)
	img := LoadImageCollection("COPERNICUS/S2_SR_HARMONIZED").
		Median().
		NormalizedDifference("B8", "B4").
		Rename("NDVI").
		ClipToBoundsAndScale(g, 10)

	_, err = c.ExportImage(context.Background(), ExportRequest{
		Image:       img,
		Description: "ndvi_2022-05-01_2022-05-06",
		RequestID:   "req-9",
		MaxPixels:   1e12,
		Destination: Destination{DriveFolder: "earthengine", FilenamePrefix: "ndvi_2022-05-01_2022-05-06"},
	})
	require.NoError(t, err)

	ring := []any{[]any{0.0, 0.0}, []any{1.0, 0.0}, []any{1.0, 1.0}, []any{0.0, 1.0}, []any{0.0, 0.0}}
	want := map[string]any{
		"description": "ndvi_2022-05-01_2022-05-06",
		"requestId":   "req-9",
		"maxPixels":   "1000000000000",
		"fileExportOptions": map[string]any{
			"fileFormat": "GEO_TIFF",
			"driveDestination": map[string]any{
				"folder":         "earthengine",
				"filenamePrefix": "ndvi_2022-05-01_2022-05-06",
			},
		},
		"expression": map[string]any{
			"result": "0",
			"values": map[string]any{
				"0": invocation("Image.clipToBoundsAndScale", map[string]any{
					"input": invocation("Image.rename", map[string]any{
						"input": invocation("Image.normalizedDifference", map[string]any{
							"input": invocation("reduce.median", map[string]any{
								"collection": invocation("ImageCollection.load", map[string]any{
									"id": constant("COPERNICUS/S2_SR_HARMONIZED"),
								}),
							}),
							"bandNames": constant([]any{"B8", "B4"}),
						}),
						"names": constant([]any{"NDVI"}),
					}),
					"geometry": invocation("GeometryConstructors.Polygon", map[string]any{
						"coordinates": constant([]any{ring}),
					}),
					"scale": constant(10.0),
				}),
			},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected export request (-want +got):\n%s", diff)
	}
}

func TestCreateMapRequestBody(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = decodeBody(t, r)
		w.Write([]byte(`{"name": "projects/demo/maps/m2"}`))
	})

	img := LoadImageCollection("COPERNICUS/S2_CLOUD_PROBABILITY").
		Median().
		Visualize(VisParams{Bands: []string{"probability"}, Min: 0, Max: 100, Palette: []string{"white", "black"}})
	_, err := c.CreateMap(context.Background(), img)
	require.NoError(t, err)

	want := map[string]any{
		"fileFormat": "AUTO_JPEG_PNG",
		"expression": map[string]any{
			"result": "0",
			"values": map[string]any{
				"0": invocation("Image.visualize", map[string]any{
					"image": invocation("reduce.median", map[string]any{
						"collection": invocation("ImageCollection.load", map[string]any{
							"id": constant("COPERNICUS/S2_CLOUD_PROBABILITY"),
						}),
					}),
					"bands":   constant([]any{"probability"}),
					"min":     constant(0.0),
					"max":     constant(100.0),
					"palette": constant([]any{"white", "black"}),
				}),
			},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected map request (-want +got):\n%s", diff)
	}
}
