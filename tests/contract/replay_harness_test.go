//go:build contract

package contract

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

type replayRoute struct {
	statusCode  int
	contentType string
	header      http.Header
	body        []byte
}

type replayTransport struct {
	t      *testing.T
	routes map[string]replayRoute
}

func replayKey(method, requestURI string) string {
	return method + " " + requestURI
}

func (rt *replayTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	rt.t.Helper()

	key := replayKey(req.Method, req.URL.RequestURI())
	route, ok := rt.routes[key]
	if !ok {
		notFoundBody := []byte(fmt.Sprintf(`{"error":{"message":"missing replay route: %s"}}`, key))
		return &http.Response{
			StatusCode: http.StatusNotFound,
			Status:     "404 Not Found",
			Header: http.Header{
				"Content-Type": []string{"application/json"},
			},
			Body:    io.NopCloser(bytes.NewReader(notFoundBody)),
			Request: req,
		}, nil
	}

	statusCode := route.statusCode
	if statusCode == 0 {
		statusCode = http.StatusOK
	}
	contentType := route.contentType
	if contentType == "" {
		contentType = "application/json"
	}

	header := http.Header{"Content-Type": []string{contentType}}
	for name, values := range route.header {
		header[name] = values
	}

	return &http.Response{
		StatusCode: statusCode,
		Status:     fmt.Sprintf("%d %s", statusCode, http.StatusText(statusCode)),
		Header:     header,
		Body:       io.NopCloser(bytes.NewReader(route.body)),
		Request:    req,
	}, nil
}

func newReplayHTTPClient(t *testing.T, routes map[string]replayRoute) *http.Client {
	t.Helper()
	return &http.Client{
		Transport: &replayTransport{
			t:      t,
			routes: routes,
		},
	}
}

func jsonFixtureRoute(t *testing.T, path string) replayRoute {
	t.Helper()
	return replayRoute{
		statusCode:  http.StatusOK,
		contentType: "application/json",
		body:        loadGoldenFileRaw(t, path),
	}
}

func errorFixtureRoute(t *testing.T, path string, statusCode int) replayRoute {
	t.Helper()
	return replayRoute{
		statusCode:  statusCode,
		contentType: "application/json",
		body:        loadGoldenFileRaw(t, path),
	}
}

// contentFixtureRoute serves a fixture the way /files/{id}/content does:
// raw bytes with a download disposition.
func contentFixtureRoute(t *testing.T, path, filename string) replayRoute {
	t.Helper()
	return replayRoute{
		statusCode:  http.StatusOK,
		contentType: "application/jsonl",
		header: http.Header{
			"Content-Disposition": []string{fmt.Sprintf("attachment; filename=%q", filename)},
		},
		body: loadGoldenFileRaw(t, path),
	}
}

func readAllStream(t *testing.T, body io.ReadCloser) []byte {
	t.Helper()
	defer func() { _ = body.Close() }()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	return data
}
