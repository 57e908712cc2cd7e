//go:build e2e

package e2e

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gofile/config"
	"gofile/internal/app"
	"gofile/internal/core"
	"gofile/internal/files"
)

// fineTuneSample is a minimal two-example fine-tuning file, 135 bytes.
const fineTuneSample = `{"prompt": "<prompt text>", "completion": "<ideal generated text>"}
{"prompt": "<prompt text>", "completion": "<ideal generated text>"}`

// newFilesClient returns a typed client pointed at the given simulator.
func newFilesClient(baseURL, apiKey string) *files.Client {
	return files.New(apiKey, files.Options{BaseURL: baseURL + "/v1"})
}

// startSim boots a dedicated simulator for tests that need non-default
// server settings (authentication, processing delay). The server is torn
// down via t.Cleanup.
func startSim(t *testing.T, mutate func(*config.Config)) string {
	t.Helper()

	cfg := testServerConfig()
	if mutate != nil {
		mutate(cfg)
	}

	application, err := app.New(context.Background(), cfg)
	require.NoError(t, err)

	port, err := findAvailablePort()
	require.NoError(t, err)
	url := fmt.Sprintf("http://127.0.0.1:%d", port)

	go func() {
		if err := application.Start(fmt.Sprintf("127.0.0.1:%d", port)); err != nil {
			fmt.Printf("Server error: %v\n", err)
		}
	}()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = application.Shutdown(ctx)
	})

	require.NoError(t, waitForHealth(url+"/health"))
	return url
}

// uploadSample uploads the fine-tune sample and returns the created file.
func uploadSample(t *testing.T, client *files.Client) *core.FileObject {
	t.Helper()

	file, err := client.Create(context.Background(), &core.FileCreateRequest{
		Purpose:  core.PurposeFineTune,
		Filename: "test.jsonl",
		Content:  []byte(fineTuneSample),
	})
	require.NoError(t, err)
	require.NotNil(t, file)
	return file
}

// deleteFile removes a file, failing the test if the server does not
// confirm the deletion.
func deleteFile(t *testing.T, client *files.Client, id string) {
	t.Helper()

	resp, err := client.Delete(context.Background(), id)
	require.NoError(t, err)
	require.True(t, resp.Deleted)
}

// readAll drains and closes a content stream.
func readAll(t *testing.T, body io.ReadCloser) []byte {
	t.Helper()
	defer func() { _ = body.Close() }()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	return data
}

// closeBody is a helper to close response body in defer statements.
func closeBody(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
}

// apiErrorEnvelope mirrors the simulator's error body for raw HTTP checks.
// Param and Code are null when the server has nothing to report.
type apiErrorEnvelope struct {
	Error struct {
		Message string  `json:"message"`
		Type    string  `json:"type"`
		Param   *string `json:"param"`
		Code    *string `json:"code"`
	} `json:"error"`
}
