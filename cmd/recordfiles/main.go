// Package main provides a CLI tool to record real files API responses for
// contract tests.
// Usage:
//
//	OPENAI_API_KEY=sk-xxx go run ./cmd/recordfiles \
//	  -endpoint=create \
//	  -output=tests/contract/testdata/files_create.json
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Two-line fine-tune sample uploaded by the create endpoint.
const sampleJSONL = `{"prompt": "<prompt text>", "completion": "<ideal generated text>"}
{"prompt": "<prompt text>", "completion": "<ideal generated text>"}`

// Endpoint configurations. {id} is replaced with the -file-id flag.
var endpointConfigs = map[string]struct {
	path      string
	method    string
	multipart bool
	needsID   bool
	raw       bool
}{
	"create": {
		path:      "/v1/files",
		method:    http.MethodPost,
		multipart: true,
	},
	"list": {
		path:   "/v1/files?limit=5",
		method: http.MethodGet,
	},
	"retrieve": {
		path:    "/v1/files/{id}",
		method:  http.MethodGet,
		needsID: true,
	},
	"delete": {
		path:    "/v1/files/{id}",
		method:  http.MethodDelete,
		needsID: true,
	},
	"content": {
		path:    "/v1/files/{id}/content",
		method:  http.MethodGet,
		needsID: true,
		raw:     true,
	},
	"not_found": {
		path:   "/v1/files/file-does-not-exist",
		method: http.MethodGet,
	},
}

func main() {
	endpoint := flag.String("endpoint", "create", "Endpoint to record (create, list, retrieve, delete, content, not_found)")
	output := flag.String("output", "", "Output file path (required)")
	baseURL := flag.String("base-url", "https://api.openai.com", "API base URL")
	fileID := flag.String("file-id", "", "File ID for retrieve, delete and content")
	purpose := flag.String("purpose", "fine-tune", "Purpose for the create endpoint")
	flag.Parse()

	if *output == "" {
		fmt.Fprintln(os.Stderr, "Error: -output flag is required")
		flag.Usage()
		os.Exit(1)
	}

	eConfig, ok := endpointConfigs[*endpoint]
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: unknown endpoint %q\n", *endpoint)
		os.Exit(1)
	}

	if eConfig.needsID && *fileID == "" {
		fmt.Fprintf(os.Stderr, "Error: -file-id flag is required for %s\n", *endpoint)
		os.Exit(1)
	}

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "Error: OPENAI_API_KEY environment variable is required")
		os.Exit(1)
	}

	// Build request body
	var bodyReader io.Reader
	contentType := ""
	if eConfig.multipart {
		var err error
		bodyReader, contentType, err = multipartBody(*purpose)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error building request body: %v\n", err)
			os.Exit(1)
		}
	}

	// Build URL
	url := *baseURL + strings.Replace(eConfig.path, "{id}", *fileID, 1)

	// Create request
	req, err := http.NewRequest(eConfig.method, url, bodyReader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating request: %v\n", err)
		os.Exit(1)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)

	// Send request
	client := &http.Client{Timeout: 60 * time.Second}
	fmt.Printf("Sending request to %s %s...\n", eConfig.method, url)

	resp, err := client.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error sending request: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	fmt.Printf("Response status: %s\n", resp.Status)

	// Read response body
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading response: %v\n", err)
		os.Exit(1)
	}

	// Content downloads are saved as-is
	if eConfig.raw {
		if err := writeOutput(*output, body); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing output: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Raw content saved to %s\n", *output)
		return
	}

	// Pretty print JSON
	var prettyJSON bytes.Buffer
	if err := json.Indent(&prettyJSON, body, "", "  "); err != nil {
		// If it's not valid JSON, write raw
		if err := writeOutput(*output, body); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing output: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Raw response saved to %s\n", *output)
		return
	}

	if err := writeOutput(*output, prettyJSON.Bytes()); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing output: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Response saved to %s\n", *output)

	// Print response summary
	var respMap map[string]interface{}
	if err := json.Unmarshal(body, &respMap); err == nil {
		if id, ok := respMap["id"].(string); ok {
			fmt.Printf("File ID: %s\n", id)
		}
		if status, ok := respMap["status"].(string); ok {
			fmt.Printf("Status: %s\n", status)
		}
	}
}

// multipartBody builds the multipart form for the create endpoint.
func multipartBody(purpose string) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("purpose", purpose); err != nil {
		return nil, "", err
	}
	part, err := w.CreateFormFile("file", "test.jsonl")
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write([]byte(sampleJSONL)); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// writeOutput writes data to the output file, creating directories as needed.
func writeOutput(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
