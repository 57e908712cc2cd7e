// Package main implements the gofile command line client for
// OpenAI-compatible files APIs.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"golang.org/x/term"

	"gofile/config"
	"gofile/internal/apiclient"
	"gofile/internal/core"
	"gofile/internal/files"
	"gofile/internal/logging"
	"gofile/internal/observability"
	"gofile/internal/version"
)

func main() {
	versionFlag := flag.Bool("version", false, "Print version information")
	jsonFlag := flag.Bool("json", false, "Print raw JSON payloads instead of tables")
	baseURL := flag.String("base-url", "", "API base URL (overrides config)")
	timeout := flag.Duration("timeout", 2*time.Minute, "Overall command timeout")
	flag.Usage = usage
	flag.Parse()

	if *versionFlag {
		fmt.Println(version.Info())
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fatal(err)
	}

	// Logs go to stderr so stdout carries only command output
	logging.Setup(logging.Options{
		Level:  logging.ParseLevel(cfg.Logging.Level),
		Format: cfg.Logging.Format,
		Output: os.Stderr,
	})

	apiKey := cfg.Client.APIKey
	if apiKey == "" {
		apiKey, err = promptAPIKey()
		if err != nil {
			fatal(err)
		}
	}

	client := newClient(apiKey, cfg, *baseURL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()
	ctx = core.WithRequestID(ctx, "gofile-"+uuid.NewString())

	command, rest := args[0], args[1:]
	switch command {
	case "upload":
		err = runUpload(ctx, client, rest, *jsonFlag)
	case "list":
		err = runList(ctx, client, rest, *jsonFlag)
	case "retrieve":
		err = runRetrieve(ctx, client, rest, *jsonFlag)
	case "delete":
		err = runDelete(ctx, client, rest, *jsonFlag)
	case "content":
		err = runContent(ctx, client, rest)
	default:
		fmt.Fprintf(os.Stderr, "gofile: unknown command %q\n\n", command)
		usage()
		os.Exit(2)
	}
	if err != nil {
		fatal(err)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `Usage: gofile [flags] <command> [arguments]

Commands:
  upload <path>    Upload a file (-purpose, -name, -expires-after, -wait)
  list             List files (-purpose, -limit, -after, -order)
  retrieve <id>    Show a file's metadata
  delete <id>      Delete a file
  content <id>     Download a file's content (-o <path>)

Flags:
`)
	flag.PrintDefaults()
}

// fatal prints the error and exits non-zero. Client errors already carry
// their provider and type in the message.
func fatal(err error) {
	var clientErr *core.ClientError
	if errors.As(err, &clientErr) {
		fmt.Fprintf(os.Stderr, "gofile: %s\n", clientErr.Error())
	} else {
		fmt.Fprintf(os.Stderr, "gofile: %v\n", err)
	}
	os.Exit(1)
}

// promptAPIKey reads the API key from the terminal when none is configured.
// Non-interactive invocations get an error instead of a hanging prompt.
func promptAPIKey() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("no API key configured: set OPENAI_API_KEY or client.api_key in config.yaml")
	}
	fmt.Fprint(os.Stderr, "OpenAI API key: ")
	key, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read API key: %w", err)
	}
	trimmed := strings.TrimSpace(string(key))
	if trimmed == "" {
		return "", errors.New("no API key provided")
	}
	return trimmed, nil
}

func newClient(apiKey string, cfg *config.Config, baseURL string) *files.Client {
	opts := files.Options{
		BaseURL:      cfg.Client.BaseURL,
		Organization: cfg.Client.Organization,
		Project:      cfg.Client.Project,
		UserAgent:    cfg.Client.UserAgent,
		Retry: &apiclient.RetryConfig{
			MaxRetries:     cfg.Resilience.Retry.MaxRetries,
			InitialBackoff: cfg.Resilience.Retry.InitialBackoffDuration(),
			MaxBackoff:     cfg.Resilience.Retry.MaxBackoffDuration(),
			BackoffFactor:  cfg.Resilience.Retry.BackoffFactor,
		},
		CircuitBreaker: &apiclient.CircuitBreakerConfig{
			FailureThreshold: cfg.Resilience.CircuitBreaker.FailureThreshold,
			SuccessThreshold: cfg.Resilience.CircuitBreaker.SuccessThreshold,
			Timeout:          cfg.Resilience.CircuitBreaker.TimeoutDuration(),
		},
	}
	if cfg.Metrics.Enabled {
		opts.Hooks = observability.NewPrometheusHooks()
	}
	if baseURL != "" {
		opts.BaseURL = baseURL
	}
	return files.New(apiKey, opts)
}

func runUpload(ctx context.Context, client *files.Client, args []string, asJSON bool) error {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	purpose := fs.String("purpose", core.PurposeFineTune, "File purpose (fine-tune, assistants, batch, vision, user_data, evals)")
	name := fs.String("name", "", "Filename to report (defaults to the file's base name)")
	expiresAfter := fs.Duration("expires-after", 0, "Request expiry this long after upload (minimum 1h)")
	wait := fs.Bool("wait", false, "Poll until the file finishes processing")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("usage: gofile upload [flags] <path>")
	}

	path := fs.Arg(0)
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	filename := *name
	if filename == "" {
		filename = filepath.Base(path)
	}

	req := &core.FileCreateRequest{
		Purpose:  *purpose,
		Filename: filename,
		Content:  content,
	}
	if *expiresAfter > 0 {
		req.ExpiresAfter = &core.FileExpiresAfter{
			Anchor:  "created_at",
			Seconds: int64(expiresAfter.Seconds()),
		}
	}

	file, err := client.Create(ctx, req)
	if err != nil {
		return err
	}
	if *wait {
		file, err = client.WaitProcessed(ctx, file.ID, files.WaitOptions{})
		if err != nil {
			return err
		}
	}
	return printFile(file, asJSON)
}

func runList(ctx context.Context, client *files.Client, args []string, asJSON bool) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	purpose := fs.String("purpose", "", "Only list files with this purpose")
	limit := fs.Int("limit", 0, "Maximum number of files to return (1-10000)")
	after := fs.String("after", "", "Return files after this file ID")
	order := fs.String("order", "", "Sort by created_at: asc or desc")
	fs.Parse(args)

	resp, err := client.List(ctx, &core.FileListQuery{
		Purpose: *purpose,
		Limit:   *limit,
		After:   *after,
		Order:   *order,
	})
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(resp)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tFILENAME\tPURPOSE\tBYTES\tSTATUS\tCREATED")
	for _, file := range resp.Data {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			file.ID, file.Filename, file.Purpose, file.Bytes, file.Status,
			time.Unix(file.CreatedAt, 0).UTC().Format(time.RFC3339))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if resp.HasMore && len(resp.Data) > 0 {
		fmt.Printf("\nmore files available, continue with: gofile list -after %s\n",
			resp.Data[len(resp.Data)-1].ID)
	}
	return nil
}

func runRetrieve(ctx context.Context, client *files.Client, args []string, asJSON bool) error {
	if len(args) != 1 {
		return errors.New("usage: gofile retrieve <file-id>")
	}
	file, err := client.Retrieve(ctx, args[0])
	if err != nil {
		return err
	}
	return printFile(file, asJSON)
}

func runDelete(ctx context.Context, client *files.Client, args []string, asJSON bool) error {
	if len(args) != 1 {
		return errors.New("usage: gofile delete <file-id>")
	}
	resp, err := client.Delete(ctx, args[0])
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(resp)
	}
	if !resp.Deleted {
		return fmt.Errorf("server did not confirm deletion of %s", resp.ID)
	}
	fmt.Printf("deleted %s\n", resp.ID)
	return nil
}

func runContent(ctx context.Context, client *files.Client, args []string) error {
	fs := flag.NewFlagSet("content", flag.ExitOnError)
	out := fs.String("o", "", "Write content to this path instead of stdout")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("usage: gofile content [-o <path>] <file-id>")
	}

	body, err := client.StreamContent(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	defer body.Close()

	if *out == "" {
		_, err = io.Copy(os.Stdout, body)
		return err
	}

	f, err := os.Create(*out)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", *out, err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", *out, err)
	}
	return f.Close()
}

func printFile(file *core.FileObject, asJSON bool) error {
	if asJSON {
		return printJSON(file)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintf(w, "id:\t%s\n", file.ID)
	fmt.Fprintf(w, "filename:\t%s\n", file.Filename)
	fmt.Fprintf(w, "purpose:\t%s\n", file.Purpose)
	fmt.Fprintf(w, "bytes:\t%d\n", file.Bytes)
	fmt.Fprintf(w, "status:\t%s\n", file.Status)
	fmt.Fprintf(w, "created:\t%s\n", time.Unix(file.CreatedAt, 0).UTC().Format(time.RFC3339))
	if file.ExpiresAt != nil {
		fmt.Fprintf(w, "expires:\t%s\n", time.Unix(*file.ExpiresAt, 0).UTC().Format(time.RFC3339))
	}
	if file.StatusDetails != nil && *file.StatusDetails != "" {
		fmt.Fprintf(w, "status details:\t%s\n", *file.StatusDetails)
	}
	return w.Flush()
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
