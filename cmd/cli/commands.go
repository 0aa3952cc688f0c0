package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/crawlrun/internal/domain/failure"
	"github.com/GriffinCanCode/crawlrun/internal/domain/pipeline"
	"github.com/GriffinCanCode/crawlrun/internal/infrastructure/config"
	"github.com/GriffinCanCode/crawlrun/internal/infrastructure/logging"
)

// exitError reports a failed run after its envelope has been printed.
type exitError struct {
	code int
	kind failure.Kind
}

func (e *exitError) Error() string {
	return fmt.Sprintf("run failed: %s", e.kind)
}

type requestFlags struct {
	url      string
	code     string
	codeFile string
	mode     string
}

func (f *requestFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.url, "url", "", "Target URL to fetch")
	cmd.Flags().StringVar(&f.code, "code", "", "JavaScript function source")
	cmd.Flags().StringVar(&f.codeFile, "code-file", "", "Read the function source from a file ('-' for stdin)")
	cmd.Flags().StringVar(&f.mode, "type", string(pipeline.ModeRun), "Request type (test or run)")
	cmd.MarkFlagsMutuallyExclusive("code", "code-file")
	_ = cmd.MarkFlagRequired("url")
}

// request assembles the pipeline request from flags
func (f *requestFlags) request(stdin io.Reader) (*pipeline.Request, error) {
	code := f.code
	switch f.codeFile {
	case "":
	case "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		code = string(data)
	default:
		data, err := os.ReadFile(f.codeFile)
		if err != nil {
			return nil, fmt.Errorf("reading code file: %w", err)
		}
		code = string(data)
	}
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("one of --code or --code-file is required")
	}
	return &pipeline.Request{Mode: pipeline.Mode(f.mode), URL: f.url, Code: code}, nil
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "crawlrun",
		Short:         "Fetch a URL and run a JavaScript function over its text",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newRunCommand(), newRemoteCommand(), newHealthCommand())
	return root
}

func newRunCommand() *cobra.Command {
	var (
		flags        requestFlags
		fetchTimeout time.Duration
		execTimeout  time.Duration
		verbose      bool
	)

	cfg := config.LoadOrDefault()

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline in-process and print the result envelope",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := flags.request(cmd.InOrStdin())
			if err != nil {
				return err
			}

			logger := logging.NewNop()
			if verbose {
				logger = logging.NewDevelopment()
			}
			defer logger.Sync()

			orchestrator := pipeline.Build(pipeline.Limits{
				MaxCodeLength: cfg.Pipeline.MaxCodeLength,
				FetchTimeout:  fetchTimeout,
				ExecTimeout:   execTimeout,
				PinResolved:   cfg.Pipeline.PinResolved,
				UserAgent:     cfg.Pipeline.FetchUserAgent,
			}, logger.Logger)

			resp, fe := orchestrator.Execute(context.Background(), req)
			if fe != nil {
				if err := printJSON(cmd.OutOrStdout(), fe.Envelope()); err != nil {
					return err
				}
				return &exitError{code: 1, kind: fe.Kind}
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	flags.register(cmd)
	cmd.Flags().DurationVar(&fetchTimeout, "fetch-timeout", cfg.Pipeline.FetchTimeout, "Fetch timeout")
	cmd.Flags().DurationVar(&execTimeout, "exec-timeout", cfg.Pipeline.ExecTimeout, "Execution timeout")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log pipeline stages to stdout")
	return cmd
}

func newRemoteCommand() *cobra.Command {
	var (
		flags   requestFlags
		server  string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Send the request to a running server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := flags.request(cmd.InOrStdin())
			if err != nil {
				return err
			}

			resp, err := newClient(server, timeout).R().
				SetContext(cmd.Context()).
				SetBody(req).
				Post("/run")
			if err != nil {
				return fmt.Errorf("request failed: %w", err)
			}

			if err := printRaw(cmd.OutOrStdout(), resp.Body()); err != nil {
				return err
			}
			if resp.IsError() {
				var env failure.Envelope
				_ = sonic.Unmarshal(resp.Body(), &env)
				return &exitError{code: 1, kind: env.Error}
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&server, "server", "http://localhost:8000", "Server URL")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")
	return cmd
}

func newHealthCommand() *cobra.Command {
	var (
		server  string
		retries int
	)

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		Long: `Check server health.

Connection errors and 5xx answers are retried with backoff, so the command
can wait for a server that is still starting.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := retryablehttp.NewClient()
			client.Logger = nil
			client.RetryMax = retries
			client.RetryWaitMin = 100 * time.Millisecond
			client.RetryWaitMax = time.Second
			client.HTTPClient.Timeout = 10 * time.Second
			client.ErrorHandler = retryablehttp.PassthroughErrorHandler

			req, err := retryablehttp.NewRequestWithContext(cmd.Context(), http.MethodGet,
				strings.TrimRight(server, "/")+"/health", nil)
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			req.Header.Set("Accept", "application/json")

			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("reading health response: %w", err)
			}
			if err := printRaw(cmd.OutOrStdout(), body); err != nil {
				return err
			}
			if resp.StatusCode >= http.StatusBadRequest {
				return &exitError{code: 1, kind: failure.ServerError}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", "http://localhost:8000", "Server URL")
	cmd.Flags().IntVar(&retries, "retries", 3, "Retries on connection errors and 5xx answers")
	return cmd
}

func newClient(server string, timeout time.Duration) *resty.Client {
	return resty.New().
		SetBaseURL(strings.TrimRight(server, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal)
}

func printJSON(w io.Writer, v any) error {
	out, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

// printRaw pretty-prints a JSON body, or writes it unchanged if it is not JSON.
func printRaw(w io.Writer, body []byte) error {
	var v any
	if err := sonic.Unmarshal(body, &v); err != nil {
		_, err = fmt.Fprintln(w, string(body))
		return err
	}
	return printJSON(w, v)
}
