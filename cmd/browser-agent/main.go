// Package main provides the browser-agent CLI: it runs one delegated browser
// task under the task supervisor, streams its progress to the terminal and
// optionally serves the browser control API while the task runs.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

const (
	version      = "0.1.0"
	defaultModel = "gpt-4o" // Browser model used when nothing else is configured
)

// rootOptions are the flags shared by every command.
type rootOptions struct {
	configPath   string
	apiKey       string
	baseURL      string
	model        string
	otlpEndpoint string
	otlpInsecure bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "browser-agent",
		Short:         "Delegate browsing tasks to an autonomous browser agent",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "Config file (default: ~/.browseragent/config.json)")
	flags.StringVar(&opts.apiKey, "api-key", "", "OpenAI API key (or set OPENAI_API_KEY env var)")
	flags.StringVar(&opts.baseURL, "base-url", "", "OpenAI API base URL (or set OPENAI_BASE_URL env var)")
	flags.StringVar(&opts.model, "model", defaultModel, "Model driving the browser")
	flags.StringVar(&opts.otlpEndpoint, "otlp-endpoint", "", "OTLP/HTTP collector host:port; tracing is off when empty")
	flags.BoolVar(&opts.otlpInsecure, "otlp-insecure", false, "Send traces without TLS")

	root.AddCommand(newRunCommand(opts))
	return root
}
