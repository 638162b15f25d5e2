package main

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/entrhq/browseragent/pkg/agent/actor"
	"github.com/entrhq/browseragent/pkg/api"
	"github.com/entrhq/browseragent/pkg/browser"
	appconfig "github.com/entrhq/browseragent/pkg/config"
	"github.com/entrhq/browseragent/pkg/logging"
	"github.com/entrhq/browseragent/pkg/secrets"
	"github.com/entrhq/browseragent/pkg/supervisor"
	"github.com/entrhq/browseragent/pkg/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const defaultContextID = "default"

var cliLog = logging.MustLogger("cli")

func newRunCommand(root *rootOptions) *cobra.Command {
	tf := &appconfig.TaskFile{}
	var taskFile string

	cmd := &cobra.Command{
		Use:   "run [task]",
		Short: "Run one browser task and print its outcome",
		Example: `  browser-agent run "open example.com and report the page title"
  browser-agent run --file task.yaml
  browser-agent run --serve :8089 "log in to the dashboard"
  browser-agent run --takeover --serve :8089`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job := tf
			if taskFile != "" {
				loaded, err := appconfig.LoadTaskFile(taskFile)
				if err != nil {
					return err
				}
				job = loaded
			}
			if len(args) == 1 {
				job.Task = args[0]
			}
			if err := job.Validate(); err != nil {
				return err
			}
			return runTask(cmd.Context(), root, job)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&taskFile, "file", "f", "", "YAML task file")
	flags.StringVar(&tf.Context, "context", defaultContextID, "Context id owning the browser")
	flags.BoolVar(&tf.Reset, "reset", false, "Start from a fresh browser")
	flags.BoolVar(&tf.Takeover, "takeover", false, "Hand the browser to the operator instead of running a task")
	flags.DurationVar(&tf.Timeout, "timeout", 0, "Overall task timeout (default from config)")
	flags.StringVar(&tf.Serve, "serve", "", "Serve the control API on this address while the task runs")
	return cmd
}

func runTask(ctx context.Context, root *rootOptions, job *appconfig.TaskFile) error {
	if err := appconfig.Initialize(root.configPath); err != nil {
		return fmt.Errorf("failed to initialize configuration: %w", err)
	}
	settings := appconfig.BrowserSettingsOrDefault()
	if job.Timeout > 0 {
		settings.Timeout = job.Timeout
	}

	provider, err := appconfig.BuildProvider(root.model, root.baseURL, root.apiKey, defaultModel)
	if err != nil {
		return err
	}

	secretStore, err := secrets.Load(settings.SecretsFile)
	if err != nil {
		return err
	}

	tp, err := tracing.NewProvider(ctx, tracing.Config{
		Enabled:  root.otlpEndpoint != "",
		Endpoint: root.otlpEndpoint,
		Insecure: root.otlpInsecure,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			cliLog.Warnf("Failed to flush traces: %v", err)
		}
	}()

	launcher := browser.NewPlaywrightLauncher()
	defer func() {
		if err := launcher.Stop(); err != nil {
			cliLog.Warnf("Failed to stop playwright: %v", err)
		}
	}()
	manager := browser.NewManager(launcher, settings)

	sup := supervisor.New(manager, provider, settings,
		supervisor.WithSecrets(secretStore),
		supervisor.WithSink(tp.Sink()),
		supervisor.WithMetrics(supervisor.DefaultMetrics()),
	)

	actors := actor.NewRegistry()
	defer actors.CloseAll()
	a := actors.GetOrCreate(job.Context)
	a.NextIteration()

	if job.Takeover && !job.Reset {
		// a fresh process has no browser yet; open one to hand over
		state := manager.NewState(a.ID())
		supervisor.BindState(a, manager, state)
		if err := manager.EnsureSession(ctx, state); err != nil {
			return err
		}
	}

	out := newRenderer(os.Stdout)
	tool := supervisor.NewBrowserAgentTool(sup, manager, a, out)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	if job.Serve != "" {
		server := api.NewServer(actors, prometheus.DefaultGatherer)
		g.Go(func() error {
			return server.ListenAndServe(gctx, job.Serve)
		})
	}

	g.Go(func() error {
		// stop serving once the task is over, unless the operator holds the browser
		defer func() {
			if !job.Takeover || job.Serve == "" {
				cancel()
			}
		}()

		text, meta, err := tool.Execute(gctx, toolArgs(job))
		if err != nil {
			return err
		}
		out.Outcome(text, meta)
		if job.Takeover {
			copyDevToolsLink(meta)
			if job.Serve != "" {
				out.Notice(fmt.Sprintf("Serving control API on %s, press Ctrl+C to stop", job.Serve))
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// toolArgs builds the browser_agent argument block for job.
func toolArgs(job *appconfig.TaskFile) []byte {
	var b strings.Builder
	b.WriteString("<arguments><message>")
	_ = xml.EscapeText(&b, []byte(job.Task))
	b.WriteString("</message>")
	fmt.Fprintf(&b, "<reset>%t</reset><takeover>%t</takeover>", job.Reset, job.Takeover)
	b.WriteString("</arguments>")
	return []byte(b.String())
}

func copyDevToolsLink(meta map[string]interface{}) {
	link, _ := meta["devtools_link"].(string)
	if link == "" {
		return
	}
	if err := clipboard.WriteAll(link); err != nil {
		cliLog.Debugf("Clipboard unavailable: %v", err)
		return
	}
	cliLog.Infof("DevTools link copied to clipboard")
}
