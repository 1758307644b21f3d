package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/wikiprobe/internal/config"
	"github.com/xkilldash9x/wikiprobe/internal/launcher"
	"github.com/xkilldash9x/wikiprobe/internal/observability"
	"github.com/xkilldash9x/wikiprobe/internal/scenario"
)

// errScenariosFailed is returned when a run completes with failed scenarios.
var errScenariosFailed = errors.New("scenarios failed")

const shutdownTimeout = 30 * time.Second

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringSlice("only", nil, "run only these scenarios (a group name selects all its queries)")
	cmd.Flags().String("queries", "", "YAML file with web and mobile search queries")
	cmd.Flags().String("artifacts", "", "directory for failure artifacts (empty disables capture)")
	cmd.Flags().Bool("metrics", false, "write Prometheus metrics to the textfile after the run")
	bindFlag(cmd, "only", "run.only")
	bindFlag(cmd, "queries", "run.queries_file")
	bindFlag(cmd, "artifacts", "run.artifacts_dir")
	bindFlag(cmd, "metrics", "metrics.enabled")
}

func addWebFlags(cmd *cobra.Command) {
	cmd.Flags().String("browser", config.BrowserChrome, "chrome, edge, firefox, webkit, remote or sim")
	cmd.Flags().Bool("headless", true, "run the browser without a window")
	cmd.Flags().String("remote-url", "", "W3C WebDriver endpoint for --browser=remote")
	bindFlag(cmd, "browser", "web.browser")
	bindFlag(cmd, "headless", "web.headless")
	bindFlag(cmd, "remote-url", "web.remote_url")
}

func addMobileFlags(cmd *cobra.Command) {
	cmd.Flags().String("backend", config.MobileBackendAppium, "appium or sim")
	cmd.Flags().String("appium-url", "", "Appium server URL")
	cmd.Flags().String("device-name", "", "device or emulator name")
	cmd.Flags().String("platform-version", "", "Android version of the device")
	cmd.Flags().String("apk", "", "path of the APK to install")
	bindFlag(cmd, "backend", "mobile.backend")
	bindFlag(cmd, "appium-url", "mobile.appium_server_url")
	bindFlag(cmd, "device-name", "mobile.device_name")
	bindFlag(cmd, "platform-version", "mobile.platform_version")
	bindFlag(cmd, "apk", "mobile.apk_path")
}

func newWebCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "web",
		Short: "Run the Wikipedia website scenarios",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSuites(cmd, launcher.KindWeb)
		},
	}
	addWebFlags(cmd)
	addRunFlags(cmd)
	return cmd
}

func newMobileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mobile",
		Short: "Run the Wikipedia Android app scenarios",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSuites(cmd, launcher.KindMobile)
		},
	}
	addMobileFlags(cmd)
	addRunFlags(cmd)
	return cmd
}

func newAllCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "all",
		Short: "Run the web and mobile scenarios side by side",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSuites(cmd, launcher.KindWeb, launcher.KindMobile)
		},
	}
	addWebFlags(cmd)
	addMobileFlags(cmd)
	addRunFlags(cmd)
	return cmd
}

// runSuites runs the requested suites concurrently, prints a summary and
// fails when any scenario failed.
func runSuites(cmd *cobra.Command, kinds ...launcher.Kind) error {
	ctx := cmd.Context()
	cfg, err := configFrom(ctx)
	if err != nil {
		return err
	}
	runID := uuid.NewString()
	logger := observability.GetLogger().With(zap.String("run_id", runID))

	queries, err := scenario.LoadQueries(cfg.Run.QueriesFile)
	if err != nil {
		return err
	}

	shutdownTracing, err := initTracing(cmd, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("Failed to flush traces", zap.Error(err))
		}
	}()

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics()
	}

	mgr := launcher.NewManager(cfg, logger)
	defer func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := mgr.Shutdown(sctx); err != nil {
			logger.Warn("Session shutdown reported errors", zap.Error(err))
		}
	}()

	runner := scenario.NewRunner(mgr, logger,
		scenario.WithMetrics(metrics),
		scenario.WithQueries(queries),
		scenario.WithOnly(cfg.Run.Only...),
	)

	if err := runner.CheckSelection(kinds...); err != nil {
		return err
	}

	logger.Info("Starting run", zap.String("version", Version), zap.Int("suites", len(kinds)))
	reports := make([]*scenario.Report, len(kinds))
	suiteErrs := make([]error, len(kinds))
	// Suites are independent; one failing to start must not stop the other.
	var g errgroup.Group
	for i, kind := range kinds {
		g.Go(func() error {
			var err error
			switch kind {
			case launcher.KindWeb:
				reports[i], err = runner.RunWeb(ctx)
			case launcher.KindMobile:
				reports[i], err = runner.RunMobile(ctx)
			}
			suiteErrs[i] = err
			return nil
		})
	}
	_ = g.Wait()

	writeSummary(cmd.OutOrStdout(), reports, suiteErrs)

	if err := metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
		logger.Warn("Failed to write metrics", zap.Error(err))
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := errors.Join(suiteErrs...); err != nil {
		return err
	}
	failed, total := 0, 0
	for _, r := range reports {
		if r == nil {
			continue
		}
		total += len(r.Results)
		failed += len(r.Failed())
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", errScenariosFailed, failed, total)
	}
	return nil
}

// initTracing exports spans to stdout or to the configured file.
func initTracing(cmd *cobra.Command, tc config.TracingConfig) (observability.ShutdownFunc, error) {
	if !tc.Enabled {
		return observability.InitTracing(tc, io.Discard)
	}
	if tc.Output == "" || tc.Output == "stdout" {
		return observability.InitTracing(tc, cmd.OutOrStdout())
	}
	f, err := os.Create(tc.Output)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace output: %w", err)
	}
	shutdown, err := observability.InitTracing(tc, f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return func(ctx context.Context) error {
		return errors.Join(shutdown(ctx), f.Close())
	}, nil
}

func writeSummary(w io.Writer, reports []*scenario.Report, errs []error) {
	for i, r := range reports {
		if r == nil {
			continue
		}
		header := r.Suite
		if r.Backend != "" {
			header += " (" + r.Backend + ")"
		}
		fmt.Fprintf(w, "%s\n", header)
		for _, res := range r.Results {
			status := "PASS"
			if !res.Passed() {
				status = "FAIL"
			}
			fmt.Fprintf(w, "  %s  %-40s %s\n", status, res.Name, res.Duration.Round(time.Millisecond))
			if !res.Passed() {
				fmt.Fprintf(w, "        %s\n", firstLine(res.Err.Error()))
				for _, a := range res.Artifacts {
					fmt.Fprintf(w, "        artifact: %s\n", a)
				}
			}
		}
		if errs[i] != nil {
			fmt.Fprintf(w, "  ERROR %s\n", errs[i])
		}
		fmt.Fprintf(w, "  %d passed, %d failed\n", len(r.Results)-len(r.Failed()), len(r.Failed()))
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
