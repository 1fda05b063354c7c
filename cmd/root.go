package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/article-harvester/internal/app"
	"github.com/JakeFAU/article-harvester/internal/config"
	"github.com/JakeFAU/article-harvester/internal/logging"
)

// appKeyType is the key for storing the App in the command context.
type appKeyType string

const appKey appKeyType = "app"

// newApp is the application factory. It is a variable so tests can swap
// the logger or the build step.
var newApp = func(ctx context.Context, cfgFile string) (*app.App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return app.Build(ctx, cfg, logger)
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "harvester",
		Short: "Fetches web pages with escalation to a headless browser and saves them as Markdown.",
		Long: `harvester turns article URLs into clean Markdown documents. Each URL is
fetched over plain HTTP first; pages that are blocked, empty or built
client-side are rendered in headless Chrome instead. Every URL yields a
document, even if only a placeholder.`,
		SilenceUsage: true,

		// Builds the app after flags are parsed and before the subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, JSON or TOML)")

	cmd.AddCommand(newExtractCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newDiscoverCmd())
	for _, sub := range cmd.Commands() {
		closeAfterRun(sub)
	}
	return cmd
}

// closeAfterRun makes sub close the app once RunE returns. Cobra skips
// post-run hooks when RunE fails, so teardown cannot live there.
func closeAfterRun(sub *cobra.Command) {
	run := sub.RunE
	if run == nil {
		return
	}
	sub.RunE = func(cmd *cobra.Command, args []string) error {
		err := run(cmd, args)
		if appInstance, rerr := resolveApp(cmd.Context()); rerr == nil {
			if cerr := appInstance.Close(); cerr != nil {
				err = errors.Join(err, fmt.Errorf("close application: %w", cerr))
			}
		}
		return err
	}
}

func resolveApp(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
