package root

import (
	"fmt"
	"os"

	"github.com/heroiclabs/nakama-common/runtime"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"visforge/cmd/forgecheck/ui"
	"visforge/forge"
)

const Version = "0.1.0"

var (
	verbose bool
	logger  runtime.Logger = forge.NewNopLogger()
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "forgecheck",
		Short:         "forgecheck: content tooling for visforge game data and saves",
		Long:          "forgecheck validates visforge game data, prints unlock trees, inspects and moves saves and simulates play for balancing.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			l, err := newLogger(verbose)
			if err != nil {
				return err
			}
			logger = forge.NewZapLogger(l)
			return nil
		},
	}
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log engine decisions to stderr")

	cmd.Version = Version
	cmd.SetVersionTemplate("{{.Name}} v{{.Version}}\n")

	cmd.AddCommand(
		newValidateCmd(),
		newTreeCmd(),
		newSaveCmd(),
		newSimulateCmd(),
	)
	return cmd
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.Bad.Render(ui.IconError+" "+err.Error()))
		os.Exit(1)
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	cfg.OutputPaths = []string{"stderr"}
	cfg.DisableStacktrace = true
	return cfg.Build()
}

// loadData loads game data from path, or the embedded content when path is
// empty. Content problems are returned alongside usable data.
func loadData(path string) (*forge.GameData, []error, error) {
	if path == "" {
		return forge.DefaultGameData()
	}
	return forge.LoadGameData(path)
}
