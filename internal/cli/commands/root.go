package commands

import (
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/pagecraft/pagecraft/internal/cli/ui"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = "unknown"
)

// globalFlags are the persistent flags shared by every command
type globalFlags struct {
	configPath string
	noColor    bool
}

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "pagecraft",
		Short: "Low-code page builder server and data model tooling",
		Long: color.CyanString(`pagecraft - visual page builder

Serves the page editor and runtime over HTTP and websockets, and manages the
data models behind runtime tables and forms.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flags.noColor {
				color.NoColor = true
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Config file (default ./pagecraft.yaml)")
	rootCmd.PersistentFlags().BoolVar(&flags.noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(NewVersionCommand())
	rootCmd.AddCommand(newServeCommand(flags))
	rootCmd.AddCommand(newDBCommand(flags))
	rootCmd.AddCommand(newModelsCommand(flags))
	rootCmd.AddCommand(newDiffCommand(flags))
	rootCmd.AddCommand(newPublishCommand(flags))
	rootCmd.AddCommand(newHistoryCommand(flags))

	return rootCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			goVer := GoVersion
			if goVer == "unknown" {
				goVer = runtime.Version()
			}
			ui.NewPrinter(cmd.OutOrStdout(), color.NoColor).KeyValues([][2]string{
				{"pagecraft version", Version},
				{"Git commit", GitCommit},
				{"Build date", BuildDate},
				{"Go version", goVer},
			})
		},
	}
}

// Execute runs the root command
func Execute() error {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		errorColor := color.New(color.FgRed, color.Bold)
		errorColor.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
		return err
	}
	return nil
}
