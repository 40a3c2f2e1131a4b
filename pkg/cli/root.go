// Package cli implements the lake command-line interface. Commands open the
// catalogue and storage backend described by the configuration and run
// against them in-process.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"lakehouse/internal/domain"
)

var (
	version = "dev"
	commit  = "none"
)

// Execute runs the CLI.
func Execute() int {
	return run(newRootCmd(), os.Stdout, os.Stderr)
}

func run(rootCmd *cobra.Command, stdout, stderr io.Writer) int {
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	if err := rootCmd.Execute(); err != nil {
		output, _ := rootCmd.PersistentFlags().GetString("output")
		if output == outputJSON {
			_ = PrintJSON(stdout, map[string]string{
				"error": err.Error(),
				"kind":  errorKind(err),
			})
		} else {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

// errorKind names the class of a domain error for machine-readable output.
func errorKind(err error) string {
	var (
		notFound   *domain.NotFoundError
		duplicate  *domain.DuplicateTableError
		validation *domain.ValidationError
		partition  *domain.UnknownPartitionColumnError
		ingestErr  *domain.IngestionError
		storageErr *domain.StorageError
		corrupt    *domain.CorruptSchemaError
	)
	switch {
	case errors.As(err, &notFound):
		return "not_found"
	case errors.As(err, &duplicate):
		return "duplicate_table"
	case errors.As(err, &validation):
		return "validation"
	case errors.As(err, &partition):
		return "unknown_partition_column"
	case errors.As(err, &ingestErr):
		return string(ingestErr.Kind)
	case errors.As(err, &storageErr):
		return string(storageErr.Kind)
	case errors.As(err, &corrupt):
		return "corrupt_schema"
	default:
		return "internal"
	}
}

func newRootCmd() *cobra.Command {
	var (
		output     string
		configFile string
		envFile    string
		verbose    bool
	)

	rootCmd := &cobra.Command{
		Use:           "lake",
		Short:         "Data lake CLI",
		Long:          "Ingest CSV files into Parquet tables and manage the table catalogue.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("output") {
				if v := os.Getenv("LAKE_OUTPUT"); v != "" {
					output = v
				}
			}
			if !cmd.Flags().Changed("config") {
				if v := os.Getenv("LAKE_CONFIG_FILE"); v != "" {
					configFile = v
				}
			}
			return validateOutputFormat(output)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", outputTable, "Output format (table, json, yaml)")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file (environment variables take precedence)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Dotenv file loaded before the environment is read")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level")

	opener := &engineOpener{configFile: &configFile, envFile: &envFile, verbose: &verbose}

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newIngestCmd(opener))
	rootCmd.AddCommand(newIngestAllCmd(opener))
	rootCmd.AddCommand(newTablesCmd(opener))
	rootCmd.AddCommand(newDescribeCmd(opener))
	rootCmd.AddCommand(newSchemaCmd(opener))
	rootCmd.AddCommand(newDropCmd(opener))
	rootCmd.AddCommand(newCompletionCmd())

	return rootCmd
}

func newCompletionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			default:
				return fmt.Errorf("unsupported shell: %s", args[0])
			}
		},
	}
	return cmd
}
