// =============================================================================
// ROOT COMMAND - TXNCTL ENTRY POINT
// =============================================================================
//
// GLOBAL FLAGS:
//   --server, -s    Server URL (default: http://localhost:8080)
//   --output, -o    Output format: table, json, yaml (default: table)
//   --timeout       Request timeout in seconds (default: 10)
//
// =============================================================================

package cmd

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"txncore/internal/cli"
)

var (
	serverFlag  string
	outputFlag  string
	timeoutFlag int

	client    *cli.Client
	formatter *cli.Formatter
)

var rootCmd = &cobra.Command{
	Use:   "goqueue-txnctl",
	Short: "Admin CLI for the txncore transaction coordinator",
	Long: `goqueue-txnctl - operate on a running txncore broker's transaction admin plane.

  • List and describe in-flight and recently completed transactions
  • Force-abort a transaction the coordinator has lost track of
  • Inspect topics and broker health

Use "goqueue-txnctl [command] --help" for more information about a command.`,
	PersistentPreRunE: initializeClient,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverFlag, "server", "s", "",
		"Server URL (env: GOQUEUE_TXNCTL_SERVER)")
	rootCmd.PersistentFlags().StringVarP(&outputFlag, "output", "o", "table",
		"Output format: table, json, yaml")
	rootCmd.PersistentFlags().IntVar(&timeoutFlag, "timeout", 10,
		"Request timeout in seconds")

	rootCmd.AddCommand(listTransactionsCmd)
	rootCmd.AddCommand(describeTransactionCmd)
	rootCmd.AddCommand(abortTransactionCmd)
	rootCmd.AddCommand(topicsCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(versionCmd)
}

func initializeClient(c *cobra.Command, args []string) error {
	if c.Name() == "version" {
		return nil
	}

	server := serverFlag
	if server == "" {
		server = os.Getenv("GOQUEUE_TXNCTL_SERVER")
	}
	if server == "" {
		server = "http://localhost:8080"
	}

	client = cli.NewClient(cli.ClientConfig{
		ServerURL: server,
		Timeout:   time.Duration(timeoutFlag) * time.Second,
	})

	outputFormat, err := cli.ParseOutputFormat(outputFlag)
	if err != nil {
		return err
	}
	formatter = cli.NewFormatter(outputFormat)
	return nil
}

func getContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), time.Duration(timeoutFlag)*time.Second)
}

func handleError(err error) error {
	cli.PrintError("%v", err)
	return err
}
