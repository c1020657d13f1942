// =============================================================================
// TRANSACTION COMMANDS - list-transactions, describe-transaction,
// abort-transaction
// =============================================================================
//
// USAGE:
//   goqueue-txnctl list-transactions [--state Ongoing]
//   goqueue-txnctl describe-transaction <transactional-id>
//   goqueue-txnctl abort-transaction <transactional-id>
//
// =============================================================================

package cmd

import (
	"github.com/spf13/cobra"

	"txncore/internal/cli"
)

var listTransactionsStateFlag string

var listTransactionsCmd = &cobra.Command{
	Use:   "list-transactions",
	Short: "List transactional producers known to the broker",
	Long: `List every transactional producer the coordinator knows about, optionally
narrowed to one state (Empty, Ongoing, PrepareCommit, PrepareAbort,
CompleteCommit, CompleteAbort, Dead).`,
	RunE: func(c *cobra.Command, args []string) error {
		ctx, cancel := getContext()
		defer cancel()

		resp, err := client.ListTransactions(ctx, listTransactionsStateFlag)
		if err != nil {
			return handleError(err)
		}
		return formatter.FormatTransactions(resp.Transactions)
	},
}

var describeTransactionCmd = &cobra.Command{
	Use:   "describe-transaction <transactional-id>",
	Short: "Show full metadata for one transactional producer",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		ctx, cancel := getContext()
		defer cancel()

		detail, err := client.DescribeTransaction(ctx, args[0])
		if err != nil {
			return handleError(err)
		}
		return formatter.FormatTransactionDetail(detail)
	},
}

var abortTransactionCmd = &cobra.Command{
	Use:   "abort-transaction <transactional-id>",
	Short: "Force-abort the transaction currently open for a transactional id",
	Long: `Force-abort writes abort markers for every partition the transaction
touched and releases the producer back to the Empty state, for operators
recovering from a producer that died mid-transaction.`,
	Args: cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		ctx, cancel := getContext()
		defer cancel()

		if err := client.AbortTransaction(ctx, args[0]); err != nil {
			return handleError(err)
		}
		cli.PrintSuccess("aborted %s", args[0])
		return nil
	},
}

func init() {
	listTransactionsCmd.Flags().StringVar(&listTransactionsStateFlag, "state", "",
		"filter by transaction state")
}
