// =============================================================================
// TOPIC AND HEALTH COMMANDS
// =============================================================================

package cmd

import (
	"strconv"

	"github.com/spf13/cobra"

	"txncore/internal/cli"
)

var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "List topics on the broker",
	RunE: func(c *cobra.Command, args []string) error {
		ctx, cancel := getContext()
		defer cancel()

		resp, err := client.ListTopics(ctx)
		if err != nil {
			return handleError(err)
		}
		return formatter.FormatTopics(resp.Topics)
	},
}

var createTopicPartitionsFlag int

var createTopicCmd = &cobra.Command{
	Use:   "create-topic <name>",
	Short: "Create a topic",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		ctx, cancel := getContext()
		defer cancel()

		if err := client.CreateTopic(ctx, args[0], createTopicPartitionsFlag); err != nil {
			return handleError(err)
		}
		cli.PrintSuccess("created topic %s with %s partitions", args[0], strconv.Itoa(createTopicPartitionsFlag))
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check broker liveness",
	RunE: func(c *cobra.Command, args []string) error {
		ctx, cancel := getContext()
		defer cancel()

		health, err := client.Health(ctx)
		if err != nil {
			return handleError(err)
		}
		return formatter.FormatHealth(health)
	},
}

func init() {
	createTopicCmd.Flags().IntVar(&createTopicPartitionsFlag, "partitions", 1, "number of partitions")
	topicsCmd.AddCommand(createTopicCmd)
}
