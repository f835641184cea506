package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	agentCmd.Flags().Int64Var(&agentDeposit, "deposit", 0, "Deposit credits before showing the account")
	rootCmd.AddCommand(agentCmd)
}

var agentDeposit int64

var agentCmd = &cobra.Command{
	Use:   "agent <address>",
	Short: "Show an agent's stats and balance",
	Args:  cobra.ExactArgs(1),
	RunE:  runAgent,
}

func runAgent(cmd *cobra.Command, args []string) error {
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	address := args[0]
	if agentDeposit > 0 {
		if err := d.Ledger.Deposit(address, agentDeposit); err != nil {
			return err
		}
	}

	balance, err := d.Ledger.Balance(address)
	if err != nil {
		return err
	}
	fmt.Printf("Agent %s\n", address)
	fmt.Printf("  Balance:    %d credits\n", balance)

	stats, err := d.Ledger.Agent(address)
	if err != nil {
		// Never interacted with the ledger yet — balance only.
		return nil
	}
	fmt.Printf("  Reputation: %d\n", stats.Reputation)
	fmt.Printf("  Posted:     %d  Completed: %d  Failed: %d\n",
		stats.JobsPosted, stats.JobsCompleted, stats.JobsFailed)
	fmt.Printf("  Earned:     %d  Spent: %d\n", stats.TotalEarned, stats.TotalSpent)
	return nil
}
