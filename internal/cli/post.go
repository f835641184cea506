package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quarry-network/quarry/internal/domain"
)

func init() {
	postCmd.Flags().StringVar(&postPoster, "poster", "", "Posting agent's address (required)")
	postCmd.Flags().StringVar(&postCategory, "category", "general", "Job category")
	postCmd.Flags().IntVar(&postDeadline, "deadline", 24, "Deadline in hours (1-168)")
	postCmd.Flags().Int64Var(&postPayment, "payment", 0, "Payment in credits (required)")
	postCmd.MarkFlagRequired("poster")
	postCmd.MarkFlagRequired("payment")
	rootCmd.AddCommand(postCmd)
}

var (
	postPoster   string
	postCategory string
	postDeadline int
	postPayment  int64
)

var postCmd = &cobra.Command{
	Use:   "post <description>",
	Short: "Post a new job, locking the payment in escrow",
	Args:  cobra.ExactArgs(1),
	RunE:  runPost,
}

func runPost(cmd *cobra.Command, args []string) error {
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	id, err := d.Ledger.Post(postPoster, args[0], domain.Category(postCategory), postDeadline, postPayment)
	if err != nil {
		return err
	}

	job, err := d.Ledger.Job(id)
	if err != nil {
		return err
	}
	fmt.Printf("Posted job %d: %d credits locked, stake required %d, deadline %s\n",
		id, job.Payment, job.StakeRequired, job.Deadline.Format("2006-01-02 15:04"))
	return nil
}
