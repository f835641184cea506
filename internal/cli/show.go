package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(showCmd)
}

var showCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show a job's full state",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func runShow(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("job id must be an integer: %q", args[0])
	}

	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	job, err := d.Ledger.Job(id)
	if err != nil {
		return err
	}

	fmt.Printf("Job %d [%s]\n", job.ID, job.Status)
	fmt.Printf("  Description: %s\n", job.Description)
	fmt.Printf("  Category:    %s\n", job.Category)
	fmt.Printf("  Poster:      %s\n", job.Poster)
	fmt.Printf("  Worker:      %s\n", orDash(job.Worker))
	fmt.Printf("  Payment:     %d (stake required %d, staked %d)\n",
		job.Payment, job.StakeRequired, job.WorkerStake)
	fmt.Printf("  Created:     %s\n", job.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("  Deadline:    %s\n", job.Deadline.Format("2006-01-02 15:04:05"))
	if !job.SubmittedAt.IsZero() {
		fmt.Printf("  Submitted:   %s\n", job.SubmittedAt.Format("2006-01-02 15:04:05"))
	}
	if job.Result != "" {
		fmt.Printf("  Result:      %s\n", job.Result)
	}
	return nil
}
