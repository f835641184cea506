package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/quarry-network/quarry/internal/domain"
)

func init() {
	jobsCmd.Flags().StringVar(&jobsStatus, "status", "", "Filter by status (OPEN, CLAIMED, ...)")
	jobsCmd.Flags().IntVar(&jobsLimit, "limit", 25, "Maximum jobs to list")
	rootCmd.AddCommand(jobsCmd)
}

var (
	jobsStatus string
	jobsLimit  int
)

var jobsCmd = &cobra.Command{
	Use:     "jobs",
	Aliases: []string{"ls"},
	Short:   "List jobs, most recent first",
	RunE:    runJobs,
}

func runJobs(cmd *cobra.Command, args []string) error {
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	jobs, err := d.Ledger.JobsByStatus(domain.JobStatus(jobsStatus), jobsLimit)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Println("No jobs. Run 'quarry post' to create one.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tCATEGORY\tPAYMENT\tPOSTER\tWORKER\tDEADLINE")
	for _, j := range jobs {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%s\t%s\n",
			j.ID, j.Status, j.Category, j.Payment, j.Poster,
			orDash(j.Worker), j.Deadline.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
