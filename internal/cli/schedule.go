package cli

import (
	"strconv"

	"github.com/spf13/cobra"
)

// NewScheduleCmd создаёт группу команд для schedule.
func NewScheduleCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Inspect the schedule",
	}

	cmd.AddCommand(newScheduleStatusCmd(clientFn, outputFn))

	return cmd
}

func newScheduleStatusCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show schedule status and lease holder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			s, err := client.GetSchedule()
			if err != nil {
				return err
			}

			out.KeyValues([][2]string{
				{"Name", s.Name},
				{"Instance", s.InstanceID},
				{"Active", strconv.FormatBool(s.Active)},
				{"Lease holder", orDash(s.LeaseHolder)},
				{"Last alive", orDash(s.LastAlive)},
				{"Running executions", strconv.Itoa(s.Executions)},
				{"Jobs", strconv.Itoa(s.Jobs)},
				{"Started jobs", strconv.Itoa(s.StartedJobs)},
				{"Unexpected errors", strconv.Itoa(s.UnexpectedErrors)},
			}, s)
			return nil
		},
	}
}
