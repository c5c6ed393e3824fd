package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewJobCmd создаёт группу команд для управления jobs.
func NewJobCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Manage jobs",
	}

	cmd.AddCommand(
		newJobListCmd(clientFn, outputFn),
		newJobShowCmd(clientFn, outputFn),
		newJobRunCmd(clientFn, outputFn),
		newJobStartCmd(clientFn, outputFn),
		newJobStopCmd(clientFn, outputFn),
		newJobRemoveCmd(clientFn, outputFn),
	)

	return cmd
}

func newJobListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			jobs, err := client.ListJobs()
			if err != nil {
				return err
			}

			headers := []string{"NAME", "SCHEDULE", "STARTED", "RUNNING", "NEXT", "LAST_RESULT"}
			rows := make([][]string, len(jobs))
			for i, j := range jobs {
				rows[i] = []string{
					j.Name, j.Schedule, strconv.FormatBool(j.Started),
					strconv.Itoa(j.Running), orDash(j.NextExecution), formatResult(j.LastResult),
				}
			}

			out.Print(headers, rows, jobs)
			return nil
		},
	}
}

func newJobShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show NAME",
		Short: "Show job details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			j, err := client.GetJob(args[0])
			if err != nil {
				return err
			}

			maxRunning := "unlimited"
			if j.MaxRunning > 0 {
				maxRunning = strconv.Itoa(j.MaxRunning)
			}
			out.KeyValues([][2]string{
				{"Name", j.Name},
				{"Schedule", j.Schedule},
				{"Concurrency", strconv.Itoa(j.Concurrency)},
				{"Max running", maxRunning},
				{"Restart timeout", orDash(j.Timeout)},
				{"Parameters", formatParams(j.Parameters)},
				{"Started", strconv.FormatBool(j.Started)},
				{"Running", strconv.Itoa(j.Running)},
				{"Next execution", orDash(j.NextExecution)},
				{"Upcoming runs", orDash(strings.Join(j.UpcomingRuns, ", "))},
				{"Last started", orDash(j.LastStarted)},
				{"Last finished", orDash(j.LastFinished)},
				{"Last result", formatResult(j.LastResult)},
			}, j)
			return nil
		},
	}
}

func newJobRunCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var params []string
	var delay string

	cmd := &cobra.Command{
		Use:   "run NAME",
		Short: "Run a job once",
		Long: "Run a job once outside its schedule. Without --delay the command waits for the\n" +
			"handler and prints its result. --param values are parsed as JSON when possible.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			req := RunJobRequest{Delay: delay}
			if len(params) > 0 {
				parsed, err := parseParams(params)
				if err != nil {
					return err
				}
				req.Parameters = parsed
			}

			result, err := client.RunJob(args[0], req)
			if err != nil {
				return err
			}

			if result.Scheduled {
				out.Success(fmt.Sprintf("Job %s scheduled in %s", args[0], result.Delay))
				return nil
			}
			out.Print(
				[]string{"JOB", "STATUS", "RESULT"},
				[][]string{{args[0], result.Status, orDash(result.HandlerResult)}},
				result,
			)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&params, "param", nil, "Parameter as KEY=VALUE (repeatable)")
	cmd.Flags().StringVar(&delay, "delay", "", "Delay before running (e.g. '30s')")

	return cmd
}

func newJobStartCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "start NAME",
		Short: "Start a job's timer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := clientFn().StartJob(args[0]); err != nil {
				return err
			}
			outputFn().Success(fmt.Sprintf("Job started: %s", args[0]))
			return nil
		},
	}
}

func newJobStopCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "stop NAME",
		Short: "Stop a job's timer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := clientFn().StopJob(args[0]); err != nil {
				return err
			}
			outputFn().Success(fmt.Sprintf("Job stopped: %s", args[0]))
			return nil
		},
	}
}

func newJobRemoveCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "remove NAME",
		Short: "Cancel a job and delete its record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := clientFn().RemoveJob(args[0]); err != nil {
				return err
			}
			outputFn().Success(fmt.Sprintf("Job removed: %s", args[0]))
			return nil
		},
	}
}

// parseParams разбирает KEY=VALUE. VALUE, который разбирается как JSON
// (число, bool, объект), передаётся как есть, иначе как строка.
func parseParams(kvs []string) (map[string]any, error) {
	out := make(map[string]any, len(kvs))
	for _, kv := range kvs {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid param format %q, expected KEY=VALUE", kv)
		}
		var v any
		if err := json.Unmarshal([]byte(value), &v); err != nil {
			v = value
		}
		out[key] = v
	}
	return out, nil
}

func formatResult(r *JobResult) string {
	if r == nil {
		return "-"
	}
	if r.HandlerResult == "" {
		return r.Status
	}
	return r.Status + ": " + r.HandlerResult
}

func formatParams(params map[string]any) string {
	if len(params) == 0 {
		return "-"
	}
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Sprint(params)
	}
	return string(data)
}
