package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
)

// BaseURLFunc provides the base HTTP API URL (e.g., from env or flag).
type BaseURLFunc func() string

// NewJobsCommand constructs the `jobs` command group and subcommands.
func NewJobsCommand(baseURL BaseURLFunc) *cobra.Command {
	jobsCmd := &cobra.Command{Use: "jobs", Short: "Job operations"}
	jobsCmd.AddCommand(
		newJobsStatusCommand(baseURL),
		newJobsStatsCommand(baseURL),
		newJobsCleanupCommand(baseURL),
		newJobsTTLCommand(baseURL),
	)
	return jobsCmd
}

// newJobsStatusCommand constructs the `jobs status` subcommand.
func newJobsStatusCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the status of one job",
		RunE: func(cmd *cobra.Command, _ []string) error {
			queue, _ := cmd.Flags().GetString("queue")
			id, _ := cmd.Flags().GetString("id")
			org, _ := cmd.Flags().GetString("org")
			if queue == "" || id == "" {
				return fmt.Errorf("--queue and --id are required")
			}
			path := fmt.Sprintf("/v1/jobs/%s/%s/status", queue, id)
			return getJSON(cmd, baseURL, path, org)
		},
	}
	cmd.Flags().String("queue", "", "Queue name (e.g. bulk-upload-mechanics)")
	cmd.Flags().String("id", "", "Job id")
	cmd.Flags().String("org", "", "Organization id the job belongs to")
	return cmd
}

// newJobsStatsCommand constructs the `jobs stats` subcommand.
func newJobsStatsCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show queue statistics (all queues unless --queue is set)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			queue, _ := cmd.Flags().GetString("queue")
			path := "/v1/queues/stats"
			if queue != "" {
				path = fmt.Sprintf("/v1/queues/%s/stats", queue)
			}
			return getJSON(cmd, baseURL, path, "")
		},
	}
	cmd.Flags().String("queue", "", "Limit to one queue")
	return cmd
}

// newJobsCleanupCommand constructs the `jobs cleanup` subcommand.
func newJobsCleanupCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Trigger a TTL sweep now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			org, _ := cmd.Flags().GetString("org")
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost,
				baseURL()+"/v1/jobs/cleanup", bytes.NewReader(nil))
			if err != nil {
				return err
			}
			if org != "" {
				req.Header.Set("X-Org-ID", org)
			}
			return doPrint(cmd, req)
		},
	}
	cmd.Flags().String("org", "", "Identity recorded as the trigger")
	return cmd
}

// newJobsTTLCommand constructs the `jobs ttl` subcommand.
func newJobsTTLCommand(baseURL BaseURLFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "ttl",
		Short: "Show the active retention policy",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return getJSON(cmd, baseURL, "/v1/jobs/ttl/config", "")
		},
	}
}

func getJSON(cmd *cobra.Command, baseURL BaseURLFunc, path, org string) error {
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, baseURL()+path, nil)
	if err != nil {
		return err
	}
	if org != "" {
		req.Header.Set("X-Org-ID", org)
	}
	return doPrint(cmd, req)
}

// doPrint executes the request and pretty-prints the JSON response.
func doPrint(cmd *cobra.Command, req *http.Request) error {
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var pretty bytes.Buffer
	if json.Indent(&pretty, body, "", "  ") == nil {
		fmt.Fprintln(cmd.OutOrStdout(), pretty.String())
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), string(body))
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return nil
}
