package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-framegate/internal/httpc"
	"github.com/teslashibe/go-framegate/pkg/pipeline"
	"github.com/teslashibe/go-framegate/pkg/web"
)

func newCtlCmd() *cobra.Command {
	var api string
	cmd := &cobra.Command{
		Use:   "ctl",
		Short: "Inspect and configure a running pipeline over its HTTP API",
	}
	cmd.PersistentFlags().StringVar(&api, "api", "http://localhost:8080", "Dashboard base URL")

	endpoint := func(path string) string {
		return strings.TrimRight(api, "/") + "/api" + path
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Show the session and classifier configuration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				var st web.Status
				if err := httpc.GetJSON(cmd.Context(), endpoint("/status"), &st); err != nil {
					return err
				}
				session := st.Session
				if session == "" {
					session = "none"
				}
				fmt.Printf("session: %s\ndevice:  %s\nthreads: %s\nclients: %d\n",
					session, st.Config.Device, st.Config.Label, st.Clients)
				if st.Last != nil {
					fmt.Printf("last:    #%d %s in %s\n", st.Last.Frame, st.Last.FrameSize, st.Last.Inference)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "stats",
			Short: "Show pipeline counters",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				var body struct {
					Stats pipeline.Stats `json:"stats"`
				}
				if err := httpc.GetJSON(cmd.Context(), endpoint("/stats"), &body); err != nil {
					return err
				}
				st := body.Stats
				fmt.Printf("admitted %d, dropped %d (%.1f%%), processed %d, failed %d, in flight %v\n",
					st.Admitted, st.Dropped, 100*st.DropRate(), st.Processed, st.Failed, st.InFlight)
				return nil
			},
		},
		&cobra.Command{
			Use:   "device CPU|GPU|NNAPI",
			Short: "Select the compute device",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return printChange(cmd.Context(), endpoint("/config"), map[string]interface{}{"device": args[0]})
			},
		},
		&cobra.Command{
			Use:   "threads N|inc|dec",
			Short: "Set, increment or decrement the thread count",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				switch args[0] {
				case "inc", "dec":
					return printChange(cmd.Context(), endpoint("/threads/"+args[0]), nil)
				}
				n, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("threads must be a number, inc or dec: %q", args[0])
				}
				return printChange(cmd.Context(), endpoint("/config"), map[string]interface{}{"threads": n})
			},
		},
	)
	return cmd
}

func printChange(ctx context.Context, url string, body interface{}) error {
	var resp struct {
		Changed bool           `json:"changed"`
		Config  web.ConfigView `json:"config"`
	}
	if err := httpc.PostJSON(ctx, url, body, &resp); err != nil {
		return err
	}
	state := "unchanged"
	if resp.Changed {
		state = "updated"
	}
	fmt.Printf("%s: device %s, threads %s\n", state, resp.Config.Device, resp.Config.Label)
	return nil
}
