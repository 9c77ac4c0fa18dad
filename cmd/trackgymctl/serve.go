package main

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/spf13/cobra"

	"trackgym/internal/env"
	"trackgym/internal/platform"
	"trackgym/internal/rpc"
)

const rpcListener = "rpc"

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		addr        string
		seed        int64
		maxRestarts int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose the environment to an external trainer over gRPC",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			params, err := opts.parameters()
			if err != nil {
				return err
			}
			srv, err := rpc.NewServer(params, env.WithSeed(seed))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			supervisor := platform.NewSupervisor(platform.RestartPolicy{MaxRestarts: maxRestarts})
			err = supervisor.Run(cmd.Context(), platform.Listener{
				Name: rpcListener,
				Addr: addr,
				Serve: func(ctx context.Context, lis net.Listener) error {
					return rpc.Serve(ctx, lis, srv)
				},
				OnBound: func(bound net.Addr, restarts int) {
					if restarts == 0 {
						fmt.Fprintf(out, "serving %s on %s\n", rpc.ServiceName, bound)
						return
					}
					fmt.Fprintf(out, "serving %s on %s after %d restarts\n", rpc.ServiceName, bound, restarts)
				},
			})
			if errors.Is(err, platform.ErrListenerFailed) {
				st, _ := supervisor.Status(rpcListener)
				return fmt.Errorf("rpc server failed after %d restarts (%d bind failures): %s", st.Restarts, st.BindFailures, st.LastError)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:50051", "listen address")
	cmd.Flags().Int64Var(&seed, "seed", 1, "initial controller seed")
	cmd.Flags().IntVar(&maxRestarts, "max-restarts", 5, "listener restarts before giving up; 0 retries forever")
	return cmd
}
