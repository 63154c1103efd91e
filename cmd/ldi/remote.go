package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/encoding/protojson"

	grpcadapter "github.com/simaogato/wealthflow-ldi/internal/adapter/grpc"
)

// remoteFlags address a running `ldi watch`
type remoteFlags struct {
	addr    string
	token   string
	timeout time.Duration
}

func newRemoteCmd() *cobra.Command {
	flags := &remoteFlags{}

	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Call the gRPC API of a running ldi watch",
	}
	cmd.PersistentFlags().StringVar(&flags.addr, "addr", "localhost:8080", "Address of the gRPC server")
	cmd.PersistentFlags().StringVar(&flags.token, "token", "", "API token sent as a bearer token")
	cmd.PersistentFlags().DurationVar(&flags.timeout, "timeout", 2*time.Minute, "Deadline for the call")

	list := &cobra.Command{
		Use:   "list",
		Short: "List the portfolios the server knows",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, ctx, done, err := dialRemote(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer done()

			ids, err := client.ListPortfolios(ctx)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), ids)
		},
	}

	var asOfRaw string
	runOne := &cobra.Command{
		Use:   "run PORTFOLIO",
		Short: "Run one portfolio on the server and print its report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var asOf time.Time
			if asOfRaw != "" {
				var err error
				if asOf, err = parseAsOf(asOfRaw, time.Now); err != nil {
					return err
				}
			}

			client, ctx, done, err := dialRemote(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer done()

			report, err := client.RunPortfolio(ctx, args[0], asOf)
			if err != nil {
				return err
			}
			out, err := protojson.MarshalOptions{Multiline: true}.Marshal(report)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(append(out, '\n'))
			return err
		},
	}
	runOne.Flags().StringVar(&asOfRaw, "as-of", "", "Valuation date, YYYY-MM-DD (default: the server's today)")

	cmd.AddCommand(list, runOne)
	return cmd
}

// dialRemote connects to the server and returns a call context carrying the token and deadline
func dialRemote(ctx context.Context, flags *remoteFlags) (*grpcadapter.Client, context.Context, func(), error) {
	conn, err := grpclib.NewClient(flags.addr, grpclib.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, flags.timeout)
	if flags.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+flags.token)
	}
	done := func() {
		cancel()
		conn.Close()
	}
	return grpcadapter.NewClient(conn), ctx, done, nil
}
