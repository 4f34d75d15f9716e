package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/iamBelugaa/kvs/internal/client"
	"github.com/iamBelugaa/kvs/pkg/config"
)

var version = "0.1.0"

const dialTimeout = 5 * time.Second

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

func execute(args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "kvs-client",
		Short:         "Talk to a kvs-server",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.AddCommand(
		newGetCmd(stdout),
		newSetCmd(),
		newRemoveCmd(stderr),
	)
	return root
}

func addrFlag(cmd *cobra.Command) *string {
	return cmd.Flags().StringP("addr", "a", config.DefaultAddr, "Server address, IP:PORT")
}

func connect(ctx context.Context, addr string) (*client.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	return client.Connect(ctx, addr)
}

func newGetCmd(stdout io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Get the string value of a given string key",
		Args:  cobra.ExactArgs(1),
	}
	addr := addrFlag(cmd)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		c, err := connect(cmd.Context(), *addr)
		if err != nil {
			return err
		}
		defer c.Close()

		value, found, err := c.Get(args[0])
		if err != nil {
			return err
		}
		if !found {
			fmt.Fprintln(stdout, "Key not found")
			return nil
		}
		fmt.Fprintln(stdout, value)
		return nil
	}
	return cmd
}

func newSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set the value of a string key to a string",
		Args:  cobra.ExactArgs(2),
	}
	addr := addrFlag(cmd)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		c, err := connect(cmd.Context(), *addr)
		if err != nil {
			return err
		}
		defer c.Close()
		return c.Set(args[0], args[1])
	}
	return cmd
}

func newRemoveCmd(stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm <key>",
		Short: "Remove a given key",
		Args:  cobra.ExactArgs(1),
	}
	addr := addrFlag(cmd)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		c, err := connect(cmd.Context(), *addr)
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.Remove(args[0]); err != nil {
			// A missing key is an outcome, not a failure of the client.
			if client.IsKeyNotFound(err) {
				fmt.Fprintln(stderr, "Key not found")
				return nil
			}
			return err
		}
		return nil
	}
	return cmd
}
