package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/adeilh/omnikv/kv"
)

func newGetCmd(e *env) *cobra.Command {
	var def string
	cmd := &cobra.Command{
		Use:   "get KEY",
		Short: "Print the value stored under KEY and refresh its expiry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []kv.GetOption
			if cmd.Flags().Changed("default") {
				opts = append(opts, kv.Or([]byte(def)))
			}
			v, err := e.store.Get(cmd.Context(), args[0], opts...)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if _, err := out.Write(v); err != nil {
				return err
			}
			_, err = fmt.Fprintln(out)
			return err
		},
	}
	cmd.Flags().StringVar(&def, "default", "", "value to print when KEY is missing or expired")
	return cmd
}

func newSetCmd(e *env) *cobra.Command {
	var ifAbsent bool
	cmd := &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Store VALUE under KEY",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []kv.SetOption
			if ifAbsent {
				opts = append(opts, kv.IfAbsent())
			}
			return e.store.Set(cmd.Context(), args[0], []byte(args[1]), opts...)
		},
	}
	cmd.Flags().BoolVar(&ifAbsent, "if-absent", false, "fail when KEY already holds a live value")
	return cmd
}

func newDelCmd(e *env) *cobra.Command {
	var mustExist bool
	cmd := &cobra.Command{
		Use:     "del KEY",
		Aliases: []string{"delete", "rm"},
		Short:   "Delete KEY",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []kv.DeleteOption
			if mustExist {
				opts = append(opts, kv.MustExist())
			}
			return e.store.Delete(cmd.Context(), args[0], opts...)
		},
	}
	cmd.Flags().BoolVar(&mustExist, "must-exist", false, "fail when KEY is missing or expired")
	return cmd
}

func newHasCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "has KEY",
		Short: "Report whether KEY holds a live value, without refreshing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := e.store.Contains(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), strconv.FormatBool(ok))
			return err
		},
	}
}

func newKeysCmd(e *env) *cobra.Command {
	var pattern string
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "List live keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if pattern == "" {
				return e.store.Keys(cmd.Context(), func(key string) error {
					_, err := fmt.Fprintln(out, key)
					return err
				})
			}
			return e.store.Match(cmd.Context(), pattern, func(key string, _ []byte) error {
				_, err := fmt.Fprintln(out, key)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&pattern, "match", "", "glob pattern keys must match")
	return cmd
}

func newSweepCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired entries now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := e.store.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d expired entries removed\n", n)
			return err
		},
	}
}
