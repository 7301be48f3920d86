package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/StricklySoft/stricklysoft-authgate/pkg/auth"
	sserr "github.com/StricklySoft/stricklysoft-authgate/pkg/errors"
)

func newHashPasswordCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print the bcrypt hash of a password for a credential directory",
		Long: `Prints the bcrypt hash stores expect. The password is read from the first
line of stdin when not given as an argument, which keeps it out of shell
history.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := passwordArg(cmd, args)
			if err != nil {
				return err
			}
			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return err
		},
	}
}

func passwordArg(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 && args[0] != "" {
		return args[0], nil
	}
	return readSecretLine(cmd.InOrStdin())
}

func newConfigCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Validate the configuration and print the effective values",
		Long:  "Secrets are never printed.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return fmt.Errorf("%s: %w", describeConfigError(err), err)
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return sserr.Wrap(err, sserr.CodeInternal, "cannot render configuration")
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

func newUserCommand(opts *rootOptions) *cobra.Command {
	user := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts in the postgres or redis directory",
	}

	user.AddCommand(&cobra.Command{
		Use:   "add EMAIL",
		Short: "Create or replace an account; the password is read from stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readSecretLine(cmd.InOrStdin())
			if err != nil {
				return err
			}
			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			return withWriter(cmd.Context(), opts, func(ctx context.Context, w credentialWriter) error {
				if err := w.Put(ctx, args[0], hash); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "saved %s\n", auth.NormalizeEmail(args[0]))
				return err
			})
		},
	})

	user.AddCommand(&cobra.Command{
		Use:   "remove EMAIL",
		Short: "Delete an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWriter(cmd.Context(), opts, func(ctx context.Context, w credentialWriter) error {
				removed, err := w.Delete(ctx, args[0])
				if err != nil {
					return err
				}
				if !removed {
					return sserr.Newf(sserr.CodeNotFound, "no account for %s", auth.NormalizeEmail(args[0]))
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", auth.NormalizeEmail(args[0]))
				return err
			})
		},
	})
	return user
}

// withWriter opens the configured directory for fn. The static directory
// is compiled in and cannot be written.
func withWriter(ctx context.Context, opts *rootOptions, fn func(context.Context, credentialWriter) error) error {
	cfg, err := opts.load()
	if err != nil {
		return err
	}
	b, err := openDirectory(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.close()
	if b.writer == nil {
		return sserr.Newf(sserr.CodeValidation, "the %s directory is read-only; set AUTHGATE_DIRECTORY to postgres or redis", b.name)
	}
	return fn(ctx, b.writer)
}
