package main

import (
	"bufio"
	"io"
	"strings"

	"github.com/spf13/cobra"

	sserr "github.com/StricklySoft/stricklysoft-authgate/pkg/errors"
)

// envLookup reads one environment variable. Tests pass a map-backed one.
type envLookup func(string) (string, bool)

type rootOptions struct {
	configPath string
	lookupEnv  envLookup
}

func newRootCommand(lookup envLookup) *cobra.Command {
	opts := &rootOptions{lookupEnv: lookup}

	root := &cobra.Command{
		Use:   "authgate",
		Short: "Minimal authentication gateway issuing and verifying session tokens",
		Long: `authgate checks email/password credentials against a directory, issues
short-lived HS256 session tokens on success and verifies them on protected
requests.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultPath, _ := lookup("AUTHGATE_CONFIG")
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", defaultPath,
		"YAML or JSON config file (env AUTHGATE_CONFIG)")

	root.AddCommand(
		newServeCommand(opts),
		newHashPasswordCommand(),
		newConfigCommand(opts),
		newUserCommand(opts),
	)
	return root
}

func (o *rootOptions) load() (*GatewayConfig, error) {
	return loadConfig(o.configPath, o.lookupEnv)
}

// readSecretLine returns the first line of r without its line ending.
func readSecretLine(r io.Reader) (string, error) {
	sc := bufio.NewScanner(r)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return "", sserr.Wrap(err, sserr.CodeValidationFormat, "cannot read password from stdin")
		}
		return "", sserr.New(sserr.CodeValidationRequired, "no password on stdin")
	}
	line := strings.TrimRight(sc.Text(), "\r")
	if line == "" {
		return "", sserr.New(sserr.CodeValidationRequired, "password must not be empty")
	}
	return line, nil
}
