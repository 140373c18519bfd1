// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package main

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/keyward/keyward/internal/auth"
)

// Defaults for the request metadata flags.
const (
	defaultSourceAddress = "127.0.0.1"
	defaultUserAgent     = "keyward-cli"
)

// requestFlags are shared by register and login.
type requestFlags struct {
	password      string
	passwordStdin bool
	sourceAddress string
	userAgent     string
}

func (f *requestFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.password, "password", "", "account password")
	cmd.Flags().BoolVar(&f.passwordStdin, "password-stdin", false, "read the password from the first line of stdin")
	cmd.Flags().StringVar(&f.sourceAddress, "source-address", defaultSourceAddress, "client address the request is attributed to")
	cmd.Flags().StringVar(&f.userAgent, "user-agent", defaultUserAgent, "client user agent recorded in audit events")
	cmd.MarkFlagsMutuallyExclusive("password", "password-stdin")
}

// resolvePassword returns the flag value or the first line of in.
func (f *requestFlags) resolvePassword(in io.Reader) (string, error) {
	if !f.passwordStdin {
		return f.password, nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", oops.Code("INPUT_FAILED").With("operation", "read password").Wrap(err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newAccountCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Register accounts and verify credentials",
	}
	cmd.AddCommand(newRegisterCmd(c))
	cmd.AddCommand(newLoginCmd(c))
	return cmd
}

func newRegisterCmd(c *cli) *cobra.Command {
	var (
		req   auth.RegisterRequest
		flags requestFlags
	)

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a new account",
		Long: `Register a new account and print the result, including a session
token on success. The command exits non-zero when registration is rejected.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := flags.resolvePassword(cmd.InOrStdin())
			if err != nil {
				return err
			}
			req.Password = password
			return c.runAccount(cmd, func(svc *auth.Service) auth.AuthResult {
				return svc.Register(cmd.Context(), req, flags.sourceAddress, flags.userAgent)
			})
		},
	}

	cmd.Flags().StringVar(&req.Username, "username", "", "account username")
	cmd.Flags().StringVar(&req.Email, "email", "", "account email address")
	flags.register(cmd)
	return cmd
}

func newLoginCmd(c *cli) *cobra.Command {
	var (
		req   auth.LoginRequest
		flags requestFlags
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Verify credentials and issue a session token",
		Long: `Verify a username or email address and password. Repeated failures
from one source address lock it out for the configured duration.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := flags.resolvePassword(cmd.InOrStdin())
			if err != nil {
				return err
			}
			req.Password = password
			return c.runAccount(cmd, func(svc *auth.Service) auth.AuthResult {
				return svc.Authenticate(cmd.Context(), req, flags.sourceAddress, flags.userAgent)
			})
		},
	}

	cmd.Flags().StringVar(&req.Identifier, "identifier", "", "username or email address")
	flags.register(cmd)
	return cmd
}

// runAccount wires the service, runs op and prints its result as JSON.
func (c *cli) runAccount(cmd *cobra.Command, op func(*auth.Service) auth.AuthResult) error {
	cfg, logger, err := c.load(cmd)
	if err != nil {
		return err
	}
	a, err := c.newApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	res := op(a.service)
	if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
		return err
	}
	if !res.Success {
		return oops.Code("AUTH_REJECTED").Errorf("%s", res.Message)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return oops.Code("OUTPUT_FAILED").Wrap(err)
	}
	return nil
}
