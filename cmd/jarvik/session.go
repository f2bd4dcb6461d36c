package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/jarvik/webclient/internal/service/transport"
)

func newLoginCmd(a *app) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "login <nick>",
		Short: "Log in and store the session token",
		Args:  requireArgs(1, "nick"),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return a.report(fmt.Errorf("read password: %w", err))
				}
				password = strings.TrimRight(line, "\r\n")
			}

			if err := a.router.Login(cmd.Context(), args[0], password); err != nil {
				if transport.IsAuth(err) {
					a.out.fail("%s", transport.Message(err))
					return err
				}
				return a.report(err)
			}
			a.out.ok("logged in as %s", args[0])
			return nil
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (prompted when empty)")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if err := a.router.Logout(); err != nil {
				return a.report(err)
			}
			a.out.ok("logged out")
			return nil
		},
	}
}

func newAPIKeyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "apikey [key]",
		Short: "Store the API key sent as X-API-Key (no key removes it)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			key := ""
			if len(args) == 1 {
				key = args[0]
			}
			if err := a.router.SetAPIKey(key); err != nil {
				return a.report(err)
			}
			if key == "" {
				a.out.ok("API key removed")
			} else {
				a.out.ok("API key stored")
			}
			return nil
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Aliases: []string{"env"},
		Short:   "Show the target backend and stored credentials",
		Args:    cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			state, err := a.router.Session()
			if err != nil {
				return a.report(err)
			}
			envState := a.router.Environment()

			a.out.info("backend:  %s", envState.Label)
			a.out.info("url:      %s", a.router.URL("/"))
			if envState.DevlabAvailable {
				a.out.info("devlab:   available (use --devlab)")
			} else {
				a.out.info("devlab:   not configured")
			}
			a.out.info("login:    %s", yesNo(state.LoggedIn))
			a.out.info("api key:  %s", yesNo(state.HasAPIKey))
			a.out.info("session:  %s", a.cfg.Session.File)
			return nil
		},
	}
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
