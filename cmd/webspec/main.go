package main

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"webspec-auth/internal/cli/client"
	"webspec-auth/internal/cli/login"
	"webspec-auth/internal/cli/tokencache"
	"webspec-auth/internal/logger"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func main() {
	logger.InitWithOutput("dev", envOr("WEBSPEC_LOG_LEVEL", "warn"), "stderr")
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		serverURL = envOr("WEBSPEC_SERVER", "http://localhost:5001")
		port      = 8888
		timeout   = 60 * time.Second
		tokenFile = tokencache.DefaultPath()
		noBrowser bool
	)

	driver := func() *login.Driver {
		var open func(string) error
		if !noBrowser {
			open = openBrowser
		}
		return login.New(
			client.New(serverURL, 20*time.Second),
			tokencache.New(tokenFile),
			login.Options{
				Port:        port,
				Timeout:     timeout,
				Out:         os.Stdout,
				OpenBrowser: open,
			},
		)
	}

	root := &cobra.Command{
		Use:           "webspec",
		Short:         "Authenticate the webspec CLI against the auth backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&serverURL, "server", serverURL, "auth backend base URL (env WEBSPEC_SERVER)")
	root.PersistentFlags().IntVar(&port, "port", port, "local callback port, must be allow-listed by the backend")
	root.PersistentFlags().DurationVar(&timeout, "timeout", timeout, "how long to wait for the browser callback")
	root.PersistentFlags().StringVar(&tokenFile, "token-file", tokenFile, "where the session token is cached")

	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Log in through the browser and cache the session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := driver().Login(cmd.Context())
			return err
		},
	}
	loginCmd.Flags().BoolVar(&noBrowser, "no-browser", false, "only print the authorization URL")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the user of the cached token",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := driver().Status(cmd.Context())
			if errors.Is(err, tokencache.ErrNoToken) {
				return errors.New("not logged in, run `webspec login`")
			}
			return err
		},
	}

	logoutCmd := &cobra.Command{
		Use:   "logout",
		Short: "Revoke the cached token and forget it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return driver().Logout(cmd.Context())
		},
	}

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Forget the cached token without contacting the backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			return driver().Reset()
		},
	}

	root.AddCommand(loginCmd, statusCmd, logoutCmd, resetCmd)
	return root
}

func openBrowser(target string) error {
	target = strings.TrimSpace(target)
	if target == "" {
		return errors.New("empty url")
	}
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", target)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", target)
	default:
		cmd = exec.Command("xdg-open", target)
	}
	return cmd.Start()
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
