package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-auth-client/authclient"
	"github.com/jrsteele09/go-auth-client/client"
	"github.com/jrsteele09/go-auth-client/guard"
	"github.com/jrsteele09/go-auth-client/internal/config"
	autherrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const usage = `usage: authclient <command> [args]

commands:
  login <username> <password>   authenticate and store the session
  logout                        clear the stored session
  whoami                        show the session and current user
  refresh                       renew the access token
  get <path>                    authenticated GET against the API (e.g. /courses/)
  nav <path>                    show where navigating to path would land
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		ev := log.Error().Err(err)
		if status := apiStatus(err); status != 0 {
			ev = ev.Int("status", status)
		}
		ev.Msg("command failed")
		os.Exit(1)
	}
}

func run(args []string) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return errors.New("missing command")
	}

	c := config.New()
	setupLogging(c)
	if c.GetEnv() == "DEV" {
		displayAppname(c.GetAppName())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cl, err := client.New(ctx, c)
	if err != nil {
		return fmt.Errorf("client.New: %w", err)
	}
	defer cl.Close()

	cl.Router.OnNavigate(func(d guard.Decision) {
		log.Info().Str("path", d.Path).Stringer("action", d.Action).Msg("navigated")
	})

	switch cmd := args[0]; cmd {
	case "login":
		if len(args) != 3 {
			return errors.New("login needs <username> <password>")
		}
		return cl.Session.Login(ctx, authclient.Credentials{Username: args[1], Password: args[2]})
	case "logout":
		cl.Session.Logout(ctx)
		return nil
	case "whoami":
		return whoami(ctx, cl)
	case "refresh":
		return cl.Session.RefreshAccessToken(ctx)
	case "get":
		if len(args) != 2 {
			return errors.New("get needs <path>")
		}
		return get(ctx, cl, args[1])
	case "nav":
		if len(args) != 2 {
			return errors.New("nav needs <path>")
		}
		cl.Router.Push(ctx, args[1])
		fmt.Println(cl.Router.Current())
		return nil
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// apiStatus is the HTTP status of the API call that failed, or 0.
func apiStatus(err error) int {
	var statusErr *authclient.StatusError
	if autherrors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}

func whoami(ctx context.Context, cl *client.Client) error {
	snap := cl.Session.Snapshot()
	if !snap.Authenticated {
		fmt.Println("not logged in")
		return nil
	}
	if err := cl.Session.FetchUser(ctx); err != nil {
		return err
	}
	user := cl.Session.User()
	fmt.Printf("user:    %s\n", user.String())
	fmt.Printf("refresh: %t\n", snap.HasRefreshToken)
	if !snap.AccessExpiresAt.IsZero() {
		fmt.Printf("expires: %s\n", snap.AccessExpiresAt.Local().Format("2006-01-02 15:04:05"))
	}
	return nil
}

func get(ctx context.Context, cl *client.Client, path string) error {
	resp, err := cl.Get(ctx, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	fmt.Fprintf(os.Stderr, "%s\n", resp.Status)
	_, err = io.Copy(os.Stdout, resp.Body)
	return err
}

func setupLogging(c config.EnvConfig) {
	level, err := zerolog.ParseLevel(c.GetLogLevel())
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if c.GetEnv() == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
