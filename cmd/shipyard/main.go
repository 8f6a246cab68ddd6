package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/jvreagan/shipyard/pkg/client"
	"github.com/jvreagan/shipyard/pkg/config"
	"github.com/jvreagan/shipyard/pkg/credentials"
	"github.com/jvreagan/shipyard/pkg/logging"
	"github.com/jvreagan/shipyard/pkg/origin"
	"github.com/jvreagan/shipyard/pkg/render"
)

// Version information (set via ldflags during build)
var (
	version = "0.1.0"
	commit  = "none"
	date    = "unknown"
)

// Exit codes of the watch command besides 0 and 1.
const exitInterrupted = 130

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// app carries what every command needs once the global flags are parsed.
type app struct {
	cfg      *config.Config
	client   *client.Client
	resolver *origin.Resolver
	printer  *render.Printer

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// exitError carries a specific process exit code.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func (e *exitError) ExitCode() int { return e.code }

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var (
		configFile string
		apiURL     string
		logLevel   string
	)

	flags := pflag.NewFlagSet("shipyard", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.SetInterspersed(false)
	flags.StringVarP(&configFile, "config", "c", "", "Path to shipyard config file")
	flags.StringVar(&apiURL, "api", "", "Platform API URL (overrides config)")
	flags.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.BoolP("help", "h", false, "Show help")
	flags.Usage = func() { printUsage(stderr, flags) }

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	if help, _ := flags.GetBool("help"); help {
		printUsage(stdout, flags)
		return 0
	}

	rest := flags.Args()
	if len(rest) == 0 {
		printUsage(stderr, flags)
		return 2
	}
	command, cmdArgs := rest[0], rest[1:]

	if command == "version" {
		fmt.Fprintf(stdout, "shipyard version %s\n", version)
		fmt.Fprintf(stdout, "  commit: %s\n", commit)
		fmt.Fprintf(stdout, "  built: %s\n", date)
		return 0
	}

	cfg, err := config.Resolve(configFile)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return 1
	}
	if apiURL != "" {
		cfg.API.URL = apiURL
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	logging.SetLogger(logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format, stderr))

	a, err := newApp(ctx, cfg, stdin, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error configuring client: %v\n", err)
		return 1
	}

	if err := a.dispatch(ctx, command, cmdArgs); err != nil {
		var coded *exitError
		if errors.As(err, &coded) {
			if coded.err != nil {
				fmt.Fprintf(stderr, "%v\n", coded.err)
			}
			return coded.code
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newApp(ctx context.Context, cfg *config.Config, stdin io.Reader, stdout, stderr io.Writer) (*app, error) {
	source, err := credentials.NewSource(ctx, cfg.Credentials)
	if err != nil {
		return nil, err
	}

	c, err := client.New(cfg.API.URL, source,
		client.WithUserAgent("shipyard/"+version),
		client.WithHTTPClient(newHTTPClient(cfg.API.Timeout)),
	)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:      cfg,
		client:   c,
		resolver: origin.New(cfg.ReverseProxy.Host),
		printer:  render.New(stdout),
		stdin:    stdin,
		stdout:   stdout,
		stderr:   stderr,
	}, nil
}

func (a *app) dispatch(ctx context.Context, command string, args []string) error {
	switch command {
	case "login":
		return a.login(ctx, args)
	case "logout":
		return a.logout()
	case "projects":
		return a.projects(ctx)
	case "project":
		return a.project(ctx, args)
	case "deployments":
		return a.deployments(ctx, args)
	case "deploy":
		return a.deploy(ctx, args)
	case "status":
		return a.status(ctx, args)
	case "watch":
		id, err := oneArg("watch", "<deployment-id>", args)
		if err != nil {
			return err
		}
		return a.watch(ctx, id)
	case "logs":
		return a.logs(ctx, args)
	case "url":
		return a.url(ctx, args)
	default:
		return &exitError{code: 2, err: fmt.Errorf("Unknown command: %s\nValid commands: login, logout, projects, project, deployments, deploy, status, watch, logs, url, version", command)}
	}
}

func printUsage(w io.Writer, flags *pflag.FlagSet) {
	fmt.Fprintf(w, `shipyard - deploy projects and follow their builds

Usage:
  shipyard [flags] <command> [args]

Commands:
  login [--token TOKEN]             Save an access token for later commands
  logout                            Remove the saved access token
  projects                          List projects
  project create <name> <git-url>   Register a project
  project show <project-id>         Show a project and its deployments
  project delete <project-id>       Delete a project
  deployments <project-id>          List deployments of a project
  deploy <project-id> [--watch]     Start a deployment
  status <deployment-id>            Show the status of a deployment
  watch <deployment-id>             Follow a deployment until it finishes
  logs <deployment-id> [--archive]  Print logs, optionally archiving them
  url <project-id>                  Print the site URL of a project
  version                           Show version information

Flags:
`)
	flags.SetOutput(w)
	flags.PrintDefaults()
}
