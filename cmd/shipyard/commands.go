package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/jvreagan/shipyard/pkg/archive"
	"github.com/jvreagan/shipyard/pkg/client"
	"github.com/jvreagan/shipyard/pkg/credentials"
	"github.com/jvreagan/shipyard/pkg/logging"
	"github.com/jvreagan/shipyard/pkg/provider"
	"github.com/jvreagan/shipyard/pkg/types"
)

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

func usageError(format string, args ...any) error {
	return &exitError{code: 2, err: fmt.Errorf("Usage: shipyard "+format, args...)}
}

func oneArg(command, name string, args []string) (string, error) {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return "", usageError("%s %s", command, name)
	}
	return args[0], nil
}

func (a *app) sessionPath() (string, error) {
	if a.cfg.Credentials.SessionFile != "" {
		return a.cfg.Credentials.SessionFile, nil
	}
	return credentials.DefaultSessionPath()
}

func (a *app) login(ctx context.Context, args []string) error {
	flags := pflag.NewFlagSet("login", pflag.ContinueOnError)
	flags.SetOutput(a.stderr)
	token := flags.String("token", "", "Access token (prompted for when omitted)")
	if err := flags.Parse(args); err != nil {
		return &exitError{code: 2, err: err}
	}

	if *token == "" {
		var err error
		if *token, err = a.readToken(); err != nil {
			return err
		}
	}
	if *token == "" {
		return fmt.Errorf("no token provided")
	}

	// Check the token before saving it.
	verifier, err := client.New(a.cfg.API.URL, credentials.Static(*token), client.WithHTTPClient(newHTTPClient(a.cfg.API.Timeout)))
	if err != nil {
		return err
	}
	if _, err := verifier.ListProjects(ctx); err != nil {
		return fmt.Errorf("Login failed: %w", err)
	}

	path, err := a.sessionPath()
	if err != nil {
		return err
	}
	if err := credentials.SaveSession(path, credentials.Session{
		AccessToken: *token,
		APIURL:      a.client.BaseURL(),
		CreatedAt:   time.Now().UTC(),
	}); err != nil {
		return err
	}

	logging.Debug("session saved", "path", path, "token", logging.RedactToken(*token))
	fmt.Fprintf(a.stdout, "✓ Logged in to %s\n", a.client.BaseURL())
	return nil
}

// readToken prompts without echo on a terminal and otherwise reads the first
// line of stdin.
func (a *app) readToken() (string, error) {
	if f, ok := a.stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(a.stderr, "Access token: ")
		data, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(a.stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read token: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	line, err := bufio.NewReader(a.stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read token from stdin: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func (a *app) logout() error {
	path, err := a.sessionPath()
	if err != nil {
		return err
	}
	if err := credentials.ClearSession(path); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "✓ Logged out\n")
	return nil
}

func (a *app) projects(ctx context.Context) error {
	projects, err := a.client.ListProjects(ctx)
	if err != nil {
		return fmt.Errorf("Failed to list projects: %w", err)
	}
	a.printer.Projects(projects, a.resolver.SiteURL)
	return nil
}

func (a *app) project(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("project create|show|delete ...")
	}

	switch args[0] {
	case "create":
		if len(args) != 3 {
			return usageError("project create <name> <git-url>")
		}
		p, err := a.client.CreateProject(ctx, types.CreateProjectInput{Name: args[1], GitHubURL: args[2]})
		if err != nil {
			return fmt.Errorf("Failed to create project: %w", err)
		}
		fmt.Fprintf(a.stdout, "✓ Project created!\n")
		if p == nil {
			return nil
		}
		fmt.Fprintf(a.stdout, "  ID: %s\n", p.ID)
		fmt.Fprintf(a.stdout, "  Name: %s\n", p.Name)
		if u := a.resolver.SiteURL(p); u != "" {
			fmt.Fprintf(a.stdout, "  URL: %s\n", u)
		}
		return nil

	case "show":
		id, err := oneArg("project show", "<project-id>", args[1:])
		if err != nil {
			return err
		}
		p, err := a.client.GetProject(ctx, id)
		if err != nil {
			return fmt.Errorf("Failed to get project: %w", err)
		}
		a.printer.Project(p, a.resolver.SiteURL(p))
		return nil

	case "delete":
		id, err := oneArg("project delete", "<project-id>", args[1:])
		if err != nil {
			return err
		}
		if err := a.client.DeleteProject(ctx, id); err != nil {
			return fmt.Errorf("Failed to delete project: %w", err)
		}
		fmt.Fprintf(a.stdout, "✓ Project %s deleted\n", id)
		return nil

	default:
		return usageError("project create|show|delete ...")
	}
}

func (a *app) deployments(ctx context.Context, args []string) error {
	id, err := oneArg("deployments", "<project-id>", args)
	if err != nil {
		return err
	}
	list, err := a.client.ListDeployments(ctx, id)
	if err != nil {
		return fmt.Errorf("Failed to list deployments: %w", err)
	}
	a.printer.Deployments(list)
	return nil
}

func (a *app) deploy(ctx context.Context, args []string) error {
	flags := pflag.NewFlagSet("deploy", pflag.ContinueOnError)
	flags.SetOutput(a.stderr)
	follow := flags.BoolP("watch", "w", false, "Follow the deployment until it finishes")
	if err := flags.Parse(args); err != nil {
		return &exitError{code: 2, err: err}
	}
	projectID, err := oneArg("deploy", "<project-id> [--watch]", flags.Args())
	if err != nil {
		return err
	}

	d, err := a.client.TriggerDeployment(ctx, projectID)
	if err != nil {
		return fmt.Errorf("Deployment failed: %w", err)
	}
	fmt.Fprintf(a.stdout, "✓ Deployment queued!\n")
	if d == nil || d.ID == "" {
		if *follow {
			return fmt.Errorf("The platform did not return the new deployment; run 'shipyard deployments %s' to find it", projectID)
		}
		return nil
	}
	fmt.Fprintf(a.stdout, "  Deployment: %s\n", d.ID)
	fmt.Fprintf(a.stdout, "  Status: %s\n", a.printer.Badge(d.Status))

	if *follow {
		return a.watch(ctx, d.ID)
	}
	return nil
}

func (a *app) status(ctx context.Context, args []string) error {
	id, err := oneArg("status", "<deployment-id>", args)
	if err != nil {
		return err
	}
	d, err := a.client.GetDeployment(ctx, id)
	if err != nil {
		return fmt.Errorf("Failed to get status: %w", err)
	}
	a.printer.Status(d, a.siteURLFor(ctx, d))
	return nil
}

func (a *app) logs(ctx context.Context, args []string) error {
	flags := pflag.NewFlagSet("logs", pflag.ContinueOnError)
	flags.SetOutput(a.stderr)
	archiveLogs := flags.Bool("archive", false, "Upload the logs of a finished deployment to the configured archive")
	if err := flags.Parse(args); err != nil {
		return &exitError{code: 2, err: err}
	}
	id, err := oneArg("logs", "<deployment-id> [--archive]", flags.Args())
	if err != nil {
		return err
	}

	dl, err := a.client.DeploymentLogs(ctx, id)
	if err != nil {
		return fmt.Errorf("Failed to load deployment: %w", err)
	}
	a.printer.Logs(dl.Logs, dl.Deployment.Status)

	if !*archiveLogs {
		return nil
	}

	// Refuse early so no provider is configured for nothing.
	if !dl.Deployment.Status.IsTerminal() {
		return fmt.Errorf("Cannot archive: %w", archive.ErrNotFinished)
	}
	p, err := provider.Factory(ctx, &a.cfg.Archive)
	if err != nil {
		return fmt.Errorf("Error creating archive provider: %w", err)
	}
	archiver := archive.New(p, a.cfg.Archive.Prefix, nil)
	defer archiver.Close()

	location, err := archiver.Archive(ctx, dl)
	if err != nil {
		return fmt.Errorf("Archive failed: %w", err)
	}
	fmt.Fprintf(a.stdout, "✓ Logs archived to %s\n", location)
	return nil
}

func (a *app) url(ctx context.Context, args []string) error {
	id, err := oneArg("url", "<project-id>", args)
	if err != nil {
		return err
	}
	p, err := a.client.GetProject(ctx, id)
	if err != nil {
		return fmt.Errorf("Failed to get project: %w", err)
	}
	u := a.resolver.SiteURL(p)
	if u == "" {
		return fmt.Errorf("project %s has no subdomain yet", id)
	}
	fmt.Fprintln(a.stdout, u)
	return nil
}

// siteURLFor resolves the site of a READY deployment. Lookup failures only
// cost the link.
func (a *app) siteURLFor(ctx context.Context, d *types.Deployment) string {
	if d == nil || d.Status != types.StatusReady {
		return ""
	}
	if d.Project != nil && d.Project.SubDomain != "" {
		return a.resolver.SiteURL(d.Project)
	}
	p, err := a.client.GetProject(ctx, d.ProjectID)
	if err != nil {
		logging.Debug("could not resolve site url", "project", d.ProjectID, "error", err)
		return ""
	}
	return a.resolver.SiteURL(p)
}
