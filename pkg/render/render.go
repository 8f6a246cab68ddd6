// Package render prints projects, deployments and live deployment logs to a
// terminal. Colors are only emitted when the destination writer is a TTY.
package render

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/jvreagan/shipyard/pkg/poller"
	"github.com/jvreagan/shipyard/pkg/types"
)

const (
	waitingForLogs = "Waiting for logs..."
	noLogs         = "No logs available"
)

// Theme is the color palette used for badges and chrome. All colors are ANSI
// 256-color codes.
type Theme struct {
	NormalText lipgloss.Color
	FaintText  lipgloss.Color
	Link       lipgloss.Color

	StatusReady    lipgloss.Color
	StatusActive   lipgloss.Color
	StatusFailed   lipgloss.Color
	StatusInactive lipgloss.Color

	ErrorText lipgloss.Color
}

// DefaultTheme targets dark 256-color terminals.
var DefaultTheme = Theme{
	NormalText: lipgloss.Color("252"),
	FaintText:  lipgloss.Color("245"),
	Link:       lipgloss.Color("75"),

	StatusReady:    lipgloss.Color("114"), // green
	StatusActive:   lipgloss.Color("220"), // yellow/amber
	StatusFailed:   lipgloss.Color("196"), // red
	StatusInactive: lipgloss.Color("245"), // gray

	ErrorText: lipgloss.Color("203"),
}

// StatusColor returns the badge color for status.
func (theme Theme) StatusColor(status types.DeploymentStatus) lipgloss.Color {
	switch {
	case status == types.StatusReady:
		return theme.StatusReady
	case status == types.StatusFail:
		return theme.StatusFailed
	case status.IsActive():
		return theme.StatusActive
	default:
		return theme.StatusInactive
	}
}

// Printer writes styled output to w. Watch output is incremental: each call
// to Update prints only what changed since the previous snapshot.
type Printer struct {
	w        io.Writer
	renderer *lipgloss.Renderer
	theme    Theme

	// Incremental state for Update.
	seen       map[string]bool
	lineNo     int
	lastStatus types.DeploymentStatus
	lastErr    string
	emptyShown string
	siteShown  bool
}

// New returns a Printer writing to w with the default theme.
func New(w io.Writer) *Printer {
	return &Printer{
		w:        w,
		renderer: lipgloss.NewRenderer(w),
		theme:    DefaultTheme,
		seen:     make(map[string]bool),
	}
}

func (p *Printer) style(color lipgloss.Color) lipgloss.Style {
	return p.renderer.NewStyle().Foreground(color)
}

// Badge renders the human label of status in its color.
func (p *Printer) Badge(status types.DeploymentStatus) string {
	return p.style(p.theme.StatusColor(status)).Bold(true).Render(status.Label())
}

func (p *Printer) faint(s string) string {
	return p.style(p.theme.FaintText).Render(s)
}

func (p *Printer) printf(format string, args ...any) {
	fmt.Fprintf(p.w, format, args...)
}

// Projects prints one line per project with its site URL.
func (p *Printer) Projects(projects []types.Project, siteURL func(*types.Project) string) {
	if len(projects) == 0 {
		p.printf("%s\n", p.faint("No projects yet"))
		return
	}
	for i := range projects {
		proj := &projects[i]
		p.printf("%-24s  %-20s  %s\n", proj.ID, proj.Name, p.style(p.theme.Link).Render(siteURL(proj)))
	}
}

// Project prints the details of a single project followed by its
// deployments as sent by the server.
func (p *Printer) Project(proj *types.Project, siteURL string) {
	if proj == nil {
		p.printf("%s\n", p.style(p.theme.ErrorText).Render("Project not found"))
		return
	}
	p.printf("Project:    %s\n", proj.Name)
	p.printf("  ID:       %s\n", proj.ID)
	p.printf("  Git URL:  %s\n", proj.GitURL)
	if d := proj.Domain(); d != "" {
		p.printf("  Domain:   %s\n", d)
	}
	if siteURL != "" {
		p.printf("  URL:      %s\n", p.style(p.theme.Link).Render(siteURL))
	}
	p.printf("\n")
	p.Deployments(proj.Deployments)
}

// Deployments prints one line per deployment.
func (p *Printer) Deployments(deployments []types.Deployment) {
	if len(deployments) == 0 {
		p.printf("%s\n", p.faint("No deployments yet"))
		return
	}
	for _, d := range deployments {
		p.printf("%-24s  %-10s  %s\n", d.ID, p.Badge(d.Status), p.faint(formatTime(d.CreatedAt)))
	}
}

// Status prints the header block of a deployment.
func (p *Printer) Status(d *types.Deployment, siteURL string) {
	if d == nil {
		p.printf("%s\n", p.style(p.theme.ErrorText).Render("Deployment not found"))
		return
	}
	p.printf("Deployment: %s\n", d.ID)
	p.printf("  Project:  %s\n", d.ProjectID)
	p.printf("  Status:   %s\n", p.Badge(d.Status))
	if strings.TrimSpace(d.CreatedAt) != "" {
		p.printf("  Created:  %s\n", formatTime(d.CreatedAt))
	}
	if d.Status == types.StatusReady && siteURL != "" {
		p.printf("  Visit Site: %s\n", p.style(p.theme.Link).Render(siteURL))
	}
}

// Logs prints a complete numbered log listing. An empty listing shows a
// waiting message while status is active.
func (p *Printer) Logs(logs []types.LogEntry, status types.DeploymentStatus) {
	if len(logs) == 0 {
		p.printf("%s\n", p.faint(emptyText(status)))
		return
	}
	for i, entry := range logs {
		p.logLine(i+1, entry)
	}
}

func (p *Printer) logLine(n int, entry types.LogEntry) {
	p.printf("%s  %s\n", p.faint(fmt.Sprintf("%3d", n)), entry.Log)
}

// LoadError prints a failed fetch. The deployment itself may still be
// building; a FAIL status is shown through its badge instead.
func (p *Printer) LoadError(msg string) {
	p.printf("%s\n", p.style(p.theme.ErrorText).Render("Failed to load deployment: "+msg))
}

// Update prints the part of s not yet printed: a status change, log lines
// with keys not seen before, a new load error, the empty-state message and
// the site URL once the deployment is READY.
func (p *Printer) Update(s poller.Snapshot, siteURL string) {
	if s.Err != "" && s.Err != p.lastErr {
		p.LoadError(s.Err)
	}
	p.lastErr = s.Err

	d := s.Deployment
	if d == nil {
		return
	}

	if d.Status != p.lastStatus {
		p.printf("%s %s\n", p.faint(d.ID), p.Badge(d.Status))
		p.lastStatus = d.Status
	}

	for i, entry := range s.Logs {
		key := entry.Key(i)
		if p.seen[key] {
			continue
		}
		p.seen[key] = true
		p.lineNo++
		p.logLine(p.lineNo, entry)
	}

	if len(s.Logs) == 0 && !s.Loading {
		if text := emptyText(d.Status); text != p.emptyShown {
			p.printf("%s\n", p.faint(text))
			p.emptyShown = text
		}
	}

	if d.Status == types.StatusReady && siteURL != "" && !p.siteShown {
		p.printf("Visit Site: %s\n", p.style(p.theme.Link).Render(siteURL))
		p.siteShown = true
	}
}

func emptyText(status types.DeploymentStatus) string {
	if status.IsActive() {
		return waitingForLogs
	}
	return noLogs
}

// timeLayouts are tried in order when displaying a platform timestamp.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// formatTime shows a platform timestamp in local time. Zone-less values are
// read as local time; values in an unknown layout are shown as sent.
func formatTime(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "-"
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return t.Local().Format("2006-01-02 15:04:05")
		}
	}
	return raw
}
