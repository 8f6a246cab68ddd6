// Package types provides the domain records shared across shipyard packages.
// They mirror the JSON payloads of the deployment platform API; the client
// holds them as a read-through cache and is never authoritative.
package types

import "strconv"

// DeploymentStatus is the lifecycle state of a deployment as reported by the
// platform:
//
//	NOT_STARTED -> QUEUED -> IN_PROGRESS -> READY (terminal, success)
//	                                    \-> FAIL  (terminal, failure)
//
// A re-deploy creates a new Deployment; no transition out of READY or FAIL
// is ever observed on the same record.
type DeploymentStatus string

const (
	StatusNotStarted DeploymentStatus = "NOT_STARTED"
	StatusQueued     DeploymentStatus = "QUEUED"
	StatusInProgress DeploymentStatus = "IN_PROGRESS"
	StatusReady      DeploymentStatus = "READY"
	StatusFail       DeploymentStatus = "FAIL"
)

// IsTerminal reports whether no further automatic status change is expected.
func (s DeploymentStatus) IsTerminal() bool {
	return s == StatusReady || s == StatusFail
}

// IsActive reports whether the deployment is queued or building. Only active
// deployments are polled.
func (s DeploymentStatus) IsActive() bool {
	return s == StatusQueued || s == StatusInProgress
}

// Valid reports whether s is one of the known statuses.
func (s DeploymentStatus) Valid() bool {
	switch s {
	case StatusNotStarted, StatusQueued, StatusInProgress, StatusReady, StatusFail:
		return true
	}
	return false
}

// Label returns the short human label used in listings.
func (s DeploymentStatus) Label() string {
	switch s {
	case StatusReady:
		return "Ready"
	case StatusQueued:
		return "Queued"
	case StatusInProgress:
		return "Building"
	case StatusFail:
		return "Failed"
	default:
		return string(s)
	}
}

// Project is a registered source repository that can be deployed.
type Project struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	GitURL       string  `json:"gitURL"`
	SubDomain    string  `json:"subDomain"`
	CustomDomain *string `json:"customDomain"`
	UserID       string  `json:"userId"`

	// Timestamps are passed through as sent; see render for display.
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`

	// Deployments is only populated by the single-project endpoint.
	// Consumers assume most-recent-first; the client does not sort.
	Deployments []Deployment `json:"Deployment,omitempty"`
}

// Domain returns the custom domain, or "" when none is configured.
func (p *Project) Domain() string {
	if p == nil || p.CustomDomain == nil {
		return ""
	}
	return *p.CustomDomain
}

// Deployment is one build-and-publish attempt for a Project.
type Deployment struct {
	ID        string           `json:"id"`
	ProjectID string           `json:"projectId"`
	Status    DeploymentStatus `json:"status"`
	CreatedAt string           `json:"createdAt"`
	UpdatedAt string           `json:"updatedAt"`

	Project *Project `json:"project,omitempty"`
}

// LogEntry is one line of build output.
type LogEntry struct {
	EventID      string `json:"event_id"`
	DeploymentID string `json:"deployment_id"`
	Log          string `json:"log"`

	// Timestamp is passed through as sent; its format is owned by the
	// log store.
	Timestamp string `json:"timestamp,omitempty"`
}

// Key returns a stable key for the entry. Legacy entries without an event id
// fall back to their position in the list.
func (e LogEntry) Key(position int) string {
	if e.EventID != "" {
		return e.EventID
	}
	return strconv.Itoa(position)
}

// DeploymentLogs is the combined status and log snapshot returned by the
// logs endpoint. Logs is always the full known list, never a delta.
type DeploymentLogs struct {
	Deployment *Deployment `json:"deployment"`
	Logs       []LogEntry  `json:"logs"`
}

// CreateProjectInput is the request body for project creation.
type CreateProjectInput struct {
	Name      string `json:"name"`
	GitHubURL string `json:"github_url"`
}

// TriggerDeploymentInput is the request body for starting a deployment.
type TriggerDeploymentInput struct {
	ProjectID string `json:"project_id"`
}
