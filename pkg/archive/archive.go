// Package archive stores the final log snapshot of a finished deployment in
// object storage.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/jvreagan/shipyard/pkg/clock"
	"github.com/jvreagan/shipyard/pkg/logging"
	"github.com/jvreagan/shipyard/pkg/provider"
	"github.com/jvreagan/shipyard/pkg/types"
)

// ErrNotFinished is returned when archiving a deployment that is still
// building. Logs are only archived once they can no longer change.
var ErrNotFinished = errors.New("deployment has not finished")

// Record is the archived document.
type Record struct {
	Deployment types.Deployment `json:"deployment"`
	Logs       []types.LogEntry `json:"logs"`
	ArchivedAt time.Time        `json:"archived_at"`
}

// ObjectKey returns "<prefix>/<projectID>/<deploymentID>.json" with an empty
// prefix omitted.
func ObjectKey(prefix, projectID, deploymentID string) string {
	key := path.Join(projectID, deploymentID+".json")
	if p := strings.Trim(prefix, "/"); p != "" {
		key = p + "/" + key
	}
	return key
}

// Encode builds the archived document for dl. It refuses deployments whose
// status is not READY or FAIL.
func Encode(dl *types.DeploymentLogs, now time.Time) ([]byte, error) {
	if dl == nil || dl.Deployment == nil {
		return nil, fmt.Errorf("nothing to archive")
	}
	if !dl.Deployment.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotFinished, dl.Deployment.ID, dl.Deployment.Status)
	}

	rec := Record{
		Deployment: *dl.Deployment,
		Logs:       dl.Logs,
		ArchivedAt: now.UTC(),
	}
	if rec.Logs == nil {
		rec.Logs = []types.LogEntry{}
	}
	rec.Deployment.Project = nil

	return json.MarshalIndent(rec, "", "  ")
}

// Archiver uploads deployment records through a provider.
type Archiver struct {
	provider provider.Provider
	prefix   string
	clock    clock.Clock
	prepared bool
}

// New returns an Archiver writing under prefix.
func New(p provider.Provider, prefix string, clk clock.Clock) *Archiver {
	if clk == nil {
		clk = clock.Real()
	}
	return &Archiver{provider: p, prefix: prefix, clock: clk}
}

// Archive uploads the record for dl and returns its location. When the
// provider also implements provider.LogMirror the log lines are mirrored
// after the upload.
func (a *Archiver) Archive(ctx context.Context, dl *types.DeploymentLogs) (string, error) {
	data, err := Encode(dl, a.clock.Now())
	if err != nil {
		return "", err
	}

	if !a.prepared {
		if err := a.provider.Prepare(ctx); err != nil {
			return "", fmt.Errorf("failed to prepare %s archive: %w", a.provider.Name(), err)
		}
		a.prepared = true
	}

	d := dl.Deployment
	key := ObjectKey(a.prefix, d.ProjectID, d.ID)
	if err := a.provider.Upload(ctx, key, data); err != nil {
		return "", err
	}
	location := a.provider.Location(key)
	logging.Info("archived deployment logs", "deployment", d.ID, "status", d.Status, "lines", len(dl.Logs), "location", location)

	if m, ok := a.provider.(provider.LogMirror); ok {
		if err := m.MirrorLogs(ctx, d, dl.Logs); err != nil {
			return location, fmt.Errorf("archived to %s but mirroring failed: %w", location, err)
		}
	}
	return location, nil
}

// Close closes the underlying provider.
func (a *Archiver) Close() error {
	return a.provider.Close()
}
