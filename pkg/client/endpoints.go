package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/jvreagan/shipyard/pkg/types"
)

// ListProjects returns the caller's projects.
func (c *Client) ListProjects(ctx context.Context) ([]types.Project, error) {
	return do[[]types.Project](ctx, c, http.MethodGet, "/projects", nil)
}

// GetProject returns one project including its nested deployments.
func (c *Client) GetProject(ctx context.Context, id string) (*types.Project, error) {
	return record[types.Project](ctx, c, http.MethodGet, "/projects/"+url.PathEscape(id), "Project")
}

// CreateProject registers a new project from a source repository. The
// returned project is nil when the platform acknowledges without a body.
func (c *Client) CreateProject(ctx context.Context, in types.CreateProjectInput) (*types.Project, error) {
	return do[*types.Project](ctx, c, http.MethodPost, "/projects", in)
}

// DeleteProject removes a project.
func (c *Client) DeleteProject(ctx context.Context, id string) error {
	_, err := c.Call(ctx, http.MethodDelete, "/projects/"+url.PathEscape(id), nil)
	return err
}

// ListDeployments returns the deployments of a project.
func (c *Client) ListDeployments(ctx context.Context, projectID string) ([]types.Deployment, error) {
	return do[[]types.Deployment](ctx, c, http.MethodGet, "/projects/"+url.PathEscape(projectID)+"/deployments", nil)
}

// GetDeployment returns one deployment.
func (c *Client) GetDeployment(ctx context.Context, id string) (*types.Deployment, error) {
	return record[types.Deployment](ctx, c, http.MethodGet, "/deployments/"+url.PathEscape(id), "Deployment")
}

// TriggerDeployment queues a new build of a project. The returned
// deployment is nil when the platform acknowledges without a body.
func (c *Client) TriggerDeployment(ctx context.Context, projectID string) (*types.Deployment, error) {
	return do[*types.Deployment](ctx, c, http.MethodPost, "/deploy", types.TriggerDeploymentInput{ProjectID: projectID})
}

// DeploymentLogs returns a deployment together with its full log snapshot.
// This is the single request made by each poller fetch-cycle.
func (c *Client) DeploymentLogs(ctx context.Context, id string) (*types.DeploymentLogs, error) {
	dl, err := record[types.DeploymentLogs](ctx, c, http.MethodGet, "/deployments/"+url.PathEscape(id)+"/logs", "Deployment")
	if err != nil {
		return nil, err
	}
	if dl.Deployment == nil {
		return nil, notFound("Deployment")
	}
	return dl, nil
}
