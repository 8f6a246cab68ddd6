package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/jvreagan/shipyard/pkg/config"
	"github.com/jvreagan/shipyard/pkg/logging"
	"github.com/jvreagan/shipyard/pkg/origin"
	"github.com/jvreagan/shipyard/pkg/poller"
	"github.com/jvreagan/shipyard/pkg/types"
)

// projectGetter resolves the project of a READY deployment for its site URL.
type projectGetter interface {
	GetProject(ctx context.Context, id string) (*types.Project, error)
}

type serverOptions struct {
	newPoller func() *poller.Poller
	projects  projectGetter
	resolver  *origin.Resolver
	outputDir string
}

// server exposes one poller per watched deployment over JSON.
type server struct {
	opts serverOptions

	// ctx outlives requests; pollers are attached with it.
	ctx context.Context

	mu      sync.Mutex
	watches map[string]*watch
}

type watch struct {
	poller  *poller.Poller
	siteURL string
}

// WatchView is the JSON body of the watch endpoints.
type WatchView struct {
	DeploymentID string            `json:"deploymentId"`
	State        string            `json:"state"`
	Polling      bool              `json:"polling"`
	Loading      bool              `json:"loading"`
	Error        string            `json:"error,omitempty"`
	Deployment   *types.Deployment `json:"deployment"`
	Logs         []types.LogEntry  `json:"logs"`
	SiteURL      string            `json:"siteUrl,omitempty"`
}

func newServer(ctx context.Context, opts serverOptions) *server {
	if opts.resolver == nil {
		opts.resolver = origin.New("")
	}
	if opts.outputDir == "" {
		opts.outputDir = "generated-configs"
	}
	return &server{opts: opts, ctx: ctx, watches: make(map[string]*watch)}
}

func (s *server) routes() http.Handler {
	r := mux.NewRouter()
	r.Use(corsMiddleware)

	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.HandleFunc("/api/watch", s.listWatches).Methods(http.MethodGet)
	r.HandleFunc("/api/watch/{id}", s.attachWatch).Methods(http.MethodPut)
	r.HandleFunc("/api/watch/{id}", s.getWatch).Methods(http.MethodGet)
	r.HandleFunc("/api/watch/{id}", s.detachWatch).Methods(http.MethodDelete)
	r.HandleFunc("/api/config", s.generateConfig).Methods(http.MethodPost)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

// attachWatch starts polling a deployment, or keeps polling it when it is
// already watched.
func (s *server) attachWatch(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !poller.ValidID(id) {
		writeError(w, http.StatusBadRequest, "invalid deployment id")
		return
	}

	s.mu.Lock()
	wt, ok := s.watches[id]
	if !ok {
		wt = &watch{poller: s.opts.newPoller()}
		s.watches[id] = wt
	}
	s.mu.Unlock()

	wt.poller.Attach(s.ctx, id)

	status := http.StatusOK
	if !ok {
		status = http.StatusAccepted
	}
	writeJSON(w, status, s.view(r.Context(), wt))
}

func (s *server) getWatch(w http.ResponseWriter, r *http.Request) {
	wt := s.lookup(mux.Vars(r)["id"])
	if wt == nil {
		writeError(w, http.StatusNotFound, "deployment is not being watched")
		return
	}
	writeJSON(w, http.StatusOK, s.view(r.Context(), wt))
}

func (s *server) detachWatch(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.mu.Lock()
	wt, ok := s.watches[id]
	delete(s.watches, id)
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "deployment is not being watched")
		return
	}
	wt.poller.Detach()
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) listWatches(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.watches))
	for id := range s.watches {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	sort.Strings(ids)
	writeJSON(w, http.StatusOK, map[string][]string{"deployments": ids})
}

func (s *server) lookup(id string) *watch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watches[id]
}

func (s *server) view(ctx context.Context, wt *watch) WatchView {
	snap := wt.poller.Snapshot()
	v := WatchView{
		DeploymentID: snap.DeploymentID,
		State:        snap.State.String(),
		Polling:      snap.Armed,
		Loading:      snap.Loading,
		Error:        snap.Err,
		Deployment:   snap.Deployment,
		Logs:         snap.Logs,
	}
	if v.Logs == nil {
		v.Logs = []types.LogEntry{}
	}
	if d := snap.Deployment; d != nil && d.Status == types.StatusReady {
		v.SiteURL = s.siteURL(ctx, wt, d)
	}
	return v
}

// siteURL resolves and remembers the site of a READY deployment.
func (s *server) siteURL(ctx context.Context, wt *watch, d *types.Deployment) string {
	s.mu.Lock()
	cached := wt.siteURL
	s.mu.Unlock()
	if cached != "" {
		return cached
	}

	var u string
	switch {
	case d.Project != nil && d.Project.SubDomain != "":
		u = s.opts.resolver.SiteURL(d.Project)
	case s.opts.projects != nil:
		p, err := s.opts.projects.GetProject(ctx, d.ProjectID)
		if err != nil {
			logging.Debug("could not resolve site url", "project", d.ProjectID, "error", err)
			return ""
		}
		u = s.opts.resolver.SiteURL(p)
	}

	s.mu.Lock()
	wt.siteURL = u
	s.mu.Unlock()
	return u
}

// close detaches every poller.
func (s *server) close() {
	s.mu.Lock()
	watches := s.watches
	s.watches = make(map[string]*watch)
	s.mu.Unlock()

	for _, wt := range watches {
		wt.poller.Detach()
		wt.poller.Wait()
	}
}

// ConfigRequest is the form posted by the dashboard to produce a config
// file. Secrets are never accepted here; tokens come from login or a secret
// store.
type ConfigRequest struct {
	APIURL           string          `json:"api_url"`
	ReverseProxyHost string          `json:"reverse_proxy_host,omitempty"`
	PollInterval     string          `json:"poll_interval,omitempty"`
	Credentials      *CredentialsReq `json:"credentials,omitempty"`
	Archive          *ArchiveReq     `json:"archive,omitempty"`
	LogLevel         string          `json:"log_level,omitempty"`
}

type CredentialsReq struct {
	Source      string `json:"source"`
	EnvVar      string `json:"env_var,omitempty"`
	SessionFile string `json:"session_file,omitempty"`
	VaultAddr   string `json:"vault_address,omitempty"`
	VaultPath   string `json:"vault_path,omitempty"`
	SecretID    string `json:"secret_id,omitempty"`
	Region      string `json:"region,omitempty"`
}

type ArchiveReq struct {
	Provider   string `json:"provider"`
	Bucket     string `json:"bucket"`
	Prefix     string `json:"prefix,omitempty"`
	Region     string `json:"region,omitempty"`
	ProjectID  string `json:"project_id,omitempty"`
	LogName    string `json:"log_name,omitempty"`
	AccountURL string `json:"account_url,omitempty"`
}

func (req *ConfigRequest) toConfig() (*config.Config, error) {
	cfg := config.Default()
	if req.APIURL != "" {
		cfg.API.URL = req.APIURL
	}
	if req.ReverseProxyHost != "" {
		cfg.ReverseProxy.Host = req.ReverseProxyHost
	}
	if req.PollInterval != "" {
		d, err := time.ParseDuration(req.PollInterval)
		if err != nil {
			return nil, fmt.Errorf("invalid poll_interval: %w", err)
		}
		cfg.Poll.Interval = d
	}
	if req.LogLevel != "" {
		cfg.Logging.Level = req.LogLevel
	}

	if c := req.Credentials; c != nil {
		cfg.Credentials.Source = c.Source
		cfg.Credentials.EnvVar = c.EnvVar
		cfg.Credentials.SessionFile = c.SessionFile
		switch c.Source {
		case "vault":
			cfg.Credentials.Vault = &config.VaultConfig{Address: c.VaultAddr, Path: c.VaultPath}
		case "secrets-manager":
			cfg.Credentials.SecretsManager = &config.SecretsManagerConfig{SecretID: c.SecretID, Region: c.Region}
		}
	}

	if a := req.Archive; a != nil {
		cfg.Archive = config.ArchiveConfig{Provider: a.Provider, Bucket: a.Bucket, Prefix: a.Prefix, Region: a.Region}
		switch a.Provider {
		case "gcp":
			if a.ProjectID != "" || a.LogName != "" {
				cfg.Archive.GCP = &config.GCPArchiveConfig{ProjectID: a.ProjectID, LogName: a.LogName}
			}
		case "azure":
			cfg.Archive.Azure = &config.AzureArchiveConfig{AccountURL: a.AccountURL}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// generateConfig turns a ConfigRequest into a YAML config file under the
// output directory.
func (s *server) generateConfig(w http.ResponseWriter, r *http.Request) {
	var req ConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request: %v", err))
		return
	}

	cfg, err := req.toConfig()
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid config: %v", err))
		return
	}

	yamlData, err := cfg.Marshal()
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to generate YAML: %v", err))
		return
	}

	if err := os.MkdirAll(s.opts.outputDir, 0755); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to create config directory: %v", err))
		return
	}

	name := "local"
	if cfg.Archive.Provider != "" {
		name = cfg.Archive.Provider
	}
	filename := fmt.Sprintf("shipyard-%s-%s.yaml", name, time.Now().Format("20060102-150405"))
	path := filepath.Join(s.opts.outputDir, filename)

	if err := os.WriteFile(path, yamlData, 0644); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to write config file: %v", err))
		return
	}
	logging.Info("config generated", "path", path)

	writeJSON(w, http.StatusOK, map[string]string{
		"message":  "Config generated successfully",
		"filename": filename,
		"path":     path,
	})
}
