package endpoint

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/m-mizutani/ghrelease/pkg/domain/interfaces"
	"github.com/m-mizutani/ghrelease/pkg/domain/model"
	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
)

const publicAPIBase = "https://api.github.com"

var (
	// ErrUnknownEndpoint means no profile has the requested name
	ErrUnknownEndpoint = goerr.New("unknown endpoint")

	// ErrNoCredential means the profile has neither a token nor App credentials
	ErrNoCredential = goerr.New("no credential configured for endpoint")
)

// App holds GitHub App installation credentials
type App struct {
	AppID          int64  `toml:"app_id"`
	InstallationID int64  `toml:"installation_id"`
	PrivateKey     string `toml:"private_key" masq:"secret"`
	PrivateKeyFile string `toml:"private_key_file"`
}

func (a *App) configured() bool {
	return a != nil && a.AppID != 0 && a.InstallationID != 0 && (a.PrivateKey != "" || a.PrivateKeyFile != "")
}

// Profile is one configured connection to a GitHub instance
type Profile struct {
	Name     string `toml:"name"`
	URL      string `toml:"url"` // Web or API URL. Empty means github.com
	Token    string `toml:"token" masq:"secret"`
	TokenEnv string `toml:"token_env"`
	App      *App   `toml:"app"`
}

type file struct {
	Endpoints []Profile `toml:"endpoint"`
}

// Registry resolves endpoints to API base URLs and tokens
type Registry struct {
	profiles map[model.Endpoint]Profile
	base     http.RoundTripper

	mutex sync.Mutex
	apps  map[model.Endpoint]*ghinstallation.Transport
}

var (
	_ interfaces.TokenResolver   = (*Registry)(nil)
	_ interfaces.APIBaseResolver = (*Registry)(nil)
)

// New creates a registry from profiles. A later profile replaces an earlier
// one with the same name.
func New(profiles ...Profile) *Registry {
	r := &Registry{
		profiles: make(map[model.Endpoint]Profile, len(profiles)),
		base:     http.DefaultTransport,
		apps:     make(map[model.Endpoint]*ghinstallation.Transport),
	}
	for _, p := range profiles {
		r.profiles[model.Endpoint(p.Name)] = p
	}
	return r
}

// Load reads a TOML file of [[endpoint]] tables. An extra profile whose name
// matches a file profile is laid over it: its non-empty fields win and the
// file keeps the rest.
func Load(path string, extra ...Profile) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read endpoint file", goerr.V("path", path))
	}

	var f file
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, goerr.Wrap(err, "failed to parse endpoint file", goerr.V("path", path))
	}

	for i, p := range f.Endpoints {
		if p.Name == "" {
			return nil, goerr.New("endpoint without name", goerr.V("path", path), goerr.V("index", i))
		}
	}

	profiles := f.Endpoints
	for _, o := range extra {
		merged := false
		for i := range profiles {
			if profiles[i].Name == o.Name {
				profiles[i] = profiles[i].overlay(o)
				merged = true
			}
		}
		if !merged {
			profiles = append(profiles, o)
		}
	}

	return New(profiles...), nil
}

func (p Profile) overlay(o Profile) Profile {
	if o.URL != "" {
		p.URL = o.URL
	}
	if o.Token != "" {
		p.Token = o.Token
	}
	if o.TokenEnv != "" {
		p.TokenEnv = o.TokenEnv
	}
	if o.App != nil {
		p.App = o.App
	}
	return p
}

// Names returns the configured endpoint names
func (r *Registry) Names() []model.Endpoint {
	names := make([]model.Endpoint, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}
	return names
}

// APIBase returns https://api.github.com for github.com profiles and
// {url}/api/v3 for enterprise servers.
func (r *Registry) APIBase(ctx context.Context, endpoint model.Endpoint) (string, error) {
	p, ok := r.profiles[endpoint]
	if !ok {
		return "", goerr.Wrap(ErrUnknownEndpoint, "cannot resolve API base", goerr.V("endpoint", endpoint))
	}
	return apiBase(p.URL)
}

// Token returns the token of the profile. Precedence is the literal token,
// then the environment variable, then a GitHub App installation token.
func (r *Registry) Token(ctx context.Context, endpoint model.Endpoint) (string, error) {
	p, ok := r.profiles[endpoint]
	if !ok {
		return "", goerr.Wrap(ErrUnknownEndpoint, "cannot resolve token", goerr.V("endpoint", endpoint))
	}

	if p.Token != "" {
		return p.Token, nil
	}
	if p.TokenEnv != "" {
		if v := os.Getenv(p.TokenEnv); v != "" {
			return v, nil
		}
	}
	if p.App.configured() {
		return r.appToken(ctx, endpoint, p)
	}

	return "", goerr.Wrap(ErrNoCredential, "cannot resolve token",
		goerr.V("endpoint", endpoint),
		goerr.V("token_env", p.TokenEnv),
	)
}

// appToken reuses one installation transport per endpoint; it refreshes the
// token only when it is about to expire.
func (r *Registry) appToken(ctx context.Context, endpoint model.Endpoint, p Profile) (string, error) {
	r.mutex.Lock()
	itr, ok := r.apps[endpoint]
	if !ok {
		var err error
		itr, err = newAppTransport(r.base, p)
		if err != nil {
			r.mutex.Unlock()
			return "", err
		}
		r.apps[endpoint] = itr
	}
	r.mutex.Unlock()

	token, err := itr.Token(ctx)
	if err != nil {
		return "", goerr.Wrap(err, "failed to get installation token",
			goerr.V("endpoint", endpoint),
			goerr.V("app_id", p.App.AppID),
			goerr.V("installation_id", p.App.InstallationID),
		)
	}
	return token, nil
}

func newAppTransport(base http.RoundTripper, p Profile) (*ghinstallation.Transport, error) {
	key := []byte(p.App.PrivateKey)
	if len(key) == 0 {
		data, err := os.ReadFile(p.App.PrivateKeyFile)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read GitHub App private key", goerr.V("path", p.App.PrivateKeyFile))
		}
		key = data
	}

	itr, err := ghinstallation.New(base, p.App.AppID, p.App.InstallationID, key)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create GitHub App transport", goerr.V("app_id", p.App.AppID))
	}

	apiURL, err := apiBase(p.URL)
	if err != nil {
		return nil, err
	}
	itr.BaseURL = apiURL

	return itr, nil
}

func apiBase(raw string) (string, error) {
	if raw == "" {
		return publicAPIBase, nil
	}

	u, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", goerr.New("invalid endpoint URL", goerr.V("url", raw))
	}

	switch strings.ToLower(u.Hostname()) {
	case "github.com", "www.github.com", "api.github.com":
		return publicAPIBase, nil
	}

	if strings.HasSuffix(u.Path, "/api/v3") {
		return u.String(), nil
	}
	return u.String() + "/api/v3", nil
}
