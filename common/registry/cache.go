package registry

import (
	"context"
	"fmt"
	"path"
	"reflect"
	"sync"
	"time"

	"github.com/relaydeck/deploykit/common/outcome"
	"github.com/relaydeck/deploykit/common/runner"
	"go.uber.org/zap"
)

const (
	LoginTimeout  = 60 * time.Second
	defaultTTL    = 30 * time.Minute
	probeTimeout  = 10 * time.Second
	imagesTimeout = 30 * time.Second
)

// Client runs docker registry operations. Successful logins and detected capabilities are cached
// so batch builds and pushes don't repeat them for every image.
type Client struct {
	runner runner.Runner
	log    *zap.Logger
	// Minimum time before a cached login is repeated.
	ttl time.Duration
	now func() time.Time
	// Mutex governing logins and capabilities.
	mu           sync.Mutex
	logins       map[string]loginState
	capabilities map[Capability]capabilityState
}

type loginState struct {
	user string
	at   time.Time
}

type clientCfg struct {
	ttl time.Duration
	log *zap.Logger
	now func() time.Time
}

type ClientOpt func(*clientCfg)

// WithLoginTTL sets how long a successful login is reused. Zero disables caching.
func WithLoginTTL(d time.Duration) ClientOpt {
	return func(cfg *clientCfg) {
		if d < 0 {
			d = 0
		}
		cfg.ttl = d
	}
}

func WithLogger(log *zap.Logger) ClientOpt {
	return func(cfg *clientCfg) {
		cfg.log = log.With(zap.String("component", path.Base(reflect.TypeOf(Client{}).PkgPath())))
	}
}

// withClock is used by tests to control cache expiry.
func withClock(now func() time.Time) ClientOpt {
	return func(cfg *clientCfg) {
		cfg.now = now
	}
}

func New(r runner.Runner, opts ...ClientOpt) *Client {
	cfg := &clientCfg{
		ttl: defaultTTL,
		log: zap.NewNop(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Client{
		runner:       r,
		log:          cfg.log,
		ttl:          cfg.ttl,
		now:          cfg.now,
		logins:       make(map[string]loginState),
		capabilities: make(map[Capability]capabilityState),
	}
}

// Login authenticates against a registry. The password is written to docker on stdin so it never
// appears in the process table. An empty registry means Docker Hub.
func (c *Client) Login(ctx context.Context, registry string, user string, password []byte) outcome.StepOutcome {
	if user == "" || len(password) == 0 {
		return outcome.FromError(outcome.InvalidArgument, ErrMissingCredentials)
	}
	args := []string{"login"}
	if registry != "" {
		args = append(args, registry)
	}
	args = append(args, "-u", user, "--password-stdin")
	result := c.runner.Run(ctx, runner.New("docker", args...).WithStdin(password).WithTimeout(LoginTimeout))

	c.mu.Lock()
	defer c.mu.Unlock()
	if !result.Success {
		delete(c.logins, registry)
		return result.WithMessage(fmt.Sprintf("login to %s failed: %s", displayRegistry(registry), result.Message))
	}
	c.logins[registry] = loginState{user: user, at: c.now()}
	return result.WithMessage(fmt.Sprintf("logged in to %s as %s", displayRegistry(registry), user))
}

// EnsureLogin logs in unless the same user logged in to the registry within the TTL.
func (c *Client) EnsureLogin(ctx context.Context, registry string, user string, password []byte) outcome.StepOutcome {
	c.mu.Lock()
	state, ok := c.logins[registry]
	c.mu.Unlock()
	if ok && state.user == user && c.now().Sub(state.at) < c.ttl {
		c.log.Debug("reusing cached registry login", zap.String("registry", displayRegistry(registry)), zap.String("user", user))
		return outcome.Succeeded(fmt.Sprintf("already logged in to %s as %s", displayRegistry(registry), user))
	}
	return c.Login(ctx, registry, user, password)
}

func (c *Client) Logout(ctx context.Context, registry string) outcome.StepOutcome {
	args := []string{"logout"}
	if registry != "" {
		args = append(args, registry)
	}
	c.mu.Lock()
	delete(c.logins, registry)
	c.mu.Unlock()
	return c.runner.Run(ctx, runner.New("docker", args...).WithTimeout(LoginTimeout))
}

func displayRegistry(registry string) string {
	if registry == "" {
		return "Docker Hub"
	}
	return registry
}
