package app

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"k8s.io/klog/v2"

	"github.com/five82/vapor-console/internal/api"
	"github.com/five82/vapor-console/internal/auth"
	"github.com/five82/vapor-console/internal/bus"
	"github.com/five82/vapor-console/internal/config"
	"github.com/five82/vapor-console/internal/kubernetes"
	"github.com/five82/vapor-console/internal/metrics"
	"github.com/five82/vapor-console/internal/network"
	"github.com/five82/vapor-console/internal/prefs"
	"github.com/five82/vapor-console/internal/ui"
	"github.com/five82/vapor-console/internal/uistate"
	"github.com/five82/vapor-console/internal/virtualization"
)

// Options configure the console application.
type Options struct {
	Config     *config.Config // used as is when set
	ConfigPath string
	PrefsPath  string // empty uses default ~/.config/vapor-console/prefs.toml
	PollEvery  int    // seconds; zero uses the config value
}

// Services is the wired set of stores the UI renders.
type Services struct {
	Config         config.Config
	Prefs          *prefs.Store
	Bus            *bus.Bus
	Tokens         *auth.Tokens
	Client         *api.Client
	UI             *uistate.Service
	Virtualization *virtualization.Service
	Kubernetes     *kubernetes.Service
	Network        *network.Service
	Metrics        *metrics.Service

	unsubs []func()
}

// Build wires every service over store. scheme may be nil.
func Build(cfg config.Config, store *prefs.Store, scheme uistate.ColorScheme) (*Services, error) {
	b := bus.New()
	tokens := auth.New(store, b)

	client, err := api.NewClient(cfg.APIURL, api.Options{Prefix: cfg.APIPrefix, Tokens: tokens})
	if err != nil {
		return nil, fmt.Errorf("init api client: %w", err)
	}

	uiSvc := uistate.New(uistate.Options{Prefs: store, Bus: b, Scheme: scheme})
	virt := virtualization.New(virtualization.Options{Client: client, Storage: store, UI: uiSvc})
	kube := kubernetes.New(kubernetes.Options{Client: client, Namespace: cfg.Namespace})
	netSvc := network.New(network.Options{Client: client})

	s := &Services{
		Config:         cfg,
		Prefs:          store,
		Bus:            b,
		Tokens:         tokens,
		Client:         client,
		UI:             uiSvc,
		Virtualization: virt,
		Kubernetes:     kube,
		Network:        netSvc,
	}
	s.Metrics = metrics.New(metrics.Options{
		Client:  client,
		Prefs:   store,
		Tokens:  tokens,
		FeedURL: s.MetricsFeedURL,
	})
	s.unsubs = append(s.unsubs, b.Subscribe(bus.AuthLogout, func(any) {
		virt.Cleanup()
		kube.Clear()
		netSvc.Cleanup()
		s.Metrics.Reset()
		klog.InfoS("Cleared stores after logout")
	}))
	return s, nil
}

// StateFeedURL resolves the VM state feed, preferring the configured ws_url.
func (s *Services) StateFeedURL() (string, error) {
	var (
		u   *url.URL
		err error
	)
	token := s.Tokens.Token()
	if s.Config.WSURL != "" {
		u, err = s.Client.WebSocketURL(s.Config.WSURL, token)
	} else {
		u, err = s.Client.WebSocketURL(virtualization.StateFeedPath, token)
	}
	if err != nil {
		return "", fmt.Errorf("resolve state feed: %w", err)
	}
	return u.String(), nil
}

// MetricsFeedURL resolves the host metrics feed at the backend root. The
// token travels in the first feed message, not the URL.
func (s *Services) MetricsFeedURL() (string, error) {
	u, err := s.Client.RootWebSocketURL(metrics.FeedPath)
	if err != nil {
		return "", fmt.Errorf("resolve metrics feed: %w", err)
	}
	return u.String(), nil
}

// Close releases every service in reverse construction order.
func (s *Services) Close() {
	for _, u := range s.unsubs {
		u()
	}
	s.unsubs = nil
	s.Metrics.Close()
	s.Network.Close()
	s.Kubernetes.Close()
	s.Virtualization.Close()
	s.UI.Close()
}

// Run boots the console TUI until the context is cancelled.
func Run(ctx context.Context, opts Options) error {
	var cfg config.Config
	if opts.Config != nil {
		cfg = *opts.Config
	} else {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	store, err := prefs.Open(opts.PrefsPath)
	if err != nil {
		return fmt.Errorf("open prefs: %w", err)
	}
	go func() {
		if err := store.Watch(ctx); err != nil {
			klog.ErrorS(err, "Prefs watch stopped", "path", store.Path())
		}
	}()

	scheme := ui.TerminalScheme()
	svc, err := Build(cfg, store, scheme)
	if err != nil {
		return err
	}
	defer svc.Close()

	interval := cfg.PollInterval()
	if opts.PollEvery > 0 {
		interval = time.Duration(opts.PollEvery) * time.Second
	}

	// Populate the stores before the UI starts; failures are already
	// surfaced on each collection.
	if err := svc.Virtualization.Initialize(ctx); err != nil {
		klog.ErrorS(err, "Initial virtualization load incomplete")
	}
	if err := svc.Metrics.FetchSystemInfo(ctx); err != nil {
		klog.ErrorS(err, "Host info unavailable")
	}
	svc.Metrics.Connect(ctx)

	StartPoller(ctx, interval,
		Target{Name: "virtualization", Refresher: svc.Virtualization},
		Target{Name: "kubernetes", Refresher: svc.Kubernetes},
		Target{Name: "network", Refresher: svc.Network},
	)

	watcher := virtualization.NewWatcher(svc.Virtualization, svc.StateFeedURL, nil)
	go watcher.Run(ctx)

	return ui.Run(ui.Options{
		Context:        ctx,
		UI:             svc.UI,
		Virtualization: svc.Virtualization,
		Kubernetes:     svc.Kubernetes,
		Network:        svc.Network,
		Metrics:        svc.Metrics,
		Tokens:         svc.Tokens,
		Scheme:         scheme,
		RefreshEvery:   time.Second,
	})
}
