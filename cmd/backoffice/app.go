package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"backoffice/pkg/agent"
	"backoffice/pkg/agent/llm"
	"backoffice/pkg/agent/middleware/metrics"
	"backoffice/pkg/config"
	"backoffice/pkg/eventlog"
	"backoffice/pkg/fieldpath"
	"backoffice/pkg/logx"
	"backoffice/pkg/orchestrator"
	"backoffice/pkg/search"
	"backoffice/pkg/session"
	"backoffice/pkg/stage"
	"backoffice/pkg/templates"
	"backoffice/pkg/version"
)

// app is the wired pipeline behind chat and ask.
type app struct {
	cfg      config.Config
	runner   *orchestrator.Runner
	internal *metrics.InternalRecorder
	registry *prometheus.Registry
	toolset  *search.Toolset
	closers  []func() error
	logger   *logx.Logger
}

// buildApp wires config, models, search tools, stages and the session store into a runner.
func buildApp(ctx context.Context, cfg config.Config, opts *options) (_ *app, err error) {
	a := &app{
		cfg:      cfg,
		internal: metrics.NewInternalRecorder(),
		logger:   logx.NewLogger("backoffice"),
	}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	recorder := metrics.Recorder(a.internal)
	if cfg.Metrics.Enabled {
		a.registry = newMetricsRegistry()
		recorder = metrics.Multi(a.internal, metrics.NewPrometheusRecorder(a.registry))
	}

	clients := opts.clients
	if clients == nil {
		clients = agent.NewLLMClientFactory(cfg, recorder).CreateClient
	}

	renderer, err := templates.NewRenderer(instructionOverrides(&cfg.Instructions))
	if err != nil {
		return nil, err
	}

	fields, err := fieldpath.Load(cfg.Search.SchemaPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load field schema: %w", err)
	}

	a.toolset, err = search.Provision(ctx, &cfg.Search, a.logger.WithComponent("search"))
	if err != nil {
		return nil, fmt.Errorf("failed to provision search tools: %w", err)
	}
	a.closers = append(a.closers, a.toolset.Close)
	a.logger.Info("Search backend %s with %d tools", a.toolset.Backend, a.toolset.Registry.Len())

	registry, err := buildStages(cfg, clients, renderer, fields, a.toolset, recorder)
	if err != nil {
		return nil, err
	}

	sessions, err := openSessions(&cfg.Sessions)
	if err != nil {
		return nil, err
	}
	if c, ok := sessions.(io.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}

	runnerOpts := orchestrator.RunnerOptions{
		AppName:      cfg.AppName,
		HistoryLimit: cfg.Sessions.HistoryLimit,
		Recorder:     recorder,
	}
	if opts.transcriptDir != "" {
		writer, err := eventlog.NewWriter(opts.transcriptDir)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, writer.Close)
		runnerOpts.Transcript = writer
	}

	a.runner = orchestrator.NewRunner(orchestrator.New(registry, recorder), sessions, runnerOpts)
	return a, nil
}

func buildStages(cfg config.Config, clients clientSource, renderer *templates.Renderer, fields *fieldpath.Fields,
	toolset *search.Toolset, recorder metrics.Recorder) (*stage.Registry, error) {
	client := func(name string) (llm.LLMClient, error) {
		c, err := clients(name)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s client: %w", name, err)
		}
		return c, nil
	}

	classifierClient, err := client(agent.StageClassifier)
	if err != nil {
		return nil, err
	}
	domainClient, err := client(agent.StageDomain)
	if err != nil {
		return nil, err
	}
	generalClient, err := client(agent.StageGeneral)
	if err != nil {
		return nil, err
	}
	polisherClient, err := client(agent.StagePolisher)
	if err != nil {
		return nil, err
	}
	guardClient, err := client(agent.StageGuard)
	if err != nil {
		return nil, err
	}

	classifier, err := stage.NewClassifier(classifierClient, renderer)
	if err != nil {
		return nil, err
	}
	general, err := stage.NewGeneralResponder(generalClient, renderer)
	if err != nil {
		return nil, err
	}
	polisher, err := stage.NewPolisher(polisherClient, renderer)
	if err != nil {
		return nil, err
	}

	guard := stage.NewGuard(stage.GuardOptions{
		PayloadParam: cfg.Search.PayloadParam,
		Translator:   guardClient,
		Renderer:     renderer,
		Recorder:     recorder,
	})
	domain, err := stage.NewDomainResponder(&stage.DomainOptions{
		Client:          domainClient,
		Renderer:        renderer,
		Fields:          fields,
		Index:           cfg.Search.Index,
		PayloadParam:    cfg.Search.PayloadParam,
		Tools:           toolset.Registry,
		Guard:           guard,
		MaxIterations:   cfg.ToolLoop.MaxIterations,
		MaxTokens:       cfg.ToolLoop.MaxTokens,
		MaxResultTokens: cfg.ToolLoop.MaxResultTokens,
	})
	if err != nil {
		return nil, err
	}

	auth := stage.NewAuthChallenge(stage.SecretFromConfig(cfg.Auth.SecretName))

	return stage.NewRegistry(classifier, auth, domain, general, polisher)
}

func instructionOverrides(in *config.InstructionsConfig) map[templates.StateTemplate]string {
	return map[templates.StateTemplate]string{
		templates.ClassifierTemplate:     in.Classifier,
		templates.DomainTemplate:         in.Domain,
		templates.GeneralTemplate:        in.General,
		templates.PolisherTemplate:       in.Polisher,
		templates.GuardTranslateTemplate: in.GuardTranslate,
	}
}

func openSessions(cfg *config.SessionsConfig) (session.Service, error) {
	switch cfg.Backend {
	case config.SessionBackendSQLite:
		svc, err := session.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open session store: %w", err)
		}
		return svc, nil
	case config.SessionBackendMemory, "":
		return session.NewMemoryService(), nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Backend)
	}
}

func newMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		version.NewCollector(),
	)
	return reg
}

// metricsHandler serves /metrics from reg and a plain /healthz.
func metricsHandler(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

// serveMetrics starts the metrics endpoint in the background and registers its shutdown.
func (a *app) serveMetrics() {
	if a.registry == nil {
		return
	}
	srv := &http.Server{
		Addr:              a.cfg.Metrics.Listen,
		Handler:           metricsHandler(a.registry),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Warn("Metrics endpoint stopped: %v", err)
		}
	}()
	a.logger.Info("Serving metrics on %s", a.cfg.Metrics.Listen)
	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	})
}

// Close releases everything buildApp opened, last opened first.
func (a *app) Close() error {
	var errs []string
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err.Error())
		}
	}
	a.closers = nil
	if len(errs) > 0 {
		return fmt.Errorf("shutdown: %s", strings.Join(errs, "; "))
	}
	return nil
}
