package main

import (
	"context"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/alfredjeanlab/tower/internal/client"
	"github.com/alfredjeanlab/tower/internal/config"
	"github.com/alfredjeanlab/tower/internal/events"
	"github.com/alfredjeanlab/tower/internal/export"
	"github.com/alfredjeanlab/tower/internal/graph"
	"github.com/alfredjeanlab/tower/internal/investigation"
	"github.com/alfredjeanlab/tower/internal/stream"
)

// localConsole is an in-process controller together with the connections
// it was built on.
type localConsole struct {
	ctrl      *investigation.Controller
	publisher events.Publisher
	closers   []func() error
}

// Close stops the controller first so no event is published to a closed
// connection.
func (lc *localConsole) Close(logger *slog.Logger) {
	lc.ctrl.Close()
	if err := lc.publisher.Close(); err != nil {
		logger.Error("error closing publisher", "err", err)
	}
	for _, c := range lc.closers {
		if err := c(); err != nil {
			logger.Error("error closing connection", "err", err)
		}
	}
}

// buildConsole wires a controller to the upstream services named by cfg.
// wrap, when non-nil, decorates the event publisher.
func buildConsole(ctx context.Context, cfg *config.Config, logger *slog.Logger, wrap func(events.Publisher) events.Publisher) (*localConsole, error) {
	lc := &localConsole{}
	fail := func(err error) (*localConsole, error) {
		for _, c := range lc.closers {
			_ = c()
		}
		return nil, err
	}

	var sub stream.Subscriber
	if cfg.NATSURL != "" {
		ns, err := events.NewNATSSubscriber(cfg.NATSURL,
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				logger.Warn("nats disconnected", "err", err)
			}),
			nats.ReconnectHandler(func(_ *nats.Conn) {
				logger.Info("nats reconnected")
			}),
		)
		if err != nil {
			return fail(err)
		}
		lc.closers = append(lc.closers, ns.Close)
		sub = events.NewStageSubscriber(ns)
		logger.Info("stage events over NATS", "nats_url", cfg.NATSURL)
	} else {
		sub = client.NewSSESubscriber(cfg.VisualURL, cfg.Token)
		logger.Info("stage events over SSE", "visual_url", cfg.VisualURL)
	}

	var src graph.Source
	if cfg.GraphFile != "" {
		src = graph.FileSource{Path: cfg.GraphFile}
		logger.Info("graph from file", "path", cfg.GraphFile)
	} else {
		src = client.NewHTTPClient(cfg.GraphURL, cfg.Token)
		logger.Info("graph from service", "graph_url", cfg.GraphURL)
	}

	var publisher events.Publisher = &events.NoopPublisher{}
	if cfg.NATSURL != "" {
		pub, err := events.NewNATSPublisher(cfg.NATSURL)
		if err != nil {
			return fail(err)
		}
		publisher = pub
	}
	if wrap != nil {
		publisher = wrap(publisher)
	}
	lc.publisher = publisher

	opts := investigation.Options{
		Submitter:   client.NewHTTPClient(cfg.TransactionURL, cfg.Token),
		Stream:      sub,
		Graph:       src,
		Publisher:   publisher,
		IdleTimeout: cfg.StreamIdleTimeout,
		Logger:      logger,
	}
	if exporter := buildExporter(ctx, cfg, logger); exporter != nil {
		opts.Reporter = exporter
	}
	lc.ctrl = investigation.New(opts)
	return lc, nil
}

// buildExporter returns nil when no report destination is configured or
// none could be created.
func buildExporter(ctx context.Context, cfg *config.Config, logger *slog.Logger) *export.Exporter {
	if !cfg.ReportsEnabled() {
		return nil
	}
	var dests []export.Destination
	if cfg.ReportDir != "" {
		dests = append(dests, export.NewFileDestination(cfg.ReportDir))
		logger.Info("report file destination enabled", "dir", cfg.ReportDir)
	}
	if cfg.ReportS3Bucket != "" {
		s3Dest, err := export.NewS3Destination(ctx, cfg.ReportS3Bucket, cfg.ReportS3Prefix, cfg.ReportS3Region, cfg.ReportS3Endpoint)
		if err != nil {
			logger.Error("failed to create S3 report destination", "err", err)
		} else {
			dests = append(dests, s3Dest)
			logger.Info("report S3 destination enabled", "bucket", cfg.ReportS3Bucket, "prefix", cfg.ReportS3Prefix)
		}
	}
	if cfg.ReportGitRepo != "" {
		dests = append(dests, export.NewGitDestination(cfg.ReportGitRepo, cfg.ReportGitDir, cfg.ReportGitBranch))
		logger.Info("report git destination enabled", "repo", cfg.ReportGitRepo, "dir", cfg.ReportGitDir)
	}
	if len(dests) == 0 {
		return nil
	}
	return export.NewExporter(dests, logger)
}
