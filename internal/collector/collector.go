// Package collector wires the listeners, pollers, flush schedulers, and
// the store into one running engine with cooperative shutdown.
package collector

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/skovlund/netwatch/internal/checkpoint"
	"github.com/skovlund/netwatch/internal/config"
	"github.com/skovlund/netwatch/internal/decode"
	"github.com/skovlund/netwatch/internal/listener"
	"github.com/skovlund/netwatch/internal/metrics"
	"github.com/skovlund/netwatch/internal/model"
	"github.com/skovlund/netwatch/internal/pipeline"
	"github.com/skovlund/netwatch/internal/poller"
	"github.com/skovlund/netwatch/internal/store"
)

// Collector owns every moving part of the ingestion engine.
type Collector struct {
	cfg     config.Config
	store   *store.Postgres
	ckpt    *checkpoint.Store
	dec     *decode.Decoder
	buffers map[string]*pipeline.Buffer
}

// New connects the destination store and loads checkpoint state. Only a
// configuration or connection problem here should stop the process.
func New(ctx context.Context, cfg config.Config) (*Collector, error) {
	dsn, err := cfg.Database.DSN()
	if err != nil {
		return nil, err
	}
	st, err := store.Connect(ctx, dsn, cfg.Pipeline.StagingDir)
	if err != nil {
		return nil, err
	}
	ck, err := checkpoint.NewStore(cfg.Pipeline.StateDir)
	if err != nil {
		st.Close()
		return nil, err
	}

	buffers := make(map[string]*pipeline.Buffer)
	for _, label := range model.Labels() {
		buffers[label] = pipeline.NewBuffer(label)
	}

	return &Collector{
		cfg:     cfg,
		store:   st,
		ckpt:    ck,
		dec:     decode.New(),
		buffers: buffers,
	}, nil
}

// Run starts all tasks and blocks until ctx is cancelled. Shutdown order:
// ingestion stops first, then every scheduler performs a final flush (which
// persists checkpoints through the usual commit path), then the store
// closes.
func (c *Collector) Run(ctx context.Context) error {
	if c.cfg.Metrics.Enabled {
		metrics.Serve(c.cfg.Metrics.Addr)
		slog.Info("metrics endpoint started", "addr", c.cfg.Metrics.Addr)
	}

	srv := listener.Start(ctx, listener.Config{
		Addr:            c.cfg.Listen.Addr,
		MaxMessageBytes: c.cfg.Listen.MaxMessageBytes,
	}, c.ingestSyslog)

	var ingest sync.WaitGroup

	routerCommit, err := c.startRouter(ctx, &ingest)
	if err != nil {
		return err
	}
	eventlogCommit, err := c.startEventLog(ctx, &ingest)
	if err != nil {
		return err
	}

	// Schedulers get their own context so they outlive the producers and
	// can run the final flush after ingestion has fully stopped.
	flushCtx, stopFlush := context.WithCancel(context.Background())
	var flush sync.WaitGroup
	c.startScheduler(flushCtx, &flush, model.SourceSyslog, nil)
	c.startScheduler(flushCtx, &flush, model.SourceRouter, routerCommit)
	c.startScheduler(flushCtx, &flush, model.SourceWifiScan, eventlogCommit)

	<-ctx.Done()
	slog.Info("shutting down, draining buffers")

	srv.Close()
	ingest.Wait()
	stopFlush()
	flush.Wait()

	c.store.Close()
	slog.Info("collector stopped")
	return nil
}

// ingestSyslog decodes one network-delivered line into the syslog buffer.
func (c *Collector) ingestSyslog(line, remoteAddr string) {
	ev := c.dec.Syslog(line)
	ev.RemoteEndpoint = remoteAddr
	c.buffers[model.SourceSyslog].Add(ev)
	metrics.EventsIngested.WithLabelValues(model.SourceSyslog).Inc()
}

func (c *Collector) startScheduler(ctx context.Context, wg *sync.WaitGroup, label string, commit pipeline.CommitFunc) {
	var opts []pipeline.Option
	if commit != nil {
		opts = append(opts, pipeline.WithCommit(commit))
	}
	sched := pipeline.NewScheduler(
		c.buffers[label], c.store,
		c.cfg.Pipeline.FlushInterval, c.cfg.Pipeline.MinBatchSize,
		opts...,
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Run(ctx)
	}()
}

// startRouter builds and launches the router poller when enabled, returning
// its checkpoint commit hook.
func (c *Collector) startRouter(ctx context.Context, wg *sync.WaitGroup) (pipeline.CommitFunc, error) {
	if !c.cfg.Router.Enabled {
		return nil, nil
	}

	fetcher, err := c.routerFetcher()
	if err != nil {
		return nil, err
	}
	cur, err := c.ckpt.LoadRouter()
	if err != nil {
		slog.Warn("router checkpoint unreadable, starting from zero", "error", err)
	}

	r := poller.NewRouter(fetcher, c.dec, c.buffers[model.SourceRouter], cur.LastEventUtc, c.cfg.Router.Interval)
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.Run(ctx)
	}()
	slog.Info("router poller started", "mode", c.cfg.Router.Mode, "interval", c.cfg.Router.Interval)

	var mu sync.Mutex
	saved := cur
	return func(marks []pipeline.Mark) error {
		mu.Lock()
		defer mu.Unlock()
		next := saved
		for _, m := range marks {
			if m.EventAt.After(next.LastEventUtc) {
				next.LastEventUtc = m.EventAt
			}
		}
		if !next.LastEventUtc.After(saved.LastEventUtc) {
			return nil
		}
		if err := c.ckpt.SaveRouter(next); err != nil {
			return err
		}
		saved = next
		return nil
	}, nil
}

func (c *Collector) routerFetcher() (poller.Fetcher, error) {
	rc := c.cfg.Router
	password, err := config.ResolveSecret(rc.Password)
	if err != nil {
		return nil, fmt.Errorf("router credential: %w", err)
	}
	switch rc.Mode {
	case "ssh":
		return poller.NewSSHFetcher(rc.SSHAddr, rc.Username, password, rc.LogPath), nil
	default:
		return poller.NewHTTPFetcher(rc.URL, rc.Username, password), nil
	}
}

// startEventLog builds and launches the event-log poller when enabled,
// returning its checkpoint commit hook.
func (c *Collector) startEventLog(ctx context.Context, wg *sync.WaitGroup) (pipeline.CommitFunc, error) {
	if !c.cfg.EventLog.Enabled {
		return nil, nil
	}

	cur, err := c.ckpt.LoadEventLog()
	if err != nil {
		slog.Warn("event log checkpoint unreadable, starting from zero", "error", err)
	}

	seed := make(map[string]checkpoint.ChannelCursor, len(cur.Logs))
	for ch, cc := range cur.Logs {
		seed[ch] = cc
	}

	p := poller.NewEventLog(
		poller.NewSystemReader(),
		c.buffers[model.SourceWifiScan],
		c.cfg.EventLog.Channels,
		c.cfg.EventLog.Levels,
		c.cfg.EventLog.MaxEvents,
		c.cfg.EventLog.Interval,
		seed,
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.Run(ctx)
	}()
	slog.Info("event log poller started",
		"channels", c.cfg.EventLog.Channels, "interval", c.cfg.EventLog.Interval)

	var mu sync.Mutex
	saved := cur
	return func(marks []pipeline.Mark) error {
		mu.Lock()
		defer mu.Unlock()
		changed := false
		for _, m := range marks {
			if m.Channel == "" {
				continue
			}
			cc := saved.Logs[m.Channel]
			if m.RecordID > cc.LastRecordId {
				saved.Logs[m.Channel] = checkpoint.ChannelCursor{
					LastRecordId: m.RecordID,
					LastTimeUtc:  m.EventAt.UTC(),
				}
				changed = true
			}
		}
		if !changed {
			return nil
		}
		return c.ckpt.SaveEventLog(saved)
	}, nil
}
