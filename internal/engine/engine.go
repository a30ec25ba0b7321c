// Package engine composes one replication domain (spec §3 "Server pair")
// out of every component package: the correspondence manager, pipeline,
// topology sync, recovery machine, activity monitor and member tracker,
// wired to shared control/observe/webhook transports and a store.Stores
// backend.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/goclaw-mirror/internal/activity"
	"github.com/nextlevelbuilder/goclaw-mirror/internal/alerts"
	"github.com/nextlevelbuilder/goclaw-mirror/internal/config"
	"github.com/nextlevelbuilder/goclaw-mirror/internal/correspondence"
	"github.com/nextlevelbuilder/goclaw-mirror/internal/members"
	"github.com/nextlevelbuilder/goclaw-mirror/internal/pipeline"
	"github.com/nextlevelbuilder/goclaw-mirror/internal/ratelimit"
	"github.com/nextlevelbuilder/goclaw-mirror/internal/recovery"
	"github.com/nextlevelbuilder/goclaw-mirror/internal/security"
	"github.com/nextlevelbuilder/goclaw-mirror/internal/store"
	"github.com/nextlevelbuilder/goclaw-mirror/internal/topology"
	"github.com/nextlevelbuilder/goclaw-mirror/internal/transport"
	"github.com/nextlevelbuilder/goclaw-mirror/internal/transport/control"
	"github.com/nextlevelbuilder/goclaw-mirror/internal/transport/observe"
	"github.com/nextlevelbuilder/goclaw-mirror/internal/transport/webhook"

	"github.com/nextlevelbuilder/goclaw-mirror/internal/httpapi"
)

// shutdownGrace bounds how long Stop waits for every cancellable loop to
// drain (spec §5, §9 "bounded shutdown").
const shutdownGrace = 10 * time.Second

// memberSweepInterval matches the monitor cadence; the member census does
// not need its own separate clock, so it piggybacks on the channel
// monitor's 10-minute period by running at the same interval.
const memberSweepInterval = 10 * time.Minute

// Domain is one (sourceServerID, mirrorServerID) replication pair, fully
// wired and ready to Start.
type Domain struct {
	SourceServerID string
	MirrorServerID string

	Pipeline *pipeline.Pipeline
	Topology *topology.Sync
	Recovery *recovery.Machine
	Activity *activity.Monitor
	Members  *members.Tracker

	cancel context.CancelFunc
	done   chan struct{}
}

// Engine owns the shared transports (one observe session per source
// server, one control session + webhook manager for the mirror account)
// and every Domain built from config.Config.Pairs.
type Engine struct {
	Stores *store.Stores

	control  *control.Client
	webhooks *webhook.Manager
	observes map[string]*observe.Session // sourceServerID -> session

	domains []*Domain
}

// New opens the shared control session plus one observe session per
// distinct source server named in cfg.Pairs, and builds one fully wired
// Domain per pair. The engine does not start any loops; call Start.
func New(ctx context.Context, cfg *config.Config, stores *store.Stores) (*Engine, error) {
	ctrl, err := control.New(cfg.Discord.BotToken)
	if err != nil {
		return nil, fmt.Errorf("open control session: %w", err)
	}

	e := &Engine{
		Stores:   stores,
		control:  ctrl,
		observes: make(map[string]*observe.Session),
	}
	e.webhooks = webhook.NewManager(ctrl.Session(), ctrl.CreateWebhook)

	for _, pair := range cfg.Pairs {
		obs, err := e.observeFor(pair.SourceServerID, cfg.Discord.UserToken)
		if err != nil {
			e.closeAll()
			return nil, fmt.Errorf("open observe session for %s: %w", pair.SourceServerID, err)
		}

		domain, err := e.buildDomain(ctx, cfg, pair, obs)
		if err != nil {
			e.closeAll()
			return nil, fmt.Errorf("build domain %s->%s: %w", pair.SourceServerID, pair.MirrorServerID, err)
		}
		e.domains = append(e.domains, domain)
	}

	return e, nil
}

func (e *Engine) observeFor(sourceServerID, userToken string) (*observe.Session, error) {
	if s, ok := e.observes[sourceServerID]; ok {
		return s, nil
	}
	s, err := observe.New(userToken)
	if err != nil {
		return nil, err
	}
	e.observes[sourceServerID] = s
	return s, nil
}

func (e *Engine) buildDomain(ctx context.Context, cfg *config.Config, pair config.ServerPair, obs *observe.Session) (*Domain, error) {
	corr, err := correspondence.New(e.Stores.Channels, e.Stores.Roles, e.control)
	if err != nil {
		return nil, fmt.Errorf("build correspondence manager: %w", err)
	}

	adminBits, memberBits := security.SystemRoleBits()
	if err := e.control.EnsureSystemRoles(ctx, pair.MirrorServerID, adminBits, memberBits); err != nil {
		slog.Warn("ensure system roles failed", "mirror_server_id", pair.MirrorServerID, "error", err)
	}

	notifier := alerts.New(e.control, e.Stores.ServerConfig, e.Stores.Logs)

	topo := topology.New(pair.SourceServerID, pair.MirrorServerID)
	topo.Corr = corr
	topo.Observe = obs
	topo.Control = e.control
	topo.Channels = e.Stores.Channels
	topo.Logs = e.Stores.Logs
	topo.IgnoredChannels = toSet(cfg.Discord.IgnoredChannels)

	rec := recovery.New(pair.SourceServerID)
	rec.Corr = corr
	rec.Observe = obs
	rec.Resync = topo
	rec.Channels = e.Stores.Channels
	rec.Logs = e.Stores.Logs

	p := pipeline.New(pair.SourceServerID, pair.MirrorServerID)
	p.Corr = corr
	p.Control = e.control
	p.Endpoints = e.webhooks
	p.Messages = e.Stores.Messages
	p.Channels = e.Stores.Channels
	p.MentionLog = e.Stores.RoleMentions
	p.Blacklist = e.Stores.MentionBlacklists
	p.Limiter = ratelimit.New()
	p.RetryQ = ratelimit.NewRetryQueue()
	p.Topology = topo
	p.Recovery = rec
	p.NoiseFilterAuthorIDs = toSet(cfg.Discord.NoiseFilterAuthorIDs)

	topo.Replayer = p

	mon := activity.New(pair.MirrorServerID, notifier, time.Now)
	p.Activity = mon

	tracker := members.New(obs, e.Stores.Members)

	return &Domain{
		SourceServerID: pair.SourceServerID,
		MirrorServerID: pair.MirrorServerID,
		Pipeline:       p,
		Topology:       topo,
		Recovery:       rec,
		Activity:       mon,
		Members:        tracker,
		done:           make(chan struct{}),
	}, nil
}

func toSet(items []string) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, id := range items {
		out[id] = struct{}{}
	}
	return out
}

// Start launches every domain's event consumer and periodic loops.
func (e *Engine) Start(ctx context.Context) error {
	for sourceServerID, obs := range e.observes {
		events, err := obs.Events(ctx)
		if err != nil {
			return fmt.Errorf("subscribe to events for %s: %w", sourceServerID, err)
		}
		go e.consumeEvents(ctx, sourceServerID, events)
	}

	for _, d := range e.domains {
		domainCtx, cancel := context.WithCancel(ctx)
		d.cancel = cancel
		d.Topology.Start(domainCtx)
		go d.runMemberSweep(domainCtx)
	}
	return nil
}

// consumeEvents fans events from one source server's gateway session out
// to every domain whose SourceServerID matches (normally exactly one,
// since one source server mirrors to one mirror server in this engine's
// config shape, but the fan-out supports future one-to-many pairs).
func (e *Engine) consumeEvents(ctx context.Context, sourceServerID string, events <-chan transport.Event) {
	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return
			}
			for _, d := range e.domains {
				if d.SourceServerID != sourceServerID {
					continue
				}
				if err := d.Pipeline.OnSourceEvent(ctx, evt); err != nil {
					slog.Error("dispatch source event failed", "source_server_id", sourceServerID, "error", err)
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

func (d *Domain) runMemberSweep(ctx context.Context) {
	defer close(d.done)
	ticker := time.NewTicker(memberSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := d.Members.DetectAll(ctx, d.SourceServerID); err != nil {
				slog.Warn("member detector pass failed", "source_server_id", d.SourceServerID, "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Stop cancels every domain's loops and waits up to shutdownGrace for them
// to drain before closing the shared transports (spec §9 "bounded
// shutdown").
func (e *Engine) Stop(ctx context.Context) {
	for _, d := range e.domains {
		if d.cancel != nil {
			d.cancel()
		}
		d.Topology.Stop()
		d.Pipeline.Close()
	}

	deadline := time.After(shutdownGrace)
	for _, d := range e.domains {
		select {
		case <-d.done:
		case <-deadline:
			slog.Warn("shutdown grace period elapsed before all domains drained")
		}
	}

	e.closeAll()
}

// DomainStatuses satisfies httpapi.StatusProvider for the /status endpoint.
func (e *Engine) DomainStatuses() []httpapi.DomainStatus {
	out := make([]httpapi.DomainStatus, 0, len(e.domains))
	for _, d := range e.domains {
		out = append(out, httpapi.DomainStatus{
			SourceServerID: d.SourceServerID,
			MirrorServerID: d.MirrorServerID,
			NextSyncIn:     d.Topology.NextSyncInterval().String(),
			ActivityState:  d.Activity.DebugString(),
		})
	}
	return out
}

func (e *Engine) closeAll() {
	for _, obs := range e.observes {
		obs.Close()
	}
	if e.control != nil {
		if err := e.control.Close(); err != nil {
			slog.Debug("close control session failed", "error", err)
		}
	}
}
