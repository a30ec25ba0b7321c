// Package pipeline implements the Replication Pipeline (spec §4.2): the
// single entry point onSourceEvent that consumes events drained from the
// source gateway, normalizes them, and fans them out through per-mirror-
// channel impersonation endpoints.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/goclaw-mirror/internal/activity"
	"github.com/nextlevelbuilder/goclaw-mirror/internal/correspondence"
	"github.com/nextlevelbuilder/goclaw-mirror/internal/mention"
	"github.com/nextlevelbuilder/goclaw-mirror/internal/ratelimit"
	"github.com/nextlevelbuilder/goclaw-mirror/internal/store"
	"github.com/nextlevelbuilder/goclaw-mirror/internal/transport"
)

// tracer emits the pipeline.submit span around each submit attempt
// (rate-limit wait -> send -> commit); target lookup and normalization run
// before the span opens. Using otel.Tracer directly rather than
// storing an instance keeps the pipeline working against whatever
// TracerProvider the process installed (internal/tracing), including the
// no-op default in tests.
var tracer = otel.Tracer("github.com/nextlevelbuilder/goclaw-mirror/internal/pipeline")

// EndpointProvider resolves the per-mirror-channel impersonation endpoint,
// creating it on first use (implemented by internal/transport/webhook.Manager).
type EndpointProvider interface {
	Get(ctx context.Context, mirrorServerID, channelID string) (transport.Endpoint, error)
}

const (
	bufferWindow      = 3 * time.Second
	sizeCeilingBytes  = int64(7.5 * 1024 * 1024)
	maxFilesPerGroup  = 3
	maxGroupBytes     = 6 * 1024 * 1024
	submitMaxAttempts = 3

	// deferredChannelEditWindow bounds how long the deferred-channel-creation
	// job (spec §4.3) will wait for the original placeholder submission to
	// commit before giving up on editing it into a live reference (spec §8
	// scenario 3: the edit must land within 2s of the mapping existing).
	deferredChannelEditWindow   = 2 * time.Second
	deferredChannelPollInterval = 100 * time.Millisecond
)

var submitDelays = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}

// Recovery is consulted when the Correspondence Manager cannot resolve a
// mirror channel; implemented by internal/recovery.Machine. Kept as a
// narrow interface here to avoid an import cycle (recovery depends on the
// pipeline's notion of a resolved target, not the other way around).
type Recovery interface {
	TriggerRecovery(ctx context.Context, sourceChannelID, mirrorServerID string)
}

// ChannelResolver is the subset of topology auto-configure the pipeline
// needs when a message arrives from a wholly unknown channel (spec §4.3
// "Auto-configure on first message").
type ChannelResolver interface {
	AutoConfigureChannel(ctx context.Context, sourceChannelID, sourceServerID, mirrorServerID string) (mirrorChannelID string, err error)
}

// Pipeline processes one (sourceServerID, mirrorServerID) replication
// domain. One instance owns one long-lived event consumer (spec §5).
type Pipeline struct {
	SourceServerID string
	MirrorServerID string

	Corr       *correspondence.Manager
	Control    transport.Control
	Endpoints  EndpointProvider
	Messages   store.MessageStore
	Channels   store.ChannelStore
	MentionLog store.RoleMentionStore
	Blacklist  store.MentionBlacklistStore
	Limiter    *ratelimit.Limiter
	RetryQ     *ratelimit.RetryQueue
	Activity   *activity.Monitor
	Topology   ChannelResolver
	Recovery   Recovery

	NoiseFilterAuthorIDs map[string]struct{}

	channelWorkers sync.Map // channelID -> chan func()

	bufMu    sync.Mutex
	buffered map[string]*bufferedMessage // sourceMessageID -> pending buffer

	done chan struct{}
}

type bufferedMessage struct {
	evt      transport.Event
	mirrorID string
	timer    *time.Timer
}

// New constructs a Pipeline. Callers must call Close when the replication
// domain shuts down.
func New(sourceServerID, mirrorServerID string) *Pipeline {
	return &Pipeline{
		SourceServerID:       sourceServerID,
		MirrorServerID:       mirrorServerID,
		NoiseFilterAuthorIDs: make(map[string]struct{}),
		buffered:             make(map[string]*bufferedMessage),
		done:                 make(chan struct{}),
	}
}

// Close stops every per-channel worker goroutine.
func (p *Pipeline) Close() { close(p.done) }

// ReplayMessage re-runs the messageCreated path for a message fetched out of
// band (backfill after recovery or auto-configure, spec §4.3 step d, §4.4
// success side-effect). Idempotence against messages already committed is
// enforced by the processed-message store's unique index.
func (p *Pipeline) ReplayMessage(ctx context.Context, msg transport.Message) error {
	if existing, err := p.Messages.FindBySourceID(ctx, msg.ID); err == nil && existing != nil {
		return nil
	}
	evt := transport.Event{Kind: transport.EventMessageCreated, Message: msg}
	return p.enqueue(msg.ChannelID, func() { p.handleMessageCreated(ctx, evt) })
}

// OnSourceEvent is the pipeline's single public entry point (spec §4.2).
func (p *Pipeline) OnSourceEvent(ctx context.Context, evt transport.Event) error {
	switch evt.Kind {
	case transport.EventMessageCreated:
		return p.enqueue(evt.Message.ChannelID, func() { p.handleMessageCreated(ctx, evt) })
	case transport.EventMessageUpdated:
		return p.enqueue(evt.Message.ChannelID, func() { p.handleMessageUpdated(ctx, evt) })
	case transport.EventReactionAdded:
		return p.enqueue(evt.Message.ChannelID, func() { p.handleReaction(ctx, evt) })
	case transport.EventThreadCreated, transport.EventChannelCreated:
		// Topology mutations are handled by the topology/discovery loop, not
		// the message pipeline; the pipeline only needs the event to
		// invalidate any stale cache entry.
		p.Corr.InvalidateChannel(evt.Channel.ID, p.MirrorServerID)
		return nil
	default:
		return nil
	}
}

// enqueue submits fn to the serial worker for channelID so that messages
// from one source channel are processed in receive order (spec §5).
func (p *Pipeline) enqueue(channelID string, fn func()) error {
	select {
	case <-p.done:
		return fmt.Errorf("pipeline closed")
	default:
	}
	ch := p.workerFor(channelID)
	select {
	case ch <- fn:
		return nil
	case <-p.done:
		return fmt.Errorf("pipeline closed")
	}
}

func (p *Pipeline) workerFor(channelID string) chan func() {
	if v, ok := p.channelWorkers.Load(channelID); ok {
		return v.(chan func())
	}
	ch := make(chan func(), 256)
	actual, loaded := p.channelWorkers.LoadOrStore(channelID, ch)
	if !loaded {
		go p.drain(ch)
	}
	return actual.(chan func())
}

func (p *Pipeline) drain(ch chan func()) {
	for {
		select {
		case fn := <-ch:
			fn()
		case <-p.done:
			return
		}
	}
}

// isNoise implements spec §4.2 step 1's hard-coded noise filter.
func (p *Pipeline) isNoise(authorID string) bool {
	_, ok := p.NoiseFilterAuthorIDs[authorID]
	return ok
}

func (p *Pipeline) handleMessageCreated(ctx context.Context, evt transport.Event) {
	msg := evt.Message
	if p.isNoise(msg.AuthorID) {
		return
	}

	corrID := uuid.NewString()[:8]
	slog.Debug("replicating message", "corr_id", corrID, "source_channel_id", msg.ChannelID, "author_id", msg.AuthorID)

	mirrorChannelID, ok, err := p.locateTarget(ctx, msg.ChannelID)
	if err != nil {
		slog.Error("locate mirror target failed", "source_channel_id", msg.ChannelID, "error", err)
		return
	}
	if !ok {
		return
	}

	plain := len(msg.Embeds) == 0 && len(msg.Files) == 0
	if plain {
		p.bufferOrFlush(ctx, msg.ID, mirrorChannelID, evt)
		return
	}

	p.render(ctx, mirrorChannelID, evt)
}

// locateTarget consults the Correspondence Manager for the mirror channel,
// triggering auto-configure-on-first-message when the channel is wholly
// unknown (spec §4.2 step 3, §4.3).
func (p *Pipeline) locateTarget(ctx context.Context, sourceChannelID string) (string, bool, error) {
	mirrorID, ok, err := p.Corr.ResolveChannelForMirrorServer(ctx, sourceChannelID, p.MirrorServerID)
	if err != nil {
		return "", false, err
	}
	if ok {
		return mirrorID, true, nil
	}
	if p.Topology == nil {
		if p.Recovery != nil {
			p.Recovery.TriggerRecovery(ctx, sourceChannelID, p.MirrorServerID)
		}
		return "", false, nil
	}
	mirrorID, err = p.Topology.AutoConfigureChannel(ctx, sourceChannelID, p.SourceServerID, p.MirrorServerID)
	if err != nil {
		slog.Warn("auto-configure on first message failed", "source_channel_id", sourceChannelID, "error", err)
		if p.Recovery != nil {
			p.Recovery.TriggerRecovery(ctx, sourceChannelID, p.MirrorServerID)
		}
		return "", false, nil
	}
	return mirrorID, mirrorID != "", nil
}

// bufferOrFlush implements spec §4.2 step 7: a plain user message with no
// embeds/files is held for bufferWindow so a fast-following messageUpdated
// (embed unfurl) can merge before the first submission.
func (p *Pipeline) bufferOrFlush(ctx context.Context, sourceMessageID, mirrorChannelID string, evt transport.Event) {
	p.bufMu.Lock()
	if _, exists := p.buffered[sourceMessageID]; exists {
		p.bufMu.Unlock()
		return
	}
	entry := &bufferedMessage{evt: evt, mirrorID: mirrorChannelID}
	entry.timer = time.AfterFunc(bufferWindow, func() { p.flushBuffered(ctx, sourceMessageID) })
	p.buffered[sourceMessageID] = entry
	p.bufMu.Unlock()
}

func (p *Pipeline) flushBuffered(ctx context.Context, sourceMessageID string) {
	p.bufMu.Lock()
	entry, ok := p.buffered[sourceMessageID]
	if ok {
		delete(p.buffered, sourceMessageID)
	}
	p.bufMu.Unlock()
	if !ok {
		return
	}
	p.render(ctx, entry.mirrorID, entry.evt)
}

func (p *Pipeline) handleMessageUpdated(ctx context.Context, evt transport.Event) {
	msg := evt.Message

	p.bufMu.Lock()
	if entry, ok := p.buffered[msg.ID]; ok {
		delete(p.buffered, msg.ID)
		entry.timer.Stop()
		p.bufMu.Unlock()
		merged := evt
		merged.Message = msg
		p.render(ctx, entry.mirrorID, merged)
		return
	}
	p.bufMu.Unlock()

	existing, err := p.Messages.FindBySourceID(ctx, msg.ID)
	if err != nil {
		slog.Error("lookup processed message for edit failed", "source_message_id", msg.ID, "error", err)
		return
	}
	if existing == nil {
		// Nothing to edit; the original create was dropped (e.g. unresolved
		// channel). Treat as a fresh create.
		p.handleMessageCreated(ctx, evt)
		return
	}

	p.editExisting(ctx, *existing, evt)
}

func (p *Pipeline) render(ctx context.Context, mirrorChannelID string, evt transport.Event) {
	msg := evt.Message
	resolver := p.Corr.MentionResolver(ctx, p.MirrorServerID)

	rewritten := mention.RewriteContent(msg.Content, resolver)
	content := mention.RewriteEveryone(rewritten.Content)
	content = mention.RewriteSourceURLs(content, p.SourceServerID, p.MirrorServerID, resolver)
	for _, f := range msg.Files {
		if f.Size > maxGroupBytes {
			content += "\n" + f.URL
		}
	}
	content = mention.ClampContent(content)
	embeds := mention.ClampEmbeds(msg.Embeds)

	p.scheduleDeferredChannels(msg, embeds, rewritten.DeferredChannels)

	if totalAttachmentBytes(msg.Files) > sizeCeilingBytes {
		slog.Debug("message exceeds conservative size ceiling, splitting into follow-up groups",
			"source_message_id", msg.ID, "total_bytes", totalAttachmentBytes(msg.Files))
	}
	firstGroup, followUpGroups := splitAttachments(msg.Files)

	payload := transport.OutboundPayload{
		Content:   content,
		Embeds:    embeds,
		Files:     firstGroup,
		Username:  msg.Username,
		AvatarURL: msg.AvatarURL,
		ThreadID:  msg.ThreadID,
	}

	endpoint, err := p.Endpoints.Get(ctx, p.MirrorServerID, mirrorChannelID)
	if err != nil {
		slog.Error("resolve impersonation endpoint failed", "mirror_channel_id", mirrorChannelID, "error", err)
		return
	}

	awaitingEmbed := len(msg.Embeds) == 0 && looksLikeLinkOnly(msg.Content)

	task := ratelimit.Task{
		ID:          "submit:" + msg.ID,
		MaxAttempts: submitMaxAttempts,
		Delays:      submitDelays,
		Run: func(taskCtx context.Context, attempt int) error {
			taskCtx, span := tracer.Start(taskCtx, "pipeline.submit", trace.WithAttributes(
				attribute.String("source_message_id", msg.ID),
				attribute.String("mirror_channel_id", mirrorChannelID),
				attribute.Int("attempt", attempt),
			))
			defer span.End()

			if err := p.Limiter.WaitForRequest(taskCtx, mirrorChannelID); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "rate limit wait failed")
				return err
			}
			mirrorMsgID, err := endpoint.Send(taskCtx, payload)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "send failed")
				return err
			}
			if err := p.commit(taskCtx, store.ProcessedMessage{
				SourceMessageID:             msg.ID,
				SourceChannelID:             msg.ChannelID,
				MirrorMessageID:             mirrorMsgID,
				MirrorChannelID:             mirrorChannelID,
				MirrorServerID:              p.MirrorServerID,
				ImpersonationEndpointID:     endpoint.ID(),
				ImpersonationEndpointSecret: endpoint.Secret(),
				AwaitingEmbed:               awaitingEmbed,
				RenderedContent:             content,
				ProcessedAt:                 time.Now(),
			}); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "commit failed")
				return err
			}
			return nil
		},
		OnFailure: func(err error) {
			slog.Error("submit message to mirror failed permanently", "source_message_id", msg.ID, "error", err)
		},
	}

	future := p.RetryQ.Add(ctx, task)
	if err := future.Wait(ctx); err != nil {
		return
	}
	p.sendFollowUpGroups(ctx, mirrorChannelID, msg.ID, followUpGroups)
	p.postActions(ctx, mirrorChannelID, evt)
}

// splitAttachments implements spec §4.2 step 8: the first group travels with
// the text/embed submission; anything beyond the size ceiling or the
// per-group file/byte caps follows as file-only submissions. A file larger
// than maxGroupBytes is left out of every group; render appends its URL to
// the message content as a plain link instead.
func totalAttachmentBytes(files []transport.Attachment) int64 {
	var total int64
	for _, f := range files {
		total += f.Size
	}
	return total
}

func splitAttachments(files []transport.Attachment) (first []transport.Attachment, followUp [][]transport.Attachment) {
	var linked []transport.Attachment
	var normal []transport.Attachment
	for _, f := range files {
		if f.Size > maxGroupBytes {
			linked = append(linked, f)
			continue
		}
		normal = append(normal, f)
	}

	var groups [][]transport.Attachment
	var cur []transport.Attachment
	var curBytes int64
	for _, f := range normal {
		if len(cur) >= maxFilesPerGroup || curBytes+f.Size > maxGroupBytes {
			groups = append(groups, cur)
			cur = nil
			curBytes = 0
		}
		cur = append(cur, f)
		curBytes += f.Size
	}
	if len(cur) > 0 {
		groups = append(groups, cur)
	}

	if len(groups) == 0 {
		return nil, nil
	}
	return groups[0], groups[1:]
}

func (p *Pipeline) sendFollowUpGroups(ctx context.Context, mirrorChannelID, sourceMessageID string, groups [][]transport.Attachment) {
	for i, group := range groups {
		endpoint, err := p.Endpoints.Get(ctx, p.MirrorServerID, mirrorChannelID)
		if err != nil {
			slog.Error("resolve impersonation endpoint for follow-up group failed", "mirror_channel_id", mirrorChannelID, "error", err)
			return
		}
		task := ratelimit.Task{
			ID:          fmt.Sprintf("submit-followup:%s:%d", sourceMessageID, i),
			MaxAttempts: submitMaxAttempts,
			Delays:      submitDelays,
			Run: func(taskCtx context.Context, attempt int) error {
				if err := p.Limiter.WaitForRequest(taskCtx, mirrorChannelID); err != nil {
					return err
				}
				_, err := endpoint.Send(taskCtx, transport.OutboundPayload{Files: group})
				return err
			},
		}
		p.RetryQ.Add(ctx, task)
	}
}

func (p *Pipeline) editExisting(ctx context.Context, existing store.ProcessedMessage, evt transport.Event) {
	msg := evt.Message
	resolver := p.Corr.MentionResolver(ctx, p.MirrorServerID)
	content := mention.RewriteEveryone(mention.RewriteContent(msg.Content, resolver).Content)
	content = mention.ClampContent(content)
	embeds := mention.ClampEmbeds(msg.Embeds)

	payload := transport.OutboundPayload{Content: content, Embeds: embeds}

	task := ratelimit.Task{
		ID:          "edit:" + msg.ID,
		MaxAttempts: submitMaxAttempts,
		Delays:      submitDelays,
		Run: func(taskCtx context.Context, attempt int) error {
			if err := p.Limiter.WaitForRequest(taskCtx, existing.MirrorChannelID); err != nil {
				return err
			}
			ep, err := p.Endpoints.Get(taskCtx, p.MirrorServerID, existing.MirrorChannelID)
			if err != nil {
				return err
			}
			if err := ep.Edit(taskCtx, existing.MirrorMessageID, payload); err != nil {
				return err
			}
			return p.Messages.UpdateAfterEdit(taskCtx, msg.ID, content, len(embeds) == 0 && looksLikeLinkOnly(content))
		},
	}
	p.RetryQ.Add(ctx, task)
}

func (p *Pipeline) commit(ctx context.Context, m store.ProcessedMessage) error {
	if err := p.Messages.Insert(ctx, m); err != nil {
		return fmt.Errorf("commit processed message %s: %w", m.SourceMessageID, err)
	}
	if p.Channels != nil {
		_ = p.Channels.TouchActivity(ctx, m.SourceChannelID, p.SourceServerID, time.Now())
	}
	if p.Activity != nil {
		p.Activity.RecordActivity(ctx)
	}
	return nil
}

func (p *Pipeline) postActions(ctx context.Context, mirrorChannelID string, evt transport.Event) {
	msg := evt.Message
	if msg.Mentions.Everyone || len(msg.Mentions.RoleIDs) > 0 {
		p.notifyRoleMentions(ctx, mirrorChannelID, msg)
	}
}

func (p *Pipeline) notifyRoleMentions(ctx context.Context, channelID string, msg transport.Message) {
	if p.Blacklist != nil {
		blocked, err := p.Blacklist.IsBlacklisted(ctx, p.SourceServerID, channelID)
		if err == nil && blocked {
			return
		}
	}
	if p.MentionLog == nil {
		return
	}
	for _, roleID := range msg.Mentions.RoleIDs {
		if err := p.MentionLog.Record(ctx, store.RoleMention{
			SourceServerID: p.SourceServerID,
			RoleID:         roleID,
			ChannelID:      channelID,
			Timestamp:      time.Now(),
		}); err != nil {
			slog.Debug("record role mention notification failed", "error", err)
		}
	}
}

func (p *Pipeline) handleReaction(ctx context.Context, evt transport.Event) {
	mirrorChannelID, ok, err := p.Corr.ResolveChannelForMirrorServer(ctx, evt.Message.ChannelID, p.MirrorServerID)
	if err != nil || !ok {
		return
	}
	existing, err := p.Messages.FindBySourceID(ctx, evt.Message.ID)
	if err != nil || existing == nil {
		return
	}
	if err := p.Limiter.WaitForRequest(ctx, mirrorChannelID); err != nil {
		return
	}
	if err := p.Control.AddReaction(ctx, existing.MirrorChannelID, existing.MirrorMessageID, evt.Emoji); err != nil {
		slog.Debug("replicate reaction failed", "error", err)
	}
}

// scheduleDeferredChannels implements spec §4.3 "Deferred channel creation
// from mentions": the message already committed (or in flight to commit)
// with a bolded placeholder for each channel mention it could not resolve.
// This creates the missing mirror channel(s) in the background and, once a
// mapping exists, edits the already-sent mirror message in place to replace
// the placeholder with a live channel reference (spec §8 scenario 3).
func (p *Pipeline) scheduleDeferredChannels(msg transport.Message, embeds []transport.Embed, sourceChannelIDs []string) {
	if len(sourceChannelIDs) == 0 {
		return
	}
	ids := append([]string(nil), sourceChannelIDs...)
	go p.resolveDeferredChannels(msg, embeds, ids)
}

func (p *Pipeline) resolveDeferredChannels(msg transport.Message, embeds []transport.Embed, sourceChannelIDs []string) {
	ctx := context.Background()
	resolvedAny := false
	for _, sourceID := range sourceChannelIDs {
		if _, ok, err := p.Corr.ResolveChannelForMirrorServer(ctx, sourceID, p.MirrorServerID); err == nil && ok {
			resolvedAny = true
			continue
		}
		if p.Topology == nil {
			continue
		}
		if _, err := p.Topology.AutoConfigureChannel(ctx, sourceID, p.SourceServerID, p.MirrorServerID); err != nil {
			slog.Debug("deferred channel creation failed", "source_channel_id", sourceID, "error", err)
			continue
		}
		resolvedAny = true
	}
	if !resolvedAny {
		return
	}

	existing := p.waitForCommit(ctx, msg.ID)
	if existing == nil {
		slog.Debug("deferred channel mapping resolved but original message was never committed", "source_message_id", msg.ID)
		return
	}
	p.editPlaceholders(ctx, *existing, msg, embeds)
}

// waitForCommit polls for the asynchronously-committed ProcessedMessage row
// (the original send goes through the rate limiter and retry queue, so it
// may still be in flight when the deferred channel mapping resolves) so the
// placeholder edit below has the mirror message id and endpoint credentials
// it needs.
func (p *Pipeline) waitForCommit(ctx context.Context, sourceMessageID string) *store.ProcessedMessage {
	deadline := time.Now().Add(deferredChannelEditWindow)
	for {
		existing, err := p.Messages.FindBySourceID(ctx, sourceMessageID)
		if err == nil && existing != nil {
			return existing
		}
		if time.Now().After(deadline) {
			return nil
		}
		time.Sleep(deferredChannelPollInterval)
	}
}

// editPlaceholders re-renders the original content against the now-complete
// mention resolver and pushes the result over the committed mirror message.
// embeds must be passed through explicitly: the webhook Edit call always
// overwrites the Embeds field, so omitting them here would silently strip
// any embeds already visible on the live message.
func (p *Pipeline) editPlaceholders(ctx context.Context, existing store.ProcessedMessage, msg transport.Message, embeds []transport.Embed) {
	resolver := p.Corr.MentionResolver(ctx, p.MirrorServerID)
	rewritten := mention.RewriteContent(msg.Content, resolver)
	content := mention.RewriteEveryone(rewritten.Content)
	content = mention.RewriteSourceURLs(content, p.SourceServerID, p.MirrorServerID, resolver)
	content = mention.ClampContent(content)

	endpoint, err := p.Endpoints.Get(ctx, p.MirrorServerID, existing.MirrorChannelID)
	if err != nil {
		slog.Debug("resolve impersonation endpoint for deferred placeholder edit failed", "mirror_channel_id", existing.MirrorChannelID, "error", err)
		return
	}
	if err := endpoint.Edit(ctx, existing.MirrorMessageID, transport.OutboundPayload{Content: content, Embeds: embeds}); err != nil {
		slog.Debug("edit placeholder after deferred channel creation failed", "source_message_id", existing.SourceMessageID, "error", err)
		return
	}
	if err := p.Messages.UpdateAfterEdit(ctx, existing.SourceMessageID, content, existing.AwaitingEmbed); err != nil {
		slog.Debug("record deferred placeholder edit failed", "source_message_id", existing.SourceMessageID, "error", err)
	}
}

func looksLikeLinkOnly(content string) bool {
	return len(content) > 0 && content[0] == 'h' && (hasPrefix(content, "http://") || hasPrefix(content, "https://"))
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
