// Package alerts adapts the operator-facing notification channels (spec §6
// "error log channel receives rich diagnostics... newroom log channel
// receives success notifications... admin log receives notices") to the
// narrow interfaces internal/activity and internal/recovery consult.
package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/goclaw-mirror/internal/store"
)

// MessageSender is the narrow slice of transport.Control this package needs:
// posting plain-bot messages to operator log channels.
type MessageSender interface {
	SendMessage(ctx context.Context, channelID, content string) (messageID string, err error)
}

// Notifier posts operator-facing diagnostics to the mirror server's
// configured log channels and records them in the Logs collection. It
// satisfies activity.Alerter.
type Notifier struct {
	Control      MessageSender
	ServerConfig store.ServerConfigStore
	Logs         store.LogStore
}

// New constructs a Notifier.
func New(control MessageSender, serverConfig store.ServerConfigStore, logs store.LogStore) *Notifier {
	return &Notifier{Control: control, ServerConfig: serverConfig, Logs: logs}
}

// AlertDown satisfies activity.Alerter (spec §4.6): the mirror has gone
// silent for silentFor; allowEveryone is false during the 23:00-07:00
// night window.
func (n *Notifier) AlertDown(ctx context.Context, mirrorServerID string, silentFor time.Duration, allowEveryone bool) {
	mention := ""
	if allowEveryone {
		mention = "@everyone "
	}
	msg := fmt.Sprintf("%s⚠️ no mirror activity for %s — source may be silent or the pipeline may be stuck.", mention, silentFor.Round(time.Minute))
	n.postToErrorLog(ctx, mirrorServerID, "activity monitor: mirror down", msg)
}

// AlertRecovered satisfies activity.Alerter: activity resumed after
// downtime.
func (n *Notifier) AlertRecovered(ctx context.Context, mirrorServerID string, downtime time.Duration, allowEveryone bool) {
	msg := fmt.Sprintf("✅ mirror activity resumed after %s of silence.", downtime.Round(time.Minute))
	n.postToErrorLog(ctx, mirrorServerID, "activity monitor: recovered", msg)
}

// NotifyRecovery posts an admin-log notice for a successful auto-recovery
// (spec §4.4 success side-effect, §6 "admin log receives notices for ...
// auto-recovery").
func (n *Notifier) NotifyRecovery(ctx context.Context, mirrorServerID, detail string) {
	n.postToAdminLog(ctx, mirrorServerID, "auto-recovery succeeded", detail)
}

// NotifyBlacklist posts an admin-log notice for an auto-blacklisted channel
// (spec §6 "admin log receives notices for auto-blacklist").
func (n *Notifier) NotifyBlacklist(ctx context.Context, mirrorServerID, detail string) {
	n.postToAdminLog(ctx, mirrorServerID, "channel auto-blacklisted", detail)
}

// NotifyNewRoom posts a newroom-log success notice when a mirror channel is
// auto-created (spec §6 "newroom log channel receives success
// notifications").
func (n *Notifier) NotifyNewRoom(ctx context.Context, mirrorServerID, channelName string) {
	cfg := n.config(ctx, mirrorServerID)
	if cfg == nil || cfg.NewRoomChannel == "" {
		return
	}
	msg := fmt.Sprintf("🆕 mirrored channel created: %s", channelName)
	if _, err := n.Control.SendMessage(ctx, cfg.NewRoomChannel, msg); err != nil {
		slog.Debug("post newroom notice failed", "mirror_server_id", mirrorServerID, "error", err)
	}
	n.writeLog(ctx, store.LogKindNewRoom, mirrorServerID, cfg.NewRoomChannel, "mirror channel created", channelName)
}

func (n *Notifier) postToErrorLog(ctx context.Context, mirrorServerID, message, detail string) {
	cfg := n.config(ctx, mirrorServerID)
	channelID := ""
	if cfg != nil {
		channelID = cfg.ErrorLogChannel
	}
	if channelID != "" {
		if _, err := n.Control.SendMessage(ctx, channelID, detail); err != nil {
			slog.Debug("post error log notice failed", "mirror_server_id", mirrorServerID, "error", err)
		}
	}
	n.writeLog(ctx, store.LogKindError, mirrorServerID, channelID, message, detail)
}

func (n *Notifier) postToAdminLog(ctx context.Context, mirrorServerID, message, detail string) {
	cfg := n.config(ctx, mirrorServerID)
	channelID := ""
	if cfg != nil {
		channelID = cfg.AdminLogChannel
	}
	if channelID != "" {
		if _, err := n.Control.SendMessage(ctx, channelID, fmt.Sprintf("%s: %s", message, detail)); err != nil {
			slog.Debug("post admin log notice failed", "mirror_server_id", mirrorServerID, "error", err)
		}
	}
	n.writeLog(ctx, store.LogKindAdmin, mirrorServerID, channelID, message, detail)
}

func (n *Notifier) config(ctx context.Context, mirrorServerID string) *store.ServerConfig {
	if n.ServerConfig == nil {
		return nil
	}
	cfg, err := n.ServerConfig.Get(ctx, mirrorServerID)
	if err != nil {
		slog.Debug("fetch server config for notification failed", "mirror_server_id", mirrorServerID, "error", err)
		return nil
	}
	return cfg
}

func (n *Notifier) writeLog(ctx context.Context, kind store.LogKind, mirrorServerID, channelID, message, detail string) {
	if n.Logs == nil {
		return
	}
	if err := n.Logs.Write(ctx, store.LogEntry{
		Kind:      kind,
		ServerID:  mirrorServerID,
		ChannelID: channelID,
		Message:   message,
		Detail:    detail,
		Timestamp: time.Now(),
	}); err != nil {
		slog.Debug("write log entry failed", "error", err)
	}
}
