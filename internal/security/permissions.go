// Package security implements the mirror-side role permission filter (spec
// §4.5). Every permission bitmap mirrored from a source role passes through
// FilterPermissions before a mirror role is created or edited.
package security

import "github.com/bwmarrin/discordgo"

// Local alias for the discordgo permission bit this filter names explicitly.
const (
	permAdministrator = discordgo.PermissionAdministrator
)

// minimalAdminSafeSet is kept when a source role carries the administrator
// bit: view/send/read-history/add-reactions/use-external-emoji/attach/embed,
// plus voice connect/speak/voice-activity.
const minimalAdminSafeSet = discordgo.PermissionViewChannel |
	discordgo.PermissionSendMessages |
	discordgo.PermissionReadMessageHistory |
	discordgo.PermissionAddReactions |
	discordgo.PermissionUseExternalEmojis |
	discordgo.PermissionAttachFiles |
	discordgo.PermissionEmbedLinks |
	discordgo.PermissionVoiceConnect |
	discordgo.PermissionVoiceSpeak |
	discordgo.PermissionVoiceUseVAD

// safeAllowList is every bit a non-administrator role is permitted to keep.
// Everything else — membership management, channel management, moderation,
// webhooks, mention-everyone, priority speaker, move/mute/deafen, manage
// threads, manage events, TTS — is always zeroed.
const safeAllowList = discordgo.PermissionViewChannel |
	discordgo.PermissionSendMessages |
	discordgo.PermissionReadMessageHistory |
	discordgo.PermissionAddReactions |
	discordgo.PermissionUseExternalEmojis |
	discordgo.PermissionUseExternalStickers |
	discordgo.PermissionAttachFiles |
	discordgo.PermissionEmbedLinks |
	discordgo.PermissionChangeNickname |
	discordgo.PermissionVoiceConnect |
	discordgo.PermissionVoiceSpeak |
	discordgo.PermissionVoiceUseVAD

// FilterPermissions rewrites a source role's permission bitmap into the set
// safe to grant on the mirror, per spec §4.5.
func FilterPermissions(sourceBits int64) int64 {
	if sourceBits&permAdministrator != 0 {
		return int64(minimalAdminSafeSet)
	}
	return sourceBits & int64(safeAllowList)
}

// SystemRoleBits returns the exact bitmaps for the mirror's two system roles,
// created/updated at boot (spec §4.5 last bullet).
func SystemRoleBits() (adminBits, memberBits int64) {
	return int64(minimalAdminSafeSet), int64(discordgo.PermissionViewChannel|
		discordgo.PermissionSendMessages|
		discordgo.PermissionReadMessageHistory|
		discordgo.PermissionAddReactions)
}
