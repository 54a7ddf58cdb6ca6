package handler

import (
	"github.com/ms2go/server/internal/net"
	"github.com/ms2go/server/internal/net/packet"
)

// RegisterAll registers all packet handlers into the registry. Duplicate
// opcodes or guild modes panic here, at startup.
func RegisterAll(reg *packet.Registry, deps *Deps) {
	reg.Register(packet.C_OPCODE_LOGIN,
		[]packet.SessionState{packet.StateHandshake},
		func(sess any, r *packet.Reader) {
			HandleLogin(sess.(*net.Session), r, deps)
		},
	)
	reg.Register(packet.C_OPCODE_ENTER_WORLD,
		[]packet.SessionState{packet.StateAuthenticated},
		func(sess any, r *packet.Reader) {
			HandleEnterWorld(sess.(*net.Session), r, deps)
		},
	)

	// Always allowed while the connection lives
	aliveStates := []packet.SessionState{
		packet.StateHandshake, packet.StateAuthenticated, packet.StateInWorld,
	}
	reg.Register(packet.C_OPCODE_ALIVE, aliveStates,
		func(sess any, r *packet.Reader) {
			// Keep-alive: no-op, just prevents idle timeout
		},
	)
	reg.Register(packet.C_OPCODE_QUIT, aliveStates,
		func(sess any, r *packet.Reader) {
			HandleQuit(sess.(*net.Session), r, deps)
		},
	)

	reg.Register(packet.C_OPCODE_GUILD,
		[]packet.SessionState{packet.StateInWorld},
		guildModeTable(deps).Dispatch,
	)
}

// guildModeTable builds the mode sub-dispatch for the guild opcode. One
// opcode carries the whole feature surface; the mode byte picks the
// operation.
func guildModeTable(deps *Deps) *packet.ModeTable {
	h := func(fn func(*net.Session, *packet.Reader, *Deps)) packet.HandlerFunc {
		return func(sess any, r *packet.Reader) {
			fn(sess.(*net.Session), r, deps)
		}
	}

	t := packet.NewModeTable("guild", deps.Log)
	t.On(guildModeCreate, h(HandleGuildCreate))
	t.On(guildModeDisband, h(HandleGuildDisband))
	t.On(guildModeInvite, h(HandleGuildInvite))
	t.On(guildModeInviteResponse, h(HandleGuildInviteResponse))
	t.On(guildModeLeave, h(HandleGuildLeave))
	t.On(guildModeKick, h(HandleGuildKick))
	t.On(guildModeRankChange, h(HandleGuildRankChange))
	t.On(guildModePlayerMessage, h(HandleGuildPlayerMessage))
	t.On(guildModeCheckIn, h(HandleGuildCheckIn))
	t.On(guildModeTransferLeader, h(HandleGuildTransferLeader))
	t.On(guildModeNotice, h(HandleGuildNotice))
	t.On(guildModeUpdateRank, h(HandleGuildUpdateRank))
	t.On(guildModeListGuild, h(HandleGuildListGuild))
	t.On(guildModeMail, h(HandleGuildMail))
	t.On(guildModeSubmitApplication, h(HandleGuildSubmitApplication))
	t.On(guildModeWithdrawApplication, h(HandleGuildWithdrawApplication))
	t.On(guildModeAppResponse, h(HandleGuildApplicationResponse))
	t.On(guildModeLoadApplications, h(HandleGuildLoadApplications))
	t.On(guildModeLoadGuildList, h(HandleGuildLoadGuildList))
	t.On(guildModeSearchGuildByName, h(HandleGuildSearchByName))
	t.On(guildModeUseBuff, h(HandleGuildUseBuff))
	t.On(guildModeUpgradeBuff, h(HandleGuildUpgradeBuff))
	t.On(guildModeUpgradeHome, h(HandleGuildUpgradeHome))
	t.On(guildModeChangeHomeTheme, h(HandleGuildChangeHomeTheme))
	t.On(guildModeEnterHouse, h(HandleGuildEnterHouse))
	t.On(guildModeDonate, h(HandleGuildDonate))
	t.On(guildModeServices, h(HandleGuildServices))
	return t
}
