package handler

import (
	"github.com/ms2go/server/internal/net/packet"
	"github.com/ms2go/server/internal/world"
)

// Client → server guild modes (first payload byte after the opcode).
const (
	guildModeCreate              byte = 0x01
	guildModeDisband             byte = 0x02
	guildModeInvite              byte = 0x03
	guildModeInviteResponse      byte = 0x05
	guildModeLeave               byte = 0x07
	guildModeKick                byte = 0x08
	guildModeRankChange          byte = 0x0A
	guildModePlayerMessage       byte = 0x0D
	guildModeCheckIn             byte = 0x0F
	guildModeTransferLeader      byte = 0x3D
	guildModeNotice              byte = 0x3E
	guildModeUpdateRank          byte = 0x41
	guildModeListGuild           byte = 0x42
	guildModeMail                byte = 0x45
	guildModeSubmitApplication   byte = 0x50
	guildModeWithdrawApplication byte = 0x51
	guildModeAppResponse         byte = 0x52
	guildModeLoadApplications    byte = 0x54
	guildModeLoadGuildList       byte = 0x55
	guildModeSearchGuildByName   byte = 0x56
	guildModeUseBuff             byte = 0x59
	guildModeUpgradeBuff         byte = 0x5A
	guildModeUpgradeHome         byte = 0x62
	guildModeChangeHomeTheme     byte = 0x63
	guildModeEnterHouse          byte = 0x64
	guildModeDonate              byte = 0x6E
	guildModeServices            byte = 0x6F
)

// Server → client guild modes. Direct replies reuse the request's mode
// value; notification-only frames use the otherwise unused low values.
const (
	sGuildInfo           byte = 0x00
	sGuildCreated        byte = 0x01
	sGuildDisbanded      byte = 0x02
	sGuildInviteSent     byte = 0x03
	sGuildInvited        byte = 0x04 // to the invite target
	sGuildInviteReply    byte = 0x05 // accept/reject relayed to the inviter
	sGuildMemberJoined   byte = 0x06
	sGuildMemberLeft     byte = 0x07
	sGuildMemberKicked   byte = 0x08
	sGuildKickedYou      byte = 0x09 // to the removed player
	sGuildRankChanged    byte = 0x0A
	sGuildMemberMotto    byte = 0x0D
	sGuildCheckedIn      byte = 0x0F
	sGuildLeaderChanged  byte = 0x3D
	sGuildNoticeChanged  byte = 0x3E
	sGuildRankUpdated    byte = 0x41
	sGuildListToggled    byte = 0x42
	sGuildMailSent       byte = 0x45
	sGuildAppSubmitted   byte = 0x50
	sGuildAppWithdrawn   byte = 0x51
	sGuildAppResponded   byte = 0x52
	sGuildAppReceived    byte = 0x53 // to invite-capable members
	sGuildAppList        byte = 0x54
	sGuildList           byte = 0x55
	sGuildSearchResults  byte = 0x56
	sGuildBuffUsed       byte = 0x59
	sGuildBuffUpgraded   byte = 0x5A
	sGuildHouseUpgraded  byte = 0x62
	sGuildHouseRethemed  byte = 0x63
	sGuildDonated        byte = 0x6E
	sGuildServiceUpdated byte = 0x6F
	sGuildError          byte = 0xFF
)

// Typed error-notice codes carried by the sGuildError frame. Values match
// the client's error string table.
const (
	guildErrNotFound      int32 = 0x03
	guildErrAlreadyJoined int32 = 0x04
	guildErrNameExists    int32 = 0x0B
	guildErrAtCapacity    int32 = 0x0E
	guildErrNotEnoughMeso int32 = 0x14
	guildErrNoPermission  int32 = 0x15
	guildErrAppsMaxed     int32 = 0x18
	guildErrTargetGuilded int32 = 0x19
)

func guildErrorPacket(code int32) []byte {
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_GUILD)
	w.WriteByte(sGuildError)
	w.WriteInt(code)
	return w.Bytes()
}

func sendGuildError(p *world.PlayerInfo, code int32) {
	if p.Session != nil {
		p.Session.Send(guildErrorPacket(code))
	}
}

// writeRankBlock appends the full rank table.
// Caller holds the guild lock.
func writeRankBlock(w *packet.Writer, g *world.Guild) {
	w.WriteByte(world.RankCount)
	for i := 0; i < world.RankCount; i++ {
		w.WriteByte(byte(i))
		w.WriteUnicodeString(g.Ranks[i].Name)
		w.WriteInt(g.Ranks[i].Rights)
	}
}

// writeMemberBlock appends one membership edge, with online flag resolved
// through the player directory.
func writeMemberBlock(w *packet.Writer, m *world.GuildMember, online bool) {
	w.WriteLong(m.CharID)
	w.WriteUnicodeString(m.Name)
	w.WriteByte(m.Rank)
	w.WriteInt(m.Contribution)
	w.WriteByte(m.DailyDonationCount)
	w.WriteLong(m.AttendanceUnix)
	w.WriteUnicodeString(m.Motto)
	w.WriteLong(m.JoinedUnix)
	w.WriteBool(online)
}

// guildInfoPacket is the full aggregate snapshot sent on join and on world
// entry. Caller holds the guild lock.
func guildInfoPacket(g *world.Guild, w3 *world.State) []byte {
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_GUILD)
	w.WriteByte(sGuildInfo)
	w.WriteLong(g.ID)
	w.WriteUnicodeString(g.Name)
	w.WriteUnicodeString(g.LeaderName)
	w.WriteLong(g.Exp)
	w.WriteLong(g.Funds)
	w.WriteInt(int32(g.Capacity))
	w.WriteInt(g.HouseRank)
	w.WriteInt(g.HouseTheme)
	w.WriteBool(g.Searchable)
	w.WriteUnicodeString(g.Notice)
	w.WriteLong(g.CreatedUnix)

	writeRankBlock(w, g)

	w.WriteShort(uint16(len(g.Members)))
	for _, m := range g.Members {
		online := w3.GetByCharID(m.CharID) != nil
		writeMemberBlock(w, m, online)
	}

	w.WriteShort(uint16(len(g.Buffs)))
	for _, b := range g.Buffs {
		w.WriteInt(b.ID)
		w.WriteInt(b.Level)
	}

	w.WriteShort(uint16(len(g.Services)))
	for _, s := range g.Services {
		w.WriteInt(s.ID)
		w.WriteInt(s.Level)
	}
	return w.Bytes()
}

// guildSummaryPacket writes one row of a guild listing. Caller holds the
// guild lock.
func writeGuildSummary(w *packet.Writer, g *world.Guild) {
	w.WriteLong(g.ID)
	w.WriteUnicodeString(g.Name)
	w.WriteUnicodeString(g.LeaderName)
	w.WriteLong(g.Exp)
	w.WriteShort(uint16(g.MemberCount()))
	w.WriteInt(int32(g.Capacity))
	w.WriteInt(g.HouseRank)
	w.WriteInt(g.HouseTheme)
}

// guildTagPacket updates the name shown over a character's head for
// everyone in the field. Empty name clears it.
func guildTagPacket(charID int64, guildID int64, guildName string) []byte {
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_GUILD_TAG)
	w.WriteLong(charID)
	w.WriteLong(guildID)
	w.WriteUnicodeString(guildName)
	return w.Bytes()
}

func walletPacket(meso int64) []byte {
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_WALLET)
	w.WriteLong(meso)
	return w.Bytes()
}

func itemGainPacket(itemID int32, rarity byte, quantity int32) []byte {
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_ITEM_GAIN)
	w.WriteInt(itemID)
	w.WriteByte(rarity)
	w.WriteInt(quantity)
	return w.Bytes()
}

func fieldWarpPacket(fieldID int32, instanceID int64) []byte {
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_FIELD_WARP)
	w.WriteInt(fieldID)
	w.WriteLong(instanceID)
	return w.Bytes()
}
