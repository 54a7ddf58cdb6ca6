package handler

import (
	"fmt"
	"time"

	"github.com/ms2go/server/internal/net"
	"github.com/ms2go/server/internal/net/packet"
	"github.com/ms2go/server/internal/persist"
	"github.com/ms2go/server/internal/world"
)

// HandleGuildSubmitApplication processes mode 0x50. The application is
// stored on both the applicant and the guild; invite-capable members that
// are online get a notification.
// Packet: [long guildID]
func HandleGuildSubmitApplication(sess *net.Session, r *packet.Reader, deps *Deps) {
	gid := r.ReadLong()
	player := deps.World.GetBySession(sess.ID())
	if player == nil {
		return
	}
	if player.GuildID() != 0 {
		return
	}
	if player.ApplicationCount() >= deps.Config.Guild.MaxPendingApps {
		sendGuildError(player, guildErrAppsMaxed)
		return
	}
	g := deps.World.Guilds.GetByID(gid)
	if g == nil {
		sendGuildError(player, guildErrNotFound)
		return
	}

	app := &world.GuildApplication{
		ID:          deps.World.Guilds.NextApplicationID(),
		CharID:      player.CharID,
		GuildID:     gid,
		CreatedUnix: time.Now().Unix(),
	}

	g.Lock()
	// Re-applying while a previous application is still pending is a drop.
	for _, existing := range g.Applications {
		if existing.CharID == player.CharID {
			g.Unlock()
			return
		}
	}
	g.AddApplication(app)
	notifyIDs := make([]int64, 0, 4)
	for _, m := range g.Members {
		if g.HasRight(m, world.RightInvite) {
			notifyIDs = append(notifyIDs, m.CharID)
		}
	}
	g.Unlock()

	player.AddApplication(app)

	ctx, cancel := dbCtx()
	defer cancel()
	err := deps.GuildRepo.InsertApplication(ctx, persist.GuildApplicationRow{
		ID: app.ID, GuildID: gid, CharID: player.CharID, CreatedAt: app.CreatedUnix,
	})
	if err != nil {
		deps.Log.Error(fmt.Sprintf("寫入公會申請失敗  app=%d  err=%v", app.ID, err))
	}

	ack := packet.NewWriterWithOpcode(packet.S_OPCODE_GUILD)
	ack.WriteByte(sGuildAppSubmitted)
	ack.WriteLong(app.ID)
	ack.WriteLong(gid)
	sess.Send(ack.Bytes())

	notice := packet.NewWriterWithOpcode(packet.S_OPCODE_GUILD)
	notice.WriteByte(sGuildAppReceived)
	notice.WriteLong(app.ID)
	notice.WriteLong(player.CharID)
	notice.WriteUnicodeString(player.Name)
	notice.WriteShort(uint16(player.Level))
	sendToMembers(deps, notifyIDs, notice.Bytes(), 0)
}

// HandleGuildWithdrawApplication processes mode 0x51. Only the applicant
// can withdraw; both sides drop the record.
// Packet: [long applicationID]
func HandleGuildWithdrawApplication(sess *net.Session, r *packet.Reader, deps *Deps) {
	appID := r.ReadLong()
	player := deps.World.GetBySession(sess.ID())
	if player == nil {
		return
	}
	app := player.RemoveApplication(appID)
	if app == nil {
		return
	}
	if g := deps.World.Guilds.GetByID(app.GuildID); g != nil {
		g.Lock()
		g.RemoveApplication(appID)
		g.Unlock()
	}

	ctx, cancel := dbCtx()
	defer cancel()
	if err := deps.GuildRepo.DeleteApplication(ctx, appID); err != nil {
		deps.Log.Error(fmt.Sprintf("刪除公會申請失敗  app=%d  err=%v", appID, err))
	}

	w := packet.NewWriterWithOpcode(packet.S_OPCODE_GUILD)
	w.WriteByte(sGuildAppWithdrawn)
	w.WriteLong(appID)
	sess.Send(w.Bytes())
}

// HandleGuildApplicationResponse processes mode 0x52. Accept shares the
// invite-accept join path. An accepted applicant must be online; when they
// are not, the application is left pending for a later response.
// Packet: [long applicationID][bool accept]
func HandleGuildApplicationResponse(sess *net.Session, r *packet.Reader, deps *Deps) {
	appID := r.ReadLong()
	accept := r.ReadBool()

	player := deps.World.GetBySession(sess.ID())
	if player == nil {
		return
	}
	g := currentGuild(deps, player)
	if g == nil {
		return
	}

	g.Lock()
	if !g.HasRight(g.Member(player.CharID), world.RightInvite) {
		g.Unlock()
		sendGuildError(player, guildErrNoPermission)
		return
	}
	app := g.Applications[appID]
	if app == nil {
		g.Unlock()
		return
	}
	applicant := deps.World.GetByCharID(app.CharID)
	if accept && applicant == nil {
		g.Unlock()
		return
	}
	g.RemoveApplication(appID)
	gid := g.ID
	g.Unlock()

	if applicant != nil {
		applicant.RemoveApplication(appID)
	}

	ctx, cancel := dbCtx()
	defer cancel()
	if err := deps.GuildRepo.DeleteApplication(ctx, appID); err != nil {
		deps.Log.Error(fmt.Sprintf("刪除公會申請失敗  app=%d  err=%v", appID, err))
	}

	result := packet.NewWriterWithOpcode(packet.S_OPCODE_GUILD)
	result.WriteByte(sGuildAppResponded)
	result.WriteLong(appID)
	result.WriteLong(gid)
	result.WriteBool(accept)

	if !accept {
		if applicant != nil {
			applicant.Session.Send(result.Bytes())
		}
		sess.Send(result.Bytes())
		return
	}

	if applicant.GuildID() != 0 {
		// Joined elsewhere between apply and accept.
		sess.Send(result.Bytes())
		return
	}
	applicant.Session.Send(result.Bytes())
	joinGuild(deps, applicant, g, "")
}

// HandleGuildLoadApplications processes mode 0x54: the player's own
// outstanding applications, with guild names resolved where still live.
// Packet: no additional fields.
func HandleGuildLoadApplications(sess *net.Session, r *packet.Reader, deps *Deps) {
	player := deps.World.GetBySession(sess.ID())
	if player == nil {
		return
	}
	apps := player.Applications()

	w := packet.NewWriterWithOpcode(packet.S_OPCODE_GUILD)
	w.WriteByte(sGuildAppList)
	w.WriteShort(uint16(len(apps)))
	for _, app := range apps {
		name := ""
		if g := deps.World.Guilds.GetByID(app.GuildID); g != nil {
			g.Lock()
			name = g.Name
			g.Unlock()
		}
		w.WriteLong(app.ID)
		w.WriteLong(app.GuildID)
		w.WriteUnicodeString(name)
		w.WriteLong(app.CreatedUnix)
	}
	sess.Send(w.Bytes())
}

// HandleGuildListGuild processes mode 0x42: toggle whether the guild shows
// up in the public listing. Leader only.
// Packet: [bool searchable]
func HandleGuildListGuild(sess *net.Session, r *packet.Reader, deps *Deps) {
	searchable := r.ReadBool()
	player := deps.World.GetBySession(sess.ID())
	if player == nil {
		return
	}
	g := currentGuild(deps, player)
	if g == nil {
		return
	}

	g.Lock()
	if g.LeaderCharID != player.CharID {
		g.Unlock()
		sendGuildError(player, guildErrNoPermission)
		return
	}
	g.Searchable = searchable
	gid := g.ID
	g.Unlock()

	ctx, cancel := dbCtx()
	defer cancel()
	if err := deps.GuildRepo.UpdateSearchable(ctx, gid, searchable); err != nil {
		deps.Log.Error(fmt.Sprintf("更新公會列表狀態失敗  guild=%d  err=%v", gid, err))
	}

	w := packet.NewWriterWithOpcode(packet.S_OPCODE_GUILD)
	w.WriteByte(sGuildListToggled)
	w.WriteBool(searchable)
	sess.Send(w.Bytes())
}

// HandleGuildLoadGuildList processes mode 0x55: the public guild listing.
// The client sends focus attribute filters; they are read and accepted but
// not applied yet (the original server ignored them too).
// Packet: [int focus1][int focus2][int focus3]
func HandleGuildLoadGuildList(sess *net.Session, r *packet.Reader, deps *Deps) {
	_ = r.ReadInt()
	_ = r.ReadInt()
	_ = r.ReadInt()

	player := deps.World.GetBySession(sess.ID())
	if player == nil {
		return
	}

	listed := make([]*world.Guild, 0)
	for _, g := range deps.World.Guilds.List() {
		g.Lock()
		if g.Searchable {
			listed = append(listed, g)
		}
		g.Unlock()
	}

	w := packet.NewWriterWithOpcode(packet.S_OPCODE_GUILD)
	w.WriteByte(sGuildList)
	w.WriteShort(uint16(len(listed)))
	for _, g := range listed {
		g.Lock()
		writeGuildSummary(w, g)
		g.Unlock()
	}
	sess.Send(w.Bytes())
}

// HandleGuildSearchByName processes mode 0x56: case-insensitive substring
// search over guild names.
// Packet: [str needle]
func HandleGuildSearchByName(sess *net.Session, r *packet.Reader, deps *Deps) {
	needle := r.ReadUnicodeString()
	player := deps.World.GetBySession(sess.ID())
	if player == nil || needle == "" {
		return
	}

	matches := deps.World.Guilds.SearchByName(needle)

	w := packet.NewWriterWithOpcode(packet.S_OPCODE_GUILD)
	w.WriteByte(sGuildSearchResults)
	w.WriteShort(uint16(len(matches)))
	for _, g := range matches {
		g.Lock()
		writeGuildSummary(w, g)
		g.Unlock()
	}
	sess.Send(w.Bytes())
}
