package handler

import (
	"fmt"
	"strings"
	"time"

	"github.com/ms2go/server/internal/net"
	"github.com/ms2go/server/internal/net/packet"
	"github.com/ms2go/server/internal/persist"
	"github.com/ms2go/server/internal/world"
)

// currentGuild resolves the acting player's guild aggregate, or nil.
func currentGuild(deps *Deps, p *world.PlayerInfo) *world.Guild {
	gid := p.GuildID()
	if gid == 0 {
		return nil
	}
	return deps.World.Guilds.GetByID(gid)
}

// memberIDsLocked snapshots member char ids. Caller holds the guild lock;
// the snapshot is used for sends after unlock so broadcast order follows
// mutation order without holding the lock across I/O.
func memberIDsLocked(g *world.Guild) []int64 {
	ids := make([]int64, 0, len(g.Members))
	for id := range g.Members {
		ids = append(ids, id)
	}
	return ids
}

// findMemberByNameLocked scans the membership for a display name.
// Caller holds the guild lock.
func findMemberByNameLocked(g *world.Guild, name string) *world.GuildMember {
	for _, m := range g.Members {
		if strings.EqualFold(m.Name, name) {
			return m
		}
	}
	return nil
}

// sendToMembers unicasts a frame to every online member, optionally
// excluding one char id (0 excludes nobody).
func sendToMembers(deps *Deps, ids []int64, data []byte, exceptCharID int64) {
	for _, id := range ids {
		if id == exceptCharID {
			continue
		}
		if p := deps.World.GetByCharID(id); p != nil {
			p.Session.Send(data)
		}
	}
}

// withdrawAllApplications removes every outstanding application of the
// player from both sides and from persistence. Called after joining or
// founding a guild; must not be called while holding any guild lock.
func withdrawAllApplications(deps *Deps, p *world.PlayerInfo) {
	apps := p.ClearApplications()
	if len(apps) == 0 {
		return
	}
	ctx, cancel := dbCtx()
	defer cancel()
	for _, app := range apps {
		if g := deps.World.Guilds.GetByID(app.GuildID); g != nil {
			g.Lock()
			g.RemoveApplication(app.ID)
			g.Unlock()
		}
		if err := deps.GuildRepo.DeleteApplication(ctx, app.ID); err != nil {
			deps.Log.Error(fmt.Sprintf("刪除公會申請失敗  app=%d  err=%v", app.ID, err))
		}
	}
}

// rejectApplicationsLocked empties the guild's pending list and returns the
// snapshot. Caller holds the guild lock; the applicant side is dropped
// after unlock by notifyApplicationsRejected.
func rejectApplicationsLocked(g *world.Guild) []*world.GuildApplication {
	apps := make([]*world.GuildApplication, 0, len(g.Applications))
	for _, app := range g.Applications {
		apps = append(apps, app)
		delete(g.Applications, app.ID)
	}
	return apps
}

// notifyApplicationsRejected removes the rejected applications from any
// online applicant and tells them. Offline applicants lose the record with
// the guild row.
func notifyApplicationsRejected(deps *Deps, gid int64, apps []*world.GuildApplication) {
	for _, app := range apps {
		applicant := deps.World.GetByCharID(app.CharID)
		if applicant == nil {
			continue
		}
		applicant.RemoveApplication(app.ID)
		w := packet.NewWriterWithOpcode(packet.S_OPCODE_GUILD)
		w.WriteByte(sGuildAppResponded)
		w.WriteLong(app.ID)
		w.WriteLong(gid)
		w.WriteBool(false)
		applicant.Session.Send(w.Bytes())
	}
}

// --- Membership modes ---

// HandleGuildCreate processes mode 0x01.
// Packet: [str guildName]
func HandleGuildCreate(sess *net.Session, r *packet.Reader, deps *Deps) {
	name := strings.TrimSpace(r.ReadUnicodeString())
	if name == "" {
		return
	}
	player := deps.World.GetBySession(sess.ID())
	if player == nil {
		return
	}
	if player.GuildID() != 0 {
		return
	}
	if deps.GuildMeta.NameForbidden(name) {
		sendGuildError(player, guildErrNameExists)
		return
	}
	if deps.World.Guilds.NameExists(name) {
		sendGuildError(player, guildErrNameExists)
		return
	}

	ctx, cancel := dbCtx()
	defer cancel()
	if taken, err := deps.GuildRepo.NameExists(ctx, name); err != nil {
		deps.Log.Error(fmt.Sprintf("公會名稱查詢失敗  name=%s  err=%v", name, err))
		return
	} else if taken {
		sendGuildError(player, guildErrNameExists)
		return
	}

	cost := deps.Config.Guild.CreateCost
	if !player.ModifyMeso(-cost) {
		sendGuildError(player, guildErrNotEnoughMeso)
		return
	}

	now := time.Now().Unix()
	capacity := 10
	if prop := deps.GuildMeta.PropertyByExp(0); prop != nil {
		capacity = prop.Capacity
	}

	ranks := world.DefaultRanks()
	rankRows := make([]persist.GuildRankRow, world.RankCount)
	for i := range ranks {
		rankRows[i] = persist.GuildRankRow{Index: int16(i), Name: ranks[i].Name, Rights: ranks[i].Rights}
	}

	guildID, err := deps.GuildRepo.Create(ctx,
		persist.GuildRow{
			Name:            name,
			LeaderCharID:    player.CharID,
			LeaderAccountID: player.AccountID,
			LeaderName:      player.Name,
			CreatedAt:       now,
		},
		persist.GuildMemberRow{CharID: player.CharID, CharName: player.Name, JoinedAt: now},
		rankRows,
		player.Meso(),
	)
	if err != nil {
		player.ModifyMeso(cost) // refund, DB is the gate of record
		deps.Log.Error(fmt.Sprintf("建立公會失敗  player=%s  guild=%s  err=%v", player.Name, name, err))
		return
	}

	g := world.NewGuild(guildID, name, player, capacity, now)
	deps.World.Guilds.Add(g)
	player.SetGuild(guildID, name)
	withdrawAllApplications(deps, player)

	w := packet.NewWriterWithOpcode(packet.S_OPCODE_GUILD)
	w.WriteByte(sGuildCreated)
	w.WriteLong(guildID)
	w.WriteUnicodeString(name)
	sess.Send(w.Bytes())
	sess.Send(walletPacket(player.Meso()))

	g.Lock()
	info := guildInfoPacket(g, deps.World)
	g.Unlock()
	sess.Send(info)

	deps.World.BroadcastField(player.FieldID, player.InstanceID,
		guildTagPacket(player.CharID, guildID, name), 0)

	deps.Log.Info(fmt.Sprintf("公會建立  player=%s  guild=%s  id=%d", player.Name, name, guildID))
}

// HandleGuildDisband processes mode 0x02. Leader only; pending
// applications are rejected before the aggregate is removed.
// Packet: no additional fields.
func HandleGuildDisband(sess *net.Session, r *packet.Reader, deps *Deps) {
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
		return
	}
	gid := g.ID
	apps := rejectApplicationsLocked(g)
	ids := memberIDsLocked(g)
	g.Unlock()

	deps.World.Guilds.Remove(gid)
	notifyApplicationsRejected(deps, gid, apps)

	ctx, cancel := dbCtx()
	defer cancel()
	if err := deps.GuildRepo.Delete(ctx, gid); err != nil {
		deps.Log.Error(fmt.Sprintf("刪除公會失敗  guild=%d  err=%v", gid, err))
	}

	w := packet.NewWriterWithOpcode(packet.S_OPCODE_GUILD)
	w.WriteByte(sGuildDisbanded)
	w.WriteLong(gid)
	disbanded := w.Bytes()

	for _, id := range ids {
		m := deps.World.GetByCharID(id)
		if m == nil {
			continue
		}
		m.SetGuild(0, "")
		m.Session.Send(disbanded)
		deps.World.BroadcastField(m.FieldID, m.InstanceID,
			guildTagPacket(m.CharID, 0, ""), 0)
	}

	deps.Log.Info(fmt.Sprintf("公會解散  player=%s  guild=%d", player.Name, gid))
}

// HandleGuildInvite processes mode 0x03. Leader only. No membership change
// happens here; the target gets a pending-invite record the response is
// validated against.
// Packet: [str targetName]
func HandleGuildInvite(sess *net.Session, r *packet.Reader, deps *Deps) {
	targetName := r.ReadUnicodeString()
	if targetName == "" {
		return
	}
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
		return
	}
	if g.AtCapacity() {
		g.Unlock()
		sendGuildError(player, guildErrAtCapacity)
		return
	}
	gid, gname := g.ID, g.Name
	g.Unlock()

	target := deps.World.GetByName(targetName)
	if target == nil {
		sendGuildError(player, guildErrNotFound)
		return
	}
	if target.GuildID() != 0 {
		sendGuildError(player, guildErrTargetGuilded)
		return
	}

	target.SetPendingInvite(&world.GuildInvite{GuildID: gid, InviterName: player.Name})

	w := packet.NewWriterWithOpcode(packet.S_OPCODE_GUILD)
	w.WriteByte(sGuildInvited)
	w.WriteLong(gid)
	w.WriteUnicodeString(gname)
	w.WriteUnicodeString(player.Name)
	target.Session.Send(w.Bytes())

	ack := packet.NewWriterWithOpcode(packet.S_OPCODE_GUILD)
	ack.WriteByte(sGuildInviteSent)
	ack.WriteUnicodeString(target.Name)
	sess.Send(ack.Bytes())
}

// HandleGuildInviteResponse processes mode 0x05. The response is checked
// against the server-side pending-invite record; a response with no
// matching invite is dropped.
// Packet: [long guildID][bool accept]
func HandleGuildInviteResponse(sess *net.Session, r *packet.Reader, deps *Deps) {
	gid := r.ReadLong()
	accept := r.ReadBool()

	player := deps.World.GetBySession(sess.ID())
	if player == nil {
		return
	}
	inv := player.TakePendingInvite(gid)
	if inv == nil {
		return
	}

	if !accept {
		if inviter := deps.World.GetByName(inv.InviterName); inviter != nil {
			w := packet.NewWriterWithOpcode(packet.S_OPCODE_GUILD)
			w.WriteByte(sGuildInviteReply)
			w.WriteUnicodeString(player.Name)
			w.WriteBool(false)
			inviter.Session.Send(w.Bytes())
		}
		return
	}

	if player.GuildID() != 0 {
		// Joined another guild between invite and accept.
		sendGuildError(player, guildErrAlreadyJoined)
		return
	}
	g := deps.World.Guilds.GetByID(gid)
	if g == nil {
		sendGuildError(player, guildErrNotFound)
		return
	}

	joinGuild(deps, player, g, inv.InviterName)
}

// joinGuild is the shared accept path for invites and applications: add at
// the lowest rank, persist, broadcast once to the guild, refresh the field
// tag, and invalidate the joiner's other applications.
func joinGuild(deps *Deps, player *world.PlayerInfo, g *world.Guild, inviterName string) {
	now := time.Now().Unix()

	g.Lock()
	m := g.AddMember(player, now)
	if m == nil {
		g.Unlock()
		sendGuildError(player, guildErrAtCapacity)
		return
	}
	gid, gname := g.ID, g.Name
	memberRow := persist.GuildMemberRow{
		CharID: m.CharID, CharName: m.Name, Rank: int16(m.Rank), JoinedAt: now,
	}
	joined := packet.NewWriterWithOpcode(packet.S_OPCODE_GUILD)
	joined.WriteByte(sGuildMemberJoined)
	writeMemberBlock(joined, m, true)
	ids := memberIDsLocked(g)
	info := guildInfoPacket(g, deps.World)
	g.Unlock()

	player.SetGuild(gid, gname)

	ctx, cancel := dbCtx()
	defer cancel()
	if err := deps.GuildRepo.AddMember(ctx, gid, gname, memberRow); err != nil {
		deps.Log.Error(fmt.Sprintf("寫入公會成員失敗  guild=%d  char=%d  err=%v", gid, m.CharID, err))
	}

	withdrawAllApplications(deps, player)

	sendToMembers(deps, ids, joined.Bytes(), player.CharID)
	player.Session.Send(info)

	if inviterName != "" {
		if inviter := deps.World.GetByName(inviterName); inviter != nil {
			w := packet.NewWriterWithOpcode(packet.S_OPCODE_GUILD)
			w.WriteByte(sGuildInviteReply)
			w.WriteUnicodeString(player.Name)
			w.WriteBool(true)
			inviter.Session.Send(w.Bytes())
		}
	}

	deps.World.BroadcastField(player.FieldID, player.InstanceID,
		guildTagPacket(player.CharID, gid, gname), 0)
	deps.trophyGuildJoin(player)

	deps.Log.Info(fmt.Sprintf("加入公會  player=%s  guild=%s", player.Name, gname))
}

// HandleGuildLeave processes mode 0x07. The leader cannot leave; transfer
// first.
// Packet: no additional fields.
func HandleGuildLeave(sess *net.Session, r *packet.Reader, deps *Deps) {
	player := deps.World.GetBySession(sess.ID())
	if player == nil {
		return
	}
	g := currentGuild(deps, player)
	if g == nil {
		return
	}

	g.Lock()
	if g.Member(player.CharID) == nil || g.LeaderCharID == player.CharID {
		g.Unlock()
		return
	}
	g.RemoveMember(player.CharID)
	gid := g.ID
	ids := memberIDsLocked(g)
	g.Unlock()

	player.SetGuild(0, "")

	ctx, cancel := dbCtx()
	defer cancel()
	if err := deps.GuildRepo.RemoveMember(ctx, gid, player.CharID); err != nil {
		deps.Log.Error(fmt.Sprintf("移除公會成員失敗  guild=%d  char=%d  err=%v", gid, player.CharID, err))
	}

	w := packet.NewWriterWithOpcode(packet.S_OPCODE_GUILD)
	w.WriteByte(sGuildMemberLeft)
	w.WriteLong(player.CharID)
	w.WriteUnicodeString(player.Name)
	left := w.Bytes()
	sess.Send(left)
	sendToMembers(deps, ids, left, 0)

	deps.World.BroadcastField(player.FieldID, player.InstanceID,
		guildTagPacket(player.CharID, 0, ""), 0)
}

// HandleGuildKick processes mode 0x08. Requires an invite-capable rank;
// the leader can never be kicked. Insufficient rights are a silent drop.
// Packet: [str targetName]
func HandleGuildKick(sess *net.Session, r *packet.Reader, deps *Deps) {
	targetName := r.ReadUnicodeString()
	player := deps.World.GetBySession(sess.ID())
	if player == nil {
		return
	}
	g := currentGuild(deps, player)
	if g == nil {
		return
	}

	g.Lock()
	actor := g.Member(player.CharID)
	if !g.HasRight(actor, world.RightInvite) {
		g.Unlock()
		return
	}
	tm := findMemberByNameLocked(g, targetName)
	if tm == nil || tm.CharID == g.LeaderCharID || tm.CharID == player.CharID {
		g.Unlock()
		return
	}
	g.RemoveMember(tm.CharID)
	gid := g.ID
	targetID, targetDisplayName := tm.CharID, tm.Name
	ids := memberIDsLocked(g)
	g.Unlock()

	ctx, cancel := dbCtx()
	defer cancel()
	if err := deps.GuildRepo.RemoveMember(ctx, gid, targetID); err != nil {
		deps.Log.Error(fmt.Sprintf("移除公會成員失敗  guild=%d  char=%d  err=%v", gid, targetID, err))
	}

	w := packet.NewWriterWithOpcode(packet.S_OPCODE_GUILD)
	w.WriteByte(sGuildMemberKicked)
	w.WriteLong(targetID)
	w.WriteUnicodeString(targetDisplayName)
	w.WriteUnicodeString(player.Name)
	sendToMembers(deps, ids, w.Bytes(), 0)

	if target := deps.World.GetByCharID(targetID); target != nil {
		target.SetGuild(0, "")
		kicked := packet.NewWriterWithOpcode(packet.S_OPCODE_GUILD)
		kicked.WriteByte(sGuildKickedYou)
		kicked.WriteUnicodeString(player.Name)
		target.Session.Send(kicked.Bytes())
		deps.World.BroadcastField(target.FieldID, target.InstanceID,
			guildTagPacket(target.CharID, 0, ""), 0)
	}

	deps.Log.Info(fmt.Sprintf("公會踢出  actor=%s  target=%s  guild=%d", player.Name, targetDisplayName, gid))
}

// HandleGuildRankChange processes mode 0x0A. Leader only. Rank 0 cannot be
// assigned here; that path is TransferLeader.
// Packet: [str targetName][byte newRank]
func HandleGuildRankChange(sess *net.Session, r *packet.Reader, deps *Deps) {
	targetName := r.ReadUnicodeString()
	newRank := r.ReadByte()

	player := deps.World.GetBySession(sess.ID())
	if player == nil {
		return
	}
	g := currentGuild(deps, player)
	if g == nil {
		return
	}
	if newRank == 0 || newRank >= world.RankCount {
		return
	}

	g.Lock()
	if g.LeaderCharID != player.CharID {
		g.Unlock()
		return
	}
	tm := findMemberByNameLocked(g, targetName)
	if tm == nil || tm.CharID == g.LeaderCharID || tm.Rank == newRank {
		g.Unlock()
		return
	}
	tm.Rank = newRank
	gid, targetID := g.ID, tm.CharID
	ids := memberIDsLocked(g)
	g.Unlock()

	ctx, cancel := dbCtx()
	defer cancel()
	if err := deps.GuildRepo.UpdateMemberRank(ctx, gid, targetID, int16(newRank)); err != nil {
		deps.Log.Error(fmt.Sprintf("更新公會階級失敗  guild=%d  char=%d  err=%v", gid, targetID, err))
	}

	w := packet.NewWriterWithOpcode(packet.S_OPCODE_GUILD)
	w.WriteByte(sGuildRankChanged)
	w.WriteLong(targetID)
	w.WriteByte(newRank)
	sendToMembers(deps, ids, w.Bytes(), 0)
}

// HandleGuildPlayerMessage processes mode 0x0D: the member's motto line on
// the roster.
// Packet: [str motto]
func HandleGuildPlayerMessage(sess *net.Session, r *packet.Reader, deps *Deps) {
	motto := r.ReadUnicodeString()
	player := deps.World.GetBySession(sess.ID())
	if player == nil {
		return
	}
	g := currentGuild(deps, player)
	if g == nil {
		return
	}

	g.Lock()
	m := g.Member(player.CharID)
	if m == nil {
		g.Unlock()
		return
	}
	m.Motto = motto
	gid := g.ID
	ids := memberIDsLocked(g)
	g.Unlock()

	ctx, cancel := dbCtx()
	defer cancel()
	if err := deps.GuildRepo.UpdateMemberMotto(ctx, gid, player.CharID, motto); err != nil {
		deps.Log.Error(fmt.Sprintf("更新成員留言失敗  guild=%d  char=%d  err=%v", gid, player.CharID, err))
	}

	w := packet.NewWriterWithOpcode(packet.S_OPCODE_GUILD)
	w.WriteByte(sGuildMemberMotto)
	w.WriteLong(player.CharID)
	w.WriteUnicodeString(motto)
	sendToMembers(deps, ids, w.Bytes(), 0)
}

// HandleGuildTransferLeader processes mode 0x3D. The rank swap and the
// leader fields update in one step under the guild lock so there is never
// an observable moment with zero or two leaders.
// Packet: [str targetName]
func HandleGuildTransferLeader(sess *net.Session, r *packet.Reader, deps *Deps) {
	targetName := r.ReadUnicodeString()
	player := deps.World.GetBySession(sess.ID())
	if player == nil {
		return
	}
	g := currentGuild(deps, player)
	if g == nil {
		return
	}
	target := deps.World.GetByName(targetName)
	if target == nil {
		sendGuildError(player, guildErrNotFound)
		return
	}

	g.Lock()
	if g.LeaderCharID != player.CharID {
		g.Unlock()
		return
	}
	if !g.TransferLeader(target) {
		g.Unlock()
		return
	}
	gid := g.ID
	ids := memberIDsLocked(g)
	g.Unlock()

	deps.World.Guilds.UpdateLeader(gid, player.CharID, target.CharID)

	ctx, cancel := dbCtx()
	defer cancel()
	if err := deps.GuildRepo.UpdateLeader(ctx, gid, player.CharID, target.CharID, target.AccountID, target.Name); err != nil {
		deps.Log.Error(fmt.Sprintf("更新公會會長失敗  guild=%d  err=%v", gid, err))
	}

	w := packet.NewWriterWithOpcode(packet.S_OPCODE_GUILD)
	w.WriteByte(sGuildLeaderChanged)
	w.WriteLong(player.CharID)
	w.WriteLong(target.CharID)
	w.WriteUnicodeString(target.Name)
	sendToMembers(deps, ids, w.Bytes(), 0)

	deps.Log.Info(fmt.Sprintf("公會會長轉移  guild=%d  from=%s  to=%s", gid, player.Name, target.Name))
}

// HandleGuildNotice processes mode 0x3E. Requires the notice right.
// Packet: [str notice]
func HandleGuildNotice(sess *net.Session, r *packet.Reader, deps *Deps) {
	notice := r.ReadUnicodeString()
	player := deps.World.GetBySession(sess.ID())
	if player == nil {
		return
	}
	g := currentGuild(deps, player)
	if g == nil {
		return
	}

	g.Lock()
	if !g.HasRight(g.Member(player.CharID), world.RightNotice) {
		g.Unlock()
		sendGuildError(player, guildErrNoPermission)
		return
	}
	g.Notice = notice
	gid := g.ID
	ids := memberIDsLocked(g)
	g.Unlock()

	ctx, cancel := dbCtx()
	defer cancel()
	if err := deps.GuildRepo.UpdateNotice(ctx, gid, notice); err != nil {
		deps.Log.Error(fmt.Sprintf("更新公會公告失敗  guild=%d  err=%v", gid, err))
	}

	w := packet.NewWriterWithOpcode(packet.S_OPCODE_GUILD)
	w.WriteByte(sGuildNoticeChanged)
	w.WriteUnicodeString(player.Name)
	w.WriteUnicodeString(notice)
	sendToMembers(deps, ids, w.Bytes(), 0)
}

// HandleGuildUpdateRank processes mode 0x41: rename a rank slot and replace
// its rights bitmask. Leader only. Rank 0 keeps full rights regardless of
// the requested mask.
// Packet: [byte rankIndex][str rankName][int rights]
func HandleGuildUpdateRank(sess *net.Session, r *packet.Reader, deps *Deps) {
	idx := r.ReadByte()
	rankName := r.ReadUnicodeString()
	rights := r.ReadInt()

	player := deps.World.GetBySession(sess.ID())
	if player == nil {
		return
	}
	g := currentGuild(deps, player)
	if g == nil || idx >= world.RankCount || rankName == "" {
		return
	}
	if idx == 0 {
		rights = world.LeaderRights
	}

	g.Lock()
	if g.LeaderCharID != player.CharID {
		g.Unlock()
		sendGuildError(player, guildErrNoPermission)
		return
	}
	g.Ranks[idx] = world.GuildRank{Name: rankName, Rights: rights}
	gid := g.ID
	ids := memberIDsLocked(g)
	g.Unlock()

	ctx, cancel := dbCtx()
	defer cancel()
	if err := deps.GuildRepo.UpdateRankDef(ctx, gid, int16(idx), rankName, rights); err != nil {
		deps.Log.Error(fmt.Sprintf("更新公會階級設定失敗  guild=%d  idx=%d  err=%v", gid, idx, err))
	}

	w := packet.NewWriterWithOpcode(packet.S_OPCODE_GUILD)
	w.WriteByte(sGuildRankUpdated)
	w.WriteByte(idx)
	w.WriteUnicodeString(rankName)
	w.WriteInt(rights)
	sendToMembers(deps, ids, w.Bytes(), 0)
}
