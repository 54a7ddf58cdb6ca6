package handler

import (
	"fmt"
	"time"

	"github.com/ms2go/server/internal/data"
	"github.com/ms2go/server/internal/net"
	"github.com/ms2go/server/internal/net/packet"
	"github.com/ms2go/server/internal/world"
)

const (
	guildCoinItemID   int32 = 30000861
	guildCoinRarity   byte  = 4
	donationUnitMeso  int64 = 10000
	personalBuffFloor int32 = 1000 // buff ids above this charge personal meso
)

// sameDay compares two unix timestamps at calendar-day granularity in
// server local time. Attendance resets at midnight, not 24h after the
// previous check-in.
func sameDay(a, b int64) bool {
	ay, am, ad := time.Unix(a, 0).Date()
	by, bm, bd := time.Unix(b, 0).Date()
	return ay == by && am == bm && ad == bd
}

// applyCheckIn mutates the aggregate for one attendance claim and reports
// the guild-coin reward. A repeat claim on the same calendar day changes
// nothing. Caller holds the guild lock.
func applyCheckIn(g *world.Guild, m *world.GuildMember, meta *data.GuildTable, now int64) (coin int32, ok bool) {
	if sameDay(m.AttendanceUnix, now) {
		return 0, false
	}
	prop := meta.PropertyByExp(g.Exp)
	if prop == nil {
		return 0, false
	}
	m.Contribution += meta.ContributionAmount("attend")
	m.AttendanceUnix = now
	g.AddExp(prop.AttendExp)
	g.AddFunds(prop.AttendFunds)
	if np := meta.PropertyByExp(g.Exp); np != nil {
		g.Capacity = np.Capacity
	}
	return prop.AttendGuildCoin, true
}

type donateOutcome int

const (
	donateOK donateOutcome = iota
	donateCapped
	donateNoMeso
)

// applyDonation converts qty donation units into guild funds. The daily cap
// is checked before the wallet debit, so a capped donation touches neither
// the wallet nor the aggregate. Caller holds the guild lock.
func applyDonation(g *world.Guild, m *world.GuildMember, meta *data.GuildTable, qty int32, debit func(amount int64) bool) (coin int32, out donateOutcome) {
	prop := meta.PropertyByExp(g.Exp)
	if prop == nil {
		return 0, donateCapped
	}
	if int(m.DailyDonationCount)+int(qty) > prop.DonationMax {
		return 0, donateCapped
	}
	amount := int64(qty) * donationUnitMeso
	if !debit(amount) {
		return 0, donateNoMeso
	}
	g.AddFunds(amount)
	m.DailyDonationCount += byte(qty)
	m.Contribution += meta.ContributionAmount("donation") * qty
	return prop.DonateGuildCoin * qty, donateOK
}

// guildLevelLocked derives the guild's level from its exp.
// Caller holds the guild lock.
func guildLevelLocked(deps *Deps, g *world.Guild) int32 {
	if prop := deps.GuildMeta.PropertyByExp(g.Exp); prop != nil {
		return prop.Level
	}
	return 0
}

// HandleGuildCheckIn processes mode 0x0F: daily attendance. A second
// check-in on the same calendar day is a no-op.
// Packet: no additional fields.
func HandleGuildCheckIn(sess *net.Session, r *packet.Reader, deps *Deps) {
	player := deps.World.GetBySession(sess.ID())
	if player == nil {
		return
	}
	g := currentGuild(deps, player)
	if g == nil {
		return
	}

	now := time.Now().Unix()

	g.Lock()
	m := g.Member(player.CharID)
	if m == nil {
		g.Unlock()
		return
	}
	coin, ok := applyCheckIn(g, m, deps.GuildMeta, now)
	if !ok {
		g.Unlock()
		return
	}
	gid := g.ID
	exp, funds := g.Exp, g.Funds
	contribution, donations := m.Contribution, m.DailyDonationCount
	ids := memberIDsLocked(g)
	g.Unlock()

	ctx, cancel := dbCtx()
	defer cancel()
	if err := deps.GuildRepo.UpdateMemberActivity(ctx, gid, player.CharID, contribution, int16(donations), now); err != nil {
		deps.Log.Error(fmt.Sprintf("更新公會出席失敗  guild=%d  char=%d  err=%v", gid, player.CharID, err))
	}
	if err := deps.GuildRepo.UpdateProgress(ctx, gid, exp, funds); err != nil {
		deps.Log.Error(fmt.Sprintf("更新公會進度失敗  guild=%d  err=%v", gid, err))
	}

	deps.grantItem(player, guildCoinItemID, guildCoinRarity, coin)
	sess.Send(itemGainPacket(guildCoinItemID, guildCoinRarity, coin))

	w := packet.NewWriterWithOpcode(packet.S_OPCODE_GUILD)
	w.WriteByte(sGuildCheckedIn)
	w.WriteLong(player.CharID)
	w.WriteInt(contribution)
	w.WriteLong(exp)
	w.WriteLong(funds)
	sendToMembers(deps, ids, w.Bytes(), 0)
}

// HandleGuildDonate processes mode 0x6E: convert personal meso into guild
// funds. The daily cap comes from the guild's level row; hitting it is a
// silent drop, an empty wallet is an error notice.
// Packet: [short quantity]
func HandleGuildDonate(sess *net.Session, r *packet.Reader, deps *Deps) {
	qty := int32(r.ReadShort())
	if qty <= 0 {
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
	amount := int64(qty) * donationUnitMeso

	g.Lock()
	m := g.Member(player.CharID)
	if m == nil {
		g.Unlock()
		return
	}
	// The wallet debit is the gate: nothing changes when it fails.
	coin, out := applyDonation(g, m, deps.GuildMeta, qty, func(amount int64) bool {
		return player.ModifyMeso(-amount)
	})
	if out != donateOK {
		g.Unlock()
		if out == donateNoMeso {
			sendGuildError(player, guildErrNotEnoughMeso)
		}
		return
	}
	gid := g.ID
	exp, funds := g.Exp, g.Funds
	contribution, donations, attendance := m.Contribution, m.DailyDonationCount, m.AttendanceUnix
	ids := memberIDsLocked(g)
	g.Unlock()

	ctx, cancel := dbCtx()
	defer cancel()
	if err := deps.GuildRepo.UpdateMemberActivity(ctx, gid, player.CharID, contribution, int16(donations), attendance); err != nil {
		deps.Log.Error(fmt.Sprintf("更新公會捐獻失敗  guild=%d  char=%d  err=%v", gid, player.CharID, err))
	}
	if err := deps.GuildRepo.UpdateProgress(ctx, gid, exp, funds); err != nil {
		deps.Log.Error(fmt.Sprintf("更新公會進度失敗  guild=%d  err=%v", gid, err))
	}
	if err := deps.CharRepo.UpdateWallet(ctx, player.CharID, player.Meso()); err != nil {
		deps.Log.Error(fmt.Sprintf("更新錢包失敗  char=%d  err=%v", player.CharID, err))
	}

	sess.Send(walletPacket(player.Meso()))
	deps.grantItem(player, guildCoinItemID, guildCoinRarity, coin)
	sess.Send(itemGainPacket(guildCoinItemID, guildCoinRarity, coin))

	w := packet.NewWriterWithOpcode(packet.S_OPCODE_GUILD)
	w.WriteByte(sGuildDonated)
	w.WriteLong(player.CharID)
	w.WriteLong(amount)
	w.WriteLong(funds)
	sendToMembers(deps, ids, w.Bytes(), 0)
}

// HandleGuildUseBuff processes mode 0x59. Buff ids above the personal
// floor charge the player's meso; the rest come out of guild funds. Any
// unmet requirement is a silent drop.
// Packet: [int buffID]
func HandleGuildUseBuff(sess *net.Session, r *packet.Reader, deps *Deps) {
	buffID := r.ReadInt()
	player := deps.World.GetBySession(sess.ID())
	if player == nil {
		return
	}
	g := currentGuild(deps, player)
	if g == nil {
		return
	}

	g.Lock()
	if g.Member(player.CharID) == nil {
		g.Unlock()
		return
	}
	level := int32(1)
	if b := g.Buff(buffID); b != nil {
		level = b.Level
	}
	meta := deps.GuildMeta.BuffLevel(buffID, level)
	if meta == nil {
		g.Unlock()
		return
	}
	personal := buffID > personalBuffFloor
	if personal {
		if !player.ModifyMeso(-meta.Cost) {
			g.Unlock()
			return
		}
	} else if !g.TryDebitFunds(meta.Cost) {
		g.Unlock()
		return
	}
	if g.Buff(buffID) == nil {
		g.Buffs[buffID] = &world.GuildBuff{ID: buffID, Level: level}
	}
	gid := g.ID
	exp, funds := g.Exp, g.Funds
	effectID, duration := meta.EffectID, meta.DurationSec
	ids := memberIDsLocked(g)
	g.Unlock()

	ctx, cancel := dbCtx()
	defer cancel()
	if err := deps.GuildRepo.UpsertBuff(ctx, gid, buffID, level); err != nil {
		deps.Log.Error(fmt.Sprintf("更新公會增益失敗  guild=%d  buff=%d  err=%v", gid, buffID, err))
	}
	if personal {
		if err := deps.CharRepo.UpdateWallet(ctx, player.CharID, player.Meso()); err != nil {
			deps.Log.Error(fmt.Sprintf("更新錢包失敗  char=%d  err=%v", player.CharID, err))
		}
		sess.Send(walletPacket(player.Meso()))
	} else if err := deps.GuildRepo.UpdateProgress(ctx, gid, exp, funds); err != nil {
		deps.Log.Error(fmt.Sprintf("更新公會進度失敗  guild=%d  err=%v", gid, err))
	}

	w := packet.NewWriterWithOpcode(packet.S_OPCODE_GUILD)
	w.WriteByte(sGuildBuffUsed)
	w.WriteLong(player.CharID)
	w.WriteInt(buffID)
	w.WriteInt(level)
	w.WriteInt(effectID)
	w.WriteInt(duration)
	sendToMembers(deps, ids, w.Bytes(), 0)
}

// HandleGuildUpgradeBuff processes mode 0x5A. One level per call; the next
// level's row must exist and the guild level requirement must be met.
// Packet: [int buffID]
func HandleGuildUpgradeBuff(sess *net.Session, r *packet.Reader, deps *Deps) {
	buffID := r.ReadInt()
	player := deps.World.GetBySession(sess.ID())
	if player == nil {
		return
	}
	g := currentGuild(deps, player)
	if g == nil {
		return
	}

	g.Lock()
	if g.Member(player.CharID) == nil {
		g.Unlock()
		return
	}
	b := g.Buff(buffID)
	if b == nil {
		g.Unlock()
		return
	}
	next := b.Level + 1
	meta := deps.GuildMeta.BuffLevel(buffID, next)
	if meta == nil {
		g.Unlock()
		return
	}
	if guildLevelLocked(deps, g) < meta.LevelRequirement {
		g.Unlock()
		return
	}
	personal := buffID > personalBuffFloor
	if personal {
		if !player.ModifyMeso(-meta.UpgradeCost) {
			g.Unlock()
			return
		}
	} else if !g.TryDebitFunds(meta.UpgradeCost) {
		g.Unlock()
		return
	}
	b.Level = next
	gid := g.ID
	exp, funds := g.Exp, g.Funds
	ids := memberIDsLocked(g)
	g.Unlock()

	ctx, cancel := dbCtx()
	defer cancel()
	if err := deps.GuildRepo.UpsertBuff(ctx, gid, buffID, next); err != nil {
		deps.Log.Error(fmt.Sprintf("更新公會增益失敗  guild=%d  buff=%d  err=%v", gid, buffID, err))
	}
	if personal {
		if err := deps.CharRepo.UpdateWallet(ctx, player.CharID, player.Meso()); err != nil {
			deps.Log.Error(fmt.Sprintf("更新錢包失敗  char=%d  err=%v", player.CharID, err))
		}
		sess.Send(walletPacket(player.Meso()))
	} else if err := deps.GuildRepo.UpdateProgress(ctx, gid, exp, funds); err != nil {
		deps.Log.Error(fmt.Sprintf("更新公會進度失敗  guild=%d  err=%v", gid, err))
	}

	w := packet.NewWriterWithOpcode(packet.S_OPCODE_GUILD)
	w.WriteByte(sGuildBuffUpgraded)
	w.WriteInt(buffID)
	w.WriteInt(next)
	sendToMembers(deps, ids, w.Bytes(), 0)
}

// HandleGuildUpgradeHome processes mode 0x62. Leader only; ranks advance
// one step at a time.
// Packet: [int newRank]
func HandleGuildUpgradeHome(sess *net.Session, r *packet.Reader, deps *Deps) {
	newRank := r.ReadInt()
	player := deps.World.GetBySession(sess.ID())
	if player == nil {
		return
	}
	g := currentGuild(deps, player)
	if g == nil {
		return
	}

	g.Lock()
	if g.LeaderCharID != player.CharID || newRank != g.HouseRank+1 {
		g.Unlock()
		return
	}
	house := deps.GuildMeta.House(newRank, g.HouseTheme)
	if house == nil {
		g.Unlock()
		return
	}
	if guildLevelLocked(deps, g) < house.RequiredLevel {
		g.Unlock()
		return
	}
	if !g.TryDebitFunds(house.UpgradeCost) {
		g.Unlock()
		return
	}
	g.HouseRank = newRank
	gid := g.ID
	rank, theme := g.HouseRank, g.HouseTheme
	exp, funds := g.Exp, g.Funds
	ids := memberIDsLocked(g)
	g.Unlock()

	ctx, cancel := dbCtx()
	defer cancel()
	if err := deps.GuildRepo.UpdateHouse(ctx, gid, rank, theme); err != nil {
		deps.Log.Error(fmt.Sprintf("更新公會小屋失敗  guild=%d  err=%v", gid, err))
	}
	if err := deps.GuildRepo.UpdateProgress(ctx, gid, exp, funds); err != nil {
		deps.Log.Error(fmt.Sprintf("更新公會進度失敗  guild=%d  err=%v", gid, err))
	}

	w := packet.NewWriterWithOpcode(packet.S_OPCODE_GUILD)
	w.WriteByte(sGuildHouseUpgraded)
	w.WriteInt(rank)
	w.WriteInt(theme)
	w.WriteLong(funds)
	sendToMembers(deps, ids, w.Bytes(), 0)
}

// HandleGuildChangeHomeTheme processes mode 0x63. Leader only.
// Packet: [int theme]
func HandleGuildChangeHomeTheme(sess *net.Session, r *packet.Reader, deps *Deps) {
	theme := r.ReadInt()
	player := deps.World.GetBySession(sess.ID())
	if player == nil {
		return
	}
	g := currentGuild(deps, player)
	if g == nil {
		return
	}

	g.Lock()
	if g.LeaderCharID != player.CharID || theme == g.HouseTheme {
		g.Unlock()
		return
	}
	house := deps.GuildMeta.House(g.HouseRank, theme)
	if house == nil {
		g.Unlock()
		return
	}
	if !g.TryDebitFunds(house.RethemeCost) {
		g.Unlock()
		return
	}
	g.HouseTheme = theme
	gid := g.ID
	rank := g.HouseRank
	exp, funds := g.Exp, g.Funds
	ids := memberIDsLocked(g)
	g.Unlock()

	ctx, cancel := dbCtx()
	defer cancel()
	if err := deps.GuildRepo.UpdateHouse(ctx, gid, rank, theme); err != nil {
		deps.Log.Error(fmt.Sprintf("更新公會小屋失敗  guild=%d  err=%v", gid, err))
	}
	if err := deps.GuildRepo.UpdateProgress(ctx, gid, exp, funds); err != nil {
		deps.Log.Error(fmt.Sprintf("更新公會進度失敗  guild=%d  err=%v", gid, err))
	}

	w := packet.NewWriterWithOpcode(packet.S_OPCODE_GUILD)
	w.WriteByte(sGuildHouseRethemed)
	w.WriteInt(rank)
	w.WriteInt(theme)
	w.WriteLong(funds)
	sendToMembers(deps, ids, w.Bytes(), 0)
}

// HandleGuildEnterHouse processes mode 0x64: warp into the guild house
// instance scoped by guild id. An unresolved map is a silent drop.
// Packet: no additional fields.
func HandleGuildEnterHouse(sess *net.Session, r *packet.Reader, deps *Deps) {
	player := deps.World.GetBySession(sess.ID())
	if player == nil {
		return
	}
	g := currentGuild(deps, player)
	if g == nil {
		return
	}

	g.Lock()
	gid := g.ID
	rank, theme := g.HouseRank, g.HouseTheme
	g.Unlock()

	fieldID := deps.GuildMeta.HouseFieldID(rank, theme)
	if fieldID == 0 {
		return
	}

	player.FieldID = fieldID
	player.InstanceID = gid
	sess.Send(fieldWarpPacket(fieldID, gid))

	ctx, cancel := dbCtx()
	defer cancel()
	if err := deps.CharRepo.UpdateField(ctx, player.CharID, fieldID); err != nil {
		deps.Log.Error(fmt.Sprintf("更新角色地圖失敗  char=%d  err=%v", player.CharID, err))
	}
}

// HandleGuildServices processes mode 0x6F: buy or advance a house service
// by exactly one level. Requires the service right.
// Packet: [int serviceID]
func HandleGuildServices(sess *net.Session, r *packet.Reader, deps *Deps) {
	serviceID := r.ReadInt()
	player := deps.World.GetBySession(sess.ID())
	if player == nil {
		return
	}
	g := currentGuild(deps, player)
	if g == nil {
		return
	}

	g.Lock()
	if !g.HasRight(g.Member(player.CharID), world.RightService) {
		g.Unlock()
		return
	}
	svc := g.Service(serviceID)
	next := svc.Level + 1
	meta := deps.GuildMeta.ServiceLevel(serviceID, next)
	if meta == nil {
		g.Unlock()
		return
	}
	if guildLevelLocked(deps, g) < meta.LevelRequirement || g.HouseRank < meta.HouseLevelRequirement {
		g.Unlock()
		return
	}
	if !g.TryDebitFunds(meta.UpgradeCost) {
		g.Unlock()
		return
	}
	svc.Level = next
	gid := g.ID
	exp, funds := g.Exp, g.Funds
	ids := memberIDsLocked(g)
	g.Unlock()

	ctx, cancel := dbCtx()
	defer cancel()
	if err := deps.GuildRepo.UpsertService(ctx, gid, serviceID, next); err != nil {
		deps.Log.Error(fmt.Sprintf("更新公會服務失敗  guild=%d  service=%d  err=%v", gid, serviceID, err))
	}
	if err := deps.GuildRepo.UpdateProgress(ctx, gid, exp, funds); err != nil {
		deps.Log.Error(fmt.Sprintf("更新公會進度失敗  guild=%d  err=%v", gid, err))
	}

	w := packet.NewWriterWithOpcode(packet.S_OPCODE_GUILD)
	w.WriteByte(sGuildServiceUpdated)
	w.WriteInt(serviceID)
	w.WriteInt(next)
	w.WriteLong(funds)
	sendToMembers(deps, ids, w.Bytes(), 0)
}

// HandleGuildMail processes mode 0x45: fan a mail out to every member
// through the mail subsystem. Requires the mail right.
// Packet: [str title][str body]
func HandleGuildMail(sess *net.Session, r *packet.Reader, deps *Deps) {
	title := r.ReadUnicodeString()
	body := r.ReadUnicodeString()
	player := deps.World.GetBySession(sess.ID())
	if player == nil || title == "" {
		return
	}
	g := currentGuild(deps, player)
	if g == nil {
		return
	}

	g.Lock()
	if !g.HasRight(g.Member(player.CharID), world.RightMail) {
		g.Unlock()
		sendGuildError(player, guildErrNoPermission)
		return
	}
	ids := memberIDsLocked(g)
	g.Unlock()

	deps.sendGuildMail(player.Name, ids, title, body)

	w := packet.NewWriterWithOpcode(packet.S_OPCODE_GUILD)
	w.WriteByte(sGuildMailSent)
	w.WriteShort(uint16(len(ids)))
	sess.Send(w.Bytes())
}
