package handler

import (
	"errors"
	"fmt"

	"github.com/ms2go/server/internal/net"
	"github.com/ms2go/server/internal/net/packet"
	"github.com/ms2go/server/internal/persist"
	"github.com/ms2go/server/internal/world"
)

// Login result codes.
const (
	loginOK          byte = 0
	loginBadAccount  byte = 1
	loginBanned      byte = 2
	loginAlreadyOn   byte = 3
	loginNoCharacter byte = 4
)

func loginResultPacket(result byte, charID int64, charName string) []byte {
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_LOGIN_RESULT)
	w.WriteByte(result)
	w.WriteLong(charID)
	w.WriteUnicodeString(charName)
	return w.Bytes()
}

// HandleLogin processes the login request. A single character on the
// account is selected immediately; the character-select screen round trip
// only exists for multi-character accounts, which this server does not
// create.
// Packet: [str account][str password]
func HandleLogin(sess *net.Session, r *packet.Reader, deps *Deps) {
	account := r.ReadUnicodeString()
	password := r.ReadUnicodeString()
	if account == "" || password == "" {
		sess.Send(loginResultPacket(loginBadAccount, 0, ""))
		return
	}

	ctx, cancel := dbCtx()
	defer cancel()

	acc, err := deps.AccountRepo.Authenticate(ctx, account, password)
	if err != nil {
		switch {
		case errors.Is(err, persist.ErrAccountBanned):
			sess.Send(loginResultPacket(loginBanned, 0, ""))
		case errors.Is(err, persist.ErrAccountOnline):
			sess.Send(loginResultPacket(loginAlreadyOn, 0, ""))
		case errors.Is(err, persist.ErrAccountNotFound), errors.Is(err, persist.ErrBadPassword):
			sess.Send(loginResultPacket(loginBadAccount, 0, ""))
		default:
			deps.Log.Error(fmt.Sprintf("登入失敗  account=%s  err=%v", account, err))
			sess.Send(loginResultPacket(loginBadAccount, 0, ""))
		}
		return
	}

	chars, err := deps.CharRepo.LoadByAccount(ctx, acc.ID)
	if err != nil {
		deps.Log.Error(fmt.Sprintf("載入角色失敗  account=%s  err=%v", account, err))
		sess.Send(loginResultPacket(loginBadAccount, 0, ""))
		return
	}
	if len(chars) == 0 {
		// Auto-provision one character named after the account.
		id, err := deps.CharRepo.Create(ctx, persist.CharacterRow{
			AccountID: acc.ID, Name: account, Level: 1,
		})
		if err != nil {
			deps.Log.Error(fmt.Sprintf("建立角色失敗  account=%s  err=%v", account, err))
			sess.Send(loginResultPacket(loginNoCharacter, 0, ""))
			return
		}
		chars = []persist.CharacterRow{{ID: id, AccountID: acc.ID, Name: account, Level: 1}}
	}

	if err := deps.AccountRepo.SetOnline(ctx, acc.ID, true); err != nil {
		deps.Log.Error(fmt.Sprintf("更新帳號狀態失敗  account=%s  err=%v", account, err))
	}

	sess.AccountName = acc.Name
	sess.CharID = chars[0].ID
	sess.SetState(packet.StateAuthenticated)
	sess.Send(loginResultPacket(loginOK, chars[0].ID, chars[0].Name))

	deps.Log.Info(fmt.Sprintf("登入成功  account=%s  char=%s", acc.Name, chars[0].Name))
}

// HandleEnterWorld binds the authenticated character to the session,
// registers it in the player directory and restores guild presence.
// Packet: [long charID]
func HandleEnterWorld(sess *net.Session, r *packet.Reader, deps *Deps) {
	charID := r.ReadLong()
	if charID != sess.CharID {
		return
	}

	ctx, cancel := dbCtx()
	defer cancel()

	row, err := deps.CharRepo.FindByID(ctx, charID)
	if err != nil {
		deps.Log.Error(fmt.Sprintf("載入角色失敗  char=%d  err=%v", charID, err))
		sess.Close()
		return
	}

	player := &world.PlayerInfo{
		CharID:    row.ID,
		AccountID: row.AccountID,
		Name:      row.Name,
		Level:     row.Level,
		FieldID:   row.FieldID,
		Session:   sess,
	}
	player.SetMeso(row.Meso)
	player.SetGuild(row.GuildID, row.GuildName)

	// Pending applications live on the guild aggregates; rebuild the
	// player-side copy so withdraw and the per-player cap survive relogin.
	for _, app := range deps.World.Guilds.ApplicationsFor(player.CharID) {
		player.AddApplication(app)
	}

	deps.World.Add(player)
	sess.SetState(packet.StateInWorld)

	w := packet.NewWriterWithOpcode(packet.S_OPCODE_ENTER_WORLD)
	w.WriteLong(player.CharID)
	w.WriteInt(player.FieldID)
	w.WriteLong(player.Meso())
	sess.Send(w.Bytes())

	if g := currentGuild(deps, player); g != nil {
		g.Lock()
		info := guildInfoPacket(g, deps.World)
		gid, gname := g.ID, g.Name
		g.Unlock()
		sess.Send(info)
		deps.World.BroadcastField(player.FieldID, player.InstanceID,
			guildTagPacket(player.CharID, gid, gname), 0)
	}

	deps.Log.Info(fmt.Sprintf("進入世界  char=%s  field=%d", player.Name, player.FieldID))
}

// HandleQuit closes the session at the client's request. Directory and
// account cleanup run in the session's close callback.
func HandleQuit(sess *net.Session, r *packet.Reader, deps *Deps) {
	sess.Close()
}
