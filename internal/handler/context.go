package handler

import (
	"context"
	"time"

	"github.com/ms2go/server/internal/config"
	"github.com/ms2go/server/internal/data"
	"github.com/ms2go/server/internal/persist"
	"github.com/ms2go/server/internal/world"
	"go.uber.org/zap"
)

// ItemSink grants items into a player's inventory. The inventory subsystem
// lives outside this server; guild rewards only ever add.
type ItemSink interface {
	Grant(p *world.PlayerInfo, itemID int32, rarity byte, quantity int32)
}

// Mailer delivers guild mail. Offline recipients receive it on next login.
type Mailer interface {
	SendGuildMail(senderName string, recipientCharIDs []int64, title, body string)
}

// Trophy records achievement progress.
type Trophy interface {
	OnGuildJoin(p *world.PlayerInfo)
}

// Deps holds shared dependencies injected into all packet handlers.
// Items, Mail and Trophy may be nil; the grant/send helpers below no-op.
type Deps struct {
	AccountRepo *persist.AccountRepo
	CharRepo    *persist.CharacterRepo
	GuildRepo   *persist.GuildRepo
	Config      *config.Config
	Log         *zap.Logger
	World       *world.State
	GuildMeta   *data.GuildTable

	Items  ItemSink
	Mail   Mailer
	Trophy Trophy
}

// dbCtx returns the bounded context every handler-side persistence call uses.
func dbCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func (d *Deps) grantItem(p *world.PlayerInfo, itemID int32, rarity byte, quantity int32) {
	if d.Items != nil && quantity > 0 {
		d.Items.Grant(p, itemID, rarity, quantity)
	}
}

func (d *Deps) sendGuildMail(senderName string, recipients []int64, title, body string) {
	if d.Mail != nil {
		d.Mail.SendGuildMail(senderName, recipients, title, body)
	}
}

func (d *Deps) trophyGuildJoin(p *world.PlayerInfo) {
	if d.Trophy != nil {
		d.Trophy.OnGuildJoin(p)
	}
}
