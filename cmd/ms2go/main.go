package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ms2go/server/internal/config"
	"github.com/ms2go/server/internal/data"
	"github.com/ms2go/server/internal/handler"
	gonet "github.com/ms2go/server/internal/net"
	"github.com/ms2go/server/internal/net/packet"
	"github.com/ms2go/server/internal/persist"
	"github.com/ms2go/server/internal/world"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(serverName string, serverID int) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m             ms2go  v0.1.0                 \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m      MapleStory2 · Go 遊戲伺服器          \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1m伺服器:\033[0m %s \033[90m(編號: %d)\033[0m\n\n", serverName, serverID)
}

func printSection(title string) {
	// Use rune count for CJK width calculation (each CJK char = 2 columns)
	displayWidth := 0
	for _, r := range title {
		if r > 0x7F {
			displayWidth += 2
		} else {
			displayWidth++
		}
	}
	lineLen := 46 - displayWidth - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	displayWidth := 0
	for _, r := range label {
		if r > 0x7F {
			displayWidth += 2
		} else {
			displayWidth++
		}
	}
	dotsLen := 42 - displayWidth - len(numStr)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main server logic ─────────────────────────────────────────────

func run() error {
	// 1. Load config
	cfgPath := "config/server.toml"
	if p := os.Getenv("MS2GO_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner(cfg.Server.Name, cfg.Server.ID)

	// 3. Connect to PostgreSQL and run migrations
	printSection("資料庫")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := persist.NewDB(ctx, cfg.Database, log)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()
	printOK("PostgreSQL 連線成功")

	if err := persist.RunMigrations(ctx, db.Pool); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	printOK("資料庫遷移完成")
	fmt.Println()

	// 4. Create repositories
	accountRepo := persist.NewAccountRepo(db, cfg.Account.AutoCreate)
	charRepo := persist.NewCharacterRepo(db)
	guildRepo := persist.NewGuildRepo(db)

	if err := accountRepo.ResetOnline(ctx); err != nil {
		return fmt.Errorf("reset online flags: %w", err)
	}

	// 5. Load metadata and guilds
	printSection("資料載入")

	guildMeta, err := data.LoadGuildTable(cfg.Server.DataDir)
	if err != nil {
		return fmt.Errorf("load guild metadata: %w", err)
	}
	props, buffs, services, houses := guildMeta.Counts()
	printStat("公會等級", props)
	printStat("公會增益", buffs)
	printStat("公會服務", services)
	printStat("公會小屋", houses)

	worldState := world.NewState()
	guildCount, err := loadGuilds(ctx, worldState, guildRepo, guildMeta)
	if err != nil {
		return fmt.Errorf("load guilds: %w", err)
	}
	printStat("公會", guildCount)
	fmt.Println()

	// 6. Create packet handler registry and register handlers
	pktReg := packet.NewRegistry(log)
	deps := &handler.Deps{
		AccountRepo: accountRepo,
		CharRepo:    charRepo,
		GuildRepo:   guildRepo,
		Config:      cfg,
		Log:         log,
		World:       worldState,
		GuildMeta:   guildMeta,
	}
	handler.RegisterAll(pktReg, deps)

	// 7. Create network server
	pktPerSec := 0
	if cfg.RateLimit.Enabled {
		pktPerSec = cfg.RateLimit.PacketsPerSecond
	}
	netServer, err := gonet.NewServer(
		cfg.Network.BindAddress,
		cfg.Network.OutQueueSize,
		pktPerSec,
		pktReg,
		log,
	)
	if err != nil {
		return fmt.Errorf("net server: %w", err)
	}
	netServer.OnSession(nil, func(sess *gonet.Session) {
		cleanupSession(sess, worldState, charRepo, accountRepo, log)
	})
	go netServer.AcceptLoop()

	// 8. Wait for shutdown
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	printSection("伺服器就緒")
	printReady(fmt.Sprintf("監聽位址 %s", netServer.Addr().String()))
	fmt.Println()

	sig := <-shutdownCh
	log.Info("收到關閉信號", zap.String("signal", sig.String()))
	netServer.Shutdown()
	saveAllPlayers(worldState, charRepo, accountRepo, log)
	log.Info("伺服器已停止")
	return nil
}

// cleanupSession runs once per dead session: drop the player from the
// directory and flush wallet and online state.
func cleanupSession(sess *gonet.Session, ws *world.State, charRepo *persist.CharacterRepo,
	accountRepo *persist.AccountRepo, log *zap.Logger) {
	p := ws.Remove(sess.ID())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if p != nil {
		if err := charRepo.UpdateWallet(ctx, p.CharID, p.Meso()); err != nil {
			log.Error(fmt.Sprintf("離線存檔失敗  char=%d  err=%v", p.CharID, err))
		}
	}
	if sess.AccountName != "" {
		if err := accountRepo.SetOfflineByName(ctx, sess.AccountName); err != nil {
			log.Error(fmt.Sprintf("更新帳號狀態失敗  account=%s  err=%v", sess.AccountName, err))
		}
	}
}

// saveAllPlayers flushes every connected player at shutdown.
func saveAllPlayers(ws *world.State, charRepo *persist.CharacterRepo,
	accountRepo *persist.AccountRepo, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	ws.AllPlayers(func(p *world.PlayerInfo) {
		if err := charRepo.UpdateWallet(ctx, p.CharID, p.Meso()); err != nil {
			log.Error(fmt.Sprintf("存檔失敗  char=%d  err=%v", p.CharID, err))
		}
	})
	if err := accountRepo.ResetOnline(ctx); err != nil {
		log.Error(fmt.Sprintf("清除線上狀態失敗  err=%v", err))
	}
}

// loadGuilds rebuilds every guild aggregate from its persisted rows.
func loadGuilds(ctx context.Context, ws *world.State, repo *persist.GuildRepo, meta *data.GuildTable) (int, error) {
	guilds, members, ranks, apps, buffs, services, err := repo.LoadAll(ctx)
	if err != nil {
		return 0, err
	}

	byID := make(map[int64]*world.Guild, len(guilds))
	for _, row := range guilds {
		g := &world.Guild{
			ID:              row.ID,
			Name:            row.Name,
			LeaderCharID:    row.LeaderCharID,
			LeaderAccountID: row.LeaderAccountID,
			LeaderName:      row.LeaderName,
			Exp:             row.Exp,
			Funds:           row.Funds,
			Capacity:        10,
			HouseRank:       row.HouseRank,
			HouseTheme:      row.HouseTheme,
			Searchable:      row.Searchable,
			Notice:          row.Notice,
			CreatedUnix:     row.CreatedAt,
			Members:         make(map[int64]*world.GuildMember),
			Ranks:           world.DefaultRanks(),
			Applications:    make(map[int64]*world.GuildApplication),
			Buffs:           make(map[int32]*world.GuildBuff),
			Services:        make(map[int32]*world.GuildService),
		}
		if prop := meta.PropertyByExp(row.Exp); prop != nil {
			g.Capacity = prop.Capacity
		}
		byID[row.ID] = g
	}

	for _, m := range members {
		g := byID[m.GuildID]
		if g == nil {
			continue
		}
		g.Members[m.CharID] = &world.GuildMember{
			CharID:             m.CharID,
			Name:               m.CharName,
			Rank:               byte(m.Rank),
			Contribution:       m.Contribution,
			DailyDonationCount: byte(m.DailyDonationCount),
			AttendanceUnix:     m.AttendanceAt,
			Motto:              m.Motto,
			JoinedUnix:         m.JoinedAt,
		}
	}
	for _, rk := range ranks {
		g := byID[rk.GuildID]
		if g == nil || int(rk.Index) >= world.RankCount {
			continue
		}
		g.Ranks[rk.Index] = world.GuildRank{Name: rk.Name, Rights: rk.Rights}
	}
	for _, a := range apps {
		if g := byID[a.GuildID]; g != nil {
			g.Applications[a.ID] = &world.GuildApplication{
				ID: a.ID, CharID: a.CharID, GuildID: a.GuildID, CreatedUnix: a.CreatedAt,
			}
		}
	}
	for _, b := range buffs {
		if g := byID[b.GuildID]; g != nil {
			g.Buffs[b.BuffID] = &world.GuildBuff{ID: b.BuffID, Level: b.Level}
		}
	}
	for _, s := range services {
		if g := byID[s.GuildID]; g != nil {
			g.Services[s.ServiceID] = &world.GuildService{ID: s.ServiceID, Level: s.Level}
		}
	}

	for _, g := range byID {
		ws.Guilds.Add(g)
	}
	maxAppID, err := repo.MaxApplicationID(ctx)
	if err != nil {
		return 0, err
	}
	ws.Guilds.SeedApplicationID(maxAppID)
	return len(byID), nil
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}
