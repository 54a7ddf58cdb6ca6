package persist

import (
	"context"
)

// GuildRow represents a row from the guilds table.
type GuildRow struct {
	ID              int64
	Name            string
	LeaderCharID    int64
	LeaderAccountID int64
	LeaderName      string
	Exp             int64
	Funds           int64
	HouseRank       int32
	HouseTheme      int32
	Searchable      bool
	Notice          string
	CreatedAt       int64
}

// GuildMemberRow represents a row from the guild_members table.
type GuildMemberRow struct {
	GuildID            int64
	CharID             int64
	CharName           string
	Rank               int16
	Contribution       int32
	DailyDonationCount int16
	AttendanceAt       int64
	Motto              string
	JoinedAt           int64
}

// GuildRankRow represents a row from the guild_ranks table.
type GuildRankRow struct {
	GuildID int64
	Index   int16
	Name    string
	Rights  int32
}

// GuildApplicationRow represents a row from the guild_applications table.
type GuildApplicationRow struct {
	ID        int64
	GuildID   int64
	CharID    int64
	CreatedAt int64
}

// GuildBuffRow represents a row from the guild_buffs table.
type GuildBuffRow struct {
	GuildID int64
	BuffID  int32
	Level   int32
}

// GuildServiceRow represents a row from the guild_services table.
type GuildServiceRow struct {
	GuildID   int64
	ServiceID int32
	Level     int32
}

// GuildRepo handles all guild-related database operations. Mutations run
// after the in-memory change under the guild lock has committed; a failed
// write is logged by the caller and retried implicitly by the next
// mutation of the same row (in-memory state stays authoritative).
type GuildRepo struct {
	db *DB
}

func NewGuildRepo(db *DB) *GuildRepo {
	return &GuildRepo{db: db}
}

// LoadAll loads every guild with its members, ranks, applications, buffs
// and services. Called once at server startup.
func (r *GuildRepo) LoadAll(ctx context.Context) ([]GuildRow, []GuildMemberRow, []GuildRankRow, []GuildApplicationRow, []GuildBuffRow, []GuildServiceRow, error) {
	guildRows, err := r.db.Pool.Query(ctx,
		`SELECT id, name, leader_char_id, leader_account_id, leader_name,
		        exp, funds, house_rank, house_theme, searchable, notice, created_at
		 FROM guilds ORDER BY id`)
	if err != nil {
		return nil, nil, nil, nil, nil, nil, err
	}
	defer guildRows.Close()

	var guilds []GuildRow
	for guildRows.Next() {
		var g GuildRow
		if err := guildRows.Scan(
			&g.ID, &g.Name, &g.LeaderCharID, &g.LeaderAccountID, &g.LeaderName,
			&g.Exp, &g.Funds, &g.HouseRank, &g.HouseTheme, &g.Searchable, &g.Notice, &g.CreatedAt,
		); err != nil {
			return nil, nil, nil, nil, nil, nil, err
		}
		guilds = append(guilds, g)
	}
	if err := guildRows.Err(); err != nil {
		return nil, nil, nil, nil, nil, nil, err
	}

	memberRows, err := r.db.Pool.Query(ctx,
		`SELECT guild_id, char_id, char_name, rank, contribution,
		        daily_donation_count, attendance_at, motto, joined_at
		 FROM guild_members ORDER BY guild_id, char_id`)
	if err != nil {
		return nil, nil, nil, nil, nil, nil, err
	}
	defer memberRows.Close()

	var members []GuildMemberRow
	for memberRows.Next() {
		var m GuildMemberRow
		if err := memberRows.Scan(&m.GuildID, &m.CharID, &m.CharName, &m.Rank,
			&m.Contribution, &m.DailyDonationCount, &m.AttendanceAt, &m.Motto, &m.JoinedAt); err != nil {
			return nil, nil, nil, nil, nil, nil, err
		}
		members = append(members, m)
	}
	if err := memberRows.Err(); err != nil {
		return nil, nil, nil, nil, nil, nil, err
	}

	rankRows, err := r.db.Pool.Query(ctx,
		`SELECT guild_id, idx, name, rights FROM guild_ranks ORDER BY guild_id, idx`)
	if err != nil {
		return nil, nil, nil, nil, nil, nil, err
	}
	defer rankRows.Close()

	var ranks []GuildRankRow
	for rankRows.Next() {
		var rk GuildRankRow
		if err := rankRows.Scan(&rk.GuildID, &rk.Index, &rk.Name, &rk.Rights); err != nil {
			return nil, nil, nil, nil, nil, nil, err
		}
		ranks = append(ranks, rk)
	}
	if err := rankRows.Err(); err != nil {
		return nil, nil, nil, nil, nil, nil, err
	}

	appRows, err := r.db.Pool.Query(ctx,
		`SELECT id, guild_id, char_id, created_at FROM guild_applications ORDER BY id`)
	if err != nil {
		return nil, nil, nil, nil, nil, nil, err
	}
	defer appRows.Close()

	var apps []GuildApplicationRow
	for appRows.Next() {
		var a GuildApplicationRow
		if err := appRows.Scan(&a.ID, &a.GuildID, &a.CharID, &a.CreatedAt); err != nil {
			return nil, nil, nil, nil, nil, nil, err
		}
		apps = append(apps, a)
	}
	if err := appRows.Err(); err != nil {
		return nil, nil, nil, nil, nil, nil, err
	}

	buffRows, err := r.db.Pool.Query(ctx,
		`SELECT guild_id, buff_id, level FROM guild_buffs ORDER BY guild_id, buff_id`)
	if err != nil {
		return nil, nil, nil, nil, nil, nil, err
	}
	defer buffRows.Close()

	var buffs []GuildBuffRow
	for buffRows.Next() {
		var b GuildBuffRow
		if err := buffRows.Scan(&b.GuildID, &b.BuffID, &b.Level); err != nil {
			return nil, nil, nil, nil, nil, nil, err
		}
		buffs = append(buffs, b)
	}
	if err := buffRows.Err(); err != nil {
		return nil, nil, nil, nil, nil, nil, err
	}

	serviceRows, err := r.db.Pool.Query(ctx,
		`SELECT guild_id, service_id, level FROM guild_services ORDER BY guild_id, service_id`)
	if err != nil {
		return nil, nil, nil, nil, nil, nil, err
	}
	defer serviceRows.Close()

	var services []GuildServiceRow
	for serviceRows.Next() {
		var s GuildServiceRow
		if err := serviceRows.Scan(&s.GuildID, &s.ServiceID, &s.Level); err != nil {
			return nil, nil, nil, nil, nil, nil, err
		}
		services = append(services, s)
	}
	if err := serviceRows.Err(); err != nil {
		return nil, nil, nil, nil, nil, nil, err
	}

	return guilds, members, ranks, apps, buffs, services, nil
}

// MaxApplicationID returns the highest persisted application id, used to
// seed the in-memory counter at boot.
func (r *GuildRepo) MaxApplicationID(ctx context.Context) (int64, error) {
	var max int64
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(id), 0) FROM guild_applications`).Scan(&max)
	return max, err
}

// NameExists checks the persisted name index (covers guilds whose leaders
// are offline on other game instances).
func (r *GuildRepo) NameExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM guilds WHERE LOWER(name) = LOWER($1))`, name).Scan(&exists)
	return exists, err
}

// Create inserts the guild, its default rank table, the founder's member
// row, the founder's character guild reference and wallet in a single
// transaction. Returns the new guild id.
func (r *GuildRepo) Create(ctx context.Context, g GuildRow, founderMember GuildMemberRow, ranks []GuildRankRow, founderMeso int64) (int64, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var guildID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO guilds (name, leader_char_id, leader_account_id, leader_name, created_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		g.Name, g.LeaderCharID, g.LeaderAccountID, g.LeaderName, g.CreatedAt,
	).Scan(&guildID)
	if err != nil {
		return 0, err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO guild_members (guild_id, char_id, char_name, rank, joined_at)
		 VALUES ($1, $2, $3, 0, $4)`,
		guildID, founderMember.CharID, founderMember.CharName, founderMember.JoinedAt)
	if err != nil {
		return 0, err
	}

	for _, rk := range ranks {
		_, err = tx.Exec(ctx,
			`INSERT INTO guild_ranks (guild_id, idx, name, rights) VALUES ($1, $2, $3, $4)`,
			guildID, rk.Index, rk.Name, rk.Rights)
		if err != nil {
			return 0, err
		}
	}

	_, err = tx.Exec(ctx,
		`UPDATE characters SET guild_id = $1, guild_name = $2, meso = $3 WHERE id = $4`,
		guildID, g.Name, founderMeso, founderMember.CharID)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return guildID, nil
}

// Delete removes a guild and clears every member's character reference in
// a single transaction. Member/rank/application rows cascade.
func (r *GuildRepo) Delete(ctx context.Context, guildID int64) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`UPDATE characters SET guild_id = 0, guild_name = ''
		 WHERE id IN (SELECT char_id FROM guild_members WHERE guild_id = $1)`, guildID)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `DELETE FROM guilds WHERE id = $1`, guildID)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// AddMember inserts a member row and updates the character's guild
// reference in a single transaction.
func (r *GuildRepo) AddMember(ctx context.Context, guildID int64, guildName string, m GuildMemberRow) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO guild_members (guild_id, char_id, char_name, rank, joined_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		guildID, m.CharID, m.CharName, m.Rank, m.JoinedAt)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		`UPDATE characters SET guild_id = $1, guild_name = $2 WHERE id = $3`,
		guildID, guildName, m.CharID)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// RemoveMember deletes a member row and clears the character's guild
// reference in a single transaction.
func (r *GuildRepo) RemoveMember(ctx context.Context, guildID, charID int64) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`DELETE FROM guild_members WHERE guild_id = $1 AND char_id = $2`, guildID, charID)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		`UPDATE characters SET guild_id = 0, guild_name = '' WHERE id = $1`, charID)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// UpdateLeader persists a leadership transfer: guild leader fields plus
// both members' rank rows.
func (r *GuildRepo) UpdateLeader(ctx context.Context, guildID, oldLeaderCharID, newLeaderCharID, newLeaderAccountID int64, newLeaderName string) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`UPDATE guilds SET leader_char_id = $1, leader_account_id = $2, leader_name = $3
		 WHERE id = $4`,
		newLeaderCharID, newLeaderAccountID, newLeaderName, guildID)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		`UPDATE guild_members SET rank = 0 WHERE guild_id = $1 AND char_id = $2`,
		guildID, newLeaderCharID)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		`UPDATE guild_members SET rank = 1 WHERE guild_id = $1 AND char_id = $2`,
		guildID, oldLeaderCharID)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// UpdateMemberRank updates a member's rank index.
func (r *GuildRepo) UpdateMemberRank(ctx context.Context, guildID, charID int64, rank int16) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE guild_members SET rank = $1 WHERE guild_id = $2 AND char_id = $3`,
		rank, guildID, charID)
	return err
}

// UpdateMemberMotto updates a member's motto line.
func (r *GuildRepo) UpdateMemberMotto(ctx context.Context, guildID, charID int64, motto string) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE guild_members SET motto = $1 WHERE guild_id = $2 AND char_id = $3`,
		motto, guildID, charID)
	return err
}

// UpdateMemberActivity persists contribution, daily donation counter and
// attendance after a check-in or donation.
func (r *GuildRepo) UpdateMemberActivity(ctx context.Context, guildID, charID int64, contribution int32, dailyDonationCount int16, attendanceAt int64) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE guild_members
		 SET contribution = $1, daily_donation_count = $2, attendance_at = $3
		 WHERE guild_id = $4 AND char_id = $5`,
		contribution, dailyDonationCount, attendanceAt, guildID, charID)
	return err
}

// UpdateProgress persists exp and funds together (they change together in
// check-in, donation and every spending operation).
func (r *GuildRepo) UpdateProgress(ctx context.Context, guildID, exp, funds int64) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE guilds SET exp = $1, funds = $2 WHERE id = $3`, exp, funds, guildID)
	return err
}

// UpdateNotice persists the guild notice.
func (r *GuildRepo) UpdateNotice(ctx context.Context, guildID int64, notice string) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE guilds SET notice = $1 WHERE id = $2`, notice, guildID)
	return err
}

// UpdateSearchable persists the guild-list visibility toggle.
func (r *GuildRepo) UpdateSearchable(ctx context.Context, guildID int64, searchable bool) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE guilds SET searchable = $1 WHERE id = $2`, searchable, guildID)
	return err
}

// UpdateHouse persists the house rank and theme.
func (r *GuildRepo) UpdateHouse(ctx context.Context, guildID int64, houseRank, houseTheme int32) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE guilds SET house_rank = $1, house_theme = $2 WHERE id = $3`,
		houseRank, houseTheme, guildID)
	return err
}

// UpdateRankDef persists one edited rank slot.
func (r *GuildRepo) UpdateRankDef(ctx context.Context, guildID int64, idx int16, name string, rights int32) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO guild_ranks (guild_id, idx, name, rights) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (guild_id, idx) DO UPDATE SET name = EXCLUDED.name, rights = EXCLUDED.rights`,
		guildID, idx, name, rights)
	return err
}

// InsertApplication persists a pending application.
func (r *GuildRepo) InsertApplication(ctx context.Context, a GuildApplicationRow) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO guild_applications (id, guild_id, char_id, created_at)
		 VALUES ($1, $2, $3, $4)`,
		a.ID, a.GuildID, a.CharID, a.CreatedAt)
	return err
}

// DeleteApplication removes a pending application.
func (r *GuildRepo) DeleteApplication(ctx context.Context, appID int64) error {
	_, err := r.db.Pool.Exec(ctx,
		`DELETE FROM guild_applications WHERE id = $1`, appID)
	return err
}

// UpsertBuff persists a buff level.
func (r *GuildRepo) UpsertBuff(ctx context.Context, guildID int64, buffID, level int32) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO guild_buffs (guild_id, buff_id, level) VALUES ($1, $2, $3)
		 ON CONFLICT (guild_id, buff_id) DO UPDATE SET level = EXCLUDED.level`,
		guildID, buffID, level)
	return err
}

// UpsertService persists a service level.
func (r *GuildRepo) UpsertService(ctx context.Context, guildID int64, serviceID, level int32) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO guild_services (guild_id, service_id, level) VALUES ($1, $2, $3)
		 ON CONFLICT (guild_id, service_id) DO UPDATE SET level = EXCLUDED.level`,
		guildID, serviceID, level)
	return err
}
