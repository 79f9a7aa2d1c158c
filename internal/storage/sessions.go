package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"GameBenchDesktop/internal/stats"
)

// SessionRecord 持久化后的会话汇总，带历史记录主键和入库时间
type SessionRecord struct {
	ID        int64            `json:"id"`
	CreatedAt time.Time        `json:"created_at"`
	Session   stats.FpsSession `json:"session"`
}

// SessionStore 会话历史存储（SQLite）。
// 桌面端本地保存每次监测的汇总结果，供历史页查看。
type SessionStore struct {
	db *sql.DB
}

// Open 打开（必要时创建）会话历史数据库
func Open(dbPath string) (*SessionStore, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_synchronous=NORMAL", dbPath)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("数据库无响应: %w", err)
	}

	// 桌面端单写入者，限制连接数避免 SQLITE_BUSY
	db.SetMaxOpenConns(1)

	store := &SessionStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SessionStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS fps_sessions (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		process_name  TEXT NOT NULL,
		avg_fps       REAL NOT NULL,
		fps_1_low     REAL NOT NULL,
		fps_01_low    REAL NOT NULL,
		max_fps       REAL NOT NULL,
		min_fps       REAL NOT NULL,
		total_frames  INTEGER NOT NULL,
		duration_secs REAL NOT NULL,
		created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_fps_sessions_created_at
		ON fps_sessions(created_at DESC);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("初始化会话表失败: %w", err)
	}
	return nil
}

// Save 保存一次会话汇总，返回历史记录 ID
func (s *SessionStore) Save(ctx context.Context, session *stats.FpsSession) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO fps_sessions
			(process_name, avg_fps, fps_1_low, fps_01_low, max_fps, min_fps, total_frames, duration_secs)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ProcessName, session.AvgFps, session.Fps1Low, session.Fps01Low,
		session.MaxFps, session.MinFps, session.TotalFrames, session.DurationSecs,
	)
	if err != nil {
		return 0, fmt.Errorf("保存会话失败: %w", err)
	}
	return res.LastInsertId()
}

// List 按时间倒序返回最近 limit 条会话记录
func (s *SessionStore) List(ctx context.Context, limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, process_name, avg_fps, fps_1_low, fps_01_low,
		       max_fps, min_fps, total_frames, duration_secs, created_at
		FROM fps_sessions
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("查询会话历史失败: %w", err)
	}
	defer rows.Close()

	var records []SessionRecord
	for rows.Next() {
		var r SessionRecord
		if err := rows.Scan(
			&r.ID, &r.Session.ProcessName, &r.Session.AvgFps,
			&r.Session.Fps1Low, &r.Session.Fps01Low,
			&r.Session.MaxFps, &r.Session.MinFps,
			&r.Session.TotalFrames, &r.Session.DurationSecs, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("读取会话记录失败: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Get 按 ID 查询单条会话记录
func (s *SessionStore) Get(ctx context.Context, id int64) (*SessionRecord, error) {
	var r SessionRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT id, process_name, avg_fps, fps_1_low, fps_01_low,
		       max_fps, min_fps, total_frames, duration_secs, created_at
		FROM fps_sessions WHERE id = ?`, id,
	).Scan(
		&r.ID, &r.Session.ProcessName, &r.Session.AvgFps,
		&r.Session.Fps1Low, &r.Session.Fps01Low,
		&r.Session.MaxFps, &r.Session.MinFps,
		&r.Session.TotalFrames, &r.Session.DurationSecs, &r.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询会话记录失败: %w", err)
	}
	return &r, nil
}

// Clear 清空会话历史
func (s *SessionStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM fps_sessions`)
	if err != nil {
		return fmt.Errorf("清空会话历史失败: %w", err)
	}
	return nil
}

// Close 关闭数据库
func (s *SessionStore) Close() error {
	return s.db.Close()
}
