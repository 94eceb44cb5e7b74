package mysql

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/go-sql-driver/mysql"
)

// ErrUnsupportedDriver 表示配置了未知的归档驱动。
var ErrUnsupportedDriver = fmt.Errorf("不支持的归档驱动")

// TranscriptRecord 表示会话记录的一条落库结构。
type TranscriptRecord struct {
	SessionID string `json:"session_id"`
	Seq       int    `json:"seq"`
	Role      string `json:"role"`
	Text      string `json:"text"`
	CreatedAt int64  `json:"created_at"`
}

// TranscriptRepository 抽象会话记录的归档接口。归档是诊断用途的只写路径，
// 会话过程中的状态始终以内存中的 transcript 为准。
type TranscriptRepository interface {
	Save(ctx context.Context, record TranscriptRecord) error
	ListSession(ctx context.Context, sessionID string, limit int) ([]TranscriptRecord, error)
}

// MemoryTranscriptRepository 使用本地 JSON 行文件模拟 MySQL 的效果，
// 方便在没有数据库的环境下保留诊断记录。
type MemoryTranscriptRepository struct {
	mu       sync.RWMutex
	dataFile string
	records  []TranscriptRecord
}

// memoryRetention 限制内存中保留的记录条数，文件本身只追加。
const memoryRetention = 2048

// NewMemoryTranscriptRepository 创建一个文件归档仓库。
func NewMemoryTranscriptRepository(dataDir string) (*MemoryTranscriptRepository, error) {
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}
	path := filepath.Join(dataDir, "transcripts.log")
	repo := &MemoryTranscriptRepository{dataFile: path}
	if err := repo.loadFromDisk(); err != nil {
		return nil, err
	}
	return repo, nil
}

// Save 以追加写的方式记录一条会话记录。
func (m *MemoryTranscriptRepository) Save(_ context.Context, record TranscriptRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	file, err := os.OpenFile(m.dataFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("打开归档文件失败: %w", err)
	}
	defer file.Close()

	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("序列化会话记录失败: %w", err)
	}
	if _, err := file.Write(append(encoded, '\n')); err != nil {
		return fmt.Errorf("写入归档文件失败: %w", err)
	}

	m.records = append(m.records, record)
	if len(m.records) > memoryRetention {
		m.records = m.records[len(m.records)-memoryRetention:]
	}
	return nil
}

// ListSession 返回指定会话的记录，按写入顺序排列。
func (m *MemoryTranscriptRepository) ListSession(_ context.Context, sessionID string, limit int) ([]TranscriptRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []TranscriptRecord
	for _, record := range m.records {
		if record.SessionID == sessionID {
			results = append(results, record)
		}
	}
	if limit > 0 && len(results) > limit {
		results = results[len(results)-limit:]
	}
	return results, nil
}

func (m *MemoryTranscriptRepository) loadFromDisk() error {
	file, err := os.OpenFile(m.dataFile, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("读取归档文件失败: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var restored []TranscriptRecord
	for scanner.Scan() {
		var record TranscriptRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			continue
		}
		restored = append(restored, record)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("解析归档文件失败: %w", err)
	}

	if len(restored) > memoryRetention {
		restored = restored[len(restored)-memoryRetention:]
	}
	m.records = restored
	return nil
}

// SQLTranscriptRepository 使用真实的 MySQL 数据库归档会话记录。
type SQLTranscriptRepository struct {
	db *sql.DB
}

// NewSQLTranscriptRepository 创建连接池并应用迁移。
func NewSQLTranscriptRepository(ctx context.Context, cfg Config) (*SQLTranscriptRepository, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	repo := &SQLTranscriptRepository{db: db}
	if err := repo.runMigrations(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

// Save 将一条会话记录写入 MySQL。
func (s *SQLTranscriptRepository) Save(ctx context.Context, record TranscriptRecord) error {
	const stmt = `INSERT INTO transcripts (session_id, seq, role, text, created_at)
        VALUES (?, ?, ?, ?, ?)`

	if _, err := s.db.ExecContext(ctx, stmt,
		record.SessionID,
		record.Seq,
		record.Role,
		record.Text,
		record.CreatedAt,
	); err != nil {
		return fmt.Errorf("写入 MySQL 失败: %w", err)
	}
	return nil
}

// ListSession 查询指定会话的记录，按序号升序排列。
func (s *SQLTranscriptRepository) ListSession(ctx context.Context, sessionID string, limit int) ([]TranscriptRecord, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("会话 ID 不能为空")
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `SELECT session_id, seq, role, text, created_at
        FROM transcripts WHERE session_id = ? ORDER BY seq ASC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("查询会话记录失败: %w", err)
	}
	defer rows.Close()

	var records []TranscriptRecord
	for rows.Next() {
		var record TranscriptRecord
		if err := rows.Scan(&record.SessionID, &record.Seq, &record.Role, &record.Text, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("解析会话记录失败: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历会话记录失败: %w", err)
	}
	return records, nil
}

// Close 关闭底层数据库连接。
func (s *SQLTranscriptRepository) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
