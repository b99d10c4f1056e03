package store

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"booq/types"
)

// PostgresStore keeps the file registry and question snapshots in Postgres.
// Retrieval indexes stay on disk.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{
		pool: pool,
	}, nil
}

func PostgresDSN(host string, port int, user, pass, dbName string) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable", host, port, user, pass, dbName)
}

func (p *PostgresStore) GetFile(ctx context.Context, fileID string) (*types.FileInfo, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, name, display_name, file_type, path, size, created_at, total_pages
		FROM files WHERE id = $1`, fileID)

	info := &types.FileInfo{}
	if err := row.Scan(
		&info.ID,
		&info.Name,
		&info.DisplayName,
		&info.FileType,
		&info.Path,
		&info.Size,
		&info.CreatedAt,
		&info.TotalPages); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("file %q: %w", fileID, types.ErrNotFound)
		}
		return nil, err
	}
	return info, nil
}

func (p *PostgresStore) ListFiles(ctx context.Context) ([]types.FileInfo, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, name, display_name, file_type, path, size, created_at, total_pages
		FROM files ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []types.FileInfo
	for rows.Next() {
		var info types.FileInfo
		if err := rows.Scan(
			&info.ID,
			&info.Name,
			&info.DisplayName,
			&info.FileType,
			&info.Path,
			&info.Size,
			&info.CreatedAt,
			&info.TotalPages); err != nil {
			return nil, err
		}
		files = append(files, info)
	}
	return files, rows.Err()
}

func (p *PostgresStore) SaveFile(ctx context.Context, info types.FileInfo) error {
	query := `INSERT INTO files (id, name, display_name, file_type, path, size, created_at, total_pages)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			display_name = EXCLUDED.display_name,
			file_type = EXCLUDED.file_type,
			path = EXCLUDED.path,
			size = EXCLUDED.size,
			total_pages = EXCLUDED.total_pages
			`
	_, err := p.pool.Exec(
		ctx,
		query,
		info.ID,
		info.Name,
		info.DisplayName,
		string(info.FileType),
		info.Path,
		info.Size,
		info.CreatedAt,
		info.TotalPages,
	)
	if err != nil {
		return fmt.Errorf("save file %s: %v: %w", info.ID, err, types.ErrPersistence)
	}
	return nil
}

// SaveQuestions swaps the whole snapshot of fileID inside one transaction.
func (p *PostgresStore) SaveQuestions(ctx context.Context, fileID string, questions []types.Question) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin snapshot of %s: %v: %w", fileID, err, types.ErrPersistence)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM questions WHERE file_id = $1", fileID); err != nil {
		return fmt.Errorf("clear snapshot of %s: %v: %w", fileID, err, types.ErrPersistence)
	}

	rows := make([][]any, len(questions))
	for i, q := range questions {
		rows[i] = []any{
			q.ID, fileID, i, string(q.QuestionType), q.Chapter, q.Section,
			q.KnowledgePoints, q.QuestionText, q.Answer, q.Analysis,
			q.PageNumber, q.HasOriginalAnswer,
		}
	}
	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"questions"},
		[]string{"id", "file_id", "position", "question_type", "chapter", "section",
			"knowledge_points", "question_text", "answer", "analysis",
			"page_number", "has_original_answer"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("write snapshot of %s: %v: %w", fileID, err, types.ErrPersistence)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit snapshot of %s: %v: %w", fileID, err, types.ErrPersistence)
	}
	return nil
}

func (p *PostgresStore) GetQuestions(ctx context.Context, fileID string) ([]types.Question, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, file_id, question_type, chapter, section, knowledge_points,
		       question_text, answer, analysis, page_number, has_original_answer
		FROM questions WHERE file_id = $1 ORDER BY position`, fileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	questions := []types.Question{}
	for rows.Next() {
		var q types.Question
		if err := rows.Scan(
			&q.ID,
			&q.FileID,
			&q.QuestionType,
			&q.Chapter,
			&q.Section,
			&q.KnowledgePoints,
			&q.QuestionText,
			&q.Answer,
			&q.Analysis,
			&q.PageNumber,
			&q.HasOriginalAnswer); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

func (p *PostgresStore) createTables(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS files (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		display_name TEXT,
		file_type TEXT,
		path TEXT NOT NULL,
		size BIGINT,
		created_at TIMESTAMP WITH TIME ZONE,
		total_pages INTEGER DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS questions (
		id TEXT NOT NULL,
		file_id TEXT NOT NULL REFERENCES files(id) ON DELETE CASCADE,
		position INT NOT NULL,
		question_type TEXT CHECK (question_type IN ('example','exercise')),
		chapter TEXT,
		section TEXT,
		knowledge_points TEXT[],
		question_text TEXT NOT NULL,
		answer TEXT,
		analysis TEXT,
		page_number INT NOT NULL,
		has_original_answer BOOLEAN NOT NULL,
		PRIMARY KEY (file_id, id)
	);

	CREATE INDEX IF NOT EXISTS idx_questions_type ON questions(file_id, question_type);
	CREATE INDEX IF NOT EXISTS idx_questions_chapter ON questions(file_id, chapter);
	`
	_, err := p.pool.Exec(ctx, query)
	return err
}

func (p *PostgresStore) Init(ctx context.Context) error {
	return p.createTables(ctx)
}

func (p *PostgresStore) Close() error {
	if p.pool != nil {
		p.pool.Close()
		log.Println("Postgres connection pool is closed")
	}
	return nil
}
