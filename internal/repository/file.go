package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/chanstore/internal/domain/model"
)

// fileColumns — список столбцов таблицы files для SELECT-запросов.
// DRY: одно место для всех SELECT'ов.
const fileColumns = `file_id, file_name, content_type, total_chunks, available, created_at`

// FileRepository — типизированный CRUD для файловых записей.
// Chunk'и хранятся отдельной таблицей file_chunks и загружаются
// всегда в порядке chunk_no по возрастанию.
type FileRepository interface {
	// Insert создаёт новую запись файла (available=false, без chunk'ов).
	Insert(ctx context.Context, f *model.FileRecord) error
	// GetByID возвращает файл по UUID вместе с chunk'ами.
	GetByID(ctx context.Context, fileID string) (*model.FileRecord, error)
	// List возвращает все файлы с chunk'ами, новые первыми.
	List(ctx context.Context) ([]*model.FileRecord, error)
	// AddChunks вставляет chunk-записи файла.
	AddChunks(ctx context.Context, fileID string, chunks []model.ChunkRecord) error
	// SetAvailable помечает файл доступным для скачивания.
	SetAvailable(ctx context.Context, fileID string) error
	// Delete удаляет запись файла (chunk'и каскадом).
	Delete(ctx context.Context, fileID string) error
}

// fileRepo — реализация FileRepository через pgx.
type fileRepo struct {
	db DBTX
}

// NewFileRepository создаёт репозиторий файлов.
func NewFileRepository(db DBTX) FileRepository {
	return &fileRepo{db: db}
}

func (r *fileRepo) Insert(ctx context.Context, f *model.FileRecord) error {
	query := `
		INSERT INTO files (file_id, file_name, content_type, total_chunks, available, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.Exec(ctx, query,
		f.ID, f.FileName, f.ContentType, f.TotalChunks, f.Available, f.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: файл с таким ID уже существует", ErrConflict)
		}
		return fmt.Errorf("ошибка создания записи файла: %w", err)
	}
	return nil
}

func (r *fileRepo) GetByID(ctx context.Context, fileID string) (*model.FileRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM files WHERE file_id = $1`, fileColumns)

	f := &model.FileRecord{}
	err := r.db.QueryRow(ctx, query, fileID).Scan(
		&f.ID, &f.FileName, &f.ContentType, &f.TotalChunks, &f.Available, &f.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения файла: %w", err)
	}

	chunks, err := r.loadChunks(ctx, fileID)
	if err != nil {
		return nil, err
	}
	f.Chunks = chunks
	return f, nil
}

func (r *fileRepo) List(ctx context.Context) ([]*model.FileRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM files ORDER BY created_at DESC`, fileColumns)

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка файлов: %w", err)
	}
	defer rows.Close()

	var result []*model.FileRecord
	byID := make(map[string]*model.FileRecord)
	for rows.Next() {
		f := &model.FileRecord{}
		if err := rows.Scan(
			&f.ID, &f.FileName, &f.ContentType, &f.TotalChunks, &f.Available, &f.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования файла: %w", err)
		}
		result = append(result, f)
		byID[f.ID] = f
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации результатов: %w", err)
	}
	if len(result) == 0 {
		return result, nil
	}

	// Chunk'и всех файлов одним запросом, порядок внутри файла — chunk_no.
	chunkRows, err := r.db.Query(ctx,
		`SELECT file_id, chunk_no, message_id FROM file_chunks ORDER BY file_id, chunk_no`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения chunk'ов: %w", err)
	}
	defer chunkRows.Close()

	for chunkRows.Next() {
		var fileID string
		var c model.ChunkRecord
		if err := chunkRows.Scan(&fileID, &c.CurrentChunk, &c.MessageID); err != nil {
			return nil, fmt.Errorf("ошибка сканирования chunk'а: %w", err)
		}
		if f, ok := byID[fileID]; ok {
			f.Chunks = append(f.Chunks, c)
		}
	}
	if err := chunkRows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации chunk'ов: %w", err)
	}

	return result, nil
}

func (r *fileRepo) AddChunks(ctx context.Context, fileID string, chunks []model.ChunkRecord) error {
	for _, c := range chunks {
		_, err := r.db.Exec(ctx,
			`INSERT INTO file_chunks (file_id, chunk_no, message_id) VALUES ($1, $2, $3)`,
			fileID, c.CurrentChunk, c.MessageID,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: chunk %d файла %s уже записан", ErrConflict, c.CurrentChunk, fileID)
			}
			return fmt.Errorf("ошибка записи chunk'а %d: %w", c.CurrentChunk, err)
		}
	}
	return nil
}

func (r *fileRepo) SetAvailable(ctx context.Context, fileID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE files SET available = TRUE WHERE file_id = $1`, fileID)
	if err != nil {
		return fmt.Errorf("ошибка обновления статуса файла: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *fileRepo) Delete(ctx context.Context, fileID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM files WHERE file_id = $1`, fileID)
	if err != nil {
		return fmt.Errorf("ошибка удаления файла: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// loadChunks возвращает chunk'и файла строго в порядке chunk_no по возрастанию.
func (r *fileRepo) loadChunks(ctx context.Context, fileID string) ([]model.ChunkRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT chunk_no, message_id FROM file_chunks WHERE file_id = $1 ORDER BY chunk_no`,
		fileID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения chunk'ов: %w", err)
	}
	defer rows.Close()

	var chunks []model.ChunkRecord
	for rows.Next() {
		var c model.ChunkRecord
		if err := rows.Scan(&c.CurrentChunk, &c.MessageID); err != nil {
			return nil, fmt.Errorf("ошибка сканирования chunk'а: %w", err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации chunk'ов: %w", err)
	}
	return chunks, nil
}
