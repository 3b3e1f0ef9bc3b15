package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/chanstore/internal/domain/model"
)

// UploadCompleter фиксирует завершение загрузки файла:
// запись chunk'ов и установка признака available — одной транзакцией.
// Частичная фиксация невозможна: либо файл становится доступным
// со всеми chunk'ами, либо запись остаётся нетронутой.
type UploadCompleter struct {
	runner *TxRunner
}

// NewUploadCompleter создаёт completer поверх TxRunner.
func NewUploadCompleter(runner *TxRunner) *UploadCompleter {
	return &UploadCompleter{runner: runner}
}

// Complete записывает chunk'и файла и помечает его доступным.
func (c *UploadCompleter) Complete(ctx context.Context, fileID string, chunks []model.ChunkRecord) error {
	return c.runner.RunInTx(ctx, func(tx pgx.Tx) error {
		repo := NewFileRepository(tx)
		if err := repo.AddChunks(ctx, fileID, chunks); err != nil {
			return err
		}
		return repo.SetAvailable(ctx, fileID)
	})
}
