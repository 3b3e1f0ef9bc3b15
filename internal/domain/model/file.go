// Пакет model — доменные модели Channel Store.
// FileRecord — единая структура метаданных файла, используется
// как in-memory представление и как формат API-ответа.
package model

import (
	"time"
)

// ChunkSize — максимальный размер одного chunk в байтах (8 MiB).
// Определяется лимитом вложения одного сообщения канала.
const ChunkSize = 8 << 20

// FileRecord — метаданные одного логического файла в хранилище.
// Байты файла лежат в сообщениях канала, по одному chunk на сообщение.
type FileRecord struct {
	// ID — уникальный идентификатор файла (UUID v4), неизменяемый
	ID string `json:"file_id"`

	// FileName — отображаемое имя файла (расширение отрезается при загрузке)
	FileName string `json:"file_name,omitempty"`

	// ContentType — MIME-тип файла
	ContentType string `json:"content_type"`

	// TotalChunks — количество chunk'ов, фиксируется при создании:
	// ceil(размер / ChunkSize)
	TotalChunks int `json:"total_chunks"`

	// Available — false пока chunk'и отправляются в канал.
	// true только после того, как каждый chunk получил message_id
	// и запись обновлена в хранилище метаданных.
	Available bool `json:"available"`

	// CreatedAt — дата и время создания записи (UTC)
	CreatedAt time.Time `json:"created_at"`

	// Chunks — упорядоченный список chunk'ов (по CurrentChunk по возрастанию).
	// Инвариант: len(Chunks) <= TotalChunks; Available == true влечёт
	// len(Chunks) == TotalChunks и непустой MessageID у каждого chunk'а.
	Chunks []ChunkRecord `json:"chunks"`
}

// ChunkRecord — один фрагмент байтов файла, хранящийся
// как вложение одного сообщения канала.
type ChunkRecord struct {
	// CurrentChunk — позиция chunk'а, начиная с 1
	CurrentChunk int `json:"current_chunk"`

	// MessageID — идентификатор сообщения канала с байтами этого chunk'а.
	// Пустой до успешной отправки в канал.
	MessageID string `json:"message_id"`
}

// Setting — пара ключ/значение конфигурации сервиса.
// Записи принадлежат внешнему хранилищу метаданных, сервис их только читает.
type Setting struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Ключи настроек, читаемые сервисом из хранилища метаданных.
const (
	// SettingToken — общий секрет в преобразованном (HMAC) виде
	SettingToken = "token"
	// SettingTokenKey — ключ для HMAC-преобразования и шифрования cookie
	SettingTokenKey = "token_key"
	// SettingChannelID — идентификатор целевого канала
	SettingChannelID = "channel_id"
)

// TotalChunksFor возвращает количество chunk'ов для файла размером size байт.
func TotalChunksFor(size int64) int {
	if size <= 0 {
		return 0
	}
	return int((size + ChunkSize - 1) / ChunkSize)
}

// IsComplete проверяет, что у записи есть message_id для каждого chunk'а.
func (f *FileRecord) IsComplete() bool {
	if len(f.Chunks) != f.TotalChunks {
		return false
	}
	for _, c := range f.Chunks {
		if c.MessageID == "" {
			return false
		}
	}
	return true
}

// MessageIDs возвращает идентификаторы сообщений всех chunk'ов в порядке следования.
func (f *FileRecord) MessageIDs() []string {
	ids := make([]string, 0, len(f.Chunks))
	for _, c := range f.Chunks {
		if c.MessageID != "" {
			ids = append(ids, c.MessageID)
		}
	}
	return ids
}
