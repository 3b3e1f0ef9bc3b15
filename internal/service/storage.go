// storage.go — сервис хранения файлов: chunked upload в канал
// платформы сообщений, сборка файла при download, удаление с
// зачисткой сообщений.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	apierrors "github.com/bigkaa/chanstore/internal/api/errors"
	"github.com/bigkaa/chanstore/internal/chanclient"
	"github.com/bigkaa/chanstore/internal/domain/model"
	"github.com/bigkaa/chanstore/internal/repository"
)

// Метрики файловых операций
var (
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cs_operations_total",
			Help: "Общее количество файловых операций",
		},
		[]string{"operation", "result"},
	)

	chunksSentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cs_chunks_sent_total",
			Help: "Количество chunk'ов, отправленных в канал",
		},
	)

	cleanupRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cs_cleanup_runs_total",
			Help: "Количество запусков зачистки невосстановимых файлов",
		},
	)
)

// StorageError — ошибка операции хранилища с HTTP-кодом.
type StorageError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// internalError — типовая 500-ошибка без деталей для клиента.
func internalError(message string) *StorageError {
	return &StorageError{
		StatusCode: 500,
		Code:       apierrors.CodeInternalError,
		Message:    message,
	}
}

// ChannelTransport — операции канала платформы сообщений,
// используемые сервисом. Реализуется chanclient.Client.
type ChannelTransport interface {
	SendAttachment(ctx context.Context, channelID, filename, caption string, data []byte) (string, error)
	GetMessage(ctx context.Context, channelID, messageID string) (*chanclient.Message, error)
	DownloadAttachment(ctx context.Context, url string) ([]byte, error)
	DeleteMessages(ctx context.Context, channelID string, messageIDs []string) error
}

// FileStore — операции с метаданными файлов, используемые сервисом.
// Реализуется repository.FileRepository.
type FileStore interface {
	Insert(ctx context.Context, f *model.FileRecord) error
	GetByID(ctx context.Context, fileID string) (*model.FileRecord, error)
	List(ctx context.Context) ([]*model.FileRecord, error)
	Delete(ctx context.Context, fileID string) error
}

// UploadCompleter — транзакционная фиксация завершения загрузки.
// Реализуется repository.UploadCompleter.
type UploadCompleter interface {
	Complete(ctx context.Context, fileID string, chunks []model.ChunkRecord) error
}

// chunkEnvelope — JSON-конверт в тексте сообщения канала.
// По нему файл собирается обратно при download.
type chunkEnvelope struct {
	FileID       string `json:"file_id"`
	TotalChunks  int    `json:"total_chunks"`
	CurrentChunk int    `json:"current_chunk"`
}

// UploadParams — параметры загрузки файла.
type UploadParams struct {
	// Data — содержимое файла.
	Data []byte
	// FileName — имя файла из query-параметра (опционально).
	FileName string
	// ContentType — MIME-тип из заголовка запроса.
	ContentType string
}

// DownloadResult — собранный файл.
type DownloadResult struct {
	Data        []byte
	FileName    string
	ContentType string
}

// StorageService — сервис хранения файлов поверх канала платформы
// сообщений. Файлы нарезаются на chunk'и по model.ChunkSize байт;
// каждый chunk — отдельное сообщение с вложением.
type StorageService struct {
	files     FileStore
	completer UploadCompleter
	channel   ChannelTransport
	settings  *SettingsService
	logger    *slog.Logger
	// uploads отслеживает фоновые горутины отправки chunk'ов
	// для корректного завершения при shutdown.
	uploads sync.WaitGroup
}

// NewStorageService создаёт сервис хранения файлов.
func NewStorageService(
	files FileStore,
	completer UploadCompleter,
	channel ChannelTransport,
	settings *SettingsService,
	logger *slog.Logger,
) *StorageService {
	return &StorageService{
		files:     files,
		completer: completer,
		channel:   channel,
		settings:  settings,
		logger:    logger.With(slog.String("component", "storage_service")),
	}
}

// Wait блокируется до завершения всех фоновых загрузок.
// Вызывается при graceful shutdown.
func (s *StorageService) Wait() {
	s.uploads.Wait()
}

// List возвращает все записи файлов, новые первыми.
// Пустое хранилище — 404.
func (s *StorageService) List(ctx context.Context) ([]*model.FileRecord, *StorageError) {
	files, err := s.files.List(ctx)
	if err != nil {
		s.logger.Error("Ошибка чтения списка файлов", slog.String("error", err.Error()))
		operationsTotal.WithLabelValues("list", "error").Inc()
		return nil, internalError("Ошибка чтения списка файлов")
	}

	if len(files) == 0 {
		operationsTotal.WithLabelValues("list", "not_found").Inc()
		return nil, &StorageError{
			StatusCode: 404,
			Code:       apierrors.CodeNotFound,
			Message:    "Файлы не найдены",
		}
	}

	operationsTotal.WithLabelValues("list", "success").Inc()
	return files, nil
}

// Upload начинает загрузку файла.
//
// Запись метаданных создаётся сразу (available=false) и возвращается
// вызывающему до отправки байтов в канал: клиент получает 201 с
// file_id, а отправка chunk'ов идёт в фоновой горутине. До завершения
// фоновой части файл виден в списке, но недоступен для скачивания.
//
// При любой ошибке фоновой части файл зачищается целиком:
// удаляется запись метаданных и уже отправленные сообщения.
func (s *StorageService) Upload(ctx context.Context, params UploadParams) (*model.FileRecord, *StorageError) {
	if len(params.Data) == 0 {
		operationsTotal.WithLabelValues("upload", "error").Inc()
		return nil, &StorageError{
			StatusCode: 400,
			Code:       apierrors.CodeMissingBody,
			Message:    "Тело запроса отсутствует",
		}
	}

	channelID, err := s.settings.Get(ctx, model.SettingChannelID)
	if err != nil {
		s.logger.Error("Настройка channel_id недоступна", slog.String("error", err.Error()))
		operationsTotal.WithLabelValues("upload", "error").Inc()
		return nil, &StorageError{
			StatusCode: 500,
			Code:       apierrors.CodeChannelNotFound,
			Message:    "Канал хранения не настроен",
		}
	}

	record := &model.FileRecord{
		ID:          uuid.New().String(),
		FileName:    stripExtension(params.FileName),
		ContentType: detectContentType(params.ContentType),
		TotalChunks: model.TotalChunksFor(int64(len(params.Data))),
		Available:   false,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.files.Insert(ctx, record); err != nil {
		s.logger.Error("Ошибка создания записи файла",
			slog.String("file_id", record.ID),
			slog.String("error", err.Error()),
		)
		operationsTotal.WithLabelValues("upload", "error").Inc()
		return nil, internalError("Ошибка создания записи файла")
	}

	s.logger.Info("Загрузка начата",
		slog.String("file_id", record.ID),
		slog.String("file_name", record.FileName),
		slog.Int("total_chunks", record.TotalChunks),
		slog.Int("size", len(params.Data)),
	)

	// Отправка chunk'ов — в фоне, после ответа клиенту.
	// Контекст запроса к этому моменту уже закрыт.
	s.uploads.Add(1)
	go func() {
		defer s.uploads.Done()
		s.sendChunks(context.Background(), channelID, record, params.Data)
	}()

	return record, nil
}

// sendChunks последовательно отправляет chunk'и файла в канал
// и фиксирует завершение загрузки одной транзакцией.
func (s *StorageService) sendChunks(ctx context.Context, channelID string, record *model.FileRecord, data []byte) {
	chunks := make([]model.ChunkRecord, 0, record.TotalChunks)
	sentIDs := make([]string, 0, record.TotalChunks)

	for i := 1; i <= record.TotalChunks; i++ {
		start := (i - 1) * model.ChunkSize
		end := min(start+model.ChunkSize, len(data))

		caption, err := json.Marshal(chunkEnvelope{
			FileID:       record.ID,
			TotalChunks:  record.TotalChunks,
			CurrentChunk: i,
		})
		if err != nil {
			s.logger.Error("Ошибка сериализации конверта chunk'а",
				slog.String("file_id", record.ID),
				slog.String("error", err.Error()),
			)
			s.cleanup(ctx, record.ID, sentIDs)
			operationsTotal.WithLabelValues("upload", "error").Inc()
			return
		}

		filename := fmt.Sprintf("%s.part%d", record.ID, i)
		messageID, err := s.channel.SendAttachment(ctx, channelID, filename, string(caption), data[start:end])
		if err != nil {
			s.logger.Error("Ошибка отправки chunk'а",
				slog.String("file_id", record.ID),
				slog.Int("chunk", i),
				slog.String("error", err.Error()),
			)
			s.cleanup(ctx, record.ID, sentIDs)
			operationsTotal.WithLabelValues("upload", "error").Inc()
			return
		}

		chunks = append(chunks, model.ChunkRecord{CurrentChunk: i, MessageID: messageID})
		sentIDs = append(sentIDs, messageID)
		chunksSentTotal.Inc()
	}

	if err := s.completer.Complete(ctx, record.ID, chunks); err != nil {
		s.logger.Error("Ошибка фиксации загрузки",
			slog.String("file_id", record.ID),
			slog.String("error", err.Error()),
		)
		s.cleanup(ctx, record.ID, sentIDs)
		operationsTotal.WithLabelValues("upload", "error").Inc()
		return
	}

	operationsTotal.WithLabelValues("upload", "success").Inc()
	s.logger.Info("Загрузка завершена",
		slog.String("file_id", record.ID),
		slog.Int("total_chunks", record.TotalChunks),
	)
}

// Download собирает файл из chunk'ов канала.
//
// Перед скачиванием байтов проверяется существование всех сообщений:
// любой отсутствующий chunk делает файл невосстановимым, запись и
// оставшиеся сообщения зачищаются. Байты скачиваются конкурентно,
// итоговый порядок определяется номерами chunk'ов из метаданных.
func (s *StorageService) Download(ctx context.Context, fileID string) (*DownloadResult, *StorageError) {
	record, serr := s.getRecord(ctx, fileID, "download")
	if serr != nil {
		return nil, serr
	}

	if !record.Available {
		operationsTotal.WithLabelValues("download", "not_available").Inc()
		return nil, &StorageError{
			StatusCode: 403,
			Code:       apierrors.CodeNotAvailable,
			Message:    "Файл ещё не доступен для скачивания",
		}
	}

	channelID, err := s.settings.Get(ctx, model.SettingChannelID)
	if err != nil {
		s.logger.Error("Настройка channel_id недоступна", slog.String("error", err.Error()))
		operationsTotal.WithLabelValues("download", "error").Inc()
		return nil, &StorageError{
			StatusCode: 500,
			Code:       apierrors.CodeChannelNotFound,
			Message:    "Канал хранения не настроен",
		}
	}

	if !record.IsComplete() {
		s.logger.Error("Запись файла неполна",
			slog.String("file_id", record.ID),
			slog.Int("chunks", len(record.Chunks)),
			slog.Int("total_chunks", record.TotalChunks),
		)
		s.cleanup(ctx, record.ID, record.MessageIDs())
		operationsTotal.WithLabelValues("download", "error").Inc()
		return nil, missingChunks()
	}

	// Проверка существования всех сообщений до скачивания байтов
	urls := make([]string, len(record.Chunks))
	for i, chunk := range record.Chunks {
		msg, err := s.channel.GetMessage(ctx, channelID, chunk.MessageID)
		if err != nil {
			// Зачистка только при подтверждённой утрате сообщения.
			// Временная недоступность канала не повод удалять файл.
			if !errors.Is(err, chanclient.ErrMessageNotFound) {
				s.logger.Error("Ошибка обращения к каналу",
					slog.String("file_id", record.ID),
					slog.Int("chunk", chunk.CurrentChunk),
					slog.String("message_id", chunk.MessageID),
					slog.String("error", err.Error()),
				)
				operationsTotal.WithLabelValues("download", "error").Inc()
				return nil, internalError("Ошибка обращения к каналу хранения")
			}

			s.logger.Error("Chunk утрачен в канале",
				slog.String("file_id", record.ID),
				slog.Int("chunk", chunk.CurrentChunk),
				slog.String("message_id", chunk.MessageID),
			)
			s.cleanup(ctx, record.ID, record.MessageIDs())
			operationsTotal.WithLabelValues("download", "error").Inc()
			return nil, missingChunks()
		}
		if len(msg.Attachments) == 0 {
			s.logger.Error("Сообщение chunk'а без вложения",
				slog.String("file_id", record.ID),
				slog.String("message_id", chunk.MessageID),
			)
			s.cleanup(ctx, record.ID, record.MessageIDs())
			operationsTotal.WithLabelValues("download", "error").Inc()
			return nil, missingChunks()
		}
		urls[i] = msg.Attachments[0].URL
	}

	// Конкурентное скачивание в слоты по номерам chunk'ов
	parts := make([][]byte, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	for i, url := range urls {
		g.Go(func() error {
			data, err := s.channel.DownloadAttachment(gctx, url)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", record.Chunks[i].CurrentChunk, err)
			}
			parts[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Error("Ошибка скачивания chunk'ов",
			slog.String("file_id", record.ID),
			slog.String("error", err.Error()),
		)
		operationsTotal.WithLabelValues("download", "error").Inc()
		return nil, internalError("Ошибка скачивания данных из канала")
	}

	var buf []byte
	for _, part := range parts {
		buf = append(buf, part...)
	}

	operationsTotal.WithLabelValues("download", "success").Inc()
	s.logger.Info("Файл собран",
		slog.String("file_id", record.ID),
		slog.Int("size", len(buf)),
	)

	return &DownloadResult{
		Data:        buf,
		FileName:    record.FileName,
		ContentType: record.ContentType,
	}, nil
}

// Delete удаляет файл: сначала запись метаданных, затем сообщения канала.
// Ошибки удаления сообщений логируются, но не возвращаются клиенту —
// запись к этому моменту уже удалена.
func (s *StorageService) Delete(ctx context.Context, fileID string) *StorageError {
	record, serr := s.getRecord(ctx, fileID, "delete")
	if serr != nil {
		return serr
	}

	if err := s.files.Delete(ctx, record.ID); err != nil {
		s.logger.Error("Ошибка удаления записи файла",
			slog.String("file_id", record.ID),
			slog.String("error", err.Error()),
		)
		operationsTotal.WithLabelValues("delete", "error").Inc()
		return internalError("Ошибка удаления записи файла")
	}

	s.deleteMessages(ctx, record.ID, record.MessageIDs())

	operationsTotal.WithLabelValues("delete", "success").Inc()
	s.logger.Info("Файл удалён", slog.String("file_id", record.ID))
	return nil
}

// getRecord валидирует идентификатор и читает запись файла.
func (s *StorageService) getRecord(ctx context.Context, fileID, operation string) (*model.FileRecord, *StorageError) {
	if fileID == "" {
		operationsTotal.WithLabelValues(operation, "error").Inc()
		return nil, &StorageError{
			StatusCode: 400,
			Code:       apierrors.CodeValidationError,
			Message:    "Параметр id обязателен",
		}
	}
	if err := uuid.Validate(fileID); err != nil {
		operationsTotal.WithLabelValues(operation, "error").Inc()
		return nil, &StorageError{
			StatusCode: 422,
			Code:       apierrors.CodeInvalidID,
			Message:    fmt.Sprintf("Некорректный идентификатор файла: %s", fileID),
		}
	}

	record, err := s.files.GetByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			operationsTotal.WithLabelValues(operation, "not_found").Inc()
			return nil, &StorageError{
				StatusCode: 404,
				Code:       apierrors.CodeNotFound,
				Message:    "Файл не найден",
			}
		}
		s.logger.Error("Ошибка чтения записи файла",
			slog.String("file_id", fileID),
			slog.String("error", err.Error()),
		)
		operationsTotal.WithLabelValues(operation, "error").Inc()
		return nil, internalError("Ошибка чтения записи файла")
	}

	return record, nil
}

// cleanup зачищает невосстановимый файл: удаляет запись метаданных,
// затем best-effort удаляет сообщения канала. Ошибки зачистки
// логируются и никогда не возвращаются вызывающему.
func (s *StorageService) cleanup(ctx context.Context, fileID string, messageIDs []string) {
	cleanupRunsTotal.Inc()

	if err := s.files.Delete(ctx, fileID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.logger.Error("Зачистка: ошибка удаления записи",
			slog.String("file_id", fileID),
			slog.String("error", err.Error()),
		)
	}

	s.deleteMessages(ctx, fileID, messageIDs)
}

// deleteMessages best-effort удаляет сообщения канала.
func (s *StorageService) deleteMessages(ctx context.Context, fileID string, messageIDs []string) {
	if len(messageIDs) == 0 {
		return
	}

	channelID, err := s.settings.Get(ctx, model.SettingChannelID)
	if err != nil {
		s.logger.Error("Зачистка: настройка channel_id недоступна",
			slog.String("file_id", fileID),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := s.channel.DeleteMessages(ctx, channelID, messageIDs); err != nil {
		s.logger.Error("Зачистка: ошибка удаления сообщений",
			slog.String("file_id", fileID),
			slog.Int("messages", len(messageIDs)),
			slog.String("error", err.Error()),
		)
	}
}

func missingChunks() *StorageError {
	return &StorageError{
		StatusCode: 500,
		Code:       apierrors.CodeMissingChunks,
		Message:    "Часть данных файла утрачена",
	}
}

// stripExtension убирает расширение из имени файла.
func stripExtension(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// detectContentType подставляет application/octet-stream,
// если Content-Type не указан.
func detectContentType(contentType string) string {
	if contentType == "" {
		return "application/octet-stream"
	}
	return contentType
}
