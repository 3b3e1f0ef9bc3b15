package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	apierrors "github.com/bigkaa/chanstore/internal/api/errors"
	"github.com/bigkaa/chanstore/internal/chanclient"
	"github.com/bigkaa/chanstore/internal/domain/model"
	"github.com/bigkaa/chanstore/internal/repository"
)

// fakeFileStore — in-memory хранилище метаданных.
// Мьютекс нужен: фоновая горутина upload пишет параллельно с тестом.
type fakeFileStore struct {
	mu      sync.Mutex
	records map[string]*model.FileRecord
	// insertErr/deleteErr позволяют имитировать сбои базы.
	insertErr error
	deleteErr error
}

func newFakeFileStore() *fakeFileStore {
	return &fakeFileStore{records: map[string]*model.FileRecord{}}
}

func (f *fakeFileStore) Insert(_ context.Context, rec *model.FileRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	if _, ok := f.records[rec.ID]; ok {
		return repository.ErrConflict
	}
	clone := *rec
	f.records[rec.ID] = &clone
	return nil
}

func (f *fakeFileStore) GetByID(_ context.Context, fileID string) (*model.FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[fileID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *rec
	clone.Chunks = append([]model.ChunkRecord(nil), rec.Chunks...)
	return &clone, nil
}

func (f *fakeFileStore) List(_ context.Context) ([]*model.FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.FileRecord
	for _, rec := range f.records {
		clone := *rec
		out = append(out, &clone)
	}
	return out, nil
}

func (f *fakeFileStore) Delete(_ context.Context, fileID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.records[fileID]; !ok {
		return repository.ErrNotFound
	}
	delete(f.records, fileID)
	return nil
}

func (f *fakeFileStore) has(fileID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.records[fileID]
	return ok
}

// fakeCompleter — фиксация загрузки поверх fakeFileStore.
type fakeCompleter struct {
	store *fakeFileStore
	err   error
}

func (c *fakeCompleter) Complete(_ context.Context, fileID string, chunks []model.ChunkRecord) error {
	if c.err != nil {
		return c.err
	}
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	rec, ok := c.store.records[fileID]
	if !ok {
		return repository.ErrNotFound
	}
	rec.Chunks = append([]model.ChunkRecord(nil), chunks...)
	rec.Available = true
	return nil
}

// fakeChannel — in-memory канал платформы сообщений.
type fakeChannel struct {
	mu       sync.Mutex
	nextID   int
	messages map[string][]byte // messageID -> байты вложения
	deleted  []string
	// failAfter — количество успешных отправок до сбоя (0 = без сбоев).
	failAfter int
	sends     int
	// getErr — ошибка GetMessage, имитирует недоступность канала.
	getErr error
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{messages: map[string][]byte{}}
}

func (c *fakeChannel) SendAttachment(_ context.Context, _, _, _ string, data []byte) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAfter > 0 && c.sends >= c.failAfter {
		return "", errors.New("канал недоступен")
	}
	c.sends++
	c.nextID++
	id := fmt.Sprintf("msg-%d", c.nextID)
	c.messages[id] = append([]byte(nil), data...)
	return id, nil
}

func (c *fakeChannel) GetMessage(_ context.Context, _, messageID string) (*chanclient.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	if _, ok := c.messages[messageID]; !ok {
		return nil, chanclient.ErrMessageNotFound
	}
	return &chanclient.Message{
		ID:          messageID,
		Attachments: []chanclient.Attachment{{URL: "mem://" + messageID}},
	}, nil
}

func (c *fakeChannel) DownloadAttachment(_ context.Context, url string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.messages[strings.TrimPrefix(url, "mem://")]
	if !ok {
		return nil, errors.New("вложение не найдено")
	}
	return append([]byte(nil), data...), nil
}

func (c *fakeChannel) DeleteMessages(_ context.Context, _ string, messageIDs []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range messageIDs {
		delete(c.messages, id)
		c.deleted = append(c.deleted, id)
	}
	return nil
}

func (c *fakeChannel) messageCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

func (c *fakeChannel) removeMessage(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.messages, id)
}

// testEnv — собранный сервис с фейками.
type testEnv struct {
	svc     *StorageService
	store   *fakeFileStore
	channel *fakeChannel
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := newFakeFileStore()
	channel := newFakeChannel()
	settings := NewSettingsService(
		&fakeSettingsRepo{values: map[string]string{model.SettingChannelID: "chan-1"}},
		settingsTestConfig(),
		testLogger(),
	)
	svc := NewStorageService(store, &fakeCompleter{store: store}, channel, settings, testLogger())
	return &testEnv{svc: svc, store: store, channel: channel}
}

// uploadAndWait загружает файл и дожидается фоновой отправки chunk'ов.
func (e *testEnv) uploadAndWait(t *testing.T, data []byte) *model.FileRecord {
	t.Helper()
	rec, serr := e.svc.Upload(context.Background(), UploadParams{
		Data:        data,
		FileName:    "test.bin",
		ContentType: "application/test",
	})
	if serr != nil {
		t.Fatalf("Upload: %v", serr)
	}
	e.svc.Wait()
	return rec
}

func patternData(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

func TestUploadDownload_RoundTrip(t *testing.T) {
	tests := []struct {
		name       string
		size       int
		wantChunks int
	}{
		{"один байт", 1, 1},
		{"меньше chunk'а", 1024, 1},
		{"ровно один chunk", model.ChunkSize, 1},
		{"20 MiB — три chunk'а", 20 << 20, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			data := patternData(tt.size)

			rec := env.uploadAndWait(t, data)
			if rec.TotalChunks != tt.wantChunks {
				t.Errorf("TotalChunks: хотели %d, получили %d", tt.wantChunks, rec.TotalChunks)
			}
			if rec.Available {
				t.Error("Ответ 201 должен возвращать available=false")
			}

			result, serr := env.svc.Download(context.Background(), rec.ID)
			if serr != nil {
				t.Fatalf("Download: %v", serr)
			}
			if !bytes.Equal(result.Data, data) {
				t.Errorf("Байты не совпадают: хотели %d байт, получили %d", len(data), len(result.Data))
			}
			if result.ContentType != "application/test" {
				t.Errorf("ContentType: получили %q", result.ContentType)
			}
			if result.FileName != "test" {
				t.Errorf("FileName: хотели %q (без расширения), получили %q", "test", result.FileName)
			}
		})
	}
}

func TestUpload_EmptyBody(t *testing.T) {
	env := newTestEnv(t)

	_, serr := env.svc.Upload(context.Background(), UploadParams{Data: nil})
	if serr == nil {
		t.Fatal("Хотели ошибку, получили nil")
	}
	if serr.StatusCode != 400 || serr.Code != apierrors.CodeMissingBody {
		t.Errorf("Хотели 400 %s, получили %d %s", apierrors.CodeMissingBody, serr.StatusCode, serr.Code)
	}
}

func TestUpload_ChannelNotConfigured(t *testing.T) {
	store := newFakeFileStore()
	channel := newFakeChannel()
	settings := NewSettingsService(
		&fakeSettingsRepo{values: map[string]string{}},
		settingsTestConfig(),
		testLogger(),
	)
	svc := NewStorageService(store, &fakeCompleter{store: store}, channel, settings, testLogger())

	_, serr := svc.Upload(context.Background(), UploadParams{Data: []byte("x")})
	if serr == nil {
		t.Fatal("Хотели ошибку, получили nil")
	}
	if serr.StatusCode != 500 || serr.Code != apierrors.CodeChannelNotFound {
		t.Errorf("Хотели 500 %s, получили %d %s", apierrors.CodeChannelNotFound, serr.StatusCode, serr.Code)
	}
}

func TestUpload_ImmediateResponseBeforePersist(t *testing.T) {
	env := newTestEnv(t)

	rec, serr := env.svc.Upload(context.Background(), UploadParams{Data: patternData(1 << 10)})
	if serr != nil {
		t.Fatalf("Upload: %v", serr)
	}

	// Запись создана и видна сразу, но недоступна до конца фоновой части
	stored, err := env.store.GetByID(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("GetByID сразу после 201: %v", err)
	}
	if stored.Available && env.channel.messageCount() == 0 {
		t.Error("available=true раньше отправки chunk'ов")
	}

	env.svc.Wait()

	stored, err = env.store.GetByID(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("GetByID после завершения: %v", err)
	}
	if !stored.Available {
		t.Error("available должен стать true после отправки всех chunk'ов")
	}
}

func TestUpload_SendFailureCleansUp(t *testing.T) {
	env := newTestEnv(t)
	data := patternData(20 << 20) // 3 chunk'а
	env.channel.failAfter = 2     // сбой на третьем

	rec, serr := env.svc.Upload(context.Background(), UploadParams{Data: data})
	if serr != nil {
		t.Fatalf("Upload: %v", serr)
	}
	env.svc.Wait()

	if env.store.has(rec.ID) {
		t.Error("Запись должна быть удалена после сбоя отправки")
	}
	if env.channel.messageCount() != 0 {
		t.Errorf("Отправленные сообщения должны быть зачищены, осталось %d", env.channel.messageCount())
	}
}

func TestUpload_CompleteFailureCleansUp(t *testing.T) {
	store := newFakeFileStore()
	channel := newFakeChannel()
	settings := NewSettingsService(
		&fakeSettingsRepo{values: map[string]string{model.SettingChannelID: "chan-1"}},
		settingsTestConfig(),
		testLogger(),
	)
	completer := &fakeCompleter{store: store, err: errors.New("база недоступна")}
	svc := NewStorageService(store, completer, channel, settings, testLogger())

	rec, serr := svc.Upload(context.Background(), UploadParams{Data: patternData(1 << 10)})
	if serr != nil {
		t.Fatalf("Upload: %v", serr)
	}
	svc.Wait()

	if store.has(rec.ID) {
		t.Error("Запись должна быть удалена после сбоя фиксации")
	}
	if channel.messageCount() != 0 {
		t.Errorf("Сообщения должны быть зачищены, осталось %d", channel.messageCount())
	}
}

func TestDownload_Validation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name       string
		id         string
		wantStatus int
		wantCode   string
	}{
		{"пустой id", "", 400, apierrors.CodeValidationError},
		{"не UUID", "not-a-uuid", 422, apierrors.CodeInvalidID},
		{"несуществующий", uuid.New().String(), 404, apierrors.CodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, serr := env.svc.Download(context.Background(), tt.id)
			if serr == nil {
				t.Fatal("Хотели ошибку, получили nil")
			}
			if serr.StatusCode != tt.wantStatus || serr.Code != tt.wantCode {
				t.Errorf("Хотели %d %s, получили %d %s", tt.wantStatus, tt.wantCode, serr.StatusCode, serr.Code)
			}
		})
	}
}

func TestDownload_NotAvailable(t *testing.T) {
	env := newTestEnv(t)

	rec := &model.FileRecord{
		ID:          uuid.New().String(),
		ContentType: "application/test",
		TotalChunks: 1,
		Available:   false,
		CreatedAt:   time.Now().UTC(),
	}
	if err := env.store.Insert(context.Background(), rec); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	_, serr := env.svc.Download(context.Background(), rec.ID)
	if serr == nil {
		t.Fatal("Хотели ошибку, получили nil")
	}
	if serr.StatusCode != 403 || serr.Code != apierrors.CodeNotAvailable {
		t.Errorf("Хотели 403 %s, получили %d %s", apierrors.CodeNotAvailable, serr.StatusCode, serr.Code)
	}
}

func TestDownload_MissingChunkCorruptsFile(t *testing.T) {
	env := newTestEnv(t)
	rec := env.uploadAndWait(t, patternData(20<<20)) // 3 chunk'а

	// Один chunk пропадает из канала
	stored, err := env.store.GetByID(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	env.channel.removeMessage(stored.Chunks[1].MessageID)

	_, serr := env.svc.Download(context.Background(), rec.ID)
	if serr == nil {
		t.Fatal("Хотели ошибку, получили nil")
	}
	if serr.StatusCode != 500 || serr.Code != apierrors.CodeMissingChunks {
		t.Errorf("Хотели 500 %s, получили %d %s", apierrors.CodeMissingChunks, serr.StatusCode, serr.Code)
	}

	// Файл невосстановим: запись удалена, повторные обращения дают 404
	if env.store.has(rec.ID) {
		t.Error("Запись должна быть удалена после обнаружения утраты chunk'а")
	}
	if env.channel.messageCount() != 0 {
		t.Errorf("Оставшиеся сообщения должны быть зачищены, осталось %d", env.channel.messageCount())
	}
	if _, serr := env.svc.Download(context.Background(), rec.ID); serr == nil || serr.StatusCode != 404 {
		t.Errorf("Повторный Download: хотели 404, получили %v", serr)
	}
}

func TestDownload_ChannelOutageKeepsFile(t *testing.T) {
	env := newTestEnv(t)
	data := patternData(20 << 20) // 3 chunk'а
	rec := env.uploadAndWait(t, data)

	// Канал временно недоступен: сообщения целы, но GetMessage падает
	env.channel.getErr = errors.New("канал недоступен")

	_, serr := env.svc.Download(context.Background(), rec.ID)
	if serr == nil {
		t.Fatal("Хотели ошибку, получили nil")
	}
	if serr.StatusCode != 500 || serr.Code != apierrors.CodeInternalError {
		t.Errorf("Хотели 500 %s, получили %d %s", apierrors.CodeInternalError, serr.StatusCode, serr.Code)
	}

	// Временный сбой не должен трогать ни запись, ни сообщения
	if !env.store.has(rec.ID) {
		t.Error("Запись не должна удаляться при временном сбое канала")
	}
	if env.channel.messageCount() != 3 {
		t.Errorf("Сообщения не должны зачищаться, осталось %d из 3", env.channel.messageCount())
	}

	// После восстановления канала файл скачивается целиком
	env.channel.getErr = nil
	result, serr := env.svc.Download(context.Background(), rec.ID)
	if serr != nil {
		t.Fatalf("Download после восстановления: %v", serr)
	}
	if !bytes.Equal(result.Data, data) {
		t.Errorf("Байты не совпадают: хотели %d байт, получили %d", len(data), len(result.Data))
	}
}

func TestDownload_ChannelNotConfigured(t *testing.T) {
	env := newTestEnv(t)
	rec := env.uploadAndWait(t, patternData(1<<10))

	// Настройка channel_id пропадает между загрузкой и скачиванием
	svcSettings := NewSettingsService(
		&fakeSettingsRepo{values: map[string]string{}},
		settingsTestConfig(),
		testLogger(),
	)
	svc := NewStorageService(env.store, &fakeCompleter{store: env.store}, env.channel, svcSettings, testLogger())

	_, serr := svc.Download(context.Background(), rec.ID)
	if serr == nil {
		t.Fatal("Хотели ошибку, получили nil")
	}
	if serr.StatusCode != 500 || serr.Code != apierrors.CodeChannelNotFound {
		t.Errorf("Хотели 500 %s, получили %d %s", apierrors.CodeChannelNotFound, serr.StatusCode, serr.Code)
	}
}

func TestDelete(t *testing.T) {
	env := newTestEnv(t)
	rec := env.uploadAndWait(t, patternData(1<<10))

	if serr := env.svc.Delete(context.Background(), rec.ID); serr != nil {
		t.Fatalf("Delete: %v", serr)
	}
	if env.store.has(rec.ID) {
		t.Error("Запись должна быть удалена")
	}
	if env.channel.messageCount() != 0 {
		t.Errorf("Сообщения должны быть удалены, осталось %d", env.channel.messageCount())
	}

	// Повторное удаление — 404
	serr := env.svc.Delete(context.Background(), rec.ID)
	if serr == nil || serr.StatusCode != 404 {
		t.Errorf("Повторный Delete: хотели 404, получили %v", serr)
	}
}

func TestDelete_MessageCleanupFailureNotSurfaced(t *testing.T) {
	env := newTestEnv(t)
	rec := env.uploadAndWait(t, patternData(1<<10))

	// Настройка channel_id пропадает к моменту удаления сообщений:
	// ошибка зачистки логируется, но клиент получает успех
	svcSettings := NewSettingsService(
		&fakeSettingsRepo{values: map[string]string{}},
		settingsTestConfig(),
		testLogger(),
	)
	svc := NewStorageService(env.store, &fakeCompleter{store: env.store}, env.channel, svcSettings, testLogger())

	if serr := svc.Delete(context.Background(), rec.ID); serr != nil {
		t.Errorf("Delete: ошибка зачистки не должна всплывать, получили %v", serr)
	}
	if env.store.has(rec.ID) {
		t.Error("Запись должна быть удалена несмотря на сбой зачистки")
	}
}

func TestList(t *testing.T) {
	env := newTestEnv(t)

	t.Run("пустое хранилище — 404", func(t *testing.T) {
		_, serr := env.svc.List(context.Background())
		if serr == nil || serr.StatusCode != 404 {
			t.Errorf("Хотели 404, получили %v", serr)
		}
	})

	t.Run("после загрузки файл в списке", func(t *testing.T) {
		rec := env.uploadAndWait(t, patternData(1<<10))

		files, serr := env.svc.List(context.Background())
		if serr != nil {
			t.Fatalf("List: %v", serr)
		}
		if len(files) != 1 || files[0].ID != rec.ID {
			t.Errorf("List: хотели запись %s, получили %+v", rec.ID, files)
		}
	})
}
