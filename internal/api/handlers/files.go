// Пакет handlers — контроллеры собственного HTTP-фреймворка.
// files.go — контроллер файловых операций: list, upload, download, delete.
package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/chanstore/internal/api/errors"
	"github.com/bigkaa/chanstore/internal/httpd"
	"github.com/bigkaa/chanstore/internal/service"
)

// FilesController — маршруты /api/v1/files.
// Идентификаторы и имена файлов передаются query-строкой,
// тело запроса upload — сырые байты файла.
type FilesController struct {
	storage *service.StorageService
	logger  *slog.Logger
}

// NewFilesController создаёт контроллер файловых операций.
func NewFilesController(storage *service.StorageService, logger *slog.Logger) *FilesController {
	return &FilesController{
		storage: storage,
		logger:  logger.With(slog.String("component", "files_controller")),
	}
}

// BasePath возвращает базовый путь контроллера.
func (c *FilesController) BasePath() string {
	return "/api/v1/files"
}

// Routes возвращает маршруты контроллера.
func (c *FilesController) Routes() []httpd.Route {
	return []httpd.Route{
		{Method: http.MethodGet, SubPath: "list", Handler: c.List},
		{Method: http.MethodPost, SubPath: "upload", Handler: c.Upload},
		{Method: http.MethodGet, SubPath: "download", Handler: c.Download},
		{Method: http.MethodDelete, SubPath: "delete", Handler: c.Delete},
	}
}

// List обрабатывает GET /api/v1/files/list.
func (c *FilesController) List(w http.ResponseWriter, r *http.Request) {
	files, serr := c.storage.List(r.Context())
	if serr != nil {
		apierrors.WriteError(w, serr.StatusCode, serr.Code, serr.Message)
		return
	}
	writeJSON(w, http.StatusOK, files)
}

// Upload обрабатывает POST /api/v1/files/upload?fileName=<name>.
// Тело запроса — сырые байты файла; Content-Type сохраняется в записи.
// Ответ 201 возвращается до завершения отправки chunk'ов в канал.
func (c *FilesController) Upload(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		c.logger.Error("Ошибка чтения тела запроса", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Ошибка чтения тела запроса")
		return
	}

	record, serr := c.storage.Upload(r.Context(), service.UploadParams{
		Data:        data,
		FileName:    r.URL.Query().Get("fileName"),
		ContentType: r.Header.Get("Content-Type"),
	})
	if serr != nil {
		apierrors.WriteError(w, serr.StatusCode, serr.Code, serr.Message)
		return
	}

	writeJSON(w, http.StatusCreated, record)
}

// Download обрабатывает GET /api/v1/files/download?id=<id>.
// Отдаёт собранный файл с сохранённым Content-Type.
func (c *FilesController) Download(w http.ResponseWriter, r *http.Request) {
	result, serr := c.storage.Download(r.Context(), r.URL.Query().Get("id"))
	if serr != nil {
		apierrors.WriteError(w, serr.StatusCode, serr.Code, serr.Message)
		return
	}

	w.Header().Set("Content-Type", result.ContentType)
	if result.FileName != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.FileName))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(result.Data); err != nil {
		c.logger.Error("Ошибка записи ответа download", slog.String("error", err.Error()))
	}
}

// Delete обрабатывает DELETE /api/v1/files/delete?id=<id>.
func (c *FilesController) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if serr := c.storage.Delete(r.Context(), id); serr != nil {
		apierrors.WriteError(w, serr.StatusCode, serr.Code, serr.Message)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"file_id": id, "status": "deleted"})
}

// writeJSON записывает JSON-ответ со статус-кодом.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
