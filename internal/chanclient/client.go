// Пакет chanclient — HTTP-клиент для API платформы сообщений.
// Отправка вложений multipart-запросами, чтение сообщений,
// скачивание вложений и удаление сообщений (одиночное и массовое).
package chanclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// ErrMessageNotFound — сообщение отсутствует в канале (удалено или никогда не существовало).
var ErrMessageNotFound = errors.New("сообщение не найдено в канале")

// Attachment — вложение сообщения.
type Attachment struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// Message — сообщение канала с вложениями.
type Message struct {
	ID          string       `json:"id"`
	Attachments []Attachment `json:"attachments"`
}

// Client — HTTP-клиент API платформы сообщений.
type Client struct {
	httpClient *http.Client
	baseURL    string
	botToken   string
	logger     *slog.Logger
}

// New создаёт клиент API платформы сообщений.
// baseURL — базовый URL API (из конфигурации CS_CHANNEL_API_URL).
// botToken — токен бота для заголовка Authorization.
// timeout — таймаут HTTP-запросов (CS_CHANNEL_TIMEOUT); должен покрывать
// передачу вложения максимального размера.
func New(baseURL, botToken string, timeout time.Duration, logger *slog.Logger) *Client {
	transport := &http.Transport{
		// Настройка пула idle-соединений для эффективного переиспользования
		MaxIdleConnsPerHost: 10,
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		botToken: botToken,
		logger:   logger.With(slog.String("component", "chan_client")),
	}
}

// SendAttachment отправляет вложение в канал одним сообщением.
// filename — имя файла вложения, caption — текст сообщения (JSON-конверт chunk'а).
// Возвращает ID созданного сообщения.
//
// Формат запроса: POST {baseURL}/channels/{channelID}/messages,
// multipart/form-data с частями payload_json и files[0].
func (c *Client) SendAttachment(ctx context.Context, channelID, filename, caption string, data []byte) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	payload, err := json.Marshal(map[string]string{"content": caption})
	if err != nil {
		return "", fmt.Errorf("сериализация payload_json: %w", err)
	}
	if err := writer.WriteField("payload_json", string(payload)); err != nil {
		return "", fmt.Errorf("запись payload_json: %w", err)
	}

	part, err := writer.CreateFormFile("files[0]", filename)
	if err != nil {
		return "", fmt.Errorf("создание части файла: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("запись данных вложения: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("завершение multipart-формы: %w", err)
	}

	reqURL := fmt.Sprintf("%s/channels/%s/messages", c.baseURL, channelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, &body)
	if err != nil {
		return "", fmt.Errorf("создание запроса SendAttachment: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("запрос SendAttachment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", c.apiError("SendAttachment", resp)
	}

	var msg Message
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return "", fmt.Errorf("разбор ответа SendAttachment: %w", err)
	}
	if msg.ID == "" {
		return "", fmt.Errorf("ответ SendAttachment не содержит ID сообщения")
	}

	c.logger.Debug("Вложение отправлено в канал",
		slog.String("channel_id", channelID),
		slog.String("message_id", msg.ID),
		slog.Int("size", len(data)),
	)

	return msg.ID, nil
}

// GetMessage читает сообщение канала по ID.
// Возвращает ErrMessageNotFound, если сообщение отсутствует.
//
// Формат запроса: GET {baseURL}/channels/{channelID}/messages/{messageID}
func (c *Client) GetMessage(ctx context.Context, channelID, messageID string) (*Message, error) {
	reqURL := fmt.Sprintf("%s/channels/%s/messages/%s", c.baseURL, channelID, messageID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("создание запроса GetMessage: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("запрос GetMessage: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrMessageNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.apiError("GetMessage", resp)
	}

	var msg Message
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return nil, fmt.Errorf("разбор ответа GetMessage: %w", err)
	}

	return &msg, nil
}

// DownloadAttachment скачивает байты вложения по его URL.
// URL берётся из Message.Attachments и указывает на CDN платформы.
func (c *Client) DownloadAttachment(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("создание запроса DownloadAttachment: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("запрос DownloadAttachment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.apiError("DownloadAttachment", resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("чтение тела вложения: %w", err)
	}

	return data, nil
}

// DeleteMessages удаляет сообщения канала.
// Для двух и более ID используется bulk-endpoint, для одного — одиночное удаление.
// Отсутствующие сообщения (404) не считаются ошибкой.
//
// Формат запросов:
//
//	DELETE {baseURL}/channels/{channelID}/messages/{messageID}
//	POST   {baseURL}/channels/{channelID}/messages/bulk-delete, JSON {"messages": [...]}
func (c *Client) DeleteMessages(ctx context.Context, channelID string, messageIDs []string) error {
	if len(messageIDs) == 0 {
		return nil
	}

	if len(messageIDs) == 1 {
		return c.deleteOne(ctx, channelID, messageIDs[0])
	}

	payload, err := json.Marshal(map[string][]string{"messages": messageIDs})
	if err != nil {
		return fmt.Errorf("сериализация bulk-delete: %w", err)
	}

	reqURL := fmt.Sprintf("%s/channels/%s/messages/bulk-delete", c.baseURL, channelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("создание запроса bulk-delete: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("запрос bulk-delete: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.apiError("bulk-delete", resp)
	}

	c.logger.Debug("Сообщения удалены из канала",
		slog.String("channel_id", channelID),
		slog.Int("count", len(messageIDs)),
	)

	return nil
}

// deleteOne удаляет одно сообщение канала.
func (c *Client) deleteOne(ctx context.Context, channelID, messageID string) error {
	reqURL := fmt.Sprintf("%s/channels/%s/messages/%s", c.baseURL, channelID, messageID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, reqURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("создание запроса DeleteMessage: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("запрос DeleteMessage: %w", err)
	}
	defer resp.Body.Close()

	// Уже удалённое сообщение — не ошибка
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.apiError("DeleteMessage", resp)
	}

	return nil
}

// Ping проверяет доступность API платформы.
// Любой HTTP-ответ означает, что API достижим; ошибкой считается
// только сбой соединения.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/gateway", http.NoBody)
	if err != nil {
		return fmt.Errorf("создание запроса Ping: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("API платформы недоступен: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 512))

	return nil
}

// authorize добавляет bot-токен в заголовок Authorization.
func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bot "+c.botToken)
}

// apiError формирует ошибку из неуспешного ответа API.
// Тело ответа усечённо включается в текст для диагностики.
func (c *Client) apiError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%s: API платформы вернул %d: %s", op, resp.StatusCode, strings.TrimSpace(string(body)))
}
