// Пакет auth — проверка токенов Channel Store.
// Кандидаты собираются из cookie, заголовка Authorization и query-строки;
// сравнение ведётся в пространстве односторонне преобразованных значений
// (HMAC-SHA256 с ключом из настройки token_key). Cookie хранит токен
// в зашифрованном AES-256-GCM конверте вместе со сроком действия.
package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Имя cookie с токеном доступа.
const TokenCookieName = "token"

// Срок действия cookie с токеном (7 суток).
const TokenCookieTTL = 7 * 24 * time.Hour

// cookieSession — содержимое зашифрованного cookie.
// Срок действия хранится внутри конверта: срок жизни cookie в браузере
// серверу не виден, поэтому проверяется вложенный timestamp.
type cookieSession struct {
	// Token — токен в преобразованном виде.
	Token string `json:"token"`
	// ExpiresAt — время истечения (Unix timestamp).
	ExpiresAt int64 `json:"expires_at"`
}

// IsExpired проверяет, истёк ли срок действия конверта.
func (s *cookieSession) IsExpired() bool {
	return time.Now().Unix() >= s.ExpiresAt
}

// TokenCipher шифрует и дешифрует cookieSession через AES-256-GCM.
// Ключ выводится из настройки token_key хешированием SHA-256.
type TokenCipher struct {
	gcm cipher.AEAD
}

// NewTokenCipher создаёт cipher для cookie с токеном.
func NewTokenCipher(tokenKey string) (*TokenCipher, error) {
	keyBytes := deriveKey(tokenKey)

	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания GCM: %w", err)
	}

	return &TokenCipher{gcm: gcm}, nil
}

// Seal шифрует cookieSession и возвращает base64-строку для значения cookie.
func (tc *TokenCipher) Seal(session *cookieSession) (string, error) {
	plaintext, err := json.Marshal(session)
	if err != nil {
		return "", fmt.Errorf("ошибка сериализации конверта: %w", err)
	}

	// Уникальный nonce для каждого шифрования
	nonce := make([]byte, tc.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("ошибка генерации nonce: %w", err)
	}

	// nonce prepended к ciphertext
	ciphertext := tc.gcm.Seal(nonce, nonce, plaintext, nil)

	return base64.URLEncoding.EncodeToString(ciphertext), nil
}

// Open дешифрует значение cookie обратно в cookieSession.
func (tc *TokenCipher) Open(encrypted string) (*cookieSession, error) {
	ciphertext, err := base64.URLEncoding.DecodeString(encrypted)
	if err != nil {
		return nil, fmt.Errorf("ошибка декодирования base64: %w", err)
	}

	nonceSize := tc.gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, errors.New("зашифрованные данные слишком короткие")
	}

	nonce, payload := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := tc.gcm.Open(nil, nonce, payload, nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка дешифрования cookie: %w", err)
	}

	var session cookieSession
	if err := json.Unmarshal(plaintext, &session); err != nil {
		return nil, fmt.Errorf("ошибка разбора конверта: %w", err)
	}

	return &session, nil
}

// SetTokenCookie устанавливает cookie с токеном на TokenCookieTTL.
// token передаётся уже в преобразованном виде.
func (tc *TokenCipher) SetTokenCookie(w http.ResponseWriter, token string) error {
	expiresAt := time.Now().Add(TokenCookieTTL)
	value, err := tc.Seal(&cookieSession{
		Token:     token,
		ExpiresAt: expiresAt.Unix(),
	})
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookieName,
		Value:    value,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   int(TokenCookieTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return nil
}

// ClearTokenCookie удаляет cookie с токеном (истёкший или нечитаемый конверт).
func ClearTokenCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// deriveKey выводит 32-байтовый ключ из строки token_key через SHA-256.
func deriveKey(tokenKey string) []byte {
	sum := sha256.Sum256([]byte(tokenKey))
	return sum[:]
}
