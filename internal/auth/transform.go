package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// Transform выполняет одностороннее преобразование токена:
// HMAC-SHA256 с ключом, выведенным из token_key, в base64url.
// Открытые токены нигде не хранятся и не сравниваются — настройка token
// в базе уже содержит преобразованное значение.
func Transform(token, tokenKey string) string {
	mac := hmac.New(sha256.New, deriveKey(tokenKey))
	mac.Write([]byte(token))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
