package models

import "time"

// User представляет пользователя удалённого хранилища документов
type User struct {
	CreatedAt    time.Time `json:"created_at"`    // время создания
	ID           string    `json:"id"`            // UUID пользователя, префикс всех его коллекций
	Username     string    `json:"username"`      // уникальный username
	PasswordHash string    `json:"password_hash"` // argon2id хеш пароля
	FieldSalt    string    `json:"field_salt"`    // base64 соль для ключа шифрования полей на клиенте
}
