package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "deception"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanRulesRefresh - широковещательный сигнал роутерам перечитать правила маршрутизации.
	RedisChanRulesRefresh = RedisNamespace + ":rules:refresh"
)

// HoneypotLockKey Генератор ключей для аренды (lease) на переход состояния конкретного ханипота
func HoneypotLockKey(honeypotID string) string {
	return fmt.Sprintf("%s:lock:honeypot:%s", RedisNamespace, honeypotID)
}
