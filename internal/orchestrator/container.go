package orchestrator

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/xela07ax/deception-core/internal/domain"
)

// DefaultImage - образ для протоколов без собственного эмулятора.
const DefaultImage = "alpine:latest"

var baseImages = map[string]string{
	"ssh":    "cowrie/cowrie:latest",
	"http":   "nginx:alpine",
	"ftp":    "stilliard/pure-ftpd",
	"telnet": "honeytrap/honeytrap",
	"rdp":    "microsoft/rdesktop",
	"iot":    "conpot/conpot",
}

// Зарезервированные переменные окружения контейнера.
const (
	EnvName             = "HONEYPOT_NAME"
	EnvProtocol         = "HONEYPOT_PROTOCOL"
	EnvPort             = "HONEYPOT_PORT"
	EnvInteractionLevel = "INTERACTION_LEVEL"
)

// ImageFor возвращает базовый образ по протоколу.
func ImageFor(protocol string) string {
	if img, ok := baseImages[strings.ToLower(protocol)]; ok {
		return img
	}
	return DefaultImage
}

// BuildContainerConfig собирает конфигурацию контейнера для ханипота.
// Свободная конфигурация не может перекрыть зарезервированные ключи окружения.
func BuildContainerConfig(h domain.HoneypotService) domain.ContainerConfig {
	env := make(map[string]string, len(h.Configuration)+4)
	for k, v := range h.Configuration {
		env[k] = v
	}
	env[EnvName] = h.Name
	env[EnvProtocol] = h.Protocol
	env[EnvPort] = strconv.Itoa(h.Port)
	env[EnvInteractionLevel] = h.InteractionLevel

	return domain.ContainerConfig{
		Image:       ImageFor(h.Protocol),
		Ports:       []int{h.Port},
		Environment: env,
		Resources:   h.ResourceLimits.Effective(),
	}
}

// NewContainerID генерирует уникальный идентификатор контейнера.
func NewContainerID(honeypotID string) string {
	return "honeypot_" + honeypotID + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
