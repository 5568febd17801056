package domain

import "time"

type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthUnhealthy HealthStatus = "unhealthy"
)

const DeploymentTypeContainer = "container"

// ContainerResources - итоговые ресурсы контейнера после подстановки дефолтов.
type ContainerResources struct {
	CPU         string `json:"cpu"`
	Memory      string `json:"memory"`
	MaxSessions int    `json:"maxSessions"`
}

// ContainerConfig - конфигурация контейнера, которую получил бы рантайм.
type ContainerConfig struct {
	Image       string             `json:"image"`
	Ports       []int              `json:"ports"`
	Environment map[string]string  `json:"environment"`
	Resources   ContainerResources `json:"resources"`
}

// DeploymentRecord - след одного запущенного экземпляра: от deploy до остановки.
// У ханипота не больше одной записи с пустым TerminatedAt.
type DeploymentRecord struct {
	ID             string          `json:"id"`
	HoneypotID     string          `json:"honeypot_service_id"`
	DeploymentType string          `json:"deployment_type"`
	ContainerID    string          `json:"container_id"`
	ContainerImage string          `json:"container_image"`
	Config         ContainerConfig `json:"deployment_config"`
	Health         HealthStatus    `json:"health_status"`
	DeployedAt     time.Time       `json:"deployed_at"`
	TerminatedAt   *time.Time      `json:"terminated_at"`
}

// Open - запись еще не закрыта.
func (r DeploymentRecord) Open() bool {
	return r.TerminatedAt == nil
}
