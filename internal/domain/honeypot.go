package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/api/resource"
)

// DeploymentStatus - состояния конечного автомата развертывания ханипота
type DeploymentStatus string

const (
	StatusStopped  DeploymentStatus = "stopped"
	StatusStarting DeploymentStatus = "starting"
	StatusRunning  DeploymentStatus = "running"
	StatusStopping DeploymentStatus = "stopping"
	StatusScaling  DeploymentStatus = "scaling"
	StatusError    DeploymentStatus = "error"
)

// Action - команда оркестратора
type Action string

const (
	ActionDeploy  Action = "deploy"
	ActionStop    Action = "stop"
	ActionRestart Action = "restart"
	ActionScale   Action = "scale"
)

// allowedFrom - из каких состояний допустима каждая команда.
var allowedFrom = map[Action][]DeploymentStatus{
	ActionDeploy:  {StatusStopped, StatusError},
	ActionStop:    {StatusRunning, StatusStarting},
	ActionRestart: {StatusStopped, StatusRunning, StatusError},
	ActionScale:   {StatusRunning},
}

// ParseAction проверяет имя команды.
func ParseAction(s string) (Action, error) {
	a := Action(s)
	if _, ok := allowedFrom[a]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
	}
	return a, nil
}

// CanRunFrom проверяет правила конечного автомата
func (a Action) CanRunFrom(current DeploymentStatus) error {
	states, ok := allowedFrom[a]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAction, string(a))
	}
	for _, s := range states {
		if s == current {
			return nil
		}
	}
	return fmt.Errorf("%w: cannot %s honeypot in status %s", ErrConflict, a, current)
}

// Значения по умолчанию для ресурсов контейнера
const (
	DefaultCPU         = "1"
	DefaultMemory      = "512Mi"
	DefaultMaxSessions = 10
)

// ResourceLimits - типизированные лимиты вместо произвольного JSON.
// nil означает "не задано": при слиянии такие поля не трогают существующие значения.
type ResourceLimits struct {
	CPU         *string `json:"cpu,omitempty"`
	Memory      *string `json:"memory,omitempty"`
	MaxSessions *int    `json:"max_sessions,omitempty"`
}

// UnmarshalJSON принимает и старые ключи cpu_limit / memory_limit.
func (l *ResourceLimits) UnmarshalJSON(data []byte) error {
	var raw struct {
		CPU         *string `json:"cpu"`
		CPULimit    *string `json:"cpu_limit"`
		Memory      *string `json:"memory"`
		MemoryLimit *string `json:"memory_limit"`
		MaxSessions *int    `json:"max_sessions"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: resource limits: %v", ErrValidation, err)
	}
	l.CPU = firstNonNil(raw.CPU, raw.CPULimit)
	l.Memory = firstNonNil(raw.Memory, raw.MemoryLimit)
	l.MaxSessions = raw.MaxSessions
	return nil
}

func firstNonNil(vals ...*string) *string {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

// Validate проверяет, что заданные значения являются корректными k8s quantity.
func (l ResourceLimits) Validate() error {
	if l.CPU != nil {
		if err := positiveQuantity("cpu", *l.CPU); err != nil {
			return err
		}
	}
	if l.Memory != nil {
		if err := positiveQuantity("memory", *l.Memory); err != nil {
			return err
		}
	}
	if l.MaxSessions != nil && *l.MaxSessions <= 0 {
		return fmt.Errorf("%w: max_sessions must be positive, got %d", ErrValidation, *l.MaxSessions)
	}
	return nil
}

func positiveQuantity(field, v string) error {
	q, err := resource.ParseQuantity(v)
	if err != nil {
		return fmt.Errorf("%w: %s %q: %v", ErrValidation, field, v, err)
	}
	if q.Sign() <= 0 {
		return fmt.Errorf("%w: %s must be positive, got %q", ErrValidation, field, v)
	}
	return nil
}

// Merge - заданные в patch поля перекрывают текущие, остальные сохраняются.
func (l ResourceLimits) Merge(patch ResourceLimits) ResourceLimits {
	out := l.Clone()
	if patch.CPU != nil {
		v := *patch.CPU
		out.CPU = &v
	}
	if patch.Memory != nil {
		v := *patch.Memory
		out.Memory = &v
	}
	if patch.MaxSessions != nil {
		v := *patch.MaxSessions
		out.MaxSessions = &v
	}
	return out
}

// Clone - глубокая копия, чтобы снимки до/после не делили указатели.
func (l ResourceLimits) Clone() ResourceLimits {
	var out ResourceLimits
	if l.CPU != nil {
		v := *l.CPU
		out.CPU = &v
	}
	if l.Memory != nil {
		v := *l.Memory
		out.Memory = &v
	}
	if l.MaxSessions != nil {
		v := *l.MaxSessions
		out.MaxSessions = &v
	}
	return out
}

// Effective возвращает лимиты с подставленными значениями по умолчанию.
func (l ResourceLimits) Effective() ContainerResources {
	res := ContainerResources{CPU: DefaultCPU, Memory: DefaultMemory, MaxSessions: DefaultMaxSessions}
	if l.CPU != nil && *l.CPU != "" {
		res.CPU = *l.CPU
	}
	if l.Memory != nil && *l.Memory != "" {
		res.Memory = *l.Memory
	}
	if l.MaxSessions != nil && *l.MaxSessions > 0 {
		res.MaxSessions = *l.MaxSessions
	}
	return res
}

// HoneypotService - сервис-приманка. Меняется только оркестратором.
type HoneypotService struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Protocol         string            `json:"protocol"`
	Port             int               `json:"port"`
	InteractionLevel string            `json:"interaction_level"`
	ResourceLimits   ResourceLimits    `json:"resource_limits"`
	Status           DeploymentStatus  `json:"deployment_status"`
	ContainerID      *string           `json:"container_id"`
	Active           bool              `json:"is_active"`
	Configuration    map[string]string `json:"configuration"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// HoneypotPatch - поля, которые меняются вместе со статусом в одной CAS-операции.
// ClearContainer имеет приоритет над ContainerID.
type HoneypotPatch struct {
	ContainerID    *string
	ClearContainer bool
	Active         *bool
	ResourceLimits *ResourceLimits
}

// Apply применяет патч к копии сервиса (используется in-memory хранилищем).
func (p HoneypotPatch) Apply(h *HoneypotService) {
	if p.ClearContainer {
		h.ContainerID = nil
	} else if p.ContainerID != nil {
		v := *p.ContainerID
		h.ContainerID = &v
	}
	if p.Active != nil {
		h.Active = *p.Active
	}
	if p.ResourceLimits != nil {
		h.ResourceLimits = p.ResourceLimits.Clone()
	}
}
