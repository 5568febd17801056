// Package orchestrator - конечный автомат жизненного цикла ханипотов:
// deploy, stop, restart и scale с записями развертываний и журналом действий.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/deception-core/internal/audit"
	"github.com/xela07ax/deception-core/internal/domain"
	"go.uber.org/zap"
)

// Store - то, что оркестратору нужно от хранилища.
type Store interface {
	GetHoneypot(ctx context.Context, id string) (domain.HoneypotService, error)
	// TransitionHoneypot применяет переход только если текущий статус равен from,
	// иначе ErrConflict.
	TransitionHoneypot(ctx context.Context, id string, from, to domain.DeploymentStatus, patch *domain.HoneypotPatch) (domain.HoneypotService, error)
	// InsertDeploymentRecord отклоняет вторую открытую запись с ErrConflict.
	InsertDeploymentRecord(ctx context.Context, rec domain.DeploymentRecord) error
	// CloseDeploymentRecord закрывает открытую запись; ErrNotFound если открытой нет.
	CloseDeploymentRecord(ctx context.Context, honeypotID string, at time.Time, health domain.HealthStatus) (domain.DeploymentRecord, error)
}

// CommandConfig - необязательная часть команды. Для scale обязательны resource_limits.
type CommandConfig struct {
	ResourceLimits *domain.ResourceLimits `json:"resource_limits,omitempty"`
}

type Command struct {
	HoneypotID string         `json:"honeypot_id"`
	Action     string         `json:"action"`
	Config     *CommandConfig `json:"config,omitempty"`
}

type Result struct {
	Success      bool                   `json:"success"`
	Message      string                 `json:"message,omitempty"`
	ContainerID  string                 `json:"container_id,omitempty"`
	DeploymentID string                 `json:"deployment_id,omitempty"`
	NewLimits    *domain.ResourceLimits `json:"new_limits,omitempty"`
}

type Config struct {
	// Пауза между фазами restart
	RestartDelay time.Duration
	// Таймаут одного обращения к хранилищу
	StoreTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = 5 * time.Second
	}
	if c.RestartDelay < 0 {
		c.RestartDelay = 0
	}
	return c
}

// Худший случай обращений к хранилищу за одну команду: restart из running
// (get, stop x3, get, deploy x3) и откат неудачной активации (close, rollback, error).
const maxStoreCallsPerCommand = 11

// LeaseTTL - срок аренды блокировки, который переживает самую длинную команду.
// Заданный в конфигурации TTL только увеличивает его.
func LeaseTTL(cfg Config, configured time.Duration) time.Duration {
	cfg = cfg.withDefaults()
	worst := time.Duration(maxStoreCallsPerCommand)*cfg.StoreTimeout + cfg.RestartDelay
	if configured > worst {
		return configured
	}
	return worst
}

type Orchestrator struct {
	store   Store
	locker  Locker
	trail   audit.Logger
	metrics *Metrics
	cfg     Config
	logger  *zap.Logger

	now            func() time.Time
	newContainerID func(honeypotID string) string
}

func New(store Store, locker Locker, trail audit.Logger, metrics *Metrics, cfg Config, logger *zap.Logger) *Orchestrator {
	if locker == nil {
		locker = NewKeyedLocker()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	cfg = cfg.withDefaults()
	return &Orchestrator{
		store:          store,
		locker:         locker,
		trail:          trail,
		metrics:        metrics,
		cfg:            cfg,
		logger:         logger.Named("orchestrator"),
		now:            time.Now,
		newContainerID: NewContainerID,
	}
}

// Execute разбирает команду и выполняет соответствующий переход.
func (o *Orchestrator) Execute(ctx context.Context, cmd Command) (Result, error) {
	action, err := domain.ParseAction(cmd.Action)
	if err != nil {
		o.observe(cmd.Action, time.Now(), err)
		return Result{}, err
	}
	if cmd.HoneypotID == "" {
		err := fmt.Errorf("%w: honeypot_id is required", domain.ErrValidation)
		o.observe(cmd.Action, time.Now(), err)
		return Result{}, err
	}

	switch action {
	case domain.ActionDeploy:
		return o.Deploy(ctx, cmd.HoneypotID)
	case domain.ActionStop:
		return o.Stop(ctx, cmd.HoneypotID)
	case domain.ActionRestart:
		return o.Restart(ctx, cmd.HoneypotID)
	default:
		var limits *domain.ResourceLimits
		if cmd.Config != nil {
			limits = cmd.Config.ResourceLimits
		}
		return o.Scale(ctx, cmd.HoneypotID, limits)
	}
}

func (o *Orchestrator) Deploy(ctx context.Context, id string) (res Result, err error) {
	defer func(start time.Time) { o.observe(string(domain.ActionDeploy), start, err) }(time.Now())

	err = o.withHoneypot(ctx, id, func(ctx context.Context, h domain.HoneypotService) error {
		if err := domain.ActionDeploy.CanRunFrom(h.Status); err != nil {
			return err
		}
		deployed, err := o.deploy(ctx, h)
		if err != nil {
			return err
		}
		res = deployed
		return nil
	})
	return res, err
}

func (o *Orchestrator) Stop(ctx context.Context, id string) (res Result, err error) {
	defer func(start time.Time) { o.observe(string(domain.ActionStop), start, err) }(time.Now())

	err = o.withHoneypot(ctx, id, func(ctx context.Context, h domain.HoneypotService) error {
		if err := domain.ActionStop.CanRunFrom(h.Status); err != nil {
			return err
		}
		stopped, err := o.stop(ctx, h)
		if err != nil {
			return err
		}
		res = stopped
		return nil
	})
	return res, err
}

// Restart - две независимо зафиксированные фазы: stop, пауза, deploy.
// Если deploy не удался или ctx отменен между фазами, ханипот остается в stopped.
func (o *Orchestrator) Restart(ctx context.Context, id string) (res Result, err error) {
	defer func(start time.Time) { o.observe(string(domain.ActionRestart), start, err) }(time.Now())

	err = o.withHoneypot(ctx, id, func(opCtx context.Context, h domain.HoneypotService) error {
		if err := domain.ActionRestart.CanRunFrom(h.Status); err != nil {
			return err
		}

		if h.Status == domain.StatusRunning {
			if _, err := o.stop(opCtx, h); err != nil {
				return fmt.Errorf("restart: stop phase: %w", err)
			}

			if err := o.pause(ctx); err != nil {
				o.logger.Warn("restart interrupted between phases, honeypot left stopped",
					zap.String("honeypot_id", id), zap.Error(err))
				return fmt.Errorf("restart interrupted after stop: %w", err)
			}

			stopped, err := o.get(opCtx, id)
			if err != nil {
				return err
			}
			h = stopped
		}

		deployed, err := o.deploy(opCtx, h)
		if err != nil {
			return fmt.Errorf("restart: deploy phase: %w", err)
		}
		deployed.Message = "Honeypot restarted successfully"
		res = deployed
		return nil
	})
	return res, err
}

// Scale сливает переданные лимиты с текущими. Контейнер не перезапускается,
// новая запись развертывания не создается.
func (o *Orchestrator) Scale(ctx context.Context, id string, patch *domain.ResourceLimits) (res Result, err error) {
	defer func(start time.Time) { o.observe(string(domain.ActionScale), start, err) }(time.Now())

	if patch == nil {
		err = fmt.Errorf("%w: config.resource_limits is required for scale", domain.ErrValidation)
		return Result{}, err
	}
	if err = patch.Validate(); err != nil {
		return Result{}, err
	}

	err = o.withHoneypot(ctx, id, func(ctx context.Context, h domain.HoneypotService) error {
		if err := domain.ActionScale.CanRunFrom(h.Status); err != nil {
			return err
		}

		oldLimits := h.ResourceLimits.Clone()
		newLimits := oldLimits.Merge(*patch)
		if err := newLimits.Validate(); err != nil {
			return err
		}

		if _, err := o.transition(ctx, id, domain.StatusRunning, domain.StatusScaling, nil); err != nil {
			return err
		}
		if _, err := o.transition(ctx, id, domain.StatusScaling, domain.StatusRunning,
			&domain.HoneypotPatch{ResourceLimits: &newLimits}); err != nil {
			// Лимиты не применились: возвращаем running со старыми лимитами
			o.rollback(ctx, domain.ActionScale, id, domain.StatusScaling, domain.StatusRunning)
			return fmt.Errorf("apply limits: %w", err)
		}

		o.logActivity(ctx, domain.ActivityHoneypotScaled, id, map[string]any{
			"honeypot_name": h.Name,
			"old_limits":    oldLimits,
			"new_limits":    newLimits,
		})

		res = Result{Success: true, Message: "Honeypot scaled successfully", NewLimits: &newLimits}
		return nil
	})
	return res, err
}

// deploy: stopped/error -> starting -> running. Вызывается под блокировкой.
func (o *Orchestrator) deploy(ctx context.Context, h domain.HoneypotService) (Result, error) {
	from := h.Status

	// После сбоя могла остаться незакрытая запись, закрываем до открытия новой
	if from == domain.StatusError {
		if _, err := o.closeRecord(ctx, h.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return Result{}, fmt.Errorf("close dangling deployment: %w", err)
		}
	}

	if _, err := o.transition(ctx, h.ID, from, domain.StatusStarting, nil); err != nil {
		return Result{}, err
	}

	cfg := BuildContainerConfig(h)
	containerID := o.newContainerID(h.ID)
	rec := domain.DeploymentRecord{
		ID:             uuid.NewString(),
		HoneypotID:     h.ID,
		DeploymentType: domain.DeploymentTypeContainer,
		ContainerID:    containerID,
		ContainerImage: cfg.Image,
		Config:         cfg,
		Health:         domain.HealthHealthy,
		DeployedAt:     o.now().UTC(),
	}

	sCtx, cancel := context.WithTimeout(ctx, o.cfg.StoreTimeout)
	err := o.store.InsertDeploymentRecord(sCtx, rec)
	cancel()
	if err != nil {
		// Ничего не запущено: откатываем статус к исходному
		o.rollback(ctx, domain.ActionDeploy, h.ID, domain.StatusStarting, from)
		return Result{}, fmt.Errorf("insert deployment record: %w", err)
	}

	active := true
	if _, err := o.transition(ctx, h.ID, domain.StatusStarting, domain.StatusRunning,
		&domain.HoneypotPatch{ContainerID: &containerID, Active: &active}); err != nil {
		// Контейнер так и не заработал: закрываем только что открытую запись и
		// возвращаем исходный статус. error - только если откат не удался
		if _, cerr := o.closeRecord(ctx, h.ID); cerr != nil {
			o.logger.Error("failed to close deployment record after activation failure",
				zap.String("honeypot_id", h.ID), zap.String("deployment_id", rec.ID), zap.Error(cerr))
		}
		o.rollback(ctx, domain.ActionDeploy, h.ID, domain.StatusStarting, from)
		return Result{}, fmt.Errorf("activate honeypot: %w", err)
	}

	o.logActivity(ctx, domain.ActivityHoneypotDeployed, h.ID, map[string]any{
		"honeypot_name": h.Name,
		"protocol":      h.Protocol,
		"port":          h.Port,
		"container_id":  containerID,
		"deployment_id": rec.ID,
		"image":         cfg.Image,
	})

	o.logger.Info("honeypot deployed",
		zap.String("honeypot_id", h.ID),
		zap.String("container_id", containerID),
		zap.String("image", cfg.Image),
	)

	return Result{
		Success:      true,
		Message:      "Honeypot deployed successfully",
		ContainerID:  containerID,
		DeploymentID: rec.ID,
	}, nil
}

// stop: running/starting -> stopping -> stopped. Вызывается под блокировкой.
func (o *Orchestrator) stop(ctx context.Context, h domain.HoneypotService) (Result, error) {
	if _, err := o.transition(ctx, h.ID, h.Status, domain.StatusStopping, nil); err != nil {
		return Result{}, err
	}

	if _, err := o.closeRecord(ctx, h.ID); err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			o.markError(ctx, domain.ActionStop, h.ID, domain.StatusStopping)
			return Result{}, fmt.Errorf("close deployment record: %w", err)
		}
		o.logger.Warn("no open deployment record on stop", zap.String("honeypot_id", h.ID))
	}

	inactive := false
	if _, err := o.transition(ctx, h.ID, domain.StatusStopping, domain.StatusStopped,
		&domain.HoneypotPatch{ClearContainer: true, Active: &inactive}); err != nil {
		o.markError(ctx, domain.ActionStop, h.ID, domain.StatusStopping)
		return Result{}, fmt.Errorf("deactivate honeypot: %w", err)
	}

	var containerID any
	if h.ContainerID != nil {
		containerID = *h.ContainerID
	}
	o.logActivity(ctx, domain.ActivityHoneypotStopped, h.ID, map[string]any{
		"honeypot_name": h.Name,
		"container_id":  containerID,
	})

	o.logger.Info("honeypot stopped", zap.String("honeypot_id", h.ID))
	return Result{Success: true, Message: "Honeypot stopped successfully"}, nil
}

// withHoneypot берет эксклюзивную блокировку ханипота и загружает его состояние.
// Сам переход выполняется на контексте без отмены: начатый переход доводится
// до устойчивого статуса, обращения к хранилищу ограничены StoreTimeout.
func (o *Orchestrator) withHoneypot(ctx context.Context, id string, fn func(ctx context.Context, h domain.HoneypotService) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	release, err := o.locker.TryLock(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	opCtx := context.WithoutCancel(ctx)
	h, err := o.get(opCtx, id)
	if err != nil {
		return err
	}
	return fn(opCtx, h)
}

func (o *Orchestrator) get(ctx context.Context, id string) (domain.HoneypotService, error) {
	sCtx, cancel := context.WithTimeout(ctx, o.cfg.StoreTimeout)
	defer cancel()
	return o.store.GetHoneypot(sCtx, id)
}

func (o *Orchestrator) transition(ctx context.Context, id string, from, to domain.DeploymentStatus, patch *domain.HoneypotPatch) (domain.HoneypotService, error) {
	sCtx, cancel := context.WithTimeout(ctx, o.cfg.StoreTimeout)
	defer cancel()
	return o.store.TransitionHoneypot(sCtx, id, from, to, patch)
}

func (o *Orchestrator) closeRecord(ctx context.Context, id string) (domain.DeploymentRecord, error) {
	sCtx, cancel := context.WithTimeout(ctx, o.cfg.StoreTimeout)
	defer cancel()
	return o.store.CloseDeploymentRecord(sCtx, id, o.now().UTC(), domain.HealthUnhealthy)
}

// rollback возвращает ханипот из промежуточного статуса в устойчивый; если не вышло - в error.
func (o *Orchestrator) rollback(ctx context.Context, action domain.Action, id string, from, to domain.DeploymentStatus) {
	if _, err := o.transition(ctx, id, from, to, nil); err != nil {
		o.logger.Error("rollback failed",
			zap.String("honeypot_id", id),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
			zap.Error(err),
		)
		o.markError(ctx, action, id, from)
	}
}

func (o *Orchestrator) markError(ctx context.Context, action domain.Action, id string, from domain.DeploymentStatus) {
	o.metrics.Failures.WithLabelValues(string(action)).Inc()
	if _, err := o.transition(ctx, id, from, domain.StatusError, nil); err != nil {
		o.logger.Error("failed to mark honeypot as error",
			zap.String("honeypot_id", id), zap.String("from", string(from)), zap.Error(err))
	}
}

// pause - задержка между фазами restart, прерываемая отменой ctx.
func (o *Orchestrator) pause(ctx context.Context) error {
	if o.cfg.RestartDelay == 0 {
		return ctx.Err()
	}
	t := time.NewTimer(o.cfg.RestartDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (o *Orchestrator) logActivity(ctx context.Context, action, id string, details map[string]any) {
	if o.trail == nil {
		return
	}
	o.trail.Log(domain.ActivityLogEntry{
		ActorID:      ActorFromContext(ctx),
		Action:       action,
		ResourceType: domain.ResourceHoneypotServices,
		ResourceID:   id,
		Details:      details,
		Timestamp:    o.now().UTC(),
	})
}

func (o *Orchestrator) observe(action string, start time.Time, err error) {
	o.metrics.Commands.WithLabelValues(action, outcome(err)).Inc()
	o.metrics.CommandDuration.WithLabelValues(action).Observe(time.Since(start).Seconds())
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrUnknownAction):
		return "invalid"
	default:
		return "error"
	}
}

type actorKey struct{}

// WithActor кладет в контекст идентификатор оператора для журнала действий.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func ActorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(actorKey{}).(string)
	return actor
}
