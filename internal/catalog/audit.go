package catalog

import (
	"context"

	"go.uber.org/zap"

	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/model"
	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/repository"
)

type actorKey struct{}

// WithActor сохраняет в контексте идентификатор пользователя, выполняющего операцию.
func WithActor(ctx context.Context, userID string) context.Context {
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, actorKey{}, userID)
}

// ActorFrom извлекает идентификатор пользователя из контекста.
func ActorFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(actorKey{}).(string)
	return id, ok && id != ""
}

// Audit записывает действия в системный журнал. Ошибки записи только
// логируются и не влияют на результат операции.
type Audit struct {
	logs   *repository.Table[model.SystemLog]
	logger *zap.Logger
}

// NewAudit создаёт журнал аудита.
func NewAudit(src repository.Source, logger *zap.Logger) *Audit {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Audit{
		logs:   repository.NewTable[model.SystemLog](src, repository.TableSystemLogs, logger),
		logger: logger,
	}
}

// Info записывает информационное событие.
func (a *Audit) Info(ctx context.Context, action, message string, details map[string]any) {
	a.Record(ctx, model.LogInfo, action, message, details)
}

// Warning записывает предупреждение.
func (a *Audit) Warning(ctx context.Context, action, message string, details map[string]any) {
	a.Record(ctx, model.LogWarning, action, message, details)
}

// Record добавляет строку в system_logs.
func (a *Audit) Record(ctx context.Context, level model.LogLevel, action, message string, details map[string]any) {
	if a == nil {
		return
	}

	entry := &model.SystemLog{
		Level:   level,
		Action:  action,
		Message: message,
		Details: details,
	}
	if id, ok := ActorFrom(ctx); ok {
		entry.UserID = &id
	}

	if _, err := a.logs.Create(ctx, entry); err != nil {
		a.logger.Warn("write audit log",
			zap.String("action", action),
			zap.Error(err),
		)
	}
}
