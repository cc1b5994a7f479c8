package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/model"
	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/repository"
)

// Directory создаёт профили пользователей и определяет их роли.
type Directory struct {
	src      repository.Source
	profiles *repository.Table[model.Profile]
	roles    *repository.Table[model.UserRole]
	logger   *zap.Logger
}

// NewDirectory создаёт справочник пользователей поверх источника данных.
func NewDirectory(src repository.Source, logger *zap.Logger) *Directory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Directory{
		src:      src,
		profiles: repository.NewTable[model.Profile](src, repository.TableProfiles, logger),
		roles:    repository.NewTable[model.UserRole](src, repository.TableUserRoles, logger),
		logger:   logger,
	}
}

// EnsureProfile создаёт профиль пользователя, если его ещё нет.
// Профиль, созданный параллельно другим запросом, считается успехом.
func (d *Directory) EnsureProfile(ctx context.Context, user model.AuthenticatedUser) error {
	_, err := d.profiles.Get(ctx, user.ID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("get profile: %w", err)
	}

	_, err = d.profiles.Create(ctx, &model.Profile{
		ID:       user.ID,
		Email:    user.Email,
		FullName: user.FullName(),
	})
	if err != nil && !errors.Is(err, repository.ErrDuplicate) {
		return fmt.Errorf("create profile: %w", err)
	}
	return nil
}

// UpdateFullName изменяет имя в профиле пользователя.
func (d *Directory) UpdateFullName(ctx context.Context, userID, fullName string) error {
	if _, err := d.profiles.Update(ctx, userID, map[string]string{"full_name": fullName}); err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

// ResolveRole определяет роль пользователя удалённой процедурой get_user_role,
// затем по записи в user_roles. Без записи о роли возвращается роль client.
// При ошибке обоих способов возвращается client вместе с ошибкой.
func (d *Directory) ResolveRole(ctx context.Context, userID string) (model.Role, error) {
	role, rpcErr := d.roleFromFunction(ctx, userID)
	if rpcErr == nil && role != "" {
		return role, nil
	}
	if rpcErr != nil {
		d.logger.Debug("role function failed, reading user_roles", zap.String("user_id", userID), zap.Error(rpcErr))
	}

	row, err := d.roles.Find(ctx, repository.Query{}.
		Where(repository.Eq("user_id", userID)).
		OrderBy("created_at", true))
	switch {
	case err == nil:
		return row.Role, nil
	case errors.Is(err, repository.ErrNotFound) && rpcErr == nil:
		return model.DefaultRole, nil
	case errors.Is(err, repository.ErrNotFound):
		return model.DefaultRole, rpcErr
	default:
		return model.DefaultRole, errors.Join(rpcErr, err)
	}
}

func (d *Directory) roleFromFunction(ctx context.Context, userID string) (model.Role, error) {
	raw, err := d.src.Call(ctx, repository.FunctionGetUserRole, map[string]any{
		repository.ArgGetUserRoleUserID: userID,
	})
	if err != nil {
		return "", err
	}

	var value *string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", fmt.Errorf("decode role: %w", err)
	}
	if value == nil {
		return "", nil
	}
	return model.ParseRole(*value)
}
