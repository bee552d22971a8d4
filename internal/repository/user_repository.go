package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/studytips-bot/internal/models"
	"github.com/ignatzorin/studytips-bot/internal/pkg/apperror"
	"github.com/ignatzorin/studytips-bot/internal/repository/common"
)

// UserRepository отвечает за таблицу users.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository создаёт экземпляр репозитория.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// UpsertOnFirstContact создаёт пользователя при первом обращении к боту.
// Для существующего пользователя обновляются только имя и username, роль не трогаем.
func (r *UserRepository) UpsertOnFirstContact(ctx context.Context, user *models.User) (*models.User, error) {
	role := user.Role
	if role == "" {
		role = models.RoleCustomer
	}

	query := `
		INSERT INTO users (id, username, first_name, last_name, role)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name
		RETURNING *
	`

	var stored models.User
	if err := r.db.GetContext(ctx, &stored, query,
		user.ID, user.Username, user.FirstName, user.LastName, role,
	); err != nil {
		return nil, fmt.Errorf("user repository: upsert %w", err)
	}

	return &stored, nil
}

// GetByID возвращает пользователя по telegram id.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	return common.GetByID[models.User](ctx, r.db, "users", id, apperror.ErrUserNotFound)
}

// SetRole меняет роль. false, если пользователя нет.
func (r *UserRepository) SetRole(ctx context.Context, id int64, role models.Role) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET role = $2 WHERE id = $1`, id, role)
	if err != nil {
		return false, fmt.Errorf("user repository: set role %w", err)
	}
	return rowsAffected(res)
}

// ListByRole возвращает всех пользователей с ролью.
func (r *UserRepository) ListByRole(ctx context.Context, role models.Role) ([]models.User, error) {
	var users []models.User
	if err := r.db.SelectContext(ctx, &users,
		`SELECT * FROM users WHERE role = $1 ORDER BY id`, role,
	); err != nil {
		return nil, fmt.Errorf("user repository: list by role %w", err)
	}
	return users, nil
}
