package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/studytips-bot/internal/logger"
	"github.com/ignatzorin/studytips-bot/internal/models"
	"github.com/ignatzorin/studytips-bot/internal/pkg/apperror"
)

// UserService регистрирует пользователей Telegram и управляет ролями.
type UserService struct {
	repo   UserRepository
	tokens *TokenManager
	log    *logrus.Entry
}

func NewUserService(repo UserRepository, tokens *TokenManager) *UserService {
	return &UserService{
		repo:   repo,
		tokens: tokens,
		log:    logger.WithComponent("user_service"),
	}
}

// EnsureUser создаёт пользователя при первом обращении и обновляет имя при следующих.
func (s *UserService) EnsureUser(ctx context.Context, u *models.User) (*models.User, error) {
	stored, err := s.repo.UpsertOnFirstContact(ctx, u)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось сохранить пользователя")
	}
	return stored, nil
}

func (s *UserService) GetUser(ctx context.Context, id int64) (*models.User, error) {
	return s.repo.GetByID(ctx, id)
}

// IsAdmin сообщает, что у пользователя роль admin. Ошибки хранилища считаются отказом.
func (s *UserService) IsAdmin(ctx context.Context, id int64) bool {
	u, err := s.repo.GetByID(ctx, id)
	return err == nil && u.Role == models.RoleAdmin
}

// SetRole назначает роль от имени администратора.
func (s *UserService) SetRole(ctx context.Context, actorID, targetID int64, role models.Role) error {
	if !s.IsAdmin(ctx, actorID) {
		return apperror.ErrForbidden
	}
	if _, err := models.ParseRole(string(role)); err != nil {
		return apperror.Newf(apperror.ErrCodeValidation, "неизвестная роль %q", role)
	}

	ok, err := s.repo.SetRole(ctx, targetID, role)
	if err != nil {
		return apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось изменить роль")
	}
	if !ok {
		return apperror.ErrUserNotFound
	}

	s.log.WithFields(logrus.Fields{
		"actor_id":  actorID,
		"target_id": targetID,
		"role":      role,
	}).Info("role changed")
	return nil
}

// BootstrapAdmins выдаёт роль admin пользователям из конфигурации.
// Пользователь создаётся, если ещё не писал боту.
func (s *UserService) BootstrapAdmins(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		if _, err := s.repo.UpsertOnFirstContact(ctx, &models.User{ID: id, Role: models.RoleAdmin}); err != nil {
			return apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось создать администратора")
		}
		if _, err := s.repo.SetRole(ctx, id, models.RoleAdmin); err != nil {
			return apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось назначить администратора")
		}
	}
	if len(ids) > 0 {
		s.log.WithField("count", len(ids)).Info("admins bootstrapped")
	}
	return nil
}

// IssueAdminToken выпускает токен административного API.
func (s *UserService) IssueAdminToken(ctx context.Context, userID int64) (*AccessToken, error) {
	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.Role != models.RoleAdmin {
		return nil, apperror.ErrForbidden
	}
	return s.tokens.Issue(u)
}

// Authenticate проверяет токен и возвращает актуального пользователя.
// Роль берётся из хранилища, чтобы снятие прав действовало сразу.
func (s *UserService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	userID, _, err := s.tokens.ParseAccess(token)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeUnauthorized, "недействительный токен")
	}
	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.ErrUnauthorized
		}
		return nil, err
	}
	return u, nil
}
