package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/postline/postline/internal/models"
	"github.com/postline/postline/internal/repository"
)

type UserService interface {
	GetUserInfo(ctx context.Context, id int64) (*models.User, error)
	SetNotifyPreference(ctx context.Context, userID int64, notify bool) error
}

type userService struct {
	u repository.UserRepository
}

func NewUserService(u repository.UserRepository) UserService {
	return &userService{
		u: u,
	}
}

func (s *userService) GetUserInfo(ctx context.Context, id int64) (*models.User, error) {
	user, isExist, err := s.u.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("error getting user info")
	}

	if !isExist {
		err = errors.New("user not found")
		slog.Info(err.Error())
		return nil, fmt.Errorf("user doesn't exist")
	}

	return user, nil
}

func (s *userService) SetNotifyPreference(ctx context.Context, userID int64, notify bool) error {
	if err := s.u.UpdateNotifyPreference(ctx, userID, notify); err != nil {
		return fmt.Errorf("error updating notify preference")
	}
	return nil
}
