package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/postline/postline/internal/models"
	"github.com/postline/postline/internal/repository"
	"github.com/postline/postline/internal/transfer"
)

type SourceService interface {
	Add(ctx context.Context, userID int64, sc *transfer.SourceCreation) (int64, error)
	List(ctx context.Context, userID int64) ([]*models.RssSource, error)
	Remove(ctx context.Context, userID, sourceID int64) error
}

type sourceService struct {
	sr repository.RssSourceRepository
	ur repository.UserRepository
}

func NewSourceService(sr repository.RssSourceRepository, ur repository.UserRepository) SourceService {
	return &sourceService{sr: sr, ur: ur}
}

func (s *sourceService) Add(ctx context.Context, userID int64, sc *transfer.SourceCreation) (int64, error) {
	if sc == nil {
		err := errors.New("source creation data is nil")
		slog.Error(err.Error())
		return 0, err
	}
	if strings.TrimSpace(sc.Name) == "" {
		err := errors.New("source name cannot be empty")
		slog.Info(err.Error())
		return 0, err
	}
	if u, err := url.Parse(sc.URL); err != nil || u.Scheme == "" || u.Host == "" {
		err = fmt.Errorf("invalid feed url %q", sc.URL)
		slog.Info(err.Error())
		return 0, err
	}
	if !sc.PublishTg && !sc.PublishVk && !sc.PublishOk && !sc.PublishIg && !sc.PublishMax {
		err := errors.New("no platforms selected")
		slog.Info(err.Error())
		return 0, err
	}

	user, found, err := s.ur.GetByID(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("load user %d: %w", userID, err)
	}
	if !found {
		return 0, errors.New("user does not exist")
	}

	source := models.RssSource{
		ProjectID:  user.CurrentProjectID,
		UserID:     userID,
		Name:       sc.Name,
		URL:        sc.URL,
		Active:     true,
		PublishTg:  sc.PublishTg,
		PublishVk:  sc.PublishVk,
		PublishOk:  sc.PublishOk,
		PublishIg:  sc.PublishIg,
		PublishMax: sc.PublishMax,
		TgChatID:   sc.TgChatID,
		VkGroupID:  sc.VkGroupID,
		OkGroupID:  sc.OkGroupID,
		MaxChatID:  sc.MaxChatID,
	}

	id, err := s.sr.Create(ctx, &source)
	if err != nil {
		return 0, fmt.Errorf("error creating source: %w", err)
	}

	return id, nil
}

func (s *sourceService) List(ctx context.Context, userID int64) ([]*models.RssSource, error) {
	sources, err := s.sr.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing sources")
	}
	return sources, nil
}

func (s *sourceService) Remove(ctx context.Context, userID, sourceID int64) error {
	if sourceID == 0 {
		err := errors.New("source id is not valid")
		slog.Info(err.Error())
		return err
	}

	isValid, err := s.sr.CheckByUserID(ctx, sourceID, userID)
	if err != nil {
		return err
	}
	if !isValid {
		err = errors.New("source doesn't exist")
		slog.Info(err.Error())
		return err
	}

	if err := s.sr.Remove(ctx, sourceID); err != nil {
		return fmt.Errorf("error removing source")
	}

	return nil
}
