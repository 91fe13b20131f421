package service

import (
	"context"
	"testing"

	"github.com/postline/postline/internal/models"
	"github.com/postline/postline/internal/transfer"
)

func newTestSourceService(sr *fakeSourceRepo) SourceService {
	ur := &fakeUserRepo{users: map[int64]*models.User{
		1: {ID: 1, CurrentProjectID: 10},
	}}
	return NewSourceService(sr, ur)
}

func TestAddSource(t *testing.T) {
	sr := newFakeSourceRepo()
	svc := newTestSourceService(sr)

	id, err := svc.Add(context.Background(), 1, &transfer.SourceCreation{
		Name:      "blog",
		URL:       "https://blog.example/rss",
		PublishTg: true,
		TgChatID:  "@chan",
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	source, _ := sr.GetByID(context.Background(), id)
	if source == nil {
		t.Fatal("source not stored")
	}
	if source.ProjectID != 10 {
		t.Errorf("project_id = %d, want 10", source.ProjectID)
	}
	if !source.Active {
		t.Error("new source not active")
	}
	if source.LastGUID != "" {
		t.Errorf("cursor = %q, want empty on a new source", source.LastGUID)
	}
}

func TestAddSourceValidation(t *testing.T) {
	svc := newTestSourceService(newFakeSourceRepo())

	tests := []struct {
		name string
		sc   *transfer.SourceCreation
	}{
		{"empty name", &transfer.SourceCreation{URL: "https://blog.example/rss", PublishTg: true}},
		{"no scheme", &transfer.SourceCreation{Name: "blog", URL: "blog.example/rss", PublishTg: true}},
		{"no platforms", &transfer.SourceCreation{Name: "blog", URL: "https://blog.example/rss"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Add(context.Background(), 1, tt.sc); err == nil {
				t.Error("Add succeeded, want error")
			}
		})
	}
}

func TestRemoveSourceForeignUser(t *testing.T) {
	sr := newFakeSourceRepo(&models.RssSource{ID: 5, UserID: 2})
	svc := newTestSourceService(sr)

	if err := svc.Remove(context.Background(), 1, 5); err == nil {
		t.Error("Remove by non-owner succeeded, want error")
	}
	if err := svc.Remove(context.Background(), 2, 5); err != nil {
		t.Errorf("Remove by owner: %v", err)
	}
}
