package models

import "time"

type User struct {
	ID               int64     `db:"id" json:"id"`
	Email            string    `db:"email" json:"email"`
	Name             string    `db:"name" json:"name"`
	CurrentProjectID int64     `db:"current_project_id" json:"current_project_id"`
	NotifyOnPublish  bool      `db:"notify_on_publish" json:"notify_on_publish"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}
