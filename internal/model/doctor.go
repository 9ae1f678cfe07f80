package model

import "time"

type Doctor struct {
	ID        string
	UserID    string
	Name      string
	Specialty string
	Degrees   string
	Bio       string
	CreatedAt time.Time
}
