package model

import "time"

type User struct {
	ID                int
	Email             string
	PasswordHash      string
	Role              string
	GmailRefreshToken string
	CreatedAt         time.Time
}
