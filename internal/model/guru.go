package model

import "time"

// Guru represents a teacher account that authors exams and answer keys.
type Guru struct {
	ID           int       `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// GuruLoginRequest is the payload for guru authentication.
type GuruLoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6,max=128"`
}

// GuruLoginResponse is returned after successful guru login.
type GuruLoginResponse struct {
	Token string `json:"token"`
	Guru  Guru   `json:"guru"`
}
