package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Admin roles.
const (
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
)

// Admin is an operator account for the dashboard.
type Admin struct {
	ID           string     `bson:"_id" json:"id"`
	Username     string     `bson:"username" json:"username"`
	PasswordHash string     `bson:"passwordHash" json:"-"`
	Email        string     `bson:"email,omitempty" json:"email,omitempty"`
	Role         string     `bson:"role" json:"role"`
	IsActive     bool       `bson:"isActive" json:"isActive"`
	LastLogin    *time.Time `bson:"lastLogin,omitempty" json:"lastLogin,omitempty"`
	CreatedAt    time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time  `bson:"updatedAt" json:"updatedAt"`
}

// RecordID implements store.Record.
func (a *Admin) RecordID() string { return a.ID }

// SetRecordID implements store.Record.
func (a *Admin) SetRecordID(id string) { a.ID = id }

// StampUpdated implements store.Record.
func (a *Admin) StampUpdated(t time.Time) { a.UpdatedAt = t }

// AdminSession is a server-side session record keyed by its bearer token,
// kept so tokens can be revoked before their JWT expiry.
type AdminSession struct {
	ID        string    `bson:"_id" json:"id"`
	AdminID   string    `bson:"adminId" json:"adminId"`
	Token     string    `bson:"token" json:"token"`
	ExpiresAt time.Time `bson:"expiresAt" json:"expiresAt"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

// RecordID implements store.Record.
func (s *AdminSession) RecordID() string { return s.ID }

// SetRecordID implements store.Record.
func (s *AdminSession) SetRecordID(id string) { s.ID = id }

// StampUpdated implements store.Record.
func (s *AdminSession) StampUpdated(t time.Time) {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = t
	}
}

// JWTClaims is the access token payload.
type JWTClaims struct {
	AdminID  string `json:"adminId"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// AdminInfo is the public projection of an Admin returned by auth endpoints.
type AdminInfo struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role"`
}

// LoginResponse is returned by a successful login.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	Admin     AdminInfo `json:"admin"`
}
