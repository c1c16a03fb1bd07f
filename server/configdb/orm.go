package configdb

import (
	"strings"

	"github.com/cyclopcam/dbh"
)

// BaseModel is our base class for a GORM model.
// The default GORM Model uses int, but we prefer int64
type BaseModel struct {
	ID int64 `gorm:"primaryKey" json:"id"`
}

// UserPermissions are single characters that are present in the user's Permissions field
type UserPermissions string

const (
	UserPermissionAdmin    UserPermissions = "a" // Manage users, system config, file store
	UserPermissionOperator UserPermissions = "o" // Run detections and view results
)

type User struct {
	BaseModel
	EmployeeID        string      `json:"employeeID"`
	FirstName         string      `json:"firstName"`
	LastName          string      `json:"lastName"`
	Email             string      `json:"email"`
	EmailNormalized   string      `json:"-"`
	MobileContact     string      `json:"mobileContact" gorm:"default:null"`
	Permissions       string      `json:"permissions"`
	Password          []byte      `json:"-" gorm:"default:null"`
	PasswordChangedAt dbh.IntTime `json:"passwordChangedAt" gorm:"default:null"`
}

type Session struct {
	CreatedAt dbh.IntTime
	Key       []byte
	UserID    int64
	ExpiresAt dbh.IntTime `gorm:"default:null"`
}

func IsValidPermission(p string) bool {
	return p == string(UserPermissionAdmin) || p == string(UserPermissionOperator)
}

// An admin implicitly holds every permission.
func (u *User) HasPermission(p UserPermissions) bool {
	if strings.Contains(u.Permissions, string(UserPermissionAdmin)) {
		return true
	}
	return strings.Contains(u.Permissions, string(p))
}

func (u *User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Email
	}
	return name
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
