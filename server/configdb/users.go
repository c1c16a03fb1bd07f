package configdb

import (
	"fmt"
	"strings"
	"time"

	"github.com/cyclopcam/dbh"
	"github.com/fillsight/fillsight/pkg/pwdhash"
)

// CreateUser validates and inserts a new user, hashing the given password.
func (c *ConfigDB) CreateUser(user *User, password string) error {
	user.ID = 0
	user.Email = strings.TrimSpace(user.Email)
	user.EmailNormalized = NormalizeEmail(user.Email)
	user.EmployeeID = strings.TrimSpace(user.EmployeeID)
	if user.Email == "" {
		return fmt.Errorf("Email must be set")
	}
	if user.EmployeeID == "" {
		return fmt.Errorf("Employee ID must be set")
	}
	if password == "" {
		return fmt.Errorf("Password must be set")
	}
	for _, p := range user.Permissions {
		if !IsValidPermission(string(p)) {
			return fmt.Errorf("Invalid permission '%v'", string(p))
		}
	}
	user.Password = pwdhash.HashPassword(password)
	user.PasswordChangedAt = dbh.MakeIntTime(time.Now())
	return c.DB.Create(user).Error
}

func (c *ConfigDB) GetUserFromID(id int64) (*User, error) {
	user := User{}
	if err := c.DB.Find(&user, id).Error; err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, fmt.Errorf("User %v not found", id)
	}
	return &user, nil
}

func (c *ConfigDB) ListUsers() ([]User, error) {
	users := []User{}
	if err := c.DB.Order("id").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// DeleteUser removes the user and all of their sessions.
func (c *ConfigDB) DeleteUser(id int64) error {
	if err := c.DB.Where("user_id = ?", id).Delete(&Session{}).Error; err != nil {
		return err
	}
	return c.DB.Delete(&User{}, id).Error
}
