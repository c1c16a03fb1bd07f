package configdb

import (
	"net/http"
	"time"

	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/www"
	"github.com/fillsight/fillsight/pkg/pwdhash"
)

const SessionCookie = "session"

// How long a session lives if the client doesn't ask for anything else.
const DefaultSessionDuration = 30 * 24 * time.Hour

// VerifyCredentials returns the user if the email/password pair is valid, or nil.
// This is the only place where passwords are compared.
func (c *ConfigDB) VerifyCredentials(email, password string) *User {
	user := User{}
	c.DB.Where("email_normalized = ?", NormalizeEmail(email)).Find(&user)
	if user.ID == 0 {
		return nil
	}
	if !pwdhash.VerifyHash(password, user.Password) {
		return nil
	}
	return &user
}

// Login verifies BasicAuth credentials and, on success, creates a session and
// sends the session cookie.
func (c *ConfigDB) Login(w http.ResponseWriter, r *http.Request) {
	email, password, haveBasic := r.BasicAuth()
	if !haveBasic {
		www.SendError(w, "Missing credentials", http.StatusUnauthorized)
		return
	}
	user := c.VerifyCredentials(email, password)
	if user == nil {
		www.SendError(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}
	c.LoginInternal(w, user, time.Now().Add(DefaultSessionDuration))
}

func (c *ConfigDB) LoginInternal(w http.ResponseWriter, user *User, expiresAt time.Time) {
	now := time.Now().UTC()
	token := StrongRandomAlphaNumChars(30)
	session := Session{
		CreatedAt: dbh.MakeIntTime(now),
		Key:       pwdhash.HashSessionToken(token),
		UserID:    user.ID,
		ExpiresAt: dbh.MakeIntTime(expiresAt),
	}
	if err := c.DB.Create(&session).Error; err != nil {
		www.SendError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	c.PurgeExpiredSessions()
	c.Log.Infof("Logging user %v in", user.ID)
	http.SetCookie(w, &http.Cookie{
		Name:    SessionCookie,
		Value:   token,
		Path:    "/",
		Expires: expiresAt,
	})
	www.SendJSON(w, user)
}

func (c *ConfigDB) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, _ := r.Cookie(SessionCookie)
	if cookie != nil {
		c.DB.Where("key = ?", pwdhash.HashSessionToken(cookie.Value)).Delete(&Session{})
	}
	www.SendOK(w)
}

// Returns the user attached to the request's session, or nil
func (c *ConfigDB) GetUser(r *http.Request) *User {
	userID := c.GetUserID(r)
	if userID == 0 {
		return nil
	}
	user := User{}
	if err := c.DB.Find(&user, userID).Error; err != nil {
		c.Log.Errorf("GetUser failed: %v", err)
		return nil
	}
	if user.ID == 0 {
		return nil
	}
	return &user
}

// Returns the user id of the request's session, or zero
func (c *ConfigDB) GetUserID(r *http.Request) int64 {
	cookie, _ := r.Cookie(SessionCookie)
	if cookie == nil {
		return 0
	}
	session := Session{}
	c.DB.Where("key = ?", pwdhash.HashSessionToken(cookie.Value)).Find(&session)
	if session.UserID != 0 && (session.ExpiresAt.IsZero() || session.ExpiresAt.Get().After(time.Now())) {
		return session.UserID
	}
	return 0
}

func (c *ConfigDB) PurgeExpiredSessions() {
	db, err := c.DB.DB()
	if err != nil {
		c.Log.Warnf("PurgeExpiredSessions failed (1): %v", err)
		return
	}
	_, err = db.Exec("DELETE FROM session WHERE expires_at < ?", time.Now().UnixMilli())
	if err != nil {
		c.Log.Warnf("PurgeExpiredSessions failed (2): %v", err)
	}
}

func (c *ConfigDB) NumAdminUsers() (int, error) {
	n := int64(0)
	if err := c.DB.Model(&User{}).Where("permissions LIKE ?", "%"+UserPermissionAdmin+"%").Count(&n).Error; err != nil {
		return 0, err
	}
	return int(n), nil
}
