package server

import (
	"net/http"

	"github.com/cyclopcam/www"
	"github.com/fillsight/fillsight/server/configdb"
	"github.com/julienschmidt/httprouter"
)

type createUserRequest struct {
	EmployeeID    string `json:"employeeID"`
	FirstName     string `json:"firstName"`
	LastName      string `json:"lastName"`
	Email         string `json:"email"`
	MobileContact string `json:"mobileContact"`
	Permissions   string `json:"permissions"`
	Password      string `json:"password"` // Optional. If empty, a password is generated.
}

type createUserResponse struct {
	User *configdb.User `json:"user"`
	// The generated password is returned exactly once, in this response.
	// We have no email infrastructure, so the admin relays it to the user.
	GeneratedPassword string `json:"generatedPassword,omitempty"`
}

func (s *Server) httpUserCreate(w http.ResponseWriter, r *http.Request, params httprouter.Params, cred *configdb.User) {
	req := createUserRequest{}
	www.ReadJSON(w, r, &req, 1024*1024)
	user := configdb.User{
		EmployeeID:    req.EmployeeID,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Email:         req.Email,
		MobileContact: req.MobileContact,
		Permissions:   req.Permissions,
	}
	password := req.Password
	generated := ""
	if password == "" {
		password = configdb.GeneratePassword()
		generated = password
	}
	www.CheckClient(s.configDB.CreateUser(&user, password))
	s.Log.Infof("User %v created %v (%v)", cred.ID, user.Email, user.ID)
	www.SendJSON(w, &createUserResponse{
		User:              &user,
		GeneratedPassword: generated,
	})
}

func (s *Server) httpUserList(w http.ResponseWriter, r *http.Request, params httprouter.Params, cred *configdb.User) {
	users, err := s.configDB.ListUsers()
	www.Check(err)
	www.SendJSON(w, users)
}

func (s *Server) httpUserDelete(w http.ResponseWriter, r *http.Request, params httprouter.Params, cred *configdb.User) {
	id := www.ParseID(params.ByName("id"))
	user, err := s.configDB.GetUserFromID(id)
	if err != nil {
		www.PanicNotFound()
	}
	if user.HasPermission(configdb.UserPermissionAdmin) {
		nAdmins, err := s.configDB.NumAdminUsers()
		www.Check(err)
		if nAdmins <= 1 {
			www.PanicBadRequestf("Cannot delete the last admin user")
		}
	}
	www.Check(s.configDB.DeleteUser(id))
	s.Log.Infof("User %v deleted %v (%v)", cred.ID, user.Email, user.ID)
	www.SendOK(w)
}
