package server

import (
	"net/http"

	"github.com/cyclopcam/www"
	"github.com/fillsight/fillsight/server/configdb"
	"github.com/julienschmidt/httprouter"
)

// Login with BASIC auth credentials. On success the response carries the
// session cookie, and the body is the user record.
func (s *Server) httpAuthLogin(w http.ResponseWriter, r *http.Request) {
	s.configDB.Login(w, r)
}

func (s *Server) httpAuthLogout(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	s.configDB.Logout(w, r)
}

func (s *Server) httpAuthWhoAmI(w http.ResponseWriter, r *http.Request, params httprouter.Params, user *configdb.User) {
	www.SendJSON(w, user)
}
