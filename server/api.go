package server

import (
	"net/http"
	"time"

	"github.com/cyclopcam/www"
	"github.com/fillsight/fillsight/server/configdb"
	"github.com/go-chi/httprate"
	"github.com/julienschmidt/httprouter"
)

type apiHandler func(w http.ResponseWriter, r *http.Request, params httprouter.Params, user *configdb.User)

func (s *Server) setupHttpRoutes() {
	router := httprouter.New()

	// protected creates an HTTP handler that requires a logged-in user with
	// the given permission. The user is passed to the handler; handlers never
	// consult any global login state.
	protected := func(method, route string, perm configdb.UserPermissions, handle apiHandler) {
		www.Handle(s.Log, router, method, route, func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
			user := s.configDB.GetUser(r)
			if user == nil {
				www.PanicUnauthorized()
			}
			if !user.HasPermission(perm) {
				www.PanicForbidden()
			}
			handle(w, r, params, user)
		})
	}

	unprotected := func(method, route string, handle httprouter.Handle) {
		www.Handle(s.Log, router, method, route, handle)
	}

	// Login attempts are rate limited by IP to slow down password guessing
	loginLimiter := httprate.LimitByIP(10, time.Minute)
	router.Handler("POST", "/api/auth/login", loginLimiter(http.HandlerFunc(s.httpAuthLogin)))

	unprotected("GET", "/api/ping", s.httpPing)
	unprotected("POST", "/api/auth/logout", s.httpAuthLogout)
	protected("GET", "/api/auth/whoami", configdb.UserPermissionOperator, s.httpAuthWhoAmI)

	protected("POST", "/api/auth/user/create", configdb.UserPermissionAdmin, s.httpUserCreate)
	protected("GET", "/api/auth/users", configdb.UserPermissionAdmin, s.httpUserList)
	protected("DELETE", "/api/auth/user/:id", configdb.UserPermissionAdmin, s.httpUserDelete)

	protected("POST", "/api/detect", configdb.UserPermissionOperator, s.httpDetect)
	protected("POST", "/api/capture", configdb.UserPermissionOperator, s.httpCapture)
	protected("GET", "/api/results", configdb.UserPermissionOperator, s.httpResults)
	protected("GET", "/api/image/:category/:name", configdb.UserPermissionOperator, s.httpImage)
	protected("POST", "/api/purge", configdb.UserPermissionAdmin, s.httpPurge)
	protected("GET", "/api/config", configdb.UserPermissionOperator, s.httpConfigGet)
	protected("POST", "/api/config", configdb.UserPermissionAdmin, s.httpConfigSet)

	// The websocket handler does its own auth, because a websocket handshake
	// must not be answered with a JSON error body
	router.GET("/ws/detect", s.httpDetectProgress)

	s.httpRouter = router
}

func (s *Server) httpPing(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.SendJSON(w, map[string]any{
		"time": time.Now().Unix(),
	})
}
