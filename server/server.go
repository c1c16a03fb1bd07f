package server

import (
	"context"
	"net/http"
	"time"

	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
	"github.com/fillsight/fillsight/server/configdb"
	"github.com/fillsight/fillsight/server/filestore"
	"github.com/fillsight/fillsight/server/pipeline"
	"github.com/fillsight/fillsight/server/resultdb"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

type Server struct {
	Log      logs.Log
	configDB *configdb.ConfigDB
	resultDB *resultdb.ResultDB
	files    *filestore.Store
	pipeline *pipeline.Pipeline

	detectHub  *detectHub
	wsUpgrader websocket.Upgrader
	httpRouter *httprouter.Router
	httpServer *http.Server
}

func NewServer(logger logs.Log, configDB *configdb.ConfigDB, resultDB *resultdb.ResultDB, files *filestore.Store, vials, pfs *pipeline.DetectorConfig) *Server {
	s := &Server{
		Log:       logger,
		configDB:  configDB,
		resultDB:  resultDB,
		files:     files,
		detectHub: newDetectHub(logger),
	}
	s.pipeline = pipeline.NewPipeline(logger, vials, pfs, files, &recordSink{db: resultDB})
	s.setupHttpRoutes()
	return s
}

// port example: ":8080"
func (s *Server) ListenHTTP(port string) error {
	s.Log.Infof("Listening on %v", port)
	s.httpServer = &http.Server{
		Addr:    port,
		Handler: s.httpRouter,
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown() {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(ctx)
	}
}

// recordSink appends pipeline results to the result database
type recordSink struct {
	db *resultdb.ResultDB
}

func (s *recordSink) AppendResult(res *pipeline.Result) error {
	return s.db.Append(&resultdb.Record{
		ImageName: res.ImageName,
		ModelUsed: res.ModelUsed,
		PFSCount:  res.PFSCount,
		VialCount: res.VialCount,
		Timestamp: dbh.MakeIntTime(res.Timestamp),
		Username:  res.Username,
	})
}
