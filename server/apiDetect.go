package server

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cyclopcam/www"
	"github.com/fillsight/fillsight/pkg/nn"
	"github.com/fillsight/fillsight/server/configdb"
	"github.com/fillsight/fillsight/server/filestore"
	"github.com/fillsight/fillsight/server/pipeline"
	"github.com/julienschmidt/httprouter"
)

// Uploads beyond this are rejected. Individual camera frames are a few MB,
// and batches are capped by the browser's patience, not by us.
const maxUploadBytes = 256 * 1024 * 1024

// httpDetect accepts a multipart form with one or more files under the
// field "images", runs the pipeline over each, and returns the per-image
// results. A failed image gets an error in its slot; the rest of the batch
// is unaffected.
func (s *Server) httpDetect(w http.ResponseWriter, r *http.Request, params httprouter.Params, user *configdb.User) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	www.CheckClient(r.ParseMultipartForm(32 * 1024 * 1024))
	if r.MultipartForm == nil || len(r.MultipartForm.File["images"]) == 0 {
		www.PanicBadRequestf("No images in upload. Send files in the multipart field 'images'.")
	}
	items := []pipeline.BatchItem{}
	for _, fh := range r.MultipartForm.File["images"] {
		file, err := fh.Open()
		www.CheckClient(err)
		data, err := io.ReadAll(file)
		file.Close()
		www.CheckClient(err)
		items = append(items, pipeline.BatchItem{
			Name: fh.Filename,
			Data: data,
		})
	}
	s.Log.Infof("User %v submitted a batch of %v images", user.ID, len(items))
	results := s.pipeline.ProcessBatch(items, user.Email, func(br *pipeline.BatchItemResult) {
		s.detectHub.broadcast(br)
	})
	www.SendJSON(w, results)
}

// httpCapture accepts a single raw image in the request body (a camera
// frame captured by the browser), names it, and runs the pipeline over it.
func (s *Server) httpCapture(w http.ResponseWriter, r *http.Request, params httprouter.Params, user *configdb.User) {
	data := www.ReadLimited(w, r, maxUploadBytes)
	if len(data) == 0 {
		www.PanicBadRequestf("Empty image")
	}
	name := fmt.Sprintf("camera_capture_%v.jpg", time.Now().Format("20060102_150405"))
	res, err := s.pipeline.ProcessImage(data, name, user.Email)
	www.CheckClient(err)
	www.SendJSON(w, res)
}

func (s *Server) httpResults(w http.ResponseWriter, r *http.Request, params httprouter.Params, user *configdb.User) {
	records, err := s.resultDB.Records()
	www.Check(err)
	www.SendJSON(w, records)
}

// httpImage serves a stored image. Category is one of original, annotated,
// combined.
func (s *Server) httpImage(w http.ResponseWriter, r *http.Request, params httprouter.Params, user *configdb.User) {
	category := params.ByName("category")
	if !filestore.IsValidCategory(category) {
		www.PanicBadRequestf("Invalid image category '%v'", category)
	}
	www.SendFile(w, r, s.files.Filename(filestore.Category(category), params.ByName("name")), "image/jpeg")
}

// httpPurge deletes all stored images and all count records
func (s *Server) httpPurge(w http.ResponseWriter, r *http.Request, params httprouter.Params, user *configdb.User) {
	s.Log.Infof("User %v is purging all images and records", user.ID)
	www.Check(s.files.Purge())
	www.Check(s.resultDB.Purge())
	www.SendOK(w)
}

func (s *Server) httpConfigGet(w http.ResponseWriter, r *http.Request, params httprouter.Params, user *configdb.User) {
	cfg, err := s.configDB.GetConfig()
	www.Check(err)
	www.SendJSON(w, cfg)
}

// httpConfigSet stores new detector settings. Threshold changes apply to
// subsequent requests. Model changes require a restart, because models are
// loaded at startup.
func (s *Server) httpConfigSet(w http.ResponseWriter, r *http.Request, params httprouter.Params, user *configdb.User) {
	cfg := configdb.ConfigJSON{}
	www.ReadJSON(w, r, &cfg, 1024*1024)
	www.CheckClient(s.configDB.SetConfig(&cfg))
	// Apply what was actually stored, so the live pipeline and the DB record
	// can't drift apart
	stored, err := s.configDB.GetConfig()
	www.Check(err)
	s.pipeline.SetParams(
		nn.DetectionParams{ProbabilityThreshold: stored.Vials.ProbabilityThreshold, NmsIouThreshold: stored.Vials.NmsIouThreshold},
		nn.DetectionParams{ProbabilityThreshold: stored.PFS.ProbabilityThreshold, NmsIouThreshold: stored.PFS.NmsIouThreshold},
	)
	s.Log.Infof("User %v updated detector settings", user.ID)
	www.SendOK(w)
}
