package server

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/logs"
	"github.com/fillsight/fillsight/pkg/nn"
	"github.com/fillsight/fillsight/server/configdb"
	"github.com/fillsight/fillsight/server/filestore"
	"github.com/fillsight/fillsight/server/pipeline"
	"github.com/fillsight/fillsight/server/resultdb"
	"github.com/stretchr/testify/require"
)

type stubDetector struct {
	objects []nn.ObjectDetection
}

func (d *stubDetector) Close() {}

func (d *stubDetector) DetectObjects(img nn.ImageCrop, params *nn.DetectionParams) ([]nn.ObjectDetection, error) {
	return d.objects, nil
}

func (d *stubDetector) Config() *nn.ModelConfig {
	return &nn.ModelConfig{Architecture: "yolov8", Width: 640, Height: 640, Classes: []string{"stub"}}
}

type testHarness struct {
	server  *Server
	httpSrv *httptest.Server
	client  *http.Client
}

func newTestHarness(t *testing.T, nVials, nPFS int) *testHarness {
	logger := logs.NewTestingLog(t)
	tmp := t.TempDir()
	configDB, err := configdb.NewConfigDB(logger, filepath.Join(tmp, "config.sqlite"))
	require.NoError(t, err)
	resultDB, err := resultdb.NewResultDB(logger, filepath.Join(tmp, "results.sqlite"))
	require.NoError(t, err)
	files, err := filestore.NewStore(logger, filepath.Join(tmp, "images"))
	require.NoError(t, err)

	makeDetections := func(n int) []nn.ObjectDetection {
		dets := []nn.ObjectDetection{}
		for i := 0; i < n; i++ {
			dets = append(dets, nn.ObjectDetection{Class: 0, Confidence: 0.9, Box: nn.MakeRect(i*12, 5, i*12+10, 15)})
		}
		return dets
	}
	vials := &pipeline.DetectorConfig{
		Name:                 pipeline.ModelVials,
		Detector:             &stubDetector{objects: makeDetections(nVials)},
		ProbabilityThreshold: 0.65,
		NmsIouThreshold:      0.45,
		ClassLabels:          map[int]string{0: pipeline.LabelVial},
	}
	pfs := &pipeline.DetectorConfig{
		Name:                 pipeline.ModelPFS,
		Detector:             &stubDetector{objects: makeDetections(nPFS)},
		ProbabilityThreshold: 0.70,
		NmsIouThreshold:      0.45,
		ClassLabels:          map[int]string{0: pipeline.LabelPFS},
	}

	s := NewServer(logger, configDB, resultDB, files, vials, pfs)
	httpSrv := httptest.NewServer(s.httpRouter)
	t.Cleanup(httpSrv.Close)

	h := &testHarness{
		server:  s,
		httpSrv: httpSrv,
		client:  &http.Client{},
	}
	return h
}

func (h *testHarness) createUser(t *testing.T, email, permissions, password string) *configdb.User {
	user := configdb.User{
		EmployeeID:  "EMP-" + email,
		Email:       email,
		Permissions: permissions,
	}
	require.NoError(t, h.server.configDB.CreateUser(&user, password))
	return &user
}

// login returns the session cookie
func (h *testHarness) login(t *testing.T, email, password string) *http.Cookie {
	req, err := http.NewRequest("POST", h.httpSrv.URL+"/api/auth/login", nil)
	require.NoError(t, err)
	req.SetBasicAuth(email, password)
	resp, err := h.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	for _, c := range resp.Cookies() {
		if c.Name == configdb.SessionCookie {
			return c
		}
	}
	t.Fatal("No session cookie in login response")
	return nil
}

func (h *testHarness) do(t *testing.T, method, path string, cookie *http.Cookie, body io.Reader, contentType string) *http.Response {
	req, err := http.NewRequest(method, h.httpSrv.URL+path, body)
	require.NoError(t, err)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := h.client.Do(req)
	require.NoError(t, err)
	return resp
}

func smallJPEG(t *testing.T) []byte {
	img := cimg.NewImage(64, 48, cimg.PixelFormatRGB)
	jpg, err := cimg.Compress(img, cimg.MakeCompressParams(cimg.Sampling420, 95, 0))
	require.NoError(t, err)
	return jpg
}

func TestLoginAndWhoAmI(t *testing.T) {
	h := newTestHarness(t, 0, 0)
	h.createUser(t, "op@example.com", string(configdb.UserPermissionOperator), "hunter22smash")

	// Bad password
	req, _ := http.NewRequest("POST", h.httpSrv.URL+"/api/auth/login", nil)
	req.SetBasicAuth("op@example.com", "wrong")
	resp, err := h.client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	cookie := h.login(t, "op@example.com", "hunter22smash")
	resp = h.do(t, "GET", "/api/auth/whoami", cookie, nil, "")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	me := configdb.User{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&me))
	require.Equal(t, "op@example.com", me.Email)

	// No cookie, no access
	resp = h.do(t, "GET", "/api/auth/whoami", nil, nil, "")
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestUserManagementRequiresAdmin(t *testing.T) {
	h := newTestHarness(t, 0, 0)
	h.createUser(t, "op@example.com", string(configdb.UserPermissionOperator), "hunter22smash")
	h.createUser(t, "admin@example.com", string(configdb.UserPermissionAdmin), "hunter22smash")

	opCookie := h.login(t, "op@example.com", "hunter22smash")
	adminCookie := h.login(t, "admin@example.com", "hunter22smash")

	body := `{"employeeID": "EMP-9", "email": "new@example.com", "permissions": "o"}`

	// Operators may not manage users
	resp := h.do(t, "POST", "/api/auth/user/create", opCookie, bytes.NewReader([]byte(body)), "application/json")
	resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Admins may. The generated password comes back exactly once.
	resp = h.do(t, "POST", "/api/auth/user/create", adminCookie, bytes.NewReader([]byte(body)), "application/json")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	created := createUserResponse{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.NotEmpty(t, created.GeneratedPassword)
	require.Equal(t, "new@example.com", created.User.Email)

	// The new user can log in with the generated password
	h.login(t, "new@example.com", created.GeneratedPassword)
}

func TestDeleteLastAdmin(t *testing.T) {
	h := newTestHarness(t, 0, 0)
	admin := h.createUser(t, "admin@example.com", string(configdb.UserPermissionAdmin), "hunter22smash")
	cookie := h.login(t, "admin@example.com", "hunter22smash")

	resp := h.do(t, "DELETE", "/api/auth/user/"+strconv.FormatInt(admin.ID, 10), cookie, nil, "")
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDetectBatch(t *testing.T) {
	h := newTestHarness(t, 3, 1) // 3 vials, 1 syringe: vials wins
	h.createUser(t, "op@example.com", string(configdb.UserPermissionOperator), "hunter22smash")
	cookie := h.login(t, "op@example.com", "hunter22smash")

	jpg := smallJPEG(t)
	buf := bytes.Buffer{}
	mw := multipart.NewWriter(&buf)
	for _, name := range []string{"one.jpg", "two.jpg"} {
		part, err := mw.CreateFormFile("images", name)
		require.NoError(t, err)
		_, err = part.Write(jpg)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	resp := h.do(t, "POST", "/api/detect", cookie, &buf, mw.FormDataContentType())
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	results := []pipeline.BatchItemResult{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&results))
	require.Len(t, results, 2)
	for _, br := range results {
		require.Empty(t, br.Error)
		require.Equal(t, pipeline.ModelVials, br.Result.ModelUsed)
		require.Equal(t, 3, br.Result.VialCount)
		require.Equal(t, 0, br.Result.PFSCount)
	}

	// The records landed, in order
	resp = h.do(t, "GET", "/api/results", cookie, nil, "")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	records := []resultdb.Record{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&records))
	require.Len(t, records, 2)
	require.Equal(t, "one.jpg", records[0].ImageName)
	require.Equal(t, "op@example.com", records[0].Username)

	// Stored images are served back
	for _, category := range []string{"original", "annotated", "combined"} {
		resp := h.do(t, "GET", "/api/image/"+category+"/one.jpg", cookie, nil, "")
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.NotEmpty(t, data)
	}

	// Unknown category is rejected
	resp = h.do(t, "GET", "/api/image/bogus/one.jpg", cookie, nil, "")
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPurgeRequiresAdmin(t *testing.T) {
	h := newTestHarness(t, 1, 0)
	h.createUser(t, "op@example.com", string(configdb.UserPermissionOperator), "hunter22smash")
	h.createUser(t, "admin@example.com", string(configdb.UserPermissionAdmin), "hunter22smash")
	opCookie := h.login(t, "op@example.com", "hunter22smash")
	adminCookie := h.login(t, "admin@example.com", "hunter22smash")

	resp := h.do(t, "POST", "/api/capture", opCookie, bytes.NewReader(smallJPEG(t)), "image/jpeg")
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = h.do(t, "POST", "/api/purge", opCookie, nil, "")
	resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = h.do(t, "POST", "/api/purge", adminCookie, nil, "")
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = h.do(t, "GET", "/api/results", opCookie, nil, "")
	defer resp.Body.Close()
	records := []resultdb.Record{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&records))
	require.Empty(t, records)
}

func TestConfigEndpoints(t *testing.T) {
	h := newTestHarness(t, 0, 0)
	h.createUser(t, "admin@example.com", string(configdb.UserPermissionAdmin), "hunter22smash")
	cookie := h.login(t, "admin@example.com", "hunter22smash")

	resp := h.do(t, "GET", "/api/config", cookie, nil, "")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cfg := configdb.ConfigJSON{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cfg))
	require.Equal(t, float32(0.65), cfg.Vials.ProbabilityThreshold)

	cfg.Vials.ProbabilityThreshold = 0.5
	body, _ := json.Marshal(&cfg)
	resp = h.do(t, "POST", "/api/config", cookie, bytes.NewReader(body), "application/json")
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Threshold changes apply to the running pipeline
	vials, pfs := h.server.pipeline.Params()
	require.Equal(t, float32(0.5), vials.ProbabilityThreshold)
	require.Equal(t, float32(0.70), pfs.ProbabilityThreshold)
}
