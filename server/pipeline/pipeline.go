package pipeline

// Package pipeline runs the dual-detector counting flow over images:
// both detectors run on the same image, the counts are arbitrated, the
// winning annotated image is composed next to the original, and a count
// record is appended to the sink.

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/logs"
	"github.com/fillsight/fillsight/pkg/nn"
	"github.com/fillsight/fillsight/server/filestore"
)

// Class labels that detectors map their class indices onto
const (
	LabelVial    = "VIAL"
	LabelPFS     = "PFS"
	LabelUnknown = "Unknown"
)

// Names of the two models, as recorded in ModelUsed
const (
	ModelVials = "Vials"
	ModelPFS   = "PFS"
)

// Failure categories. A failed image never aborts the rest of its batch.
var (
	ErrInputImage  = errors.New("unreadable image")            // The upload could not be decoded
	ErrInference   = errors.New("detector inference failed")   // One of the detectors failed
	ErrPersistence = errors.New("failed to store result")      // File store or record sink failed
)

// DetectorConfig is one detector plus the policy for interpreting its output.
// Treat it as immutable once the pipeline is running.
type DetectorConfig struct {
	Name                 string            // "Vials" or "PFS"
	Detector             nn.ObjectDetector
	ProbabilityThreshold float32
	NmsIouThreshold      float32
	ClassLabels          map[int]string // Detector class index -> label. Missing entries read as Unknown.
}

// Outcome of running one detector over one image
type Outcome struct {
	Annotated  *cimg.Image    // Input image with boxes drawn on it (the input image itself if nothing was detected)
	Counts     map[string]int // Detections per label. Unknown detections are not counted.
	DetectedAt time.Time
}

// Result is the arbitrated record for one image
type Result struct {
	ImageName string    `json:"imageName"`
	ModelUsed string    `json:"modelUsed"`
	PFSCount  int       `json:"pfsCount"`
	VialCount int       `json:"vialCount"`
	Timestamp time.Time `json:"timestamp"`
	Username  string    `json:"username"`
}

// Sink receives one record per successfully processed image
type Sink interface {
	AppendResult(res *Result) error
}

type Pipeline struct {
	Log   logs.Log
	Files *filestore.Store
	Sink  Sink

	// lock guards the config pointers. Configs are swapped whole, never
	// mutated in place, so an in-flight detection keeps reading the config
	// it started with.
	lock  sync.RWMutex
	vials *DetectorConfig
	pfs   *DetectorConfig
}

func NewPipeline(logger logs.Log, vials, pfs *DetectorConfig, files *filestore.Store, sink Sink) *Pipeline {
	return &Pipeline{
		Log:   logger,
		Files: files,
		Sink:  sink,
		vials: vials,
		pfs:   pfs,
	}
}

// Params returns the current detection thresholds of the vials and pfs
// detectors.
func (p *Pipeline) Params() (vials, pfs nn.DetectionParams) {
	p.lock.RLock()
	defer p.lock.RUnlock()
	vials = nn.DetectionParams{ProbabilityThreshold: p.vials.ProbabilityThreshold, NmsIouThreshold: p.vials.NmsIouThreshold}
	pfs = nn.DetectionParams{ProbabilityThreshold: p.pfs.ProbabilityThreshold, NmsIouThreshold: p.pfs.NmsIouThreshold}
	return vials, pfs
}

// SetParams replaces the detection thresholds of both detectors. The detector
// handles and class labels are kept. Safe to call while batches are running.
func (p *Pipeline) SetParams(vials, pfs nn.DetectionParams) {
	p.lock.Lock()
	defer p.lock.Unlock()
	v := *p.vials
	v.ProbabilityThreshold = vials.ProbabilityThreshold
	v.NmsIouThreshold = vials.NmsIouThreshold
	p.vials = &v
	f := *p.pfs
	f.ProbabilityThreshold = pfs.ProbabilityThreshold
	f.NmsIouThreshold = pfs.NmsIouThreshold
	p.pfs = &f
}

func (p *Pipeline) detectorConfigs() (vials, pfs *DetectorConfig) {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.vials, p.pfs
}

// Detect runs one detector over an image and annotates it.
// An image with zero detections is a success: the outcome holds the input
// image untouched, and zero counts.
func Detect(img *cimg.Image, cfg *DetectorConfig) (*Outcome, error) {
	params := nn.NewDetectionParams()
	params.ProbabilityThreshold = cfg.ProbabilityThreshold
	params.NmsIouThreshold = cfg.NmsIouThreshold
	objects, err := cfg.Detector.DetectObjects(nn.WholeImage(img.NChan(), img.Pixels, img.Width, img.Height), params)
	if err != nil {
		return nil, fmt.Errorf("%w (%v): %v", ErrInference, cfg.Name, err)
	}
	outcome := &Outcome{
		Annotated:  img,
		Counts:     map[string]int{},
		DetectedAt: time.Now(),
	}
	if len(objects) == 0 {
		return outcome, nil
	}
	sortDetections(objects)
	for _, obj := range objects {
		label, known := cfg.ClassLabels[obj.Class]
		if !known {
			continue
		}
		outcome.Counts[label]++
	}
	outcome.Annotated = annotate(img, objects, cfg.ClassLabels)
	return outcome, nil
}

// Arbitrate picks the winner between the vials and pfs outcomes.
// Ties go to vials, and the losing model's count is zeroed.
// The record timestamp is always taken from the vials outcome, regardless
// of the winner. Historical records were produced this way, so changing it
// would skew time-based reports.
func Arbitrate(vials, pfs *Outcome, imageName, username string) (*Outcome, *Result) {
	nVials := vials.Counts[LabelVial]
	nPFS := pfs.Counts[LabelPFS]
	res := &Result{
		ImageName: imageName,
		Timestamp: vials.DetectedAt,
		Username:  username,
	}
	if nVials >= nPFS {
		res.ModelUsed = ModelVials
		res.VialCount = nVials
		return vials, res
	}
	res.ModelUsed = ModelPFS
	res.PFSCount = nPFS
	return pfs, res
}

// ProcessImage runs the full flow for one image: decode, detect with both
// models, arbitrate, compose, store files, append the record.
func (p *Pipeline) ProcessImage(imageData []byte, imageName, username string) (*Result, error) {
	img, err := cimg.Decompress(imageData)
	if err != nil {
		return nil, fmt.Errorf("%w '%v': %v", ErrInputImage, imageName, err)
	}
	if img.NChan() != 3 {
		img = img.ToRGB()
	}
	vialsCfg, pfsCfg := p.detectorConfigs()
	vialsOut, err := Detect(img, vialsCfg)
	if err != nil {
		return nil, err
	}
	pfsOut, err := Detect(img, pfsCfg)
	if err != nil {
		return nil, err
	}
	winner, res := Arbitrate(vialsOut, pfsOut, imageName, username)
	combined, err := Compose(img, winner.Annotated)
	if err != nil {
		return nil, err
	}
	if err := p.saveImages(imageName, imageData, winner.Annotated, combined); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if err := p.Sink.AppendResult(res); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return res, nil
}

func (p *Pipeline) saveImages(imageName string, original []byte, annotated, combined *cimg.Image) error {
	if err := p.Files.Save(filestore.CategoryOriginal, imageName, original); err != nil {
		return err
	}
	annotatedJpg, err := cimg.Compress(annotated, cimg.MakeCompressParams(cimg.Sampling420, 95, 0))
	if err != nil {
		return err
	}
	if err := p.Files.Save(filestore.CategoryAnnotated, imageName, annotatedJpg); err != nil {
		return err
	}
	combinedJpg, err := cimg.Compress(combined, cimg.MakeCompressParams(cimg.Sampling420, 95, 0))
	if err != nil {
		return err
	}
	return p.Files.Save(filestore.CategoryCombined, imageName, combinedJpg)
}

// BatchItem is one image submitted for processing
type BatchItem struct {
	Name string
	Data []byte
}

// BatchItemResult is the outcome for one image of a batch
type BatchItemResult struct {
	Name   string  `json:"name"`
	Result *Result `json:"result,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// ProcessBatch runs every image independently. A failure on one image is
// reported in its slot and processing continues with the next image.
// If observer is not nil, it is called after each image completes.
func (p *Pipeline) ProcessBatch(items []BatchItem, username string, observer func(*BatchItemResult)) []BatchItemResult {
	results := make([]BatchItemResult, 0, len(items))
	for _, item := range items {
		br := BatchItemResult{Name: item.Name}
		res, err := p.ProcessImage(item.Data, item.Name, username)
		if err != nil {
			p.Log.Errorf("Processing of '%v' failed: %v", item.Name, err)
			br.Error = err.Error()
		} else {
			br.Result = res
		}
		results = append(results, br)
		if observer != nil {
			observer(&br)
		}
	}
	return results
}
