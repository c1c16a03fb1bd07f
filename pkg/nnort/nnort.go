package nnort

// package nnort runs object detection models through ONNX Runtime
// (https://github.com/yalue/onnxruntime_go). This is our only inference
// backend; nnload hides it behind the nn.ObjectDetector interface.

import (
	"fmt"
	"image"
	"runtime"
	"sync"

	"github.com/fillsight/fillsight/pkg/nn"
	"github.com/nfnt/resize"
	ort "github.com/yalue/onnxruntime_go"
)

var initOnce sync.Once
var initErr error

// Initialize loads the ONNX Runtime shared library. Must be called once,
// before any detector is created. sharedLibPath may be empty, in which case
// a platform default under ./third_party is used.
func Initialize(sharedLibPath string) error {
	initOnce.Do(func() {
		if sharedLibPath == "" {
			sharedLibPath = defaultSharedLibPath()
		}
		ort.SetSharedLibraryPath(sharedLibPath)
		initErr = ort.InitializeEnvironment()
	})
	return initErr
}

func defaultSharedLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "./third_party/onnxruntime.dll"
	case "darwin":
		return "./third_party/onnxruntime.dylib"
	default:
		if runtime.GOARCH == "arm64" {
			return "./third_party/onnxruntime_arm64.so"
		}
		return "./third_party/onnxruntime.so"
	}
}

// Detector is an nn.ObjectDetector backed by a YOLOv8-style ONNX model with a
// single "images" input and a single "output0" output of shape
// (1, 4+nclasses, nboxes).
type Detector struct {
	config nn.ModelConfig

	// The session's tensors are reused across runs, so inference is serialized.
	lock    sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	nboxes  int
}

// NewDetector creates a detector from an .onnx file and its model config.
func NewDetector(config *nn.ModelConfig, modelFile string) (*Detector, error) {
	if len(config.Classes) == 0 {
		return nil, fmt.Errorf("Model config for '%v' has no classes", modelFile)
	}
	inputShape := ort.NewShape(1, 3, int64(config.Height), int64(config.Width))
	inputTensor, err := ort.NewTensor(inputShape, make([]float32, 3*config.Width*config.Height))
	if err != nil {
		return nil, err
	}

	// YOLOv8 emits one candidate box per cell over strides 8, 16 and 32.
	nboxes := 0
	for _, stride := range []int{8, 16, 32} {
		nboxes += (config.Width / stride) * (config.Height / stride)
	}
	outputShape := ort.NewShape(1, int64(4+len(config.Classes)), int64(nboxes))
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, err
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, err
	}
	defer options.Destroy()

	session, err := ort.NewAdvancedSession(modelFile,
		[]string{"images"}, []string{"output0"},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		options)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("Failed to create ONNX session for '%v': %w", modelFile, err)
	}

	return &Detector{
		config:  *config,
		session: session,
		input:   inputTensor,
		output:  outputTensor,
		nboxes:  nboxes,
	}, nil
}

func (d *Detector) Close() {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.session.Destroy()
	d.input.Destroy()
	d.output.Destroy()
}

func (d *Detector) Config() *nn.ModelConfig {
	return &d.config
}

func (d *Detector) DetectObjects(img nn.ImageCrop, params *nn.DetectionParams) ([]nn.ObjectDetection, error) {
	if img.NChan != 3 {
		return nil, fmt.Errorf("Expected 3 channel RGB image, but image has %v channels", img.NChan)
	}
	probability := params.ProbabilityThreshold
	if probability == 0 {
		probability = nn.DefaultProbabilityThreshold
	}
	nmsIoU := params.NmsIouThreshold
	if nmsIoU == 0 {
		nmsIoU = nn.DefaultNmsIouThreshold
	}

	d.lock.Lock()
	defer d.lock.Unlock()

	d.prepareInput(img)
	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("ONNX inference failed: %w", err)
	}
	raw := d.decodeOutput(d.output.GetData(), img.CropWidth, img.CropHeight, probability)
	return nn.NonMaxSuppression(raw, nmsIoU), nil
}

// prepareInput resizes the crop to the network resolution and fills the input
// tensor in planar RGB order, normalized to [0,1].
func (d *Detector) prepareInput(img nn.ImageCrop) {
	rgba := image.NewRGBA(image.Rect(0, 0, img.CropWidth, img.CropHeight))
	stride := img.Stride()
	for y := 0; y < img.CropHeight; y++ {
		src := (img.CropY+y)*stride + img.CropX*img.NChan
		dst := y * rgba.Stride
		for x := 0; x < img.CropWidth; x++ {
			rgba.Pix[dst] = img.Pixels[src]
			rgba.Pix[dst+1] = img.Pixels[src+1]
			rgba.Pix[dst+2] = img.Pixels[src+2]
			rgba.Pix[dst+3] = 255
			src += img.NChan
			dst += 4
		}
	}
	resized := resize.Resize(uint(d.config.Width), uint(d.config.Height), rgba, resize.Lanczos3)

	input := d.input.GetData()
	plane := d.config.Width * d.config.Height
	idx := 0
	for y := 0; y < d.config.Height; y++ {
		for x := 0; x < d.config.Width; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()
			input[idx] = float32(r>>8) / 255.0
			input[idx+plane] = float32(g>>8) / 255.0
			input[idx+2*plane] = float32(b>>8) / 255.0
			idx++
		}
	}
}

// decodeOutput converts the raw (4+nclasses, nboxes) tensor into detections in
// source image coordinates.
func (d *Detector) decodeOutput(output []float32, srcWidth, srcHeight int, probabilityThreshold float32) []nn.ObjectDetection {
	nclasses := len(d.config.Classes)
	scaleX := float32(srcWidth) / float32(d.config.Width)
	scaleY := float32(srcHeight) / float32(d.config.Height)

	detections := []nn.ObjectDetection{}
	for i := 0; i < d.nboxes; i++ {
		classID, prob := 0, float32(0)
		for j := 0; j < nclasses; j++ {
			if p := output[(4+j)*d.nboxes+i]; p > prob {
				prob = p
				classID = j
			}
		}
		if prob < probabilityThreshold {
			continue
		}
		xc := output[i]
		yc := output[d.nboxes+i]
		w := output[2*d.nboxes+i]
		h := output[3*d.nboxes+i]
		x1 := int((xc - w/2) * scaleX)
		y1 := int((yc - h/2) * scaleY)
		x2 := int((xc + w/2) * scaleX)
		y2 := int((yc + h/2) * scaleY)
		x1 = max(x1, 0)
		y1 = max(y1, 0)
		x2 = min(x2, srcWidth)
		y2 = min(y2, srcHeight)
		detections = append(detections, nn.ObjectDetection{
			Class:      classID,
			Confidence: prob,
			Box:        nn.MakeRect(x1, y1, x2, y2),
		})
	}
	return detections
}
