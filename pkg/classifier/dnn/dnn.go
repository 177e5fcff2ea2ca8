// Package dnn implements classifier.Classifier with the OpenCV dnn module.
package dnn

import (
	"context"
	"fmt"
	"image"
	"math"
	"os"
	"strconv"
	"sync"

	"github.com/teslashibe/go-framegate/pkg/classifier"
	"github.com/teslashibe/go-framegate/pkg/frame"
	"gocv.io/x/gocv"
)

// Config holds dnn classifier configuration.
type Config struct {
	ModelPath  string
	LabelsPath string

	// InputWidth and InputHeight are the network input size.
	InputWidth  int
	InputHeight int

	// Scale multiplies pixel values before the mean is subtracted.
	Scale float64
	// Mean is subtracted per channel (R, G, B) after scaling.
	Mean [3]float64

	// MaxResults caps the ranked results, 0 keeps all.
	MaxResults int
}

// DefaultConfig returns defaults for a 224x224 ImageNet classifier.
func DefaultConfig() Config {
	return Config{
		ModelPath:   "models/mobilenet_v2.onnx",
		LabelsPath:  "models/labels.txt",
		InputWidth:  224,
		InputHeight: 224,
		Scale:       1.0 / 255.0,
		MaxResults:  3,
	}
}

// Validate returns a list of validation problems.
func (c Config) Validate() []string {
	var errs []string
	if c.ModelPath == "" {
		errs = append(errs, "model path is required")
	}
	if c.InputWidth <= 0 || c.InputHeight <= 0 {
		errs = append(errs, fmt.Sprintf("input size must be positive, got %dx%d", c.InputWidth, c.InputHeight))
	}
	if c.Scale <= 0 {
		errs = append(errs, "scale must be positive")
	}
	return errs
}

// backend maps a device to an OpenCV backend and target.
type backend struct {
	Backend gocv.NetBackendType
	Target  gocv.NetTargetType
}

var backends = map[classifier.Device]backend{
	classifier.DeviceCPU:   {gocv.NetBackendDefault, gocv.NetTargetCPU},
	classifier.DeviceGPU:   {gocv.NetBackendCUDA, gocv.NetTargetCUDA},
	classifier.DeviceNNAPI: {gocv.NetBackendOpenVINO, gocv.NetTargetVPU},
}

// Classifier runs an ONNX classification network.
type Classifier struct {
	cfg    Config
	labels []string

	mu      sync.Mutex
	net     gocv.Net
	ready   bool
	device  classifier.Device
	threads int
}

// New checks the model and loads labels. The network itself is built by
// Reconfigure.
func New(cfg Config) (*Classifier, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("dnn: invalid config: %v", errs)
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("dnn: model file not found: %s", cfg.ModelPath)
	}

	var labels []string
	if cfg.LabelsPath != "" {
		var err error
		labels, err = LoadLabels(cfg.LabelsPath)
		if err != nil {
			return nil, err
		}
	}

	return &Classifier{cfg: cfg, labels: labels}, nil
}

// Reconfigure loads a fresh network for the device. The previous network
// is closed even when loading fails, leaving the classifier not ready.
func (c *Classifier) Reconfigure(ctx context.Context, device classifier.Device, threads int) error {
	be, ok := backends[device]
	if !ok {
		return classifier.WrapError(device, classifier.ErrUnknownDevice)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.closeNet()

	net := gocv.ReadNetFromONNX(c.cfg.ModelPath)
	if net.Empty() {
		return classifier.WrapError(device, fmt.Errorf("failed to load model from %s", c.cfg.ModelPath))
	}
	net.SetPreferableBackend(be.Backend)
	net.SetPreferableTarget(be.Target)

	applyThreads(device, threads)
	c.net = net
	c.ready = true
	c.device = device
	c.threads = threads
	return nil
}

// Classify converts the frame to BGR, rotates it upright and runs the network.
func (c *Classifier) Classify(ctx context.Context, in classifier.Input) ([]classifier.Recognition, error) {
	if in.Width <= 0 || in.Height <= 0 || len(in.Pixels) < in.Width*in.Height {
		return nil, classifier.ErrInvalidInput
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.ready {
		return nil, classifier.ErrNotReady
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := gocv.NewMatFromBytes(in.Height, in.Width, gocv.MatTypeCV8UC3, ToBGR(in.Pixels[:in.Width*in.Height]))
	if err != nil {
		return nil, fmt.Errorf("dnn: build mat: %w", err)
	}
	defer img.Close()

	upright := img
	if flag, ok := rotation(in.Orientation); ok {
		rotated := gocv.NewMat()
		defer rotated.Close()
		gocv.Rotate(img, &rotated, flag)
		upright = rotated
	}

	mean := gocv.NewScalar(c.cfg.Mean[0]/c.cfg.Scale, c.cfg.Mean[1]/c.cfg.Scale, c.cfg.Mean[2]/c.cfg.Scale, 0)
	blob := gocv.BlobFromImage(upright, c.cfg.Scale, image.Pt(c.cfg.InputWidth, c.cfg.InputHeight), mean, true, true)
	defer blob.Close()

	c.net.SetInput(blob, "")
	output := c.net.Forward("")
	defer output.Close()

	scores, err := output.DataPtrFloat32()
	if err != nil {
		return nil, classifier.WrapError(c.device, fmt.Errorf("read output: %w", err))
	}

	return classifier.Rank(c.recognitions(Softmax(scores)), c.cfg.MaxResults), nil
}

func (c *Classifier) recognitions(probs []float32) []classifier.Recognition {
	out := make([]classifier.Recognition, len(probs))
	for i, p := range probs {
		title := strconv.Itoa(i)
		if i < len(c.labels) {
			title = c.labels[i]
		}
		out[i] = classifier.Recognition{ID: strconv.Itoa(i), Title: title, Confidence: p}
	}
	return out
}

// InputSize returns the network input size.
func (c *Classifier) InputSize() frame.Size {
	return frame.Size{Width: c.cfg.InputWidth, Height: c.cfg.InputHeight}
}

// Current returns the device and thread count the current network was built for.
func (c *Classifier) Current() (classifier.Device, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.device, c.threads
}

// Close releases the network.
func (c *Classifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeNet()
	return nil
}

func (c *Classifier) closeNet() {
	if c.ready {
		c.net.Close()
		c.ready = false
	}
}

// applyThreads sets the OpenCV worker count for CPU inference. Accelerated
// targets schedule their own work and leave the setting alone.
func applyThreads(device classifier.Device, threads int) {
	if device != classifier.DeviceCPU || threads <= 0 {
		return
	}
	gocv.SetNumThreads(threads)
}

// rotation maps an orientation in degrees to an OpenCV rotate flag.
func rotation(degrees int) (gocv.RotateFlag, bool) {
	switch ((degrees % 360) + 360) % 360 {
	case 90:
		return gocv.Rotate90Clockwise, true
	case 180:
		return gocv.Rotate180Clockwise, true
	case 270:
		return gocv.Rotate90CounterClockwise, true
	default:
		return 0, false
	}
}

// ToBGR unpacks ARGB pixels into interleaved BGR bytes.
func ToBGR(pixels []uint32) []byte {
	out := make([]byte, len(pixels)*3)
	for i, p := range pixels {
		out[i*3] = byte(p)
		out[i*3+1] = byte(p >> 8)
		out[i*3+2] = byte(p >> 16)
	}
	return out
}

// Softmax normalizes raw scores unless they already form a distribution.
func Softmax(scores []float32) []float32 {
	sum := float32(0)
	normalized := true
	for _, s := range scores {
		if s < 0 || s > 1 {
			normalized = false
		}
		sum += s
	}
	if normalized && math.Abs(float64(sum)-1) < 1e-3 {
		return append([]float32(nil), scores...)
	}

	peak := float32(math.Inf(-1))
	for _, s := range scores {
		if s > peak {
			peak = s
		}
	}
	out := make([]float32, len(scores))
	total := 0.0
	for i, s := range scores {
		e := math.Exp(float64(s - peak))
		out[i] = float32(e)
		total += e
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / total)
	}
	return out
}

var _ classifier.Classifier = (*Classifier)(nil)
