// Package classifier defines the inference collaborator invoked for each
// admitted frame, the compute-device settings it is rebuilt from, and a
// mock for tests.
package classifier

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/teslashibe/go-framegate/pkg/frame"
)

// Device selects the compute backend for inference.
type Device string

// Supported devices.
const (
	DeviceCPU   Device = "CPU"
	DeviceGPU   Device = "GPU"
	DeviceNNAPI Device = "NNAPI"
)

// Devices lists the supported devices in menu order.
var Devices = []Device{DeviceCPU, DeviceGPU, DeviceNNAPI}

// ParseDevice parses a device name case-insensitively.
func ParseDevice(s string) (Device, error) {
	for _, d := range Devices {
		if strings.EqualFold(s, string(d)) {
			return d, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDevice, s)
}

// Recognition is one classification result.
type Recognition struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Confidence float32 `json:"confidence"`
}

// Input is a converted frame handed to Classify.
type Input struct {
	// Pixels are packed 0xAARRGGBB, row-major, Width*Height long.
	Pixels []uint32
	Width  int
	Height int
	// Orientation is the clockwise rotation in degrees that brings the
	// frame upright.
	Orientation int
}

// Classifier is a synchronous image classifier.
type Classifier interface {
	// Classify returns results ranked by descending confidence.
	Classify(ctx context.Context, in Input) ([]Recognition, error)

	// Reconfigure rebuilds the inference context for a device and thread count.
	Reconfigure(ctx context.Context, device Device, threads int) error

	// InputSize is the size frames are cropped and scaled to.
	InputSize() frame.Size

	// Close releases the inference context.
	Close() error
}

// Rank sorts results by descending confidence and keeps at most limit of them.
// limit <= 0 keeps all.
func Rank(results []Recognition, limit int) []Recognition {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Confidence > results[j].Confidence
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}
