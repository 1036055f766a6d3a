// Package cvdnn is a detect.Engine backed by the OpenCV DNN module. It
// understands YOLOv5-style output rows (cx, cy, w, h, objectness, class
// scores...) in input-pixel space and runs on the CPU.
package cvdnn

import (
	"context"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/banshee-data/behavior-cascade/internal/detect"
	"github.com/banshee-data/behavior-cascade/internal/frame"
	"github.com/banshee-data/behavior-cascade/internal/frame/cvframe"
	"github.com/banshee-data/behavior-cascade/internal/geometry"
)

const (
	defaultInputSize = 640
	defaultNMS       = 0.45
)

// Engine loads ONNX/Darknet models through gocv.ReadNet.
type Engine struct {
	// InputSize is the square network input edge; 0 means 640.
	InputSize int
	// Concurrency bounds parallel async calls per model; 0 means 1.
	Concurrency int
}

// Load implements detect.Engine. cfg.License is ignored; OpenCV models are
// not licensed.
func (e Engine) Load(cfg detect.ModelConfig) (detect.Model, error) {
	net := gocv.ReadNet(cfg.Path, "")
	if net.Empty() {
		return nil, fmt.Errorf("read net %s: empty network", cfg.Path)
	}
	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		net.Close()
		return nil, fmt.Errorf("set backend: %w", err)
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		net.Close()
		return nil, fmt.Errorf("set target: %w", err)
	}
	size := e.InputSize
	if size <= 0 {
		size = defaultInputSize
	}
	m := &model{net: net, labels: cfg.Labels, size: size}
	return detect.NewAsync(m, e.Concurrency), nil
}

// model serialises access to the Net; gocv.Net is not safe for
// concurrent Forward calls.
type model struct {
	mu     sync.Mutex
	net    gocv.Net
	labels []string
	size   int
}

func (m *model) Infer(ctx context.Context, img frame.Frame, params detect.Params) (*detect.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cf, ok := img.(*cvframe.Frame)
	if !ok {
		return nil, fmt.Errorf("cvdnn: unsupported frame type %T", img)
	}
	mat := cf.Mat()

	m.mu.Lock()
	defer m.mu.Unlock()

	blob := gocv.BlobFromImage(mat, 1.0/255.0, image.Pt(m.size, m.size), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()
	m.net.SetInput(blob, "")
	out := m.net.Forward("")
	defer out.Close()

	// Forward returns [1, rows, cols]; flatten to rows x cols.
	sizes := out.Size()
	if len(sizes) != 3 {
		return nil, fmt.Errorf("cvdnn: unexpected output shape %v", sizes)
	}
	rows, cols := sizes[1], sizes[2]
	if cols < 6 {
		return nil, fmt.Errorf("cvdnn: output has %d columns", cols)
	}
	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("cvdnn: read output: %w", err)
	}

	sx := float32(mat.Cols()) / float32(m.size)
	sy := float32(mat.Rows()) / float32(m.size)

	var (
		boxes   []image.Rectangle
		scores  []float32
		classes []int
	)
	for i := 0; i < rows; i++ {
		row := data[i*cols : (i+1)*cols]
		obj := row[4]
		if obj < params.Threshold {
			continue
		}
		best, bestScore := 0, float32(0)
		for c, s := range row[5:] {
			if s > bestScore {
				best, bestScore = c, s
			}
		}
		score := obj * bestScore
		if score < params.Threshold {
			continue
		}
		w := row[2] * sx
		h := row[3] * sy
		x := row[0]*sx - w/2
		y := row[1]*sy - h/2
		boxes = append(boxes, image.Rect(int(x), int(y), int(x+w), int(y+h)))
		scores = append(scores, score)
		classes = append(classes, best)
	}

	nms := params.NMSThreshold
	if nms <= 0 {
		nms = defaultNMS
	}
	var dets []detect.Detection
	if len(boxes) > 0 {
		for _, idx := range gocv.NMSBoxes(boxes, scores, params.Threshold, nms) {
			dets = append(dets, detect.Detection{
				ClassID: classes[idx],
				Label:   m.label(classes[idx]),
				Score:   scores[idx],
				Box:     geometry.FromImage(boxes[idx]),
			})
		}
	}
	return &detect.Result{Outputs: []detect.Output{{Type: detect.ResultDetect, Detections: dets}}}, nil
}

func (m *model) label(classID int) string {
	if classID >= 0 && classID < len(m.labels) {
		return m.labels[classID]
	}
	return fmt.Sprintf("class_%d", classID)
}

func (m *model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.net.Close()
}
