package landmark

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"sort"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// YuNet input defaults. The input size is updated per frame.
const (
	yunetInputSize = 320
	yunetNMS       = 0.3
	yunetTopK      = 5000
)

var errModelClosed = errors.New("landmark: model closed")

// YuNet runs OpenCV's FaceDetectorYN. Each face yields a bounding box, five
// landmarks (eyes, nose tip, mouth corners) and a score.
type YuNet struct {
	mu        sync.Mutex // Protects inference
	detector  gocv.FaceDetectorYN
	opts      Options
	onResults func(Results)
	closed    bool
}

var _ Model = (*YuNet)(nil)

// NewYuNet loads the ONNX model at path.
func NewYuNet(path string) (*YuNet, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("model file not found: %s: %w", path, err)
	}

	opts := DefaultOptions()
	detector := gocv.NewFaceDetectorYNWithParams(
		path,
		"", // No config file needed for ONNX
		image.Pt(yunetInputSize, yunetInputSize),
		float32(opts.MinDetectionConfidence),
		yunetNMS,
		yunetTopK,
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)

	return &YuNet{detector: detector, opts: opts}, nil
}

// SetOptions implements Model.
func (y *YuNet) SetOptions(_ context.Context, opts Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	y.mu.Lock()
	defer y.mu.Unlock()
	if y.closed {
		return errModelClosed
	}
	y.opts = opts
	y.detector.SetScoreThreshold(float32(opts.MinDetectionConfidence))
	return nil
}

// OnResults implements Model.
func (y *YuNet) OnResults(fn func(Results)) {
	y.mu.Lock()
	y.onResults = fn
	y.mu.Unlock()
}

// Send runs detection on the frame and delivers the results before
// returning.
func (y *YuNet) Send(ctx context.Context, in Input) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	res, err := y.detect(in)
	if err != nil {
		return err
	}

	y.mu.Lock()
	fn := y.onResults
	y.mu.Unlock()
	if fn != nil {
		fn(res)
	}
	return nil
}

func (y *YuNet) detect(in Input) (Results, error) {
	y.mu.Lock()
	defer y.mu.Unlock()

	if y.closed {
		return Results{}, errModelClosed
	}

	img, err := gocv.IMDecode(in.Frame.JPEG, gocv.IMReadColor)
	if err != nil {
		return Results{}, fmt.Errorf("decode image: %w", err)
	}
	defer img.Close()
	if img.Empty() {
		return Results{}, fmt.Errorf("empty image")
	}

	if in.Width > 0 && in.Height > 0 && (img.Cols() != in.Width || img.Rows() != in.Height) {
		resized := gocv.NewMat()
		gocv.Resize(img, &resized, image.Pt(in.Width, in.Height), 0, 0, gocv.InterpolationLinear)
		img.Close()
		img = resized
	}

	imgW := float64(img.Cols())
	imgH := float64(img.Rows())
	y.detector.SetInputSize(image.Pt(img.Cols(), img.Rows()))

	faces := gocv.NewMat()
	defer faces.Close()
	y.detector.Detect(img, &faces)

	// YuNet output format (15 columns):
	// 0-3: x, y, w, h (bounding box in pixels)
	// 4-13: 5 facial landmarks (x,y pairs)
	// 14: face score
	out := make([]Face, 0, faces.Rows())
	for r := 0; r < faces.Rows(); r++ {
		f := Face{
			X:     float64(faces.GetFloatAt(r, 0)) / imgW,
			Y:     float64(faces.GetFloatAt(r, 1)) / imgH,
			W:     float64(faces.GetFloatAt(r, 2)) / imgW,
			H:     float64(faces.GetFloatAt(r, 3)) / imgH,
			Score: float64(faces.GetFloatAt(r, 14)),
		}
		f.Landmarks = make([]Point, 5)
		for i := range f.Landmarks {
			f.Landmarks[i] = Point{
				X: float64(faces.GetFloatAt(r, 4+2*i)) / imgW,
				Y: float64(faces.GetFloatAt(r, 5+2*i)) / imgH,
			}
		}
		out = append(out, f)
	}

	ts := in.Frame.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return Results{
		Seq:       in.Frame.Seq,
		Timestamp: ts,
		Faces:     limitFaces(out, y.opts),
	}, nil
}

// limitFaces keeps the best MaxNumFaces faces scoring at least the
// tracking confidence.
func limitFaces(faces []Face, opts Options) []Face {
	kept := faces[:0]
	for _, f := range faces {
		if f.Score >= opts.MinTrackingConfidence {
			kept = append(kept, f)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Score > kept[j].Score })
	if opts.MaxNumFaces > 0 && len(kept) > opts.MaxNumFaces {
		kept = kept[:opts.MaxNumFaces]
	}
	return kept
}

// Close releases the detector resources.
func (y *YuNet) Close() error {
	y.mu.Lock()
	defer y.mu.Unlock()
	if !y.closed {
		y.closed = true
		y.detector.Close()
	}
	return nil
}
