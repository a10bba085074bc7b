package ml

import (
	"context"
	"fmt"
	"image"
	"os"
	"runtime"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/san-kum/helmet-cv/server/models"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

var (
	ortInitialized bool
	ortMutex       sync.Mutex
)

type ONNXConfig struct {
	ModelPath   string
	LibraryPath string
	ClassesPath string
	InputWidth  int
	InputHeight int
	Threads     int
}

// ONNXDetector runs a YOLOv8/11 detection model through ONNX Runtime. The
// session is created once and reused for every call.
type ONNXDetector struct {
	session     *ort.DynamicAdvancedSession
	classes     ClassNames
	inputName   string
	outputName  string
	inputWidth  int
	inputHeight int
	features    int
	anchors     int
	logger      *zap.Logger
}

func NewONNXDetector(config ONNXConfig, logger *zap.Logger) (*ONNXDetector, error) {
	if _, err := os.Stat(config.ModelPath); err != nil {
		return nil, fmt.Errorf("model file not available: %w", err)
	}
	if err := initEnvironment(config.LibraryPath); err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(config.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model inputs/outputs: %w", err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, fmt.Errorf("model %s has no inputs or outputs", config.ModelPath)
	}

	width, height := config.InputWidth, config.InputHeight
	if dims := inputs[0].Dimensions; len(dims) == 4 && dims[2] > 0 && dims[3] > 0 {
		height, width = int(dims[2]), int(dims[3])
	}
	if width <= 0 || height <= 0 {
		width, height = 640, 640
	}

	classes := LoadClassNamesOrDefault(config.ClassesPath, logger)

	features := 4 + len(classes)
	anchors := anchorCount(width, height)
	if dims := outputs[0].Dimensions; len(dims) == 3 {
		if dims[1] > 0 {
			features = int(dims[1])
		}
		if dims[2] > 0 {
			anchors = int(dims[2])
		}
	}
	if features-4 != len(classes) {
		logger.Warn("Model class count does not match class names",
			zap.Int("model_classes", features-4),
			zap.Int("names", len(classes)))
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	threads := config.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	if err := options.SetIntraOpNumThreads(threads); err != nil {
		logger.Warn("Failed to set intra-op threads", zap.Error(err))
	}
	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableAll); err != nil {
		logger.Warn("Failed to set graph optimization level", zap.Error(err))
	}

	session, err := ort.NewDynamicAdvancedSession(config.ModelPath,
		[]string{inputs[0].Name}, []string{outputs[0].Name}, options)
	if err != nil {
		return nil, fmt.Errorf("failed to load model %s: %w", config.ModelPath, err)
	}

	logger.Info("ONNX model loaded",
		zap.String("model", config.ModelPath),
		zap.Int("input_width", width),
		zap.Int("input_height", height),
		zap.Int("classes", features-4),
		zap.Int("anchors", anchors))

	return &ONNXDetector{
		session:     session,
		classes:     classes,
		inputName:   inputs[0].Name,
		outputName:  outputs[0].Name,
		inputWidth:  width,
		inputHeight: height,
		features:    features,
		anchors:     anchors,
		logger:      logger,
	}, nil
}

func initEnvironment(libraryPath string) error {
	ortMutex.Lock()
	defer ortMutex.Unlock()

	if ortInitialized {
		return nil
	}
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize onnxruntime: %w", err)
	}
	ortInitialized = true
	return nil
}

func (d *ONNXDetector) Classes() ClassNames {
	return d.classes
}

func (d *ONNXDetector) Detect(ctx context.Context, img image.Image, th models.Thresholds) ([]models.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	if bounds.Empty() {
		return []models.Detection{}, nil
	}

	input, err := ort.NewTensor(ort.NewShape(1, 3, int64(d.inputHeight), int64(d.inputWidth)), d.preprocess(img))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer input.Destroy()

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(d.features), int64(d.anchors)))
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer output.Destroy()

	if err := d.session.Run([]ort.Value{input}, []ort.Value{output}); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	scaleX := float64(bounds.Dx()) / float64(d.inputWidth)
	scaleY := float64(bounds.Dy()) / float64(d.inputHeight)
	detections := decodeOutput(output.GetData(), d.features, d.anchors, d.classes, th.Confidence, scaleX, scaleY, bounds)

	return NonMaxSuppression(detections, th.Overlap), nil
}

// preprocess stretches img to the model input and lays it out as NCHW
// float32 in [0, 1].
func (d *ONNXDetector) preprocess(img image.Image) []float32 {
	resized := imaging.Resize(img, d.inputWidth, d.inputHeight, imaging.Linear)

	plane := d.inputWidth * d.inputHeight
	data := make([]float32, 3*plane)
	for y := 0; y < d.inputHeight; y++ {
		row := resized.Pix[y*resized.Stride:]
		for x := 0; x < d.inputWidth; x++ {
			idx := y*d.inputWidth + x
			data[idx] = float32(row[x*4]) / 255.0
			data[plane+idx] = float32(row[x*4+1]) / 255.0
			data[2*plane+idx] = float32(row[x*4+2]) / 255.0
		}
	}
	return data
}

func (d *ONNXDetector) Close() error {
	if d.session == nil {
		return nil
	}
	if err := d.session.Destroy(); err != nil {
		return fmt.Errorf("failed to destroy session: %w", err)
	}
	d.session = nil
	return nil
}
