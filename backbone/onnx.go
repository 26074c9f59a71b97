package backbone

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/technic0/iFood2019/vision/preprocessing"
)

// ExtractorMetadata describes an exported ONNX backbone: its fixed input
// shape [1, 3, size, size] and output shape, either pooled [1, channels] or
// spatial [1, channels, h, w].
type ExtractorMetadata struct {
	InputShape  []int64 `json:"input_shape"`
	OutputShape []int64 `json:"output_shape"`
	ImageSize   int     `json:"image_size"`
}

// The ONNX runtime environment is process-wide; reference-count it so two
// extractors can coexist and the last Close tears it down.
var (
	ortMu   sync.Mutex
	ortRefs int
)

func acquireEnvironment() error {
	ortMu.Lock()
	defer ortMu.Unlock()
	if ortRefs == 0 {
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}
	ortRefs++
	return nil
}

func releaseEnvironment() {
	ortMu.Lock()
	defer ortMu.Unlock()
	ortRefs--
	if ortRefs == 0 {
		ort.DestroyEnvironment()
	}
}

// ONNXExtractor runs a frozen pre-trained backbone through ONNX Runtime.
// The session holds fixed single-image tensors; batches are fed one image
// at a time, which keeps output order identical to input order.
type ONNXExtractor struct {
	session      *ort.AdvancedSession
	meta         ExtractorMetadata
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	featureLen   int
	closed       bool
}

// NewONNXExtractor loads an exported backbone and its metadata descriptor.
func NewONNXExtractor(modelPath, metadataPath string) (*ONNXExtractor, error) {
	metaFile, err := os.ReadFile(metadataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var meta ExtractorMetadata
	if err := json.Unmarshal(metaFile, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	if err := validateMetadata(meta); err != nil {
		return nil, err
	}

	if err := acquireEnvironment(); err != nil {
		return nil, err
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(meta.InputShape...))
	if err != nil {
		releaseEnvironment()
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(meta.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		releaseEnvironment()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input"}, []string{"output"},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		releaseEnvironment()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	featureLen := 1
	for _, dim := range meta.OutputShape[1:] {
		featureLen *= int(dim)
	}

	return &ONNXExtractor{
		session:      session,
		meta:         meta,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		featureLen:   featureLen,
	}, nil
}

func validateMetadata(meta ExtractorMetadata) error {
	if meta.ImageSize <= 0 {
		return fmt.Errorf("metadata image size must be positive, got %d", meta.ImageSize)
	}
	if len(meta.InputShape) != 4 || meta.InputShape[0] != 1 || meta.InputShape[1] != preprocessing.Channels {
		return fmt.Errorf("input shape %v must be [1, 3, size, size]", meta.InputShape)
	}
	if int(meta.InputShape[2]) != meta.ImageSize || int(meta.InputShape[3]) != meta.ImageSize {
		return fmt.Errorf("input shape %v doesn't match image size %d", meta.InputShape, meta.ImageSize)
	}
	if len(meta.OutputShape) != 2 && len(meta.OutputShape) != 4 {
		return fmt.Errorf("output shape %v must be [1, channels] or [1, channels, h, w]", meta.OutputShape)
	}
	if meta.OutputShape[0] != 1 {
		return fmt.Errorf("output shape %v must have batch dimension 1", meta.OutputShape)
	}
	if len(meta.OutputShape) == 4 && meta.OutputShape[2] != meta.OutputShape[3] {
		return fmt.Errorf("output feature map %v must be square", meta.OutputShape)
	}
	return nil
}

// Features implements FeatureExtractor.
func (e *ONNXExtractor) Features(images []float32, batch int) ([]float32, error) {
	size := e.meta.ImageSize
	pixelsPerImage := size * size * preprocessing.Channels
	if len(images) != batch*pixelsPerImage {
		return nil, fmt.Errorf("image buffer length %d doesn't match batch %d at size %d", len(images), batch, size)
	}

	out := make([]float32, batch*e.featureLen)
	input := e.inputTensor.GetData()
	plane := size * size

	for b := 0; b < batch; b++ {
		// The loader produces HWC; the ONNX graph wants planar CHW.
		img := images[b*pixelsPerImage : (b+1)*pixelsPerImage]
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				pixel := (y*size + x)
				input[pixel] = img[pixel*preprocessing.Channels]
				input[plane+pixel] = img[pixel*preprocessing.Channels+1]
				input[2*plane+pixel] = img[pixel*preprocessing.Channels+2]
			}
		}

		if err := e.session.Run(); err != nil {
			return nil, fmt.Errorf("backbone inference failed on image %d: %w", b, err)
		}
		copy(out[b*e.featureLen:(b+1)*e.featureLen], e.outputTensor.GetData())
	}

	return out, nil
}

// InputSize implements FeatureExtractor.
func (e *ONNXExtractor) InputSize() int {
	return e.meta.ImageSize
}

// FeatureDim implements FeatureExtractor.
func (e *ONNXExtractor) FeatureDim() int {
	return int(e.meta.OutputShape[1])
}

// SpatialSize implements FeatureExtractor.
func (e *ONNXExtractor) SpatialSize() int {
	if len(e.meta.OutputShape) == 4 {
		return int(e.meta.OutputShape[2])
	}
	return 1
}

// Close releases the session and its tensors.
func (e *ONNXExtractor) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	if e.inputTensor != nil {
		e.inputTensor.Destroy()
	}
	if e.outputTensor != nil {
		e.outputTensor.Destroy()
	}
	if e.session != nil {
		e.session.Destroy()
	}
	releaseEnvironment()
	return nil
}
