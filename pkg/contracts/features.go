package contracts

// BlockType distinguishes OCR line and word granularity.
type BlockType string

const (
	BlockLine BlockType = "LINE"
	BlockWord BlockType = "WORD"
)

// BoundingBox is an axis-aligned box with all coordinates normalized to [0,1].
// Invariant: Left+Width <= 1 and Top+Height <= 1.
type BoundingBox struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// OCRBlock is a recognized span of text with its detection confidence.
type OCRBlock struct {
	Text       string      `json:"text"`
	Confidence float64     `json:"confidence"`
	Box        BoundingBox `json:"box"`
	Type       BlockType   `json:"type"`
}

// BorderMetrics holds per-side border brightness ratios and a symmetry score,
// all in [0,1].
type BorderMetrics struct {
	Top      float64 `json:"top"`
	Bottom   float64 `json:"bottom"`
	Left     float64 `json:"left"`
	Right    float64 `json:"right"`
	Symmetry float64 `json:"symmetryScore"`
}

// FontMetrics captures typographic regularity signals derived from OCR blocks.
type FontMetrics struct {
	Kerning        []float64 `json:"kerning,omitempty"`
	AlignmentScore float64   `json:"alignmentScore"`
	SizeVariance   float64   `json:"sizeVariance"`
}

// ImageQuality summarizes capture quality of the upload.
type ImageQuality struct {
	Blur          float64 `json:"blur"`
	GlareDetected bool    `json:"glareDetected"`
	Brightness    float64 `json:"brightness"`
}

// ImageMetadata describes the decoded image.
type ImageMetadata struct {
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Format    string `json:"format"`
	SizeBytes int64  `json:"sizeBytes"`
}

// FeatureEnvelope is the full bundle of per-image signals produced by the
// vision stage. It is owned by a single pipeline execution and is never
// persisted as a first-class entity.
type FeatureEnvelope struct {
	Blocks       []OCRBlock    `json:"blocks"`
	Borders      BorderMetrics `json:"borders"`
	HoloVariance float64       `json:"holoVariance"`
	Fonts        FontMetrics   `json:"fonts"`
	Quality      ImageQuality  `json:"quality"`
	Image        ImageMetadata `json:"image"`
}

// Lines returns the LINE blocks in their original order.
func (f *FeatureEnvelope) Lines() []OCRBlock {
	var out []OCRBlock
	for _, b := range f.Blocks {
		if b.Type == BlockLine {
			out = append(out, b)
		}
	}
	return out
}
