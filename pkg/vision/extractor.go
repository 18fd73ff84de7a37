package vision

import (
	"context"
	"log/slog"
	"sync"

	"github.com/cardworks/appraisal/pkg/contracts"
	"github.com/cardworks/appraisal/pkg/objectstore"
)

// Extractor runs the ordered feature pipeline: fetch, decode, moderation,
// card-type validation, boundary crop, pixel analyses, OCR.
type Extractor struct {
	objects objectstore.ObjectStore
	backend Backend
	log     *slog.Logger
}

// NewExtractor wires the extractor to its object store and vision backend.
func NewExtractor(objects objectstore.ObjectStore, backend Backend) *Extractor {
	return &Extractor{
		objects: objects,
		backend: backend,
		log:     slog.Default().With("component", "vision"),
	}
}

// Extract produces a FeatureEnvelope for one image key owned by ownerID.
// Moderation and card-type rejections surface as InvalidContent; decode
// failures as InvalidImage; everything else follows the transient taxonomy.
func (e *Extractor) Extract(ctx context.Context, ownerID, key string) (*contracts.FeatureEnvelope, error) {
	if err := objectstore.ValidateOwnedKey(key, ownerID); err != nil {
		return nil, err
	}

	data, err := e.objects.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	img, meta, err := decodeImage(data)
	if err != nil {
		return nil, err
	}

	analysis, err := e.backend.Analyze(ctx, data)
	if err != nil {
		return nil, err
	}

	if err := checkModeration(analysis.ModerationLabels); err != nil {
		return nil, err
	}
	if err := checkCardType(analysis.Labels); err != nil {
		return nil, err
	}

	plane, w, h := grayscalePlane(img)
	rect, detected := detectCardBounds(plane, w, h)
	if !detected {
		e.log.WarnContext(ctx, "card boundary not detected, using full image",
			"owner_id", ownerID, "key", key)
	} else if aspectWarning(rect) {
		e.log.WarnContext(ctx, "card crop outside typical aspect window",
			"owner_id", ownerID, "key", key, "width", rect.Dx(), "height", rect.Dy())
	}

	env := &contracts.FeatureEnvelope{
		Blocks: analysis.Blocks,
		Image:  meta,
	}

	// The remaining analyses are independent; run them concurrently.
	reflective := hasReflectiveLabel(analysis.Labels)
	var wg sync.WaitGroup
	wg.Add(4)
	go func() {
		defer wg.Done()
		env.Borders = borderMetrics(plane, w, h, rect)
	}()
	go func() {
		defer wg.Done()
		env.HoloVariance = holoVariance(img, rect, reflective)
	}()
	go func() {
		defer wg.Done()
		env.Quality = imageQuality(plane, w, h, rect)
	}()
	go func() {
		defer wg.Done()
		env.Fonts = fontMetrics(analysis.Blocks)
	}()
	wg.Wait()

	return env, nil
}
