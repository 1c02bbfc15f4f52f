package processor

import (
	"context"
	"fmt"

	"github.com/maauso/clearmedia-api/internal/imgproc"
)

// Compile-time check that QueueAdapter implements Processor.
var _ Processor = (*QueueAdapter)(nil)

// QueueAdapter adapts the image and document task queue to Processor.
type QueueAdapter struct {
	client     imgproc.Client
	operations map[string]string
	sourceURL  func(ref string) string
}

// DefaultQueueOperations maps conversion kinds to queue operations.
func DefaultQueueOperations() map[string]string {
	return map[string]string{
		"image_watermark_removal": imgproc.OperationRemoveWatermark,
		"image_restoration":       imgproc.OperationRestore,
		"image_cutout":            imgproc.OperationCutout,
		"image_colorization":      imgproc.OperationColorize,
		"pdf_watermark_removal":   imgproc.OperationPDFRemoveWatermark,
		"audio_watermark_removal": imgproc.OperationAudioRemoveWatermark,
		"ebook_watermark_removal": imgproc.OperationEbookRemoveWatermark,
	}
}

// NewQueueAdapter creates a new task queue adapter. sourceURL turns an input
// storage reference into a URL the workers can fetch; nil passes it through.
func NewQueueAdapter(client imgproc.Client, operations map[string]string, sourceURL func(ref string) string) *QueueAdapter {
	if operations == nil {
		operations = DefaultQueueOperations()
	}
	return &QueueAdapter{client: client, operations: operations, sourceURL: sourceURL}
}

// Kinds returns the conversion kinds the adapter can run.
func (a *QueueAdapter) Kinds() []string {
	kinds := make([]string, 0, len(a.operations))
	for k := range a.operations {
		kinds = append(kinds, k)
	}
	return kinds
}

// Submit enqueues a task for the request.
func (a *QueueAdapter) Submit(ctx context.Context, req Request) (string, error) {
	op, ok := a.operations[req.Kind]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedKind, req.Kind)
	}

	src := req.SourceRef
	if a.sourceURL != nil && !isURL(src) {
		src = a.sourceURL(src)
	}

	taskID, err := a.client.Submit(ctx, imgproc.TaskInput{
		Operation: op,
		SourceURL: src,
		Params:    req.Params,
	})
	if err != nil {
		return "", fmt.Errorf("queue adapter submit: %w", err)
	}
	return taskID, nil
}

// Describe fetches and translates the task status.
func (a *QueueAdapter) Describe(ctx context.Context, _ string, taskID string) (Observation, error) {
	st, err := a.client.Status(ctx, taskID)
	if err != nil {
		return Observation{}, fmt.Errorf("queue adapter describe: %w", err)
	}
	return TranslateQueue(st), nil
}
