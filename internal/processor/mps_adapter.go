package processor

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/maauso/clearmedia-api/internal/mps"
)

// Compile-time check that MPSAdapter implements Processor.
var _ Processor = (*MPSAdapter)(nil)

// MPSConfig describes where the media-processing service reads and writes.
type MPSConfig struct {
	Bucket    string
	Region    string
	OutputDir string

	// Definitions maps a conversion kind to its smart-erase preset.
	// Kinds without an entry use mps.DefinitionWatermarkRemoval.
	Definitions map[string]int
}

// MPSAdapter adapts the media-processing client to Processor.
type MPSAdapter struct {
	client    mps.Client
	cfg       MPSConfig
	publicURL func(key string) string
}

// NewMPSAdapter creates a new media-processing adapter.
// publicURL turns a bare output object key into a downloadable URL; nil
// leaves keys untouched.
func NewMPSAdapter(client mps.Client, cfg MPSConfig, publicURL func(key string) string) *MPSAdapter {
	if cfg.OutputDir == "" {
		cfg.OutputDir = "/erased/"
	}
	return &MPSAdapter{client: client, cfg: cfg, publicURL: publicURL}
}

// Submit starts a smart-erase task for the request.
func (a *MPSAdapter) Submit(ctx context.Context, req Request) (string, error) {
	definition, ok := a.cfg.Definitions[req.Kind]
	if !ok {
		definition = mps.DefinitionWatermarkRemoval
	}

	taskID, err := a.client.ProcessMedia(ctx, mps.ProcessMediaInput{
		InputBucket: a.cfg.Bucket,
		InputRegion: a.cfg.Region,
		InputObject: objectKey(req.SourceRef),
		OutputDir:   a.cfg.OutputDir,
		Definition:  definition,
	})
	if err != nil {
		return "", fmt.Errorf("mps adapter submit: %w", err)
	}
	return taskID, nil
}

// Describe fetches and translates the task description.
func (a *MPSAdapter) Describe(ctx context.Context, _ string, taskID string) (Observation, error) {
	detail, err := a.client.DescribeTaskDetail(ctx, taskID)
	if err != nil {
		return Observation{}, fmt.Errorf("mps adapter describe: %w", err)
	}

	obs := TranslateMPS(detail)
	if obs.OutputRef != "" && !isURL(obs.OutputRef) && a.publicURL != nil {
		obs.OutputRef = a.publicURL(strings.TrimLeft(obs.OutputRef, "/"))
	}
	return obs, nil
}

// objectKey strips scheme and host from a URL reference, leaving the key.
func objectKey(ref string) string {
	if isURL(ref) {
		if u, err := url.Parse(ref); err == nil {
			return strings.TrimLeft(u.Path, "/")
		}
	}
	return strings.TrimLeft(ref, "/")
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
