package images

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/distribution/reference"

	"github.com/jobroot/jobroot/lib/logger"
)

// TypeDocker is the image type whose identifiers follow docker reference
// syntax and get a tag pinned when missing. Other types are looked up
// verbatim.
const TypeDocker = "docker"

// Resolver resolves a requested image against the local site store.
type Resolver interface {
	Resolve(ctx context.Context, imageType, identifier string) (*ImageData, error)
}

type resolver struct {
	storeDir string
}

// NewResolver creates a resolver over the site image store directory.
func NewResolver(storeDir string) Resolver {
	return &resolver{storeDir: storeDir}
}

func (r *resolver) Resolve(ctx context.Context, imageType, identifier string) (*ImageData, error) {
	log := logger.FromContext(ctx)

	if imageType == "" || identifier == "" {
		return nil, fmt.Errorf("%w: empty image type or identifier", ErrInvalidIdentifier)
	}

	name := identifier
	if imageType == TypeDocker {
		normalized, err := normalizeIdentifier(identifier)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidIdentifier, err.Error())
		}
		name = normalized
	}

	meta, err := readMetadata(r.storeDir, imageType, name)
	if err != nil {
		return nil, fmt.Errorf("lookup %s/%s: %w", imageType, name, err)
	}

	if !meta.Format.valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, meta.Format)
	}

	payload := filepath.Join(imageDir(r.storeDir, imageType, name), meta.Rootfs)
	info, err := os.Stat(payload)
	if err != nil {
		return nil, fmt.Errorf("stat image payload: %w", err)
	}
	if meta.Format == FormatDir && !info.IsDir() {
		return nil, fmt.Errorf("%w: dir image payload %s is not a directory", ErrUnsupportedFormat, payload)
	}
	if meta.Format.RequiresLoop() && info.IsDir() {
		return nil, fmt.Errorf("%w: %s image payload %s is a directory", ErrUnsupportedFormat, meta.Format, payload)
	}

	img := &ImageData{
		Type:         imageType,
		Identifier:   name,
		Format:       meta.Format,
		UseLoopMount: meta.Format.RequiresLoop(),
		Path:         payload,
		Config:       meta.Config,
		SizeBytes:    meta.SizeBytes,
		CreatedAt:    meta.CreatedAt,
	}

	log.DebugContext(ctx, "resolved image",
		"type", imageType, "identifier", name,
		"format", meta.Format, "loop", img.UseLoopMount,
		"created_at", meta.CreatedAt)

	return img, nil
}

// normalizeIdentifier validates a docker identifier and pins a tag:
// busybox -> busybox:latest. The familiar form is kept so identifiers that
// passed the character filter map to stable store paths.
func normalizeIdentifier(identifier string) (string, error) {
	named, err := reference.ParseNormalizedNamed(identifier)
	if err != nil {
		return "", err
	}

	// Ensure it has a tag (add :latest if missing)
	tagged := reference.TagNameOnly(named)
	return reference.FamiliarString(tagged), nil
}
