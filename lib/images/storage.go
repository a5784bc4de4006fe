package images

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	v1 "github.com/opencontainers/image-spec/specs-go/v1"
)

// Store layout, populated out-of-band by the site image gateway:
//
//	<store>/<type>/<identifier>/metadata.json
//	<store>/<type>/<identifier>/<rootfs payload>
//
// The identifier has already passed the character filter, so it is safe as
// a path component (no separators survive the filter).
type imageMetadata struct {
	Identifier string         `json:"identifier"`
	Format     Format         `json:"format"`
	Rootfs     string         `json:"rootfs"`
	SizeBytes  int64          `json:"size_bytes"`
	Config     v1.ImageConfig `json:"config,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

func imageDir(storeDir, imageType, identifier string) string {
	return filepath.Join(storeDir, imageType, identifier)
}

func metadataPath(storeDir, imageType, identifier string) string {
	return filepath.Join(imageDir(storeDir, imageType, identifier), "metadata.json")
}

func readMetadata(storeDir, imageType, identifier string) (*imageMetadata, error) {
	data, err := os.ReadFile(metadataPath(storeDir, imageType, identifier))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read metadata: %w", err)
	}

	var meta imageMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}

	return &meta, nil
}
