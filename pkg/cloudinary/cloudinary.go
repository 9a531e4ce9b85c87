package cloudinary

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/rs/zerolog"
)

// Config contains credentials required to talk to Cloudinary.
type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

// Archive stores uploaded source documents as raw Cloudinary assets so the
// original file behind an exercise can be retrieved later.
type Archive struct {
	client *cloudinary.Cloudinary
	folder string
	logger zerolog.Logger
	now    func() time.Time
}

// New constructs a Cloudinary document archive.
func New(cfg Config, logger zerolog.Logger) (*Archive, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("cloudinary credentials must be provided")
	}

	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}

	return &Archive{
		client: cld,
		folder: strings.Trim(cfg.Folder, "/"),
		logger: logger.With().Str("component", "document_archive").Logger(),
		now:    time.Now,
	}, nil
}

// Upload archives the document and returns its secure URL.
func (a *Archive) Upload(ctx context.Context, name string, reader io.Reader) (string, error) {
	publicID := buildPublicID(name, a.now())
	overwrite := false

	result, err := a.client.Upload.Upload(ctx, reader, uploader.UploadParams{
		Folder:       a.folder,
		PublicID:     publicID,
		ResourceType: "raw",
		Overwrite:    &overwrite,
		Tags:         []string{"reading-exercise"},
	})
	if err != nil {
		return "", fmt.Errorf("failed to archive document: %w", err)
	}
	if result.Error.Message != "" {
		return "", fmt.Errorf("failed to archive document: %s", result.Error.Message)
	}

	a.logger.Info().
		Str("public_id", result.PublicID).
		Int("bytes", result.Bytes).
		Msg("source document archived")

	return result.SecureURL, nil
}

// buildPublicID keeps the extension because raw assets are served by their
// full public id.
func buildPublicID(name string, at time.Time) string {
	ext := strings.ToLower(filepath.Ext(name))
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		}
		return '-'
	}, base)

	base = strings.Trim(base, "-")
	for strings.Contains(base, "--") {
		base = strings.ReplaceAll(base, "--", "-")
	}
	if base == "" {
		base = "document"
	}

	return fmt.Sprintf("%s-%d%s", base, at.Unix(), ext)
}
