package blob

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/referralhub/internal/config"
	"github.com/spf13/afero"
	"go.uber.org/fx"
)

var Module = fx.Module("providers.blob",
	fx.Provide(NewFromConfig),
)

var ErrEmptyObject = errors.New("blob_empty_object")

// Provider stores an object and returns the URL it is publicly served from.
type Provider interface {
	Upload(ctx context.Context, data []byte, contentType string, name string) (string, error)
}

// FSProvider writes objects to an afero filesystem. Keys are
// <folder>/<yyyy>/<mm>/<ulid>-<slug>.<ext>.
type FSProvider struct {
	fs      afero.Fs
	folder  string
	baseURL string
	now     func() time.Time
}

func NewFromConfig(cfg config.Config) (Provider, error) {
	root := strings.TrimSpace(cfg.Blob.Root)
	if root == "" {
		return nil, errors.New("blob root is required")
	}
	fs := afero.NewBasePathFs(afero.NewOsFs(), root)
	return NewFS(fs, "payment-proofs", cfg.Blob.PublicBaseURL), nil
}

func NewFS(fs afero.Fs, folder, baseURL string) *FSProvider {
	return &FSProvider{
		fs:      fs,
		folder:  strings.Trim(folder, "/"),
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}
}

func (p *FSProvider) Upload(ctx context.Context, data []byte, contentType string, name string) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyObject
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	key := p.objectKey(name, contentType)
	if err := p.fs.MkdirAll(path.Dir(key), 0o755); err != nil {
		return "", fmt.Errorf("create blob directory: %w", err)
	}
	if err := afero.WriteFile(p.fs, key, data, 0o644); err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}
	return p.baseURL + "/" + key, nil
}

func (p *FSProvider) objectKey(name, contentType string) string {
	now := p.now().UTC()
	ext := strings.ToLower(path.Ext(name))
	if ext == "" {
		ext = extensionFor(contentType)
	}
	base := slug.Make(strings.TrimSuffix(path.Base(name), path.Ext(name)))
	if base == "" {
		base = "proof"
	}
	id := strings.ToLower(ulid.Make().String())
	return path.Join(p.folder, now.Format("2006"), now.Format("01"), id+"-"+base+ext)
}

func extensionFor(contentType string) string {
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "application/pdf":
		return ".pdf"
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	default:
		return ".bin"
	}
}
