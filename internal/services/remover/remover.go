// Package remover wraps the background-removal backends. The removal itself
// is opaque to the gateway: a backend takes image bytes and returns a PNG
// whose background pixels are transparent.
package remover

import (
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/phambaophuc/background-remover/internal/config"
	"go.uber.org/zap"
)

type Remover interface {
	Remove(ctx context.Context, data []byte, mimeType string) ([]byte, error)
}

// New builds the configured backend wrapped with the per-call timeout.
func New(cfg config.RemoverConfig, logger *zap.Logger) (Remover, error) {
	var r Remover
	switch cfg.Backend {
	case config.RemoverBackendHTTP:
		r = NewHTTPRemover(cfg.URL, cfg.MaxDimension, nil)
	case config.RemoverBackendLocal:
		r = NewLocalRemover(cfg.LocalTolerance, cfg.MaxDimension)
	default:
		return nil, fmt.Errorf("unknown remover backend %q", cfg.Backend)
	}

	logger.Info("Background remover configured",
		zap.String("backend", cfg.Backend),
		zap.Duration("timeout", cfg.Timeout),
		zap.Int("max_dimension", cfg.MaxDimension))

	return WithTimeout(r, cfg.Timeout), nil
}

// fitWithin scales img down so that its longest side is at most maxDim.
// maxDim <= 0 disables scaling.
func fitWithin(img image.Image, maxDim int) (image.Image, bool) {
	if maxDim <= 0 {
		return img, false
	}
	b := img.Bounds()
	if max(b.Dx(), b.Dy()) <= maxDim {
		return img, false
	}
	return imaging.Fit(img, maxDim, maxDim, imaging.Lanczos), true
}
