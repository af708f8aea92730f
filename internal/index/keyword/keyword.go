package keyword

import (
	"context"

	"go.uber.org/zap"

	apperrors "ragcore/internal/errors"
	"ragcore/internal/index"
)

// Backend names accepted by the factory.
const (
	BackendBleve         = "bleve"
	BackendElasticsearch = "elasticsearch"
	BackendNone          = "none"
)

// New selects the keyword backend. "none" disables the plane entirely;
// searches then degrade to vector-only.
func New(backend, dataDir string, addrs []string, logger *zap.Logger) (index.KeywordIndex, error) {
	switch backend {
	case BackendBleve, "":
		return NewBleveIndex(dataDir, logger), nil
	case BackendElasticsearch:
		return NewElasticIndex(addrs, logger)
	case BackendNone:
		return Disabled{}, nil
	default:
		return nil, apperrors.Validation("KEYWORD_BACKEND", "unknown keyword backend: "+backend)
	}
}

// Disabled is the null backend. Healthy reports false so retrieval skips
// the keyword leg without probing anything.
type Disabled struct{}

func (Disabled) Index(context.Context, string, []index.KeywordDoc) error { return nil }
func (Disabled) Delete(context.Context, string, string) error            { return nil }
func (Disabled) Search(context.Context, string, string, int) ([]index.KeywordHit, error) {
	return nil, nil
}
func (Disabled) Healthy(context.Context) bool { return false }
func (Disabled) Close() error                 { return nil }
