package interfaces

import (
	"context"

	"github.com/m-mizutani/ghrelease/pkg/domain/model"
)

// PublishUseCase defines the release publishing flow
type PublishUseCase interface {
	// Publish creates, edits or discards a release and uploads its assets
	Publish(ctx context.Context, input *model.PublishInput) (*model.PublishResult, error)
}
