package providers

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/modelrelay/modelrelay/internal/models"
	"github.com/modelrelay/modelrelay/internal/services/stream"
)

// defaultTimeout bounds non-streaming upstream calls when the provider
// config does not set one.
const defaultTimeout = 60 * time.Second

// Adapter translates normalized chat requests into one provider's API.
// Implementations return AppError values so HTTP status mapping stays
// uniform.
type Adapter interface {
	Name() string
	DefaultModel() string

	ChatCompletion(ctx context.Context, req *models.ChatCompletionRequest) (*models.ChatCompletionResponse, error)

	// StreamChatCompletion starts a streaming completion. The returned
	// stream is lazy: no tokens are pulled until Recv is called.
	StreamChatCompletion(ctx context.Context, req *models.ChatCompletionRequest) (stream.DeltaStream, error)

	// Models returns the adapter's advertised model catalogue.
	Models() []models.ModelInfo
}

func callTimeout(timeoutMs int) time.Duration {
	if timeoutMs > 0 {
		return time.Duration(timeoutMs) * time.Millisecond
	}
	return defaultTimeout
}

// stampResponse fills in the identity fields a provider did not supply, so
// every adapter returns the same response shape.
func stampResponse(resp *models.ChatCompletionResponse) {
	if resp.ID == "" {
		resp.ID = "chatcmpl-" + uuid.NewString()
	}
	if resp.Created == 0 {
		resp.Created = time.Now().Unix()
	}
}

func modelInfos(owner string, ids []string) []models.ModelInfo {
	infos := make([]models.ModelInfo, 0, len(ids))
	for _, id := range ids {
		infos = append(infos, models.ModelInfo{
			ID:      id,
			Object:  "model",
			OwnedBy: owner,
		})
	}
	return infos
}
