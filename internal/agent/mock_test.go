package agent

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/l3ad-solutions/intake/pkg/anthropic"
)

// --- Anthropic Mock ---

type mockModelClient struct {
	mock.Mock
}

var _ anthropic.Client = (*mockModelClient)(nil)

func (m *mockModelClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

// textResponse builds a single-text-block response attributed to model.
func textResponse(model, text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		ID:    "msg_test",
		Model: model,
		Content: []anthropic.ContentBlock{
			{Type: "text", Text: text},
		},
		StopReason: "end_turn",
	}
}

// forModel matches any CreateMessage request targeting the given model.
func forModel(model string) interface{} {
	return mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Model == model
	})
}
