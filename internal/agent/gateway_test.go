package agent

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	testFastModel     = "fast-model"
	testBalancedModel = "balanced-model"
	testQualityModel  = "quality-model"
)

func newTestGateway(mc *mockModelClient) *Gateway {
	return NewGateway(mc, testFastModel, testBalancedModel, testQualityModel)
}

func TestGateway_Call_RoutesTierToModel(t *testing.T) {
	mc := new(mockModelClient)
	g := newTestGateway(mc)

	mc.On("CreateMessage", mock.Anything, forModel(testFastModel)).
		Return(textResponse(testFastModel, "extracted"), nil).Once()

	text, err := g.Call(context.Background(), TierFast, 1500, "extract this")
	require.NoError(t, err)
	assert.Equal(t, "extracted", text)

	mc.AssertExpectations(t)
}

func TestGateway_Call_NoRetry(t *testing.T) {
	mc := new(mockModelClient)
	g := newTestGateway(mc)

	mc.On("CreateMessage", mock.Anything, forModel(testBalancedModel)).
		Return(nil, eris.New("overloaded")).Once()

	_, err := g.Call(context.Background(), TierBalanced, 100, "prompt")
	assert.Error(t, err)

	mc.AssertExpectations(t)
	mc.AssertNumberOfCalls(t, "CreateMessage", 1)
}

func TestGateway_CallWithFallback_QualityServes(t *testing.T) {
	mc := new(mockModelClient)
	g := newTestGateway(mc)

	mc.On("CreateMessage", mock.Anything, forModel(testQualityModel)).
		Return(textResponse(testQualityModel, "plan"), nil).Once()

	text, servedBy, err := g.CallWithFallback(context.Background(), TierQuality, 1000, "plan prompt")
	require.NoError(t, err)
	assert.Equal(t, "plan", text)
	assert.Equal(t, testQualityModel, servedBy)

	mc.AssertExpectations(t)
}

func TestGateway_CallWithFallback_FallsBackToBalanced(t *testing.T) {
	mc := new(mockModelClient)
	g := newTestGateway(mc)

	mc.On("CreateMessage", mock.Anything, forModel(testQualityModel)).
		Return(nil, eris.New("rate limited")).Once()
	mc.On("CreateMessage", mock.Anything, forModel(testBalancedModel)).
		Return(textResponse(testBalancedModel, "plan"), nil).Once()

	text, servedBy, err := g.CallWithFallback(context.Background(), TierQuality, 1000, "plan prompt")
	require.NoError(t, err)
	assert.Equal(t, "plan", text)
	assert.Equal(t, testBalancedModel, servedBy)

	mc.AssertExpectations(t)
}

func TestGateway_CallWithFallback_BothFail(t *testing.T) {
	mc := new(mockModelClient)
	g := newTestGateway(mc)

	mc.On("CreateMessage", mock.Anything, mock.Anything).
		Return(nil, eris.New("down")).Twice()

	_, _, err := g.CallWithFallback(context.Background(), TierQuality, 1000, "plan prompt")
	assert.Error(t, err)

	// Exactly one fallback attempt, never a third call and never the fast tier.
	mc.AssertNumberOfCalls(t, "CreateMessage", 2)
}

func TestGateway_CallWithFallback_FastNeverFallsBack(t *testing.T) {
	mc := new(mockModelClient)
	g := newTestGateway(mc)

	mc.On("CreateMessage", mock.Anything, forModel(testFastModel)).
		Return(nil, eris.New("down")).Once()

	_, _, err := g.CallWithFallback(context.Background(), TierFast, 100, "prompt")
	assert.Error(t, err)

	mc.AssertNumberOfCalls(t, "CreateMessage", 1)
}
