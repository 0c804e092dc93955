package ai

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tech1ee/finuts/internal/service"
)

type fakeBridge struct {
	mu        sync.Mutex
	loadCalls int
	loadOK    bool
	loadErr   error
	reply     string
	inFlight  atomic.Int32
	maxSeen   atomic.Int32
}

func (b *fakeBridge) LoadModel(_ context.Context, _ string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.loadCalls++
	return b.loadOK, b.loadErr
}

func (b *fakeBridge) Complete(_ context.Context, _ string, _ int, _ float64) (*service.BridgeCompletion, error) {
	current := b.inFlight.Add(1)
	defer b.inFlight.Add(-1)
	for {
		seen := b.maxSeen.Load()
		if current <= seen || b.maxSeen.CompareAndSwap(seen, current) {
			break
		}
	}
	return &service.BridgeCompletion{Text: b.reply, InputTokens: 10, OutputTokens: 5}, nil
}

func TestOnDeviceClientLoadsModelOnce(t *testing.T) {
	bridge := &fakeBridge{loadOK: true, reply: "groceries"}
	client := NewOnDeviceClient(bridge, "/models/classifier.gguf")

	assert.False(t, client.Available())

	for i := 0; i < 3; i++ {
		completion, err := client.Complete(context.Background(), Task{Prompt: "categorize"})
		require.NoError(t, err)
		assert.Equal(t, "groceries", completion.Content)
		assert.Zero(t, completion.Cost)
	}

	assert.Equal(t, 1, bridge.loadCalls)
	assert.True(t, client.Available())
}

func TestOnDeviceClientLoadFailure(t *testing.T) {
	bridge := &fakeBridge{loadErr: errors.New("missing file")}
	client := NewOnDeviceClient(bridge, "/models/absent.gguf")

	_, err := client.Complete(context.Background(), Task{Prompt: "categorize"})
	require.Error(t, err)
	assert.False(t, client.Available())

	// The failed load sticks: later calls fail without retrying the load.
	_, err = client.Complete(context.Background(), Task{Prompt: "categorize"})
	require.Error(t, err)
	assert.Equal(t, 1, bridge.loadCalls)
}

func TestOnDeviceClientRejectedModel(t *testing.T) {
	bridge := &fakeBridge{loadOK: false}
	client := NewOnDeviceClient(bridge, "/models/bad.gguf")

	_, err := client.Complete(context.Background(), Task{Prompt: "categorize"})
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestOnDeviceClientSerializesInference(t *testing.T) {
	bridge := &fakeBridge{loadOK: true, reply: "ok"}
	client := NewOnDeviceClient(bridge, "/models/classifier.gguf")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.Complete(context.Background(), Task{Prompt: "categorize"})
			assert.NoError(t, err)
			// Availability is readable while other completions run.
			assert.True(t, client.Available())
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), bridge.maxSeen.Load())
}
