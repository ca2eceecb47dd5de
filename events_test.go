package casper_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	casper "github.com/toruslabs/casper-provider-go"
	"github.com/toruslabs/casper-provider-go/pkg/log"
)

func TestEventEmitter_DeliversInSubscriptionOrder(t *testing.T) {
	t.Parallel()

	emitter := casper.NewEventEmitter(casper.DefaultMaxListeners, log.NoopLogger{})

	var order []string
	emitter.On(casper.EventAccountsChanged, func(payload any) {
		order = append(order, "first")
	})
	emitter.On(casper.EventAccountsChanged, func(payload any) {
		order = append(order, "second")
	})
	emitter.On(casper.EventChainChanged, func(payload any) {
		order = append(order, "wrong event")
	})

	emitter.Emit(casper.EventAccountsChanged, []string{"addrA"})
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestEventEmitter_PayloadReachesListener(t *testing.T) {
	t.Parallel()

	emitter := casper.NewEventEmitter(casper.DefaultMaxListeners, log.NoopLogger{})

	var got any
	emitter.On(casper.EventConnect, func(payload any) {
		got = payload
	})

	emitter.Emit(casper.EventConnect, casper.ConnectInfo{ChainID: "casper"})
	assert.Equal(t, casper.ConnectInfo{ChainID: "casper"}, got)
}

func TestEventEmitter_OnceFiresOnce(t *testing.T) {
	t.Parallel()

	emitter := casper.NewEventEmitter(casper.DefaultMaxListeners, log.NoopLogger{})

	calls := 0
	emitter.Once(casper.EventInitialized, func(payload any) {
		calls++
	})

	emitter.Emit(casper.EventInitialized, nil)
	emitter.Emit(casper.EventInitialized, nil)
	assert.Equal(t, 1, calls)
	assert.Zero(t, emitter.ListenerCount(casper.EventInitialized))
}

func TestEventEmitter_OnceSurvivesRecursiveEmit(t *testing.T) {
	t.Parallel()

	emitter := casper.NewEventEmitter(casper.DefaultMaxListeners, log.NoopLogger{})

	calls := 0
	emitter.Once(casper.EventDisconnect, func(payload any) {
		calls++
		// A listener re-emitting its own event must not see itself again.
		emitter.Emit(casper.EventDisconnect, payload)
	})

	emitter.Emit(casper.EventDisconnect, nil)
	assert.Equal(t, 1, calls)
}

func TestEventEmitter_RemoveListener(t *testing.T) {
	t.Parallel()

	emitter := casper.NewEventEmitter(casper.DefaultMaxListeners, log.NoopLogger{})

	calls := 0
	id := emitter.On(casper.EventChainChanged, func(payload any) {
		calls++
	})
	require.Equal(t, 1, emitter.ListenerCount(casper.EventChainChanged))

	emitter.RemoveListener(casper.EventChainChanged, id)
	emitter.RemoveListener(casper.EventChainChanged, 9999)

	emitter.Emit(casper.EventChainChanged, "casper")
	assert.Zero(t, calls)
	assert.Zero(t, emitter.ListenerCount(casper.EventChainChanged))
}

func TestEventEmitter_CapIsDiagnosticOnly(t *testing.T) {
	t.Parallel()

	emitter := casper.NewEventEmitter(1, log.NoopLogger{})

	calls := 0
	emitter.On(casper.EventConnect, func(payload any) { calls++ })
	emitter.On(casper.EventConnect, func(payload any) { calls++ })

	emitter.Emit(casper.EventConnect, nil)
	assert.Equal(t, 2, calls, "listeners beyond the cap still register")
}

func TestEventEmitter_NilListenerIgnored(t *testing.T) {
	t.Parallel()

	emitter := casper.NewEventEmitter(casper.DefaultMaxListeners, log.NoopLogger{})
	assert.Zero(t, emitter.On(casper.EventConnect, nil))
	assert.Zero(t, emitter.ListenerCount(casper.EventConnect))

	emitter.Emit(casper.EventConnect, nil)
}
