package casper

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toruslabs/casper-provider-go/pkg/jsonrpc"
	"github.com/toruslabs/casper-provider-go/pkg/log"
)

func newTestRouter(t *testing.T) (*notificationRouter, *stateMachine, *[]recordedEvent) {
	t.Helper()

	sm, events := newTestMachine(t)
	return newNotificationRouter(sm, nil, log.NoopLogger{}), sm, events
}

func notification(t *testing.T, method string, params any) *jsonrpc.Message {
	t.Helper()

	msg, err := jsonrpc.NewNotification(method, params)
	require.NoError(t, err)
	return msg
}

func TestRouter_AccountsChanged(t *testing.T) {
	t.Parallel()

	router, sm, events := newTestRouter(t)

	router.dispatch(notification(t, MethodAccountsChanged, []string{"acc1", "acc2"}))

	require.Equal(t, []Event{EventAccountsChanged}, eventNames(*events))
	assert.Equal(t, []string{"acc1", "acc2"}, sm.snapshot().Accounts)
	assert.Equal(t, "acc1", sm.snapshot().SelectedAddress)
}

func TestRouter_AccountsChangedMalformedParamsBecomeEmptyList(t *testing.T) {
	t.Parallel()

	router, sm, events := newTestRouter(t)
	sm.handleAccountsChanged([]string{"acc1"}, false, true)
	*events = nil

	router.dispatch(notification(t, MethodAccountsChanged, map[string]string{"not": "a list"}))

	require.Equal(t, []Event{EventAccountsChanged}, eventNames(*events))
	assert.Empty(t, sm.snapshot().Accounts)
	assert.Empty(t, sm.snapshot().SelectedAddress)
}

func TestRouter_ChainChanged(t *testing.T) {
	t.Parallel()

	router, sm, events := newTestRouter(t)
	sm.markInitialized()
	*events = nil

	router.dispatch(notification(t, MethodChainChanged, ChainChangedParams{ChainID: "casper-test"}))

	require.Equal(t, []Event{EventConnect, EventChainChanged}, eventNames(*events))
	assert.Equal(t, "casper-test", sm.snapshot().ChainID)
}

func TestRouter_ChainChangedMalformedParamsIgnored(t *testing.T) {
	t.Parallel()

	router, sm, events := newTestRouter(t)

	router.dispatch(notification(t, MethodChainChanged, []int{1, 2}))

	assert.Empty(t, *events)
	assert.Empty(t, sm.snapshot().ChainID)
}

func TestRouter_UnlockStateChanged(t *testing.T) {
	t.Parallel()

	router, sm, events := newTestRouter(t)

	unlocked := true
	router.dispatch(notification(t, MethodUnlockStateChanged, UnlockStateChangedParams{
		Accounts:   []string{"acc1"},
		IsUnlocked: &unlocked,
	}))

	require.Equal(t, []Event{EventAccountsChanged}, eventNames(*events))
	st := sm.snapshot()
	assert.True(t, st.IsUnlocked)
	assert.Equal(t, []string{"acc1"}, st.Accounts)
}

func TestRouter_UnlockStateChangedMissingFlagIsNoop(t *testing.T) {
	t.Parallel()

	router, sm, events := newTestRouter(t)

	router.dispatch(notification(t, MethodUnlockStateChanged, map[string]any{"accounts": []string{"acc1"}}))

	assert.Empty(t, *events)
	st := sm.snapshot()
	assert.False(t, st.IsUnlocked)
	assert.Nil(t, st.Accounts)
}

func TestRouter_UnknownNotificationIgnored(t *testing.T) {
	t.Parallel()

	router, sm, events := newTestRouter(t)

	router.dispatch(notification(t, "wallet_somethingElse", json.RawMessage(`{"a":1}`)))

	assert.Empty(t, *events)
	assert.Equal(t, State{}, sm.snapshot())
}
