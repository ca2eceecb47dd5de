package casper

import (
	"reflect"
	"slices"
	"sync"

	"github.com/toruslabs/casper-provider-go/pkg/log"
)

// ChainIDLoading is the sentinel chain id the wallet pushes while it has no
// settled chain identity. Receiving it counts as a recoverable disconnect,
// not as a chain change.
const ChainIDLoading = "loading"

// State is one immutable snapshot of the provider's identity: connectivity,
// accounts, chain, and unlock status. Transitions replace the whole value,
// so a snapshot handed to a caller can never change under them.
//
// A nil Accounts slice means no account list was ever applied; an empty
// non-nil slice means the wallet reported no accounts. The two compare as
// different, which is what makes the first empty update observable.
type State struct {
	Accounts                  []string
	ChainID                   string
	SelectedAddress           string
	IsConnected               bool
	IsUnlocked                bool
	Initialized               bool
	IsPermanentlyDisconnected bool
}

// stateMachine owns the provider's State and is the only writer of it. Each
// handler applies one idempotent transition under the lock, then emits the
// resulting events outside it so listeners can read provider state freely.
type stateMachine struct {
	lg      log.Logger
	emitter *EventEmitter

	mu    sync.Mutex
	state State
}

func newStateMachine(emitter *EventEmitter, lg log.Logger) *stateMachine {
	return &stateMachine{
		lg:      lg.WithName("state"),
		emitter: emitter,
	}
}

// snapshot returns a copy of the current state with its own accounts slice.
func (sm *stateMachine) snapshot() State {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	st := sm.state
	st.Accounts = slices.Clone(st.Accounts)
	return st
}

// handleConnect flips the machine into the connected state. Already
// connected is a no-op, so repeated chain pushes cannot emit twice, and the
// terminal disconnected state cannot be left.
func (sm *stateMachine) handleConnect(chainID string) {
	sm.mu.Lock()
	if sm.state.IsConnected || sm.state.IsPermanentlyDisconnected {
		sm.mu.Unlock()
		return
	}
	sm.state.IsConnected = true
	sm.mu.Unlock()

	sm.lg.Info("connected to chain", "chainId", chainID)
	sm.emitter.Emit(EventConnect, ConnectInfo{ChainID: chainID})
}

// handleDisconnect applies a recoverable or permanent disconnect. The
// transition is processed when the machine is currently connected, or when
// the signal is non-recoverable and the terminal state was not reached yet.
// Anything else is a duplicate and is dropped.
//
// Recoverable clears only the connected flag. Permanent additionally wipes
// chain and account identity and parks the machine in its terminal state.
func (sm *stateMachine) handleDisconnect(recoverable bool) {
	sm.mu.Lock()
	st := sm.state
	if !(st.IsConnected || (!st.IsPermanentlyDisconnected && !recoverable)) {
		sm.mu.Unlock()
		return
	}

	next := st
	next.IsConnected = false

	serr := NewRecoverableDisconnectError()
	if !recoverable {
		serr = NewPermanentDisconnectError()
		next.ChainID = ""
		next.Accounts = nil
		next.SelectedAddress = ""
		next.IsUnlocked = false
		next.IsPermanentlyDisconnected = true
	}
	sm.state = next
	sm.mu.Unlock()

	sm.lg.Info("disconnected", "recoverable", recoverable, "code", serr.Code)
	sm.emitter.Emit(EventDisconnect, serr)
}

// handleChainChanged applies a pushed chain identity. An empty id is a
// malformed push and is only logged. The loading sentinel routes to the
// recoverable disconnect path. Any other id connects the machine if needed,
// then stores the id, emitting chainChanged only after initialization so
// the consumer sees the initial connect handshake first.
func (sm *stateMachine) handleChainChanged(chainID string) {
	if chainID == "" {
		sm.lg.Error("chain update is missing a chain id, please report this bug")
		return
	}
	if chainID == ChainIDLoading {
		sm.handleDisconnect(true)
		return
	}

	sm.handleConnect(chainID)

	sm.mu.Lock()
	if sm.state.IsPermanentlyDisconnected {
		sm.mu.Unlock()
		sm.lg.Debug("dropping chain update after permanent disconnect", "chainId", chainID)
		return
	}
	if sm.state.ChainID == chainID {
		sm.mu.Unlock()
		return
	}
	sm.state.ChainID = chainID
	emit := sm.state.Initialized
	sm.mu.Unlock()

	if emit {
		sm.emitter.Emit(EventChainChanged, chainID)
	}
}

// handleAccountsChanged applies a candidate account list. accountsChanged
// fires iff the list differs from the stored one under order-sensitive
// equality; the mirrored selected address is reconciled to the first entry
// either way. fromEnumMethod marks updates derived from account-enumeration
// responses, which are expected to agree with existing state: when such a
// non-internal update still changes a non-empty list, that is logged as a
// diagnostic without blocking the update.
func (sm *stateMachine) handleAccountsChanged(accounts []string, fromEnumMethod, internal bool) {
	if accounts == nil {
		accounts = []string{}
	}

	sm.mu.Lock()
	changed := !reflect.DeepEqual(sm.state.Accounts, accounts)
	if changed {
		if fromEnumMethod && !internal && len(sm.state.Accounts) > 0 {
			sm.lg.Error("accounts unexpectedly updated by an enumeration response, please report this bug",
				"accounts", accounts)
		}
		sm.state.Accounts = slices.Clone(accounts)
	}

	selected := ""
	if len(accounts) > 0 {
		selected = accounts[0]
	}
	sm.state.SelectedAddress = selected
	sm.mu.Unlock()

	if changed {
		sm.emitter.Emit(EventAccountsChanged, slices.Clone(accounts))
	}
}

// handleUnlockChanged applies a pushed unlock flag. An unchanged flag is a
// no-op. A change re-runs the accounts update with the accompanying list,
// which is the only observable effect: there is no dedicated lock event.
func (sm *stateMachine) handleUnlockChanged(isUnlocked bool, accounts []string) {
	sm.mu.Lock()
	if sm.state.IsUnlocked == isUnlocked {
		sm.mu.Unlock()
		return
	}
	sm.state.IsUnlocked = isUnlocked
	sm.mu.Unlock()

	sm.handleAccountsChanged(accounts, false, false)
}

// markInitialized completes the one-shot initialization phase and fires the
// internal initialized signal. Repeated calls are dropped.
func (sm *stateMachine) markInitialized() {
	sm.mu.Lock()
	if sm.state.Initialized {
		sm.mu.Unlock()
		return
	}
	sm.state.Initialized = true
	sm.mu.Unlock()

	sm.emitter.Emit(EventInitialized, nil)
}
