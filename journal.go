package casper

import (
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/lib/pq"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/toruslabs/casper-provider-go/pkg/jsonrpc"
	"github.com/toruslabs/casper-provider-go/pkg/log"
)

// RPCRecord is one journaled RPC exchange.
type RPCRecord struct {
	ID           uint           `gorm:"primaryKey"`
	Origin       string         `gorm:"column:origin;type:varchar(32);not null"`
	ReqID        string         `gorm:"column:req_id;type:varchar(255)"`
	Method       string         `gorm:"column:method;type:varchar(255);not null"`
	Params       datatypes.JSON `gorm:"column:params"`
	Result       datatypes.JSON `gorm:"column:result"`
	ErrorCode    int64          `gorm:"column:error_code"`
	ErrorMessage string         `gorm:"column:error_message;type:text"`
	Digest       string         `gorm:"column:digest;type:varchar(64);not null"`
	Timestamp    time.Time      `gorm:"column:timestamp;not null"`
}

// TableName specifies the table name for the RPCRecord model.
func (RPCRecord) TableName() string {
	return "rpc_journal"
}

// StateSnapshot is the provider state captured right after one event fired.
type StateSnapshot struct {
	ID                        uint           `gorm:"primaryKey"`
	Trigger                   string         `gorm:"column:trigger;type:varchar(32);not null"`
	ChainID                   string         `gorm:"column:chain_id;type:varchar(255)"`
	Accounts                  pq.StringArray `gorm:"type:text[];column:accounts"`
	SelectedAddress           string         `gorm:"column:selected_address;type:varchar(255)"`
	IsConnected               bool           `gorm:"column:is_connected;not null"`
	IsUnlocked                bool           `gorm:"column:is_unlocked;not null"`
	Initialized               bool           `gorm:"column:initialized;not null"`
	IsPermanentlyDisconnected bool           `gorm:"column:is_permanently_disconnected;not null"`
	Timestamp                 time.Time      `gorm:"column:timestamp;not null"`
}

// TableName specifies the table name for the StateSnapshot model.
func (StateSnapshot) TableName() string {
	return "state_snapshots"
}

// Journal persists RPC traffic and state transitions for diagnostics. It is
// strictly an observer: a failed write is the caller's to log, never a
// reason to fail the call being journaled.
type Journal struct {
	db *gorm.DB
}

// NewJournal creates a new Journal over db. The schema must already exist;
// ConnectToDB takes care of that.
func NewJournal(db *gorm.DB) *Journal {
	return &Journal{db: db}
}

// RecordCall journals one settled exchange. Transport-level failures are
// normalized into the same code/message columns as wire errors.
func (j *Journal) RecordCall(origin string, req *jsonrpc.Message, resp *jsonrpc.Message, callErr error) error {
	if req == nil {
		return nil
	}
	if origin == "" {
		origin = OriginUnknown
	}

	rec := &RPCRecord{
		Origin:    origin,
		ReqID:     string(req.ID),
		Method:    req.Method,
		Params:    datatypes.JSON(req.Params),
		Digest:    HashRequest(req),
		Timestamp: time.Now().UTC(),
	}

	switch {
	case callErr != nil:
		serr := jsonrpc.NormalizeError(callErr)
		rec.ErrorCode = serr.Code
		rec.ErrorMessage = serr.Message
	case resp != nil && resp.Error != nil:
		rec.ErrorCode = resp.Error.Code
		rec.ErrorMessage = resp.Error.Message
	case resp != nil:
		rec.Result = datatypes.JSON(resp.Result)
	}

	return j.db.Create(rec).Error
}

// RecordSnapshot journals the provider state as observed after trigger
// fired.
func (j *Journal) RecordSnapshot(trigger string, state State) error {
	snap := &StateSnapshot{
		Trigger:                   trigger,
		ChainID:                   state.ChainID,
		Accounts:                  pq.StringArray(state.Accounts),
		SelectedAddress:           state.SelectedAddress,
		IsConnected:               state.IsConnected,
		IsUnlocked:                state.IsUnlocked,
		Initialized:               state.Initialized,
		IsPermanentlyDisconnected: state.IsPermanentlyDisconnected,
		Timestamp:                 time.Now().UTC(),
	}
	return j.db.Create(snap).Error
}

// History retrieves journaled exchanges, newest first by default. A
// non-empty origin filters to one entry surface.
func (j *Journal) History(origin string, options *ListOptions) ([]RPCRecord, error) {
	query := applyListOptions(j.db, "timestamp", SortTypeDescending, options)
	if origin != "" {
		query = query.Where("origin = ?", origin)
	}
	var history []RPCRecord
	err := query.Find(&history).Error
	return history, err
}

// Snapshots retrieves journaled state snapshots, newest first by default.
func (j *Journal) Snapshots(options *ListOptions) ([]StateSnapshot, error) {
	query := applyListOptions(j.db, "timestamp", SortTypeDescending, options)
	var snapshots []StateSnapshot
	err := query.Find(&snapshots).Error
	return snapshots, err
}

// HashRequest computes a stable hex digest of a request envelope, for
// correlating journal rows with wire captures.
func HashRequest(m *jsonrpc.Message) string {
	if m == nil {
		return ""
	}
	data, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return hex.EncodeToString(crypto.Keccak256(data))
}

// journalMiddleware records every engine call after it settles. Store
// failures are logged and swallowed.
func journalMiddleware(j *Journal, lg log.Logger) jsonrpc.Handler {
	lg = lg.WithName("journal")
	return func(c *jsonrpc.Context) {
		c.Next()

		origin := requestOriginFrom(c.Context)
		if err := j.RecordCall(origin, c.Request, c.Response, c.Err); err != nil {
			lg.Warn("Failed to journal call", "method", c.Request.Method, "error", err)
		}
	}
}

// watchStateForJournal snapshots provider state on every lifecycle event.
// Listeners are registered before any user listener, so the snapshot
// matches what the first observer of the event sees.
func watchStateForJournal(emitter *EventEmitter, sm *stateMachine, j *Journal, lg log.Logger) {
	lg = lg.WithName("journal")
	for _, event := range []Event{
		EventConnect,
		EventDisconnect,
		EventAccountsChanged,
		EventChainChanged,
		EventInitialized,
	} {
		trigger := string(event)
		emitter.On(event, func(any) {
			if err := j.RecordSnapshot(trigger, sm.snapshot()); err != nil {
				lg.Warn("Failed to journal state snapshot", "trigger", trigger, "error", err)
			}
		})
	}
}
