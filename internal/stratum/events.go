package stratum

import "github.com/btcsuite/btcd/chaincfg/chainhash"

// Event is the sum type the Client emits to the Coordinator's event loop.
// Exactly one of the typed payloads below is meaningful per event; callers
// switch on the concrete type.
type Event interface{ eventTag() }

// Subscribed carries the pool-fixed nonce-left prefix from a successful
// mining.subscribe response.
type Subscribed struct {
	NonceLeft []byte
}

// Authorized marks a successful mining.authorize response.
type Authorized struct{}

// AuthFailed marks a falsy mining.authorize response; the connection is
// closed by the client immediately after emitting this.
type AuthFailed struct{}

// TargetSet carries a mining.set_target notification, already reversed to
// internal byte order.
type TargetSet struct {
	Target chainhash.Hash
}

// JobSet carries a mining.notify notification with clean_jobs=true.
type JobSet struct {
	Notify *NotifyParams
}

// ShareAccepted marks a truthy response to a mining.submit while authorized.
type ShareAccepted struct{}

// Disconnected marks a closed or failed connection; Attempt is the 1-based
// reconnect counter used only for log text.
type Disconnected struct {
	Attempt int
}

func (Subscribed) eventTag()    {}
func (Authorized) eventTag()    {}
func (AuthFailed) eventTag()    {}
func (TargetSet) eventTag()     {}
func (JobSet) eventTag()        {}
func (ShareAccepted) eventTag() {}
func (Disconnected) eventTag()  {}
