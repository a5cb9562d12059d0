package sessions

import "github.com/jrsteele09/wa-session-gateway/waclient"

// Effect is a side effect the manager performs after a state change
type Effect uint8

const (
	EffectCacheQR Effect = 1 << iota
	EffectClearQR
	EffectPersist
	EffectDestroyClient
	EffectPurge
	EffectRemove
)

// Has reports whether every effect in want is set
func (e Effect) Has(want Effect) bool {
	return e&want == want
}

type Step struct {
	To      State
	Effects Effect
}

// Transition applies a client event to a session state. ok is false when the event has no
// meaning in that state and must be ignored.
func Transition(from State, kind waclient.EventKind) (step Step, ok bool) {
	switch kind {
	case waclient.EventPairingCode:
		if from.Pending() {
			return Step{To: StateAwaitingScan, Effects: EffectCacheQR}, true
		}

	case waclient.EventReady:
		if from.Pending() {
			return Step{To: StateReady, Effects: EffectClearQR | EffectPersist}, true
		}

	case waclient.EventAuthFailure:
		if from.Pending() {
			return Step{To: StateAuthFailed, Effects: EffectClearQR | EffectDestroyClient | EffectRemove}, true
		}

	case waclient.EventDisconnected:
		// A pending session that is disconnected has had its credentials rejected,
		// so they are purged as well.
		if from == StateReady || from.Pending() {
			return Step{To: StateDisconnected, Effects: EffectClearQR | EffectDestroyClient | EffectPurge | EffectRemove}, true
		}
	}
	return Step{To: from}, false
}
