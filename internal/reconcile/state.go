package reconcile

// State is a reconciliation pass state.
type State int

const (
	StateIdle State = iota
	StatePreparing
	StateImport
	StateExport
	StateFinalizing
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreparing:
		return "preparing-sync"
	case StateImport:
		return "import-pass"
	case StateExport:
		return "export-pass"
	case StateFinalizing:
		return "finalizing"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
