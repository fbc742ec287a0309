package domain

import "fmt"

// Phase is the lifecycle stage of a launch. Transitions are strictly
// Discovery → Predict → Settled.
type Phase int

const (
	PhaseDiscovery Phase = iota
	PhasePredict
	PhaseSettled
)

func (p Phase) String() string {
	switch p {
	case PhaseDiscovery:
		return "DISCOVERY"
	case PhasePredict:
		return "PREDICT"
	case PhaseSettled:
		return "SETTLED"
	default:
		return fmt.Sprintf("PHASE(%d)", int(p))
	}
}

// ParsePhase is the inverse of String. Used by the storage adapter.
func ParsePhase(s string) (Phase, error) {
	switch s {
	case "DISCOVERY":
		return PhaseDiscovery, nil
	case "PREDICT":
		return PhasePredict, nil
	case "SETTLED":
		return PhaseSettled, nil
	}
	return 0, fmt.Errorf("unknown phase %q", s)
}

// next returns the only legal successor of p.
func (p Phase) next() (Phase, bool) {
	switch p {
	case PhaseDiscovery:
		return PhasePredict, true
	case PhasePredict:
		return PhaseSettled, true
	}
	return p, false
}
