package causal

import "fmt"

// Decision reasons recorded on trace candidates. Outscored means the
// candidate was not its subject's best; effect-claimed means the nominated
// effect went to a stronger cause in global resolution; partner-claimed
// means one side of the pairing already merged this round;
// absorbed-elsewhere means a stronger target took the singleton first.
const (
	ReasonChosen            = "chosen"
	ReasonBelowThreshold    = "below-threshold"
	ReasonOutscored         = "outscored"
	ReasonEffectClaimed     = "effect-claimed"
	ReasonPartnerClaimed    = "partner-claimed"
	ReasonOverCapacity      = "over-capacity"
	ReasonAbsorbedElsewhere = "absorbed-elsewhere"
)

// Candidate is one considered option in a pairing, merge, or absorption
// decision, retained for audit when tracing is enabled.
type Candidate struct {
	Target    string  `json:"target"`
	Distance  float64 `json:"distance"`
	Lexical   float64 `json:"lexical"`
	Strength  float64 `json:"strength"`
	Threshold float64 `json:"threshold"`
	Chosen    bool    `json:"chosen"`
	Reason    string  `json:"reason"`
}

// Trace groups every candidate considered for one decision subject in one
// round. Kind is "pair" (level-1), "merge" (level-N), or "absorb".
type Trace struct {
	Round      int         `json:"round"`
	Kind       string      `json:"kind"`
	Subject    string      `json:"subject"`
	Candidates []Candidate `json:"candidates"`
}

// lineRef names a raw transcript line as a candidate target.
func lineRef(idx int) string { return fmt.Sprintf("line:%d", idx) }
