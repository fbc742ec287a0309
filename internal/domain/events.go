package domain

// EventKind identifica el tipo de notificación.
type EventKind string

const (
	EventLaunchCreated  EventKind = "launch.created"
	EventVoteSubmitted  EventKind = "vote.submitted"
	EventPredictStarted EventKind = "predict.started"
	EventBetPlaced      EventKind = "bet.placed"
	EventLaunchSettled  EventKind = "launch.settled"
	EventTokensClaimed  EventKind = "tokens.claimed"
)

// Event es una notificación informativa emitida tras cada commit.
// La entrega es at-least-once.
type Event interface {
	Kind() EventKind
	Launch() string
}

type LaunchCreated struct {
	LaunchID     string   `json:"launch_id"`
	Authority    Identity `json:"authority"`
	Name         string   `json:"name"`
	Symbol       string   `json:"symbol"`
	TotalSupply  uint64   `json:"total_supply"`
	DiscoveryEnd int64    `json:"discovery_end"`
	PredictEnd   int64    `json:"predict_end"`
}

type VoteSubmitted struct {
	LaunchID string   `json:"launch_id"`
	Voter    Identity `json:"voter"`
	McapVote uint64   `json:"mcap_vote"`
}

type PredictStarted struct {
	LaunchID   string `json:"launch_id"`
	MedianMcap uint64 `json:"median_mcap"`
}

type BetPlaced struct {
	LaunchID   string   `json:"launch_id"`
	BetID      string   `json:"bet_id"`
	Bettor     Identity `json:"bettor"`
	Breakpoint uint64   `json:"breakpoint"`
	IsYes      bool     `json:"is_yes"`
	Amount     uint64   `json:"amount"`
	Multiplier uint16   `json:"multiplier"`
}

type LaunchSettled struct {
	LaunchID        string `json:"launch_id"`
	SettlementValue uint64 `json:"settlement_value"`
	TotalLocked     uint64 `json:"total_locked"`
}

type TokensClaimed struct {
	LaunchID string   `json:"launch_id"`
	BetID    string   `json:"bet_id"`
	Claimer  Identity `json:"claimer"`
	Tokens   uint64   `json:"tokens"`
	Accuracy uint16   `json:"accuracy"`
}

func (LaunchCreated) Kind() EventKind  { return EventLaunchCreated }
func (VoteSubmitted) Kind() EventKind  { return EventVoteSubmitted }
func (PredictStarted) Kind() EventKind { return EventPredictStarted }
func (BetPlaced) Kind() EventKind      { return EventBetPlaced }
func (LaunchSettled) Kind() EventKind  { return EventLaunchSettled }
func (TokensClaimed) Kind() EventKind  { return EventTokensClaimed }

func (e LaunchCreated) Launch() string  { return e.LaunchID }
func (e VoteSubmitted) Launch() string  { return e.LaunchID }
func (e PredictStarted) Launch() string { return e.LaunchID }
func (e BetPlaced) Launch() string      { return e.LaunchID }
func (e LaunchSettled) Launch() string  { return e.LaunchID }
func (e TokensClaimed) Launch() string  { return e.LaunchID }
