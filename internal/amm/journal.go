package amm

// OperationRecord is one applied state transition, serialized to the JSONL
// journal. Amount fields are decimal strings so the journal survives tools that
// round large JSON numbers. Swap records carry the fee breakdown so a replay
// re-applies the exact reserve movement.
type OperationRecord struct {
	Sequence    uint64 `json:"sequence"`
	Kind        string `json:"kind"` // deposit, withdraw, swap, accrue, claim, migrate
	Pool        string `json:"pool"`
	Owner       string `json:"owner,omitempty"`
	Direction   string `json:"direction,omitempty"`
	Amount0     string `json:"amount0,omitempty"`
	Amount1     string `json:"amount1,omitempty"`
	LpAmount    string `json:"lp_amount,omitempty"`
	TradeFee    string `json:"trade_fee,omitempty"`
	ProtocolFee string `json:"protocol_fee,omitempty"`
	FundFee     string `json:"fund_fee,omitempty"`
	Timestamp   uint64 `json:"timestamp"`
	AppliedAt   string `json:"applied_at"`
}

// Journal is a sink for applied operation records. Writers append a record
// before committing the matching state transition, so a failed append aborts
// the transition.
type Journal interface {
	PutOperationBatch(ops []OperationRecord) error
}
