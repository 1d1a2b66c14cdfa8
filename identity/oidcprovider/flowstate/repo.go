// Package flowstate holds the per-login values that must survive the round
// trip to the authorization server.
package flowstate

import "time"

type FlowState struct {
	CodeVerifier string
	Nonce        string
	ReturnURL    string
	CreatedAt    time.Time
}

type Repo interface {
	Upsert(state string, flow *FlowState) error
	// Take returns the flow for state and removes it, so a state can only be
	// redeemed once.
	Take(state string) (*FlowState, error)
}
