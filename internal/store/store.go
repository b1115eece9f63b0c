package store

import "context"

// Store persists engine state snapshots so a restart resumes the posture it
// left off in
type Store interface {
	SaveJSON(ctx context.Context, key string, value interface{}) error
	LoadJSON(ctx context.Context, key string, dest interface{}) error
}

// Keys under which the engine persists its state
const (
	KeyDrawdownState  = "pmgate:state:drawdown"
	KeyPortfolioState = "pmgate:state:portfolio"
)
