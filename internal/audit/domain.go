package audit

import "time"

// Action classifies a state-changing operation in the ledger.
type Action string

const (
	ActionCreate    Action = "CREATE"
	ActionUpdate    Action = "UPDATE"
	ActionDelete    Action = "DELETE"
	ActionLogin     Action = "LOGIN"
	ActionLogout    Action = "LOGOUT"
	ActionRegister  Action = "REGISTER"
	ActionBan       Action = "BAN"
	ActionUnban     Action = "UNBAN"
	ActionMute      Action = "MUTE"
	ActionUnmute    Action = "UNMUTE"
	ActionSubscribe Action = "SUBSCRIBE"
)

// Record is one append-only ledger entry. ActorID is always the resolved
// principal's id, never a client-supplied value. Records are created once
// per audited mutation and never updated or deleted by application flow.
type Record struct {
	ActorID    int64          `json:"actor_id"`
	Action     Action         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	IPAddress  string         `json:"ip_address,omitempty"`
	UserAgent  string         `json:"user_agent,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// RequestMeta captures the client context attached to a record.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}
