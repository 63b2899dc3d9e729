package model

import (
	"strings"
	"time"

	"github.com/agentdir/agentdir/pkg/agentcard"
)

// Status is the agent-reported liveness status carried in heartbeats.
// It is what the agent says about itself; whether the registry considers
// the agent reachable is the separate, derived Online computation.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
	StatusBusy    Status = "busy"
)

// Valid reports whether s is one of the recognized heartbeat statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusOnline, StatusOffline, StatusBusy:
		return true
	}
	return false
}

// OnlineWindow is the maximum age of the last accepted heartbeat for an
// agent to be considered online. Independent of the self-reported Status:
// a "busy" agent that heartbeats is still online.
const OnlineWindow = 5 * time.Minute

// MaxMessageLen bounds the free-text heartbeat message.
const MaxMessageLen = 256

// AgentRecord is the static half of a registration: the card as submitted,
// the derived slug identity, and the hashed heartbeat credential.
type AgentRecord struct {
	ID             string         `json:"id"         db:"id"`
	Card           agentcard.Card `json:"card"       db:"card"`
	CredentialHash string         `json:"-"          db:"credential_hash"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
}

// LivenessState is the dynamic half, mutated only by authenticated
// heartbeats. Load and LastSeenAt are pointers so "absent" survives the
// JSON round-trip; a heartbeat that omits load or message clears them.
type LivenessState struct {
	Status     Status     `json:"status"                 db:"status"`
	Load       *float64   `json:"load,omitempty"         db:"load"`
	Message    string     `json:"message,omitempty"      db:"message"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty" db:"last_seen_at"`
}

// NewLivenessState is the state every agent starts in: offline-equivalent,
// no heartbeat received yet.
func NewLivenessState() LivenessState {
	return LivenessState{Status: StatusOffline}
}

// Online derives reachability at the given reference time. It is recomputed
// on every read and never stored, so there is no sweeper to race against.
func (s LivenessState) Online(now time.Time) bool {
	return s.LastSeenAt != nil && now.Sub(*s.LastSeenAt) <= OnlineWindow
}

// Snapshot pairs a static record with its liveness state as observed at a
// single point in time. Online is computed from the query's reference time.
type Snapshot struct {
	ID        string         `json:"id"`
	Card      agentcard.Card `json:"card"`
	CreatedAt time.Time      `json:"created_at"`
	Liveness  LivenessState  `json:"liveness"`
	Online    bool           `json:"online"`
}

// NewSnapshot merges a record and its liveness state, deriving Online at now.
func NewSnapshot(rec *AgentRecord, state LivenessState, now time.Time) Snapshot {
	return Snapshot{
		ID:        rec.ID,
		Card:      rec.Card,
		CreatedAt: rec.CreatedAt,
		Liveness:  state,
		Online:    state.Online(now),
	}
}

// HeartbeatRequest is the mutable-state payload of a heartbeat call.
// The fields are a full replacement, not a patch: whatever is absent here
// is absent in the stored state afterwards.
type HeartbeatRequest struct {
	Status  Status   `json:"status"`
	Load    *float64 `json:"load,omitempty"`
	Message string   `json:"message,omitempty"`
}

// RegisterRequest is the payload for creating a new registration.
type RegisterRequest struct {
	Card agentcard.Card `json:"card"`
}

// RegisterResult carries the derived id, the one-time plaintext heartbeat
// token, and any lint warnings for the card as stored. The token is never
// persisted or logged; after this value is returned only its bcrypt hash
// exists.
type RegisterResult struct {
	ID       string   `json:"agent_id"`
	Token    string   `json:"heartbeat_token"`
	Warnings []string `json:"warnings,omitempty"`
}

// Slugify derives the stable agent id from a display name: lowercased,
// with every run of non-alphanumeric characters collapsed to a single "-".
//
//	"Cool Agent v2" → "cool-agent-v2"
func Slugify(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	pendingSep := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if !isAlnum {
			pendingSep = b.Len() > 0
			continue
		}
		if pendingSep {
			b.WriteByte('-')
			pendingSep = false
		}
		b.WriteRune(r)
	}
	return b.String()
}
