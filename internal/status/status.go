// ABOUTME: Status snapshot of the gateway process and its session health
// ABOUTME: Parses tickle responses and derives a single classification label

package status

import (
	"encoding/json"
	"fmt"
)

// NoSessionSentinel is the exact body the gateway returns from the tickle
// endpoint when it is running but holds no session.
const NoSessionSentinel = `{"error":"no session"}`

// Classification is the single label derived from a Status. The priority
// order of the labels is strict: the first matching condition wins.
type Classification string

const (
	NotRunning       Classification = "NOT RUNNING"
	NoSession        Classification = "NO SESSION"
	NotConnected     Classification = "NOT CONNECTED"
	Competing        Classification = "COMPETING"
	Collision        Classification = "COLLISION"
	Authenticated    Classification = "AUTHENTICATED"
	NotAuthenticated Classification = "NOT AUTHENTICATED"
)

// Status is an immutable snapshot of gateway and session health. A fresh
// value is produced on every poll; no Status is ever mutated after it is
// returned to a caller.
type Status struct {
	Running       bool
	Session       bool
	Connected     bool
	Authenticated bool
	Competing     bool
	Collision     bool
	SessionID     string
	Expires       int64 // session expiry, epoch milliseconds; 0 when unknown
	ServerName    string
	ServerVersion string
	Raw           []byte // raw tickle body, kept for diagnostics
}

// Classify derives the single-label classification. The order below is
// load-bearing: the strategy engine's branch conditions are built on it.
func (s Status) Classify() Classification {
	if !s.Running {
		return NotRunning
	}
	if !s.Session {
		return NoSession
	}
	if !s.Connected {
		return NotConnected
	}
	if s.Competing {
		return Competing
	}
	if s.Collision {
		return Collision
	}
	if s.Authenticated {
		return Authenticated
	}
	return NotAuthenticated
}

// Healthy reports whether the session needs no intervention at all.
func (s Status) Healthy() bool {
	return s.Authenticated && !s.Competing
}

func (s Status) String() string {
	return fmt.Sprintf("%s (running=%t session=%t connected=%t authenticated=%t competing=%t collision=%t session_id=%q)",
		s.Classify(), s.Running, s.Session, s.Connected, s.Authenticated, s.Competing, s.Collision, s.SessionID)
}

// tickleResponse mirrors the gateway's tickle JSON. The misspelled
// "collission" key is what the gateway actually sends.
type tickleResponse struct {
	Session    string `json:"session"`
	SSOExpires int64  `json:"ssoExpires"`
	Collision  bool   `json:"collission"`
	IServer    struct {
		AuthStatus struct {
			Authenticated bool `json:"authenticated"`
			Competing     bool `json:"competing"`
			Connected     bool `json:"connected"`
			ServerInfo    struct {
				ServerName    string `json:"serverName"`
				ServerVersion string `json:"serverVersion"`
			} `json:"serverInfo"`
		} `json:"authStatus"`
	} `json:"iserver"`
}

// ParseTickle fills the session fields of a Status from a tickle response
// body. The base Status must already have Running and Session set; bodies are
// only parsed when a session exists.
func ParseTickle(base Status, body []byte) (Status, error) {
	if !base.Session {
		return base, nil
	}

	var resp tickleResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return base, fmt.Errorf("parsing tickle response: %w", err)
	}

	base.Authenticated = resp.IServer.AuthStatus.Authenticated
	base.Competing = resp.IServer.AuthStatus.Competing
	base.Connected = resp.IServer.AuthStatus.Connected
	base.Collision = resp.Collision
	base.SessionID = resp.Session
	base.Expires = resp.SSOExpires
	base.ServerName = resp.IServer.AuthStatus.ServerInfo.ServerName
	base.ServerVersion = resp.IServer.AuthStatus.ServerInfo.ServerVersion
	base.Raw = body

	return base, nil
}
