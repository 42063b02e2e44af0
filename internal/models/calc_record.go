package models

import (
	"time"
)

// Caps applied to advisory request metadata before it is stored.
const (
	MaxUserAgentLength  = 255
	MaxSourceAddrLength = 64
)

// RequestOrigin is advisory metadata about where a calculation came from.
// It is never used for correctness.
type RequestOrigin struct {
	UserAgent  string `json:"userAgent,omitempty"`
	SourceAddr string `json:"sourceAddr,omitempty"`
}

// Capped returns a copy with every field cut to its storage limit.
func (o RequestOrigin) Capped() RequestOrigin {
	return RequestOrigin{
		UserAgent:  Truncate(o.UserAgent, MaxUserAgentLength),
		SourceAddr: Truncate(o.SourceAddr, MaxSourceAddrLength),
	}
}

// CalcRecord is the persisted, immutable form of a TaxQuote.
// ID and CreatedAt are assigned by the store on insert.
type CalcRecord struct {
	CreatedAt time.Time     `json:"createdAt"`
	Identity  Identity      `json:"identity"`
	Origin    RequestOrigin `json:"origin"`
	TaxQuote
	ID int64 `json:"id"`
}
