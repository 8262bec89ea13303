package models

import (
	"time"

	"github.com/uptrace/bun"
)

// RequestLog records one executed request: its outcome, how many attempts it
// took and which proxy carried the final attempt.
type RequestLog struct {
	bun.BaseModel `bun:"table:request_logs,alias:rl"`

	ID         string `bun:",pk"` // uuid assigned by the executor
	Method     string `bun:",notnull"`
	URL        string `bun:",notnull"`
	StatusCode int
	Attempts   int    `bun:",notnull"`
	Proxy      string // "" for direct egress
	ErrorMsg   string
	DurationMs int64     `bun:",notnull"`
	CreatedAt  time.Time `bun:",nullzero,notnull,default:current_timestamp"`
}

// ProxyFetch records one candidate address produced by a platform, valid or
// not, for auditing provider quality.
type ProxyFetch struct {
	bun.BaseModel `bun:"table:proxy_fetches,alias:pf"`

	ID        int64     `bun:",pk,autoincrement"`
	Platform  string    `bun:",notnull"`
	Address   string    `bun:",notnull"`
	Valid     bool      `bun:",notnull"`
	CreatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp"`
}

// IPInfoResponse is the ipinfo.io answer for an egress inspection.
type IPInfoResponse struct {
	IP       string `json:"ip"`
	Hostname string `json:"hostname"`
	Anycast  bool   `json:"anycast"`
	City     string `json:"city"`
	Region   string `json:"region"`
	Country  string `json:"country"`
	Loc      string `json:"loc"`
	Org      string `json:"org"`
	Postal   string `json:"postal"`
	Timezone string `json:"timezone"`
}
