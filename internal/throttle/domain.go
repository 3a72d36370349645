package throttle

import (
	"fmt"
	"time"
)

// Class identifies an action class with its own independent quota.
// Exhausting one class never affects another for the same actor.
type Class int

const (
	ClassAuth Class = iota + 1
	ClassRegister
	ClassComment
	ClassLike
	ClassCreateSeries
	ClassCreateChapter
	ClassUpload
	ClassGeneral
)

var classNames = map[Class]string{
	ClassAuth:          "auth",
	ClassRegister:      "register",
	ClassComment:       "comment",
	ClassLike:          "like",
	ClassCreateSeries:  "create_series",
	ClassCreateChapter: "create_chapter",
	ClassUpload:        "upload",
	ClassGeneral:       "general",
}

func (c Class) String() string {
	if name, ok := classNames[c]; ok {
		return name
	}
	return fmt.Sprintf("class(%d)", int(c))
}

// Limit is the quota for one action class.
type Limit struct {
	Max    int
	Window time.Duration
}

// Limits maps every action class to its quota.
type Limits map[Class]Limit

// Result reports the outcome of a quota check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Identifier keys the quota by user when authenticated, by address
// otherwise, so a shared NAT does not exhaust a per-user quota and a
// session-rotating client stays pinned to its address.
func Identifier(userID int64, ip string) string {
	if userID > 0 {
		return fmt.Sprintf("user:%d", userID)
	}
	return "ip:" + ip
}
