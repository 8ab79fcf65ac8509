//go:build ruleguard

package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// TimeDateTimeConstants prefers the Go 1.20 layout constants.
func TimeDateTimeConstants(m dsl.Matcher) {
	m.Match(`$t.Format("2006-01-02 15:04:05")`).
		Report(`use $t.Format(time.DateTime)`).
		Suggest(`$t.Format(time.DateTime)`)

	m.Match(`$t.Format("2006-01-02")`).
		Report(`use $t.Format(time.DateOnly)`).
		Suggest(`$t.Format(time.DateOnly)`)

	m.Match(`$t.Format("2006-01-02T15:04:05Z07:00")`).
		Report(`use $t.Format(time.RFC3339)`).
		Suggest(`$t.Format(time.RFC3339)`)
}

// TimerChannelLen catches len/cap on timer channels, which are unbuffered
// since Go 1.23. The recorder's auto-stop timers depend on this.
func TimerChannelLen(m dsl.Matcher) {
	m.Match(`len($t.C)`, `cap($t.C)`).
		Where(m["t"].Type.Is("*time.Timer") || m["t"].Type.Is("*time.Ticker")).
		Report("timer channels are unbuffered in Go 1.23+; use a non-blocking select")
}

// DeferredTimeSince catches durations evaluated when defer runs rather
// than at function exit.
func DeferredTimeSince(m dsl.Matcher) {
	m.Match(
		`defer $fn(time.Since($start))`,
		`defer $fn($*args, time.Since($start))`,
		`defer $fn(time.Since($start), $*args)`,
	).
		Report("time.Since($start) is evaluated at defer time; wrap in func()")
}
