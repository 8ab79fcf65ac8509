//go:build ruleguard

package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// InternalErrors steers code toward the internal/errors package so errors
// carry a component and category for logging and Sentry.
func InternalErrors(m dsl.Matcher) {
	m.Import("errors")

	m.Match(`errors.New($msg)`).
		Where(m.File().PkgPath.Matches(`rtp-recorder/(internal|cmd)/`) &&
			!m.File().PkgPath.Matches(`internal/errors$`) &&
			m["msg"].Const).
		Report("use errors.NewStd($msg) from internal/errors, or errors.Newf(...).Component(...).Build()")
}

// ExecWithContext requires child processes to be bound to a context. The
// recorder is exempt: it stops ffmpeg with SIGINT and a group kill itself.
func ExecWithContext(m dsl.Matcher) {
	m.Match(`exec.Command($*args)`).
		Where(!m.File().Name.Matches(`_test\.go$`) &&
			!m.File().PkgPath.Matches(`internal/recorder$`)).
		Report("use exec.CommandContext so the process is canceled with its session").
		Suggest("exec.CommandContext(ctx, $args)")
}

// RedactBeforeLogging flags stream and storage URLs logged without going
// through internal/privacy.
func RedactBeforeLogging(m dsl.Matcher) {
	m.Match(
		`$log.$method($msg, logger.String("url", $u))`,
		`$log.$method($msg, logger.String("dsn", $u))`,
	).
		Where(m["method"].Text.Matches(`^(Info|Warn|Error|Debug)$`) &&
			!m["u"].Text.Matches(`privacy\.`)).
		Report("wrap $u with privacy.RedactURL before logging")
}
