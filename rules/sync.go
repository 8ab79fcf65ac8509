//go:build ruleguard

// Package gorules holds ruleguard checks run by golangci-lint (gocritic).
package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// WaitGroupGo flags the Add(1)/defer Done pattern; Go 1.25 has wg.Go.
func WaitGroupGo(m dsl.Matcher) {
	m.Match(
		`$wg.Add(1); go func() { defer $wg.Done(); $*body }()`,
	).
		Where(m["wg"].Type.Is("*sync.WaitGroup") || m["wg"].Type.Is("sync.WaitGroup")).
		Report("use $wg.Go(func() { $body }) instead of manual Add/Done").
		Suggest("$wg.Go(func() { $body })")

	m.Match(
		`$wg.Add(2); go func() { defer $wg.Done(); $*a }(); go func() { defer $wg.Done(); $*b }()`,
	).
		Where(m["wg"].Type.Is("*sync.WaitGroup") || m["wg"].Type.Is("sync.WaitGroup")).
		Report("use two $wg.Go calls instead of manual Add/Done")
}

// ShutdownContext flags shutdown paths that derive their deadline from an
// already canceled context.
func ShutdownContext(m dsl.Matcher) {
	m.Match(
		`$srv.Shutdown($ctx)`,
	).
		Where(m["ctx"].Text == "ctx" && m["srv"].Type.Is("*echo.Echo")).
		Report("Shutdown with the serving ctx returns immediately after cancel; use context.WithoutCancel plus a timeout")
}
