package version

import "runtime/debug"

// Apply exposes apply to external tests.
func Apply(info *debug.BuildInfo) { apply(info) }
