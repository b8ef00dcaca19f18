package kad

import "github.com/kadcore/node/pkg/lib/log"

// logger is the package-level component logger, resolved lazily against
// slog.Default() on every call so a host application's SetOutput/SetLevel
// calls take effect without this package needing to know about them.
var logger = log.Logger("kad")
