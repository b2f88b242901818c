package gc

import (
	"github.com/tliron/commonlog"
)

const loggerName = "wbcheck.gc"

// logger resolves the collector's logger on each use so that a backend
// installed after package initialisation is honoured.
func logger() commonlog.Logger {
	return commonlog.GetLogger(loggerName)
}

// enableDebugOutput raises the collector's logger to debug verbosity.
func enableDebugOutput() {
	commonlog.SetMaxLevel(commonlog.Debug, commonlog.PathToName(loggerName)...)
}
