package lib

import (
	"os"

	"github.com/healthbridge/abdm-broker/lib/logger"
)

// Bail logs a terminal error and exits the process with a nonzero code.
func Bail(err error) {
	logger.Standard().WithError(err).Error("Broker terminated")
	os.Exit(1)
}
