package client

import (
	"errors"

	"github.com/canmagnet/magsensor/pkg/frame"
	"github.com/canmagnet/magsensor/pkg/transport"
)

// isErrSensor reports whether err is (or wraps) a status error carrying
// ERR_SENSOR, the transient code the AHT20 read retry policy watches for.
func isErrSensor(err error) bool {
	var se *transport.ErrStatus
	if errors.As(err, &se) {
		return se.Code == frame.StatusErrSensor
	}
	var to *transport.ErrTimeout
	if errors.As(err, &to) && to.Cause != nil {
		return isErrSensor(to.Cause)
	}
	return false
}
