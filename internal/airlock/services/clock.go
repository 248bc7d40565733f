package services

import "time"

// nowUTC is a seam so tests can pin timestamps.
var nowUTC = func() time.Time {
	return time.Now().UTC()
}
