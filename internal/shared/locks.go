package shared

import "fmt"

// MassLockKey builds the redis key guarding mass operations on a review period.
func MassLockKey(periodID int64) string {
	return fmt.Sprintf("rvu:period:%d:mass", periodID)
}
