package shared

import "fmt"

// DuesBulkLockKey builds the redis key guarding bulk dues runs for a due period.
func DuesBulkLockKey(year int, month int) string {
	return fmt.Sprintf("dues:bulk:%04d-%02d:lock", year, month)
}
