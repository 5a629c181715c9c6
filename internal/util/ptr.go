package util

// Ptr returns a pointer to v, for optional execution and event columns.
func Ptr[T any](v T) *T {
	return &v
}
