package odm

import "context"

// Flush runs the deferred writes of an association proxy as the owner's
// save would. Exported for use in odm_test package.
func Flush(ctx context.Context, p Many) error {
	return p.(flusher).flush(ctx)
}
