package mongo

import (
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"

	domain "venuehub/internal/domain/messaging"
)

// Server error codes the adapters translate.
const (
	codeBadValue           = 2
	codeUnauthorized       = 13
	codeIndexNotFound      = 27
	codeOperationFailed    = 96
	codeSortMemoryExceeded = 292
)

// ErrUnsafeKey is returned for user ids that cannot be used as document
// field names.
var ErrUnsafeKey = fmt.Errorf("mongo: id cannot be used as a field name: %w", domain.ErrUnstorableID)

// classify maps driver errors onto the store errors of the messaging domain.
// Unknown errors pass through unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%w: %w", domain.ErrDocumentNotFound, err)
	}
	var se mongo.ServerError
	if !errors.As(err, &se) {
		return err
	}
	switch {
	case se.HasErrorCode(codeUnauthorized):
		return fmt.Errorf("%w: %w", domain.ErrStorePermission, err)
	case se.HasErrorCodeWithMessage(codeBadValue, "hint"),
		se.HasErrorCode(codeIndexNotFound),
		se.HasErrorCode(codeOperationFailed) && se.HasErrorMessage("Sort"),
		se.HasErrorCode(codeSortMemoryExceeded):
		return fmt.Errorf("%w: %w", domain.ErrIndexUnavailable, err)
	}
	return err
}

// fieldKey validates id for use as a key of an embedded map and returns the
// dotted path under parent.
func fieldKey(parent, id string) (string, error) {
	if id == "" || strings.ContainsAny(id, ".\x00") || strings.HasPrefix(id, "$") {
		return "", fmt.Errorf("%w: %q", ErrUnsafeKey, id)
	}
	return parent + "." + id, nil
}
