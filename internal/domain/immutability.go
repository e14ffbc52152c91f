package domain

import (
	"errors"
	"fmt"
)

// EnsureRequestImmutable enforces the write-once fields of a deployment
// request across an update. Status, decision, pipeline linkage, output,
// expiration flag and health are mutable through their dedicated paths;
// everything captured at creation is not.
func EnsureRequestImmutable(before, after DeploymentRequest) error {
	if before.ID == "" || after.ID == "" {
		return errors.New("request ids are required")
	}
	if before.ID != after.ID {
		return fmt.Errorf("request id changed from %q to %q", before.ID, after.ID)
	}
	if before.RequestType != after.RequestType {
		return errors.New("request type is immutable")
	}
	if before.CatalogItemID != after.CatalogItemID {
		return errors.New("catalog item id is immutable")
	}
	if before.Requester != after.Requester {
		return errors.New("requester is immutable")
	}
	if !before.Params.Equal(after.Params) {
		return errors.New("parameters are immutable")
	}
	if before.ParentRequestID != after.ParentRequestID {
		return errors.New("parent request id is immutable")
	}
	if before.PreviousSize != after.PreviousSize || before.NewSize != after.NewSize {
		return errors.New("scale sizes are immutable")
	}
	if !before.CreatedAt.Equal(after.CreatedAt) {
		return errors.New("created_at is immutable")
	}
	if before.ExpirationWarningSent && !after.ExpirationWarningSent {
		return errors.New("expiration warning flag cannot be cleared")
	}
	if before.Decision != nil {
		if after.Decision == nil {
			return errors.New("decision cannot be unset")
		}
		if *before.Decision != *after.Decision {
			return errors.New("decision is write-once")
		}
	}
	return nil
}
