package snaps

import (
	"errors"
	"fmt"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingStore      = errors.New("snap store is required")
	errMissingGraph      = errors.New("follow graph is required")
)

// ServiceError reports an infrastructure failure with a stable code.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the "<package>.<operation>.<reason>" identifier.
func (e *ServiceError) Code() string {
	return e.code
}

const (
	opStoreNew         = "snaps.store.new"
	opServiceNew       = "snaps.service.new"
	opCreate           = "snaps.create"
	opLookup           = "snaps.lookup"
	opUpdate           = "snaps.update"
	opDelete           = "snaps.delete"
	opList             = "snaps.list"
	opBlock            = "snaps.block"
	opUnblock          = "snaps.unblock"
	opVisibility       = "snaps.visibility"
	reasonMissingDB    = "missing_database"
	reasonMissingIDs   = "missing_id_provider"
	reasonMissingStore = "missing_store"
	reasonMissingGraph = "missing_follow_graph"
	reasonIDFailed     = "id_generation_failed"
	reasonInsertFailed = "insert_failed"
	reasonQueryFailed  = "query_failed"
	reasonSaveFailed   = "save_failed"
	reasonDeleteFailed = "delete_failed"
	reasonGraphFailed  = "follow_graph_failed"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}
