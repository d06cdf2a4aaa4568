package storage

import (
	"fmt"
	"sync"

	"TC/configs"
	"TC/session"
	"TC/utils"
)

// SessionCondition narrows a session query. Exactly one selector is honored,
// checked in field order: XID, then TransactionID, then Statuses, then Status.
type SessionCondition struct {
	XID            string
	TransactionID  int64
	Statuses       []session.GlobalStatus
	Status         *session.GlobalStatus
	LazyLoadBranch bool
}

// SessionQueryParam pages through one status index list.
type SessionQueryParam struct {
	Status     *session.GlobalStatus
	PageNum    int
	PageSize   int
	WithBranch bool
}

// TransactionStoreManager persists and recovers transaction sessions. Reads
// that find nothing return a nil session (or empty slice) and a nil error;
// errors are reserved for backing-store failures and invalid arguments.
type TransactionStoreManager interface {
	// WriteSession applies one mutation. A (false, nil) return means the
	// write lost cleanly, with compensation applied, and may be retried.
	WriteSession(op LogOperation, rec session.Storable) (bool, error)

	ReadSession(xid string, withBranches bool) (*session.GlobalSession, error)
	ReadFullSession(xid string) (*session.GlobalSession, error)
	ReadSessionByTransactionID(transactionID int64, withBranches bool) (*session.GlobalSession, error)
	ReadSessionByStatuses(statuses []session.GlobalStatus, withBranches bool) ([]*session.GlobalSession, error)
	ReadSessionWithCondition(cond *SessionCondition) ([]*session.GlobalSession, error)
	ReadSessionStatusByPage(param *SessionQueryParam) ([]*session.GlobalSession, error)

	FindBranchSessionByXid(xid string) ([]*session.BranchSession, error)
	FindGlobalSessionByPage(pageNum, pageSize int, withBranch bool) ([]*session.GlobalSession, error)
	CountByGlobalSessions(statuses []session.GlobalStatus) (int64, error)

	Close() error
}

var (
	storeInstance TransactionStoreManager
	storeOnce     sync.Once
	storeErr      error
)

// GetStoreManager builds the process-wide store for configs.StoreType on
// first call and returns the same instance afterwards.
func GetStoreManager() (TransactionStoreManager, error) {
	storeOnce.Do(func() {
		storeInstance, storeErr = NewStoreManager(configs.StoreType)
	})
	return storeInstance, storeErr
}

// NewStoreManager builds a fresh store for the named backend.
func NewStoreManager(storeType string) (TransactionStoreManager, error) {
	switch storeType {
	case configs.RedisStore:
		src, err := GetSource()
		if err != nil {
			return nil, err
		}
		return NewRedisStore(src), nil
	case configs.SQLStore:
		return NewSQLStore(configs.SQLLink, configs.SQLMaxConns)
	case configs.MongoStore:
		return NewMongoStore(configs.MongoLink, configs.MongoDatabase)
	default:
		return nil, fmt.Errorf("%w: unknown store type %q", utils.ErrInvalidArgument, storeType)
	}
}
