package session

import (
	"errors"

	"github.com/Misty-Star/Speak2SQL/internal/completion"
	"github.com/Misty-Star/Speak2SQL/internal/database"
	"github.com/Misty-Star/Speak2SQL/internal/history"
	"github.com/Misty-Star/Speak2SQL/internal/nl2sql"
	"github.com/Misty-Star/Speak2SQL/internal/query"
	"github.com/Misty-Star/Speak2SQL/internal/schema"
)

const (
	StageConnection  = "connection"
	StageQuery       = "query"
	StageTranslation = "translation"
	StageUnsupported = "unsupported"
	StagePersistence = "persistence"
	StageInternal    = "internal"
)

// Classify maps an error to the category presentation layers report it as.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	var (
		queryErr   *query.QueryError
		persistErr *history.PersistError
		stageErr   *StageError
	)
	switch {
	case errors.Is(err, database.ErrNotConnected),
		errors.Is(err, schema.ErrNotConnected),
		errors.Is(err, schema.ErrNoTables):
		return StageConnection
	case errors.As(err, &queryErr):
		return StageQuery
	case errors.Is(err, completion.ErrEmptyCompletion),
		errors.Is(err, nl2sql.ErrNoSQLExtracted),
		errors.Is(err, nl2sql.ErrMalformedMutation):
		return StageTranslation
	case errors.Is(err, query.ErrUnsupportedOperation),
		errors.Is(err, query.ErrEmptyStatement),
		errors.Is(err, query.ErrEmptyBatch),
		errors.Is(err, query.ErrInvalidIdentifier),
		errors.Is(err, ErrNoRollback),
		errors.Is(err, ErrNothingToUndo),
		errors.Is(err, ErrNothingToRedo),
		errors.Is(err, ErrIndexOutOfRange),
		errors.Is(err, ErrCancelled):
		return StageUnsupported
	case errors.Is(err, history.ErrNotFound),
		errors.Is(err, ErrPersistenceMissing),
		errors.As(err, &persistErr):
		return StagePersistence
	case errors.As(err, &stageErr):
		return stageErr.Stage
	default:
		return StageInternal
	}
}
