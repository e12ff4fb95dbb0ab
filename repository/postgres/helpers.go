package postgres

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/fastygo/taskflow/domain"
)

const uniqueViolation = "23505"

func marshalSubtasks(subtasks []domain.Subtask) []byte {
	if subtasks == nil {
		subtasks = []domain.Subtask{}
	}
	b, err := json.Marshal(subtasks)
	if err != nil {
		return []byte("[]")
	}
	return b
}

// unmarshalSubtasks decodes the subtasks column. NULL and empty values decode
// to an empty list.
func unmarshalSubtasks(raw []byte) ([]domain.Subtask, error) {
	subtasks := []domain.Subtask{}
	if len(raw) == 0 {
		return subtasks, nil
	}
	if err := json.Unmarshal(raw, &subtasks); err != nil {
		return nil, err
	}
	if subtasks == nil {
		subtasks = []domain.Subtask{}
	}
	return subtasks, nil
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

func nullDate(d *domain.Date) interface{} {
	if d == nil {
		return nil
	}
	return d.Time()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
