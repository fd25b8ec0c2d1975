package database

import (
	"context"
	"database/sql"
	"strings"

	"mysql-hotbackup/internal/errors"
	"mysql-hotbackup/internal/logging"
)

const variableQuery = "SHOW GLOBAL VARIABLES LIKE ?"

// VariableProvider reads server variables from a live connection. It
// satisfies the configuration provider used by source discovery.
type VariableProvider struct {
	db     *sql.DB
	logger *logging.Logger
}

// NewVariableProvider creates a provider on an open connection
func NewVariableProvider(db *sql.DB, logger *logging.Logger) *VariableProvider {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &VariableProvider{db: db, logger: logger}
}

// Variable returns the global value of name. A variable the server does not
// know reports ok=false with no error; an empty value is returned as is.
func (p *VariableProvider) Variable(ctx context.Context, name string) (string, bool, error) {
	value, ok, err := p.lookup(ctx, name)
	p.logger.LogVariableLookup(name, ok, err)
	return value, ok, err
}

func (p *VariableProvider) lookup(ctx context.Context, name string) (string, bool, error) {
	if p.db == nil {
		return "", false, errors.NewAppError(errors.ErrorTypeValidation, "database connection is nil", nil)
	}

	// LIKE treats '_' as a wildcard, so rows are matched on the exact name
	rows, err := p.db.QueryContext(ctx, variableQuery, name)
	if err != nil {
		return "", false, errors.WrapError(err, "failed to query variable "+name)
	}
	defer rows.Close()

	for rows.Next() {
		var varName, value sql.NullString
		if err := rows.Scan(&varName, &value); err != nil {
			return "", false, errors.WrapError(err, "failed to scan variable "+name)
		}
		if strings.EqualFold(varName.String, name) {
			return value.String, true, nil
		}
	}
	if err := rows.Err(); err != nil {
		return "", false, errors.WrapError(err, "failed to read variable "+name)
	}

	return "", false, nil
}
