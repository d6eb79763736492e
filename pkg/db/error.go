package db

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// FailureCode is a driver-neutral name for a storage failure.
type FailureCode string

const (
	CodeUniqueViolation     FailureCode = "unique_violation"
	CodeForeignKeyViolation FailureCode = "foreign_key_violation"
	CodeCheckViolation      FailureCode = "check_violation"
	CodeNotNullViolation    FailureCode = "not_null_violation"
	CodeValueTooLong        FailureCode = "value_too_long"
	CodeOutOfRange          FailureCode = "out_of_range"
	CodeInconsistentData    FailureCode = "inconsistent_data"
	CodeConnectionRefused   FailureCode = "connection_refused"
	CodeConnectionTimeout   FailureCode = "connection_timeout"
	CodeAuthFailed          FailureCode = "auth_failed"
	CodeDatabaseMissing     FailureCode = "database_missing"
	CodeRecordNotFound      FailureCode = "record_not_found"
)

// Failure is a storage error that carries a machine code. Constraint, Table
// and Column are filled only when the driver reports them.
type Failure struct {
	Code       FailureCode
	DriverCode string
	Constraint string
	Table      string
	Column     string
	Message    string
}

// Classify recognises errors raised by the postgres, mysql and sqlite
// drivers, and the sentinels gorm translates them into.
func Classify(err error) (Failure, bool) {
	if err == nil {
		return Failure{}, false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return classifyPostgres(pgErr), true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return classifyMySQL(myErr), true
	}

	if f, ok := classifySQLite(err.Error()); ok {
		return f, true
	}

	switch {
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return Failure{Code: CodeUniqueViolation, Message: err.Error()}, true
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return Failure{Code: CodeForeignKeyViolation, Message: err.Error()}, true
	case errors.Is(err, gorm.ErrCheckConstraintViolated):
		return Failure{Code: CodeCheckViolation, Message: err.Error()}, true
	case errors.Is(err, gorm.ErrRecordNotFound):
		return Failure{Code: CodeRecordNotFound, Message: err.Error()}, true
	}

	return Failure{}, false
}

// IsDuplicateKeyErr reports whether err is a unique constraint violation on any supported driver.
func IsDuplicateKeyErr(err error) bool {
	f, ok := Classify(err)
	return ok && f.Code == CodeUniqueViolation
}

func classifyPostgres(e *pgconn.PgError) Failure {
	f := Failure{
		DriverCode: e.Code,
		Constraint: e.ConstraintName,
		Table:      e.TableName,
		Column:     e.ColumnName,
		Message:    e.Message,
	}
	switch e.Code {
	case "23505":
		f.Code = CodeUniqueViolation
	case "23503":
		f.Code = CodeForeignKeyViolation
	case "23514":
		f.Code = CodeCheckViolation
	case "23502":
		f.Code = CodeNotNullViolation
	case "22001":
		f.Code = CodeValueTooLong
	case "22003":
		f.Code = CodeOutOfRange
	case "22P02", "22007", "22008":
		f.Code = CodeInconsistentData
	case "57014", "57P01":
		f.Code = CodeConnectionTimeout
	case "28000", "28P01":
		f.Code = CodeAuthFailed
	case "3D000":
		f.Code = CodeDatabaseMissing
	default:
		if strings.HasPrefix(e.Code, "08") {
			f.Code = CodeConnectionRefused
		} else {
			f.Code = FailureCode(e.Code)
		}
	}
	return f
}

var (
	mysqlDuplicateKey = regexp.MustCompile(`for key '([^']+)'`)
	mysqlColumn       = regexp.MustCompile(`(?i)column '([^']+)'`)
	mysqlForeignTable = regexp.MustCompile("REFERENCES `([^`]+)`")
)

func classifyMySQL(e *mysql.MySQLError) Failure {
	f := Failure{
		DriverCode: strconv.Itoa(int(e.Number)),
		Message:    e.Message,
	}
	switch e.Number {
	case 1062:
		f.Code = CodeUniqueViolation
		if m := mysqlDuplicateKey.FindStringSubmatch(e.Message); len(m) == 2 {
			f.Constraint = m[1]
			if table, _, ok := strings.Cut(m[1], "."); ok {
				f.Table = table
			}
		}
	case 1451, 1452:
		f.Code = CodeForeignKeyViolation
		if m := mysqlForeignTable.FindStringSubmatch(e.Message); len(m) == 2 {
			f.Table = m[1]
		}
	case 3819:
		f.Code = CodeCheckViolation
	case 1048, 1364:
		f.Code = CodeNotNullViolation
	case 1406:
		f.Code = CodeValueTooLong
	case 1264:
		f.Code = CodeOutOfRange
	case 1366, 1292:
		f.Code = CodeInconsistentData
	case 1205, 3024:
		f.Code = CodeConnectionTimeout
	case 1045:
		f.Code = CodeAuthFailed
	case 1049:
		f.Code = CodeDatabaseMissing
	case 1040, 1129:
		f.Code = CodeConnectionRefused
	default:
		f.Code = FailureCode(f.DriverCode)
	}
	if f.Column == "" && f.Code != CodeUniqueViolation {
		if m := mysqlColumn.FindStringSubmatch(e.Message); len(m) == 2 {
			f.Column = m[1]
		}
	}
	return f
}

// SQLite drivers only expose the failure through the message text,
// e.g. "UNIQUE constraint failed: users.email".
func classifySQLite(msg string) (Failure, bool) {
	checks := []struct {
		marker string
		code   FailureCode
	}{
		{"UNIQUE constraint failed", CodeUniqueViolation},
		{"FOREIGN KEY constraint failed", CodeForeignKeyViolation},
		{"CHECK constraint failed", CodeCheckViolation},
		{"NOT NULL constraint failed", CodeNotNullViolation},
		{"database is locked", CodeConnectionTimeout},
		{"unable to open database file", CodeConnectionRefused},
	}
	for _, check := range checks {
		idx := strings.Index(msg, check.marker)
		if idx < 0 {
			continue
		}
		f := Failure{Code: check.code, DriverCode: "sqlite", Message: msg}
		detail := strings.TrimSpace(strings.TrimPrefix(msg[idx+len(check.marker):], ":"))
		if cut := strings.Index(detail, " ("); cut >= 0 {
			detail = detail[:cut]
		}
		if detail == "" {
			return f, true
		}
		columns := make([]string, 0, 2)
		for _, part := range strings.Split(detail, ",") {
			part = strings.TrimSpace(part)
			table, column, ok := strings.Cut(part, ".")
			if !ok {
				continue
			}
			f.Table = table
			columns = append(columns, column)
		}
		switch check.code {
		case CodeUniqueViolation:
			f.Constraint = detail
			if len(columns) > 0 {
				f.Constraint = f.Table + "_" + strings.Join(columns, "_") + "_key"
			}
		case CodeCheckViolation:
			f.Constraint = detail
		case CodeNotNullViolation:
			if len(columns) == 1 {
				f.Column = columns[0]
			}
		}
		return f, true
	}
	return Failure{}, false
}
