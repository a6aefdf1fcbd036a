package telemetry

import (
	"database/sql"
	"strings"

	"github.com/XSAM/otelsql"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// OpenDB opens a traced database handle; queries show up as spans under
// the caller's request trace.
func OpenDB(driverName, dsn string) (*sql.DB, error) {
	return otelsql.Open(driverName, dsn,
		otelsql.WithAttributes(semconv.DBSystemPostgreSQL),
	)
}

// OpenDBForSchema opens a traced handle whose connections all target
// the given schema. The search_path rides on the DSN because a session
// `SET search_path` binds only the one pooled connection it runs on;
// every other connection the pool opens would keep the default path.
func OpenDBForSchema(driverName, dsn, schema string) (*sql.DB, error) {
	return OpenDB(driverName, dsnWithSearchPath(dsn, schema))
}

func dsnWithSearchPath(dsn, schema string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "options=-csearch_path%3D" + schema
}
