package database

import (
	"fmt"
	"strings"

	"github.com/huandu/go-sqlbuilder"
)

// Excluded names the incoming row's column inside an ON CONFLICT DO UPDATE
// assignment.
func Excluded(column string) string {
	return "EXCLUDED." + column
}

// InsertBuilder extends the postgres insert builder with upsert clauses.
type InsertBuilder struct {
	*sqlbuilder.InsertBuilder
}

func NewInsertBuilder() *InsertBuilder {
	return &InsertBuilder{sqlbuilder.PostgreSQL.NewInsertBuilder()}
}

// OnConflictUpdate appends DO UPDATE over the given conflict columns. Each
// assignment is a raw "column = expression" fragment, see Excluded.
func (b *InsertBuilder) OnConflictUpdate(conflictColumns []string, assignments ...string) *InsertBuilder {
	b.SQL(fmt.Sprintf(
		"ON CONFLICT (%s) DO UPDATE SET %s",
		strings.Join(conflictColumns, ", "),
		strings.Join(assignments, ", "),
	))
	return b
}
