package postgres

import (
	"fmt"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// withListOpts appends the time range, newest-first order and pagination of
// opts to a query whose WHERE clause is already open. Since is inclusive and
// Until exclusive.
func withListOpts(query string, args []any, timeCol string, opts domain.ListOpts) (string, []any) {
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if opts.Since != nil {
		query += " AND " + timeCol + " >= " + next(*opts.Since)
	}
	if opts.Until != nil {
		query += " AND " + timeCol + " < " + next(*opts.Until)
	}
	query += " ORDER BY " + timeCol + " DESC"
	if opts.Limit > 0 {
		query += " LIMIT " + next(opts.Limit)
	}
	if opts.Offset > 0 {
		query += " OFFSET " + next(opts.Offset)
	}
	return query, args
}
