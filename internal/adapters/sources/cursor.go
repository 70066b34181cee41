package sources

import (
	"strconv"

	perr "recallwatch/internal/platform/errors"
)

// pageCursor decodes the numeric page cursors the builtin adapters issue.
// Empty means the first page
func pageCursor(cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(cursor)
	if err != nil || n < 0 {
		return 0, perr.Newf(perr.ErrorCodeInvalidArgument, "bad page cursor %q", cursor)
	}
	return n, nil
}

func nextPageCursor(page int) string { return strconv.Itoa(page + 1) }
