package errors

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// FormatForCLI formats an error for terminal output.
// Plain errors are shown as internal errors.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	ge, ok := As(err)
	if !ok {
		ge = Wrap(ErrCodeInternal, err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "ordgrep: %s\n", ge.Message)
	if ge.Cause != nil && ge.Cause.Error() != ge.Message {
		fmt.Fprintf(&sb, "  Cause: %s\n", ge.Cause)
	}
	if ge.Suggestion != "" {
		fmt.Fprintf(&sb, "  Hint: %s\n", ge.Suggestion)
	}
	fmt.Fprintf(&sb, "  Code: %s\n", ge.Code)
	return sb.String()
}

// LogAttrs returns slog attributes describing err.
func LogAttrs(err error) []slog.Attr {
	if err == nil {
		return nil
	}

	ge, ok := As(err)
	if !ok {
		return []slog.Attr{slog.String("error", err.Error())}
	}

	attrs := []slog.Attr{
		slog.String("error_code", ge.Code),
		slog.String("error", ge.Message),
		slog.String("category", string(ge.Category)),
	}
	if ge.Cause != nil {
		attrs = append(attrs, slog.String("cause", ge.Cause.Error()))
	}

	keys := make([]string, 0, len(ge.Details))
	for k := range ge.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, slog.String("detail_"+k, ge.Details[k]))
	}
	return attrs
}
