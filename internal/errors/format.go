package errors

// FormatForLog renders an error as key-value pairs suitable for slog
// attributes, so callers can do logger.Error("op failed",
// errors.FormatForLog(err)...) style logging without string-matching.
func FormatForLog(err error) []any {
	if err == nil {
		return nil
	}

	e, ok := err.(*Error)
	if !ok {
		return []any{"error", err.Error()}
	}

	attrs := []any{
		"error_code", e.Code,
		"message", e.Message,
		"category", string(e.Category),
		"severity", string(e.Severity),
		"retryable", e.Retryable,
	}

	if e.Cause != nil {
		attrs = append(attrs, "cause", e.Cause.Error())
	}
	if e.Suggestion != "" {
		attrs = append(attrs, "suggestion", e.Suggestion)
	}
	for k, v := range e.Details {
		attrs = append(attrs, "detail_"+k, v)
	}

	return attrs
}
