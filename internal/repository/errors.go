package repository

import "strings"

// isUniqueViolation covers drivers that do not translate to
// gorm.ErrDuplicatedKey without TranslateError.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "sqlstate 23505")
}
