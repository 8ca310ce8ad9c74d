// Package apperr enthält die typisierten Anwendungsfehler und deren
// Abbildung auf HTTP-Statuscodes.
package apperr

import (
	"errors"
	"net/http"

	"github.com/go-sql-driver/mysql"
)

// ValidationError signalisiert fehlende oder fehlerhafte Eingaben (400).
type ValidationError struct {
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NotFoundError signalisiert eine fehlende Entität (404).
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ConflictError signalisiert einen Unique-Key-Konflikt (409).
type ConflictError struct {
	Message string
	Err     error
}

func (e *ConflictError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ConflictError) Unwrap() error { return e.Err }

// UpstreamError signalisiert einen Fehler eines externen Dienstes
// (arXiv-Katalog oder Language-Model-API, 500 mit Message-Passthrough).
type UpstreamError struct {
	Message string
	Err     error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// StorageError signalisiert einen Datenbankfehler (500).
type StorageError struct {
	Message string
	Err     error
}

func (e *StorageError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *StorageError) Unwrap() error { return e.Err }

func NewValidation(msg string) *ValidationError { return &ValidationError{Message: msg} }

func NewNotFound(msg string) *NotFoundError { return &NotFoundError{Message: msg} }

func NewConflict(msg string) *ConflictError { return &ConflictError{Message: msg} }

func NewUpstream(msg string, err error) *UpstreamError { return &UpstreamError{Message: msg, Err: err} }

func NewStorage(msg string, err error) *StorageError { return &StorageError{Message: msg, Err: err} }

// mysqlDuplicateEntry ist der MySQL-Fehlercode für verletzte Unique-Keys.
const mysqlDuplicateEntry = 1062

// IsDuplicateEntry meldet, ob err ein Unique-Key-Konflikt des Treibers ist.
func IsDuplicateEntry(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}

// FromStorage wandelt einen Treiberfehler in den passenden Anwendungsfehler.
// Unique-Key-Verletzungen werden zu ConflictError, alles andere zu StorageError.
func FromStorage(msg string, err error) error {
	if IsDuplicateEntry(err) {
		return &ConflictError{Message: msg, Err: err}
	}
	return &StorageError{Message: msg, Err: err}
}

// HTTPStatus bildet einen Fehler auf den zugehörigen HTTP-Status ab.
func HTTPStatus(err error) int {
	var (
		ve *ValidationError
		nf *NotFoundError
		ce *ConflictError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.As(err, &nf):
		return http.StatusNotFound
	case errors.As(err, &ce):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
