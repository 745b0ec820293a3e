package services

import "errors"

// Common service errors
var (
	ErrNotFound     = errors.New("registro no encontrado")
	ErrDuplicate    = errors.New("registro duplicado")
	ErrInvalidInput = errors.New("datos inválidos")
	ErrConflict     = errors.New("el registro cambió durante la operación, intente de nuevo")
)
