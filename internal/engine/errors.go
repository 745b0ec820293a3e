package engine

import "errors"

// Engine errors. ErrInvariantViolation signals a defect upstream and must
// never be swallowed by callers; the rest are validation errors.
var (
	ErrInvalidTimeRange         = errors.New("rango de tiempo inválido")
	ErrInvalidPaymentAmount     = errors.New("monto de pago inválido")
	ErrInvalidPaymentMethod     = errors.New("método de pago inválido")
	ErrInvalidPaymentID         = errors.New("identificador de pago requerido")
	ErrLoanClosed               = errors.New("el préstamo está cerrado")
	ErrDuplicatePayment         = errors.New("pago duplicado")
	ErrUnknownLoanOrInstallment = errors.New("préstamo o cuota desconocida")
	ErrUnknownFrequency         = errors.New("frecuencia de pago desconocida")
	ErrUnknownStrategy          = errors.New("estrategia de asignación desconocida")
	ErrInvariantViolation       = errors.New("violación de invariante")
)
