package domain

import (
	"errors"
	"fmt"
)

// ErrorKind clasifica los fallos del core para que el caller pueda distinguirlos
// sin parsear mensajes.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindValidation
	KindWrongPhase
	KindPhaseEnded
	KindPhaseNotEnded
	KindAlreadyClaimed
	KindNotAuthorized
	KindArithmeticOverflow
	KindNotFound
	KindAlreadyExists
	KindConflict
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "VALIDATION"
	case KindWrongPhase:
		return "WRONG_PHASE"
	case KindPhaseEnded:
		return "PHASE_ENDED"
	case KindPhaseNotEnded:
		return "PHASE_NOT_ENDED"
	case KindAlreadyClaimed:
		return "ALREADY_CLAIMED"
	case KindNotAuthorized:
		return "NOT_AUTHORIZED"
	case KindArithmeticOverflow:
		return "ARITHMETIC_OVERFLOW"
	case KindNotFound:
		return "NOT_FOUND"
	case KindAlreadyExists:
		return "ALREADY_EXISTS"
	case KindConflict:
		return "CONFLICT"
	default:
		return "UNKNOWN"
	}
}

// Error es el error tipado del dominio. Op identifica la operación que falló
// (p.ej. "place_bet") y Msg el detalle legible.
type Error struct {
	Kind ErrorKind
	Op   string
	Msg  string
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Msg)
}

// Is compara por Kind, así errors.Is(err, ErrWrongPhase) funciona con cualquier
// *Error del mismo tipo aunque Op o Msg difieran.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinels para usar con errors.Is.
var (
	ErrValidation         = &Error{Kind: KindValidation, Msg: "invalid input"}
	ErrWrongPhase         = &Error{Kind: KindWrongPhase, Msg: "wrong phase for this action"}
	ErrPhaseEnded         = &Error{Kind: KindPhaseEnded, Msg: "phase has ended"}
	ErrPhaseNotEnded      = &Error{Kind: KindPhaseNotEnded, Msg: "phase has not ended yet"}
	ErrAlreadyClaimed     = &Error{Kind: KindAlreadyClaimed, Msg: "tokens already claimed"}
	ErrNotAuthorized      = &Error{Kind: KindNotAuthorized, Msg: "caller not authorized"}
	ErrArithmeticOverflow = &Error{Kind: KindArithmeticOverflow, Msg: "arithmetic overflow"}
	ErrNotFound           = &Error{Kind: KindNotFound, Msg: "not found"}
	ErrAlreadyExists      = &Error{Kind: KindAlreadyExists, Msg: "already exists"}
	ErrConflict           = &Error{Kind: KindConflict, Msg: "concurrent modification"}
)

func newErr(kind ErrorKind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Errorf construye un *Error; lo usan los adapters para reportar NotFound,
// AlreadyExists o Conflict con el mismo tipo que el dominio.
func Errorf(kind ErrorKind, op, format string, args ...any) error {
	return newErr(kind, op, format, args...)
}

// KindOf devuelve el ErrorKind del primer *Error en la cadena, o KindUnknown.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnknown
}
