package domain

import "errors"

// Таксономия ошибок ядра. Наружу отдаются через errors.Is, внутри оборачиваются fmt.Errorf("%w").
var (
	ErrValidation    = errors.New("validation error")
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrUnknownAction = errors.New("unknown action")
	ErrPersistence   = errors.New("persistence error")
)
