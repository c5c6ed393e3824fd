package domain

import "errors"

// Ошибки валидации доменных объектов.
var (
	// ErrInvalidJob — некорректное определение job.
	ErrInvalidJob = errors.New("invalid job")

	// ErrInvalidSchedule — некорректное расписание.
	ErrInvalidSchedule = errors.New("invalid schedule")
)
