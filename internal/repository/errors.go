package repository

import "errors"

var (
	// ErrNotFound возвращается, если строка не найдена.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate возвращается при нарушении уникальности.
	ErrDuplicate = errors.New("record already exists")
	// ErrInvalidRow возвращается, если строка бэкенда не прошла проверку.
	ErrInvalidRow = errors.New("invalid row")
)
