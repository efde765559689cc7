package domain

import "errors"

// ErrEmptyQuestion is returned when a loop is started without a question.
var ErrEmptyQuestion = errors.New("empty question")

// ErrNilTable is returned when a loop is started without a working table.
var ErrNilTable = errors.New("nil table")

// ErrInvalidBudget is returned when an iteration or token budget is not positive.
var ErrInvalidBudget = errors.New("invalid budget")

// ErrLedgerUnavailable is returned by ledger operations when no store is configured.
var ErrLedgerUnavailable = errors.New("ledger unavailable")
