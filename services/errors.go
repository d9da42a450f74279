package services

import "fmt"

// FetchError is returned when an ElevenLabs request cannot be completed.
type FetchError struct {
	Op     string // "conversation", "history"
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s %s: %v", e.Op, e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s %s: status %d", e.Op, e.URL, e.Status)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// StoreError wraps a failure of one of the persistence backends.
type StoreError struct {
	Store string // "dynamodb", "postgres", "csv"
	Op    string // "open", "read", "append", "header", "close"
	Err   error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s store %s: %v", e.Store, e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
