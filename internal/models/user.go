package models

// User is an authenticated salesperson as resolved from a verified token.
type User struct {
	ID       int64
	Username string
}
