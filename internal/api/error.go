package api

// Error is the JSON error envelope returned to clients.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func NewError(message string, code int) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

func (e *Error) Error() string {
	return e.Message
}
