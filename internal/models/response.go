package models

// ErrorBody is the error detail returned to callers.
type ErrorBody struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// ErrorResponse is the envelope for every non-2xx JSON reply.
type ErrorResponse struct {
	Success bool      `json:"success"`
	Error   ErrorBody `json:"error"`
}

// NewErrorResponse builds a failed envelope.
func NewErrorResponse(message, code string) ErrorResponse {
	return ErrorResponse{Error: ErrorBody{Message: message, Code: code}}
}
