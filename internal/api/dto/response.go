package dto

// Response is the envelope for operator-facing endpoints.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// OK wraps data in a success envelope.
func OK(data any) Response {
	return Response{Success: true, Data: data}
}

// OKMessage wraps a message and data in a success envelope.
func OKMessage(message string, data any) Response {
	return Response{Success: true, Message: message, Data: data}
}
