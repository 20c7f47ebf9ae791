package httpdto

// Response is the uniform envelope for every REST endpoint.
type Response[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

func NewSuccessResponse[T any](data T) Response[T] {
	return Response[T]{
		Success: true,
		Data:    data,
	}
}

func NewMessageResponse[T any](data T, message string) Response[T] {
	return Response[T]{
		Success: true,
		Data:    data,
		Message: message,
	}
}

func NewErrorResponse(err string) Response[any] {
	return Response[any]{
		Success: false,
		Error:   err,
	}
}
