package embedding

import (
	"errors"

	openai "github.com/sashabaranov/go-openai"
)

func asAPIError(err error) (*openai.APIError, bool) {
	var e *openai.APIError
	ok := errors.As(err, &e)
	return e, ok
}

func asRequestError(err error) (*openai.RequestError, bool) {
	var e *openai.RequestError
	ok := errors.As(err, &e)
	return e, ok
}
