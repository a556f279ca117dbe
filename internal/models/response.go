package models

import (
	"net/http"

	"departureboard.app/internal/clock"
)

// ResponseModel is the envelope of every JSON API response.
type ResponseModel struct {
	Code        int    `json:"code"`
	CurrentTime int64  `json:"currentTime"`
	Text        string `json:"text"`
	Version     int    `json:"version"`
	Data        any    `json:"data"`
}

const responseVersion = 1

func ResponseCurrentTime(c clock.Clock) int64 {
	return c.Now().UnixMilli()
}

func NewResponse(code int, text string, data any, c clock.Clock) ResponseModel {
	return ResponseModel{
		Code:        code,
		CurrentTime: ResponseCurrentTime(c),
		Text:        text,
		Version:     responseVersion,
		Data:        data,
	}
}

// NewOKResponse wraps data. A nil data encodes as null.
func NewOKResponse(data any, c clock.Clock) ResponseModel {
	return NewResponse(http.StatusOK, "OK", data, c)
}

// NewErrorResponse carries a status text and no data.
func NewErrorResponse(code int, text string, c clock.Clock) ResponseModel {
	return NewResponse(code, text, nil, c)
}

// ListData is the payload of list endpoints.
type ListData[T any] struct {
	List []T `json:"list"`
}

// NewListResponse always encodes an array, never null.
func NewListResponse[T any](list []T, c clock.Clock) ResponseModel {
	if list == nil {
		list = []T{}
	}
	return NewOKResponse(ListData[T]{List: list}, c)
}
