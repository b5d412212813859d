package errors

import (
	"errors"
	"strings"
)

// ErrorDump is the log-friendly view of an error chain.
type ErrorDump struct {
	TopMessage string   `json:"top_message"`
	Code       Code     `json:"code,omitempty"`
	HTTPStatus int      `json:"http_status,omitempty"`
	Retryable  bool     `json:"retryable"`
	Chain      []string `json:"chain,omitempty"`
}

// Dump flattens err into one entry per layer. Each entry holds only that
// layer's own text, with the wrapped error's message trimmed off.
func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	d := ErrorDump{TopMessage: err.Error()}
	if typed := As(err); typed != nil {
		meta := MetadataFor(typed.Code())
		d.Code = typed.Code()
		d.HTTPStatus = meta.HTTPStatus
		d.Retryable = meta.Retryable
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, layerMessage(e))
	}
	return d
}

func layerMessage(err error) string {
	msg := err.Error()
	inner := errors.Unwrap(err)
	if inner == nil {
		return msg
	}
	if own, ok := strings.CutSuffix(msg, ": "+inner.Error()); ok && own != "" {
		return own
	}
	return msg
}
