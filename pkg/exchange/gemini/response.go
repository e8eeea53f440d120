package gemini

import (
	"errors"
	"reflect"
	"unicode/utf8"

	"github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"

	"gemini/pkg/core"
)

// maxDiagnosticBody bounds the raw text kept on a MalformedResponseError.
const maxDiagnosticBody = 64 << 10

var errInvalidUTF8 = errors.New("response body is not valid UTF-8")

var validate = validator.New()

type errorBody struct {
	Result  string `json:"result"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// Decode interprets raw as T, as the exchange's error body, or as neither.
func Decode[T any](raw []byte) (T, error) {
	return DecodeStatus[T](raw, 0)
}

// DecodeStatus is Decode with the HTTP status recorded on semantic errors.
//
// The exchange answers some failures with a success status, so the body alone
// decides: a clean parse into T that passes its validate tags wins; otherwise a
// {"result":"error"} body becomes a *core.ExchangeError; otherwise the result
// is a *core.MalformedResponseError holding the first parse error and the text.
func DecodeStatus[T any](raw []byte, status int) (T, error) {
	var out T
	err := sonic.Unmarshal(raw, &out)
	if err == nil {
		err = validateValue(&out)
	}
	if err == nil {
		return out, nil
	}

	var zero T
	var eb errorBody
	if sonic.Unmarshal(raw, &eb) == nil && eb.Result == "error" {
		return zero, core.NewExchangeError(eb.Result, eb.Reason, eb.Message).WithStatus(status)
	}

	if !utf8.Valid(raw) {
		return zero, &core.TransportError{Op: "decode response", Err: errInvalidUTF8}
	}
	body, truncated := string(raw), false
	if len(body) > maxDiagnosticBody {
		body, truncated = truncateUTF8(body, maxDiagnosticBody), true
	}
	return zero, &core.MalformedResponseError{Err: err, Body: body, Truncated: truncated}
}

// validateValue runs struct validation on v, or on each element when v is a slice of structs.
func validateValue(v any) error {
	rv := reflect.Indirect(reflect.ValueOf(v))
	switch rv.Kind() {
	case reflect.Struct:
		return validate.Struct(rv.Interface())
	case reflect.Pointer:
		if rv.IsNil() {
			return errors.New("empty response")
		}
		return validateValue(rv.Interface())
	case reflect.Slice:
		for i := 0; i < rv.Len(); i++ {
			if err := validateValue(rv.Index(i).Addr().Interface()); err != nil {
				return err
			}
		}
	}
	return nil
}

func truncateUTF8(s string, n int) string {
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
