package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"wedge/internal/scan"
)

// ErrInvalidRequest marks malformed or invalid request payloads.
var ErrInvalidRequest = errors.New("invalid request")

const maxBodyBytes = 64 << 10

// ValidationError reports the first invalid field of a request.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidRequest
}

type validatorSvc struct {
	validate   *validator.Validate
	translator ut.Translator
}

var (
	validatorOnce sync.Once
	validatorInst *validatorSvc
)

func getValidator() *validatorSvc {
	validatorOnce.Do(func() {
		enLoc := en.New()
		uni := ut.New(enLoc, enLoc)
		trans, _ := uni.GetTranslator("en")

		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			tag := fld.Tag.Get("json")
			if tag == "-" || tag == "" {
				return fld.Name
			}
			if idx := strings.Index(tag, ","); idx >= 0 {
				tag = tag[:idx]
			}
			return tag
		})
		_ = en_translations.RegisterDefaultTranslations(v, trans)

		_ = v.RegisterValidation("scanmode", func(fl validator.FieldLevel) bool {
			_, err := scan.ParseMode(fl.Field().String())
			return err == nil
		})
		_ = v.RegisterTranslation("scanmode", trans,
			func(ut ut.Translator) error {
				return ut.Add("scanmode", "{0} must be one of "+modeList(), true)
			},
			func(ut ut.Translator, fe validator.FieldError) string {
				msg, _ := ut.T("scanmode", fe.Field())
				return msg
			},
		)

		validatorInst = &validatorSvc{validate: v, translator: trans}
	})
	return validatorInst
}

func modeList() string {
	names := make([]string, 0, len(scan.Modes()))
	for _, m := range scan.Modes() {
		names = append(names, m.String())
	}
	return strings.Join(names, ", ")
}

// Validate checks v against its validate tags.
func Validate(v any) error {
	svc := getValidator()
	err := svc.validate.Struct(v)
	if err == nil {
		return nil
	}
	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return fmt.Errorf("validate %T: %w", v, err)
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &ValidationError{Field: fe.Field(), Message: fe.Translate(svc.translator)}
	}
	return &ValidationError{Message: err.Error()}
}

// Decode reads one JSON document from r into T and validates it. Unknown
// fields and trailing data are rejected.
func Decode[T any](r io.Reader) (T, error) {
	var dst T
	dec := json.NewDecoder(io.LimitReader(r, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&dst); err != nil {
		if errors.Is(err, io.EOF) {
			return dst, fmt.Errorf("%w: empty body", ErrInvalidRequest)
		}
		return dst, fmt.Errorf("%w: invalid JSON: %v", ErrInvalidRequest, err)
	}
	if dec.More() {
		return dst, fmt.Errorf("%w: unexpected trailing data", ErrInvalidRequest)
	}
	if err := Validate(dst); err != nil {
		return dst, err
	}
	return dst, nil
}

// DecodeClientMessage parses a websocket frame and enforces the fields each
// message type requires.
func DecodeClientMessage(data []byte) (ClientMessage, error) {
	msg, err := Decode[ClientMessage](bytes.NewReader(data))
	if err != nil {
		return msg, err
	}
	switch msg.Type {
	case MessageSurface:
		if msg.Action == "" {
			return msg, &ValidationError{Field: "action", Message: "action is a required field"}
		}
	case MessageMode:
		if msg.Mode == "" {
			return msg, &ValidationError{Field: "mode", Message: "mode is a required field"}
		}
	}
	return msg, nil
}
