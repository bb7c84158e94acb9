package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/weiawesome/emergency-chat-relay/internal/domain"
)

const (
	errMsgInvalidFormat = "invalid message format"
	errMsgStoreFailed   = "failed to store message"
)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// decodeInbound parses a chat frame. Unknown fields and trailing data are
// rejected.
func decodeInbound(raw []byte) (*domain.InboundMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var in domain.InboundMessage
	if err := dec.Decode(&in); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after message", domain.ErrValidation)
	}
	return &in, nil
}

// validateInbound checks in against the schema and the connection's
// participant id. The receiver check runs first so its message is stable.
func validateInbound(v *validator.Validate, in *domain.InboundMessage, participantID string) error {
	if strings.TrimSpace(in.ReceiverID) == "" {
		return domain.NewValidationError("receiverId", "is required")
	}

	if err := v.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return toValidationError(verrs[0])
		}
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	if in.SenderID != participantID {
		return domain.NewValidationError("senderId", "does not match connection")
	}
	return nil
}

func toValidationError(fe validator.FieldError) *domain.ValidationError {
	switch fe.Tag() {
	case "required":
		return domain.NewValidationError(fe.Field(), "is required")
	case "notblank":
		return domain.NewValidationError(fe.Field(), "must not be empty")
	case "oneof":
		return domain.NewValidationError(fe.Field(), "must be one of "+strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		return domain.NewValidationError(fe.Field(), "is invalid")
	}
}

// errorReply returns the text sent back to the sender for err.
func errorReply(err error) string {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		return verr.Error()
	case errors.Is(err, domain.ErrValidation):
		return errMsgInvalidFormat
	default:
		return errMsgStoreFailed
	}
}
