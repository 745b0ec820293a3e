package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/gin-gonic/gin"

	"github.com/sjperalta/fintera-prestamos/internal/services"
)

// maxBodyBytes caps request bodies read by bindPayload.
const maxBodyBytes = 64 << 10

// bindPayload decodes the request body into obj. Clients may send the
// resource wrapped under key ({"payment": {...}}) or flat ({...}).
// Every failure wraps services.ErrInvalidInput so respondError answers 400.
func bindPayload(c *gin.Context, key string, obj interface{}) error {
	var body []byte
	if c.Request.Body != nil {
		var err error
		body, err = io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes+1))
		if err != nil {
			return fmt.Errorf("%w: no se pudo leer el cuerpo", services.ErrInvalidInput)
		}
	}
	c.Request.Body = io.NopCloser(bytes.NewBuffer(body))

	if len(bytes.TrimSpace(body)) == 0 {
		return fmt.Errorf("%w: cuerpo vacío", services.ErrInvalidInput)
	}
	if len(body) > maxBodyBytes {
		return fmt.Errorf("%w: cuerpo demasiado grande", services.ErrInvalidInput)
	}

	payload := json.RawMessage(body)
	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(body, &wrapped); err == nil {
		if inner, ok := wrapped[key]; ok {
			payload = inner
		}
	}
	if err := json.Unmarshal(payload, obj); err != nil {
		return fmt.Errorf("%w: %s", services.ErrInvalidInput, describeDecodeError(err))
	}
	return nil
}

func describeDecodeError(err error) string {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr):
		return fmt.Sprintf("JSON mal formado en la posición %d", syntaxErr.Offset)
	case errors.As(err, &typeErr) && typeErr.Field != "":
		return fmt.Sprintf("el campo %s no admite %s", typeErr.Field, typeErr.Value)
	case errors.As(err, &typeErr):
		return fmt.Sprintf("se esperaba un objeto, no %s", typeErr.Value)
	}
	return err.Error()
}
