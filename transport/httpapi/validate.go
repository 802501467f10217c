package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 64 << 10

var v = validator.New()

// decode reads a JSON body into dst and checks its validate tags. Only
// presence is checked here; address and password rules belong to the
// identity provider so their failures keep their own error kinds.
func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeBadRequest(w, "json data could not be decoded")
		return false
	}
	if err := v.Struct(dst); err != nil {
		writeBadRequest(w, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	ve, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		msgs = append(msgs, fmt.Sprintf("%s has not been set", fe.Field()))
	}
	return strings.Join(msgs, "; ")
}
