package httpapi

import (
	"net/http"

	goRecover "github.com/MrEthical07/goRecover"
)

type kindReply struct {
	status  int
	message string
}

var kindReplies = map[goRecover.ErrorKind]kindReply{
	goRecover.KindInvalidEmail:               {http.StatusBadRequest, "INVALID EMAIL ADDRESS"},
	goRecover.KindInvalidPassword:            {http.StatusUnauthorized, "INVALID PASSWORD"},
	goRecover.KindUnknownUser:                {http.StatusNotFound, "UNKNOWN USER"},
	goRecover.KindUserAlreadyExists:          {http.StatusConflict, "USER ALREADY EXISTS"},
	goRecover.KindEmailNotVerified:           {http.StatusForbidden, "NEED EMAIL VERIFICATION"},
	goRecover.KindResetDisabled:              {http.StatusForbidden, "PASSWORD RESET DISABLED"},
	goRecover.KindInvalidOrExpiredCode:       {http.StatusBadRequest, "INVALID OR EXPIRED CODE"},
	goRecover.KindInvalidSelectorTokenPair:   {http.StatusBadRequest, "INVALID SELECTOR TOKEN PAIR"},
	goRecover.KindTokenExpired:               {http.StatusGone, "TOKEN EXPIRED"},
	goRecover.KindNoPriorConfirmationRequest: {http.StatusNotFound, "NO EARLIER REQUEST FOUND"},
	goRecover.KindTooManyRequests:            {http.StatusTooManyRequests, "TOO MANY REQUESTS"},
	goRecover.KindNotLoggedIn:                {http.StatusUnauthorized, "NOT LOGGED IN"},
	goRecover.KindDecodeError:                {http.StatusBadRequest, "INVALID RESET PAYLOAD"},
	goRecover.KindStorageError:               {http.StatusServiceUnavailable, "something went wrong, we are working on it..."},
	goRecover.KindUpstreamError:              {http.StatusBadGateway, "something went wrong, we are working on it..."},
}

// StatusOf returns the HTTP status for kind. Unknown kinds map like
// UpstreamError.
func StatusOf(kind goRecover.ErrorKind) int {
	if r, ok := kindReplies[kind]; ok {
		return r.status
	}
	return http.StatusBadGateway
}

func messageOf(kind goRecover.ErrorKind) string {
	if r, ok := kindReplies[kind]; ok {
		return r.message
	}
	return kindReplies[goRecover.KindUpstreamError].message
}
