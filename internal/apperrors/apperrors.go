// Package apperrors defines the closed set of error kinds shared by the stores,
// the remote facade and the API server.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindUnknown Kind = iota

	// transient connectivity
	KindUnavailable
	KindFailedPrecondition

	KindValidation
	KindConfig
	KindInternal
	KindNotFound
	KindPermissionDenied
	KindResourceExhausted

	// identity
	KindDuplicateEmail
	KindInvalidEmail
	KindWeakPassword
	KindAuthFailed
	KindEmailNotVerified
	KindInvalidCredentials
	KindUserDisabled
	KindUserNotFound
	KindWrongPassword
	KindReauthenticationFailed
	KindNotAuthenticated
	KindTokenExpired
	KindSignOutFailed

	// stores
	KindNoUserContext
	KindIndexBuilding
	KindFetchFailed
	KindCreateFailed
	KindUpdateFailed
	KindDeleteFailed

	// uploads
	KindInvalidImage
	KindImageUploadFailed
)

type kindInfo struct {
	code    string
	message string
	status  int
}

var kinds = map[Kind]kindInfo{
	KindUnknown:                {"unknown", "অজানা সমস্যা হয়েছে", http.StatusInternalServerError},
	KindUnavailable:            {"unavailable", "সার্ভারের সাথে সংযোগ করা যাচ্ছে না", http.StatusServiceUnavailable},
	KindFailedPrecondition:     {"failed_precondition", "সার্ভার এখন অনুরোধটি গ্রহণ করতে পারছে না", http.StatusPreconditionFailed},
	KindValidation:             {"validation_failed", "তথ্য সঠিক নয়", http.StatusBadRequest},
	KindConfig:                 {"config_error", "কনফিগারেশন সমস্যা", http.StatusInternalServerError},
	KindInternal:               {"internal", "সার্ভারে সমস্যা হয়েছে", http.StatusInternalServerError},
	KindNotFound:               {"not_found", "তথ্য পাওয়া যায়নি", http.StatusNotFound},
	KindPermissionDenied:       {"permission_denied", "অনুমতি নেই", http.StatusForbidden},
	KindResourceExhausted:      {"resource_exhausted", "অনেক বেশি অনুরোধ, কিছুক্ষণ পর চেষ্টা করুন", http.StatusTooManyRequests},
	KindDuplicateEmail:         {"email_already_in_use", "এই ইমেইল দিয়ে ইতিমধ্যে একাউন্ট খোলা আছে", http.StatusConflict},
	KindInvalidEmail:           {"invalid_email", "অবৈধ ইমেইল", http.StatusBadRequest},
	KindWeakPassword:           {"weak_password", "দুর্বল পাসওয়ার্ড", http.StatusBadRequest},
	KindAuthFailed:             {"auth_failed", "লগইন করতে সমস্যা হয়েছে", http.StatusUnauthorized},
	KindEmailNotVerified:       {"email_not_verified", "ইমেইল ভেরিফাই করা হয়নি। অনুগ্রহ করে আপনার ইমেইল চেক করুন।", http.StatusForbidden},
	KindInvalidCredentials:     {"invalid_credentials", "ইমেইল অথবা পাসওয়ার্ড সঠিক নয়", http.StatusUnauthorized},
	KindUserDisabled:           {"user_disabled", "এই একাউন্ট নিষ্ক্রিয় করা হয়েছে", http.StatusForbidden},
	KindUserNotFound:           {"user_not_found", "এই ইমেইলে কোনো একাউন্ট নেই", http.StatusNotFound},
	KindWrongPassword:          {"wrong_password", "ভুল পাসওয়ার্ড", http.StatusUnauthorized},
	KindReauthenticationFailed: {"reauthentication_failed", "বর্তমান পাসওয়ার্ড সঠিক নয়", http.StatusUnauthorized},
	KindNotAuthenticated:       {"not_authenticated", "ব্যবহারকারী লগইন অবস্থায় নেই", http.StatusUnauthorized},
	KindTokenExpired:           {"expired_token", "সেশনের মেয়াদ শেষ হয়েছে", http.StatusUnauthorized},
	KindSignOutFailed:          {"sign_out_failed", "লগআউট করতে সমস্যা হয়েছে", http.StatusInternalServerError},
	KindNoUserContext:          {"no_user_context", "ইউজার আইডি পাওয়া যায়নি", http.StatusUnauthorized},
	KindIndexBuilding:          {"index_building", "ডাটাবেস ইনডেক্স তৈরি হচ্ছে, কিছুক্ষণ অপেক্ষা করুন।", http.StatusPreconditionFailed},
	KindFetchFailed:            {"fetch_failed", "টুডু লোড করতে সমস্যা হয়েছে", http.StatusInternalServerError},
	KindCreateFailed:           {"create_failed", "টুডু তৈরি করতে সমস্যা হয়েছে", http.StatusInternalServerError},
	KindUpdateFailed:           {"update_failed", "টুডু আপডেট করতে সমস্যা হয়েছে", http.StatusInternalServerError},
	KindDeleteFailed:           {"delete_failed", "টুডু ডিলিট করতে সমস্যা হয়েছে", http.StatusInternalServerError},
	KindInvalidImage:           {"invalid_image", "ছবির সাইজ ৫MB এর বেশি অথবা ফাইলটি ছবি নয়", http.StatusBadRequest},
	KindImageUploadFailed:      {"image_upload_failed", "ছবি আপলোড করতে সমস্যা হয়েছে", http.StatusBadGateway},
}

var byCode = func() map[string]Kind {
	m := make(map[string]Kind, len(kinds))
	for k, info := range kinds {
		m[info.code] = k
	}
	return m
}()

// Code is the stable wire identifier of the kind.
func (k Kind) Code() string {
	if info, ok := kinds[k]; ok {
		return info.code
	}
	return kinds[KindUnknown].code
}

func (k Kind) String() string { return k.Code() }

// Message is the default user-facing message for the kind.
func (k Kind) Message() string {
	if info, ok := kinds[k]; ok {
		return info.message
	}
	return kinds[KindUnknown].message
}

// HTTPStatus is the status the API server answers with for the kind.
func (k Kind) HTTPStatus() int {
	if info, ok := kinds[k]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}

// Retryable reports whether the kind is a transient connectivity failure.
func (k Kind) Retryable() bool {
	return k == KindUnavailable || k == KindFailedPrecondition
}

// KindFromCode maps a wire code back to its kind. Unknown codes map to KindUnknown.
func KindFromCode(code string) Kind {
	if k, ok := byCode[code]; ok {
		return k
	}
	return KindUnknown
}

type Error struct {
	Kind      Kind
	Message   string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind.Code(), e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind.Code(), e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, apperrors.New(KindX))
// works as a kind check.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

func New(kind Kind) *Error {
	return &Error{Kind: kind, Message: kind.Message(), Retryable: kind.Retryable()}
}

func Wrap(kind Kind, err error) *Error {
	e := New(kind)
	e.Err = err
	return e
}

func Newf(kind Kind, format string, args ...any) *Error {
	e := New(kind)
	e.Message = fmt.Sprintf(format, args...)
	return e
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsRetryable dispatches on the Retryable flag of the first *Error in the chain.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// Message returns the user-facing message carried by err, falling back to the
// generic message for foreign errors.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return KindUnknown.Message()
}
