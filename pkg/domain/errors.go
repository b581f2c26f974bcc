package domain

import (
	"errors"
	"fmt"
)

// Linking errors
var (
	ErrVerificationFailed          = errors.New("verification failed")
	ErrMissingRequiredProfileField = fmt.Errorf("%w: missing required profile field", ErrVerificationFailed)
	ErrPersistenceConflict         = errors.New("persistence conflict")
	ErrUsernameAlreadyExists       = fmt.Errorf("%w: username already exists", ErrPersistenceConflict)
	ErrIdentityAlreadyLinked       = fmt.Errorf("%w: identity already linked to another user", ErrPersistenceConflict)
	ErrStaleRevision               = fmt.Errorf("%w: user modified concurrently", ErrPersistenceConflict)
	ErrPreconditionViolation       = errors.New("precondition violation")
	ErrNoSessionUser               = fmt.Errorf("%w: no session user to link to", ErrPreconditionViolation)
	ErrUnknownProvider             = errors.New("unknown provider")
	ErrLazyUsernameExhausted       = errors.New("could not allocate a unique guest username")
)

// Authentication errors
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInactiveUser       = errors.New("user is inactive")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
)

// Validation errors
var (
	ErrInvalidEmail     = errors.New("invalid email address")
	ErrInvalidUsername  = errors.New("invalid username format")
	ErrWeakPassword     = errors.New("password does not meet requirements")
	ErrPasswordMismatch = errors.New("passwords do not match")
	ErrMissingField     = errors.New("required field missing")
	ErrInvalidLanguage  = errors.New("unsupported language")
	ErrInvalidBirthdate = errors.New("birthdate out of range")
	ErrEmailNotSet      = errors.New("account email address not set")
)
