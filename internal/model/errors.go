package model

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidSlot       = errors.New("invalid time slot")
	ErrInvalidDate       = errors.New("invalid date")
	ErrInvalidRange      = errors.New("invalid date range")
	ErrInvalidCapacity   = errors.New("invalid capacity")
	ErrInvalidRule       = errors.New("invalid seasonal rule")
	ErrInvalidCategory   = errors.New("invalid blackout category")
	ErrUnderflow         = errors.New("booked count underflow")
	ErrContention        = errors.New("slot update contention")
	ErrDuplicateBooking  = errors.New("duplicate booking")
	ErrBookingNotActive  = errors.New("booking is not active")
	ErrNotCharterCaptain = errors.New("captain does not own charter")
)
