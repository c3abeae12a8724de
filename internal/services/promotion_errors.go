package services

import "errors"

var (
	// ErrPromotionRepositoryMissing indicates the promotion repository dependency is absent.
	ErrPromotionRepositoryMissing = errors.New("promotion service: repository is not configured")
	// ErrPromotionInvalidInput signals a promotion that breaks the value or schedule rules.
	ErrPromotionInvalidInput = errors.New("promotion service: invalid input")
	// ErrPromotionNotFound indicates no promotion exists for the provided id.
	ErrPromotionNotFound = errors.New("promotion service: promotion not found")
	// ErrPromotionConflict indicates a promotion with the same id already exists.
	ErrPromotionConflict = errors.New("promotion service: conflict")
	// ErrPromotionUnavailable indicates the datastore could not be reached.
	ErrPromotionUnavailable = errors.New("promotion service: unavailable")
	// ErrPromotionProductNotFound indicates a quote was requested for an unknown or inactive product.
	ErrPromotionProductNotFound = errors.New("promotion service: product not found")
)
