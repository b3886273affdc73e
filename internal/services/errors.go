package services

import "errors"

// Analysis service errors
var (
	ErrUnknownBasket = errors.New("unknown basket")
)
