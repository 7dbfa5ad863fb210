package domain

import "errors"

var (
	ErrUnknownConfigurationKey = errors.New("unknown_configuration_key")
	ErrInvalidConfigurationKey = errors.New("invalid_configuration_key")
	ErrInvalidPatch            = errors.New("invalid_configuration_patch")
)
