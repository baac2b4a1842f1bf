package domain

import "errors"

var (
	ErrInvalidOrganization   = errors.New("invalid_organization")
	ErrInvalidInput          = errors.New("invalid_input")
	ErrUnconfiguredRate      = errors.New("unconfigured_rate")
	ErrConfigurationNotFound = errors.New("tax_configuration_not_found")
	ErrInvalidNature         = errors.New("invalid_nature")
)
