package invoice

import "errors"

var (
	ErrMissingNumber    = errors.New("invoice: number is required")
	ErrNegativeTotal    = errors.New("invoice: total must not be negative")
	ErrRenderFailed     = errors.New("invoice: failed to render pdf")
	ErrLogoNotFound     = errors.New("invoice: logo not found")
	ErrLogoFetchFailed  = errors.New("invoice: failed to fetch logo")
	ErrUnsupportedLogo  = errors.New("invoice: unsupported logo reference")
	ErrUnsupportedImage = errors.New("invoice: unsupported image format")
	ErrInvalidS3Config  = errors.New("invoice: invalid s3 config")
	ErrAWSConfig        = errors.New("invoice: failed to load aws config")
)
