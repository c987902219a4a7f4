package core

import (
	"errors"
)

var (
	ErrSwapchainBooting = errors.New("swapchain resized or recreated, booting")
	ErrUnknown          = errors.New("unknown")

	ErrUnsupportedBackend = errors.New("unsupported graphics backend")
	ErrInvalidSettings    = errors.New("invalid settings")
	ErrDeviceLost         = errors.New("device lost")
	ErrContextClosed      = errors.New("context closed")

	ErrInvalidSubresource = errors.New("subresource out of range")
	ErrResourceDestroyed  = errors.New("resource already destroyed")

	ErrCommandListNotOpen = errors.New("command list is not open for recording")
	ErrCommandListOpen    = errors.New("command list is still open")

	ErrDescriptorPoolExhausted = errors.New("descriptor pool exhausted")
	ErrDescriptorDoubleFree    = errors.New("descriptor handle already free")
	ErrInvalidDescriptor       = errors.New("invalid descriptor handle")
	ErrBindlessIndexOutOfRange = errors.New("bindless index out of range")
	ErrViewTypeMismatch        = errors.New("view type does not match pool")
)
