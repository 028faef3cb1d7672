package engine

import (
	"errors"

	"YoloDetServer/instance"
	"YoloDetServer/native"
)

var (
	ErrUnsupportedPlatform     = errors.New("only 64-bit processes are supported")
	ErrInitialization          = errors.New("yolo initialization failed")
	ErrModuleNotFound          = native.ErrModuleNotFound
	ErrSymbolNotFound          = native.ErrSymbolNotFound
	ErrIO                      = instance.ErrCopy
	ErrFileNotFound            = errors.New("file not found")
	ErrInvalidImageFormat      = errors.New("invalid image data, wrong image format")
	ErrNativeContractViolation = errors.New("yolo_cpp_dll compiled incorrectly")
	ErrUnknownClass            = errors.New("unknown object class")
	ErrNativeFault             = errors.New("native call faulted")
	ErrNotInitialized          = errors.New("detector not initialized")
	ErrAlreadyInitialized      = errors.New("detector already initialized")
	ErrDisposed                = errors.New("detector disposed")
)
