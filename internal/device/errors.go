package device

import "errors"

var (
	ErrNoAdapter        = errors.New("no compute adapter available")
	ErrLimitExceeded    = errors.New("requested limit exceeds adapter limit")
	ErrDeviceLost       = errors.New("device lost")
	ErrOutOfMemory      = errors.New("device out of memory")
	ErrInvalidBuffer    = errors.New("invalid buffer descriptor")
	ErrInvalidUsage     = errors.New("buffer usage does not allow operation")
	ErrOutOfRange       = errors.New("range outside buffer bounds")
	ErrUnaligned        = errors.New("offset or size not aligned")
	ErrBufferDestroyed  = errors.New("buffer destroyed")
	ErrBufferMapped     = errors.New("buffer is mapped or has a pending map")
	ErrBufferNotMapped  = errors.New("buffer is not mapped")
	ErrMapAborted       = errors.New("buffer map aborted")
	ErrInvalidKernel    = errors.New("invalid kernel")
	ErrInvalidBindGroup = errors.New("invalid bind group")
	ErrInvalidCommand   = errors.New("invalid command")
	ErrKernelFault      = errors.New("kernel fault")
)
