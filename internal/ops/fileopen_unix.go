//go:build !windows

package ops

import (
	stderrors "errors"
	"syscall"
)

const noFollowFlags = syscall.O_NOFOLLOW | syscall.O_CLOEXEC

func isSymlinkErr(err error) bool {
	return stderrors.Is(err, syscall.ELOOP)
}
