//go:build windows

package ops

// O_NOFOLLOW does not exist on Windows; ValidatePath checks for symlinks
// before a file is opened.
const noFollowFlags = 0

func isSymlinkErr(error) bool { return false }
