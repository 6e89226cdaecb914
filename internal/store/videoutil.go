package store

// VideoUtil implements encodemgr.VideoUtil, resolving source file paths
// through the VideoFileStore cache and parent-directory names through a
// static configured map (the real deployment's "recorded directories"
// configuration, out of scope for this module per §6).
type VideoUtil struct {
	files      *VideoFileStore
	parentDirs map[string]string
}

// NewVideoUtil constructs a VideoUtil. parentDirs maps a configured parent
// directory name (as carried on JobRequest.ParentDir) to its absolute path.
func NewVideoUtil(files *VideoFileStore, parentDirs map[string]string) *VideoUtil {
	return &VideoUtil{files: files, parentDirs: parentDirs}
}

// FullFilePath delegates to the VideoFileStore's cached lookup.
func (u *VideoUtil) FullFilePath(videoFileID int64) (string, bool) {
	return u.files.FullFilePath(videoFileID)
}

// ParentDirPath resolves a configured parent directory name to its
// absolute path.
func (u *VideoUtil) ParentDirPath(parentDir string) (string, bool) {
	p, ok := u.parentDirs[parentDir]
	return p, ok
}
