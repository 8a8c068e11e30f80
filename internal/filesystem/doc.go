/*
Package filesystem inspects where source files live and reads them with
retry logic for NFS stale file handle errors.

# Mount inspection

MountTable is built from /proc/self/mountinfo, read with procfs, and
resolves a path to its most specific mount using longest-prefix matching.
IsRemote reports network and FUSE mounts (nfs, cifs, sshfs, gvfs, ...), which the thumbnail policy uses to skip
video files that would have to be streamed over the network.

	mounts, err := filesystem.LoadMountTable()
	if err != nil {
	    return err
	}
	if mounts.IsRemote("/media/share/movie.mkv") {
	    // skip
	}

# Write activity

WriteActivity watches the media tree with fsnotify. A file that received a
create or write event within the quiet period (5s by default) is treated as
still being copied, so the thumbnail policy can wait for it to settle.
Timestamp changes alone do not count. NewWriteActivity returns a tracker with
no watcher that never reports a copy, for one-shot tools.

	activity, err := filesystem.WatchWriteActivity(mediaDir, 0)
	if err != nil {
	    return err
	}
	defer activity.Close()

# Retry behavior

StatWithRetry and OpenWithRetry retry only on ESTALE (errno 116) with
exponential backoff:
  - MaxRetries: 3 attempts
  - InitialBackoff: 50ms
  - MaxBackoff: 500ms

All other errors fail immediately.
*/
package filesystem
