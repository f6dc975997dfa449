// Package sshexec runs remote commands over SSH and file transfers over
// rsync. Concurrent sessions are capped by a weighted semaphore shared
// across callers.
package sshexec
