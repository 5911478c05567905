// Package gekkofs holds the GekkoFS co-launch script consumed optionally by
// a Slurm worker pool deployment. The script's contents are treated as
// opaque: this package only templates the mount point and doesn't interpret
// GekkoFS internals.
package gekkofs

import (
	"fmt"
	"strings"
)

// startScript is the GekkoFS daemon bring-up sequence, run on each worker
// node before the worker entry point starts, so the worker sees a mounted
// GekkoFS at MountDir.
const startScript = `#!/bin/bash

module load gcc/12.3.0

export OMPI_MCA_osc=sm
export OMPI_MCA_pml=ob1
export LC_ALL=en_US.UTF-8
export LANG=en_US.UTF-8
export FI_UNIVERSE_SIZE=500

export GKFS_BASE=__MOUNT_BASE__
export GKFS_MNT=__MOUNT_DIR__
export GEKKODEPS=${GKFS_BASE}/iodeps
export LD_LIBRARY_PATH=$LD_LIBRARY_PATH:${GEKKODEPS}/lib64:${GEKKODEPS}/lib
export PATH=$PATH:${GEKKODEPS}/iodeps/bin
export GKFS_DAEMON=$GEKKODEPS/bin/gkfs_daemon
export GKFS=$GEKKODEPS/lib64/libgkfs_intercept.so
export GKFS_PROXY=$GEKKODEPS/bin/gkfs_proxy
export GKFS_LIBC=$GEKKODEPS/lib64/libgkfs_libc_intercept.so

export GKFS_HOSTS_FILE=${HOME}/gkfs_hosts.txt
export GKFS_LOG_LEVEL=0
export LIBGKFS_HOSTS_FILE=${HOME}/gkfs_hosts.txt
export LIBGKFS_LOG_SYSCALL_FILTER=epoll_wait,epoll_create,epoll_ctl
export GKFS_DAEMON_LOG_PATH=${HOME}/gkfs_daemon.log

export TMP_PATH=$TMPDIR
export GKFS_ROOT="${TMP_PATH}/agkfs_root"
export COMM="-P ofi+verbs"

execute_command() {
    "$@" &
    local pid=$!
    wait "$pid"
}

execute_command "${GKFS_DAEMON}" --mountdir="${GKFS_MNT:?}" --rootdir="${GKFS_ROOT:?}" $COMM -l ib0
`

// Inject returns startScript with its mount base and mount directory
// substituted, ready to prepend to a worker pool's sbatch script body.
func Inject(mountBase, mountDir string) string {
	s := strings.ReplaceAll(startScript, "__MOUNT_BASE__", mountBase)
	s = strings.ReplaceAll(s, "__MOUNT_DIR__", mountDir)
	return s
}

// WaitForHosts polls the GekkoFS hosts file until it lists at least n
// registered daemons, one per worker node. Run once, after every node has
// launched its own daemon via Inject and before the worker entry point
// starts, so no worker sees a half-registered filesystem.
func WaitForHosts(n int) string {
	return fmt.Sprintf(`hosts_file="${GKFS_HOSTS_FILE:-$HOME/gkfs_hosts.txt}"
until [ -f "$hosts_file" ] && [ "$(wc -l < "$hosts_file")" -ge %d ]; do
    sleep 2
done`, n)
}
