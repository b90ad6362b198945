package systemd

import "syscall"

// sysProcAttr puts systemctl in its own process group. Pdeathsig makes the
// kernel stop it if pollguard dies mid-call.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGTERM,
	}
}
