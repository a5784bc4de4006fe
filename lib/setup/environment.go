package setup

import "os"

// TrustedPath is the only environment variable the process carries after
// reset. The invoking workload manager's environment is not trusted input
// for a root-privileged helper.
const TrustedPath = "/usr/bin:/usr/sbin:/bin:/sbin"

// ResetEnvironment discards every inherited environment variable and
// installs PATH=TrustedPath. Called exactly once at startup, before
// parsing and before any privileged action. The returned minimal
// environment is what collaborators pass to the child processes they
// spawn.
func ResetEnvironment() []string {
	os.Clearenv()
	os.Setenv("PATH", TrustedPath)
	return []string{"PATH=" + TrustedPath}
}
