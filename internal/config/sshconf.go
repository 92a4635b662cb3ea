package config

import (
	"os"
	"strconv"

	"github.com/kevinburke/ssh_config"

	"github.com/agent462/drover/internal/pathutil"
)

// MergeSSHConfig fills empty User, Port, and Keys from the user's
// ~/.ssh/config entry for the given address. Explicit option values
// always win over ssh_config.
func MergeSSHConfig(addr string, o *Options) {
	if o.User == "" {
		if user := sshConfigGet(addr, "User"); user != "" {
			o.User = user
		}
	}

	if o.Port == 0 {
		if portStr := sshConfigGet(addr, "Port"); portStr != "" {
			if port, err := strconv.Atoi(portStr); err == nil && port > 0 {
				o.Port = port
			}
		}
	}

	if len(o.Keys) == 0 {
		if identity := sshConfigGet(addr, "IdentityFile"); identity != "" {
			expanded := pathutil.ExpandHome(identity)
			if _, err := os.Stat(expanded); err == nil {
				o.Keys = []string{expanded}
			}
		}
	}
}

// sshConfigGet looks up a key for a host in the user's SSH config.
func sshConfigGet(hostname, key string) string {
	val, err := ssh_config.GetStrict(hostname, key)
	if err != nil {
		return ""
	}
	return val
}
