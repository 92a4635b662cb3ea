package recipe

import "github.com/agent462/drover/internal/config"

// BuiltinRecipes returns all built-in recipes keyed by name.
func BuiltinRecipes() map[string]config.Recipe {
	return map[string]config.Recipe{
		"disk-check": {
			Description: "Check disk usage on root filesystem",
			Steps:       []string{"df -h /"},
		},
		"uptime": {
			Description: "Show uptime and load averages",
			Steps:       []string{"uptime"},
		},
		"reboot-check": {
			Description: "Check if hosts require a reboot",
			Steps: []string{
				`test -f /var/run/reboot-required && echo "REBOOT REQUIRED" || echo "no reboot needed"`,
			},
		},
		"agent-check": {
			Description: "Check fleet agent status; drill into hosts that differ",
			Steps: []string{
				"systemctl is-active drover-agent",
				"@differs systemctl status drover-agent --no-pager",
			},
		},
		"port-check": {
			Description: "List listening TCP ports (ss with netstat fallback)",
			Steps: []string{
				"ss -tlnp 2>/dev/null || netstat -tlnp 2>/dev/null",
			},
		},
		"user-audit": {
			Description: "List users with login shells",
			Steps: []string{
				`grep -v -e '/nologin$' -e '/false$' /etc/passwd | cut -d: -f1,7`,
			},
		},
		"log-tail": {
			Description: "Show recent error log entries",
			Steps: []string{
				"journalctl -p err --no-pager -n 20 2>/dev/null || tail -20 /var/log/syslog 2>/dev/null || tail -20 /var/log/messages",
			},
		},
		"os-version": {
			Description: "Show OS version across fleet",
			Steps: []string{
				`grep PRETTY_NAME /etc/os-release 2>/dev/null | cut -d= -f2 | tr -d '"' || uname -sr`,
			},
		},
	}
}

// IsBuiltin reports whether name is a built-in recipe.
func IsBuiltin(name string) bool {
	_, ok := BuiltinRecipes()[name]
	return ok
}

// Resolve looks up a recipe by name. User-defined recipes in cfg
// override built-ins with the same name. The second return reports
// whether a built-in exists under that name, the third whether the
// recipe was found at all.
func Resolve(name string, cfg *config.Config) (config.Recipe, bool, bool) {
	_, isBuiltin := BuiltinRecipes()[name]

	if cfg != nil {
		if r, ok := cfg.Recipes[name]; ok {
			return r, isBuiltin, true
		}
	}
	if isBuiltin {
		return BuiltinRecipes()[name], true, true
	}
	return config.Recipe{}, false, false
}

// Merged returns built-in recipes merged with user-defined ones. User
// recipes override built-ins with the same name.
func Merged(cfg *config.Config) map[string]config.Recipe {
	merged := make(map[string]config.Recipe)
	for name, r := range BuiltinRecipes() {
		merged[name] = r
	}
	if cfg != nil {
		for name, r := range cfg.Recipes {
			merged[name] = r
		}
	}
	return merged
}
