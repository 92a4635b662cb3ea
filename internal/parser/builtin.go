package parser

// BuiltinParsers maps a name to extraction rules for common commands.
// "disk" expects `df -h /`, "free" expects `free -h`, and "uptime"
// expects the stock uptime output.
var BuiltinParsers = map[string][]Rule{
	"disk": {
		{Field: "size", Column: 2},
		{Field: "used", Column: 3},
		{Field: "avail", Column: 4},
		{Field: "use%", Column: 5},
	},
	"free": {
		{Field: "total", Pattern: `(?m)^Mem:\s+(\S+)`},
		{Field: "used", Pattern: `(?m)^Mem:\s+\S+\s+(\S+)`},
		{Field: "free", Pattern: `(?m)^Mem:\s+\S+\s+\S+\s+(\S+)`},
	},
	"uptime": {
		{Field: "up", Pattern: `up\s+(.+?),\s+\d+\s+user`},
		{Field: "load1", Pattern: `load average:\s+([\d.]+)`},
		{Field: "load5", Pattern: `load average:\s+[\d.]+,\s+([\d.]+)`},
		{Field: "load15", Pattern: `load average:\s+[\d.]+,\s+[\d.]+,\s+([\d.]+)`},
	},
}

// Builtin returns the named builtin parser, or nil if unknown.
func Builtin(name string) *OutputParser {
	rules, ok := BuiltinParsers[name]
	if !ok {
		return nil
	}
	p, err := New(rules)
	if err != nil {
		return nil
	}
	return p
}
