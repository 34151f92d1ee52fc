// Package policy resolves an agent's tool_profile and tool_allow/tool_deny
// sets into the plain string lists the tool registry's visibility formula
// consumes.
package policy

import "strings"

// Profile names a preset tool-set bundle.
type Profile string

const (
	ProfileMinimal Profile = "minimal"
	ProfileCoding  Profile = "coding"
	ProfileFull    Profile = "full"
)

// Groups bundles named tool groups referenceable from an allow/deny list
// via "group:<name>".
var Groups = map[string][]string{
	"group:fs":      {"read_file", "write_file", "list_files", "file_search"},
	"group:web":     {"web_fetch", "web_search"},
	"group:runtime": {"shell"},
	"group:memory":  {"memory"},
	"group:cron":    {"cron"},
	"group:spawn":   {"spawn", "spawn_status"},
	"group:status":  {"agents_list", "sessions_list", "session_status", "agent_message"},
}

// ProfileTools are the allow-list entries (group references or tool names)
// granted by each built-in profile, before agent-level allow/deny is
// applied.
var ProfileTools = map[Profile][]string{
	ProfileMinimal: {"group:status"},
	ProfileCoding:  {"group:fs", "group:runtime", "group:web", "group:memory", "group:status"},
	ProfileFull:    {"group:fs", "group:runtime", "group:web", "group:memory", "group:cron", "group:spawn", "group:status", "message"},
}

// Expand resolves group references in items to their constituent tool
// names, de-duplicating as it goes.
func Expand(items []string) []string {
	seen := map[string]bool{}
	var out []string
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	for _, item := range items {
		name := strings.TrimSpace(item)
		if name == "" {
			continue
		}
		if tools, ok := Groups[name]; ok {
			for _, t := range tools {
				add(t)
			}
			continue
		}
		add(name)
	}
	return out
}

// ProfileToolNames expands a profile to its flat tool name list.
func ProfileToolNames(profile Profile) []string {
	return Expand(ProfileTools[profile])
}
