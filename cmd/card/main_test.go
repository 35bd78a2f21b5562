package main

import "testing"

// Every name in mutatingCommands must correspond to a registered command,
// otherwise the store lock silently protects nothing.
func TestMutatingCommandsRegistered(t *testing.T) {
	registered := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		registered[c.Name()] = true
	}

	for name := range mutatingCommands {
		if !registered[name] {
			t.Errorf("mutating command %q is not registered on the root command", name)
		}
	}
}

func TestMutatingCommandsCoverWrites(t *testing.T) {
	for _, name := range []string{"create", "delete", "import", "cleanup"} {
		if !mutatingCommands[name] {
			t.Errorf("command %q mutates the store but is not in mutatingCommands", name)
		}
	}
	for _, name := range []string{"list", "show", "export", "duplicates", "stats", "history", "verify", "pair"} {
		if mutatingCommands[name] {
			t.Errorf("read-only command %q would take the store lock", name)
		}
	}
}
