package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCommand()

	want := []string{"match", "import", "db", "config", "version"}
	for _, name := range want {
		found := false
		for _, cmd := range root.Commands() {
			if cmd.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestMatchCommandRegistersStrategies(t *testing.T) {
	root := newRootCommand()

	for _, cmd := range root.Commands() {
		if cmd.Name() != "match" {
			continue
		}
		want := []string{"exhaustive", "sequential", "spatial", "transitive", "pairs"}
		for _, name := range want {
			found := false
			for _, sub := range cmd.Commands() {
				if sub.Name() == name {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("match subcommand %q not registered", name)
			}
		}
		return
	}
	t.Fatal("match command not registered")
}

func TestVersionCommandPrints(t *testing.T) {
	cmd := newVersionCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.Run(cmd, nil)

	if strings.TrimSpace(out.String()) != version {
		t.Errorf("version output = %q, want %q", out.String(), version)
	}
}
