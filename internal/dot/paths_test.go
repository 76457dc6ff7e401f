package dot_test

import (
	"path/filepath"
	"testing"

	"dotkeep/internal/dot"
)

func TestExpandContractHome(t *testing.T) {
	t.Parallel()
	home := "/home/alice"

	tests := []struct {
		entry string
		abs   string
	}{
		{"~", "/home/alice"},
		{"~/.zshrc", "/home/alice/.zshrc"},
		{"~/.config/nvim/init.lua", "/home/alice/.config/nvim/init.lua"},
		{"/etc/hosts", "/etc/hosts"},
	}
	for _, tt := range tests {
		if got := dot.ExpandHome(home, tt.entry); got != tt.abs {
			t.Errorf("ExpandHome(%q) = %q, want %q", tt.entry, got, tt.abs)
		}
		if got := dot.ContractHome(home, tt.abs); got != tt.entry {
			t.Errorf("ContractHome(%q) = %q, want %q", tt.abs, got, tt.entry)
		}
	}

	// A sibling of home must not contract.
	if got := dot.ContractHome(home, "/home/alice2/.zshrc"); got != "/home/alice2/.zshrc" {
		t.Errorf("ContractHome(sibling) = %q", got)
	}
}

func TestLayout_Destination(t *testing.T) {
	t.Parallel()
	l := dot.Layout{Home: "/home/alice"}

	tests := []struct {
		path string
		want string
	}{
		{"~/.zshrc", "/home/alice/.zshrc"},
		{"~/.env.secret.age", "/home/alice/.env.secret"},
		{"/etc/hosts.age", "/etc/hosts"},
	}
	for _, tt := range tests {
		if got := l.Destination(tt.path); got != tt.want {
			t.Errorf("Destination(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestLayout_CompiledPath(t *testing.T) {
	t.Parallel()
	l := dot.Layout{Home: "/home/alice", CompiledDir: "/home/alice/.dotkeep/profiles/default/compiled"}

	tests := []struct {
		path string
		rel  string
	}{
		{"~/.zshrc", ".zshrc"},
		{"~/.config/nvim/init.lua", ".config/nvim/init.lua"},
		{"/etc/hosts", "abs/etc/hosts"},
	}
	for _, tt := range tests {
		want := filepath.Join(l.CompiledDir, tt.rel)
		if got := l.CompiledPath(tt.path); got != want {
			t.Errorf("CompiledPath(%q) = %q, want %q", tt.path, got, want)
		}
		if got := dot.TreeRelative(tt.path); got != tt.rel {
			t.Errorf("TreeRelative(%q) = %q, want %q", tt.path, got, tt.rel)
		}
	}
}

func TestLayout_UnderHome(t *testing.T) {
	t.Parallel()
	l := dot.Layout{Home: "/home/alice"}

	tests := []struct {
		abs  string
		want bool
	}{
		{"/home/alice/.zshrc", true},
		{"/home/alice", true},
		{"/home/alice2/.zshrc", false},
		{"/etc/hosts", false},
		{"/home", false},
	}
	for _, tt := range tests {
		if got := l.UnderHome(tt.abs); got != tt.want {
			t.Errorf("UnderHome(%q) = %v, want %v", tt.abs, got, tt.want)
		}
	}
}
