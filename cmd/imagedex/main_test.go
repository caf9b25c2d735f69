package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()

	for _, name := range []string{"serve", "index", "search"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered: %v", name, err)
		}
	}
	if root.PersistentFlags().Lookup("env") == nil {
		t.Error("--env flag missing")
	}
}

func TestRootCmd_SearchRequiresImage(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"search"})

	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "arg") {
		t.Errorf("expected argument error, got %v", err)
	}
}

func TestRootCmd_UnknownEnv(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"index", "--env", "does-not-exist"})

	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "load config") {
		t.Errorf("expected config error, got %v", err)
	}
}
