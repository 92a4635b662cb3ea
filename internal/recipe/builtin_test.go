package recipe_test

import (
	"testing"

	"github.com/agent462/drover/internal/config"
	"github.com/agent462/drover/internal/recipe"
)

func TestBuiltinRecipes(t *testing.T) {
	builtins := recipe.BuiltinRecipes()
	if len(builtins) == 0 {
		t.Fatal("no built-in recipes")
	}
	for name, r := range builtins {
		if r.Description == "" {
			t.Errorf("recipe %q has no description", name)
		}
		if len(r.Steps) == 0 {
			t.Errorf("recipe %q has no steps", name)
		}
		for _, raw := range r.Steps {
			if step := recipe.ParseStep(raw); step.Command == "" {
				t.Errorf("recipe %q step %q parses to an empty command", name, raw)
			}
		}
	}

	if !recipe.IsBuiltin("uptime") {
		t.Error("uptime should be built-in")
	}
	if recipe.IsBuiltin("nope") {
		t.Error("nope should not be built-in")
	}
}

func TestResolve_UserOverridesBuiltin(t *testing.T) {
	cfg := &config.Config{
		Recipes: map[string]config.Recipe{
			"uptime": {Description: "custom", Steps: []string{"uptime -p"}},
			"deploy": {Description: "user recipe", Steps: []string{"echo deploy"}},
		},
	}

	r, isBuiltin, found := recipe.Resolve("uptime", cfg)
	if !found || !isBuiltin {
		t.Fatalf("Resolve(uptime) = found %v builtin %v", found, isBuiltin)
	}
	if r.Description != "custom" {
		t.Errorf("user recipe should override built-in, got %q", r.Description)
	}

	r, isBuiltin, found = recipe.Resolve("deploy", cfg)
	if !found || isBuiltin {
		t.Fatalf("Resolve(deploy) = found %v builtin %v", found, isBuiltin)
	}

	if _, _, found = recipe.Resolve("missing", cfg); found {
		t.Error("missing recipe should not resolve")
	}

	if _, _, found = recipe.Resolve("disk-check", nil); !found {
		t.Error("built-ins should resolve with a nil config")
	}
}

func TestMerged(t *testing.T) {
	cfg := &config.Config{
		Recipes: map[string]config.Recipe{
			"deploy": {Steps: []string{"echo deploy"}},
		},
	}

	merged := recipe.Merged(cfg)
	if len(merged) != len(recipe.BuiltinRecipes())+1 {
		t.Errorf("merged = %d recipes", len(merged))
	}
	if _, ok := merged["deploy"]; !ok {
		t.Error("merged should include user recipes")
	}
}
