package bundle_test

import (
	"strings"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/burrowgame/burrow/runtime/bundle"
)

func TestHashIsOrderIndependent(t *testing.T) {
	a := map[string]string{"main": "x", "lib": "y"}
	b := map[string]string{"lib": "y", "main": "x"}
	assert.Equal(t, bundle.HashModules(a), bundle.HashModules(b))

	c := map[string]string{"lib": "y", "main": "changed"}
	assert.Assert(t, bundle.HashModules(a) != bundle.HashModules(c))
}

func TestEntryScriptShape(t *testing.T) {
	cache := bundle.NewCache()
	modules := map[string]string{
		"main": `var lib = require("lib"); module.exports.loop = function(){ return lib.f(); };`,
		"lib":  `module.exports.f = function(){ return 42; };`,
	}
	snap := cache.GetOrAdd(bundle.HashModules(modules), modules)

	// Modules register in sorted name order so the entry is deterministic.
	libAt := strings.Index(snap.Entry, `__register("lib"`)
	mainAt := strings.Index(snap.Entry, `__register("main"`)
	assert.Assert(t, libAt >= 0)
	assert.Assert(t, mainAt >= 0)
	assert.Assert(t, libAt < mainAt)
	assert.Assert(t, strings.Contains(snap.Entry, `require("main")`))
}

func TestCacheIsKeyedByHashNotContent(t *testing.T) {
	cache := bundle.NewCache()
	hash := "deadbeef"

	first := cache.GetOrAdd(hash, map[string]string{"main": "original"})
	second := cache.GetOrAdd(hash, map[string]string{"main": "different"})

	// Same hash returns the same snapshot even with different modules; the
	// key, not the content, drives the cache.
	assert.Assert(t, first == second)
	assert.Equal(t, "original", second.Modules["main"])
}
