// Package bundle builds and caches the executable form of a tenant's code:
// all modules concatenated deterministically into one entry script with a
// minimal require shim. Snapshots are keyed by content hash, so the cache is
// append-only; a changed module map changes the key.
package bundle

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
)

// Snapshot is the immutable compiled/normalized representation of one
// content hash.
type Snapshot struct {
	Hash    string
	Modules map[string]string
	Entry   string
}

type Cache struct {
	snapshots sync.Map // hash -> *Snapshot
}

func NewCache() *Cache {
	return &Cache{}
}

// GetOrAdd returns the cached snapshot for the hash, building one from the
// given modules on first sight. The hash is the cache key: a later call with
// the same hash but different modules returns the original snapshot.
func (c *Cache) GetOrAdd(hash string, modules map[string]string) *Snapshot {
	if cached, ok := c.snapshots.Load(hash); ok {
		return cached.(*Snapshot)
	}
	built := build(hash, modules)
	cached, _ := c.snapshots.LoadOrStore(hash, built)
	return cached.(*Snapshot)
}

// HashModules computes the content hash of a module map. Modules are
// normalized by sorting on name so the hash is independent of map order.
func HashModules(modules map[string]string) string {
	names := sortedNames(modules)
	h := sha256.New()
	for _, name := range names {
		h.Write([]byte(name))
		h.Write([]byte{0})
		h.Write([]byte(modules[name]))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// build generates the entry script: a module registry, the require shim, one
// registered factory per module in name order, and the main invocation.
func build(hash string, modules map[string]string) *Snapshot {
	copied := make(map[string]string, len(modules))
	for name, source := range modules {
		copied[name] = source
	}

	var b strings.Builder
	b.WriteString(`var __modules = Object.create(null);
var __cache = Object.create(null);
function __register(name, factory) { __modules[name] = factory; }
function require(name) {
	if (name in __cache) { return __cache[name]; }
	var factory = __modules[name];
	if (factory === undefined) { throw new Error("Unknown module " + name); }
	var module = { exports: {} };
	__cache[name] = module.exports;
	factory(module, module.exports, require);
	__cache[name] = module.exports;
	return module.exports;
}
`)
	for _, name := range sortedNames(copied) {
		b.WriteString("__register(")
		b.WriteString(quote(name))
		b.WriteString(", function (module, exports, require) {\n")
		b.WriteString(copied[name])
		b.WriteString("\n});\n")
	}
	b.WriteString(`var __main = require("main");
if (typeof __main.loop === "function") { __main.loop(); }
`)

	return &Snapshot{
		Hash:    hash,
		Modules: copied,
		Entry:   b.String(),
	}
}

func sortedNames(modules map[string]string) []string {
	names := make([]string, 0, len(modules))
	for name := range modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func quote(name string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
	return `"` + replacer.Replace(name) + `"`
}
