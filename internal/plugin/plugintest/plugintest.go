// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package plugintest builds module archives for tests.
package plugintest

import (
	"archive/zip"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/stretchr/testify/require"
)

// TB is the part of testing.TB the helpers use. Both *testing.T and
// ginkgo's GinkgoT() satisfy it.
type TB interface {
	require.TestingT
	Helper()
}

// LuaDescriptor returns a minimal Lua descriptor with the given name and
// extra YAML appended verbatim.
func LuaDescriptor(name, extra string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "name: %s\nversion: 1.0.0\ntype: lua\nlua-plugin:\n  entry: main.lua\n", name)
	if extra != "" {
		b.WriteString(strings.TrimLeft(extra, "\n"))
		if !strings.HasSuffix(extra, "\n") {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// WriteArchive writes a zip archive named filename into dir containing files,
// and returns its path.
func WriteArchive(t TB, dir, filename string, files map[string]string) string {
	t.Helper()

	path := filepath.Join(dir, filename)
	f, err := os.Create(path) //nolint:gosec // test fixture path
	require.NoError(t, err)

	zw := zip.NewWriter(f)
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(files[name]))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

// WriteLuaModule writes <name>.plugin with a Lua descriptor and main.lua.
func WriteLuaModule(t TB, dir, name, extraYAML, script string) string {
	t.Helper()
	return WriteArchive(t, dir, name+".plugin", map[string]string{
		"plugin.yaml": LuaDescriptor(name, extraYAML),
		"main.lua":    script,
	})
}
