package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const fakeToolScript = `#!/bin/sh
printf '%s\n' "$*" >> "$0.calls"
src=""
top=""
while [ $# -gt 0 ]; do
  case "$1" in
    --src) src="$2"; shift ;;
    --top) top="$2"; shift ;;
  esac
  shift
done
if [ -z "$src" ] || [ ! -f "$src" ]; then
  echo "missing --src" >&2
  exit 2
fi
if [ -n "__FAIL__" ] && grep -q -- "__FAIL__" "$src"; then
  echo "tool crashed on $top" >&2
  exit 3
fi
n=$(grep -c '#pragma' "$src")
cat <<DOT
__DOT__DOT
`

// WriteFakeTool writes a shell script that stands in for the extraction
// tool. It prints the KernelDOT graph for the requested kernel, with the
// pragma node's numeric attribute set to the number of pragma lines in the
// source, and exits with status 3 when the source contains failMarker. An
// empty failMarker never fails. Every invocation's arguments are appended to
// the file at path+".calls".
func WriteFakeTool(t *testing.T, failMarker string) string {
	t.Helper()

	script := strings.NewReplacer("__FAIL__", failMarker, "__DOT__", kernelDOTTemplate).Replace(fakeToolScript)
	path := filepath.Join(t.TempDir(), "fake-air")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

// FakeToolCalls returns the argument lines recorded by a fake tool.
func FakeToolCalls(t *testing.T, tool string) []string {
	t.Helper()

	raw, err := os.ReadFile(tool + ".calls")
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	return strings.Split(strings.TrimSuffix(string(raw), "\n"), "\n")
}
