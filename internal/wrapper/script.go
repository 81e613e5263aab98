package wrapper

import (
	"bytes"
	"fmt"
	"strings"

	"primewrap/internal/classify"
)

// DefaultShell interprets generated wrapper scripts
const DefaultShell = "/bin/bash"

// EnvVar is one exported variable in a wrapper script
type EnvVar struct {
	Name  string
	Value string
}

// DefaultEnv selects the discrete NVIDIA GPU for GLX and Vulkan
func DefaultEnv() []EnvVar {
	return []EnvVar{
		{Name: "__NV_PRIME_RENDER_OFFLOAD", Value: "1"},
		{Name: "__GLX_VENDOR_LIBRARY_NAME", Value: "nvidia"},
		{Name: "__VK_LAYER_NV_optimus", Value: "NVIDIA_only"},
	}
}

// Script renders the wrapper for the absolute original path target. The
// script exports env and replaces itself with the backup, passing all
// arguments through.
func Script(target string, env []EnvVar, shell string) []byte {
	if shell == "" {
		shell = DefaultShell
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "#!%s\n", shell)
	for _, v := range env {
		fmt.Fprintf(&buf, "export %s=%s\n", v.Name, shellValue(v.Value))
	}
	fmt.Fprintf(&buf, "exec %s \"$@\"\n", doubleQuote(classify.BackupPath(target)))
	return buf.Bytes()
}

// shellValue leaves plain words bare and double quotes everything else.
func shellValue(s string) string {
	if s != "" && strings.IndexFunc(s, needsQuote) < 0 {
		return s
	}
	return doubleQuote(s)
}

func needsQuote(r rune) bool {
	switch {
	case 'a' <= r && r <= 'z', 'A' <= r && r <= 'Z', '0' <= r && r <= '9':
		return false
	case strings.ContainsRune("_-./:,+=@%", r):
		return false
	}
	return true
}

// doubleQuote escapes the characters that stay special inside "...".
func doubleQuote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"', '\\', '$', '`':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}
