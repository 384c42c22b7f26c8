package deliver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSMBConnection(t *testing.T) {
	tests := []struct {
		name   string
		conn   string
		server string
		share  string
		sub    string
	}{
		{"unc forward slashes", "//fileserver/scans/inbox", "fileserver", "scans", "inbox"},
		{"unc backslashes", `\\fileserver\scans\inbox`, "fileserver", "scans", "inbox"},
		{"bare form", "fileserver/scans/inbox", "fileserver", "scans", "inbox"},
		{"no subdirectory", "//fileserver/scans", "fileserver", "scans", ""},
		{"deep subdirectory", `\\nas\documents\scans\2026\08`, "nas", "documents", "scans/2026/08"},
		{"mixed separators", `//nas\scans/inbox`, "nas", "scans", "inbox"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, share, sub, err := ParseSMBConnection(tt.conn)
			require.NoError(t, err)
			assert.Equal(t, tt.server, server)
			assert.Equal(t, tt.share, share)
			assert.Equal(t, tt.sub, sub)
		})
	}
}

func TestParseSMBConnectionEquivalence(t *testing.T) {
	// The three user-facing spellings of the same share must normalize
	// identically.
	forms := []string{"//server/share/path", `\\server\share\path`, "server/share/path"}
	for _, form := range forms {
		server, share, sub, err := ParseSMBConnection(form)
		require.NoError(t, err, form)
		assert.Equal(t, "server", server, form)
		assert.Equal(t, "share", share, form)
		assert.Equal(t, "path", sub, form)
	}
}

func TestParseSMBConnectionRejectsShort(t *testing.T) {
	for _, conn := range []string{"", "//", "server", "//server", `\\server\`} {
		_, _, _, err := ParseSMBConnection(conn)
		assert.Error(t, err, "connection %q must be rejected", conn)
	}
}
