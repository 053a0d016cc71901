package capture

import (
	"strings"
	"testing"
	"time"
	"unicode"

	"github.com/stretchr/testify/require"
)

func TestSanitize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		label string
		want  string
	}{
		{name: "prefix and spaces", label: "Câmera: Av. Brasil / Centro", want: "Av._Brasil___Centro"},
		{name: "upper case prefix", label: "CÂMERA:Ponte Nova", want: "Ponte_Nova"},
		{name: "prefix only inside", label: "Rua Câmera: 2", want: "Rua_Câmera__2"},
		{name: "reserved set", label: `a\b/c*d?e:f"g<h>i|j`, want: "a_b_c_d_e_f_g_h_i_j"},
		{name: "whitespace run", label: "Rio  \t Doce", want: "Rio_Doce"},
		{name: "empty", label: "", want: ""},
		{name: "prefix without name", label: "câmera:   ", want: ""},
		{name: "decomposed accent", label: "Ca\u0302mera: Ipe\u0302", want: "Ip\u00ea"},
		{name: "plain", label: "Marginal_Norte", want: "Marginal_Norte"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, Sanitize(tc.label))
		})
	}
}

func TestFilename(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	require.Equal(t, "Ponte_Nova_20240309_140507_1.png", Filename("Ponte_Nova", at, 0))
	require.Equal(t, "Ponte_Nova_20240309_140507_12.png", Filename("Ponte_Nova", at, 11))
	require.NotEqual(t, Filename("x", at, 0), Filename("x", at, 1))
}

func FuzzSanitize(f *testing.F) {
	for _, seed := range []string{"", "Câmera: Centro", "a/b\\c", "  \t ", "câmera:x|y"} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, label string) {
		once := Sanitize(label)
		require.False(t, strings.ContainsAny(once, "\\/*?:\"<>|"), "reserved rune left in %q", once)
		require.False(t, strings.ContainsFunc(once, unicode.IsSpace), "whitespace left in %q", once)
		require.Equal(t, once, Sanitize(once))
	})
}
