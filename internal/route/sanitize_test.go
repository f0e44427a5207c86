package route

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/routeshot/internal/device"
)

const reserved = `\/?%*:|"<>`

func TestSanitize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"/a", "_a"},
		{"/b", "_b"},
		{"/", RootName},
		{"", RootName},
		{"//", RootName},
		{"/item/46010", "_item_46010"},
		{"/items/category/Gunbreaker's Arms", "_items_category_Gunbreaker's Arms"},
		{"/search?q=a|b", "_search_q=a_b"},
		{`C:\temp\*.png`, "C_temp_.png"},
		{"a__b", "a_b"},
		{`<"x">`, "_x_"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, Sanitize(tt.in), "Sanitize(%q)", tt.in)
	}
}

func TestFileName(t *testing.T) {
	t.Parallel()

	require.Equal(t, "_a-desktop.png", FileName(Sanitize("/a"), device.Desktop))
	require.Equal(t, "_root-mobile.png", FileName(Sanitize("/"), device.Mobile))
}

func FuzzSanitize(f *testing.F) {
	for _, seed := range append(Defaults(), "", "/", "__", `\\//??`, "a%2Fb", "_root", "ü/ß") {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, in string) {
		once := Sanitize(in)
		if once == "" {
			t.Fatalf("Sanitize(%q) returned empty", in)
		}
		if strings.ContainsAny(once, reserved) {
			t.Fatalf("Sanitize(%q) = %q contains a reserved character", in, once)
		}
		if strings.Contains(once, "__") {
			t.Fatalf("Sanitize(%q) = %q contains a placeholder run", in, once)
		}
		if twice := Sanitize(once); twice != once {
			t.Fatalf("Sanitize not idempotent for %q: %q then %q", in, once, twice)
		}
	})
}
