package imaging

import (
	"image/color"
	"testing"
)

func TestParseColor(t *testing.T) {
	tests := []struct {
		in      string
		want    color.NRGBA
		wantErr bool
	}{
		{"", color.NRGBA{0, 0, 0, 255}, false},
		{"#000000", color.NRGBA{0, 0, 0, 255}, false},
		{"#FF8040", color.NRGBA{255, 128, 64, 255}, false},
		{"ff8040", color.NRGBA{255, 128, 64, 255}, false},
		{"#fff", color.NRGBA{255, 255, 255, 255}, false},
		{"#GG0000", color.NRGBA{}, true},
		{"red", color.NRGBA{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseColor(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseColor(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseColor(%q): got %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestHex(t *testing.T) {
	if got := Hex(color.RGBA{255, 128, 64, 255}); got != "#FF8040" {
		t.Errorf("Hex: got %s, want #FF8040", got)
	}
	if got := Hex(color.Black); got != "#000000" {
		t.Errorf("Hex: got %s, want #000000", got)
	}
}
