package icon

import (
	"bytes"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"deedles.dev/ximage/format"
	"golang.org/x/image/colornames"
)

func TestRender(t *testing.T) {
	r := NewRenderer(t.TempDir(), 32)
	img := r.Render("DE")

	if b := img.Bounds(); (b.Dx() != 32) || (b.Dy() != 32) {
		t.Fatalf("bounds: %v", b)
	}

	var fg, bg int
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			cr, cg, cb, _ := img.At(x, y).RGBA()
			switch {
			case (cr == 0xFFFF) && (cg == 0xFFFF) && (cb == 0xFFFF):
				fg++
			default:
				bg++
			}
		}
	}
	if (fg == 0) || (bg == 0) {
		t.Errorf("expected both text and background, got %v and %v pixels", fg, bg)
	}

	cr, cg, cb, _ := img.At(0, 0).RGBA()
	wr, wg, wb, _ := colornames.Darkslategray.RGBA()
	if (cr>>8 != wr>>8) || (cg>>8 != wg>>8) || (cb>>8 != wb>>8) {
		t.Errorf("corner is not background: %v", img.At(0, 0))
	}
}

func TestPath(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "icons")
	r := NewRenderer(dir, 0)

	path, err := r.Path("EN")
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "EN-48.png"); path != want {
		t.Errorf("path: got %q, want %q", path, want)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Bounds().Dx() != DefaultSize {
		t.Errorf("size: %v", img.Bounds())
	}

	os.Remove(path)
	again, err := r.Path("EN")
	if (err != nil) || (again != path) {
		t.Fatalf("second call: %q, %v", again, err)
	}
	if _, err := os.Stat(path); err == nil {
		t.Error("icon was written twice")
	}
}

func TestFileName(t *testing.T) {
	tests := map[string]string{
		"EN":  "EN-48.png",
		"G3":  "G3-48.png",
		"??":  "_003f_003f-48.png",
		"УК":  "_0423_041a-48.png",
		"a/b": "a_002fb-48.png",
	}
	for in, want := range tests {
		if got := fileName(in, 48); got != want {
			t.Errorf("fileName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRenderFormat(t *testing.T) {
	r := NewRenderer(t.TempDir(), 8)
	img, ok := r.Render("EN").(*format.Image)
	if !ok {
		t.Fatalf("got %T, want *format.Image", r.Render("EN"))
	}
	if img.Format != format.ARGB8888 {
		t.Errorf("format: got %v", img.Format)
	}
	if len(img.Pix) != 4*8*8 {
		t.Errorf("pixel data: got %v bytes", len(img.Pix))
	}

	// ARGB8888 is stored little-endian: blue, green, red, alpha.
	wr, wg, wb, _ := colornames.Darkslategray.RGBA()
	want := []byte{byte(wb >> 8), byte(wg >> 8), byte(wr >> 8), 0xFF}
	if got := img.Pix[:4]; !bytes.Equal(got, want) {
		t.Errorf("corner pixel: got %v, want %v", got, want)
	}
}
