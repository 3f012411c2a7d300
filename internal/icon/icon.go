// Package icon renders layout labels as small square PNG icons for
// status bars that prefer images to text.
package icon

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	"deedles.dev/ximage/format"
	"golang.org/x/image/colornames"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// DefaultSize is the default edge length of an icon, in pixels.
const DefaultSize = 48

// Renderer draws labels and caches the resulting files.
type Renderer struct {
	Dir        string
	Size       int
	Background color.Color
	Foreground color.Color

	m     sync.Mutex
	paths map[string]string
}

// NewRenderer returns a Renderer that writes icons of the given size
// into dir.
func NewRenderer(dir string, size int) *Renderer {
	if size <= 0 {
		size = DefaultSize
	}

	return &Renderer{
		Dir:        dir,
		Size:       size,
		Background: colornames.Darkslategray,
		Foreground: colornames.White,
	}
}

func newImage(r image.Rectangle) *format.Image {
	return &format.Image{
		Format: format.ARGB8888,
		Rect:   r,
		Pix:    make([]byte, 4*r.Dx()*r.Dy()),
	}
}

// Render draws label. The text is drawn with a small bitmap font and
// then scaled up, which keeps it crisp at any size.
func (r *Renderer) Render(label string) image.Image {
	face := basicfont.Face7x13
	d := font.Drawer{
		Src:  image.NewUniform(r.Foreground),
		Face: face,
	}

	// Leave a one glyph-pixel margin around the text.
	w := max(d.MeasureString(label).Ceil(), face.Height) + 2
	small := newImage(image.Rect(0, 0, w, w))
	draw.Draw(small, small.Bounds(), image.NewUniform(r.Background), image.Point{}, draw.Src)

	d.Dst = small
	d.Dot = fixed.P(
		(w-d.MeasureString(label).Ceil())/2,
		(w+face.Ascent-face.Descent)/2,
	)
	d.DrawString(label)

	dst := newImage(image.Rect(0, 0, r.Size, r.Size))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), small, small.Bounds(), draw.Src, nil)
	return dst
}

// Encode renders label as a PNG.
func (r *Renderer) Encode(label string) ([]byte, error) {
	var buf bytes.Buffer
	err := png.Encode(&buf, r.Render(label))
	if err != nil {
		return nil, fmt.Errorf("encode icon: %w", err)
	}
	return buf.Bytes(), nil
}

// Path returns the path of the icon for label, writing it first if
// this Renderer hasn't yet.
func (r *Renderer) Path(label string) (string, error) {
	r.m.Lock()
	defer r.m.Unlock()

	if path, ok := r.paths[label]; ok {
		return path, nil
	}

	data, err := r.Encode(label)
	if err != nil {
		return "", err
	}

	err = os.MkdirAll(r.Dir, 0o755)
	if err != nil {
		return "", fmt.Errorf("create icon directory: %w", err)
	}
	path := filepath.Join(r.Dir, fileName(label, r.Size))
	err = os.WriteFile(path, data, 0o644)
	if err != nil {
		return "", fmt.Errorf("write icon: %w", err)
	}

	if r.paths == nil {
		r.paths = make(map[string]string)
	}
	r.paths[label] = path
	return path, nil
}

// fileName turns label into a file name that is safe on any
// filesystem. Letters and digits are kept as they are.
func fileName(label string, size int) string {
	var name strings.Builder
	for _, c := range label {
		if (c < unicode.MaxASCII) && (unicode.IsLetter(c) || unicode.IsDigit(c)) {
			name.WriteRune(c)
			continue
		}
		fmt.Fprintf(&name, "_%04x", c)
	}
	return fmt.Sprintf("%v-%v.png", name.String(), size)
}
