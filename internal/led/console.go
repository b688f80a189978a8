package led

import (
	"image"
	"image/color"

	"periph.io/x/conn/v3/display"
	"periph.io/x/devices/v3/screen1d"
)

// Console renders the strip as a row of ANSI color blocks on the terminal.
// Handy when there is no SPI port around.
type Console struct {
	drawer display.Drawer
	img    *image.NRGBA
}

func NewConsole(count int) *Console {
	if count <= 0 || count > MaxCount {
		count = MaxCount
	}
	return &Console{
		drawer: screen1d.New(&screen1d.Opts{X: count}),
		img:    image.NewNRGBA(image.Rect(0, 0, count, 1)),
	}
}

func (c *Console) Write(buf []Color) error {
	w := c.img.Rect.Dx()
	for i := 0; i < w; i++ {
		px := Color{}
		if i < len(buf) {
			px = buf[i]
		}
		c.img.SetNRGBA(i, 0, color.NRGBA{R: px.R, G: px.G, B: px.B, A: 0xFF})
	}
	return c.drawer.Draw(c.drawer.Bounds(), c.img, image.Point{})
}

func (c *Console) Close() error {
	return c.drawer.Halt()
}
