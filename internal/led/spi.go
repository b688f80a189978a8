package led

import (
	"fmt"
	"strings"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/nrzled"
	"periph.io/x/host/v3"
)

// SPI drives a WS281x strip through a spidev port using NRZ encoding.
type SPI struct {
	port  spi.PortCloser
	dev   *nrzled.Dev
	order [3]int
	count int
	raw   []byte
}

// NewSPI opens the named spidev port (empty string picks the first available)
// and prepares an NRZ encoder for count pixels. colorOrder is the strip's
// channel order, e.g. "GRB" for WS2812B.
func NewSPI(portName string, count int, colorOrder string, speedHz int) (*SPI, error) {
	if count <= 0 || count > MaxCount {
		return nil, fmt.Errorf("invalid LED count %d", count)
	}
	order, err := parseOrder(colorOrder)
	if err != nil {
		return nil, err
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	port, err := spireg.Open(portName)
	if err != nil {
		return nil, fmt.Errorf("open spi %q: %w", portName, err)
	}
	freq := physic.Frequency(speedHz) * physic.Hertz
	if freq == 0 {
		freq = 2500 * physic.KiloHertz
	}
	dev, err := nrzled.NewSPI(port, &nrzled.Opts{
		NumPixels: count,
		Channels:  3,
		Freq:      freq,
	})
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("nrzled: %w", err)
	}
	return &SPI{
		port:  port,
		dev:   dev,
		order: order,
		count: count,
		raw:   make([]byte, count*3),
	}, nil
}

func parseOrder(s string) ([3]int, error) {
	if s == "" {
		s = "GRB"
	}
	var order [3]int
	if len(s) != 3 {
		return order, fmt.Errorf("invalid color order %q", s)
	}
	for i, ch := range strings.ToUpper(s) {
		switch ch {
		case 'R':
			order[i] = 0
		case 'G':
			order[i] = 1
		case 'B':
			order[i] = 2
		default:
			return order, fmt.Errorf("invalid color order %q", s)
		}
	}
	return order, nil
}

func (s *SPI) Write(buf []Color) error {
	n := len(buf)
	if n > s.count {
		n = s.count
	}
	for i := 0; i < n; i++ {
		ch := [3]uint8{buf[i].R, buf[i].G, buf[i].B}
		s.raw[i*3+0] = ch[s.order[0]]
		s.raw[i*3+1] = ch[s.order[1]]
		s.raw[i*3+2] = ch[s.order[2]]
	}
	for i := n * 3; i < len(s.raw); i++ {
		s.raw[i] = 0
	}
	_, err := s.dev.Write(s.raw)
	return err
}

func (s *SPI) Close() error {
	_ = s.dev.Halt()
	return s.port.Close()
}
