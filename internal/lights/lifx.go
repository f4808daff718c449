package lights

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/rs/zerolog/log"
	"go.yhsif.com/lifxlan"
	"go.yhsif.com/lifxlan/light"
)

// lifxBulb adapts a lifxlan light to the bulb interface.
type lifxBulb struct {
	id  string
	dev light.Device
}

func (b *lifxBulb) ID() string {
	return b.id
}

func (b *lifxBulb) Label() string {
	label := b.dev.Label().String()
	if label == lifxlan.EmptyLabel {
		return ""
	}
	return label
}

func (b *lifxBulb) Open() (bulbSession, error) {
	conn, err := b.dev.Dial()
	if err != nil {
		return nil, err
	}
	return &lifxSession{dev: b.dev, conn: conn}, nil
}

type lifxSession struct {
	dev  light.Device
	conn net.Conn
}

func (s *lifxSession) Power(ctx context.Context) (bool, error) {
	power, err := s.dev.GetPower(ctx, s.conn)
	if err != nil {
		return false, err
	}
	return power.On(), nil
}

func (s *lifxSession) Color(ctx context.Context) (deviceColor, error) {
	c, err := s.dev.GetColor(ctx, s.conn)
	if err != nil {
		return deviceColor{}, err
	}
	return deviceColor{
		Hue:        c.Hue,
		Saturation: c.Saturation,
		Brightness: c.Brightness,
		Kelvin:     c.Kelvin,
	}, nil
}

func (s *lifxSession) SetPower(ctx context.Context, on bool, fade time.Duration) error {
	power := lifxlan.PowerOff
	if on {
		power = lifxlan.PowerOn
	}
	return s.dev.SetLightPower(ctx, s.conn, power, fade, true)
}

func (s *lifxSession) SetColor(ctx context.Context, c deviceColor, fade time.Duration) error {
	color := lifxlan.Color{
		Hue:        c.Hue,
		Saturation: c.Saturation,
		Brightness: c.Brightness,
		Kelvin:     c.Kelvin,
	}
	return s.dev.SetColor(ctx, s.conn, &color, fade, true)
}

func (s *lifxSession) Close() error {
	return s.conn.Close()
}

// lifxScanner returns a scanFunc that broadcasts lifxlan discovery packets
// and wraps every responding light. Non-light devices are skipped.
func lifxScanner(broadcastHost string, wrapTimeout time.Duration) scanFunc {
	return func(ctx context.Context, found func(bulb)) error {
		ch := make(chan lifxlan.Device)
		errCh := make(chan error, 1)
		go func() {
			errCh <- lifxlan.Discover(ctx, ch, broadcastHost)
		}()

		seen := make(map[string]bool)
		for raw := range ch {
			id := CanonicalID(raw.Target().String())
			if seen[id] {
				continue
			}
			seen[id] = true

			wrapCtx, cancel := context.WithTimeout(ctx, wrapTimeout)
			ld, err := light.Wrap(wrapCtx, raw, false)
			cancel()
			if err != nil {
				log.Debug().Err(err).Str("transport", "lan").Str("light", id).Msg("Skipping non-light device")
				continue
			}
			found(&lifxBulb{id: id, dev: ld})
		}

		err := <-errCh
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
}
