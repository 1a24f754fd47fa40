// Command wheelpreview runs the wheel in a desktop window with a local
// ledger, for tuning the layout, timings and prize table without the bot.
//
// Keys: Space spins, C claims the revealed prize, Q quits.
package main

import (
	"errors"
	"flag"
	"fmt"
	"image/color"
	"os"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/vector"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"telegram-daily-spin/internal/asset"
	"telegram-daily-spin/internal/ledger"
	"telegram-daily-spin/internal/prize"
	"telegram-daily-spin/internal/spin"
	"telegram-daily-spin/internal/wheel"
)

const screenHeight = 320

var (
	prizesFile = flag.String("prizes", "", "prize table YAML (built-in table if empty)")
	assetsDir  = flag.String("assets", "assets", "animation asset directory")
	slots      = flag.Int("slots", 9, "number of wheel slots")

	errQuit = errors.New("quit")

	colBackground = color.RGBA{0x14, 0x16, 0x22, 0xff}
	colCell       = color.RGBA{0x2a, 0x2f, 0x45, 0xff}
	colCollect    = color.RGBA{0x5a, 0x3d, 0x8a, 0xff}
	colHighlight  = color.RGBA{0xf5, 0xc5, 0x42, 0xff}
	colMarker     = color.RGBA{0xff, 0x55, 0x55, 0xff}
)

type preview struct {
	layout wheel.Layout
	ctrl   *spin.Controller
	ledger *ledger.Ledger
	last   string
}

func newPreview(catalog *prize.Catalog, loader wheel.AnimationLoader) (*preview, error) {
	layout := wheel.DefaultLayout()
	layout.Slots = *slots

	cfg := spin.DefaultConfig()
	selector := prize.NewWeightedSelector(catalog.Prizes)

	loop, err := wheel.NewLoop(layout, wheel.NewRenderer(loader), selector, cfg.IdleSpeed)
	if err != nil {
		return nil, err
	}

	p := &preview{layout: layout, ledger: ledger.New(catalog)}
	p.ctrl = spin.NewController(loop, selector, spin.RewarderFunc(func(pr prize.Prize) error {
		out := p.ledger.Award(pr)
		p.last = fmt.Sprintf("claimed %s (+%d)", pr.Label(), out.Credited)
		return nil
	}), cfg, spin.WithRevealHook(func(pr prize.Prize) {
		log.Info().Str("prize_id", pr.ID()).Str("label", pr.Label()).Msg("Revealed")
	}))
	return p, nil
}

func (p *preview) Update() error {
	switch {
	case inpututil.IsKeyJustPressed(ebiten.KeyQ):
		return errQuit
	case inpututil.IsKeyJustPressed(ebiten.KeySpace):
		if err := p.ctrl.Spin(); err != nil {
			p.last = err.Error()
		}
	case inpututil.IsKeyJustPressed(ebiten.KeyC):
		if _, err := p.ctrl.Claim(); err != nil {
			p.last = err.Error()
		}
	}

	p.ctrl.Tick(time.Second / time.Duration(ebiten.TPS()))
	return nil
}

func (p *preview) Draw(screen *ebiten.Image) {
	screen.Fill(colBackground)

	top := float32(screenHeight/2) - float32(p.layout.CellWidth)/2
	for _, s := range p.ctrl.Loop().Frame().Slots {
		w := float32(p.layout.CellWidth * s.Scale)
		x := float32(s.X) - w/2
		y := top + (float32(p.layout.CellWidth)-w)/2

		fill := colCell
		if s.Kind == string(prize.KindCollectible) {
			fill = colCollect
		}
		vector.DrawFilledRect(screen, x, y, w, w, fill, true)
		if s.Highlighted {
			vector.StrokeRect(screen, x, y, w, w, 3, colHighlight, true)
		}
		ebitenutil.DebugPrintAt(screen, s.Label, int(x)+8, int(y+w/2)-8)
	}

	center := float32(p.layout.Center())
	vector.StrokeLine(screen, center, top-20, center, top+float32(p.layout.CellWidth)+20, 2, colMarker, true)

	st := p.ctrl.State()
	info := fmt.Sprintf("phase: %s  speed: %.0f px/s  balance: %d (shown %d)  items: %d",
		st.Phase, st.Speed, p.ledger.Balance(), p.ledger.DisplayedBalance(), p.ledger.Stats().Total)
	ebitenutil.DebugPrintAt(screen, info, 8, 8)
	if st.Revealed != nil {
		ebitenutil.DebugPrintAt(screen, "won: "+st.Revealed.Label()+"  [C] claim", 8, 24)
	}
	ebitenutil.DebugPrintAt(screen, p.last, 8, screenHeight-20)
}

func (p *preview) Layout(outsideWidth, outsideHeight int) (int, int) {
	return int(p.layout.ContainerWidth), screenHeight
}

func main() {
	flag.Parse()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	catalog := prize.DefaultCatalog()
	if *prizesFile != "" {
		var err error
		if catalog, err = prize.LoadCatalog(*prizesFile); err != nil {
			log.Fatal().Err(err).Msg("Failed to load prize table")
		}
	}

	loader := asset.NewLoader(os.DirFS(*assetsDir))
	defer loader.Close()

	p, err := newPreview(catalog, loader)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build wheel")
	}
	defer p.ctrl.Close()

	ebiten.SetWindowSize(int(p.layout.ContainerWidth)*2, screenHeight*2)
	ebiten.SetWindowTitle("Daily Spin preview")

	if err := ebiten.RunGame(p); err != nil && !errors.Is(err, errQuit) {
		log.Fatal().Err(err).Msg("Preview failed")
	}
}
